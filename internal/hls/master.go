// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package hls

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/renameio/v2"
)

// Variant is one #EXT-X-STREAM-INF entry of a master playlist.
type Variant struct {
	Bandwidth  int
	Resolution string
	URI        string
}

// RenderMasterPlaylist renders the minimal master playlist for renditions,
// in declaration order.
func RenderMasterPlaylist(renditions []Rendition) []byte {
	var b bytes.Buffer
	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:3\n")
	for i, r := range renditions {
		fmt.Fprintf(&b, "#EXT-X-STREAM-INF:BANDWIDTH=%d,RESOLUTION=%s\n", r.Bandwidth, r.Resolution())
		b.WriteString(VariantPlaylistURI(i))
		b.WriteByte('\n')
	}
	return b.Bytes()
}

// EnsureMasterPlaylist writes the master playlist into outputDir if the
// engine did not. It reports whether a file was written; an existing file is
// left untouched.
func EnsureMasterPlaylist(outputDir string, renditions []Rendition) (bool, error) {
	if len(renditions) == 0 {
		return false, errors.New("no renditions")
	}
	path := filepath.Join(outputDir, MasterPlaylistName)

	info, err := os.Stat(path)
	switch {
	case err == nil && info.Mode().IsRegular():
		return false, nil
	case err == nil:
		return false, fmt.Errorf("%s exists and is not a regular file", path)
	case !errors.Is(err, os.ErrNotExist):
		return false, fmt.Errorf("stat master playlist: %w", err)
	}

	pending, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
	if err != nil {
		return false, fmt.Errorf("create pending master playlist: %w", err)
	}
	defer func() { _ = pending.Cleanup() }()

	if _, err := pending.Write(RenderMasterPlaylist(renditions)); err != nil {
		return false, fmt.Errorf("write master playlist: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return false, fmt.Errorf("atomically replace master playlist: %w", err)
	}
	return true, nil
}

// ParseMasterPlaylist reads the variant entries of a master playlist.
func ParseMasterPlaylist(r io.Reader) ([]Variant, error) {
	scanner := bufio.NewScanner(r)
	var (
		variants []Variant
		pending  *Variant
		sawHead  bool
	)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !sawHead {
			if line != "#EXTM3U" {
				return nil, errors.New("missing #EXTM3U header")
			}
			sawHead = true
			continue
		}

		if attrs, ok := strings.CutPrefix(line, "#EXT-X-STREAM-INF:"); ok {
			v, err := parseStreamInf(attrs)
			if err != nil {
				return nil, err
			}
			pending = &v
			continue
		}
		if strings.HasPrefix(line, "#") {
			continue
		}
		if pending == nil {
			return nil, fmt.Errorf("URI %q without #EXT-X-STREAM-INF", line)
		}
		pending.URI = line
		variants = append(variants, *pending)
		pending = nil
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if !sawHead {
		return nil, errors.New("empty playlist")
	}
	if pending != nil {
		return nil, errors.New("#EXT-X-STREAM-INF without URI")
	}
	return variants, nil
}

func parseStreamInf(attrs string) (Variant, error) {
	var v Variant
	for _, kv := range splitAttributes(attrs) {
		key, val, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		switch strings.TrimSpace(key) {
		case "BANDWIDTH":
			bw, err := strconv.Atoi(strings.TrimSpace(val))
			if err != nil {
				return v, fmt.Errorf("invalid BANDWIDTH %q", val)
			}
			v.Bandwidth = bw
		case "RESOLUTION":
			v.Resolution = strings.TrimSpace(val)
		}
	}
	if v.Bandwidth <= 0 {
		return v, errors.New("#EXT-X-STREAM-INF without BANDWIDTH")
	}
	return v, nil
}

// splitAttributes splits on commas outside quoted strings (CODECS="a,b").
func splitAttributes(s string) []string {
	var (
		out    []string
		start  int
		quoted bool
	)
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			quoted = !quoted
		case ',':
			if !quoted {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	return append(out, s[start:])
}
