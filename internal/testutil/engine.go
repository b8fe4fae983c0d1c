// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/mitabo/mitabo/internal/media/ffmpeg"
)

// FakeEngine stands in for the transcoding engine. On success it writes the
// tree a real packaging run leaves behind, derived from the HLS arguments.
type FakeEngine struct {
	// WriteMaster controls whether master.m3u8 is written, like engine
	// builds that emit it.
	WriteMaster bool
	// ExitCode other than 0 fails the run with Stderr as diagnostic.
	ExitCode int
	Stderr   string
	// Block waits for ctx to end before returning its error.
	Block bool

	mu    sync.Mutex
	calls [][]string
}

// Run implements the engine contract.
func (f *FakeEngine) Run(ctx context.Context, args []string) error {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string(nil), args...))
	f.mu.Unlock()

	if f.Block {
		<-ctx.Done()
		return &ffmpeg.RunError{ExitCode: -1, Stderr: f.Stderr, Err: ctx.Err()}
	}
	if f.ExitCode != 0 {
		return &ffmpeg.RunError{
			ExitCode: f.ExitCode,
			Stderr:   f.Stderr,
			Err:      fmt.Errorf("exit status %d", f.ExitCode),
		}
	}
	return f.writeTree(args)
}

// Calls returns the argument lists of every invocation.
func (f *FakeEngine) Calls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.calls...)
}

func (f *FakeEngine) writeTree(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("no arguments")
	}
	playlistPattern := args[len(args)-1]
	streams := 1
	master := ""
	for i := 0; i+1 < len(args); i++ {
		switch args[i] {
		case "-var_stream_map":
			streams = len(strings.Fields(args[i+1]))
		case "-master_pl_name":
			master = args[i+1]
		}
	}

	for n := range streams {
		playlist := strings.ReplaceAll(playlistPattern, "%v", strconv.Itoa(n))
		dir := filepath.Dir(playlist)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(dir, "seg_000.ts"), []byte("ts"), 0o600); err != nil {
			return err
		}
		body := "#EXTM3U\n#EXT-X-VERSION:3\n#EXT-X-TARGETDURATION:4\n#EXT-X-PLAYLIST-TYPE:VOD\n#EXTINF:4.000000,\nseg_000.ts\n#EXT-X-ENDLIST\n"
		if err := os.WriteFile(playlist, []byte(body), 0o600); err != nil {
			return err
		}
	}

	if f.WriteMaster && master != "" {
		root := filepath.Dir(filepath.Dir(playlistPattern))
		body := "#EXTM3U\n#EXT-X-VERSION:3\n"
		for n := range streams {
			body += "#EXT-X-STREAM-INF:BANDWIDTH=1,RESOLUTION=1x1\nv" + strconv.Itoa(n) + "/index.m3u8\n"
		}
		if err := os.WriteFile(filepath.Join(root, master), []byte(body), 0o600); err != nil {
			return err
		}
	}
	return nil
}
