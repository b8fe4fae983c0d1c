// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package hls

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// VariantSummary is what a packaged rendition playlist declares.
type VariantSummary struct {
	Segments       int
	TotalDuration  time.Duration
	TargetDuration time.Duration
	IsVOD          bool // #EXT-X-PLAYLIST-TYPE:VOD or #EXT-X-ENDLIST
	Complete       bool // #EXT-X-ENDLIST seen
}

// InspectVariantPlaylist parses a rendition playlist.
func InspectVariantPlaylist(playlist string) (*VariantSummary, error) {
	scanner := bufio.NewScanner(strings.NewReader(playlist))
	sum := &VariantSummary{}

	var (
		nextDuration time.Duration
		sawExtinf    bool
		hasVODType   bool
	)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch {
		case strings.HasPrefix(line, "#EXT-X-PLAYLIST-TYPE:"):
			hasVODType = strings.TrimPrefix(line, "#EXT-X-PLAYLIST-TYPE:") == "VOD"
		case line == "#EXT-X-ENDLIST":
			sum.Complete = true
		case strings.HasPrefix(line, "#EXT-X-TARGETDURATION:"):
			secs, err := strconv.Atoi(strings.TrimPrefix(line, "#EXT-X-TARGETDURATION:"))
			if err != nil {
				return nil, fmt.Errorf("invalid target duration: %s", line)
			}
			sum.TargetDuration = time.Duration(secs) * time.Second
		case strings.HasPrefix(line, "#EXTINF:"):
			durPart := strings.TrimPrefix(line, "#EXTINF:")
			if idx := strings.Index(durPart, ","); idx != -1 {
				durPart = durPart[:idx]
			}
			secs, err := strconv.ParseFloat(durPart, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid EXTINF duration: %s", durPart)
			}
			nextDuration = time.Duration(secs * float64(time.Second))
			sawExtinf = true
		case strings.HasPrefix(line, "#"):
			// other tags are irrelevant here
		default:
			if !sawExtinf {
				return nil, fmt.Errorf("segment %q without #EXTINF", line)
			}
			sum.Segments++
			sum.TotalDuration += nextDuration
			nextDuration = 0
			sawExtinf = false
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	sum.IsVOD = hasVODType || sum.Complete
	return sum, nil
}
