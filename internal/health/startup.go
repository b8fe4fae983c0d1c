// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/mitabo/mitabo/internal/config"
	"github.com/mitabo/mitabo/internal/log"
)

var errNotDir = errors.New("not a directory")

// PerformStartupChecks validates the environment before the server starts.
// A missing engine is only a warning: uploads then fall back to direct playback.
func PerformStartupChecks(cfg config.AppConfig) error {
	logger := log.WithComponent("startup-check")
	logger.Info().Msg("running pre-flight startup checks")

	dirs := []struct{ name, path string }{
		{"data_dir", cfg.DataDir},
		{"hls.root", cfg.HLS.Root},
	}
	if cfg.Storage.Backend == config.StorageLocal {
		dirs = append(dirs, struct{ name, path string }{"storage.local_dir", cfg.Storage.LocalDir})
	}
	for _, d := range dirs {
		if err := checkWritableDir(d.path); err != nil {
			return fmt.Errorf("%s %s is not a writable directory: %w", d.name, d.path, err)
		}
		logger.Info().Str("path", d.path).Str("dir", d.name).Msg("directory is writable")
	}

	for _, bin := range []string{cfg.FFmpeg.Bin, cfg.FFmpeg.FFprobeBin} {
		if _, err := exec.LookPath(bin); err != nil {
			logger.Warn().Str("binary", bin).Err(err).Msg("media tool not found; uploads will use direct playback")
		}
	}

	tempDir := filepath.Clean(os.TempDir())
	dataDir := filepath.Clean(cfg.DataDir)
	if tempDir != "." && (dataDir == tempDir || strings.HasPrefix(dataDir, tempDir+string(filepath.Separator))) {
		logger.Warn().
			Str("data_dir", cfg.DataDir).
			Msg("data directory is under temp; uploads and packaged media may be lost on reboot")
	}

	logger.Info().Msg("all startup checks passed")
	return nil
}
