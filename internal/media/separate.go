package media

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/VishnuKaranth/Dubbing-Software/internal/config"

	"go.uber.org/zap"
)

// Separator splits an audio track into vocal and instrumental stems via the
// demucs command line tool.
type Separator struct {
	demucsPath string
	logger     *zap.Logger
}

// NewSeparator creates a demucs-backed separator.
func NewSeparator(cfg config.MediaConfig, logger *zap.Logger) *Separator {
	return &Separator{demucsPath: cfg.DemucsPath, logger: logger}
}

// SeparationResult points at the two stems demucs produced.
type SeparationResult struct {
	VocalsPath       string
	InstrumentalPath string
}

// Separate runs two-stem separation, writing stems under outDir.
func (s *Separator) Separate(ctx context.Context, audioPath, outDir string) (*SeparationResult, error) {
	if err := runCommand(ctx, s.demucsPath,
		"--two-stems=vocals",
		"-n", "htdemucs",
		"--segment", "7",
		"-o", outDir,
		audioPath,
	); err != nil {
		return nil, fmt.Errorf("demucs separation failed: %w", err)
	}

	// demucs nests output under <outDir>/<model>/<track>/; locate the stems.
	var result SeparationResult
	err := filepath.WalkDir(outDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		switch d.Name() {
		case "vocals.wav":
			result.VocalsPath = path
		case "no_vocals.wav":
			result.InstrumentalPath = path
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan demucs output: %w", err)
	}
	if result.VocalsPath == "" || result.InstrumentalPath == "" {
		return nil, fmt.Errorf("demucs produced no stems under %s", outDir)
	}

	return &result, nil
}
