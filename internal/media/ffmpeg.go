package media

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/VishnuKaranth/Dubbing-Software/internal/config"

	"go.uber.org/zap"
)

// Engine wraps the ffmpeg/ffprobe primitives the pipeline needs: audio
// extraction, pitch-preserving time stretch, overlay mixing, and muxing.
type Engine struct {
	ffmpegPath  string
	ffprobePath string
	logger      *zap.Logger
}

// NewEngine creates a media engine.
func NewEngine(cfg config.MediaConfig, logger *zap.Logger) *Engine {
	return &Engine{
		ffmpegPath:  cfg.FFmpegPath,
		ffprobePath: cfg.FFprobePath,
		logger:      logger,
	}
}

func runCommand(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s failed: %w: %s", name, err, truncate(stderr.String(), 512))
	}
	return nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// ExtractAudio extracts the audio stream as PCM WAV.
func (e *Engine) ExtractAudio(ctx context.Context, videoPath, audioPath string) error {
	return runCommand(ctx, e.ffmpegPath,
		"-i", videoPath,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ar", "44100",
		"-ac", "2",
		"-y",
		audioPath,
	)
}

// Probe returns the container duration.
func (e *Engine) Probe(ctx context.Context, path string) (time.Duration, error) {
	cmd := exec.CommandContext(ctx, e.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}
	seconds, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse ffprobe duration %q: %w", strings.TrimSpace(string(out)), err)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

// Stretch applies a pitch-preserving tempo change. A factor above 1 speeds
// speech up; below 1 slows it down. Factors outside atempo's native [0.5, 2.0]
// range are decomposed into a chain of in-range stages.
func (e *Engine) Stretch(ctx context.Context, inPath, outPath string, factor float64) error {
	if factor <= 0 {
		return fmt.Errorf("invalid stretch factor %f", factor)
	}
	return runCommand(ctx, e.ffmpegPath,
		"-i", inPath,
		"-filter:a", atempoChain(factor),
		"-y",
		outPath,
	)
}

// atempoChain decomposes a tempo factor into atempo stages within [0.5, 2.0].
func atempoChain(factor float64) string {
	var stages []string
	for factor > 2.0 {
		stages = append(stages, "atempo=2.0")
		factor /= 2.0
	}
	for factor < 0.5 {
		stages = append(stages, "atempo=0.5")
		factor /= 0.5
	}
	stages = append(stages, fmt.Sprintf("atempo=%.6f", factor))
	return strings.Join(stages, ",")
}

// Concat concatenates the files listed in an ffmpeg concat list, re-encoding
// to a uniform PCM mono stream so the output container is valid.
func (e *Engine) Concat(ctx context.Context, listPath, outPath string, sampleRate int) error {
	return runCommand(ctx, e.ffmpegPath,
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c:a", "pcm_s16le",
		"-ar", strconv.Itoa(sampleRate),
		"-ac", "1",
		"-y",
		outPath,
	)
}

// MixOverlay overlays speech onto the instrumental bed at the given gain.
// The limiter keeps the sum clipping-safe.
func (e *Engine) MixOverlay(ctx context.Context, speechPath, instrumentalPath, outPath string, instrumentalGain float64) error {
	filter := fmt.Sprintf(
		"[1:a]volume=%.3f[bg];[0:a][bg]amix=inputs=2:duration=first:normalize=0,alimiter=limit=0.97",
		instrumentalGain,
	)
	return runCommand(ctx, e.ffmpegPath,
		"-i", speechPath,
		"-i", instrumentalPath,
		"-filter_complex", filter,
		"-c:a", "pcm_s16le",
		"-y",
		outPath,
	)
}

// Mux replaces the video's audio stream with the dubbed track, copying the
// video stream untouched. The output appears atomically: ffmpeg writes to a
// temp file which is renamed into place only on success.
func (e *Engine) Mux(ctx context.Context, videoPath, audioPath, outPath string) error {
	tmpPath := outPath + ".partial.mp4"
	defer os.Remove(tmpPath)

	err := runCommand(ctx, e.ffmpegPath,
		"-i", videoPath,
		"-i", audioPath,
		"-c:v", "copy",
		"-c:a", "aac",
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-shortest",
		"-f", "mp4",
		"-y",
		tmpPath,
	)
	if err != nil {
		return err
	}

	stat, err := os.Stat(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to stat muxed output: %w", err)
	}
	if stat.Size() == 0 {
		return fmt.Errorf("muxed output is empty")
	}

	if err := os.Rename(tmpPath, outPath); err != nil {
		return fmt.Errorf("failed to finalize muxed output: %w", err)
	}
	return nil
}

// PadAudio appends silence so the track reaches at least the given duration.
func (e *Engine) PadAudio(ctx context.Context, inPath, outPath string, total time.Duration) error {
	return runCommand(ctx, e.ffmpegPath,
		"-i", inPath,
		"-af", fmt.Sprintf("apad=whole_dur=%.3f", total.Seconds()),
		"-c:a", "pcm_s16le",
		"-y",
		outPath,
	)
}
