package media

import (
	"fmt"
	"os"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WAVDuration reads a WAV header and returns the audio duration.
func WAVDuration(path string) (time.Duration, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open wav file: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	dur, err := dec.Duration()
	if err != nil {
		return 0, fmt.Errorf("failed to read wav duration: %w", err)
	}
	return dur, nil
}

// WriteSilence writes a silent mono 16-bit PCM WAV of the given duration.
// Used when synthesis for a segment cannot be recovered.
func WriteSilence(path string, dur time.Duration, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create wav file: %w", err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	numSamples := int(float64(sampleRate) * dur.Seconds())
	if numSamples < 1 {
		numSamples = 1
	}
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		SourceBitDepth: 16,
		Data:           make([]int, numSamples),
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("failed to write silence: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to finalize wav file: %w", err)
	}
	return nil
}
