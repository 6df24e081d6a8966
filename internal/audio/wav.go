package audio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/book-expert/voice-studio/internal/core"
)

// WAV output is mono 16-bit PCM.
const (
	wavBitDepth    = 16
	wavNumChannels = 1
	wavAudioFormat = 1
)

// ErrEmptyChunk is returned when a chunk without samples is encoded.
var ErrEmptyChunk = errors.New("chunk has no samples")

// WriteWAV writes one PCM chunk to path as a mono 16-bit WAV file.
func WriteWAV(path string, chunk core.PCMChunk) error {
	if len(chunk.Data) == 0 {
		return ErrEmptyChunk
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create wav file: %w", err)
	}

	encoder := wav.NewEncoder(file, chunk.SampleRate, wavBitDepth, wavNumChannels, wavAudioFormat)

	buffer := &goaudio.IntBuffer{
		Data: chunk.Data,
		Format: &goaudio.Format{
			NumChannels: wavNumChannels,
			SampleRate:  chunk.SampleRate,
		},
		SourceBitDepth: wavBitDepth,
	}

	err = encoder.Write(buffer)
	if err != nil {
		_ = file.Close()

		return fmt.Errorf("failed to write wav data: %w", err)
	}

	err = encoder.Close()
	if err != nil {
		_ = file.Close()

		return fmt.Errorf("failed to finalize wav file: %w", err)
	}

	err = file.Close()
	if err != nil {
		return fmt.Errorf("failed to close wav file: %w", err)
	}

	return nil
}

// EncodeWAV renders one PCM chunk as WAV bytes. The encoder needs a
// seekable target for its header rewrite, so this goes through a scratch
// file rather than a buffer.
func EncodeWAV(chunk core.PCMChunk) ([]byte, error) {
	scratchDir, err := os.MkdirTemp("", "voice-studio-wav-")
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch dir: %w", err)
	}

	defer func() { _ = os.RemoveAll(scratchDir) }()

	path := filepath.Join(scratchDir, "chunk.wav")

	err = WriteWAV(path, chunk)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read encoded wav: %w", err)
	}

	return data, nil
}

// ConcatChunks joins chunks on the time axis into a single chunk. The
// sample rate of the first non-empty chunk wins; the dispatcher only ever
// streams one rate per request.
func ConcatChunks(chunks []core.PCMChunk) core.PCMChunk {
	joined := core.PCMChunk{Data: nil, SampleRate: 0}

	for _, chunk := range chunks {
		if len(chunk.Data) == 0 {
			continue
		}

		if joined.SampleRate == 0 {
			joined.SampleRate = chunk.SampleRate
		}

		joined.Data = append(joined.Data, chunk.Data...)
	}

	return joined
}
