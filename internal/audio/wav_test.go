package audio_test

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/voice-studio/internal/audio"
	"github.com/book-expert/voice-studio/internal/core"
)

func TestWriteWAVRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.wav")
	chunk := core.PCMChunk{
		Data:       []int{0, 1000, -1000, 32000, -32000},
		SampleRate: 24000,
	}

	require.NoError(t, audio.WriteWAV(path, chunk))

	data, err := audio.EncodeWAV(chunk)
	require.NoError(t, err)

	decoder := wav.NewDecoder(bytes.NewReader(data))
	decoder.ReadInfo()
	require.True(t, decoder.IsValidFile())
	assert.Equal(t, uint32(24000), decoder.SampleRate)
	assert.Equal(t, uint16(16), decoder.BitDepth)
	assert.Equal(t, uint16(1), decoder.NumChans)

	buffer, err := decoder.FullPCMBuffer()
	require.NoError(t, err)
	assert.Equal(t, chunk.Data, buffer.Data)
}

func TestWriteWAVRejectsEmptyChunk(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "empty.wav")

	err := audio.WriteWAV(path, core.PCMChunk{Data: nil, SampleRate: 24000})
	require.ErrorIs(t, err, audio.ErrEmptyChunk)
}

func TestConcatChunks(t *testing.T) {
	t.Parallel()

	joined := audio.ConcatChunks([]core.PCMChunk{
		{Data: []int{1, 2}, SampleRate: 24000},
		{Data: nil, SampleRate: 0},
		{Data: []int{3, 4, 5}, SampleRate: 24000},
	})

	assert.Equal(t, []int{1, 2, 3, 4, 5}, joined.Data)
	assert.Equal(t, 24000, joined.SampleRate)
}

func TestConcatChunksEmptyInput(t *testing.T) {
	t.Parallel()

	joined := audio.ConcatChunks(nil)

	assert.Empty(t, joined.Data)
	assert.Zero(t, joined.SampleRate)
}
