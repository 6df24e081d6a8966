// Package core defines the shared contracts between the synthesis pipeline
// and its external collaborators: the neural voice model and the blob store
// used by the queue worker.
package core

import "context"

// PCMChunk is one contiguous mono audio buffer produced by a single model
// call. Samples are 16-bit values widened to int for go-audio interop.
type PCMChunk struct {
	Data       []int
	SampleRate int
}

// Model is a loaded voice model handle. Each inference call returns a finite,
// non-restartable chunk stream; the chunk channel is closed when the call
// finishes, and at most one error is delivered on the error channel.
//
// Implementations maintain internal per-call caches, so callers must not run
// two inference calls concurrently against the same handle.
type Model interface {
	InferenceZeroShot(
		ctx context.Context,
		text, promptText, promptAudioPath string,
		seed int64,
	) (<-chan PCMChunk, <-chan error)

	InferenceCrossLingual(
		ctx context.Context,
		text, promptAudioPath string,
		seed int64,
	) (<-chan PCMChunk, <-chan error)

	InferenceInstruct(
		ctx context.Context,
		text, instructText, promptAudioPath string,
		seed int64,
	) (<-chan PCMChunk, <-chan error)

	// SampleRate reports the model's native output sample rate.
	SampleRate() int

	// Identity reports a version/identity marker (e.g. the model directory
	// name). Prompt formatting is conditional on the model generation.
	Identity() string

	// Release tears the handle down deterministically: internal caches are
	// cleared and accelerator buffers dropped before the call returns.
	Release() error
}

// ObjectStore is the interface for a key-value blob store holding generated
// audio for queue-delivered jobs.
type ObjectStore interface {
	Upload(ctx context.Context, key string, data []byte) error
	Download(ctx context.Context, key string) ([]byte, error)
}
