// Package worker provides a NATS worker that serves synthesis jobs from a
// message subject, storing the rendered audio in a JetStream object store.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/logger"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/book-expert/voice-studio/internal/audio"
	"github.com/book-expert/voice-studio/internal/core"
	"github.com/book-expert/voice-studio/internal/dispatch"
	"github.com/book-expert/voice-studio/internal/profile"
)

const handleMessageTimeout = 5 * time.Minute

// Static errors.
var (
	ErrTextEmpty    = errors.New("text cannot be empty")
	ErrProfileEmpty = errors.New("profile cannot be empty")
	ErrSpeedRange   = errors.New("speed must be between 0.5 and 2.0")
	ErrNoAudio      = errors.New("synthesis produced no audio")
)

// SynthesisJob is the message payload: which profile reads which text.
type SynthesisJob struct {
	Profile string  `json:"profile"`
	Text    string  `json:"text"`
	Mode    string  `json:"mode,omitempty"`
	Speed   float64 `json:"speed,omitempty"`
	Seed    int64   `json:"seed,omitempty"`
}

// SynthesisResult is the reply payload: where the audio landed.
type SynthesisResult struct {
	AudioKey string `json:"audio_key"`
}

// NatsWorker listens for synthesis jobs on a NATS subject and processes
// them through the shared dispatcher.
type NatsWorker struct {
	natsConnection *nats.Conn
	subject        string
	store          core.ObjectStore
	profiles       *profile.Set
	dispatcher     *dispatch.Dispatcher
	assembler      *audio.Assembler
	defaultSeed    int64
	log            *logger.Logger
}

// NewNatsWorker creates a new instance of a NATS worker. The assembler may
// be nil; speed requests are then served unretimed.
func NewNatsWorker(
	natsConnection *nats.Conn,
	subject string,
	store core.ObjectStore,
	profiles *profile.Set,
	dispatcher *dispatch.Dispatcher,
	assembler *audio.Assembler,
	defaultSeed int64,
	log *logger.Logger,
) *NatsWorker {
	return &NatsWorker{
		natsConnection: natsConnection,
		subject:        subject,
		store:          store,
		profiles:       profiles,
		dispatcher:     dispatcher,
		assembler:      assembler,
		defaultSeed:    defaultSeed,
		log:            log,
	}
}

// Run starts the worker and begins listening for messages. It blocks until
// the context is cancelled, then drains the subscription.
func (w *NatsWorker) Run(ctx context.Context) error {
	sub, err := w.natsConnection.Subscribe(w.subject, w.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.subject, err)
	}

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

func (w *NatsWorker) handleMessage(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), handleMessageTimeout)
	defer cancel()

	job, voice, mode, err := w.parseAndValidateJob(msg.Data)
	if err != nil {
		w.log.Error("Rejected synthesis job: %v", err)

		return
	}

	audioKey, err := w.processJob(ctx, job, voice, mode)
	if err != nil {
		w.log.Error("Failed to process synthesis job for profile %q: %v", job.Profile, err)

		return
	}

	if msg.Reply == "" {
		w.log.Warn("Job for profile %q has no reply subject, audio stored at %s", job.Profile, audioKey)

		return
	}

	replyData, err := json.Marshal(SynthesisResult{AudioKey: audioKey})
	if err != nil {
		w.log.Error("Failed to marshal reply: %v", err)

		return
	}

	err = msg.Respond(replyData)
	if err != nil {
		w.log.Error("Failed to publish reply for profile %q: %v", job.Profile, err)
	}
}

func (w *NatsWorker) parseAndValidateJob(data []byte) (*SynthesisJob, *profile.Profile, profile.Mode, error) {
	var job SynthesisJob

	err := json.Unmarshal(data, &job)
	if err != nil {
		return nil, nil, "", fmt.Errorf("failed to parse job payload: %w", err)
	}

	if job.Text == "" {
		return nil, nil, "", ErrTextEmpty
	}

	if job.Profile == "" {
		return nil, nil, "", ErrProfileEmpty
	}

	voice, err := w.profiles.Get(job.Profile)
	if err != nil {
		return nil, nil, "", err
	}

	mode := voice.Mode

	if job.Mode != "" {
		requested, ok := profile.NormalizeMode(job.Mode)
		if !ok {
			return nil, nil, "", fmt.Errorf("%w: %q", profile.ErrUnknownMode, job.Mode)
		}

		mode = requested
	}

	if job.Speed != 0 && (job.Speed < audio.MinSpeedRatio || job.Speed > audio.MaxSpeedRatio) {
		return nil, nil, "", fmt.Errorf("%w: got %.2f", ErrSpeedRange, job.Speed)
	}

	return &job, voice, mode, nil
}

// processJob renders the job to a WAV object and returns its storage key.
func (w *NatsWorker) processJob(
	ctx context.Context,
	job *SynthesisJob,
	voice *profile.Profile,
	mode profile.Mode,
) (string, error) {
	seed := job.Seed
	if seed == 0 {
		seed = w.defaultSeed
	}

	chunks, errs := w.dispatcher.Dispatch(ctx, dispatch.Request{
		Text:             job.Text,
		Mode:             mode,
		Profile:          voice,
		InstructOverride: "",
		Seed:             seed,
	})

	var collected []core.PCMChunk
	for chunk := range chunks {
		collected = append(collected, chunk)
	}

	err := <-errs
	if err != nil {
		return "", err
	}

	joined := audio.ConcatChunks(collected)
	if len(joined.Data) == 0 {
		return "", ErrNoAudio
	}

	wavData, err := audio.EncodeWAV(joined)
	if err != nil {
		return "", err
	}

	if job.Speed != 0 && job.Speed != 1.0 && w.assembler != nil {
		wavData = w.assembler.ChangeSpeed(wavData, job.Speed)
	}

	audioKey := uuid.NewString() + ".wav"

	err = w.store.Upload(ctx, audioKey, wavData)
	if err != nil {
		return "", fmt.Errorf("failed to upload audio data for key '%s': %w", audioKey, err)
	}

	return audioKey, nil
}
