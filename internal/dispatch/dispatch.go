// Package dispatch routes synthesis requests to the model call matching the
// requested mode, applying the prompt formatting the model family expects.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/book-expert/logger"

	"github.com/book-expert/voice-studio/internal/core"
	"github.com/book-expert/voice-studio/internal/profile"
)

// Prompt framing for the CosyVoice3 family. Older model generations take
// the raw prompt text unframed.
const (
	promptPreamble = "You are a helpful assistant."
	promptMarker   = "<|endofprompt|>"
)

// Static errors.
var (
	ErrSynthesisFailed = errors.New("synthesis failed")
	ErrMissingProfile  = errors.New("request has no voice profile")
)

// logTextPreviewRunes caps how much request text appears in failure logs.
const logTextPreviewRunes = 100

// ModelProvider hands the dispatcher the current model handle.
type ModelProvider func() (core.Model, error)

// Request is one synthesis unit. InstructOverride, when non-empty, replaces
// the profile's instruction text for this request only.
type Request struct {
	Text             string
	Mode             profile.Mode
	Profile          *profile.Profile
	InstructOverride string
	Seed             int64
}

// Dispatcher serializes model access: one request streams to completion
// before the next starts, matching the single in-flight constraint of the
// underlying runtime.
type Dispatcher struct {
	mu     sync.Mutex
	models ModelProvider
	log    *logger.Logger
}

// New creates a dispatcher that obtains its model through models.
func New(models ModelProvider, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		mu:     sync.Mutex{},
		models: models,
		log:    log,
	}
}

// Dispatch validates the request, formats prompts for the model family, and
// streams the resulting chunks. The model lock is held until the stream is
// fully drained. The error channel delivers at most one error and both
// channels are closed when the stream ends.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (<-chan core.PCMChunk, <-chan error) {
	out := make(chan core.PCMChunk)
	errs := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errs)

		d.mu.Lock()
		defer d.mu.Unlock()

		err := d.run(ctx, req, out)
		if err != nil {
			d.log.Error(
				"Synthesis failed (mode %s, text %q): %v",
				req.Mode, textPreview(req.Text), err,
			)
			errs <- err
		}
	}()

	return out, errs
}

func (d *Dispatcher) run(ctx context.Context, req Request, out chan<- core.PCMChunk) error {
	err := validate(req)
	if err != nil {
		return err
	}

	handle, err := d.models()
	if err != nil {
		return err
	}

	chunks, modelErrs := invoke(ctx, handle, req)

	for chunk := range chunks {
		select {
		case out <- chunk:
		case <-ctx.Done():
			return fmt.Errorf("synthesis interrupted: %w", ctx.Err())
		}
	}

	err = <-modelErrs
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSynthesisFailed, err)
	}

	return nil
}

func validate(req Request) error {
	if req.Profile == nil {
		return ErrMissingProfile
	}

	if !req.Mode.Valid() {
		return fmt.Errorf("%w: %q", profile.ErrUnknownMode, req.Mode)
	}

	err := req.Profile.Validate(req.Mode)
	if err != nil {
		return err
	}

	if req.Profile.PromptAudio != "" {
		_, err = os.Stat(req.Profile.PromptAudio)
		if err != nil {
			return fmt.Errorf(
				"%w: %s", profile.ErrMissingReferenceAudio, req.Profile.PromptAudio,
			)
		}
	}

	return nil
}

// invoke selects the model call for the mode. Repair is a zero-shot call;
// the mode exists so the plan can mark a segment as a re-take of a flawed
// reading without changing its voice configuration.
func invoke(ctx context.Context, m core.Model, req Request) (<-chan core.PCMChunk, <-chan error) {
	framed := strings.Contains(m.Identity(), "CosyVoice3")

	switch req.Mode {
	case profile.ModeCrossLingual:
		return m.InferenceCrossLingual(
			ctx,
			frameCrossLingualText(req.Text, framed),
			req.Profile.PromptAudio,
			req.Seed,
		)
	case profile.ModeInstruct:
		instruct := req.InstructOverride
		if instruct == "" {
			instruct = req.Profile.InstructText
		}

		return m.InferenceInstruct(
			ctx,
			req.Text,
			frameInstruction(instruct, framed),
			req.Profile.PromptAudio,
			req.Seed,
		)
	case profile.ModeZeroShot, profile.ModeRepair:
		fallthrough
	default:
		return m.InferenceZeroShot(
			ctx,
			req.Text,
			framePromptText(req.Profile.PromptText, framed),
			req.Profile.PromptAudio,
			req.Seed,
		)
	}
}

// framePromptText prepends the assistant preamble and end-of-prompt marker
// to the reference transcript. The marker check makes the framing
// idempotent for prompts that already carry it.
func framePromptText(promptText string, framed bool) string {
	if !framed || strings.Contains(promptText, promptMarker) {
		return promptText
	}

	return promptPreamble + promptMarker + promptText
}

// frameInstruction closes the instruction with the marker and opens it with
// the preamble and a separating space, each only when absent anywhere in
// the string.
func frameInstruction(instruct string, framed bool) string {
	if !framed {
		return instruct
	}

	if !strings.Contains(instruct, promptMarker) {
		instruct += promptMarker
	}

	if !strings.Contains(instruct, promptPreamble) {
		instruct = promptPreamble + " " + instruct
	}

	return instruct
}

// frameCrossLingualText frames the synthesis text itself; cross-lingual
// inference takes no separate prompt transcript.
func frameCrossLingualText(text string, framed bool) string {
	if !framed || strings.Contains(text, promptMarker) {
		return text
	}

	return promptPreamble + promptMarker + text
}

func textPreview(text string) string {
	runes := []rune(text)
	if len(runes) <= logTextPreviewRunes {
		return text
	}

	return string(runes[:logTextPreviewRunes])
}
