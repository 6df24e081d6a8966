package model

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/book-expert/logger"
	"github.com/go-audio/wav"

	"github.com/book-expert/voice-studio/internal/core"
)

const defaultSampleRate = 24000

// ProcModel drives an external inference runtime as a subprocess. Each call
// runs one inference and reads the WAV result from stdout; the runtime owns
// the weights and accelerator state between calls.
type ProcModel struct {
	command  string
	dir      string
	identity string
	log      *logger.Logger
}

// NewProcLoader returns a Loader that binds the given inference command to
// whichever model directory the manager resolves.
func NewProcLoader(command string, log *logger.Logger) Loader {
	return func(dir string) (core.Model, error) {
		path, err := exec.LookPath(command)
		if err != nil {
			return nil, fmt.Errorf("inference command unavailable: %w", err)
		}

		return &ProcModel{
			command:  path,
			dir:      dir,
			identity: filepath.Base(dir),
			log:      log,
		}, nil
	}
}

// Identity reports the resolved model directory name, which carries the
// model family and version.
func (p *ProcModel) Identity() string {
	return p.identity
}

// SampleRate reports the runtime's output rate.
func (p *ProcModel) SampleRate() int {
	return defaultSampleRate
}

// Release has nothing in-process to free; the runtime's memory dies with
// its subprocess.
func (p *ProcModel) Release() error {
	return nil
}

// InferenceZeroShot clones the prompt audio's voice onto text.
func (p *ProcModel) InferenceZeroShot(
	ctx context.Context, text, promptText, promptAudioPath string, seed int64,
) (<-chan core.PCMChunk, <-chan error) {
	return p.invoke(ctx,
		"--mode", "zero_shot",
		"--text", text,
		"--prompt-text", promptText,
		"--prompt-audio", promptAudioPath,
		"--seed", strconv.FormatInt(seed, 10),
	)
}

// InferenceCrossLingual clones the voice across languages, without a prompt
// transcript.
func (p *ProcModel) InferenceCrossLingual(
	ctx context.Context, text, promptAudioPath string, seed int64,
) (<-chan core.PCMChunk, <-chan error) {
	return p.invoke(ctx,
		"--mode", "cross_lingual",
		"--text", text,
		"--prompt-audio", promptAudioPath,
		"--seed", strconv.FormatInt(seed, 10),
	)
}

// InferenceInstruct synthesizes text under a natural-language instruction.
func (p *ProcModel) InferenceInstruct(
	ctx context.Context, text, instructText, promptAudioPath string, seed int64,
) (<-chan core.PCMChunk, <-chan error) {
	return p.invoke(ctx,
		"--mode", "instruct",
		"--text", text,
		"--instruct-text", instructText,
		"--prompt-audio", promptAudioPath,
		"--seed", strconv.FormatInt(seed, 10),
	)
}

func (p *ProcModel) invoke(ctx context.Context, args ...string) (<-chan core.PCMChunk, <-chan error) {
	out := make(chan core.PCMChunk, 1)
	errs := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errs)

		chunk, err := p.runInference(ctx, args)
		if err != nil {
			errs <- err

			return
		}

		select {
		case out <- chunk:
		case <-ctx.Done():
		}
	}()

	return out, errs
}

func (p *ProcModel) runInference(ctx context.Context, args []string) (core.PCMChunk, error) {
	fullArgs := append([]string{"--model-dir", p.dir}, args...)
	cmd := exec.CommandContext(ctx, p.command, fullArgs...)

	var stdout, stderr bytes.Buffer

	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		return core.PCMChunk{}, fmt.Errorf("inference run failed: %w: %s", err, stderr.String())
	}

	p.log.Info("Inference run produced %d bytes", stdout.Len())

	return decodeWAV(stdout.Bytes())
}

// decodeWAV parses the runtime's WAV output into PCM samples.
func decodeWAV(data []byte) (core.PCMChunk, error) {
	decoder := wav.NewDecoder(bytes.NewReader(data))
	decoder.ReadInfo()

	if !decoder.IsValidFile() {
		return core.PCMChunk{}, fmt.Errorf("inference output is not a wav stream (%d bytes)", len(data))
	}

	buffer, err := decoder.FullPCMBuffer()
	if err != nil {
		return core.PCMChunk{}, fmt.Errorf("failed to decode inference output: %w", err)
	}

	return core.PCMChunk{
		Data:       buffer.Data,
		SampleRate: buffer.Format.SampleRate,
	}, nil
}
