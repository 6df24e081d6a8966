// Package generate runs generation jobs: it drives the dispatcher over a
// list of plan segments, writes each chunk to disk, and reports progress
// through an ordered event stream.
package generate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/book-expert/logger"
	"github.com/google/uuid"

	"github.com/book-expert/voice-studio/internal/audio"
	"github.com/book-expert/voice-studio/internal/core"
	"github.com/book-expert/voice-studio/internal/dispatch"
	"github.com/book-expert/voice-studio/internal/model"
	"github.com/book-expert/voice-studio/internal/plan"
)

// Event is a progress notification from a running job. Events arrive in
// order and the stream is closed when the job ends, after a terminal
// JobCompleted or JobFailed.
type Event interface {
	isEvent()
}

// SegmentStarted reports that a segment's synthesis began.
type SegmentStarted struct {
	Index int
}

// ChunkSaved reports one chunk file written to disk.
type ChunkSaved struct {
	Index int
	Path  string
}

// SegmentCompleted reports a segment's run finished. Files is empty when
// the segment was skipped.
type SegmentCompleted struct {
	Index int
	Files []string
}

// JobCompleted reports the whole job finished, with every file it wrote.
type JobCompleted struct {
	Files []string
}

// JobFailed reports the job stopped before completing.
type JobFailed struct {
	Err error
}

func (SegmentStarted) isEvent()   {}
func (ChunkSaved) isEvent()       {}
func (SegmentCompleted) isEvent() {}
func (JobCompleted) isEvent()     {}
func (JobFailed) isEvent()        {}

const outputDirPermissions = 0o750

// Job is one generation request over a set of plan segments.
type Job struct {
	ProjectName string
	OutputDir   string
	Segments    []*plan.Segment
}

// Coordinator executes jobs against the model manager and dispatcher.
type Coordinator struct {
	manager    *model.Manager
	dispatcher *dispatch.Dispatcher
	modelRoot  string
	log        *logger.Logger
}

// NewCoordinator creates a coordinator. modelRoot is the directory the
// manager probes when a job starts with no model loaded.
func NewCoordinator(
	manager *model.Manager,
	dispatcher *dispatch.Dispatcher,
	modelRoot string,
	log *logger.Logger,
) *Coordinator {
	return &Coordinator{
		manager:    manager,
		dispatcher: dispatcher,
		modelRoot:  modelRoot,
		log:        log,
	}
}

// Run starts the job and returns its event stream. Segments run
// sequentially; a segment that cannot be synthesized is skipped and the job
// continues, while cancellation ends the job without a JobCompleted.
func (c *Coordinator) Run(ctx context.Context, job Job) <-chan Event {
	events := make(chan Event)

	go func() {
		defer close(events)

		c.execute(ctx, job, events)
	}()

	return events
}

func (c *Coordinator) execute(ctx context.Context, job Job, events chan<- Event) {
	if !c.manager.Loaded() {
		err := c.manager.Load(c.modelRoot)
		if err != nil {
			events <- JobFailed{Err: err}

			return
		}
	}

	_, release, err := c.manager.Acquire()
	if err != nil {
		events <- JobFailed{Err: err}

		return
	}
	defer release()

	jobID := uuid.NewString()
	c.log.Info("Job %s started: %d segments for project %q", jobID, len(job.Segments), job.ProjectName)

	// Chunks land in a per-project directory under the output root.
	projectDir := filepath.Join(job.OutputDir, job.ProjectName)

	err = os.MkdirAll(projectDir, outputDirPermissions)
	if err != nil {
		events <- JobFailed{Err: fmt.Errorf("failed to create output directory: %w", err)}

		return
	}

	var jobFiles []string

	for _, seg := range job.Segments {
		if ctx.Err() != nil {
			events <- JobFailed{Err: fmt.Errorf("job %s interrupted: %w", jobID, ctx.Err())}

			return
		}

		events <- SegmentStarted{Index: seg.Index}

		files, err := c.runSegment(ctx, seg, projectDir, events)
		if err != nil {
			if ctx.Err() != nil {
				events <- JobFailed{Err: fmt.Errorf("job %s interrupted: %w", jobID, ctx.Err())}

				return
			}

			c.log.Warn("Segment %d skipped: %v", seg.Index, err)
			events <- SegmentCompleted{Index: seg.Index, Files: nil}

			continue
		}

		if len(files) > 0 {
			seg.AddVersion(files)

			jobFiles = append(jobFiles, files...)
		}

		events <- SegmentCompleted{Index: seg.Index, Files: files}
	}

	c.log.Info("Job %s completed: %d files", jobID, len(jobFiles))
	events <- JobCompleted{Files: jobFiles}
}

// runSegment synthesizes one segment and writes its chunks. A missing
// reference audio file makes the segment unsynthesizable but must not kill
// the job, so it is reported as an error to the caller's skip path.
func (c *Coordinator) runSegment(
	ctx context.Context,
	seg *plan.Segment,
	outputDir string,
	events chan<- Event,
) ([]string, error) {
	if seg.Profile == nil {
		return nil, dispatch.ErrMissingProfile
	}

	if seg.Profile.PromptAudio != "" {
		_, err := os.Stat(seg.Profile.PromptAudio)
		if err != nil {
			return nil, fmt.Errorf("reference audio unavailable: %w", err)
		}
	}

	chunks, errs := c.dispatcher.Dispatch(ctx, dispatch.Request{
		Text:             seg.Text,
		Mode:             seg.Mode,
		Profile:          seg.Profile,
		InstructOverride: seg.InstructText,
		Seed:             seg.Seed,
	})

	run := seg.RunCount() + 1

	var files []string

	chunkIndex := 0

	for chunk := range chunks {
		if ctx.Err() != nil {
			drainStream(chunks, errs)

			return nil, fmt.Errorf("segment %d interrupted: %w", seg.Index, ctx.Err())
		}

		chunkIndex++
		path := filepath.Join(outputDir, chunkFilename(seg.Index, run, seg.Text, chunkIndex))

		err := audio.WriteWAV(path, chunk)
		if err != nil {
			drainStream(chunks, errs)

			return nil, fmt.Errorf("failed to save chunk %d of segment %d: %w", chunkIndex, seg.Index, err)
		}

		events <- ChunkSaved{Index: seg.Index, Path: path}

		files = append(files, path)
	}

	err := <-errs
	if err != nil {
		return nil, err
	}

	return files, nil
}

// drainStream consumes the rest of a dispatch stream so the dispatcher can
// finish and release the model for the next segment.
func drainStream(chunks <-chan core.PCMChunk, errs <-chan error) {
	for range chunks {
	}

	<-errs
}
