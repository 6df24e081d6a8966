// Package audio renders PCM streams to WAV files and assembles final tracks
// with ffmpeg.
package audio

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/book-expert/logger"

	"github.com/book-expert/voice-studio/internal/plan"
)

// Static errors.
var (
	ErrTranscoderNotFound = errors.New("ffmpeg not found")
	ErrTranscoderFailed   = errors.New("ffmpeg failed")
	ErrNothingToMerge     = errors.New("no audio files to merge")
)

// Speed ratios outside this range produce audible artifacts with a single
// atempo stage, so requests are clamped to it.
const (
	MinSpeedRatio = 0.5
	MaxSpeedRatio = 2.0
)

const mergeManifestName = "filelist_temp.txt"

// Assembler concatenates chunk files and retimes tracks through ffmpeg.
type Assembler struct {
	ffmpegPath string
	log        *logger.Logger
}

// NewAssembler locates ffmpeg and verifies it answers a version probe.
func NewAssembler(log *logger.Logger) (*Assembler, error) {
	path, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTranscoderNotFound, err)
	}

	err = exec.Command(path, "-version").Run()
	if err != nil {
		return nil, fmt.Errorf("%w: version probe failed: %w", ErrTranscoderNotFound, err)
	}

	return &Assembler{ffmpegPath: path, log: log}, nil
}

// Merge concatenates the given WAV files, in order, into outDir/name and
// returns the output path. Concatenation is stream copy, no re-encode.
func (a *Assembler) Merge(files []string, outDir, name string) (string, error) {
	if len(files) == 0 {
		return "", ErrNothingToMerge
	}

	manifestPath := filepath.Join(outDir, mergeManifestName)

	err := writeMergeManifest(manifestPath, files)
	if err != nil {
		return "", err
	}

	defer func() { _ = os.Remove(manifestPath) }()

	outPath := filepath.Join(outDir, name)

	output, err := exec.Command(
		a.ffmpegPath,
		"-f", "concat",
		"-safe", "0",
		"-i", manifestPath,
		"-c", "copy",
		"-y", outPath,
	).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("%w: %w: %s", ErrTranscoderFailed, err, output)
	}

	a.log.Info("Merged %d files into %s", len(files), outPath)

	return outPath, nil
}

// writeMergeManifest writes the concat demuxer file list. Paths are made
// absolute with forward slashes, the one form the demuxer accepts on every
// platform.
func writeMergeManifest(path string, files []string) error {
	var builder strings.Builder

	for _, file := range files {
		absPath, err := filepath.Abs(file)
		if err != nil {
			return fmt.Errorf("failed to resolve %q: %w", file, err)
		}

		builder.WriteString("file '")
		builder.WriteString(filepath.ToSlash(absPath))
		builder.WriteString("'\n")
	}

	err := os.WriteFile(path, []byte(builder.String()), 0o600)
	if err != nil {
		return fmt.Errorf("failed to write merge manifest: %w", err)
	}

	return nil
}

// MergePlan concatenates the selected version of every segment, in plan
// order. Segments with no generated audio are skipped.
func (a *Assembler) MergePlan(taskPlan *plan.Plan, outDir, name string) (string, error) {
	var files []string

	for _, seg := range taskPlan.Segments() {
		selected := seg.SelectedFiles()
		if len(selected) == 0 {
			a.log.Warn("Segment %d has no audio, skipping in merge", seg.Index)

			continue
		}

		files = append(files, selected...)
	}

	return a.Merge(files, outDir, name)
}

// ChangeSpeed retimes a WAV track by ratio, preserving pitch via atempo.
// Ratios outside the supported range are clamped; ratio 1.0 returns the
// input untouched. On any transcoder failure the original bytes come back
// so a speed request can never lose audio.
func (a *Assembler) ChangeSpeed(wavData []byte, ratio float64) []byte {
	if ratio < MinSpeedRatio || ratio > MaxSpeedRatio {
		clamped := min(max(ratio, MinSpeedRatio), MaxSpeedRatio)
		a.log.Warn("Speed ratio %.2f out of range, clamping to %.2f", ratio, clamped)
		ratio = clamped
	}

	if ratio == 1.0 {
		return wavData
	}

	retimed, err := a.retime(wavData, ratio)
	if err != nil {
		a.log.Warn("Speed change failed, returning original audio: %v", err)

		return wavData
	}

	return retimed
}

func (a *Assembler) retime(wavData []byte, ratio float64) ([]byte, error) {
	scratchDir, err := os.MkdirTemp("", "voice-studio-speed-")
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch dir: %w", err)
	}

	defer func() { _ = os.RemoveAll(scratchDir) }()

	inPath := filepath.Join(scratchDir, "in.wav")
	outPath := filepath.Join(scratchDir, "out.wav")

	err = os.WriteFile(inPath, wavData, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to stage input: %w", err)
	}

	output, err := exec.Command(
		a.ffmpegPath,
		"-i", inPath,
		"-filter:a", fmt.Sprintf("atempo=%g", ratio),
		"-y", outPath,
	).CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %s", ErrTranscoderFailed, err, output)
	}

	retimed, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read retimed audio: %w", err)
	}

	return retimed, nil
}
