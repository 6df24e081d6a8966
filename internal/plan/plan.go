// Package plan models the editable task plan: an ordered list of segments,
// each carrying its text, voice profile, synthesis overrides, and the audio
// versions generated for it.
package plan

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/book-expert/voice-studio/internal/profile"
	"github.com/book-expert/voice-studio/internal/segment"
)

// Static errors.
var (
	ErrNoSelection      = errors.New("no audio selected")
	ErrInvalidSelection = errors.New("invalid audio selection")
	ErrIndexOutOfRange  = errors.New("segment index out of range")
)

// DefaultSeed is used for segments created without an explicit seed.
const DefaultSeed int64 = 42

// Version is one generation run's output: the ordered chunk files it wrote.
type Version []string

// Segment is one plan entry. Versions accumulate across runs and are never
// replaced; selection always points at one chunk of one version.
type Segment struct {
	Index        int
	Text         string
	Profile      *profile.Profile
	Mode         profile.Mode
	InstructText string
	Seed         int64

	versions        []Version
	selectedVersion int
	selectedChunk   int
}

// NewSegment creates a segment bound to a profile, inheriting the profile's
// mode and instruction text.
func NewSegment(text string, p *profile.Profile) *Segment {
	seg := &Segment{
		Index:           0,
		Text:            text,
		Profile:         nil,
		Mode:            profile.ModeZeroShot,
		InstructText:    "",
		Seed:            DefaultSeed,
		versions:        nil,
		selectedVersion: 0,
		selectedChunk:   0,
	}
	seg.SetProfile(p)

	return seg
}

// SetProfile rebinds the segment to a profile and resets the per-segment
// mode and instruction overrides to the profile's own values. A stale
// instruct override from a previous profile must not leak into the new one.
func (s *Segment) SetProfile(p *profile.Profile) {
	s.Profile = p
	if p != nil {
		s.Mode = p.Mode
		s.InstructText = p.InstructText
	}
}

// AddVersion appends a generation run's chunk files as a new version and
// moves the selection to its first chunk. Empty runs are ignored.
func (s *Segment) AddVersion(files []string) {
	if len(files) == 0 {
		return
	}

	version := make(Version, len(files))
	copy(version, files)

	s.versions = append(s.versions, version)
	s.selectedVersion = len(s.versions)
	s.selectedChunk = 1
}

// SelectAudio points the selection at the given version and chunk, both
// 1-based.
func (s *Segment) SelectAudio(version, chunk int) error {
	if version < 1 || version > len(s.versions) {
		return fmt.Errorf("%w: version %d of %d", ErrInvalidSelection, version, len(s.versions))
	}

	if chunk < 1 || chunk > len(s.versions[version-1]) {
		return fmt.Errorf(
			"%w: chunk %d of %d in version %d",
			ErrInvalidSelection, chunk, len(s.versions[version-1]), version,
		)
	}

	s.selectedVersion = version
	s.selectedChunk = chunk

	return nil
}

// CurrentAudio returns the selected chunk file.
func (s *Segment) CurrentAudio() (string, error) {
	if s.selectedVersion == 0 {
		return "", ErrNoSelection
	}

	return s.versions[s.selectedVersion-1][s.selectedChunk-1], nil
}

// SelectedFiles returns all chunk files of the selected version, in chunk
// order. Merging consumes whole versions, not single chunks.
func (s *Segment) SelectedFiles() []string {
	if s.selectedVersion == 0 {
		return nil
	}

	version := s.versions[s.selectedVersion-1]
	files := make([]string, len(version))
	copy(files, version)

	return files
}

// RunCount reports how many generation runs this segment has accumulated.
func (s *Segment) RunCount() int {
	return len(s.versions)
}

// AudioOptions returns every version's files for selection UIs.
func (s *Segment) AudioOptions() []Version {
	options := make([]Version, len(s.versions))
	for i, version := range s.versions {
		options[i] = make(Version, len(version))
		copy(options[i], version)
	}

	return options
}

// Plan is the ordered segment list for one project.
type Plan struct {
	ProjectName string
	OutputDir   string

	segments []*Segment
}

// New creates an empty plan.
func New(projectName, outputDir string) *Plan {
	return &Plan{
		ProjectName: projectName,
		OutputDir:   outputDir,
		segments:    nil,
	}
}

// FromRuns builds a plan from segmenter output, one segment per run.
func FromRuns(projectName, outputDir string, runs []segment.Run) *Plan {
	p := New(projectName, outputDir)
	for _, run := range runs {
		p.Append(NewSegment(run.Text, run.Profile))
	}

	return p
}

// Segments returns the segments in plan order.
func (p *Plan) Segments() []*Segment {
	return p.segments
}

// Len reports the number of segments.
func (p *Plan) Len() int {
	return len(p.segments)
}

// Append adds a segment at the end of the plan.
func (p *Plan) Append(seg *Segment) {
	p.segments = append(p.segments, seg)
	p.reindex()
}

// InsertBlank inserts an empty segment before position at (0-based),
// inheriting the profile of the segment previously at that position, or the
// last segment's for an append position.
func (p *Plan) InsertBlank(at int) (*Segment, error) {
	if at < 0 || at > len(p.segments) {
		return nil, fmt.Errorf("%w: %d", ErrIndexOutOfRange, at)
	}

	var inherited *profile.Profile

	switch {
	case at < len(p.segments):
		inherited = p.segments[at].Profile
	case len(p.segments) > 0:
		inherited = p.segments[len(p.segments)-1].Profile
	}

	seg := NewSegment("", inherited)

	p.segments = append(p.segments, nil)
	copy(p.segments[at+1:], p.segments[at:])
	p.segments[at] = seg
	p.reindex()

	return seg, nil
}

// Remove deletes the segment at position i (0-based).
func (p *Plan) Remove(i int) error {
	if i < 0 || i >= len(p.segments) {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, i)
	}

	p.segments = append(p.segments[:i], p.segments[i+1:]...)
	p.reindex()

	return nil
}

// Move relocates the segment at position from to position to (both 0-based).
func (p *Plan) Move(from, to int) error {
	if from < 0 || from >= len(p.segments) {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, from)
	}

	if to < 0 || to >= len(p.segments) {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, to)
	}

	seg := p.segments[from]
	p.segments = append(p.segments[:from], p.segments[from+1:]...)

	p.segments = append(p.segments, nil)
	copy(p.segments[to+1:], p.segments[to:])
	p.segments[to] = seg
	p.reindex()

	return nil
}

// reindex renumbers segments densely 1..N in plan order.
func (p *Plan) reindex() {
	for i, seg := range p.segments {
		seg.Index = i + 1
	}
}

// persistedSegment is the on-disk shape of a segment. Versions and indexes
// are transient and deliberately not persisted; a loaded plan starts with
// zero versions and freshly assigned indexes.
type persistedSegment struct {
	Text         string           `json:"text"`
	VoiceProfile *profile.Profile `json:"voice_profile"`
	Mode         profile.Mode     `json:"mode"`
	InstructText string           `json:"instruct_text"`
	Seed         int64            `json:"seed"`
}

type persistedPlan struct {
	ProjectName string             `json:"project_name"`
	Segments    []persistedSegment `json:"segments"`
}

const planFilePermissions = 0o600

// SaveFile writes the plan as an indented JSON document.
func (p *Plan) SaveFile(path string) error {
	doc := persistedPlan{
		ProjectName: p.ProjectName,
		Segments:    make([]persistedSegment, 0, len(p.segments)),
	}

	for _, seg := range p.segments {
		doc.Segments = append(doc.Segments, persistedSegment{
			Text:         seg.Text,
			VoiceProfile: seg.Profile,
			Mode:         seg.Mode,
			InstructText: seg.InstructText,
			Seed:         seg.Seed,
		})
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal plan: %w", err)
	}

	err = os.WriteFile(path, data, planFilePermissions)
	if err != nil {
		return fmt.Errorf("failed to write plan file: %w", err)
	}

	return nil
}

// LoadFile reads a persisted plan. Loaded segments carry their saved text,
// profile, and overrides but no versions.
func LoadFile(path, outputDir string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file: %w", err)
	}

	var doc persistedPlan

	err = json.Unmarshal(data, &doc)
	if err != nil {
		return nil, fmt.Errorf("failed to parse plan file: %w", err)
	}

	p := New(doc.ProjectName, outputDir)

	for _, entry := range doc.Segments {
		seg := NewSegment(entry.Text, entry.VoiceProfile)
		seg.Mode = entry.Mode
		seg.InstructText = entry.InstructText

		if entry.Seed != 0 {
			seg.Seed = entry.Seed
		}

		p.Append(seg)
	}

	return p, nil
}
