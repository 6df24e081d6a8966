// Package profile provides voice profiles: named bundles of reference
// audio, transcript, and instruction text that drive a synthesized voice.
package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Mode selects the synthesis strategy for a profile or segment.
type Mode string

// Canonical synthesis modes.
const (
	ModeZeroShot     Mode = "zero_shot"
	ModeCrossLingual Mode = "cross_lingual"
	ModeInstruct     Mode = "instruct"
	ModeRepair       Mode = "repair"
)

// Static errors.
var (
	ErrProfileNotFound = errors.New("profile not found")
	ErrDuplicateName   = errors.New("duplicate profile name")
	ErrEmptyName       = errors.New("profile name cannot be empty")
	ErrUnknownMode     = errors.New("unknown synthesis mode")
)

// modeAliases normalizes legacy and foreign mode names at input boundaries.
// The Chinese names are the original desktop app's UI labels; both spellings
// of the zero-shot label appear in config files in the wild.
var modeAliases = map[string]Mode{
	"zero_shot":     ModeZeroShot,
	"zero-shot":     ModeZeroShot,
	"零样本复制":         ModeZeroShot,
	"零样本复刻":         ModeZeroShot,
	"cross_lingual": ModeCrossLingual,
	"cross-lingual": ModeCrossLingual,
	"fine-grained":  ModeCrossLingual,
	"精细控制":          ModeCrossLingual,
	"instruct":      ModeInstruct,
	"instruction":   ModeInstruct,
	"指令控制":          ModeInstruct,
	"repair":        ModeRepair,
	"语音修补":          ModeRepair,
}

// NormalizeMode maps a raw mode string to its canonical Mode. The alias
// table is consulted only here; everything past the boundary works with
// canonical values.
func NormalizeMode(raw string) (Mode, bool) {
	mode, ok := modeAliases[raw]

	return mode, ok
}

// Valid reports whether m is one of the four canonical modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeZeroShot, ModeCrossLingual, ModeInstruct, ModeRepair:
		return true
	default:
		return false
	}
}

// Profile is a named voice configuration. It is read-only during synthesis;
// the pipeline never mutates a profile.
type Profile struct {
	Name         string `json:"name"`
	Mode         Mode   `json:"mode"`
	PromptText   string `json:"prompt_text"`
	PromptAudio  string `json:"prompt_audio"`
	InstructText string `json:"instruct_text"`
	Color        string `json:"color"`
}

// Validate checks that the profile carries the reference fields the given
// mode requires. The existence of the reference audio file on disk is checked
// separately at dispatch time.
func (p *Profile) Validate(mode Mode) error {
	switch mode {
	case ModeZeroShot, ModeRepair:
		if p.PromptAudio == "" {
			return fmt.Errorf("%w: profile %q", ErrMissingReferenceAudio, p.Name)
		}

		if p.PromptText == "" {
			return fmt.Errorf("%w: profile %q", ErrMissingReferenceText, p.Name)
		}
	case ModeCrossLingual:
		if p.PromptAudio == "" {
			return fmt.Errorf("%w: profile %q", ErrMissingReferenceAudio, p.Name)
		}
	case ModeInstruct:
		if p.PromptAudio == "" {
			return fmt.Errorf("%w: profile %q", ErrMissingReferenceAudio, p.Name)
		}

		if p.InstructText == "" {
			return fmt.Errorf("%w: profile %q", ErrMissingInstruction, p.Name)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}

	return nil
}

// Per-mode requirement errors, shared with the dispatcher.
var (
	ErrMissingReferenceAudio = errors.New("missing reference audio")
	ErrMissingReferenceText  = errors.New("missing reference text")
	ErrMissingInstruction    = errors.New("missing instruction text")
)

// Set is an ordered, name-unique profile collection. Insertion order is
// significant: the segmenter assigns untagged text to the first profile.
type Set struct {
	order    []string
	profiles map[string]*Profile
}

// NewSet creates an empty profile set.
func NewSet() *Set {
	return &Set{
		order:    nil,
		profiles: make(map[string]*Profile),
	}
}

// Add appends a profile to the set. Names are unique and case-sensitive.
func (s *Set) Add(p *Profile) error {
	if p.Name == "" {
		return ErrEmptyName
	}

	if _, exists := s.profiles[p.Name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateName, p.Name)
	}

	s.order = append(s.order, p.Name)
	s.profiles[p.Name] = p

	return nil
}

// Get returns the profile with the given name, exact match.
func (s *Set) Get(name string) (*Profile, error) {
	p, ok := s.profiles[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrProfileNotFound, name)
	}

	return p, nil
}

// First returns the first profile in insertion order, or nil for an empty set.
func (s *Set) First() *Profile {
	if len(s.order) == 0 {
		return nil
	}

	return s.profiles[s.order[0]]
}

// Names returns the profile names in insertion order.
func (s *Set) Names() []string {
	names := make([]string, len(s.order))
	copy(names, s.order)

	return names
}

// Len reports the number of profiles in the set.
func (s *Set) Len() int {
	return len(s.order)
}

// LoadFile reads a profile set from a JSON document. Both persisted shapes
// are accepted: an array of profile objects, or a single object for a
// single-profile file. Entries without a name are skipped, and a raw mode
// string is normalized through the alias table.
func LoadFile(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile file: %w", err)
	}

	return parseSet(data)
}

func parseSet(data []byte) (*Set, error) {
	var entries []rawProfile

	err := json.Unmarshal(data, &entries)
	if err != nil {
		var single rawProfile

		singleErr := json.Unmarshal(data, &single)
		if singleErr != nil {
			return nil, fmt.Errorf("failed to parse profile document: %w", singleErr)
		}

		entries = []rawProfile{single}
	}

	set := NewSet()

	for _, entry := range entries {
		if entry.Name == "" {
			continue
		}

		mode, ok := NormalizeMode(entry.Mode)
		if !ok {
			return nil, fmt.Errorf("%w: %q (profile %q)", ErrUnknownMode, entry.Mode, entry.Name)
		}

		addErr := set.Add(&Profile{
			Name:         entry.Name,
			Mode:         mode,
			PromptText:   entry.PromptText,
			PromptAudio:  entry.PromptAudio,
			InstructText: entry.InstructText,
			Color:        entry.Color,
		})
		if addErr != nil {
			return nil, addErr
		}
	}

	return set, nil
}

// rawProfile mirrors Profile with the mode still a free-form string so a
// legacy document loads before normalization.
type rawProfile struct {
	Name         string `json:"name"`
	Mode         string `json:"mode"`
	PromptText   string `json:"prompt_text"`
	PromptAudio  string `json:"prompt_audio"`
	InstructText string `json:"instruct_text"`
	Color        string `json:"color"`
}

const profileFilePermissions = 0o600

// SaveFile writes the set as an indented JSON array in insertion order.
func (s *Set) SaveFile(path string) error {
	profiles := make([]*Profile, 0, len(s.order))
	for _, name := range s.order {
		profiles = append(profiles, s.profiles[name])
	}

	data, err := json.MarshalIndent(profiles, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal profiles: %w", err)
	}

	err = os.WriteFile(path, data, profileFilePermissions)
	if err != nil {
		return fmt.Errorf("failed to write profile file: %w", err)
	}

	return nil
}
