// Package segment turns profile-tagged text into the ordered runs the task
// plan is built from.
package segment

import (
	"strings"
	"unicode"

	"github.com/book-expert/voice-studio/internal/profile"
)

// TaggedText is annotated rich text flattened to data: the plain text plus a
// parallel slice naming the profile attached to each rune ("" = untagged).
// Callers build it once from whatever editor or markup produced the tags, so
// the segmenter stays a pure function.
type TaggedText struct {
	Text string
	Tags []string
}

// Run is one ordered unit of text bound to a single profile.
type Run struct {
	Text    string
	Profile *profile.Profile
}

// Tag attaches a profile name to the rune range [from, to) of t.Text.
// Out-of-range offsets are clamped.
func (t *TaggedText) Tag(from, to int, name string) {
	runeCount := len([]rune(t.Text))
	if t.Tags == nil {
		t.Tags = make([]string, runeCount)
	}

	if from < 0 {
		from = 0
	}

	if to > runeCount {
		to = runeCount
	}

	for i := from; i < to; i++ {
		t.Tags[i] = name
	}
}

// Split scans the tagged text left to right and emits one run per maximal
// stretch of a single profile. A run closes when the profile changes or a
// newline is hit; newlines never enter a run's text. Untagged runes inherit
// the set's first profile; with no profiles defined every rune is skipped.
// Runs are emitted trimmed, and runs that are blank after trimming are
// dropped.
func Split(tagged TaggedText, set *profile.Set) []Run {
	if strings.TrimSpace(tagged.Text) == "" {
		return nil
	}

	var (
		runs       []Run
		current    strings.Builder
		currentCfg *profile.Profile
	)

	flush := func() {
		trimmed := strings.TrimSpace(current.String())
		if trimmed != "" && currentCfg != nil {
			runs = append(runs, Run{Text: trimmed, Profile: currentCfg})
		}

		current.Reset()

		currentCfg = nil
	}

	for i, char := range []rune(tagged.Text) {
		runeCfg := profileForRune(tagged, i, set)
		if runeCfg == nil {
			continue
		}

		if currentCfg != nil && (currentCfg.Name != runeCfg.Name || char == '\n') {
			flush()
		}

		if char == '\n' {
			continue
		}

		if !isBlank(char) {
			if currentCfg == nil {
				currentCfg = runeCfg
			}

			current.WriteRune(char)
		} else if current.Len() > 0 {
			current.WriteRune(char)
		}
	}

	flush()

	return runs
}

// profileForRune resolves the profile governing rune i: its tag when the tag
// names a known profile, otherwise the set's first profile.
func profileForRune(tagged TaggedText, i int, set *profile.Set) *profile.Profile {
	if i < len(tagged.Tags) && tagged.Tags[i] != "" {
		tagCfg, err := set.Get(tagged.Tags[i])
		if err == nil {
			return tagCfg
		}
	}

	return set.First()
}

func isBlank(char rune) bool {
	return unicode.IsSpace(char)
}
