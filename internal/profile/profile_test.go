// Package profile_test tests voice profile collections and mode handling.
package profile_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/book-expert/voice-studio/internal/profile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeMode(t *testing.T) {
	t.Parallel()

	cases := map[string]profile.Mode{
		"zero-shot":     profile.ModeZeroShot,
		"zero_shot":     profile.ModeZeroShot,
		"零样本复制":         profile.ModeZeroShot,
		"零样本复刻":         profile.ModeZeroShot,
		"fine-grained":  profile.ModeCrossLingual,
		"精细控制":          profile.ModeCrossLingual,
		"instruction":   profile.ModeInstruct,
		"指令控制":          profile.ModeInstruct,
		"repair":        profile.ModeRepair,
		"语音修补":          profile.ModeRepair,
		"cross_lingual": profile.ModeCrossLingual,
	}

	for raw, want := range cases {
		got, ok := profile.NormalizeMode(raw)
		require.True(t, ok, "alias %q should normalize", raw)
		assert.Equal(t, want, got)
	}

	_, ok := profile.NormalizeMode("interpretive-dance")
	assert.False(t, ok)
}

func TestSetOrderAndLookup(t *testing.T) {
	t.Parallel()

	set := profile.NewSet()
	require.NoError(t, set.Add(&profile.Profile{Name: "narrator", Mode: profile.ModeZeroShot}))
	require.NoError(t, set.Add(&profile.Profile{Name: "villain", Mode: profile.ModeInstruct}))

	assert.Equal(t, []string{"narrator", "villain"}, set.Names())
	assert.Equal(t, "narrator", set.First().Name)

	got, err := set.Get("villain")
	require.NoError(t, err)
	assert.Equal(t, profile.ModeInstruct, got.Mode)

	_, err = set.Get("Villain")
	require.ErrorIs(t, err, profile.ErrProfileNotFound, "lookups are case-sensitive")

	err = set.Add(&profile.Profile{Name: "narrator"})
	require.ErrorIs(t, err, profile.ErrDuplicateName)
}

func TestValidatePerMode(t *testing.T) {
	t.Parallel()

	full := &profile.Profile{
		Name:         "full",
		Mode:         profile.ModeZeroShot,
		PromptText:   "reference transcript",
		PromptAudio:  "ref.wav",
		InstructText: "speak slowly",
	}

	for _, mode := range []profile.Mode{
		profile.ModeZeroShot,
		profile.ModeCrossLingual,
		profile.ModeInstruct,
		profile.ModeRepair,
	} {
		require.NoError(t, full.Validate(mode))
	}

	noAudio := &profile.Profile{Name: "p", PromptText: "t", InstructText: "i"}
	require.ErrorIs(t, noAudio.Validate(profile.ModeZeroShot), profile.ErrMissingReferenceAudio)
	require.ErrorIs(t, noAudio.Validate(profile.ModeCrossLingual), profile.ErrMissingReferenceAudio)

	noText := &profile.Profile{Name: "p", PromptAudio: "ref.wav"}
	require.ErrorIs(t, noText.Validate(profile.ModeZeroShot), profile.ErrMissingReferenceText)
	require.ErrorIs(t, noText.Validate(profile.ModeRepair), profile.ErrMissingReferenceText)
	require.ErrorIs(t, noText.Validate(profile.ModeInstruct), profile.ErrMissingInstruction)
}

func TestLoadFileArrayAndSingleObject(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	arrayPath := filepath.Join(dir, "profiles.json")
	arrayDoc := `[
		{"name": "narrator", "mode": "零样本复制", "prompt_text": "hello", "prompt_audio": "a.wav", "color": "#FFFF00"},
		{"name": "villain", "mode": "instruction", "prompt_audio": "b.wav", "instruct_text": "menacing"},
		{"mode": "repair"}
	]`
	require.NoError(t, writeFile(arrayPath, arrayDoc))

	set, err := profile.LoadFile(arrayPath)
	require.NoError(t, err)
	assert.Equal(t, 2, set.Len(), "nameless entries are skipped")
	assert.Equal(t, []string{"narrator", "villain"}, set.Names())

	narrator, err := set.Get("narrator")
	require.NoError(t, err)
	assert.Equal(t, profile.ModeZeroShot, narrator.Mode)

	singlePath := filepath.Join(dir, "single.json")
	singleDoc := `{"name": "solo", "mode": "fine-grained", "prompt_audio": "c.wav"}`
	require.NoError(t, writeFile(singlePath, singleDoc))

	single, err := profile.LoadFile(singlePath)
	require.NoError(t, err)
	assert.Equal(t, 1, single.Len())

	solo, err := single.Get("solo")
	require.NoError(t, err)
	assert.Equal(t, profile.ModeCrossLingual, solo.Mode)
}

func TestSaveFileRoundTrip(t *testing.T) {
	t.Parallel()

	set := profile.NewSet()
	require.NoError(t, set.Add(&profile.Profile{
		Name:        "narrator",
		Mode:        profile.ModeZeroShot,
		PromptText:  "hello",
		PromptAudio: "a.wav",
		Color:       "#00FF00",
	}))

	path := filepath.Join(t.TempDir(), "out.json")
	require.NoError(t, set.SaveFile(path))

	reloaded, err := profile.LoadFile(path)
	require.NoError(t, err)

	got, err := reloaded.Get("narrator")
	require.NoError(t, err)
	assert.Equal(t, "hello", got.PromptText)
	assert.Equal(t, "#00FF00", got.Color)
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o600)
}
