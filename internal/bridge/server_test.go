package bridge_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/book-expert/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/voice-studio/internal/bridge"
	"github.com/book-expert/voice-studio/internal/core"
	"github.com/book-expert/voice-studio/internal/dispatch"
	"github.com/book-expert/voice-studio/internal/model"
	"github.com/book-expert/voice-studio/internal/profile"
)

// cannedModel streams one fixed chunk per inference call.
type cannedModel struct{}

func (cannedModel) stream() (<-chan core.PCMChunk, <-chan error) {
	out := make(chan core.PCMChunk, 1)
	errs := make(chan error, 1)

	out <- core.PCMChunk{Data: []int{100, -100, 200, -200}, SampleRate: 24000}

	close(out)
	close(errs)

	return out, errs
}

func (m cannedModel) InferenceZeroShot(
	_ context.Context, _, _, _ string, _ int64,
) (<-chan core.PCMChunk, <-chan error) {
	return m.stream()
}

func (m cannedModel) InferenceCrossLingual(
	_ context.Context, _, _ string, _ int64,
) (<-chan core.PCMChunk, <-chan error) {
	return m.stream()
}

func (m cannedModel) InferenceInstruct(
	_ context.Context, _, _, _ string, _ int64,
) (<-chan core.PCMChunk, <-chan error) {
	return m.stream()
}

func (cannedModel) SampleRate() int { return 24000 }

func (cannedModel) Identity() string { return "CosyVoice3-0.5B" }

func (cannedModel) Release() error { return nil }

func newBridge(t *testing.T, loaded bool) *bridge.Server {
	t.Helper()

	log, err := logger.New(t.TempDir(), "test.log")
	require.NoError(t, err)

	models := func() (core.Model, error) {
		if !loaded {
			return nil, model.ErrModelNotLoaded
		}

		return cannedModel{}, nil
	}

	audioDir := t.TempDir()
	narratorAudio := filepath.Join(audioDir, "narrator.wav")
	require.NoError(t, os.WriteFile(narratorAudio, []byte("riff"), 0o600))
	aliceAudio := filepath.Join(audioDir, "alice.wav")
	require.NoError(t, os.WriteFile(aliceAudio, []byte("riff"), 0o600))

	profiles := profile.NewSet()
	require.NoError(t, profiles.Add(&profile.Profile{
		Name:        "narrator",
		Mode:        profile.ModeZeroShot,
		PromptText:  "reference line",
		PromptAudio: narratorAudio,
	}))
	require.NoError(t, profiles.Add(&profile.Profile{
		Name:        "alice",
		Mode:        profile.ModeCrossLingual,
		PromptAudio: aliceAudio,
	}))

	cfg := bridge.ServerConfig{
		Host:          "127.0.0.1",
		Port:          0,
		MinTextLength: 4,
		Seed:          42,
	}

	return bridge.NewServer(cfg, profiles, dispatch.New(models, log), nil, models, log)
}

func postJSON(t *testing.T, server *httptest.Server, path string, payload map[string]any) *http.Response {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	resp, err := http.Post(server.URL+path, "application/json", bytes.NewReader(body))
	require.NoError(t, err)

	return resp
}

func decodeError(t *testing.T, resp *http.Response) string {
	t.Helper()

	defer func() { _ = resp.Body.Close() }()

	var payload map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))

	return payload["error"]
}

func TestSynthesisHappyPathBothShapes(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(newBridge(t, true).Handler())
	defer server.Close()

	for _, tc := range []struct {
		path    string
		payload map[string]any
	}{
		{path: "/", payload: map[string]any{"text": "Hello there.", "speaker": "narrator"}},
		{path: "/api/tts", payload: map[string]any{"text": "Hello there.", "character_name": "narrator"}},
	} {
		resp := postJSON(t, server, tc.path, tc.payload)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "audio/wav", resp.Header.Get("Content-Type"))

		var buf bytes.Buffer

		_, err := buf.ReadFrom(resp.Body)
		require.NoError(t, err)
		require.NoError(t, resp.Body.Close())

		assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("RIFF")), "response must be a WAV stream")
	}
}

func TestSynthesisModelNotLoaded(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(newBridge(t, false).Handler())
	defer server.Close()

	resp := postJSON(t, server, "/api/tts", map[string]any{
		"text": "Hello there.", "character_name": "narrator",
	})

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, decodeError(t, resp), "model not loaded")
}

func TestSynthesisValidationOrder(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(newBridge(t, true).Handler())
	t.Cleanup(server.Close)

	tests := []struct {
		name       string
		payload    map[string]any
		wantStatus int
		wantError  string
	}{
		{
			name:       "empty text",
			payload:    map[string]any{"text": "   ", "character_name": "narrator"},
			wantStatus: http.StatusBadRequest,
			wantError:  "text cannot be empty",
		},
		{
			name:       "empty speaker",
			payload:    map[string]any{"text": "Hello there."},
			wantStatus: http.StatusBadRequest,
			wantError:  "speaker name cannot be empty",
		},
		{
			name:       "unknown speaker",
			payload:    map[string]any{"text": "Hello there.", "character_name": "ghost"},
			wantStatus: http.StatusNotFound,
			wantError:  "unknown speaker: ghost",
		},
		{
			name:       "too short after sanitizing",
			payload:    map[string]any{"text": "@@@ a", "character_name": "narrator"},
			wantStatus: http.StatusBadRequest,
			wantError:  "text length (1) is below the minimum (4)",
		},
		{
			name:       "unknown mode",
			payload:    map[string]any{"text": "Hello there.", "character_name": "narrator", "mode": "falsetto"},
			wantStatus: http.StatusBadRequest,
			wantError:  "unknown mode: falsetto",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			resp := postJSON(t, server, "/api/tts", tc.payload)

			assert.Equal(t, tc.wantStatus, resp.StatusCode)
			assert.Contains(t, decodeError(t, resp), tc.wantError)
		})
	}
}

func TestSpeakersListingHidesPromptFields(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(newBridge(t, true).Handler())
	defer server.Close()

	for _, path := range []string{"/speakers", "/api/characters"} {
		resp, err := http.Get(server.URL + path)
		require.NoError(t, err)

		var buf bytes.Buffer

		_, err = buf.ReadFrom(resp.Body)
		require.NoError(t, err)
		require.NoError(t, resp.Body.Close())

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.NotContains(t, buf.String(), "prompt", "listings must not leak profile internals")

		var entries []bridge.Speaker
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entries))
		require.Len(t, entries, 2)
		assert.Equal(t, "narrator", entries[0].Name)
		assert.Equal(t, entries[0].Name, entries[0].VoiceID)
	}
}

func TestHealthReportsModelAndCharacters(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(newBridge(t, true).Handler())
	defer server.Close()

	client := bridge.NewClient(server.URL, 5*time.Second)

	health, err := client.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "CosyVoice3-0.5B", health.Model)
	assert.Equal(t, []string{"narrator", "alice"}, health.Characters)
}

func TestCORSPreflight(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(newBridge(t, true).Handler())
	defer server.Close()

	for _, path := range []string{"/", "/api/tts", "/speakers", "/api/characters", "/api/health"} {
		req, err := http.NewRequestWithContext(
			context.Background(), http.MethodOptions, server.URL+path, http.NoBody,
		)
		require.NoError(t, err)

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		require.NoError(t, resp.Body.Close())

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "GET, POST, OPTIONS", resp.Header.Get("Access-Control-Allow-Methods"))
		assert.Equal(t, "Content-Type", resp.Header.Get("Access-Control-Allow-Headers"))
	}
}

func TestClientSynthesize(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(newBridge(t, true).Handler())
	defer server.Close()

	client := bridge.NewClient(server.URL, 5*time.Second)

	audioData, err := client.Synthesize(context.Background(), bridge.SynthesisRequest{
		Text:          "Hello there.",
		CharacterName: "narrator",
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(audioData, []byte("RIFF")))

	_, err = client.Synthesize(context.Background(), bridge.SynthesisRequest{
		Text:          "Hello there.",
		CharacterName: "ghost",
	})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "unknown speaker"))

	speakers, err := client.Speakers(context.Background())
	require.NoError(t, err)
	require.Len(t, speakers, 2)
}

func TestStartStopLifecycle(t *testing.T) {
	t.Parallel()

	server := newBridge(t, true)

	require.NoError(t, server.Start())
	addr := server.Addr()
	require.NotEmpty(t, addr)

	// Second start is a no-op and keeps the same socket.
	require.NoError(t, server.Start())
	assert.Equal(t, addr, server.Addr())

	client := bridge.NewClient("http://"+addr, 5*time.Second)

	_, err := client.Health(context.Background())
	require.NoError(t, err)

	require.NoError(t, server.Stop(context.Background()))
	assert.Empty(t, server.Addr())

	require.ErrorIs(t, server.Stop(context.Background()), bridge.ErrAlreadyStopped)

	// The socket is released; a new start must succeed.
	require.NoError(t, server.Start())
	require.NoError(t, server.Stop(context.Background()))
}
