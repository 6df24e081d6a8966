// Package bridge exposes the synthesis pipeline over a small local HTTP
// API, compatible with external TTS clients that speak the speaker/text
// request shape.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/book-expert/logger"

	"github.com/book-expert/voice-studio/internal/audio"
	"github.com/book-expert/voice-studio/internal/core"
	"github.com/book-expert/voice-studio/internal/dispatch"
	"github.com/book-expert/voice-studio/internal/profile"
)

// Static errors.
var (
	ErrNoAudioProduced = errors.New("synthesis produced no audio")
	ErrAlreadyStopped  = errors.New("bridge is not running")
)

const (
	errorMessageLimit = 100
	readHeaderTimeout = 10 * time.Second
)

// ServerConfig carries the bridge's listen address and validation settings.
type ServerConfig struct {
	Host          string
	Port          int
	MinTextLength int
	Seed          int64
}

// Server is the local HTTP bridge. Start and Stop may be called repeatedly;
// the zero state between them holds no socket.
type Server struct {
	cfg        ServerConfig
	profiles   *profile.Set
	dispatcher *dispatch.Dispatcher
	assembler  *audio.Assembler
	models     dispatch.ModelProvider
	log        *logger.Logger

	mu         sync.Mutex
	listener   net.Listener
	httpServer *http.Server
}

// NewServer creates a bridge over the given profile set and dispatcher. The
// assembler is only used for speed changes and may be nil when no transcoder
// is installed; speed requests then return unretimed audio.
func NewServer(
	cfg ServerConfig,
	profiles *profile.Set,
	dispatcher *dispatch.Dispatcher,
	assembler *audio.Assembler,
	models dispatch.ModelProvider,
	log *logger.Logger,
) *Server {
	return &Server{
		cfg:        cfg,
		profiles:   profiles,
		dispatcher: dispatcher,
		assembler:  assembler,
		models:     models,
		log:        log,
		mu:         sync.Mutex{},
		listener:   nil,
		httpServer: nil,
	}
}

// Start binds the listener and begins serving. Starting a running bridge is
// a no-op.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		s.log.Warn("Bridge already running on %s", s.listener.Addr())

		return nil
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind bridge listener: %w", err)
	}

	s.listener = listener
	s.httpServer = &http.Server{
		Handler:           s.routes(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func(server *http.Server, ln net.Listener) {
		serveErr := server.Serve(ln)
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			s.log.Error("Bridge serve loop ended: %v", serveErr)
		}
	}(s.httpServer, listener)

	s.log.Info("Bridge listening on %s", listener.Addr())

	return nil
}

// Stop shuts the bridge down and releases the listening socket before
// returning.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.httpServer == nil {
		return ErrAlreadyStopped
	}

	err := s.httpServer.Shutdown(ctx)

	s.httpServer = nil
	s.listener = nil

	if err != nil {
		return fmt.Errorf("failed to stop bridge: %w", err)
	}

	s.log.Info("Bridge stopped")

	return nil
}

// Addr returns the bound listen address, or empty when stopped.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return ""
	}

	return s.listener.Addr().String()
}

// Handler returns the route table. Exposed for in-process tests.
func (s *Server) Handler() http.Handler {
	return s.routes()
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleSynthesis)
	mux.HandleFunc("/api/tts", s.handleSynthesis)
	mux.HandleFunc("/speakers", s.handleSpeakers)
	mux.HandleFunc("/api/characters", s.handleSpeakers)
	mux.HandleFunc("/api/health", s.handleHealth)

	return mux
}

// synthesisRequest accepts both client dialects: external clients send
// speaker/text/speed, the native client sends character_name/text/mode/speed.
type synthesisRequest struct {
	Text          string  `json:"text"`
	Speaker       string  `json:"speaker"`
	CharacterName string  `json:"character_name"`
	Mode          string  `json:"mode"`
	Speed         float64 `json:"speed"`
}

func (r *synthesisRequest) speakerName() string {
	if r.Speaker != "" {
		return strings.TrimSpace(r.Speaker)
	}

	return strings.TrimSpace(r.CharacterName)
}

type speakerEntry struct {
	Name    string `json:"name"`
	VoiceID string `json:"voice_id"`
}

type healthPayload struct {
	Status     string   `json:"status"`
	Model      string   `json:"model"`
	Characters []string `json:"characters"`
}

func (s *Server) handleSynthesis(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)

	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)

		return
	case http.MethodPost:
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")

		return
	}

	_, err := s.models()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "model not loaded")

		return
	}

	var req synthesisRequest

	err = json.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())

		return
	}

	s.synthesize(w, req)
}

// synthesize runs the validation chain and streams the request through the
// dispatcher. Validation short-circuits in a fixed order so clients get a
// stable status code per failure class.
func (s *Server) synthesize(w http.ResponseWriter, req synthesisRequest) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		s.writeError(w, http.StatusBadRequest, "text cannot be empty")

		return
	}

	name := req.speakerName()
	if name == "" {
		s.writeError(w, http.StatusBadRequest, "speaker name cannot be empty")

		return
	}

	voice, err := s.profiles.Get(name)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "unknown speaker: "+name)

		return
	}

	cleaned := CleanText(text)
	if len([]rune(cleaned)) != len([]rune(text)) {
		s.log.Warn("Request text sanitized: %d -> %d runes", len([]rune(text)), len([]rune(cleaned)))
	}

	cleanedLen := len([]rune(cleaned))
	if cleanedLen < s.cfg.MinTextLength {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf(
			"text length (%d) is below the minimum (%d)", cleanedLen, s.cfg.MinTextLength,
		))

		return
	}

	mode := voice.Mode

	if req.Mode != "" {
		requested, ok := profile.NormalizeMode(req.Mode)
		if !ok {
			s.writeError(w, http.StatusBadRequest, "unknown mode: "+req.Mode)

			return
		}

		mode = requested
	}

	wavData, err := s.renderAudio(cleaned, mode, voice)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())

		return
	}

	if req.Speed != 0 && req.Speed != 1.0 && s.assembler != nil {
		wavData = s.assembler.ChangeSpeed(wavData, req.Speed)
	}

	w.Header().Set("Content-Type", "audio/wav")
	w.WriteHeader(http.StatusOK)

	_, err = w.Write(wavData)
	if err != nil {
		s.log.Warn("Failed to write audio response: %v", err)
	}
}

func (s *Server) renderAudio(text string, mode profile.Mode, voice *profile.Profile) ([]byte, error) {
	chunks, errs := s.dispatcher.Dispatch(context.Background(), dispatch.Request{
		Text:             text,
		Mode:             mode,
		Profile:          voice,
		InstructOverride: "",
		Seed:             s.cfg.Seed,
	})

	var collected []core.PCMChunk
	for chunk := range chunks {
		collected = append(collected, chunk)
	}

	err := <-errs
	if err != nil {
		return nil, err
	}

	joined := audio.ConcatChunks(collected)
	if len(joined.Data) == 0 {
		return nil, ErrNoAudioProduced
	}

	wavData, err := audio.EncodeWAV(joined)
	if err != nil {
		return nil, err
	}

	return wavData, nil
}

func (s *Server) handleSpeakers(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)

	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)

		return
	case http.MethodGet:
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")

		return
	}

	names := s.profiles.Names()

	// Listings expose names only. Prompt text and audio paths are internal.
	entries := make([]speakerEntry, 0, len(names))
	for _, name := range names {
		entries = append(entries, speakerEntry{Name: name, VoiceID: name})
	}

	s.writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)

	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)

		return
	case http.MethodGet:
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")

		return
	}

	status := "ok"
	modelName := "not loaded"

	handle, err := s.models()
	if err == nil {
		modelName = handle.Identity()
	} else {
		status = "model not loaded"
	}

	s.writeJSON(w, http.StatusOK, healthPayload{
		Status:     status,
		Model:      modelName,
		Characters: s.profiles.Names(),
	})
}

func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(payload)
	if err != nil {
		s.log.Warn("Failed to encode response: %v", err)
	}
}

// writeError logs the full message and responds with a truncated form so
// internal detail does not leak to clients verbatim.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.log.Error("Bridge request failed (%d): %s", status, message)

	runes := []rune(message)
	if len(runes) > errorMessageLimit {
		message = string(runes[:errorMessageLimit])
	}

	s.writeJSON(w, status, map[string]string{"error": message})
}
