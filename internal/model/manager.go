// Package model manages the synthesis model lifecycle: locating the model
// directory, loading through an injected loader, gating unload against
// running jobs, and releasing accelerator memory deterministically.
package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/book-expert/logger"

	"github.com/book-expert/voice-studio/internal/core"
)

// Static errors.
var (
	ErrModelNotFound  = errors.New("model directory not found")
	ErrModelNotLoaded = errors.New("model not loaded")
	ErrJobRunning     = errors.New("a job is running, cannot unload the model")
)

// dirCandidates is the probe order under the model root. Newer releases are
// preferred when several are installed side by side.
var dirCandidates = []string{
	"Fun-CosyVoice3-0.5B",
	"CosyVoice3-0.5B",
	"CosyVoice2-0.5B",
}

// Loader constructs a model handle from a resolved model directory.
type Loader func(dir string) (core.Model, error)

// Manager owns the single model handle. All state transitions are guarded
// by one mutex; jobs register through Acquire so Unload can refuse while
// synthesis is in flight.
type Manager struct {
	mu         sync.Mutex
	loader     Loader
	log        *logger.Logger
	model      core.Model
	activeJobs int
}

// NewManager creates a manager that loads models through the given loader.
func NewManager(loader Loader, log *logger.Logger) *Manager {
	return &Manager{
		mu:         sync.Mutex{},
		loader:     loader,
		log:        log,
		model:      nil,
		activeJobs: 0,
	}
}

// ResolveDir probes the candidate model directories under root and returns
// the first that exists.
func ResolveDir(root string) (string, error) {
	for _, candidate := range dirCandidates {
		dir := filepath.Join(root, candidate)

		info, err := os.Stat(dir)
		if err == nil && info.IsDir() {
			return dir, nil
		}
	}

	return "", fmt.Errorf("%w: no candidate under %q", ErrModelNotFound, root)
}

// Load resolves the model directory under root and loads the model. Loading
// while a model is already held is a no-op.
func (m *Manager) Load(root string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.model != nil {
		return nil
	}

	dir, err := ResolveDir(root)
	if err != nil {
		return err
	}

	m.log.Info("Loading model from %s", dir)

	handle, err := m.loader(dir)
	if err != nil {
		return fmt.Errorf("failed to load model: %w", err)
	}

	m.model = handle
	m.log.Info("Model loaded: %s", handle.Identity())

	return nil
}

// Loaded reports whether a model handle is currently held.
func (m *Manager) Loaded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.model != nil
}

// Current returns the model handle without job accounting. Callers that run
// synthesis must use Acquire instead.
func (m *Manager) Current() (core.Model, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.model == nil {
		return nil, ErrModelNotLoaded
	}

	return m.model, nil
}

// Acquire returns the model handle and registers a running job. The caller
// must invoke the release function when the job finishes, on every path.
func (m *Manager) Acquire() (core.Model, func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.model == nil {
		return nil, nil, ErrModelNotLoaded
	}

	m.activeJobs++

	var once sync.Once

	release := func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()

			m.activeJobs--
		})
	}

	return m.model, release, nil
}

// Unload releases the model and its accelerator memory. Refused while any
// job holds the handle. Unloading when nothing is loaded is a no-op.
func (m *Manager) Unload() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.model == nil {
		return nil
	}

	if m.activeJobs > 0 {
		return ErrJobRunning
	}

	err := m.model.Release()
	if err != nil {
		m.log.Warn("Model release reported an error: %v", err)
	}

	m.model = nil

	runtime.GC()
	m.log.Info("Model unloaded")

	return nil
}
