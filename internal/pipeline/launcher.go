package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/banshee-data/pose.report/internal/config"
	"github.com/banshee-data/pose.report/internal/monitoring"
	"github.com/banshee-data/pose.report/internal/parallel"
)

var launchLogf = monitoring.Scope("Launcher")

// Launcher starts predictor runs in the background for the HTTP API. One
// run at a time; a second start while one is in flight is rejected.
type Launcher struct {
	mu      sync.Mutex
	running bool

	cfg     *config.TuningConfig
	backend parallel.Backend
	manager *RunManager
}

// NewLauncher wires a launcher over a base tuning config. Each started run
// may override individual config keys through the request body.
func NewLauncher(cfg *config.TuningConfig, backend parallel.Backend, manager *RunManager) *Launcher {
	return &Launcher{cfg: cfg, backend: backend, manager: manager}
}

// Start validates the overrides and launches a run in the background. The
// ctx only covers startup; the run itself finishes on its own schedule and
// records its outcome through the run manager.
func (l *Launcher) Start(ctx context.Context, overrides []byte) error {
	merged := *l.cfg
	if len(overrides) > 0 {
		// Every TuningConfig field is a pointer, so unmarshalling onto a
		// copy overwrites exactly the keys present in the request.
		if err := json.Unmarshal(overrides, &merged); err != nil {
			return fmt.Errorf("decode overrides: %w", err)
		}
		if err := merged.Validate(); err != nil {
			return fmt.Errorf("invalid overrides: %w", err)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running {
		return fmt.Errorf("a prediction run is already active")
	}
	if l.manager != nil && l.manager.IsRunActive() {
		return fmt.Errorf("a prediction run is already active")
	}
	l.running = true

	go func() {
		defer func() {
			l.mu.Lock()
			l.running = false
			l.mu.Unlock()
		}()

		predictor := NewPredictor(&merged, l.backend, l.manager)
		if _, err := predictor.Run(context.Background()); err != nil {
			launchLogf("Background run failed: %v", err)
		}
	}()

	return nil
}

// Running reports whether a launched run is still in flight.
func (l *Launcher) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}
