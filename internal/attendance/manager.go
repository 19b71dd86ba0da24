package attendance

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/xela07ax/proctor/internal/domain"
	"github.com/xela07ax/proctor/internal/pipeline"
)

var (
	// ErrRunning is returned by Stop: a running pass cannot be interrupted
	// safely and always runs to completion.
	ErrRunning    = errors.New("attendance is running and cannot be stopped")
	ErrNotRunning = errors.New("attendance is not running")
)

type Directory interface {
	GetHall(ctx context.Context, id int64) (domain.Hall, error)
	ListHallCameras(ctx context.Context, hallID int64) ([]domain.Camera, error)
}

type Roster interface {
	Students(ctx context.Context) ([]domain.Student, error)
}

type ManagerDeps struct {
	Directory  Directory
	Roster     Roster
	Detector   pipeline.Detector
	NewTracker func() pipeline.Tracker
	Classifier Classifier
	Recorder   Recorder
	Open       Opener
	ReportDir  string
}

// Manager runs at most one attendance pass per hall. A pass removes
// itself from the registry when it finishes.
type Manager struct {
	base   context.Context
	cfg    Config
	deps   ManagerDeps
	logger *zap.Logger

	mu      sync.Mutex
	running map[int64]struct{}
	results map[int64]Result
	wg      sync.WaitGroup
}

// NewManager creates the registry. Passes inherit base.
func NewManager(base context.Context, cfg Config, deps ManagerDeps, logger *zap.Logger) *Manager {
	return &Manager{
		base:    base,
		cfg:     cfg,
		deps:    deps,
		logger:  logger.With(zap.String("mod", "attendance")),
		running: make(map[int64]struct{}),
		results: make(map[int64]Result),
	}
}

// Start launches a pass over the hall. It reports false when one is
// already running.
func (m *Manager) Start(ctx context.Context, hallID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.running[hallID]; ok {
		return false, nil
	}

	hall, err := m.deps.Directory.GetHall(ctx, hallID)
	if err != nil {
		return false, err
	}
	cams, err := m.deps.Directory.ListHallCameras(ctx, hallID)
	if err != nil {
		return false, err
	}
	roster, err := m.deps.Roster.Students(ctx)
	if err != nil {
		return false, fmt.Errorf("load roster: %w", err)
	}

	m.running[hallID] = struct{}{}
	m.wg.Add(1)
	go m.run(hall, cams, roster)
	return true, nil
}

func (m *Manager) run(hall domain.Hall, cams []domain.Camera, roster []domain.Student) {
	defer m.wg.Done()

	t := NewTracker(m.cfg, roster, m.deps.Detector, m.deps.NewTracker, m.deps.Classifier, m.deps.Recorder, m.logger)
	res, err := t.Run(m.base, hall, cams, m.deps.Open)
	if err != nil {
		m.logger.Warn("attendance interrupted", zap.Int64("hall_id", hall.ID), zap.Error(err))
	}
	if m.deps.ReportDir != "" {
		if path, err := WriteReport(m.deps.ReportDir, res); err != nil {
			m.logger.Error("attendance report failed", zap.Int64("hall_id", hall.ID), zap.Error(err))
		} else {
			m.logger.Info("attendance report saved", zap.String("path", path))
		}
	}

	m.mu.Lock()
	delete(m.running, hall.ID)
	m.results[hall.ID] = res
	m.mu.Unlock()
}

// Stop is refused while a pass is running.
func (m *Manager) Stop(hallID int64) error {
	if m.Running(hallID) {
		return ErrRunning
	}
	return ErrNotRunning
}

func (m *Manager) Running(hallID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.running[hallID]
	return ok
}

// Result returns the outcome of the hall's last finished pass.
func (m *Manager) Result(hallID int64) (Result, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.results[hallID]
	return r, ok
}

// Wait blocks until every running pass has finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}
