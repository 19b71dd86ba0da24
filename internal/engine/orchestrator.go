package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/proctor/internal/domain"
	"github.com/xela07ax/proctor/internal/pipeline"
)

var (
	ErrCameraNotInHall = errors.New("camera does not belong to hall")
	ErrJoinTimeout     = errors.New("worker did not stop in time")
)

// CameraDirectory resolves halls and their cameras.
type CameraDirectory interface {
	GetHall(ctx context.Context, id int64) (domain.Hall, error)
	ListHallCameras(ctx context.Context, hallID int64) ([]domain.Camera, error)
}

// SessionFactory builds the frame loop of one camera. enabled reports the
// hall's live detection flag.
type SessionFactory func(ctx context.Context, cam domain.Camera, hall domain.Hall, enabled func() bool) (*pipeline.Session, error)

type worker struct {
	session *pipeline.Session
	hallID  int64
	cancel  context.CancelFunc
	done    chan struct{}
}

func (w *worker) alive() bool {
	select {
	case <-w.done:
		return false
	default:
		return true
	}
}

// Orchestrator runs at most one worker per camera.
type Orchestrator struct {
	mu      sync.Mutex
	workers map[int64]*worker

	base        context.Context
	dir         CameraDirectory
	factory     SessionFactory
	halls       *HallManager
	stats       *StatsStore
	offenders   *OffenderTracker
	metrics     *Metrics
	logger      *zap.Logger
	joinTimeout time.Duration
}

type OrchestratorConfig struct {
	JoinTimeout time.Duration
}

// NewOrchestrator creates the registry. Workers inherit base, so
// cancelling it stops every camera.
func NewOrchestrator(base context.Context, cfg OrchestratorConfig, dir CameraDirectory, factory SessionFactory,
	halls *HallManager, stats *StatsStore, offenders *OffenderTracker, metrics *Metrics, logger *zap.Logger) *Orchestrator {
	if cfg.JoinTimeout <= 0 {
		cfg.JoinTimeout = 5 * time.Second
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Orchestrator{
		workers:     make(map[int64]*worker),
		base:        base,
		dir:         dir,
		factory:     factory,
		halls:       halls,
		stats:       stats,
		offenders:   offenders,
		metrics:     metrics,
		logger:      logger.With(zap.String("mod", "orchestrator")),
		joinTimeout: cfg.JoinTimeout,
	}
}

// Start launches a worker for cam unless one is already running.
func (o *Orchestrator) Start(ctx context.Context, cam domain.Camera, hall domain.Hall) error {
	if cam.HallID != hall.ID {
		return fmt.Errorf("camera %d, hall %d: %w", cam.ID, hall.ID, ErrCameraNotInHall)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if w, ok := o.workers[cam.ID]; ok && w.alive() {
		o.logger.Debug("worker already running", zap.Int64("camera_id", cam.ID))
		return nil
	}

	hallID := hall.ID
	session, err := o.factory(ctx, cam, hall, func() bool { return o.halls.IsEnabled(hallID) })
	if err != nil {
		o.metrics.ErrorTotal.WithLabelValues("start").Inc()
		return fmt.Errorf("camera %d: %w", cam.ID, err)
	}

	wctx, cancel := context.WithCancel(o.base)
	w := &worker{session: session, hallID: hall.ID, cancel: cancel, done: make(chan struct{})}
	o.workers[cam.ID] = w
	o.metrics.ActiveWorkers.Inc()

	go o.run(wctx, cam.ID, w)
	o.logger.Info("worker started", zap.Int64("camera_id", cam.ID), zap.Int64("hall_id", hall.ID))
	return nil
}

func (o *Orchestrator) run(ctx context.Context, cameraID int64, w *worker) {
	defer close(w.done)
	defer w.cancel()

	if err := w.session.Run(ctx); err != nil {
		o.logger.Warn("worker ended with error", zap.Int64("camera_id", cameraID), zap.Error(err))
	}

	o.mu.Lock()
	if o.workers[cameraID] == w {
		delete(o.workers, cameraID)
	}
	o.mu.Unlock()
	o.metrics.ActiveWorkers.Dec()
}

// Stop asks the camera's worker to finish, waits for it and then clears the
// camera's live stats. Stats are cleared even when the wait times out.
func (o *Orchestrator) Stop(cameraID int64) error {
	o.mu.Lock()
	w := o.workers[cameraID]
	o.mu.Unlock()

	var err error
	if w != nil {
		w.cancel()
		t := time.NewTimer(o.joinTimeout)
		select {
		case <-w.done:
		case <-t.C:
			err = fmt.Errorf("camera %d: %w", cameraID, ErrJoinTimeout)
			o.logger.Warn("worker join timed out", zap.Int64("camera_id", cameraID), zap.Duration("timeout", o.joinTimeout))
		}
		t.Stop()
	}
	o.stats.Reset(cameraID)
	return err
}

// StartHall enables detection for the hall and starts every camera in it.
// A failing camera does not prevent the others from starting; per-camera
// failures are returned in the map.
func (o *Orchestrator) StartHall(ctx context.Context, hallID int64) (map[int64]error, error) {
	hall, err := o.dir.GetHall(ctx, hallID)
	if err != nil {
		return nil, err
	}
	cams, err := o.dir.ListHallCameras(ctx, hallID)
	if err != nil {
		return nil, err
	}

	o.halls.SetEnabled(hallID, true)

	failed := make(map[int64]error)
	for _, cam := range cams {
		if err := o.Start(ctx, cam, hall); err != nil {
			o.logger.Error("camera failed to start", zap.Int64("camera_id", cam.ID), zap.Error(err))
			failed[cam.ID] = err
		}
	}
	return failed, nil
}

// StopHall disables detection for the hall and stops its cameras in
// parallel.
func (o *Orchestrator) StopHall(ctx context.Context, hallID int64) error {
	cams, err := o.dir.ListHallCameras(ctx, hallID)
	if err != nil {
		return err
	}
	o.halls.SetEnabled(hallID, false)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, cam := range cams {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			if err := o.Stop(id); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(cam.ID)
	}
	wg.Wait()

	if o.offenders != nil {
		o.offenders.ResetHall(hallID)
	}
	return errors.Join(errs...)
}

// Running reports whether a worker for the camera is alive.
func (o *Orchestrator) Running(cameraID int64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	w, ok := o.workers[cameraID]
	return ok && w.alive()
}

// Session returns the live session of a camera.
func (o *Orchestrator) Session(cameraID int64) (*pipeline.Session, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	w, ok := o.workers[cameraID]
	if !ok {
		return nil, false
	}
	return w.session, true
}

// RunningCameras lists cameras with a live worker, ascending.
func (o *Orchestrator) RunningCameras() []int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]int64, 0, len(o.workers))
	for id, w := range o.workers {
		if w.alive() {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Shutdown stops all workers and waits for them until ctx expires.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	ws := make([]*worker, 0, len(o.workers))
	for _, w := range o.workers {
		w.cancel()
		ws = append(ws, w)
	}
	o.mu.Unlock()

	for _, w := range ws {
		select {
		case <-w.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
