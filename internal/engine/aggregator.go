package engine

import (
	"context"
	"image"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xela07ax/proctor/internal/audit"
	"github.com/xela07ax/proctor/internal/domain"
)

// IdentityClassifier resolves a face crop to an identity.
type IdentityClassifier interface {
	Classify(ctx context.Context, face image.Image) (string, float64, error)
}

// NameDirectory looks up display names for identities.
type NameDirectory interface {
	LookupIdentityName(ctx context.Context, identity string) (string, error)
}

// Notifier is told about every accepted record.
type Notifier interface {
	NotifyViolation(ctx context.Context, rec domain.ViolationRecord)
}

type AggregatorConfig struct {
	DedupWindow time.Duration
}

// Aggregator turns candidates into identity-resolved, deduplicated
// violation records and forwards the accepted ones.
type Aggregator struct {
	cfg        AggregatorConfig
	stats      *StatsStore
	offenders  *OffenderTracker
	classifier IdentityClassifier
	names      NameDirectory
	journal    audit.Recorder
	notifier   Notifier
	metrics    *Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// NewAggregator wires the aggregation layer; classifier, names and
// notifier may be nil.
func NewAggregator(cfg AggregatorConfig, stats *StatsStore, offenders *OffenderTracker, classifier IdentityClassifier,
	names NameDirectory, journal audit.Recorder, notifier Notifier, metrics *Metrics, logger *zap.Logger) *Aggregator {
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = 10 * time.Second
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Aggregator{
		cfg:        cfg,
		stats:      stats,
		offenders:  offenders,
		classifier: classifier,
		names:      names,
		journal:    journal,
		notifier:   notifier,
		metrics:    metrics,
		logger:     logger.With(zap.String("mod", "aggregator")),
		now:        time.Now,
	}
}

// Accept resolves the candidate's identity and records it unless the same
// identity was recorded on this camera within the dedup window. It reports
// whether the record was accepted.
func (a *Aggregator) Accept(ctx context.Context, cam domain.Camera, location string, c domain.CandidateEvent) (domain.ViolationRecord, bool) {
	identity, confidence := a.classify(ctx, c)
	name := a.lookupName(ctx, identity)

	rec := domain.ViolationRecord{
		ID:            uuid.NewString(),
		CameraID:      cam.ID,
		TrackID:       c.TrackID,
		Identity:      identity,
		IdentityName:  name,
		Confidence:    confidence,
		ReasonCode:    c.ReasonCode,
		Reason:        c.Reason,
		Timestamp:     c.Timestamp,
		FormattedTime: domain.FormatTimestamp(c.Timestamp),
		EvidencePath:  c.EvidencePath,
		Location:      location,
		RecordedAt:    a.now(),
	}

	if !a.stats.admit(rec, a.cfg.DedupWindow) {
		a.metrics.DuplicatesTotal.WithLabelValues(camLabel(cam.ID)).Inc()
		a.logger.Info("ignoring repeated alert",
			zap.String("academic_id", identity), zap.Int64("camera_id", cam.ID), zap.Duration("window", a.cfg.DedupWindow))
		return rec, false
	}

	if a.offenders != nil {
		a.offenders.Observe(cam.HallID, location, identity, name)
	}
	if a.journal != nil {
		a.journal.RecordViolation(rec)
	}
	if a.notifier != nil {
		a.notifier.NotifyViolation(ctx, rec)
	}
	a.metrics.ViolationsTotal.WithLabelValues(camLabel(cam.ID), string(rec.ReasonCode)).Inc()

	a.logger.Info("violation recorded",
		zap.Int64("camera_id", cam.ID),
		zap.Int("track_id", c.TrackID),
		zap.String("time", rec.FormattedTime),
		zap.String("reason", rec.Reason),
		zap.String("location", location),
		zap.String("student", name),
		zap.String("academic_id", identity),
		zap.Float64("confidence", confidence),
		zap.String("evidence", rec.EvidencePath),
	)
	return rec, true
}

func (a *Aggregator) classify(ctx context.Context, c domain.CandidateEvent) (string, float64) {
	if a.classifier == nil || c.Crop == nil {
		return domain.UnknownIdentity, 0
	}
	identity, conf, err := a.classifier.Classify(ctx, c.Crop)
	if err != nil {
		a.metrics.ErrorTotal.WithLabelValues("classify").Inc()
		a.logger.Warn("identity classification failed", zap.Int("track_id", c.TrackID), zap.Error(err))
		return domain.UnknownIdentity, 0
	}
	if identity == "" {
		identity = domain.UnknownIdentity
	}
	if math.IsNaN(conf) || math.IsInf(conf, 0) {
		conf = 0
	}
	return identity, conf
}

func (a *Aggregator) lookupName(ctx context.Context, identity string) string {
	if a.names == nil || identity == domain.UnknownIdentity {
		return domain.UnknownStudentName
	}
	name, err := a.names.LookupIdentityName(ctx, identity)
	if err != nil {
		a.logger.Warn("student name lookup failed", zap.String("academic_id", identity), zap.Error(err))
		return domain.UnknownStudentName
	}
	if name == "" {
		return domain.UnknownStudentName
	}
	return name
}

// RecordPhone forwards a phone sighting. Phone events are not deduplicated.
func (a *Aggregator) RecordPhone(_ context.Context, ev domain.PhoneEvent) {
	a.metrics.PhonesTotal.WithLabelValues(camLabel(ev.CameraID)).Inc()
	if a.journal != nil {
		a.journal.RecordPhone(ev)
	}
	a.logger.Info("phone detected",
		zap.Int64("camera_id", ev.CameraID), zap.String("time", ev.FormattedTime), zap.String("location", ev.Location))
}

func (a *Aggregator) Stats() *StatsStore { return a.stats }
