// Package tracking assigns persistent ids to detections across frames.
package tracking

import (
	"context"
	"image"
	"sort"

	"github.com/xela07ax/proctor/internal/vision"
)

// Config tunes the IoU tracker.
type Config struct {
	MinIoU float64 // minimum overlap to continue a track
	MaxAge int     // frames a lost track is kept before it is dropped
}

func DefaultConfig() Config {
	return Config{MinIoU: 0.3, MaxAge: 30}
}

type track struct {
	id   int
	box  vision.Box
	lost int
}

// IoUTracker is a greedy overlap tracker. Each camera needs its own
// instance; it is not safe for concurrent use.
type IoUTracker struct {
	cfg    Config
	nextID int
	tracks []*track
}

func NewIoUTracker(cfg Config) *IoUTracker {
	if cfg.MinIoU <= 0 {
		cfg.MinIoU = DefaultConfig().MinIoU
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultConfig().MaxAge
	}
	return &IoUTracker{cfg: cfg, nextID: 1}
}

type pair struct {
	t, d int
	iou  float64
}

// Update matches dets against live tracks and returns the tracks seen in
// this frame. Tracks that miss a frame are kept for MaxAge frames but not
// returned, so callers treat them as gone.
func (tr *IoUTracker) Update(_ context.Context, dets []vision.Detection, _ image.Image) ([]vision.Track, error) {
	var pairs []pair
	for ti, t := range tr.tracks {
		for di, d := range dets {
			if iou := t.box.IoU(d.Box); iou >= tr.cfg.MinIoU {
				pairs = append(pairs, pair{ti, di, iou})
			}
		}
	}
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].iou > pairs[j].iou })

	usedT := make(map[int]bool, len(tr.tracks))
	usedD := make(map[int]bool, len(dets))
	for _, p := range pairs {
		if usedT[p.t] || usedD[p.d] {
			continue
		}
		usedT[p.t], usedD[p.d] = true, true
		tr.tracks[p.t].box = dets[p.d].Box
		tr.tracks[p.t].lost = 0
	}

	kept := tr.tracks[:0]
	for ti, t := range tr.tracks {
		if !usedT[ti] {
			t.lost++
			if t.lost > tr.cfg.MaxAge {
				continue
			}
		}
		kept = append(kept, t)
	}
	tr.tracks = kept

	for di, d := range dets {
		if usedD[di] {
			continue
		}
		tr.tracks = append(tr.tracks, &track{id: tr.nextID, box: d.Box})
		tr.nextID++
	}

	out := make([]vision.Track, 0, len(dets))
	for _, t := range tr.tracks {
		if t.lost == 0 {
			out = append(out, vision.Track{ID: t.id, Box: t.box})
		}
	}
	return out, nil
}
