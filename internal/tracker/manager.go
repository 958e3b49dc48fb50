package tracker

import (
	"cmp"
	"slices"

	"github.com/andresmejia3/benthic/internal/params"
	"github.com/andresmejia3/benthic/internal/types"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/spatial/r2"
)

var (
	// ErrOutOfOrder is returned when Update sees a frame index that is not
	// strictly greater than the previous one.
	ErrOutOfOrder = errors.New("frame out of order")
	// ErrFinished is returned by Update after Finish.
	ErrFinished = errors.New("tracker already finished")
)

// Track is the trail of one organism. Frames, Centroids, Boxes, Areas and
// Confidences are parallel slices, one entry per frame the track was matched.
type Track struct {
	ID            int
	Frames        []int
	Centroids     []r2.Vec
	Boxes         []types.Rect
	Areas         []float64
	Confidences   []float64
	State         State
	LastSeenFrame int
	FramesCoupled int
	Valid         bool
}

// Len is the number of frames the track was detected in.
func (t *Track) Len() int { return len(t.Frames) }

// Last is the most recent matched centroid. Resting tracks keep it as their
// rest anchor since the trail is not extended while they are unseen.
func (t *Track) Last() r2.Vec { return t.Centroids[len(t.Centroids)-1] }

// LastBox is the bounding box of the most recent detection.
func (t *Track) LastBox() types.Rect { return t.Boxes[len(t.Boxes)-1] }

// CouplingRate is the share of detections that were shadow+reflection pairs, in percent.
func (t *Track) CouplingRate() float64 {
	if len(t.Frames) == 0 {
		return 0
	}
	return float64(t.FramesCoupled) / float64(len(t.Frames)) * 100
}

func (t *Track) extend(frame int, b types.Blob) {
	t.Frames = append(t.Frames, frame)
	t.Centroids = append(t.Centroids, b.Centroid)
	t.Boxes = append(t.Boxes, b.Box)
	t.Areas = append(t.Areas, b.Area)
	t.Confidences = append(t.Confidences, b.Confidence)
	t.LastSeenFrame = frame
	if b.Kind == types.Coupled {
		t.FramesCoupled++
	}
}

// Manager owns every track of a run. Live tracks sit in an arena keyed by id;
// terminated tracks move to an append-only finished list and never change again.
// A Manager is driven by a single goroutine.
type Manager struct {
	params   params.Tracking
	live     map[int]*Track
	finished []*Track
	nextID   int
	last     int
	started  bool
	done     bool
}

// New returns an empty Manager. Track ids start at 1.
func New(p params.Tracking) *Manager {
	return &Manager{
		params: p,
		live:   make(map[int]*Track),
		nextID: 1,
	}
}

type candidate struct {
	track int
	blob  int
	cost  float64
}

// Update advances the tracker by one frame: it assigns blobs to live tracks,
// ages the tracks that found nothing and spawns tracks for leftover blobs.
func (m *Manager) Update(frame int, blobs []types.Blob) error {
	if m.done {
		return ErrFinished
	}
	if m.started && frame <= m.last {
		return errors.Wrapf(ErrOutOfOrder, "got frame %d after %d", frame, m.last)
	}
	m.started, m.last = true, frame

	ids := m.liveIDs()

	var cands []candidate
	for _, id := range ids {
		t := m.live[id]
		for j, b := range blobs {
			if cost, ok := m.cost(t, b); ok {
				cands = append(cands, candidate{track: id, blob: j, cost: cost})
			}
		}
	}
	slices.SortFunc(cands, func(a, b candidate) int {
		return cmp.Or(
			cmp.Compare(a.cost, b.cost),
			cmp.Compare(a.track, b.track),
			cmp.Compare(a.blob, b.blob),
		)
	})

	trackUsed := make(map[int]bool, len(ids))
	blobUsed := make([]bool, len(blobs))
	for _, c := range cands {
		if trackUsed[c.track] || blobUsed[c.blob] {
			continue
		}
		trackUsed[c.track] = true
		blobUsed[c.blob] = true

		t := m.live[c.track]
		t.extend(frame, blobs[c.blob])
		t.State = next(t.State, matched)
	}

	for _, id := range ids {
		if trackUsed[id] {
			continue
		}
		t := m.live[id]
		ev := missedWithinGap
		if frame-t.LastSeenFrame > m.params.MaxSkipFrames {
			ev = missedBeyondGap
		}
		t.State = next(t.State, ev)
		if t.State == Terminated {
			delete(m.live, id)
			m.finished = append(m.finished, t)
		}
	}

	for j, b := range blobs {
		if blobUsed[j] {
			continue
		}
		t := &Track{ID: m.nextID, State: Active}
		t.extend(frame, b)
		m.live[t.ID] = t
		m.nextID++
	}
	return nil
}

// cost is the assignment cost of blob b to track t. Resting tracks only accept
// blobs inside their rest zone, at a discounted distance.
func (m *Manager) cost(t *Track, b types.Blob) (float64, bool) {
	d := r2.Norm(r2.Sub(b.Centroid, t.Last()))
	if t.State == Resting {
		if d > m.params.RestZoneRadius {
			return 0, false
		}
		d *= m.params.RestZoneDiscount
	}
	if d > m.params.MaxDistance {
		return 0, false
	}
	return d, true
}

func (m *Manager) liveIDs() []int {
	ids := make([]int, 0, len(m.live))
	for id := range m.live {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Live returns the live tracks ordered by id. The tracks belong to the Manager;
// callers must not modify them.
func (m *Manager) Live() []*Track {
	ids := m.liveIDs()
	out := make([]*Track, len(ids))
	for i, id := range ids {
		out[i] = m.live[id]
	}
	return out
}

// Finish moves the remaining live tracks to the finished list, keeping the
// state they were in, and returns every track of the run ordered by id.
// Further calls to Update fail.
func (m *Manager) Finish() []*Track {
	if !m.done {
		m.finished = append(m.finished, m.Live()...)
		clear(m.live)
		m.done = true
	}
	out := slices.Clone(m.finished)
	slices.SortFunc(out, func(a, b *Track) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// Count is the number of tracks created so far.
func (m *Manager) Count() int { return m.nextID - 1 }
