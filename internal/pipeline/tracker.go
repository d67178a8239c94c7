package pipeline

import (
	"sync"
	"time"

	"github.com/dharsanguruparan/pricedrop/internal/model"
)

// tracker owns the progress snapshot for one run. A mutex guards it so a
// status poller sharing the struct (the in-memory sink used in tests, or a
// future in-process mode) always sees a coherent value. Percent never
// decreases and never leaves [0,100].
type tracker struct {
	mu        sync.Mutex
	progress  model.Progress
	total     int
	startedAt time.Time
}

func newTracker() *tracker {
	now := time.Now().UTC()
	return &tracker{
		progress: model.Progress{
			Stage:     model.StageExtracting,
			StartedAt: &now,
		},
		startedAt: now,
	}
}

func (t *tracker) setTotal(total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.total = total
	t.progress.TotalItems = total
}

// stage switches the reported stage without touching the counters.
func (t *tracker) stage(stage model.Stage, msg string) model.Progress {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.progress.Stage = stage
	t.progress.Message = msg
	return t.progress
}

// progressMsg updates only the message.
func (t *tracker) progressMsg(msg string) model.Progress {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.progress.Message = msg
	return t.progress
}

// batch records a batch boundary: items processed, recomputed percent, and a
// completion estimate from the observed throughput.
func (t *tracker) batch(stage model.Stage, processed int, msg string) model.Progress {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.progress.Stage = stage
	t.progress.Message = msg
	t.progress.ItemsProcessed = processed

	if t.total > 0 {
		percent := float64(processed) / float64(t.total) * 100
		if percent > 100 {
			percent = 100
		}
		if percent > t.progress.Percent {
			t.progress.Percent = percent
		}
	}
	if processed > 0 && processed < t.total {
		elapsed := time.Since(t.startedAt)
		perItem := elapsed / time.Duration(processed)
		eta := time.Now().UTC().Add(perItem * time.Duration(t.total-processed))
		t.progress.EstimatedCompletion = &eta
	}
	return t.progress
}

// finish pins the snapshot at its terminal completed value.
func (t *tracker) finish(msg string) model.Progress {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.progress.Stage = model.StageCompleted
	t.progress.Percent = 100
	t.progress.ItemsProcessed = t.total
	t.progress.Message = msg
	t.progress.EstimatedCompletion = nil
	return t.progress
}
