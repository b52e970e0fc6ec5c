package download

import (
	"context"
	"fmt"
	"sync"

	"github.com/buckyos/cyfs-ndn-core/pkg/objmodel"
)

// DirTask downloads every entry of a directory object, each as its own
// FileTask or nested DirTask, all sharing one GroupPath so the fair-
// share drain scheduler balances bandwidth across the whole subtree
// rather than per-file.
type DirTask struct {
	*base
	dirId    objmodel.ObjectId
	children []Task

	mu sync.Mutex
}

// NewDirTask creates a directory download for dirId; children must be
// constructed with this task's Context() as their parent so Cancel
// propagates, and appended via AddChild before Run.
func NewDirTask(parent context.Context, group GroupPath, dirId objmodel.ObjectId) *DirTask {
	return &DirTask{base: newBase(parent, group), dirId: dirId}
}

func (t *DirTask) Kind() Kind { return KindDir }

// DirId returns the object id of the directory being downloaded.
func (t *DirTask) DirId() objmodel.ObjectId { return t.dirId }

// AddChild registers a child task (FileTask or nested DirTask) under
// this directory.
func (t *DirTask) AddChild(c Task) {
	t.mu.Lock()
	t.children = append(t.children, c)
	t.mu.Unlock()
}

// Children returns a snapshot of this directory's child tasks.
func (t *DirTask) Children() []Task {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Task, len(t.children))
	copy(out, t.children)
	return out
}

// runner is implemented by every concrete Task variant in this package,
// letting DirTask drive arbitrary children without a type switch.
type runner interface {
	Run() error
}

// Run drives every child task to completion, aborting the whole
// directory on the first PermissionDenied a child surfaces.
func (t *DirTask) Run() error {
	children := t.Children()
	errs := make([]error, len(children))

	var wg sync.WaitGroup
	for i, c := range children {
		r, ok := c.(runner)
		if !ok {
			continue
		}
		wg.Add(1)
		go func(index int, r runner) {
			defer wg.Done()
			err := r.Run()
			errs[index] = err
			var dlErr *Error
			if err != nil && asDownloadError(err, &dlErr) && !dlErr.Retryable() {
				t.Cancel()
			}
		}(i, r)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			var dlErr *Error
			if asDownloadError(err, &dlErr) && !dlErr.Retryable() {
				t.Cancel()
			}
			wrapped := fmt.Errorf("download: dir entry %d: %w", i, err)
			t.setError(wrapped)
			return wrapped
		}
	}

	t.setState(StateFinished)
	return nil
}

// DrainScore aggregates the mean of every child's DrainScore, so a
// directory bids for bandwidth proportionally to how starved its
// busiest children are.
func (t *DirTask) DrainScore() float64 {
	children := t.Children()
	if len(children) == 0 {
		return 0
	}
	var sum float64
	for _, c := range children {
		sum += c.DrainScore()
	}
	return sum / float64(len(children))
}

// OnDrain splits the offered bandwidth evenly across downloading
// children and returns the sum actually granted.
func (t *DirTask) OnDrain(expectSpeed float64) float64 {
	children := t.Children()
	active := 0
	for _, c := range children {
		if c.State() == StateDownloading {
			active++
		}
	}
	if active == 0 {
		return 0
	}
	share := expectSpeed / float64(active)
	var granted float64
	for _, c := range children {
		if c.State() == StateDownloading {
			granted += c.OnDrain(share)
		}
	}
	return granted
}

// Speed sums every child's instantaneous speed.
func (t *DirTask) Speed() float64 {
	var sum float64
	for _, c := range t.Children() {
		sum += c.Speed()
	}
	return sum
}

// HistorySpeed sums every child's rolling-average speed.
func (t *DirTask) HistorySpeed() float64 {
	var sum float64
	for _, c := range t.Children() {
		sum += c.HistorySpeed()
	}
	return sum
}
