package download

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/buckyos/cyfs-ndn-core/pkg/objmodel"
)

// ChunkListTask downloads an ordered list of chunks concurrently (with
// backpressure), exposing Task's drain-fairness across the whole list as
// a single sibling in its parent GroupPath.
type ChunkListTask struct {
	*base
	ids      []objmodel.ChunkId
	dctx     *Context
	fetcher  Fetcher
	maxConc  int

	mu       sync.Mutex
	children []*ChunkTask
	results  [][]byte
}

// NewChunkListTask creates a chunk-list download of ids under parent's
// context, fetching at most maxConcurrent chunks at a time.
func NewChunkListTask(parent context.Context, group GroupPath, ids []objmodel.ChunkId, dctx *Context, fetcher Fetcher, maxConcurrent int) *ChunkListTask {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	return &ChunkListTask{
		base:    newBase(parent, group),
		ids:     ids,
		dctx:    dctx,
		fetcher: fetcher,
		maxConc: maxConcurrent,
		results: make([][]byte, len(ids)),
	}
}

func (t *ChunkListTask) Kind() Kind { return KindChunkList }

// Results returns the downloaded chunk bytes in list order, valid once
// State() == StateFinished.
func (t *ChunkListTask) Results() [][]byte { return t.results }

// Run fetches every chunk in the list, bounding in-flight fetches to
// maxConc and aborting the whole task on the first child error.
func (t *ChunkListTask) Run() error {
	sem := semaphore.NewWeighted(int64(t.maxConc))
	g, ctx := errgroup.WithContext(t.Context())

	for i, id := range t.ids {
		if err := sem.Acquire(ctx, 1); err != nil {
			return t.fail(fmt.Errorf("download: chunk list: %w", err))
		}

		index, chunkId := i, id
		g.Go(func() error {
			defer sem.Release(1)

			child := NewChunkTask(ctx, t.group, chunkId, t.dctx, t.fetcher)
			t.mu.Lock()
			t.children = append(t.children, child)
			t.mu.Unlock()

			if err := child.Run(); err != nil {
				return fmt.Errorf("download: chunk list index %d: %w", index, err)
			}
			t.mu.Lock()
			t.results[index] = child.Data()
			t.mu.Unlock()
			t.observe(len(child.Data()), time.Now())
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return t.fail(err)
	}

	t.setState(StateFinished)
	return nil
}

func (t *ChunkListTask) fail(err error) error {
	t.setError(err)
	return err
}
