package download

import (
	"context"
	"fmt"
	"time"

	"github.com/buckyos/cyfs-ndn-core/pkg/objmodel"
)

// Fetcher retrieves one chunk's bytes from a single source candidate.
// Implementations wrap whatever transport a candidate's Codec implies
// (pkg/bdt/stream for CodecStream/CodecRange, pkg/ndn/upload's
// NextPiece framing for CodecPiece).
type Fetcher interface {
	FetchChunk(ctx context.Context, candidate SourceCandidate, id objmodel.ChunkId) ([]byte, error)
}

// ChunkTask downloads a single chunk, retrying across the Context's
// source candidates on NotFound/ConnectFailed and aborting immediately
// on PermissionDenied (§4.6 retry policy).
type ChunkTask struct {
	*base
	id      objmodel.ChunkId
	dctx    *Context
	fetcher Fetcher

	data []byte
}

// NewChunkTask creates a chunk download under parent's context, sharing
// group for fair-share scheduling among siblings.
func NewChunkTask(parent context.Context, group GroupPath, id objmodel.ChunkId, dctx *Context, fetcher Fetcher) *ChunkTask {
	return &ChunkTask{
		base:    newBase(parent, group),
		id:      id,
		dctx:    dctx,
		fetcher: fetcher,
	}
}

func (t *ChunkTask) Kind() Kind { return KindChunk }

// Id returns the chunk identity this task downloads.
func (t *ChunkTask) Id() objmodel.ChunkId { return t.id }

// Data returns the downloaded bytes once State() == StateFinished.
func (t *ChunkTask) Data() []byte { return t.data }

// Run drives the fetch loop: tries every source candidate in order
// until one succeeds or a PermissionDenied aborts the task.
func (t *ChunkTask) Run() error {
	if len(t.dctx.Sources) == 0 {
		err := fmt.Errorf("download: chunk %s: no source candidates", t.id)
		t.setError(err)
		return err
	}

	var lastErr error
	for _, candidate := range t.dctx.Sources {
		select {
		case <-t.Context().Done():
			err := t.Context().Err()
			t.setError(err)
			return err
		default:
		}

		data, err := t.fetcher.FetchChunk(t.Context(), candidate, t.id)
		if err == nil {
			t.data = data
			t.observe(len(data), time.Now())
			t.setState(StateFinished)
			return nil
		}

		var dlErr *Error
		if ok := asDownloadError(err, &dlErr); ok && !dlErr.Retryable() {
			t.setError(err)
			return err
		}
		lastErr = err
	}

	err := fmt.Errorf("download: chunk %s: exhausted all %d candidates: %w", t.id, len(t.dctx.Sources), lastErr)
	t.setError(err)
	return err
}

func asDownloadError(err error, target **Error) bool {
	for err != nil {
		if de, ok := err.(*Error); ok {
			*target = de
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
