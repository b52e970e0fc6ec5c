package download

import (
	"context"

	"github.com/buckyos/cyfs-ndn-core/pkg/objmodel"
)

// FileTask downloads every chunk of a File object's chunk list and
// concatenates them in order, exposed as a single Task so a directory
// listing's DirTask can schedule many files fairly against each other.
type FileTask struct {
	*base
	fileId objmodel.ObjectId
	list   *ChunkListTask
}

// NewFileTask creates a file download for fileId, whose content is the
// ordered concatenation of chunkIds.
func NewFileTask(parent context.Context, group GroupPath, fileId objmodel.ObjectId, chunkIds []objmodel.ChunkId, dctx *Context, fetcher Fetcher, maxConcurrent int) *FileTask {
	b := newBase(parent, group)
	return &FileTask{
		base:   b,
		fileId: fileId,
		list:   NewChunkListTask(b.ctx, group, chunkIds, dctx, fetcher, maxConcurrent),
	}
}

func (t *FileTask) Kind() Kind { return KindFile }

// FileId returns the object id of the file being downloaded.
func (t *FileTask) FileId() objmodel.ObjectId { return t.fileId }

// Run downloads every chunk in order and reports the file's state as a
// mirror of its underlying ChunkListTask.
func (t *FileTask) Run() error {
	if err := t.list.Run(); err != nil {
		t.setError(err)
		return err
	}
	t.setState(StateFinished)
	return nil
}

// Bytes concatenates every downloaded chunk's data, valid once
// State() == StateFinished.
func (t *FileTask) Bytes() []byte {
	var total int
	for _, c := range t.list.Results() {
		total += len(c)
	}
	out := make([]byte, 0, total)
	for _, c := range t.list.Results() {
		out = append(out, c...)
	}
	return out
}

// Speed/HistorySpeed/DrainScore/OnDrain delegate to the underlying
// ChunkListTask, since a FileTask's actual transfer work happens there.
func (t *FileTask) Speed() float64               { return t.list.Speed() }
func (t *FileTask) HistorySpeed() float64         { return t.list.HistorySpeed() }
func (t *FileTask) DrainScore() float64           { return t.list.DrainScore() }
func (t *FileTask) OnDrain(want float64) float64  { return t.list.OnDrain(want) }
