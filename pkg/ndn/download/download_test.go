package download

import (
	"context"
	"fmt"
	"testing"

	"github.com/buckyos/cyfs-ndn-core/pkg/chunkstore"
	"github.com/buckyos/cyfs-ndn-core/pkg/objmodel"
)

type fakeFetcher struct {
	byChunk map[objmodel.ChunkId][]byte
	fail    map[objmodel.ObjectId]*Error // candidate device -> forced error
}

func (f *fakeFetcher) FetchChunk(ctx context.Context, candidate SourceCandidate, id objmodel.ChunkId) ([]byte, error) {
	if err, ok := f.fail[candidate.Device]; ok {
		return nil, err
	}
	data, ok := f.byChunk[id]
	if !ok {
		return nil, newNotFoundError(candidate.Device, "no such chunk", nil)
	}
	return data, nil
}

func deviceId(b byte) objmodel.ObjectId {
	var id objmodel.ObjectId
	id[0] = b
	return id
}

func TestChunkTaskSucceedsOnFirstCandidate(t *testing.T) {
	id := objmodel.ComputeChunkId([]byte("hello"))
	fetcher := &fakeFetcher{byChunk: map[objmodel.ChunkId][]byte{id: []byte("hello")}}
	dctx := &Context{Sources: []SourceCandidate{{Device: deviceId(1)}}}

	task := NewChunkTask(context.Background(), "g", id, dctx, fetcher)
	if err := task.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if task.State() != StateFinished {
		t.Fatalf("expected StateFinished, got %v", task.State())
	}
	if string(task.Data()) != "hello" {
		t.Fatalf("got %q, want hello", task.Data())
	}
}

func TestChunkTaskAdvancesPastNotFound(t *testing.T) {
	id := objmodel.ComputeChunkId([]byte("data"))
	fetcher := &fakeFetcher{
		byChunk: map[objmodel.ChunkId][]byte{id: []byte("data")},
		fail: map[objmodel.ObjectId]*Error{
			deviceId(1): newNotFoundError(deviceId(1), "not here", nil),
		},
	}
	dctx := &Context{Sources: []SourceCandidate{{Device: deviceId(1)}, {Device: deviceId(2)}}}

	task := NewChunkTask(context.Background(), "g", id, dctx, fetcher)
	if err := task.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if string(task.Data()) != "data" {
		t.Fatalf("got %q, want data", task.Data())
	}
}

func TestChunkTaskAbortsOnPermissionDenied(t *testing.T) {
	id := objmodel.ComputeChunkId([]byte("secret"))
	fetcher := &fakeFetcher{
		byChunk: map[objmodel.ChunkId][]byte{id: []byte("secret")},
		fail: map[objmodel.ObjectId]*Error{
			deviceId(1): newPermissionDeniedError(deviceId(1), "denied"),
		},
	}
	dctx := &Context{Sources: []SourceCandidate{{Device: deviceId(1)}, {Device: deviceId(2)}}}

	task := NewChunkTask(context.Background(), "g", id, dctx, fetcher)
	err := task.Run()
	if err == nil {
		t.Fatalf("expected an error")
	}
	if task.State() != StateError {
		t.Fatalf("expected StateError, got %v", task.State())
	}
}

func TestChunkListTaskDownloadsAllInOrder(t *testing.T) {
	parts := [][]byte{[]byte("aaa"), []byte("bbb"), []byte("ccc")}
	ids := make([]objmodel.ChunkId, len(parts))
	byChunk := make(map[objmodel.ChunkId][]byte)
	for i, p := range parts {
		ids[i] = objmodel.ComputeChunkId(p)
		byChunk[ids[i]] = p
	}
	fetcher := &fakeFetcher{byChunk: byChunk}
	dctx := &Context{Sources: []SourceCandidate{{Device: deviceId(1)}}}

	task := NewChunkListTask(context.Background(), "g", ids, dctx, fetcher, 2)
	if err := task.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	results := task.Results()
	for i, p := range parts {
		if string(results[i]) != string(p) {
			t.Fatalf("index %d: got %q, want %q", i, results[i], p)
		}
	}
}

func TestDirTaskAggregatesChildren(t *testing.T) {
	parts := [][]byte{[]byte("file-one-bytes"), []byte("file-two-bytes")}
	var allIds [][]objmodel.ChunkId
	byChunk := make(map[objmodel.ChunkId][]byte)
	for _, p := range parts {
		id := objmodel.ComputeChunkId(p)
		byChunk[id] = p
		allIds = append(allIds, []objmodel.ChunkId{id})
	}
	fetcher := &fakeFetcher{byChunk: byChunk}
	dctx := &Context{Sources: []SourceCandidate{{Device: deviceId(1)}}}

	dir := NewDirTask(context.Background(), "root", objmodel.ObjectId{})
	for i := range parts {
		ft := NewFileTask(dir.Context(), "root", objmodel.ObjectId{}, allIds[i], dctx, fetcher, 1)
		dir.AddChild(ft)
	}

	if err := dir.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if dir.State() != StateFinished {
		t.Fatalf("expected StateFinished, got %v", dir.State())
	}
	for i, c := range dir.Children() {
		ft := c.(*FileTask)
		if string(ft.Bytes()) != string(parts[i]) {
			t.Fatalf("child %d: got %q, want %q", i, ft.Bytes(), parts[i])
		}
	}
}

func TestChunkListCacheReaderReadsAcrossChunkBoundary(t *testing.T) {
	parts := [][]byte{[]byte("0123"), []byte("4567"), []byte("89AB")}
	ids := make([]objmodel.ChunkId, len(parts))
	byChunk := make(map[objmodel.ChunkId][]byte)
	for i, p := range parts {
		ids[i] = objmodel.ComputeChunkId(p)
		byChunk[ids[i]] = p
	}
	fetcher := &fakeFetcher{byChunk: byChunk}
	dctx := &Context{Sources: []SourceCandidate{{Device: deviceId(1)}}}

	mgr, err := chunkstore.NewChunkManager(chunkstore.NewManager(1<<20, ""), 16)
	if err != nil {
		t.Fatalf("NewChunkManager: %v", err)
	}

	reader := NewChunkListCacheReader(ids, mgr, fetcher, dctx)

	buf := make([]byte, 6)
	n, err := reader.ReadAt(buf, 2)
	if err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if n != 6 {
		t.Fatalf("got n=%d, want 6", n)
	}
	want := "234567"
	if string(buf) != want {
		t.Fatalf("got %q, want %q", buf, want)
	}
}

func TestChunkListCacheReaderSequentialRead(t *testing.T) {
	p := []byte("sequential-read-bytes")
	id := objmodel.ComputeChunkId(p)
	fetcher := &fakeFetcher{byChunk: map[objmodel.ChunkId][]byte{id: p}}
	dctx := &Context{Sources: []SourceCandidate{{Device: deviceId(1)}}}

	mgr, err := chunkstore.NewChunkManager(chunkstore.NewManager(1<<20, ""), 16)
	if err != nil {
		t.Fatalf("NewChunkManager: %v", err)
	}
	reader := NewChunkListCacheReader([]objmodel.ChunkId{id}, mgr, fetcher, dctx)

	var got []byte
	buf := make([]byte, 5)
	for {
		n, err := reader.Read(buf)
		got = append(got, buf[:n]...)
		if err != nil {
			break
		}
	}
	if string(got) != string(p) {
		t.Fatalf("got %q, want %q", got, p)
	}
}

func TestDrainScorePrefersSlowerTask(t *testing.T) {
	fast := newBase(context.Background(), "g")
	fast.instantRate = 1000
	slow := newBase(context.Background(), "g")
	slow.instantRate = 10

	if slow.DrainScore() <= fast.DrainScore() {
		t.Fatalf("expected slower task to have a higher drain score: slow=%v fast=%v", slow.DrainScore(), fast.DrainScore())
	}
}

func TestErrorRetryable(t *testing.T) {
	cases := []struct {
		err  *Error
		want bool
	}{
		{newNotFoundError(deviceId(1), "x", nil), true},
		{newConnectFailedError(deviceId(1), "x", nil), true},
		{newPermissionDeniedError(deviceId(1), "x"), false},
	}
	for _, c := range cases {
		if c.err.Retryable() != c.want {
			t.Fatalf("%v: got Retryable()=%v, want %v", c.err, c.err.Retryable(), c.want)
		}
	}
	_ = fmt.Sprintf("%s", cases[0].err)
}
