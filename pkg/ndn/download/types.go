// Package download implements the receiving side of chunk transfer
// (§4.6): a tree of Task variants (chunk, chunk-list, file, directory)
// sharing a fair-share drain scheduler and a candidate-retry policy
// across sources.
package download

import (
	"fmt"
	"time"

	"github.com/buckyos/cyfs-ndn-core/pkg/objmodel"
)

// Kind tags which concrete Task variant a value is, dispatched like the
// tunnel establishment/wire Package hierarchy rather than through a type
// switch on unexported concrete types.
type Kind int

const (
	KindChunk Kind = iota
	KindChunkList
	KindFile
	KindDir
)

func (k Kind) String() string {
	switch k {
	case KindChunk:
		return "chunk"
	case KindChunkList:
		return "chunk-list"
	case KindFile:
		return "file"
	case KindDir:
		return "dir"
	default:
		return "unknown"
	}
}

// State is a Task's lifecycle position.
type State int

const (
	StateDownloading State = iota
	StatePaused
	StateFinished
	StateError
)

func (s State) String() string {
	switch s {
	case StateDownloading:
		return "downloading"
	case StatePaused:
		return "paused"
	case StateFinished:
		return "finished"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// CodecKind identifies how a source candidate serves bytes: as a
// continuous stream, as addressable ranges, or one discrete piece at a
// time (mirroring pkg/bdt/stream, a random-access protocol, and
// pkg/ndn/upload's per-call NextPiece shape, respectively).
type CodecKind int

const (
	CodecStream CodecKind = iota
	CodecRange
	CodecPiece
)

func (c CodecKind) String() string {
	switch c {
	case CodecStream:
		return "stream"
	case CodecRange:
		return "range"
	case CodecPiece:
		return "piece"
	default:
		return "unknown"
	}
}

// SourceCandidate is one device willing to serve content, reached via a
// particular codec.
type SourceCandidate struct {
	Device objmodel.ObjectId
	Codec  CodecKind
}

// Context carries the source candidates and referrer a download was
// started with, shared by every task in one task tree.
type Context struct {
	Sources []SourceCandidate
	Referer string
}

// ErrorKind classifies a download failure for retry purposes.
type ErrorKind int

const (
	ErrNotFound ErrorKind = iota
	ErrConnectFailed
	ErrPermissionDenied
)

// Error is a classified download failure: NotFound/ConnectFailed are
// retryable against the next SourceCandidate, PermissionDenied is fatal
// and aborts the whole task tree (§4.6 retry policy).
type Error struct {
	Kind     ErrorKind
	Device   objmodel.ObjectId
	Message  string
	Cause    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("download: %s: %s", e.kindString(), e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func (e *Error) kindString() string {
	switch e.Kind {
	case ErrNotFound:
		return "not-found"
	case ErrConnectFailed:
		return "connect-failed"
	case ErrPermissionDenied:
		return "permission-denied"
	default:
		return "unknown"
	}
}

// Retryable reports whether this error should advance to the next
// candidate rather than abort the task tree.
func (e *Error) Retryable() bool { return e.Kind != ErrPermissionDenied }

func newNotFoundError(device objmodel.ObjectId, msg string, cause error) *Error {
	return &Error{Kind: ErrNotFound, Device: device, Message: msg, Cause: cause}
}

func newConnectFailedError(device objmodel.ObjectId, msg string, cause error) *Error {
	return &Error{Kind: ErrConnectFailed, Device: device, Message: msg, Cause: cause}
}

func newPermissionDeniedError(device objmodel.ObjectId, msg string) *Error {
	return &Error{Kind: ErrPermissionDenied, Device: device, Message: msg}
}

// speedSample pairs a point-in-time instant rate with when it was taken,
// kept in a short rolling window to answer HistorySpeed().
type speedSample struct {
	at   time.Time
	rate float64
}
