// Package constants defines cross-cutting protocol, timing and size
// constants shared by every subsystem.
package constants

import "time"

// SN k-bucket configuration (§4.5 "SN client", §9 Kademlia bucketing)
const (
	SNKBucketSize  = 10
	SNKBucketCount = 256
	DHTAlpha       = 3
)

// Timing configuration
const (
	// Last-access batching (§4.3): flush an entry once resident >=10 minutes,
	// periodic flusher runs every minute.
	LastAccessFlushAge  = 10 * time.Minute
	LastAccessFlushTick = 1 * time.Minute

	// SN offline retry cadence (§4.9)
	SNOfflineRetryInterval = 30 * time.Second

	// SN keepalive ping cadence while Online, and the timeout before a
	// single ping attempt is considered lost (§4.5 "SN client")
	SNPingInterval = 25 * time.Second
	SNPingTimeout  = 5 * time.Second

	// Cache fail-cache back-off cap (§7 "Retry policy")
	FailCacheMaxBackoff = 5 * time.Minute

	// Idempotent RPC retry back-off base and cap (§7)
	RPCRetryBase = 2 * time.Second
	RPCRetryCap  = 64 * time.Second

	// Maximum tolerated clock skew for frame timestamps
	MaxClockSkew = 120 * time.Second
)

// Size configuration
const (
	// Default chunk size and concurrent fetch fan-out (§4.6)
	DefaultChunkSize     = 1024 * 1024 // 1 MiB
	ConcurrentChunkFetch = 4

	// Path link resolution depth cap (§3 "Path meta", §9 design note)
	MaxPathLinkDepth = 32

	// Default object-meta referer resolution depth
	DefaultObjectMetaDepth = 8
)

// Protocol configuration
const (
	ProtocolVersion = 1

	DefaultBDTPort = 9000
	DefaultSNPort  = 9001

	// DefaultQUICPort is the QUIC transport's default port; the TCP
	// transport reports the same number.
	DefaultQUICPort = 9002

	HashAlgorithm = "blake3-256"
)

// PackageBox header magic and layout (§4.5, §6)
const (
	PackageBoxMagic      byte = 0x88
	PackageBoxHeaderSize      = 10 // magic(1) + version(1) + seq(2) + cmd(2) + content_length(4)
)

// Cmd code sub-space bases (§4.5 "Cmd codes partition")
const (
	CmdTunnelBase    = 0x0100
	CmdSnBase        = 0x0200
	CmdProxyBase     = 0x0300
	CmdTcpStreamBase = 0x0400
)

// ErrorKind enumerates the protocol's error taxonomy (non-exhaustive).
type ErrorKind uint16

const (
	ErrInvalidParam ErrorKind = iota + 1
	ErrInvalidData
	ErrInvalidFormat
	ErrNotFound
	ErrAlreadyExists
	ErrOutOfLimit
	ErrUnmatch
	ErrPermissionDenied
	ErrReject
	ErrIgnored
	ErrTimeout
	ErrIoError
	ErrConnectFailed
	ErrConnectionReset
	ErrNotSupport
	ErrInternalError
	ErrAborted
	ErrFailed
)

func (k ErrorKind) String() string {
	switch k {
	case ErrInvalidParam:
		return "InvalidParam"
	case ErrInvalidData:
		return "InvalidData"
	case ErrInvalidFormat:
		return "InvalidFormat"
	case ErrNotFound:
		return "NotFound"
	case ErrAlreadyExists:
		return "AlreadyExists"
	case ErrOutOfLimit:
		return "OutOfLimit"
	case ErrUnmatch:
		return "Unmatch"
	case ErrPermissionDenied:
		return "PermissionDenied"
	case ErrReject:
		return "Reject"
	case ErrIgnored:
		return "Ignored"
	case ErrTimeout:
		return "Timeout"
	case ErrIoError:
		return "IoError"
	case ErrConnectFailed:
		return "ConnectFailed"
	case ErrConnectionReset:
		return "ConnectionReset"
	case ErrNotSupport:
		return "NotSupport"
	case ErrInternalError:
		return "InternalError"
	case ErrAborted:
		return "Aborted"
	case ErrFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}
