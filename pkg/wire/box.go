// Package wire implements the PackageBox framing of §4.5/§6: every datagram
// and every TCP record is a 10-byte binary header followed by ciphertext
// wrapping a canonical-CBOR package body. The parser is driven by a small
// two-state machine (Header, Body) over a rolling buffer so it works
// identically whether fed one UDP datagram at a time or a continuous TCP
// byte stream.
package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/buckyos/cyfs-ndn-core/pkg/constants"
)

// PackageBox is the outer wire envelope. Ciphertext is opaque at this layer;
// callers decrypt it with the tunnel's session key and CBOR-decode the
// plaintext into a concrete Package by Cmd.
type PackageBox struct {
	Version       byte
	Seq           uint16
	Cmd           CmdCode
	Ciphertext    []byte
}

// Encode serialises the header and ciphertext into a single wire record.
func (b *PackageBox) Encode() ([]byte, error) {
	if len(b.Ciphertext) > 0xFFFFFFFF {
		return nil, fmt.Errorf("wire: ciphertext too large: %d bytes", len(b.Ciphertext))
	}

	out := make([]byte, constants.PackageBoxHeaderSize+len(b.Ciphertext))
	out[0] = constants.PackageBoxMagic
	out[1] = b.Version
	binary.BigEndian.PutUint16(out[2:4], b.Seq)
	binary.BigEndian.PutUint16(out[4:6], uint16(b.Cmd))
	binary.BigEndian.PutUint32(out[6:10], uint32(len(b.Ciphertext)))
	copy(out[constants.PackageBoxHeaderSize:], b.Ciphertext)
	return out, nil
}

// DecodeHeader parses just the 10-byte header, returning the content length
// so the caller (or the Parser below) knows how many more bytes to read.
func DecodeHeader(buf []byte) (hdr PackageBox, contentLength uint32, err error) {
	if len(buf) < constants.PackageBoxHeaderSize {
		return PackageBox{}, 0, fmt.Errorf("wire: short header: %d bytes", len(buf))
	}
	if buf[0] != constants.PackageBoxMagic {
		return PackageBox{}, 0, fmt.Errorf("wire: bad magic 0x%02x", buf[0])
	}
	hdr.Version = buf[1]
	hdr.Seq = binary.BigEndian.Uint16(buf[2:4])
	hdr.Cmd = CmdCode(binary.BigEndian.Uint16(buf[4:6]))
	contentLength = binary.BigEndian.Uint32(buf[6:10])
	return hdr, contentLength, nil
}

// DecodeBox parses a complete header+ciphertext record, such as one UDP
// datagram.
func DecodeBox(buf []byte) (*PackageBox, error) {
	hdr, n, err := DecodeHeader(buf)
	if err != nil {
		return nil, err
	}
	total := constants.PackageBoxHeaderSize + int(n)
	if len(buf) < total {
		return nil, fmt.Errorf("wire: short record: need %d bytes, have %d", total, len(buf))
	}
	hdr.Ciphertext = append([]byte(nil), buf[constants.PackageBoxHeaderSize:total]...)
	return &hdr, nil
}

// parserState is the Parser's two-state machine position.
type parserState int

const (
	stateHeader parserState = iota
	stateBody
)

// Parser reassembles PackageBox records out of a byte stream that may
// deliver arbitrary chunks at a time (a TCP connection). Feed it bytes with
// Feed; it returns every box it could fully decode plus any leftover bytes
// it is still waiting on.
type Parser struct {
	state  parserState
	buf    []byte
	hdr    PackageBox
	needed uint32
}

// NewParser returns a Parser ready to receive bytes.
func NewParser() *Parser {
	return &Parser{state: stateHeader}
}

// Feed appends data to the parser's rolling buffer and extracts as many
// complete boxes as are available.
func (p *Parser) Feed(data []byte) ([]*PackageBox, error) {
	p.buf = append(p.buf, data...)

	var out []*PackageBox
	for {
		switch p.state {
		case stateHeader:
			if len(p.buf) < constants.PackageBoxHeaderSize {
				return out, nil
			}
			hdr, n, err := DecodeHeader(p.buf[:constants.PackageBoxHeaderSize])
			if err != nil {
				return out, err
			}
			p.hdr = hdr
			p.needed = n
			p.buf = p.buf[constants.PackageBoxHeaderSize:]
			p.state = stateBody
		case stateBody:
			if uint32(len(p.buf)) < p.needed {
				return out, nil
			}
			box := p.hdr
			box.Ciphertext = append([]byte(nil), p.buf[:p.needed]...)
			p.buf = p.buf[p.needed:]
			p.state = stateHeader
			out = append(out, &box)
		}
	}
}
