package sn

import (
	"context"
	"fmt"
	"net"

	"github.com/buckyos/cyfs-ndn-core/pkg/wire"
)

// UDPSender is the production Sender: it dials the SN's UDP endpoint fresh
// for every ping (no session to keep warm, since SN pings are
// unauthenticated single-datagram round trips) and waits for a matching
// SnPingResp or the context deadline, whichever comes first.
type UDPSender struct{}

// NewUDPSender returns a ready-to-use UDPSender.
func NewUDPSender() UDPSender { return UDPSender{} }

// SendPing implements Sender.
func (UDPSender) SendPing(ctx context.Context, target SNDescriptor, ping *wire.SnPing) (*wire.SnPingResp, error) {
	if len(target.Endpoints) == 0 {
		return nil, fmt.Errorf("sn: candidate %s has no endpoints", target.Id)
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", target.Endpoints[0])
	if err != nil {
		return nil, fmt.Errorf("sn: dial %s: %w", target.Endpoints[0], err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	ciphertext, err := wire.MarshalPackage(ping)
	if err != nil {
		return nil, fmt.Errorf("sn: marshal ping: %w", err)
	}
	box := &wire.PackageBox{Version: 1, Cmd: wire.CmdSnPing, Ciphertext: ciphertext}
	data, err := box.Encode()
	if err != nil {
		return nil, fmt.Errorf("sn: encode ping: %w", err)
	}
	if _, err := conn.Write(data); err != nil {
		return nil, fmt.Errorf("sn: send ping: %w", err)
	}

	buf := make([]byte, 4096)
	n, err := conn.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("sn: read ping response: %w", err)
	}
	respBox, err := wire.DecodeBox(buf[:n])
	if err != nil {
		return nil, fmt.Errorf("sn: decode ping response: %w", err)
	}
	if respBox.Cmd != wire.CmdSnPingResp {
		return nil, fmt.Errorf("sn: unexpected response cmd %v", respBox.Cmd)
	}
	var resp wire.SnPingResp
	if err := wire.UnmarshalPackage(respBox.Ciphertext, &resp); err != nil {
		return nil, fmt.Errorf("sn: unmarshal ping response: %w", err)
	}
	return &resp, nil
}
