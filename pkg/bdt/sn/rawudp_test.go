package sn

import (
	"net"
	"testing"
	"time"

	"github.com/buckyos/cyfs-ndn-core/pkg/objmodel"
	"github.com/buckyos/cyfs-ndn-core/pkg/wire"
)

// rawUDPListener is a bare UDP socket used by tests to play both sides of
// the SN wire protocol without going through PingClient or UDPSender.
type rawUDPListener struct {
	conn *net.UDPConn
}

func newRawUDPListener(t *testing.T) (*rawUDPListener, error) {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	if err != nil {
		return nil, err
	}
	return &rawUDPListener{conn: conn}, nil
}

func (l *rawUDPListener) sendPing(to string, device objmodel.ObjectId) error {
	return l.send(to, &wire.SnPing{DeviceId: device.Bytes(), SeqNo: 1})
}

func (l *rawUDPListener) sendCall(to string, from, target objmodel.ObjectId) error {
	return l.send(to, &wire.SnCall{FromDeviceId: from.Bytes(), ToDeviceId: target.Bytes(), SeqNo: 1})
}

func (l *rawUDPListener) send(to string, p wire.Package) error {
	addr, err := net.ResolveUDPAddr("udp", to)
	if err != nil {
		return err
	}
	ciphertext, err := wire.MarshalPackage(p)
	if err != nil {
		return err
	}
	box := &wire.PackageBox{Version: 1, Cmd: p.CmdCode(), Ciphertext: ciphertext}
	data, err := box.Encode()
	if err != nil {
		return err
	}
	_, err = l.conn.WriteTo(data, addr)
	return err
}

func (l *rawUDPListener) readBox(timeout time.Duration) (*wire.PackageBox, error) {
	_ = l.conn.SetReadDeadline(time.Now().Add(timeout))
	buf := make([]byte, 4096)
	n, _, err := l.conn.ReadFrom(buf)
	if err != nil {
		return nil, err
	}
	return wire.DecodeBox(buf[:n])
}

func (l *rawUDPListener) Close() error { return l.conn.Close() }
