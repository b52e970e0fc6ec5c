package wire

import "github.com/buckyos/cyfs-ndn-core/pkg/constants"

// CmdCode identifies the payload type carried inside a PackageBox.
// Codes partition into tunnel / sn / proxy / tcp-stream sub-spaces by their
// high byte, exactly as §4.5 describes; the dispatcher downcasts on that
// partition before matching the exact code.
type CmdCode uint16

const (
	CmdExchange CmdCode = 0x0001

	CmdSynTunnel    CmdCode = constants.CmdTunnelBase + 1
	CmdAckTunnel    CmdCode = constants.CmdTunnelBase + 2
	CmdAckAckTunnel CmdCode = constants.CmdTunnelBase + 3
	CmdPingTunnel   CmdCode = constants.CmdTunnelBase + 4
	CmdPingTunnelResp CmdCode = constants.CmdTunnelBase + 5
	CmdDatagram     CmdCode = constants.CmdTunnelBase + 6
	CmdSessionData  CmdCode = constants.CmdTunnelBase + 7
	CmdSessionDataAck CmdCode = constants.CmdTunnelBase + 8

	CmdSnCall       CmdCode = constants.CmdSnBase + 1
	CmdSnCallResp   CmdCode = constants.CmdSnBase + 2
	CmdSnCalled     CmdCode = constants.CmdSnBase + 3
	CmdSnCalledResp CmdCode = constants.CmdSnBase + 4
	CmdSnPing       CmdCode = constants.CmdSnBase + 5
	CmdSnPingResp   CmdCode = constants.CmdSnBase + 6

	CmdSynProxy CmdCode = constants.CmdProxyBase + 1
	CmdAckProxy CmdCode = constants.CmdProxyBase + 2

	CmdTcpSynConnection    CmdCode = constants.CmdTcpStreamBase + 1
	CmdTcpAckConnection    CmdCode = constants.CmdTcpStreamBase + 2
	CmdTcpAckAckConnection CmdCode = constants.CmdTcpStreamBase + 3
)

func (c CmdCode) IsExchange() bool    { return c == CmdExchange }
func (c CmdCode) IsTunnel() bool      { return c&0xFF00 == constants.CmdTunnelBase }
func (c CmdCode) IsSn() bool          { return c&0xFF00 == constants.CmdSnBase }
func (c CmdCode) IsProxy() bool       { return c&0xFF00 == constants.CmdProxyBase }
func (c CmdCode) IsTcpStream() bool   { return c&0xFF00 == constants.CmdTcpStreamBase }
