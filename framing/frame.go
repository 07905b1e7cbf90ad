// Package framing turns raw bytes arriving over a transport into a PDU plus
// addressing metadata, and turns an outgoing PDU back into bytes for that
// transport. MBAP (TCP/UDP) and RTU (serial) get their own codec in this
// package; both produce and consume the same Frame type so the dispatcher
// above them never needs to know which one is in play.
package framing

import "github.com/modbus-emu/slave/common"

// Frame is a decoded request or response, independent of whether it arrived
// framed as MBAP or RTU.
type Frame struct {
	// TransactionID is only meaningful for MBAP; RTU leaves it zero.
	TransactionID common.TransactionID
	// UnitID addresses a sub-device behind a gateway (MBAP) or the slave's
	// own address on the bus (RTU).
	UnitID common.UnitID
	PDU    common.PDU
}
