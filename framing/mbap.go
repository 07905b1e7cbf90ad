package framing

import (
	"encoding/binary"
	"io"

	"github.com/modbus-emu/slave/common"
)

// ReadMBAPFrame reads one MBAP-framed request or response from r: a 7-byte
// header (transaction ID, protocol ID, length, unit ID) followed by the PDU
// the length field promises. It blocks until a full frame is available or r
// returns an error, matching the teacher's per-connection read loop.
//
// Grounded on the teacher's server/tcp_server.go handleConnection loop and
// transport/request.go's Decode.
func ReadMBAPFrame(r io.Reader) (*Frame, error) {
	header := make([]byte, common.TCPHeaderLength)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}

	transactionID := common.TransactionID(binary.BigEndian.Uint16(header[0:2]))
	protocolID := common.ProtocolID(binary.BigEndian.Uint16(header[2:4]))
	length := binary.BigEndian.Uint16(header[4:6])
	unitID := common.UnitID(header[6])

	if protocolID != common.TCPProtocolIdentifier {
		return nil, common.ErrInvalidProtocolID
	}

	// length counts UnitID (already read) + FunctionCode + Data.
	if length < 2 || length > common.MaxPDULength+1 {
		return nil, common.ErrInvalidFrameLength
	}

	pdu := make([]byte, length-1)
	if _, err := io.ReadFull(r, pdu); err != nil {
		return nil, err
	}

	return &Frame{
		TransactionID: transactionID,
		UnitID:        unitID,
		PDU: common.PDU{
			FunctionCode: common.FunctionCode(pdu[0]),
			Data:         pdu[1:],
		},
	}, nil
}

// DecodeMBAPDatagram decodes a complete, already-received MBAP message, for
// transports like UDP where a whole datagram arrives in one read instead of
// a byte stream.
func DecodeMBAPDatagram(data []byte) (*Frame, error) {
	if len(data) < common.TCPHeaderLength+1 {
		return nil, common.ErrFrameTooShort
	}
	return ReadMBAPFrame(newByteReader(data))
}

// EncodeMBAPFrame renders f as a complete MBAP message: header followed by
// the PDU's function code and data.
//
// Grounded on transport/request.go's Encode/transport/response.go's Encode.
func EncodeMBAPFrame(f *Frame) []byte {
	length := uint16(1 + 1 + len(f.PDU.Data)) // UnitID + FunctionCode + Data

	out := make([]byte, 0, common.TCPHeaderLength+1+len(f.PDU.Data))
	out = appendUint16(out, uint16(f.TransactionID))
	out = appendUint16(out, uint16(common.TCPProtocolIdentifier))
	out = appendUint16(out, length)
	out = append(out, byte(f.UnitID))
	out = append(out, byte(f.PDU.FunctionCode))
	out = append(out, f.PDU.Data...)
	return out
}

func appendUint16(buf []byte, v uint16) []byte {
	return append(buf, byte(v>>8), byte(v))
}

// byteReader adapts a byte slice to io.Reader for reuse of ReadMBAPFrame by
// datagram transports.
type byteReader struct {
	buf []byte
	pos int
}

func newByteReader(buf []byte) *byteReader {
	return &byteReader{buf: buf}
}

func (b *byteReader) Read(p []byte) (int, error) {
	if b.pos >= len(b.buf) {
		return 0, io.EOF
	}
	n := copy(p, b.buf[b.pos:])
	b.pos += n
	return n, nil
}
