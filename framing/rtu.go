package framing

import (
	"io"

	"github.com/modbus-emu/slave/common"
)

// fixedDataLength returns the number of bytes following the two-byte
// address+function-code header for function codes whose request size never
// varies, or false for the write-multiple/read-write functions whose size
// depends on a byte-count field further into the frame.
//
// Grounded on other_examples rinzlerlabs-gomodbus's RTU transport read
// loop, which special-cases exactly this same set of function codes.
func fixedDataLength(fc common.FunctionCode) (int, bool) {
	switch fc {
	case common.FuncReadCoils, common.FuncReadDiscreteInputs,
		common.FuncReadHoldingRegisters, common.FuncReadInputRegisters,
		common.FuncWriteSingleCoil, common.FuncWriteSingleRegister:
		return 4, true // starting address (2) + quantity-or-value (2)
	case common.FuncReadExceptionStatus:
		return 0, true
	case common.FuncMaskWriteRegister:
		return 6, true // address (2) + AND mask (2) + OR mask (2)
	case common.FuncReadDeviceIdentification:
		return 3, true // MEI type (1) + read device ID code (1) + object ID (1)
	default:
		return 0, false
	}
}

// ReadRTUFrame reads one length-inferred RTU frame from r: slave address
// and function code first, then enough of the rest to know the total frame
// length, validating the CRC before returning. A CRC or byte-count mismatch
// means the stream is no longer frame-aligned; ReadRTUFrame discards the
// bytes read so far and starts over rather than returning garbage.
//
// Grounded on other_examples rinzlerlabs-gomodbus's modbusRTUTransport
// ReadRequest.
func ReadRTUFrame(r io.Reader) (*Frame, error) {
	for {
		header := make([]byte, 2)
		if _, err := io.ReadFull(r, header); err != nil {
			return nil, err
		}
		address := header[0]
		fc := common.FunctionCode(header[1])

		var body []byte
		if n, ok := fixedDataLength(fc); ok {
			rest := make([]byte, n+2) // data + CRC
			if _, err := io.ReadFull(r, rest); err != nil {
				return nil, err
			}
			body = rest
		} else if fc == common.FuncWriteMultipleCoils || fc == common.FuncWriteMultipleRegisters {
			prefix := make([]byte, 5) // address(2) + quantity(2) + byteCount(1)
			if _, err := io.ReadFull(r, prefix); err != nil {
				return nil, err
			}
			quantity := int(prefix[2])<<8 | int(prefix[3])
			byteCount := int(prefix[4])
			wantBytes := byteCount
			if fc == common.FuncWriteMultipleRegisters {
				wantBytes = quantity * 2
			} else {
				wantBytes = (quantity + 7) / 8
			}
			if wantBytes != byteCount {
				continue // misaligned: resync on the next header
			}
			rest := make([]byte, byteCount+2)
			if _, err := io.ReadFull(r, rest); err != nil {
				return nil, err
			}
			body = append(prefix, rest...)
		} else if fc == common.FuncReadWriteMultipleRegisters {
			prefix := make([]byte, 9) // readAddr+readQty+writeAddr+writeQty+byteCount
			if _, err := io.ReadFull(r, prefix); err != nil {
				return nil, err
			}
			writeQuantity := int(prefix[5])<<8 | int(prefix[6])
			byteCount := int(prefix[8])
			if byteCount != writeQuantity*2 {
				continue
			}
			rest := make([]byte, byteCount+2)
			if _, err := io.ReadFull(r, rest); err != nil {
				return nil, err
			}
			body = append(prefix, rest...)
		} else {
			// No way to infer a length for a function code this server does
			// not implement; drop the connection's framing state entirely.
			return nil, common.ErrInvalidFunction
		}

		frame := append([]byte{address, byte(fc)}, body...)
		if !checkCRC(frame) {
			continue
		}

		pduData := frame[2 : len(frame)-2]
		return &Frame{
			UnitID: common.UnitID(address),
			PDU: common.PDU{
				FunctionCode: fc,
				Data:         pduData,
			},
		}, nil
	}
}

// EncodeRTUFrame renders f as address + function code + data, followed by
// its CRC-16, low byte first.
func EncodeRTUFrame(f *Frame) []byte {
	out := make([]byte, 0, 2+len(f.PDU.Data)+2)
	out = append(out, byte(f.UnitID), byte(f.PDU.FunctionCode))
	out = append(out, f.PDU.Data...)
	return appendCRC(out)
}
