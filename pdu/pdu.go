// Package pdu implements the Modbus Protocol Data Unit codec: decoding
// request payloads and encoding response payloads for every function code
// this server supports, independent of whatever framing (MBAP or RTU)
// carried the PDU in.
//
// Grounded on the teacher's server/protocol_handler.go, lifted out of the
// TCP-only server so the same per-function logic can run over TCP, UDP,
// and serial RTU.
package pdu

import (
	"context"

	"github.com/modbus-emu/slave/backend"
	"github.com/modbus-emu/slave/common"
	"github.com/modbus-emu/slave/wire"
)

// Handle decodes a request PDU's data for the given function code, drives
// the backend, and returns the response PDU's data bytes. On protocol
// failure it returns a *common.ModbusError whose FunctionCode already has
// the exception bit clear (the caller sets it when framing the exception
// response).
func Handle(ctx context.Context, functionCode common.FunctionCode, data []byte, be backend.Backend) ([]byte, error) {
	switch functionCode {
	case common.FuncReadCoils:
		return handleReadBits(ctx, functionCode, data, common.MaxCoilCount, be.ReadCoils)
	case common.FuncReadDiscreteInputs:
		return handleReadBits(ctx, functionCode, data, common.MaxCoilCount, be.ReadDiscreteInputs)
	case common.FuncReadHoldingRegisters:
		return handleReadRegisters(ctx, functionCode, data, common.MaxRegisterCount, be.ReadHoldingRegisters)
	case common.FuncReadInputRegisters:
		return handleReadRegisters(ctx, functionCode, data, common.MaxRegisterCount, be.ReadInputRegisters)
	case common.FuncWriteSingleCoil:
		return handleWriteSingleCoil(ctx, data, be)
	case common.FuncWriteSingleRegister:
		return handleWriteSingleRegister(ctx, data, be)
	case common.FuncReadExceptionStatus:
		return handleReadExceptionStatus(ctx, data, be)
	case common.FuncWriteMultipleCoils:
		return handleWriteMultipleCoils(ctx, data, be)
	case common.FuncWriteMultipleRegisters:
		return handleWriteMultipleRegisters(ctx, data, be)
	case common.FuncMaskWriteRegister:
		return handleMaskWriteRegister(ctx, data, be)
	case common.FuncReadWriteMultipleRegisters:
		return handleReadWriteMultipleRegisters(ctx, data, be)
	case common.FuncReadDeviceIdentification:
		return handleReadDeviceIdentification(ctx, data)
	default:
		return nil, common.NewModbusError(functionCode, common.ExceptionFunctionCodeNotSupported)
	}
}

// handleReadBits covers Read Coils (0x01) and Read Discrete Inputs (0x02):
// both share a starting-address + quantity request and an LSB-first
// bit-packed response.
func handleReadBits(
	ctx context.Context,
	functionCode common.FunctionCode,
	data []byte,
	maxQuantity common.Quantity,
	readFunc func(context.Context, common.Address, common.Quantity) ([]bool, error),
) ([]byte, error) {
	if len(data) != 4 {
		return nil, common.NewModbusError(functionCode, common.ExceptionInvalidDataValue)
	}
	r := wire.NewReader(data)
	addrRaw, _ := r.Uint16()
	qtyRaw, _ := r.Uint16()
	address := common.Address(addrRaw)
	quantity := common.Quantity(qtyRaw)

	if quantity == 0 || quantity > maxQuantity {
		return nil, common.NewModbusError(functionCode, common.ExceptionInvalidDataValue)
	}
	if int(address)+int(quantity) > 1<<16 {
		return nil, common.NewModbusError(functionCode, common.ExceptionDataAddressNotAvailable)
	}

	values, err := readFunc(ctx, address, quantity)
	if err != nil {
		return nil, translateStoreError(functionCode, err)
	}

	packed := wire.PackBits(values)
	w := wire.NewWriter(1 + len(packed))
	w.Byte(byte(len(packed)))
	w.Bytes(packed)
	return w.Finish(), nil
}

// handleReadRegisters covers Read Holding Registers (0x03) and Read Input
// Registers (0x04).
func handleReadRegisters(
	ctx context.Context,
	functionCode common.FunctionCode,
	data []byte,
	maxQuantity common.Quantity,
	readFunc func(context.Context, common.Address, common.Quantity) ([]uint16, error),
) ([]byte, error) {
	if len(data) != 4 {
		return nil, common.NewModbusError(functionCode, common.ExceptionInvalidDataValue)
	}
	r := wire.NewReader(data)
	addrRaw, _ := r.Uint16()
	qtyRaw, _ := r.Uint16()
	address := common.Address(addrRaw)
	quantity := common.Quantity(qtyRaw)

	if quantity == 0 || quantity > maxQuantity {
		return nil, common.NewModbusError(functionCode, common.ExceptionInvalidDataValue)
	}
	if int(address)+int(quantity) > 1<<16 {
		return nil, common.NewModbusError(functionCode, common.ExceptionDataAddressNotAvailable)
	}

	values, err := readFunc(ctx, address, quantity)
	if err != nil {
		return nil, translateStoreError(functionCode, err)
	}

	w := wire.NewWriter(1 + len(values)*2)
	w.Byte(byte(len(values) * 2))
	for _, v := range values {
		w.Uint16(v)
	}
	return w.Finish(), nil
}

func handleWriteSingleCoil(ctx context.Context, data []byte, be backend.Backend) ([]byte, error) {
	fc := common.FuncWriteSingleCoil
	if len(data) != 4 {
		return nil, common.NewModbusError(fc, common.ExceptionInvalidDataValue)
	}
	r := wire.NewReader(data)
	addrRaw, _ := r.Uint16()
	valueRaw, _ := r.Uint16()
	address := common.Address(addrRaw)

	var value common.CoilValue
	switch valueRaw {
	case common.CoilOnU16:
		value = true
	case common.CoilOffU16:
		value = false
	default:
		return nil, common.NewModbusError(fc, common.ExceptionInvalidDataValue)
	}

	if err := be.WriteSingleCoil(ctx, address, value); err != nil {
		return nil, translateStoreError(fc, err)
	}
	return append([]byte(nil), data...), nil
}

func handleWriteSingleRegister(ctx context.Context, data []byte, be backend.Backend) ([]byte, error) {
	fc := common.FuncWriteSingleRegister
	if len(data) != 4 {
		return nil, common.NewModbusError(fc, common.ExceptionInvalidDataValue)
	}
	r := wire.NewReader(data)
	addrRaw, _ := r.Uint16()
	valueRaw, _ := r.Uint16()

	if err := be.WriteSingleRegister(ctx, common.Address(addrRaw), common.RegisterValue(valueRaw)); err != nil {
		return nil, translateStoreError(fc, err)
	}
	return append([]byte(nil), data...), nil
}

func handleWriteMultipleCoils(ctx context.Context, data []byte, be backend.Backend) ([]byte, error) {
	fc := common.FuncWriteMultipleCoils
	if len(data) < 5 {
		return nil, common.NewModbusError(fc, common.ExceptionInvalidDataValue)
	}
	r := wire.NewReader(data)
	addrRaw, _ := r.Uint16()
	qtyRaw, _ := r.Uint16()
	byteCount, _ := r.Byte()
	address := common.Address(addrRaw)
	quantity := common.Quantity(qtyRaw)

	if len(data) != 5+int(byteCount) {
		return nil, common.NewModbusError(fc, common.ExceptionInvalidDataValue)
	}
	if quantity == 0 || quantity > common.MaxWriteCoilCount {
		return nil, common.NewModbusError(fc, common.ExceptionInvalidDataValue)
	}
	if int(byteCount) != wire.ByteCountForBits(int(quantity)) {
		return nil, common.NewModbusError(fc, common.ExceptionInvalidDataValue)
	}
	if int(address)+int(quantity) > 1<<16 {
		return nil, common.NewModbusError(fc, common.ExceptionDataAddressNotAvailable)
	}

	payload, _ := r.Bytes(int(byteCount))
	values := wire.UnpackBits(payload, int(quantity))

	if err := be.WriteMultipleCoils(ctx, address, values); err != nil {
		return nil, translateStoreError(fc, err)
	}

	w := wire.NewWriter(4)
	w.Uint16(addrRaw)
	w.Uint16(qtyRaw)
	return w.Finish(), nil
}

func handleWriteMultipleRegisters(ctx context.Context, data []byte, be backend.Backend) ([]byte, error) {
	fc := common.FuncWriteMultipleRegisters
	if len(data) < 5 {
		return nil, common.NewModbusError(fc, common.ExceptionInvalidDataValue)
	}
	r := wire.NewReader(data)
	addrRaw, _ := r.Uint16()
	qtyRaw, _ := r.Uint16()
	byteCount, _ := r.Byte()
	address := common.Address(addrRaw)
	quantity := common.Quantity(qtyRaw)

	if len(data) != 5+int(byteCount) {
		return nil, common.NewModbusError(fc, common.ExceptionInvalidDataValue)
	}
	if quantity == 0 || quantity > common.MaxWriteRegisterCount {
		return nil, common.NewModbusError(fc, common.ExceptionInvalidDataValue)
	}
	if int(byteCount) != int(quantity)*2 {
		return nil, common.NewModbusError(fc, common.ExceptionInvalidDataValue)
	}
	if int(address)+int(quantity) > 1<<16 {
		return nil, common.NewModbusError(fc, common.ExceptionDataAddressNotAvailable)
	}

	values := make([]common.RegisterValue, quantity)
	for i := range values {
		v, _ := r.Uint16()
		values[i] = v
	}

	if err := be.WriteMultipleRegisters(ctx, address, values); err != nil {
		return nil, translateStoreError(fc, err)
	}

	w := wire.NewWriter(4)
	w.Uint16(addrRaw)
	w.Uint16(qtyRaw)
	return w.Finish(), nil
}

func handleMaskWriteRegister(ctx context.Context, data []byte, be backend.Backend) ([]byte, error) {
	fc := common.FuncMaskWriteRegister
	if len(data) != 6 {
		return nil, common.NewModbusError(fc, common.ExceptionInvalidDataValue)
	}
	r := wire.NewReader(data)
	addrRaw, _ := r.Uint16()
	andMask, _ := r.Uint16()
	orMask, _ := r.Uint16()

	if err := be.MaskWriteRegister(ctx, common.Address(addrRaw), andMask, orMask); err != nil {
		return nil, translateStoreError(fc, err)
	}
	return append([]byte(nil), data...), nil
}

func handleReadExceptionStatus(ctx context.Context, data []byte, be backend.Backend) ([]byte, error) {
	fc := common.FuncReadExceptionStatus
	if len(data) != 0 {
		return nil, common.NewModbusError(fc, common.ExceptionInvalidDataValue)
	}
	status, err := be.ReadExceptionStatus(ctx)
	if err != nil {
		return nil, translateStoreError(fc, err)
	}
	return []byte{byte(status)}, nil
}

func handleReadWriteMultipleRegisters(ctx context.Context, data []byte, be backend.Backend) ([]byte, error) {
	fc := common.FuncReadWriteMultipleRegisters
	if len(data) < 9 {
		return nil, common.NewModbusError(fc, common.ExceptionInvalidDataValue)
	}
	r := wire.NewReader(data)
	readAddrRaw, _ := r.Uint16()
	readQtyRaw, _ := r.Uint16()
	writeAddrRaw, _ := r.Uint16()
	writeQtyRaw, _ := r.Uint16()
	byteCount, _ := r.Byte()

	readAddress := common.Address(readAddrRaw)
	readQuantity := common.Quantity(readQtyRaw)
	writeAddress := common.Address(writeAddrRaw)
	writeQuantity := common.Quantity(writeQtyRaw)

	if len(data) != 9+int(byteCount) {
		return nil, common.NewModbusError(fc, common.ExceptionInvalidDataValue)
	}
	if readQuantity == 0 || readQuantity > common.MaxReadWriteReadCount ||
		writeQuantity == 0 || writeQuantity > common.MaxReadWriteWriteCount {
		return nil, common.NewModbusError(fc, common.ExceptionInvalidDataValue)
	}
	if int(byteCount) != int(writeQuantity)*2 {
		return nil, common.NewModbusError(fc, common.ExceptionInvalidDataValue)
	}
	if int(writeAddress)+int(writeQuantity) > 1<<16 || int(readAddress)+int(readQuantity) > 1<<16 {
		return nil, common.NewModbusError(fc, common.ExceptionDataAddressNotAvailable)
	}

	writeValues := make([]common.RegisterValue, writeQuantity)
	for i := range writeValues {
		v, _ := r.Uint16()
		writeValues[i] = v
	}

	// Ref: write precedes read within one invocation of this function code.
	if err := be.WriteMultipleRegisters(ctx, writeAddress, writeValues); err != nil {
		return nil, translateStoreError(fc, err)
	}

	readValues, err := be.ReadHoldingRegisters(ctx, readAddress, readQuantity)
	if err != nil {
		return nil, translateStoreError(fc, err)
	}

	w := wire.NewWriter(1 + len(readValues)*2)
	w.Byte(byte(len(readValues) * 2))
	for _, v := range readValues {
		w.Uint16(v)
	}
	return w.Finish(), nil
}

// deviceObjectValues are the fixed basic-conformity identification strings
// this server reports; streaming beyond one PDU is not implemented.
var deviceObjectValues = map[common.DeviceIDObjectCode]string{
	common.DeviceIDVendorName:         "modbus-emu",
	common.DeviceIDProductCode:        "SLAVE-EMU",
	common.DeviceIDMajorMinorRevision: "1.0",
}

func handleReadDeviceIdentification(ctx context.Context, data []byte) ([]byte, error) {
	fc := common.FuncReadDeviceIdentification
	if len(data) < 3 {
		return nil, common.NewModbusError(fc, common.ExceptionInvalidDataValue)
	}
	if common.MEIType(data[0]) != common.MEIReadDeviceID {
		return nil, common.NewModbusError(fc, common.ExceptionInvalidDataValue)
	}
	readDeviceIDCode := common.ReadDeviceIDCode(data[1])
	objectID := common.DeviceIDObjectCode(data[2])

	objectsToInclude := []common.DeviceIDObjectCode{
		common.DeviceIDVendorName,
		common.DeviceIDProductCode,
		common.DeviceIDMajorMinorRevision,
	}
	if readDeviceIDCode == common.ReadDeviceIDSpecificObject {
		objectsToInclude = []common.DeviceIDObjectCode{objectID}
	}

	var objects []common.DeviceIDObject
	for _, id := range objectsToInclude {
		if value, ok := deviceObjectValues[id]; ok {
			objects = append(objects, common.DeviceIDObject{
				ID:     id,
				Length: byte(len(value)),
				Value:  value,
			})
		}
	}

	identification := &common.DeviceIdentification{
		ReadDeviceIDCode: readDeviceIDCode,
		ConformityLevel:  0x01, // basic
		MoreFollows:      false, // the basic set always fits in one PDU
		NumberOfObjects:  byte(len(objects)),
		Objects:          objects,
	}
	return identification.Encode(), nil
}

// translateStoreError maps a backend-returned sentinel error to the Modbus
// exception code the dispatcher should frame. Any error not recognized here
// becomes a server device failure.
func translateStoreError(functionCode common.FunctionCode, err error) error {
	if err == common.ErrInvalidQuantity || err == common.ErrInvalidAddress {
		return common.NewModbusError(functionCode, common.ExceptionInvalidDataValue)
	}
	return common.NewModbusError(functionCode, common.ExceptionServerDeviceFailure)
}
