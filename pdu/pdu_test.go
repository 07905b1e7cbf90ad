package pdu

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/modbus-emu/slave/backend"
	"github.com/modbus-emu/slave/common"
)

func TestHandleReadCoilsRoundTrip(t *testing.T) {
	ctx := context.Background()
	be := backend.NewExchange()
	require.NoError(t, be.WriteMultipleCoils(ctx, 0, []common.CoilValue{true, false, true, true, false, false, false, false, true}))

	resp, err := Handle(ctx, common.FuncReadCoils, []byte{0x00, 0x00, 0x00, 0x09}, be)
	require.NoError(t, err)
	require.Equal(t, []byte{0x02, 0x0D, 0x01}, resp)
}

func TestHandleReadCoilsZeroQuantityIsIllegalDataValue(t *testing.T) {
	ctx := context.Background()
	be := backend.NewExchange()

	_, err := Handle(ctx, common.FuncReadCoils, []byte{0x00, 0x00, 0x00, 0x00}, be)
	modbusErr, ok := err.(*common.ModbusError)
	require.True(t, ok)
	require.Equal(t, common.ExceptionInvalidDataValue, modbusErr.ExceptionCode)
}

func TestHandleReadHoldingRegistersAddressOverflow(t *testing.T) {
	ctx := context.Background()
	be := backend.NewExchange()

	_, err := Handle(ctx, common.FuncReadHoldingRegisters, []byte{0xFF, 0xFF, 0x00, 0x02}, be)
	modbusErr, ok := err.(*common.ModbusError)
	require.True(t, ok)
	require.Equal(t, common.ExceptionDataAddressNotAvailable, modbusErr.ExceptionCode)
}

func TestHandleWriteSingleCoilEchoesRequest(t *testing.T) {
	ctx := context.Background()
	be := backend.NewExchange()

	req := []byte{0x00, 0x0A, 0xFF, 0x00}
	resp, err := Handle(ctx, common.FuncWriteSingleCoil, req, be)
	require.NoError(t, err)
	require.Equal(t, req, resp)

	values, err := be.ReadCoils(ctx, 10, 1)
	require.NoError(t, err)
	require.Equal(t, []common.CoilValue{true}, values)
}

func TestHandleWriteSingleCoilRejectsIllegalValue(t *testing.T) {
	ctx := context.Background()
	be := backend.NewExchange()

	_, err := Handle(ctx, common.FuncWriteSingleCoil, []byte{0x00, 0x0A, 0x12, 0x34}, be)
	modbusErr, ok := err.(*common.ModbusError)
	require.True(t, ok)
	require.Equal(t, common.ExceptionInvalidDataValue, modbusErr.ExceptionCode)
}

func TestHandleWriteMultipleRegistersThenReadBack(t *testing.T) {
	ctx := context.Background()
	be := backend.NewExchange()

	req := []byte{0x00, 0x05, 0x00, 0x02, 0x04, 0x00, 0x2A, 0x00, 0x2B}
	resp, err := Handle(ctx, common.FuncWriteMultipleRegisters, req, be)
	require.NoError(t, err)
	require.Equal(t, []byte{0x00, 0x05, 0x00, 0x02}, resp)

	values, err := be.ReadHoldingRegisters(ctx, 5, 2)
	require.NoError(t, err)
	require.Equal(t, []common.RegisterValue{0x2A, 0x2B}, values)
}

func TestHandleWriteMultipleRegistersByteCountMismatch(t *testing.T) {
	ctx := context.Background()
	be := backend.NewExchange()

	_, err := Handle(ctx, common.FuncWriteMultipleRegisters, []byte{0x00, 0x05, 0x00, 0x02, 0x03, 0x00, 0x2A, 0x00}, be)
	modbusErr, ok := err.(*common.ModbusError)
	require.True(t, ok)
	require.Equal(t, common.ExceptionInvalidDataValue, modbusErr.ExceptionCode)
}

func TestHandleMaskWriteRegister(t *testing.T) {
	ctx := context.Background()
	be := backend.NewExchange()
	require.NoError(t, be.WriteSingleRegister(ctx, 10, 0x0012))

	req := []byte{0x00, 0x0A, 0x00, 0xF2, 0x00, 0x25}
	resp, err := Handle(ctx, common.FuncMaskWriteRegister, req, be)
	require.NoError(t, err)
	require.Equal(t, req, resp)

	values, err := be.ReadHoldingRegisters(ctx, 10, 1)
	require.NoError(t, err)
	require.Equal(t, common.RegisterValue(0x17), values[0])
}

func TestHandleReadExceptionStatus(t *testing.T) {
	ctx := context.Background()
	be := backend.NewExchange()

	resp, err := Handle(ctx, common.FuncReadExceptionStatus, nil, be)
	require.NoError(t, err)
	require.Equal(t, []byte{0x00}, resp)

	require.NoError(t, be.WriteSingleCoil(ctx, 0, true))
	resp, err = Handle(ctx, common.FuncReadExceptionStatus, nil, be)
	require.NoError(t, err)
	require.Equal(t, []byte{0x01}, resp)
}

func TestHandleUnsupportedFunctionCode(t *testing.T) {
	ctx := context.Background()
	be := backend.NewExchange()

	_, err := Handle(ctx, common.FunctionCode(0x09), nil, be)
	modbusErr, ok := err.(*common.ModbusError)
	require.True(t, ok)
	require.Equal(t, common.ExceptionFunctionCodeNotSupported, modbusErr.ExceptionCode)
}

func TestHandleReadWriteMultipleRegistersRoundTrip(t *testing.T) {
	ctx := context.Background()
	be := backend.NewExchange()

	// read addr=5 qty=2, write addr=5 qty=2 bytes=4, values 0x002A 0x002B
	req := []byte{0x00, 0x05, 0x00, 0x02, 0x00, 0x05, 0x00, 0x02, 0x04, 0x00, 0x2A, 0x00, 0x2B}
	resp, err := Handle(ctx, common.FuncReadWriteMultipleRegisters, req, be)
	require.NoError(t, err)
	require.Equal(t, []byte{0x04, 0x00, 0x2A, 0x00, 0x2B}, resp)
}

func TestHandleReadWriteMultipleRegistersByteCountMismatch(t *testing.T) {
	ctx := context.Background()
	be := backend.NewExchange()

	// writeQuantity=2 demands byteCount=4, but byteCount here is 2.
	req := []byte{0x00, 0x05, 0x00, 0x02, 0x00, 0x05, 0x00, 0x02, 0x02, 0x00, 0x2A}
	_, err := Handle(ctx, common.FuncReadWriteMultipleRegisters, req, be)
	modbusErr, ok := err.(*common.ModbusError)
	require.True(t, ok)
	require.Equal(t, common.ExceptionInvalidDataValue, modbusErr.ExceptionCode)
}

func TestHandleReadWriteMultipleRegistersWriteAddressOverflow(t *testing.T) {
	ctx := context.Background()
	be := backend.NewExchange()

	// writeAddress=0xFFFF + writeQuantity=2 wraps past the 16-bit address space.
	req := []byte{0x00, 0x00, 0x00, 0x01, 0xFF, 0xFF, 0x00, 0x02, 0x04, 0x00, 0x01, 0x00, 0x02}
	_, err := Handle(ctx, common.FuncReadWriteMultipleRegisters, req, be)
	modbusErr, ok := err.(*common.ModbusError)
	require.True(t, ok)
	require.Equal(t, common.ExceptionDataAddressNotAvailable, modbusErr.ExceptionCode)
}

func TestHandleReadWriteMultipleRegistersReadAddressOverflow(t *testing.T) {
	ctx := context.Background()
	be := backend.NewExchange()

	// readAddress=0xFFFF + readQuantity=2 wraps past the 16-bit address space.
	req := []byte{0xFF, 0xFF, 0x00, 0x02, 0x00, 0x00, 0x00, 0x01, 0x02, 0x00, 0x01}
	_, err := Handle(ctx, common.FuncReadWriteMultipleRegisters, req, be)
	modbusErr, ok := err.(*common.ModbusError)
	require.True(t, ok)
	require.Equal(t, common.ExceptionDataAddressNotAvailable, modbusErr.ExceptionCode)
}

func TestHandleReadWriteMultipleRegistersWriteAppliedBeforeRead(t *testing.T) {
	ctx := context.Background()
	be := backend.NewExchange()
	require.NoError(t, be.WriteSingleRegister(ctx, 5, 0x0099))

	// read addr=5 qty=1 overlaps the address this same request writes.
	req := []byte{0x00, 0x05, 0x00, 0x01, 0x00, 0x05, 0x00, 0x01, 0x02, 0x00, 0x2A}
	resp, err := Handle(ctx, common.FuncReadWriteMultipleRegisters, req, be)
	require.NoError(t, err)
	require.Equal(t, []byte{0x02, 0x00, 0x2A}, resp, "read must observe the value this same request just wrote")
}

func TestHandleReadDeviceIdentificationBasic(t *testing.T) {
	ctx := context.Background()
	be := backend.NewExchange()

	req := []byte{0x0E, byte(common.ReadDeviceIDBasicStream), 0x00}
	resp, err := Handle(ctx, common.FuncReadDeviceIdentification, req, be)
	require.NoError(t, err)
	require.Equal(t, byte(common.MEIReadDeviceID), resp[0])
	require.Equal(t, byte(3), resp[5]) // three basic objects reported
}
