package dispatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/modbus-emu/slave/backend"
	"github.com/modbus-emu/slave/common"
)

func TestDispatchUnknownFunctionIsIllegalFunction(t *testing.T) {
	ctx := context.Background()
	be := backend.NewExchange()

	resp := Dispatch(ctx, common.PDU{FunctionCode: 0x09}, be, false, nil)
	require.NotNil(t, resp)
	require.Equal(t, common.FunctionCode(0x09)|0x80, resp.FunctionCode)
	require.Equal(t, []byte{byte(common.ExceptionFunctionCodeNotSupported)}, resp.Data)
}

func TestDispatchEchoesFunctionCodeOnSuccess(t *testing.T) {
	ctx := context.Background()
	be := backend.NewExchange()

	resp := Dispatch(ctx, common.PDU{
		FunctionCode: common.FuncReadHoldingRegisters,
		Data:         []byte{0x00, 0x00, 0x00, 0x02},
	}, be, false, nil)
	require.NotNil(t, resp)
	require.Equal(t, common.FuncReadHoldingRegisters, resp.FunctionCode)
	require.Equal(t, []byte{0x04, 0x00, 0x00, 0x00, 0x00}, resp.Data)
}

func TestDispatchBroadcastWriteAppliesWithNoResponse(t *testing.T) {
	ctx := context.Background()
	be := backend.NewExchange()

	resp := Dispatch(ctx, common.PDU{
		FunctionCode: common.FuncWriteSingleRegister,
		Data:         []byte{0x00, 0x05, 0x00, 0x2A},
	}, be, true, nil)
	require.Nil(t, resp)

	values, err := be.ReadHoldingRegisters(ctx, 5, 1)
	require.NoError(t, err)
	require.Equal(t, common.RegisterValue(0x2A), values[0])
}

func TestDispatchBroadcastReadIsDroppedWithNoStateChange(t *testing.T) {
	ctx := context.Background()
	be := backend.NewExchange()

	resp := Dispatch(ctx, common.PDU{
		FunctionCode: common.FuncReadHoldingRegisters,
		Data:         []byte{0x00, 0x00, 0x00, 0x02},
	}, be, true, nil)
	require.Nil(t, resp)
}

func TestDispatchAddressOverflowIsIllegalDataAddress(t *testing.T) {
	ctx := context.Background()
	be := backend.NewExchange()

	resp := Dispatch(ctx, common.PDU{
		FunctionCode: common.FuncReadHoldingRegisters,
		Data:         []byte{0xFF, 0xFF, 0x00, 0x02},
	}, be, false, nil)
	require.NotNil(t, resp)
	require.Equal(t, common.FuncReadHoldingRegisters|0x80, resp.FunctionCode)
	require.Equal(t, []byte{byte(common.ExceptionDataAddressNotAvailable)}, resp.Data)
}
