// Package dispatch sits between a transport's framing layer and the PDU
// codec: it decides whether a decoded frame gets a response at all
// (broadcast read/write rules), converts codec errors into exception PDUs,
// and turns a codec panic into a SlaveDeviceFailure exception instead of
// taking the transport down with it.
//
// Grounded on the teacher's server/tcp_server.go dispatchRequest, extended
// with the broadcast and panic-recovery rules tcp_server.go never needed
// because Modbus TCP has no broadcast unit id.
package dispatch

import (
	"context"

	"go.uber.org/zap"

	"github.com/modbus-emu/slave/backend"
	"github.com/modbus-emu/slave/common"
	"github.com/modbus-emu/slave/pdu"
)

// writeFunctions is the set of function codes that mutate the backend;
// everything else is read-only. Read/Write Multiple Registers counts as a
// write since it mutates holding registers before it reads them back.
var writeFunctions = map[common.FunctionCode]bool{
	common.FuncWriteSingleCoil:            true,
	common.FuncWriteSingleRegister:        true,
	common.FuncWriteMultipleCoils:         true,
	common.FuncWriteMultipleRegisters:     true,
	common.FuncMaskWriteRegister:          true,
	common.FuncReadWriteMultipleRegisters: true,
}

// Dispatch drives the backend for one already-framed PDU and returns the
// response PDU to send, or nil if no response should be sent at all
// (broadcast requests never get one, per Modbus RTU/ASCII convention).
func Dispatch(ctx context.Context, request common.PDU, be backend.Backend, isBroadcast bool, logger *zap.Logger) *common.PDU {
	if isBroadcast {
		if writeFunctions[request.FunctionCode] {
			// Apply the write but never reply.
			safeHandle(ctx, request, be, logger)
		}
		// Broadcast reads are dropped entirely: no state change, no response.
		return nil
	}

	respData, err := safeHandle(ctx, request, be, logger)
	if err != nil {
		modbusErr, ok := err.(*common.ModbusError)
		if !ok {
			modbusErr = common.NewModbusError(request.FunctionCode, common.ExceptionServerDeviceFailure)
		}
		return &common.PDU{
			FunctionCode: modbusErr.FunctionCode | common.FunctionCode(common.ExceptionBit),
			Data:         []byte{byte(modbusErr.ExceptionCode)},
		}
	}

	return &common.PDU{
		FunctionCode: request.FunctionCode,
		Data:         respData,
	}
}

// safeHandle recovers a panicking backend so one misbehaving request can't
// take an entire transport's goroutine down with it.
func safeHandle(ctx context.Context, request common.PDU, be backend.Backend, logger *zap.Logger) (data []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			if logger != nil {
				logger.Error("backend panicked while handling request",
					zap.String("function", request.FunctionCode.String()),
					zap.Any("panic", r),
				)
			}
			err = common.NewModbusError(request.FunctionCode, common.ExceptionServerDeviceFailure)
		}
	}()
	data, err = pdu.Handle(ctx, request.FunctionCode, request.Data, be)
	if err != nil && logger != nil {
		logger.Debug("request rejected",
			zap.String("function", request.FunctionCode.String()),
			zap.Error(err),
		)
	}
	return data, err
}
