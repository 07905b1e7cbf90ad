package common

import (
	"errors"
	"fmt"
)

// Common errors
var (
	// Protocol constraint errors (related to Modbus specification)
	// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6 (Function Codes) - Various constraints
	ErrInvalidQuantity = errors.New("invalid quantity") // Quantity constraints from spec
	ErrInvalidAddress  = errors.New("invalid address")  // Address range constraints from spec

	// Framing-layer errors (server side): a frame could not be decoded at all,
	// as opposed to a ModbusError, which means the frame decoded fine but the
	// request itself is illegal.
	ErrFrameTooShort      = errors.New("frame too short")
	ErrInvalidProtocolID  = errors.New("invalid protocol identifier")
	ErrInvalidFrameLength = errors.New("invalid frame length")

	// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6 (MODBUS Function Codes)
	ErrInvalidFunction = errors.New("invalid function code") // Unsupported function code
)

// ModbusError represents an error from a Modbus exception response
// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 7 (Exception Responses)
// "When a Client sends a request to a Server device, it expects a normal response.
// One of four possible events can occur from the Master's perspective:
// ..."
// "If the Server returns an Exception Response, the Exception Code field contains
// the reason why the Server is unable to process the requested function."
type ModbusError struct {
	FunctionCode  FunctionCode  // Function code from the request (exception bit clear; set when the response is framed)
	ExceptionCode ExceptionCode // Exception code indicating the error reason
}

// Error implements the error interface
func (e *ModbusError) Error() string {
	return fmt.Sprintf("modbus: exception response: function: %s, exception code: %#x (%s)",
		e.FunctionCode, e.ExceptionCode, GetExceptionString(e.ExceptionCode))
}

// NewModbusError creates a new ModbusError
func NewModbusError(functionCode FunctionCode, exceptionCode ExceptionCode) *ModbusError {
	return &ModbusError{
		FunctionCode:  functionCode,
		ExceptionCode: exceptionCode,
	}
}

// GetExceptionString returns a human-readable description of an exception code
// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 7 (Exception Responses)
func GetExceptionString(exceptionCode ExceptionCode) string {
	switch exceptionCode {
	case ExceptionFunctionCodeNotSupported:
		// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 7.1
		return "function code not supported"
	case ExceptionDataAddressNotAvailable:
		// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 7.2
		return "data address not available"
	case ExceptionInvalidDataValue:
		// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 7.3
		return "invalid data value"
	case ExceptionServerDeviceFailure:
		// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 7.4
		return "server device failure"
	case ExceptionAcknowledge:
		// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 7.5
		return "acknowledge"
	case ExceptionServerDeviceBusy:
		// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 7.6
		return "server device busy"
	case ExceptionMemoryParityError:
		// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 7.8
		return "memory parity error"
	case ExceptionGatewayPathUnavailable:
		// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 7.9
		return "gateway path unavailable"
	case ExceptionGatewayTargetNoResponse:
		// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 7.10
		return "gateway target no response"
	default:
		return fmt.Sprintf("unknown exception code: %#x", exceptionCode)
	}
}
