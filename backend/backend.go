// Package backend defines the contract a Modbus data source must satisfy to
// be driven by the dispatcher, and ships the two concrete backends this
// repository builds against: random and exchange.
package backend

import (
	"context"

	"github.com/modbus-emu/slave/common"
)

// Backend is the storage/data-generation contract the dispatcher drives.
// It extends common.DataStore's base read/write method set with the two
// supplemented function codes (Read Exception Status, Mask Write Register).
type Backend interface {
	common.DataStore

	// ReadExceptionStatus returns the 8-bit exception status register.
	ReadExceptionStatus(ctx context.Context) (common.ExceptionStatus, error)

	// MaskWriteRegister applies (current AND andMask) OR (orMask AND NOT andMask)
	// to the holding register at address.
	MaskWriteRegister(ctx context.Context, address common.Address, andMask, orMask uint16) error
}
