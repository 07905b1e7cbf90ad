package backend

import (
	"context"
	"sync"

	"github.com/modbus-emu/slave/common"
)

// tableSize is the full Modbus address space: every backend table holds
// exactly one entry per possible 16-bit address.
const tableSize = 1 << 16

// Exchange is a shared in-memory register bank. It is the integration point
// between independently connected masters: a write from one session is
// visible to a read from any other, across any transport.
//
// Grounded on the teacher's MemoryStore, but storage is four fixed
// full-address-space tables instead of sparse maps, per the exchange
// backend's shared-bank contract, and each table gets its own lock so that
// a read of coils never blocks a write of holding registers.
type Exchange struct {
	coilsMu sync.RWMutex
	coils   [tableSize]bool

	discreteMu sync.RWMutex
	discrete   [tableSize]bool

	holdingMu sync.RWMutex
	holding   [tableSize]uint16

	inputMu sync.RWMutex
	input   [tableSize]uint16

	statusMu sync.Mutex
	status   common.ExceptionStatus
}

// NewExchange returns an Exchange with every table zeroed.
func NewExchange() *Exchange {
	return &Exchange{}
}

func (e *Exchange) markWritten() {
	e.statusMu.Lock()
	e.status |= 0x01
	e.statusMu.Unlock()
}

// ReadCoils implements common.DataStore.
func (e *Exchange) ReadCoils(ctx context.Context, address common.Address, quantity common.Quantity) ([]common.CoilValue, error) {
	if quantity == 0 || quantity > common.MaxCoilCount {
		return nil, common.ErrInvalidQuantity
	}
	e.coilsMu.RLock()
	defer e.coilsMu.RUnlock()
	values := make([]common.CoilValue, quantity)
	for i := common.Quantity(0); i < quantity; i++ {
		values[i] = e.coils[address+common.Address(i)]
	}
	return values, nil
}

// ReadDiscreteInputs implements common.DataStore.
func (e *Exchange) ReadDiscreteInputs(ctx context.Context, address common.Address, quantity common.Quantity) ([]common.DiscreteInputValue, error) {
	if quantity == 0 || quantity > common.MaxCoilCount {
		return nil, common.ErrInvalidQuantity
	}
	e.discreteMu.RLock()
	defer e.discreteMu.RUnlock()
	values := make([]common.DiscreteInputValue, quantity)
	for i := common.Quantity(0); i < quantity; i++ {
		values[i] = e.discrete[address+common.Address(i)]
	}
	return values, nil
}

// ReadHoldingRegisters implements common.DataStore.
func (e *Exchange) ReadHoldingRegisters(ctx context.Context, address common.Address, quantity common.Quantity) ([]common.RegisterValue, error) {
	if quantity == 0 || quantity > common.MaxRegisterCount {
		return nil, common.ErrInvalidQuantity
	}
	e.holdingMu.RLock()
	defer e.holdingMu.RUnlock()
	values := make([]common.RegisterValue, quantity)
	for i := common.Quantity(0); i < quantity; i++ {
		values[i] = e.holding[address+common.Address(i)]
	}
	return values, nil
}

// ReadInputRegisters implements common.DataStore.
func (e *Exchange) ReadInputRegisters(ctx context.Context, address common.Address, quantity common.Quantity) ([]common.InputRegisterValue, error) {
	if quantity == 0 || quantity > common.MaxRegisterCount {
		return nil, common.ErrInvalidQuantity
	}
	e.inputMu.RLock()
	defer e.inputMu.RUnlock()
	values := make([]common.InputRegisterValue, quantity)
	for i := common.Quantity(0); i < quantity; i++ {
		values[i] = e.input[address+common.Address(i)]
	}
	return values, nil
}

// WriteSingleCoil implements common.DataStore.
func (e *Exchange) WriteSingleCoil(ctx context.Context, address common.Address, value common.CoilValue) error {
	e.coilsMu.Lock()
	e.coils[address] = value
	e.coilsMu.Unlock()
	e.markWritten()
	return nil
}

// WriteSingleRegister implements common.DataStore.
func (e *Exchange) WriteSingleRegister(ctx context.Context, address common.Address, value common.RegisterValue) error {
	e.holdingMu.Lock()
	e.holding[address] = value
	e.holdingMu.Unlock()
	e.markWritten()
	return nil
}

// WriteMultipleCoils implements common.DataStore.
func (e *Exchange) WriteMultipleCoils(ctx context.Context, address common.Address, values []common.CoilValue) error {
	if len(values) == 0 || len(values) > common.MaxWriteCoilCount {
		return common.ErrInvalidQuantity
	}
	e.coilsMu.Lock()
	for i, v := range values {
		e.coils[address+common.Address(i)] = v
	}
	e.coilsMu.Unlock()
	e.markWritten()
	return nil
}

// WriteMultipleRegisters implements common.DataStore.
func (e *Exchange) WriteMultipleRegisters(ctx context.Context, address common.Address, values []common.RegisterValue) error {
	if len(values) == 0 || len(values) > common.MaxWriteRegisterCount {
		return common.ErrInvalidQuantity
	}
	e.holdingMu.Lock()
	for i, v := range values {
		e.holding[address+common.Address(i)] = v
	}
	e.holdingMu.Unlock()
	e.markWritten()
	return nil
}

// ReadExceptionStatus returns a byte whose bit 0 is set if any write has
// occurred since the last read, then clears that bit: masters observe
// "has this bank been touched since I last asked", not lifetime history.
func (e *Exchange) ReadExceptionStatus(ctx context.Context) (common.ExceptionStatus, error) {
	e.statusMu.Lock()
	defer e.statusMu.Unlock()
	status := e.status
	e.status = 0
	return status, nil
}

// MaskWriteRegister applies (current AND andMask) OR (orMask AND NOT andMask)
// atomically under the holding-register table lock.
func (e *Exchange) MaskWriteRegister(ctx context.Context, address common.Address, andMask, orMask uint16) error {
	e.holdingMu.Lock()
	current := e.holding[address]
	e.holding[address] = (current & andMask) | (orMask &^ andMask)
	e.holdingMu.Unlock()
	e.markWritten()
	return nil
}
