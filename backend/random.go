package backend

import (
	"context"
	"math/rand"
	"sync"

	"github.com/modbus-emu/slave/common"
)

// deterministicSeed is fixed so that repeated runs of the same scenario
// against the random backend produce byte-identical traffic; the spec
// leaves the RNG source unspecified but requires reproducibility.
const deterministicSeed = 0x6D6F6462 // "modb" in ASCII, arbitrary but fixed

// Random is a stateless responder: every read fabricates fresh values of
// the requested quantity and every write is acknowledged without being
// recorded anywhere.
//
// Grounded loosely on the teacher's periodic register-update goroutine in
// cmd/server/main.go, which already treats backend values as generated
// rather than fixed; here every read generates instead of a ticker
// mutating a handful of addresses.
type Random struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandom returns a Random backend seeded deterministically.
func NewRandom() *Random {
	return &Random{rng: rand.New(rand.NewSource(deterministicSeed))}
}

func (r *Random) nextUint16() uint16 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return uint16(r.rng.Intn(1 << 16))
}

func (r *Random) nextBool() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Intn(2) == 1
}

// ReadCoils implements common.DataStore.
func (r *Random) ReadCoils(ctx context.Context, address common.Address, quantity common.Quantity) ([]common.CoilValue, error) {
	if quantity == 0 || quantity > common.MaxCoilCount {
		return nil, common.ErrInvalidQuantity
	}
	values := make([]common.CoilValue, quantity)
	for i := range values {
		values[i] = r.nextBool()
	}
	return values, nil
}

// ReadDiscreteInputs implements common.DataStore.
func (r *Random) ReadDiscreteInputs(ctx context.Context, address common.Address, quantity common.Quantity) ([]common.DiscreteInputValue, error) {
	if quantity == 0 || quantity > common.MaxCoilCount {
		return nil, common.ErrInvalidQuantity
	}
	values := make([]common.DiscreteInputValue, quantity)
	for i := range values {
		values[i] = r.nextBool()
	}
	return values, nil
}

// ReadHoldingRegisters implements common.DataStore.
func (r *Random) ReadHoldingRegisters(ctx context.Context, address common.Address, quantity common.Quantity) ([]common.RegisterValue, error) {
	if quantity == 0 || quantity > common.MaxRegisterCount {
		return nil, common.ErrInvalidQuantity
	}
	values := make([]common.RegisterValue, quantity)
	for i := range values {
		values[i] = r.nextUint16()
	}
	return values, nil
}

// ReadInputRegisters implements common.DataStore.
func (r *Random) ReadInputRegisters(ctx context.Context, address common.Address, quantity common.Quantity) ([]common.InputRegisterValue, error) {
	if quantity == 0 || quantity > common.MaxRegisterCount {
		return nil, common.ErrInvalidQuantity
	}
	values := make([]common.InputRegisterValue, quantity)
	for i := range values {
		values[i] = r.nextUint16()
	}
	return values, nil
}

// WriteSingleCoil acknowledges without recording state.
func (r *Random) WriteSingleCoil(ctx context.Context, address common.Address, value common.CoilValue) error {
	return nil
}

// WriteSingleRegister acknowledges without recording state.
func (r *Random) WriteSingleRegister(ctx context.Context, address common.Address, value common.RegisterValue) error {
	return nil
}

// WriteMultipleCoils acknowledges without recording state.
func (r *Random) WriteMultipleCoils(ctx context.Context, address common.Address, values []common.CoilValue) error {
	if len(values) == 0 || len(values) > common.MaxWriteCoilCount {
		return common.ErrInvalidQuantity
	}
	return nil
}

// WriteMultipleRegisters acknowledges without recording state.
func (r *Random) WriteMultipleRegisters(ctx context.Context, address common.Address, values []common.RegisterValue) error {
	if len(values) == 0 || len(values) > common.MaxWriteRegisterCount {
		return common.ErrInvalidQuantity
	}
	return nil
}

// ReadExceptionStatus returns a rotating pseudo-random byte.
func (r *Random) ReadExceptionStatus(ctx context.Context) (common.ExceptionStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return common.ExceptionStatus(r.rng.Intn(256)), nil
}

// MaskWriteRegister acknowledges without recording state.
func (r *Random) MaskWriteRegister(ctx context.Context, address common.Address, andMask, orMask uint16) error {
	return nil
}
