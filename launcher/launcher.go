package launcher

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/modbus-emu/slave/backend"
	"github.com/modbus-emu/slave/transport"
)

// server is the lifecycle every transport.*Server already implements.
type server interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	IsRunning() bool
}

// Fleet is a set of transports all driving the same backend, started and
// stopped together.
type Fleet struct {
	servers []server
	logger  *zap.Logger
}

// Build instantiates one transport per descriptor, all sharing be.
func Build(descriptors []Descriptor, be backend.Backend, logger *zap.Logger) (*Fleet, error) {
	if len(descriptors) == 0 {
		return nil, fmt.Errorf("no transports given")
	}

	fleet := &Fleet{logger: logger}
	for _, d := range descriptors {
		switch d.Kind {
		case KindTCP:
			fleet.servers = append(fleet.servers, transport.NewTCPServer(d.Address, be, logger))
		case KindUDP:
			fleet.servers = append(fleet.servers, transport.NewUDPServer(d.Address, be, logger))
		case KindSerial:
			fleet.servers = append(fleet.servers, transport.NewSerialServer(d.Path, d.Mode, d.UnitAddr, be, logger))
		default:
			return nil, fmt.Errorf("unknown descriptor kind %d", d.Kind)
		}
	}
	return fleet, nil
}

// Start brings up every transport in the fleet. If one fails, every
// transport started so far is stopped again before the error is returned.
func (f *Fleet) Start(ctx context.Context) error {
	started := make([]server, 0, len(f.servers))
	for _, s := range f.servers {
		if err := s.Start(ctx); err != nil {
			for _, up := range started {
				up.Stop(ctx)
			}
			return err
		}
		started = append(started, s)
	}
	return nil
}

// Stop brings down every transport in the fleet, collecting (not stopping
// on) the first error encountered so every transport gets a chance to close.
func (f *Fleet) Stop(ctx context.Context) error {
	var firstErr error
	for _, s := range f.servers {
		if err := s.Stop(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
