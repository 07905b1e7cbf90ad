package transport

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"

	"github.com/modbus-emu/slave/backend"
	"github.com/modbus-emu/slave/common"
	"github.com/modbus-emu/slave/dispatch"
	"github.com/modbus-emu/slave/framing"
)

// Port is the subset of go.bug.st/serial.Port the server drives. It exists
// as its own interface so tests can substitute an in-memory pipe instead of
// opening a real device.
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
}

// SerialServer speaks Modbus RTU over a real or virtual serial port: one
// goroutine, strictly half-duplex (a request is fully read and answered
// before the next one is attempted), slave-address filtering with the
// broadcast convention (address 0 is processed but never answered).
//
// Grounded on other_examples lumberbarons-modbus's internal/simulator RTU
// server loop (readFrame/handleRequest/slave-id-or-broadcast filtering);
// the io.ReadWriteCloser seam for the open port itself follows
// hootrhino-gomodbus's FreeFrameTransport, which takes a connection rather
// than opening one so it can be driven over any transport, serial included.
type SerialServer struct {
	path     string
	mode     *serial.Mode
	unitAddr common.UnitID
	be       backend.Backend
	logger   *zap.Logger
	port     Port

	mutex    sync.RWMutex
	running  bool
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewSerialServer returns an RTU transport that will open path with mode
// and answer only to unitAddr (plus broadcasts to address 0).
func NewSerialServer(path string, mode *serial.Mode, unitAddr common.UnitID, be backend.Backend, logger *zap.Logger) *SerialServer {
	return &SerialServer{path: path, mode: mode, unitAddr: unitAddr, be: be, logger: logger}
}

// NewSerialServerWithPort wraps an already-open Port instead of opening
// path itself, for driving the server over a virtual or in-memory link.
func NewSerialServerWithPort(port Port, unitAddr common.UnitID, be backend.Backend, logger *zap.Logger) *SerialServer {
	return &SerialServer{port: port, unitAddr: unitAddr, be: be, logger: logger}
}

// Start opens the port (if one wasn't injected already) and begins serving
// in the background.
func (s *SerialServer) Start(ctx context.Context) error {
	s.mutex.Lock()
	if s.running {
		s.mutex.Unlock()
		return fmt.Errorf("serial server already running")
	}

	if s.port == nil {
		port, err := serial.Open(s.path, s.mode)
		if err != nil {
			s.mutex.Unlock()
			return err
		}
		port.SetReadTimeout(500 * time.Millisecond)
		s.port = port
	}

	s.running = true
	s.stopChan = make(chan struct{})
	s.doneChan = make(chan struct{})
	s.mutex.Unlock()

	s.logger.Info("modbus rtu server started", zap.String("path", s.path), zap.Uint8("unit", uint8(s.unitAddr)))
	go s.serveLoop(ctx)
	return nil
}

// Stop closes the port and waits for the serve loop to exit.
func (s *SerialServer) Stop(ctx context.Context) error {
	s.mutex.Lock()
	if !s.running {
		s.mutex.Unlock()
		return nil
	}
	close(s.stopChan)
	s.port.Close()
	s.running = false
	done := s.doneChan
	s.mutex.Unlock()

	select {
	case <-done:
	case <-time.After(time.Second):
		s.logger.Warn("rtu server stop timed out waiting for the read loop", zap.String("path", s.path))
	}
	s.logger.Info("modbus rtu server stopped", zap.String("path", s.path))
	return nil
}

// IsRunning reports whether Start has been called without a matching Stop.
func (s *SerialServer) IsRunning() bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.running
}

func (s *SerialServer) serveLoop(ctx context.Context) {
	defer close(s.doneChan)

	for {
		select {
		case <-s.stopChan:
			return
		default:
		}

		frame, err := framing.ReadRTUFrame(s.port)
		if err != nil {
			select {
			case <-s.stopChan:
				return
			default:
			}
			// Every read error is retried; errors other than
			// serial.PortError are logged at debug level first.
			if _, ok := err.(serial.PortError); !ok {
				s.logger.Debug("rtu read failed", zap.Error(err))
			}
			continue
		}

		if frame.UnitID != s.unitAddr && frame.UnitID != 0 {
			continue // not addressed to us, not a broadcast
		}
		isBroadcast := frame.UnitID == 0

		resp := dispatch.Dispatch(ctx, frame.PDU, s.be, isBroadcast, s.logger)
		if resp == nil {
			continue
		}

		out := framing.EncodeRTUFrame(&framing.Frame{
			UnitID: s.unitAddr,
			PDU:    *resp,
		})
		if _, err := s.port.Write(out); err != nil {
			s.logger.Debug("rtu write failed", zap.Error(err))
		}
	}
}
