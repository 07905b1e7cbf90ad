package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/modbus-emu/slave/backend"
	"github.com/modbus-emu/slave/common"
	"github.com/modbus-emu/slave/dispatch"
	"github.com/modbus-emu/slave/framing"
)

// UDPServer answers Modbus TCP-over-UDP: each datagram carries exactly one
// complete MBAP request and gets exactly one reply datagram back to its
// source address. There is no connection state and no framing
// accumulation, since a datagram either arrives whole or not at all.
//
// Grounded on server/tcp_server.go's accept/dispatch shape, adapted to
// connectionless semantics; the corpus has no UDP Modbus precedent.
type UDPServer struct {
	address string
	be      backend.Backend
	logger  *zap.Logger
	conn    *net.UDPConn

	mutex    sync.RWMutex
	running  bool
	stopChan chan struct{}
}

// NewUDPServer returns a UDP transport bound to address (host:port).
func NewUDPServer(address string, be backend.Backend, logger *zap.Logger) *UDPServer {
	return &UDPServer{address: address, be: be, logger: logger}
}

// Start begins serving datagrams in the background.
func (s *UDPServer) Start(ctx context.Context) error {
	s.mutex.Lock()
	if s.running {
		s.mutex.Unlock()
		return fmt.Errorf("udp server already running")
	}

	udpAddr, err := net.ResolveUDPAddr("udp", s.address)
	if err != nil {
		s.mutex.Unlock()
		return err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		s.mutex.Unlock()
		return err
	}

	s.conn = conn
	s.running = true
	s.stopChan = make(chan struct{})
	s.mutex.Unlock()

	s.logger.Info("modbus udp server started", zap.String("address", s.address))
	go s.serveLoop(ctx)
	return nil
}

// Stop closes the socket.
func (s *UDPServer) Stop(ctx context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.running {
		return nil
	}
	close(s.stopChan)
	s.conn.Close()
	s.running = false
	s.logger.Info("modbus udp server stopped", zap.String("address", s.address))
	return nil
}

// IsRunning reports whether Start has been called without a matching Stop.
func (s *UDPServer) IsRunning() bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.running
}

// Addr returns the socket's bound address, useful when address was given
// with port 0 and the caller needs to know what port was actually chosen.
func (s *UDPServer) Addr() net.Addr {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

func (s *UDPServer) serveLoop(ctx context.Context) {
	buf := make([]byte, common.MaxADULength)
	for {
		select {
		case <-s.stopChan:
			return
		default:
		}

		s.conn.SetReadDeadline(time.Now().Add(time.Second))
		n, addr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			select {
			case <-s.stopChan:
				return
			default:
				s.logger.Error("udp read failed", zap.Error(err))
				continue
			}
		}

		frame, err := framing.DecodeMBAPDatagram(buf[:n])
		if err != nil {
			s.logger.Debug("datagram decode failed", zap.String("from", addr.String()), zap.Error(err))
			continue
		}

		resp := dispatch.Dispatch(ctx, frame.PDU, s.be, false, s.logger)
		if resp == nil {
			continue
		}

		out := framing.EncodeMBAPFrame(&framing.Frame{
			TransactionID: frame.TransactionID,
			UnitID:        frame.UnitID,
			PDU:           *resp,
		})
		if _, err := s.conn.WriteToUDP(out, addr); err != nil {
			s.logger.Debug("udp write failed", zap.String("to", addr.String()), zap.Error(err))
		}
	}
}
