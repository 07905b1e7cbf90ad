// Package transport hosts the listener/connection-handling loop for each
// wire this server can speak: TCP, UDP, and serial RTU. Every transport
// decodes frames with the framing package, drives a shared backend through
// dispatch.Dispatch, and re-encodes whatever response comes back.
package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/modbus-emu/slave/backend"
	"github.com/modbus-emu/slave/dispatch"
	"github.com/modbus-emu/slave/framing"
)

// TCPServer accepts Modbus TCP connections, one goroutine per connection,
// and answers every MBAP request against a shared backend.
//
// Grounded directly on server/tcp_server.go: accept loop with a polled
// deadline for cooperative shutdown, per-connection read loop, tracked
// client set closed on Stop.
type TCPServer struct {
	address  string
	be       backend.Backend
	logger   *zap.Logger
	listener net.Listener

	mutex        sync.RWMutex
	running      bool
	stopChan     chan struct{}
	clients      map[string]net.Conn
	clientsMutex sync.RWMutex
}

// NewTCPServer returns a TCP transport listening on address (host:port).
func NewTCPServer(address string, be backend.Backend, logger *zap.Logger) *TCPServer {
	return &TCPServer{
		address: address,
		be:      be,
		logger:  logger,
		clients: make(map[string]net.Conn),
	}
}

// Start begins accepting connections in the background.
func (s *TCPServer) Start(ctx context.Context) error {
	s.mutex.Lock()
	if s.running {
		s.mutex.Unlock()
		return fmt.Errorf("tcp server already running")
	}

	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		s.mutex.Unlock()
		return err
	}

	s.listener = listener
	s.running = true
	s.stopChan = make(chan struct{})
	s.mutex.Unlock()

	s.logger.Info("modbus tcp server started", zap.String("address", s.address))
	go s.acceptLoop(ctx)
	return nil
}

// Stop closes the listener and every open connection.
func (s *TCPServer) Stop(ctx context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.running {
		return nil
	}

	close(s.stopChan)
	if s.listener != nil {
		s.listener.Close()
	}

	s.clientsMutex.Lock()
	for _, conn := range s.clients {
		conn.Close()
	}
	s.clients = make(map[string]net.Conn)
	s.clientsMutex.Unlock()

	s.running = false
	s.logger.Info("modbus tcp server stopped", zap.String("address", s.address))
	return nil
}

// IsRunning reports whether Start has been called without a matching Stop.
func (s *TCPServer) IsRunning() bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.running
}

// Addr returns the listener's bound address, useful when address was given
// with port 0 and the caller needs to know what port was actually chosen.
func (s *TCPServer) Addr() net.Addr {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *TCPServer) acceptLoop(ctx context.Context) {
	for {
		select {
		case <-s.stopChan:
			return
		default:
		}

		s.listener.(*net.TCPListener).SetDeadline(time.Now().Add(time.Second))

		conn, err := s.listener.Accept()
		if err != nil {
			if opErr, ok := err.(*net.OpError); ok && opErr.Timeout() {
				continue
			}
			select {
			case <-s.stopChan:
				return
			default:
				s.logger.Error("accept failed", zap.Error(err))
				continue
			}
		}

		s.clientsMutex.Lock()
		s.clients[conn.RemoteAddr().String()] = conn
		s.clientsMutex.Unlock()

		go s.handleConnection(ctx, conn)
	}
}

func (s *TCPServer) handleConnection(ctx context.Context, conn net.Conn) {
	remoteAddr := conn.RemoteAddr().String()
	defer func() {
		s.clientsMutex.Lock()
		delete(s.clients, remoteAddr)
		s.clientsMutex.Unlock()
		conn.Close()
		s.logger.Debug("client disconnected", zap.String("remote", remoteAddr))
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(30 * time.Second))

		frame, err := framing.ReadMBAPFrame(conn)
		if err != nil {
			if err == io.EOF || strings.Contains(err.Error(), "use of closed network connection") {
				return
			}
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			s.logger.Debug("frame decode failed", zap.String("remote", remoteAddr), zap.Error(err))
			return
		}

		resp := dispatch.Dispatch(ctx, frame.PDU, s.be, false, s.logger)
		if resp == nil {
			// Modbus TCP never leaves a request unanswered; Dispatch only
			// returns nil for broadcast, which TCP has no concept of.
			continue
		}

		out := framing.EncodeMBAPFrame(&framing.Frame{
			TransactionID: frame.TransactionID,
			UnitID:        frame.UnitID,
			PDU:           *resp,
		})
		if _, err := conn.Write(out); err != nil {
			s.logger.Debug("write failed", zap.String("remote", remoteAddr), zap.Error(err))
			return
		}
	}
}
