package command

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"sync"

	"firestige.xyz/chronod/internal/log"
	"firestige.xyz/chronod/internal/task"
)

// DefaultListenAddr is where the server ingests task groups unless the
// configuration overrides it.
const DefaultListenAddr = "127.0.0.1:65533"

// Server accepts task group submissions over TCP and splices them into
// the environment. One goroutine accepts, one handles each connection;
// a malformed submission only costs its own connection.
type Server struct {
	addr string
	env  *task.Environment

	listener net.Listener

	mu      sync.Mutex
	conns   map[net.Conn]struct{}
	wg      sync.WaitGroup
	stopped bool
}

// NewServer creates an ingestion server bound to addr once started.
func NewServer(addr string, env *task.Environment) *Server {
	if addr == "" {
		addr = DefaultListenAddr
	}
	return &Server{
		addr:  addr,
		env:   env,
		conns: make(map[net.Conn]struct{}),
	}
}

// Start binds the listening socket and begins accepting in the
// background. The bind error is returned synchronously so a bad address
// fails startup.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	s.listener = listener

	log.GetLogger().WithField("addr", listener.Addr().String()).
		Info("ingestion server started")

	go s.acceptLoop()
	return nil
}

// Addr returns the bound address; useful when the configured port is 0.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.mu.Lock()
			stopped := s.stopped
			s.mu.Unlock()
			if stopped {
				return
			}
			log.GetLogger().WithError(err).Error("failed to accept connection")
			continue
		}

		s.mu.Lock()
		if s.stopped {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

// handleConnection reads one query, framed by the peer shutting down its
// write side, and dispatches it.
func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	logger := log.GetLogger().WithField("remote", conn.RemoteAddr().String())
	logger.Info("new connection")

	data, err := io.ReadAll(conn)
	if err != nil {
		logger.WithError(err).Error("error while retrieving data")
		return
	}

	var q Query
	if err := json.Unmarshal(data, &q); err != nil {
		logger.WithError(err).Error("error while parsing data")
		return
	}

	switch q.Kind {
	case QueryOk:
		// Nothing to do.
	case QueryNewTaskGroup:
		group, err := task.NewTaskGroup(*q.Group)
		if err != nil {
			logger.WithError(err).Error("rejecting task group")
			return
		}
		if err := s.env.AddNewGroup(group); err != nil {
			logger.WithError(err).Error("failed to add task group")
			return
		}

		ack, err := json.Marshal(Query{Kind: QueryOk})
		if err == nil {
			_, err = conn.Write(ack)
		}
		if err != nil {
			logger.WithError(err).Error("failed to acknowledge task group")
		}
	}
}

// Stop closes the listener and every active connection, then waits for
// the handlers to drain.
func (s *Server) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	if s.listener != nil {
		s.listener.Close()
	}

	s.mu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	log.GetLogger().Info("ingestion server stopped")
}
