package rpc

import (
	"bufio"
	"fmt"
	"io"
	"net"

	"github.com/nzbcore/gonzbd/internal/infra/logger"
)

// Server accepts one TCP connection per command and spawns a goroutine per
// connection, matching §5's "one RPC acceptor thread spawns one thread per
// incoming command" model.
type Server struct {
	addr     string
	username string
	password string
	logger   *logger.Logger
	handlers *Handlers
	listener net.Listener
}

// New builds a Server bound to addr ("host:port"). username/password are
// checked against every request's credentials; empty username disables
// the check.
func New(addr, username, password string, h *Handlers, log *logger.Logger) *Server {
	return &Server{addr: addr, username: username, password: password, handlers: h, logger: log}
}

// ListenAndServe blocks accepting connections until the listener is closed
// (typically by the caller cancelling its context and calling Close).
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("rpc: listen %s: %w", s.addr, err)
	}
	s.listener = ln
	s.logger.Info("rpc: listening on %s", s.addr)

	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go s.serve(conn)
	}
}

func (s *Server) Close() error {
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

func (s *Server) serve(conn net.Conn) {
	defer conn.Close()

	r := bufio.NewReader(conn)
	hdr, err := ReadRequestHeader(r)
	if err != nil {
		s.logger.Warn("rpc: bad request header from %s: %v", conn.RemoteAddr(), err)
		return
	}

	username, err := readString(r)
	if err != nil {
		return
	}
	password, err := readString(r)
	if err != nil {
		return
	}
	if s.username != "" && (username != s.username || password != s.password) {
		s.writeError(conn, "authentication failed")
		return
	}

	if err := s.handlers.Dispatch(conn, r, CommandType(hdr.Type)); err != nil {
		s.logger.Warn("rpc: command %d from %s failed: %v", hdr.Type, conn.RemoteAddr(), err)
	}
}

func (s *Server) writeError(w io.Writer, msg string) {
	body := encodeBoolText(false, msg)
	WriteResponseHeader(w, len(body))
	w.Write(body)
}
