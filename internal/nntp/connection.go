package nntp

import (
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"strings"
	"time"

	"github.com/nzbcore/gonzbd/internal/domain"
)

// Connection is one authenticated TCP/TLS session to a single NNTP server.
// It is not safe for concurrent use; the Pool hands out exactly one
// Connection per leased slot.
type Connection struct {
	server *domain.Server
	conn   *textproto.Conn

	currentGroup string
}

// NewConnection builds an unconnected Connection for the given server. Dial
// happens lazily on first use so idle pool slots don't hold sockets open.
func NewConnection(server *domain.Server) *Connection {
	return &Connection{server: server}
}

// Connected reports whether the underlying socket is established.
func (c *Connection) Connected() bool { return c.conn != nil }

// ServerID returns the id of the server this connection belongs to.
func (c *Connection) ServerID() string { return c.server.ID }

// Dial opens the TCP/TLS socket and reads the server greeting. TLS is
// negotiated purely by connecting on a TLS socket from the start; this
// client never attempts STARTTLS.
func (c *Connection) Dial(connectTimeout time.Duration) error {
	addr := fmt.Sprintf("%s:%d", c.server.Host, c.server.Port)

	var raw net.Conn
	var err error

	dialer := net.Dialer{Timeout: connectTimeout}

	if c.server.TLS {
		tlsConfig := &tls.Config{
			ServerName: c.server.Host,
			MinVersion: tls.VersionTLS12,
		}
		raw, err = tls.DialWithDialer(&dialer, "tcp", addr, tlsConfig)
	} else {
		raw, err = dialer.Dial("tcp", addr)
	}
	if err != nil {
		return &ConnectError{Server: c.server.ID, Err: err}
	}

	c.conn = textproto.NewConn(raw)

	// ReadCodeLine consumes exactly one line and reports the code it found
	// even on a expectCode mismatch, so a 201 greeting (posting not allowed)
	// must be accepted off that same read rather than by reading again.
	if code, _, err := c.conn.ReadCodeLine(200); err != nil && code != 201 {
		c.Disconnect()
		return &ConnectError{Server: c.server.ID, Err: err}
	}

	if err := c.authenticate(); err != nil {
		c.Disconnect()
		return err
	}

	return nil
}

func (c *Connection) authenticate() error {
	if c.server.Username == "" {
		return nil
	}

	if _, err := c.conn.Cmd("AUTHINFO USER %s", c.server.Username); err != nil {
		return &ConnectError{Server: c.server.ID, Err: err}
	}
	code, line, err := c.conn.ReadCodeLine(381)
	if err != nil {
		if code == 281 {
			return nil // server accepted username alone
		}
		return &ConnectError{Server: c.server.ID, Err: fmt.Errorf("%d %s: %w", code, line, err)}
	}

	if _, err := c.conn.Cmd("AUTHINFO PASS %s", c.server.Password); err != nil {
		return &ConnectError{Server: c.server.ID, Err: err}
	}
	if code, line, err := c.conn.ReadCodeLine(281); err != nil {
		return &ConnectError{Server: c.server.ID, Err: fmt.Errorf("%d %s: %w", code, line, err)}
	}

	return nil
}

// JoinGroup issues GROUP, classifying a missing group as a group-scoped
// NotFoundError so the caller can try the article's next group without
// burning a retry on an unrelated server problem.
func (c *Connection) JoinGroup(name string) error {
	if c.currentGroup == name {
		return nil
	}

	if _, err := c.conn.Cmd("GROUP %s", name); err != nil {
		return &ConnectError{Server: c.server.ID, Err: err}
	}

	code, line, err := c.conn.ReadCodeLine(211)
	if err != nil {
		return classifyResponse(c.server.ID, code, line, "group", err)
	}

	c.currentGroup = name
	return nil
}

// RequestArticle issues BODY for a message-id and returns a dot-unstuffed
// reader over the raw (still yEnc-encoded) article body. The caller must
// read it to completion before reusing the connection.
func (c *Connection) RequestArticle(messageID string) (io.Reader, error) {
	id := domain.StripAngleBrackets(messageID)

	if _, err := c.conn.Cmd("BODY <%s>", id); err != nil {
		return nil, &ConnectError{Server: c.server.ID, Err: err}
	}

	code, line, err := c.conn.ReadCodeLine(222)
	if err != nil {
		return nil, classifyResponse(c.server.ID, code, line, "article", err)
	}

	r := c.conn.DotReader()
	return r, nil
}

// Cancel aborts any in-flight command by closing the underlying socket; the
// connection must be re-dialed before further use.
func (c *Connection) Cancel() {
	c.Disconnect()
}

// Disconnect sends QUIT best-effort and closes the socket.
func (c *Connection) Disconnect() {
	if c.conn == nil {
		return
	}
	c.conn.Cmd("QUIT")
	c.conn.Close()
	c.conn = nil
	c.currentGroup = ""
}

// classifyResponse maps an NNTP status code to the redesigned error
// taxonomy: 411/412 (group) and 423/430 (article) are permanent not-found,
// 400/499 are connect-class transients, any other 4xx is an unrecognized
// Failed response, and a code outside 4xx is a ConnectError.
func classifyResponse(server string, code int, line, context string, err error) error {
	switch {
	case code == 411 || code == 412:
		return &NotFoundError{Server: server, Code: code, Context: "group"}
	case code == 430 || code == 423:
		return &NotFoundError{Server: server, Code: code, Context: "article"}
	case code == 400 || code == 499:
		return &ConnectError{Server: server, Err: err}
	case code >= 400 && code < 500:
		return &FailedError{Server: server, Code: code, Line: line}
	default:
		return &ConnectError{Server: server, Err: err}
	}
}

// ValidMessageID reports whether s looks like an RFC 3977 message-id,
// with or without angle brackets.
func ValidMessageID(s string) bool {
	s = domain.StripAngleBrackets(s)
	if s == "" {
		return false
	}
	return strings.Contains(s, "@")
}
