// Package remoteshell implements the RemoteShell capability (§4.2): an
// authenticated interactive session to a DUT over a raw TCP socket,
// matched against login prompts as byte substrings rather than a
// structured protocol. This is intentionally lenient, per §9's design
// note, to tolerate whatever getty banner a given remote OS happens to
// print — it is not an SSH client.
package remoteshell

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"time"

	"github.com/radhelper/radiation-setup/internal/errorcode"
	"github.com/radhelper/radiation-setup/internal/logger"
)

const (
	loginPrompt    = "ogin: "
	passwordPrompt = "assword: "
	shellPrompt    = "$ "

	// dialTimeout bounds the initial TCP connect, distinct from the
	// overall session deadline which also covers the login dialog.
	dialTimeout = 5 * time.Second
)

// Shell is the RemoteShell capability: open a login-authenticated session
// to hostPort, bounded by deadline.
type Shell struct {
	HostPort string
	Username string
	Password string
}

// Session is a single open interactive session. It must be closed after
// use; callers typically defer Close() immediately after WithSession
// returns successfully.
type Session struct {
	conn net.Conn
	r    *bufio.Reader
}

// WithSession opens a session to s.HostPort, performs the login dialog,
// and returns it open. The deadline bounds the whole dial-plus-login
// sequence.
func (s Shell) WithSession(deadline time.Duration) (*Session, errorcode.Code) {
	deadlineAt := time.Now().Add(deadline)

	dialer := net.Dialer{Timeout: dialTimeout, Deadline: deadlineAt}
	conn, err := dialer.Dial("tcp", s.HostPort)
	if err != nil {
		logger.Debugf("remoteshell: dial %s failed: %v", s.HostPort, err)
		if errors.Is(err, syscall.ECONNREFUSED) {
			// The remote actively refused the connection (e.g. the login
			// daemon isn't up yet); distinct from a generally unreachable
			// host so callers can back off before retrying (§C).
			return nil, errorcode.ConnectionError
		}
		return nil, errorcode.HostUnreachable
	}
	conn.SetDeadline(deadlineAt)

	session := &Session{conn: conn, r: bufio.NewReader(conn)}

	if err := session.expect(loginPrompt, deadlineAt); err != nil {
		conn.Close()
		return nil, classifyDialogError(err)
	}
	if err := session.writeLine([]byte(s.Username)); err != nil {
		conn.Close()
		return nil, classifyDialogError(err)
	}

	if err := session.expect(passwordPrompt, deadlineAt); err != nil {
		conn.Close()
		return nil, classifyDialogError(err)
	}
	if err := session.writeLine([]byte(s.Password)); err != nil {
		conn.Close()
		return nil, classifyDialogError(err)
	}

	if err := session.expect(shellPrompt, deadlineAt); err != nil {
		conn.Close()
		return nil, classifyDialogError(err)
	}

	return session, errorcode.Success
}

// classifyDialogError distinguishes a connection that dropped mid-dialog
// (EOF — retryable, per §4.6's "EOF on session -> retry") from a prompt
// that never matched within the deadline (a real login failure, returned
// immediately as RemoteShellConnectionError, matching the original's
// separate EOFError/RuntimeError handling in the login dialog).
func classifyDialogError(err error) errorcode.Code {
	if errors.Is(err, io.EOF) {
		return errorcode.RemoteShellEOF
	}
	return errorcode.RemoteShellConnectionError
}

// expect reads from the connection until buf contains substr, or the
// deadline passes / the connection errors (including EOF).
func (s *Session) expect(substr string, deadlineAt time.Time) error {
	s.conn.SetDeadline(deadlineAt)
	var seen []byte
	buf := make([]byte, 256)
	for {
		if containsString(seen, substr) {
			return nil
		}
		n, err := s.r.Read(buf)
		if n > 0 {
			seen = append(seen, buf[:n]...)
			if len(seen) > 4096 {
				seen = seen[len(seen)-4096:]
			}
		}
		if err != nil {
			return fmt.Errorf("remoteshell: waiting for %q: %w", substr, err)
		}
	}
}

func containsString(b []byte, substr string) bool {
	return len(b) >= len(substr) && indexOf(b, substr) >= 0
}

func indexOf(b []byte, substr string) int {
	for i := 0; i+len(substr) <= len(b); i++ {
		if string(b[i:i+len(substr)]) == substr {
			return i
		}
	}
	return -1
}

// WriteLine writes p followed by a CRLF to the session.
func (s *Session) WriteLine(p []byte) error {
	return s.writeLine(p)
}

func (s *Session) writeLine(p []byte) error {
	_, err := s.conn.Write(append(append([]byte{}, p...), '\r', '\n'))
	return err
}

// Drain best-effort discards whatever the remote has queued to send,
// reading for at most 200ms; it replaces the session's read deadline
// with that bound. Read errors
// (including timeouts) are swallowed: draining is advisory.
func (s *Session) Drain() {
	buf := make([]byte, 1024)
	s.conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	for {
		n, err := s.r.Read(buf)
		if n == 0 || err != nil {
			return
		}
	}
}

// Close closes the underlying connection.
func (s *Session) Close() error {
	return s.conn.Close()
}

// Ping reports whether hostPort accepts a TCP connection within the
// given context, used by Supervisor's boot-wait probe loop ahead of a
// full login attempt (§4.6, §C "connection-refused backoff").
func Ping(ctx context.Context, hostPort string) errorcode.Code {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", hostPort)
	if err != nil {
		if ctx.Err() != nil {
			return errorcode.ThreadEventSet
		}
		if errors.Is(err, syscall.ECONNREFUSED) {
			return errorcode.ConnectionError
		}
		return errorcode.HostUnreachable
	}
	conn.Close()
	return errorcode.Success
}
