package ssh

import (
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/ssh"

	"github.com/openfroyo/planforge/pkg/engines/process"
)

// Session is a remote command. It implements process.Runner.
type Session struct {
	session *ssh.Session
	stdin   io.WriteCloser
	stdout  io.Reader
	stderr  *process.TailBuffer

	// closer is released once the command is reaped.
	closer io.Closer

	killOnce sync.Once
	waitOnce sync.Once
	waitErr  error
}

func startSession(conn *ssh.Client, command string, closer io.Closer) (*Session, error) {
	session, err := conn.NewSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr := process.NewTailBuffer(process.StderrLimit)
	session.Stderr = stderr

	if err := session.Start(command); err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to start command: %w", err)
	}

	return &Session{
		session: session,
		stdin:   stdin,
		stdout:  stdout,
		stderr:  stderr,
		closer:  closer,
	}, nil
}

func (s *Session) Stdin() io.WriteCloser { return s.stdin }
func (s *Session) Stdout() io.Reader       { return s.stdout }
func (s *Session) Stderr() string          { return s.stderr.String() }

// Kill signals the remote command and tears the session down. Servers that
// ignore signals still see the channel close.
func (s *Session) Kill() error {
	s.killOnce.Do(func() {
		_ = s.session.Signal(ssh.SIGKILL)
		_ = s.session.Close()
		if s.closer != nil {
			_ = s.closer.Close()
		}
	})
	return nil
}

func (s *Session) Wait() error {
	s.waitOnce.Do(func() {
		s.waitErr = s.session.Wait()
		if s.closer != nil {
			_ = s.closer.Close()
		}
	})
	return s.waitErr
}
