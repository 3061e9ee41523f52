package ssh

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// TransportError represents an SSH transport failure.
type TransportError struct {
	Op   string
	Host string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("ssh %s %s: %v", e.Op, e.Host, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Client is a connection to one host.
type Client struct {
	config *Config
	conn   *ssh.Client
}

// Dial connects to the host described by cfg.
func Dial(ctx context.Context, cfg *Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, &TransportError{Op: "config", Host: cfg.Host, Err: err}
	}

	clientConfig, err := cfg.BuildSSHClientConfig()
	if err != nil {
		return nil, &TransportError{Op: "config", Host: cfg.Host, Err: err}
	}

	type dialResult struct {
		conn *ssh.Client
		err  error
	}
	resultCh := make(chan dialResult, 1)

	go func() {
		conn, err := ssh.Dial("tcp", cfg.Address(), clientConfig)
		resultCh <- dialResult{conn: conn, err: err}
	}()

	select {
	case <-ctx.Done():
		go func() {
			if r := <-resultCh; r.conn != nil {
				_ = r.conn.Close()
			}
		}()
		return nil, &TransportError{Op: "dial", Host: cfg.Host, Err: ctx.Err()}
	case r := <-resultCh:
		if r.err != nil {
			return nil, &TransportError{Op: "dial", Host: cfg.Host, Err: r.err}
		}
		return &Client{config: cfg, conn: r.conn}, nil
	}
}

// Close closes the connection and every session on it.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Upload copies the local file to remotePath and sets its mode.
func (c *Client) Upload(ctx context.Context, localPath, remotePath string, mode os.FileMode) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	sc, err := sftp.NewClient(c.conn)
	if err != nil {
		return &TransportError{Op: "sftp", Host: c.config.Host, Err: err}
	}
	defer sc.Close()

	src, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer src.Close()

	dst, err := sc.Create(remotePath)
	if err != nil {
		return &TransportError{Op: "upload", Host: c.config.Host, Err: fmt.Errorf("failed to create %s: %w", remotePath, err)}
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return &TransportError{Op: "upload", Host: c.config.Host, Err: err}
	}
	if err := dst.Close(); err != nil {
		return &TransportError{Op: "upload", Host: c.config.Host, Err: err}
	}

	if err := sc.Chmod(remotePath, mode); err != nil {
		return &TransportError{Op: "upload", Host: c.config.Host, Err: fmt.Errorf("failed to chmod %s: %w", remotePath, err)}
	}
	return nil
}

// Start runs command in a new session. The session owns no connection;
// use Launcher for runners that close their connection on exit.
func (c *Client) Start(ctx context.Context, command string) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return startSession(c.conn, command, nil)
}
