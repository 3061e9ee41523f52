package ssh

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/openfroyo/planforge/pkg/engines/process"
	"github.com/openfroyo/planforge/pkg/telemetry"
)

// Launcher starts runners on a remote host. Each runner gets its own
// connection, closed when the runner is reaped.
type Launcher struct {
	Config *Config

	// Upload is a local runner binary copied to RemotePath before the first
	// launch. The copy then replaces argv[0].
	Upload     string
	RemotePath string

	Logger *telemetry.Logger

	mu       sync.Mutex
	uploaded bool
}

// Launch implements process.Launcher.
func (l *Launcher) Launch(ctx context.Context, argv []string) (process.Runner, error) {
	if len(argv) == 0 {
		return nil, errors.New("empty command")
	}

	client, err := Dial(ctx, l.Config)
	if err != nil {
		return nil, err
	}

	if l.Upload != "" {
		if err := l.ensureUploaded(ctx, client); err != nil {
			client.Close()
			return nil, err
		}
		argv = append([]string{l.RemotePath}, argv[1:]...)
	}

	command := QuoteCommand(argv)
	l.logger().WithField("command", command).Debug("starting remote runner")

	session, err := startSession(client.conn, command, client)
	if err != nil {
		client.Close()
		return nil, &TransportError{Op: "exec", Host: l.Config.Host, Err: err}
	}
	return session, nil
}

func (l *Launcher) ensureUploaded(ctx context.Context, client *Client) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.uploaded {
		return nil
	}
	if l.RemotePath == "" {
		return errors.New("remote path is required for upload")
	}
	if err := client.Upload(ctx, l.Upload, l.RemotePath, 0o755); err != nil {
		return err
	}
	l.logger().WithField("remote_path", l.RemotePath).Debug("uploaded runner")
	l.uploaded = true
	return nil
}

func (l *Launcher) logger() *telemetry.Logger {
	if l.Logger == nil {
		return telemetry.NopLogger()
	}
	return l.Logger.NewComponentLogger("ssh").WithField("host", l.Config.Host)
}

// QuoteCommand joins argv into a POSIX shell command line.
func QuoteCommand(argv []string) string {
	quoted := make([]string, len(argv))
	for i, arg := range argv {
		quoted[i] = quote(arg)
	}
	return strings.Join(quoted, " ")
}

func quote(s string) string {
	if s != "" && strings.IndexFunc(s, unsafeShellRune) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func unsafeShellRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return false
	}
	return !strings.ContainsRune("-_./=:,+@%", r)
}
