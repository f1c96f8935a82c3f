// Package launcher supervises the server child process: it picks a port,
// spawns `jkh serve`, waits for the health endpoint, opens the browser and
// keeps the child alive for as long as the launcher runs.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pkg/browser"

	"github.com/alfredjeanlab/jkh/internal/client"
	"github.com/alfredjeanlab/jkh/internal/config"
)

// ErrChildExited is returned when the server process ends on its own.
var ErrChildExited = errors.New("server process exited")

const (
	stdoutLog = "server_out.log"
	stderrLog = "server_err.log"

	// stopTimeout is how long the child gets to exit after terminate
	// before it is killed.
	stopTimeout = 5 * time.Second
)

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithOpener replaces the browser opener.
func WithOpener(open func(url string) error) Option {
	return func(s *Supervisor) {
		s.open = open
	}
}

// WithLogger sets the supervisor's logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Supervisor) {
		s.logger = l
	}
}

// WithCommand replaces the executable and leading arguments used to start
// the child. The serve arguments are appended.
func WithCommand(name string, args ...string) Option {
	return func(s *Supervisor) {
		s.command = append([]string{name}, args...)
	}
}

// Supervisor runs one launch attempt.
type Supervisor struct {
	cfg     *config.Config
	command []string
	open    func(url string) error
	logger  *slog.Logger
}

// New returns a supervisor for cfg. By default the child is this same
// executable and the browser is opened with pkg/browser.
func New(cfg *config.Config, opts ...Option) *Supervisor {
	s := &Supervisor{
		cfg:    cfg,
		open:   browser.OpenURL,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// child is a started server process.
type child struct {
	proc    *os.Process
	done    chan struct{} // closed once Wait returns
	waitErr error
}

// Run acquires a port, starts the child and supervises it until ctx ends
// (returns nil after stopping the child) or the child exits on its own
// (returns ErrChildExited). Port and health failures are returned before
// or after spawning respectively; in the latter case the child is stopped.
func (s *Supervisor) Run(ctx context.Context) error {
	port, err := AcquirePort(s.cfg.Host, s.cfg.Port, s.cfg.PortRange)
	if err != nil {
		return err
	}
	s.logger.Info("port acquired", "host", s.cfg.Host, "port", port, "scanning", s.cfg.Scanning())

	c, err := s.start(port)
	if err != nil {
		return err
	}

	// Abandon the health poll as soon as the child dies.
	pollCtx, cancelPoll := context.WithCancel(ctx)
	go func() {
		select {
		case <-c.done:
			cancelPoll()
		case <-pollCtx.Done():
		}
	}()

	base := "http://" + net.JoinHostPort(browseHost(s.cfg.Host), strconv.Itoa(port))
	err = WaitHealthy(pollCtx, client.NewHTTPClient(base), s.cfg.HealthPath, HealthPolicy{
		Timeout:        s.cfg.HealthTimeout,
		Interval:       s.cfg.HealthInterval,
		AttemptTimeout: s.cfg.HealthAttemptTimeout,
	})
	cancelPoll()
	if err != nil {
		select {
		case <-c.done:
			return fmt.Errorf("%w before becoming healthy: %v (see %s)", ErrChildExited, c.waitErr, s.logPath(stderrLog))
		default:
		}
		s.stop(c)
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	s.logger.Info("server healthy", "url", base+"/", "pid", c.proc.Pid)

	if s.cfg.OpenBrowser {
		if err := s.open(base + "/"); err != nil {
			s.logger.Warn("failed to open browser", "url", base+"/", "error", err)
		}
	}

	select {
	case <-ctx.Done():
		s.logger.Info("stopping server", "pid", c.proc.Pid)
		s.stop(c)
		return nil
	case <-c.done:
		return fmt.Errorf("%w: %v", ErrChildExited, c.waitErr)
	}
}

// start spawns the server with its output appended to the log files.
func (s *Supervisor) start(port int) (*child, error) {
	name, args, err := s.commandLine(port)
	if err != nil {
		return nil, err
	}

	logsDir := filepath.Join(s.cfg.Root, "logs")
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create logs dir: %w", err)
	}
	stdout, err := openLog(s.logPath(stdoutLog))
	if err != nil {
		return nil, err
	}
	defer stdout.Close()
	stderr, err := openLog(s.logPath(stderrLog))
	if err != nil {
		return nil, err
	}
	defer stderr.Close()

	// exec.Command, not CommandContext: the launcher decides when to stop
	// the child.
	cmd := exec.Command(name, args...)
	cmd.Dir = s.cfg.Root
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	detach(cmd)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start server: %w", err)
	}
	s.logger.Info("server started", "pid", cmd.Process.Pid, "args", args)

	c := &child{proc: cmd.Process, done: make(chan struct{})}
	go func() {
		c.waitErr = cmd.Wait()
		close(c.done)
	}()
	return c, nil
}

// stop terminates the child, escalating to kill after stopTimeout.
func (s *Supervisor) stop(c *child) {
	if err := terminate(c.proc); err != nil && !errors.Is(err, os.ErrProcessDone) {
		s.logger.Warn("failed to signal server", "pid", c.proc.Pid, "error", err)
	}
	select {
	case <-c.done:
		return
	case <-time.After(stopTimeout):
	}
	s.logger.Warn("server did not stop gracefully, killing", "pid", c.proc.Pid)
	_ = c.proc.Kill()
	<-c.done
}

func (s *Supervisor) commandLine(port int) (string, []string, error) {
	cmdline := s.command
	if len(cmdline) == 0 {
		exe, err := os.Executable()
		if err != nil {
			return "", nil, fmt.Errorf("locate executable: %w", err)
		}
		cmdline = []string{exe}
	}
	args := append([]string{}, cmdline[1:]...)
	args = append(args,
		"serve",
		"--root", s.cfg.Root,
		"--host", s.cfg.Host,
		"--port", strconv.Itoa(port),
		"--threads", strconv.Itoa(s.cfg.Threads),
	)
	return cmdline[0], args, nil
}

func (s *Supervisor) logPath(name string) string {
	return filepath.Join(s.cfg.Root, "logs", name)
}

func openLog(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log %s: %w", path, err)
	}
	return f, nil
}

// browseHost maps wildcard bind addresses onto loopback for URLs.
func browseHost(host string) string {
	switch host {
	case "", "0.0.0.0", "::":
		return "127.0.0.1"
	}
	return host
}
