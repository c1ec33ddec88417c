package launcher

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"sprocket/internal/config"
	"sprocket/internal/logging"
	"sprocket/internal/services"
)

const readyPrefix = "sprocket-worker ready "

// ReadyLine is the handshake line a worker prints to stdout once it has
// loaded its job and is about to run the pipeline. The dispatcher treats a
// launch as confirmed only after reading this line.
func ReadyLine(jobID string) string {
	return readyPrefix + jobID
}

// IsReadyLine reports whether a stdout line is the handshake for jobID.
func IsReadyLine(line, jobID string) bool {
	return strings.TrimSpace(line) == ReadyLine(jobID)
}

// Handle identifies a confirmed worker process.
type Handle struct {
	PID int
}

func (h Handle) String() string {
	return "pid:" + strconv.Itoa(h.PID)
}

// Launcher starts an isolated worker process for one job and confirms it is
// running. Implementations must not return a handle for a worker that has not
// completed the readiness handshake.
type Launcher interface {
	Launch(ctx context.Context, jobID, sourceKey string) (Handle, error)
}

// ProcessLauncher starts the worker binary as a child process in its own
// process group and waits for the readiness handshake on its stdout.
type ProcessLauncher struct {
	binary       string
	configPath   string
	startTimeout time.Duration
	logger       *slog.Logger
}

// NewProcessLauncher builds a launcher from the dispatch config. configPath
// is forwarded to the worker so both processes load the same configuration.
func NewProcessLauncher(cfg config.Dispatch, configPath string, logger *slog.Logger) (*ProcessLauncher, error) {
	binary := strings.TrimSpace(cfg.WorkerBinary)
	if binary == "" {
		return nil, errors.New("worker binary not configured")
	}
	startTimeout := 30 * time.Second
	if cfg.WorkerStartTimeout > 0 {
		startTimeout = time.Duration(cfg.WorkerStartTimeout) * time.Second
	}
	return &ProcessLauncher{
		binary:       binary,
		configPath:   configPath,
		startTimeout: startTimeout,
		logger:       logging.NewComponentLogger(logger, "launcher"),
	}, nil
}

// Launch starts one worker for the job and blocks until the readiness
// handshake or the start timeout. On any failure the spawned process group is
// killed before returning, so a failed launch never leaves a stray worker.
func (l *ProcessLauncher) Launch(ctx context.Context, jobID, sourceKey string) (Handle, error) {
	args := []string{
		"--job-id", jobID,
		"--source-key", sourceKey,
	}
	if l.configPath != "" {
		args = append(args, "--config", l.configPath)
	}

	cmd := exec.Command(l.binary, args...)
	cmd.Env = os.Environ()
	cmd.Stderr = os.Stderr
	// Own process group so the worker survives dispatcher restarts and can be
	// killed as a unit on launch failure.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Handle{}, services.Wrap(services.ErrLaunchFailure, "", "launch", "stdout pipe", err)
	}
	if err := cmd.Start(); err != nil {
		return Handle{}, services.Wrap(services.ErrLaunchFailure, "", "launch", "start worker", err)
	}
	pid := cmd.Process.Pid

	ready := make(chan error, 1)
	go func() {
		ready <- awaitReadyLine(stdout, jobID)
	}()
	// Reap the child when it eventually exits regardless of handshake outcome.
	waited := make(chan error, 1)
	go func() {
		waited <- cmd.Wait()
	}()

	timer := time.NewTimer(l.startTimeout)
	defer timer.Stop()

	select {
	case err := <-ready:
		if err != nil {
			l.kill(pid)
			return Handle{}, services.Wrap(services.ErrLaunchFailure, "", "launch", "readiness handshake", err)
		}
		l.logger.Info(
			"worker confirmed started",
			logging.String(logging.FieldJobID, jobID),
			logging.Int("pid", pid),
		)
		go drainAndLog(l.logger, jobID, stdout)
		return Handle{PID: pid}, nil
	case err := <-waited:
		return Handle{}, services.Wrap(services.ErrLaunchFailure, "", "launch", "worker exited before handshake", err)
	case <-timer.C:
		l.kill(pid)
		return Handle{}, services.Wrap(services.ErrLaunchFailure, "", "launch",
			fmt.Sprintf("worker not ready within %s", l.startTimeout), nil)
	case <-ctx.Done():
		l.kill(pid)
		return Handle{}, services.Wrap(services.ErrLaunchFailure, "", "launch", "", ctx.Err())
	}
}

func awaitReadyLine(stdout io.Reader, jobID string) error {
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		if IsReadyLine(scanner.Text(), jobID) {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return errors.New("stdout closed before handshake")
}

// drainAndLog keeps the worker's stdout flowing after the handshake so the
// child never blocks on a full pipe.
func drainAndLog(logger *slog.Logger, jobID string, stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		logger.Debug("worker output",
			logging.String(logging.FieldJobID, jobID),
			logging.String("line", line),
		)
	}
}

func (l *ProcessLauncher) kill(pid int) {
	// Negative pid targets the whole process group.
	if err := unix.Kill(-pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		l.logger.Warn("failed to kill worker process group",
			logging.Int("pid", pid),
			logging.Error(err),
		)
	}
}
