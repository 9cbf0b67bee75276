// Package playback owns the external decoder-player process lifecycle
// (SPEC_FULL §4.1). It is grounded on
// original_source/tts_cli/audio_utils.py's create_ffplay_process/
// play_audio_with_ffplay/stream_audio_data functions for the subprocess
// shape, and on the teacher's internal/tts/processor.go for the Go
// exec.CommandContext idiom used to invoke an external tool.
package playback

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/speakctl/internal/core"
)

const (
	defaultDecoderBinary  = "ffplay"
	decoderFlagNoDisplay  = "-nodisp"
	decoderFlagAutoExit   = "-autoexit"
	decoderFlagLogLevel   = "-loglevel"
	decoderLogLevelQuiet  = "quiet"
	decoderFlagInput      = "-i"
	decoderStdinSentinel  = "pipe:0"
	decoderFlagFormat     = "-f"

	defaultDecoderStartupTimeout = 2 * time.Second
	defaultDecoderIdleTimeout    = 5 * time.Second
)

// Manager owns zero or more live decoder-player subprocesses. The zero
// value is not usable; construct with New. Manager is safe for concurrent
// use: each operation spawns a disjoint subprocess, guarded only while the
// live-process set itself is mutated (SPEC_FULL §5 "Shared resources").
type Manager struct {
	decoderBinary string
	log           *logger.Logger

	mu    sync.Mutex
	procs map[int]*os.Process
}

// New constructs a Manager that forks decoderBinary (e.g. "ffplay"). If
// decoderBinary is empty, defaultDecoderBinary is used.
func New(decoderBinary string, log *logger.Logger) *Manager {
	if decoderBinary == "" {
		decoderBinary = defaultDecoderBinary
	}

	return &Manager{
		decoderBinary: decoderBinary,
		log:           log,
		procs:         make(map[int]*os.Process),
	}
}

// defaultManager is the package-level singleton backing the thin-forwarder
// free functions below (SPEC_FULL §9 "Open question — resolved": the
// manager is the sole contract, the free function a thin forwarder).
var (
	defaultManagerOnce sync.Once
	defaultManagerRef  *Manager
)

func defaultManager() *Manager {
	defaultManagerOnce.Do(func() {
		defaultManagerRef = New(defaultDecoderBinary, nil)
	})

	return defaultManagerRef
}

// OpenStream is a thin forwarder to the package-level default Manager's
// OpenStream. Not independently specified; see SPEC_FULL §9.
func OpenStream(ctx context.Context, format core.AudioFormat) (io.WriteCloser, error) {
	return defaultManager().OpenStream(ctx, format)
}

// PlayFile is a thin forwarder to the package-level default Manager's
// PlayFile. Not independently specified; see SPEC_FULL §9.
func PlayFile(ctx context.Context, path string, cleanup bool, timeout time.Duration) error {
	return defaultManager().PlayFile(ctx, path, cleanup, timeout)
}

// PlayAndForget is a thin forwarder to the package-level default Manager's
// PlayAndForget. Not independently specified; see SPEC_FULL §9.
func PlayAndForget(path string, cleanup bool, timeout time.Duration) {
	defaultManager().PlayAndForget(path, cleanup, timeout)
}

func (m *Manager) track(proc *os.Process) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.procs[proc.Pid] = proc
}

func (m *Manager) untrack(pid int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.procs, pid)
}

func (m *Manager) logf(format string, args ...any) {
	if m.log == nil {
		return
	}

	m.log.Info(format, args...)
}

func (m *Manager) warnf(format string, args ...any) {
	if m.log == nil {
		return
	}

	m.log.Warn(format, args...)
}

// streamWriter adapts a subprocess's stdin pipe plus its Wait into an
// io.WriteCloser: Close signals end-of-stream to the decoder by closing
// stdin, then waits (bounded by an idle timeout) for the decoder to exit.
type streamWriter struct {
	stdin   io.WriteCloser
	cmd     *exec.Cmd
	manager *Manager
	idle    time.Duration
	once    sync.Once
	closeErr error
}

func (w *streamWriter) Write(p []byte) (int, error) {
	return w.stdin.Write(p)
}

func (w *streamWriter) Close() error {
	w.once.Do(func() {
		w.closeErr = w.doClose()
	})

	return w.closeErr
}

func (w *streamWriter) doClose() error {
	err := w.stdin.Close()

	done := make(chan error, 1)

	go func() {
		done <- w.cmd.Wait()
	}()

	select {
	case waitErr := <-done:
		w.manager.untrack(w.cmd.Process.Pid)

		if waitErr != nil {
			w.manager.warnf("decoder exited non-zero after stream close: %v", waitErr)
		}
	case <-time.After(w.idle):
		w.manager.warnf("decoder idle timeout after stream close, killing pid %d", w.cmd.Process.Pid)
		_ = w.cmd.Process.Kill()
		<-done
		w.manager.untrack(w.cmd.Process.Pid)
	}

	if err != nil {
		return fmt.Errorf("failed to close decoder stdin: %w", err)
	}

	return nil
}

// OpenStream forks a decoder consuming its standard input in the given
// format and routing decoded PCM to the default device. The returned
// writer is exclusively owned by the caller; closing it signals
// end-of-stream to the decoder and waits (bounded by the idle timeout) for
// it to exit.
func (m *Manager) OpenStream(ctx context.Context, format core.AudioFormat) (io.WriteCloser, error) {
	args := []string{
		decoderFlagNoDisplay,
		decoderFlagAutoExit,
		decoderFlagLogLevel, decoderLogLevelQuiet,
		decoderFlagFormat, string(format),
		decoderFlagInput, decoderStdinSentinel,
	}

	cmd := exec.CommandContext(ctx, m.decoderBinary, args...) // #nosec G204 -- decoderBinary and format are validated configuration, not user-controlled strings

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open decoder stdin pipe: %w", err)
	}

	startCtx, cancel := context.WithTimeout(ctx, defaultDecoderStartupTimeout)
	defer cancel()

	if startErr := startDecoder(startCtx, cmd); startErr != nil {
		if isNotFound(startErr) {
			return nil, core.NewDependencyError("", fmt.Sprintf("decoder binary %q not found", m.decoderBinary), startErr)
		}

		return nil, core.NewInternalError("failed to start decoder", startErr)
	}

	m.track(cmd.Process)
	m.logf("decoder spawned pid=%d format=%s", cmd.Process.Pid, format)

	return &streamWriter{
		stdin:   stdin,
		cmd:     cmd,
		manager: m,
		idle:    defaultDecoderIdleTimeout,
	}, nil
}

func startDecoder(ctx context.Context, cmd *exec.Cmd) error {
	err := cmd.Start()
	if err != nil {
		return err
	}

	// cmd.Start returns as soon as fork/exec succeeds; there is no
	// separate "ready" signal from ffplay, so the startup context only
	// bounds the fork/exec call itself.
	_ = ctx

	return nil
}

func isNotFound(err error) bool {
	var execErr *exec.Error

	if e, ok := err.(*exec.Error); ok {
		execErr = e
	}

	return execErr != nil && execErr.Err == exec.ErrNotFound
}

// PlayFile forks a decoder consuming path, waits up to timeout (or
// indefinitely if timeout is zero), then optionally deletes the file.
// Never blocks the caller for more than timeout.
func (m *Manager) PlayFile(ctx context.Context, path string, cleanup bool, timeout time.Duration) error {
	args := []string{
		decoderFlagNoDisplay,
		decoderFlagAutoExit,
		decoderFlagLogLevel, decoderLogLevelQuiet,
		decoderFlagInput, path,
	}

	runCtx := ctx
	var cancel context.CancelFunc

	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, m.decoderBinary, args...) // #nosec G204 -- decoderBinary is validated configuration; path is a caller-supplied local file, not shell-interpreted

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Start()
	if err != nil {
		if cleanup {
			_ = os.Remove(path)
		}

		if isNotFound(err) {
			return core.NewDependencyError("", fmt.Sprintf("decoder binary %q not found", m.decoderBinary), err)
		}

		return core.NewInternalError("failed to start decoder", err)
	}

	m.track(cmd.Process)
	m.logf("decoder spawned pid=%d path=%s", cmd.Process.Pid, path)

	waitErr := cmd.Wait()
	m.untrack(cmd.Process.Pid)

	if cleanup {
		_ = os.Remove(path)
	}

	if waitErr != nil {
		if runCtx.Err() != nil {
			return core.NewCancelledError("playback cancelled or timed out", waitErr)
		}

		m.warnf("decoder exited non-zero: %v stderr=%s", waitErr, stderr.String())

		return core.NewProviderError("", "decoder exited non-zero", waitErr, false)
	}

	return nil
}

// PlayAndForget behaves like PlayFile but returns immediately and reaps the
// subprocess in a background goroutine (SPEC_FULL §5 "dedicated reaper
// goroutine"). Errors are logged, not surfaced, matching the fire-and-forget
// contract.
func (m *Manager) PlayAndForget(path string, cleanup bool, timeout time.Duration) {
	go func() {
		err := m.PlayFile(context.Background(), path, cleanup, timeout)
		if err != nil {
			m.warnf("play_and_forget failed for %s: %v", path, err)
		}
	}()
}

// Terminate kills every subprocess this Manager currently tracks. Used on
// cancellation (SPEC_FULL §5) to guarantee no zombie process survives.
func (m *Manager) Terminate() {
	m.mu.Lock()
	procs := make([]*os.Process, 0, len(m.procs))

	for _, p := range m.procs {
		procs = append(procs, p)
	}

	m.mu.Unlock()

	for _, p := range procs {
		_ = p.Kill()
	}
}
