// Package local implements the Local Neural Provider (SPEC_FULL §4.9) and
// its wire protocol (SPEC_FULL §6): JSON lines over a persistent TCP
// socket to a forked synthesis server, length-prefixed binary response
// chunks terminated by an empty frame. Liveness probe/poll/fork
// sequencing is grounded on tts_cli/voice_manager.py's
// _ensure_server_running/_is_server_running.
package local

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net"
	"os/exec"
	"sync"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/speakctl/internal/core"
)

const (
	dialTimeout     = 2 * time.Second
	pollInterval    = 1 * time.Second
	frameLenBytes   = 4
	maxFrameBytes   = 64 << 20 // 64MiB, guards against a corrupt length prefix
)

// ServerConfig describes how to reach and, if necessary, start the local
// synthesis server.
type ServerConfig struct {
	Host                  string
	Port                  int
	Binary                string
	StartupTimeoutSeconds int
}

// client owns the TCP connection lifecycle to the local synthesis server,
// including forking it when absent. It is not exported; Provider is the
// core.Provider surface.
type client struct {
	cfg  ServerConfig
	log  *logger.Logger
	mu   sync.Mutex
	proc *exec.Cmd
}

func newClient(cfg ServerConfig, log *logger.Logger) *client {
	return &client{cfg: cfg, log: log}
}

func (c *client) addr() string {
	return fmt.Sprintf("%s:%d", c.cfg.Host, c.cfg.Port)
}

func (c *client) isRunning() bool {
	conn, err := net.DialTimeout("tcp", c.addr(), dialTimeout)
	if err != nil {
		return false
	}

	_ = conn.Close()

	return true
}

// ensureRunning probes liveness; if absent, forks the server binary and
// polls until it accepts connections or the startup timeout elapses.
func (c *client) ensureRunning(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isRunning() {
		return nil
	}

	if c.log != nil {
		c.log.Info("starting local synthesis server %q on %s", c.cfg.Binary, c.addr())
	}

	// #nosec G204 -- binary path and args come from trusted local configuration.
	cmd := exec.CommandContext(context.Background(), c.cfg.Binary, "--host", c.cfg.Host, "--port", fmt.Sprint(c.cfg.Port))

	if err := cmd.Start(); err != nil {
		return core.NewDependencyError("local", fmt.Sprintf("failed to start local synthesis server %q", c.cfg.Binary), err)
	}

	c.proc = cmd

	timeout := time.Duration(c.cfg.StartupTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		if c.isRunning() {
			if c.log != nil {
				c.log.Info("local synthesis server is ready")
			}

			return nil
		}

		select {
		case <-ctx.Done():
			return core.NewCancelledError("cancelled while waiting for local synthesis server", ctx.Err())
		case <-time.After(pollInterval):
		}
	}

	return core.NewDependencyError("local", "local synthesis server failed to start within timeout", nil)
}

// command is the JSON-lines request envelope (voice_manager.py's command
// dict, generalised to every action this provider needs).
type command struct {
	Action    string         `json:"action"`
	Text      string         `json:"text,omitempty"`
	VoicePath string         `json:"voice_path,omitempty"`
	VoiceID   string         `json:"voice_id,omitempty"`
	Options   map[string]any `json:"options,omitempty"`
}

type reply struct {
	Status        string   `json:"status"`
	Error         string   `json:"error,omitempty"`
	VoiceID       string   `json:"voice_id,omitempty"`
	UnloadedCount int      `json:"unloaded_count,omitempty"`
	Voices        []string `json:"voices,omitempty"`
}

// sendCommand writes one JSON line and reads one JSON line back. Used for
// every control-plane action (load/unload/list); synthesis uses
// sendStreamingCommand instead, since its response is a binary frame
// stream rather than a JSON reply.
func (c *client) sendCommand(ctx context.Context, cmd command) (reply, error) {
	if err := c.ensureRunning(ctx); err != nil {
		return reply{}, err
	}

	conn, err := net.DialTimeout("tcp", c.addr(), dialTimeout)
	if err != nil {
		return reply{}, core.NewNetworkError("local", "failed to connect to local synthesis server", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	encoded, err := json.Marshal(cmd)
	if err != nil {
		return reply{}, core.NewInternalError("failed to marshal local server command", err)
	}

	if _, err := conn.Write(append(encoded, '\n')); err != nil {
		return reply{}, core.NewNetworkError("local", "failed to write command", err)
	}

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		return reply{}, core.NewNetworkError("local", "failed to read server reply", err)
	}

	var r reply
	if err := json.Unmarshal(line, &r); err != nil {
		return reply{}, core.NewInternalError("invalid local server reply", err)
	}

	if r.Status != "success" {
		return r, core.NewProviderError("local", r.Error, nil, true)
	}

	return r, nil
}

// sendSynthesize issues a synthesize command and streams the length-prefixed
// binary response frames into sink until an empty frame terminates the
// stream.
func (c *client) sendSynthesize(ctx context.Context, cmd command, sink func([]byte) error) error {
	if err := c.ensureRunning(ctx); err != nil {
		return err
	}

	conn, err := net.DialTimeout("tcp", c.addr(), dialTimeout)
	if err != nil {
		return core.NewNetworkError("local", "failed to connect to local synthesis server", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	encoded, err := json.Marshal(cmd)
	if err != nil {
		return core.NewInternalError("failed to marshal local server command", err)
	}

	if _, err := conn.Write(append(encoded, '\n')); err != nil {
		return core.NewNetworkError("local", "failed to write synthesize command", err)
	}

	reader := bufio.NewReader(conn)

	for {
		lenBuf := make([]byte, frameLenBytes)

		if _, err := readFull(reader, lenBuf); err != nil {
			return core.NewNetworkError("local", "failed to read frame length", err)
		}

		frameLen := binary.BigEndian.Uint32(lenBuf)
		if frameLen == 0 {
			return nil
		}

		if frameLen > maxFrameBytes {
			return core.NewInternalError("local server frame exceeds maximum size", nil)
		}

		frame := make([]byte, frameLen)

		if _, err := readFull(reader, frame); err != nil {
			return core.NewNetworkError("local", "failed to read frame body", err)
		}

		if err := sink(frame); err != nil {
			return err
		}
	}
}

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	total := 0

	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n

		if err != nil {
			return total, err
		}
	}

	return total, nil
}

// shutdown sends a shutdown command if the server is running; it does not
// fork a server solely to shut it down.
func (c *client) shutdown(ctx context.Context) error {
	if !c.isRunning() {
		return nil
	}

	_, err := c.sendCommand(ctx, command{Action: "shutdown"})

	return err
}
