// =============================================================================
// server.go - Local redis-server Launch
// =============================================================================
//
// With --launch, the CLI starts a throwaway redis-server on the configured
// port when nothing answers there. The executable is searched for in:
//   1. the directory of the CLI binary
//   2. PATH
//   3. /usr/local/bin, /opt/homebrew/bin, ~/.local/bin
//
// A server launched this way runs without persistence and is sent SIGTERM
// when the CLI exits. A server that was already running is left alone.
//
// =============================================================================

package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
)

const (
	serverExecutableName = "redis-server"

	// serverStartTimeout bounds the wait for a launched server to listen.
	serverStartTimeout = 4 * time.Second

	serverPollInterval = 100 * time.Millisecond
)

// launchedServer is a redis-server started by this process.
type launchedServer struct {
	cmd    *exec.Cmd
	logger hclog.Logger
}

// launchServer starts redis-server on port and waits until it accepts
// connections.
func launchServer(ctx context.Context, port int, logger hclog.Logger) (*launchedServer, error) {
	exePath, err := findServerExecutable()
	if err != nil {
		return nil, fmt.Errorf("could not find %s executable: %w", serverExecutableName, err)
	}

	cmd := exec.Command(exePath,
		"--port", strconv.Itoa(port),
		"--bind", "127.0.0.1",
		"--save", "",
		"--appendonly", "no",
	)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to launch %s: %w", serverExecutableName, err)
	}
	srv := &launchedServer{cmd: cmd, logger: logger}
	logger.Info("launched server", "path", exePath, "pid", cmd.Process.Pid, "port", port)

	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
	if err := waitForPort(ctx, addr, serverStartTimeout); err != nil {
		srv.Stop()
		return nil, fmt.Errorf("%s started (PID: %d) but is not listening: %w", serverExecutableName, cmd.Process.Pid, err)
	}
	return srv, nil
}

// Pid returns the process id of the server.
func (s *launchedServer) Pid() int {
	return s.cmd.Process.Pid
}

// Stop terminates the server and reaps it.
func (s *launchedServer) Stop() {
	if s == nil || s.cmd.Process == nil {
		return
	}
	if err := s.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		s.logger.Debug("signal server", "error", err)
	}
	if err := s.cmd.Wait(); err != nil {
		s.logger.Debug("server exited", "error", err)
	}
}

// findServerExecutable locates redis-server.
func findServerExecutable() (string, error) {
	if selfPath, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(selfPath), serverExecutableName)
		if isExecutable(candidate) {
			return candidate, nil
		}
	}

	if path, err := exec.LookPath(serverExecutableName); err == nil {
		return path, nil
	}

	commonPaths := []string{
		"/usr/local/bin",
		"/opt/homebrew/bin",
		filepath.Join(homeDir(), ".local", "bin"),
	}
	for _, dir := range commonPaths {
		candidate := filepath.Join(dir, serverExecutableName)
		if isExecutable(candidate) {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("%s not found in PATH or common locations", serverExecutableName)
}

// waitForPort polls addr until a TCP connection succeeds or timeout passes.
func waitForPort(ctx context.Context, addr string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var d net.Dialer
	ticker := time.NewTicker(serverPollInterval)
	defer ticker.Stop()
	for {
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err == nil {
			conn.Close()
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for %s: %w", addr, err)
		case <-ticker.C:
		}
	}
}

// isExecutable reports whether path is a regular file with an execute bit.
func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir() && info.Mode().Perm()&0111 != 0
}
