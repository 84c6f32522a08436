// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/ljie-PI/ghcp-ollama/internal/config"
)

// start re-execs the binary detached with the run command and records the
// child pid.
func start(cfg *config.Config, stdout io.Writer, configPath string) error {
	if pid, err := readPIDFile(cfg.PIDFile()); err == nil && processAlive(pid) {
		return fmt.Errorf("gateway already running with pid %d", pid)
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to locate executable: %w", err)
	}
	args := []string{"run", "--port", strconv.Itoa(cfg.Port)}
	if configPath != "" {
		args = append(args, "--config", configPath)
	}

	if err := os.MkdirAll(cfg.StateDir, 0o700); err != nil {
		return fmt.Errorf("failed to create state dir: %w", err)
	}
	logFile, err := os.OpenFile(filepath.Join(cfg.StateDir, "ghcp-ollama.log"),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer logFile.Close()

	child := exec.Command(exe, args...)
	child.Stdout = logFile
	child.Stderr = logFile
	child.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := child.Start(); err != nil {
		return fmt.Errorf("failed to start gateway: %w", err)
	}
	if err := writePIDFile(cfg.PIDFile(), child.Process.Pid); err != nil {
		_ = child.Process.Kill()
		return err
	}
	fmt.Fprintf(stdout, "Started gateway with pid %d on port %d\n", child.Process.Pid, cfg.Port)
	return nil
}

// stop sends SIGTERM to the pidfile owner.
func stop(cfg *config.Config, stdout io.Writer) error {
	pid, err := readPIDFile(cfg.PIDFile())
	if err != nil {
		return fmt.Errorf("gateway does not appear to be running: %w", err)
	}
	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
		_ = os.Remove(cfg.PIDFile())
		return fmt.Errorf("failed to signal pid %d: %w", pid, err)
	}
	_ = os.Remove(cfg.PIDFile())
	fmt.Fprintf(stdout, "Stopped gateway with pid %d\n", pid)
	return nil
}

// status reports pidfile liveness and probes the listen port.
func status(cfg *config.Config, stdout io.Writer) error {
	pid, err := readPIDFile(cfg.PIDFile())
	if err != nil || !processAlive(pid) {
		fmt.Fprintln(stdout, "Gateway is not running")
		return nil
	}

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://127.0.0.1:%d/", cfg.Port))
	if err != nil {
		fmt.Fprintf(stdout, "Gateway pid %d is alive but not answering on port %d\n", pid, cfg.Port)
		return nil
	}
	resp.Body.Close()
	fmt.Fprintf(stdout, "Gateway is running with pid %d on port %d\n", pid, cfg.Port)
	return nil
}

func writePIDFile(path string, pid int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create state dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(strconv.Itoa(pid)), 0o600); err != nil {
		return fmt.Errorf("failed to write pidfile: %w", err)
	}
	return nil
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("malformed pidfile %s: %w", path, err)
	}
	return pid, nil
}

// processAlive reports whether pid exists, by signal 0.
func processAlive(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}
