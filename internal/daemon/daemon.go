// Package daemon manages the background proxy process through its pid file.
package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// ErrNotRunning is returned when no live daemon matches the pid file.
var ErrNotRunning = fmt.Errorf("proxy is not running")

// ReadPID returns the pid recorded at path, or ErrNotRunning when the file is
// missing or unreadable.
func ReadPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, ErrNotRunning
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("corrupt pid file %q", path)
	}
	return pid, nil
}

// WritePID records the current process id.
func WritePID(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644)
}

// RemovePID deletes the pid file; a missing file is fine.
func RemovePID(path string) {
	_ = os.Remove(path)
}

// Alive reports whether a process with the given pid exists.
func Alive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// Signal 0 probes existence without delivering anything.
	return proc.Signal(syscall.Signal(0)) == nil
}

// Running returns the live daemon pid, cleaning up a stale pid file.
func Running(path string) (int, bool) {
	pid, err := ReadPID(path)
	if err != nil {
		return 0, false
	}
	if !Alive(pid) {
		RemovePID(path)
		return 0, false
	}
	return pid, true
}

// Start re-executes the current binary as a detached serve process, passing
// the remaining arguments through. The child writes its own pid file.
func Start(pidPath, logPath string, args []string) (int, error) {
	if pid, ok := Running(pidPath); ok {
		return pid, fmt.Errorf("proxy already running (pid %d)", pid)
	}

	self, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("locate executable: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return 0, fmt.Errorf("create state directory: %w", err)
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return 0, fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()

	cmd := exec.Command(self, args...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start daemon: %w", err)
	}
	// The child is on its own from here; reap it if it ever exits.
	go cmd.Wait()
	return cmd.Process.Pid, nil
}

// Stop sends SIGTERM to the daemon and waits briefly for it to exit.
func Stop(pidPath string) (int, error) {
	pid, ok := Running(pidPath)
	if !ok {
		return 0, ErrNotRunning
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return pid, err
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return pid, fmt.Errorf("signal pid %d: %w", pid, err)
	}
	for i := 0; i < 50; i++ {
		if !Alive(pid) {
			RemovePID(pidPath)
			return pid, nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return pid, fmt.Errorf("pid %d did not exit after SIGTERM", pid)
}
