package service

import (
	"os/exec"
	"sync"

	"github.com/pkg/errors"
)

// WakeLock keeps the host awake while noise plays. Acquire and Release are idempotent.
type WakeLock interface {
	Acquire() error
	Release() error
	Held() bool
}

// NopWakeLock only tracks whether it is held.
type NopWakeLock struct {
	mu   sync.Mutex
	held bool
}

func (l *NopWakeLock) Acquire() error {
	l.mu.Lock()
	l.held = true
	l.mu.Unlock()
	return nil
}

func (l *NopWakeLock) Release() error {
	l.mu.Lock()
	l.held = false
	l.mu.Unlock()
	return nil
}

func (l *NopWakeLock) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held
}

// Inhibitor holds a wake lock by running a child process for as long as the lock is held,
// systemd-inhibit by default. There is no timeout: the lock lasts until Release.
type Inhibitor struct {
	Path string
	Args []string

	mu  sync.Mutex
	cmd *exec.Cmd
}

// NewInhibitor returns an Inhibitor blocking idle and sleep through systemd-inhibit.
func NewInhibitor(who, why string) *Inhibitor {
	return &Inhibitor{
		Path: "systemd-inhibit",
		Args: []string{
			"--what=idle:sleep",
			"--who=" + who,
			"--why=" + why,
			"--mode=block",
			"sleep", "infinity",
		},
	}
}

func (in *Inhibitor) Acquire() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.cmd != nil {
		return nil
	}
	cmd := exec.Command(in.Path, in.Args...)
	if err := cmd.Start(); err != nil {
		return errors.Wrap(err, "wake lock: start inhibitor")
	}
	in.cmd = cmd
	return nil
}

func (in *Inhibitor) Release() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.cmd == nil {
		return nil
	}
	cmd := in.cmd
	in.cmd = nil
	if err := cmd.Process.Kill(); err != nil {
		return errors.Wrap(err, "wake lock: stop inhibitor")
	}
	// the exit status of a killed process is expected
	_ = cmd.Wait()
	return nil
}

func (in *Inhibitor) Held() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.cmd != nil
}
