// Package ptyexec spawns child processes attached to a pseudo-terminal
// and exposes them as bounded byte channels, generalizing the
// interactive-attach idiom the controller package used for container
// sessions to bare process spawning.
package ptyexec

import (
	"context"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"

	"github.com/creack/pty"
)

const channelBufferSize = 256

// Handle is a running spawned process attached to a pseudo-terminal.
type Handle interface {
	// Send writes a buffer to the child's stdin. Returns false if the
	// writer is closed.
	Send(data []byte) bool
	// Recv is the channel of output chunks read from the child. It is
	// closed when the child exits or its pty is closed.
	Recv() <-chan []byte
	// Alive reports whether the process is still considered live.
	Alive() bool
	// Abort marks the process dead and releases its resources.
	Abort()
	// Drain pulls any output buffered but not yet delivered, without
	// blocking.
	Drain() [][]byte
}

// Spawner spawns a named executable with args and environment pairs.
type Spawner interface {
	Spawn(ctx context.Context, name string, args []string, env []string) (Handle, error)
}

// PtySpawner spawns real OS processes behind a pseudo-terminal.
type PtySpawner struct{}

// NewPtySpawner constructs a real PTY-backed spawner.
func NewPtySpawner() *PtySpawner { return &PtySpawner{} }

func (s *PtySpawner) Spawn(ctx context.Context, name string, args []string, env []string) (Handle, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(os.Environ(), env...)

	f, err := pty.Start(cmd)
	if err != nil {
		return nil, &SpawnError{Cause: err}
	}

	h := &ptyHandle{
		cmd:    cmd,
		pty:    f,
		send:   make(chan []byte, channelBufferSize),
		recv:   make(chan []byte, channelBufferSize),
		alive:  1,
		drainM: make([][]byte, 0, 8),
	}
	h.wg.Add(2)
	go h.writeLoop()
	go h.readLoop()
	go h.waitLoop()
	return h, nil
}

// SpawnError is returned when the underlying process could not be
// started (pty allocation failure, missing binary, permissions).
type SpawnError struct{ Cause error }

func (e *SpawnError) Error() string { return "pty spawn failed: " + e.Cause.Error() }
func (e *SpawnError) Unwrap() error { return e.Cause }

type ptyHandle struct {
	cmd *exec.Cmd
	pty *os.File

	send chan []byte
	recv chan []byte

	alive int32

	mu     sync.Mutex
	drainM [][]byte

	wg sync.WaitGroup
}

func (h *ptyHandle) Send(data []byte) bool {
	if !h.Alive() {
		return false
	}
	h.send <- data
	return true
}

func (h *ptyHandle) Recv() <-chan []byte { return h.recv }

func (h *ptyHandle) Alive() bool { return atomic.LoadInt32(&h.alive) != 0 }

func (h *ptyHandle) Abort() {
	if atomic.CompareAndSwapInt32(&h.alive, 1, 0) {
		_ = h.cmd.Process.Kill()
		_ = h.pty.Close()
	}
}

func (h *ptyHandle) Drain() [][]byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := h.drainM
	h.drainM = nil
	for {
		select {
		case b, ok := <-h.recv:
			if !ok {
				return out
			}
			out = append(out, b)
		default:
			return out
		}
	}
}

func (h *ptyHandle) writeLoop() {
	defer h.wg.Done()
	for data := range h.send {
		if !h.Alive() {
			return
		}
		if _, err := h.pty.Write(append(data, '\n')); err != nil {
			return
		}
	}
}

func (h *ptyHandle) readLoop() {
	defer h.wg.Done()
	defer close(h.recv)
	buf := make([]byte, 4096)
	for {
		n, err := h.pty.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case h.recv <- chunk:
			default:
				h.mu.Lock()
				h.drainM = append(h.drainM, chunk)
				h.mu.Unlock()
			}
		}
		if err != nil {
			if err == io.EOF {
				return
			}
			return
		}
	}
}

func (h *ptyHandle) waitLoop() {
	_ = h.cmd.Wait()
	atomic.StoreInt32(&h.alive, 0)
}
