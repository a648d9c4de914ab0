// Package transport provides the client's means of obtaining the
// three byte streams (in, out, err) to a freshly spawned server
// process on a remote host (spec.md §1, §6): in production, the
// standard streams of an ssh-invoked remote command.
package transport

import (
	"fmt"
	"os"
	"os/exec"

	"golang.org/x/sys/unix"
)

// Session is a spawned remote process's three stdio file descriptors,
// each put in non-blocking mode so they can be registered directly
// with the event loop.
type Session struct {
	cmd    *exec.Cmd
	Stdin  *os.File // client writes here; server's stdin
	Stdout *os.File // client reads here; server's stdout
	Stderr *os.File // client reads here; server's stderr
}

// SpawnSSH execs `ssh host remoteCmd args...`, wiring up pipe fds for
// the three streams and switching each to non-blocking mode.
func SpawnSSH(host, remoteCmd string, args ...string) (*Session, error) {
	sshArgs := append([]string{host, remoteCmd}, args...)
	cmd := exec.Command("ssh", sshArgs...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("transport: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("transport: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("transport: stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("transport: start ssh: %w", err)
	}

	in, ok1 := stdin.(*os.File)
	out, ok2 := stdout.(*os.File)
	errf, ok3 := stderr.(*os.File)
	if !ok1 || !ok2 || !ok3 {
		_ = cmd.Process.Kill()
		return nil, fmt.Errorf("transport: exec.Cmd did not return os.File pipes")
	}
	for _, f := range []*os.File{in, out, errf} {
		if err := unix.SetNonblock(int(f.Fd()), true); err != nil {
			_ = cmd.Process.Kill()
			return nil, fmt.Errorf("transport: set nonblocking %s: %w", f.Name(), err)
		}
	}

	return &Session{cmd: cmd, Stdin: in, Stdout: out, Stderr: errf}, nil
}

// In returns a reader over the server's stdout, suitable for driving
// from the event loop's read-fd callback.
func (s *Session) In() NonblockFile { return NonblockFile{Fd: int(s.Stdout.Fd())} }

// Err returns a reader over the server's stderr.
func (s *Session) Err() NonblockFile { return NonblockFile{Fd: int(s.Stderr.Fd())} }

// Out returns a writer over the server's stdin.
func (s *Session) Out() NonblockFile { return NonblockFile{Fd: int(s.Stdin.Fd())} }

// InFd, OutFd and ErrFd return the raw descriptors to register with
// the event loop.
func (s *Session) InFd() int  { return int(s.Stdout.Fd()) }
func (s *Session) OutFd() int { return int(s.Stdin.Fd()) }
func (s *Session) ErrFd() int { return int(s.Stderr.Fd()) }

// Wait blocks until the spawned ssh process exits.
func (s *Session) Wait() error { return s.cmd.Wait() }

// Close releases the session's pipes and kills the process if still running.
func (s *Session) Close() error {
	_ = s.Stdin.Close()
	_ = s.Stdout.Close()
	_ = s.Stderr.Close()
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	return nil
}
