package eventloop

import (
	"os"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

// TestLoop_TimerOrdering is spec invariant 7: timers fire in non-decreasing
// deadline order, even when several expire between two Select passes.
func TestLoop_TimerOrdering(t *testing.T) {
	l := New()
	var fired []int

	l.AddTimer(30*time.Millisecond, func() { fired = append(fired, 3) })
	l.AddTimer(10*time.Millisecond, func() { fired = append(fired, 1) })
	l.AddTimer(20*time.Millisecond, func() { fired = append(fired, 2) })
	l.AddTimer(40*time.Millisecond, func() {
		fired = append(fired, 4)
		l.Quit()
	})

	if err := l.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	want := []int{1, 2, 3, 4}
	if len(fired) != len(want) {
		t.Fatalf("fired = %v, want %v", fired, want)
	}
	for i := range want {
		if fired[i] != want[i] {
			t.Fatalf("fired = %v, want %v", fired, want)
		}
	}
}

func TestLoop_CancelTimer(t *testing.T) {
	l := New()
	ran := false
	h := l.AddTimer(5*time.Millisecond, func() { ran = true })
	h.Cancel()
	l.AddTimer(10*time.Millisecond, func() { l.Quit() })

	if err := l.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	if ran {
		t.Fatalf("canceled timer fired")
	}
}

func TestLoop_ReadFd(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer r.Close()
	defer w.Close()

	l := New()
	got := make([]byte, 0)
	l.AddReadFd(int(r.Fd()), func(fd int) error {
		buf := make([]byte, 16)
		n, err := unix.Read(fd, buf)
		if err != nil {
			return err
		}
		got = append(got, buf[:n]...)
		l.Quit()
		return nil
	})
	l.AddTimer(200*time.Millisecond, func() { l.Quit() })

	go func() {
		time.Sleep(5 * time.Millisecond)
		_, _ = w.Write([]byte("hi"))
	}()

	if err := l.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	if string(got) != "hi" {
		t.Fatalf("got %q, want %q", got, "hi")
	}
}

func TestLoop_WriteFdArming(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer r.Close()
	defer w.Close()

	l := New()
	wrote := false
	l.SetWriteFd(int(w.Fd()), func(fd int) error {
		if wrote {
			t.Fatalf("write callback fired twice while disarmed between")
		}
		wrote = true
		l.ArmWrite(false)
		l.Quit()
		return nil
	})
	// Disarmed by default: must not fire before ArmWrite(true).
	l.AddTimer(20*time.Millisecond, func() {
		if wrote {
			return
		}
		l.ArmWrite(true)
	})
	l.AddTimer(200*time.Millisecond, func() { l.Quit() })

	if err := l.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !wrote {
		t.Fatalf("write callback never fired after arming")
	}
}
