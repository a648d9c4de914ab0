// Command cdba is the operator-facing client of spec.md §1: it spawns
// a cdba-server process on a remote host over ssh, puts the local
// terminal in raw mode when attached to one, and drives the
// client-side session state machine to completion.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/2lambda123/linux-msm-cdba/internal/client"
	"github.com/2lambda123/linux-msm-cdba/internal/discovery"
	"github.com/2lambda123/linux-msm-cdba/internal/eventloop"
	"github.com/2lambda123/linux-msm-cdba/internal/logging"
	"github.com/2lambda123/linux-msm-cdba/internal/transport"
)

func main() {
	cfg, showVersion := parseFlags()
	if showVersion {
		fmt.Printf("cdba %s (commit %s, built %s)\n", version, commit, date)
		return
	}
	if cfg == nil {
		os.Exit(client.ExitTransportError)
	}

	l := logging.New("text", nil, os.Stderr).With("app", "cdba")

	if cfg.discoverVerb {
		os.Exit(runDiscover())
	}

	sess, err := transport.SpawnSSH(cfg.host, cfg.serverBin)
	if err != nil {
		l.Error("spawn_failed", "error", err)
		os.Exit(client.ExitTransportError)
	}
	defer sess.Close()

	var raw *transport.RawTerminal
	hasIn := !cfg.listVerb && !cfg.infoVerb
	if hasIn && isatty(os.Stdin.Fd()) {
		raw, err = transport.MakeRaw(int(os.Stdin.Fd()))
		if err != nil {
			l.Warn("raw_mode_failed", "error", err)
		} else {
			defer raw.Restore()
		}
	}

	loop := eventloop.New()
	streams := client.Streams{
		ServerIn:    sess.Out(),
		ServerOut:   sess.In(),
		ServerErr:   sess.Err(),
		ServerInFd:  sess.OutFd(),
		ServerOutFd: sess.InFd(),
		ServerErrFd: sess.ErrFd(),
		Out:         os.Stdout,
		Err:         os.Stderr,
	}
	if hasIn {
		streams.In = transport.NonblockFile{Fd: int(os.Stdin.Fd())}
		streams.InFd = int(os.Stdin.Fd())
		streams.HasIn = true
		if err := unix.SetNonblock(int(os.Stdin.Fd()), true); err != nil {
			l.Warn("stdin_nonblock_failed", "error", err)
			streams.HasIn = false
		}
	}

	clientCfg := client.Config{
		Board:             cfg.board,
		TotalTimeout:      cfg.totalTimeout,
		InactivityTimeout: cfg.inactivityTimeout,
		PowerCycles:       cfg.powerCycles,
		CycleOnTimeout:    cfg.cycleOnTimeout,
		RepeatBoot:        cfg.repeatBoot,
		ImagePath:         cfg.imagePath,
		InfoVerb:          cfg.infoVerb,
		ListVerb:          cfg.listVerb,
	}

	session := client.NewSession(clientCfg, streams, loop, l)
	code := session.Run()

	if raw != nil {
		_ = raw.Restore()
	}
	_ = sess.Wait()
	os.Exit(code)
}

func runDiscover() int {
	hosts, err := discovery.Browse(context.Background(), 3*time.Second)
	if err != nil {
		fmt.Fprintf(os.Stderr, "discover: %v\n", err)
		return client.ExitTransportError
	}
	if len(hosts) == 0 {
		fmt.Println("no cdba-server hosts found")
		return client.ExitOK
	}
	for _, h := range hosts {
		fmt.Printf("%s\t%s:%d\tboards=%s\n", h.Instance, h.Addr, h.Port, joinBoards(h.Boards))
	}
	return client.ExitOK
}

func joinBoards(boards []string) string {
	if len(boards) == 0 {
		return "-"
	}
	out := boards[0]
	for _, b := range boards[1:] {
		out += "," + b
	}
	return out
}

func isatty(fd uintptr) bool {
	_, err := unix.IoctlGetTermios(int(fd), unix.TCGETS)
	return err == nil
}
