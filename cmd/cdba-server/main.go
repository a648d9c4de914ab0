package main

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/2lambda123/linux-msm-cdba/internal/board"
	"github.com/2lambda123/linux-msm-cdba/internal/device"
	"github.com/2lambda123/linux-msm-cdba/internal/eventloop"
	"github.com/2lambda123/linux-msm-cdba/internal/metrics"
	"github.com/2lambda123/linux-msm-cdba/internal/server"
	"github.com/2lambda123/linux-msm-cdba/internal/transport"
)

func main() {
	cfg, showVersion := parseFlags()
	if showVersion {
		fmt.Printf("cdba-server %s (commit %s, built %s)\n", version, commit, date)
		return
	}
	if cfg == nil {
		os.Exit(1)
	}
	l := setupLogger(cfg.logFormat, cfg.logLevel)

	var inv *board.Inventory
	var err error
	if cfg.inventoryPath != "" {
		inv, err = board.Load(cfg.inventoryPath)
	} else {
		inv, err = board.LoadDefault()
	}
	if err != nil {
		l.Error("inventory_load_failed", "error", err)
		os.Exit(1)
	}

	for _, fd := range []int{int(os.Stdin.Fd()), int(os.Stdout.Fd())} {
		if err := unix.SetNonblock(fd, true); err != nil {
			l.Error("set_nonblock_failed", "fd", fd, "error", err)
			os.Exit(1)
		}
	}

	loop := eventloop.New()
	backend := &device.Local{
		Inv:         inv,
		Loop:        loop,
		Log:         l,
		FastbootBin: cfg.fastbootBin,
	}

	if cfg.metricsAddr != "" {
		metrics.InitBuildInfo(version, commit, date)
		srvHTTP := metrics.StartHTTP(cfg.metricsAddr)
		defer func() { _ = srvHTTP.Shutdown(context.Background()) }()
	}

	sess := server.NewSession(server.Config{
		User:      board.ResolveUser(),
		Inventory: inv,
		Backend:   backend,
	}, server.Streams{
		In:    transport.NonblockFile{Fd: int(os.Stdin.Fd())},
		InFd:  int(os.Stdin.Fd()),
		Out:   transport.NonblockFile{Fd: int(os.Stdout.Fd())},
		OutFd: int(os.Stdout.Fd()),
		Err:   os.Stderr,
	}, loop, l)

	code := sess.Run()
	redirectToNull()
	os.Exit(code)
}

// redirectToNull implements spec.md §4.4's shutdown step: once the
// event loop has exited, standard input and output are pointed at
// /dev/null so any straggling driver callback cannot write to a pipe
// the remote peer has already closed.
func redirectToNull() {
	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return
	}
	defer devNull.Close()
	_ = unix.Dup2(int(devNull.Fd()), int(os.Stdin.Fd()))
	_ = unix.Dup2(int(devNull.Fd()), int(os.Stdout.Fd()))
}
