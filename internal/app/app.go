// Package app contains the top-level orchestration of the board server and
// the board emulator.
package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pterm/pterm"

	"github.com/1ureka/zynqctl/internal/board"
	"github.com/1ureka/zynqctl/internal/config"
	"github.com/1ureka/zynqctl/internal/console"
	"github.com/1ureka/zynqctl/internal/dispatch"
	"github.com/1ureka/zynqctl/internal/monitor"
	"github.com/1ureka/zynqctl/internal/remote"
	"github.com/1ureka/zynqctl/internal/transport"
	"github.com/1ureka/zynqctl/internal/util"
)

// Run orchestrates the server lifecycle:
//  1. Redirect logs to the log file
//  2. Bind the board listener
//  3. Start the optional remote console
//  4. Run the monitor and the stats reporter
//  5. Read operator commands until exit, EOF, or ctx is cancelled
//  6. Stop everything
func Run(ctx context.Context, cfg config.Config, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// ── 1. Logging ─────────────────────────────────────────────────────
	if cfg.Debug {
		util.EnableDebug()
	}
	closeLog, err := openLog(cfg.LogFile)
	if err != nil {
		return err
	}
	defer closeLog()

	// ── 2. Board listener ──────────────────────────────────────────────
	mgr := transport.NewManager(transportConfig(cfg))
	if err := mgr.Start(); err != nil {
		return err
	}
	defer mgr.Stop()

	d := dispatch.New(mgr, dispatch.Options{AllowRaw: cfg.AllowRaw, OnExit: cancel})
	con := console.New(in, out, d, mgr, console.DefaultTheme())
	sinks := console.Multi{con}

	// ── 3. Remote console ──────────────────────────────────────────────
	if cfg.Remote.Enabled {
		rs := remote.NewServer(cfg.Remote.PIN, d)
		rs.Echo(con)
		addr, err := rs.Start(cfg.Remote.Addr)
		if err != nil {
			return err
		}
		defer rs.Close()
		sinks = append(sinks, rs)

		fmt.Fprintln(out, pterm.DefaultBox.WithTitle("Remote console").Sprint(
			fmt.Sprintf("URL : ws://%s/ws\nPIN : %s", addr, rs.PIN())))
	}

	// ── 4. Background loops ────────────────────────────────────────────
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		monitor.New(mgr, sinks, cfg.DrainInterval).Run(ctx)
	}()
	util.StartStatsReporter(ctx)

	con.OnReceivedEntry("server", fmt.Sprintf("listening on %s", mgr.Addr()), console.Info)

	// ── 5. Operator loop ───────────────────────────────────────────────
	err = con.Run(ctx)

	// ── 6. Shutdown ────────────────────────────────────────────────────
	cancel()
	mgr.Stop()
	wg.Wait()
	return err
}

// transportConfig maps the file/flag settings onto the connection manager.
func transportConfig(cfg config.Config) transport.Config {
	tc := transport.Config{
		Addr:            cfg.Address.String(),
		BufferSize:      cfg.BufferSize,
		PollInterval:    cfg.PollInterval,
		RecvPoll:        cfg.RecvPoll,
		IdentifyTimeout: cfg.IdentifyTimeout,
		IdentifyRetry:   cfg.IdentifyRetry,
		PadFrames:       cfg.PadFrames,
		LegacyFileTag:   cfg.LegacyFileTag,
		Predicate:       transport.AcceptAny,
	}
	if len(cfg.AllowedIDs) > 0 {
		tc.Predicate = transport.NewAllowList(cfg.AllowedIDs...)
	} else {
		util.LogWarning("no allowed_ids configured: any board that answers identification is accepted")
	}
	return tc
}

// openLog sends the logger to path, or to the dated default when path is
// empty. The terminal stays free for the console.
func openLog(path string) (func(), error) {
	if path == "" {
		path = config.DefaultLogFile(time.Now())
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	util.SetLogOutput(f)
	util.LogInfo("zynqctl started, logging to %s", path)
	return func() {
		util.SetLogOutput(os.Stderr)
		f.Close()
	}, nil
}

// EmulatorOptions configures RunEmulator.
type EmulatorOptions struct {
	Addr  string
	Board board.Options
}

// RunEmulator connects an emulated board and serves it until ctx is
// cancelled or the server drops it. On cancellation the board hangs up
// with the disconnect sentinel.
func RunEmulator(ctx context.Context, opts EmulatorOptions) error {
	b, err := board.Dial(ctx, opts.Addr, opts.Board)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- b.Run(runCtx) }()

	select {
	case err := <-done:
		st := b.Stats()
		util.LogInfo("board disconnected: %d commands, %d file chunks (%s)", st.Commands, st.Chunks, util.FormatBytes(float64(st.FileBytes)))
		return err
	case <-ctx.Done():
		if err := b.Hangup(); err != nil {
			util.LogWarning("hangup failed: %v", err)
		}
		cancel()
		<-done
		return nil
	}
}
