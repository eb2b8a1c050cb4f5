// Command zynqctl is the board server CLI.
//
// The default command listens for the Zynq board, identifies it, and hands
// the terminal to an operator console that sends commands and shows what the
// board answers. The emulate command plays the board side for testing.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/1ureka/zynqctl/internal/app"
	"github.com/1ureka/zynqctl/internal/board"
	"github.com/1ureka/zynqctl/internal/config"
	"github.com/1ureka/zynqctl/internal/util"
)

var version = "dev"

func main() {
	// Root context, cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}
}

type serveFlags struct {
	configPath string
	host       string
	port       int
	bufferSize int
	allow      []string
	remote     string
	logFile    string
	padFrames  bool
	debug      bool
}

func newRootCmd() *cobra.Command {
	var f serveFlags

	root := &cobra.Command{
		Use:           "zynqctl",
		Short:         "Command-and-control server for a Zynq board",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, &f)
		},
	}
	addServeFlags(root, &f)

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Listen for the board and open the operator console (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, &f)
		},
	}
	addServeFlags(serve, &f)

	root.AddCommand(serve, newEmulateCmd())
	return root
}

func addServeFlags(cmd *cobra.Command, f *serveFlags) {
	cmd.Flags().StringVar(&f.configPath, "config", "", "TOML config file")
	cmd.Flags().StringVar(&f.host, "host", "", "listen host")
	cmd.Flags().IntVar(&f.port, "port", 0, "listen port, 0~65535")
	cmd.Flags().IntVar(&f.bufferSize, "buffer-size", 0, "receive buffer and file frame size")
	cmd.Flags().StringArrayVar(&f.allow, "allow", nil, "accepted board id in hex (repeatable)")
	cmd.Flags().StringVar(&f.remote, "remote", "", "enable the remote console on host:port")
	cmd.Flags().StringVar(&f.logFile, "log-file", "", "log file path")
	cmd.Flags().BoolVar(&f.padFrames, "pad-frames", false, "pad command frames to the buffer size")
	cmd.Flags().BoolVar(&f.debug, "debug", false, "enable debug logging")
}

func runServe(cmd *cobra.Command, f *serveFlags) error {
	cfg, err := resolveConfig(cmd, f)
	if err != nil {
		return err
	}

	pterm.Info.Println(fmt.Sprintf("zynqctl v%s", version))
	pterm.Println()

	return app.Run(cmd.Context(), cfg, os.Stdin, os.Stdout)
}

// resolveConfig layers defaults, the config file, and explicitly set flags.
func resolveConfig(cmd *cobra.Command, f *serveFlags) (config.Config, error) {
	cfg := config.Default()
	if f.configPath != "" {
		loaded, err := config.Load(f.configPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Address.Host = f.host
	}
	if flags.Changed("port") {
		cfg.Address.Port = f.port
	}
	if flags.Changed("buffer-size") {
		cfg.BufferSize = f.bufferSize
	}
	if flags.Changed("allow") {
		ids, err := config.ParseIDs(f.allow)
		if err != nil {
			return config.Config{}, err
		}
		cfg.AllowedIDs = ids
	}
	if flags.Changed("remote") {
		cfg.Remote.Enabled = true
		cfg.Remote.Addr = f.remote
	}
	if flags.Changed("log-file") {
		cfg.LogFile = f.logFile
	}
	if flags.Changed("pad-frames") {
		cfg.PadFrames = f.padFrames
	}
	if flags.Changed("debug") {
		cfg.Debug = f.debug
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func newEmulateCmd() *cobra.Command {
	var (
		addr       string
		id         string
		bufferSize int
		padFrames  bool
		legacyTag  bool
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "emulate",
		Short: "Connect to a server as an emulated board",
		RunE: func(cmd *cobra.Command, args []string) error {
			if debug {
				util.EnableDebug()
			}
			identity, err := config.ParseID(id)
			if err != nil {
				return err
			}
			return app.RunEmulator(cmd.Context(), app.EmulatorOptions{
				Addr: addr,
				Board: board.Options{
					Identity:      identity,
					BufferSize:    bufferSize,
					PadFrames:     padFrames,
					LegacyFileTag: legacyTag,
				},
			})
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:16384", "server host:port")
	cmd.Flags().StringVar(&id, "id", "0123456789ab", "identification reply in hex")
	cmd.Flags().IntVar(&bufferSize, "buffer-size", board.DefaultBufferSize, "server buffer size")
	cmd.Flags().BoolVar(&padFrames, "pad-frames", false, "server pads command frames")
	cmd.Flags().BoolVar(&legacyTag, "legacy-file-tag", false, "file chunks carry the board target")
	cmd.Flags().BoolVar(&debug, "debug", false, "enable debug logging")
	return cmd
}
