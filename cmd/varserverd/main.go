// Command varserverd runs the variable server daemon.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/tjmonk/varserverd/internal/config"
	"github.com/tjmonk/varserverd/internal/logging"
	"github.com/tjmonk/varserverd/internal/varserver"
)

// version is set at build time via -ldflags, left at "dev" otherwise.
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "varserverd",
		Short: "In-memory pub/sub variable server",
	}
	root.AddCommand(newServeCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the daemon version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(version)
			return nil
		},
	}
}

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the variable server daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath, cmd.Flags())
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to a YAML config file")
	cmd.Flags().Bool("debug", false, "enable debug logging")
	cmd.Flags().String("local-socket-path", "", "UNIX socket path for local clients")
	cmd.Flags().String("local-socket-group", "", "group name or gid owning the local socket")
	cmd.Flags().String("tcp-address", "", "TCP listen address for remote clients")
	cmd.Flags().Int("tcp-port", 0, "TCP listen port for remote clients")
	cmd.Flags().String("admin-http-address", "", "loopback address for the admin HTTP surface, e.g. 127.0.0.1:8080")
	cmd.Flags().Bool("trust-tcp-credentials", false, "trust OPEN's client-declared uid/gid on the TCP transport")

	return cmd
}

func runServe(configPath string, flags *pflag.FlagSet) error {
	debug, _ := flags.GetBool("debug")
	logging.ConfigureOutput(debug)
	log := logging.New("varserverd")

	cfg, err := config.Load(configPath, flags)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := varserver.New(cfg, log)
	log.Info("starting varserverd: local=%q tcp=%q:%d admin=%q", cfg.LocalSocketPath, cfg.TCPAddress, cfg.TCPPort, cfg.AdminHTTPAddress)
	return srv.Run(ctx)
}
