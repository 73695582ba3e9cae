package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cmdscript/cmdscript/app"
	"github.com/cmdscript/cmdscript/config"
	"github.com/cmdscript/cmdscript/infra/logger"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "cmdscript <script-file>",
	Short: "Script-driven MQTT client",
	Long: `cmdscript reads a command script and drives an MQTT client through
it: connect, publish, subscribe-and-log, timed delays and periodic
publishing.`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "optional runtime configuration file (yaml or json)")
}

// Execute runs the CLI.
func Execute() error { return rootCmd.Execute() }

func run(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.New("main").Errorf("service close: %v", err)
		}
	}()
	return svc.Run(ctx, args[0])
}
