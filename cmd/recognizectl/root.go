package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/recognizeim/internal/config"
	"github.com/example/recognizeim/internal/logging"
	"github.com/example/recognizeim/internal/upstream"
	"github.com/example/recognizeim/sdk/recognize"
)

// Version is the application version.
const Version = "0.1.0"

// app carries state shared by subcommands once the root pre-run has
// authenticated.
type app struct {
	configFile string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
	client *recognize.Client
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "recognizectl",
		Short:         "Manage a recognize.im image corpus",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Runnable() || cmd.Name() == "help" {
				return nil
			}
			return a.connect(cmd.Context())
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	root.PersistentFlags().StringVar(&a.configFile, "config", "", "config file (default: ./recognize.yaml)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log HTTP traffic to stderr")

	root.AddCommand(
		newAuthCmd(a),
		newIndexCmd(a),
		newImageCmd(a),
		newCallbackCmd(a),
		newLimitsCmd(a),
		newModeCmd(a),
		newRecognizeCmd(a),
	)
	return root
}

// connect loads configuration and authenticates against recognize.im.
func (a *app) connect(ctx context.Context) error {
	cfg, err := config.Load(a.configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logging.NewConsoleLogger(a.verbose)

	client, err := recognize.New(ctx, cfg.Recognize.ClientID, cfg.Recognize.APIKey, cfg.Recognize.ClapiKey,
		upstream.Options(cfg.Recognize, a.logger)...)
	if err != nil {
		return fmt.Errorf("failed to authenticate: %w", err)
	}
	a.client = client
	return nil
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		die(err)
	}
}

func die(err error) {
	fmt.Fprintf(os.Stderr, "recognizectl: %v\n", err)
	os.Exit(1)
}
