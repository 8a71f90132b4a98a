package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/jonathan/shop-harvester/internal/auth"
	"github.com/jonathan/shop-harvester/internal/checkpoint"
	"github.com/jonathan/shop-harvester/internal/client"
	"github.com/jonathan/shop-harvester/internal/config"
	"github.com/jonathan/shop-harvester/internal/dispatch"
	"github.com/jonathan/shop-harvester/internal/input"
	"github.com/jonathan/shop-harvester/internal/product"
	"github.com/jonathan/shop-harvester/internal/publish"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a harvest over the configured product list",
	Long:  "Authenticates against the shop, fetches catalog, pricing, and detail data for every product number in the input file, and writes the deduplicated CSV export. Interrupting the run persists a resumable partial snapshot.",
	RunE:  runHarvest,
}

var (
	runConfigPath string
	runVerbose    bool
)

func init() {
	runCmd.Flags().StringVarP(&runConfigPath, "config", "c", "config.json", "Path to config JSON file")
	runCmd.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.AddCommand(runCmd)
}

func runHarvest(cmd *cobra.Command, _ []string) error {
	logger, err := newLogger(runVerbose)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load(runConfigPath)
	if err != nil {
		return err
	}

	maxRows, limited, err := cfg.MaxRowsLimit()
	if err != nil {
		return err
	}

	// Failure to read the input list is run-fatal; everything past this
	// point degrades per identifier instead.
	ids, err := input.LoadProductNumbers(cfg.InputFile, maxRows, limited, logger)
	if err != nil {
		return err
	}

	run := dispatch.NewRunState()
	installSignalHandler(run, logger)

	login := &auth.BrowserLogin{
		LoginURL: cfg.LoginURL,
		ShopURL:  cfg.BaseURL,
		Username: cfg.Username,
		Password: cfg.Password,
		Headless: cfg.HeadlessMode(),
		Log:      logger,
	}
	creds := auth.NewCredentials(login, logger)

	limiter := rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Concurrency)
	exec := client.NewExecutor(cfg.RequestTimeout(), creds, limiter, logger)
	pipeline := product.NewPipeline(exec, strings.TrimRight(cfg.BaseURL, "/"), cfg.RSVQty, logger)

	store := checkpoint.NewStore(cfg.OutputFile, cfg.SaveEvery(), cfg.Overwrite(), logger)
	if err := store.Load(); err != nil {
		return err
	}

	publisher := &publish.FTPPublisher{
		Host:      cfg.FTPHost,
		Username:  cfg.FTPUsername,
		Password:  cfg.FTPPassword,
		Port:      cfg.FTPPort,
		Directory: cfg.FTPDirectory,
		Log:       logger,
	}

	dispatcher := dispatch.NewDispatcher(creds, pipeline, store, publisher, cfg.Concurrency, run, logger)

	state, err := dispatcher.Run(cmd.Context(), ids)
	switch state {
	case dispatch.StateCompleted:
		return nil
	case dispatch.StateInterrupted:
		return fmt.Errorf("run interrupted: nothing committed, partial snapshot retained for resume")
	default:
		return err
	}
}

// installSignalHandler wires the first interrupt to the cancellation flag.
// Further interrupts are acknowledged but have no additional effect.
func installSignalHandler(run *dispatch.RunState, logger *zap.Logger) {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		for sig := range sigCh {
			if run.Cancel() {
				logger.Warn("interrupt received, finishing in-flight work before shutdown",
					zap.String("signal", sig.String()))
			} else {
				logger.Warn("shutdown already in progress")
			}
		}
	}()
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
