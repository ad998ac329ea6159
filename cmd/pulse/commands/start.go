package commands

import (
	"context"
	"fmt"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/solpulse/engine/internal/conviction"
	"github.com/solpulse/engine/internal/discovery"
	"github.com/solpulse/engine/internal/ingest"
	"github.com/solpulse/engine/internal/metadata"
	"github.com/solpulse/engine/internal/notify"
	"github.com/solpulse/engine/internal/outcome"
	"github.com/solpulse/engine/internal/risk"
	"github.com/solpulse/engine/internal/scheduler"
	"github.com/solpulse/engine/internal/scheduler/jobs"
	"github.com/solpulse/engine/internal/signal"
	"github.com/solpulse/engine/pkg/httputil"
	"github.com/solpulse/engine/pkg/redis"
)

// startCmd runs the full pipeline
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the signal engine",
	Long: `Starts the full pipeline:
- webhook ingress for transaction events
- websocket stream for tracked wallet transactions
- alert dispatch to configured sinks
- scheduled outcome checks, conviction rescoring and wallet discovery

Example:
  go run ./cmd/pulse start
  go run ./cmd/pulse start --no-stream`,
	RunE: runStart,
}

var startNoStream bool

func init() {
	rootCmd.AddCommand(startCmd)

	startCmd.Flags().BoolVar(&startNoStream, "no-stream", false, "disable the websocket stream, webhook ingress only")
}

func runStart(cmd *cobra.Command, args []string) error {
	fmt.Println("=== SolPulse Signal Engine ===")

	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.Close()

	log := app.log
	log.WithField("env", app.cfg.Env).Info("Initializing signal engine")

	httpClient := httputil.New(log)
	cache := redis.NewCache(app.redis, "solpulse")

	meta := metadata.NewService(app.cfg.RPC, httpClient, cache, log)
	assessor := risk.NewDetector(meta, httpClient, app.cfg.RPC, log)
	processor := signal.NewProcessor(app.store, meta, assessor, app.cfg.Signals, log)

	tracker := outcome.NewTracker(app.store, meta, log)
	calculator := conviction.NewCalculator(app.store, log)

	scraper := discovery.NewScraper(httpClient, log)
	screener := discovery.NewDexscreenerClient(httpClient, log)
	discoverer := discovery.NewService(scraper, screener, app.store.Wallets, app.cfg.Wallets, log)

	var sinks []notify.Sink
	if app.cfg.Telegram.BotToken != "" {
		tg, err := notify.NewTelegramSink(app.cfg.Telegram, log)
		if err != nil {
			return fmt.Errorf("telegram sink: %w", err)
		}
		sinks = append(sinks, tg)
	}
	if len(sinks) == 0 {
		log.Warn("No notification sinks configured, alerts stay queued")
	}
	dispatcher := notify.NewDispatcher(app.store, sinks, log)

	sched := scheduler.New(log)
	for _, job := range []scheduler.Job{
		jobs.NewDispatchJob(dispatcher),
		jobs.NewOutcomeJob(tracker),
		jobs.NewConvictionJob(calculator),
		jobs.NewDiscoveryJob(discoverer),
	} {
		if err := sched.AddJob(job); err != nil {
			return fmt.Errorf("add job %s: %w", job.Name(), err)
		}
	}
	sched.Start()
	defer sched.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server := ingest.NewServer(app.cfg, processor, log)
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	var stream *ingest.StreamClient
	if !startNoStream && app.cfg.RPC.WSEndpoint != "" {
		stream = ingest.NewStreamClient(app.cfg, processor, app.store.Wallets, log)
		if err := stream.Start(ctx); err != nil {
			log.WithError(err).Warn("Stream unavailable, continuing with webhook ingress only")
			stream = nil
		}
	}

	log.Info("Signal engine running")

	quit := make(chan os.Signal, 1)
	ossignal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.WithField("signal", sig.String()).Info("Shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return err
		}
	}

	cancel()
	if stream != nil {
		stream.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Ingress shutdown failed")
	}

	log.Info("Signal engine stopped")
	return nil
}
