package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/rewired-gh/resaleoracle/internal/api"
	"github.com/rewired-gh/resaleoracle/internal/comparables"
	"github.com/rewired-gh/resaleoracle/internal/config"
	"github.com/rewired-gh/resaleoracle/internal/estimator"
	"github.com/rewired-gh/resaleoracle/internal/export"
	"github.com/rewired-gh/resaleoracle/internal/logger"
	"github.com/rewired-gh/resaleoracle/internal/metrics"
	"github.com/rewired-gh/resaleoracle/internal/pricing"
	"github.com/rewired-gh/resaleoracle/internal/storage"
	"github.com/rewired-gh/resaleoracle/internal/telegram"
	"github.com/rewired-gh/resaleoracle/internal/vinted"
)

var configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")

const usage = `Usage: resaleoracle [-config path] <command> [args]

Commands:
  price [-speed s] [-vision c] [-json] [-notify] <brand> <type> <size> <condition>
  serve
  export [-o file.xlsx] [-limit n]
`

func main() {
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("Failed to load .env: %v", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Debug("Configuration loaded from %s", *configPath)

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	store, err := storage.New(cfg.Storage.MaxEstimates, cfg.Storage.DBPath)
	if err != nil {
		logger.Fatal("Failed to initialize storage: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch args[0] {
	case "price":
		err = runPrice(ctx, cfg, store, args[1:])
	case "serve":
		err = runServe(ctx, cfg, store)
	case "export":
		err = runExport(store, args[1:])
	default:
		flag.Usage()
		err = fmt.Errorf("unknown command %q", args[0])
	}
	if err != nil {
		logger.Error("%s failed: %v", args[0], err)
		cancel()
		_ = store.Close()
		os.Exit(1)
	}
}

func newEstimator(cfg *config.Config, store *storage.Storage, m *metrics.Metrics) *estimator.Estimator {
	var fetcher comparables.Fetcher
	if cfg.Vinted.Enabled {
		fetcher = vinted.NewClient(cfg.VintedClientConfig())
	} else {
		logger.Info("Vinted acquisition disabled, using synthetic listings only")
	}

	source := comparables.NewSource(
		fetcher,
		comparables.NewSeededSynthesizer(cfg.Comparables.FallbackSeed),
		store,
		cfg.ComparablesSourceConfig(),
	)
	engine := pricing.New(cfg.PricingEngineConfig())
	return estimator.New(source, engine, store, m, cfg.EstimatorPipelineConfig())
}

func runPrice(ctx context.Context, cfg *config.Config, store *storage.Storage, args []string) error {
	flags := flag.NewFlagSet("price", flag.ContinueOnError)
	speed := flags.String("speed", "normal", "Sale speed: fast, normal or premium")
	vision := flags.Float64("vision", 0, "Classifier confidence in [0,1]")
	asJSON := flags.Bool("json", false, "Print the estimate as JSON")
	notify := flags.Bool("notify", false, "Also post the estimate to the Telegram chat")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() != 4 {
		return fmt.Errorf("price needs <brand> <type> <size> <condition>, got %d arguments", flags.NArg())
	}

	req, err := estimator.RawRequest{
		Brand:            flags.Arg(0),
		ItemType:         flags.Arg(1),
		Size:             flags.Arg(2),
		Condition:        flags.Arg(3),
		Speed:            *speed,
		VisionConfidence: *vision,
	}.Parse()
	if err != nil {
		return err
	}

	est, err := newEstimator(cfg, store, nil).Estimate(ctx, req)
	if err != nil {
		return err
	}

	if *notify {
		if !cfg.Telegram.Enabled {
			return fmt.Errorf("-notify requires telegram.enabled")
		}
		tc, err := telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
		if err != nil {
			return fmt.Errorf("failed to initialize Telegram client: %w", err)
		}
		if err := tc.SendEstimate(est); err != nil {
			logger.Warn("Failed to send estimate to Telegram: %v", err)
		}
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(est)
	}
	r := est.Recommendation
	fmt.Printf("%s %s (size %s, %s)\n", est.Brand, est.ItemType, est.Size, est.Condition)
	fmt.Printf("Suggested price: %.0f€ [%s, %s]\n", r.SuggestedPrice, r.PriceRange, r.MarketPosition)
	fmt.Printf("Confidence: %.2f (price %.2f, %d listings from %s)\n\n",
		est.OverallConfidence, r.ConfidenceLevel, est.ListingsFound, est.Origin)
	fmt.Println(r.Summary)
	return nil
}

func runServe(ctx context.Context, cfg *config.Config, store *storage.Storage) error {
	m := metrics.New()
	est := newEstimator(cfg, store, m)

	var telegramClient *telegram.Client
	if cfg.Telegram.Enabled {
		var err error
		telegramClient, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
		if err != nil {
			return fmt.Errorf("failed to initialize Telegram client: %w", err)
		}
		logger.Info("Telegram client initialized successfully")
		telegramClient.ListenForCommands(ctx, est)
	} else {
		logger.Debug("Telegram bot disabled")
	}

	serverErr := make(chan error, 1)
	if cfg.Server.Enabled {
		srv := api.New(est, store, m.Handler())
		go func() { serverErr <- srv.ListenAndServe(ctx, cfg.Server.Addr) }()
	}

	logger.Info("Starting resale oracle (vinted: %v, cache_ttl: %v, maintenance: %v)",
		cfg.Vinted.Enabled, cfg.Comparables.CacheTTL, cfg.Storage.MaintenanceInterval)

	ticker := time.NewTicker(cfg.Storage.MaintenanceInterval)
	defer ticker.Stop()

	consecutiveFailures := 0
	handleMaintenanceResult := func(err error) {
		if err != nil {
			consecutiveFailures++
			logger.Error("Maintenance failed: %v", err)
			if consecutiveFailures == 1 && telegramClient != nil {
				if sendErr := telegramClient.SendError(err); sendErr != nil {
					logger.Warn("Failed to send error notification to Telegram: %v", sendErr)
				}
			}
			return
		}
		if consecutiveFailures > 0 && telegramClient != nil {
			if sendErr := telegramClient.SendRecovery(consecutiveFailures); sendErr != nil {
				logger.Warn("Failed to send recovery notification to Telegram: %v", sendErr)
			}
		}
		consecutiveFailures = 0
	}

	handleMaintenanceResult(runMaintenance(store, cfg.Comparables.CacheTTL))

	for {
		select {
		case <-ctx.Done():
			logger.Info("Shutdown signal received, cleaning up...")
			if cfg.Server.Enabled {
				if err := <-serverErr; err != nil {
					return err
				}
			}
			logger.Info("Service stopped")
			return nil

		case err := <-serverErr:
			return fmt.Errorf("http server: %w", err)

		case <-ticker.C:
			handleMaintenanceResult(runMaintenance(store, cfg.Comparables.CacheTTL))
		}
	}
}

// runMaintenance trims the estimate history and drops expired cache entries.
func runMaintenance(store *storage.Storage, cacheTTL time.Duration) error {
	if err := store.RotateEstimates(); err != nil {
		return err
	}
	if cacheTTL <= 0 {
		return nil
	}
	n, err := store.PurgeExpiredListings(cacheTTL)
	if err != nil {
		return err
	}
	logger.Debug("Maintenance complete: purged %d expired cache entries", n)
	return nil
}

func runExport(store *storage.Storage, args []string) error {
	flags := flag.NewFlagSet("export", flag.ContinueOnError)
	out := flags.String("o", "estimates.xlsx", "Output XLSX file")
	limit := flags.Int("limit", 1000, "Maximum number of estimates, newest first")
	if err := flags.Parse(args); err != nil {
		return err
	}

	estimates, err := store.GetRecentEstimates(*limit)
	if err != nil {
		return err
	}
	if err := export.SaveXLSX(*out, estimates); err != nil {
		return err
	}
	logger.Info("Exported %d estimates to %s", len(estimates), *out)
	return nil
}
