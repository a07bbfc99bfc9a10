package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"listing-api/api"
	"listing-api/config"
	"listing-api/services"
	"listing-api/storage"
	"listing-api/utils"
)

const usage = `usage: listing-api [command] [path]

commands:
  serve            run the HTTP API (default)
  import [path]    load listings from a CSV file
  export [path]    write the price history of every listing to CSV
  report           print a catalog summary`

func main() {
	cfg := config.Load()

	logger, err := utils.NewLogger(cfg.LogMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	command := "serve"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}
	arg := ""
	if len(os.Args) > 2 {
		arg = os.Args[2]
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, command, arg); err != nil {
		logger.Error("%s failed: %v", command, err)
		stop()
		logger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *utils.Logger, command, arg string) error {
	switch command {
	case "serve", "import", "export", "report":
	case "help", "-h", "--help":
		fmt.Println(usage)
		return nil
	default:
		fmt.Fprintln(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}

	repo, closeRepo, err := openRepository(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeRepo()

	switch command {
	case "import":
		return runImport(ctx, cfg, logger, repo, firstNonEmpty(arg, cfg.ImportCSVPath))
	case "export":
		return runExport(ctx, logger, repo, firstNonEmpty(arg, cfg.ExportCSVPath))
	case "report":
		return runReport(ctx, logger, repo)
	default:
		return runServer(ctx, cfg, logger, repo)
	}
}

// openRepository picks the storage backend named by STORAGE_DRIVER.
func openRepository(ctx context.Context, cfg *config.Config, logger *utils.Logger) (storage.ListingRepository, func(), error) {
	switch cfg.StorageDriver {
	case "memory":
		logger.Warn("Using in-memory storage, data is lost on exit")
		return storage.NewMemoryRepository(), func() {}, nil
	case "postgres":
		retry := &utils.RetryConfig{
			MaxAttempts: cfg.DBConnectRetries,
			BaseDelay:   2 * time.Second,
			Logger:      logger,
		}
		db, err := storage.OpenPostgres(ctx, cfg.DSN(), retry)
		if err != nil {
			logger.Error("Make sure PostgreSQL is running: docker compose up -d")
			return nil, nil, err
		}
		repo := storage.NewPostgresRepository(db)
		if err := repo.Migrate(ctx); err != nil {
			_ = repo.Close()
			return nil, nil, err
		}
		logger.Info("Connected to PostgreSQL at %s:%s/%s", cfg.PostgresHost, cfg.PostgresPort, cfg.PostgresDB)
		return repo, func() { _ = repo.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}

func runServer(ctx context.Context, cfg *config.Config, logger *utils.Logger, repo storage.ListingRepository) error {
	handler := api.NewListingHandler(
		services.NewPersistListing(repo),
		services.NewUpdateListing(repo),
		services.NewRetrieveListings(repo),
		services.NewRetrieveListingsPriceHistory(repo),
		logger,
	)
	router := api.NewRouter(api.RouterConfig{
		ListingHandler: handler,
		Logger:         logger,
		AllowedOrigins: cfg.CORSAllowedOrigins,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func runImport(ctx context.Context, cfg *config.Config, logger *utils.Logger, repo storage.ListingRepository, path string) error {
	importer := services.NewImporter(
		services.NewPersistListing(repo),
		services.NewCleaner(logger),
		logger,
		cfg.ImportConcurrency,
		cfg.ImportRateLimitMs,
	)

	result, err := importer.ImportFile(ctx, path)
	if err != nil {
		return err
	}
	for _, r := range result.Rejected {
		logger.Warnw("row rejected", "line", r.Line, "error", r.Err)
	}
	logger.Info("Imported %d of %d rows from %s (%d rejected)",
		len(result.Persisted), result.Read, path, len(result.Rejected))
	return nil
}

func runExport(ctx context.Context, logger *utils.Logger, repo storage.ListingRepository, path string) error {
	listings, err := services.NewRetrieveListings(repo).Perform(ctx)
	if err != nil {
		return err
	}

	var writer storage.PriceHistoryWriter
	writer, err = storage.NewCSVWriter(path)
	if err != nil {
		return err
	}
	if err := writer.WriteHistory(listings); err != nil {
		_ = writer.Close()
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}
	logger.Info("Price history of %d listings written to %s", len(listings), path)
	return nil
}

func runReport(ctx context.Context, logger *utils.Logger, repo storage.ListingRepository) error {
	listings, err := services.NewRetrieveListings(repo).Perform(ctx)
	if err != nil {
		return err
	}
	insights := services.NewInsightService(logger)
	insights.Print(os.Stdout, insights.Generate(listings))
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
