package app

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"

	"kimland-sync/adapters"
	"kimland-sync/internal/types"
	"kimland-sync/inventory"
	"kimland-sync/session"
	"kimland-sync/shopify"
	"kimland-sync/store"
	"kimland-sync/syncer"
	"kimland-sync/utils"
)

// Options selects the configuration file and log verbosity
type Options struct {
	ConfigPath string
	Verbose    bool
}

// App is the wired sync pipeline shared by the CLI and the API server
type App struct {
	Config       *types.Config
	Logger       *logrus.Logger
	Auth         *session.Authenticator
	Catalog      *shopify.Client
	Store        store.ResultStore
	Orchestrator *syncer.Orchestrator

	adapter *adapters.BaseAdapter
}

// NewLogger returns a logrus logger with millisecond timestamps. LOG_LEVEL wins over verbose.
func NewLogger(verbose bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})

	if levelStr := os.Getenv("LOG_LEVEL"); levelStr != "" {
		if level, err := logrus.ParseLevel(levelStr); err == nil {
			logger.SetLevel(level)
			return logger
		}
	}
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}
	return logger
}

// New loads the configuration and builds every component of the pipeline
func New(ctx context.Context, opts Options) (*App, error) {
	logger := NewLogger(opts.Verbose)

	config, err := utils.LoadConfig(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	catalog, err := shopify.NewClient(shopify.Config{
		Shop:        os.Getenv("SHOPIFY_SHOP"),
		AccessToken: os.Getenv("SHOPIFY_ACCESS_TOKEN"),
		APIVersion:  os.Getenv("SHOPIFY_API_VERSION"),
		Timeout:     config.Timeout,
	}, logger)
	if err != nil {
		return nil, err
	}

	results, err := OpenStore(ctx, logger)
	if err != nil {
		return nil, err
	}

	auth := session.NewAuthenticator(config, logger)
	base := adapters.NewBaseAdapter(config, logger, auth.HTTP(), auth)
	locator := adapters.NewLocator(base, adapters.NewVariantExtractor(base))

	orchestrator := syncer.NewOrchestrator(
		config,
		logger,
		auth,
		utils.CredentialsFromEnv(),
		locator,
		inventory.NewReconciler(logger),
		catalog,
		results,
	)

	return &App{
		Config:       config,
		Logger:       logger,
		Auth:         auth,
		Catalog:      catalog,
		Store:        results,
		Orchestrator: orchestrator,
		adapter:      base,
	}, nil
}

// OpenStore picks the result store: Postgres when DATABASE_URL is set, a JSON-lines file
// when RESULTS_FILE is set, otherwise nothing is kept.
func OpenStore(ctx context.Context, logger types.Logger) (store.ResultStore, error) {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		maxConns := 2
		if v := os.Getenv("DATABASE_MAX_CONNS"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("invalid DATABASE_MAX_CONNS: %w", err)
			}
			maxConns = n
		}
		logger.Info("Recording results in Postgres")
		return store.NewPostgresStore(ctx, dsn, maxConns)
	}
	if path := os.Getenv("RESULTS_FILE"); path != "" {
		logger.Infof("Recording results in %s", path)
		return store.NewFileStore(path)
	}
	return store.Discard{}, nil
}

// Close logs out of the remote site and releases clients and the store
func (a *App) Close(ctx context.Context) {
	if a.Auth.IsLoggedIn() {
		a.Auth.Logout(ctx)
	}
	a.adapter.Close()
	a.Auth.Close()
	a.Store.Close()
}
