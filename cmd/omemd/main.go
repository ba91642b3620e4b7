// Command omemd serves the object broker over HTTP.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/koustreak/omem/internal/broker"
	"github.com/koustreak/omem/internal/cache"
	"github.com/koustreak/omem/internal/capability"
	"github.com/koustreak/omem/internal/catalog"
	"github.com/koustreak/omem/internal/config"
	"github.com/koustreak/omem/internal/database"
	"github.com/koustreak/omem/internal/database/mysql"
	"github.com/koustreak/omem/internal/database/postgres"
	"github.com/koustreak/omem/internal/database/sqlite"
	"github.com/koustreak/omem/internal/errs"
	"github.com/koustreak/omem/internal/filestore"
	"github.com/koustreak/omem/internal/filestore/minio"
	"github.com/koustreak/omem/internal/filestore/s3"
	"github.com/koustreak/omem/internal/guard"
	"github.com/koustreak/omem/internal/identity"
	"github.com/koustreak/omem/internal/logger"
	"github.com/koustreak/omem/internal/metrics"
	"github.com/koustreak/omem/internal/registration"
	"github.com/koustreak/omem/internal/server"
)

func main() {
	path := flag.String("config", os.Getenv("OMEM_CONFIG"), "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*path)
	if err != nil {
		logger.Fatal("config: " + err.Error())
	}

	log := logger.New(&cfg.Log)
	logger.SetGlobal(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.ErrorWith("omemd stopped", err, nil)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	// --- Storage ---
	startCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	db, err := openDatabase(startCtx, &cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := database.Migrate(startCtx, db); err != nil {
		return err
	}

	blobs, err := openFilestore(startCtx, &cfg.Filestore)
	if err != nil {
		return err
	}
	defer blobs.Close()

	backend, err := cache.Open(startCtx, &cfg.Cache)
	if err != nil {
		return err
	}
	defer backend.Close()

	log.InfoWith("storage ready", logger.Fields{
		"database":  string(cfg.Database.Driver),
		"filestore": string(cfg.Filestore.Provider),
		"cache":     string(cfg.Cache.Driver),
	})

	// --- Domain ---
	tags, err := cfg.Tags()
	if err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return errs.Wrap(errs.ErrKindInvalidInput, "catalog location", err)
	}

	actors := identity.NewSQLStore(db)
	records := catalog.NewSQLStore(db)
	view := cache.NewCatalog(backend, actors, records, tags, cfg.Catalog.ActorKind, cfg.Cache.TTL, log)

	b := broker.New(
		guard.New(cfg.Auth.GlobalAPIKey, view),
		registration.NewService(actors, registration.WithLogger(log)),
		capability.NewIssuer(blobs, tags, cfg.Capability()),
		records,
		view,
		loc,
	)

	// --- HTTP ---
	srv := server.New(b, cfg.Server, log, metrics.NewRegistry(), map[string]server.Pinger{
		"database":  db,
		"filestore": blobs,
	})
	return srv.ListenAndServe(ctx)
}

func openDatabase(ctx context.Context, cfg *database.Config) (database.DB, error) {
	switch cfg.Driver {
	case database.DriverPostgres:
		return postgres.New(ctx, cfg)
	case database.DriverMySQL:
		return mysql.New(ctx, cfg)
	case database.DriverSQLite:
		return sqlite.New(ctx, cfg)
	default:
		return nil, errs.Newf(errs.ErrKindInvalidInput, "unknown database driver %q", cfg.Driver)
	}
}

func openFilestore(ctx context.Context, cfg *filestore.Config) (filestore.BlobStore, error) {
	switch cfg.Provider {
	case filestore.ProviderMinIO:
		return minio.New(ctx, cfg)
	case filestore.ProviderS3:
		return s3.New(ctx, cfg)
	default:
		return nil, errs.Newf(errs.ErrKindInvalidInput, "unknown filestore provider %q", cfg.Provider)
	}
}
