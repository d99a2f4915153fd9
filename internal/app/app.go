// Package app wires configuration, storage, the NetSuite client and the
// Pre-LR services together for the binaries.
package app

import (
	"context"
	"fmt"

	"github.com/chandanyadavsde/vms-v2/internal/cache"
	"github.com/chandanyadavsde/vms-v2/internal/config"
	"github.com/chandanyadavsde/vms-v2/internal/database"
	"github.com/chandanyadavsde/vms-v2/internal/models"
	"github.com/chandanyadavsde/vms-v2/internal/netsuite"
	"github.com/chandanyadavsde/vms-v2/internal/services/prelr"
	"github.com/chandanyadavsde/vms-v2/internal/store/pgstore"
	"github.com/chandanyadavsde/vms-v2/internal/websocket"
	"github.com/sirupsen/logrus"
)

// Options select the optional parts of the wiring.
type Options struct {
	// RequireRemote fails startup when NetSuite credentials are missing.
	// Otherwise remote calls fail individually.
	RequireRemote bool

	// Realtime creates a websocket hub that receives sync events.
	Realtime bool
}

// App is the wired process.
type App struct {
	Config *config.Config
	Log    *logrus.Logger
	DB     *database.DB
	Store  *pgstore.Store
	Redis  *cache.Redis   // nil when REDIS_ADDRESS is unset
	Hub    *websocket.Hub // nil unless Options.Realtime
	Sync   *prelr.SyncService
	Linker *prelr.Linker
	Reader *prelr.Reader
}

// New connects everything and migrates the schema.
func New(ctx context.Context, cfg *config.Config, log *logrus.Logger, opts Options) (*App, error) {
	entry := logrus.NewEntry(log)
	a := &App{Config: cfg, Log: log}

	var src prelr.Source
	client, err := netsuite.NewClient(cfg.NetSuite)
	switch {
	case err == nil:
		src = client
	case opts.RequireRemote:
		return nil, err
	default:
		entry.WithError(err).Warn("NetSuite disabled; sync calls will fail")
		src = unavailableSource{err: err}
	}

	db, err := database.Connect(cfg.Database, entry)
	if err != nil {
		return nil, err
	}
	a.DB = db
	a.Store = pgstore.New(db.DB)
	if err := a.Store.Migrate(ctx); err != nil {
		a.Close()
		return nil, err
	}

	var plantCache prelr.PlantCache
	syncOpts := []prelr.Option{prelr.WithLogger(entry)}
	if cfg.Redis.Enabled() {
		r, err := cache.Connect(ctx, cfg.Redis)
		if err != nil {
			// caching and locking are optional
			entry.WithError(err).Warn("Redis unavailable; running without plant cache and scheduler lock")
		} else {
			a.Redis = r
			plantCache = r
			syncOpts = append(syncOpts, prelr.WithPlantCache(r), prelr.WithLocker(r))
		}
	}

	if opts.Realtime {
		a.Hub = websocket.NewHub(entry)
		syncOpts = append(syncOpts, prelr.WithNotifier(a.Hub))
	}

	a.Sync = prelr.NewSyncService(src, a.Store, cfg.Sync, syncOpts...)
	a.Linker = prelr.NewLinker(a.Store, entry)
	a.Reader = prelr.NewReader(a.Store, plantCache, entry)
	return a, nil
}

// Ping checks the database and, when connected, Redis.
func (a *App) Ping(ctx context.Context) error {
	if err := a.DB.Ping(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if a.Redis != nil {
		if err := a.Redis.Ping(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

// Close releases connections. It is safe on a partially built App.
func (a *App) Close() {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Log.WithError(err).Warn("failed to close redis")
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Log.WithError(err).Warn("failed to close database")
		}
	}
}

// unavailableSource reports the configuration problem on every call.
type unavailableSource struct{ err error }

func (s unavailableSource) ListIDs(ctx context.Context, limit, offset int) (netsuite.ListPage, error) {
	return netsuite.ListPage{}, fmt.Errorf("netsuite unavailable: %w", s.err)
}

func (s unavailableSource) Get(ctx context.Context, id string) (models.NetSuiteRecord, error) {
	return nil, fmt.Errorf("netsuite unavailable: %w", s.err)
}
