package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/nextlevelbuilder/pairlink/internal/config"
	"github.com/nextlevelbuilder/pairlink/internal/store"
	"github.com/nextlevelbuilder/pairlink/internal/store/file"
	"github.com/nextlevelbuilder/pairlink/internal/store/pg"
	"github.com/nextlevelbuilder/pairlink/internal/store/sqlite"
)

func storeConfig(cfg *config.Config) store.StoreConfig {
	return store.StoreConfig{
		Mode:        cfg.Database.Mode,
		Path:        config.ExpandHome(cfg.Database.Path),
		PostgresDSN: cfg.Database.PostgresDSN,
	}
}

// openStores opens the library and history backends selected by the
// database mode. Managed mode applies pending migrations first.
func openStores(ctx context.Context, cfg *config.Config) (*store.Stores, error) {
	sc := storeConfig(cfg)

	switch {
	case sc.IsManaged():
		db, err := pg.OpenDB(ctx, sc.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if err := pg.MigrateUp(db); err != nil {
			db.Close()
			return nil, err
		}
		slog.Info("store: managed mode (postgres)")
		return store.NewStores(pg.NewPGLibraryStore(db), pg.NewPGHistoryStore(db), db.Close), nil

	case sc.Mode == store.ModeManaged:
		return nil, fmt.Errorf("database.mode is managed but database.postgres_dsn is empty")

	case sc.Mode == store.ModeSQLite:
		if err := os.MkdirAll(filepath.Dir(sc.Path), 0o700); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		st, err := sqlite.Open(sc.Path)
		if err != nil {
			return nil, err
		}
		slog.Info("store: sqlite mode", "path", sc.Path)
		return store.NewStores(st, st, st.Close), nil

	default:
		st, err := file.New(sc.Path)
		if err != nil {
			return nil, err
		}
		slog.Info("store: file mode", "path", sc.Path)
		return store.NewStores(st, st, nil), nil
	}
}
