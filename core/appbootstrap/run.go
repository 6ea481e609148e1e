package appbootstrap

import (
	"context"
	"time"

	"incidentboard/api"
	"incidentboard/config"
	"incidentboard/core/store"
	"incidentboard/core/utils"
)

const shutdownTimeout = 10 * time.Second

// Run serves the dashboard until ctx is cancelled, then shuts down
// gracefully.
func Run(ctx context.Context, cfg *config.AppConfig, logger *utils.Logger) error {
	st, err := OpenStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	rt, err := composeRuntime(cfg, st, logger)
	if err != nil {
		return err
	}
	srv, err := api.NewServer(cfg, rt.serverDeps, logger)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("shutdown error: %v", err)
		return err
	}
	return <-errCh
}

// Migrate applies pending migrations and returns the resulting version.
func Migrate(ctx context.Context, cfg *config.AppConfig, logger *utils.Logger) (int64, error) {
	db, err := store.NewDB(cfg, logger)
	if err != nil {
		return 0, err
	}
	defer db.Close()
	if err := store.ApplyMigrations(ctx, cfg, db, logger); err != nil {
		return 0, err
	}
	return store.SchemaVersion(ctx, cfg, db)
}
