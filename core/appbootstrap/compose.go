package appbootstrap

import (
	"context"
	"database/sql"

	"incidentboard/api"
	"incidentboard/config"
	"incidentboard/core/auth"
	"incidentboard/core/clients"
	"incidentboard/core/incidents"
	"incidentboard/core/metrics"
	"incidentboard/core/store"
	"incidentboard/core/utils"
	"incidentboard/gui"
)

// Storage is the opened slot database with migrations applied.
type Storage struct {
	DB      *sql.DB
	Slots   store.SlotStore
	Metrics *metrics.Metrics
	cfg     *config.AppConfig
}

func OpenStorage(ctx context.Context, cfg *config.AppConfig, logger *utils.Logger) (*Storage, error) {
	db, err := store.NewDB(cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := store.ApplyMigrations(ctx, cfg, db, logger); err != nil {
		_ = db.Close()
		return nil, err
	}
	m := metrics.New()
	return &Storage{DB: db, Slots: store.NewSlotStore(db, cfg, m, logger), Metrics: m, cfg: cfg}, nil
}

// Repository returns the repository behind one client's slot. An empty id
// addresses the shared slot.
func (s *Storage) Repository(clientID string) incidents.Repository {
	return s.Slots.Repository(s.cfg.SlotKeyFor(clientID))
}

func (s *Storage) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

type runtimeComposition struct {
	serverDeps api.ServerDeps
	registry   *clients.Registry
}

func composeRuntime(cfg *config.AppConfig, st *Storage, logger *utils.Logger) (*runtimeComposition, error) {
	registry := clients.NewRegistry(cfg.Clients, st.Repository, st.Metrics, logger)
	sweeper := clients.NewSweeper(registry, cfg.Clients.SweepSchedule, logger)

	if cfg.CSRFKey == "" && logger != nil {
		logger.Warnf("csrf_key is empty: using a random key, tokens reset on restart")
	}
	csrf, err := auth.NewCSRF(cfg.CSRFKey)
	if err != nil {
		return nil, err
	}
	tmpl, err := gui.Templates()
	if err != nil {
		return nil, err
	}
	return &runtimeComposition{
		serverDeps: api.ServerDeps{
			Registry:  registry,
			Metrics:   st.Metrics,
			CSRF:      csrf,
			Templates: tmpl,
			Health:    st.DB.PingContext,
			Workers:   []api.BackgroundWorker{sweeper},
		},
		registry: registry,
	}, nil
}
