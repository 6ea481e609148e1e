package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"incidentboard/config"
	"incidentboard/core/incidents"
	"incidentboard/core/metrics"
	"incidentboard/core/utils"
)

// ErrCorruptSlot is returned when a slot payload is not a JSON array.
var ErrCorruptSlot = errors.New("slot payload is not a JSON array")

// LoadReport describes what Read did with the stored records.
type LoadReport struct {
	Loaded  int
	Skipped int
}

// SlotStore keeps one JSON array of incidents per slot key.
type SlotStore interface {
	Read(ctx context.Context, key string) ([]incidents.Incident, LoadReport, error)
	Append(ctx context.Context, key string, incident incidents.Incident) error
	Repository(key string) incidents.Repository
}

type slotStore struct {
	db       *sql.DB
	postgres bool
	metrics  *metrics.Metrics
	logger   *utils.Logger
}

func NewSlotStore(db *sql.DB, cfg *config.AppConfig, m *metrics.Metrics, logger *utils.Logger) SlotStore {
	return &slotStore{db: db, postgres: cfg.IsPostgres(), metrics: m, logger: logger}
}

// Read returns the valid records of the slot. A missing slot is empty.
// Records that fail validation, or reuse a seed id or an earlier record's id,
// are skipped and counted in the report.
func (s *slotStore) Read(ctx context.Context, key string) ([]incidents.Incident, LoadReport, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT payload FROM client_slots WHERE slot_key=?`), key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, LoadReport{}, nil
	}
	if err != nil {
		return nil, LoadReport{}, err
	}
	raw, err := decodeSlot(payload)
	if err != nil {
		return nil, LoadReport{}, fmt.Errorf("slot %s: %w", key, err)
	}
	var report LoadReport
	items := make([]incidents.Incident, 0, len(raw))
	seen := map[int64]bool{}
	for _, item := range incidents.Seed() {
		seen[item.ID] = true
	}
	for i, rec := range raw {
		var incident incidents.Incident
		if err := json.Unmarshal(rec, &incident); err != nil {
			report.Skipped++
			s.warnf("slot %s: record #%d skipped: %v", key, i, err)
			continue
		}
		if err := incident.Validate(); err != nil {
			report.Skipped++
			s.warnf("slot %s: record #%d skipped: %v", key, i, err)
			continue
		}
		if seen[incident.ID] {
			report.Skipped++
			s.warnf("slot %s: record #%d skipped: duplicate id %d", key, i, incident.ID)
			continue
		}
		seen[incident.ID] = true
		items = append(items, incident)
	}
	report.Loaded = len(items)
	s.metrics.SlotRecordsSkipped(report.Skipped)
	return items, report, nil
}

// Append rewrites the whole slot with incident added at the end. Records the
// reader skips are carried over untouched.
func (s *slotStore) Append(ctx context.Context, key string, incident incidents.Incident) error {
	encoded, err := json.Marshal(incident)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	// The empty row makes FOR UPDATE lock something on the first append.
	if _, err := tx.ExecContext(ctx, s.rebind(`
		INSERT INTO client_slots(slot_key, payload, updated_at) VALUES(?, '[]', ?)
		ON CONFLICT(slot_key) DO NOTHING`), key, time.Now().UTC()); err != nil {
		tx.Rollback()
		return err
	}
	query := `SELECT payload FROM client_slots WHERE slot_key=?`
	if s.postgres {
		query += ` FOR UPDATE`
	}
	var payload string
	err = tx.QueryRowContext(ctx, s.rebind(query), key).Scan(&payload)
	var raw []json.RawMessage
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		tx.Rollback()
		return err
	default:
		raw, err = decodeSlot(payload)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("slot %s: %w", key, err)
		}
	}
	raw = append(raw, json.RawMessage(encoded))
	updated, err := json.Marshal(raw)
	if err != nil {
		tx.Rollback()
		return err
	}
	if _, err := tx.ExecContext(ctx, s.rebind(`
		INSERT INTO client_slots(slot_key, payload, updated_at) VALUES(?,?,?)
		ON CONFLICT(slot_key) DO UPDATE SET payload=excluded.payload, updated_at=excluded.updated_at`),
		key, string(updated), time.Now().UTC()); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *slotStore) Repository(key string) incidents.Repository {
	return &slotRepository{store: s, key: key}
}

func decodeSlot(payload string) ([]json.RawMessage, error) {
	trimmed := strings.TrimSpace(payload)
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSlot, err)
	}
	return raw, nil
}

// rebind converts ? placeholders to $n for postgres.
func (s *slotStore) rebind(query string) string {
	if !s.postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *slotStore) warnf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Warnf(format, args...)
	}
}

type slotRepository struct {
	store *slotStore
	key   string
}

func (r *slotRepository) Load(ctx context.Context) ([]incidents.Incident, error) {
	items, _, err := r.store.Read(ctx, r.key)
	return items, err
}

func (r *slotRepository) Append(ctx context.Context, incident incidents.Incident) error {
	return r.store.Append(ctx, r.key, incident)
}
