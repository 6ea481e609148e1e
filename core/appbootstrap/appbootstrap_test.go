package appbootstrap

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"incidentboard/config"
	"incidentboard/core/incidents"
	"incidentboard/core/utils"
)

func testConfig(t *testing.T) *config.AppConfig {
	t.Helper()
	return &config.AppConfig{
		DBDriver:   config.DriverSQLite,
		DBPath:     filepath.Join(t.TempDir(), "data", "board.db"),
		ListenAddr: "127.0.0.1:0",
		Storage:    config.StorageConfig{SlotKey: "newIncidents"},
		Clients: config.ClientsConfig{
			CookieName:    "incidentboard_client",
			CookieMaxAge:  time.Hour,
			IdleTTL:       time.Hour,
			SweepSchedule: "@every 1m",
			MaxClients:    10,
		},
	}
}

func TestMigrateReportsVersion(t *testing.T) {
	version, err := Migrate(context.Background(), testConfig(t), utils.NewLogger())
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if version != 1 {
		t.Fatalf("expected version 1, got %d", version)
	}
}

func TestStorageRepositoryUsesClientSlot(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	st, err := OpenStorage(ctx, cfg, utils.NewLogger())
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	defer st.Close()
	d, err := incidents.Load(ctx, st.Repository("client-a"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, _, err := d.SubmitDraft(ctx, st.Repository("client-a"), incidents.Draft{Title: "t", Description: "d", Severity: incidents.SeverityLow}, time.Now()); err != nil {
		t.Fatalf("submit: %v", err)
	}
	own, _, _ := st.Slots.Read(ctx, "newIncidents:client-a")
	shared, _, _ := st.Slots.Read(ctx, "newIncidents")
	if len(own) != 1 || len(shared) != 0 {
		t.Fatalf("expected addition in client slot only, got own=%d shared=%d", len(own), len(shared))
	}
}

func TestComposeRuntimeWiresSweeper(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	st, err := OpenStorage(ctx, cfg, utils.NewLogger())
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	defer st.Close()
	rt, err := composeRuntime(cfg, st, utils.NewLogger())
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	if rt.registry == nil || len(rt.serverDeps.Workers) != 1 || rt.serverDeps.Health == nil {
		t.Fatalf("runtime not fully composed: %+v", rt.serverDeps)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, cfg, utils.NewLogger()) }()
	time.Sleep(100 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("run did not stop after cancel")
	}
}
