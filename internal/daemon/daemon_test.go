package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/zimmermanc/radarr-mvp-sub001/internal/logging"
	"github.com/zimmermanc/radarr-mvp-sub001/internal/testsupport"
)

func newTestDaemon(t *testing.T) *Daemon {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	d, err := New(cfg, store, logging.NewNop())
	if err != nil {
		t.Fatalf("new daemon: %v", err)
	}
	return d
}

func TestDaemonStartStop(t *testing.T) {
	d := newTestDaemon(t)
	ctx := context.Background()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := d.Start(ctx); err == nil {
		t.Error("second start should fail while running")
	}

	d.Stop()
	// Stop is idempotent and the daemon can be restarted.
	d.Stop()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("restart: %v", err)
	}
	d.Stop()
}

func TestDaemonSingleInstanceLock(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	first, err := New(cfg, store, logging.NewNop())
	if err != nil {
		t.Fatalf("new daemon: %v", err)
	}

	ctx := context.Background()
	if err := first.Start(ctx); err != nil {
		t.Fatalf("start first: %v", err)
	}
	defer first.Stop()

	secondStore := testsupport.MustOpenStore(t, cfg)
	second, err := New(cfg, secondStore, logging.NewNop())
	if err != nil {
		t.Fatalf("new second daemon: %v", err)
	}
	err = second.Start(ctx)
	if err == nil {
		second.Stop()
		t.Fatal("second instance acquired the lock")
	}
	if !strings.Contains(err.Error(), "already running") {
		t.Errorf("unexpected lock error: %v", err)
	}
}

func TestHealthEndpoint(t *testing.T) {
	d := newTestDaemon(t)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer d.Stop()

	addr := d.health.Addr()
	if addr == "" {
		t.Fatal("health server not listening")
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://%s/healthz", addr))
	if err != nil {
		t.Fatalf("get healthz: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var health healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health.Status != "ok" {
		t.Errorf("status = %q, want ok", health.Status)
	}
	// Both breaker snapshots report even before any request went out.
	if len(health.Dependencies) != 2 {
		t.Errorf("dependencies = %d, want 2", len(health.Dependencies))
	}
}

func TestMetricsEndpoint(t *testing.T) {
	d := newTestDaemon(t)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer d.Stop()

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://%s/metrics", d.health.Addr()))
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}
