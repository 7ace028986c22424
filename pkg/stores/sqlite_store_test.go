package stores

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/openfroyo/zabbix-web/pkg/engine"
)

// setupTestStore creates an in-memory SQLite store for testing
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{
		Path: ":memory:",
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}

	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testCompilation(id, node string, at time.Time) *Compilation {
	return &Compilation{
		ID:           id,
		Node:         node,
		Family:       "RedHat",
		Supported:    true,
		ParamsDigest: "digest-" + id,
		Allowed:      true,
		CompiledAt:   at,
		Resources: []engine.Resource{
			{
				ID:     "Package[zabbix-web]",
				Type:   "Package",
				Name:   "zabbix-web",
				Config: json.RawMessage(`{"ensure":"present"}`),
			},
			{
				ID:     "File[/etc/zabbix/web/zabbix.conf.php]",
				Type:   "File",
				Name:   "/etc/zabbix/web/zabbix.conf.php",
				Config: json.RawMessage(`{"ensure":"file","mode":"0640"}`),
				Dependencies: []engine.Dependency{
					{TargetID: "Package[zabbix-web]", Type: engine.DependencyRequire},
				},
			},
		},
	}
}

// TestStoreLifecycle tests database initialization and closure
func TestStoreLifecycle(t *testing.T) {
	store, err := NewSQLiteStore(Config{
		Path: filepath.Join(t.TempDir(), "archive.db"),
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}

	// Running migrations twice is a no-op.
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("second migration failed: %v", err)
	}

	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
}

func TestNewSQLiteStore_RequiresPath(t *testing.T) {
	if _, err := NewSQLiteStore(Config{}); err == nil {
		t.Error("expected error for empty path")
	}
}

// TestStoreMigrations tests database migrations
func TestStoreMigrations(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	tables := []string{"compilations", "compiled_resources", "policy_findings"}
	for _, table := range tables {
		var count int
		err := store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count)
		if err != nil {
			t.Errorf("table %s does not exist or is not accessible: %v", table, err)
		}
	}
}

func TestCompilationRoundTrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	at := time.Date(2024, 3, 1, 12, 0, 0, 123456789, time.FixedZone("CET", 3600))

	c := testCompilation("c-001", "web01", at)
	c.Allowed = false
	c.Findings = []*Finding{
		{Policy: "credentials-file-mode", Resource: "File[/etc/zabbix/api.conf]", Severity: "error", Message: "too open"},
		{Policy: "default-api-password", Severity: "warning", Message: "default password"},
	}

	if err := store.SaveCompilation(ctx, c); err != nil {
		t.Fatalf("failed to save compilation: %v", err)
	}
	if c.Findings[0].ID == 0 || c.Findings[0].CompilationID != "c-001" {
		t.Errorf("expected finding ID and compilation ID to be set, got %+v", c.Findings[0])
	}

	got, err := store.GetCompilation(ctx, "c-001")
	if err != nil {
		t.Fatalf("failed to get compilation: %v", err)
	}

	if got.Node != "web01" || got.Family != "RedHat" || !got.Supported {
		t.Errorf("unexpected header: %+v", got)
	}
	if got.Allowed {
		t.Error("expected Allowed false")
	}
	if got.ResourceCount != 2 {
		t.Errorf("expected ResourceCount 2, got %d", got.ResourceCount)
	}
	if !got.CompiledAt.Equal(at) {
		t.Errorf("expected CompiledAt %v, got %v", at, got.CompiledAt)
	}

	if len(got.Resources) != 2 {
		t.Fatalf("expected 2 resources, got %d", len(got.Resources))
	}
	if got.Resources[0].ID != "Package[zabbix-web]" || got.Resources[1].ID != "File[/etc/zabbix/web/zabbix.conf.php]" {
		t.Errorf("resource order not kept: %s, %s", got.Resources[0].ID, got.Resources[1].ID)
	}
	if string(got.Resources[1].Config) != `{"ensure":"file","mode":"0640"}` {
		t.Errorf("unexpected config %s", got.Resources[1].Config)
	}
	deps := got.Resources[1].Dependencies
	if len(deps) != 1 || deps[0].TargetID != "Package[zabbix-web]" || deps[0].Type != engine.DependencyRequire {
		t.Errorf("unexpected dependencies %+v", deps)
	}

	if len(got.Findings) != 2 || got.Findings[0].Policy != "credentials-file-mode" {
		t.Errorf("unexpected findings %+v", got.Findings)
	}

	cfg := got.Config()
	if cfg.ID != "c-001" || len(cfg.Resources) != 2 {
		t.Errorf("unexpected engine config %+v", cfg)
	}
}

func TestSaveCompilation_Duplicate(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	c := testCompilation("c-001", "web01", time.Now())
	if err := store.SaveCompilation(ctx, c); err != nil {
		t.Fatalf("failed to save compilation: %v", err)
	}

	err := store.SaveCompilation(ctx, testCompilation("c-001", "web01", time.Now()))
	if err == nil {
		t.Fatal("expected error for duplicate compilation ID")
	}
	if !engine.IsConflict(err) {
		t.Errorf("expected conflict error, got %v", err)
	}

	if err := store.SaveCompilation(ctx, &Compilation{}); engine.CodeOf(err) != engine.ErrCodeValidation {
		t.Errorf("expected validation error for empty ID, got %v", err)
	}
}

func TestGetCompilation_NotFound(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.GetCompilation(context.Background(), "missing")
	if engine.CodeOf(err) != engine.ErrCodeNotFound {
		t.Errorf("expected NOT_FOUND, got %v", err)
	}
}

func TestLatestCompilations(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"c-001", "c-002", "c-003"} {
		if err := store.SaveCompilation(ctx, testCompilation(id, "web01", base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("failed to save %s: %v", id, err)
		}
	}
	if err := store.SaveCompilation(ctx, testCompilation("other", "web02", base.Add(time.Hour))); err != nil {
		t.Fatalf("failed to save other: %v", err)
	}

	latest, err := store.LatestCompilations(ctx, "web01", 2)
	if err != nil {
		t.Fatalf("failed to get latest compilations: %v", err)
	}

	if len(latest) != 2 {
		t.Fatalf("expected 2 compilations, got %d", len(latest))
	}
	if latest[0].ID != "c-003" || latest[1].ID != "c-002" {
		t.Errorf("expected [c-003 c-002], got [%s %s]", latest[0].ID, latest[1].ID)
	}
	if len(latest[0].Resources) != 2 {
		t.Errorf("expected resources to be loaded, got %d", len(latest[0].Resources))
	}

	all, err := store.ListCompilations(ctx, nil, 10, 0)
	if err != nil {
		t.Fatalf("failed to list compilations: %v", err)
	}
	if len(all) != 4 || all[0].ID != "other" {
		t.Errorf("expected 4 compilations starting with other, got %d", len(all))
	}
}

func TestDeleteCompilation_Cascades(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	c := testCompilation("c-001", "web01", time.Now())
	c.Findings = []*Finding{{Policy: "zabbix-conf-mode", Severity: "warning", Message: "world readable"}}
	if err := store.SaveCompilation(ctx, c); err != nil {
		t.Fatalf("failed to save compilation: %v", err)
	}

	if err := store.DeleteCompilation(ctx, "c-001"); err != nil {
		t.Fatalf("failed to delete compilation: %v", err)
	}

	for _, table := range []string{"compiled_resources", "policy_findings"} {
		var count int
		if err := store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count); err != nil {
			t.Fatalf("failed to count %s: %v", table, err)
		}
		if count != 0 {
			t.Errorf("expected %s to be empty after cascade, got %d rows", table, count)
		}
	}

	if err := store.DeleteCompilation(ctx, "c-001"); engine.CodeOf(err) != engine.ErrCodeNotFound {
		t.Errorf("expected NOT_FOUND deleting twice, got %v", err)
	}
}

func TestPruneCompilations(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"c-001", "c-002", "c-003", "c-004"} {
		if err := store.SaveCompilation(ctx, testCompilation(id, "web01", base.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatalf("failed to save %s: %v", id, err)
		}
	}
	if err := store.SaveCompilation(ctx, testCompilation("other", "web02", base)); err != nil {
		t.Fatalf("failed to save other: %v", err)
	}

	removed, err := store.PruneCompilations(ctx, "web01", 2)
	if err != nil {
		t.Fatalf("failed to prune: %v", err)
	}
	if removed != 2 {
		t.Errorf("expected 2 pruned compilations, got %d", removed)
	}

	node := "web01"
	remaining, err := store.ListCompilations(ctx, &node, 10, 0)
	if err != nil {
		t.Fatalf("failed to list compilations: %v", err)
	}
	if len(remaining) != 2 || remaining[0].ID != "c-004" || remaining[1].ID != "c-003" {
		t.Errorf("unexpected remaining compilations: %d", len(remaining))
	}

	if _, err := store.GetCompilation(ctx, "other"); err != nil {
		t.Errorf("other node should be untouched: %v", err)
	}
}

func TestNewCompilation(t *testing.T) {
	cfg := &engine.Config{
		ID:         "c-001",
		Node:       "web01",
		Family:     "Debian",
		Supported:  true,
		CompiledAt: time.Now(),
		Resources:  testCompilation("x", "web01", time.Now()).Resources,
	}

	c := NewCompilation(cfg)
	if c.ResourceCount != 2 || !c.Allowed || c.Family != "Debian" {
		t.Errorf("unexpected compilation %+v", c)
	}
}
