package syncer_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dmtorres/gridsync/internal/queryval"
	"github.com/dmtorres/gridsync/internal/registry"
	"github.com/dmtorres/gridsync/internal/syncer"
)

// fakeRemote is an in-memory RemoteClient with call counters. When gate
// is set, GetApplication signals started and then blocks until the gate
// closes, letting tests hold a sync in flight.
type fakeRemote struct {
	mu      sync.Mutex
	apps    map[string]registry.Application
	tables  map[string][]registry.Table
	records []map[string]any

	appCalls   int
	tableCalls int
	queryCalls int

	gate    chan struct{}
	started chan struct{}
}

func (f *fakeRemote) GetApplication(ctx context.Context, appID string) (registry.Application, error) {
	f.mu.Lock()
	f.appCalls++
	gate, started := f.gate, f.started
	app, ok := f.apps[appID]
	f.mu.Unlock()

	if gate != nil {
		started <- struct{}{}
		<-gate
	}
	if !ok {
		return registry.Application{}, errors.New("remote: no such application")
	}
	return app, nil
}

func (f *fakeRemote) GetTables(ctx context.Context, appID string) ([]registry.Table, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tableCalls++
	return f.tables[appID], nil
}

func (f *fakeRemote) QueryRecords(ctx context.Context, tableID string, q queryval.Query) ([]map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queryCalls++
	return f.records, nil
}

func (f *fakeRemote) counts() (apps, tables, queries int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.appCalls, f.tableCalls, f.queryCalls
}

// newFixture builds a Store, a seeded fakeRemote, and an Orchestrator
// with a one hour staleness threshold.
func newFixture(t *testing.T) (*syncer.Orchestrator, *registry.Store, *fakeRemote) {
	t.Helper()

	store, err := registry.New(registry.Config{
		DataDir: t.TempDir(),
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	remote := &fakeRemote{
		apps: map[string]registry.Application{
			"app1": {ID: "app1", Name: "CRM"},
		},
		tables: map[string][]registry.Table{
			"app1": {{
				ID:    "tbl-orders",
				AppID: "app1",
				Name:  "Orders",
				Kind:  registry.KindTable,
				Schema: registry.Schema{
					"total":  {Type: registry.FieldNumber},
					"status": {Type: registry.FieldString},
				},
			}},
		},
		records: []map[string]any{{"id": "rec-1", "total": 42.0}},
	}

	orch := syncer.New(store, remote, slog.New(slog.NewTextHandler(io.Discard, nil)), time.Hour)
	t.Cleanup(func() { _ = orch.Close() })
	return orch, store, remote
}

// ─── SyncApplication ─────────────────────────────────────────────────────────

func TestSyncApplication_FirstSyncHitsRemote(t *testing.T) {
	orch, store, remote := newFixture(t)

	res, err := orch.SyncApplication(context.Background(), "app1", syncer.Options{})
	if err != nil {
		t.Fatalf("SyncApplication() error: %v", err)
	}
	if !res.Synced {
		t.Error("first sync of an unknown application must hit the remote")
	}
	if len(res.Changes) != 1 {
		t.Errorf("changes = %d, want 1", len(res.Changes))
	}
	if _, err := store.GetTableSchema("tbl-orders"); err != nil {
		t.Errorf("schema not cached after sync: %v", err)
	}
	if apps, tables, _ := remote.counts(); apps != 1 || tables != 1 {
		t.Errorf("remote calls = %d/%d, want 1/1", apps, tables)
	}
}

func TestSyncApplication_FreshSchemaSkipsRemote(t *testing.T) {
	orch, _, remote := newFixture(t)

	if _, err := orch.SyncApplication(context.Background(), "app1", syncer.Options{}); err != nil {
		t.Fatalf("first sync: %v", err)
	}

	res, err := orch.SyncApplication(context.Background(), "app1", syncer.Options{})
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if res.Synced {
		t.Error("a fresh application must not be re-synced")
	}
	if apps, tables, _ := remote.counts(); apps != 1 || tables != 1 {
		t.Errorf("remote calls = %d/%d, want no additional calls", apps, tables)
	}
}

func TestSyncApplication_ForceBypassesFreshness(t *testing.T) {
	orch, _, remote := newFixture(t)

	if _, err := orch.SyncApplication(context.Background(), "app1", syncer.Options{}); err != nil {
		t.Fatalf("first sync: %v", err)
	}

	res, err := orch.SyncApplication(context.Background(), "app1", syncer.Options{Force: true})
	if err != nil {
		t.Fatalf("forced sync: %v", err)
	}
	if !res.Synced {
		t.Error("forced sync must hit the remote")
	}
	if len(res.Changes) != 0 {
		t.Errorf("changes = %d, want 0 for unchanged remote schema", len(res.Changes))
	}
	if apps, _, _ := remote.counts(); apps != 2 {
		t.Errorf("remote application calls = %d, want 2", apps)
	}
}

func TestSyncApplication_StaleSchemaTriggersResync(t *testing.T) {
	orch, store, remote := newFixture(t)

	if _, err := orch.SyncApplication(context.Background(), "app1", syncer.Options{}); err != nil {
		t.Fatalf("first sync: %v", err)
	}
	if err := store.SetLastSynced("app1", time.Now().Add(-2*time.Hour)); err != nil {
		t.Fatalf("backdating: %v", err)
	}

	res, err := orch.SyncApplication(context.Background(), "app1", syncer.Options{})
	if err != nil {
		t.Fatalf("stale sync: %v", err)
	}
	if !res.Synced {
		t.Error("a stale application must be re-synced")
	}
	if apps, _, _ := remote.counts(); apps != 2 {
		t.Errorf("remote application calls = %d, want 2", apps)
	}
}

func TestSyncApplication_ConcurrentCallsCollapse(t *testing.T) {
	orch, _, remote := newFixture(t)

	remote.gate = make(chan struct{})
	remote.started = make(chan struct{}, 1)

	type outcome struct {
		res *syncer.Result
		err error
	}
	results := make(chan outcome, 2)

	go func() {
		res, err := orch.SyncApplication(context.Background(), "app1", syncer.Options{Force: true})
		results <- outcome{res, err}
	}()

	// Wait until the first sync is inside the remote call, then start a
	// second one that must join it instead of fetching independently.
	<-remote.started
	go func() {
		res, err := orch.SyncApplication(context.Background(), "app1", syncer.Options{Force: true})
		results <- outcome{res, err}
	}()

	// Give the second caller a moment to register as a waiter before
	// releasing the fetch.
	time.Sleep(50 * time.Millisecond)
	close(remote.gate)

	first := <-results
	second := <-results
	if first.err != nil || second.err != nil {
		t.Fatalf("errors: %v / %v", first.err, second.err)
	}
	if !first.res.Synced || !second.res.Synced {
		t.Error("both callers must observe the shared sync outcome")
	}
	if apps, _, _ := remote.counts(); apps != 1 {
		t.Errorf("remote application calls = %d, want 1 (collapsed)", apps)
	}
}

func TestSyncApplication_WaiterHonorsContext(t *testing.T) {
	orch, _, remote := newFixture(t)

	remote.gate = make(chan struct{})
	remote.started = make(chan struct{}, 1)
	defer close(remote.gate)

	go func() {
		_, _ = orch.SyncApplication(context.Background(), "app1", syncer.Options{Force: true})
	}()
	<-remote.started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := orch.SyncApplication(ctx, "app1", syncer.Options{Force: true})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("waiting caller error = %v, want context.Canceled", err)
	}
}

func TestSyncApplication_TimerReplacedNotStacked(t *testing.T) {
	orch, _, _ := newFixture(t)

	for i := 0; i < 3; i++ {
		if _, err := orch.SyncApplication(context.Background(), "app1",
			syncer.Options{Force: true, Interval: time.Hour}); err != nil {
			t.Fatalf("sync %d: %v", i, err)
		}
	}
	if n := orch.TimerCount(); n != 1 {
		t.Errorf("timers = %d, want exactly 1 per application", n)
	}
}

func TestClose_StopsTimers(t *testing.T) {
	orch, _, _ := newFixture(t)

	if _, err := orch.SyncApplication(context.Background(), "app1",
		syncer.Options{Interval: time.Hour}); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if err := orch.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if n := orch.TimerCount(); n != 0 {
		t.Errorf("timers after Close = %d, want 0", n)
	}
}

// ─── QueryRecords ────────────────────────────────────────────────────────────

func TestQueryRecords_SyncsUnknownTableWithAppID(t *testing.T) {
	orch, _, remote := newFixture(t)

	out, err := orch.QueryRecords(context.Background(), "app1", "tbl-orders", queryval.Query{
		Equal: map[string]any{"status": "open"},
	})
	if err != nil {
		t.Fatalf("QueryRecords() error: %v", err)
	}
	if len(out.Records) != 1 {
		t.Errorf("records = %d, want 1", len(out.Records))
	}
	if out.Built.Limit == 0 {
		t.Error("executed query must carry an applied limit")
	}
	if apps, _, queries := remote.counts(); apps != 1 || queries != 1 {
		t.Errorf("remote calls = %d apps / %d queries, want 1/1", apps, queries)
	}
}

func TestQueryRecords_CachedSchemaSkipsSync(t *testing.T) {
	orch, _, remote := newFixture(t)

	if _, err := orch.SyncApplication(context.Background(), "app1", syncer.Options{}); err != nil {
		t.Fatalf("sync: %v", err)
	}

	if _, err := orch.QueryRecords(context.Background(), "", "tbl-orders", queryval.Query{}); err != nil {
		t.Fatalf("QueryRecords() error: %v", err)
	}
	if apps, _, _ := remote.counts(); apps != 1 {
		t.Errorf("remote application calls = %d, want no extra sync", apps)
	}
}

func TestQueryRecords_ResolvesOwnerByScan(t *testing.T) {
	orch, _, remote := newFixture(t)

	// app1 is known locally, but tbl-reports only exists remotely.
	if _, err := orch.SyncApplication(context.Background(), "app1", syncer.Options{}); err != nil {
		t.Fatalf("sync: %v", err)
	}
	remote.mu.Lock()
	remote.tables["app1"] = append(remote.tables["app1"], registry.Table{
		ID:     "tbl-reports",
		AppID:  "app1",
		Name:   "Reports",
		Kind:   registry.KindTable,
		Schema: registry.Schema{"title": {Type: registry.FieldString}},
	})
	remote.mu.Unlock()

	out, err := orch.QueryRecords(context.Background(), "", "tbl-reports", queryval.Query{})
	if err != nil {
		t.Fatalf("QueryRecords() error: %v", err)
	}
	if len(out.Records) != 1 {
		t.Errorf("records = %d, want 1", len(out.Records))
	}
}

func TestQueryRecords_UnknownTableEverywhere(t *testing.T) {
	orch, _, _ := newFixture(t)

	if _, err := orch.SyncApplication(context.Background(), "app1", syncer.Options{}); err != nil {
		t.Fatalf("sync: %v", err)
	}

	_, err := orch.QueryRecords(context.Background(), "", "tbl-ghost", queryval.Query{})
	if !errors.Is(err, registry.ErrNotFound) {
		t.Errorf("QueryRecords() error = %v, want ErrNotFound", err)
	}
}

func TestQueryRecords_ValidationErrorPropagates(t *testing.T) {
	orch, _, remote := newFixture(t)

	if _, err := orch.SyncApplication(context.Background(), "app1", syncer.Options{}); err != nil {
		t.Fatalf("sync: %v", err)
	}

	_, err := orch.QueryRecords(context.Background(), "app1", "tbl-orders", queryval.Query{
		Range: map[string]queryval.NumericRange{"status": {}},
	})
	var verr *queryval.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("QueryRecords() error = %v, want *queryval.ValidationError", err)
	}
	if _, _, queries := remote.counts(); queries != 0 {
		t.Errorf("remote query calls = %d, want 0 for an invalid query", queries)
	}
}
