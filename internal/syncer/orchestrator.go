// Package syncer coordinates schema synchronization between the remote
// base platform and the local registry, and is the validated entry
// point for record queries.
//
// It owns two pieces of per-application state: an in-flight registry
// that collapses concurrent duplicate syncs into a single outcome, and
// at most one periodic re-sync timer per application.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dmtorres/gridsync/internal/queryval"
	"github.com/dmtorres/gridsync/internal/registry"
)

// RemoteClient is the read-only collaborator contract. Timeout and
// retry policy belong to the implementation, not to this package.
type RemoteClient interface {
	GetApplication(ctx context.Context, appID string) (registry.Application, error)
	GetTables(ctx context.Context, appID string) ([]registry.Table, error)
	QueryRecords(ctx context.Context, tableID string, q queryval.Query) ([]map[string]any, error)
}

// Options tune one SyncApplication call.
type Options struct {
	// Force skips the staleness check and always hits the remote.
	Force bool
	// Interval, when positive, registers a periodic re-sync timer for
	// this application, replacing any existing one.
	Interval time.Duration
}

// Result reports what one sync call did.
type Result struct {
	AppID   string                  `json:"app_id"`
	Synced  bool                    `json:"synced"`
	Changes []registry.SchemaChange `json:"changes,omitempty"`
}

// QueryOutcome carries the validated query that was executed and the
// records the platform returned, untouched.
type QueryOutcome struct {
	Built   *queryval.BuiltQuery `json:"built"`
	Records []map[string]any     `json:"records"`
}

type inflight struct {
	done   chan struct{}
	result *Result
	err    error
}

// Orchestrator drives syncs and validated queries.
type Orchestrator struct {
	store  *registry.Store
	remote RemoteClient
	log    *slog.Logger
	maxAge time.Duration

	mu       sync.Mutex
	inflight map[string]*inflight
	timers   map[string]*time.Timer
	closed   bool
}

// New creates an Orchestrator. maxAge is the staleness threshold used
// when a sync is not forced.
func New(store *registry.Store, remote RemoteClient, logger *slog.Logger, maxAge time.Duration) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:    store,
		remote:   remote,
		log:      logger,
		maxAge:   maxAge,
		inflight: make(map[string]*inflight),
		timers:   make(map[string]*time.Timer),
	}
}

// SyncApplication syncs one application's schema from the remote into
// the registry. With Force off and a fresh last-synced timestamp this
// is a no-op: zero remote calls, zero writes. Concurrent calls for the
// same application collapse: the second caller waits for and shares the
// first call's outcome instead of starting independent work.
func (o *Orchestrator) SyncApplication(ctx context.Context, appID string, opts Options) (*Result, error) {
	if opts.Interval > 0 {
		o.scheduleResync(appID, opts.Interval)
	}

	if !opts.Force {
		stale, err := o.store.NeedsSync(appID, o.maxAge)
		if err != nil {
			return nil, err
		}
		if !stale {
			return &Result{AppID: appID, Synced: false}, nil
		}
	}

	o.mu.Lock()
	if in, ok := o.inflight[appID]; ok {
		o.mu.Unlock()
		select {
		case <-in.done:
			return in.result, in.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	in := &inflight{done: make(chan struct{})}
	o.inflight[appID] = in
	o.mu.Unlock()

	in.result, in.err = o.doSync(ctx, appID)

	o.mu.Lock()
	delete(o.inflight, appID)
	o.mu.Unlock()
	close(in.done)

	return in.result, in.err
}

func (o *Orchestrator) doSync(ctx context.Context, appID string) (*Result, error) {
	app, err := o.remote.GetApplication(ctx, appID)
	if err != nil {
		return nil, fmt.Errorf("syncer: fetch application %q: %w", appID, err)
	}
	tables, err := o.remote.GetTables(ctx, appID)
	if err != nil {
		return nil, fmt.Errorf("syncer: fetch tables of %q: %w", appID, err)
	}

	changes, err := o.store.SyncApplication(app, tables)
	if err != nil {
		return nil, err
	}

	o.log.Info("synced application schema",
		"app_id", appID, "tables", len(tables), "changed", len(changes))
	return &Result{AppID: appID, Synced: true, Changes: changes}, nil
}

// scheduleResync registers the periodic timer for an application. A new
// registration cancels the previous timer first, so at most one timer
// exists per application.
func (o *Orchestrator) scheduleResync(appID string, interval time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	if t, ok := o.timers[appID]; ok {
		t.Stop()
	}
	o.timers[appID] = time.AfterFunc(interval, func() {
		// Re-registering the interval here keeps the cycle going.
		if _, err := o.SyncApplication(context.Background(), appID, Options{Interval: interval}); err != nil {
			o.log.Warn("periodic sync failed", "app_id", appID, "error", err)
		}
	})
}

// QueryRecords makes sure the table's schema is known locally, builds
// the validated query, and hands it to the remote unchanged. Records
// come back exactly as the platform returned them — this subsystem
// never filters or transforms results.
func (o *Orchestrator) QueryRecords(ctx context.Context, appID, tableID string, q queryval.Query) (*QueryOutcome, error) {
	_, err := o.store.GetTableSchema(tableID)
	if errors.Is(err, registry.ErrNotFound) {
		if appID == "" {
			appID, err = o.resolveOwningApp(ctx, tableID)
			if err != nil {
				return nil, err
			}
		}
		if _, err := o.SyncApplication(ctx, appID, Options{Force: true}); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	built, err := queryval.BuildQuery(o.store, tableID, q)
	if err != nil {
		return nil, err
	}

	records, err := o.remote.QueryRecords(ctx, tableID, built.Query)
	if err != nil {
		return nil, fmt.Errorf("syncer: query records of %q: %w", tableID, err)
	}
	return &QueryOutcome{Built: built, Records: records}, nil
}

// resolveOwningApp scans every known application's remote table list
// for the table. This is an O(applications x tables) remote fan-out and
// a last resort — callers should supply the application id directly.
func (o *Orchestrator) resolveOwningApp(ctx context.Context, tableID string) (string, error) {
	o.log.Warn("resolving owning application by full scan; pass app_id to avoid this", "table_id", tableID)

	apps, err := o.store.ListApplications()
	if err != nil {
		return "", err
	}
	for _, app := range apps {
		tables, err := o.remote.GetTables(ctx, app.ID)
		if err != nil {
			return "", fmt.Errorf("syncer: scan tables of %q: %w", app.ID, err)
		}
		for _, t := range tables {
			if t.ID == tableID {
				return app.ID, nil
			}
		}
	}
	return "", fmt.Errorf("syncer: owning application of table %q: %w", tableID, registry.ErrNotFound)
}

// Close cancels every registered timer and closes the registry.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	o.closed = true
	for id, t := range o.timers {
		t.Stop()
		delete(o.timers, id)
	}
	o.mu.Unlock()
	return o.store.Close()
}
