package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/clubdues/clubdues/pkg/observability"
)

// PrimaryPool names the primary in stats and metrics
const PrimaryPool = "primary"

// ConnectionManager owns the primary and the read replica pools.
// Batch creation and settings writes use Primary; list, view and export use Replica.
type ConnectionManager struct {
	primary *sql.DB

	mu       sync.RWMutex
	replicas []replicaPool
	next     atomic.Uint32

	config  ConnectionConfig
	logger  *observability.Logger
	metrics *observability.Metrics
}

// replicaPool keeps the name derived from the configured position so it stays stable
// after other replicas are pruned
type replicaPool struct {
	name string
	db   *sql.DB
}

// ConnectionConfig holds database connection configuration
type ConnectionConfig struct {
	PrimaryURL  string
	ReplicaURLs []string
	MaxConns    int
	MinConns    int
	Timeout     time.Duration
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

// Option configures a ConnectionManager
type Option func(*ConnectionManager)

// WithLogger sets the logger
func WithLogger(logger *observability.Logger) Option {
	return func(cm *ConnectionManager) {
		cm.logger = logger
	}
}

// WithMetrics publishes pool gauges on every health check tick
func WithMetrics(metrics *observability.Metrics) Option {
	return func(cm *ConnectionManager) {
		cm.metrics = metrics
	}
}

type openFunc func(driverName, dataSourceName string) (*sql.DB, error)

// NewConnectionManager connects to the primary and every reachable replica.
// An unreachable primary is an error; unreachable replicas are logged and skipped.
func NewConnectionManager(ctx context.Context, config ConnectionConfig, opts ...Option) (*ConnectionManager, error) {
	return newConnectionManager(ctx, config, sql.Open, opts...)
}

func newConnectionManager(ctx context.Context, config ConnectionConfig, open openFunc, opts ...Option) (*ConnectionManager, error) {
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}
	cm := &ConnectionManager{config: config}
	for _, opt := range opts {
		opt(cm)
	}
	if cm.logger == nil {
		cm.logger = observability.NewNopLogger()
	}

	primary, err := cm.connect(ctx, open, config.PrimaryURL, config.MaxConns)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to primary: %w", err)
	}
	cm.primary = primary

	for i, url := range config.ReplicaURLs {
		name := fmt.Sprintf("replica-%d", i)
		db, err := cm.connect(ctx, open, url, replicaMaxConns(config.MaxConns))
		if err != nil {
			cm.logger.WithError(err).WithField("replica", name).Warn("skipping replica")
			continue
		}
		cm.replicas = append(cm.replicas, replicaPool{name: name, db: db})
	}

	cm.logger.WithField("replicas", len(cm.replicas)).Info("connection manager initialized")
	return cm, nil
}

// connect opens, sizes and pings one pool. The pool is closed again when the ping fails.
func (cm *ConnectionManager) connect(ctx context.Context, open openFunc, url string, maxConns int) (*sql.DB, error) {
	db, err := open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open connection: %w", err)
	}

	if maxConns > 0 {
		db.SetMaxOpenConns(maxConns)
	}
	if cm.config.MinConns > 0 {
		db.SetMaxIdleConns(cm.config.MinConns)
	}
	db.SetConnMaxLifetime(cm.config.MaxLifetime)
	db.SetConnMaxIdleTime(cm.config.MaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, cm.config.Timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return db, nil
}

// replicaMaxConns sizes replica pools at half the primary, at least 2
func replicaMaxConns(primaryMax int) int {
	if primaryMax <= 0 {
		return 0
	}
	return max(primaryMax/2, 2)
}

// Primary returns the pool for writes
func (cm *ConnectionManager) Primary() *sql.DB {
	return cm.primary
}

// Replica returns the next replica in round-robin order, or the primary when none is left
func (cm *ConnectionManager) Replica() *sql.DB {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if len(cm.replicas) == 0 {
		return cm.primary
	}
	n := cm.next.Add(1)
	return cm.replicas[int(n%uint32(len(cm.replicas)))].db
}

func (cm *ConnectionManager) snapshot() []replicaPool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return append([]replicaPool(nil), cm.replicas...)
}

// HealthCheck fails when the primary is down or every replica is. Losing some replicas
// is tolerated because reads fall back to the others.
func (cm *ConnectionManager) HealthCheck(ctx context.Context) error {
	if err := cm.primary.PingContext(ctx); err != nil {
		return fmt.Errorf("primary unhealthy: %w", err)
	}

	replicas := cm.snapshot()
	var down []string
	for _, r := range replicas {
		if err := r.db.PingContext(ctx); err != nil {
			down = append(down, r.name)
		}
	}
	if len(down) > 0 && len(down) == len(replicas) {
		return fmt.Errorf("all replicas unhealthy: %s", strings.Join(down, ", "))
	}
	return nil
}

// PoolStats returns pool statistics keyed by pool name
func (cm *ConnectionManager) PoolStats() map[string]sql.DBStats {
	replicas := cm.snapshot()
	stats := make(map[string]sql.DBStats, len(replicas)+1)
	stats[PrimaryPool] = cm.primary.Stats()
	for _, r := range replicas {
		stats[r.name] = r.db.Stats()
	}
	return stats
}

// RemoveUnhealthyReplicas closes and drops replicas that fail a ping and returns how many
// were removed
func (cm *ConnectionManager) RemoveUnhealthyReplicas(ctx context.Context) int {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	kept := cm.replicas[:0]
	removed := 0
	for _, r := range cm.replicas {
		if err := r.db.PingContext(ctx); err != nil {
			cm.logger.WithError(err).WithField("replica", r.name).Warn("dropping unhealthy replica")
			r.db.Close()
			removed++
			continue
		}
		kept = append(kept, r)
	}
	cm.replicas = kept
	return removed
}

// Close closes every pool
func (cm *ConnectionManager) Close() error {
	var errs []error
	if err := cm.primary.Close(); err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", PrimaryPool, err))
	}

	cm.mu.Lock()
	replicas := cm.replicas
	cm.replicas = nil
	cm.mu.Unlock()

	for _, r := range replicas {
		if err := r.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.name, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("failed to close connections: %w", err)
	}
	return nil
}

// StartHealthCheckRoutine prunes unhealthy replicas and publishes pool gauges every
// interval until ctx is cancelled. The returned channel is closed when the routine exits.
func (cm *ConnectionManager) StartHealthCheckRoutine(ctx context.Context, interval time.Duration) <-chan struct{} {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	done := make(chan struct{})
	ticker := time.NewTicker(interval)

	go func() {
		defer close(done)
		defer ticker.Stop()
		defer observability.RecoverPanic(cm.logger, "connection health check")

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				checkCtx, cancel := context.WithTimeout(ctx, cm.config.Timeout)
				cm.RemoveUnhealthyReplicas(checkCtx)
				cancel()
				for pool, stats := range cm.PoolStats() {
					cm.metrics.UpdateDBStats(pool, stats)
				}
			}
		}
	}()
	return done
}
