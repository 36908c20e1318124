package postgres

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clubdues/clubdues/pkg/observability"
)

type mockConn struct {
	db   *sql.DB
	mock sqlmock.Sqlmock
}

func newMockConn(t *testing.T) mockConn {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	return mockConn{db: db, mock: mock}
}

// fakeOpener hands out pre-built sqlmock connections keyed by URL
func fakeOpener(conns map[string]mockConn) openFunc {
	return func(driverName, dsn string) (*sql.DB, error) {
		c, ok := conns[dsn]
		if !ok {
			return nil, errors.New("unknown dsn " + dsn)
		}
		return c.db, nil
	}
}

func testConfig(replicas ...string) ConnectionConfig {
	return ConnectionConfig{
		PrimaryURL:  "postgres://primary/clubdues",
		ReplicaURLs: replicas,
		MaxConns:    10,
		MinConns:    2,
		Timeout:     time.Second,
	}
}

func TestReplicaMaxConns(t *testing.T) {
	assert.Equal(t, 0, replicaMaxConns(0))
	assert.Equal(t, 2, replicaMaxConns(3))
	assert.Equal(t, 5, replicaMaxConns(10))
}

func TestNewConnectionManager(t *testing.T) {
	t.Run("primary and replicas", func(t *testing.T) {
		primary, r1, r2 := newMockConn(t), newMockConn(t), newMockConn(t)
		primary.mock.ExpectPing()
		r1.mock.ExpectPing()
		r2.mock.ExpectPing()

		cm, err := newConnectionManager(context.Background(), testConfig("r1", "r2"), fakeOpener(map[string]mockConn{
			"postgres://primary/clubdues": primary,
			"r1":                          r1,
			"r2":                          r2,
		}))
		require.NoError(t, err)

		assert.Same(t, primary.db, cm.Primary())
		stats := cm.PoolStats()
		assert.Len(t, stats, 3)
		assert.Contains(t, stats, PrimaryPool)
		assert.Contains(t, stats, "replica-1")
		assert.NoError(t, primary.mock.ExpectationsWereMet())
		assert.NoError(t, r1.mock.ExpectationsWereMet())
		assert.NoError(t, r2.mock.ExpectationsWereMet())
	})

	t.Run("unreachable primary", func(t *testing.T) {
		primary := newMockConn(t)
		primary.mock.ExpectPing().WillReturnError(errors.New("connection refused"))
		primary.mock.ExpectClose()

		cm, err := newConnectionManager(context.Background(), testConfig(), fakeOpener(map[string]mockConn{
			"postgres://primary/clubdues": primary,
		}))

		assert.Nil(t, cm)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to connect to primary: ping")
		assert.NoError(t, primary.mock.ExpectationsWereMet())
	})

	t.Run("primary cannot be opened", func(t *testing.T) {
		cm, err := newConnectionManager(context.Background(), testConfig(), fakeOpener(nil))

		assert.Nil(t, cm)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to connect to primary: open connection")
	})

	t.Run("unreachable replicas are skipped", func(t *testing.T) {
		var buf bytes.Buffer
		primary, bad := newMockConn(t), newMockConn(t)
		primary.mock.ExpectPing()
		bad.mock.ExpectPing().WillReturnError(errors.New("timeout"))
		bad.mock.ExpectClose()

		cm, err := newConnectionManager(context.Background(), testConfig("bad", "missing"), fakeOpener(map[string]mockConn{
			"postgres://primary/clubdues": primary,
			"bad":                         bad,
		}), WithLogger(observability.NewLogger(observability.InfoLevel, &buf)))
		require.NoError(t, err)

		assert.Same(t, primary.db, cm.Replica(), "falls back to primary")
		assert.Contains(t, buf.String(), `"replica":"replica-0"`)
		assert.Contains(t, buf.String(), "unknown dsn missing")
		assert.Empty(t, cm.snapshot())
		assert.NoError(t, bad.mock.ExpectationsWereMet())
	})
}

func TestConnectionManager_Replica(t *testing.T) {
	t.Run("no replicas - fallback to primary", func(t *testing.T) {
		primaryDB := &sql.DB{}
		cm := &ConnectionManager{primary: primaryDB}

		assert.Same(t, primaryDB, cm.Replica())
	})

	t.Run("round robin", func(t *testing.T) {
		r1, r2 := &sql.DB{}, &sql.DB{}
		cm := &ConnectionManager{primary: &sql.DB{}, replicas: []replicaPool{{"replica-0", r1}, {"replica-1", r2}}}

		first := cm.Replica()
		second := cm.Replica()
		third := cm.Replica()

		assert.NotSame(t, first, second)
		assert.Same(t, first, third)
	})
}

func TestConnectionManager_HealthCheck(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		primary, replica := newMockConn(t), newMockConn(t)
		primary.mock.ExpectPing()
		replica.mock.ExpectPing()

		cm := &ConnectionManager{primary: primary.db, replicas: []replicaPool{{"replica-0", replica.db}}}
		assert.NoError(t, cm.HealthCheck(context.Background()))
	})

	t.Run("primary down", func(t *testing.T) {
		primary := newMockConn(t)
		primary.mock.ExpectPing().WillReturnError(errors.New("gone"))

		cm := &ConnectionManager{primary: primary.db}
		err := cm.HealthCheck(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "primary unhealthy")
	})

	t.Run("all replicas down", func(t *testing.T) {
		primary, replica := newMockConn(t), newMockConn(t)
		primary.mock.ExpectPing()
		replica.mock.ExpectPing().WillReturnError(errors.New("gone"))

		cm := &ConnectionManager{primary: primary.db, replicas: []replicaPool{{"replica-3", replica.db}}}
		err := cm.HealthCheck(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "all replicas unhealthy: replica-3")
	})
}

func TestConnectionManager_RemoveUnhealthyReplicas(t *testing.T) {
	good, bad := newMockConn(t), newMockConn(t)
	good.mock.ExpectPing()
	bad.mock.ExpectPing().WillReturnError(errors.New("gone"))
	bad.mock.ExpectClose()

	cm := &ConnectionManager{
		primary:  &sql.DB{},
		replicas: []replicaPool{{"replica-0", good.db}, {"replica-1", bad.db}},
		logger:   observability.NewNopLogger(),
	}

	assert.Equal(t, 1, cm.RemoveUnhealthyReplicas(context.Background()))
	assert.Same(t, good.db, cm.Replica())
	assert.Equal(t, []replicaPool{{"replica-0", good.db}}, cm.snapshot())
	assert.NoError(t, bad.mock.ExpectationsWereMet())
}

func TestConnectionManager_Close(t *testing.T) {
	primary, replica := newMockConn(t), newMockConn(t)
	primary.mock.ExpectClose()
	replica.mock.ExpectClose().WillReturnError(errors.New("busy"))

	cm := &ConnectionManager{primary: primary.db, replicas: []replicaPool{{"replica-0", replica.db}}}
	err := cm.Close()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "replica-0: busy")
	assert.Nil(t, cm.replicas)
}

func TestConnectionManager_HealthCheckRoutine(t *testing.T) {
	primary, bad := newMockConn(t), newMockConn(t)
	bad.mock.ExpectPing().WillReturnError(errors.New("gone"))
	bad.mock.ExpectClose()

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	primary.db.SetMaxOpenConns(7)

	cm := &ConnectionManager{
		primary:  primary.db,
		replicas: []replicaPool{{"replica-0", bad.db}},
		config:   ConnectionConfig{Timeout: time.Second},
		logger:   observability.NewNopLogger(),
		metrics:  metrics,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := cm.StartHealthCheckRoutine(ctx, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		return len(cm.PoolStats()) == 1 && testutil.CollectAndCount(metrics.DBConnectionsActive) == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done

	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.DBConnectionsActive.WithLabelValues(PrimaryPool)))
	assert.NoError(t, bad.mock.ExpectationsWereMet())
}
