package analytics

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// ClickHouseConfig addresses one ClickHouse server and database, set
// from the ClickHouseAddr/ClickHouseDB/ClickHouseUser/ClickHousePass
// fields of internal/config.AnalyticsConfig.
type ClickHouseConfig struct {
	Addr     string
	Database string
	User     string
	Password string
}

// ClickHouseSink is the production analytics sink, an append-only
// MergeTree table partitioned by day, grounded on the agentflow-
// infrastructure example's internal/db/clickhouse.go table shape and
// adapted to the heartbeats column layout spec.md §6 requires.
type ClickHouseSink struct {
	conn driver.Conn
}

// NewClickHouseSink opens a connection and ensures the heartbeats table
// exists.
func NewClickHouseSink(ctx context.Context, cfg ClickHouseConfig) (*ClickHouseSink, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}

	sink := &ClickHouseSink{conn: conn}
	if err := sink.initSchema(ctx); err != nil {
		return nil, err
	}
	return sink, nil
}

func (s *ClickHouseSink) initSchema(ctx context.Context) error {
	return s.conn.Exec(ctx, `CREATE TABLE IF NOT EXISTS heartbeats (
		monitor_id  String,
		org_id      String,
		dispatch_id String,
		ts          DateTime64(3),
		status      LowCardinality(String),
		latency_ms  Int64,
		region      LowCardinality(String) DEFAULT '',
		colo        LowCardinality(String) DEFAULT '',
		error       String DEFAULT '',
		code        Int32 DEFAULT 0,
		sample_rate Float64 DEFAULT 1.0
	) ENGINE = MergeTree()
	PARTITION BY toDate(ts)
	ORDER BY (monitor_id, org_id, ts)
	TTL ts + INTERVAL 180 DAY`)
}

func (s *ClickHouseSink) Record(ctx context.Context, p Point) error {
	return s.conn.Exec(ctx,
		`INSERT INTO heartbeats
		 (monitor_id, org_id, dispatch_id, ts, status, latency_ms, region, colo, error, code, sample_rate)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.MonitorID, p.OrgID, p.DispatchID, p.Timestamp, p.Status, p.LatencyMs,
		p.Region, p.Colo, p.Error, p.Code, p.SampleRate)
}

func (s *ClickHouseSink) Close() error {
	return s.conn.Close()
}
