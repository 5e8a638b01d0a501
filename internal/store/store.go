// IceWatch - Community Monitor for Immigration Enforcement Activity
// Copyright 2026 IceWatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/icewatch/icewatch

// Package store persists reports, clusters, and alert markers in an
// embedded DuckDB database. All write operations are idempotent and
// atomic; a failed write is fatal for the process (fail-fast, operator
// must inspect).
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/goccy/go-json"

	"github.com/icewatch/icewatch/internal/logging"
	"github.com/icewatch/icewatch/internal/models"
)

// ErrFatal marks unrecoverable store failures. The pipeline terminates
// the process when it sees one.
var ErrFatal = errors.New("fatal store failure")

// Config holds store configuration.
type Config struct {
	// Path is the DuckDB database file. Parent directories are
	// created as needed.
	Path string

	// Retention is how long report and notification rows are kept.
	// Default 7 days. Active clusters are never purged.
	Retention time.Duration
}

// Store wraps the DuckDB connection.
type Store struct {
	conn *sql.DB
	cfg  Config

	// writeMu serializes writes. DuckDB handles concurrent readers
	// fine, but the pipeline and the retention sweeper both write.
	writeMu sync.Mutex
}

// New opens (or creates) the database and initializes the schema.
func New(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("store: path is required")
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 7 * 24 * time.Hour
	}

	// Use 0750 permissions (owner: rwx, group: rx, other: none) per gosec G301
	dbDir := filepath.Dir(cfg.Path)
	if dbDir != "" && dbDir != "." {
		if err := os.MkdirAll(dbDir, 0o750); err != nil {
			return nil, fmt.Errorf("creating database directory %s: %w", dbDir, err)
		}
	}

	conn, err := sql.Open("duckdb", cfg.Path+"?access_mode=read_write")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One writer connection keeps DuckDB happy under the single-writer
	// model; reads share it.
	conn.SetMaxOpenConns(1)

	s := &Store{conn: conn, cfg: cfg}
	if err := s.createTables(); err != nil {
		closeQuietly(conn)
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	return s, nil
}

// Close checkpoints and closes the database.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := s.conn.ExecContext(ctx, "CHECKPOINT"); err != nil {
		logging.Warn().Err(err).Msg("failed to checkpoint database before close")
	}
	return s.conn.Close()
}

// Ping checks if the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	if s.conn == nil {
		return fmt.Errorf("database connection is nil")
	}
	return s.conn.PingContext(ctx)
}

func (s *Store) createTables() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS reports (
			dedup_key      VARCHAR PRIMARY KEY,
			source         VARCHAR NOT NULL,
			trust          VARCHAR NOT NULL,
			obs_ts         TIMESTAMP NOT NULL,
			ingest_ts      TIMESTAMP NOT NULL,
			content        VARCHAR NOT NULL,
			url            VARCHAR,
			author         VARCHAR,
			coords_json    VARCHAR,
			locations_json VARCHAR,
			verdict        VARCHAR,
			cluster_id     VARCHAR
		)`,
		`CREATE TABLE IF NOT EXISTS clusters (
			id                  VARCHAR PRIMARY KEY,
			state               VARCHAR NOT NULL,
			first_seen          TIMESTAMP NOT NULL,
			last_updated        TIMESTAMP NOT NULL,
			centroid_lat        DOUBLE,
			centroid_lon        DOUBLE,
			has_centroid        BOOLEAN NOT NULL DEFAULT FALSE,
			label               VARCHAR,
			confidence          DOUBLE NOT NULL DEFAULT 0,
			alerts_emitted_json VARCHAR NOT NULL DEFAULT '[]'
		)`,
		`CREATE TABLE IF NOT EXISTS cluster_members (
			cluster_id VARCHAR NOT NULL,
			dedup_key  VARCHAR NOT NULL,
			position   INTEGER NOT NULL,
			PRIMARY KEY (cluster_id, dedup_key)
		)`,
		`CREATE TABLE IF NOT EXISTS notifications (
			token        VARCHAR PRIMARY KEY,
			cluster_id   VARCHAR NOT NULL,
			kind         VARCHAR NOT NULL,
			attempted_at TIMESTAMP NOT NULL,
			success      BOOLEAN NOT NULL,
			error        VARCHAR
		)`,
		`CREATE INDEX IF NOT EXISTS idx_reports_cluster ON reports(cluster_id)`,
		`CREATE INDEX IF NOT EXISTS idx_clusters_state ON clusters(state)`,
	}
	for _, stmt := range stmts {
		if _, err := s.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("executing %q: %w", stmt[:40], err)
		}
	}
	return nil
}

// SeenReport reports whether a dedup key is already persisted.
// Implements the filter's dedup index.
func (s *Store) SeenReport(dedupKey string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var count int
	err := s.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reports WHERE dedup_key = ?`, dedupKey).Scan(&count)
	if err != nil {
		return false, fatalf("dedup lookup: %v", err)
	}
	return count > 0, nil
}

// PutReport persists a report. Idempotent: re-inserting the same dedup
// key is a no-op.
func (s *Store) PutReport(ctx context.Context, r *models.Report) error {
	coordsJSON := sql.NullString{}
	if r.HasCoords {
		raw, err := json.Marshal(map[string]float64{"lat": r.Lat, "lon": r.Lon})
		if err != nil {
			return fatalf("marshal coords for %s: %v", r.DedupKey, err)
		}
		coordsJSON = sql.NullString{String: string(raw), Valid: true}
	}

	locsJSON := sql.NullString{}
	if len(r.Locations) > 0 {
		raw, err := json.Marshal(r.Locations)
		if err != nil {
			return fatalf("marshal locations for %s: %v", r.DedupKey, err)
		}
		locsJSON = sql.NullString{String: string(raw), Valid: true}
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO reports (dedup_key, source, trust, obs_ts, ingest_ts,
			content, url, author, coords_json, locations_json, verdict, cluster_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (dedup_key) DO NOTHING`,
		r.DedupKey, r.Source, string(r.Trust), r.ObservedAt.UTC(), r.IngestedAt.UTC(),
		r.Content, nullable(r.URL), nullable(r.Author), coordsJSON, locsJSON,
		nullable(string(r.Verdict)), nullable(r.ClusterID))
	if err != nil {
		return fatalf("put report %s: %v", r.DedupKey, err)
	}
	return nil
}

// UpsertCluster persists a cluster row and its membership. Idempotent.
func (s *Store) UpsertCluster(ctx context.Context, cl *models.Cluster) error {
	alertsJSON, err := json.Marshal(cl.AlertsEmitted)
	if err != nil {
		return fatalf("marshal alerts for cluster %s: %v", cl.ID, err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fatalf("begin upsert cluster %s: %v", cl.ID, err)
	}
	defer rollbackQuietly(tx)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO clusters (id, state, first_seen, last_updated,
			centroid_lat, centroid_lon, has_centroid, label, confidence, alerts_emitted_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			state = excluded.state,
			last_updated = excluded.last_updated,
			centroid_lat = excluded.centroid_lat,
			centroid_lon = excluded.centroid_lon,
			has_centroid = excluded.has_centroid,
			label = excluded.label,
			confidence = excluded.confidence,
			alerts_emitted_json = excluded.alerts_emitted_json`,
		cl.ID, string(cl.State), cl.FirstSeen.UTC(), cl.LastUpdated.UTC(),
		cl.CentroidLat, cl.CentroidLon, cl.HasCentroid,
		nullable(cl.Label), cl.Confidence, string(alertsJSON))
	if err != nil {
		return fatalf("upsert cluster %s: %v", cl.ID, err)
	}

	for pos, m := range cl.Members {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO cluster_members (cluster_id, dedup_key, position)
			VALUES (?, ?, ?)
			ON CONFLICT (cluster_id, dedup_key) DO NOTHING`,
			cl.ID, m.DedupKey, pos)
		if err != nil {
			return fatalf("upsert member %s of cluster %s: %v", m.DedupKey, cl.ID, err)
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE reports SET cluster_id = ? WHERE dedup_key = ?`,
			cl.ID, m.DedupKey)
		if err != nil {
			return fatalf("link member %s to cluster %s: %v", m.DedupKey, cl.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fatalf("commit upsert cluster %s: %v", cl.ID, err)
	}
	return nil
}

// MarkAlert atomically records a dispatched alert: the emission record
// is appended to the cluster row and the notification log entry is
// written in the same transaction.
func (s *Store) MarkAlert(ctx context.Context, clusterID, token string, rec models.AlertRecord) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fatalf("begin mark alert %s: %v", token, err)
	}
	defer rollbackQuietly(tx)

	var alertsJSON string
	err = tx.QueryRowContext(ctx,
		`SELECT alerts_emitted_json FROM clusters WHERE id = ?`, clusterID).Scan(&alertsJSON)
	if err != nil {
		return fatalf("load alerts for cluster %s: %v", clusterID, err)
	}

	var alerts []models.AlertRecord
	if err := json.Unmarshal([]byte(alertsJSON), &alerts); err != nil {
		return fatalf("decode alerts for cluster %s: %v", clusterID, err)
	}
	alerts = append(alerts, rec)
	updated, err := json.Marshal(alerts)
	if err != nil {
		return fatalf("encode alerts for cluster %s: %v", clusterID, err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE clusters SET alerts_emitted_json = ? WHERE id = ?`,
		string(updated), clusterID); err != nil {
		return fatalf("update alerts for cluster %s: %v", clusterID, err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO notifications (token, cluster_id, kind, attempted_at, success, error)
		VALUES (?, ?, ?, ?, TRUE, NULL)
		ON CONFLICT (token) DO NOTHING`,
		token, clusterID, string(rec.Kind), rec.EmittedAt.UTC()); err != nil {
		return fatalf("log notification %s: %v", token, err)
	}

	if err := tx.Commit(); err != nil {
		return fatalf("commit mark alert %s: %v", token, err)
	}
	return nil
}

// LogNotificationFailure records an unsuccessful dispatch attempt.
// Failures never touch alerts_emitted, so a future update retries the
// missing alert.
func (s *Store) LogNotificationFailure(ctx context.Context, clusterID, token string, kind models.AlertKind, dispatchErr error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	// Suffix the token with the attempt time so repeated failures for
	// the same emission stay distinguishable.
	logToken := fmt.Sprintf("%s@%d", token, time.Now().UnixNano())
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO notifications (token, cluster_id, kind, attempted_at, success, error)
		VALUES (?, ?, ?, ?, FALSE, ?)
		ON CONFLICT (token) DO NOTHING`,
		logToken, clusterID, string(kind), time.Now().UTC(), dispatchErr.Error())
	if err != nil {
		return fatalf("log notification failure %s: %v", token, err)
	}
	return nil
}

// ActiveClusters restores all ACTIVE clusters with their members, in
// membership position order. Used to warm-start the correlator.
func (s *Store) ActiveClusters(ctx context.Context) ([]*models.Cluster, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, state, first_seen, last_updated, centroid_lat, centroid_lon,
			has_centroid, COALESCE(label, ''), confidence, alerts_emitted_json
		FROM clusters WHERE state = 'ACTIVE'
		ORDER BY first_seen`)
	if err != nil {
		return nil, fatalf("query active clusters: %v", err)
	}
	defer closeQuietlyRows(rows)

	var clusters []*models.Cluster
	for rows.Next() {
		cl := &models.Cluster{}
		var state, alertsJSON string
		if err := rows.Scan(&cl.ID, &state, &cl.FirstSeen, &cl.LastUpdated,
			&cl.CentroidLat, &cl.CentroidLon, &cl.HasCentroid,
			&cl.Label, &cl.Confidence, &alertsJSON); err != nil {
			return nil, fatalf("scan cluster row: %v", err)
		}
		cl.State = models.ClusterState(state)
		if err := json.Unmarshal([]byte(alertsJSON), &cl.AlertsEmitted); err != nil {
			return nil, fatalf("decode alerts for cluster %s: %v", cl.ID, err)
		}
		clusters = append(clusters, cl)
	}
	if err := rows.Err(); err != nil {
		return nil, fatalf("iterate cluster rows: %v", err)
	}

	for _, cl := range clusters {
		members, err := s.clusterMembers(ctx, cl.ID)
		if err != nil {
			return nil, err
		}
		cl.Members = members
	}
	return clusters, nil
}

func (s *Store) clusterMembers(ctx context.Context, clusterID string) ([]*models.Report, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT r.dedup_key, r.source, r.trust, r.obs_ts, r.ingest_ts, r.content,
			COALESCE(r.url, ''), COALESCE(r.author, ''),
			COALESCE(r.coords_json, ''), COALESCE(r.locations_json, ''),
			COALESCE(r.verdict, '')
		FROM cluster_members cm
		JOIN reports r ON r.dedup_key = cm.dedup_key
		WHERE cm.cluster_id = ?
		ORDER BY cm.position`, clusterID)
	if err != nil {
		return nil, fatalf("query members of cluster %s: %v", clusterID, err)
	}
	defer closeQuietlyRows(rows)

	var members []*models.Report
	for rows.Next() {
		r := &models.Report{ClusterID: clusterID}
		var trust, coordsJSON, locsJSON, verdict string
		if err := rows.Scan(&r.DedupKey, &r.Source, &trust, &r.ObservedAt,
			&r.IngestedAt, &r.Content, &r.URL, &r.Author,
			&coordsJSON, &locsJSON, &verdict); err != nil {
			return nil, fatalf("scan member row: %v", err)
		}
		r.Trust = models.Trust(trust)
		r.Verdict = models.Verdict(verdict)
		if coordsJSON != "" {
			var coords struct {
				Lat float64 `json:"lat"`
				Lon float64 `json:"lon"`
			}
			if err := json.Unmarshal([]byte(coordsJSON), &coords); err != nil {
				return nil, fatalf("decode coords for %s: %v", r.DedupKey, err)
			}
			r.HasCoords = true
			r.Lat = coords.Lat
			r.Lon = coords.Lon
		}
		if locsJSON != "" {
			if err := json.Unmarshal([]byte(locsJSON), &r.Locations); err != nil {
				return nil, fatalf("decode locations for %s: %v", r.DedupKey, err)
			}
		}
		members = append(members, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fatalf("iterate member rows: %v", err)
	}
	return members, nil
}

// Purge deletes rows older than the retention window: reports outside
// any ACTIVE cluster, EXPIRED clusters, their memberships, and stale
// notification log entries. Returns the total rows removed.
func (s *Store) Purge(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-s.cfg.Retention).UTC()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin purge: %w", err)
	}
	defer rollbackQuietly(tx)

	var total int64
	steps := []struct {
		name string
		stmt string
	}{
		{"expired clusters", `DELETE FROM clusters
			WHERE state = 'EXPIRED' AND last_updated < ?`},
		{"orphan memberships", `DELETE FROM cluster_members
			WHERE cluster_id NOT IN (SELECT id FROM clusters)`},
		{"stale reports", `DELETE FROM reports
			WHERE ingest_ts < ? AND (cluster_id IS NULL OR cluster_id NOT IN
				(SELECT id FROM clusters WHERE state = 'ACTIVE'))`},
		{"stale notifications", `DELETE FROM notifications WHERE attempted_at < ?`},
	}
	args := [][]any{{cutoff}, {}, {cutoff}, {cutoff}}
	for i, step := range steps {
		res, err := tx.ExecContext(ctx, step.stmt, args[i]...)
		if err != nil {
			return 0, fmt.Errorf("purge %s: %w", step.name, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			total += n
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit purge: %w", err)
	}
	return total, nil
}

// ReportCount returns the number of persisted reports.
func (s *Store) ReportCount(ctx context.Context) (int64, error) {
	var n int64
	if err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM reports`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count reports: %w", err)
	}
	return n, nil
}

func fatalf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrFatal, fmt.Sprintf(format, args...))
}

func nullable(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func closeQuietly(c interface{ Close() error }) {
	if err := c.Close(); err != nil {
		logging.Debug().Err(err).Msg("close failed")
	}
}

func closeQuietlyRows(rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		logging.Debug().Err(err).Msg("closing rows failed")
	}
}

func rollbackQuietly(tx *sql.Tx) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		logging.Debug().Err(err).Msg("rollback failed")
	}
}
