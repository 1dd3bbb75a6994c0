package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/yumyai/bgcnet/pkg/model"

	_ "modernc.org/sqlite"
)

var RunNotExists = errors.New("run does not exist")

// Store keeps runs, clusters, domain hits and network edges in one sqlite
// file inside the output folder, so finished runs can be inspected without
// re-reading the text artifacts.
type Store struct {
	db *sql.DB
}

const schema = `
	CREATE TABLE IF NOT EXISTS runs (
		id         TEXT PRIMARY KEY,
		created_at TEXT NOT NULL,
		mode       TEXT NOT NULL,
		jaccardw   REAL NOT NULL,
		ddsw       REAL NOT NULL,
		gkw        REAL NOT NULL,
		nbhood     INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS clusters (
		run_id  TEXT NOT NULL,
		name    TEXT NOT NULL,
		sample  TEXT NOT NULL,
		grp     TEXT NOT NULL,
		domains INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS hits (
		run_id  TEXT NOT NULL,
		cluster TEXT NOT NULL,
		score   REAL NOT NULL,
		gene    TEXT NOT NULL,
		start   INTEGER NOT NULL,
		stop    INTEGER NOT NULL,
		strand  TEXT NOT NULL,
		acc     TEXT NOT NULL,
		name    TEXT NOT NULL,
		cds     TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS edges (
		run_id    TEXT NOT NULL,
		mode      TEXT NOT NULL,
		sample    TEXT NOT NULL,
		cluster_a TEXT NOT NULL,
		cluster_b TEXT NOT NULL,
		logscore  REAL NOT NULL,
		distance  REAL NOT NULL,
		sqsim     REAL NOT NULL,
		jaccard   REAL NOT NULL,
		dds       REAL NOT NULL,
		gk        REAL NOT NULL
	);
`

// OpenStore opens (and if needed creates) the results database. A single
// connection is enough for a batch writer and keeps sqlite happy.
func OpenStore(dbpath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbpath)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// ClusterRow is what the store keeps per cluster: where it came from and
// how many domains survived filtering.
type ClusterRow struct {
	Name    string
	Sample  string
	Group   string
	Domains int
}

func (s *Store) CreateRun(ctx context.Context, runID, mode string, cfg model.DistanceConfig) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, created_at, mode, jaccardw, ddsw, gkw, nbhood)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, time.Now().UTC().Format(time.RFC3339), mode,
		cfg.JaccardWeight, cfg.DDSWeight, cfg.GKWeight, cfg.Nbhood)
	if err != nil {
		return fmt.Errorf("failed to register run %s: %w", runID, err)
	}
	return nil
}

func (s *Store) SaveClusters(ctx context.Context, runID string, rows []ClusterRow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stm, err := tx.PrepareContext(ctx, `
		INSERT INTO clusters (run_id, name, sample, grp, domains)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stm.Close()

	for _, r := range rows {
		if _, err := stm.ExecContext(ctx, runID, r.Name, r.Sample, r.Group, r.Domains); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert cluster %s: %w", r.Name, err)
		}
	}
	return tx.Commit()
}

func (s *Store) SaveHits(ctx context.Context, runID string, hits []model.DomainHit) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stm, err := tx.PrepareContext(ctx, `
		INSERT INTO hits (run_id, cluster, score, gene, start, stop, strand, acc, name, cds)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stm.Close()

	for _, h := range hits {
		if _, err := stm.ExecContext(ctx, runID, h.Cluster, h.Score, h.GeneID,
			h.Start, h.Stop, h.Strand, h.Accession, h.Name, h.CDS); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert hit for %s: %w", h.Cluster, err)
		}
	}
	return tx.Commit()
}

func (s *Store) SaveEdges(ctx context.Context, runID, mode, sample string, table model.NetworkTable) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stm, err := tx.PrepareContext(ctx, `
		INSERT INTO edges (run_id, mode, sample, cluster_a, cluster_b, logscore, distance, sqsim, jaccard, dds, gk)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stm.Close()

	for _, e := range table {
		if _, err := stm.ExecContext(ctx, runID, mode, sample, e.ClusterA, e.ClusterB,
			e.LogScore, e.Distance, e.SqSim, e.Jaccard, e.DDS, e.GK); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert edge %s/%s: %w", e.ClusterA, e.ClusterB, err)
		}
	}
	return tx.Commit()
}

func (s *Store) requireRun(ctx context.Context, runID string) error {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM runs WHERE id = ?`, runID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", RunNotExists, runID)
	}
	return err
}

func (s *Store) ClusterCount(ctx context.Context, runID string) (int, error) {
	if err := s.requireRun(ctx, runID); err != nil {
		return 0, err
	}
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM clusters WHERE run_id = ?`, runID).Scan(&n)
	return n, err
}

func (s *Store) EdgeCount(ctx context.Context, runID, mode string) (int, error) {
	if err := s.requireRun(ctx, runID); err != nil {
		return 0, err
	}
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM edges WHERE run_id = ? AND mode = ?`, runID, mode).Scan(&n)
	return n, err
}

// TopEdges returns the n most similar pairs recorded for a run and mode,
// across all samples. Group labels are not stored on edges, so they come
// back empty.
func (s *Store) TopEdges(ctx context.Context, runID, mode string, n int) (model.NetworkTable, error) {
	if err := s.requireRun(ctx, runID); err != nil {
		return nil, err
	}

	stm, err := s.db.PrepareContext(ctx, `
		SELECT cluster_a, cluster_b, logscore, distance, sqsim, jaccard, dds, gk
		FROM edges
		WHERE run_id = ? AND mode = ?
		ORDER BY logscore ASC
		LIMIT ?`)
	if err != nil {
		return nil, err
	}
	defer stm.Close()

	rows, err := stm.QueryContext(ctx, runID, mode, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var table model.NetworkTable
	for rows.Next() {
		var e model.NetworkEdge
		if err := rows.Scan(&e.ClusterA, &e.ClusterB, &e.LogScore,
			&e.Distance, &e.SqSim, &e.Jaccard, &e.DDS, &e.GK); err != nil {
			return nil, fmt.Errorf("failed to scan edge row: %w", err)
		}
		table = append(table, e)
	}
	return table, rows.Err()
}
