package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vosbek/codeatlas/internal/diag"
	"github.com/vosbek/codeatlas/internal/graph"
)

// Snapshot is one persisted analysis run.
type Snapshot struct {
	ID         string
	Repository string
	Revision   string
	CreatedAt  time.Time
	Stats      graph.Stats
}

// SaveBatch persists one batch atomically: the snapshot row, all entities
// and relationships, and every diagnostic.
func (s *Store) SaveBatch(repository, revision string, b *graph.Batch) error {
	return s.WithTransaction(func(tx *Store) error {
		stats, err := json.Marshal(b.Stats)
		if err != nil {
			return fmt.Errorf("marshal stats: %w", err)
		}
		if _, err := tx.q.Exec(
			`INSERT INTO snapshots (id, repository, revision, created_at, stats) VALUES (?, ?, ?, ?, ?)`,
			b.SnapshotID, repository, revision, time.Now().UTC().Format(time.RFC3339Nano), string(stats)); err != nil {
			return fmt.Errorf("insert snapshot: %w", err)
		}
		for _, e := range b.Entities {
			if _, err := tx.q.Exec(
				`INSERT INTO entities (snapshot_id, id, kind, qualified_name, file_path, start_line, end_line, canonical, attributes)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				b.SnapshotID, e.ID, string(e.Kind), e.QualifiedName, e.FilePath,
				e.StartLine, e.EndLine, boolInt(e.Canonical), marshalAttrs(e.Attributes)); err != nil {
				return fmt.Errorf("insert entity %s: %w", e.QualifiedName, err)
			}
		}
		for _, r := range b.Relationships {
			if _, err := tx.q.Exec(
				`INSERT OR IGNORE INTO relationships (snapshot_id, source_id, target_id, type) VALUES (?, ?, ?, ?)`,
				b.SnapshotID, r.SourceID, r.TargetID, string(r.Type)); err != nil {
				return fmt.Errorf("insert relationship: %w", err)
			}
		}
		for _, d := range b.Diagnostics {
			if _, err := tx.q.Exec(
				`INSERT INTO diagnostics (snapshot_id, severity, category, file_path, line, message) VALUES (?, ?, ?, ?, ?, ?)`,
				b.SnapshotID, string(d.Severity), string(d.Category), d.FilePath, d.Line, d.Message); err != nil {
				return fmt.Errorf("insert diagnostic: %w", err)
			}
		}
		return nil
	})
}

// GetSnapshot loads one snapshot header by id.
func (s *Store) GetSnapshot(id string) (*Snapshot, error) {
	var snap Snapshot
	var created, stats string
	err := s.q.QueryRow(
		`SELECT id, repository, revision, created_at, stats FROM snapshots WHERE id=?`, id).
		Scan(&snap.ID, &snap.Repository, &snap.Revision, &created, &stats)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	snap.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	_ = json.Unmarshal([]byte(stats), &snap.Stats)
	return &snap, nil
}

// EntitiesByKind returns a snapshot's entities of one kind, in qualified
// name order.
func (s *Store) EntitiesByKind(snapshotID string, kind graph.EntityKind) ([]graph.Entity, error) {
	rows, err := s.q.Query(
		`SELECT id, kind, qualified_name, file_path, start_line, end_line, canonical, attributes
		 FROM entities WHERE snapshot_id=? AND kind=? ORDER BY qualified_name, id`, snapshotID, string(kind))
	if err != nil {
		return nil, fmt.Errorf("entities by kind: %w", err)
	}
	defer rows.Close()
	return scanEntities(rows)
}

// EntityByQN returns the canonical entity with the given qualified name.
func (s *Store) EntityByQN(snapshotID, qn string) (*graph.Entity, error) {
	rows, err := s.q.Query(
		`SELECT id, kind, qualified_name, file_path, start_line, end_line, canonical, attributes
		 FROM entities WHERE snapshot_id=? AND qualified_name=? AND canonical=1 LIMIT 1`, snapshotID, qn)
	if err != nil {
		return nil, fmt.Errorf("entity by qn: %w", err)
	}
	defer rows.Close()
	ents, err := scanEntities(rows)
	if err != nil || len(ents) == 0 {
		return nil, err
	}
	return &ents[0], nil
}

// RelationshipsFrom returns outgoing edges of one entity, optionally
// filtered by type ("" means all).
func (s *Store) RelationshipsFrom(snapshotID, sourceID string, relType graph.RelType) ([]graph.Relationship, error) {
	query := `SELECT source_id, target_id, type FROM relationships WHERE snapshot_id=? AND source_id=?`
	args := []any{snapshotID, sourceID}
	if relType != "" {
		query += ` AND type=?`
		args = append(args, string(relType))
	}
	query += ` ORDER BY type, target_id`
	rows, err := s.q.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("relationships from: %w", err)
	}
	defer rows.Close()

	var rels []graph.Relationship
	for rows.Next() {
		var r graph.Relationship
		var typ string
		if err := rows.Scan(&r.SourceID, &r.TargetID, &typ); err != nil {
			return nil, err
		}
		r.Type = graph.RelType(typ)
		rels = append(rels, r)
	}
	return rels, rows.Err()
}

// DiagnosticsFor returns a snapshot's diagnostics, worst severity first.
func (s *Store) DiagnosticsFor(snapshotID string) ([]diag.Diagnostic, error) {
	rows, err := s.q.Query(
		`SELECT severity, category, file_path, line, message FROM diagnostics
		 WHERE snapshot_id=?
		 ORDER BY CASE severity WHEN 'error' THEN 0 WHEN 'warning' THEN 1 ELSE 2 END, file_path, line`,
		snapshotID)
	if err != nil {
		return nil, fmt.Errorf("diagnostics: %w", err)
	}
	defer rows.Close()

	var out []diag.Diagnostic
	for rows.Next() {
		var d diag.Diagnostic
		var sev, cat string
		if err := rows.Scan(&sev, &cat, &d.FilePath, &d.Line, &d.Message); err != nil {
			return nil, err
		}
		d.Severity = diag.Severity(sev)
		d.Category = diag.Category(cat)
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanEntities(rows *sql.Rows) ([]graph.Entity, error) {
	var out []graph.Entity
	for rows.Next() {
		var e graph.Entity
		var kind, attrs string
		var canonical int
		if err := rows.Scan(&e.ID, &kind, &e.QualifiedName, &e.FilePath,
			&e.StartLine, &e.EndLine, &canonical, &attrs); err != nil {
			return nil, err
		}
		e.Kind = graph.EntityKind(kind)
		e.Canonical = canonical != 0
		e.Attributes = unmarshalAttrs(attrs)
		out = append(out, e)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
