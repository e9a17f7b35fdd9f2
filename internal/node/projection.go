package node

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/dyluth/stash/pkg/document"
	"github.com/dyluth/stash/pkg/identity"
	"github.com/dyluth/stash/pkg/query"
	"github.com/dyluth/stash/pkg/schema"
)

//go:embed schema.sql
var schemaSQL string

// Record is a document ready to be materialised in the projection.
type Record struct {
	DocumentID string
	ViewID     string
	Owner      identity.PublicKey
	SchemaID   schema.ID

	// Written holds the fields as submitted; they are returned by queries.
	Written map[string]schema.Value

	// Resolved additionally holds declared defaults; filters and ordering
	// run against it.
	Resolved map[string]schema.Value
}

// Projection is the SQLite read model derived from the log.
// Uses WAL mode so queries can run while the projector writes.
type Projection struct {
	db *sql.DB
}

// OpenProjection creates or opens the projection database at path.
// Applies pragmas and the schema; safe to call on an existing database.
func OpenProjection(path string) (*Projection, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Projection{db: db}, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// Close closes the database.
func (p *Projection) Close() error {
	if p.db == nil {
		return nil
	}
	return p.db.Close()
}

// Ping verifies the database is usable.
func (p *Projection) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Cursor returns the last stream ID applied, or "" for an empty projection.
func (p *Projection) Cursor(ctx context.Context) (string, error) {
	var streamID string
	err := p.db.QueryRowContext(ctx, "SELECT stream_id FROM projection_cursor WHERE id = 1").Scan(&streamID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read cursor: %w", err)
	}
	return streamID, nil
}

// Apply materialises rec and advances the cursor to streamID in one
// transaction. A document that already exists is left untouched.
func (p *Projection) Apply(ctx context.Context, rec Record, streamID string) error {
	fieldsJSON, err := json.Marshal(rec.Written)
	if err != nil {
		return fmt.Errorf("apply %s: %w", rec.DocumentID, err)
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("apply %s: %w", rec.DocumentID, err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (document_id, view_id, owner, schema_id, fields, stream_id)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(document_id) DO NOTHING
	`, rec.DocumentID, rec.ViewID, string(rec.Owner), string(rec.SchemaID), string(fieldsJSON), streamID)
	if err != nil {
		return fmt.Errorf("apply %s: %w", rec.DocumentID, err)
	}

	for name, v := range rec.Resolved {
		var text, folded sql.NullString
		var num sql.NullInt64
		if v.Type == schema.TypeStr {
			text = sql.NullString{String: v.Str, Valid: true}
			folded = sql.NullString{String: query.Fold(v.Str), Valid: true}
		} else {
			num = sql.NullInt64{Int64: sqlParam(v).(int64), Valid: true}
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO document_fields (document_id, name, type, text_value, folded_value, int_value)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(document_id, name) DO NOTHING
		`, rec.DocumentID, name, string(v.Type), text, folded, num)
		if err != nil {
			return fmt.Errorf("apply %s field %q: %w", rec.DocumentID, name, err)
		}
	}

	if err := setCursor(ctx, tx, streamID); err != nil {
		return err
	}
	return tx.Commit()
}

// Skip advances the cursor past an entry that cannot be projected.
func (p *Projection) Skip(ctx context.Context, streamID string) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := setCursor(ctx, tx, streamID); err != nil {
		return err
	}
	return tx.Commit()
}

func setCursor(ctx context.Context, tx *sql.Tx, streamID string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projection_cursor (id, stream_id) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET stream_id = excluded.stream_id
	`, streamID)
	if err != nil {
		return fmt.Errorf("advance cursor: %w", err)
	}
	return nil
}

// Query runs q against documents of desc's schema. q must already be
// validated against desc.
func (p *Projection) Query(ctx context.Context, desc *schema.Descriptor, q query.Query) ([]document.Row, error) {
	stmt, args, err := compileQuery(desc, q)
	if err != nil {
		return nil, err
	}

	rows, err := p.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query projection: %w", err)
	}
	defer rows.Close()

	out := []document.Row{}
	for rows.Next() {
		var (
			row    document.Row
			owner  string
			fields string
		)
		if err := rows.Scan(&row.Meta.DocumentID, &row.Meta.ViewID, &owner, &fields); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		row.Meta.Owner = identity.PublicKey(owner)
		if err := json.Unmarshal([]byte(fields), &row.Fields); err != nil {
			return nil, fmt.Errorf("decode fields of %s: %w", row.Meta.DocumentID, err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query projection: %w", err)
	}
	return out, nil
}

// Count returns the number of projected documents.
func (p *Projection) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := p.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents").Scan(&n); err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return n, nil
}
