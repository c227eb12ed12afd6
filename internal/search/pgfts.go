package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true. If Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search runs plainto_tsquery over canvas titles with ts_rank ordering.
// The query is scoped to the caller's workspaces.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	tsQuery := "plainto_tsquery('simple', $1)"
	args := []any{q.Text}
	argN := 2

	where := fmt.Sprintf("to_tsvector('simple', c.title) @@ %s", tsQuery)
	if q.FilterWorkspaceID != "" {
		where += fmt.Sprintf(" AND c.workspace_id = $%d", argN)
		args = append(args, q.FilterWorkspaceID)
		argN++
	} else if len(q.WorkspaceIDs) > 0 {
		placeholders := make([]string, len(q.WorkspaceIDs))
		for i, id := range q.WorkspaceIDs {
			placeholders[i] = fmt.Sprintf("$%d", argN)
			args = append(args, id)
			argN++
		}
		where += fmt.Sprintf(" AND c.workspace_id IN (%s)", strings.Join(placeholders, ", "))
	}

	countSQL := fmt.Sprintf("SELECT count(*) FROM canvases c WHERE %s", where)
	dataSQL := fmt.Sprintf(`
		SELECT c.id, c.title,
			ts_headline('simple', c.title, %s, 'MaxFragments=1,MaxWords=30') AS snippet,
			c.workspace_id, c.is_public
		FROM canvases c
		WHERE %s
		ORDER BY ts_rank(to_tsvector('simple', c.title), %s) DESC, c.updated_at DESC
		LIMIT %d OFFSET %d`, tsQuery, where, tsQuery, limit, offset)

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.Title, &r.Snippet, &r.WorkspaceID, &r.IsPublic); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns all canvases for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]CanvasRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, title, workspace_id, is_public
		FROM canvases
	`)
	if err != nil {
		return nil, fmt.Errorf("load canvases: %w", err)
	}
	defer rows.Close()

	canvases := make([]CanvasRecord, 0)
	for rows.Next() {
		var c CanvasRecord
		if err := rows.Scan(&c.ID, &c.Title, &c.WorkspaceID, &c.IsPublic); err != nil {
			return nil, fmt.Errorf("scan canvas: %w", err)
		}
		canvases = append(canvases, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate canvases: %w", err)
	}
	return canvases, nil
}
