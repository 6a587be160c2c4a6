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

// Healthy always returns true; if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search executes a UNION ALL query across document metadata and the
// extracted content index using plainto_tsquery and ts_rank, with
// ts_headline for snippets.
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

	tsQuery := "plainto_tsquery('spanish', $1)"
	args := []any{q.Text}
	argN := 2

	var subQueries []string

	scopeClause := func(alias string) string {
		clause := ""
		if q.FilterEntityID != "" {
			clause += fmt.Sprintf(" AND %s.entity_id = $%d", alias, argN)
			args = append(args, q.FilterEntityID)
			argN++
		}
		if q.ClientIDs != nil {
			clause += fmt.Sprintf(" AND e.client_id = ANY($%d)", argN)
			args = append(args, q.ClientIDs)
			argN++
		}
		return clause
	}

	// Document metadata sub-query
	if q.FilterType == "" || q.FilterType == ResultDocument {
		docVector := "to_tsvector('spanish', coalesce(d.title,'') || ' ' || coalesce(d.description,'') || ' ' || coalesce(d.file_name,''))"
		docWhere := docVector + " @@ " + tsQuery + " AND d.deleted_at IS NULL" + scopeClause("d")
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'document'::text AS type, d.id, coalesce(nullif(d.title,''), d.file_name) AS title,
				ts_headline('spanish', coalesce(d.description, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				d.id AS document_id, d.entity_id, e.client_id,
				ts_rank(%s, %s) AS rank
			FROM documents d
			JOIN entities e ON e.id = d.entity_id
			WHERE %s`, tsQuery, docVector, tsQuery, docWhere))
	}

	// Extracted content sub-query
	if q.FilterType == "" || q.FilterType == ResultContent {
		contentVector := "to_tsvector('spanish', ci.content_text)"
		contentWhere := contentVector + " @@ " + tsQuery + " AND d.deleted_at IS NULL" + scopeClause("d")
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'content'::text AS type, d.id, d.file_name AS title,
				ts_headline('spanish', ci.content_text, %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				d.id AS document_id, d.entity_id, e.client_id,
				ts_rank(%s, %s) AS rank
			FROM document_content_index ci
			JOIN documents d ON d.id = ci.document_id
			JOIN entities e ON e.id = d.entity_id
			WHERE %s`, tsQuery, contentVector, tsQuery, contentWhere))
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub",
		strings.Join(subQueries, " UNION ALL "))

	dataSQL := fmt.Sprintf(`SELECT type, id, title, snippet, document_id, entity_id, client_id
		FROM (%s) sub
		ORDER BY rank DESC
		LIMIT %d OFFSET %d`,
		strings.Join(subQueries, " UNION ALL "),
		limit, offset)

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
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.DocumentID, &r.EntityID, &r.ClientID); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns all searchable records for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]DocumentRecord, []ContentRecord, error) {
	docRows, err := p.db.QueryContext(ctx, `
		SELECT d.id, d.title, d.description, d.file_name, d.entity_id, e.client_id, d.status
		FROM documents d
		JOIN entities e ON e.id = d.entity_id
		WHERE d.deleted_at IS NULL
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load documents: %w", err)
	}
	defer docRows.Close()

	documents := make([]DocumentRecord, 0)
	for docRows.Next() {
		var d DocumentRecord
		if err := docRows.Scan(&d.ID, &d.Title, &d.Description, &d.FileName, &d.EntityID, &d.ClientID, &d.Status); err != nil {
			return nil, nil, fmt.Errorf("scan document: %w", err)
		}
		documents = append(documents, d)
	}
	if err := docRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate documents: %w", err)
	}

	contentRows, err := p.db.QueryContext(ctx, `
		SELECT d.id, ci.content_text, d.file_name, d.entity_id, e.client_id
		FROM document_content_index ci
		JOIN documents d ON d.id = ci.document_id
		JOIN entities e ON e.id = d.entity_id
		WHERE d.deleted_at IS NULL
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load content: %w", err)
	}
	defer contentRows.Close()

	contents := make([]ContentRecord, 0)
	for contentRows.Next() {
		var c ContentRecord
		if err := contentRows.Scan(&c.ID, &c.Content, &c.FileName, &c.EntityID, &c.ClientID); err != nil {
			return nil, nil, fmt.Errorf("scan content: %w", err)
		}
		contents = append(contents, c)
	}
	if err := contentRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate content: %w", err)
	}

	return documents, contents, nil
}

// LookupDocumentRefs resolves the entity and client a document belongs to,
// used to stamp content records before indexing.
func (p *PgFTS) LookupDocumentRefs(ctx context.Context, documentID string) (entityID, clientID, fileName string, err error) {
	err = p.db.QueryRowContext(ctx, `
		SELECT d.entity_id, e.client_id, d.file_name
		FROM documents d
		JOIN entities e ON e.id = d.entity_id
		WHERE d.id = $1
	`, documentID).Scan(&entityID, &clientID, &fileName)
	if err != nil {
		return "", "", "", fmt.Errorf("lookup document refs: %w", err)
	}
	return entityID, clientID, fileName, nil
}
