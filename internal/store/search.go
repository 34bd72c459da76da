package store

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// SearchOptions filters a bounded name search over the index.
type SearchOptions struct {
	// Keyword matches entry names case-insensitively. Empty or "*"
	// matches everything.
	Keyword string
	// Extensions restricts results to the given extensions (lowercase,
	// no leading dot). Empty means no extension filter.
	Extensions []string
	// RootID restricts results to one watched root. Zero means all roots.
	RootID int64
	// Limit caps result cardinality. Clamped to SearchLimit.
	Limit int
}

// Search returns entries whose name matches the keyword, ordered by
// relevance then path, capped at the row ceiling. A query matching
// nothing returns an empty result, not an error.
func (s *Store) Search(ctx context.Context, opts SearchOptions) (*SearchResult, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("search", start, err) }()

	if opts.Limit <= 0 || opts.Limit > SearchLimit {
		opts.Limit = SearchLimit
	}

	keyword := strings.TrimSpace(opts.Keyword)

	// Trigram FTS needs at least three characters; shorter keywords and
	// match-all queries go through the LIKE path on the NOCASE index.
	if keyword == "" || keyword == "*" || len(keyword) < 3 {
		result, likeErr := s.searchLike(ctx, keyword, opts)
		err = likeErr
		return result, err
	}

	result, ftsErr := s.searchFTS(ctx, keyword, opts)
	if ftsErr != nil {
		// An unbalanced quote or stray operator makes FTS reject the
		// query; fall back to a plain substring match.
		result, err = s.searchLike(ctx, keyword, opts)
		return result, err
	}
	return result, nil
}

func (s *Store) searchFTS(ctx context.Context, keyword string, opts SearchOptions) (*SearchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	query := `
		SELECT f.id, f.root_id, f.path, f.parent_path, f.name, f.extension, f.size, f.mtime, f.is_dir, f.generation
		FROM file_entries f
		INNER JOIN entries_fts fts ON f.id = fts.rowid
		WHERE entries_fts MATCH ?`
	args := []interface{}{ftsTerm(keyword)}

	query, args = appendFilters(query, args, "f", opts)

	// bm25 ranks best matches first; path break ties deterministically.
	query += ` ORDER BY bm25(entries_fts), f.path LIMIT ?`
	args = append(args, opts.Limit+1)

	return s.collectSearch(ctx, query, args, opts.Limit)
}

func (s *Store) searchLike(ctx context.Context, keyword string, opts SearchOptions) (*SearchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	query := `
		SELECT f.id, f.root_id, f.path, f.parent_path, f.name, f.extension, f.size, f.mtime, f.is_dir, f.generation
		FROM file_entries f
		WHERE 1=1`
	var args []interface{}

	if keyword != "" && keyword != "*" {
		query += ` AND f.name LIKE ? ESCAPE '\'`
		args = append(args, "%"+escapeLike(keyword)+"%")
	}

	query, args = appendFilters(query, args, "f", opts)

	query += ` ORDER BY f.name COLLATE NOCASE, f.path LIMIT ?`
	args = append(args, opts.Limit+1)

	result, err := s.collectSearch(ctx, query, args, opts.Limit)
	if err != nil {
		return nil, storageErr("search", err)
	}
	return result, nil
}

// appendFilters adds the root and extension predicates shared by both
// search paths.
func appendFilters(query string, args []interface{}, alias string, opts SearchOptions) (string, []interface{}) {
	if opts.RootID > 0 {
		query += fmt.Sprintf(` AND %s.root_id = ?`, alias)
		args = append(args, opts.RootID)
	}

	if len(opts.Extensions) > 0 {
		placeholders := strings.Repeat("?,", len(opts.Extensions))
		query += fmt.Sprintf(` AND %s.extension IN (%s)`, alias, placeholders[:len(placeholders)-1])
		for _, ext := range opts.Extensions {
			args = append(args, strings.ToLower(strings.TrimPrefix(ext, ".")))
		}
	}

	return query, args
}

func (s *Store) collectSearch(ctx context.Context, query string, args []interface{}, limit int) (*SearchResult, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]FileEntry, 0, limit)
	truncated := false

	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		if len(items) == limit {
			// The limit+1th row only proves the set was cut off.
			truncated = true
			break
		}
		items = append(items, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &SearchResult{Items: items, Truncated: truncated}, nil
}

// ftsTerm prepares a keyword for FTS5 trigram phrase matching.
func ftsTerm(keyword string) string {
	keyword = strings.ReplaceAll(keyword, `"`, `""`)
	return `"` + keyword + `"`
}

// escapeLike escapes LIKE wildcards in user input.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
