package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
)

// WriteIndexBatch finds-or-creates a Lemma for page.SiteID for each
// (lemmaText, rank) pair, increments its frequency by one, and inserts an
// IndexEntry(page, lemma, rank). Within one call a given lemma's
// frequency is incremented at most once, since entries are keyed by
// distinct lemma text for a single page (invariant 2).
func (s *Store) WriteIndexBatch(ctx context.Context, page *Page, entries []LemmaRank) error {
	if len(entries) == 0 {
		return nil
	}
	return s.withRetry(ctx, "WriteIndexBatch", func(tx *sql.Tx) error {
		for _, entry := range entries {
			lemmaID, err := findOrCreateLemmaTx(ctx, tx, page.SiteID, entry.Text)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				`UPDATE lemmas SET frequency = frequency + 1 WHERE id = ?`, lemmaID); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO index_entries(page_id, lemma_id, rank) VALUES (?, ?, ?)`,
				page.ID, lemmaID, entry.Rank); err != nil {
				return err
			}
		}
		return nil
	})
}

func findOrCreateLemmaTx(ctx context.Context, tx *sql.Tx, siteID int64, text string) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM lemmas WHERE site_id = ? AND text = ?`, siteID, text).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO lemmas(site_id, text, frequency) VALUES (?, ?, 0)`, siteID, text)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// LemmasBySiteAndTexts returns the Lemma rows of site whose text is one
// of texts.
func (s *Store) LemmasBySiteAndTexts(ctx context.Context, siteID int64, texts []string) ([]*Lemma, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	query, args := inClauseQuery(
		`SELECT id, site_id, text, frequency FROM lemmas WHERE site_id = ? AND text IN (`,
		texts, siteID)
	return s.queryLemmas(ctx, query, args)
}

// LemmasByTexts returns all Lemma rows, across every site, whose text is
// one of texts.
func (s *Store) LemmasByTexts(ctx context.Context, texts []string) ([]*Lemma, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	query, args := inClauseQuery(
		`SELECT id, site_id, text, frequency FROM lemmas WHERE text IN (`, texts)
	return s.queryLemmas(ctx, query, args)
}

func inClauseQuery(prefix string, texts []string, leadingArgs ...any) (string, []any) {
	placeholders := make([]string, len(texts))
	args := make([]any, 0, len(leadingArgs)+len(texts))
	args = append(args, leadingArgs...)
	for i, t := range texts {
		placeholders[i] = "?"
		args = append(args, t)
	}
	return prefix + strings.Join(placeholders, ",") + ")", args
}

func (s *Store) queryLemmas(ctx context.Context, query string, args []any) ([]*Lemma, error) {
	var lemmas []*Lemma
	err := s.withRetry(ctx, "queryLemmas", func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var l Lemma
			if err := rows.Scan(&l.ID, &l.SiteID, &l.Text, &l.Frequency); err != nil {
				return err
			}
			lemmas = append(lemmas, &l)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return lemmas, nil
}

// PagesByLemma returns every Page referencing lemmaID via an IndexEntry.
func (s *Store) PagesByLemma(ctx context.Context, lemmaID int64) ([]*Page, error) {
	var pages []*Page
	err := s.withRetry(ctx, "PagesByLemma", func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT p.id, p.site_id, p.path, p.http_code, p.content
			 FROM pages p JOIN index_entries e ON e.page_id = p.id
			 WHERE e.lemma_id = ?`, lemmaID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var p Page
			if err := rows.Scan(&p.ID, &p.SiteID, &p.Path, &p.HTTPCode, &p.Content); err != nil {
				return err
			}
			pages = append(pages, &p)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return pages, nil
}

// RankOf returns the occurrence count of lemmaID on pageID, or 0 if no
// IndexEntry links them.
func (s *Store) RankOf(ctx context.Context, pageID, lemmaID int64) (float64, error) {
	var rank float64
	err := s.withRetry(ctx, "RankOf", func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			`SELECT rank FROM index_entries WHERE page_id = ? AND lemma_id = ?`, pageID, lemmaID).Scan(&rank)
		if errors.Is(err, sql.ErrNoRows) {
			rank = 0
			return nil
		}
		return err
	})
	return rank, err
}

// CountLemmasOfSite returns the number of Lemma rows belonging to site.
func (s *Store) CountLemmasOfSite(ctx context.Context, siteID int64) (int, error) {
	var count int
	err := s.withRetry(ctx, "CountLemmasOfSite", func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM lemmas WHERE site_id = ?`, siteID).Scan(&count)
	})
	return count, err
}

// TotalLemmas returns the number of Lemma rows across every site.
func (s *Store) TotalLemmas(ctx context.Context) (int, error) {
	var count int
	err := s.withRetry(ctx, "TotalLemmas", func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM lemmas`).Scan(&count)
	})
	return count, err
}

// TotalSites returns the number of configured sites.
func (s *Store) TotalSites(ctx context.Context) (int, error) {
	var count int
	err := s.withRetry(ctx, "TotalSites", func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM sites`).Scan(&count)
	})
	return count, err
}
