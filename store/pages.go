package store

import (
	"context"
	"database/sql"
	"errors"
)

// UpsertPage inserts a new Page at (site, path), or, if one already
// exists, first purges it (and its cascade) before inserting the new
// row — this is what makes re-crawling a path idempotent. The returned
// Page is committed before the caller's subsequent WriteIndexBatch call.
func (s *Store) UpsertPage(ctx context.Context, site *Site, path string, httpCode int, content string) (*Page, error) {
	var page *Page
	err := s.withRetry(ctx, "UpsertPage", func(tx *sql.Tx) error {
		var existingID int64
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM pages WHERE site_id = ? AND path = ?`, site.ID, path).Scan(&existingID)
		switch {
		case err == nil:
			if err := purgePageTx(ctx, tx, existingID); err != nil {
				return err
			}
		case errors.Is(err, sql.ErrNoRows):
			// no existing page, nothing to purge
		default:
			return err
		}

		res, err := tx.ExecContext(ctx,
			`INSERT INTO pages(site_id, path, http_code, content) VALUES (?, ?, ?, ?)`,
			site.ID, path, httpCode, content)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		page = &Page{ID: id, SiteID: site.ID, Path: path, HTTPCode: httpCode, Content: content}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

// PurgePage deletes all IndexEntries for page, decrements the frequency
// of each Lemma that had an entry referencing it, then deletes the Page
// itself (invariant 3).
func (s *Store) PurgePage(ctx context.Context, page *Page) error {
	return s.withRetry(ctx, "PurgePage", func(tx *sql.Tx) error {
		return purgePageTx(ctx, tx, page.ID)
	})
}

func purgePageTx(ctx context.Context, tx *sql.Tx, pageID int64) error {
	rows, err := tx.QueryContext(ctx, `SELECT lemma_id FROM index_entries WHERE page_id = ?`, pageID)
	if err != nil {
		return err
	}
	var lemmaIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		lemmaIDs = append(lemmaIDs, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	if _, err := tx.ExecContext(ctx, `DELETE FROM index_entries WHERE page_id = ?`, pageID); err != nil {
		return err
	}
	for _, lemmaID := range lemmaIDs {
		if _, err := tx.ExecContext(ctx,
			`UPDATE lemmas SET frequency = frequency - 1 WHERE id = ?`, lemmaID); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM pages WHERE id = ?`, pageID); err != nil {
		return err
	}
	return nil
}

// PageByID fetches a single Page by its identifier.
func (s *Store) PageByID(ctx context.Context, id int64) (*Page, error) {
	var page *Page
	err := s.withRetry(ctx, "PageByID", func(tx *sql.Tx) error {
		var p Page
		err := tx.QueryRowContext(ctx,
			`SELECT id, site_id, path, http_code, content FROM pages WHERE id = ?`, id).
			Scan(&p.ID, &p.SiteID, &p.Path, &p.HTTPCode, &p.Content)
		if err != nil {
			return err
		}
		page = &p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

// CountPagesOfSite returns the number of Pages belonging to site.
func (s *Store) CountPagesOfSite(ctx context.Context, siteID int64) (int, error) {
	var count int
	err := s.withRetry(ctx, "CountPagesOfSite", func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM pages WHERE site_id = ?`, siteID).Scan(&count)
	})
	return count, err
}

// TotalPages returns the number of Pages across every site.
func (s *Store) TotalPages(ctx context.Context) (int, error) {
	var count int
	err := s.withRetry(ctx, "TotalPages", func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM pages`).Scan(&count)
	})
	return count, err
}
