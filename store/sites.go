package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// FindOrCreateSite atomically returns the Site row for url, creating it
// (with name and an initial INDEXING status) if it does not yet exist.
// Sites are created on demand, the first time they are referenced.
func (s *Store) FindOrCreateSite(ctx context.Context, url, name string) (*Site, error) {
	var site *Site
	err := s.withRetry(ctx, "FindOrCreateSite", func(tx *sql.Tx) error {
		existing, err := scanSite(tx.QueryRowContext(ctx,
			`SELECT id, url, name, status, status_time, last_error FROM sites WHERE url = ?`, url))
		if err == nil {
			site = existing
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		now := time.Now().UTC()
		res, err := tx.ExecContext(ctx,
			`INSERT INTO sites(url, name, status, status_time, last_error) VALUES (?, ?, ?, ?, '')`,
			url, name, string(StatusIndexing), now)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		site = &Site{ID: id, URL: url, Name: name, Status: StatusIndexing, StatusTime: now}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return site, nil
}

// SiteByURL looks up a Site by its absolute root URL. It returns
// sql.ErrNoRows wrapped as-is when no such site is configured yet.
func (s *Store) SiteByURL(ctx context.Context, url string) (*Site, error) {
	var site *Site
	err := s.withRetry(ctx, "SiteByURL", func(tx *sql.Tx) error {
		found, err := scanSite(tx.QueryRowContext(ctx,
			`SELECT id, url, name, status, status_time, last_error FROM sites WHERE url = ?`, url))
		if err != nil {
			return err
		}
		site = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return site, nil
}

// SiteByID looks up a Site by its numeric identifier.
func (s *Store) SiteByID(ctx context.Context, id int64) (*Site, error) {
	var site *Site
	err := s.withRetry(ctx, "SiteByID", func(tx *sql.Tx) error {
		found, err := scanSite(tx.QueryRowContext(ctx,
			`SELECT id, url, name, status, status_time, last_error FROM sites WHERE id = ?`, id))
		if err != nil {
			return err
		}
		site = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return site, nil
}

// Sites returns every configured Site.
func (s *Store) Sites(ctx context.Context) ([]*Site, error) {
	var sites []*Site
	err := s.withRetry(ctx, "Sites", func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT id, url, name, status, status_time, last_error FROM sites ORDER BY id`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			site, err := scanSiteRows(rows)
			if err != nil {
				return err
			}
			sites = append(sites, site)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return sites, nil
}

// SetSiteStatus stamps site's status and status time, and an optional
// lastError message. It mutates site in place for caller convenience.
func (s *Store) SetSiteStatus(ctx context.Context, site *Site, status SiteStatus, lastError string) error {
	now := time.Now().UTC()
	err := s.withRetry(ctx, "SetSiteStatus", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE sites SET status = ?, status_time = ?, last_error = ? WHERE id = ?`,
			string(status), now, lastError, site.ID)
		return err
	})
	if err != nil {
		return err
	}
	site.Status = status
	site.StatusTime = now
	site.LastError = lastError
	return nil
}

// TouchSiteStatusTime stamps status_time = now without changing status,
// used as a liveness/progress signal for observers while a crawl runs.
func (s *Store) TouchSiteStatusTime(ctx context.Context, site *Site) error {
	now := time.Now().UTC()
	err := s.withRetry(ctx, "TouchSiteStatusTime", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE sites SET status_time = ? WHERE id = ?`, now, site.ID)
		return err
	})
	if err != nil {
		return err
	}
	site.StatusTime = now
	return nil
}

// PurgeSite removes all IndexEntries, Lemmas and Pages belonging to site,
// in that order, without removing the Site row itself. Used to make
// re-indexing a whole site idempotent.
func (s *Store) PurgeSite(ctx context.Context, site *Site) error {
	return s.withRetry(ctx, "PurgeSite", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM index_entries WHERE page_id IN (SELECT id FROM pages WHERE site_id = ?)`, site.ID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM lemmas WHERE site_id = ?`, site.ID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM pages WHERE site_id = ?`, site.ID); err != nil {
			return err
		}
		return nil
	})
}

// DeleteSite removes a Site row and, via foreign-key cascade, all of its
// Pages, Lemmas and IndexEntries (invariant 4).
func (s *Store) DeleteSite(ctx context.Context, site *Site) error {
	return s.withRetry(ctx, "DeleteSite", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM sites WHERE id = ?`, site.ID)
		return err
	})
}

func scanSite(row *sql.Row) (*Site, error) {
	var site Site
	var status string
	if err := row.Scan(&site.ID, &site.URL, &site.Name, &status, &site.StatusTime, &site.LastError); err != nil {
		return nil, err
	}
	site.Status = SiteStatus(status)
	return &site, nil
}

func scanSiteRows(rows *sql.Rows) (*Site, error) {
	var site Site
	var status string
	if err := rows.Scan(&site.ID, &site.URL, &site.Name, &status, &site.StatusTime, &site.LastError); err != nil {
		return nil, err
	}
	site.Status = SiteStatus(status)
	return &site, nil
}
