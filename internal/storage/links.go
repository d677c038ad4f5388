package storage

import (
	"context"
	"fmt"

	"github.com/kalambet/gettor/internal/model"
)

const linkColumns = `url, platform, locale, arch, version, provider, status, filename`

// UpsertLink inserts l or replaces the entry with the same URL.
func (s *Store) UpsertLink(ctx context.Context, l model.LinkEntry) error {
	if l.Status == "" {
		l.Status = model.LinkStatusActive
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO links (`+linkColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			platform = excluded.platform,
			locale = excluded.locale,
			arch = excluded.arch,
			version = excluded.version,
			provider = excluded.provider,
			status = excluded.status,
			filename = excluded.filename`,
		l.URL, l.Platform, l.Locale, l.Arch, l.Version, l.Provider, l.Status, l.FileName,
	)
	if err != nil {
		return fmt.Errorf("upserting link: %w", err)
	}
	return nil
}

// ActiveLinks returns the ACTIVE entries for platform and locale.
func (s *Store) ActiveLinks(ctx context.Context, platform model.Platform, locale string) ([]model.LinkEntry, error) {
	return s.queryLinks(ctx, `
		SELECT `+linkColumns+` FROM links
		WHERE platform = ? AND locale = ? AND status = ?
		ORDER BY provider, arch, url`,
		string(platform), locale, model.LinkStatusActive,
	)
}

// ListLinks returns the whole catalog.
func (s *Store) ListLinks(ctx context.Context) ([]model.LinkEntry, error) {
	return s.queryLinks(ctx, `SELECT `+linkColumns+` FROM links ORDER BY platform, locale, provider, url`)
}

// CatalogLocales returns the distinct locales that have catalog entries.
func (s *Store) CatalogLocales(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT locale FROM links ORDER BY locale`)
	if err != nil {
		return nil, fmt.Errorf("querying catalog locales: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var l string
		if err := rows.Scan(&l); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *Store) queryLinks(ctx context.Context, query string, args ...any) ([]model.LinkEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying links: %w", err)
	}
	defer rows.Close()

	var out []model.LinkEntry
	for rows.Next() {
		var l model.LinkEntry
		if err := rows.Scan(&l.URL, &l.Platform, &l.Locale, &l.Arch, &l.Version, &l.Provider, &l.Status, &l.FileName); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
