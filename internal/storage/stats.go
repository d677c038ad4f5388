package storage

import (
	"context"
	"fmt"

	"github.com/kalambet/gettor/internal/model"
)

// BumpStats increments today's counter for the given dimensions, creating
// it if absent. The increment happens in a single statement, so concurrent
// callers never lose updates.
func (s *Store) BumpStats(ctx context.Context, platform model.Platform, locale string, cmd model.Command, ch model.Channel) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stats (platform, locale, command, channel, date, num_requests)
		VALUES (?, ?, ?, ?, ?, 1)
		ON CONFLICT(platform, locale, command, channel, date)
		DO UPDATE SET num_requests = num_requests + 1`,
		string(platform), locale, cmd.String(), string(ch), model.DateBucket(s.now()),
	)
	if err != nil {
		return fmt.Errorf("bumping stats: %w", err)
	}
	return nil
}

// ListStats returns the counters whose date lies in [from, to]. Dates use
// model.DateLayout; an empty bound is open.
func (s *Store) ListStats(ctx context.Context, from, to string) ([]model.StatsRecord, error) {
	if to == "" {
		to = "99999999"
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT platform, locale, command, channel, date, num_requests FROM stats
		WHERE date >= ? AND date <= ?
		ORDER BY date, channel, command, platform, locale`,
		from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("querying stats: %w", err)
	}
	defer rows.Close()

	var out []model.StatsRecord
	for rows.Next() {
		var r model.StatsRecord
		if err := rows.Scan(&r.Platform, &r.Locale, &r.Command, &r.Channel, &r.Date, &r.Count); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
