package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kalambet/gettor/internal/model"
)

const requestColumns = `id, identity, hid, command, platform, locale, channel, submitted_at, status, attempts, last_error`

// Enqueue inserts r as a new ONHOLD request and returns its row id.
// Duplicate natural keys are allowed.
func (s *Store) Enqueue(ctx context.Context, r model.Request) (string, error) {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.SubmittedAt.IsZero() {
		r.SubmittedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO requests (`+requestColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, '')`,
		r.ID, r.Identity, r.HID, r.Command.String(), string(r.Platform), r.Locale,
		string(r.Channel), r.Key().Submitted(), string(model.StatusOnHold),
	)
	if err != nil {
		return "", fmt.Errorf("inserting request: %w", err)
	}
	return r.ID, nil
}

// Drain returns every ONHOLD request on ch in insertion order.
func (s *Store) Drain(ctx context.Context, ch model.Channel) ([]model.Request, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+requestColumns+` FROM requests
		WHERE status = ? AND channel = ?
		ORDER BY rowid ASC`,
		string(model.StatusOnHold), string(ch),
	)
	if err != nil {
		return nil, fmt.Errorf("querying requests: %w", err)
	}
	defer rows.Close()

	var out []model.Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Request returns the request with the given row id.
func (s *Store) Request(ctx context.Context, id string) (model.Request, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM requests WHERE id = ?`, id)
	r, err := scanRequest(row)
	if err == sql.ErrNoRows {
		return model.Request{}, ErrNotFound
	}
	return r, err
}

// MarkSent moves the requests with key k to SENT. A missing or already sent
// row is not an error.
func (s *Store) MarkSent(ctx context.Context, k model.Key) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE requests SET status = ?
		WHERE identity = ? AND channel = ? AND submitted_at = ? AND status = ?`,
		string(model.StatusSent), k.Identity, string(k.Channel), k.Submitted(), string(model.StatusOnHold),
	)
	if err != nil {
		return fmt.Errorf("marking request sent: %w", err)
	}
	return nil
}

// Remove deletes the requests with key k. A missing row is not an error.
func (s *Store) Remove(ctx context.Context, k model.Key) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM requests WHERE identity = ? AND channel = ? AND submitted_at = ?`,
		k.Identity, string(k.Channel), k.Submitted(),
	)
	if err != nil {
		return fmt.Errorf("removing request: %w", err)
	}
	return nil
}

// RemoveID deletes the request with row id. Rows sharing its natural key
// are left alone. A missing row is not an error.
func (s *Store) RemoveID(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM requests WHERE id = ?`, id); err != nil {
		return fmt.Errorf("removing request %s: %w", id, err)
	}
	return nil
}

// RecordFailure increments the attempt counter of the ONHOLD request with
// row id, stores errMsg, and returns the new attempt count. It returns
// ErrNotFound if no ONHOLD row matches.
func (s *Store) RecordFailure(ctx context.Context, id, errMsg string) (int, error) {
	var attempts int
	err := s.db.QueryRowContext(ctx, `
		UPDATE requests SET attempts = attempts + 1, last_error = ?
		WHERE id = ? AND status = ?
		RETURNING attempts`,
		errMsg, id, string(model.StatusOnHold),
	).Scan(&attempts)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("recording failure: %w", err)
	}
	return attempts, nil
}

// CountRequests returns how many ONHOLD requests hid has queued on ch.
// Requests already marked SENT do not count.
func (s *Store) CountRequests(ctx context.Context, hid string, ch model.Channel) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM requests WHERE hid = ? AND channel = ? AND status = ?`,
		hid, string(ch), string(model.StatusOnHold),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting requests: %w", err)
	}
	return n, nil
}

// QueueDepth returns the number of ONHOLD requests per channel.
func (s *Store) QueueDepth(ctx context.Context) (map[model.Channel]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT channel, COUNT(*) FROM requests WHERE status = ? GROUP BY channel`, string(model.StatusOnHold))
	if err != nil {
		return nil, fmt.Errorf("querying queue depth: %w", err)
	}
	defer rows.Close()

	depth := make(map[model.Channel]int)
	for rows.Next() {
		var ch string
		var n int
		if err := rows.Scan(&ch, &n); err != nil {
			return nil, err
		}
		depth[model.Channel(ch)] = n
	}
	return depth, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(sc rowScanner) (model.Request, error) {
	var r model.Request
	var command, platform, channel, submitted, status string
	err := sc.Scan(&r.ID, &r.Identity, &r.HID, &command, &platform, &r.Locale, &channel,
		&submitted, &status, &r.Attempts, &r.LastError)
	if err != nil {
		return model.Request{}, err
	}
	r.Command = model.ParseCommand(command)
	r.Platform = model.Platform(platform)
	r.Channel = model.Channel(channel)
	r.Status = model.Status(status)
	t, err := time.Parse(model.SubmittedLayout, submitted)
	if err != nil {
		return model.Request{}, fmt.Errorf("parsing submitted_at for request %s: %w", r.ID, err)
	}
	r.SubmittedAt = t
	return r, nil
}
