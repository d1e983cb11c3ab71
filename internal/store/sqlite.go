package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"calsync/internal/domain"
)

var ErrNotFound = errors.New("event not found")

// occurrenceID matches "<series>_<YYYYMMDD>", an occurrence of a recurring
// series that has no row of its own.
var occurrenceID = regexp.MustCompile(`^(.+)_(\d{8})$`)

// EnsureSchema creates tables if they don't exist.
func EnsureSchema(db *sql.DB) error {
	schema := `
PRAGMA journal_mode=WAL;
CREATE TABLE IF NOT EXISTS events (
  resource_id TEXT NOT NULL,
  id TEXT NOT NULL,
  recurring_id TEXT NOT NULL DEFAULT '',
  title TEXT NOT NULL DEFAULT '',
  starts_at INTEGER NOT NULL,
  ends_at INTEGER NOT NULL,
  labels TEXT NOT NULL DEFAULT '[]',
  hidden INTEGER NOT NULL DEFAULT 0,
  confirmed INTEGER NOT NULL DEFAULT 0,
  confirmation_pref INTEGER NOT NULL DEFAULT 0,
  feedback_pref INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updated_at INTEGER NOT NULL,
  PRIMARY KEY (resource_id, id)
);
CREATE INDEX IF NOT EXISTS idx_events_start ON events(resource_id, starts_at);
CREATE INDEX IF NOT EXISTS idx_events_series ON events(resource_id, recurring_id);
`
	_, err := db.Exec(schema)
	return err
}

type LabelChange struct {
	ID     string
	Labels *[]string
	Hidden *bool
}

type Repository interface {
	CreateEvent(ctx context.Context, ev domain.Event) (domain.Event, error)
	GetEvent(ctx context.Context, resourceID, id string) (domain.Event, error)
	QueryEvents(ctx context.Context, resourceID string, from, to time.Time) ([]domain.Event, error)
	ApplyLabels(ctx context.Context, resourceID string, changes []LabelChange) error
	SetConfirmed(ctx context.Context, resourceID, id string, value bool) error
	SetConfirmationPref(ctx context.Context, resourceID, id string, value bool) error
	SetFeedbackPref(ctx context.Context, resourceID, id string, value bool) error
	CountEvents(ctx context.Context) (int, error)
}

type sqliteRepo struct{ db *sql.DB }

func NewSQLiteRepo(db *sql.DB) Repository { return &sqliteRepo{db: db} }

const eventColumns = `id,resource_id,recurring_id,title,starts_at,ends_at,labels,hidden,confirmed,confirmation_pref,feedback_pref,updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (domain.Event, error) {
	var ev domain.Event
	var starts, ends, updated int64
	var labels string
	if err := row.Scan(&ev.ID, &ev.ResourceID, &ev.RecurringID, &ev.Title, &starts, &ends, &labels,
		&ev.Hidden, &ev.Confirmed, &ev.ConfirmationPref, &ev.FeedbackPref, &updated); err != nil {
		return domain.Event{}, err
	}
	ev.Start = time.Unix(starts, 0).UTC()
	ev.End = time.Unix(ends, 0).UTC()
	ev.UpdatedAt = time.Unix(updated, 0).UTC()
	if err := json.Unmarshal([]byte(labels), &ev.Labels); err != nil {
		return domain.Event{}, fmt.Errorf("decode labels of %s: %w", ev.ID, err)
	}
	if ev.Labels == nil {
		ev.Labels = []string{}
	}
	return ev, nil
}

func (r *sqliteRepo) CreateEvent(ctx context.Context, ev domain.Event) (domain.Event, error) {
	if ev.ID == "" {
		ev.ID = "evt_" + uuid.NewString()
	}
	if ev.End.IsZero() {
		ev.End = ev.Start
	}
	if ev.Labels == nil {
		ev.Labels = []string{}
	}
	if ev.Hidden {
		ev.Labels = []string{}
	}
	labels, err := json.Marshal(ev.Labels)
	if err != nil {
		return domain.Event{}, err
	}
	ev.UpdatedAt = time.Now().UTC().Truncate(time.Second)
	_, err = r.db.ExecContext(ctx, `
INSERT INTO events (resource_id,id,recurring_id,title,starts_at,ends_at,labels,hidden,confirmed,confirmation_pref,feedback_pref,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?)
`, ev.ResourceID, ev.ID, ev.RecurringID, ev.Title, ev.Start.Unix(), ev.End.Unix(), string(labels),
		ev.Hidden, ev.Confirmed, ev.ConfirmationPref, ev.FeedbackPref, ev.UpdatedAt.Unix())
	if err != nil {
		return domain.Event{}, err
	}
	ev.Start = ev.Start.UTC().Truncate(time.Second)
	ev.End = ev.End.UTC().Truncate(time.Second)
	return ev, nil
}

// GetEvent resolves occurrence ids without a row of their own to their series.
func (r *sqliteRepo) GetEvent(ctx context.Context, resourceID, id string) (domain.Event, error) {
	ev, err := r.getExact(ctx, resourceID, id)
	if !errors.Is(err, ErrNotFound) {
		return ev, err
	}
	m := occurrenceID.FindStringSubmatch(id)
	if m == nil {
		return domain.Event{}, ErrNotFound
	}
	return r.getExact(ctx, resourceID, m[1])
}

func (r *sqliteRepo) getExact(ctx context.Context, resourceID, id string) (domain.Event, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE resource_id=? AND id=?`, resourceID, id)
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Event{}, ErrNotFound
	}
	return ev, err
}

// QueryEvents lists events starting in [from, to).
func (r *sqliteRepo) QueryEvents(ctx context.Context, resourceID string, from, to time.Time) ([]domain.Event, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+eventColumns+`
FROM events
WHERE resource_id=? AND starts_at >= ? AND starts_at < ?
ORDER BY starts_at ASC, id ASC`, resourceID, from.Unix(), to.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []domain.Event{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// ApplyLabels applies every change in one transaction. A series id also
// updates the occurrences stored under it.
func (r *sqliteRepo) ApplyLabels(ctx context.Context, resourceID string, changes []LabelChange) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().Unix()
	for _, c := range changes {
		var sets []string
		var args []any
		hidden := c.Hidden != nil && *c.Hidden
		switch {
		case hidden:
			sets = append(sets, "hidden=1", "labels='[]'")
		case c.Labels != nil:
			b, mErr := json.Marshal(*c.Labels)
			if mErr != nil {
				return mErr
			}
			sets = append(sets, "hidden=0", "labels=?")
			args = append(args, string(b))
		case c.Hidden != nil:
			sets = append(sets, "hidden=0")
		default:
			continue
		}
		sets = append(sets, "updated_at=?")
		args = append(args, now, resourceID, c.ID, c.ID)
		res, execErr := tx.ExecContext(ctx, `UPDATE events SET `+strings.Join(sets, ",")+` WHERE resource_id=? AND (id=? OR recurring_id=?)`, args...)
		if execErr != nil {
			return execErr
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("labels for %s: %w", c.ID, ErrNotFound)
		}
	}
	return tx.Commit()
}

func (r *sqliteRepo) setFlag(ctx context.Context, column, resourceID, id string, value bool) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE events SET `+column+`=?, updated_at=? WHERE resource_id=? AND (id=? OR recurring_id=?)`,
		value, time.Now().Unix(), resourceID, id, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s for %s: %w", column, id, ErrNotFound)
	}
	return nil
}

func (r *sqliteRepo) SetConfirmed(ctx context.Context, resourceID, id string, value bool) error {
	return r.setFlag(ctx, "confirmed", resourceID, id, value)
}

func (r *sqliteRepo) SetConfirmationPref(ctx context.Context, resourceID, id string, value bool) error {
	return r.setFlag(ctx, "confirmation_pref", resourceID, id, value)
}

func (r *sqliteRepo) SetFeedbackPref(ctx context.Context, resourceID, id string, value bool) error {
	return r.setFlag(ctx, "feedback_pref", resourceID, id, value)
}

func (r *sqliteRepo) CountEvents(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&n)
	return n, err
}
