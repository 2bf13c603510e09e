package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/zimmermanc/radarr-mvp-sub001/internal/config"
)

// Store manages queue persistence backed by SQLite. It is the single source
// of truth for item state; conflicting writers are serialized through
// CompareAndSetStatus.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the queue database and applies the schema.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.DataDir, "queue.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.applySchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location for diagnostics.
func (s *Store) Path() string {
	return s.path
}

// Insert persists a new queue item and returns it with its assigned ID.
func (s *Store) Insert(ctx context.Context, item *Item) (*Item, error) {
	if item == nil {
		return nil, errors.New("item is nil")
	}
	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now

	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO queue_items (
            movie_id, release_id, title, download_url, client_id, status, priority,
            total_bytes, downloaded_bytes, speed_bps, eta_seconds,
            attempt_count, max_attempts, not_before, error_message, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.MovieID,
		nullableString(item.ReleaseID),
		item.Title,
		item.DownloadURL,
		nullableString(item.ClientID),
		item.Status,
		int(item.Priority),
		item.TotalBytes,
		item.DownloadedBytes,
		item.SpeedBps,
		item.ETASeconds,
		item.AttemptCount,
		item.MaxAttempts,
		nullableTime(item.NotBefore),
		nullableString(item.ErrorMessage),
		now.Format(time.RFC3339Nano),
		now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("insert queue item: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

// GetByID fetches a queue item by identifier. Returns (nil, nil) when the
// item does not exist; callers that need an error use ErrNotFound themselves.
func (s *Store) GetByID(ctx context.Context, id int64) (*Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM queue_items WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

// List returns queue items filtered by status set (or all items when no
// status is provided), ordered by creation time.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Item, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + itemColumns + ` FROM queue_items`
	orderClause := ` ORDER BY created_at`

	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		query := baseQuery + ` WHERE status IN (` + placeholders + `)` + orderClause
		rows, err = s.db.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list queue items: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// NextForDispatch returns up to limit items eligible for dispatch at the
// given instant, ordered by priority (descending) then creation time (FIFO
// within a tier). Items still inside a backoff window are skipped.
func (s *Store) NextForDispatch(ctx context.Context, now time.Time, limit int) ([]*Item, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+itemColumns+` FROM queue_items
         WHERE status IN (?, ?) AND (not_before IS NULL OR not_before <= ?)
         ORDER BY priority DESC, created_at ASC
         LIMIT ?`,
		StatusQueued,
		StatusRetrying,
		now.UTC().Format(time.RFC3339Nano),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query dispatchable items: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// CompareAndSetStatus transitions an item from one status to another,
// applying update to the in-memory copy before persisting. The write only
// succeeds if the stored status still equals from; a concurrent transition
// yields ErrStaleTransition and leaves the row untouched.
func (s *Store) CompareAndSetStatus(ctx context.Context, id int64, from, to Status, update func(*Item)) (*Item, error) {
	if !CanTransition(from, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	item, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, ErrNotFound
	}
	if item.Status != from {
		return nil, fmt.Errorf("%w: expected %s, found %s", ErrStaleTransition, from, item.Status)
	}

	if update != nil {
		update(item)
	}
	item.Status = to
	item.UpdatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(
		ctx,
		`UPDATE queue_items
         SET status = ?, client_id = ?, priority = ?,
             total_bytes = ?, downloaded_bytes = ?, speed_bps = ?, eta_seconds = ?,
             attempt_count = ?, max_attempts = ?, not_before = ?,
             error_message = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		item.Status,
		nullableString(item.ClientID),
		int(item.Priority),
		item.TotalBytes,
		item.DownloadedBytes,
		item.SpeedBps,
		item.ETASeconds,
		item.AttemptCount,
		item.MaxAttempts,
		nullableTime(item.NotBefore),
		nullableString(item.ErrorMessage),
		item.UpdatedAt.Format(time.RFC3339Nano),
		id,
		from,
	)
	if err != nil {
		return nil, fmt.Errorf("transition item %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return nil, fmt.Errorf("%w: item %d left %s concurrently", ErrStaleTransition, id, from)
	}
	return item, nil
}

// UpdateProgress refreshes the advisory progress fields. The write is scoped
// to Downloading and Paused items so a late sync result cannot touch an item
// that has since reached a terminal state.
func (s *Store) UpdateProgress(ctx context.Context, id int64, downloaded, total, speedBps, etaSeconds int64) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE queue_items
         SET downloaded_bytes = ?, total_bytes = ?, speed_bps = ?, eta_seconds = ?, updated_at = ?
         WHERE id = ? AND status IN (?, ?)`,
		downloaded,
		total,
		speedBps,
		etaSeconds,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		StatusDownloading,
		StatusPaused,
	)
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	return nil
}

// SetPriority changes dispatch ordering for a not-yet-terminal item.
func (s *Store) SetPriority(ctx context.Context, id int64, priority Priority) error {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE queue_items SET priority = ?, updated_at = ?
         WHERE id = ? AND status IN (?, ?, ?, ?)`,
		int(priority),
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		StatusQueued,
		StatusRetrying,
		StatusDownloading,
		StatusPaused,
	)
	if err != nil {
		return fmt.Errorf("set priority: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

const itemColumns = "id, movie_id, release_id, title, download_url, client_id, status, priority, total_bytes, downloaded_bytes, speed_bps, eta_seconds, attempt_count, max_attempts, not_before, error_message, created_at, updated_at"

func scanItem(scanner interface{ Scan(dest ...any) error }) (*Item, error) {
	var (
		id           int64
		movieID      int64
		releaseID    sql.NullString
		title        string
		downloadURL  string
		clientID     sql.NullString
		statusStr    string
		priority     int64
		totalBytes   int64
		downloaded   int64
		speedBps     int64
		etaSeconds   int64
		attemptCount int64
		maxAttempts  int64
		notBeforeRaw sql.NullString
		errorMessage sql.NullString
		createdRaw   string
		updatedRaw   string
	)

	if err := scanner.Scan(
		&id,
		&movieID,
		&releaseID,
		&title,
		&downloadURL,
		&clientID,
		&statusStr,
		&priority,
		&totalBytes,
		&downloaded,
		&speedBps,
		&etaSeconds,
		&attemptCount,
		&maxAttempts,
		&notBeforeRaw,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	item := &Item{
		ID:              id,
		MovieID:         movieID,
		ReleaseID:       releaseID.String,
		Title:           title,
		DownloadURL:     downloadURL,
		ClientID:        clientID.String,
		Status:          Status(statusStr),
		Priority:        Priority(priority),
		TotalBytes:      totalBytes,
		DownloadedBytes: downloaded,
		SpeedBps:        speedBps,
		ETASeconds:      etaSeconds,
		AttemptCount:    int(attemptCount),
		MaxAttempts:     int(maxAttempts),
		ErrorMessage:    errorMessage.String,
	}

	if created, err := parseTimeString(createdRaw); err == nil {
		item.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		item.UpdatedAt = updated
	}
	if notBeforeRaw.Valid {
		if notBefore, err := parseTimeString(notBeforeRaw.String); err == nil {
			item.NotBefore = &notBefore
		}
	}
	return item, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	return time.Parse(time.RFC3339Nano, value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
