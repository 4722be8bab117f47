package library

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"tagflow/internal/config"
	"tagflow/internal/sqlitedb"
)

//go:embed schema.sql
var schemaSQL string

const schemaVersion = 1

// Item is one audio file known to the library.
type Item struct {
	ID         int64     `json:"id"`
	Path       string    `json:"path"`
	Title      string    `json:"title"`
	Artist     string    `json:"artist"`
	Album      string    `json:"album"`
	Track      int       `json:"track,omitempty"`
	TaskID     string    `json:"task_id,omitempty"`
	BPM        *int      `json:"bpm"`
	InitialKey *string   `json:"initial_key"`
	AddedAt    time.Time `json:"added_at"`
}

// Library is a handle on the item database. Close is idempotent.
type Library struct {
	db        *sql.DB
	path      string
	closeOnce sync.Once
	closeErr  error
}

// Open opens the library configured for cfg.
func Open(cfg *config.Config) (*Library, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.Library.Path)
}

// OpenPath opens a library database at an explicit location.
func OpenPath(path string) (*Library, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("library path is empty")
	}
	db, err := sqlitedb.Open(path)
	if err != nil {
		return nil, err
	}
	version, err := sqlitedb.EnsureSchema(context.Background(), db, schemaSQL, schemaVersion)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if version != schemaVersion {
		_ = db.Close()
		return nil, fmt.Errorf("library schema version %d, expected %d", version, schemaVersion)
	}
	return &Library{db: db, path: path}, nil
}

// Path returns the database file.
func (l *Library) Path() string { return l.path }

// Close releases the database. Later calls return the first result.
func (l *Library) Close() error {
	if l == nil {
		return nil
	}
	l.closeOnce.Do(func() {
		if l.db != nil {
			l.closeErr = l.db.Close()
		}
	})
	return l.closeErr
}

const itemColumns = "id, path, title, artist, album, track, task_id, bpm, initial_key, added_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*Item, error) {
	var (
		item    Item
		bpm     sql.NullInt64
		key     sql.NullString
		addedAt string
	)
	if err := row.Scan(&item.ID, &item.Path, &item.Title, &item.Artist, &item.Album, &item.Track,
		&item.TaskID, &bpm, &key, &addedAt); err != nil {
		return nil, err
	}
	if bpm.Valid {
		v := int(bpm.Int64)
		item.BPM = &v
	}
	if key.Valid {
		v := key.String
		item.InitialKey = &v
	}
	item.AddedAt, _ = time.Parse(time.RFC3339Nano, addedAt)
	return &item, nil
}

// GetItem returns the item with id, or nil when it does not exist.
func (l *Library) GetItem(ctx context.Context, id int64) (*Item, error) {
	row := l.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item %d: %w", id, err)
	}
	return item, nil
}

// Add inserts item and assigns its id.
func (l *Library) Add(ctx context.Context, item *Item) error {
	if item.AddedAt.IsZero() {
		item.AddedAt = time.Now().UTC()
	}
	var id int64
	err := sqlitedb.RetryOnBusy(ctx, func() error {
		res, err := l.db.ExecContext(ctx,
			`INSERT INTO items (path, title, artist, album, track, task_id, bpm, initial_key, added_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			item.Path, item.Title, item.Artist, item.Album, item.Track, item.TaskID,
			nullableInt(item.BPM), nullableString(item.InitialKey), item.AddedAt.UTC().Format(time.RFC3339Nano))
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return fmt.Errorf("add item %s: %w", item.Path, err)
	}
	item.ID = id
	return nil
}

// StoreItem writes every mutable field of item in one statement.
func (l *Library) StoreItem(ctx context.Context, item *Item) error {
	var affected int64
	err := sqlitedb.RetryOnBusy(ctx, func() error {
		res, err := l.db.ExecContext(ctx,
			`UPDATE items SET path = ?, title = ?, artist = ?, album = ?, track = ?, task_id = ?,
			 bpm = ?, initial_key = ? WHERE id = ?`,
			item.Path, item.Title, item.Artist, item.Album, item.Track, item.TaskID,
			nullableInt(item.BPM), nullableString(item.InitialKey), item.ID)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("store item %d: %w", item.ID, err)
	}
	if affected == 0 {
		return fmt.Errorf("store item %d: %w", item.ID, sql.ErrNoRows)
	}
	return nil
}

// ItemsByTask returns the items imported by any of taskIDs.
func (l *Library) ItemsByTask(ctx context.Context, taskIDs ...string) ([]*Item, error) {
	if len(taskIDs) == 0 {
		return nil, nil
	}
	placeholders, args := inClause(taskIDs)
	rows, err := l.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE task_id IN (`+placeholders+`) ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("items by task: %w", err)
	}
	return collectItems(rows)
}

func collectItems(rows *sql.Rows) ([]*Item, error) {
	defer rows.Close()
	var out []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// ItemsByAlbum returns items whose artist and album match, ignoring case.
func (l *Library) ItemsByAlbum(ctx context.Context, artist, album string) ([]*Item, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM items
		 WHERE lower(artist) = lower(?) AND lower(album) = lower(?) ORDER BY id`, artist, album)
	if err != nil {
		return nil, fmt.Errorf("items by album: %w", err)
	}
	return collectItems(rows)
}

// DeleteByIDs removes the given items.
func (l *Library) DeleteByIDs(ctx context.Context, ids ...int64) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	return sqlitedb.RetryOnBusy(ctx, func() error {
		_, err := l.db.ExecContext(ctx, `DELETE FROM items WHERE id IN (`+placeholders+`)`, args...)
		return err
	})
}

// DeleteByTasks removes every item imported by taskIDs and returns the removed
// rows.
func (l *Library) DeleteByTasks(ctx context.Context, taskIDs ...string) ([]*Item, error) {
	items, err := l.ItemsByTask(ctx, taskIDs...)
	if err != nil || len(items) == 0 {
		return items, err
	}
	placeholders, args := inClause(taskIDs)
	err = sqlitedb.RetryOnBusy(ctx, func() error {
		_, err := l.db.ExecContext(ctx, `DELETE FROM items WHERE task_id IN (`+placeholders+`)`, args...)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("delete items by task: %w", err)
	}
	return items, nil
}

// Count returns the number of items in the library.
func (l *Library) Count(ctx context.Context) (int, error) {
	var n int
	if err := l.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM items`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count items: %w", err)
	}
	return n, nil
}

func inClause(values []string) (string, []any) {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return strings.TrimSuffix(strings.Repeat("?,", len(values)), ","), args
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}
