package broker

import (
	"context"
	"fmt"
	"log/slog"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"room-broker/internal/platform/sqlitepool"
)

const roomsSchema = `
CREATE TABLE IF NOT EXISTS rooms (
	room_id        TEXT PRIMARY KEY NOT NULL,
	live_server_id TEXT NOT NULL,
	webhook_url    TEXT NOT NULL,
	owner_id       INTEGER NOT NULL,
	owner_name     TEXT NOT NULL,
	stream_name    TEXT NOT NULL
);`

const upsertRoomSQL = `
INSERT INTO rooms (room_id, live_server_id, webhook_url, owner_id, owner_name, stream_name)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (room_id) DO UPDATE SET
	live_server_id = excluded.live_server_id,
	webhook_url    = excluded.webhook_url,
	owner_id       = excluded.owner_id,
	owner_name     = excluded.owner_name,
	stream_name    = excluded.stream_name`

// SQLiteDirectory is a Directory stored in a single sqlite table keyed by
// room id. Writes run in IMMEDIATE transactions, so concurrent upserts of the
// same room serialize on the database write lock.
type SQLiteDirectory struct {
	pool *sqlitepool.Pool
}

// OpenSQLiteDirectory opens (creating if needed) the database at path.
func OpenSQLiteDirectory(path string, log *slog.Logger) (*SQLiteDirectory, error) {
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:   path,
		Logger: log,
		Schema: roomsSchema,
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite directory: %w", err)
	}
	return &SQLiteDirectory{pool: pool}, nil
}

// Get implements Directory.Get.
func (d *SQLiteDirectory) Get(ctx context.Context, id RoomID) (Room, error) {
	conn, err := d.pool.Take(ctx)
	if err != nil {
		return Room{}, fmt.Errorf("sqlite directory: get: %w", err)
	}
	defer d.pool.Put(conn)

	var (
		room  Room
		found bool
	)
	err = sqlitex.Execute(conn,
		`SELECT room_id, live_server_id, webhook_url, owner_id, owner_name, stream_name
		 FROM rooms WHERE room_id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{string(id)},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				room = Room{
					ID:           RoomID(stmt.ColumnText(0)),
					LiveServerID: stmt.ColumnText(1),
					WebhookURL:   stmt.ColumnText(2),
					OwnerID:      stmt.ColumnInt64(3),
					OwnerName:    stmt.ColumnText(4),
					StreamName:   stmt.ColumnText(5),
				}
				return nil
			},
		})
	if err != nil {
		return Room{}, fmt.Errorf("sqlite directory: get %s: %w", id, err)
	}
	if !found {
		return Room{}, ErrRoomNotFound
	}
	return room, nil
}

// Upsert implements Directory.Upsert.
func (d *SQLiteDirectory) Upsert(ctx context.Context, r Room) (err error) {
	if err := validateRoom(r); err != nil {
		return err
	}
	conn, err := d.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("sqlite directory: upsert: %w", err)
	}
	defer d.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("sqlite directory: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	err = sqlitex.Execute(conn, upsertRoomSQL, &sqlitex.ExecOptions{
		Args: []any{
			string(r.ID),
			r.LiveServerID,
			r.WebhookURL,
			r.OwnerID,
			r.OwnerName,
			r.StreamName,
		},
	})
	if err != nil {
		return fmt.Errorf("sqlite directory: upsert %s: %w", r.ID, err)
	}
	return nil
}

// Delete implements Directory.Delete.
func (d *SQLiteDirectory) Delete(ctx context.Context, id RoomID) error {
	conn, err := d.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("sqlite directory: delete: %w", err)
	}
	defer d.pool.Put(conn)

	if err := sqlitex.Execute(conn, "DELETE FROM rooms WHERE room_id = ?", &sqlitex.ExecOptions{
		Args: []any{string(id)},
	}); err != nil {
		return fmt.Errorf("sqlite directory: delete %s: %w", id, err)
	}
	return nil
}

// Count implements Directory.Count.
func (d *SQLiteDirectory) Count(ctx context.Context) (int, error) {
	conn, err := d.pool.Take(ctx)
	if err != nil {
		return 0, fmt.Errorf("sqlite directory: count: %w", err)
	}
	defer d.pool.Put(conn)

	var n int
	err = sqlitex.Execute(conn, "SELECT COUNT(*) FROM rooms", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			n = stmt.ColumnInt(0)
			return nil
		},
	})
	if err != nil {
		return 0, fmt.Errorf("sqlite directory: count: %w", err)
	}
	return n, nil
}

// Close implements Directory.Close.
func (d *SQLiteDirectory) Close() error {
	return d.pool.Close()
}
