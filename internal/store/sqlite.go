package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/matthewidavis/ResponsiveBOXES/internal/config"
	"github.com/matthewidavis/ResponsiveBOXES/internal/events"
	"github.com/matthewidavis/ResponsiveBOXES/internal/motion"
	"github.com/matthewidavis/ResponsiveBOXES/internal/zones"
)

// SQLite stores state and trigger history in a SQLite database.
type SQLite struct {
	conn *sql.DB
	mu   sync.Mutex
}

func NewSQLite(path string) (*SQLite, error) {
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	db := &SQLite{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return db, nil
}

func (db *SQLite) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS zones (
		id TEXT PRIMARY KEY,
		position INTEGER NOT NULL,
		camera_id TEXT NOT NULL DEFAULT '',
		x INTEGER NOT NULL,
		y INTEGER NOT NULL,
		width INTEGER NOT NULL,
		height INTEGER NOT NULL,
		color TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL DEFAULT '',
		command TEXT NOT NULL,
		enabled INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS cameras (
		id TEXT PRIMARY KEY,
		position INTEGER NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL,
		setup_url TEXT NOT NULL DEFAULT '',
		interval_ms INTEGER NOT NULL DEFAULT 0,
		enabled INTEGER NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS trigger_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		event_id TEXT NOT NULL,
		type TEXT NOT NULL,
		camera TEXT NOT NULL DEFAULT '',
		zone_id TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL DEFAULT '',
		command TEXT NOT NULL DEFAULT '',
		regions TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_trigger_history_created_at ON trigger_history(created_at);
	CREATE INDEX IF NOT EXISTS idx_trigger_history_zone_id ON trigger_history(zone_id);
	`
	_, err := db.conn.Exec(schema)
	return err
}

func (db *SQLite) Load() (*State, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	st := &State{}

	rows, err := db.conn.Query(`SELECT id, camera_id, x, y, width, height, color, title, command, enabled, created_at
		FROM zones ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("failed to query zones: %w", err)
	}
	for rows.Next() {
		var z zones.Zone
		if err := rows.Scan(&z.ID, &z.CameraID, &z.X, &z.Y, &z.Width, &z.Height, &z.Color, &z.Title, &z.Command, &z.Enabled, &z.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan zone: %w", err)
		}
		st.Zones = append(st.Zones, z)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = db.conn.Query(`SELECT id, name, address, setup_url, interval_ms, enabled FROM cameras ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("failed to query cameras: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var c config.CameraConfig
		if err := rows.Scan(&c.ID, &c.Name, &c.Address, &c.SetupURL, &c.IntervalMs, &c.Enabled); err != nil {
			return nil, fmt.Errorf("failed to scan camera: %w", err)
		}
		st.Cameras = append(st.Cameras, c)
	}
	return st, rows.Err()
}

// Save replaces the stored zones and cameras in one transaction.
func (db *SQLite) Save(st *State) error {
	if st == nil {
		st = &State{}
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM zones`); err != nil {
		return err
	}
	for i, z := range st.Zones {
		_, err := tx.Exec(`INSERT INTO zones (id, position, camera_id, x, y, width, height, color, title, command, enabled, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			z.ID, i, z.CameraID, z.X, z.Y, z.Width, z.Height, z.Color, z.Title, z.Command, z.Enabled, z.CreatedAt.UTC())
		if err != nil {
			return fmt.Errorf("failed to save zone %s: %w", z.ID, err)
		}
	}

	if _, err := tx.Exec(`DELETE FROM cameras`); err != nil {
		return err
	}
	for i, c := range st.Cameras {
		_, err := tx.Exec(`INSERT INTO cameras (id, position, name, address, setup_url, interval_ms, enabled)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			c.ID, i, c.Name, c.Address, c.SetupURL, c.IntervalMs, c.Enabled)
		if err != nil {
			return fmt.Errorf("failed to save camera %s: %w", c.ID, err)
		}
	}

	return tx.Commit()
}

func (db *SQLite) Record(ctx context.Context, e events.Event) error {
	regions := ""
	if len(e.Regions) > 0 {
		data, err := json.Marshal(e.Regions)
		if err != nil {
			return err
		}
		regions = string(data)
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	_, err := db.conn.ExecContext(ctx, `INSERT INTO trigger_history (event_id, type, camera, zone_id, title, command, regions, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Type), e.Camera, e.ZoneID, e.Title, e.Command, regions, e.Error, e.Time.UTC())
	return err
}

// Recent returns up to limit history entries, newest first.
func (db *SQLite) Recent(ctx context.Context, limit int) ([]events.Event, error) {
	if limit <= 0 {
		limit = 100
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	rows, err := db.conn.QueryContext(ctx, `SELECT event_id, type, camera, zone_id, title, command, regions, error, created_at
		FROM trigger_history ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []events.Event
	for rows.Next() {
		var (
			e       events.Event
			typ     string
			regions string
		)
		if err := rows.Scan(&e.ID, &typ, &e.Camera, &e.ZoneID, &e.Title, &e.Command, &regions, &e.Error, &e.Time); err != nil {
			return nil, err
		}
		e.Type = events.Type(typ)
		if regions != "" {
			var rs []motion.Region
			if err := json.Unmarshal([]byte(regions), &rs); err == nil {
				e.Regions = rs
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (db *SQLite) Close() error {
	return db.conn.Close()
}
