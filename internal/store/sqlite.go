package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/avdeenko/trailmate/internal/model/profile"
	"github.com/avdeenko/trailmate/internal/model/user"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (and if needed creates) the database at dbPath.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	// WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	PRAGMA foreign_keys = ON;
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		platform_id INTEGER NOT NULL UNIQUE,
		api_key TEXT,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS characters (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		owner_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		prompt TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_characters_owner ON characters(owner_id);

	CREATE TABLE IF NOT EXISTS personas (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		owner_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		prompt TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_personas_owner ON personas(owner_id);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// EnsureUser returns the user bound to platformID, creating the record on
// first contact.
func (s *SQLiteStore) EnsureUser(ctx context.Context, platformID int64) (*user.User, error) {
	query := `INSERT INTO users (platform_id, created_at) VALUES (?, ?)
		ON CONFLICT(platform_id) DO NOTHING`
	if _, err := s.db.ExecContext(ctx, query, platformID, time.Now().Unix()); err != nil {
		return nil, fmt.Errorf("ensure user: %w", err)
	}
	return s.GetUser(ctx, platformID)
}

// GetUser retrieves a user by platform account id.
func (s *SQLiteStore) GetUser(ctx context.Context, platformID int64) (*user.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, platform_id, api_key FROM users WHERE platform_id = ?`, platformID)

	var u user.User
	var apiKey sql.NullString
	err := row.Scan(&u.ID, &u.PlatformID, &apiKey)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}

	u.Credential = apiKey.String
	return &u, nil
}

// SetCredential stores the user's model API key, creating the user record
// when absent.
func (s *SQLiteStore) SetCredential(ctx context.Context, platformID int64, credential string) error {
	query := `INSERT INTO users (platform_id, api_key, created_at) VALUES (?, ?, ?)
		ON CONFLICT(platform_id) DO UPDATE SET api_key = excluded.api_key`
	if _, err := s.db.ExecContext(ctx, query, platformID, credential, time.Now().Unix()); err != nil {
		return fmt.Errorf("set credential: %w", err)
	}
	return nil
}

// GetCredential returns the stored API key, empty when the user has none.
func (s *SQLiteStore) GetCredential(ctx context.Context, platformID int64) (string, error) {
	u, err := s.GetUser(ctx, platformID)
	if err != nil {
		return "", err
	}
	return u.Credential, nil
}

// ownerID resolves the internal user id for a platform account.
func (s *SQLiteStore) ownerID(ctx context.Context, platformID int64) (int64, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id FROM users WHERE platform_id = ?`, platformID)

	var id int64
	err := row.Scan(&id)
	if err == sql.ErrNoRows {
		return 0, ErrUserNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("scan owner id: %w", err)
	}
	return id, nil
}

// Profile tables are structurally identical; the table name is one of the
// two constants below, never caller input.
const (
	tableCharacters = "characters"
	tablePersonas   = "personas"
)

func (s *SQLiteStore) createProfile(ctx context.Context, table string, platformID int64, name, prompt string) (*profile.Profile, error) {
	ownerID, err := s.ownerID(ctx, platformID)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(
		`INSERT INTO %s (owner_id, name, prompt, created_at) VALUES (?, ?, ?, ?)`, table)
	result, err := s.db.ExecContext(ctx, query, ownerID, name, prompt, time.Now().Unix())
	if err != nil {
		return nil, fmt.Errorf("insert into %s: %w", table, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id for %s: %w", table, err)
	}

	return &profile.Profile{ID: id, Name: name, Prompt: prompt}, nil
}

func (s *SQLiteStore) listProfiles(ctx context.Context, table string, platformID int64) ([]profile.Profile, error) {
	ownerID, err := s.ownerID(ctx, platformID)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(
		`SELECT id, name, prompt FROM %s WHERE owner_id = ? ORDER BY id`, table)
	rows, err := s.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	var profiles []profile.Profile
	for rows.Next() {
		var p profile.Profile
		if err := rows.Scan(&p.ID, &p.Name, &p.Prompt); err != nil {
			return nil, fmt.Errorf("scan %s row: %w", table, err)
		}
		profiles = append(profiles, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", table, err)
	}
	return profiles, nil
}

func (s *SQLiteStore) deleteProfile(ctx context.Context, table string, platformID, profileID int64) error {
	ownerID, err := s.ownerID(ctx, platformID)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`DELETE FROM %s WHERE id = ? AND owner_id = ?`, table)
	result, err := s.db.ExecContext(ctx, query, profileID, ownerID)
	if err != nil {
		return fmt.Errorf("delete from %s: %w", table, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for %s: %w", table, err)
	}
	if rows == 0 {
		return ErrProfileNotFound
	}
	return nil
}

// CreateCharacter saves a new character profile for the user.
func (s *SQLiteStore) CreateCharacter(ctx context.Context, platformID int64, name, prompt string) (*profile.Profile, error) {
	return s.createProfile(ctx, tableCharacters, platformID, name, prompt)
}

// ListCharacters returns the user's characters in creation order.
func (s *SQLiteStore) ListCharacters(ctx context.Context, platformID int64) ([]profile.Profile, error) {
	return s.listProfiles(ctx, tableCharacters, platformID)
}

// DeleteCharacter removes a character owned by the user.
func (s *SQLiteStore) DeleteCharacter(ctx context.Context, platformID, characterID int64) error {
	return s.deleteProfile(ctx, tableCharacters, platformID, characterID)
}

// CreatePersona saves a new persona profile for the user.
func (s *SQLiteStore) CreatePersona(ctx context.Context, platformID int64, name, prompt string) (*profile.Profile, error) {
	return s.createProfile(ctx, tablePersonas, platformID, name, prompt)
}

// ListPersonas returns the user's personas in creation order.
func (s *SQLiteStore) ListPersonas(ctx context.Context, platformID int64) ([]profile.Profile, error) {
	return s.listProfiles(ctx, tablePersonas, platformID)
}

// DeletePersona removes a persona owned by the user.
func (s *SQLiteStore) DeletePersona(ctx context.Context, platformID, personaID int64) error {
	return s.deleteProfile(ctx, tablePersonas, platformID, personaID)
}
