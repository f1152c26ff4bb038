package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/docutag/enricher/models"
)

// Supported drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// ErrNotFound is returned when a row does not exist or belongs to another owner
var ErrNotFound = errors.New("not found")

// DB wraps the database connection and provides data access methods
type DB struct {
	conn   *sql.DB
	driver string
	now    func() time.Time
}

// Config contains database configuration
type Config struct {
	Driver string `yaml:"driver"` // "postgres" or "sqlite"
	DSN    string `yaml:"dsn"`
}

// New opens a database connection and runs pending migrations
func New(config Config) (*DB, error) {
	driver := config.Driver
	if driver == "" {
		driver = DriverPostgres
	}
	if driver != DriverPostgres && driver != DriverSQLite {
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}

	conn, err := sql.Open(driver, config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Configure connection pool
	if driver == DriverSQLite {
		// SQLite has a single writer
		conn.SetMaxOpenConns(1)
	} else {
		conn.SetMaxOpenConns(25)
		conn.SetMaxIdleConns(5)
		conn.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := Migrate(conn, driver); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return NewWithConn(conn, driver), nil
}

// NewWithConn wraps an already-open connection without running migrations
func NewWithConn(conn *sql.DB, driver string) *DB {
	return &DB{conn: conn, driver: driver, now: time.Now}
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// DB returns the underlying database connection
func (db *DB) DB() *sql.DB {
	return db.conn
}

// MigrationStatus reports which migrations of the connection's driver are applied
func (db *DB) MigrationStatus() ([]MigrationStatus, error) {
	return GetMigrationStatus(db.conn, db.driver)
}

// Ping checks the connection is alive
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// EnsureUser records the user on first sight and refreshes the email afterwards
func (db *DB) EnsureUser(ctx context.Context, user models.User) error {
	query := `
		INSERT INTO users (id, email, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT(id) DO UPDATE SET email = excluded.email
	`
	if _, err := db.conn.ExecContext(ctx, query, user.ID, user.Email, db.now().UTC()); err != nil {
		return fmt.Errorf("failed to ensure user: %w", err)
	}
	return nil
}

// SaveCSV records an uploaded CSV file's metadata
func (db *DB) SaveCSV(ctx context.Context, file *models.CSVFile) error {
	if file.UploadedAt.IsZero() {
		file.UploadedAt = db.now().UTC()
	}
	query := `
		INSERT INTO csv_files (id, owner_id, filename, storage_key, size_bytes, uploaded_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := db.conn.ExecContext(ctx, query,
		file.ID, file.OwnerID, file.Filename, file.StorageKey, file.SizeBytes, file.UploadedAt)
	if err != nil {
		return fmt.Errorf("failed to save csv file: %w", err)
	}
	return nil
}

// ListCSVs returns the owner's CSV files, newest first
func (db *DB) ListCSVs(ctx context.Context, ownerID string) ([]models.CSVFile, error) {
	query := `
		SELECT id, owner_id, filename, storage_key, size_bytes, uploaded_at
		FROM csv_files
		WHERE owner_id = $1
		ORDER BY uploaded_at DESC, id
	`
	rows, err := db.conn.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query csv files: %w", err)
	}
	defer rows.Close()

	files := []models.CSVFile{}
	for rows.Next() {
		var f models.CSVFile
		if err := rows.Scan(&f.ID, &f.OwnerID, &f.Filename, &f.StorageKey, &f.SizeBytes, &f.UploadedAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return files, nil
}

// GetCSV returns one of the owner's CSV files
func (db *DB) GetCSV(ctx context.Context, ownerID, id string) (*models.CSVFile, error) {
	query := `
		SELECT id, owner_id, filename, storage_key, size_bytes, uploaded_at
		FROM csv_files
		WHERE id = $1 AND owner_id = $2
	`
	var f models.CSVFile
	err := db.conn.QueryRowContext(ctx, query, id, ownerID).
		Scan(&f.ID, &f.OwnerID, &f.Filename, &f.StorageKey, &f.SizeBytes, &f.UploadedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query csv file: %w", err)
	}
	return &f, nil
}

// CreateModel inserts a new model and sets its ID and CreatedAt
func (db *DB) CreateModel(ctx context.Context, ownerID string, m *models.Model) error {
	data, err := json.Marshal(m.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	now := db.now().UTC()
	query := `
		INSERT INTO models (owner_id, name, base_url, url_column, last_scraped_id, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`
	var id int64
	err = db.conn.QueryRowContext(ctx, query,
		ownerID, m.Name, m.BaseURL, m.URLColumn, m.LastScrapedID, string(data), now, now,
	).Scan(&id)
	if err != nil {
		return fmt.Errorf("failed to create model: %w", err)
	}

	m.ID = id
	m.OwnerID = ownerID
	m.CreatedAt = now
	return nil
}

// ListModels returns summaries of the owner's models, newest first
func (db *DB) ListModels(ctx context.Context, ownerID string) ([]models.ModelSummary, error) {
	query := `
		SELECT id, name, created_at
		FROM models
		WHERE owner_id = $1
		ORDER BY created_at DESC, id DESC
	`
	rows, err := db.conn.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query models: %w", err)
	}
	defer rows.Close()

	summaries := []models.ModelSummary{}
	for rows.Next() {
		var s models.ModelSummary
		if err := rows.Scan(&s.ID, &s.Name, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return summaries, nil
}

// GetModel loads one of the owner's models with its full document
func (db *DB) GetModel(ctx context.Context, ownerID string, id int64) (*models.Model, error) {
	query := `
		SELECT id, owner_id, name, base_url, url_column, last_scraped_id, data, created_at
		FROM models
		WHERE id = $1 AND owner_id = $2
	`
	var (
		m    models.Model
		data string
	)
	err := db.conn.QueryRowContext(ctx, query, id, ownerID).
		Scan(&m.ID, &m.OwnerID, &m.Name, &m.BaseURL, &m.URLColumn, &m.LastScrapedID, &data, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query model: %w", err)
	}

	doc, err := models.ParseDocument([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal data: %w", err)
	}
	m.Data = doc
	return &m, nil
}

// SaveModel replaces the model's document and scrape cursor
func (db *DB) SaveModel(ctx context.Context, ownerID string, m *models.Model) error {
	data, err := json.Marshal(m.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	query := `
		UPDATE models
		SET data = $1, last_scraped_id = $2, updated_at = $3
		WHERE id = $4 AND owner_id = $5
	`
	result, err := db.conn.ExecContext(ctx, query, string(data), m.LastScrapedID, db.now().UTC(), m.ID, ownerID)
	if err != nil {
		return fmt.Errorf("failed to save model: %w", err)
	}
	return expectRow(result)
}

// DeleteModel deletes one of the owner's models
func (db *DB) DeleteModel(ctx context.Context, ownerID string, id int64) error {
	result, err := db.conn.ExecContext(ctx, "DELETE FROM models WHERE id = $1 AND owner_id = $2", id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete model: %w", err)
	}
	return expectRow(result)
}

func expectRow(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}
