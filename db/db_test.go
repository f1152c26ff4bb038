package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docutag/enricher/models"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(Config{Driver: DriverSQLite, DSN: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func seedUser(t *testing.T, db *DB, id string) {
	t.Helper()
	require.NoError(t, db.EnsureUser(context.Background(), models.User{ID: id, Email: id + "@example.com"}))
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	_, err := New(Config{Driver: "mysql", DSN: "x"})
	assert.ErrorContains(t, err, "unsupported database driver")
}

func TestMigrationsApplyAndRollback(t *testing.T) {
	db := setupTestDB(t)

	status, err := db.MigrationStatus()
	require.NoError(t, err)
	require.Len(t, status, len(sqliteMigrations))
	for _, s := range status {
		assert.True(t, s.Applied, s.Name)
	}

	// Re-running is a no-op
	require.NoError(t, Migrate(db.DB(), DriverSQLite))

	require.NoError(t, Rollback(db.DB(), DriverSQLite))
	status, err = GetMigrationStatus(db.DB(), DriverSQLite)
	require.NoError(t, err)
	assert.False(t, status[len(status)-1].Applied)

	require.NoError(t, Migrate(db.DB(), DriverSQLite))
}

func TestEnsureUserIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.EnsureUser(ctx, models.User{ID: "u1", Email: "old@example.com"}))
	require.NoError(t, db.EnsureUser(ctx, models.User{ID: "u1", Email: "new@example.com"}))

	var (
		count int
		email string
	)
	require.NoError(t, db.DB().QueryRow("SELECT COUNT(*), MAX(email) FROM users").Scan(&count, &email))
	assert.Equal(t, 1, count)
	assert.Equal(t, "new@example.com", email)
}

func TestCSVFilesAreScopedToOwner(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	seedUser(t, db, "alice")
	seedUser(t, db, "bob")

	file := &models.CSVFile{ID: "f1", OwnerID: "alice", Filename: "urls.csv", StorageKey: "csvs/alice/f1-urls.csv", SizeBytes: 42}
	require.NoError(t, db.SaveCSV(ctx, file))
	assert.False(t, file.UploadedAt.IsZero())

	got, err := db.GetCSV(ctx, "alice", "f1")
	require.NoError(t, err)
	assert.Equal(t, "urls.csv", got.Filename)
	assert.Equal(t, int64(42), got.SizeBytes)

	_, err = db.GetCSV(ctx, "bob", "f1")
	assert.ErrorIs(t, err, ErrNotFound)

	list, err := db.ListCSVs(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	list, err = db.ListCSVs(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestModelLifecycle(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	seedUser(t, db, "alice")
	seedUser(t, db, "bob")

	m := &models.Model{
		Name:      "docs",
		BaseURL:   "https://example.com",
		URLColumn: "path",
		Data: models.Document{Items: []models.Item{
			models.NewItem("https://example.com/a", map[string]string{"category": "x"}),
		}},
	}
	require.NoError(t, db.CreateModel(ctx, "alice", m))
	require.NotZero(t, m.ID)

	got, err := db.GetModel(ctx, "alice", m.ID)
	require.NoError(t, err)
	assert.Equal(t, "docs", got.Name)
	assert.Equal(t, "https://example.com", got.BaseURL)
	assert.Equal(t, "path", got.URLColumn)
	assert.WithinDuration(t, m.CreatedAt, got.CreatedAt, time.Second)
	require.Len(t, got.Data.Items, 1)
	assert.Equal(t, "x", got.Data.Items[0].AdditionalData["category"])
	assert.NotNil(t, got.Data.Queries)

	_, err = db.GetModel(ctx, "bob", m.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	summaries, err := db.ListModels(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, m.ID, summaries[0].ID)

	got.Data.AddURL("https://example.com/b")
	got.LastScrapedID = 1
	require.NoError(t, db.SaveModel(ctx, "alice", got))

	reloaded, err := db.GetModel(ctx, "alice", m.ID)
	require.NoError(t, err)
	assert.Len(t, reloaded.Data.Items, 2)
	assert.Equal(t, 1, reloaded.LastScrapedID)

	assert.ErrorIs(t, db.SaveModel(ctx, "bob", got), ErrNotFound)
	assert.ErrorIs(t, db.DeleteModel(ctx, "bob", m.ID), ErrNotFound)

	require.NoError(t, db.DeleteModel(ctx, "alice", m.ID))
	_, err = db.GetModel(ctx, "alice", m.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetModelMigratesLegacyDocument(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	seedUser(t, db, "alice")

	_, err := db.DB().Exec(
		`INSERT INTO models (owner_id, name, data, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		"alice", "legacy", `[{"url": "https://example.com", "additional_data": {}}]`, time.Now().UTC(), time.Now().UTC(),
	)
	require.NoError(t, err)

	summaries, err := db.ListModels(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, summaries, 1)

	m, err := db.GetModel(ctx, "alice", summaries[0].ID)
	require.NoError(t, err)
	require.Len(t, m.Data.Items, 1)
	assert.Empty(t, m.Data.Queries)
}

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewWithConn(conn, DriverPostgres), mock
}

func TestSaveModelWrapsExecError(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec(`UPDATE models`).
		WithArgs(sqlmock.AnyArg(), 0, sqlmock.AnyArg(), int64(7), "alice").
		WillReturnError(errors.New("connection reset"))

	err := db.SaveModel(context.Background(), "alice", &models.Model{ID: 7})
	require.Error(t, err)
	assert.ErrorContains(t, err, "failed to save model: connection reset")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteModelNoRows(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec(`DELETE FROM models`).
		WithArgs(int64(3), "alice").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := db.DeleteModel(context.Background(), "alice", 3)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetModelRejectsCorruptDocument(t *testing.T) {
	db, mock := newMockDB(t)

	rows := sqlmock.NewRows([]string{"id", "owner_id", "name", "base_url", "url_column", "last_scraped_id", "data", "created_at"}).
		AddRow(int64(1), "alice", "broken", "", "", 0, `{"items": 5}`, time.Now())
	mock.ExpectQuery(`SELECT id, owner_id, name`).WithArgs(int64(1), "alice").WillReturnRows(rows)

	_, err := db.GetModel(context.Background(), "alice", 1)
	assert.ErrorContains(t, err, "failed to unmarshal data")
	assert.NoError(t, mock.ExpectationsWereMet())
}
