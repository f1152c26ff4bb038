package db

// SQLite migrations, used for single-node deployments and tests

var sqliteMigrations = []Migration{
	{
		Version: 1,
		Name:    "create_users_table",
		Up: `
			CREATE TABLE IF NOT EXISTS users (
				id TEXT PRIMARY KEY,
				email TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
		`,
		Down: `
			DROP TABLE IF EXISTS users;
		`,
	},
	{
		Version: 2,
		Name:    "create_csv_files_table",
		Up: `
			CREATE TABLE IF NOT EXISTS csv_files (
				id TEXT PRIMARY KEY,
				owner_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				filename TEXT NOT NULL,
				storage_key TEXT NOT NULL,
				size_bytes INTEGER NOT NULL DEFAULT 0,
				uploaded_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX IF NOT EXISTS idx_csv_files_owner_id ON csv_files(owner_id);
		`,
		Down: `
			DROP INDEX IF EXISTS idx_csv_files_owner_id;
			DROP TABLE IF EXISTS csv_files;
		`,
	},
	{
		Version: 3,
		Name:    "create_models_table",
		Up: `
			CREATE TABLE IF NOT EXISTS models (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				owner_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				name TEXT NOT NULL,
				base_url TEXT NOT NULL DEFAULT '',
				url_column TEXT NOT NULL DEFAULT '',
				last_scraped_id INTEGER NOT NULL DEFAULT 0,
				data TEXT NOT NULL,
				created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX IF NOT EXISTS idx_models_owner_id ON models(owner_id);
			CREATE INDEX IF NOT EXISTS idx_models_created_at ON models(created_at);
		`,
		Down: `
			DROP INDEX IF EXISTS idx_models_created_at;
			DROP INDEX IF EXISTS idx_models_owner_id;
			DROP TABLE IF EXISTS models;
		`,
	},
}
