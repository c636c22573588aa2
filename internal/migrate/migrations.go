package migrate

import (
	"context"
	"database/sql"
)

// Migrations returns the schema history of the portal in version order.
func Migrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_complaints",
			Applies: tableMissing("complaints"),
			Statements: []string{`
				CREATE TABLE complaints (
					id SERIAL PRIMARY KEY,
					photo_path TEXT NOT NULL,
					location TEXT NOT NULL,
					latitude DOUBLE PRECISION,
					longitude DOUBLE PRECISION,
					tags TEXT,
					description TEXT,
					created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
					status TEXT NOT NULL DEFAULT 'pending'
				)`,
			},
		},
		addColumn(2, "complaints", "resolved_at", "TIMESTAMPTZ"),
		addColumn(3, "complaints", "resolution_time_hours", "DOUBLE PRECISION"),
		addColumn(4, "complaints", "user_id", "INTEGER"),
		addColumn(5, "complaints", "assigned_to", "INTEGER"),
		addColumn(6, "complaints", "updated_by", "INTEGER"),
		{
			Version: 7,
			Name:    "complaints_tags_to_array",
			Applies: columnHasType("complaints", "tags", "text"),
			Statements: []string{`
				ALTER TABLE complaints ALTER COLUMN tags TYPE TEXT[] USING
					CASE WHEN tags IS NULL OR btrim(tags) = '' THEN '{}'::TEXT[]
					ELSE string_to_array(tags, ', ') END`,
				`ALTER TABLE complaints ALTER COLUMN tags SET DEFAULT '{}'`,
			},
		},
		{
			Version: 8,
			Name:    "create_users",
			Applies: tableMissing("users"),
			Statements: []string{`
				CREATE TABLE users (
					id SERIAL PRIMARY KEY,
					username TEXT UNIQUE NOT NULL,
					email TEXT UNIQUE NOT NULL,
					password_hash TEXT NOT NULL,
					full_name TEXT NOT NULL,
					role TEXT NOT NULL DEFAULT 'citizen',
					created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
					is_active BOOLEAN NOT NULL DEFAULT true,
					phone TEXT,
					address TEXT
				)`,
			},
		},
		{
			Version: 9,
			Name:    "complaints_indexes",
			Statements: []string{
				`CREATE INDEX IF NOT EXISTS idx_complaints_status ON complaints (status)`,
				`CREATE INDEX IF NOT EXISTS idx_complaints_created_at ON complaints (created_at DESC)`,
			},
		},
		{
			Version: 10,
			Name:    "users_email_lower_unique",
			Statements: []string{
				`UPDATE users SET email = lower(email) WHERE email <> lower(email)`,
				`CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email_lower ON users (lower(email))`,
			},
		},
	}
}

func addColumn(version int, table, column, columnType string) Migration {
	return Migration{
		Version:    version,
		Name:       "add_" + table + "_" + column,
		Applies:    columnMissing(table, column),
		Statements: []string{`ALTER TABLE ` + table + ` ADD COLUMN ` + column + ` ` + columnType},
	}
}

func tableMissing(table string) func(context.Context, *sql.DB) (bool, error) {
	return func(ctx context.Context, db *sql.DB) (bool, error) {
		var exists bool
		err := db.QueryRowContext(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM information_schema.tables
				WHERE table_schema = current_schema() AND table_name = $1
			)`, table).Scan(&exists)
		return !exists, err
	}
}

func columnMissing(table, column string) func(context.Context, *sql.DB) (bool, error) {
	return func(ctx context.Context, db *sql.DB) (bool, error) {
		var exists bool
		err := db.QueryRowContext(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM information_schema.columns
				WHERE table_schema = current_schema() AND table_name = $1 AND column_name = $2
			)`, table, column).Scan(&exists)
		return !exists, err
	}
}

func columnHasType(table, column, dataType string) func(context.Context, *sql.DB) (bool, error) {
	return func(ctx context.Context, db *sql.DB) (bool, error) {
		var actual string
		err := db.QueryRowContext(ctx, `
			SELECT data_type FROM information_schema.columns
			WHERE table_schema = current_schema() AND table_name = $1 AND column_name = $2`,
			table, column).Scan(&actual)
		if err == sql.ErrNoRows {
			return false, nil
		}
		return actual == dataType, err
	}
}
