package database

import (
	"database/sql"
	"fmt"
	"log"
	"strings"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all database migrations
func GetMigrations(dbType string) []Migration {
	if dbType == "postgres" {
		return getPostgresMigrations()
	}
	return getSQLiteMigrations()
}

func getPostgresMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create accounts table",
			SQL: `CREATE TABLE IF NOT EXISTS accounts (
				id UUID PRIMARY KEY,
				email VARCHAR(255) UNIQUE NOT NULL,
				password VARCHAR(255) NOT NULL,
				role VARCHAR(50) NOT NULL DEFAULT 'individual',
				created_by UUID REFERENCES accounts(id),
				api_auth_token VARCHAR(255) UNIQUE NOT NULL,
				subscription_type VARCHAR(50) NOT NULL DEFAULT 'free_trial',
				subscription_status VARCHAR(50) NOT NULL DEFAULT 'active',
				trial_ends_at TIMESTAMP WITH TIME ZONE,
				package_ends_at TIMESTAMP WITH TIME ZONE,
				searches_used INTEGER NOT NULL DEFAULT 0,
				search_limit INTEGER NOT NULL DEFAULT 10,
				can_access_real_data BOOLEAN NOT NULL DEFAULT FALSE,
				low_quota_notified BOOLEAN NOT NULL DEFAULT FALSE,
				expiry_reminder_sent BOOLEAN NOT NULL DEFAULT FALSE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			)`,
		},
		{
			Version:     2,
			Description: "Create payment_events table",
			SQL: `CREATE TABLE IF NOT EXISTS payment_events (
				id UUID PRIMARY KEY,
				session_id VARCHAR(255) UNIQUE NOT NULL,
				account_id UUID REFERENCES accounts(id),
				enterprise_request_id UUID,
				admin_email VARCHAR(255),
				kind VARCHAR(50) NOT NULL,
				amount_cents BIGINT NOT NULL DEFAULT 0,
				currency VARCHAR(10) NOT NULL DEFAULT 'usd',
				credits INTEGER NOT NULL DEFAULT 0,
				package_searches INTEGER NOT NULL DEFAULT 0,
				package_days INTEGER NOT NULL DEFAULT 0,
				status VARCHAR(50) NOT NULL DEFAULT 'pending',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				completed_at TIMESTAMP WITH TIME ZONE
			)`,
		},
		{
			Version:     3,
			Description: "Create enterprise_requests table",
			SQL: `CREATE TABLE IF NOT EXISTS enterprise_requests (
				id UUID PRIMARY KEY,
				admin_email VARCHAR(255) NOT NULL,
				allowance_searches INTEGER NOT NULL DEFAULT 0,
				allowance_users INTEGER NOT NULL DEFAULT 0,
				paid BOOLEAN NOT NULL DEFAULT FALSE,
				session_id VARCHAR(255),
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				paid_at TIMESTAMP WITH TIME ZONE
			)`,
		},
		{
			Version:     4,
			Description: "Create indexes",
			SQL: `CREATE INDEX IF NOT EXISTS idx_accounts_email ON accounts(email);
				CREATE INDEX IF NOT EXISTS idx_accounts_api_auth_token ON accounts(api_auth_token);
				CREATE INDEX IF NOT EXISTS idx_accounts_created_by ON accounts(created_by);
				CREATE INDEX IF NOT EXISTS idx_payment_events_session_id ON payment_events(session_id);
				CREATE INDEX IF NOT EXISTS idx_payment_events_account_id ON payment_events(account_id);
				CREATE INDEX IF NOT EXISTS idx_enterprise_requests_admin_email ON enterprise_requests(admin_email);`,
		},
	}
}

func getSQLiteMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create accounts table",
			SQL: `CREATE TABLE IF NOT EXISTS accounts (
				id TEXT PRIMARY KEY,
				email TEXT UNIQUE NOT NULL,
				password TEXT NOT NULL,
				role TEXT NOT NULL DEFAULT 'individual',
				created_by TEXT REFERENCES accounts(id),
				api_auth_token TEXT UNIQUE NOT NULL,
				subscription_type TEXT NOT NULL DEFAULT 'free_trial',
				subscription_status TEXT NOT NULL DEFAULT 'active',
				trial_ends_at DATETIME,
				package_ends_at DATETIME,
				searches_used INTEGER NOT NULL DEFAULT 0,
				search_limit INTEGER NOT NULL DEFAULT 10,
				can_access_real_data BOOLEAN NOT NULL DEFAULT 0,
				low_quota_notified BOOLEAN NOT NULL DEFAULT 0,
				expiry_reminder_sent BOOLEAN NOT NULL DEFAULT 0,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL
			)`,
		},
		{
			Version:     2,
			Description: "Create payment_events table",
			SQL: `CREATE TABLE IF NOT EXISTS payment_events (
				id TEXT PRIMARY KEY,
				session_id TEXT UNIQUE NOT NULL,
				account_id TEXT REFERENCES accounts(id),
				enterprise_request_id TEXT,
				admin_email TEXT,
				kind TEXT NOT NULL,
				amount_cents INTEGER NOT NULL DEFAULT 0,
				currency TEXT NOT NULL DEFAULT 'usd',
				credits INTEGER NOT NULL DEFAULT 0,
				package_searches INTEGER NOT NULL DEFAULT 0,
				package_days INTEGER NOT NULL DEFAULT 0,
				status TEXT NOT NULL DEFAULT 'pending',
				created_at DATETIME NOT NULL,
				completed_at DATETIME
			)`,
		},
		{
			Version:     3,
			Description: "Create enterprise_requests table",
			SQL: `CREATE TABLE IF NOT EXISTS enterprise_requests (
				id TEXT PRIMARY KEY,
				admin_email TEXT NOT NULL,
				allowance_searches INTEGER NOT NULL DEFAULT 0,
				allowance_users INTEGER NOT NULL DEFAULT 0,
				paid BOOLEAN NOT NULL DEFAULT 0,
				session_id TEXT,
				created_at DATETIME NOT NULL,
				paid_at DATETIME
			)`,
		},
		{
			Version:     4,
			Description: "Create indexes",
			SQL: `CREATE INDEX IF NOT EXISTS idx_accounts_email ON accounts(email);
				CREATE INDEX IF NOT EXISTS idx_accounts_api_auth_token ON accounts(api_auth_token);
				CREATE INDEX IF NOT EXISTS idx_accounts_created_by ON accounts(created_by);
				CREATE INDEX IF NOT EXISTS idx_payment_events_session_id ON payment_events(session_id);
				CREATE INDEX IF NOT EXISTS idx_payment_events_account_id ON payment_events(account_id);
				CREATE INDEX IF NOT EXISTS idx_enterprise_requests_admin_email ON enterprise_requests(admin_email);`,
		},
	}
}

// createMigrationsTable creates the migrations tracking table
func createMigrationsTable(db *sql.DB, dbType string) error {
	var query string
	if dbType == "postgres" {
		query = `CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)`
	} else {
		query = `CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`
	}

	_, err := db.Exec(query)
	return err
}

// getAppliedMigrations returns the list of applied migration versions
func getAppliedMigrations(db *sql.DB) (map[int]bool, error) {
	applied := make(map[int]bool)

	rows, err := db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return applied, err
	}
	defer rows.Close()

	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return applied, err
		}
		applied[version] = true
	}

	return applied, rows.Err()
}

// recordMigration records that a migration has been applied
func recordMigration(db *sql.DB, dbType string, version int) error {
	var query string
	if dbType == "postgres" {
		query = "INSERT INTO schema_migrations (version) VALUES ($1)"
	} else {
		query = "INSERT INTO schema_migrations (version) VALUES (?)"
	}
	_, err := db.Exec(query, version)
	return err
}

// RunMigrations runs all pending migrations
func RunMigrations(db *sql.DB, dbType string) error {
	if err := createMigrationsTable(db, dbType); err != nil {
		return fmt.Errorf("failed to create migrations table: %v", err)
	}

	applied, err := getAppliedMigrations(db)
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %v", err)
	}

	for _, migration := range GetMigrations(dbType) {
		if applied[migration.Version] {
			continue
		}

		log.Printf("[DB] Applying migration %d: %s", migration.Version, migration.Description)

		// Split SQL by semicolon and execute each statement
		statements := strings.Split(migration.SQL, ";")
		for _, stmt := range statements {
			stmt = strings.TrimSpace(stmt)
			if stmt == "" {
				continue
			}
			if _, err := db.Exec(stmt); err != nil {
				return fmt.Errorf("failed to apply migration %d: %v", migration.Version, err)
			}
		}

		if err := recordMigration(db, dbType, migration.Version); err != nil {
			return fmt.Errorf("failed to record migration %d: %v", migration.Version, err)
		}
	}

	return nil
}
