package database

import (
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"

	"github.com/ZXMushroom63/adschat-server/internal/models"
)

func setPragmaValues(db *sql.DB) error {
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return err
	}

	// these next 2 extremely speed up performance of sqlite
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return err
	}

	if _, err := db.Exec("PRAGMA synchronous = normal"); err != nil {
		return err
	}

	return nil
}

// OpenSQLite opens a self-contained sqlite database and creates the schema.
// Tests use ":memory:".
func OpenSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// there can be sqlite busy errors if this is not set to 1
	db.SetMaxOpenConns(1)

	if err := setPragmaValues(db); err != nil {
		return nil, err
	}

	if err := setupTables(db); err != nil {
		return nil, err
	}

	return db, nil
}

func Setup(cfg *models.ConfigFile) (*sql.DB, error) {
	if cfg.SelfContained {
		fmt.Println("Connecting to database sqlite...")
		return OpenSQLite("./database.db")
	}

	fmt.Println("Connecting to database mysql/mariadb...")

	db, err := sql.Open("mysql", fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&timeout=10s",
		cfg.DbUser, cfg.DbPassword, cfg.DbAddress, cfg.DbPort, cfg.DbDatabase))
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(10)

	if err := setupTables(db); err != nil {
		return nil, err
	}

	return db, nil
}

func setupTables(db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id BIGINT PRIMARY KEY,
			username VARCHAR(32) NOT NULL,
			tag VARCHAR(4) NOT NULL,
			display_name VARCHAR(64) NOT NULL,
			avatar TEXT,
			banner TEXT,
			badges BIGINT NOT NULL DEFAULT 0,
			bot BOOLEAN NOT NULL DEFAULT FALSE,
			UNIQUE (username, tag)
		);`,

		`CREATE TABLE IF NOT EXISTS accounts (
			user_id BIGINT PRIMARY KEY,
			email VARCHAR(64) NOT NULL UNIQUE,
			password BINARY(60) NOT NULL,
			password_version BIGINT NOT NULL DEFAULT 0,
			email_confirmed BOOLEAN NOT NULL DEFAULT FALSE,
			email_confirm_code VARCHAR(64) NOT NULL DEFAULT '',
			reset_password_code VARCHAR(64) NOT NULL DEFAULT '',
			reset_password_expiry BIGINT NOT NULL DEFAULT 0,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		);`,

		`CREATE TABLE IF NOT EXISTS servers (
			id BIGINT PRIMARY KEY,
			owner_id BIGINT NOT NULL,
			name VARCHAR(64) NOT NULL,
			picture TEXT,
			banner TEXT,
			FOREIGN KEY (owner_id) REFERENCES users(id)
		);`,

		`CREATE TABLE IF NOT EXISTS server_members (
			server_id BIGINT NOT NULL,
			user_id BIGINT NOT NULL,
			since TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (server_id, user_id),
			FOREIGN KEY (server_id) REFERENCES servers(id) ON DELETE CASCADE,
			FOREIGN KEY (user_id) REFERENCES users(id)
		);`,

		`CREATE TABLE IF NOT EXISTS roles (
			id BIGINT PRIMARY KEY,
			server_id BIGINT NOT NULL,
			name VARCHAR(32) NOT NULL,
			permissions BIGINT NOT NULL DEFAULT 0,
			FOREIGN KEY (server_id) REFERENCES servers(id) ON DELETE CASCADE
		);`,

		`CREATE TABLE IF NOT EXISTS member_roles (
			role_id BIGINT NOT NULL,
			user_id BIGINT NOT NULL,
			PRIMARY KEY (role_id, user_id),
			FOREIGN KEY (role_id) REFERENCES roles(id) ON DELETE CASCADE,
			FOREIGN KEY (user_id) REFERENCES users(id)
		);`,

		// server_id is 0 for inbox channels, last_message_id is 0 until the
		// first message lands
		`CREATE TABLE IF NOT EXISTS channels (
			id BIGINT PRIMARY KEY,
			type INT NOT NULL,
			server_id BIGINT NOT NULL DEFAULT 0,
			name VARCHAR(32) NOT NULL DEFAULT '',
			permissions BIGINT NOT NULL DEFAULT 0,
			can_message BOOLEAN NOT NULL DEFAULT TRUE,
			last_message_id BIGINT NOT NULL DEFAULT 0
		);`,

		`CREATE TABLE IF NOT EXISTS messages (
			id BIGINT PRIMARY KEY,
			channel_id BIGINT NOT NULL,
			server_id BIGINT NOT NULL DEFAULT 0,
			user_id BIGINT NOT NULL,
			content TEXT NOT NULL,
			attachment_path TEXT NOT NULL DEFAULT '',
			attachment_width INT NOT NULL DEFAULT 0,
			attachment_height INT NOT NULL DEFAULT 0,
			type INT NOT NULL DEFAULT 0,
			created_at BIGINT NOT NULL,
			FOREIGN KEY (channel_id) REFERENCES channels(id) ON DELETE CASCADE,
			FOREIGN KEY (user_id) REFERENCES users(id)
		);`,

		`CREATE TABLE IF NOT EXISTS follows (
			follower_id BIGINT NOT NULL,
			following_id BIGINT NOT NULL,
			PRIMARY KEY (follower_id, following_id),
			FOREIGN KEY (follower_id) REFERENCES users(id),
			FOREIGN KEY (following_id) REFERENCES users(id)
		);`,

		`CREATE TABLE IF NOT EXISTS profiles (
			user_id BIGINT PRIMARY KEY,
			about TEXT,
			FOREIGN KEY (user_id) REFERENCES users(id)
		);`,

		`CREATE TABLE IF NOT EXISTS channel_read_states (
			user_id BIGINT NOT NULL,
			channel_id BIGINT NOT NULL,
			last_read_message_id BIGINT NOT NULL DEFAULT 0,
			PRIMARY KEY (user_id, channel_id),
			FOREIGN KEY (user_id) REFERENCES users(id),
			FOREIGN KEY (channel_id) REFERENCES channels(id) ON DELETE CASCADE
		);`,

		`CREATE TABLE IF NOT EXISTS devices (
			user_id BIGINT NOT NULL,
			token VARCHAR(255) NOT NULL,
			PRIMARY KEY (user_id, token),
			FOREIGN KEY (user_id) REFERENCES users(id)
		);`,

		`CREATE TABLE IF NOT EXISTS connections (
			user_id BIGINT NOT NULL,
			provider VARCHAR(32) NOT NULL,
			external_id VARCHAR(64) NOT NULL,
			PRIMARY KEY (user_id, provider),
			FOREIGN KEY (user_id) REFERENCES users(id)
		);`,

		`CREATE TABLE IF NOT EXISTS notices (
			id BIGINT PRIMARY KEY,
			user_id BIGINT NOT NULL,
			content TEXT NOT NULL,
			FOREIGN KEY (user_id) REFERENCES users(id)
		);`,

		`CREATE TABLE IF NOT EXISTS applications (
			id BIGINT PRIMARY KEY,
			owner_id BIGINT NOT NULL,
			name VARCHAR(64) NOT NULL,
			FOREIGN KEY (owner_id) REFERENCES users(id)
		);`,
	}

	for _, statement := range statements {
		if _, err := db.Exec(statement); err != nil {
			return err
		}
	}

	return nil
}
