package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
)

// MySQLStore is a MySQL/MariaDB implementation of Store[M].
//
// Designed for web deployments where several processes share sessions, so a
// conversation started on one instance can be resumed on another.
//
// Schema matches SQLiteStore: automed_sessions and automed_messages.
type MySQLStore[M any] struct {
	sqlStore[M]
}

const mysqlUpsertSession = `
	INSERT INTO automed_sessions (id, participants, round_limit, current_round, is_terminated, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON DUPLICATE KEY UPDATE
		participants = VALUES(participants),
		round_limit = VALUES(round_limit),
		current_round = VALUES(current_round),
		is_terminated = VALUES(is_terminated),
		updated_at = VALUES(updated_at)`

const mysqlUpsertMessage = `
	INSERT INTO automed_messages (session_id, seq_no, message, created_at)
	VALUES (?, ?, ?, ?)
	ON DUPLICATE KEY UPDATE message = VALUES(message)`

// NewMySQLStore creates a new MySQL-backed store.
//
// The DSN (Data Source Name) format is:
//
//	[username[:password]@][protocol[(address)]]/dbname[?param1=value1&...&paramN=valueN]
//
// Example:
//
//	user:password@tcp(localhost:3306)/automed
//
// Security Warning: never hardcode credentials; pass the DSN through
// AUTOMED_STORE_DSN.
func NewMySQLStore[M any](dsn string) (*MySQLStore[M], error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid MySQL DSN: %w", err)
	}

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create MySQL connector: %w", err)
	}

	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	s := &MySQLStore[M]{
		sqlStore: sqlStore[M]{
			db: db,
			dialect: dialect{
				upsertSession: mysqlUpsertSession,
				upsertMessage: mysqlUpsertMessage,
			},
		},
	}

	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return s, nil
}

// Stats returns database connection pool statistics.
func (m *MySQLStore[M]) Stats() sql.DBStats {
	return m.db.Stats()
}

func (m *MySQLStore[M]) createTables(ctx context.Context) error {
	sessionsTable := `
		CREATE TABLE IF NOT EXISTS automed_sessions (
			id VARCHAR(64) NOT NULL PRIMARY KEY,
			participants JSON NOT NULL,
			round_limit INT NOT NULL,
			current_round INT NOT NULL,
			is_terminated TINYINT(1) NOT NULL DEFAULT 0,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL,
			INDEX idx_sessions_updated (updated_at)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci
	`
	if _, err := m.db.ExecContext(ctx, sessionsTable); err != nil {
		return fmt.Errorf("failed to create automed_sessions table: %w", err)
	}

	messagesTable := `
		CREATE TABLE IF NOT EXISTS automed_messages (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			session_id VARCHAR(64) NOT NULL,
			seq_no INT NOT NULL,
			message JSON NOT NULL,
			created_at BIGINT NOT NULL,
			UNIQUE KEY unique_session_seq (session_id, seq_no),
			CONSTRAINT fk_messages_session FOREIGN KEY (session_id)
				REFERENCES automed_sessions(id) ON DELETE CASCADE
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci
	`
	if _, err := m.db.ExecContext(ctx, messagesTable); err != nil {
		return fmt.Errorf("failed to create automed_messages table: %w", err)
	}

	return nil
}
