package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/sweetpotato0/ai-advocate/message"
)

// PostgresStore keeps records in the chat_sessions table.
type PostgresStore struct {
	db *sql.DB
}

// PostgresConfig holds PostgreSQL connection configuration. DSN wins over
// the individual fields when set.
type PostgresConfig struct {
	DSN      string
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// DefaultPostgresConfig returns default PostgreSQL configuration
func DefaultPostgresConfig() *PostgresConfig {
	return &PostgresConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "postgres",
		DBName:   "ai_advocate",
		SSLMode:  "disable",
	}
}

func (c *PostgresConfig) dsn() string {
	if c.DSN != "" {
		return c.DSN
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// NewPostgresStore connects, verifies the connection and creates the table.
func NewPostgresStore(ctx context.Context, config *PostgresConfig) (*PostgresStore, error) {
	if config == nil {
		config = DefaultPostgresConfig()
	}

	db, err := sql.Open("postgres", config.dsn())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.createTable(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	return store, nil
}

func (s *PostgresStore) createTable(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS chat_sessions (
		seq BIGSERIAL PRIMARY KEY,
		id VARCHAR(64) NOT NULL UNIQUE,
		session_id VARCHAR(255) NOT NULL,
		role VARCHAR(32) NOT NULL,
		content TEXT NOT NULL,
		metadata JSONB,
		created_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chat_sessions_session ON chat_sessions(session_id, seq);
	`
	_, err := s.db.ExecContext(ctx, query)
	return err
}

// Append implements Recorder.
func (s *PostgresStore) Append(ctx context.Context, rec *Record) error {
	if err := prepare(rec); err != nil {
		return err
	}
	metadataJSON, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
	INSERT INTO chat_sessions (id, session_id, role, content, metadata, created_at)
	VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = s.db.ExecContext(ctx, query,
		rec.ID,
		rec.SessionID,
		string(rec.Role),
		rec.Content,
		string(metadataJSON),
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append record to PostgreSQL: %w", err)
	}
	return nil
}

// History implements HistoryReader.
func (s *PostgresStore) History(ctx context.Context, sessionID string) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, role, content, metadata, created_at
		 FROM chat_sessions
		 WHERE session_id = $1
		 ORDER BY seq ASC`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	defer rows.Close()

	records := make([]*Record, 0)
	for rows.Next() {
		rec := &Record{}
		var role string
		var metadataJSON sql.NullString
		if err := rows.Scan(&rec.ID, &rec.SessionID, &role, &rec.Content, &metadataJSON, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		rec.Role = message.Role(role)
		rec.Metadata = make(map[string]any)
		if metadataJSON.Valid && metadataJSON.String != "" && metadataJSON.String != "{}" {
			if err := json.Unmarshal([]byte(metadataJSON.String), &rec.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}
	return records, nil
}

// Ping checks if PostgreSQL connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the PostgreSQL connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
