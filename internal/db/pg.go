package db

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/Owolabi16/flusk-notification-controller/internal/history"
)

// PostgresArchive persists dispatched notifications. Dedup state stays
// in-memory; the archive exists so an operator can ask "what did we send"
// after the fact.
type PostgresArchive struct {
	db *sql.DB
}

func NewPostgresArchive(connStr string) (*PostgresArchive, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	archive := &PostgresArchive{db: db}
	if err := archive.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return archive, nil
}

func (a *PostgresArchive) initSchema() error {
	schema := `
	-- Notifications: append-only dispatch log
	CREATE TABLE IF NOT EXISTS notifications (
		id SERIAL PRIMARY KEY,
		namespace TEXT NOT NULL,
		release TEXT NOT NULL,
		revision TEXT NOT NULL,
		chart_version TEXT,
		app_version TEXT,
		delivered BOOLEAN NOT NULL,
		error TEXT,
		sent_at TIMESTAMP NOT NULL,
		details JSONB
	);
	CREATE INDEX IF NOT EXISTS idx_notifications_namespace ON notifications(namespace);
	CREATE INDEX IF NOT EXISTS idx_notifications_sent ON notifications(sent_at DESC);
	`

	_, err := a.db.Exec(schema)
	return err
}

func (a *PostgresArchive) Record(n history.Notification) error {
	details, _ := json.Marshal(n)

	_, err := a.db.Exec(`
		INSERT INTO notifications (
			namespace, release, revision, chart_version, app_version,
			delivered, error, sent_at, details
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, n.Namespace, n.Release, n.Revision, n.ChartVersion, n.AppVersion,
		n.Delivered, n.Error, n.SentAt, details)
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

func (a *PostgresArchive) Recent(namespace string, limit int) ([]history.Notification, error) {
	query := `
		SELECT namespace, release, revision, chart_version, app_version,
		       delivered, COALESCE(error, ''), sent_at
		FROM notifications
	`
	args := make([]interface{}, 0, 2)

	if namespace != "" {
		query += " WHERE namespace = $1"
		args = append(args, namespace)
	}
	query += fmt.Sprintf(" ORDER BY sent_at DESC LIMIT $%d", len(args)+1)
	args = append(args, limit)

	rows, err := a.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifications []history.Notification
	for rows.Next() {
		var n history.Notification
		if err := rows.Scan(
			&n.Namespace, &n.Release, &n.Revision, &n.ChartVersion,
			&n.AppVersion, &n.Delivered, &n.Error, &n.SentAt,
		); err != nil {
			continue
		}
		notifications = append(notifications, n)
	}

	return notifications, rows.Err()
}

func (a *PostgresArchive) Close() error {
	return a.db.Close()
}

// Ping checks the database connection
func (a *PostgresArchive) Ping() error {
	return a.db.Ping()
}
