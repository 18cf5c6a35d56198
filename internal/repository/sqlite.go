package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/xiaot623/agentdir/internal/domain"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS agents (
			agent_name TEXT PRIMARY KEY,
			certificate_fingerprint TEXT NOT NULL,
			descriptor TEXT NOT NULL,
			a2a_compliant BOOLEAN NOT NULL DEFAULT 0,
			verified BOOLEAN NOT NULL DEFAULT 0,
			active BOOLEAN NOT NULL DEFAULT 1,
			version INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		// Lower-cased facet tables back the directory filters.
		`CREATE TABLE IF NOT EXISTS agent_skills (
			agent_name TEXT NOT NULL,
			skill TEXT NOT NULL,
			PRIMARY KEY (agent_name, skill),
			FOREIGN KEY (agent_name) REFERENCES agents(agent_name)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_agent_skills_skill ON agent_skills(skill)`,
		`CREATE TABLE IF NOT EXISTS agent_protocols (
			agent_name TEXT NOT NULL,
			protocol TEXT NOT NULL,
			PRIMARY KEY (agent_name, protocol),
			FOREIGN KEY (agent_name) REFERENCES agents(agent_name)
		)`,
		`CREATE TABLE IF NOT EXISTS agent_tasks (
			agent_name TEXT NOT NULL,
			task TEXT NOT NULL,
			PRIMARY KEY (agent_name, task),
			FOREIGN KEY (agent_name) REFERENCES agents(agent_name)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_agent_tasks_task ON agent_tasks(task)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			initiating_agent TEXT NOT NULL,
			target_agent TEXT NOT NULL,
			task TEXT NOT NULL,
			context TEXT,
			session_token TEXT NOT NULL,
			status TEXT NOT NULL,
			reason TEXT,
			idempotency_key TEXT,
			version INTEGER NOT NULL DEFAULT 0,
			expires_at INTEGER NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_initiating ON sessions(initiating_agent, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_target ON sessions(target_agent, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_status_expires ON sessions(status, expires_at)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_idempotency ON sessions(initiating_agent, idempotency_key) WHERE idempotency_key IS NOT NULL`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const agentColumns = `agent_name, certificate_fingerprint, descriptor, verified, active, version, created_at, updated_at`

// CreateAgent inserts a new agent. It returns domain.ErrDuplicateAgent when the name is taken.
func (s *SQLiteStore) CreateAgent(ctx context.Context, agent *domain.AgentRecord) error {
	descriptor, err := json.Marshal(agent.Descriptor)
	if err != nil {
		return fmt.Errorf("failed to marshal descriptor: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO agents (agent_name, certificate_fingerprint, descriptor, a2a_compliant, verified, active, version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		agent.AgentName, agent.CertificateFingerprint, string(descriptor), agent.Descriptor.A2ACompliant,
		agent.Verified, agent.Active, agent.Version, agent.CreatedAt, agent.UpdatedAt)
	if isConstraintErr(err) {
		return domain.NewError(domain.CodeDuplicateAgent, "agent %q already exists", agent.AgentName)
	}
	if err != nil {
		return err
	}
	if err := writeFacets(ctx, tx, agent); err != nil {
		return err
	}
	return tx.Commit()
}

// GetAgent retrieves an agent by name.
func (s *SQLiteStore) GetAgent(ctx context.Context, agentName string) (*domain.AgentRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE agent_name = ?`, agentName)
	agent, err := scanAgent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return agent, nil
}

// UpdateAgent writes agent if the stored version still equals expectedVersion.
// On success agent.Version is advanced to the persisted value.
func (s *SQLiteStore) UpdateAgent(ctx context.Context, agent *domain.AgentRecord, expectedVersion int64) (bool, error) {
	descriptor, err := json.Marshal(agent.Descriptor)
	if err != nil {
		return false, fmt.Errorf("failed to marshal descriptor: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE agents
		 SET certificate_fingerprint = ?, descriptor = ?, a2a_compliant = ?, verified = ?, active = ?,
		     version = version + 1, updated_at = ?
		 WHERE agent_name = ? AND version = ?`,
		agent.CertificateFingerprint, string(descriptor), agent.Descriptor.A2ACompliant, agent.Verified,
		agent.Active, agent.UpdatedAt, agent.AgentName, expectedVersion)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected == 0 {
		return false, nil
	}

	for _, table := range []string{"agent_skills", "agent_protocols", "agent_tasks"} {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE agent_name = ?`, table), agent.AgentName); err != nil {
			return false, err
		}
	}
	if err := writeFacets(ctx, tx, agent); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	agent.Version = expectedVersion + 1
	return true, nil
}

// ListAgents returns up to limit agents matching filter with agent_name > afterName,
// ordered by agent_name.
func (s *SQLiteStore) ListAgents(ctx context.Context, filter AgentFilter, afterName string, limit int) ([]domain.AgentRecord, error) {
	query := `SELECT ` + agentColumns + ` FROM agents a WHERE a.agent_name > ?`
	args := []interface{}{afterName}

	if filter.Active != nil {
		query += ` AND a.active = ?`
		args = append(args, *filter.Active)
	}
	if filter.Verified != nil {
		query += ` AND a.verified = ?`
		args = append(args, *filter.Verified)
	}
	if filter.A2ACompliant != nil {
		query += ` AND a.a2a_compliant = ?`
		args = append(args, *filter.A2ACompliant)
	}
	if filter.Skill != "" {
		query += ` AND EXISTS (SELECT 1 FROM agent_skills f WHERE f.agent_name = a.agent_name AND f.skill LIKE ? ESCAPE '\')`
		args = append(args, escapeLike(strings.ToLower(filter.Skill))+"%")
	}
	if filter.Protocol != "" {
		query += ` AND EXISTS (SELECT 1 FROM agent_protocols f WHERE f.agent_name = a.agent_name AND f.protocol = ?)`
		args = append(args, strings.ToLower(filter.Protocol))
	}
	if filter.Task != "" {
		query += ` AND EXISTS (SELECT 1 FROM agent_tasks f WHERE f.agent_name = a.agent_name AND f.task = ?)`
		args = append(args, strings.ToLower(filter.Task))
	}

	query += ` ORDER BY a.agent_name ASC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var agents []domain.AgentRecord
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, *agent)
	}
	return agents, rows.Err()
}

const sessionColumns = `session_id, initiating_agent, target_agent, task, context, session_token, status, reason, idempotency_key, version, expires_at, created_at, updated_at`

// CreateSession inserts a new session. It returns ErrIdempotencyKeyExists when the
// initiating agent already created a session under the same idempotency key.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *domain.Session) error {
	sessionCtx, err := json.Marshal(session.Context)
	if err != nil {
		return fmt.Errorf("failed to marshal context: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (`+sessionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session.SessionID, session.InitiatingAgent, session.TargetAgent, session.Task, string(sessionCtx),
		session.SessionToken, session.Status, nullString(session.Reason), nullString(session.IdempotencyKey),
		session.Version, session.ExpiresAt.UnixMilli(), session.CreatedAt, session.UpdatedAt)
	if isConstraintErr(err) && session.IdempotencyKey != "" {
		return ErrIdempotencyKeyExists
	}
	return err
}

// GetSession retrieves a session by ID.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE session_id = ?`, sessionID)
	session, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return session, nil
}

// GetSessionByIdempotencyKey retrieves the session created by initiatingAgent under key.
func (s *SQLiteStore) GetSessionByIdempotencyKey(ctx context.Context, initiatingAgent, key string) (*domain.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE initiating_agent = ? AND idempotency_key = ?`,
		initiatingAgent, key)
	session, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return session, nil
}

// UpdateSession writes status, reason and context if the stored version still
// equals expectedVersion. On success session.Version is advanced.
func (s *SQLiteStore) UpdateSession(ctx context.Context, session *domain.Session, expectedVersion int64) (bool, error) {
	sessionCtx, err := json.Marshal(session.Context)
	if err != nil {
		return false, fmt.Errorf("failed to marshal context: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions
		 SET status = ?, reason = ?, context = ?, version = version + 1, updated_at = ?
		 WHERE session_id = ? AND version = ?`,
		session.Status, nullString(session.Reason), string(sessionCtx), session.UpdatedAt,
		session.SessionID, expectedVersion)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected == 0 {
		return false, nil
	}
	session.Version = expectedVersion + 1
	return true, nil
}

// ListSessions lists sessions newest first.
func (s *SQLiteStore) ListSessions(ctx context.Context, filter domain.SessionFilter) ([]domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE 1 = 1`
	var args []interface{}

	if filter.InitiatingAgent != "" {
		query += ` AND initiating_agent = ?`
		args = append(args, filter.InitiatingAgent)
	}
	if filter.TargetAgent != "" {
		query += ` AND target_agent = ?`
		args = append(args, filter.TargetAgent)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}

	query += ` ORDER BY created_at DESC, session_id ASC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", filter.Limit, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *session)
	}
	return sessions, rows.Err()
}

// ListExpiredSessions lists non-terminal sessions whose expiry is before now.
func (s *SQLiteStore) ListExpiredSessions(ctx context.Context, now time.Time, limit int) ([]domain.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE status IN (?, ?, ?)
		  AND expires_at < ?
		ORDER BY expires_at ASC
		LIMIT ?
	`, domain.SessionStatusInitiated, domain.SessionStatusNegotiating, domain.SessionStatusActive,
		now.UnixMilli(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *session)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAgent(row rowScanner) (*domain.AgentRecord, error) {
	var agent domain.AgentRecord
	var descriptor string
	if err := row.Scan(&agent.AgentName, &agent.CertificateFingerprint, &descriptor, &agent.Verified,
		&agent.Active, &agent.Version, &agent.CreatedAt, &agent.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(descriptor), &agent.Descriptor); err != nil {
		return nil, fmt.Errorf("failed to decode descriptor of %s: %w", agent.AgentName, err)
	}
	agent.Descriptor = agent.Descriptor.Normalize()
	return &agent, nil
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var session domain.Session
	var sessionCtx, reason, idempotencyKey sql.NullString
	var expiresAt int64
	if err := row.Scan(&session.SessionID, &session.InitiatingAgent, &session.TargetAgent, &session.Task,
		&sessionCtx, &session.SessionToken, &session.Status, &reason, &idempotencyKey, &session.Version,
		&expiresAt, &session.CreatedAt, &session.UpdatedAt); err != nil {
		return nil, err
	}
	session.Context = domain.SessionContext{}
	if sessionCtx.Valid && sessionCtx.String != "" && sessionCtx.String != "null" {
		if err := json.Unmarshal([]byte(sessionCtx.String), &session.Context); err != nil {
			return nil, fmt.Errorf("failed to decode context of %s: %w", session.SessionID, err)
		}
	}
	if reason.Valid {
		session.Reason = reason.String
	}
	if idempotencyKey.Valid {
		session.IdempotencyKey = idempotencyKey.String
	}
	session.ExpiresAt = time.UnixMilli(expiresAt).UTC()
	return &session, nil
}

func writeFacets(ctx context.Context, tx *sql.Tx, agent *domain.AgentRecord) error {
	facets := []struct {
		table  string
		column string
		values []string
	}{
		{"agent_skills", "skill", agent.Descriptor.Skills},
		{"agent_protocols", "protocol", agent.Descriptor.Protocols},
		{"agent_tasks", "task", agent.Descriptor.SupportedTasks},
	}
	for _, f := range facets {
		stmt := fmt.Sprintf(`INSERT OR IGNORE INTO %s (agent_name, %s) VALUES (?, ?)`, f.table, f.column)
		for _, v := range f.values {
			if _, err := tx.ExecContext(ctx, stmt, agent.AgentName, strings.ToLower(v)); err != nil {
				return fmt.Errorf("failed to write %s: %w", f.table, err)
			}
		}
	}
	return nil
}

func isConstraintErr(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return false
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
