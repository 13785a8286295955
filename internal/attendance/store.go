package attendance

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgresStore persists sessions, scans, and marks in Postgres.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a session store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

var _ SessionStore = (*PostgresStore)(nil)

// CreateSession deactivates active sessions for the section and inserts the
// new one in a single transaction, so exactly one session per section is live.
func (s *PostgresStore) CreateSession(ctx context.Context, sess Session) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		UPDATE attendance_sessions SET is_active = FALSE
		WHERE section_id = $1 AND is_active = TRUE
	`, sess.SectionID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO attendance_sessions (section_id, token, created_at, expires_at, is_active)
		VALUES ($1, $2, $3, $4, TRUE)
	`, sess.SectionID, sess.Token, sess.CreatedAt, sess.ExpiresAt); err != nil {
		return err
	}
	return tx.Commit()
}

// FindSessionByToken returns the session or nil when the token is unknown.
func (s *PostgresStore) FindSessionByToken(ctx context.Context, token string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, section_id, token, created_at, expires_at, is_active
		FROM attendance_sessions WHERE token = $1
	`, token)
	var sess Session
	if err := row.Scan(&sess.ID, &sess.SectionID, &sess.Token, &sess.CreatedAt, &sess.ExpiresAt, &sess.IsActive); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &sess, nil
}

// RedeemScan inserts the scan record and upserts the Present mark atomically.
// A unique violation on the scan insert means the student already redeemed
// this session; the transaction rolls back and ScanConflict is returned.
func (s *PostgresStore) RedeemScan(ctx context.Context, sess Session, studentID int64, date string) (ScanStatus, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ScanConflict, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO attendance_scans (session_id, student_id)
		VALUES ($1, $2)
	`, sess.ID, studentID); err != nil {
		if isUniqueViolation(err) {
			return ScanConflict, nil
		}
		return ScanConflict, err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO attendance (student_id, section_id, semester_id, date, status)
		VALUES ($1, $2, (SELECT id FROM semesters WHERE is_active = TRUE), $3, $4)
		ON CONFLICT (student_id, section_id, date) DO UPDATE SET status = EXCLUDED.status
	`, studentID, sess.SectionID, date, StatusPresent); err != nil {
		return ScanConflict, err
	}

	if err := tx.Commit(); err != nil {
		return ScanConflict, err
	}
	return ScanInserted, nil
}

// DeactivateSession flips is_active off. Recorded scans are untouched.
func (s *PostgresStore) DeactivateSession(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE attendance_sessions SET is_active = FALSE WHERE token = $1
	`, token)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
