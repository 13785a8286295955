package registration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5/pgconn"

	"classtrack/internal/auth"
)

// Request is a prospective student's signup, held until an admin reviews it.
type Request struct {
	ID        int64  `json:"id"`
	FullName  string `json:"full_name"`
	Email     string `json:"email"`
	LevelID   int64  `json:"level_id"`
	ProgramID int64  `json:"program_id"`
	BranchID  int64  `json:"branch_id"`
}

var (
	// ErrDuplicateEmail is returned when the email already has a pending
	// request or account.
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrRequestNotFound is returned when the request was already resolved.
	ErrRequestNotFound = errors.New("registration request not found")
	// ErrStudentIDTaken is returned when the generated student ID collides.
	ErrStudentIDTaken = errors.New("student id already exists")
)

// Repository persists registration requests and turns approved ones into
// user + student rows.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Submit files a new request with the password hashed at rest.
func (r *Repository) Submit(ctx context.Context, req Request, password string) error {
	if req.FullName == "" || req.Email == "" || password == "" ||
		req.LevelID == 0 || req.ProgramID == 0 || req.BranchID == 0 {
		return errors.New("all registration fields are required")
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO registration_requests
			(full_name, email, password, requested_level_id, requested_program_id, requested_branch_id, status)
		VALUES ($1, $2, $3, $4, $5, $6, 'Pending')
	`, req.FullName, req.Email, hash, req.LevelID, req.ProgramID, req.BranchID)
	if isUniqueViolation(err) {
		return ErrDuplicateEmail
	}
	return err
}

// Pending lists requests awaiting review.
func (r *Repository) Pending(ctx context.Context) ([]Request, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, full_name, COALESCE(email, ''), requested_level_id, requested_program_id, requested_branch_id
		FROM registration_requests
		WHERE status = 'Pending'
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reqs []Request
	for rows.Next() {
		var req Request
		if err := rows.Scan(&req.ID, &req.FullName, &req.Email, &req.LevelID, &req.ProgramID, &req.BranchID); err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}
	return reqs, rows.Err()
}

// Approve converts a pending request into a user account and student profile,
// assigning a generated student ID, then removes the request. The whole step
// is one transaction so a collision on the generated ID leaves the request
// intact for retry.
func (r *Repository) Approve(ctx context.Context, requestID int64, joiningYear int) (string, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	var (
		fullName, email, passwordHash string
		programID, branchID           int64
	)
	err = tx.QueryRowContext(ctx, `
		SELECT full_name, COALESCE(email, ''), password, requested_program_id, requested_branch_id
		FROM registration_requests WHERE id = $1 AND status = 'Pending'
	`, requestID).Scan(&fullName, &email, &passwordHash, &programID, &branchID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrRequestNotFound
	}
	if err != nil {
		return "", err
	}

	var branchCode, programCode string
	if err := tx.QueryRowContext(ctx, `SELECT branch_code FROM branches WHERE id = $1`, branchID).Scan(&branchCode); err != nil {
		return "", err
	}
	if err := tx.QueryRowContext(ctx, `SELECT program_code FROM programs WHERE id = $1`, programID).Scan(&programCode); err != nil {
		return "", err
	}

	prefix := StudentIDPrefix(branchCode, programCode, joiningYear)
	var lastID sql.NullString
	err = tx.QueryRowContext(ctx, `
		SELECT student_code FROM students
		WHERE student_code LIKE $1 ORDER BY student_code DESC LIMIT 1
	`, prefix+"%").Scan(&lastID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", err
	}
	studentCode := NextStudentID(prefix, lastID.String)

	var userID int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO users (username, password, role, email)
		VALUES ($1, $2, 'student', $3) RETURNING id
	`, studentCode, passwordHash, nullable(email)).Scan(&userID)
	if isUniqueViolation(err) {
		return "", ErrStudentIDTaken
	}
	if err != nil {
		return "", err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO students (student_code, full_name, user_id, branch_id, program_id, joining_year)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, studentCode, fullName, userID, branchID, programID, joiningYear); err != nil {
		if isUniqueViolation(err) {
			return "", ErrStudentIDTaken
		}
		return "", err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM registration_requests WHERE id = $1`, requestID); err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return studentCode, nil
}

// Reject drops a pending request.
func (r *Repository) Reject(ctx context.Context, requestID int64) error {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM registration_requests WHERE id = $1 AND status = 'Pending'
	`, requestID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRequestNotFound
	}
	return nil
}

// StudentIDPrefix builds the prefix of a generated student ID: branch code,
// two-digit joining year, program code.
func StudentIDPrefix(branchCode, programCode string, joiningYear int) string {
	year := strconv.Itoa(joiningYear)
	if len(year) > 2 {
		year = year[len(year)-2:]
	}
	return branchCode + year + programCode
}

// NextStudentID continues the per-prefix serial, starting at 1001. A last ID
// that does not parse restarts the serial rather than failing the approval.
func NextStudentID(prefix, lastID string) string {
	serial := 1001
	if len(lastID) > len(prefix) {
		if n, err := strconv.Atoi(lastID[len(prefix):]); err == nil {
			serial = n + 1
		}
	}
	return fmt.Sprintf("%s%d", prefix, serial)
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
