package identity

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"classtrack/internal/auth"
)

// User is an account that can sign in. Students additionally have a student
// profile row keyed by user globally.
type User struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
	Role         string `json:"role"`
	Email        string `json:"email,omitempty"`
}

// ErrInvalidCredentials hides whether the username or the password was wrong.
var ErrInvalidCredentials = errors.New("invalid username or password")

// ErrStudentNotFound is returned when a student profile id does not exist.
var ErrStudentNotFound = errors.New("student not found")

// ErrStudentCodeTaken is returned when an update would reuse another
// student's code.
var ErrStudentCodeTaken = errors.New("student code already in use")

// Student is the admin-facing view of a student profile.
type Student struct {
	ID          int64  `json:"id"`
	StudentCode string `json:"student_code"`
	FullName    string `json:"full_name"`
	Branch      string `json:"branch"`
	BranchID    int64  `json:"branch_id"`
	ProgramID   int64  `json:"program_id"`
	JoiningYear int    `json:"joining_year"`
}

// Repository persists user accounts.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// FindByUsername returns the user or nil.
func (r *Repository) FindByUsername(ctx context.Context, username string) (*User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, username, password, role, COALESCE(email, '')
		FROM users WHERE username = $1
	`, username)
	var u User
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &u.Email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

// Authenticate verifies credentials and returns the account.
func (r *Repository) Authenticate(ctx context.Context, username, password string) (User, error) {
	u, err := r.FindByUsername(ctx, username)
	if err != nil {
		return User{}, err
	}
	if u == nil || !auth.CheckPassword(u.PasswordHash, password) {
		return User{}, ErrInvalidCredentials
	}
	return *u, nil
}

// CreateTeacher adds a teacher account with a hashed password.
func (r *Repository) CreateTeacher(ctx context.Context, username, password string) (int64, error) {
	if username == "" || password == "" {
		return 0, errors.New("username and password required")
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return 0, err
	}
	var id int64
	err = r.db.QueryRowContext(ctx, `
		INSERT INTO users (username, password, role) VALUES ($1, $2, 'teacher')
		RETURNING id
	`, username, hash).Scan(&id)
	return id, err
}

// DeleteTeacher removes a teacher account. Sections taught by the teacher
// cascade per the schema.
func (r *Repository) DeleteTeacher(ctx context.Context, teacherID int64) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM users WHERE id = $1 AND role = 'teacher'
	`, teacherID)
	return err
}

// ListTeachers returns all teacher accounts.
func (r *Repository) ListTeachers(ctx context.Context) ([]User, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, username, password, role, COALESCE(email, '')
		FROM users WHERE role = 'teacher' ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var teachers []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &u.Email); err != nil {
			return nil, err
		}
		teachers = append(teachers, u)
	}
	return teachers, rows.Err()
}

// BranchForStudent returns the branch a student belongs to.
func (r *Repository) BranchForStudent(ctx context.Context, studentID int64) (int64, error) {
	var branchID int64
	err := r.db.QueryRowContext(ctx, `SELECT branch_id FROM students WHERE id = $1`, studentID).Scan(&branchID)
	return branchID, err
}

// ListStudents returns every student profile with its branch name, ordered
// the way admins pick them: by branch, then by code.
func (r *Repository) ListStudents(ctx context.Context) ([]Student, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT s.id, s.student_code, s.full_name, b.branch_name,
		       s.branch_id, s.program_id, s.joining_year
		FROM students s
		JOIN branches b ON s.branch_id = b.id
		ORDER BY b.branch_name, s.student_code
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var students []Student
	for rows.Next() {
		var s Student
		if err := rows.Scan(&s.ID, &s.StudentCode, &s.FullName, &s.Branch, &s.BranchID, &s.ProgramID, &s.JoiningYear); err != nil {
			return nil, err
		}
		students = append(students, s)
	}
	return students, rows.Err()
}

// StudentDetails returns one student profile.
func (r *Repository) StudentDetails(ctx context.Context, studentID int64) (Student, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT s.id, s.student_code, s.full_name, b.branch_name,
		       s.branch_id, s.program_id, s.joining_year
		FROM students s
		JOIN branches b ON s.branch_id = b.id
		WHERE s.id = $1
	`, studentID)
	var s Student
	err := row.Scan(&s.ID, &s.StudentCode, &s.FullName, &s.Branch, &s.BranchID, &s.ProgramID, &s.JoiningYear)
	if errors.Is(err, sql.ErrNoRows) {
		return Student{}, ErrStudentNotFound
	}
	return s, err
}

// UpdateStudent rewrites a student's profile and keeps the login username in
// step with the student code, since students sign in with their code.
func (r *Repository) UpdateStudent(ctx context.Context, studentID int64, code, fullName string, branchID, programID int64, joiningYear int) error {
	if code == "" || fullName == "" || branchID == 0 || programID == 0 || joiningYear == 0 {
		return errors.New("all student fields are required")
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var userID sql.NullInt64
	err = tx.QueryRowContext(ctx, `SELECT user_id FROM students WHERE id = $1`, studentID).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrStudentNotFound
	}
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE students
		SET student_code = $1, full_name = $2, branch_id = $3, program_id = $4, joining_year = $5
		WHERE id = $6
	`, code, fullName, branchID, programID, joiningYear, studentID)
	if isUniqueViolation(err) {
		return ErrStudentCodeTaken
	}
	if err != nil {
		return err
	}
	if userID.Valid {
		if _, err := tx.ExecContext(ctx, `UPDATE users SET username = $1 WHERE id = $2`, code, userID.Int64); err != nil {
			if isUniqueViolation(err) {
				return ErrStudentCodeTaken
			}
			return err
		}
	}
	return tx.Commit()
}

// DeleteStudent removes a student profile together with its login account.
// Enrollments, attendance, and grades cascade per the schema.
func (r *Repository) DeleteStudent(ctx context.Context, studentID int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var userID sql.NullInt64
	err = tx.QueryRowContext(ctx, `SELECT user_id FROM students WHERE id = $1`, studentID).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrStudentNotFound
	}
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM students WHERE id = $1`, studentID); err != nil {
		return err
	}
	if userID.Valid {
		if _, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, userID.Int64); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// StudentIDForUser resolves the student profile id behind a user account.
func (r *Repository) StudentIDForUser(ctx context.Context, userID int64) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `SELECT id FROM students WHERE user_id = $1`, userID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, errors.New("no student profile for user")
	}
	return id, err
}
