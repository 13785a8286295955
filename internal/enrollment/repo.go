package enrollment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// Section is a taught instance of a subject in a semester.
type Section struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	SubjectID  int64  `json:"subject_id"`
	Subject    string `json:"subject"`
	TeacherID  int64  `json:"teacher_id"`
	Teacher    string `json:"teacher"`
	SemesterID int64  `json:"semester_id"`
}

// Request is a student's ask to take a subject outside their branch.
type Request struct {
	ID          int64  `json:"id"`
	StudentID   int64  `json:"student_id"`
	StudentCode string `json:"student_code"`
	SubjectID   int64  `json:"subject_id"`
	Subject     string `json:"subject"`
	Reason      string `json:"reason"`
	Status      string `json:"status"`
}

var (
	// ErrAlreadyEnrolled covers both the same section and another section of
	// the same subject in the semester.
	ErrAlreadyEnrolled = errors.New("already enrolled in a section for this subject")
	// ErrDuplicateRequest is returned when a pending or approved request for
	// the subject already exists.
	ErrDuplicateRequest = errors.New("request for this subject already pending or approved")
	// ErrSubjectMismatch is returned when approving into a section that does
	// not teach the requested subject.
	ErrSubjectMismatch = errors.New("section does not teach the requested subject")
)

// Repository persists sections and enrollments in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// CreateSection inserts the section and auto-enrolls every student of the
// subject's branch who is not already enrolled in a section of that subject
// this semester. Returns the new section id and the number auto-enrolled.
func (r *Repository) CreateSection(ctx context.Context, name string, subjectID, teacherID, semesterID int64) (int64, int, error) {
	if name == "" || subjectID == 0 || teacherID == 0 || semesterID == 0 {
		return 0, 0, errors.New("section name, subject, teacher, and semester are required")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, err
	}
	defer tx.Rollback()

	var branchID int64
	if err := tx.QueryRowContext(ctx, `SELECT branch_id FROM subjects WHERE id = $1`, subjectID).Scan(&branchID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, 0, errors.New("subject not linked to any branch")
		}
		return 0, 0, err
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT id FROM students
		WHERE branch_id = $1
		AND id NOT IN (
			SELECT se.student_id
			FROM section_enrollments se
			JOIN sections s ON se.section_id = s.id
			WHERE s.subject_id = $2 AND se.semester_id = $3
		)
	`, branchID, subjectID, semesterID)
	if err != nil {
		return 0, 0, err
	}
	var studentIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, 0, err
		}
		studentIDs = append(studentIDs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, 0, err
	}

	var sectionID int64
	if err := tx.QueryRowContext(ctx, `
		INSERT INTO sections (section_name, subject_id, teacher_id, semester_id)
		VALUES ($1, $2, $3, $4) RETURNING id
	`, name, subjectID, teacherID, semesterID).Scan(&sectionID); err != nil {
		return 0, 0, err
	}

	if len(studentIDs) > 0 {
		var (
			values []string
			args   []any
		)
		for _, studentID := range studentIDs {
			n := len(args)
			values = append(values, fmt.Sprintf("($%d,$%d,$%d)", n+1, n+2, n+3))
			args = append(args, sectionID, studentID, semesterID)
		}
		query := `INSERT INTO section_enrollments (section_id, student_id, semester_id) VALUES ` +
			strings.Join(values, ",")
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return 0, 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, err
	}
	return sectionID, len(studentIDs), nil
}

// DeleteSection removes a section; enrollments, schedule entries, sessions,
// and marks cascade per the schema.
func (r *Repository) DeleteSection(ctx context.Context, sectionID int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sections WHERE id = $1`, sectionID)
	return err
}

// SectionsForSemester lists every section in a semester.
func (r *Repository) SectionsForSemester(ctx context.Context, semesterID int64) ([]Section, error) {
	return r.querySections(ctx, `
		SELECT s.id, s.section_name, s.subject_id, sub.subject_name, s.teacher_id, u.username, s.semester_id
		FROM sections s
		JOIN subjects sub ON s.subject_id = sub.id
		JOIN users u ON s.teacher_id = u.id
		WHERE s.semester_id = $1
		ORDER BY sub.subject_name, s.section_name
	`, semesterID)
}

// SectionsForTeacher lists the sections a teacher runs this semester.
func (r *Repository) SectionsForTeacher(ctx context.Context, teacherID, semesterID int64) ([]Section, error) {
	return r.querySections(ctx, `
		SELECT s.id, s.section_name, s.subject_id, sub.subject_name, s.teacher_id, u.username, s.semester_id
		FROM sections s
		JOIN subjects sub ON s.subject_id = sub.id
		JOIN users u ON s.teacher_id = u.id
		WHERE s.teacher_id = $1 AND s.semester_id = $2
		ORDER BY sub.subject_name, s.section_name
	`, teacherID, semesterID)
}

// SectionsForStudent lists the sections a student is enrolled in.
func (r *Repository) SectionsForStudent(ctx context.Context, studentID, semesterID int64) ([]Section, error) {
	return r.querySections(ctx, `
		SELECT s.id, s.section_name, s.subject_id, sub.subject_name, s.teacher_id, u.username, s.semester_id
		FROM section_enrollments se
		JOIN sections s ON se.section_id = s.id
		JOIN subjects sub ON s.subject_id = sub.id
		JOIN users u ON s.teacher_id = u.id
		WHERE se.student_id = $1 AND se.semester_id = $2
		ORDER BY sub.subject_name, s.section_name
	`, studentID, semesterID)
}

// OwnsSection reports whether the teacher runs the section.
func (r *Repository) OwnsSection(ctx context.Context, teacherID, sectionID int64) (bool, error) {
	var ok bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM sections WHERE id = $1 AND teacher_id = $2)
	`, sectionID, teacherID).Scan(&ok)
	return ok, err
}

// AvailableSections lists sections of the student's branch subjects they are
// not yet enrolled in this semester.
func (r *Repository) AvailableSections(ctx context.Context, studentID, branchID, semesterID int64) ([]Section, error) {
	return r.querySections(ctx, `
		SELECT s.id, s.section_name, s.subject_id, sub.subject_name, s.teacher_id, u.username, s.semester_id
		FROM sections s
		JOIN subjects sub ON s.subject_id = sub.id
		JOIN users u ON s.teacher_id = u.id
		WHERE s.semester_id = $1
		AND sub.branch_id = $2
		AND sub.id NOT IN (
			SELECT s_in.subject_id
			FROM section_enrollments se_in
			JOIN sections s_in ON se_in.section_id = s_in.id
			WHERE se_in.student_id = $3 AND se_in.semester_id = $1
		)
		ORDER BY sub.subject_name, s.section_name
	`, semesterID, branchID, studentID)
}

// SelfEnroll adds the student to a section, refusing a second section of the
// same subject.
func (r *Repository) SelfEnroll(ctx context.Context, studentID, sectionID, semesterID int64) error {
	var taken bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM section_enrollments se
			JOIN sections s ON se.section_id = s.id
			WHERE se.student_id = $1 AND se.semester_id = $2
			AND s.subject_id = (SELECT subject_id FROM sections WHERE id = $3)
		)
	`, studentID, semesterID, sectionID).Scan(&taken)
	if err != nil {
		return err
	}
	if taken {
		return ErrAlreadyEnrolled
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO section_enrollments (section_id, student_id, semester_id)
		VALUES ($1, $2, $3)
	`, sectionID, studentID, semesterID)
	if isUniqueViolation(err) {
		return ErrAlreadyEnrolled
	}
	return err
}

// ReplaceEnrollments is the admin override: the section's roster becomes
// exactly the given students.
func (r *Repository) ReplaceEnrollments(ctx context.Context, sectionID, semesterID int64, studentIDs []int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM section_enrollments WHERE section_id = $1`, sectionID); err != nil {
		return err
	}
	if len(studentIDs) > 0 {
		var (
			values []string
			args   []any
		)
		for _, studentID := range studentIDs {
			n := len(args)
			values = append(values, fmt.Sprintf("($%d,$%d,$%d)", n+1, n+2, n+3))
			args = append(args, sectionID, studentID, semesterID)
		}
		query := `INSERT INTO section_enrollments (section_id, student_id, semester_id) VALUES ` +
			strings.Join(values, ",")
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// SubmitRequest files an off-branch enrollment request.
func (r *Repository) SubmitRequest(ctx context.Context, studentID, subjectID, semesterID int64, reason string) error {
	if studentID == 0 || subjectID == 0 || semesterID == 0 || reason == "" {
		return errors.New("subject and reason are required")
	}
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM enrollment_requests
			WHERE student_id = $1 AND subject_id = $2 AND semester_id = $3
			AND status IN ('Pending', 'Approved')
		)
	`, studentID, subjectID, semesterID).Scan(&exists)
	if err != nil {
		return err
	}
	if exists {
		return ErrDuplicateRequest
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO enrollment_requests (student_id, subject_id, semester_id, reason, status)
		VALUES ($1, $2, $3, $4, 'Pending')
	`, studentID, subjectID, semesterID, reason)
	return err
}

// PendingRequests lists open requests for admin review.
func (r *Repository) PendingRequests(ctx context.Context, semesterID int64) ([]Request, error) {
	return r.queryRequests(ctx, `
		SELECT er.id, er.student_id, s.student_code, er.subject_id, sub.subject_name, er.reason, er.status
		FROM enrollment_requests er
		JOIN students s ON er.student_id = s.id
		JOIN subjects sub ON er.subject_id = sub.id
		WHERE er.semester_id = $1 AND er.status = 'Pending'
		ORDER BY er.id
	`, semesterID)
}

// RequestsForStudent lists a student's own requests, newest first.
func (r *Repository) RequestsForStudent(ctx context.Context, studentID, semesterID int64) ([]Request, error) {
	return r.queryRequests(ctx, `
		SELECT er.id, er.student_id, s.student_code, er.subject_id, sub.subject_name, er.reason, er.status
		FROM enrollment_requests er
		JOIN students s ON er.student_id = s.id
		JOIN subjects sub ON er.subject_id = sub.id
		WHERE er.student_id = $1 AND er.semester_id = $2
		ORDER BY er.id DESC
	`, studentID, semesterID)
}

// ApproveRequest enrolls the requesting student into the chosen section of
// the requested subject and marks the request approved, atomically.
func (r *Repository) ApproveRequest(ctx context.Context, requestID, sectionID int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var studentID, subjectID, semesterID int64
	err = tx.QueryRowContext(ctx, `
		SELECT student_id, subject_id, semester_id
		FROM enrollment_requests WHERE id = $1 AND status = 'Pending'
	`, requestID).Scan(&studentID, &subjectID, &semesterID)
	if errors.Is(err, sql.ErrNoRows) {
		return errors.New("enrollment request not found")
	}
	if err != nil {
		return err
	}

	var sectionSubject int64
	if err := tx.QueryRowContext(ctx, `SELECT subject_id FROM sections WHERE id = $1`, sectionID).Scan(&sectionSubject); err != nil {
		return err
	}
	if sectionSubject != subjectID {
		return ErrSubjectMismatch
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO section_enrollments (section_id, student_id, semester_id)
		VALUES ($1, $2, $3)
	`, sectionID, studentID, semesterID); err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyEnrolled
		}
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE enrollment_requests SET status = 'Approved' WHERE id = $1
	`, requestID); err != nil {
		return err
	}
	return tx.Commit()
}

// RejectRequest resolves a pending request without enrolling.
func (r *Repository) RejectRequest(ctx context.Context, requestID int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE enrollment_requests SET status = 'Rejected' WHERE id = $1 AND status = 'Pending'
	`, requestID)
	return err
}

func (r *Repository) querySections(ctx context.Context, query string, args ...any) ([]Section, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sections []Section
	for rows.Next() {
		var s Section
		if err := rows.Scan(&s.ID, &s.Name, &s.SubjectID, &s.Subject, &s.TeacherID, &s.Teacher, &s.SemesterID); err != nil {
			return nil, err
		}
		sections = append(sections, s)
	}
	return sections, rows.Err()
}

func (r *Repository) queryRequests(ctx context.Context, query string, args ...any) ([]Request, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reqs []Request
	for rows.Next() {
		var req Request
		if err := rows.Scan(&req.ID, &req.StudentID, &req.StudentCode, &req.SubjectID, &req.Subject, &req.Reason, &req.Status); err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}
	return reqs, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
