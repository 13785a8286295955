package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Leave request review states.
const (
	LeavePending  = "Pending"
	LeaveApproved = "Approved"
	LeaveRejected = "Rejected"
)

// ErrDuplicateLeave is returned when a student already has a pending or
// approved request for the date.
var ErrDuplicateLeave = errors.New("leave request already submitted for this date")

// RosterEntry is one student's line on a teacher's daily roster. Status folds
// in leave requests: an approved leave shows as Excused regardless of marks.
type RosterEntry struct {
	StudentID   int64  `json:"student_id"`
	StudentCode string `json:"student_code"`
	Branch      string `json:"branch"`
	Status      string `json:"status"`
}

// LeaveRequest is a student's absence justification for one date.
type LeaveRequest struct {
	ID          int64  `json:"id"`
	StudentID   int64  `json:"student_id"`
	StudentCode string `json:"student_code"`
	Date        string `json:"date"`
	Reason      string `json:"reason"`
	Status      string `json:"status"`
}

// Repository persists attendance marks and leave requests in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Roster returns every enrolled student of the section with their effective
// status for the date. Unmarked students default to Present; pending and
// approved leave requests override marks.
func (r *Repository) Roster(ctx context.Context, sectionID int64, date string) ([]RosterEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		WITH ranked_leaves AS (
			SELECT student_id, status,
			       ROW_NUMBER() OVER (
			           PARTITION BY student_id
			           ORDER BY CASE status WHEN 'Approved' THEN 1 WHEN 'Pending' THEN 2 ELSE 3 END
			       ) AS rn
			FROM leave_requests WHERE date = $1
		)
		SELECT s.id, s.student_code, b.branch_name,
		       CASE
		           WHEN lr.status = 'Approved' THEN 'Excused'
		           WHEN lr.status = 'Pending' THEN 'Pending'
		           ELSE COALESCE(a.status, 'Present')
		       END AS status
		FROM students s
		JOIN section_enrollments se ON s.id = se.student_id
		JOIN branches b ON s.branch_id = b.id
		LEFT JOIN attendance a ON s.id = a.student_id AND a.section_id = $2 AND a.date = $1
		LEFT JOIN ranked_leaves lr ON s.id = lr.student_id AND lr.rn = 1
		WHERE se.section_id = $2
		ORDER BY b.branch_name, s.student_code
	`, date, sectionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roster []RosterEntry
	for rows.Next() {
		var e RosterEntry
		if err := rows.Scan(&e.StudentID, &e.StudentCode, &e.Branch, &e.Status); err != nil {
			return nil, err
		}
		roster = append(roster, e)
	}
	return roster, rows.Err()
}

// SaveMarks replaces the section's marks for the date. Only Present and
// Absent are stored; Excused rows come from approved leave requests at read
// time. The delete and inserts run in one transaction.
func (r *Repository) SaveMarks(ctx context.Context, sectionID, semesterID int64, date string, marks map[int64]string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM attendance WHERE section_id = $1 AND date = $2
	`, sectionID, date); err != nil {
		return err
	}

	var (
		values []string
		args   []any
	)
	for studentID, status := range marks {
		if status != StatusPresent && status != StatusAbsent {
			continue
		}
		n := len(args)
		values = append(values, fmt.Sprintf("($%d,$%d,$%d,$%d,$%d)", n+1, n+2, n+3, n+4, n+5))
		args = append(args, studentID, sectionID, semesterID, date, status)
	}
	if len(values) > 0 {
		query := `INSERT INTO attendance (student_id, section_id, semester_id, date, status) VALUES ` +
			strings.Join(values, ",")
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// MarkedDates lists the dates a section already has marks for.
func (r *Repository) MarkedDates(ctx context.Context, sectionID int64) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT date FROM attendance WHERE section_id = $1 ORDER BY date
	`, sectionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var dates []string
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		dates = append(dates, d.Format("2006-01-02"))
	}
	return dates, rows.Err()
}

// SubmitLeave files a leave request unless one is already pending or approved
// for the date.
func (r *Repository) SubmitLeave(ctx context.Context, studentID, semesterID int64, date, reason string) error {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM leave_requests
			WHERE student_id = $1 AND date = $2 AND status IN ('Pending', 'Approved')
		)
	`, studentID, date).Scan(&exists)
	if err != nil {
		return err
	}
	if exists {
		return ErrDuplicateLeave
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO leave_requests (student_id, semester_id, date, reason, status)
		VALUES ($1, $2, $3, $4, 'Pending')
	`, studentID, semesterID, date, reason)
	return err
}

// PendingLeave lists open requests for admin review.
func (r *Repository) PendingLeave(ctx context.Context, semesterID int64) ([]LeaveRequest, error) {
	return r.queryLeave(ctx, `
		SELECT lr.id, lr.student_id, s.student_code, lr.date, lr.reason, lr.status
		FROM leave_requests lr
		JOIN students s ON lr.student_id = s.id
		WHERE lr.semester_id = $1 AND lr.status = 'Pending'
		ORDER BY lr.date
	`, semesterID)
}

// LeaveForStudent lists a student's requests, newest first.
func (r *Repository) LeaveForStudent(ctx context.Context, studentID, semesterID int64) ([]LeaveRequest, error) {
	return r.queryLeave(ctx, `
		SELECT lr.id, lr.student_id, s.student_code, lr.date, lr.reason, lr.status
		FROM leave_requests lr
		JOIN students s ON lr.student_id = s.id
		WHERE lr.student_id = $1 AND lr.semester_id = $2
		ORDER BY lr.date DESC, lr.id DESC
	`, studentID, semesterID)
}

// ReviewLeave resolves a pending request.
func (r *Repository) ReviewLeave(ctx context.Context, requestID int64, status string) error {
	if status != LeaveApproved && status != LeaveRejected {
		return fmt.Errorf("invalid leave status %q", status)
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE leave_requests SET status = $2 WHERE id = $1
	`, requestID, status)
	return err
}

func (r *Repository) queryLeave(ctx context.Context, query string, args ...any) ([]LeaveRequest, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reqs []LeaveRequest
	for rows.Next() {
		var (
			lr LeaveRequest
			d  time.Time
		)
		if err := rows.Scan(&lr.ID, &lr.StudentID, &lr.StudentCode, &d, &lr.Reason, &lr.Status); err != nil {
			return nil, err
		}
		lr.Date = d.Format("2006-01-02")
		reqs = append(reqs, lr)
	}
	return reqs, rows.Err()
}

// StudentMark is one attendance record in a student's own history.
type StudentMark struct {
	SectionID int64  `json:"section_id"`
	Section   string `json:"section"`
	Subject   string `json:"subject"`
	Date      string `json:"date"`
	Status    string `json:"status"`
}

// HistoryForStudent returns the student's marks across all enrolled sections
// in the semester.
func (r *Repository) HistoryForStudent(ctx context.Context, studentID, semesterID int64) ([]StudentMark, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT a.section_id, sec.section_name, sub.subject_name, a.date, a.status
		FROM attendance a
		JOIN sections sec ON a.section_id = sec.id
		JOIN subjects sub ON sec.subject_id = sub.id
		WHERE a.student_id = $1 AND a.semester_id = $2
		ORDER BY a.date DESC, sub.subject_name
	`, studentID, semesterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var marks []StudentMark
	for rows.Next() {
		var (
			e StudentMark
			d time.Time
		)
		if err := rows.Scan(&e.SectionID, &e.Section, &e.Subject, &d, &e.Status); err != nil {
			return nil, err
		}
		e.Date = d.Format("2006-01-02")
		marks = append(marks, e)
	}
	return marks, rows.Err()
}
