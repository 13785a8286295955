package schedule

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// Slot is a named teaching period.
type Slot struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Start string `json:"start"`
	End   string `json:"end"`
}

// Entry places a section into a weekly day/slot grid cell.
type Entry struct {
	ID      int64  `json:"id"`
	Day     string `json:"day"`
	Slot    string `json:"slot"`
	Start   string `json:"start"`
	End     string `json:"end"`
	Section string `json:"section,omitempty"`
	Subject string `json:"subject,omitempty"`
	Teacher string `json:"teacher,omitempty"`
}

// ErrSlotTaken is returned when the section already occupies the day/slot.
var ErrSlotTaken = errors.New("schedule slot already exists for this section")

// Repository persists the weekly timetable in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Days lists the days of the week in order.
func (r *Repository) Days(ctx context.Context) (map[int64]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, day_name FROM days_of_week ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	days := make(map[int64]string)
	for rows.Next() {
		var (
			id   int64
			name string
		)
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		days[id] = name
	}
	return days, rows.Err()
}

// Slots lists the teaching periods ordered by start time.
func (r *Repository) Slots(ctx context.Context) ([]Slot, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, slot_name, start_time::text, end_time::text
		FROM time_slots ORDER BY start_time
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var slots []Slot
	for rows.Next() {
		var s Slot
		if err := rows.Scan(&s.ID, &s.Name, &s.Start, &s.End); err != nil {
			return nil, err
		}
		slots = append(slots, s)
	}
	return slots, rows.Err()
}

// AddEntry places a section into a day/slot cell.
func (r *Repository) AddEntry(ctx context.Context, sectionID, dayID, slotID int64) error {
	if sectionID == 0 || dayID == 0 || slotID == 0 {
		return errors.New("section, day, and slot are required")
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO class_schedule (section_id, day_id, slot_id) VALUES ($1, $2, $3)
	`, sectionID, dayID, slotID)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrSlotTaken
	}
	return err
}

// RemoveEntry deletes a timetable cell by id.
func (r *Repository) RemoveEntry(ctx context.Context, entryID int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM class_schedule WHERE id = $1`, entryID)
	return err
}

// ForSection returns the section's weekly slots.
func (r *Repository) ForSection(ctx context.Context, sectionID int64) ([]Entry, error) {
	return r.queryEntries(ctx, `
		SELECT cs.id, d.day_name, t.slot_name, t.start_time::text, t.end_time::text, '', '', ''
		FROM class_schedule cs
		JOIN days_of_week d ON cs.day_id = d.id
		JOIN time_slots t ON cs.slot_id = t.id
		WHERE cs.section_id = $1
		ORDER BY d.id, t.start_time
	`, sectionID)
}

// ForTeacher returns a teacher's full weekly timetable.
func (r *Repository) ForTeacher(ctx context.Context, teacherID, semesterID int64) ([]Entry, error) {
	return r.queryEntries(ctx, `
		SELECT cs.id, d.day_name, t.slot_name, t.start_time::text, t.end_time::text,
		       sec.section_name, sub.subject_name, ''
		FROM class_schedule cs
		JOIN sections sec ON cs.section_id = sec.id
		JOIN subjects sub ON sec.subject_id = sub.id
		JOIN days_of_week d ON cs.day_id = d.id
		JOIN time_slots t ON cs.slot_id = t.id
		WHERE sec.teacher_id = $1 AND sec.semester_id = $2
		ORDER BY d.id, t.start_time
	`, teacherID, semesterID)
}

// ForStudent returns a student's full weekly timetable.
func (r *Repository) ForStudent(ctx context.Context, studentID, semesterID int64) ([]Entry, error) {
	return r.queryEntries(ctx, `
		SELECT cs.id, d.day_name, t.slot_name, t.start_time::text, t.end_time::text,
		       sec.section_name, sub.subject_name, u.username
		FROM class_schedule cs
		JOIN sections sec ON cs.section_id = sec.id
		JOIN subjects sub ON sec.subject_id = sub.id
		JOIN users u ON sec.teacher_id = u.id
		JOIN days_of_week d ON cs.day_id = d.id
		JOIN time_slots t ON cs.slot_id = t.id
		JOIN section_enrollments se ON sec.id = se.section_id
		WHERE se.student_id = $1 AND se.semester_id = $2
		ORDER BY d.id, t.start_time
	`, studentID, semesterID)
}

func (r *Repository) queryEntries(ctx context.Context, query string, args ...any) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Day, &e.Slot, &e.Start, &e.End, &e.Section, &e.Subject, &e.Teacher); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
