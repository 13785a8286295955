package grades

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// GradeType is an admin-managed category such as Quiz or Midterm.
type GradeType struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Item is an assessed piece of work within a section.
type Item struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	MaxMarks  float64 `json:"max_marks"`
	SectionID int64   `json:"section_id"`
	TypeID    int64   `json:"type_id"`
	TypeName  string  `json:"type_name"`
}

// Entry is one student's marks for one item. Marks is nil until graded.
type Entry struct {
	StudentID   int64    `json:"student_id"`
	StudentCode string   `json:"student_code"`
	Marks       *float64 `json:"marks"`
}

// SummaryRow is one line of a student's own grade report.
type SummaryRow struct {
	Subject  string   `json:"subject"`
	Item     string   `json:"item"`
	Type     string   `json:"type"`
	MaxMarks float64  `json:"max_marks"`
	Marks    *float64 `json:"marks"`
}

var (
	// ErrTypeExists is returned on a duplicate grade type name.
	ErrTypeExists = errors.New("grade type already exists")
	// ErrTypeInUse is returned when deleting a type referenced by an item.
	ErrTypeInUse = errors.New("grade type is in use by a grade item")
)

// Repository persists grade types, items, and marks in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Types lists all grade types.
func (r *Repository) Types(ctx context.Context) ([]GradeType, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, type_name FROM grade_types ORDER BY type_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var types []GradeType
	for rows.Next() {
		var gt GradeType
		if err := rows.Scan(&gt.ID, &gt.Name); err != nil {
			return nil, err
		}
		types = append(types, gt)
	}
	return types, rows.Err()
}

// AddType creates a grade type.
func (r *Repository) AddType(ctx context.Context, name string) error {
	if name == "" {
		return errors.New("grade type name required")
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO grade_types (type_name) VALUES ($1)`, name)
	if isUniqueViolation(err) {
		return ErrTypeExists
	}
	return err
}

// DeleteType removes a grade type unless an item references it.
func (r *Repository) DeleteType(ctx context.Context, typeID int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM grade_types WHERE id = $1`, typeID)
	if isForeignKeyViolation(err) {
		return ErrTypeInUse
	}
	return err
}

// AddItem creates an assessed item for a section.
func (r *Repository) AddItem(ctx context.Context, name string, maxMarks float64, sectionID, typeID int64) (int64, error) {
	if name == "" || sectionID == 0 || typeID == 0 {
		return 0, errors.New("item name, section, and type are required")
	}
	if maxMarks <= 0 {
		return 0, errors.New("max marks must be greater than zero")
	}
	var id int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO grade_items (item_name, max_marks, section_id, grade_type_id)
		VALUES ($1, $2, $3, $4) RETURNING id
	`, name, maxMarks, sectionID, typeID).Scan(&id)
	return id, err
}

// DeleteItem removes an item; recorded marks cascade.
func (r *Repository) DeleteItem(ctx context.Context, itemID int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM grade_items WHERE id = $1`, itemID)
	return err
}

// ItemsForSection lists the section's assessed items.
func (r *Repository) ItemsForSection(ctx context.Context, sectionID int64) ([]Item, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT gi.id, gi.item_name, gi.max_marks, gi.section_id, gi.grade_type_id, gt.type_name
		FROM grade_items gi
		JOIN grade_types gt ON gi.grade_type_id = gt.id
		WHERE gi.section_id = $1
		ORDER BY gt.type_name, gi.item_name
	`, sectionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.Name, &it.MaxMarks, &it.SectionID, &it.TypeID, &it.TypeName); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// RosterForItem lists the section's students with their marks for the item,
// ungraded students included.
func (r *Repository) RosterForItem(ctx context.Context, sectionID, itemID int64) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT s.id, s.student_code, sg.marks_obtained
		FROM students s
		JOIN section_enrollments se ON s.id = se.student_id
		LEFT JOIN student_grades sg ON s.id = sg.student_id AND sg.grade_item_id = $2
		WHERE se.section_id = $1
		ORDER BY s.student_code
	`, sectionID, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.StudentID, &e.StudentCode, &e.Marks); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// SaveMarks upserts marks on (student, item). Missing entries are left alone;
// a re-submitted mark overwrites.
func (r *Repository) SaveMarks(ctx context.Context, itemID int64, marks map[int64]float64) error {
	if len(marks) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO student_grades (student_id, grade_item_id, marks_obtained)
		VALUES ($1, $2, $3)
		ON CONFLICT (student_id, grade_item_id) DO UPDATE SET marks_obtained = EXCLUDED.marks_obtained
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for studentID, obtained := range marks {
		if _, err := stmt.ExecContext(ctx, studentID, itemID, obtained); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// SummaryForStudent returns every item across the student's enrolled sections
// with marks where graded.
func (r *Repository) SummaryForStudent(ctx context.Context, studentID, semesterID int64) ([]SummaryRow, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT sub.subject_name, gi.item_name, gt.type_name, gi.max_marks, sg.marks_obtained
		FROM subjects sub
		JOIN sections sec ON sub.id = sec.subject_id
		JOIN section_enrollments se ON sec.id = se.section_id
		JOIN grade_items gi ON sec.id = gi.section_id
		JOIN grade_types gt ON gi.grade_type_id = gt.id
		LEFT JOIN student_grades sg ON gi.id = sg.grade_item_id AND sg.student_id = se.student_id
		WHERE se.student_id = $1 AND se.semester_id = $2
		ORDER BY sub.subject_name, gt.type_name, gi.item_name
	`, studentID, semesterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summary []SummaryRow
	for rows.Next() {
		var row SummaryRow
		if err := rows.Scan(&row.Subject, &row.Item, &row.Type, &row.MaxMarks, &row.Marks); err != nil {
			return nil, err
		}
		summary = append(summary, row)
	}
	return summary, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
