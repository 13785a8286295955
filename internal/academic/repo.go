package academic

import (
	"context"
	"database/sql"
	"errors"
)

// Level is a level of study (e.g. Undergraduate). Levels own programs,
// programs own branches, branches own subjects.
type Level struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Program belongs to a level. The code feeds generated student IDs.
type Program struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Code    string `json:"code"`
	LevelID int64  `json:"level_id"`
}

// Branch belongs to a program.
type Branch struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Code      string `json:"code"`
	ProgramID int64  `json:"program_id"`
}

// Subject is taught within a branch during a numbered semester.
type Subject struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	BranchID       int64  `json:"branch_id"`
	SemesterNumber int    `json:"semester_number"`
}

// Semester is an academic term. Exactly one is active at a time.
type Semester struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	IsActive  bool   `json:"is_active"`
}

// Structure is the full public hierarchy shown on the registration form.
type Structure struct {
	Levels   []Level   `json:"levels"`
	Programs []Program `json:"programs"`
	Branches []Branch  `json:"branches"`
}

// ErrNoActiveSemester is returned when no semester is flagged active.
var ErrNoActiveSemester = errors.New("no active semester")

// Repository reads the academic hierarchy. The hierarchy itself is managed
// out of band; this service only consumes it.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// ActiveSemester returns the currently active term.
func (r *Repository) ActiveSemester(ctx context.Context) (Semester, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, semester_name, start_date::text, end_date::text, is_active
		FROM semesters WHERE is_active = TRUE
	`)
	var sem Semester
	if err := row.Scan(&sem.ID, &sem.Name, &sem.StartDate, &sem.EndDate, &sem.IsActive); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Semester{}, ErrNoActiveSemester
		}
		return Semester{}, err
	}
	return sem, nil
}

// Structure loads the complete level/program/branch hierarchy.
func (r *Repository) Structure(ctx context.Context) (Structure, error) {
	var st Structure

	rows, err := r.db.QueryContext(ctx, `SELECT id, level_name FROM levels_of_study ORDER BY level_name`)
	if err != nil {
		return st, err
	}
	defer rows.Close()
	for rows.Next() {
		var l Level
		if err := rows.Scan(&l.ID, &l.Name); err != nil {
			return st, err
		}
		st.Levels = append(st.Levels, l)
	}
	if err := rows.Err(); err != nil {
		return st, err
	}

	rows, err = r.db.QueryContext(ctx, `SELECT id, program_name, program_code, level_id FROM programs ORDER BY program_name`)
	if err != nil {
		return st, err
	}
	defer rows.Close()
	for rows.Next() {
		var p Program
		if err := rows.Scan(&p.ID, &p.Name, &p.Code, &p.LevelID); err != nil {
			return st, err
		}
		st.Programs = append(st.Programs, p)
	}
	if err := rows.Err(); err != nil {
		return st, err
	}

	rows, err = r.db.QueryContext(ctx, `SELECT id, branch_name, branch_code, program_id FROM branches ORDER BY branch_name`)
	if err != nil {
		return st, err
	}
	defer rows.Close()
	for rows.Next() {
		var b Branch
		if err := rows.Scan(&b.ID, &b.Name, &b.Code, &b.ProgramID); err != nil {
			return st, err
		}
		st.Branches = append(st.Branches, b)
	}
	return st, rows.Err()
}

// SubjectsForBranch lists the subjects a branch teaches.
func (r *Repository) SubjectsForBranch(ctx context.Context, branchID int64) ([]Subject, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, subject_name, branch_id, semester_number
		FROM subjects WHERE branch_id = $1
		ORDER BY semester_number, subject_name
	`, branchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subjects []Subject
	for rows.Next() {
		var s Subject
		if err := rows.Scan(&s.ID, &s.Name, &s.BranchID, &s.SemesterNumber); err != nil {
			return nil, err
		}
		subjects = append(subjects, s)
	}
	return subjects, rows.Err()
}
