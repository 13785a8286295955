package main

import (
	"context"
	"log"
	"time"

	"classtrack/internal/auth"
	"classtrack/internal/config"
	"classtrack/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS semesters (
	id             BIGSERIAL PRIMARY KEY,
	semester_name  TEXT NOT NULL UNIQUE,
	start_date     DATE NOT NULL,
	end_date       DATE NOT NULL,
	is_active      BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS users (
	id        BIGSERIAL PRIMARY KEY,
	username  TEXT NOT NULL UNIQUE,
	password  TEXT NOT NULL,
	role      TEXT NOT NULL CHECK (role IN ('admin', 'teacher', 'student')),
	email     TEXT UNIQUE
);

CREATE TABLE IF NOT EXISTS levels_of_study (
	id          BIGSERIAL PRIMARY KEY,
	level_name  TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS programs (
	id            BIGSERIAL PRIMARY KEY,
	level_id      BIGINT NOT NULL REFERENCES levels_of_study(id),
	program_name  TEXT NOT NULL,
	program_code  TEXT NOT NULL,
	UNIQUE (level_id, program_code)
);

CREATE TABLE IF NOT EXISTS branches (
	id           BIGSERIAL PRIMARY KEY,
	program_id   BIGINT NOT NULL REFERENCES programs(id),
	branch_name  TEXT NOT NULL,
	branch_code  TEXT NOT NULL,
	UNIQUE (program_id, branch_code)
);

CREATE TABLE IF NOT EXISTS subjects (
	id               BIGSERIAL PRIMARY KEY,
	branch_id        BIGINT NOT NULL REFERENCES branches(id),
	subject_name     TEXT NOT NULL,
	semester_number  INT NOT NULL DEFAULT 1,
	UNIQUE (branch_id, subject_name)
);

CREATE TABLE IF NOT EXISTS students (
	id            BIGSERIAL PRIMARY KEY,
	student_code  TEXT NOT NULL UNIQUE,
	full_name     TEXT NOT NULL,
	user_id       BIGINT NOT NULL UNIQUE REFERENCES users(id) ON DELETE CASCADE,
	branch_id     BIGINT NOT NULL REFERENCES branches(id),
	program_id    BIGINT NOT NULL REFERENCES programs(id),
	joining_year  INT NOT NULL
);

CREATE TABLE IF NOT EXISTS registration_requests (
	id                    BIGSERIAL PRIMARY KEY,
	full_name             TEXT NOT NULL,
	email                 TEXT UNIQUE,
	password              TEXT NOT NULL,
	requested_level_id    BIGINT NOT NULL REFERENCES levels_of_study(id),
	requested_program_id  BIGINT NOT NULL REFERENCES programs(id),
	requested_branch_id   BIGINT NOT NULL REFERENCES branches(id),
	status                TEXT NOT NULL DEFAULT 'Pending'
);

CREATE TABLE IF NOT EXISTS sections (
	id            BIGSERIAL PRIMARY KEY,
	section_name  TEXT NOT NULL,
	subject_id    BIGINT NOT NULL REFERENCES subjects(id),
	teacher_id    BIGINT NOT NULL REFERENCES users(id),
	semester_id   BIGINT NOT NULL REFERENCES semesters(id)
);

CREATE TABLE IF NOT EXISTS section_enrollments (
	id           BIGSERIAL PRIMARY KEY,
	section_id   BIGINT NOT NULL REFERENCES sections(id) ON DELETE CASCADE,
	student_id   BIGINT NOT NULL REFERENCES students(id) ON DELETE CASCADE,
	semester_id  BIGINT NOT NULL REFERENCES semesters(id),
	UNIQUE (section_id, student_id)
);

CREATE TABLE IF NOT EXISTS enrollment_requests (
	id           BIGSERIAL PRIMARY KEY,
	student_id   BIGINT NOT NULL REFERENCES students(id) ON DELETE CASCADE,
	subject_id   BIGINT NOT NULL REFERENCES subjects(id),
	semester_id  BIGINT NOT NULL REFERENCES semesters(id),
	reason       TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL DEFAULT 'Pending'
);

CREATE TABLE IF NOT EXISTS days_of_week (
	id        BIGSERIAL PRIMARY KEY,
	day_name  TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS time_slots (
	id          BIGSERIAL PRIMARY KEY,
	slot_name   TEXT NOT NULL,
	start_time  TIME NOT NULL,
	end_time    TIME NOT NULL,
	UNIQUE (start_time, end_time)
);

CREATE TABLE IF NOT EXISTS class_schedule (
	id          BIGSERIAL PRIMARY KEY,
	section_id  BIGINT NOT NULL REFERENCES sections(id) ON DELETE CASCADE,
	day_id      BIGINT NOT NULL REFERENCES days_of_week(id),
	slot_id     BIGINT NOT NULL REFERENCES time_slots(id),
	UNIQUE (section_id, day_id, slot_id)
);

CREATE TABLE IF NOT EXISTS attendance (
	id           BIGSERIAL PRIMARY KEY,
	student_id   BIGINT NOT NULL REFERENCES students(id) ON DELETE CASCADE,
	section_id   BIGINT NOT NULL REFERENCES sections(id) ON DELETE CASCADE,
	semester_id  BIGINT NOT NULL REFERENCES semesters(id),
	date         DATE NOT NULL,
	status       TEXT NOT NULL CHECK (status IN ('Present', 'Absent', 'Excused')),
	UNIQUE (student_id, section_id, date)
);

CREATE TABLE IF NOT EXISTS leave_requests (
	id           BIGSERIAL PRIMARY KEY,
	student_id   BIGINT NOT NULL REFERENCES students(id) ON DELETE CASCADE,
	semester_id  BIGINT NOT NULL REFERENCES semesters(id),
	date         DATE NOT NULL,
	reason       TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'Pending'
);

CREATE TABLE IF NOT EXISTS grade_types (
	id         BIGSERIAL PRIMARY KEY,
	type_name  TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS grade_items (
	id             BIGSERIAL PRIMARY KEY,
	item_name      TEXT NOT NULL,
	max_marks      NUMERIC(7,2) NOT NULL CHECK (max_marks > 0),
	section_id     BIGINT NOT NULL REFERENCES sections(id) ON DELETE CASCADE,
	grade_type_id  BIGINT NOT NULL REFERENCES grade_types(id)
);

CREATE TABLE IF NOT EXISTS student_grades (
	id              BIGSERIAL PRIMARY KEY,
	student_id      BIGINT NOT NULL REFERENCES students(id) ON DELETE CASCADE,
	grade_item_id   BIGINT NOT NULL REFERENCES grade_items(id) ON DELETE CASCADE,
	marks_obtained  NUMERIC(7,2) NOT NULL,
	UNIQUE (student_id, grade_item_id)
);

CREATE TABLE IF NOT EXISTS attendance_sessions (
	id          BIGSERIAL PRIMARY KEY,
	section_id  BIGINT NOT NULL REFERENCES sections(id) ON DELETE CASCADE,
	token       TEXT NOT NULL UNIQUE,
	created_at  TIMESTAMPTZ NOT NULL,
	expires_at  TIMESTAMPTZ NOT NULL,
	is_active   BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS attendance_scans (
	id          BIGSERIAL PRIMARY KEY,
	session_id  BIGINT NOT NULL REFERENCES attendance_sessions(id) ON DELETE CASCADE,
	student_id  BIGINT NOT NULL REFERENCES students(id) ON DELETE CASCADE,
	scanned_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (session_id, student_id)
);

CREATE INDEX IF NOT EXISTS idx_attendance_section_date ON attendance(section_id, date);
CREATE INDEX IF NOT EXISTS idx_sessions_section_active ON attendance_sessions(section_id) WHERE is_active;
CREATE INDEX IF NOT EXISTS idx_enrollments_student ON section_enrollments(student_id);
CREATE INDEX IF NOT EXISTS idx_grades_student ON student_grades(student_id);
`

// Setup creates the schema and seeds the fixed reference rows: weekdays, time
// slots, default grade types, and the bootstrap admin account.
func main() {
	cfg := config.Load()

	db, err := store.NewDB(cfg.DatabaseURL, store.PoolOptions{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnLifetime,
	})
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	if _, err := db.Client.ExecContext(ctx, schema); err != nil {
		log.Fatalf("schema create failed: %v", err)
	}
	log.Println("schema created")

	seed(ctx, db)
	log.Println("setup complete")
}

func seed(ctx context.Context, db *store.DB) {
	for _, day := range []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"} {
		mustExec(ctx, db, `INSERT INTO days_of_week (day_name) VALUES ($1) ON CONFLICT (day_name) DO NOTHING`, day)
	}

	slots := [][3]string{
		{"Period 1", "09:00", "10:00"},
		{"Period 2", "10:00", "11:00"},
		{"Period 3", "11:15", "12:15"},
		{"Period 4", "12:15", "13:15"},
		{"Period 5", "14:00", "15:00"},
		{"Period 6", "15:00", "16:00"},
	}
	for _, s := range slots {
		mustExec(ctx, db, `
			INSERT INTO time_slots (slot_name, start_time, end_time)
			VALUES ($1, $2, $3) ON CONFLICT (start_time, end_time) DO NOTHING
		`, s[0], s[1], s[2])
	}

	for _, gt := range []string{"Quiz", "Assignment", "Midterm", "Final"} {
		mustExec(ctx, db, `INSERT INTO grade_types (type_name) VALUES ($1) ON CONFLICT (type_name) DO NOTHING`, gt)
	}

	hash, err := auth.HashPassword("changeme-now")
	if err != nil {
		log.Fatalf("hash admin password: %v", err)
	}
	mustExec(ctx, db, `INSERT INTO users (username, password, role) VALUES ('admin', $1, 'admin') ON CONFLICT (username) DO NOTHING`, hash)
	log.Println("seeded reference data and admin user (password: changeme-now)")
}

func mustExec(ctx context.Context, db *store.DB, query string, args ...any) {
	if _, err := db.Client.ExecContext(ctx, query, args...); err != nil {
		log.Fatalf("seed failed: %v\n  query: %s", err, query)
	}
}
