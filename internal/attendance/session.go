package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Attendance statuses stored per student, section, and day.
const (
	StatusPresent = "Present"
	StatusAbsent  = "Absent"
	StatusExcused = "Excused"
)

// Session is one attendance-collection window for a section. At most one
// session per section is active at a time; issuing a new one deactivates the
// rest.
type Session struct {
	ID        int64
	SectionID int64
	Token     string
	CreatedAt time.Time
	ExpiresAt time.Time
	IsActive  bool
}

// Scan records a single redemption of a session token by a student. Unique on
// (session, student).
type Scan struct {
	SessionID int64
	StudentID int64
	ScannedAt time.Time
}

// Mark is the attendance record for a student in a section on one date.
// Unique on (student, section, date).
type Mark struct {
	StudentID int64
	SectionID int64
	Date      string
	Status    string
}

// Outcome classifies the result of a redemption attempt.
type Outcome string

const (
	OutcomeSuccess       Outcome = "success"
	OutcomeAlreadyMarked Outcome = "already_marked"
	OutcomeInvalidToken  Outcome = "invalid_token"
	OutcomeInactive      Outcome = "session_inactive"
	OutcomeExpired       Outcome = "session_expired"
	OutcomeFailed        Outcome = "redemption_failed"
)

// ScanStatus tags the result of a conflict-checked scan insert.
type ScanStatus int

const (
	ScanInserted ScanStatus = iota
	ScanConflict
)

// RedeemResult is what a scanning student sees.
type RedeemResult struct {
	Outcome Outcome `json:"outcome"`
	Message string  `json:"message"`
	// Date and SectionID are set on success: the attendance date that was
	// marked Present and the section it was marked in.
	Date      string `json:"date,omitempty"`
	SectionID int64  `json:"section_id,omitempty"`
	// ExpiredAt is set when the session had already expired.
	ExpiredAt time.Time `json:"expired_at,omitempty"`
}

// SessionStore is the persistence surface the redemption state machine needs.
// RedeemScan must insert the scan record and upsert the Present mark in a
// single transaction: either both persist or neither does.
type SessionStore interface {
	// CreateSession deactivates all active sessions for the section and
	// inserts sess atomically.
	CreateSession(ctx context.Context, sess Session) error
	FindSessionByToken(ctx context.Context, token string) (*Session, error)
	// RedeemScan returns ScanConflict when the student already scanned this
	// session; nothing is written in that case.
	RedeemScan(ctx context.Context, sess Session, studentID int64, date string) (ScanStatus, error)
	DeactivateSession(ctx context.Context, token string) error
}

const (
	minSessionDuration = 1 * time.Minute
	maxSessionDuration = 15 * time.Minute
)

var errBadDuration = fmt.Errorf("session duration must be between %s and %s", minSessionDuration, maxSessionDuration)

// SessionService issues, redeems, and deactivates attendance sessions.
type SessionService struct {
	store           SessionStore
	defaultDuration time.Duration
	now             func() time.Time
}

// NewSessionService creates a service backed by a session store. The default
// duration is used when callers pass zero; it must fall inside the allowed
// 1–15 minute window.
func NewSessionService(store SessionStore, defaultDuration time.Duration) *SessionService {
	if defaultDuration < minSessionDuration || defaultDuration > maxSessionDuration {
		defaultDuration = 5 * time.Minute
	}
	return &SessionService{
		store:           store,
		defaultDuration: defaultDuration,
		now:             time.Now,
	}
}

// IssueSession opens a fresh attendance window for the section and returns the
// token to encode into a displayable code. Any previously active session for
// the section is deactivated in the same transaction.
func (s *SessionService) IssueSession(ctx context.Context, sectionID int64, duration time.Duration) (string, error) {
	if sectionID <= 0 {
		return "", errors.New("section id required")
	}
	if duration == 0 {
		duration = s.defaultDuration
	}
	if duration < minSessionDuration || duration > maxSessionDuration {
		return "", errBadDuration
	}

	now := s.now().UTC()
	sess := Session{
		SectionID: sectionID,
		Token:     uuid.NewString(),
		CreatedAt: now,
		ExpiresAt: now.Add(duration),
		IsActive:  true,
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return "", err
	}
	sessionsIssued.Inc()
	return sess.Token, nil
}

// Redeem runs the redemption state machine for one scanned token.
//
// The session status checks run against a committed read; a session
// deactivated between that read and the scan insert may still redeem, which is
// the documented read-committed race. The scan insert and mark upsert
// themselves are atomic, so a redemption is never half-applied.
func (s *SessionService) Redeem(ctx context.Context, token string, studentID int64) RedeemResult {
	if token == "" || studentID <= 0 {
		return result(OutcomeInvalidToken, "A session token and student are required.")
	}

	sess, err := s.store.FindSessionByToken(ctx, token)
	if err != nil {
		return result(OutcomeFailed, "An unexpected error occurred. Please try again.")
	}
	if sess == nil {
		return result(OutcomeInvalidToken, "Invalid code. This session does not exist.")
	}
	if !sess.IsActive {
		return result(OutcomeInactive, "This attendance session is no longer active.")
	}
	now := s.now()
	if now.After(sess.ExpiresAt) {
		res := result(OutcomeExpired, fmt.Sprintf("Code has expired. This session ended at %s.", sess.ExpiresAt.Format("15:04:05")))
		res.ExpiredAt = sess.ExpiresAt
		return res
	}

	// The attendance date is derived from the scan's wall clock, not the
	// session's creation date. A session straddling midnight marks the
	// following day.
	date := now.Format("2006-01-02")

	status, err := s.store.RedeemScan(ctx, *sess, studentID, date)
	if err != nil {
		return result(OutcomeFailed, "Failed to save attendance. Please contact your teacher.")
	}
	if status == ScanConflict {
		return result(OutcomeAlreadyMarked, "Attendance already marked for this session.")
	}

	res := result(OutcomeSuccess, fmt.Sprintf("Attendance marked for %s.", date))
	res.Date = date
	res.SectionID = sess.SectionID
	return res
}

// Lookup resolves a token to its session, or nil when the token is unknown.
// Callers use it to verify a session exists and which section it belongs to
// before acting on it.
func (s *SessionService) Lookup(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, nil
	}
	return s.store.FindSessionByToken(ctx, token)
}

// Deactivate closes a session early. Recorded scans and marks are untouched.
func (s *SessionService) Deactivate(ctx context.Context, token string) error {
	if token == "" {
		return errors.New("session token required")
	}
	return s.store.DeactivateSession(ctx, token)
}

func result(outcome Outcome, message string) RedeemResult {
	redemptions.WithLabelValues(string(outcome)).Inc()
	return RedeemResult{Outcome: outcome, Message: message}
}
