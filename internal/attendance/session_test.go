package attendance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory SessionStore mirroring the uniqueness constraints
// the database enforces.
type fakeStore struct {
	mu       sync.Mutex
	nextID   int64
	sessions map[string]*Session          // by token
	scans    map[int64]map[int64]struct{} // session id -> student ids
	marks    map[string]Mark              // student/section/date
	failFind bool
	failScan bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sessions: make(map[string]*Session),
		scans:    make(map[int64]map[int64]struct{}),
		marks:    make(map[string]Mark),
	}
}

func (f *fakeStore) CreateSession(_ context.Context, sess Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.SectionID == sess.SectionID {
			s.IsActive = false
		}
	}
	f.nextID++
	sess.ID = f.nextID
	f.sessions[sess.Token] = &sess
	return nil
}

func (f *fakeStore) FindSessionByToken(_ context.Context, token string) (*Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFind {
		return nil, errors.New("store down")
	}
	sess, ok := f.sessions[token]
	if !ok {
		return nil, nil
	}
	cp := *sess
	return &cp, nil
}

func (f *fakeStore) RedeemScan(_ context.Context, sess Session, studentID int64, date string) (ScanStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failScan {
		return ScanConflict, errors.New("store down")
	}
	if _, ok := f.scans[sess.ID]; !ok {
		f.scans[sess.ID] = make(map[int64]struct{})
	}
	if _, dup := f.scans[sess.ID][studentID]; dup {
		return ScanConflict, nil
	}
	f.scans[sess.ID][studentID] = struct{}{}
	key := fmt.Sprintf("%d/%d/%s", studentID, sess.SectionID, date)
	f.marks[key] = Mark{StudentID: studentID, SectionID: sess.SectionID, Date: date, Status: StatusPresent}
	return ScanInserted, nil
}

func (f *fakeStore) DeactivateSession(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sess, ok := f.sessions[token]; ok {
		sess.IsActive = false
	}
	return nil
}

func (f *fakeStore) activeCount(sectionID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.sessions {
		if s.SectionID == sectionID && s.IsActive {
			n++
		}
	}
	return n
}

func newTestService(store *fakeStore) *SessionService {
	return NewSessionService(store, 5*time.Minute)
}

func TestIssueSessionSingleActivePerSection(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc := newTestService(store)

	tok1, err := svc.IssueSession(ctx, 7, 0)
	require.NoError(t, err)
	tok2, err := svc.IssueSession(ctx, 7, 10*time.Minute)
	require.NoError(t, err)

	assert.NotEqual(t, tok1, tok2)
	assert.Equal(t, 1, store.activeCount(7))
	assert.False(t, store.sessions[tok1].IsActive)
	assert.True(t, store.sessions[tok2].IsActive)
}

func TestIssueSessionValidation(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(newFakeStore())

	tests := []struct {
		name      string
		sectionID int64
		duration  time.Duration
		wantErr   bool
	}{
		{name: "missing section", sectionID: 0, duration: 5 * time.Minute, wantErr: true},
		{name: "too short", sectionID: 1, duration: 30 * time.Second, wantErr: true},
		{name: "too long", sectionID: 1, duration: 20 * time.Minute, wantErr: true},
		{name: "default duration", sectionID: 1, duration: 0},
		{name: "min", sectionID: 1, duration: time.Minute},
		{name: "max", sectionID: 1, duration: 15 * time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.IssueSession(ctx, tt.sectionID, tt.duration)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLookupResolvesTokenToSection(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc := newTestService(store)

	token, err := svc.IssueSession(ctx, 7, 0)
	require.NoError(t, err)

	sess, err := svc.Lookup(ctx, token)
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, int64(7), sess.SectionID)
	assert.Equal(t, token, sess.Token)

	unknown, err := svc.Lookup(ctx, "no-such-token")
	require.NoError(t, err)
	assert.Nil(t, unknown)

	empty, err := svc.Lookup(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestRedeemTerminalErrors(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc := newTestService(store)

	token, err := svc.IssueSession(ctx, 3, 5*time.Minute)
	require.NoError(t, err)
	require.NoError(t, svc.Deactivate(ctx, token))

	tests := []struct {
		name    string
		token   string
		student int64
		want    Outcome
	}{
		{name: "unknown token", token: "does-not-exist", student: 1, want: OutcomeInvalidToken},
		{name: "empty token", token: "", student: 1, want: OutcomeInvalidToken},
		{name: "missing student", token: token, student: 0, want: OutcomeInvalidToken},
		{name: "deactivated session", token: token, student: 1, want: OutcomeInactive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := svc.Redeem(ctx, tt.token, tt.student)
			assert.Equal(t, tt.want, res.Outcome)
			assert.NotEmpty(t, res.Message)
		})
	}

	assert.Empty(t, store.marks, "terminal errors must not write marks")
}

func TestRedeemExpiredEvenWhileActive(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc := newTestService(store)

	token, err := svc.IssueSession(ctx, 3, time.Minute)
	require.NoError(t, err)
	require.True(t, store.sessions[token].IsActive)

	svc.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	res := svc.Redeem(ctx, token, 42)

	assert.Equal(t, OutcomeExpired, res.Outcome)
	assert.Equal(t, store.sessions[token].ExpiresAt, res.ExpiredAt)
	assert.Empty(t, store.marks)
}

func TestRedeemIdempotentPerStudent(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc := newTestService(store)

	token, err := svc.IssueSession(ctx, 9, 5*time.Minute)
	require.NoError(t, err)

	first := svc.Redeem(ctx, token, 100)
	require.Equal(t, OutcomeSuccess, first.Outcome)
	require.NotEmpty(t, first.Date)

	second := svc.Redeem(ctx, token, 100)
	assert.Equal(t, OutcomeAlreadyMarked, second.Outcome)

	require.Len(t, store.marks, 1)
	for _, m := range store.marks {
		assert.Equal(t, StatusPresent, m.Status)
		assert.Equal(t, first.Date, m.Date)
	}
}

func TestRedeemDistinctStudents(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc := newTestService(store)

	token, err := svc.IssueSession(ctx, 9, 5*time.Minute)
	require.NoError(t, err)

	for _, studentID := range []int64{100, 200} {
		res := svc.Redeem(ctx, token, studentID)
		assert.Equal(t, OutcomeSuccess, res.Outcome)
	}
	assert.Len(t, store.marks, 2)
	assert.Len(t, store.scans[store.sessions[token].ID], 2)
}

func TestRedeemStoreFailure(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc := newTestService(store)

	token, err := svc.IssueSession(ctx, 9, 5*time.Minute)
	require.NoError(t, err)

	store.failScan = true
	res := svc.Redeem(ctx, token, 1)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Empty(t, store.marks, "nothing may be partially applied")

	store.failScan = false
	store.failFind = true
	res = svc.Redeem(ctx, token, 1)
	assert.Equal(t, OutcomeFailed, res.Outcome)

	// A failed redemption is safe to retry wholesale.
	store.failFind = false
	res = svc.Redeem(ctx, token, 1)
	assert.Equal(t, OutcomeSuccess, res.Outcome)
}

// Full walkthrough: issue at T0 for 5 minutes, student A redeems twice,
// student B arrives after expiry.
func TestRedeemLifecycleScenario(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc := newTestService(store)

	t0 := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return t0 }

	token, err := svc.IssueSession(ctx, 5, 5*time.Minute)
	require.NoError(t, err)

	svc.now = func() time.Time { return t0.Add(1 * time.Minute) }
	res := svc.Redeem(ctx, token, 1)
	require.Equal(t, OutcomeSuccess, res.Outcome)
	assert.Equal(t, "2026-03-02", res.Date)

	svc.now = func() time.Time { return t0.Add(2 * time.Minute) }
	res = svc.Redeem(ctx, token, 1)
	assert.Equal(t, OutcomeAlreadyMarked, res.Outcome)
	assert.Len(t, store.marks, 1)

	svc.now = func() time.Time { return t0.Add(6 * time.Minute) }
	res = svc.Redeem(ctx, token, 2)
	assert.Equal(t, OutcomeExpired, res.Outcome)
	assert.Len(t, store.marks, 1)
}

// The attendance date follows the scan's clock, so a session opened before
// midnight marks the next day for late scanners.
func TestRedeemDateFollowsScanClock(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc := newTestService(store)

	t0 := time.Date(2026, 3, 2, 23, 58, 0, 0, time.UTC)
	svc.now = func() time.Time { return t0 }
	token, err := svc.IssueSession(ctx, 5, 10*time.Minute)
	require.NoError(t, err)

	svc.now = func() time.Time { return t0.Add(3 * time.Minute) }
	res := svc.Redeem(ctx, token, 1)
	require.Equal(t, OutcomeSuccess, res.Outcome)
	assert.Equal(t, "2026-03-03", res.Date)
}
