package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/felixgeelhaar/temario/internal/adaptive"
	"github.com/felixgeelhaar/temario/internal/domain"
	"github.com/felixgeelhaar/temario/internal/selection"
	"github.com/felixgeelhaar/temario/internal/session"
)

func newTestSession(id string, now time.Time) *session.Session {
	c := adaptive.NewController(adaptive.DefaultConfig())
	state := c.Init([]adaptive.Item{
		{ID: "q1", Difficulty: domain.DifficultyEasy},
		{ID: "q2", Difficulty: domain.DifficultyHard},
	}, 1)
	plan := domain.SessionPlan{SessionID: id, Mode: domain.ModeAdaptive, Seed: 42}
	return session.NewSession(plan, "u1", state, now, time.Hour)
}

func TestSessionStore_SaveGet(t *testing.T) {
	db := openTestDB(t)
	store := NewSessionStore(db)
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	sess := newTestSession("s1", now)
	if err := store.Save(ctx, sess); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.UserID != "u1" || got.Mode != domain.ModeAdaptive || got.Seed != 42 {
		t.Errorf("Get() = %+v", got)
	}
	if got.State.Next() != "q1" || len(got.State.Pool) != 1 {
		t.Errorf("State = %+v", got.State)
	}
	if !got.ExpiresAt.Equal(now.Add(time.Hour)) {
		t.Errorf("ExpiresAt = %v; want %v", got.ExpiresAt, now.Add(time.Hour))
	}

	_, err = store.Get(ctx, "missing")
	if !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("Get(missing) error = %v; want ErrSessionNotFound", err)
	}
}

func TestSessionStore_UpdateVersionCheck(t *testing.T) {
	db := openTestDB(t)
	store := NewSessionStore(db)
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	sess := newTestSession("s1", now)
	if err := store.Save(ctx, sess); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	next := sess.Clone()
	next.Version = 2
	next.Status = session.StatusCompleted
	if err := store.Update(ctx, next, 1); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	stale := sess.Clone()
	stale.Version = 2
	err := store.Update(ctx, stale, 1)
	if !errors.Is(err, domain.ErrStateConflict) {
		t.Errorf("Update(stale) error = %v; want ErrStateConflict", err)
	}

	got, _ := store.Get(ctx, "s1")
	if got.Version != 2 || got.Status != session.StatusCompleted {
		t.Errorf("Get() version/status = %d/%s; want 2/completed", got.Version, got.Status)
	}

	missing := newTestSession("nope", now)
	if err := store.Update(ctx, missing, 1); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("Update(missing) error = %v; want ErrSessionNotFound", err)
	}
}

func TestSessionStore_DeleteExpired(t *testing.T) {
	db := openTestDB(t)
	store := NewSessionStore(db)
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	old := newTestSession("old", now.Add(-2*time.Hour))
	fresh := newTestSession("fresh", now)
	for _, s := range []*session.Session{old, fresh} {
		if err := store.Save(ctx, s); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}

	n, err := store.DeleteExpired(ctx, now)
	if err != nil {
		t.Fatalf("DeleteExpired() error = %v", err)
	}
	if n != 1 {
		t.Errorf("DeleteExpired() = %d; want 1", n)
	}
	if _, err := store.Get(ctx, "fresh"); err != nil {
		t.Errorf("Get(fresh) error = %v", err)
	}

	if err := store.Delete(ctx, "fresh"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := store.Delete(ctx, "fresh"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("Delete() twice error = %v; want ErrSessionNotFound", err)
	}
}

func TestStores_FailedReviewAndAdaptiveSession(t *testing.T) {
	db := openTestDB(t)
	content := NewContentStore(db)
	history := NewHistoryStore(db)
	seedContent(t, content)
	ctx := context.Background()

	at := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	for _, id := range []string{"q3", "q3", "q2"} {
		if err := history.RecordAttempt(ctx, domain.AttemptRecord{UserID: "u1", QuestionID: id, AnsweredAt: at}); err != nil {
			t.Fatalf("RecordAttempt() error = %v", err)
		}
	}

	selector := selection.NewService(content, history, selection.DefaultConfig())
	res, err := selector.Select(ctx, domain.SelectionRequest{
		Count:       5,
		UserID:      "u1",
		Laws:        []string{"CE"},
		OnlyFailed:  true,
		FailedOrder: domain.FailedOrderMostFailed,
	}, "s-failed")
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if got := res.Plan.Questions; len(got) != 2 || got[0] != "q3" || got[1] != "q2" {
		t.Errorf("Questions = %v; want [q3 q2]", got)
	}

	svc := session.NewService(selector, NewSessionStore(db), session.DefaultConfig())
	plan, err := svc.Select(ctx, domain.SelectionRequest{Count: 3, Laws: []string{"CE"}, Adaptive: true})
	if err != nil {
		t.Fatalf("session Select() error = %v", err)
	}
	sess, err := svc.Get(ctx, plan.SessionID)
	if err != nil {
		t.Fatalf("session Get() error = %v", err)
	}
	if sess.State.Remaining() != plan.Delivered {
		t.Errorf("Remaining() = %d; want %d", sess.State.Remaining(), plan.Delivered)
	}

	next, err := svc.Advance(ctx, plan.SessionID, adaptive.Result{QuestionID: sess.State.Next(), Correct: true})
	if err != nil {
		t.Fatalf("Advance() error = %v", err)
	}
	if next.Version != 2 || next.State.Answered() != 1 {
		t.Errorf("Version/Answered = %d/%d; want 2/1", next.Version, next.State.Answered())
	}
}
