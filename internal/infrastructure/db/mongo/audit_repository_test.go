package mongo

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/99minutos/auth-service/internal/core/domain"
)

func TestAuditDocument_BSONShape(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	event := &domain.AuthEvent{
		ID:         "evt-1",
		Kind:       domain.EventLogin,
		Login:      "alice",
		UserID:     42,
		Outcome:    domain.OutcomeSuccess,
		OccurredAt: at,
	}

	raw, err := bson.Marshal(toDocument(event))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m bson.M
	if err := bson.Unmarshal(raw, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m["_id"] != "evt-1" || m["kind"] != "login" || m["outcome"] != "success" || m["user_id"] != int64(42) {
		t.Fatalf("unexpected document %v", m)
	}
	for _, forbidden := range []string{"password", "password_hash", "token"} {
		if _, ok := m[forbidden]; ok {
			t.Fatalf("document must not carry %q", forbidden)
		}
	}

	back := fromDocument(toDocument(event))
	if back != *event {
		t.Fatalf("expected %+v, got %+v", *event, back)
	}
}

func TestAuditDocument_OmitsUnknownUser(t *testing.T) {
	raw, err := bson.Marshal(toDocument(&domain.AuthEvent{ID: "x", Kind: domain.EventLogin, Outcome: domain.OutcomeRejected}))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m bson.M
	_ = bson.Unmarshal(raw, &m)
	if _, ok := m["user_id"]; ok {
		t.Fatalf("user_id should be omitted when zero: %v", m)
	}
}

// TestAuditRepository_Integration runs against a live MongoDB when
// MONGO_TEST_URI is set.
func TestAuditRepository_Integration(t *testing.T) {
	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		t.Skip("MONGO_TEST_URI not set")
	}

	ctx := context.Background()
	client, db, err := Connect(ctx, Config{URI: uri, Database: "auth_service_test"})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Drop(ctx)
		_ = client.Disconnect(ctx)
	})

	repo := NewAuditRepository(db)
	if err := repo.EnsureIndexes(ctx); err != nil {
		t.Fatalf("indexes: %v", err)
	}

	login := "it-" + uuid.NewString()
	base := time.Now().UTC().Truncate(time.Millisecond)
	for i, outcome := range []domain.AuthOutcome{domain.OutcomeRejected, domain.OutcomeSuccess} {
		event := &domain.AuthEvent{
			ID:         uuid.NewString(),
			Kind:       domain.EventLogin,
			Login:      login,
			Outcome:    outcome,
			OccurredAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := repo.InsertEvent(ctx, event); err != nil {
			t.Fatalf("insert: %v", err)
		}
		if err := repo.InsertEvent(ctx, event); err != nil {
			t.Fatalf("re-insert should be a no-op: %v", err)
		}
	}

	events, err := repo.RecentByLogin(ctx, login, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(events) != 2 || events[0].Outcome != domain.OutcomeSuccess {
		t.Fatalf("expected newest first, got %+v", events)
	}
}
