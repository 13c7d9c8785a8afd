package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/99minutos/auth-service/internal/core/domain"
)

const auditCollection = "auth_events"

// AuditRepository persists authentication audit events.
type AuditRepository struct {
	coll *mongo.Collection
}

func NewAuditRepository(db *mongo.Database) *AuditRepository {
	return &AuditRepository{coll: db.Collection(auditCollection)}
}

type auditDocument struct {
	ID         string    `bson:"_id"`
	Kind       string    `bson:"kind"`
	Login      string    `bson:"login"`
	UserID     int64     `bson:"user_id,omitempty"`
	Outcome    string    `bson:"outcome"`
	OccurredAt time.Time `bson:"occurred_at"`
}

// EnsureIndexes creates the lookup index used by RecentByLogin.
func (r *AuditRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "login", Value: 1}, {Key: "occurred_at", Value: -1}},
		Options: options.Index().SetName("login_occurred_at"),
	})
	if err != nil {
		return fmt.Errorf("create audit index: %w", err)
	}
	return nil
}

// InsertEvent stores one event. Re-inserting the same event id is a no-op so
// retried writes do not duplicate the trail.
func (r *AuditRepository) InsertEvent(ctx context.Context, event *domain.AuthEvent) error {
	_, err := r.coll.InsertOne(ctx, toDocument(event))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil
		}
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// RecentByLogin returns up to limit events for login, newest first.
func (r *AuditRepository) RecentByLogin(ctx context.Context, login string, limit int64) ([]domain.AuthEvent, error) {
	if limit <= 0 {
		limit = 20
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "occurred_at", Value: -1}}).
		SetLimit(limit)

	cur, err := r.coll.Find(ctx, bson.M{"login": login}, opts)
	if err != nil {
		return nil, fmt.Errorf("find audit events: %w", err)
	}
	defer cur.Close(ctx)

	var docs []auditDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode audit events: %w", err)
	}

	events := make([]domain.AuthEvent, 0, len(docs))
	for _, d := range docs {
		events = append(events, fromDocument(d))
	}
	return events, nil
}

func toDocument(e *domain.AuthEvent) auditDocument {
	return auditDocument{
		ID:         e.ID,
		Kind:       string(e.Kind),
		Login:      e.Login,
		UserID:     e.UserID,
		Outcome:    string(e.Outcome),
		OccurredAt: e.OccurredAt.UTC(),
	}
}

func fromDocument(d auditDocument) domain.AuthEvent {
	return domain.AuthEvent{
		ID:         d.ID,
		Kind:       domain.AuthEventKind(d.Kind),
		Login:      d.Login,
		UserID:     d.UserID,
		Outcome:    domain.AuthOutcome(d.Outcome),
		OccurredAt: d.OccurredAt.UTC(),
	}
}
