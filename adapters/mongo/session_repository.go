package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/satriahrh/elena/assistant/domain/entities"
	"github.com/satriahrh/elena/assistant/domain/repositories"
)

// SessionRepository stores conversation histories in the sessions collection
type SessionRepository struct {
	collection *mongo.Collection
	logger     *zap.Logger
}

var _ repositories.SessionRepository = (*SessionRepository)(nil)

// NewSessionRepository creates a new MongoDB session repository
func NewSessionRepository(db *mongo.Database, logger *zap.Logger) *SessionRepository {
	return &SessionRepository{
		collection: db.Collection("sessions"),
		logger:     logger,
	}
}

// EnsureIndexes creates the indexes used to list recent sessions
func (r *SessionRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "last_active_at", Value: -1}}},
		{Keys: bson.D{{Key: "assistant", Value: 1}, {Key: "status", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create session indexes: %w", err)
	}
	r.logger.Info("Session indexes created successfully")
	return nil
}

// Create implements repositories.SessionRepository
func (r *SessionRepository) Create(ctx context.Context, session *entities.Session) error {
	if session == nil {
		return errors.New("session cannot be nil")
	}
	if err := session.Validate(); err != nil {
		return err
	}
	if session.ID.IsZero() {
		session.ID = primitive.NewObjectID()
	}

	if _, err := r.collection.InsertOne(ctx, session); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	r.logger.Info("Session created",
		zap.String("session_id", session.ID.Hex()),
		zap.String("assistant", session.Assistant))
	return nil
}

// GetByID implements repositories.SessionRepository
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*entities.Session, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid session ID %q", repositories.ErrSessionNotFound, id)
	}

	var session entities.Session
	err = r.collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&session)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: %s", repositories.ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session %s: %w", id, err)
	}
	return &session, nil
}

// Update implements repositories.SessionRepository
func (r *SessionRepository) Update(ctx context.Context, session *entities.Session) error {
	if session == nil {
		return errors.New("session cannot be nil")
	}
	if session.ID.IsZero() {
		return errors.New("session ID cannot be empty")
	}

	update := bson.M{
		"$set": bson.M{
			"status":          session.Status,
			"last_active_at":  time.Now(),
			"last_message_at": session.LastMessageAt,
			"messages":        session.Messages,
			"metadata":        session.Metadata,
		},
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": session.ID}, update)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("%w: %s", repositories.ErrSessionNotFound, session.ID.Hex())
	}

	r.logger.Debug("Session updated",
		zap.String("session_id", session.ID.Hex()),
		zap.Int("messages", len(session.Messages)))
	return nil
}
