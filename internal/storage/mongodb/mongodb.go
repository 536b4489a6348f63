package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"magiclink/internal/domain/models"
	"magiclink/internal/storage"
)

type Storage struct {
	client   *mongo.Client
	database *mongo.Database
	accounts *mongo.Collection
	tokens   *mongo.Collection
}

type userDoc struct {
	ID          string `bson:"id"`
	Email       string `bson:"email"`
	DisplayName string `bson:"display_name"`
}

type accountDoc struct {
	ID              string     `bson:"_id"`
	Active          bool       `bson:"active"`
	Ticket          string     `bson:"ticket"`
	TicketExpiresAt time.Time  `bson:"ticket_expires_at"`
	ActivatedAt     *time.Time `bson:"activated_at,omitempty"`
	User            userDoc    `bson:"user"`
	CreatedAt       time.Time  `bson:"created_at"`
}

type refreshTokenDoc struct {
	Token     string    `bson:"token"`
	AccountID string    `bson:"account_id"`
	CreatedAt time.Time `bson:"created_at"`
	ExpiresAt time.Time `bson:"expires_at"`
}

// New creates a new MongoDB storage instance and sets up indexes.
func New(ctx context.Context, uri, database string) (*Storage, error) {
	const op = "storage.mongodb.New"

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("%s: connect: %w", op, err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("%s: ping: %w", op, err)
	}

	db := client.Database(database)
	s := &Storage{
		client:   client,
		database: db,
		accounts: db.Collection("accounts"),
		tokens:   db.Collection("refresh_tokens"),
	}

	if err := s.ensureIndexes(ctx); err != nil {
		return nil, fmt.Errorf("%s: indexes: %w", op, err)
	}

	return s, nil
}

func (s *Storage) ensureIndexes(ctx context.Context) error {
	_, err := s.accounts.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "ticket", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "user.email", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	})
	if err != nil {
		return fmt.Errorf("accounts indexes: %w", err)
	}

	_, err = s.tokens.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "token", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("refresh_tokens.token index: %w", err)
	}

	// expired refresh tokens are removed by the server
	_, err = s.tokens.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "expires_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	})
	if err != nil {
		return fmt.Errorf("refresh_tokens.expires_at TTL index: %w", err)
	}

	return nil
}

// Close disconnects from MongoDB.
func (s *Storage) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Storage) Ping(ctx context.Context) error {
	const op = "storage.mongodb.Ping"

	if err := s.client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ActivateAccount redeems ticket with a single FindOneAndUpdate, which is
// atomic per document.
func (s *Storage) ActivateAccount(
	ctx context.Context,
	ticket string,
	newTicket string,
	now time.Time,
) (models.Activation, error) {
	const op = "storage.mongodb.ActivateAccount"

	filter := bson.D{
		{Key: "ticket", Value: ticket},
		{Key: "active", Value: false},
		{Key: "ticket_expires_at", Value: bson.D{{Key: "$gt", Value: now}}},
	}
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "active", Value: true},
		{Key: "ticket", Value: newTicket},
		{Key: "ticket_expires_at", Value: now},
		{Key: "activated_at", Value: now},
	}}}
	opts := options.FindOneAndUpdate().SetProjection(bson.D{{Key: "_id", Value: 1}})

	var doc accountDoc
	err := s.accounts.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Activation{}, nil
		}
		return models.Activation{}, fmt.Errorf("%s: %w", op, err)
	}

	return models.Activation{Affected: 1, AccountID: doc.ID}, nil
}

// SaveRefreshToken stores a new refresh token for accountID.
func (s *Storage) SaveRefreshToken(
	ctx context.Context,
	accountID string,
	token string,
	expiresAt time.Time,
) error {
	const op = "storage.mongodb.SaveRefreshToken"

	doc := refreshTokenDoc{
		Token:     token,
		AccountID: accountID,
		CreatedAt: time.Now(),
		ExpiresAt: expiresAt,
	}

	if _, err := s.tokens.InsertOne(ctx, doc); err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("%s: %w", op, storage.ErrTokenExists)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// AccountByRefreshToken joins the token with its account in one aggregation.
func (s *Storage) AccountByRefreshToken(
	ctx context.Context,
	token string,
	now time.Time,
) (*models.Account, error) {
	const op = "storage.mongodb.AccountByRefreshToken"

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{
			{Key: "token", Value: token},
			{Key: "expires_at", Value: bson.D{{Key: "$gt", Value: now}}},
		}}},
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: s.accounts.Name()},
			{Key: "localField", Value: "account_id"},
			{Key: "foreignField", Value: "_id"},
			{Key: "as", Value: "account"},
		}}},
		{{Key: "$unwind", Value: "$account"}},
		{{Key: "$replaceRoot", Value: bson.D{{Key: "newRoot", Value: "$account"}}}},
		{{Key: "$limit", Value: 1}},
	}

	cursor, err := s.tokens.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer cursor.Close(ctx)

	if !cursor.Next(ctx) {
		if err := cursor.Err(); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return nil, fmt.Errorf("%s: %w", op, storage.ErrAccountNotFound)
	}

	var doc accountDoc
	if err := cursor.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%s: decode: %w", op, err)
	}

	return &models.Account{
		ID:     doc.ID,
		Active: doc.Active,
		User: models.User{
			ID:          doc.User.ID,
			Email:       doc.User.Email,
			DisplayName: doc.User.DisplayName,
		},
	}, nil
}

// CreatePendingAccount inserts an inactive account with an embedded user profile.
func (s *Storage) CreatePendingAccount(ctx context.Context, pending models.PendingAccount) (string, error) {
	const op = "storage.mongodb.CreatePendingAccount"

	doc := accountDoc{
		ID:              uuid.NewString(),
		Ticket:          pending.Ticket,
		TicketExpiresAt: pending.TicketExpiresAt,
		User: userDoc{
			ID:          uuid.NewString(),
			Email:       pending.Email,
			DisplayName: pending.DisplayName,
		},
		CreatedAt: time.Now(),
	}

	if _, err := s.accounts.InsertOne(ctx, doc); err != nil {
		if isDuplicateKeyError(err) {
			return "", fmt.Errorf("%s: %w", op, storage.ErrUserAlreadyExists)
		}
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return doc.ID, nil
}

// isDuplicateKeyError checks if the error is a MongoDB duplicate key error (code 11000).
func isDuplicateKeyError(err error) bool {
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if e.Code == 11000 {
				return true
			}
		}
	}
	return false
}
