package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"magiclink/internal/lib/logger/sl"
)

type RefreshTokenSaver interface {
	SaveRefreshToken(
		ctx context.Context,
		accountID string,
		token string,
		expiresAt time.Time,
	) error
}

// Issuer mints refresh tokens and binds them to accounts.
type Issuer struct {
	logger   *slog.Logger
	saver    RefreshTokenSaver
	tokenTTL time.Duration
	now      func() time.Time
	newToken func() string
}

type Option func(*Issuer)

// WithClock overrides the time source used for expiry.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) { i.now = now }
}

// WithTokenGenerator overrides how refresh token values are produced.
func WithTokenGenerator(gen func() string) Option {
	return func(i *Issuer) { i.newToken = gen }
}

// New returns a new instance of the session Issuer.
func New(
	logger *slog.Logger,
	saver RefreshTokenSaver,
	tokenTTL time.Duration,
	opts ...Option,
) *Issuer {
	i := &Issuer{
		logger:   logger,
		saver:    saver,
		tokenTTL: tokenTTL,
		now:      time.Now,
		newToken: uuid.NewString,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// IssueRefreshToken generates a random refresh token, persists it for
// accountID and returns it. Tokens are random v4 UUIDs; uniqueness relies on
// their entropy rather than a lookup.
func (i *Issuer) IssueRefreshToken(ctx context.Context, accountID string) (string, error) {
	const op = "session.IssueRefreshToken"
	log := i.logger.With(
		slog.String("op", op),
		slog.String("account_id", accountID),
	)

	token := i.newToken()
	expiresAt := i.now().Add(i.tokenTTL)

	if err := i.saver.SaveRefreshToken(ctx, accountID, token, expiresAt); err != nil {
		log.Error("failed to save refresh token", sl.Err(err))
		return "", fmt.Errorf("%s: %w", op, err)
	}

	log.Debug("refresh token issued", slog.Time("expires_at", expiresAt))

	return token, nil
}
