package magiclink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"magiclink/internal/domain/models"
	"magiclink/internal/lib/logger/sl"
	"magiclink/internal/storage"
)

var (
	// ErrInvalidTicket means the activation ticket is unknown, expired or
	// already redeemed.
	ErrInvalidTicket = errors.New("invalid or expired ticket")
	// ErrInvalidToken means no account is bound to the refresh token.
	ErrInvalidToken = errors.New("invalid or expired token")
	// ErrActivationFailed wraps store failures during ticket activation.
	ErrActivationFailed = errors.New("account activation failed")
)

type AccountActivator interface {
	ActivateAccount(
		ctx context.Context,
		ticket string,
		newTicket string,
		now time.Time,
	) (models.Activation, error)
}

type AccountProvider interface {
	AccountByRefreshToken(
		ctx context.Context,
		token string,
		now time.Time,
	) (*models.Account, error)
}

type SessionIssuer interface {
	IssueRefreshToken(ctx context.Context, accountID string) (string, error)
}

// Exchange is a resolved magic link: the owning account and the refresh
// token to hand back to the client.
type Exchange struct {
	Action       models.Action
	Account      *models.Account
	RefreshToken string
}

type MagicLink struct {
	logger           *slog.Logger
	accountActivator AccountActivator
	accountProvider  AccountProvider
	sessionIssuer    SessionIssuer
	now              func() time.Time
	newTicket        func() string
}

type Option func(*MagicLink)

func WithClock(now func() time.Time) Option {
	return func(m *MagicLink) { m.now = now }
}

func WithTicketGenerator(gen func() string) Option {
	return func(m *MagicLink) { m.newTicket = gen }
}

// New returns a new instance of the MagicLink service.
func New(
	logger *slog.Logger,
	accountActivator AccountActivator,
	accountProvider AccountProvider,
	sessionIssuer SessionIssuer,
	opts ...Option,
) *MagicLink {
	m := &MagicLink{
		logger:           logger,
		accountActivator: accountActivator,
		accountProvider:  accountProvider,
		sessionIssuer:    sessionIssuer,
		now:              time.Now,
		newTicket:        uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Exchange trades a magic link token for an account and a refresh token.
//
// For ActionRegister the token is an activation ticket: it is redeemed once,
// then a fresh refresh token is issued. For ActionLogin the token already is
// a refresh token. Either way the account bound to the effective refresh
// token is resolved.
func (m *MagicLink) Exchange(
	ctx context.Context,
	action models.Action,
	token string,
) (*Exchange, error) {
	const op = "magiclink.Exchange"
	log := m.logger.With(
		slog.String("op", op),
		slog.String("action", action.String()),
	)

	refreshToken := token
	if action == models.ActionRegister {
		issued, err := m.activate(ctx, log, token)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		refreshToken = issued
	}

	account, err := m.accountProvider.AccountByRefreshToken(ctx, refreshToken, m.now())
	if err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			log.Warn("refresh token not bound to any account", sl.Err(err))
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
		}
		log.Error("failed to resolve account", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info(
		fmt.Sprintf("user completed magic link %s", action),
		slog.String("user_id", account.User.ID),
		slog.String("account_id", account.ID),
	)

	return &Exchange{
		Action:       action,
		Account:      account,
		RefreshToken: refreshToken,
	}, nil
}

// activate redeems ticket and returns a newly issued refresh token for the
// activated account.
func (m *MagicLink) activate(ctx context.Context, log *slog.Logger, ticket string) (string, error) {
	activation, err := m.accountActivator.ActivateAccount(ctx, ticket, m.newTicket(), m.now())
	if err != nil {
		log.Error("failed to activate account", sl.Err(err))
		return "", fmt.Errorf("%w: %w", ErrActivationFailed, err)
	}

	if activation.Affected == 0 {
		log.Error("invalid or expired ticket")
		return "", ErrInvalidTicket
	}

	refreshToken, err := m.sessionIssuer.IssueRefreshToken(ctx, activation.AccountID)
	if err != nil {
		log.Error("failed to issue refresh token",
			slog.String("account_id", activation.AccountID),
			sl.Err(err),
		)
		return "", err
	}

	return refreshToken, nil
}
