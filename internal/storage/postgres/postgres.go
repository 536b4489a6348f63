package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"magiclink/internal/domain/models"
	"magiclink/internal/storage"
)

const uniqueViolation = "23505"

type Storage struct {
	pool *pgxpool.Pool
}

// New connects to PostgreSQL and verifies the connection with a ping.
func New(ctx context.Context, dsn string) (*Storage, error) {
	const op = "storage.postgres.New"

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: parse dsn: %w", op, err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("%s: pool: %w", op, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s: ping: %w", op, err)
	}

	return &Storage{pool: pool}, nil
}

func (s *Storage) Close() {
	s.pool.Close()
}

func (s *Storage) Ping(ctx context.Context) error {
	const op = "storage.postgres.Ping"

	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ActivateAccount redeems ticket with one conditional UPDATE; row locking
// guarantees that concurrent redemptions of the same ticket see exactly one
// matching row between them.
func (s *Storage) ActivateAccount(
	ctx context.Context,
	ticket string,
	newTicket string,
	now time.Time,
) (models.Activation, error) {
	const op = "storage.postgres.ActivateAccount"

	var accountID string
	err := s.pool.QueryRow(ctx, `
		UPDATE accounts
		SET active = TRUE, ticket = $1, ticket_expires_at = $2, activated_at = $2
		WHERE ticket = $3 AND active = FALSE AND ticket_expires_at > $2
		RETURNING id::text`,
		newTicket, now, ticket,
	).Scan(&accountID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Activation{}, nil
		}
		return models.Activation{}, fmt.Errorf("%s: %w", op, err)
	}

	return models.Activation{Affected: 1, AccountID: accountID}, nil
}

func (s *Storage) SaveRefreshToken(
	ctx context.Context,
	accountID string,
	token string,
	expiresAt time.Time,
) error {
	const op = "storage.postgres.SaveRefreshToken"

	_, err := s.pool.Exec(ctx,
		"INSERT INTO refresh_tokens (token, account_id, expires_at) VALUES ($1, $2::uuid, $3)",
		token, accountID, expiresAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%s: %w", op, storage.ErrTokenExists)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Storage) AccountByRefreshToken(
	ctx context.Context,
	token string,
	now time.Time,
) (*models.Account, error) {
	const op = "storage.postgres.AccountByRefreshToken"

	var account models.Account
	err := s.pool.QueryRow(ctx, `
		SELECT a.id::text, a.active, u.id::text, u.email, u.display_name
		FROM refresh_tokens rt
		JOIN accounts a ON a.id = rt.account_id
		JOIN users u ON u.id = a.user_id
		WHERE rt.token = $1 AND rt.expires_at > $2`,
		token, now,
	).Scan(&account.ID, &account.Active, &account.User.ID, &account.User.Email, &account.User.DisplayName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrAccountNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &account, nil
}

func (s *Storage) CreatePendingAccount(ctx context.Context, pending models.PendingAccount) (string, error) {
	const op = "storage.postgres.CreatePendingAccount"

	userID := uuid.NewString()
	accountID := uuid.NewString()

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			"INSERT INTO users (id, email, display_name) VALUES ($1::uuid, $2, $3)",
			userID, pending.Email, pending.DisplayName,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return storage.ErrUserAlreadyExists
			}
			return fmt.Errorf("user: %w", err)
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO accounts (id, user_id, active, ticket, ticket_expires_at)
			VALUES ($1::uuid, $2::uuid, FALSE, $3, $4)`,
			accountID, userID, pending.Ticket, pending.TicketExpiresAt,
		)
		if err != nil {
			return fmt.Errorf("account: %w", err)
		}

		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return accountID, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolation
	}
	return false
}
