package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"magiclink/internal/domain/models"
	"magiclink/internal/storage"
)

type Storage struct {
	db *sql.DB
}

// New returns a new instance of the Storage.
func New(storagePath string) (*Storage, error) {
	const op = "storage.sqlite.New"

	db, err := sql.Open("sqlite3", dsn(storagePath))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// SQLite allows a single writer; one connection keeps concurrent
	// activations from failing with SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	return &Storage{db: db}, nil
}

func dsn(storagePath string) string {
	if strings.Contains(storagePath, "?") {
		return storagePath
	}
	return storagePath + "?_foreign_keys=on&_busy_timeout=5000"
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) Ping(ctx context.Context) error {
	const op = "storage.sqlite.Ping"

	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ActivateAccount redeems ticket in a single conditional UPDATE. Only an
// inactive account holding an unexpired ticket matches; the ticket is
// replaced by newTicket so it can never be redeemed again.
func (s *Storage) ActivateAccount(
	ctx context.Context,
	ticket string,
	newTicket string,
	now time.Time,
) (models.Activation, error) {
	const op = "storage.sqlite.ActivateAccount"

	row := s.db.QueryRowContext(ctx, `
		UPDATE accounts
		SET active = 1, ticket = ?, ticket_expires_at = ?, activated_at = ?
		WHERE ticket = ? AND active = 0 AND ticket_expires_at > ?
		RETURNING id`,
		newTicket, now.Unix(), now.Unix(), ticket, now.Unix(),
	)

	var accountID string
	if err := row.Scan(&accountID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
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
	const op = "storage.sqlite.SaveRefreshToken"

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO refresh_tokens (token, account_id, expires_at, created_at) VALUES (?, ?, ?, ?)",
		token, accountID, expiresAt.Unix(), time.Now().Unix(),
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) &&
			(sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey || sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique) {
			return fmt.Errorf("%s: %w", op, storage.ErrTokenExists)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// AccountByRefreshToken resolves the account and its user profile bound to
// an unexpired refresh token.
func (s *Storage) AccountByRefreshToken(
	ctx context.Context,
	token string,
	now time.Time,
) (*models.Account, error) {
	const op = "storage.sqlite.AccountByRefreshToken"

	row := s.db.QueryRowContext(ctx, `
		SELECT a.id, a.active, u.id, u.email, u.display_name
		FROM refresh_tokens rt
		JOIN accounts a ON a.id = rt.account_id
		JOIN users u ON u.id = a.user_id
		WHERE rt.token = ? AND rt.expires_at > ?`,
		token, now.Unix(),
	)

	var account models.Account
	err := row.Scan(&account.ID, &account.Active, &account.User.ID, &account.User.Email, &account.User.DisplayName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrAccountNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &account, nil
}

// CreatePendingAccount creates a user with an inactive account waiting for
// its ticket to be redeemed.
func (s *Storage) CreatePendingAccount(ctx context.Context, pending models.PendingAccount) (string, error) {
	const op = "storage.sqlite.CreatePendingAccount"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("%s: begin: %w", op, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	now := time.Now().Unix()
	userID := uuid.NewString()
	accountID := uuid.NewString()

	_, err = tx.ExecContext(ctx,
		"INSERT INTO users (id, email, display_name, created_at) VALUES (?, ?, ?, ?)",
		userID, pending.Email, pending.DisplayName, now,
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return "", fmt.Errorf("%s: %w", op, storage.ErrUserAlreadyExists)
		}
		return "", fmt.Errorf("%s: user: %w", op, err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO accounts (id, user_id, active, ticket, ticket_expires_at, created_at)
		VALUES (?, ?, 0, ?, ?, ?)`,
		accountID, userID, pending.Ticket, pending.TicketExpiresAt.Unix(), now,
	)
	if err != nil {
		return "", fmt.Errorf("%s: account: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("%s: commit: %w", op, err)
	}

	return accountID, nil
}
