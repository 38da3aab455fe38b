// Package sqlaccounts implements authgate.AccountStore on a MySQL accounts
// table.
//
// Expected schema:
//
//	CREATE TABLE accounts (
//	    id            CHAR(36)     NOT NULL PRIMARY KEY,
//	    email         VARCHAR(255) NOT NULL UNIQUE,
//	    password_hash VARCHAR(255) NOT NULL,
//	    verified      TINYINT(1)   NOT NULL DEFAULT 0,
//	    created_at    TIMESTAMP    NOT NULL DEFAULT CURRENT_TIMESTAMP
//	);
package sqlaccounts

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"

	authgate "github.com/MrEthical07/authgate"
)

const mysqlDuplicateEntry = 1062

// Store reads and writes account records through database/sql.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore wraps an open database handle. The caller owns the pool.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// GetByEmail fetches an account by normalized email.
func (s *Store) GetByEmail(ctx context.Context, email string) (authgate.Account, error) {
	var (
		account  authgate.Account
		verified bool
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, email, password_hash, verified, created_at FROM accounts WHERE email = ? LIMIT 1",
		normalizeEmail(email),
	).Scan(&account.ID, &account.Email, &account.PasswordHash, &verified, &account.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return authgate.Account{}, authgate.ErrAccountNotFound
		}
		return authgate.Account{}, err
	}
	account.Verified = verified
	return account, nil
}

// Create inserts a new unverified account. A duplicate email maps to
// authgate.ErrAccountExists.
func (s *Store) Create(ctx context.Context, input authgate.CreateAccountInput) (authgate.Account, error) {
	account := authgate.Account{
		ID:           uuid.NewString(),
		Email:        normalizeEmail(input.Email),
		PasswordHash: input.PasswordHash,
		Verified:     false,
		CreatedAt:    s.now().UTC(),
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO accounts (id, email, password_hash, verified, created_at) VALUES (?, ?, ?, ?, ?)",
		account.ID, account.Email, account.PasswordHash, account.Verified, account.CreatedAt,
	)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry {
			return authgate.Account{}, authgate.ErrAccountExists
		}
		return authgate.Account{}, err
	}

	return account, nil
}

// MarkVerified flips the verified flag. Unknown emails map to
// authgate.ErrAccountNotFound.
func (s *Store) MarkVerified(ctx context.Context, email string) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE accounts SET verified = 1 WHERE email = ?",
		normalizeEmail(email),
	)
	if err != nil {
		return err
	}
	return s.requireMatch(ctx, result, email)
}

// UpdatePasswordHash replaces the stored digest.
func (s *Store) UpdatePasswordHash(ctx context.Context, email string, newHash string) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE accounts SET password_hash = ? WHERE email = ?",
		newHash, normalizeEmail(email),
	)
	if err != nil {
		return err
	}
	return s.requireMatch(ctx, result, email)
}

// requireMatch distinguishes "no such account" from "update was a no-op".
// RowsAffected is zero in both cases with MySQL, so a zero needs a lookup.
func (s *Store) requireMatch(ctx context.Context, result sql.Result, email string) error {
	affected, err := result.RowsAffected()
	if err != nil || affected > 0 {
		return err
	}
	if _, lookupErr := s.GetByEmail(ctx, email); lookupErr != nil {
		return lookupErr
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
