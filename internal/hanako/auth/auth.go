// Package auth decides which API key, if any, a user's turn may run under.
//
// Denial is a normal outcome, not an error: Check returns a tagged Result and
// reserves its error return for infrastructure failures (store, decryption).
package auth

import (
	"context"
	"fmt"

	"github.com/bdobrica/Hanako/common/crypto"
	"github.com/bdobrica/Hanako/internal/hanako/store"
)

// KeySource says where the authorized key came from.
type KeySource string

const (
	// SourceUser means the user supplied their own key.
	SourceUser KeySource = "user"
	// SourceService means the shared service key is being lent out
	// (premium users and trial users).
	SourceService KeySource = "service"
)

// Reason explains a denial.
type Reason string

const (
	// ReasonTrialEnded means the user exhausted the trial token quota.
	ReasonTrialEnded Reason = "trial_ended"
	// ReasonTrialDisabled means no trial is offered and the user has no
	// key of their own.
	ReasonTrialDisabled Reason = "trial_disabled"
)

// Result is the outcome of an authorization check. Exactly one of the two
// arms is populated: Authorized carries the key to use, Denied carries the
// reason.
type Result struct {
	Authorized bool
	Key        string
	Source     KeySource
	Reason     Reason
}

func authorized(key string, source KeySource) Result {
	return Result{Authorized: true, Key: key, Source: source}
}

func denied(reason Reason) Result {
	return Result{Reason: reason}
}

// Store is the slice of the persistence layer the checker needs.
type Store interface {
	GetOrCreateUser(ctx context.Context, userID string) (*store.User, error)
	TokensUsed(ctx context.Context, actor string) (int64, error)
	SetAPIKey(ctx context.Context, userID string, encryptedKey []byte) error
}

// Checker authorizes turns against user records and the trial quota.
type Checker struct {
	store      Store
	masterKey  []byte
	serviceKey string
	trialQuota int64
}

// New builds a Checker. masterKey decrypts user-supplied keys at rest;
// serviceKey backs premium and trial users; trialQuota is the total token
// allowance per user, 0 to disable the trial entirely.
func New(s Store, masterKey []byte, serviceKey string, trialQuota int64) *Checker {
	return &Checker{
		store:      s,
		masterKey:  masterKey,
		serviceKey: serviceKey,
		trialQuota: trialQuota,
	}
}

// Check resolves the key a user's turn runs under. Precedence: the user's
// own key, then premium on the service key, then the trial quota.
func (c *Checker) Check(ctx context.Context, userID string) (Result, error) {
	user, err := c.store.GetOrCreateUser(ctx, userID)
	if err != nil {
		return Result{}, fmt.Errorf("failed to load user %s: %w", userID, err)
	}

	if len(user.APIKey) > 0 {
		plain, err := crypto.Decrypt(c.masterKey, user.APIKey)
		if err != nil {
			return Result{}, fmt.Errorf("failed to decrypt key for %s: %w", userID, err)
		}
		return authorized(string(plain), SourceUser), nil
	}

	if user.Premium {
		return authorized(c.serviceKey, SourceService), nil
	}

	if c.trialQuota <= 0 {
		return denied(ReasonTrialDisabled), nil
	}

	used, err := c.store.TokensUsed(ctx, userID)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read token usage for %s: %w", userID, err)
	}
	if used >= c.trialQuota {
		return denied(ReasonTrialEnded), nil
	}
	return authorized(c.serviceKey, SourceService), nil
}

// StoreKey encrypts and persists a user-supplied API key.
func (c *Checker) StoreKey(ctx context.Context, userID, apiKey string) error {
	sealed, err := crypto.Encrypt(c.masterKey, []byte(apiKey))
	if err != nil {
		return fmt.Errorf("failed to encrypt key: %w", err)
	}
	return c.store.SetAPIKey(ctx, userID, sealed)
}
