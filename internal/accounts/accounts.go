package accounts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/betfold/papertrade/internal/domain"
	"github.com/betfold/papertrade/internal/store"
	"github.com/betfold/papertrade/pkg/logger"
)

const bcryptCost = 10

// Service manages account registration and login. Every new account is
// seeded with the starting quote-currency balance in the same transaction
// that creates it.
type Service struct {
	store *store.Store
	log   *logrus.Entry
}

func NewService(st *store.Store) *Service {
	return &Service{
		store: st,
		log:   logger.WithField("component", "accounts"),
	}
}

func (s *Service) Register(ctx context.Context, email, password string) (*domain.Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if err := validateCredentials(email, password); err != nil {
		return nil, err
	}

	existing, err := store.GetAccountByEmail(ctx, s.store.Q(), email)
	if err != nil {
		return nil, fmt.Errorf("%w: lookup email: %v", domain.ErrStoreFailure, err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: email already registered", domain.ErrValidation)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("%w: hash password: %v", domain.ErrStoreFailure, err)
	}

	acct := &domain.Account{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    time.Now(),
	}
	err = s.store.WithTx(ctx, func(q store.Querier) error {
		if err := store.InsertAccount(ctx, q, acct); err != nil {
			return fmt.Errorf("%w: insert account: %v", domain.ErrStoreFailure, err)
		}
		return store.UpsertBalance(ctx, q, &domain.Balance{
			AccountID: acct.ID,
			Currency:  domain.QuoteCurrency,
			Amount:    domain.SeedBalance,
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Infof("account %s registered, seeded %s %s", acct.ID, domain.SeedBalance, domain.QuoteCurrency)
	return acct, nil
}

// Authenticate checks the password against the stored hash. A missing
// account and a wrong password report the same error.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*domain.Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	acct, err := store.GetAccountByEmail(ctx, s.store.Q(), email)
	if err != nil {
		return nil, fmt.Errorf("%w: lookup email: %v", domain.ErrStoreFailure, err)
	}
	if acct == nil {
		return nil, fmt.Errorf("%w: invalid credentials", domain.ErrValidation)
	}
	if bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)) != nil {
		return nil, fmt.Errorf("%w: invalid credentials", domain.ErrValidation)
	}
	return acct, nil
}

func (s *Service) Get(ctx context.Context, accountID string) (*domain.Account, error) {
	acct, err := store.GetAccount(ctx, s.store.Q(), accountID)
	if err != nil {
		return nil, fmt.Errorf("%w: load account: %v", domain.ErrStoreFailure, err)
	}
	if acct == nil {
		return nil, fmt.Errorf("%w: account %s", domain.ErrNotFound, accountID)
	}
	return acct, nil
}

func (s *Service) ListBalances(ctx context.Context, accountID string) ([]domain.Balance, error) {
	if _, err := s.Get(ctx, accountID); err != nil {
		return nil, err
	}
	balances, err := store.ListBalances(ctx, s.store.Q(), accountID)
	if err != nil {
		return nil, fmt.Errorf("%w: list balances: %v", domain.ErrStoreFailure, err)
	}
	return balances, nil
}

func (s *Service) ListHoldings(ctx context.Context, accountID string) ([]domain.Holding, error) {
	if _, err := s.Get(ctx, accountID); err != nil {
		return nil, err
	}
	holdings, err := store.ListHoldings(ctx, s.store.Q(), accountID)
	if err != nil {
		return nil, fmt.Errorf("%w: list holdings: %v", domain.ErrStoreFailure, err)
	}
	return holdings, nil
}

func validateCredentials(email, password string) error {
	if email == "" || !strings.Contains(email, "@") {
		return fmt.Errorf("%w: invalid email", domain.ErrValidation)
	}
	if len(password) < 8 {
		return fmt.Errorf("%w: password must be at least 8 characters", domain.ErrValidation)
	}
	return nil
}
