package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/url"
	"strings"

	"github.com/damoang/angple-store/internal/common"
	"github.com/damoang/angple-store/internal/domain"
	"github.com/damoang/angple-store/internal/repository"
	"github.com/damoang/angple-store/internal/storage"
	"github.com/damoang/angple-store/pkg/cache"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

// AccountService account business logic
type AccountService interface {
	FindByEmail(ctx context.Context, email string) (*domain.Account, error)
	FindByID(ctx context.Context, id string) (*domain.Account, error)
	SafeProjection(ctx context.Context, id string) (*domain.SafeAccount, error)
	Create(ctx context.Context, req *domain.CreateAccountRequest) (*domain.SafeAccount, error)
	Authenticate(ctx context.Context, email, password string) (*domain.SafeAccount, error)
	Update(ctx context.Context, id string, req *domain.UpdateAccountRequest) (*domain.SafeAccount, error)
	SetStatus(ctx context.Context, id string, status domain.AccountStatus) (*domain.SafeAccount, error)
}

type accountService struct {
	store      *storage.Store
	users      *repository.Repository[*domain.Account]
	cache      cache.Service
	bcryptCost int
	log        zerolog.Logger
}

// NewAccountService creates a new AccountService. cache may be nil.
func NewAccountService(store *storage.Store, c cache.Service, bcryptCost int, log zerolog.Logger) AccountService {
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	if c == nil {
		c = cache.NewService(nil)
	}
	return &accountService{
		store:      store,
		users:      repository.New[*domain.Account](store, domain.CollectionUsers),
		cache:      c,
		bcryptCost: bcryptCost,
		log:        log.With().Str("component", "account").Logger(),
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func avatarURL(name string) string {
	return "https://ui-avatars.com/api/?name=" + url.QueryEscape(name) + "&background=random"
}

// FindByEmail looks up an account by email, case-insensitively
func (s *accountService) FindByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return s.users.FindOne(ctx, repository.Filter{"email": normalizeEmail(email)})
}

// FindByID looks up an account by id
func (s *accountService) FindByID(ctx context.Context, id string) (*domain.Account, error) {
	return s.users.FindByID(ctx, id)
}

// SafeProjection returns the account without its password, from cache when possible
func (s *accountService) SafeProjection(ctx context.Context, id string) (*domain.SafeAccount, error) {
	var cached domain.SafeAccount
	if s.cache.IsAvailable() {
		if err := s.cache.GetAccount(ctx, id, &cached); err == nil {
			return &cached, nil
		}
	}

	acc, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	safe := acc.Safe()
	s.remember(ctx, safe)
	return safe, nil
}

func (s *accountService) remember(ctx context.Context, safe *domain.SafeAccount) {
	if err := s.cache.SetAccount(ctx, safe.ID, safe); err != nil {
		s.log.Warn().Err(err).Str("account_id", safe.ID).Msg("account cache set failed")
	}
}

func (s *accountService) forget(ctx context.Context, id string) {
	if err := s.cache.InvalidateAccount(ctx, id); err != nil {
		s.log.Warn().Err(err).Str("account_id", id).Msg("account cache invalidate failed")
	}
}

func (s *accountService) hash(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// Create registers a new account
func (s *accountService) Create(ctx context.Context, req *domain.CreateAccountRequest) (*domain.SafeAccount, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = normalizeEmail(req.Email)
	if err := common.Validate(req); err != nil {
		return nil, err
	}
	if req.Role == "" {
		req.Role = domain.RoleUser
	}

	hashed, err := s.hash(req.Password)
	if err != nil {
		return nil, err
	}

	var created *domain.Account
	err = s.store.Update(ctx, []string{domain.CollectionUsers}, func(tx *storage.Tx) error {
		users := s.users.WithTx(tx)
		taken, err := users.Exists(ctx, repository.Filter{"email": req.Email})
		if err != nil {
			return err
		}
		if taken {
			return common.ErrUserAlreadyExists
		}
		created, err = users.Insert(ctx, &domain.Account{
			Name:     req.Name,
			Email:    req.Email,
			Password: hashed,
			Role:     req.Role,
			Status:   domain.StatusActive,
			Avatar:   avatarURL(req.Name),
			Phone:    req.Phone,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("account_id", created.ID).Str("role", string(created.Role)).Msg("account created")
	return created.Safe(), nil
}

// Authenticate verifies credentials. Accounts still holding a legacy
// plaintext password are upgraded to bcrypt on success.
func (s *accountService) Authenticate(ctx context.Context, email, password string) (*domain.SafeAccount, error) {
	acc, err := s.FindByEmail(ctx, email)
	if errors.Is(err, common.ErrNotFound) {
		return nil, common.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !verifyPassword(password, acc.Password) {
		return nil, common.ErrInvalidCredentials
	}
	switch acc.Status {
	case domain.StatusBanned:
		return nil, common.ErrAccountBanned
	case domain.StatusInactive:
		return nil, common.ErrAccountInactive
	}

	upgrade := ""
	if !isBcryptHash(acc.Password) {
		if hashed, hashErr := s.hash(password); hashErr == nil {
			upgrade = hashed
		} else {
			s.log.Warn().Err(hashErr).Str("account_id", acc.ID).Msg("password upgrade hash failed")
		}
	}

	updated, err := s.users.Modify(ctx, acc.ID, func(a *domain.Account) error {
		now := repository.Now()
		a.LastLoginAt = &now
		if upgrade != "" && !isBcryptHash(a.Password) {
			a.Password = upgrade
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if upgrade != "" {
		s.log.Info().Str("account_id", acc.ID).Msg("legacy password upgraded to bcrypt")
	}

	s.forget(ctx, acc.ID)
	return updated.Safe(), nil
}

// verifyPassword checks password against a bcrypt hash or a legacy plaintext value
func verifyPassword(plain, stored string) bool {
	if isBcryptHash(stored) {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(plain)) == nil
	}
	if stored == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(plain), []byte(stored)) == 1
}

// isBcryptHash checks if the hash is bcrypt format ($2a$, $2b$, $2y$)
func isBcryptHash(hash string) bool {
	return len(hash) == 60 &&
		(strings.HasPrefix(hash, "$2a$") || strings.HasPrefix(hash, "$2b$") || strings.HasPrefix(hash, "$2y$"))
}

// Update changes profile fields. Changed name, email and password are re-validated.
func (s *accountService) Update(ctx context.Context, id string, req *domain.UpdateAccountRequest) (*domain.SafeAccount, error) {
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if len(name) < 2 {
			return nil, common.NewValidationError("name", "must be at least 2 characters")
		}
		req.Name = &name
	}
	if req.Email != nil {
		email := normalizeEmail(*req.Email)
		if email == "" {
			return nil, common.NewValidationError("email", "is required")
		}
		req.Email = &email
	}
	if req.Password != nil && len(*req.Password) < 6 {
		return nil, common.NewValidationError("password", "must be at least 6 characters")
	}
	if err := common.Validate(req); err != nil {
		return nil, err
	}

	var hashed string
	if req.Password != nil {
		var err error
		if hashed, err = s.hash(*req.Password); err != nil {
			return nil, err
		}
	}

	var updated *domain.Account
	err := s.store.Update(ctx, []string{domain.CollectionUsers}, func(tx *storage.Tx) error {
		users := s.users.WithTx(tx)
		current, err := users.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if req.Email != nil && *req.Email != current.Email {
			taken, err := users.Exists(ctx, repository.Filter{"email": *req.Email})
			if err != nil {
				return err
			}
			if taken {
				return common.ErrUserAlreadyExists
			}
		}

		updated, err = users.Modify(ctx, id, func(a *domain.Account) error {
			if req.Name != nil {
				a.Name = *req.Name
			}
			if req.Email != nil && *req.Email != a.Email {
				a.Email = *req.Email
				a.EmailVerified = false
			}
			if hashed != "" {
				a.Password = hashed
			}
			if req.Avatar != nil {
				a.Avatar = *req.Avatar
			}
			if req.Phone != nil && *req.Phone != a.Phone {
				a.Phone = *req.Phone
				a.PhoneVerified = false
			}
			if req.Bio != nil {
				a.Bio = *req.Bio
			}
			return nil
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.forget(ctx, id)
	return updated.Safe(), nil
}

// SetStatus activates, deactivates or bans an account
func (s *accountService) SetStatus(ctx context.Context, id string, status domain.AccountStatus) (*domain.SafeAccount, error) {
	switch status {
	case domain.StatusActive, domain.StatusInactive, domain.StatusBanned:
	default:
		return nil, common.NewValidationError("status", "must be one of [active inactive banned]")
	}

	updated, err := s.users.Modify(ctx, id, func(a *domain.Account) error {
		a.Status = status
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.forget(ctx, id)
	s.log.Info().Str("account_id", id).Str("status", string(status)).Msg("account status changed")
	return updated.Safe(), nil
}
