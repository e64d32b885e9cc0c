package domain

import "time"

// Role of an account
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleUser     Role = "user"
	RoleLandlord Role = "landlord"
	RoleAgent    Role = "agent"
)

// AccountStatus lifecycle state of an account
type AccountStatus string

const (
	StatusActive   AccountStatus = "active"
	StatusInactive AccountStatus = "inactive"
	StatusBanned   AccountStatus = "banned"
)

// Account represents a user identity record (users collection)
type Account struct {
	Record
	Name             string        `json:"name"`
	Email            string        `json:"email"`
	Password         string        `json:"password"`
	Role             Role          `json:"role"`
	Status           AccountStatus `json:"status"`
	Avatar           string        `json:"avatar"`
	Phone            string        `json:"phone,omitempty"`
	Bio              string        `json:"bio,omitempty"`
	EmailVerified    bool          `json:"email_verified"`
	PhoneVerified    bool          `json:"phone_verified"`
	IdentityVerified bool          `json:"identity_verified"`
	LastLoginAt      *time.Time    `json:"last_login_at,omitempty"`
}

// SafeAccount is an Account without credentials
type SafeAccount struct {
	ID               string        `json:"id"`
	Name             string        `json:"name"`
	Email            string        `json:"email"`
	Role             Role          `json:"role"`
	Status           AccountStatus `json:"status"`
	Avatar           string        `json:"avatar"`
	Phone            string        `json:"phone,omitempty"`
	Bio              string        `json:"bio,omitempty"`
	EmailVerified    bool          `json:"email_verified"`
	PhoneVerified    bool          `json:"phone_verified"`
	IdentityVerified bool          `json:"identity_verified"`
	LastLoginAt      *time.Time    `json:"last_login_at,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// Safe converts Account to SafeAccount, dropping the password
func (a *Account) Safe() *SafeAccount {
	return &SafeAccount{
		ID:               a.ID,
		Name:             a.Name,
		Email:            a.Email,
		Role:             a.Role,
		Status:           a.Status,
		Avatar:           a.Avatar,
		Phone:            a.Phone,
		Bio:              a.Bio,
		EmailVerified:    a.EmailVerified,
		PhoneVerified:    a.PhoneVerified,
		IdentityVerified: a.IdentityVerified,
		LastLoginAt:      a.LastLoginAt,
		CreatedAt:        a.CreatedAt,
		UpdatedAt:        a.UpdatedAt,
	}
}

// CreateAccountRequest represents a registration request
type CreateAccountRequest struct {
	Name     string `json:"name" validate:"required,min=2,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,max=72"`
	Role     Role   `json:"role" validate:"omitempty,oneof=admin user landlord agent"`
	Phone    string `json:"phone" validate:"omitempty,max=30"`
}

// UpdateAccountRequest represents a profile update; nil fields are left unchanged
type UpdateAccountRequest struct {
	Name     *string `json:"name" validate:"omitempty,min=2,max=100"`
	Email    *string `json:"email" validate:"omitempty,email"`
	Password *string `json:"password" validate:"omitempty,min=6,max=72"`
	Avatar   *string `json:"avatar" validate:"omitempty,max=500"`
	Phone    *string `json:"phone" validate:"omitempty,max=30"`
	Bio      *string `json:"bio" validate:"omitempty,max=1000"`
}
