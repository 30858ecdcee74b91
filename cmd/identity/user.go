package identity

import (
	"context"
	"time"
)

// User is a marketplace account known to the identity service.
// Role uses the session role vocabulary: employee, employer, admin, both.
type User struct {
	ID           string
	Email        string
	EmailNorm    string
	PasswordHash string

	Role        string
	FirstName   string
	LastName    string
	DisplayName string
	Verified    bool

	// Disabled users cannot log in and their tokens stop verifying.
	Disabled bool

	CreatedAt time.Time
}

// CreateUserInput describes a new account. Password is hashed by the directory.
type CreateUserInput struct {
	Email       string
	Password    string
	Role        string
	FirstName   string
	LastName    string
	DisplayName string
	Verified    bool
	Now         time.Time
}

// Directory is the user lookup boundary used by the identity service.
type Directory interface {
	CreateUser(ctx context.Context, in CreateUserInput) (User, error)
	GetByEmail(ctx context.Context, email string) (User, error)
	GetByID(ctx context.Context, id string) (User, error)
	SetDisabled(ctx context.Context, id string, disabled bool) error
}
