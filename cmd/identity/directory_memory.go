package identity

import (
	"context"
	"sync"
	"time"

	"jobmarket/cmd/identity/ids"
	"jobmarket/cmd/security/password"
)

// MemoryDirectory is an in-process Directory.
type MemoryDirectory struct {
	params password.Params

	mu      sync.RWMutex
	byID    map[string]User
	byEmail map[string]string
}

// NewMemoryDirectory returns an empty directory hashing with params.
func NewMemoryDirectory(params password.Params) *MemoryDirectory {
	return &MemoryDirectory{
		params:  params,
		byID:    make(map[string]User),
		byEmail: make(map[string]string),
	}
}

func (d *MemoryDirectory) CreateUser(_ context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"

	norm := NormalizeEmail(in.Email)
	if norm == "" || in.Password == "" {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "email and password are required"}
	}

	hash, err := d.params.Hash(in.Password)
	if err != nil {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: err.Error()}
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	id, err := ids.NewULID(now)
	if err != nil {
		return User{}, err
	}

	u := User{
		ID:           id,
		Email:        in.Email,
		EmailNorm:    norm,
		PasswordHash: hash,
		Role:         in.Role,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		DisplayName:  in.DisplayName,
		Verified:     in.Verified,
		CreatedAt:    now,
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.byEmail[norm]; exists {
		return User{}, OpError{Op: op, Kind: ErrConflict, Msg: "email"}
	}
	d.byID[u.ID] = u
	d.byEmail[norm] = u.ID
	return u, nil
}

func (d *MemoryDirectory) GetByEmail(_ context.Context, email string) (User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	id, ok := d.byEmail[NormalizeEmail(email)]
	if !ok {
		return User{}, OpError{Op: "identity.GetByEmail", Kind: ErrNotFound}
	}
	return d.byID[id], nil
}

func (d *MemoryDirectory) GetByID(_ context.Context, id string) (User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	u, ok := d.byID[id]
	if !ok {
		return User{}, OpError{Op: "identity.GetByID", Kind: ErrNotFound}
	}
	return u, nil
}

func (d *MemoryDirectory) SetDisabled(_ context.Context, id string, disabled bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	u, ok := d.byID[id]
	if !ok {
		return OpError{Op: "identity.SetDisabled", Kind: ErrNotFound}
	}
	u.Disabled = disabled
	d.byID[id] = u
	return nil
}

// VerifyPassword checks pw against the stored hash using the directory's params.
func (d *MemoryDirectory) VerifyPassword(u User, pw string) (bool, error) {
	return d.params.Verify(u.PasswordHash, pw)
}

// HashPassword hashes pw with the directory's params.
func (d *MemoryDirectory) HashPassword(pw string) (string, error) {
	return d.params.Hash(pw)
}
