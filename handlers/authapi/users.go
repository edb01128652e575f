package authapi

import (
	"context"
	"errors"

	"golang.org/x/crypto/bcrypt"
)

var ErrUserNotFound = errors.New("user not found")

// User is the minimal account view the security core needs. Account
// management itself lives with an external collaborator.
type User struct {
	ID           uint
	Email        string
	Role         string
	ClinicID     uint
	PasswordHash string
}

// UserDirectory supplies accounts for credential checks.
type UserDirectory interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
}

func (u *User) CheckPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}

// StaticDirectory is an in-memory directory for tests and small
// deployments.
type StaticDirectory struct {
	users map[string]*User
}

func NewStaticDirectory(users ...*User) *StaticDirectory {
	indexed := make(map[string]*User, len(users))
	for _, u := range users {
		indexed[u.Email] = u
	}
	return &StaticDirectory{users: indexed}
}

func (d *StaticDirectory) FindByEmail(_ context.Context, email string) (*User, error) {
	user, ok := d.users[email]
	if !ok {
		return nil, ErrUserNotFound
	}
	return user, nil
}
