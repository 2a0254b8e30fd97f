package store

import (
	"context"
	"errors"
	"sync"

	oauth2 "github.com/legit-games/grant-engine"
	"github.com/legit-games/grant-engine/models"
)

// ErrUserNotFound indicates no user exists with the id.
var ErrUserNotFound = errors.New("user not found")

// UserStore is an in-memory user directory.
type UserStore struct {
	mu    sync.RWMutex
	users map[string]*models.User
}

var _ oauth2.UserStore = (*UserStore)(nil)

// NewUserStore create user store
func NewUserStore() *UserStore { return &UserStore{users: make(map[string]*models.User)} }

// GetByID returns the user or ErrUserNotFound.
func (s *UserStore) GetByID(ctx context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return nil, ErrUserNotFound
}

// Set stores or replaces a user.
func (s *UserStore) Set(u *models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}
