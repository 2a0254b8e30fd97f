package store

import (
	"context"
	"errors"
	"sync"

	oauth2 "github.com/legit-games/grant-engine"
	"github.com/legit-games/grant-engine/models"
)

// ErrClientNotFound indicates no client is registered under the id.
var ErrClientNotFound = errors.New("client not found")

// NewClientStore create client store (memory)
func NewClientStore() *ClientStore {
	return &ClientStore{
		data: make(map[string]*models.Client),
	}
}

// ClientStore client information store (in-memory)
type ClientStore struct {
	sync.RWMutex
	data map[string]*models.Client
}

var _ oauth2.ClientStore = (*ClientStore)(nil)

// GetByID according to the ID for the client information
func (cs *ClientStore) GetByID(ctx context.Context, id string) (*models.Client, error) {
	cs.RLock()
	defer cs.RUnlock()

	if c, ok := cs.data[id]; ok {
		return c, nil
	}
	return nil, ErrClientNotFound
}

// Set set client information
func (cs *ClientStore) Set(id string, cli *models.Client) (err error) {
	cs.Lock()
	defer cs.Unlock()

	cs.data[id] = cli
	return
}
