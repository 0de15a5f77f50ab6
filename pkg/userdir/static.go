package userdir

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"
)

// StaticDirectory serves accounts from a fixed set, loaded from a JSON file or
// built in code. It backs local development and tests.
type StaticDirectory struct {
	mu     sync.RWMutex
	users  map[uuid.UUID]User
	tokens map[string]uuid.UUID
}

type staticFile struct {
	Users  []User               `json:"users"`
	Tokens map[string]uuid.UUID `json:"tokens"`
}

// NewStaticDirectory creates an empty StaticDirectory.
func NewStaticDirectory() *StaticDirectory {
	return &StaticDirectory{
		users:  map[uuid.UUID]User{},
		tokens: map[string]uuid.UUID{},
	}
}

// LoadStaticDirectory builds a StaticDirectory from a JSON file with the shape
// {"users": [...], "tokens": {"<token>": "<user id>"}}.
func LoadStaticDirectory(path string) (*StaticDirectory, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading users file: %s", err)
	}
	var file staticFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parsing users file: %s", err)
	}
	d := NewStaticDirectory()
	for _, u := range file.Users {
		d.users[u.ID] = u
	}
	for token, id := range file.Tokens {
		if _, ok := d.users[id]; !ok {
			return nil, fmt.Errorf("token maps to unknown user %s", id)
		}
		d.tokens[token] = id
	}
	return d, nil
}

// Put registers a user with a token.
func (d *StaticDirectory) Put(user User, token string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[user.ID] = user
	if token != "" {
		d.tokens[token] = user.ID
	}
}

// Authenticate resolves a token against the registered set.
func (d *StaticDirectory) Authenticate(_ context.Context, token string) (*User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.tokens[token]
	if !ok {
		return nil, ErrUnauthorized
	}
	user := d.users[id]
	return &user, nil
}

// Get returns the registered user with the given id.
func (d *StaticDirectory) Get(_ context.Context, id uuid.UUID) (*User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	user, ok := d.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &user, nil
}
