package directory

import (
	"context"
	"sort"
	"sync"

	"courier/domain"
	"courier/errors"
)

// MemoryDirectory is an in-process implementation of the directory port,
// used by tests and local runs without the platform around.
type MemoryDirectory struct {
	mu    sync.RWMutex
	users map[string]domain.User
}

func NewMemoryDirectory(users ...domain.User) *MemoryDirectory {
	d := &MemoryDirectory{users: make(map[string]domain.User)}
	for _, u := range users {
		d.users[u.ID] = u
	}
	return d
}

// Put registers or replaces a user, standing in for the platform's
// account management.
func (d *MemoryDirectory) Put(user domain.User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[user.ID] = user
}

func (d *MemoryDirectory) CurrentUser(_ context.Context, userID string) (domain.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	user, ok := d.users[userID]
	if !ok {
		return domain.User{}, errors.ErrUserNotFound
	}
	return user, nil
}

func (d *MemoryDirectory) LookupUsers(_ context.Context, excludingID string) ([]domain.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var users []domain.User
	for id, user := range d.users {
		if id == excludingID {
			continue
		}
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (d *MemoryDirectory) Exists(_ context.Context, userID string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.users[userID]
	return ok, nil
}
