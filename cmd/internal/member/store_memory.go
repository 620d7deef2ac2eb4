package member

import (
	"context"
	"strings"
	"sync"
)

// InMemoryDirectory is a dev/test Directory.
type InMemoryDirectory struct {
	mu      sync.RWMutex
	members map[string]Member
}

// NewInMemoryDirectory constructs a directory seeded with members.
func NewInMemoryDirectory(seed ...Member) *InMemoryDirectory {
	d := &InMemoryDirectory{members: make(map[string]Member, len(seed))}
	for _, m := range seed {
		d.members[m.ID] = m
	}
	return d
}

// Put inserts or replaces a member.
func (d *InMemoryDirectory) Put(m Member) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.members[m.ID] = m
}

// Delete removes a member.
func (d *InMemoryDirectory) Delete(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.members, id)
}

// GetMember implements Directory.
func (d *InMemoryDirectory) GetMember(ctx context.Context, id string) (Member, error) {
	if err := ctx.Err(); err != nil {
		return Member{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return Member{}, ErrInvalidInput
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	m, ok := d.members[id]
	if !ok {
		return Member{}, ErrNotFound
	}
	return m, nil
}
