package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rbroggi/referralhub/internal/core/model"
	"github.com/rbroggi/referralhub/internal/core/ports"
)

// MemoryDB is an in-process adapter for persistance. State is lost on restart; it backs local runs and tests.
type MemoryDB struct {
	mu      sync.RWMutex
	users   map[string]model.User
	order   []string
	nowFunc func() time.Time
}

// MemoryDBOptArgs are the optional arguments for building a MemoryDB
type MemoryDBOptArgs = func(*MemoryDB)

// WithNowFunc can be used to override the nowFunc. Useful for testing.
func WithNowFunc(nowFunc func() time.Time) MemoryDBOptArgs {
	return func(m *MemoryDB) {
		m.nowFunc = nowFunc
	}
}

// NewMemoryDB creates a new, empty MemoryDB.
func NewMemoryDB(optArgs ...MemoryDBOptArgs) *MemoryDB {
	m := &MemoryDB{
		users:   make(map[string]model.User),
		nowFunc: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range optArgs {
		opt(m)
	}
	return m
}

// SaveUser will save the user in memory.
func (m *MemoryDB) SaveUser(ctx context.Context, user *model.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if user == nil {
		return errors.New("nil user passed to save method")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insert(user)
}

// SaveReferredUser saves the user and credits its referrer under the same lock.
func (m *MemoryDB) SaveReferredUser(ctx context.Context, user *model.User, bonus int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if user == nil {
		return errors.New("nil user passed to save method")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	referrer, ok := m.users[user.ReferrerID]
	if !ok || referrer.IsDeleted {
		return model.ErrInvalidReferralCode
	}
	if err := m.insert(user); err != nil {
		return err
	}
	referrer.Referrals = append(referrer.Referrals, user.ID)
	referrer.RewardPoints += bonus
	referrer.UpdatedAt = m.nowFunc()
	m.users[referrer.ID] = referrer
	return nil
}

// UpdateUser will update an active user. It returns model.ErrNotFound if the input user does not exist.
func (m *MemoryDB) UpdateUser(ctx context.Context, user *model.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if user == nil {
		return errors.New("nil user passed to update method")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.users[user.ID]
	if !ok || existing.IsDeleted {
		return model.ErrNotFound
	}
	if user.Email != "" && user.Email != existing.Email {
		if _, taken := m.activeByEmail(user.Email); taken {
			return model.ErrDuplicateEmail
		}
		existing.Email = user.Email
	}
	if user.Name != "" {
		existing.Name = user.Name
	}
	if user.PasswordHash != "" {
		existing.PasswordHash = user.PasswordHash
	}
	existing.UpdatedAt = m.nowFunc()
	m.users[existing.ID] = existing

	*user = existing.Clone()
	return nil
}

// GetUser returns the user matching the query.
func (m *MemoryDB) GetUser(ctx context.Context, query ports.GetUserQuery) (*model.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, id := range m.order {
		u := m.users[id]
		if u.IsDeleted && !query.IncludeDeleted {
			continue
		}
		if (query.ID != "" && u.ID == query.ID) ||
			(query.Email != "" && u.Email == query.Email) ||
			(query.ReferralCode != "" && u.ReferralCode == query.ReferralCode) {
			c := u.Clone()
			return &c, nil
		}
	}
	return nil, model.ErrNotFound
}

// ListUsers list users matching the parameters in input
func (m *MemoryDB) ListUsers(ctx context.Context, query ports.ListUsersQuery) (*ports.ListUsersResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var ids map[string]struct{}
	if len(query.IDs) > 0 {
		ids = make(map[string]struct{}, len(query.IDs))
		for _, id := range query.IDs {
			ids[id] = struct{}{}
		}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	users := []model.User{}
	for _, id := range m.order {
		u := m.users[id]
		if u.IsDeleted && !query.IncludeDeleted {
			continue
		}
		if ids != nil {
			if _, ok := ids[id]; !ok {
				continue
			}
		}
		users = append(users, u.Clone())
	}

	// Apply pagination
	start := int(query.Offset)
	if start > len(users) {
		start = len(users)
	}
	users = users[start:]
	if query.Limit != 0 && int(query.Limit) < len(users) {
		users = users[:query.Limit]
	}
	return &ports.ListUsersResult{Users: users}, nil
}

// DeleteUser soft-deletes the user.
func (m *MemoryDB) DeleteUser(ctx context.Context, query ports.DeleteUserQuery) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[query.ID]
	if !ok || u.IsDeleted {
		return model.ErrNotFound
	}
	u.IsDeleted = true
	u.UpdatedAt = m.nowFunc()
	m.users[u.ID] = u
	return nil
}

// RedeemPoints takes cost points from an active user balance.
func (m *MemoryDB) RedeemPoints(ctx context.Context, id string, cost int64) (*model.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok || u.IsDeleted {
		return nil, model.ErrNotFound
	}
	if u.RewardPoints < cost {
		return nil, model.ErrInsufficientPoints
	}
	u.RewardPoints -= cost
	u.UpdatedAt = m.nowFunc()
	m.users[id] = u
	c := u.Clone()
	return &c, nil
}

// insert requires the write lock.
func (m *MemoryDB) insert(user *model.User) error {
	if _, taken := m.activeByEmail(user.Email); taken {
		return model.ErrDuplicateEmail
	}
	for _, u := range m.users {
		if u.ReferralCode == user.ReferralCode {
			return model.ErrDuplicateReferralCode
		}
	}

	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	now := m.nowFunc()
	user.CreatedAt = now
	user.UpdatedAt = now
	if user.Referrals == nil {
		user.Referrals = []string{}
	}
	m.users[user.ID] = user.Clone()
	m.order = append(m.order, user.ID)
	return nil
}

func (m *MemoryDB) activeByEmail(email string) (model.User, bool) {
	for _, u := range m.users {
		if !u.IsDeleted && u.Email == email {
			return u, true
		}
	}
	return model.User{}, false
}
