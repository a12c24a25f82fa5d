package memory

import (
	"context"
	"testing"
	"time"

	"github.com/rbroggi/referralhub/internal/core/model"
	"github.com/rbroggi/referralhub/internal/core/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var dummyTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newDB() *MemoryDB {
	return NewMemoryDB(WithNowFunc(func() time.Time { return dummyTime }))
}

func TestMemoryDB_SaveUser(t *testing.T) {
	db := newDB()
	alice := &model.User{Name: "Alice", Email: "alice@example.com", ReferralCode: "ALI1111"}
	require.NoError(t, db.SaveUser(context.Background(), alice))
	assert.NotEmpty(t, alice.ID)
	assert.Equal(t, dummyTime, alice.CreatedAt)
	assert.NotNil(t, alice.Referrals)

	err := db.SaveUser(context.Background(), &model.User{Email: "alice@example.com", ReferralCode: "ALI2222"})
	assert.ErrorIs(t, err, model.ErrDuplicateEmail)

	err = db.SaveUser(context.Background(), &model.User{Email: "other@example.com", ReferralCode: "ALI1111"})
	assert.ErrorIs(t, err, model.ErrDuplicateReferralCode)

	// mutating the input afterwards does not leak into the store
	alice.Name = "changed"
	got, err := db.GetUser(context.Background(), ports.GetUserQuery{ID: alice.ID})
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.Name)
}

func TestMemoryDB_DeletedUsers(t *testing.T) {
	db := newDB()
	alice := &model.User{Name: "Alice", Email: "alice@example.com", ReferralCode: "ALI1111"}
	require.NoError(t, db.SaveUser(context.Background(), alice))
	require.NoError(t, db.DeleteUser(context.Background(), ports.DeleteUserQuery{ID: alice.ID}))
	assert.ErrorIs(t, db.DeleteUser(context.Background(), ports.DeleteUserQuery{ID: alice.ID}), model.ErrNotFound)

	_, err := db.GetUser(context.Background(), ports.GetUserQuery{Email: "alice@example.com"})
	assert.ErrorIs(t, err, model.ErrNotFound)
	got, err := db.GetUser(context.Background(), ports.GetUserQuery{ID: alice.ID, IncludeDeleted: true})
	require.NoError(t, err)
	assert.True(t, got.IsDeleted)

	// the email is free again but the code stays taken
	require.NoError(t, db.SaveUser(context.Background(), &model.User{Email: "alice@example.com", ReferralCode: "ALI2222"}))
	err = db.SaveUser(context.Background(), &model.User{Email: "x@example.com", ReferralCode: "ALI1111"})
	assert.ErrorIs(t, err, model.ErrDuplicateReferralCode)

	assert.ErrorIs(t, db.UpdateUser(context.Background(), &model.User{ID: alice.ID, Name: "x"}), model.ErrNotFound)
	_, err = db.RedeemPoints(context.Background(), alice.ID, 1)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestMemoryDB_SaveReferredUser(t *testing.T) {
	db := newDB()
	alice := &model.User{Name: "Alice", Email: "alice@example.com", ReferralCode: "ALI1111"}
	require.NoError(t, db.SaveUser(context.Background(), alice))

	bob := &model.User{Name: "Bob", Email: "bob@example.com", ReferralCode: "BOB1111", ReferrerID: alice.ID}
	require.NoError(t, db.SaveReferredUser(context.Background(), bob, 10))

	got, err := db.GetUser(context.Background(), ports.GetUserQuery{ID: alice.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(10), got.RewardPoints)
	assert.Equal(t, []string{bob.ID}, got.Referrals)

	dup := &model.User{Name: "Dup", Email: "dup@example.com", ReferralCode: "BOB1111", ReferrerID: alice.ID}
	assert.ErrorIs(t, db.SaveReferredUser(context.Background(), dup, 10), model.ErrDuplicateReferralCode)
	got, err = db.GetUser(context.Background(), ports.GetUserQuery{ID: alice.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(10), got.RewardPoints)

	orphan := &model.User{Name: "Orphan", Email: "orphan@example.com", ReferralCode: "ORP1111", ReferrerID: "missing"}
	assert.ErrorIs(t, db.SaveReferredUser(context.Background(), orphan, 10), model.ErrInvalidReferralCode)
}

func TestMemoryDB_ListUsers(t *testing.T) {
	db := newDB()
	var ids []string
	for i, code := range []string{"AAA1000", "BBB1000", "CCC1000"} {
		u := &model.User{Email: code + "@example.com", ReferralCode: code}
		require.NoError(t, db.SaveUser(context.Background(), u))
		ids = append(ids, u.ID)
		if i == 1 {
			require.NoError(t, db.DeleteUser(context.Background(), ports.DeleteUserQuery{ID: u.ID}))
		}
	}

	tests := []struct {
		name        string
		query       ports.ListUsersQuery
		expectedIDs []string
	}{
		{name: "active only", query: ports.ListUsersQuery{}, expectedIDs: []string{ids[0], ids[2]}},
		{name: "include deleted", query: ports.ListUsersQuery{IncludeDeleted: true}, expectedIDs: ids},
		{name: "limit", query: ports.ListUsersQuery{IncludeDeleted: true, Limit: 1}, expectedIDs: ids[:1]},
		{name: "offset", query: ports.ListUsersQuery{IncludeDeleted: true, Offset: 1}, expectedIDs: ids[1:]},
		{name: "offset past the end", query: ports.ListUsersQuery{Offset: 5}, expectedIDs: []string{}},
		{name: "by ids", query: ports.ListUsersQuery{IDs: []string{ids[2], "missing"}}, expectedIDs: ids[2:]},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			res, err := db.ListUsers(context.Background(), test.query)
			require.NoError(t, err)
			got := make([]string, 0, len(res.Users))
			for _, u := range res.Users {
				got = append(got, u.ID)
			}
			assert.Equal(t, test.expectedIDs, got)
		})
	}
}

func TestMemoryDB_CancelledContext(t *testing.T) {
	db := newDB()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, db.SaveUser(ctx, &model.User{}), context.Canceled)
	_, err := db.GetUser(ctx, ports.GetUserQuery{ID: "x"})
	assert.ErrorIs(t, err, context.Canceled)
}
