package usecase

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rbroggi/referralhub/internal/actors/memory"
	"github.com/rbroggi/referralhub/internal/core/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReferralService_GetReferralInfo(t *testing.T) {
	repo := memory.NewMemoryDB()
	users := newTestUserService(repo, WithCodeGenerator(sequenceCodes("ALI1111")))
	referrals := NewReferralService(ReferralServiceArgs{Repository: repo})

	alice := mustRegister(t, users, model.RegisterArgs{Name: "Alice", Email: "alice@example.com", Password: "pw"})
	bob := mustRegister(t, users, model.RegisterArgs{Name: "Bob", Email: "bob@example.com", Password: "pw", ReferralCode: "ALI1111"})
	carol := mustRegister(t, users, model.RegisterArgs{Name: "Carol", Email: "carol@example.com", Password: "pw", ReferralCode: "ALI1111"})
	require.NoError(t, users.DeleteUser(context.Background(), model.DeleteUserArgs{ID: bob.User.ID}))

	info, err := referrals.GetReferralInfo(context.Background(), alice.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "ALI1111", info.ReferralCode)
	assert.Equal(t, int64(20), info.RewardPoints)
	assert.Equal(t, []model.ReferredUser{
		{ID: bob.User.ID, Name: DeactivatedUserName, Deactivated: true},
		{ID: carol.User.ID, Name: "Carol", Email: "carol@example.com"},
	}, info.Referrals)
}

func TestReferralService_GetReferralInfo_NoReferrals(t *testing.T) {
	repo := memory.NewMemoryDB()
	users := newTestUserService(repo)
	referrals := NewReferralService(ReferralServiceArgs{Repository: repo})
	alice := mustRegister(t, users, model.RegisterArgs{Name: "Alice", Email: "alice@example.com", Password: "pw"})

	info, err := referrals.GetReferralInfo(context.Background(), alice.User.ID)
	require.NoError(t, err)
	assert.NotNil(t, info.Referrals)
	assert.Empty(t, info.Referrals)

	_, err = referrals.GetReferralInfo(context.Background(), "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestReferralService_Redeem(t *testing.T) {
	tests := []struct {
		name              string
		points            int64
		expectedErr       error
		expectedRemaining int64
	}{
		{name: "balance above cost", points: 70, expectedRemaining: 20},
		{name: "balance equal to cost", points: 50, expectedRemaining: 0},
		{name: "balance below cost", points: 49, expectedErr: model.ErrInsufficientPoints},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			repo := memory.NewMemoryDB()
			user := &model.User{Name: "Alice", Email: "alice@example.com", ReferralCode: "ALI1111", RewardPoints: test.points}
			require.NoError(t, repo.SaveUser(context.Background(), user))
			s := NewReferralService(ReferralServiceArgs{Repository: repo})

			res, err := s.Redeem(context.Background(), user.ID)
			if test.expectedErr != nil {
				assert.ErrorIs(t, err, test.expectedErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, DefaultRedemptionCost, res.Redeemed)
			assert.Equal(t, test.expectedRemaining, res.RemainingPoints)
		})
	}
}

func TestReferralService_Redeem_Concurrent(t *testing.T) {
	repo := memory.NewMemoryDB()
	user := &model.User{Name: "Alice", Email: "alice@example.com", ReferralCode: "ALI1111", RewardPoints: 120}
	require.NoError(t, repo.SaveUser(context.Background(), user))
	s := NewReferralService(ReferralServiceArgs{Repository: repo, RedemptionCost: 50})

	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Redeem(context.Background(), user.ID); err == nil {
				succeeded.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(2), succeeded.Load())
	info, err := NewReferralService(ReferralServiceArgs{Repository: repo}).GetReferralInfo(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(20), info.RewardPoints)
}

func TestReferralService_Redeem_DeletedUser(t *testing.T) {
	repo := memory.NewMemoryDB()
	users := newTestUserService(repo)
	alice := mustRegister(t, users, model.RegisterArgs{Name: "Alice", Email: "alice@example.com", Password: "pw"})
	require.NoError(t, users.DeleteUser(context.Background(), model.DeleteUserArgs{ID: alice.User.ID}))

	_, err := NewReferralService(ReferralServiceArgs{Repository: repo}).Redeem(context.Background(), alice.User.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
}
