package account

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/ovaphlow/pitchfork/service-identity-go/internal/account/entity"
)

func seedArtist(f *fixture, userID, profileID, artistName string) *entity.Profile {
	return f.profiles.put(entity.TableArtistProfiles, &entity.Profile{
		Kind: entity.TypeArtist, ID: profileID, UserID: userID, ArtistName: strPtr(artistName),
	})
}

func TestResolvePostingIdentityCreatesArtistAccount(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	seedArtist(f, "u1", "ap-1", "Midnight Collective")

	id, err := f.svc.Resolver.ResolvePostingIdentity(ctx, "u1", entity.TypeArtist)
	require.NoError(t, err)
	assert.NotEmpty(t, id.AccountID)
	assert.Equal(t, entity.TypeArtist, id.AccountType)
	assert.Equal(t, entity.DisplayInfo{DisplayName: "Midnight Collective", Username: "midnight-collective"}, id.Display)

	stored, err := f.accounts.GetByID(ctx, id.AccountID)
	require.NoError(t, err)
	assert.Equal(t, "u1", stored.OwnerUserID)
	assert.Equal(t, entity.TableArtistProfiles, stored.ProfileTable)
	assert.Equal(t, "ap-1", stored.ProfileID)
	assert.Equal(t, "Midnight Collective", stored.DisplayName)
	assert.True(t, stored.IsActive)

	again, err := f.svc.Resolver.ResolvePostingIdentity(ctx, "u1", entity.TypeArtist)
	require.NoError(t, err)
	assert.Equal(t, id.AccountID, again.AccountID)
	assert.Equal(t, id.Display, again.Display)
	assert.Equal(t, 1, f.accounts.count())
	assert.Contains(t, f.pub.names(), EventAccountCreated)
}

func TestResolvePostingIdentityWithoutProfile(t *testing.T) {
	f := newFixture()

	_, err := f.svc.Resolver.ResolvePostingIdentity(context.Background(), "u1", entity.TypeVenue)
	require.ErrorIs(t, err, ErrProfileNotFound)
	assert.EqualError(t, err, "Unable to verify venue account for posting")
	assert.Equal(t, ClassCorrectable, Classify(err))
	assert.Zero(t, f.accounts.count())
	assert.Empty(t, f.pub.names())
}

func TestResolvePostingIdentityRejectsNonAuthoringTypes(t *testing.T) {
	f := newFixture()
	for _, typ := range []entity.AccountType{entity.TypeAdmin, "producer", ""} {
		_, err := f.svc.Resolver.ResolvePostingIdentity(context.Background(), "u1", typ)
		assert.ErrorIs(t, err, ErrInvalidAccountType, "type %q", typ)
	}
	assert.Zero(t, f.accounts.count())
}

func TestResolvePostingIdentityPrimary(t *testing.T) {
	f := newFixture()
	f.profiles.put(entity.TableProfiles, &entity.Profile{
		Kind: entity.TypePrimary, ID: "p-1", UserID: "u1", FullName: strPtr("Ada Park"), Username: strPtr("ada"),
	})

	id, err := f.svc.Resolver.ResolvePostingIdentity(context.Background(), "u1", entity.TypePrimary)
	require.NoError(t, err)
	assert.Equal(t, "Ada Park", id.Display.DisplayName)
	assert.Equal(t, "ada", id.Display.Username)
}

func TestResolvePostingIdentityStoreDown(t *testing.T) {
	f := newFixture()
	f.profiles.err = errStoreDown

	_, err := f.svc.Resolver.ResolvePostingIdentity(context.Background(), "u1", entity.TypeArtist)
	require.ErrorIs(t, err, ErrTransientStore)
	assert.ErrorIs(t, err, errStoreDown)
	assert.Equal(t, ClassRetryable, Classify(err))
}

func TestResolvePostingIdentityConcurrent(t *testing.T) {
	f := newFixture()
	seedArtist(f, "u1", "ap-1", "Midnight Collective")

	const n = 32
	ids := make([]string, n)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			id, err := f.svc.Resolver.ResolvePostingIdentity(context.Background(), "u1", entity.TypeArtist)
			if err != nil {
				return err
			}
			ids[i] = id.AccountID
			return nil
		})
	}
	require.NoError(t, g.Wait())

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	assert.Equal(t, 1, f.accounts.count())
	assert.Equal(t, 1, f.accounts.inserts)
}

func TestFindOrCreateAccountLostRace(t *testing.T) {
	f := newFixture()
	seedArtist(f, "u1", "ap-1", "Midnight Collective")
	f.accounts.conflicts = 1

	id, created, err := f.svc.Store.FindOrCreateAccount(context.Background(), "u1", entity.TypeArtist, entity.TableArtistProfiles, "ap-1")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Contains(t, id, "winner-")
	assert.Equal(t, 1, f.accounts.count())
}

func TestFindOrCreateAccountRereadFails(t *testing.T) {
	f := newFixture()
	seedArtist(f, "u1", "ap-1", "Midnight Collective")
	f.accounts.conflicts = 1
	f.accounts.getErr = errStoreDown

	_, _, err := f.svc.Store.FindOrCreateAccount(context.Background(), "u1", entity.TypeArtist, entity.TableArtistProfiles, "ap-1")
	assert.ErrorIs(t, err, ErrTransientStore)
}

func TestFindOrCreateAccountValidation(t *testing.T) {
	f := newFixture()
	seedArtist(f, "u2", "ap-2", "Someone Else")
	ctx := context.Background()

	cases := []struct {
		name    string
		typ     entity.AccountType
		table   string
		profile string
		want    error
	}{
		{"unknown type", "producer", entity.TableArtistProfiles, "ap-2", ErrInvalidAccountType},
		{"table mismatch", entity.TypeArtist, entity.TableProfiles, "ap-2", ErrInvalidAccountType},
		{"unknown table", entity.TypeArtist, "band_profiles", "ap-2", ErrInvalidAccountType},
		{"missing profile", entity.TypeArtist, entity.TableArtistProfiles, "nope", ErrProfileNotFound},
		{"foreign profile", entity.TypeArtist, entity.TableArtistProfiles, "ap-2", ErrOwnershipViolation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := f.svc.Store.FindOrCreateAccount(ctx, "u1", tc.typ, tc.table, tc.profile)
			assert.ErrorIs(t, err, tc.want)
		})
	}
	assert.Zero(t, f.accounts.count())
}

func TestFindOrCreateAccountOneRowPerType(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	seedArtist(f, "u1", "ap-1", "Midnight Collective")
	seedArtist(f, "u1", "ap-2", "Side Project")

	first, created, err := f.svc.Store.FindOrCreateAccount(ctx, "u1", entity.TypeArtist, entity.TableArtistProfiles, "ap-1")
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := f.svc.Store.FindOrCreateAccount(ctx, "u1", entity.TypeArtist, entity.TableArtistProfiles, "ap-2")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first, second)
}

func TestProvisionAccount(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.profiles.put(entity.TableProfiles, &entity.Profile{
		Kind: entity.TypePrimary, ID: "p-1", UserID: "u1", FullName: strPtr("Dana Reyes"),
	})

	id, created, err := f.svc.Store.ProvisionAccount(ctx, "u1", entity.TypeAdmin)
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := f.svc.Store.ProvisionAccount(ctx, "u1", entity.TypeAdmin)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, id, again)

	a, err := f.svc.Store.GetAccount(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, entity.TypeAdmin, a.AccountType)
	assert.Equal(t, entity.TableProfiles, a.ProfileTable)
	assert.Equal(t, "p-1", a.ProfileID)

	_, _, err = f.svc.Store.ProvisionAccount(ctx, "u1", entity.TypeVenue)
	assert.ErrorIs(t, err, ErrProfileNotFound)
	_, _, err = f.svc.Store.ProvisionAccount(ctx, "u1", "producer")
	assert.ErrorIs(t, err, ErrInvalidAccountType)
	assert.Equal(t, 1, f.accounts.count())

	f.profiles.err = errStoreDown
	_, _, err = f.svc.Store.ProvisionAccount(ctx, "u1", entity.TypeArtist)
	assert.ErrorIs(t, err, ErrTransientStore)
}

func TestDeactivate(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.accounts.put(&entity.Account{ID: "a1", OwnerUserID: "u1", AccountType: entity.TypeArtist, IsActive: true})

	assert.ErrorIs(t, f.svc.Store.Deactivate(ctx, "u2", "a1"), ErrOwnershipViolation)
	assert.ErrorIs(t, f.svc.Store.Deactivate(ctx, "u1", "missing"), ErrAccountNotFound)

	require.NoError(t, f.svc.Store.Deactivate(ctx, "u1", "a1"))
	require.NoError(t, f.svc.Store.Deactivate(ctx, "u1", "a1"))

	list, err := f.svc.Store.ListAccounts(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Equal(t, []string{EventAccountDeactivated}, f.pub.names())
}

func TestListAccountsNewestFirst(t *testing.T) {
	f := newFixture()
	f.accounts.put(&entity.Account{ID: "old", OwnerUserID: "u1", AccountType: entity.TypePrimary, IsActive: true})
	f.accounts.put(&entity.Account{ID: "new", OwnerUserID: "u1", AccountType: entity.TypeArtist, IsActive: true})
	f.accounts.put(&entity.Account{ID: "other", OwnerUserID: "u2", AccountType: entity.TypeArtist, IsActive: true})

	list, err := f.svc.Store.ListAccounts(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "new", list[0].ID)
	assert.Equal(t, "old", list[1].ID)

	none, err := f.svc.Store.ListAccounts(context.Background(), "nobody")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestRecomputeStats(t *testing.T) {
	f := newFixture()
	f.accounts.put(&entity.Account{ID: "a1", OwnerUserID: "u1", IsActive: true, Stats: entity.Stats{FollowerCount: 3, PostCount: 2}})

	st, err := f.svc.Store.RecomputeStats(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), st.FollowerCount)
	assert.Equal(t, []string{EventStatsRecomputed}, f.pub.names())

	_, err = f.svc.Store.RecomputeStats(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestPublishFailureDoesNotFailOperation(t *testing.T) {
	f := newFixture()
	f.pub.err = errStoreDown
	seedArtist(f, "u1", "ap-1", "Midnight Collective")

	_, err := f.svc.Resolver.ResolvePostingIdentity(context.Background(), "u1", entity.TypeArtist)
	assert.NoError(t, err)
}
