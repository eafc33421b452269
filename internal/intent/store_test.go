//go:build integration

package intent

import (
	"context"
	"sync"
	"testing"
	"time"

	"lnbroker/internal/clockid"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *DB) {
	t.Helper()
	db := SetupTestDB(t)
	store := NewStore(db, clockid.SystemClock{}, 15*time.Minute)
	return store, db
}

func sampleIntent(hash string) *PaymentIntent {
	return &PaymentIntent{
		PaymentHash:    hash,
		TotalAmountSat: 1000,
		BaseAmountSat:  1000,
		TipAmountSat:   0,
		Environment:    EnvironmentProduction,
		Destination: Destination{
			Mode:        DestinationAPIKey,
			APIKey:      "key-123",
			APIWalletID: "wallet-abc",
		},
	}
}

func TestStore_InsertAndGet(t *testing.T) {
	store, db := newTestStore(t)
	defer db.Close()
	defer CleanupTestDB(t, db)

	ctx := context.Background()
	in := sampleIntent("hash-1")
	require.NoError(t, store.Insert(ctx, in))

	got, err := store.Get(ctx, "hash-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, StatusPending, got.Status)
	assert.Equal(t, int64(1000), got.TotalAmountSat)
	assert.Equal(t, DestinationAPIKey, got.Destination.Mode)
	assert.Equal(t, "key-123", got.Destination.APIKey)
}

func TestStore_InsertDuplicate(t *testing.T) {
	store, db := newTestStore(t)
	defer db.Close()
	defer CleanupTestDB(t, db)

	ctx := context.Background()
	require.NoError(t, store.Insert(ctx, sampleIntent("hash-dup")))
	err := store.Insert(ctx, sampleIntent("hash-dup"))
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestStore_GetMissing(t *testing.T) {
	store, db := newTestStore(t)
	defer db.Close()
	defer CleanupTestDB(t, db)

	got, err := store.Get(context.Background(), "does-not-exist")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStore_TryClaim_AtMostOne(t *testing.T) {
	store, db := newTestStore(t)
	defer db.Close()
	defer CleanupTestDB(t, db)

	ctx := context.Background()
	require.NoError(t, store.Insert(ctx, sampleIntent("hash-claim")))

	const callers = 64
	var wg sync.WaitGroup
	results := make([]ClaimOutcome, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := store.TryClaim(ctx, "hash-claim", nil)
			require.NoError(t, err)
			results[i] = res.Outcome
		}(i)
	}
	wg.Wait()

	claimed := 0
	processing := 0
	for _, r := range results {
		switch r {
		case ClaimOutcomeClaimed:
			claimed++
		case ClaimOutcomeAlreadyProcessing:
			processing++
		}
	}
	assert.Equal(t, 1, claimed)
	assert.Equal(t, callers-1, processing)
}

func TestStore_TryClaim_NotFound(t *testing.T) {
	store, db := newTestStore(t)
	defer db.Close()
	defer CleanupTestDB(t, db)

	res, err := store.TryClaim(context.Background(), "ghost", nil)
	require.NoError(t, err)
	assert.Equal(t, ClaimOutcomeNotFound, res.Outcome)
}

func TestStore_ReleaseAndReclaim(t *testing.T) {
	store, db := newTestStore(t)
	defer db.Close()
	defer CleanupTestDB(t, db)

	ctx := context.Background()
	require.NoError(t, store.Insert(ctx, sampleIntent("hash-release")))

	claim, err := store.TryClaim(ctx, "hash-release", nil)
	require.NoError(t, err)
	require.Equal(t, ClaimOutcomeClaimed, claim.Outcome)

	ok, err := store.Release(ctx, "hash-release", "base adapter timeout")
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := store.Get(ctx, "hash-release")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
	assert.Nil(t, got.ProcessedAt)
	assert.Equal(t, "base adapter timeout", got.Metadata["last_error"])

	reclaim, err := store.TryClaim(ctx, "hash-release", nil)
	require.NoError(t, err)
	assert.Equal(t, ClaimOutcomeClaimed, reclaim.Outcome)
}

func TestStore_ReleaseNotProcessing(t *testing.T) {
	store, db := newTestStore(t)
	defer db.Close()
	defer CleanupTestDB(t, db)

	ctx := context.Background()
	require.NoError(t, store.Insert(ctx, sampleIntent("hash-idle")))

	ok, err := store.Release(ctx, "hash-idle", "irrelevant")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_MarkStatusCompleted(t *testing.T) {
	store, db := newTestStore(t)
	defer db.Close()
	defer CleanupTestDB(t, db)

	ctx := context.Background()
	require.NoError(t, store.Insert(ctx, sampleIntent("hash-complete")))
	_, err := store.TryClaim(ctx, "hash-complete", nil)
	require.NoError(t, err)

	require.NoError(t, store.MarkStatus(ctx, "hash-complete", StatusCompleted, nil))

	got, err := store.Get(ctx, "hash-complete")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.NotNil(t, got.ProcessedAt)
}

func TestStore_MarkStatusNotFound(t *testing.T) {
	store, db := newTestStore(t)
	defer db.Close()
	defer CleanupTestDB(t, db)

	err := store.MarkStatus(context.Background(), "ghost", StatusFailed, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_ExpireBefore(t *testing.T) {
	fixed := &clockid.FixedClock{At: time.Now().UTC()}
	db := SetupTestDB(t)
	defer db.Close()
	defer CleanupTestDB(t, db)
	store := NewStore(db, fixed, 15*time.Minute)

	ctx := context.Background()
	require.NoError(t, store.Insert(ctx, sampleIntent("hash-expire")))

	fixed.Advance(16 * time.Minute)
	hashes, err := store.ExpireBefore(ctx, fixed.Now())
	require.NoError(t, err)
	assert.Contains(t, hashes, "hash-expire")

	got, err := store.Get(ctx, "hash-expire")
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, got.Status)
}

func TestStore_AppendEventAndStats(t *testing.T) {
	store, db := newTestStore(t)
	defer db.Close()
	defer CleanupTestDB(t, db)

	ctx := context.Background()
	require.NoError(t, store.Insert(ctx, sampleIntent("hash-stats")))
	store.AppendEvent(ctx, "hash-stats", EventCreated, OutcomeSuccess, nil, "")

	snap, err := store.Stats(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), snap.ByStatus[StatusPending])
	assert.Equal(t, int64(1000), snap.TotalAmountSat)
}
