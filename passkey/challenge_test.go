package passkey

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/zentity-id/go-zentity-server/types"
)

func TestChallengeIsSingleUse(t *testing.T) {
	store := NewChallengeStore()
	ch, err := store.Issue()
	if err != nil {
		t.Fatal(err)
	}
	assert.Len(t, ch.Value, ChallengeSize)

	value, cErr := store.Consume(ch.ID)
	assert.NoError(t, cErr)
	assert.Equal(t, ch.Value, value)

	_, cErr = store.Consume(ch.ID)
	assert.ErrorIs(t, cErr, types.ErrChallengeNotFound)
}

func TestChallengeUnknownID(t *testing.T) {
	store := NewChallengeStore()
	_, err := store.Consume("never-issued")
	assert.ErrorIs(t, err, types.ErrChallengeNotFound)
}

func TestChallengeExpiry(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := &now
	store := NewChallengeStore(WithClock(func() time.Time { return *clock }))

	ch, err := store.Issue()
	if err != nil {
		t.Fatal(err)
	}

	// one millisecond before the deadline still verifies
	later := now.Add(ChallengeTTL - time.Millisecond)
	clock = &later

	value, cErr := store.Consume(ch.ID)
	assert.NoError(t, cErr)
	assert.NotNil(t, value)

	ch2, _ := store.Issue()
	past := later.Add(ChallengeTTL + time.Millisecond)
	clock = &past

	_, cErr = store.Consume(ch2.ID)
	assert.ErrorIs(t, cErr, types.ErrChallengeExpired)

	// an expired challenge is gone, not retryable
	_, cErr = store.Consume(ch2.ID)
	assert.ErrorIs(t, cErr, types.ErrChallengeNotFound)
}

func TestRemoveExpired(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := &now
	store := NewChallengeStore(WithClock(func() time.Time { return *clock }))

	for i := 0; i < 5; i++ {
		store.Issue()
	}
	assert.Equal(t, 5, store.Len())

	later := now.Add(ChallengeTTL + time.Second)
	clock = &later
	fresh, _ := store.Issue()
	store.RemoveExpired()

	assert.Equal(t, 1, store.Len())
	_, err := store.Consume(fresh.ID)
	assert.NoError(t, err)
}

func TestConcurrentConsumeSingleWinner(t *testing.T) {
	store := NewChallengeStore()
	ch, err := store.Issue()
	if err != nil {
		t.Fatal(err)
	}

	const workers = 32
	var wg sync.WaitGroup
	wins := make(chan struct{}, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, cErr := store.Consume(ch.ID); cErr == nil {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	count := 0
	for range wins {
		count++
	}
	assert.Equal(t, 1, count)
}
