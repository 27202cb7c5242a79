package passkey

import (
	"crypto/rand"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zentity-id/go-zentity-server/types"
)

const (
	ChallengeSize = 32
	ChallengeTTL  = 5 * time.Minute
)

// Challenge is a single-use authentication challenge.
type Challenge struct {
	ID        string
	Value     []byte
	ExpiresAt time.Time
}

// ChallengeStore issues and consumes single-use challenges. Lookup and delete
// happen under one lock so the same id can never verify twice, even under
// concurrent assertions.
type ChallengeStore struct {
	mu         sync.Mutex
	challenges map[string]*Challenge
	ttl        time.Duration
	now        func() time.Time
	rand       io.Reader
}

type StoreOption func(*ChallengeStore)

// WithClock injects the time source (tests).
func WithClock(now func() time.Time) StoreOption {
	return func(s *ChallengeStore) { s.now = now }
}

// WithRandomness injects the randomness source (tests).
func WithRandomness(r io.Reader) StoreOption {
	return func(s *ChallengeStore) { s.rand = r }
}

// WithTTL overrides the default 5 minute challenge lifetime.
func WithTTL(ttl time.Duration) StoreOption {
	return func(s *ChallengeStore) { s.ttl = ttl }
}

func NewChallengeStore(opts ...StoreOption) *ChallengeStore {
	s := &ChallengeStore{
		challenges: make(map[string]*Challenge),
		ttl:        ChallengeTTL,
		now:        time.Now,
		rand:       rand.Reader,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue creates a fresh random challenge keyed by an unguessable id.
func (s *ChallengeStore) Issue() (*Challenge, error) {
	value := make([]byte, ChallengeSize)
	if _, err := io.ReadFull(s.rand, value); err != nil {
		return nil, err
	}
	ch := &Challenge{
		ID:        uuid.NewString(),
		Value:     value,
		ExpiresAt: s.now().Add(s.ttl),
	}
	s.mu.Lock()
	s.challenges[ch.ID] = ch
	s.mu.Unlock()
	return ch, nil
}

// Consume removes the challenge and returns its value. Expired challenges are
// deleted and reported as expired. The remove happens before the value is
// handed out, so a second concurrent Consume of the same id always fails.
func (s *ChallengeStore) Consume(id string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.challenges[id]
	if !ok {
		return nil, types.ErrChallengeNotFound
	}
	delete(s.challenges, id)
	if s.now().After(ch.ExpiresAt) {
		return nil, types.ErrChallengeExpired
	}
	return ch.Value, nil
}

// RemoveExpired garbage-collects challenges past their TTL. Wired to a cron
// schedule at startup.
func (s *ChallengeStore) RemoveExpired() {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ch := range s.challenges {
		if now.After(ch.ExpiresAt) {
			delete(s.challenges, id)
		}
	}
}

// Len reports the number of live challenges (metrics).
func (s *ChallengeStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.challenges)
}
