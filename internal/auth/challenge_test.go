// challenge_test.go - Tests for challenge issuance and lifecycle.
package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zunaedsazzad/halp-core/internal/circuit"
)

func newTestStore(ttl, sweep time.Duration) *ChallengeStore {
	return NewChallengeStore(ttl, sweep, func() string { return "00" })
}

func TestIssueChallenge(t *testing.T) {
	s := newTestStore(time.Minute, time.Hour)
	defer s.Close()

	ch, err := s.Issue("example.com")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(ch.ID, "ch_"))
	assert.Len(t, ch.Value, 64)
	assert.Equal(t, "example.com", ch.Domain)
	assert.Equal(t, "00", ch.RegistryRoot)
	assert.Equal(t, circuit.CircuitID, ch.CircuitID)
	assert.Greater(t, ch.ExpiresAt, time.Now().UnixMilli())

	got, ok := s.Get(ch.ID)
	require.True(t, ok)
	assert.Equal(t, ch.Value, got.Value)

	// Fresh challenges get fresh ids and values.
	other, err := s.Issue("example.com")
	require.NoError(t, err)
	assert.NotEqual(t, ch.ID, other.ID)
	assert.NotEqual(t, ch.Value, other.Value)
}

func TestConsumeIsIdempotent(t *testing.T) {
	s := newTestStore(time.Minute, time.Hour)
	defer s.Close()

	ch, err := s.Issue("example.com")
	require.NoError(t, err)
	require.Equal(t, 1, s.Len())

	s.Consume(ch.ID)
	assert.Equal(t, 0, s.Len())
	_, ok := s.Get(ch.ID)
	assert.False(t, ok)

	s.Consume(ch.ID) // second consume is a no-op
	assert.Equal(t, 0, s.Len())
}

func TestSweeperEvictsExpired(t *testing.T) {
	s := newTestStore(10*time.Millisecond, 20*time.Millisecond)
	defer s.Close()

	_, err := s.Issue("example.com")
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return s.Len() == 0 },
		time.Second, 10*time.Millisecond)
}

func TestCloseIsIdempotent(t *testing.T) {
	s := newTestStore(time.Minute, time.Hour)
	s.Close()
	s.Close()
}
