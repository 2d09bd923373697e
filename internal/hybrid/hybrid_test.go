// hybrid_test.go - Tests for the prover pool and the wire conversions.
package hybrid

import (
	"context"
	"encoding/hex"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	bn254_fr "github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zunaedsazzad/halp-core/internal/curve"
)

func TestPoolRunsWork(t *testing.T) {
	p := NewPool(2)
	ran := false
	err := p.Do(context.Background(), func() error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
}

func TestPoolPropagatesError(t *testing.T) {
	p := NewPool(1)
	want := errors.New("prover exploded")
	err := p.Do(context.Background(), func() error { return want })
	assert.ErrorIs(t, err, want)
}

func TestPoolTimesOutWhileQueued(t *testing.T) {
	p := NewPool(1)

	release := make(chan struct{})
	occupied := make(chan struct{})
	go func() {
		_ = p.Do(context.Background(), func() error {
			close(occupied)
			<-release
			return nil
		})
	}()
	<-occupied
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := p.Do(ctx, func() error { return nil })
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestPoolCanceledContext(t *testing.T) {
	p := NewPool(1)

	release := make(chan struct{})
	occupied := make(chan struct{})
	go func() {
		_ = p.Do(context.Background(), func() error {
			close(occupied)
			<-release
			return nil
		})
	}()
	<-occupied
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := p.Do(ctx, func() error { return nil })
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestFrBNHexRoundtrip(t *testing.T) {
	e, err := curve.RandomFrBN()
	require.NoError(t, err)

	s := FrBNToHex(e)
	assert.Len(t, s, 64)
	assert.Equal(t, strings.ToLower(s), s)

	got, err := FrBNFromHex(s)
	require.NoError(t, err)
	assert.True(t, got.Equal(&e))
}

func TestFrBNFromHexRejectsMalformed(t *testing.T) {
	_, err := FrBNFromHex("zz")
	assert.Error(t, err)

	_, err = FrBNFromHex("abcd") // too short
	assert.Error(t, err)
}

func TestChallengeToFrBN(t *testing.T) {
	var e bn254_fr.Element
	e.SetUint64(7)
	got, err := ChallengeToFrBN(FrBNToHex(e))
	require.NoError(t, err)
	assert.True(t, got.Equal(&e))

	// Values above the BN254 modulus reduce instead of failing; the hex
	// challenge comes from the BLS field.
	over := strings.Repeat("ff", 32)
	got, err = ChallengeToFrBN(over)
	require.NoError(t, err)
	overBytes, err := hex.DecodeString(over)
	require.NoError(t, err)
	want := curve.ReduceToFrBN(new(big.Int).SetBytes(overBytes))
	assert.True(t, got.Equal(&want))

	_, err = ChallengeToFrBN("not-hex")
	assert.Error(t, err)
}

func TestPublicSignalsDecimal(t *testing.T) {
	mk := func(v uint64) string {
		var e bn254_fr.Element
		e.SetUint64(v)
		return FrBNToHex(e)
	}
	s := &PublicSignals{
		Pseudonym:      mk(1),
		Nullifier:      mk(2),
		CommitmentHash: mk(3),
		RegistryRoot:   mk(4),
		Challenge:      mk(5),
	}
	dec, err := s.Decimal()
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3", "4", "5"}, dec.Slice())

	s.Challenge = "short"
	_, err = s.Decimal()
	assert.Error(t, err)
}
