// params_test.go - Tests for public parameter generation and persistence.
package params

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zunaedsazzad/halp-core/internal/curve"
)

func TestGenerate(t *testing.T) {
	pp, err := Generate(4)
	require.NoError(t, err)

	assert.Equal(t, 4, pp.MaxAttributes)
	assert.Len(t, pp.H, 4)
	require.NoError(t, Verify(pp))

	// Deterministic: generators come from fixed DSTs.
	pp2, err := Generate(4)
	require.NoError(t, err)
	assert.True(t, pp.G.Equal(&pp2.G))
	for i := range pp.H {
		assert.True(t, pp.H[i].Equal(&pp2.H[i]))
	}
	assert.True(t, pp.Hr.Equal(&pp2.Hr))
}

func TestSaveLoadRoundtrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "params.json")

	pp, err := Generate(3)
	require.NoError(t, err)
	require.NoError(t, Save(pp, path))

	got, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, Verify(got))

	assert.Equal(t, pp.MaxAttributes, got.MaxAttributes)
	assert.True(t, pp.G.Equal(&got.G))
	assert.True(t, pp.Hr.Equal(&got.Hr))
	for i := range pp.H {
		assert.True(t, pp.H[i].Equal(&got.H[i]))
	}
}

func TestLoadOrGenerate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "params.json")

	pp, err := LoadOrGenerate(path, 2)
	require.NoError(t, err)

	// Second call loads the same set.
	got, err := LoadOrGenerate(path, 2)
	require.NoError(t, err)
	assert.True(t, pp.G.Equal(&got.G))

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestVerifyRejectsDuplicateGenerators(t *testing.T) {
	pp, err := Generate(2)
	require.NoError(t, err)

	pp.H[1] = pp.H[0]
	assert.Error(t, Verify(pp))
}

func TestVerifyRejectsWrongCount(t *testing.T) {
	pp, err := Generate(3)
	require.NoError(t, err)

	pp.H = pp.H[:2]
	assert.Error(t, Verify(pp))
}

func TestVerifyRejectsInfinity(t *testing.T) {
	pp, err := Generate(2)
	require.NoError(t, err)

	g := curve.G1Generator()
	neg := curve.G1Neg(&g)
	pp.Hr = curve.G1Add(&g, &neg) // point at infinity
	assert.Error(t, Verify(pp))
}
