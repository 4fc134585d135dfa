package secrets

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func TestPlacesKeyRoundTrip(t *testing.T) {
	keyring.MockInit()

	_, err := GetPlacesKey()
	assert.ErrorIs(t, err, ErrNoPlacesKey)

	require.NoError(t, SetPlacesKey("  k-123 "))
	key, err := GetPlacesKey()
	require.NoError(t, err)
	assert.Equal(t, "k-123", key)

	require.NoError(t, DeletePlacesKey())
	require.NoError(t, DeletePlacesKey())
	assert.Error(t, SetPlacesKey(" "))
}

func TestKeyResolverFallsBackToEnv(t *testing.T) {
	keyring.MockInit()

	resolve := KeyResolver(func() string { return "from-env" })
	key, err := resolve()
	require.NoError(t, err)
	assert.Equal(t, "from-env", key)

	require.NoError(t, SetPlacesKey("from-keychain"))
	key, err = resolve()
	require.NoError(t, err)
	assert.Equal(t, "from-keychain", key)

	require.NoError(t, DeletePlacesKey())
	_, err = KeyResolver(func() string { return "" })()
	assert.ErrorIs(t, err, ErrNoPlacesKey)
	_, err = KeyResolver(nil)()
	assert.ErrorIs(t, err, ErrNoPlacesKey)
}
