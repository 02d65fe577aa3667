package keystore_test

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iotaledger/identity-stardust/pkg/keystore"
	iotago "github.com/iotaledger/iota.go/v3"
)

func TestKeyPairFromSeedIsDeterministic(t *testing.T) {
	seed := make([]byte, 32)
	for i := range seed {
		seed[i] = byte(i)
	}

	first, err := keystore.KeyPairFromSeed(seed, 0)
	require.NoError(t, err)
	second, err := keystore.KeyPairFromSeed(seed, 0)
	require.NoError(t, err)
	require.Equal(t, first.PublicKey(), second.PublicKey())
	require.Equal(t, first.PrivateKey(), second.PrivateKey())

	// distinct account indices derive distinct keys
	other, err := keystore.KeyPairFromSeed(seed, 1)
	require.NoError(t, err)
	require.NotEqual(t, first.PublicKey(), other.PublicKey())
}

func TestKeyPairFromPrivateKeyBytes(t *testing.T) {
	original, err := keystore.GenerateKeyPair()
	require.NoError(t, err)

	fromSeed, err := keystore.KeyPairFromPrivateKeyBytes(original.PrivateKey().Seed())
	require.NoError(t, err)
	require.Equal(t, original.PublicKey(), fromSeed.PublicKey())

	fromFull, err := keystore.KeyPairFromPrivateKeyBytes(original.PrivateKey())
	require.NoError(t, err)
	require.Equal(t, original.PublicKey(), fromFull.PublicKey())

	_, err = keystore.KeyPairFromPrivateKeyBytes(make([]byte, 16))
	require.ErrorIs(t, err, keystore.ErrInvalidPrivateKey)
}

func TestKeyPairSignVerify(t *testing.T) {
	keyPair, err := keystore.GenerateKeyPair()
	require.NoError(t, err)

	message := []byte("state metadata digest")
	signature := keyPair.Sign(message)
	require.True(t, ed25519.Verify(keyPair.PublicKey(), message, signature))
	require.False(t, ed25519.Verify(keyPair.PublicKey(), []byte("other"), signature))
}

func TestKeyPairAddress(t *testing.T) {
	keyPair, err := keystore.GenerateKeyPair()
	require.NoError(t, err)

	address := iotago.Ed25519AddressFromPubKey(keyPair.PublicKey())
	require.Equal(t, address, keyPair.Address())
	require.Equal(t, address.Bech32(iotago.PrefixTestnet), keyPair.Bech32(iotago.PrefixTestnet))
}
