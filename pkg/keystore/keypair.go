// Package keystore provides the key material handling used when publishing
// DID documents: ed25519 key pairs, SLIP-10 derivation from a wallet seed, and
// an insecure in-memory store for tests and examples.
package keystore

import (
	"crypto/ed25519"
	"fmt"

	"github.com/wollac/iota-crypto-demo/pkg/bip32path"
	"github.com/wollac/iota-crypto-demo/pkg/slip10"
	"github.com/wollac/iota-crypto-demo/pkg/slip10/eddsa"

	"github.com/iotaledger/hive.go/ierrors"
	iotago "github.com/iotaledger/iota.go/v3"
)

// pathString is the BIP-32 path of the IOTA coin type, parameterized by the
// account index.
const pathString = "44'/4218'/0'/%d'"

// ErrInvalidPrivateKey is returned when constructing a key pair from key bytes
// of the wrong size.
var ErrInvalidPrivateKey = ierrors.New("invalid private key")

// KeyPair is an ed25519 key pair controlling a wallet address.
type KeyPair struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
}

// GenerateKeyPair creates a new random key pair.
func GenerateKeyPair() (*KeyPair, error) {
	publicKey, privateKey, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, ierrors.Wrap(err, "generating ed25519 key pair")
	}

	return &KeyPair{
		privateKey: privateKey,
		publicKey:  publicKey,
	}, nil
}

// KeyPairFromPrivateKeyBytes reconstructs a key pair from either an ed25519
// seed (32 bytes) or a full ed25519 private key (64 bytes).
func KeyPairFromPrivateKeyBytes(privateKeyBytes []byte) (*KeyPair, error) {
	var privateKey ed25519.PrivateKey
	switch len(privateKeyBytes) {
	case ed25519.SeedSize:
		privateKey = ed25519.NewKeyFromSeed(privateKeyBytes)
	case ed25519.PrivateKeySize:
		privateKey = ed25519.PrivateKey(privateKeyBytes)
	default:
		return nil, ierrors.Wrapf(ErrInvalidPrivateKey, "expected %d or %d bytes, got %d", ed25519.SeedSize, ed25519.PrivateKeySize, len(privateKeyBytes))
	}

	//nolint:forcetypeassert // an ed25519 public key is always an ed25519.PublicKey
	return &KeyPair{
		privateKey: privateKey,
		publicKey:  privateKey.Public().(ed25519.PublicKey),
	}, nil
}

// KeyPairFromSeed derives the key pair at the given account index from a
// wallet seed by using SLIP-10.
func KeyPairFromSeed(seed []byte, index uint64) (*KeyPair, error) {
	path, err := bip32path.ParsePath(fmt.Sprintf(pathString, index))
	if err != nil {
		return nil, ierrors.Wrap(err, "parsing derivation path")
	}

	key, err := slip10.DeriveKeyFromPath(seed, eddsa.Ed25519(), path)
	if err != nil {
		return nil, ierrors.Wrap(err, "deriving key from seed")
	}

	//nolint:forcetypeassert // the ed25519 curve always yields an eddsa.Seed key
	pubKey, privKey := key.Key.(eddsa.Seed).Ed25519Key()

	return &KeyPair{
		privateKey: ed25519.PrivateKey(privKey),
		publicKey:  ed25519.PublicKey(pubKey),
	}, nil
}

// PublicKey returns the public key of the pair.
func (k *KeyPair) PublicKey() ed25519.PublicKey {
	return k.publicKey
}

// PrivateKey returns the private key of the pair.
func (k *KeyPair) PrivateKey() ed25519.PrivateKey {
	return k.privateKey
}

// Sign signs the given message with the private key.
func (k *KeyPair) Sign(message []byte) []byte {
	return ed25519.Sign(k.privateKey, message)
}

// Address returns the ed25519 address controlled by this key pair.
func (k *KeyPair) Address() iotago.Ed25519Address {
	return iotago.Ed25519AddressFromPubKey(k.publicKey)
}

// Bech32 returns the bech32 string form of the address controlled by this key
// pair on the network with the given prefix.
func (k *KeyPair) Bech32(hrp iotago.NetworkPrefix) string {
	address := k.Address()

	return address.Bech32(hrp)
}
