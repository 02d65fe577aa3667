package keystore

import (
	"crypto/ed25519"
	"sync"

	"github.com/iotaledger/hive.go/ds/shrinkingmap"
	"github.com/iotaledger/hive.go/ierrors"
	"github.com/iotaledger/identity-stardust/pkg/did"
	"golang.org/x/crypto/blake2b"
)

var (
	// ErrIdentityAlreadyExists is returned when creating an identity that is
	// already present in the store.
	ErrIdentityAlreadyExists = ierrors.New("identity already exists")

	// ErrIdentityNotFound is returned when operating on an identity that is not
	// present in the store.
	ErrIdentityNotFound = ierrors.New("identity not found")

	// ErrKeyNotFound is returned when no key pair is stored at a location.
	ErrKeyNotFound = ierrors.New("key not found")
)

// KeyLocation addresses a key pair within the vault of one identity. It is
// derived from the fragment of the verification method the key backs and from
// the public key itself, so rotating a key changes its location.
type KeyLocation struct {
	Fragment  string
	KeyDigest [blake2b.Size256]byte
}

// NewKeyLocation creates the location for a public key under the given fragment.
func NewKeyLocation(fragment string, publicKey ed25519.PublicKey) KeyLocation {
	return KeyLocation{
		Fragment:  fragment,
		KeyDigest: blake2b.Sum256(publicKey),
	}
}

type vault = shrinkingmap.ShrinkingMap[KeyLocation, *KeyPair]

// MemStore is an insecure, in-memory key and blob store, keyed by DID.
// It serves as an example and is used in tests; production deployments are
// expected to bring their own storage with the same surface.
type MemStore struct {
	mutex  sync.RWMutex
	vaults *shrinkingmap.ShrinkingMap[did.DID, *vault]
	blobs  *shrinkingmap.ShrinkingMap[did.DID, []byte]
}

func NewMemStore() *MemStore {
	return &MemStore{
		vaults: shrinkingmap.New[did.DID, *vault](),
		blobs:  shrinkingmap.New[did.DID, []byte](),
	}
}

// IdentityCreate creates the vault for a new identity holding a first signing
// key under the given fragment. The key pair is generated unless private key
// bytes are supplied.
func (s *MemStore) IdentityCreate(id did.DID, fragment string, privateKeyBytes []byte) (KeyLocation, error) {
	keyPair, err := newOrImportedKeyPair(privateKeyBytes)
	if err != nil {
		return KeyLocation{}, err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.vaults.Has(id) {
		return KeyLocation{}, ierrors.Wrapf(ErrIdentityAlreadyExists, "%s", id)
	}

	location := NewKeyLocation(fragment, keyPair.PublicKey())
	identityVault := shrinkingmap.New[KeyLocation, *KeyPair]()
	identityVault.Set(location, keyPair)
	s.vaults.Set(id, identityVault)

	return location, nil
}

// IdentityPurge removes the identity with all of its keys and its blob.
// It is idempotent, the return value signals whether anything was removed.
func (s *MemStore) IdentityPurge(id did.DID) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	removed := s.vaults.Delete(id)
	s.blobs.Delete(id)

	return removed
}

// IdentityExists reports whether the identity is present in the store.
func (s *MemStore) IdentityExists(id did.DID) bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return s.vaults.Has(id)
}

// Identities returns the DIDs of all stored identities.
func (s *MemStore) Identities() []did.DID {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return s.vaults.Keys()
}

// KeyGenerate creates a new key pair under the given fragment and returns its
// location.
func (s *MemStore) KeyGenerate(id did.DID, fragment string) (KeyLocation, error) {
	keyPair, err := GenerateKeyPair()
	if err != nil {
		return KeyLocation{}, err
	}

	location := NewKeyLocation(fragment, keyPair.PublicKey())
	if err := s.KeyInsert(id, location, keyPair); err != nil {
		return KeyLocation{}, err
	}

	return location, nil
}

// KeyInsert stores a key pair at the given location.
func (s *MemStore) KeyInsert(id did.DID, location KeyLocation, keyPair *KeyPair) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	identityVault, exists := s.vaults.Get(id)
	if !exists {
		return ierrors.Wrapf(ErrIdentityNotFound, "%s", id)
	}
	identityVault.Set(location, keyPair)

	return nil
}

// KeyPair returns the key pair stored at the given location.
func (s *MemStore) KeyPair(id did.DID, location KeyLocation) (*KeyPair, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	identityVault, exists := s.vaults.Get(id)
	if !exists {
		return nil, ierrors.Wrapf(ErrIdentityNotFound, "%s", id)
	}

	keyPair, exists := identityVault.Get(location)
	if !exists {
		return nil, ierrors.Wrapf(ErrKeyNotFound, "no key at fragment %q of %s", location.Fragment, id)
	}

	return keyPair, nil
}

// KeyPublic returns the public key stored at the given location.
func (s *MemStore) KeyPublic(id did.DID, location KeyLocation) (ed25519.PublicKey, error) {
	keyPair, err := s.KeyPair(id, location)
	if err != nil {
		return nil, err
	}

	return keyPair.PublicKey(), nil
}

// KeySign signs the message with the key stored at the given location.
func (s *MemStore) KeySign(id did.DID, location KeyLocation, message []byte) ([]byte, error) {
	keyPair, err := s.KeyPair(id, location)
	if err != nil {
		return nil, err
	}

	return keyPair.Sign(message), nil
}

// KeyExists reports whether a key pair is stored at the given location.
func (s *MemStore) KeyExists(id did.DID, location KeyLocation) bool {
	_, err := s.KeyPair(id, location)

	return err == nil
}

// KeyDelete removes the key pair at the given location, reporting whether it
// was present.
func (s *MemStore) KeyDelete(id did.DID, location KeyLocation) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	identityVault, exists := s.vaults.Get(id)
	if !exists {
		return false
	}

	return identityVault.Delete(location)
}

// BlobSet stores an opaque blob for the identity, replacing any previous one.
func (s *MemStore) BlobSet(id did.DID, blob []byte) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.blobs.Set(id, blob)
}

// BlobGet returns the blob stored for the identity.
func (s *MemStore) BlobGet(id did.DID) ([]byte, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return s.blobs.Get(id)
}

func newOrImportedKeyPair(privateKeyBytes []byte) (*KeyPair, error) {
	if privateKeyBytes == nil {
		return GenerateKeyPair()
	}

	return KeyPairFromPrivateKeyBytes(privateKeyBytes)
}
