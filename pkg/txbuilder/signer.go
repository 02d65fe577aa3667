package txbuilder

import (
	"crypto/ed25519"

	"github.com/iotaledger/hive.go/ierrors"
	iotago "github.com/iotaledger/iota.go/v3"
)

// ErrNoInputsToUnlock is returned when signing an essence for zero inputs.
var ErrNoInputsToUnlock = ierrors.New("no inputs to unlock")

// SignEssence produces the unlocks authorizing a transaction whose inputs are
// all controlled by the same ed25519 key: the essence's signing digest is
// signed once, the first input carries the signature unlock and every further
// input references it. Transactions with more than one signing identity are
// out of scope.
func SignEssence(essence *iotago.TransactionEssence, inputCount int, publicKey ed25519.PublicKey, privateKey ed25519.PrivateKey) (iotago.Unlocks, error) {
	if inputCount < 1 {
		return nil, ErrNoInputsToUnlock
	}

	signingMessage, err := essence.SigningMessage()
	if err != nil {
		return nil, ierrors.Wrap(err, "computing essence signing message")
	}

	signature := &iotago.Ed25519Signature{}
	copy(signature.PublicKey[:], publicKey)
	copy(signature.Signature[:], ed25519.Sign(privateKey, signingMessage))

	unlocks := iotago.Unlocks{
		&iotago.SignatureUnlock{Signature: signature},
	}
	for i := 1; i < inputCount; i++ {
		unlocks = append(unlocks, &iotago.ReferenceUnlock{Reference: 0})
	}

	return unlocks, nil
}
