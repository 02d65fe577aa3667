// Package txbuilder assembles and signs the transaction essences that move a
// DID's alias output from one state to the next.
package txbuilder

import (
	"encoding/binary"

	"github.com/iotaledger/hive.go/ierrors"
	"github.com/iotaledger/hive.go/serializer/v2"
	iotago "github.com/iotaledger/iota.go/v3"
	"golang.org/x/crypto/blake2b"
)

var (
	// ErrNoConsumedOutputs is returned when building an essence without inputs.
	ErrNoConsumedOutputs = ierrors.New("no consumed outputs")

	// ErrNoProducedOutputs is returned when building an essence without outputs.
	ErrNoProducedOutputs = ierrors.New("no produced outputs")
)

// ConsumedOutput is an output spent by a transaction, together with the ID
// that references it as an input.
type ConsumedOutput struct {
	ID     iotago.OutputID
	Output iotago.Output
}

// BuildEssence assembles a transaction essence from the consumed and produced
// outputs. Inputs are derived 1:1 from the consumed output IDs, order is
// preserved, and the inputs commitment binds the essence to the exact contents
// of every consumed output.
func BuildEssence(networkID iotago.NetworkID, consumed []ConsumedOutput, produced iotago.Outputs) (*iotago.TransactionEssence, error) {
	if len(consumed) == 0 {
		return nil, ErrNoConsumedOutputs
	}
	if len(produced) == 0 {
		return nil, ErrNoProducedOutputs
	}

	inputs := make(iotago.Inputs, 0, len(consumed))
	for _, consumedOutput := range consumed {
		inputs = append(inputs, &iotago.UTXOInput{
			TransactionID:          consumedOutput.ID.TransactionID(),
			TransactionOutputIndex: consumedOutput.ID.Index(),
		})
	}

	commitment, err := InputsCommitment(consumed)
	if err != nil {
		return nil, err
	}

	essence := &iotago.TransactionEssence{
		NetworkID: networkID,
		Inputs:    inputs,
		Outputs:   produced,
	}
	copy(essence.InputsCommitment[:], commitment)

	return essence, nil
}

// InputsCommitment computes the commitment to the consumed outputs: the
// BLAKE2b-256 digest over the concatenation of the BLAKE2b-256 digests of the
// canonical serialization of each output, in input order.
//
// The accumulator and the per-output hashers are independent. Reusing one hash
// state across outputs would conflate them and make the digest diverge from
// what the ledger verifies against the transaction's inputs.
func InputsCommitment(consumed []ConsumedOutput) ([]byte, error) {
	accumulator, err := blake2b.New256(nil)
	if err != nil {
		return nil, ierrors.Wrap(err, "creating commitment hasher")
	}

	for _, consumedOutput := range consumed {
		outputBytes, err := consumedOutput.Output.Serialize(serializer.DeSeriModeNoValidation, nil)
		if err != nil {
			return nil, ierrors.Wrapf(err, "serializing consumed output %s", consumedOutput.ID.ToHex())
		}

		outputDigest := blake2b.Sum256(outputBytes)
		if _, err := accumulator.Write(outputDigest[:]); err != nil {
			return nil, ierrors.Wrap(err, "folding output digest into commitment")
		}
	}

	return accumulator.Sum(nil), nil
}

// OutputIDFromTransactionIDAndIndex references the output at the given index
// of a transaction.
func OutputIDFromTransactionIDAndIndex(transactionID iotago.TransactionID, index uint16) iotago.OutputID {
	var outputID iotago.OutputID
	copy(outputID[:], transactionID[:])
	binary.LittleEndian.PutUint16(outputID[len(transactionID):], index)

	return outputID
}
