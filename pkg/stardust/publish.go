package stardust

import (
	"context"

	"github.com/iotaledger/hive.go/ierrors"
	"github.com/iotaledger/identity-stardust/pkg/did"
	"github.com/iotaledger/identity-stardust/pkg/document"
	"github.com/iotaledger/identity-stardust/pkg/keystore"
	"github.com/iotaledger/identity-stardust/pkg/ledger"
	"github.com/iotaledger/identity-stardust/pkg/txbuilder"
	iotago "github.com/iotaledger/iota.go/v3"
)

// PublishDIDOutput publishes the given alias output state in a transaction
// funded and signed by the given key pair and waits for the transaction to be
// included in the ledger. The key pair must control both the wallet that funds
// the storage deposit and, for state transitions, the state controller address
// of the current alias output.
//
// It returns the document extracted from the published transaction, with its
// identifier derived from the created output for a new alias.
func (c *IdentityClient) PublishDIDOutput(ctx context.Context, keyPair *keystore.KeyPair, aliasOutput *iotago.AliasOutput) (*document.Document, error) {
	snapshot, err := c.repository.ProtocolSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	consumed, produced, err := c.reconcileFunding(ctx, snapshot, keyPair, aliasOutput)
	if err != nil {
		return nil, err
	}

	essence, err := txbuilder.BuildEssence(snapshot.NetworkID, consumed, produced)
	if err != nil {
		return nil, err
	}

	unlocks, err := txbuilder.SignEssence(essence, len(consumed), keyPair.PublicKey(), keyPair.PrivateKey())
	if err != nil {
		return nil, err
	}
	transaction := &iotago.Transaction{
		Essence: essence,
		Unlocks: unlocks,
	}

	tips, err := c.client.Tips(ctx)
	if err != nil {
		return nil, ierrors.Wrap(err, "fetching tips")
	}

	// proof of work, if the network requires any, is up to the node
	block := &iotago.Block{
		ProtocolVersion: snapshot.ProtocolVersion,
		Parents:         tips,
		Payload:         transaction,
		Nonce:           0,
	}

	blockID, err := c.tracker.SubmitAndTrack(ctx, block)
	if err != nil {
		return nil, err
	}
	c.debugf("DID state published in block %s", blockID.ToHex())

	return c.documentFromTransaction(transaction, snapshot.NetworkPrefix)
}

// reconcileFunding assembles the consumed and produced outputs of the state
// transition so that their amounts balance exactly.
//
// A creation (state index 0) is funded entirely from the wallet. A mutation
// always consumes the currently published alias output, drawing extra funds
// from the wallet only when the new state costs more. Any excess of consumed
// over produced value is paid back to the wallet address as a basic output,
// never burned.
func (c *IdentityClient) reconcileFunding(ctx context.Context, snapshot *ledger.ProtocolSnapshot, keyPair *keystore.KeyPair, aliasOutput *iotago.AliasOutput) ([]txbuilder.ConsumedOutput, iotago.Outputs, error) {
	walletAddress := keyPair.Address()
	walletBech32 := walletAddress.Bech32(snapshot.NetworkPrefix)

	var consumed []txbuilder.ConsumedOutput
	var consumedAmount uint64

	if aliasOutput.StateIndex == 0 {
		fundingOutput, err := c.funding.Select(ctx, walletBech32, aliasOutput.Amount)
		if err != nil {
			return nil, nil, err
		}
		consumed = append(consumed, txbuilder.ConsumedOutput{ID: fundingOutput.ID, Output: fundingOutput.Output})
		consumedAmount = fundingOutput.Output.Amount
	} else {
		current, err := c.repository.ResolveAliasOutput(ctx, aliasOutput.AliasID)
		if err != nil {
			return nil, nil, err
		}
		consumed = append(consumed, txbuilder.ConsumedOutput{ID: current.ID, Output: current.Output})
		consumedAmount = current.Output.Amount

		if aliasOutput.Amount > consumedAmount {
			fundingOutput, err := c.funding.Select(ctx, walletBech32, aliasOutput.Amount-consumedAmount)
			if err != nil {
				return nil, nil, err
			}
			consumed = append(consumed, txbuilder.ConsumedOutput{ID: fundingOutput.ID, Output: fundingOutput.Output})
			consumedAmount += fundingOutput.Output.Amount
		}
	}

	produced := iotago.Outputs{aliasOutput}
	if remainder := consumedAmount - aliasOutput.Amount; remainder > 0 {
		produced = append(produced, &iotago.BasicOutput{
			Amount: remainder,
			Conditions: iotago.UnlockConditions{
				&iotago.AddressUnlockCondition{Address: &walletAddress},
			},
		})
	}

	return consumed, produced, nil
}

// documentFromTransaction extracts the published document from the
// transaction's essence: the first produced alias output hosts it. A fresh
// alias (zero Alias ID) gets its definitive identifier derived from the ID of
// the output that created it, an existing alias keeps the identifier stored in
// the output.
func (c *IdentityClient) documentFromTransaction(transaction *iotago.Transaction, network iotago.NetworkPrefix) (*document.Document, error) {
	transactionID, err := transaction.ID()
	if err != nil {
		return nil, ierrors.Wrap(err, "computing transaction ID")
	}

	for index, output := range transaction.Essence.Outputs {
		aliasOutput, isAlias := output.(*iotago.AliasOutput)
		if !isAlias {
			continue
		}

		var id did.DID
		if aliasOutput.AliasID == (iotago.AliasID{}) {
			outputID := txbuilder.OutputIDFromTransactionIDAndIndex(transactionID, uint16(index))
			id = did.FromOutputID(outputID, network)
		} else {
			id = did.New(aliasOutput.AliasID, network)
		}

		return document.Unpack(id, aliasOutput.StateMetadata, true)
	}

	return nil, ierrors.Wrap(ErrNoDocumentProduced, "no alias output in published transaction")
}
