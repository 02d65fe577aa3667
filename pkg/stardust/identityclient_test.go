package stardust_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iotaledger/identity-stardust/pkg/did"
	"github.com/iotaledger/identity-stardust/pkg/document"
	"github.com/iotaledger/identity-stardust/pkg/funding"
	"github.com/iotaledger/identity-stardust/pkg/inclusion"
	"github.com/iotaledger/identity-stardust/pkg/keystore"
	"github.com/iotaledger/identity-stardust/pkg/ledger"
	"github.com/iotaledger/identity-stardust/pkg/stardust"
	"github.com/iotaledger/identity-stardust/pkg/testsuite/mock"
	"github.com/iotaledger/identity-stardust/pkg/txbuilder"
	iotago "github.com/iotaledger/iota.go/v3"
)

func newClient(node *mock.Node) *stardust.IdentityClient {
	return stardust.New(node, node,
		stardust.WithFundingSelector(funding.NewSelector(node, node, funding.WithPollInterval(time.Millisecond))),
		stardust.WithInclusionTracker(inclusion.NewTracker(node, inclusion.WithRetryInterval(time.Millisecond))),
	)
}

func testKeyPair(t *testing.T) *keystore.KeyPair {
	t.Helper()

	seed := make([]byte, 32)
	for i := range seed {
		seed[i] = byte(i)
	}
	keyPair, err := keystore.KeyPairFromSeed(seed, 0)
	require.NoError(t, err)

	return keyPair
}

func boundDocument(id did.DID) *document.Document {
	doc := document.New(id)
	doc.AddVerificationMethod(&document.VerificationMethod{
		ID:                 id.String() + "#sign-0",
		Controller:         id.String(),
		Type:               "Ed25519VerificationKey2018",
		PublicKeyMultibase: "z6MkhaXgBZDvotDkL5257faiztiGiC2QtKLGpbnnEGta2doK",
	})

	return doc
}

func walletFunds(node *mock.Node, keyPair *keystore.KeyPair, amount uint64) iotago.OutputID {
	walletAddress := keyPair.Address()

	return node.AddBasicOutput(keyPair.Bech32(node.NetworkPrefix()), &iotago.BasicOutput{
		Amount: amount,
		Conditions: iotago.UnlockConditions{
			&iotago.AddressUnlockCondition{Address: &walletAddress},
		},
	})
}

// seedAliasDocument publishes nothing, it plants an alias output hosting the
// packed document directly into the mock ledger.
func seedAliasDocument(t *testing.T, node *mock.Node, keyPair *keystore.KeyPair, tag byte, amount uint64) (did.DID, *document.Document, iotago.OutputID) {
	t.Helper()

	var aliasID iotago.AliasID
	aliasID[0] = tag
	id := did.New(aliasID, node.NetworkPrefix())

	doc := boundDocument(id)
	stateMetadata, err := doc.Pack()
	require.NoError(t, err)

	walletAddress := keyPair.Address()
	outputID := node.AddAliasOutput(&iotago.AliasOutput{
		Amount:        amount,
		AliasID:       aliasID,
		StateIndex:    1,
		StateMetadata: stateMetadata,
		Conditions: iotago.UnlockConditions{
			&iotago.StateControllerAddressUnlockCondition{Address: &walletAddress},
			&iotago.GovernorAddressUnlockCondition{Address: &walletAddress},
		},
	})

	return id, doc, outputID
}

func publishedTransaction(t *testing.T, node *mock.Node) *iotago.Transaction {
	t.Helper()

	require.NotEmpty(t, node.SubmittedBlocks)
	transaction, isTransaction := node.SubmittedBlocks[0].Payload.(*iotago.Transaction)
	require.True(t, isTransaction)

	return transaction
}

// requireBalanced asserts that the transaction consumes exactly as much as it
// produces, resolving the consumed amounts through the mock ledger.
func requireBalanced(t *testing.T, node *mock.Node, transaction *iotago.Transaction) {
	t.Helper()

	var consumedAmount uint64
	for _, input := range transaction.Essence.Inputs {
		utxoInput, isUTXO := input.(*iotago.UTXOInput)
		require.True(t, isUTXO)

		outputID := txbuilder.OutputIDFromTransactionIDAndIndex(utxoInput.TransactionID, utxoInput.TransactionOutputIndex)
		output, err := node.OutputByID(context.Background(), outputID)
		require.NoError(t, err)
		consumedAmount += output.Deposit()
	}

	var producedAmount uint64
	for _, output := range transaction.Essence.Outputs {
		producedAmount += output.Deposit()
	}

	require.Equal(t, consumedAmount, producedAmount)
}

func TestNewDIDOutput(t *testing.T) {
	node := mock.NewNode()
	client := newClient(node)
	keyPair := testKeyPair(t)
	walletAddress := keyPair.Address()

	doc := boundDocument(did.Placeholder(node.NetworkPrefix()))
	aliasOutput, err := client.NewDIDOutput(context.Background(), &walletAddress, doc, nil)
	require.NoError(t, err)

	require.Equal(t, iotago.AliasID{}, aliasOutput.AliasID)
	require.EqualValues(t, 0, aliasOutput.StateIndex)
	require.NotEmpty(t, aliasOutput.StateMetadata)

	protoParams := mock.DefaultProtocolParameters()
	require.Equal(t, protoParams.RentStructure.MinRent(aliasOutput), aliasOutput.Amount)

	stateController := aliasOutput.UnlockConditionSet().StateControllerAddress()
	require.NotNil(t, stateController)
	require.True(t, stateController.Address.Equal(&walletAddress))
	governor := aliasOutput.UnlockConditionSet().GovernorAddress()
	require.NotNil(t, governor)
	require.True(t, governor.Address.Equal(&walletAddress))
}

func TestPublishNewDID(t *testing.T) {
	node := mock.NewNode()
	client := newClient(node)
	keyPair := testKeyPair(t)
	walletAddress := keyPair.Address()

	doc := boundDocument(did.Placeholder(node.NetworkPrefix()))
	aliasOutput, err := client.NewDIDOutput(context.Background(), &walletAddress, doc, nil)
	require.NoError(t, err)

	walletFunds(node, keyPair, aliasOutput.Amount+500)

	published, err := client.PublishDIDOutput(context.Background(), keyPair, aliasOutput)
	require.NoError(t, err)

	// the definitive identifier is derived from the output that created the alias
	transaction := publishedTransaction(t, node)
	transactionID, err := transaction.ID()
	require.NoError(t, err)
	expectedID := did.FromOutputID(txbuilder.OutputIDFromTransactionIDAndIndex(transactionID, 0), node.NetworkPrefix())
	require.True(t, published.ID.Equal(expectedID))
	require.False(t, published.ID.IsPlaceholder())

	// the placeholder references inside the document were rebound
	require.Equal(t, expectedID.String()+"#sign-0", published.VerificationMethods[0].ID)
	require.Equal(t, expectedID.String(), published.VerificationMethods[0].Controller)

	// the excess over the storage deposit returns to the wallet
	requireBalanced(t, node, transaction)
	require.Len(t, transaction.Essence.Outputs, 2)
	remainder, isBasic := transaction.Essence.Outputs[1].(*iotago.BasicOutput)
	require.True(t, isBasic)
	require.EqualValues(t, 500, remainder.Amount)
	require.True(t, remainder.UnlockConditionSet().Address().Address.Equal(&walletAddress))

	_, isSignature := transaction.Unlocks[0].(*iotago.SignatureUnlock)
	require.True(t, isSignature)
}

func TestPublishUpdateWithTopUp(t *testing.T) {
	node := mock.NewNode()
	client := newClient(node)
	keyPair := testKeyPair(t)

	id, doc, currentID := seedAliasDocument(t, node, keyPair, 1, 1000)

	doc.AddService(&document.Service{
		ID:              id.String() + "#linked-domain",
		Type:            "LinkedDomains",
		ServiceEndpoint: "https://example.com",
	})
	nextOutput, err := client.UpdateDIDOutput(context.Background(), doc)
	require.NoError(t, err)
	require.EqualValues(t, 2, nextOutput.StateIndex)
	require.Equal(t, id.AliasID(), nextOutput.AliasID)

	// the grown document needs a larger deposit than the current 1000
	nextOutput.Amount = 1500
	walletFunds(node, keyPair, 600)

	published, err := client.PublishDIDOutput(context.Background(), keyPair, nextOutput)
	require.NoError(t, err)
	require.True(t, published.ID.Equal(id))
	require.Len(t, published.Services, 1)

	transaction := publishedTransaction(t, node)
	requireBalanced(t, node, transaction)

	// the current alias output is the first consumed input
	firstInput, isUTXO := transaction.Essence.Inputs[0].(*iotago.UTXOInput)
	require.True(t, isUTXO)
	require.Equal(t, currentID, txbuilder.OutputIDFromTransactionIDAndIndex(firstInput.TransactionID, firstInput.TransactionOutputIndex))
	require.Len(t, transaction.Essence.Inputs, 2)

	// 1000 + 600 consumed against 1500 produced leaves 100 for the wallet
	remainder, isBasic := transaction.Essence.Outputs[1].(*iotago.BasicOutput)
	require.True(t, isBasic)
	require.EqualValues(t, 100, remainder.Amount)
}

func TestPublishUpdateRefundsShrunkDeposit(t *testing.T) {
	node := mock.NewNode()
	client := newClient(node)
	keyPair := testKeyPair(t)

	_, doc, _ := seedAliasDocument(t, node, keyPair, 2, 1000)

	nextOutput, err := client.UpdateDIDOutput(context.Background(), doc)
	require.NoError(t, err)
	nextOutput.Amount = 800

	_, err = client.PublishDIDOutput(context.Background(), keyPair, nextOutput)
	require.NoError(t, err)

	// no wallet funds were needed, the alias output alone covers the new state
	transaction := publishedTransaction(t, node)
	require.Len(t, transaction.Essence.Inputs, 1)
	requireBalanced(t, node, transaction)

	remainder, isBasic := transaction.Essence.Outputs[1].(*iotago.BasicOutput)
	require.True(t, isBasic)
	require.EqualValues(t, 200, remainder.Amount)
}

func TestPublishDeactivate(t *testing.T) {
	node := mock.NewNode()
	client := newClient(node)
	keyPair := testKeyPair(t)

	id, _, _ := seedAliasDocument(t, node, keyPair, 3, 1000)

	deactivated, err := client.DeactivateDIDOutput(context.Background(), id)
	require.NoError(t, err)
	require.Empty(t, deactivated.StateMetadata)
	require.EqualValues(t, 2, deactivated.StateIndex)

	published, err := client.PublishDIDOutput(context.Background(), keyPair, deactivated)
	require.NoError(t, err)
	require.True(t, published.Metadata.Deactivated)
	require.True(t, published.ID.Equal(id))
	require.Empty(t, published.VerificationMethods)
}

func TestResolveDID(t *testing.T) {
	node := mock.NewNode()
	client := newClient(node)
	keyPair := testKeyPair(t)

	id, doc, _ := seedAliasDocument(t, node, keyPair, 4, 1000)

	resolved, err := client.ResolveDID(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, doc, resolved)
}

func TestResolveDIDNotFound(t *testing.T) {
	node := mock.NewNode()
	client := newClient(node)

	var aliasID iotago.AliasID
	aliasID[0] = 0xff
	id := did.New(aliasID, node.NetworkPrefix())

	_, err := client.ResolveDID(context.Background(), id)
	require.ErrorIs(t, err, ledger.ErrAliasOutputNotFound)
}

func TestResolveDeactivatedDID(t *testing.T) {
	node := mock.NewNode()
	client := newClient(node)
	keyPair := testKeyPair(t)
	walletAddress := keyPair.Address()

	var aliasID iotago.AliasID
	aliasID[0] = 5
	id := did.New(aliasID, node.NetworkPrefix())
	node.AddAliasOutput(&iotago.AliasOutput{
		Amount:     1000,
		AliasID:    aliasID,
		StateIndex: 2,
		Conditions: iotago.UnlockConditions{
			&iotago.StateControllerAddressUnlockCondition{Address: &walletAddress},
			&iotago.GovernorAddressUnlockCondition{Address: &walletAddress},
		},
	})

	resolved, err := client.ResolveDID(context.Background(), id)
	require.NoError(t, err)
	require.True(t, resolved.Metadata.Deactivated)
	require.Empty(t, resolved.VerificationMethods)
}

func TestResolveDIDOutput(t *testing.T) {
	node := mock.NewNode()
	client := newClient(node)
	keyPair := testKeyPair(t)

	id, _, _ := seedAliasDocument(t, node, keyPair, 6, 1000)

	aliasOutput, err := client.ResolveDIDOutput(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, id.AliasID(), aliasOutput.AliasID)
	require.EqualValues(t, 1, aliasOutput.StateIndex)
	require.NotEmpty(t, aliasOutput.StateMetadata)
}
