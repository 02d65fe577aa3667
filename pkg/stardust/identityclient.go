// Package stardust implements the did:iota method on Stardust ledgers: DID
// documents live in the state metadata of alias outputs, creating or updating
// a document means publishing a transaction that moves the alias output to its
// next state.
package stardust

import (
	"context"

	"github.com/iotaledger/hive.go/ierrors"
	"github.com/iotaledger/hive.go/logger"
	"github.com/iotaledger/hive.go/runtime/options"
	"github.com/iotaledger/identity-stardust/pkg/did"
	"github.com/iotaledger/identity-stardust/pkg/document"
	"github.com/iotaledger/identity-stardust/pkg/funding"
	"github.com/iotaledger/identity-stardust/pkg/inclusion"
	"github.com/iotaledger/identity-stardust/pkg/ledger"
	iotago "github.com/iotaledger/iota.go/v3"
)

// ErrNoDocumentProduced is returned when a published transaction contains no
// alias output to extract a document from. Given that this module builds the
// transactions it publishes, hitting this is a bug, not a user error.
var ErrNoDocumentProduced = ierrors.New("transaction produced no document")

// IdentityClient is the public surface of this module. It composes identifier
// derivation, document packing, funding selection, transaction building and
// inclusion tracking into the create/update/deactivate/resolve operations of
// the DID method.
//
// An IdentityClient is safe to share between operations; the node and indexer
// handles it holds are read-only capability references. It performs no
// client-side locking across concurrent publishes of the same DID, conflicting
// state transitions are resolved by the ledger alone.
type IdentityClient struct {
	client  ledger.Client
	indexer ledger.Indexer
	log     *logger.Logger

	repository *ledger.Repository
	funding    *funding.Selector
	tracker    *inclusion.Tracker
}

// WithLogger attaches a logger; it is handed down to the default funding
// selector and inclusion tracker. Operations are silent without one.
func WithLogger(log *logger.Logger) options.Option[IdentityClient] {
	return func(c *IdentityClient) {
		c.log = log
	}
}

// WithFundingSelector overrides the default funding selector, e.g. to change
// its polling budget.
func WithFundingSelector(selector *funding.Selector) options.Option[IdentityClient] {
	return func(c *IdentityClient) {
		c.funding = selector
	}
}

// WithInclusionTracker overrides the default inclusion tracker, e.g. to change
// its retry budget.
func WithInclusionTracker(tracker *inclusion.Tracker) options.Option[IdentityClient] {
	return func(c *IdentityClient) {
		c.tracker = tracker
	}
}

func New(client ledger.Client, indexer ledger.Indexer, opts ...options.Option[IdentityClient]) *IdentityClient {
	return options.Apply(&IdentityClient{
		client:  client,
		indexer: indexer,
	}, opts, func(c *IdentityClient) {
		c.repository = ledger.NewRepository(client, indexer)
		if c.funding == nil {
			c.funding = funding.NewSelector(client, indexer, funding.WithLogger(c.log))
		}
		if c.tracker == nil {
			c.tracker = inclusion.NewTracker(client, inclusion.WithLogger(c.log))
		}
	})
}

func (c *IdentityClient) debugf(template string, args ...interface{}) {
	if c.log != nil {
		c.log.Debugf(template, args...)
	}
}

// NewDIDOutput returns the alias output that hosts the given document once
// published: state index 0, an all-zero Alias ID (the real identifier is only
// knowable after publication), and the given address as both state controller
// and governor. The amount is the minimum storage deposit under the given rent
// structure, which is fetched from the node when nil.
//
// The document should be bound to the placeholder DID of the target network.
// This does not publish the output, see PublishDIDOutput.
func (c *IdentityClient) NewDIDOutput(ctx context.Context, address iotago.Address, doc *document.Document, rent *iotago.RentStructure) (*iotago.AliasOutput, error) {
	stateMetadata, err := doc.Pack()
	if err != nil {
		return nil, err
	}

	aliasOutput := &iotago.AliasOutput{
		AliasID:       iotago.AliasID{},
		StateIndex:    0,
		StateMetadata: stateMetadata,
		Conditions: iotago.UnlockConditions{
			&iotago.StateControllerAddressUnlockCondition{Address: address},
			&iotago.GovernorAddressUnlockCondition{Address: address},
		},
	}

	if rent == nil {
		snapshot, err := c.repository.ProtocolSnapshot(ctx)
		if err != nil {
			return nil, err
		}
		rent = &snapshot.RentStructure
	}
	aliasOutput.Amount = rent.MinRent(aliasOutput)

	return aliasOutput, nil
}

// UpdateDIDOutput fetches the alias output hosting the document and returns
// its next state: state index incremented, state metadata replaced with the
// packed document, storage deposit unchanged. If the document grew beyond the
// current deposit the amount has to be raised by the caller.
//
// This does not publish the output, see PublishDIDOutput.
func (c *IdentityClient) UpdateDIDOutput(ctx context.Context, doc *document.Document) (*iotago.AliasOutput, error) {
	stateMetadata, err := doc.Pack()
	if err != nil {
		return nil, err
	}

	return c.nextState(ctx, doc.ID, stateMetadata)
}

// DeactivateDIDOutput returns the next state of the alias output hosting the
// DID's document with the state metadata cleared. The output itself stays
// alive, resolving the DID afterwards yields an empty, deactivated document.
//
// This does not publish the output, see PublishDIDOutput.
func (c *IdentityClient) DeactivateDIDOutput(ctx context.Context, id did.DID) (*iotago.AliasOutput, error) {
	return c.nextState(ctx, id, nil)
}

// ResolveDID resolves the current document of a DID from the ledger. A DID
// whose state metadata is empty resolves to an empty, deactivated document.
func (c *IdentityClient) ResolveDID(ctx context.Context, id did.DID) (*document.Document, error) {
	resolved, err := c.repository.ResolveAliasOutput(ctx, id.AliasID())
	if err != nil {
		return nil, err
	}

	return document.Unpack(id, resolved.Output.StateMetadata, true)
}

// ResolveDIDOutput fetches the current alias output hosting the DID's document.
func (c *IdentityClient) ResolveDIDOutput(ctx context.Context, id did.DID) (*iotago.AliasOutput, error) {
	resolved, err := c.repository.ResolveAliasOutput(ctx, id.AliasID())
	if err != nil {
		return nil, err
	}

	return resolved.Output, nil
}

// nextState resolves the current alias output of the DID and clones it into
// its successor state carrying the given state metadata.
func (c *IdentityClient) nextState(ctx context.Context, id did.DID, stateMetadata []byte) (*iotago.AliasOutput, error) {
	resolved, err := c.repository.ResolveAliasOutput(ctx, id.AliasID())
	if err != nil {
		return nil, err
	}

	//nolint:forcetypeassert // cloning an alias output yields an alias output
	nextOutput := resolved.Output.Clone().(*iotago.AliasOutput)
	nextOutput.StateIndex = resolved.Output.StateIndex + 1
	nextOutput.StateMetadata = stateMetadata
	if nextOutput.AliasID == (iotago.AliasID{}) {
		// the on-ledger output of a fresh alias still carries the zero ID
		nextOutput.AliasID = id.AliasID()
	}

	return nextOutput, nil
}
