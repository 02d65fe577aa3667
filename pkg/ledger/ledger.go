// Package ledger defines the capabilities this module consumes from an IOTA
// node and its indexer plugin, together with the repository that answers
// queries about the current ledger state.
//
// The interfaces mirror the shapes of the Stardust node API, but transport is
// deliberately out of scope: any implementation that speaks the node API can
// be plugged in, and tests use in-memory ones.
package ledger

import (
	"context"

	iotago "github.com/iotaledger/iota.go/v3"
)

// InclusionState describes the ledger inclusion state of a block.
type InclusionState byte

const (
	// InclusionStateUnknown means the node reported no inclusion state for the block.
	InclusionStateUnknown InclusionState = iota

	// InclusionStatePending means the block is not yet referenced by a milestone.
	InclusionStatePending

	// InclusionStateIncluded means the transaction carried by the block mutated the ledger.
	InclusionStateIncluded

	// InclusionStateNoTransaction means the block was referenced by a milestone
	// without carrying a value mutation.
	InclusionStateNoTransaction

	// InclusionStateConflicting means the transaction carried by the block lost a conflict.
	InclusionStateConflicting
)

// Terminal reports whether the state is one the inclusion tracking loop stops at.
func (s InclusionState) Terminal() bool {
	return s == InclusionStateIncluded || s == InclusionStateNoTransaction
}

func (s InclusionState) String() string {
	switch s {
	case InclusionStatePending:
		return "pending"
	case InclusionStateIncluded:
		return "included"
	case InclusionStateNoTransaction:
		return "noTransaction"
	case InclusionStateConflicting:
		return "conflicting"
	default:
		return "unknown"
	}
}

// BlockMetadata is the node's view on a submitted block.
type BlockMetadata struct {
	BlockID        iotago.BlockID
	Inclusion      InclusionState
	ShouldPromote  bool
	ShouldReattach bool
}

// BasicOutputsFilter restricts an indexer lookup for basic outputs to outputs
// that can be spent unconditionally.
type BasicOutputsFilter struct {
	ExcludeStorageDepositReturn bool
	ExcludeExpiration           bool
	ExcludeTimelock             bool
	ExcludeNativeTokens         bool
}

// SpendableOnly is the filter used when selecting funding outputs: anything
// with extra unlock conditions or native tokens is excluded by policy, not
// because it could not be spent.
func SpendableOnly() BasicOutputsFilter {
	return BasicOutputsFilter{
		ExcludeStorageDepositReturn: true,
		ExcludeExpiration:           true,
		ExcludeTimelock:             true,
		ExcludeNativeTokens:         true,
	}
}

// Client is the node capability consumed by this module.
type Client interface {
	// ProtocolParameters fetches the current protocol parameters of the node.
	ProtocolParameters(ctx context.Context) (*iotago.ProtocolParameters, error)

	// OutputByID fetches the output with the given ID.
	OutputByID(ctx context.Context, outputID iotago.OutputID) (iotago.Output, error)

	// Tips fetches block IDs that are suitable parents for a new block.
	Tips(ctx context.Context) (iotago.BlockIDs, error)

	// SubmitBlock submits the given block to the network and returns its ID.
	SubmitBlock(ctx context.Context, block *iotago.Block) (iotago.BlockID, error)

	// BlockMetadata fetches the metadata of the block with the given ID.
	BlockMetadata(ctx context.Context, blockID iotago.BlockID) (*BlockMetadata, error)

	// PromoteBlock increases the confirmation likelihood of a pending block
	// without creating a new transaction.
	PromoteBlock(ctx context.Context, blockID iotago.BlockID) error

	// ReattachBlock resubmits the payload of the given block in a new block
	// and returns the ID of the new block.
	ReattachBlock(ctx context.Context, blockID iotago.BlockID) (iotago.BlockID, error)
}

// Indexer is the index capability consumed by this module. Lookups return the
// first page of matching output IDs in the order the index yields them.
type Indexer interface {
	// AliasOutputIDs looks up the IDs of unspent alias outputs with the given Alias ID.
	AliasOutputIDs(ctx context.Context, aliasID iotago.AliasID) ([]iotago.OutputID, error)

	// BasicOutputIDs looks up the IDs of unspent basic outputs owned by the
	// given address, restricted by the filter.
	BasicOutputIDs(ctx context.Context, addressBech32 string, filter BasicOutputsFilter) ([]iotago.OutputID, error)
}

// AliasOutputWithID is an alias output together with the ID of its current,
// still unspent instance.
type AliasOutputWithID struct {
	ID     iotago.OutputID
	Output *iotago.AliasOutput
}

// BasicOutputWithID is a basic output together with the ID of its current,
// still unspent instance.
type BasicOutputWithID struct {
	ID     iotago.OutputID
	Output *iotago.BasicOutput
}
