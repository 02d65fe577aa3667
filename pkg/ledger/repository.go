package ledger

import (
	"context"

	"github.com/iotaledger/hive.go/ierrors"
	iotago "github.com/iotaledger/iota.go/v3"
)

var (
	// ErrAliasOutputNotFound is returned when the indexer knows no unspent alias
	// output for an Alias ID.
	ErrAliasOutputNotFound = ierrors.New("alias output not found")

	// ErrUnexpectedOutputType is returned when the node hands back an output of a
	// different kind than the index claimed. This is an integrity check against
	// index/node inconsistency, not a normal-path error.
	ErrUnexpectedOutputType = ierrors.New("unexpected output type")
)

// ProtocolSnapshot is the subset of the protocol parameters this module needs,
// captured in a single round trip. Values are treated as valid for the
// duration of one transaction build only.
type ProtocolSnapshot struct {
	NetworkID       iotago.NetworkID
	ProtocolVersion byte
	NetworkPrefix   iotago.NetworkPrefix
	RentStructure   iotago.RentStructure
	TokenSupply     uint64
}

// Repository answers queries about the current ledger state by combining the
// node client and the indexer capability.
type Repository struct {
	client  Client
	indexer Indexer
}

func NewRepository(client Client, indexer Indexer) *Repository {
	return &Repository{
		client:  client,
		indexer: indexer,
	}
}

// ResolveAliasOutput resolves an Alias ID to the current unspent alias output
// and its output ID. Only the latest instance of an alias is unspent, so the
// index yields at most one entry.
func (r *Repository) ResolveAliasOutput(ctx context.Context, aliasID iotago.AliasID) (*AliasOutputWithID, error) {
	outputIDs, err := r.indexer.AliasOutputIDs(ctx, aliasID)
	if err != nil {
		return nil, ierrors.Wrapf(err, "alias output lookup failed for %s", iotago.EncodeHex(aliasID[:]))
	}
	if len(outputIDs) == 0 {
		return nil, ierrors.Wrapf(ErrAliasOutputNotFound, "no unspent output indexed for alias %s", iotago.EncodeHex(aliasID[:]))
	}

	outputID := outputIDs[0]
	output, err := r.client.OutputByID(ctx, outputID)
	if err != nil {
		return nil, ierrors.Wrapf(err, "fetching output %s", outputID.ToHex())
	}

	aliasOutput, isAlias := output.(*iotago.AliasOutput)
	if !isAlias {
		return nil, ierrors.Wrapf(ErrUnexpectedOutputType, "output %s indexed for alias %s is not an alias output", outputID.ToHex(), iotago.EncodeHex(aliasID[:]))
	}

	return &AliasOutputWithID{
		ID:     outputID,
		Output: aliasOutput,
	}, nil
}

// ProtocolSnapshot fetches the current protocol parameters from the node.
func (r *Repository) ProtocolSnapshot(ctx context.Context) (*ProtocolSnapshot, error) {
	protoParams, err := r.client.ProtocolParameters(ctx)
	if err != nil {
		return nil, ierrors.Wrap(err, "fetching protocol parameters")
	}

	return &ProtocolSnapshot{
		NetworkID:       protoParams.NetworkID(),
		ProtocolVersion: protoParams.Version,
		NetworkPrefix:   protoParams.Bech32HRP,
		RentStructure:   protoParams.RentStructure,
		TokenSupply:     protoParams.TokenSupply,
	}, nil
}
