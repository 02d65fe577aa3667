// Package mock provides an in-memory stand-in for the node and indexer
// capabilities, with scripted behavior and call counters for tests.
package mock

import (
	"context"
	"encoding/binary"
	"sync"

	"github.com/iotaledger/hive.go/ierrors"
	"github.com/iotaledger/hive.go/lo"
	"github.com/iotaledger/identity-stardust/pkg/ledger"
	"github.com/iotaledger/identity-stardust/pkg/txbuilder"
	iotago "github.com/iotaledger/iota.go/v3"
	"golang.org/x/crypto/blake2b"
)

var (
	// ErrOutputUnknown is returned when fetching an output the mock never saw.
	ErrOutputUnknown = ierrors.New("unknown output")

	// code guards to ensure the mock satisfies both consumed capabilities.
	_ ledger.Client  = (*Node)(nil)
	_ ledger.Indexer = (*Node)(nil)
)

// Node implements ledger.Client and ledger.Indexer in memory.
//
// Unscripted blocks report themselves as included on the first metadata fetch,
// so orchestrator tests run through without retries; inclusion tests script
// explicit metadata sequences per block.
type Node struct {
	mutex sync.Mutex

	protocolParameters *iotago.ProtocolParameters

	outputs    map[iotago.OutputID]iotago.Output
	aliasIndex map[iotago.AliasID][]iotago.OutputID
	basicIndex map[string][]iotago.OutputID

	blocks         map[iotago.BlockID]*iotago.Block
	metadataScript map[iotago.BlockID][]*ledger.BlockMetadata
	reattachScript []*ledger.BlockMetadata

	// number of basic-output index queries that still report an empty result,
	// simulating indexer lag after a deposit
	basicIndexLag int

	txCounter     uint64
	parentCounter uint64

	SubmittedBlocks []*iotago.Block
	PromotedBlocks  iotago.BlockIDs
	IndexQueries    int
	MetadataFetches int
	Promotions      int
	Reattachments   int
}

func NewNode() *Node {
	return &Node{
		protocolParameters: DefaultProtocolParameters(),
		outputs:            make(map[iotago.OutputID]iotago.Output),
		aliasIndex:         make(map[iotago.AliasID][]iotago.OutputID),
		basicIndex:         make(map[string][]iotago.OutputID),
		blocks:             make(map[iotago.BlockID]*iotago.Block),
		metadataScript:     make(map[iotago.BlockID][]*ledger.BlockMetadata),
	}
}

// DefaultProtocolParameters returns the protocol parameters the mock runs with.
func DefaultProtocolParameters() *iotago.ProtocolParameters {
	return &iotago.ProtocolParameters{
		Version:     2,
		NetworkName: "mock-1",
		Bech32HRP:   iotago.PrefixTestnet,
		RentStructure: iotago.RentStructure{
			VByteCost:    100,
			VBFactorData: iotago.VByteCostFactorData,
			VBFactorKey:  iotago.VByteCostFactorKey,
		},
		TokenSupply: 2_779_530_283_277_761,
	}
}

// NetworkPrefix returns the bech32 prefix of the mocked network.
func (n *Node) NetworkPrefix() iotago.NetworkPrefix {
	return n.protocolParameters.Bech32HRP
}

// AddBasicOutput stores a basic output owned by the given address and indexes
// it, returning the fabricated output ID.
func (n *Node) AddBasicOutput(addressBech32 string, output *iotago.BasicOutput) iotago.OutputID {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	outputID := n.nextOutputID()
	n.outputs[outputID] = output
	n.basicIndex[addressBech32] = append(n.basicIndex[addressBech32], outputID)

	return outputID
}

// AddAliasOutput stores an alias output and indexes it under its Alias ID,
// returning the fabricated output ID.
func (n *Node) AddAliasOutput(output *iotago.AliasOutput) iotago.OutputID {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	outputID := n.nextOutputID()
	n.outputs[outputID] = output
	n.aliasIndex[output.AliasID] = []iotago.OutputID{outputID}

	return outputID
}

// IndexEntry indexes an arbitrary output ID under an Alias ID without storing
// an output body, to provoke index/node inconsistencies.
func (n *Node) IndexEntry(aliasID iotago.AliasID, outputID iotago.OutputID) {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	n.aliasIndex[aliasID] = []iotago.OutputID{outputID}
}

// StoreOutput stores an output body under the given ID without indexing it.
func (n *Node) StoreOutput(outputID iotago.OutputID, output iotago.Output) {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	n.outputs[outputID] = output
}

// SetBasicIndexLag makes the next count basic-output index queries return an
// empty result regardless of indexed outputs.
func (n *Node) SetBasicIndexLag(count int) {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	n.basicIndexLag = count
}

// ScriptBlockMetadata sets the metadata responses for a block; successive
// fetches consume the sequence, the last entry repeats.
func (n *Node) ScriptBlockMetadata(blockID iotago.BlockID, states ...*ledger.BlockMetadata) {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	n.metadataScript[blockID] = states
}

// ScriptReattachedBlockMetadata sets the metadata responses for the next block
// created by a reattachment, whose ID is not knowable before it exists.
func (n *Node) ScriptReattachedBlockMetadata(states ...*ledger.BlockMetadata) {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	n.reattachScript = states
}

func (n *Node) ProtocolParameters(_ context.Context) (*iotago.ProtocolParameters, error) {
	return n.protocolParameters, nil
}

func (n *Node) OutputByID(_ context.Context, outputID iotago.OutputID) (iotago.Output, error) {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	output, exists := n.outputs[outputID]
	if !exists {
		return nil, ierrors.Wrapf(ErrOutputUnknown, "%s", outputID.ToHex())
	}

	return output, nil
}

func (n *Node) Tips(_ context.Context) (iotago.BlockIDs, error) {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	return iotago.BlockIDs{n.nextParent(), n.nextParent()}, nil
}

func (n *Node) SubmitBlock(_ context.Context, block *iotago.Block) (iotago.BlockID, error) {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	return n.storeBlock(block), nil
}

func (n *Node) BlockMetadata(_ context.Context, blockID iotago.BlockID) (*ledger.BlockMetadata, error) {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	n.MetadataFetches++

	script, exists := n.metadataScript[blockID]
	if !exists {
		return &ledger.BlockMetadata{
			BlockID:   blockID,
			Inclusion: ledger.InclusionStateIncluded,
		}, nil
	}

	metadata := script[0]
	if len(script) > 1 {
		n.metadataScript[blockID] = script[1:]
	}

	return metadata, nil
}

func (n *Node) PromoteBlock(_ context.Context, blockID iotago.BlockID) error {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	n.Promotions++
	n.PromotedBlocks = append(n.PromotedBlocks, blockID)

	return nil
}

func (n *Node) ReattachBlock(_ context.Context, blockID iotago.BlockID) (iotago.BlockID, error) {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	n.Reattachments++

	original, exists := n.blocks[blockID]
	if !exists {
		return iotago.BlockID{}, ierrors.Wrapf(ErrOutputUnknown, "no block %s to reattach", blockID.ToHex())
	}

	reattached := &iotago.Block{
		ProtocolVersion: original.ProtocolVersion,
		Parents:         iotago.BlockIDs{n.nextParent(), n.nextParent()},
		Payload:         original.Payload,
		Nonce:           original.Nonce,
	}

	reattachedID := n.storeBlock(reattached)
	if n.reattachScript != nil {
		n.metadataScript[reattachedID] = n.reattachScript
		n.reattachScript = nil
	}

	return reattachedID, nil
}

func (n *Node) AliasOutputIDs(_ context.Context, aliasID iotago.AliasID) ([]iotago.OutputID, error) {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	n.IndexQueries++

	return n.aliasIndex[aliasID], nil
}

func (n *Node) BasicOutputIDs(_ context.Context, addressBech32 string, _ ledger.BasicOutputsFilter) ([]iotago.OutputID, error) {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	n.IndexQueries++

	if n.basicIndexLag > 0 {
		n.basicIndexLag--

		return nil, nil
	}

	return n.basicIndex[addressBech32], nil
}

func (n *Node) storeBlock(block *iotago.Block) iotago.BlockID {
	blockID := lo.PanicOnErr(block.ID())
	n.blocks[blockID] = block
	n.SubmittedBlocks = append(n.SubmittedBlocks, block)

	return blockID
}

func (n *Node) nextOutputID() iotago.OutputID {
	n.txCounter++

	var seed [8]byte
	binary.LittleEndian.PutUint64(seed[:], n.txCounter)
	transactionID := iotago.TransactionID(blake2b.Sum256(seed[:]))

	return txbuilder.OutputIDFromTransactionIDAndIndex(transactionID, 0)
}

func (n *Node) nextParent() iotago.BlockID {
	n.parentCounter++

	var seed [8]byte
	binary.LittleEndian.PutUint64(seed[:], n.parentCounter)

	return iotago.BlockID(blake2b.Sum256(seed[:]))
}
