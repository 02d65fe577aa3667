package did

import (
	"strings"

	"github.com/iotaledger/hive.go/ierrors"
	iotago "github.com/iotaledger/iota.go/v3"
)

// Method is the DID method name used by this module.
const Method = "iota"

var (
	// ErrInvalidDID is returned when parsing a string that is not a valid DID of this method.
	ErrInvalidDID = ierrors.New("invalid DID")
)

// DID identifies a DID document stored in the state metadata of an Alias Output.
// The tag of the DID is the Alias ID of that output, the network component is the
// bech32 human-readable prefix of the network the output lives on.
//
// A DID is immutable once constructed, equality is structural.
type DID struct {
	aliasID iotago.AliasID
	network iotago.NetworkPrefix
}

// New constructs a DID from an already known Alias ID.
// This is the path taken for every alias output with a state index > 0,
// where the Alias ID is stored in the output itself.
func New(aliasID iotago.AliasID, network iotago.NetworkPrefix) DID {
	return DID{
		aliasID: aliasID,
		network: network,
	}
}

// FromOutputID derives the DID of an alias output that was created by the
// given output. The Alias ID of a freshly created alias output is the
// BLAKE2b-256 digest of the output ID that created it, which is the only
// point at which the identifier becomes knowable.
func FromOutputID(outputID iotago.OutputID, network iotago.NetworkPrefix) DID {
	return New(iotago.AliasIDFromOutputID(outputID), network)
}

// Placeholder returns the DID with the all-zero tag for the given network.
// It is used inside documents that are packed into an alias output that has
// not been published yet, since the real identifier of such an output cannot
// be chosen in advance.
func Placeholder(network iotago.NetworkPrefix) DID {
	return New(iotago.AliasID{}, network)
}

// Parse parses a DID in its string form "did:iota:<network>:<alias-id-hex>".
func Parse(s string) (DID, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 4 {
		return DID{}, ierrors.Wrapf(ErrInvalidDID, "expected 4 segments, got %d in %q", len(parts), s)
	}

	if parts[0] != "did" || parts[1] != Method {
		return DID{}, ierrors.Wrapf(ErrInvalidDID, "%q is not a did:%s identifier", s, Method)
	}

	if parts[2] == "" {
		return DID{}, ierrors.Wrapf(ErrInvalidDID, "empty network in %q", s)
	}

	tagBytes, err := iotago.DecodeHex(parts[3])
	if err != nil {
		return DID{}, ierrors.Wrapf(ErrInvalidDID, "malformed tag in %q: %s", s, err.Error())
	}
	if len(tagBytes) != len(iotago.AliasID{}) {
		return DID{}, ierrors.Wrapf(ErrInvalidDID, "tag of %q must be %d bytes, got %d", s, len(iotago.AliasID{}), len(tagBytes))
	}

	var aliasID iotago.AliasID
	copy(aliasID[:], tagBytes)

	return New(aliasID, iotago.NetworkPrefix(parts[2])), nil
}

// AliasID returns the Alias ID the DID points to.
func (d DID) AliasID() iotago.AliasID {
	return d.aliasID
}

// Network returns the bech32 human-readable prefix of the network the DID lives on.
func (d DID) Network() iotago.NetworkPrefix {
	return d.network
}

// IsPlaceholder reports whether the tag of the DID is all-zero.
func (d DID) IsPlaceholder() bool {
	return d.aliasID == iotago.AliasID{}
}

// Equal reports whether both the tag and the network match exactly.
func (d DID) Equal(other DID) bool {
	return d == other
}

func (d DID) String() string {
	return "did:" + Method + ":" + string(d.network) + ":" + iotago.EncodeHex(d.aliasID[:])
}

// MarshalText implements encoding.TextMarshaler.
func (d DID) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *DID) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*d = parsed

	return nil
}
