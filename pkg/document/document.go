package document

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/iotaledger/hive.go/ierrors"
	"github.com/iotaledger/identity-stardust/pkg/did"
)

var (
	// ErrInvalidStateMetadata is returned when the state metadata of an alias output
	// cannot be decoded into a document.
	ErrInvalidStateMetadata = ierrors.New("invalid state metadata")

	// ErrEmptyStateMetadata is returned when unpacking empty state metadata without
	// explicitly allowing it.
	ErrEmptyStateMetadata = ierrors.New("empty state metadata")

	// ErrMethodNotFound is returned when removing a verification method that does not exist.
	ErrMethodNotFound = ierrors.New("verification method not found")
)

// VerificationMethod is a public key bound to the document that can be used to
// authenticate as the DID subject.
type VerificationMethod struct {
	ID                 string `json:"id"`
	Controller         string `json:"controller"`
	Type               string `json:"type"`
	PublicKeyMultibase string `json:"publicKeyMultibase"`
}

// Service describes a way to interact with the DID subject, e.g. an endpoint
// where more information about it can be found.
type Service struct {
	ID              string `json:"id"`
	Type            string `json:"type"`
	ServiceEndpoint string `json:"serviceEndpoint"`
}

// Metadata holds information about the document that is not part of the
// document itself.
type Metadata struct {
	Created     *time.Time `json:"created,omitempty"`
	Updated     *time.Time `json:"updated,omitempty"`
	Deactivated bool       `json:"deactivated,omitempty"`
}

// Document is a DID document together with its metadata.
//
// Its canonical on-ledger form is the JSON encoding produced by Pack, which is
// stored verbatim in the state metadata of the alias output that hosts the
// document.
type Document struct {
	ID                  did.DID               `json:"id"`
	Controller          string                `json:"controller,omitempty"`
	VerificationMethods []*VerificationMethod `json:"verificationMethod,omitempty"`
	Services            []*Service            `json:"service,omitempty"`
	Metadata            Metadata              `json:"metadata"`
}

// New creates an empty document bound to the given DID.
// For a document that is going to be published in a new alias output, the DID
// is the placeholder of the target network, see did.Placeholder.
func New(id did.DID) *Document {
	now := time.Now().UTC().Truncate(time.Second)

	return &Document{
		ID: id,
		Metadata: Metadata{
			Created: &now,
			Updated: &now,
		},
	}
}

// AddVerificationMethod attaches a verification method to the document.
func (d *Document) AddVerificationMethod(method *VerificationMethod) {
	d.VerificationMethods = append(d.VerificationMethods, method)
}

// RemoveVerificationMethod removes the verification method with the given id.
func (d *Document) RemoveVerificationMethod(id string) error {
	for i, method := range d.VerificationMethods {
		if method.ID == id {
			d.VerificationMethods = append(d.VerificationMethods[:i], d.VerificationMethods[i+1:]...)

			return nil
		}
	}

	return ierrors.Wrapf(ErrMethodNotFound, "no method %q in document %s", id, d.ID)
}

// AddService attaches a service to the document.
func (d *Document) AddService(service *Service) {
	d.Services = append(d.Services, service)
}

// Pack serializes the document to its canonical on-ledger byte form.
// Unpack is its exact inverse.
func (d *Document) Pack() ([]byte, error) {
	packed, err := json.Marshal(d)
	if err != nil {
		return nil, ierrors.Wrapf(err, "packing document %s", d.ID)
	}

	return packed, nil
}

// Unpack reconstructs a document from the state metadata of an alias output and
// binds it to the given DID. The document may have been packed against the
// placeholder DID before its alias output existed, in which case all
// identifiers inside the document are rewritten to the supplied one.
//
// Empty state metadata is a valid representation of "no document state": if
// allowEmpty is set an empty, deactivated document bound to the DID is
// returned, otherwise ErrEmptyStateMetadata.
func Unpack(id did.DID, stateMetadata []byte, allowEmpty bool) (*Document, error) {
	if len(stateMetadata) == 0 {
		if !allowEmpty {
			return nil, ierrors.Wrapf(ErrEmptyStateMetadata, "no state metadata for %s", id)
		}

		return &Document{
			ID: id,
			Metadata: Metadata{
				Deactivated: true,
			},
		}, nil
	}

	document := &Document{}
	if err := json.Unmarshal(stateMetadata, document); err != nil {
		return nil, ierrors.Wrapf(ErrInvalidStateMetadata, "unpacking document %s: %s", id, err.Error())
	}
	document.rebind(id)

	return document, nil
}

// rebind replaces the packed identifier of the document with the given one,
// including the identifier prefixes of all contained methods and services.
func (d *Document) rebind(id did.DID) {
	previous := d.ID.String()
	next := id.String()

	d.ID = id
	if d.Controller == previous {
		d.Controller = next
	}
	for _, method := range d.VerificationMethods {
		method.ID = strings.Replace(method.ID, previous, next, 1)
		if method.Controller == previous {
			method.Controller = next
		}
	}
	for _, service := range d.Services {
		service.ID = strings.Replace(service.ID, previous, next, 1)
	}
}
