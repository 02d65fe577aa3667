// Package inclusion drives a submitted block to a terminal ledger inclusion
// state via bounded promote/reattach retries.
package inclusion

import (
	"context"
	"strings"
	"time"

	"github.com/iotaledger/hive.go/ierrors"
	"github.com/iotaledger/hive.go/logger"
	"github.com/iotaledger/hive.go/runtime/options"
	"github.com/iotaledger/identity-stardust/pkg/ledger"
	iotago "github.com/iotaledger/iota.go/v3"
)

const (
	// DefaultRetryInterval is the delay between metadata checks.
	DefaultRetryInterval = 5 * time.Second

	// DefaultMaxAttempts is the number of metadata check rounds before giving up.
	DefaultMaxAttempts = 20
)

// ErrInclusionTimeout is returned when no attachment of the transaction
// reaches a terminal inclusion state within the attempt budget. The error
// message lists every block ID that was tried.
var ErrInclusionTimeout = ierrors.New("block not included in the ledger in time")

// Tracker submits a signed block and follows all of its attachments until one
// of them is included.
type Tracker struct {
	client ledger.Client
	log    *logger.Logger

	retryInterval time.Duration
	maxAttempts   int
}

// WithRetryInterval overrides the delay between metadata checks.
func WithRetryInterval(interval time.Duration) options.Option[Tracker] {
	return func(t *Tracker) {
		t.retryInterval = interval
	}
}

// WithMaxAttempts overrides the number of metadata check rounds.
func WithMaxAttempts(attempts int) options.Option[Tracker] {
	return func(t *Tracker) {
		t.maxAttempts = attempts
	}
}

// WithLogger attaches a logger; tracking is silent without one.
func WithLogger(log *logger.Logger) options.Option[Tracker] {
	return func(t *Tracker) {
		t.log = log
	}
}

func NewTracker(client ledger.Client, opts ...options.Option[Tracker]) *Tracker {
	return options.Apply(&Tracker{
		client:        client,
		retryInterval: DefaultRetryInterval,
		maxAttempts:   DefaultMaxAttempts,
	}, opts)
}

// SubmitAndTrack submits the block and polls the metadata of all of its
// attachments until one reaches a terminal inclusion state, promoting or
// reattaching the newest attachment when the node advises it. Reattachments
// append to the tracked attachment list, older attachments remain watched but
// are never promoted or reattached again.
//
// It returns the ID of the included attachment, or ErrInclusionTimeout once
// the attempt budget is exhausted.
func (t *Tracker) SubmitAndTrack(ctx context.Context, block *iotago.Block) (iotago.BlockID, error) {
	blockID, err := t.client.SubmitBlock(ctx, block)
	if err != nil {
		return iotago.BlockID{}, ierrors.Wrap(err, "submitting block")
	}
	t.debugf("submitted block %s, tracking inclusion", blockID.ToHex())

	attachments := iotago.BlockIDs{blockID}
	for attempt := 0; attempt < t.maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return iotago.BlockID{}, ctx.Err()
		case <-time.After(t.retryInterval):
		}

		var newestMetadata *ledger.BlockMetadata
		for i, attachment := range attachments {
			metadata, err := t.client.BlockMetadata(ctx, attachment)
			if err != nil {
				return iotago.BlockID{}, ierrors.Wrapf(err, "fetching metadata of block %s", attachment.ToHex())
			}
			if metadata.Inclusion.Terminal() {
				t.debugf("block %s reached inclusion state %s", attachment.ToHex(), metadata.Inclusion)

				return attachment, nil
			}
			if i == len(attachments)-1 {
				newestMetadata = metadata
			}
		}

		newest := attachments[len(attachments)-1]
		switch {
		case newestMetadata.ShouldPromote:
			t.debugf("promoting block %s", newest.ToHex())
			if err := t.client.PromoteBlock(ctx, newest); err != nil {
				return iotago.BlockID{}, ierrors.Wrapf(err, "promoting block %s", newest.ToHex())
			}
		case newestMetadata.ShouldReattach:
			reattachedID, err := t.client.ReattachBlock(ctx, newest)
			if err != nil {
				return iotago.BlockID{}, ierrors.Wrapf(err, "reattaching block %s", newest.ToHex())
			}
			t.debugf("reattached block %s as %s", newest.ToHex(), reattachedID.ToHex())
			attachments = append(attachments, reattachedID)
		}
	}

	return iotago.BlockID{}, ierrors.Wrapf(ErrInclusionTimeout, "gave up after %d attempts, tried attachments: %s", t.maxAttempts, joinBlockIDs(attachments))
}

func (t *Tracker) debugf(template string, args ...interface{}) {
	if t.log != nil {
		t.log.Debugf(template, args...)
	}
}

func joinBlockIDs(blockIDs iotago.BlockIDs) string {
	hexIDs := make([]string, len(blockIDs))
	for i, blockID := range blockIDs {
		hexIDs[i] = blockID.ToHex()
	}

	return strings.Join(hexIDs, ", ")
}
