// Package funding selects value outputs that pay for the storage deposit of
// alias outputs published by this module.
package funding

import (
	"context"
	"time"

	"github.com/iotaledger/hive.go/ierrors"
	"github.com/iotaledger/hive.go/logger"
	"github.com/iotaledger/hive.go/runtime/options"
	"github.com/iotaledger/identity-stardust/pkg/ledger"
	iotago "github.com/iotaledger/iota.go/v3"
)

const (
	// DefaultPollInterval is the delay between indexer polls while waiting for a
	// funding output to appear.
	DefaultPollInterval = 1 * time.Second

	// DefaultMaxPollAttempts is the number of indexer polls before giving up.
	DefaultMaxPollAttempts = 5
)

var (
	// ErrFundingOutputNotFound is returned when the indexer yields no basic
	// outputs for the wallet address after all polls. This tolerates index lag
	// after a very recent deposit, not genuine absence of funds.
	ErrFundingOutputNotFound = ierrors.New("no funding output found")

	// ErrInsufficientFunds is returned when no single indexed output covers the
	// required amount.
	ErrInsufficientFunds = ierrors.New("insufficient funds")
)

// Selector finds a single spendable basic output of a wallet address that
// covers a minimum amount. Consolidating multiple inputs is out of scope,
// selection never consumes more than one output.
type Selector struct {
	client  ledger.Client
	indexer ledger.Indexer
	log     *logger.Logger

	pollInterval    time.Duration
	maxPollAttempts int
}

// WithPollInterval overrides the delay between indexer polls.
func WithPollInterval(interval time.Duration) options.Option[Selector] {
	return func(s *Selector) {
		s.pollInterval = interval
	}
}

// WithMaxPollAttempts overrides the number of indexer polls before giving up.
func WithMaxPollAttempts(attempts int) options.Option[Selector] {
	return func(s *Selector) {
		s.maxPollAttempts = attempts
	}
}

// WithLogger attaches a logger; selection is silent without one.
func WithLogger(log *logger.Logger) options.Option[Selector] {
	return func(s *Selector) {
		s.log = log
	}
}

func NewSelector(client ledger.Client, indexer ledger.Indexer, opts ...options.Option[Selector]) *Selector {
	return options.Apply(&Selector{
		client:          client,
		indexer:         indexer,
		pollInterval:    DefaultPollInterval,
		maxPollAttempts: DefaultMaxPollAttempts,
	}, opts)
}

// Select returns a basic output owned by the given address whose amount is at
// least minAmount. An output matching minAmount exactly wins immediately,
// otherwise the smallest sufficient candidate is chosen so that the remainder
// paid back to the wallet stays small.
func (s *Selector) Select(ctx context.Context, addressBech32 string, minAmount uint64) (*ledger.BasicOutputWithID, error) {
	candidates, err := s.pollCandidates(ctx, addressBech32)
	if err != nil {
		return nil, err
	}

	var best *ledger.BasicOutputWithID
	for _, outputID := range candidates {
		output, err := s.client.OutputByID(ctx, outputID)
		if err != nil {
			return nil, ierrors.Wrapf(err, "fetching funding candidate %s", outputID.ToHex())
		}

		basicOutput, isBasic := output.(*iotago.BasicOutput)
		if !isBasic || len(basicOutput.NativeTokens) > 0 {
			// the filter already excludes these, but the index may lag behind
			continue
		}

		if basicOutput.Amount == minAmount {
			return &ledger.BasicOutputWithID{ID: outputID, Output: basicOutput}, nil
		}
		if basicOutput.Amount < minAmount {
			continue
		}
		if best == nil || basicOutput.Amount < best.Output.Amount {
			best = &ledger.BasicOutputWithID{ID: outputID, Output: basicOutput}
		}
	}

	if best == nil {
		return nil, ierrors.Wrapf(ErrInsufficientFunds, "no output of %s covers %d tokens", addressBech32, minAmount)
	}

	return best, nil
}

func (s *Selector) debugf(template string, args ...interface{}) {
	if s.log != nil {
		s.log.Debugf(template, args...)
	}
}

// pollCandidates queries the indexer for spendable basic outputs of the
// address, retrying on empty results to bridge index lag.
func (s *Selector) pollCandidates(ctx context.Context, addressBech32 string) ([]iotago.OutputID, error) {
	filter := ledger.SpendableOnly()

	for attempt := 1; ; attempt++ {
		outputIDs, err := s.indexer.BasicOutputIDs(ctx, addressBech32, filter)
		if err != nil {
			return nil, ierrors.Wrapf(err, "basic output lookup failed for %s", addressBech32)
		}
		if len(outputIDs) > 0 {
			return outputIDs, nil
		}
		if attempt >= s.maxPollAttempts {
			return nil, ierrors.Wrapf(ErrFundingOutputNotFound, "no basic outputs indexed for %s after %d attempts", addressBech32, attempt)
		}

		s.debugf("no basic outputs indexed for %s yet, polling again in %s", addressBech32, s.pollInterval)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.pollInterval):
		}
	}
}
