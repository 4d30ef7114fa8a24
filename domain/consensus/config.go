package consensus

import (
	"time"

	"github.com/pkg/errors"
	"github.com/pointdag/pointdagd/domain/consensus/model/externalapi"
	"github.com/pointdag/pointdagd/domain/consensus/processes/peerschedule"
)

// Config holds the parameters a consensus instance is created with.
type Config struct {
	// NetworkName, GenesisRound and GenesisTime determine the genesis point.
	NetworkName  string
	GenesisRound externalapi.Round
	GenesisTime  externalapi.UnixTime

	// Weights maps every scheduled peer to its weight.
	Weights map[externalapi.PeerID]uint64
	Quorum  peerschedule.FractionQuorum

	// RetentionRounds is the number of rounds kept behind the current one.
	RetentionRounds     externalapi.Round
	CommitHistoryRounds externalapi.Round

	// MaxFutureRounds is how far beyond the current round a point may be
	// and still be accepted.
	MaxFutureRounds externalapi.Round

	MaxPayloadBytes    int
	ClockSkew          time.Duration
	SignatureCacheSize int
}

const (
	// DefaultNetworkName is the network name of a default configuration.
	DefaultNetworkName = "pointdag-devnet"

	// DefaultGenesisRound is the round of the default genesis point.
	DefaultGenesisRound externalapi.Round = 1

	// DefaultRetentionRounds is the default size of the round window.
	DefaultRetentionRounds externalapi.Round = 32

	// DefaultCommitHistoryRounds is the default number of rounds committed
	// ids are remembered for.
	DefaultCommitHistoryRounds externalapi.Round = 64

	// DefaultMaxFutureRounds is the default distance beyond the current
	// round points are accepted at.
	DefaultMaxFutureRounds externalapi.Round = 2

	// DefaultMaxPayloadBytes is the default payload limit of a point.
	DefaultMaxPayloadBytes = 1 << 20

	// DefaultClockSkew is how far in the future a point time may be by default.
	DefaultClockSkew = 5 * time.Second

	// DefaultSignatureCacheSize is the default number of verified
	// signatures remembered.
	DefaultSignatureCacheSize = 1 << 14

	defaultGenesisTime externalapi.UnixTime = 1_704_067_200_000
)

// DefaultConfig returns the default parameters over the given weights.
func DefaultConfig(weights map[externalapi.PeerID]uint64) *Config {
	return &Config{
		NetworkName:         DefaultNetworkName,
		GenesisRound:        DefaultGenesisRound,
		GenesisTime:         defaultGenesisTime,
		Weights:             weights,
		Quorum:              peerschedule.DefaultQuorum,
		RetentionRounds:     DefaultRetentionRounds,
		CommitHistoryRounds: DefaultCommitHistoryRounds,
		MaxFutureRounds:     DefaultMaxFutureRounds,
		MaxPayloadBytes:     DefaultMaxPayloadBytes,
		ClockSkew:           DefaultClockSkew,
		SignatureCacheSize:  DefaultSignatureCacheSize,
	}
}

// Validate checks that the parameters are usable.
func (c *Config) Validate() error {
	if c.NetworkName == "" {
		return errors.New("network name must not be empty")
	}
	if len(c.Weights) == 0 {
		return errors.New("at least one peer must be scheduled")
	}
	if c.RetentionRounds < 4 {
		return errors.Errorf("retention rounds must be at least 4, got %d", c.RetentionRounds)
	}
	if c.CommitHistoryRounds < c.RetentionRounds {
		return errors.Errorf("commit history rounds (%d) must not be below retention rounds (%d)",
			c.CommitHistoryRounds, c.RetentionRounds)
	}
	if c.MaxFutureRounds == 0 || c.MaxFutureRounds > c.RetentionRounds {
		return errors.Errorf("max future rounds must be between 1 and retention rounds (%d), got %d",
			c.RetentionRounds, c.MaxFutureRounds)
	}
	if c.MaxPayloadBytes <= 0 {
		return errors.New("max payload bytes must be positive")
	}
	if c.ClockSkew < 0 {
		return errors.New("clock skew must not be negative")
	}
	if c.SignatureCacheSize <= 0 {
		return errors.New("signature cache size must be positive")
	}
	return nil
}
