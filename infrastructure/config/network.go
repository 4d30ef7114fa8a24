package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
	"github.com/pointdag/pointdagd/domain/consensus"
	"github.com/pointdag/pointdagd/domain/consensus/model/externalapi"
	"github.com/pointdag/pointdagd/domain/consensus/processes/peerschedule"
)

// NetworkFlags holds the network configuration, that is the name of the
// network and its genesis.
type NetworkFlags struct {
	NetworkName        string `long:"netname" description:"Name of the network, all peers of a network must use the same name"`
	GenesisRound       uint32 `long:"genesisround" description:"Round of the genesis point"`
	GenesisTime        int64  `long:"genesistime" description:"Time of the genesis point in unix milliseconds"`
	OverrideParamsFile string `long:"override-params-file" description:"JSON file overriding consensus parameters (allowed only on devnets)"`
}

type overrideParamsConfig struct {
	RetentionRounds         *uint32 `json:"retentionRounds"`
	CommitHistoryRounds     *uint32 `json:"commitHistoryRounds"`
	MaxFutureRounds         *uint32 `json:"maxFutureRounds"`
	MaxPayloadBytes         *int    `json:"maxPayloadBytes"`
	ClockSkewInMilliSeconds *int64  `json:"clockSkewInMilliSeconds"`
	SignatureCacheSize      *int    `json:"signatureCacheSize"`
	Quorum                  *string `json:"quorum"`
}

// ResolveNetwork applies the network flags to consensusConfig.
func (networkFlags *NetworkFlags) ResolveNetwork(parser *flags.Parser, consensusConfig *consensus.Config) error {
	if networkFlags.NetworkName == "" {
		err := errors.New("The network name cannot be empty")
		fmt.Fprintln(os.Stderr, err)
		parser.WriteHelp(os.Stderr)
		return err
	}
	if networkFlags.GenesisRound == 0 {
		return errors.New("The genesis round must be at least 1")
	}

	consensusConfig.NetworkName = networkFlags.NetworkName
	consensusConfig.GenesisRound = externalapi.Round(networkFlags.GenesisRound)
	consensusConfig.GenesisTime = externalapi.UnixTime(networkFlags.GenesisTime)

	return networkFlags.overrideParams(consensusConfig)
}

func (networkFlags *NetworkFlags) isDevnet() bool {
	return networkFlags.NetworkName == consensus.DefaultNetworkName
}

func (networkFlags *NetworkFlags) overrideParams(consensusConfig *consensus.Config) error {
	if networkFlags.OverrideParamsFile == "" {
		return nil
	}

	if !networkFlags.isDevnet() {
		return errors.Errorf("override-params-file is allowed only on %s", consensus.DefaultNetworkName)
	}

	overrideParamsFile, err := os.Open(networkFlags.OverrideParamsFile)
	if err != nil {
		return err
	}
	defer overrideParamsFile.Close()

	decoder := json.NewDecoder(overrideParamsFile)
	config := &overrideParamsConfig{}
	err = decoder.Decode(config)
	if err != nil {
		return errors.Wrapf(err, "malformed params file %s", networkFlags.OverrideParamsFile)
	}

	if config.RetentionRounds != nil {
		consensusConfig.RetentionRounds = externalapi.Round(*config.RetentionRounds)
	}

	if config.CommitHistoryRounds != nil {
		consensusConfig.CommitHistoryRounds = externalapi.Round(*config.CommitHistoryRounds)
	}

	if config.MaxFutureRounds != nil {
		consensusConfig.MaxFutureRounds = externalapi.Round(*config.MaxFutureRounds)
	}

	if config.MaxPayloadBytes != nil {
		consensusConfig.MaxPayloadBytes = *config.MaxPayloadBytes
	}

	if config.ClockSkewInMilliSeconds != nil {
		consensusConfig.ClockSkew = time.Duration(*config.ClockSkewInMilliSeconds) * time.Millisecond
	}

	if config.SignatureCacheSize != nil {
		consensusConfig.SignatureCacheSize = *config.SignatureCacheSize
	}

	if config.Quorum != nil {
		quorum, err := peerschedule.ParseFractionQuorum(*config.Quorum)
		if err != nil {
			return err
		}
		consensusConfig.Quorum = quorum
	}

	return nil
}
