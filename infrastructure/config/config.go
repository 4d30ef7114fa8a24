package config

import (
	"bufio"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
	"github.com/pointdag/pointdagd/domain/consensus"
	"github.com/pointdag/pointdagd/domain/consensus/model/externalapi"
	"github.com/pointdag/pointdagd/domain/consensus/processes/peerschedule"
	"github.com/pointdag/pointdagd/domain/consensus/utils/signing"
	"github.com/pointdag/pointdagd/util"
	"github.com/pointdag/pointdagd/util/network"
	"github.com/pointdag/pointdagd/version"
)

const (
	defaultConfigFilename    = "pointdagd.conf"
	defaultDataDirname       = "data"
	defaultLogLevel          = "info"
	defaultLogDirname        = "logs"
	defaultLogFilename       = "pointdagd.log"
	defaultErrLogFilename    = "pointdagd_err.log"
	defaultKeyFilename       = "peer.key"
	defaultRoundTimeout      = time.Second
	defaultPayloadBatchBytes = 256 * 1024
	defaultInputBufferSize   = 10000
	sampleConfigFilename     = "sample-pointdagd.conf"

	// DefaultListenPort is the port peers listen on when an address omits it
	DefaultListenPort = "16611"
)

var (
	// DefaultAppDir is the default home directory for pointdagd.
	DefaultAppDir = util.AppDataDir("pointdagd")

	defaultConfigFile = filepath.Join(DefaultAppDir, defaultConfigFilename)
	defaultLogDir     = filepath.Join(DefaultAppDir, defaultLogDirname)
)

// Flags defines the configuration options for pointdagd.
//
// See LoadConfig for details on the configuration load process.
type Flags struct {
	ShowVersion         bool          `short:"V" long:"version" description:"Display version information and exit"`
	ConfigFile          string        `short:"C" long:"configfile" description:"Path to configuration file"`
	AppDir              string        `short:"b" long:"appdir" description:"Directory to store data"`
	LogDir              string        `long:"logdir" description:"Directory to log output."`
	LogLevel            string        `short:"d" long:"loglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems -- Use show to list available subsystems"`
	Listeners           []string      `long:"listen" description:"Add an interface/port to listen for peer queries (default all interfaces port: 16611)"`
	Peers               []string      `long:"peer" description:"Add a scheduled peer as <public key hex>@<host>:<port>"`
	KeyFile             string        `long:"keyfile" description:"File holding the hex encoded private key of the local peer, created if missing"`
	StakesFile          string        `long:"stakesfile" description:"JSON file mapping the public key hex of every scheduled peer to its weight"`
	EqualWeights        bool          `long:"equalweights" description:"Give every scheduled peer the same weight"`
	Quorum              string        `long:"quorum" description:"Fraction of the total weight a quorum must exceed, as num/den"`
	RetentionRounds     uint32        `long:"retentionrounds" description:"Number of rounds retained behind the current one"`
	CommitHistoryRounds uint32        `long:"commithistoryrounds" description:"Number of rounds committed points are remembered for"`
	RoundTimeout        time.Duration `long:"roundtimeout" description:"How long to wait for a quorum of points before building a point with what is known"`
	PayloadBatchBytes   int           `long:"payloadbatchbytes" description:"Maximum payload bytes taken from the input buffer for a single point"`
	MaxPayloadBytes     int           `long:"maxpayloadbytes" description:"Maximum payload bytes of a point"`
	InputBufferSize     int           `long:"inputbuffersize" description:"Maximum number of payloads waiting in the input buffer"`
	ClockSkew           time.Duration `long:"clockskew" description:"How far in the future the time of a point may be"`
	Proxy               string        `long:"proxy" description:"Connect via SOCKS5 proxy (eg. 127.0.0.1:9050)"`
	ProxyUser           string        `long:"proxyuser" description:"Username for proxy server"`
	ProxyPass           string        `long:"proxypass" default-mask:"-" description:"Password for proxy server"`
	MetricsListen       string        `long:"metricslisten" description:"Interface/port to expose prometheus metrics on (eg. 127.0.0.1:16612)"`
	NoDB                bool          `long:"nodb" description:"Keep the DAG in memory only"`
	Profile             string        `long:"profile" description:"Enable HTTP profiling on given port -- NOTE port must be between 1024 and 65535"`
	NetworkFlags
}

// Config defines the configuration options for pointdagd.
//
// See LoadConfig for details on the configuration load process.
type Config struct {
	*Flags
	KeyPair       *signing.KeyPair
	PeerAddresses map[externalapi.PeerID]string
	Consensus     *consensus.Config
}

// cleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	// Expand initial ~ to OS specific home directory.
	if strings.HasPrefix(path, "~") {
		homeDir := filepath.Dir(DefaultAppDir)
		path = strings.Replace(path, "~", homeDir, 1)
	}

	// NOTE: The os.ExpandEnv doesn't work with Windows-style %VARIABLE%,
	// but the variables can still be expanded via POSIX-style $VARIABLE.
	return filepath.Clean(os.ExpandEnv(path))
}

func defaultFlags() *Flags {
	defaultConsensusConfig := consensus.DefaultConfig(nil)
	return &Flags{
		ConfigFile:          defaultConfigFile,
		AppDir:              DefaultAppDir,
		LogDir:              defaultLogDir,
		LogLevel:            defaultLogLevel,
		Quorum:              defaultConsensusConfig.Quorum.String(),
		RetentionRounds:     uint32(defaultConsensusConfig.RetentionRounds),
		CommitHistoryRounds: uint32(defaultConsensusConfig.CommitHistoryRounds),
		RoundTimeout:        defaultRoundTimeout,
		PayloadBatchBytes:   defaultPayloadBatchBytes,
		MaxPayloadBytes:     defaultConsensusConfig.MaxPayloadBytes,
		InputBufferSize:     defaultInputBufferSize,
		ClockSkew:           defaultConsensusConfig.ClockSkew,
		NetworkFlags: NetworkFlags{
			NetworkName:  defaultConsensusConfig.NetworkName,
			GenesisRound: uint32(defaultConsensusConfig.GenesisRound),
			GenesisTime:  int64(defaultConsensusConfig.GenesisTime),
		},
	}
}

// LoadConfig initializes and parses the config using a config file and command
// line options.
//
// The configuration proceeds as follows:
//  1. Start with a default config with sane settings
//  2. Pre-parse the command line to check for an alternative config file
//  3. Load configuration file overwriting defaults with any specified options
//  4. Parse CLI options and overwrite/add any specified options
//
// The above results in pointdagd functioning properly without any config settings
// while still allowing the user to override settings with config files and
// command line options. Command line options always take precedence.
func LoadConfig() (*Config, error) {
	cfgFlags := defaultFlags()

	// Pre-parse the command line options to see if an alternative config
	// file or the version flag was specified. Any errors aside from the
	// help message error can be ignored here since they will be caught by
	// the final parse below.
	preCfg := *cfgFlags
	preParser := flags.NewParser(&preCfg, flags.HelpFlag)
	_, err := preParser.Parse()
	if err != nil {
		var flagsErr *flags.Error
		if ok := errors.As(err, &flagsErr); ok && flagsErr.Type == flags.ErrHelp {
			fmt.Fprintln(os.Stderr, err)
			return nil, err
		}
	}

	// Show the version and exit if the version flag was specified.
	appName := filepath.Base(os.Args[0])
	appName = strings.TrimSuffix(appName, filepath.Ext(appName))
	usageMessage := fmt.Sprintf("Use %s -h to show usage", appName)
	if preCfg.ShowVersion {
		fmt.Println(appName, "version", version.Version())
		os.Exit(0)
	}

	// Load additional config from file.
	var configFileError error
	parser := flags.NewParser(cfgFlags, flags.Default)
	if _, err := os.Stat(preCfg.ConfigFile); os.IsNotExist(err) {
		err := createDefaultConfigFile(preCfg.ConfigFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating a default config file: %s\n", err)
		}
	}

	err = flags.NewIniParser(parser).ParseFile(preCfg.ConfigFile)
	if err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			fmt.Fprintf(os.Stderr, "Error parsing config file: %s\n", err)
			fmt.Fprintln(os.Stderr, usageMessage)
			return nil, err
		}
		configFileError = err
	}

	// Parse command line options again to ensure they take precedence.
	_, err = parser.Parse()
	if err != nil {
		var flagsErr *flags.Error
		if ok := errors.As(err, &flagsErr); !ok || flagsErr.Type != flags.ErrHelp {
			fmt.Fprintln(os.Stderr, usageMessage)
		}
		return nil, err
	}

	cfg, err := resolveConfig(cfgFlags, parser)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, err
	}

	// Warn about missing config file only after all other configuration is
	// done. This prevents the warning on help messages and invalid
	// options. Note this should go directly before the return.
	if configFileError != nil {
		log.Warnf("%s", configFileError)
	}

	return cfg, nil
}

// resolveConfig validates the parsed flags and derives the parameters of
// the node from them.
func resolveConfig(cfgFlags *Flags, parser *flags.Parser) (*Config, error) {
	funcName := "loadConfig"

	cfgFlags.AppDir = cleanAndExpandPath(cfgFlags.AppDir)
	err := os.MkdirAll(cfgFlags.AppDir, 0700)
	if err != nil {
		return nil, errors.Errorf("%s: Failed to create home directory: %s", funcName, err)
	}

	// Append the network name to the log directory so it is "namespaced"
	// per network in the same fashion as the data directory.
	cfgFlags.LogDir = cleanAndExpandPath(cfgFlags.LogDir)
	cfgFlags.LogDir = filepath.Join(cfgFlags.LogDir, cfgFlags.NetworkName)

	if cfgFlags.KeyFile == "" {
		cfgFlags.KeyFile = filepath.Join(cfgFlags.AppDir, defaultKeyFilename)
	}
	cfgFlags.KeyFile = cleanAndExpandPath(cfgFlags.KeyFile)
	keyPair, err := loadOrCreateKeyPair(cfgFlags.KeyFile)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: Failed to load the key file", funcName)
	}

	peerAddresses := make(map[externalapi.PeerID]string, len(cfgFlags.Peers))
	for _, peerString := range cfgFlags.Peers {
		peer, address, err := ParsePeer(peerString)
		if err != nil {
			return nil, errors.Wrapf(err, "%s: invalid --peer", funcName)
		}
		if _, ok := peerAddresses[peer]; ok {
			return nil, errors.Errorf("%s: peer %s was specified more than once", funcName, peer)
		}
		if peer != keyPair.PeerID() {
			peerAddresses[peer] = address
		}
	}

	weights, err := cfgFlags.resolveWeights(keyPair.PeerID(), peerAddresses)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", funcName)
	}
	if _, ok := weights[keyPair.PeerID()]; !ok {
		return nil, errors.Errorf("%s: the local peer %s is not scheduled", funcName, keyPair.PeerID())
	}

	consensusConfig := consensus.DefaultConfig(weights)
	consensusConfig.Quorum, err = peerschedule.ParseFractionQuorum(cfgFlags.Quorum)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: invalid --quorum", funcName)
	}
	consensusConfig.RetentionRounds = externalapi.Round(cfgFlags.RetentionRounds)
	consensusConfig.CommitHistoryRounds = externalapi.Round(cfgFlags.CommitHistoryRounds)
	consensusConfig.MaxPayloadBytes = cfgFlags.MaxPayloadBytes
	consensusConfig.ClockSkew = cfgFlags.ClockSkew
	err = cfgFlags.ResolveNetwork(parser, consensusConfig)
	if err != nil {
		return nil, err
	}
	err = consensusConfig.Validate()
	if err != nil {
		return nil, errors.Wrapf(err, "%s", funcName)
	}

	if len(cfgFlags.Listeners) == 0 {
		cfgFlags.Listeners = []string{":" + DefaultListenPort}
	}
	cfgFlags.Listeners, err = network.NormalizeAddresses(cfgFlags.Listeners, DefaultListenPort)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: invalid --listen", funcName)
	}

	if cfgFlags.Profile != "" {
		profilePort, err := strconv.Atoi(cfgFlags.Profile)
		if err != nil || profilePort < 1024 || profilePort > 65535 {
			return nil, errors.Errorf("%s: The profile port must be between 1024 and 65535", funcName)
		}
	}

	if cfgFlags.PayloadBatchBytes <= 0 || cfgFlags.InputBufferSize <= 0 {
		return nil, errors.Errorf("%s: payloadbatchbytes and inputbuffersize must be positive", funcName)
	}

	return &Config{
		Flags:         cfgFlags,
		KeyPair:       keyPair,
		PeerAddresses: peerAddresses,
		Consensus:     consensusConfig,
	}, nil
}

// ParsePeer parses a peer of the form <public key hex>@<host>:<port>. The
// port defaults to DefaultListenPort.
func ParsePeer(peerString string) (externalapi.PeerID, string, error) {
	parts := strings.SplitN(peerString, "@", 2)
	if len(parts) != 2 || parts[1] == "" {
		return externalapi.PeerID{}, "", errors.Errorf("%q is not of the form <public key hex>@<host>:<port>", peerString)
	}
	peer, err := externalapi.NewPeerIDFromString(parts[0])
	if err != nil {
		return externalapi.PeerID{}, "", errors.Wrapf(err, "malformed public key in %q", peerString)
	}
	address, err := network.NormalizeAddress(parts[1], DefaultListenPort)
	if err != nil {
		return externalapi.PeerID{}, "", errors.Wrapf(err, "malformed address in %q", peerString)
	}
	return peer, address, nil
}

// resolveWeights returns the weight of every scheduled peer: the weights
// of the stakes file, or the same weight for the local peer and every
// --peer.
func (cfgFlags *Flags) resolveWeights(localPeer externalapi.PeerID,
	peerAddresses map[externalapi.PeerID]string) (map[externalapi.PeerID]uint64, error) {

	if cfgFlags.StakesFile != "" && cfgFlags.EqualWeights {
		return nil, errors.New("stakesfile and equalweights cannot be used together -- choose only one")
	}
	if cfgFlags.StakesFile != "" {
		return LoadStakes(cleanAndExpandPath(cfgFlags.StakesFile))
	}

	weights := make(map[externalapi.PeerID]uint64, len(peerAddresses)+1)
	weights[localPeer] = 1
	for peer := range peerAddresses {
		weights[peer] = 1
	}
	return weights, nil
}

// LoadStakes reads a JSON object mapping public key hex strings to weights.
func LoadStakes(path string) (map[externalapi.PeerID]uint64, error) {
	stakesFile, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer stakesFile.Close()

	stakes := make(map[string]uint64)
	err = json.NewDecoder(stakesFile).Decode(&stakes)
	if err != nil {
		return nil, errors.Wrapf(err, "malformed stakes file %s", path)
	}

	weights := make(map[externalapi.PeerID]uint64, len(stakes))
	for peerString, weight := range stakes {
		peer, err := externalapi.NewPeerIDFromString(peerString)
		if err != nil {
			return nil, errors.Wrapf(err, "malformed public key %q in stakes file %s", peerString, path)
		}
		weights[peer] = weight
	}
	return weights, nil
}

// loadOrCreateKeyPair reads the private key in path, generating and
// saving a new one if the file does not exist.
func loadOrCreateKeyPair(path string) (*signing.KeyPair, error) {
	content, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		keyPair, err := signing.GenerateKeyPair()
		if err != nil {
			return nil, err
		}
		err = os.MkdirAll(filepath.Dir(path), 0700)
		if err != nil {
			return nil, err
		}
		err = os.WriteFile(path, []byte(hex.EncodeToString(keyPair.PrivateKey())+"\n"), 0600)
		if err != nil {
			return nil, err
		}
		return keyPair, nil
	}
	if err != nil {
		return nil, err
	}

	privateKey, err := hex.DecodeString(strings.TrimSpace(string(content)))
	if err != nil {
		return nil, errors.Wrapf(err, "malformed private key in %s", path)
	}
	return signing.KeyPairFromPrivateKey(privateKey)
}

// LogFile returns the path of the log file
func (cfg *Config) LogFile() string {
	return filepath.Join(cfg.LogDir, defaultLogFilename)
}

// ErrLogFile returns the path of the error log file
func (cfg *Config) ErrLogFile() string {
	return filepath.Join(cfg.LogDir, defaultErrLogFilename)
}

// DataDir returns the directory of the database, namespaced per network
func (cfg *Config) DataDir() string {
	return filepath.Join(cfg.AppDir, defaultDataDirname, cfg.NetworkName)
}

// createDefaultConfigFile copies the file sample-pointdagd.conf to the given destination path.
func createDefaultConfigFile(destinationPath string) error {
	// Create the destination directory if it does not exists
	err := os.MkdirAll(filepath.Dir(destinationPath), 0700)
	if err != nil {
		return err
	}

	// We assume sample config file path is same as binary
	path, err := filepath.Abs(filepath.Dir(os.Args[0]))
	if err != nil {
		return err
	}
	sampleConfigPath := filepath.Join(path, sampleConfigFilename)

	src, err := os.Open(sampleConfigPath)
	if err != nil {
		return err
	}
	defer src.Close()

	dest, err := os.OpenFile(destinationPath,
		os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer dest.Close()

	reader := bufio.NewReader(src)
	for err != io.EOF {
		var line string
		line, err = reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return err
		}

		if _, err := dest.WriteString(line); err != nil {
			return err
		}
	}

	return nil
}
