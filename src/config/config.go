package config

import (
	"crypto/ecdsa"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/mosaicnetworks/hive/src/common"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// Default filenames.
const (
	// DefaultKeyfile is the default name of the file containing the node's
	// private key
	DefaultKeyfile = "priv_key"

	// DefaultBadgerFile is the default name of the folder containing the Badger
	// database
	DefaultBadgerFile = "badger_db"
)

// Discovery modes
const (
	DiscoveryStatic     = "static"
	DiscoveryMemberlist = "memberlist"
)

// Default configuration values.
const (
	DefaultLogLevel         = "debug"
	DefaultBindAddr         = "127.0.0.1:1337"
	DefaultServiceAddr      = "127.0.0.1:8000"
	DefaultGossipAddr       = "127.0.0.1"
	DefaultGossipPort       = 7946
	DefaultDiscovery        = DiscoveryStatic
	DefaultElectionTimeout  = 1500 * time.Millisecond
	DefaultHeartbeatTimeout = 150 * time.Millisecond
	DefaultTCPTimeout       = 1000 * time.Millisecond
	DefaultDialInterval     = 2000 * time.Millisecond
	DefaultDedupCapacity    = 1 << 16
	DefaultStore            = false
	DefaultSignedGossip     = true
)

// Config contains all the configuration properties of a hive node.
type Config struct {
	// DataDir is the top-level directory containing hive configuration and
	// data
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// LogFile, when set, receives a copy of every log entry in JSON format.
	LogFile string `mapstructure:"log-file"`

	// BindAddr is the local address:port where this node accepts connections
	// from other nodes. Use AdvertiseAddr when the bound address is not the
	// one other nodes should dial.
	BindAddr string `mapstructure:"listen"`

	// AdvertiseAddr is used to change the address that we advertise to other
	// nodes.
	AdvertiseAddr string `mapstructure:"advertise"`

	// NoService disables the HTTP API service.
	NoService bool `mapstructure:"no-service"`

	// ServiceAddr is the address:port of the optional HTTP service.
	ServiceAddr string `mapstructure:"service-listen"`

	// Moniker defines the friendly name of this node
	Moniker string `mapstructure:"moniker"`

	// ElectionTimeout is the base period of the election timer. Every period
	// is drawn at random between ElectionTimeout and twice ElectionTimeout.
	ElectionTimeout time.Duration `mapstructure:"election-timeout"`

	// HeartbeatTimeout is the period of the leader heartbeats. It must be well
	// below ElectionTimeout.
	HeartbeatTimeout time.Duration `mapstructure:"heartbeat"`

	// TCPTimeout bounds dials, handshakes and single stream exchanges.
	TCPTimeout time.Duration `mapstructure:"timeout"`

	// DialInterval is the minimum interval between two dials to the same peer.
	DialInterval time.Duration `mapstructure:"dial-interval"`

	// DedupCapacity sizes the dedup filters of the session manager and the
	// gossip router.
	DedupCapacity int `mapstructure:"dedup-capacity"`

	// BootstrapExpect is the number of nodes, this one included, that must
	// be known before the first election. 0 starts elections right away.
	BootstrapExpect int `mapstructure:"bootstrap-expect"`

	// SignedGossip requires every gossip message to carry a valid signature.
	SignedGossip bool `mapstructure:"signed-gossip"`

	// Store activates persistant storage of the hard state.
	Store bool `mapstructure:"store"`

	// DatabaseDir is the directory containing database files.
	DatabaseDir string `mapstructure:"db"`

	// Discovery selects how peers are found: "static" reads peers.json from
	// DataDir, "memberlist" runs the memberlist gossip protocol.
	Discovery string `mapstructure:"discovery"`

	// GossipAddr and GossipPort are where memberlist listens.
	GossipAddr string `mapstructure:"gossip-listen"`
	GossipPort int    `mapstructure:"gossip-port"`

	// Join lists memberlist addresses of existing members.
	Join []string `mapstructure:"join"`

	// Dial lists addresses to dial at startup, regardless of discovery.
	Dial []string `mapstructure:"dial"`

	// Key is the private key of the node.
	Key *ecdsa.PrivateKey

	logger *logrus.Logger
}

// NewDefaultConfig returns a config object with default values.
func NewDefaultConfig() *Config {
	config := &Config{
		DataDir:          DefaultDataDir(),
		LogLevel:         DefaultLogLevel,
		BindAddr:         DefaultBindAddr,
		ServiceAddr:      DefaultServiceAddr,
		ElectionTimeout:  DefaultElectionTimeout,
		HeartbeatTimeout: DefaultHeartbeatTimeout,
		TCPTimeout:       DefaultTCPTimeout,
		DialInterval:     DefaultDialInterval,
		DedupCapacity:    DefaultDedupCapacity,
		SignedGossip:     DefaultSignedGossip,
		Store:            DefaultStore,
		DatabaseDir:      DefaultDatabaseDir(),
		Discovery:        DefaultDiscovery,
		GossipAddr:       DefaultGossipAddr,
		GossipPort:       DefaultGossipPort,
	}

	return config
}

// NewTestConfig returns a config object with default values and a special
// logger for debugging tests.
func NewTestConfig(t testing.TB, level logrus.Level) *Config {
	config := NewDefaultConfig()
	config.ElectionTimeout = 200 * time.Millisecond
	config.HeartbeatTimeout = 20 * time.Millisecond
	config.DialInterval = 100 * time.Millisecond
	config.NoService = true
	config.logger = common.NewTestLogger(t, level)
	return config
}

// SetDataDir sets the top-level hive directory, and updates the database
// directory if it is currently set to the default value. If the database
// directory is not currently the default, it means the user has explicitely set
// it to something else, so avoid changing it again here.
func (c *Config) SetDataDir(dataDir string) {
	c.DataDir = dataDir
	if c.DatabaseDir == DefaultDatabaseDir() {
		c.DatabaseDir = filepath.Join(dataDir, DefaultBadgerFile)
	}
}

// Keyfile returns the full path of the file containing the private key.
func (c *Config) Keyfile() string {
	return filepath.Join(c.DataDir, DefaultKeyfile)
}

// Logger returns a formatted logrus Entry, with prefix set to "hive".
func (c *Config) Logger() *logrus.Entry {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)

		if c.LogFile != "" {
			pathMap := lfshook.PathMap{}
			for _, l := range logrus.AllLevels {
				pathMap[l] = c.LogFile
			}
			c.logger.Hooks.Add(lfshook.NewHook(
				pathMap,
				&logrus.JSONFormatter{},
			))
		}
	}
	return c.logger.WithField("prefix", "hive")
}

// DefaultDatabaseDir returns the default path for the badger database files.
func DefaultDatabaseDir() string {
	return filepath.Join(DefaultDataDir(), DefaultBadgerFile)
}

// DefaultDataDir return the default directory name for top-level hive config
// based on the underlying OS, attempting to respect conventions.
func DefaultDataDir() string {
	// Try to place the data folder in the user's home dir
	home := HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, ".Hive")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "Hive")
		} else {
			return filepath.Join(home, ".hive")
		}
	}
	// As we cannot guess a stable location, return empty and handle later
	return ""
}

// HomeDir returns the user's home directory.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// LogLevel parses a string into a Logrus log level.
func LogLevel(l string) logrus.Level {
	switch l {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.DebugLevel
	}
}
