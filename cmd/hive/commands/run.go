package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/mosaicnetworks/hive/src/config"
	"github.com/mosaicnetworks/hive/src/hive"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

//NewRunCmd returns the command that starts a hive node
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run node",
		PreRunE: loadConfig,
		RunE:    runHive,
	}
	AddRunFlags(cmd)
	return cmd
}

/*******************************************************************************
* RUN
*******************************************************************************/

func runHive(cmd *cobra.Command, args []string) error {
	engine := hive.NewHive(&_config.Hive)

	if err := engine.Init(); err != nil {
		_config.Hive.Logger().Error("Cannot initialize engine:", err)
		return err
	}

	sigintCh := make(chan os.Signal, 1)
	signal.Notify(sigintCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigintCh
		_config.Hive.Logger().Debug("Reacting to SIGINT - Shutdown")
		engine.Shutdown()
	}()

	if _config.Console {
		go engine.Node.ReadCommands(os.Stdin, os.Stdout)
	}

	engine.Run()

	return nil
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

//AddRunFlags adds flags to the Run command
func AddRunFlags(cmd *cobra.Command) {

	cmd.Flags().String("datadir", _config.Hive.DataDir, "Top-level directory for configuration and data")
	cmd.Flags().String("log", _config.Hive.LogLevel, "debug, info, warn, error, fatal, panic")
	cmd.Flags().String("log-file", _config.Hive.LogFile, "File receiving a JSON copy of the logs")
	cmd.Flags().String("moniker", _config.Hive.Moniker, "Optional name")

	// Network
	cmd.Flags().StringP("listen", "l", _config.Hive.BindAddr, "Listen IP:Port for hive node")
	cmd.Flags().StringP("advertise", "a", _config.Hive.AdvertiseAddr, "Advertise IP:Port for hive node")
	cmd.Flags().DurationP("timeout", "t", _config.Hive.TCPTimeout, "TCP Timeout")
	cmd.Flags().Duration("dial-interval", _config.Hive.DialInterval, "Minimum interval between two dials to the same peer")
	cmd.Flags().StringSlice("dial", _config.Hive.Dial, "Addresses to dial at startup")

	// Discovery
	cmd.Flags().String("discovery", _config.Hive.Discovery, "static (peers.json) or memberlist")
	cmd.Flags().String("gossip-listen", _config.Hive.GossipAddr, "Listen IP for memberlist")
	cmd.Flags().Int("gossip-port", _config.Hive.GossipPort, "Listen port for memberlist")
	cmd.Flags().StringSlice("join", _config.Hive.Join, "Memberlist addresses of existing members")

	// Service
	cmd.Flags().Bool("no-service", _config.Hive.NoService, "Disable HTTP service")
	cmd.Flags().StringP("service-listen", "s", _config.Hive.ServiceAddr, "Listen IP:Port for HTTP service")

	// Store
	cmd.Flags().Bool("store", _config.Hive.Store, "Persist the hard state in badgerDB instead of memory")
	cmd.Flags().String("db", _config.Hive.DatabaseDir, "Dabatabase directory")

	// Node configuration
	cmd.Flags().Duration("election-timeout", _config.Hive.ElectionTimeout, "Base election timeout")
	cmd.Flags().Duration("heartbeat", _config.Hive.HeartbeatTimeout, "Time between leader heartbeats")
	cmd.Flags().Int("dedup-capacity", _config.Hive.DedupCapacity, "Capacity of the dedup filters")
	cmd.Flags().Int("bootstrap-expect", _config.Hive.BootstrapExpect, "Number of nodes to know before the first election")
	cmd.Flags().Bool("signed-gossip", _config.Hive.SignedGossip, "Sign gossip messages and reject unsigned ones")
	cmd.Flags().Bool("console", _config.Console, "Read operator commands from stdin")
}

func loadConfig(cmd *cobra.Command, args []string) error {

	err := bindFlagsLoadViper(cmd)
	if err != nil {
		return err
	}

	// If --datadir was explicitely set, but not --db, this will update the
	// default database dir to be inside the new datadir
	_config.Hive.SetDataDir(_config.Hive.DataDir)

	logFields := logrus.Fields{
		"hive.DataDir":          _config.Hive.DataDir,
		"hive.BindAddr":         _config.Hive.BindAddr,
		"hive.AdvertiseAddr":    _config.Hive.AdvertiseAddr,
		"hive.ServiceAddr":      _config.Hive.ServiceAddr,
		"hive.NoService":        _config.Hive.NoService,
		"hive.Store":            _config.Hive.Store,
		"hive.LogLevel":         _config.Hive.LogLevel,
		"hive.Moniker":          _config.Hive.Moniker,
		"hive.ElectionTimeout":  _config.Hive.ElectionTimeout,
		"hive.HeartbeatTimeout": _config.Hive.HeartbeatTimeout,
		"hive.TCPTimeout":       _config.Hive.TCPTimeout,
		"hive.Discovery":        _config.Hive.Discovery,
		"hive.Dial":             _config.Hive.Dial,
		"hive.BootstrapExpect":  _config.Hive.BootstrapExpect,
		"Console":               _config.Console,
	}

	if _config.Hive.Store {
		logFields["hive.DatabaseDir"] = _config.Hive.DatabaseDir
	}

	if _config.Hive.Discovery == config.DiscoveryMemberlist {
		logFields["hive.GossipAddr"] = _config.Hive.GossipAddr
		logFields["hive.GossipPort"] = _config.Hive.GossipPort
		logFields["hive.Join"] = _config.Hive.Join
	}

	_config.Hive.Logger().WithFields(logFields).Debug("RUN")

	return nil
}

// Bind all flags and read the config into viper
func bindFlagsLoadViper(cmd *cobra.Command) error {
	// Register flags with viper. Include flags from this command and all other
	// persistent flags from the parent
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// first unmarshal to read from CLI flags
	if err := viper.Unmarshal(_config); err != nil {
		return err
	}

	// look for config file in [datadir]/hive.toml (.json, .yaml also work)
	viper.SetConfigName("hive")               // name of config file (without extension)
	viper.AddConfigPath(_config.Hive.DataDir) // search root directory

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		_config.Hive.Logger().Debugf("Using config file: %s", viper.ConfigFileUsed())
	} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		_config.Hive.Logger().Debugf("No config file found in: %s", _config.Hive.DataDir)
	} else {
		return err
	}

	// second unmarshal to read from config file
	return viper.Unmarshal(_config)
}
