// Package hive assembles a complete node from a config.Config: key, store,
// transport, discovery, node loop and HTTP service.
package hive

import (
	"crypto/ecdsa"
	"fmt"
	"os"

	"github.com/mosaicnetworks/hive/src/config"
	"github.com/mosaicnetworks/hive/src/crypto/keys"
	"github.com/mosaicnetworks/hive/src/discovery"
	"github.com/mosaicnetworks/hive/src/metrics"
	"github.com/mosaicnetworks/hive/src/net"
	"github.com/mosaicnetworks/hive/src/node"
	"github.com/mosaicnetworks/hive/src/service"
	"github.com/mosaicnetworks/hive/src/store"
	"github.com/sirupsen/logrus"
)

// Hive is a node and everything it runs on.
type Hive struct {
	Config    *config.Config
	Node      *node.Node
	Transport *net.Transport
	Store     store.Store
	Discovery discovery.Source
	Metrics   *metrics.Metrics
	Service   *service.Service

	logger *logrus.Entry
}

// NewHive ...
func NewHive(config *config.Config) *Hive {
	engine := &Hive{
		Config: config,
		logger: config.Logger(),
	}

	return engine
}

// Init creates every component. A failure here is fatal: the key could not be
// read or the listen address is unusable.
func (h *Hive) Init() error {
	if err := h.initKey(); err != nil {
		return err
	}

	if err := h.initStore(); err != nil {
		return err
	}

	if err := h.initTransport(); err != nil {
		return err
	}

	if err := h.initDiscovery(); err != nil {
		return err
	}

	h.Metrics = metrics.NewMetrics()

	if err := h.initNode(); err != nil {
		return err
	}

	h.initService()

	return nil
}

// Run serves the HTTP API, if any, and runs the node loop until Shutdown.
func (h *Hive) Run() {
	if h.Service != nil {
		go h.Service.Serve()
	}

	h.Node.Run()
}

// Shutdown stops the service and the node.
func (h *Hive) Shutdown() {
	if h.Service != nil {
		h.Service.Close()
	}
	if h.Node != nil {
		h.Node.Shutdown()
	}
}

func (h *Hive) initKey() error {
	if h.Config.Key != nil {
		return nil
	}

	simpleKeyfile := keys.NewSimpleKeyfile(h.Config.Keyfile())

	privKey, err := simpleKeyfile.ReadKey()
	if err != nil {
		h.logger.Errorf("Error reading private key from file: %v", err)
		return err
	}

	h.Config.Key = privKey
	return nil
}

func (h *Hive) initStore() error {
	if !h.Config.Store {
		h.logger.Debug("Creating InmemStore")
		h.Store = store.NewInmemStore()
		return nil
	}

	dbPath := h.Config.DatabaseDir

	h.logger.WithField("path", dbPath).Debug("Creating BadgerStore")

	if err := os.MkdirAll(dbPath, 0700); err != nil {
		return err
	}

	s, err := store.NewBadgerStore(dbPath, h.logger)
	if err != nil {
		return err
	}

	h.Store = s
	return nil
}

func (h *Hive) initTransport() error {
	tcp, err := net.NewTCPStreamLayer(h.Config.BindAddr, h.Config.AdvertiseAddr)
	if err != nil {
		return err
	}

	stream, err := net.NewTLSStreamLayer(tcp)
	if err != nil {
		tcp.Close()
		return err
	}

	h.Transport = net.NewTransport(
		stream,
		h.Config.Key,
		h.Config.Moniker,
		h.Config.TCPTimeout,
		h.logger.WithField("prefix", "transport"),
	)

	return nil
}

func (h *Hive) initDiscovery() error {
	self := h.Transport.Self()

	switch h.Config.Discovery {
	case config.DiscoveryStatic:
		src, err := discovery.NewJSONSource(h.Config.DataDir, self.ID())
		if err != nil {
			return err
		}

		h.Discovery = src

	case config.DiscoveryMemberlist:
		src, err := discovery.NewMemberlistSource(discovery.MemberlistConfig{
			Self:     self,
			BindAddr: h.Config.GossipAddr,
			BindPort: h.Config.GossipPort,
			Seeds:    h.Config.Join,
		}, h.logger)
		if err != nil {
			return err
		}

		h.Discovery = src

	default:
		return fmt.Errorf("unknown discovery %q", h.Config.Discovery)
	}

	return nil
}

func (h *Hive) initNode() error {
	n, err := node.NewNode(h.Config, h.Transport, h.Discovery, h.Store, h.Metrics)
	if err != nil {
		return fmt.Errorf("failed to initialize node: %s", err)
	}

	h.logger.WithFields(logrus.Fields{
		"id":      n.ID(),
		"pub_key": n.Self().PubKeyHex,
		"addr":    n.Self().NetAddr,
	}).Debug("Node created")

	h.Node = n
	return nil
}

func (h *Hive) initService() {
	if h.Config.NoService {
		return
	}

	h.Service = service.NewService(
		h.Config.ServiceAddr,
		h.Node,
		h.Metrics.Handler(),
		h.logger.WithField("prefix", "service"),
	)
}

// Keygen creates a new key in datadir, unless one already exists.
func Keygen(datadir string) (*ecdsa.PrivateKey, error) {
	cfg := config.NewDefaultConfig()
	cfg.SetDataDir(datadir)

	if _, err := os.Stat(cfg.Keyfile()); err == nil {
		return nil, fmt.Errorf("Another key already lives under %s", datadir)
	}

	if err := os.MkdirAll(datadir, 0700); err != nil {
		return nil, err
	}

	privKey, err := keys.GenerateECDSAKey()
	if err != nil {
		return nil, err
	}

	if err := keys.NewSimpleKeyfile(cfg.Keyfile()).WriteKey(privKey); err != nil {
		return nil, err
	}

	return privKey, nil
}
