package node

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/buckyos/cyfs-ndn-core/pkg/bdt/sn"
	"github.com/buckyos/cyfs-ndn-core/pkg/bdt/tunnel"
	"github.com/buckyos/cyfs-ndn-core/pkg/devsync"
	"github.com/buckyos/cyfs-ndn-core/pkg/handler"
	"github.com/buckyos/cyfs-ndn-core/pkg/identity"
	"github.com/buckyos/cyfs-ndn-core/pkg/metachain"
	"github.com/buckyos/cyfs-ndn-core/pkg/noc"
	"github.com/buckyos/cyfs-ndn-core/pkg/objmodel"
	"github.com/buckyos/cyfs-ndn-core/pkg/router"
	"github.com/buckyos/cyfs-ndn-core/pkg/router/httpapi"
	"github.com/buckyos/cyfs-ndn-core/pkg/transport/quic"
	"github.com/buckyos/cyfs-ndn-core/pkg/transport/tcp"
)

// Config is the on-disk device configuration, loaded from YAML by
// cmd/cyfs-noded (see config.go).
type Config struct {
	IdentityFile  string   `yaml:"identity_file"`
	ListenUDP     string   `yaml:"listen_udp"`
	HTTPAddr      string   `yaml:"http_addr"`
	CacheCapacity int      `yaml:"cache_capacity"`
	MetaChainURL  string   `yaml:"metachain_url"`
	SNEndpoints   []string `yaml:"sn_endpoints"`
}

// DefaultConfig returns the configuration a freshly-created device starts
// from, before any config file overrides are applied.
func DefaultConfig() Config {
	return Config{
		IdentityFile:  "identity.json",
		ListenUDP:     "0.0.0.0:0",
		HTTPAddr:      "127.0.0.1:8090",
		CacheCapacity: 4096,
	}
}

// Node wires together one device's runtime: its identity, NOC, BDT
// tunnel manager, SN connectivity tracking, router and HTTP control
// surface, and (optionally) a meta-chain client.
type Node struct {
	cfg Config
	log *logrus.Logger

	id     *identity.Identity
	selfId objmodel.ObjectId

	store   *noc.MemStore
	tunnels *tunnel.Manager
	devsync *devsync.Manager
	chain   metachain.Client

	httpServer *http.Server
}

// New loads or creates this device's identity and builds every component
// a running node needs. Building the tunnel manager binds its direct-UDP
// listener on cfg.ListenUDP; SN tracking and the HTTP control surface
// start only in Start.
func New(cfg Config, log *logrus.Logger) (*Node, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}

	id, err := loadOrCreateIdentity(cfg.IdentityFile)
	if err != nil {
		return nil, fmt.Errorf("node: identity: %w", err)
	}

	deviceObj, err := id.DeviceNamedObject(time.Now())
	if err != nil {
		return nil, fmt.Errorf("node: build device object: %w", err)
	}
	selfId, err := deviceObj.ComputeId()
	if err != nil {
		return nil, fmt.Errorf("node: compute device id: %w", err)
	}

	store, err := noc.NewMemStore(selfId, nil, cfg.CacheCapacity)
	if err != nil {
		return nil, fmt.Errorf("node: create NOC: %w", err)
	}

	tunnels, err := tunnel.NewManager(id, selfId, cfg.ListenUDP, tcp.New(), quic.New())
	if err != nil {
		return nil, fmt.Errorf("node: create tunnel manager: %w", err)
	}

	var chain metachain.Client
	if cfg.MetaChainURL != "" {
		chain = metachain.NewHTTPClient(cfg.MetaChainURL, nil)
	}

	n := &Node{
		cfg:     cfg,
		log:     log,
		id:      id,
		selfId:  selfId,
		store:   store,
		tunnels: tunnels,
		devsync: devsync.NewManager(devsync.DeviceState{ZoneRole: devsync.RoleDevice}),
		chain:   chain,
	}
	return n, nil
}

// SelfId returns this device's own object id.
func (n *Node) SelfId() objmodel.ObjectId { return n.selfId }

// Start brings up SN connectivity tracking and the HTTP control surface,
// blocking until ctx is cancelled or the HTTP server errs.
func (n *Node) Start(ctx context.Context) error {
	n.store.StartFlusher()
	defer n.store.Close()

	n.trackSNs(ctx)

	local := newLocalProcessor(n.store, n.id, n.selfId)
	pre := handler.NewRegistry()
	post := handler.NewRegistry()
	r := router.New(n.selfId, localSourceResolver{selfId: n.selfId}, localTargetResolver{}, local, noForwarders{}, pre, post, n.log)

	srv := httpapi.NewServer(r, pre, n.log)
	n.httpServer = &http.Server{Addr: n.cfg.HTTPAddr, Handler: srv.Routes()}

	errCh := make(chan error, 1)
	go func() {
		n.log.WithField("addr", n.cfg.HTTPAddr).Info("node: http control surface listening")
		errCh <- n.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = n.httpServer.Shutdown(shutdownCtx)
		n.tunnels.Close()
		return ctx.Err()
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("node: http server: %w", err)
		}
		return nil
	}
}

func (n *Node) trackSNs(ctx context.Context) {
	if len(n.cfg.SNEndpoints) == 0 {
		return
	}
	sender := sn.NewUDPSender()
	for i, ep := range n.cfg.SNEndpoints {
		descriptor := sn.SNDescriptor{Id: objmodel.ComputeObjectId(objmodel.CategoryCore, objmodel.TypeDevice, []byte(ep)), Endpoints: []string{ep}}
		pc := sn.NewPingClient(n.selfId, nil, descriptor, sender, n.devsync.OnSNStateChange)
		n.devsync.TrackSN(pc)
		go pc.Start(ctx)
		n.log.WithField("endpoint", ep).WithField("index", i).Info("node: tracking SN candidate")
	}
}
