// Package node defines the POI radio process: it assembles every service
// around the shared engine state and manages their lifecycle.
package node

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/graphops/poi-crosschecker-radio/radio/flags"
	"github.com/graphops/poi-crosschecker-radio/radio/monitoring"
	"github.com/graphops/poi-crosschecker-radio/radio/notify"
	"github.com/graphops/poi-crosschecker-radio/radio/oracle"
	"github.com/graphops/poi-crosschecker-radio/radio/p2p"
	"github.com/graphops/poi-crosschecker-radio/radio/scheduler"
	"github.com/graphops/poi-crosschecker-radio/radio/server"
	"github.com/graphops/poi-crosschecker-radio/radio/state"
	radiosync "github.com/graphops/poi-crosschecker-radio/radio/sync"
	"github.com/graphops/poi-crosschecker-radio/shared"
	"github.com/graphops/poi-crosschecker-radio/shared/cmd"
	"github.com/graphops/poi-crosschecker-radio/shared/fileutil"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

const stateFileName = "state.json"

// RadioNode handles the lifecycle of the entire system and registers
// services to a service registry.
type RadioNode struct {
	cliCtx    *cli.Context
	ctx       context.Context
	cancel    context.CancelFunc
	services  *shared.ServiceRegistry
	lock      sync.RWMutex
	stop      chan struct{} // Channel to wait for termination notifications.
	state     *state.PersistedState
	statePath string
}

// New creates a new node instance, sets up configuration options, and
// registers every required service.
func New(cliCtx *cli.Context) (*RadioNode, error) {
	ctx, cancel := context.WithCancel(context.Background())
	registry := shared.NewServiceRegistry()

	node := &RadioNode{
		cliCtx:   cliCtx,
		ctx:      ctx,
		cancel:   cancel,
		services: registry,
		stop:     make(chan struct{}),
	}

	keyHex := strings.TrimPrefix(cliCtx.String(flags.PrivateKeyFlag.Name), "0x")
	if keyHex == "" {
		cancel()
		return nil, errors.New("no private key provided")
	}
	signingKey, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "could not parse private key")
	}
	registryEndpoint := cliCtx.String(flags.RegistrySubgraphFlag.Name)
	networkEndpoint := cliCtx.String(flags.NetworkSubgraphFlag.Name)
	if registryEndpoint == "" || networkEndpoint == "" {
		cancel()
		return nil, errors.New("registry and network subgraph endpoints are required")
	}

	timeout := cliCtx.Duration(flags.OracleTimeoutFlag.Name)
	graphNode := oracle.NewGraphNodeClient(cliCtx.String(flags.GraphNodeEndpointFlag.Name), timeout)
	registryClient := oracle.NewRegistryClient(registryEndpoint, timeout)
	networkClient := oracle.NewNetworkClient(networkEndpoint, timeout)
	resolver := &oracle.Resolver{Registry: registryClient, Network: networkClient}

	// Resolve the operator this radio acts for. Failing here is a fatal
	// configuration error: an unregistered signer could never produce
	// acceptable messages.
	signer := crypto.PubkeyToAddress(signingKey.PublicKey)
	startupCtx, startupCancel := context.WithTimeout(ctx, timeout)
	defer startupCancel()
	operator, err := registryClient.IndexerOf(startupCtx, signer)
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "could not resolve operator for signer")
	}
	stake, err := networkClient.StakeOf(startupCtx, operator)
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "could not query operator stake")
	}
	log.WithField("operator", operator.Hex()).WithField("stake", stake).Info(
		"Initializing radio to act on behalf of indexer")

	if err := node.loadState(); err != nil {
		cancel()
		return nil, err
	}

	radioName := cliCtx.String(flags.RadioNameFlag.Name)
	agent, err := p2p.NewService(ctx, &p2p.Config{
		RadioName:   radioName,
		TCPPort:     cliCtx.Int(cmd.P2PTCPPort.Name),
		StaticPeers: cliCtx.StringSlice(cmd.StaticPeers.Name),
		PrivKeyHex:  cliCtx.String(cmd.P2PPrivKey.Name),
	})
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "could not create gossip agent")
	}
	if err := registry.RegisterService(agent); err != nil {
		cancel()
		return nil, err
	}

	ingestion, err := radiosync.NewService(ctx, &radiosync.Config{
		Agent:     agent,
		Registry:  registryClient,
		Network:   networkClient,
		GraphNode: graphNode,
		Buffer:    node.state.Remote,
	})
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "could not create ingestion service")
	}
	if err := registry.RegisterService(ingestion); err != nil {
		cancel()
		return nil, err
	}

	stateSvc := state.NewService(ctx, node.state, node.statePath,
		cliCtx.Duration(flags.StateFlushIntervalFlag.Name))
	if err := registry.RegisterService(stateSvc); err != nil {
		cancel()
		return nil, err
	}

	var channels []notify.Channel
	if token, channel := cliCtx.String(flags.SlackTokenFlag.Name), cliCtx.String(flags.SlackChannelFlag.Name); token != "" && channel != "" {
		channels = append(channels, notify.NewSlackChannel(token, channel))
	}
	if webhook := cliCtx.String(flags.DiscordWebhookFlag.Name); webhook != "" {
		channels = append(channels, notify.NewDiscordChannel(webhook))
	}
	notifier := notify.NewService(radioName, channels...)

	radio := scheduler.NewService(&scheduler.Config{
		Agent:           agent,
		GraphNode:       graphNode,
		Resolver:        resolver,
		Allocations:     networkClient,
		State:           node.state,
		Notifier:        notifier,
		OperatorAddress: operator,
		OperatorStake:   stake,
		SigningKey:      signingKey,
		CollectWindow:   cliCtx.Duration(flags.CollectMessageDurationFlag.Name),
		Coverage:        cliCtx.String(flags.CoverageFlag.Name),
		Topics:          cliCtx.StringSlice(flags.TopicsFlag.Name),
		PanicIfDiverged: cliCtx.Bool(flags.PanicIfPOIDivergedFlag.Name),
	})
	runner := scheduler.NewRunner(ctx, radio,
		cliCtx.Duration(flags.TickIntervalFlag.Name),
		cliCtx.Duration(flags.TopicUpdateIntervalFlag.Name))
	if err := registry.RegisterService(runner); err != nil {
		cancel()
		return nil, err
	}

	if !cliCtx.Bool(flags.DisableServerFlag.Name) {
		querySvc := server.NewService(&server.Config{
			Port:     cliCtx.Int(flags.ServerPortFlag.Name),
			State:    node.state,
			Resolver: resolver,
		})
		if err := registry.RegisterService(querySvc); err != nil {
			cancel()
			return nil, err
		}
	}

	if !cliCtx.Bool(cmd.DisableMonitoringFlag.Name) {
		monitoringSvc := monitoring.NewService(
			fmt.Sprintf(":%d", cliCtx.Int(cmd.MonitoringPortFlag.Name)), registry, node.state)
		if err := registry.RegisterService(monitoringSvc); err != nil {
			cancel()
			return nil, err
		}
	}

	return node, nil
}

func (n *RadioNode) loadState() error {
	dataDir := n.cliCtx.String(cmd.DataDirFlag.Name)
	statePath := n.cliCtx.String(cmd.StatePathFlag.Name)
	if statePath == "" {
		if dataDir == "" {
			return errors.New("either --datadir or --state-path must be set")
		}
		if err := fileutil.MkdirAll(dataDir); err != nil {
			return errors.Wrap(err, "could not create data directory")
		}
		statePath = filepath.Join(dataDir, stateFileName)
	}
	st, err := state.Load(statePath)
	if err != nil {
		return errors.Wrap(err, "could not load persisted state")
	}
	n.state = st
	n.statePath = statePath
	return nil
}

// Start the RadioNode and kicks off every registered service.
func (n *RadioNode) Start() {
	n.lock.Lock()

	log.Info("Starting POI radio node")

	n.services.StartAll()

	stop := n.stop
	n.lock.Unlock()

	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigc)
		<-sigc
		log.Info("Got interrupt, shutting down...")
		go n.Close()
		for i := 10; i > 0; i-- {
			<-sigc
			if i > 1 {
				log.WithField("times", i-1).Info("Already shutting down, interrupt more to panic.")
			}
		}
		panic("Panic closing the radio node")
	}()

	// Wait for stop channel to be closed.
	<-stop
}

// Close handles graceful shutdown of the system.
func (n *RadioNode) Close() {
	n.lock.Lock()
	defer n.lock.Unlock()

	n.services.StopAll()
	n.cancel()
	log.Info("Stopping radio node")
	close(n.stop)
}
