// Package cmd defines the command line flags shared across the radio's
// entry points.
package cmd

import (
	"github.com/urfave/cli/v2"
)

var (
	// VerbosityFlag defines the logrus configuration.
	VerbosityFlag = &cli.StringFlag{
		Name:    "verbosity",
		Usage:   "Logging verbosity (trace, debug, info=default, warn, error, fatal, panic)",
		Value:   "info",
		EnvVars: []string{"RADIO_VERBOSITY"},
	}
	// LogFormat specifies the log output format.
	LogFormat = &cli.StringFlag{
		Name:    "log-format",
		Usage:   "Specify log formatting. Supports: text, json, fluentd.",
		Value:   "text",
		EnvVars: []string{"RADIO_LOG_FORMAT"},
	}
	// LogFileName specifies the log output file name.
	LogFileName = &cli.StringFlag{
		Name:    "log-file",
		Usage:   "Specify log file name, relative or absolute",
		EnvVars: []string{"RADIO_LOG_FILE"},
	}
	// DataDirFlag defines a path on disk where the radio keeps its state.
	DataDirFlag = &cli.StringFlag{
		Name:    "datadir",
		Usage:   "Data directory for persisted radio state",
		Value:   DefaultDataDir(),
		EnvVars: []string{"RADIO_DATADIR"},
	}
	// StatePathFlag defines the JSON document holding persisted state.
	StatePathFlag = &cli.StringFlag{
		Name:    "state-path",
		Usage:   "File path for the persisted radio state JSON document (defaults to <datadir>/state.json)",
		EnvVars: []string{"RADIO_STATE_PATH"},
	}
	// MonitoringPortFlag defines the http port used to serve prometheus metrics.
	MonitoringPortFlag = &cli.IntFlag{
		Name:    "monitoring-port",
		Usage:   "Port used to listen and respond with metrics for prometheus",
		Value:   8080,
		EnvVars: []string{"RADIO_MONITORING_PORT"},
	}
	// DisableMonitoringFlag defines a flag to disable the metrics collection.
	DisableMonitoringFlag = &cli.BoolFlag{
		Name:    "disable-monitoring",
		Usage:   "Disable monitoring service",
		EnvVars: []string{"RADIO_DISABLE_MONITORING"},
	}
	// ConfigFileFlag specifies the filepath to load flag values.
	ConfigFileFlag = &cli.StringFlag{
		Name:  "config-file",
		Usage: "The filepath to a yaml file with flag values",
	}
	// P2PTCPPort defines the port to be used by libp2p.
	P2PTCPPort = &cli.IntFlag{
		Name:    "p2p-tcp-port",
		Usage:   "The port used by libp2p",
		Value:   9000,
		EnvVars: []string{"RADIO_P2P_TCP_PORT"},
	}
	// StaticPeers specifies a set of peers to connect to explicitly.
	StaticPeers = &cli.StringSliceFlag{
		Name:    "peer",
		Usage:   "Connect with this peer. This flag may be used multiple times",
		EnvVars: []string{"RADIO_PEERS"},
	}
	// P2PPrivKey defines a hex encoded secp256k1 private key for the gossip identity.
	P2PPrivKey = &cli.StringFlag{
		Name:    "p2p-priv-key",
		Usage:   "Hex encoded private key to use for the libp2p identity. Generated if unset",
		EnvVars: []string{"RADIO_P2P_PRIV_KEY"},
	}
)
