// Package flags defines the command line flags specific to the POI radio.
package flags

import (
	"time"

	"github.com/urfave/cli/v2"
)

var (
	// PrivateKeyFlag is the hex encoded secp256k1 key that signs radio
	// messages on behalf of the operator.
	PrivateKeyFlag = &cli.StringFlag{
		Name:    "private-key",
		Usage:   "Hex encoded private key used to sign radio messages",
		EnvVars: []string{"PRIVATE_KEY"},
	}
	// GraphNodeEndpointFlag points at the local graph node status API.
	GraphNodeEndpointFlag = &cli.StringFlag{
		Name:    "graph-node-endpoint",
		Usage:   "URL of the graph node's index-node status endpoint",
		Value:   "http://localhost:8030/graphql",
		EnvVars: []string{"GRAPH_NODE_STATUS_ENDPOINT"},
	}
	// RegistrySubgraphFlag points at the Graphcast registry subgraph.
	RegistrySubgraphFlag = &cli.StringFlag{
		Name:    "registry-subgraph",
		Usage:   "URL of the Graphcast registry subgraph",
		EnvVars: []string{"REGISTRY_SUBGRAPH_ENDPOINT"},
	}
	// NetworkSubgraphFlag points at the Graph network subgraph.
	NetworkSubgraphFlag = &cli.StringFlag{
		Name:    "network-subgraph",
		Usage:   "URL of the Graph network subgraph",
		EnvVars: []string{"NETWORK_SUBGRAPH_ENDPOINT"},
	}
	// CollectMessageDurationFlag is the collection window after the first
	// remote message for a pair before its comparison fires.
	CollectMessageDurationFlag = &cli.DurationFlag{
		Name:    "collect-message-duration",
		Usage:   "How long to collect remote messages for a block before comparing",
		Value:   30 * time.Second,
		EnvVars: []string{"COLLECT_MESSAGE_DURATION"},
	}
	// CoverageFlag selects which deployments become content topics.
	CoverageFlag = &cli.StringFlag{
		Name:    "coverage",
		Usage:   "Topic coverage level: minimal, on-chain, comprehensive",
		Value:   "on-chain",
		EnvVars: []string{"COVERAGE"},
	}
	// TopicsFlag overrides coverage with an explicit deployment list.
	TopicsFlag = &cli.StringSliceFlag{
		Name:    "topics",
		Usage:   "Explicit content topics to subscribe to, overriding coverage",
		EnvVars: []string{"TOPICS"},
	}
	// RadioNameFlag names the radio on the gossip network.
	RadioNameFlag = &cli.StringFlag{
		Name:    "radio-name",
		Usage:   "Name of the radio, used in content topics and notifications",
		Value:   "poi-radio",
		EnvVars: []string{"RADIO_NAME"},
	}
	// PanicIfPOIDivergedFlag aborts on the first divergence. Integration
	// tests only.
	PanicIfPOIDivergedFlag = &cli.BoolFlag{
		Name:    "panic-if-poi-diverged",
		Usage:   "Abort the radio on the first divergent comparison",
		EnvVars: []string{"PANIC_IF_POI_DIVERGED"},
	}
	// SlackTokenFlag authenticates divergence notifications to Slack.
	SlackTokenFlag = &cli.StringFlag{
		Name:    "slack-token",
		Usage:   "Slack bot token for divergence notifications",
		EnvVars: []string{"SLACK_TOKEN"},
	}
	// SlackChannelFlag selects the Slack channel for notifications.
	SlackChannelFlag = &cli.StringFlag{
		Name:    "slack-channel",
		Usage:   "Slack channel for divergence notifications",
		EnvVars: []string{"SLACK_CHANNEL"},
	}
	// DiscordWebhookFlag posts divergence notifications to Discord.
	DiscordWebhookFlag = &cli.StringFlag{
		Name:    "discord-webhook",
		Usage:   "Discord webhook URL for divergence notifications",
		EnvVars: []string{"DISCORD_WEBHOOK"},
	}
	// ServerPortFlag is the port of the read-only query API.
	ServerPortFlag = &cli.IntFlag{
		Name:    "server-port",
		Usage:   "Port for the read-only query API",
		Value:   3010,
		EnvVars: []string{"SERVER_PORT"},
	}
	// DisableServerFlag turns the query API off.
	DisableServerFlag = &cli.BoolFlag{
		Name:    "disable-server",
		Usage:   "Disable the read-only query API",
		EnvVars: []string{"DISABLE_SERVER"},
	}
	// TickIntervalFlag is the scheduler cadence.
	TickIntervalFlag = &cli.DurationFlag{
		Name:  "tick-interval",
		Usage: "Interval between scheduler ticks",
		Value: 5 * time.Second,
	}
	// TopicUpdateIntervalFlag is the coarser topic refresh cadence.
	TopicUpdateIntervalFlag = &cli.DurationFlag{
		Name:  "topic-update-interval",
		Usage: "Interval between content topic refreshes",
		Value: 120 * time.Second,
	}
	// StateFlushIntervalFlag is the persisted state flush cadence.
	StateFlushIntervalFlag = &cli.DurationFlag{
		Name:  "state-flush-interval",
		Usage: "Interval between persisted state flushes",
		Value: 30 * time.Second,
	}
	// OracleTimeoutFlag bounds every outbound oracle request.
	OracleTimeoutFlag = &cli.DurationFlag{
		Name:  "oracle-timeout",
		Usage: "Upper bound for oracle and graph node requests",
		Value: 10 * time.Second,
	}
)
