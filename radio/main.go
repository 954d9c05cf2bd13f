// Package main defines the POI cross-checker radio entry point.
package main

import (
	"fmt"
	"io"
	"os"
	runtimeDebug "runtime/debug"

	joonix "github.com/joonix/log"
	"github.com/graphops/poi-crosschecker-radio/radio/flags"
	"github.com/graphops/poi-crosschecker-radio/radio/node"
	"github.com/graphops/poi-crosschecker-radio/shared/cmd"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"github.com/urfave/cli/v2/altsrc"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
	_ "go.uber.org/automaxprocs"
)

var appFlags = []cli.Flag{
	flags.PrivateKeyFlag,
	flags.GraphNodeEndpointFlag,
	flags.RegistrySubgraphFlag,
	flags.NetworkSubgraphFlag,
	flags.CollectMessageDurationFlag,
	flags.CoverageFlag,
	flags.TopicsFlag,
	flags.RadioNameFlag,
	flags.PanicIfPOIDivergedFlag,
	flags.SlackTokenFlag,
	flags.SlackChannelFlag,
	flags.DiscordWebhookFlag,
	flags.ServerPortFlag,
	flags.DisableServerFlag,
	flags.TickIntervalFlag,
	flags.TopicUpdateIntervalFlag,
	flags.StateFlushIntervalFlag,
	flags.OracleTimeoutFlag,
	cmd.VerbosityFlag,
	cmd.LogFormat,
	cmd.LogFileName,
	cmd.DataDirFlag,
	cmd.StatePathFlag,
	cmd.MonitoringPortFlag,
	cmd.DisableMonitoringFlag,
	cmd.P2PTCPPort,
	cmd.StaticPeers,
	cmd.P2PPrivKey,
	cmd.ConfigFileFlag,
}

func main() {
	log := logrus.WithField("prefix", "main")
	app := cli.App{}
	app.Name = "poi-radio"
	app.Usage = "cross-checks proofs of indexing with other indexers over a p2p gossip network"
	app.Action = startNode
	app.Flags = appFlags

	app.Before = func(ctx *cli.Context) error {
		// Load any flags from file, if specified.
		if ctx.IsSet(cmd.ConfigFileFlag.Name) {
			if err := altsrc.InitInputSourceWithContext(appFlags, altsrc.NewYamlSourceFromFlagFunc(cmd.ConfigFileFlag.Name))(ctx); err != nil {
				return err
			}
		}

		format := ctx.String(cmd.LogFormat.Name)
		switch format {
		case "text":
			formatter := new(prefixed.TextFormatter)
			formatter.TimestampFormat = "2006-01-02 15:04:05"
			formatter.FullTimestamp = true
			// If persistent log files are written - we disable the log messages coloring because
			// the colors are ANSI codes and seen as gibberish in the log files.
			formatter.DisableColors = ctx.String(cmd.LogFileName.Name) != ""
			logrus.SetFormatter(formatter)
		case "fluentd":
			f := joonix.NewFormatter()
			if err := joonix.DisableTimestampFormat(f); err != nil {
				panic(err)
			}
			logrus.SetFormatter(f)
		case "json":
			logrus.SetFormatter(&logrus.JSONFormatter{})
		default:
			return fmt.Errorf("unknown log format %s", format)
		}

		logFileName := ctx.String(cmd.LogFileName.Name)
		if logFileName != "" {
			if err := persistentLogging(logFileName); err != nil {
				log.WithError(err).Error("Failed to configuring logging to disk.")
			}
		}
		return nil
	}

	defer func() {
		if x := recover(); x != nil {
			log.Errorf("Runtime panic: %v\n%v", x, string(runtimeDebug.Stack()))
			panic(x)
		}
	}()

	if err := app.Run(os.Args); err != nil {
		log.Error(err.Error())
		os.Exit(1)
	}
}

// persistentLogging tees every log line into the given file in addition to
// stdout.
func persistentLogging(logFileName string) error {
	f, err := os.OpenFile(logFileName, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return err
	}
	logrus.SetOutput(io.MultiWriter(os.Stdout, f))
	logrus.WithField("logFileName", logFileName).Info("File logging initialized")
	return nil
}

func startNode(ctx *cli.Context) error {
	verbosity := ctx.String(cmd.VerbosityFlag.Name)
	level, err := logrus.ParseLevel(verbosity)
	if err != nil {
		return err
	}
	logrus.SetLevel(level)

	radio, err := node.New(ctx)
	if err != nil {
		return err
	}
	radio.Start()
	return nil
}
