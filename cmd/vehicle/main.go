// Copyright 2025 UMH Systems GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hesperia-light/hesperia-core/internal/vehicle"
	"github.com/hesperia-light/hesperia-core/pkg/clientmodule"
	"github.com/hesperia-light/hesperia-core/pkg/conference"
	"github.com/hesperia-light/hesperia-core/pkg/constants"
	"github.com/hesperia-light/hesperia-core/pkg/dmcp"
	"github.com/hesperia-light/hesperia-core/pkg/env"
	"github.com/hesperia-light/hesperia-core/pkg/keyvalue"
	"github.com/hesperia-light/hesperia-core/pkg/logger"
	"github.com/hesperia-light/hesperia-core/pkg/sentry"
	"github.com/hesperia-light/hesperia-core/pkg/statusserver"
	"github.com/hesperia-light/hesperia-core/pkg/version"
)

type options struct {
	supercomponent string
	configPath     string
	frequency      float64
	mqttBroker     string
	mqttGroup      string
	statusAddr     string
	instance       string
	sentryDSN      string
}

// parseOptions reads flags. Environment variables provide the defaults.
func parseOptions(log *zap.SugaredLogger) options {
	lookup := func(key, def string) string {
		v, err := env.GetAsString(key, false, def)
		if err != nil {
			log.Warnf("Ignoring %s: %v", key, err)

			return def
		}

		return v
	}

	freq, err := env.GetAsFloat("FREQUENCY", false, 0)
	if err != nil {
		log.Warnf("Ignoring FREQUENCY: %v", err)
	}

	var o options

	flag.StringVar(&o.supercomponent, "supercomponent", lookup("SUPERCOMPONENT_URL", ""), "supercomponent base URL, empty to read --config instead")
	flag.StringVar(&o.configPath, "config", lookup("CONFIG_PATH", constants.DefaultConfigPath), "YAML configuration used without supercomponent")
	flag.Float64Var(&o.frequency, "freq", freq, "cycle frequency in Hz, 0 to take it from the configuration")
	flag.StringVar(&o.mqttBroker, "mqtt", lookup("MQTT_BROKER_URL", ""), "MQTT broker URL, empty for an in-process conference")
	flag.StringVar(&o.mqttGroup, "mqtt-group", lookup("MQTT_GROUP", constants.DefaultMQTTGroup), "conference group")
	flag.StringVar(&o.statusAddr, "status-addr", lookup("STATUS_ADDR", constants.DefaultStatusAddr), "status server address, empty to disable")
	flag.StringVar(&o.instance, "id", lookup("INSTANCE_ID", ""), "instance identifier, random if empty")
	flag.StringVar(&o.sentryDSN, "sentry-dsn", lookup("SENTRY_DSN", ""), "Sentry DSN, empty to disable reporting")
	flag.Parse()

	return o
}

func main() {
	logger.Initialize()

	log := logger.For(logger.ComponentCore)
	opts := parseOptions(log)

	sentry.InitSentry(opts.sentryDSN, version.GetAppVersion(), true)

	os.Exit(run(opts, log))
}

func run(opts options, log *zap.SugaredLogger) int {
	defer func() {
		_ = logger.Sync()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Infof("Starting %s %s", vehicle.ModuleName, version.GetAppVersion())

	moduleOpts := []clientmodule.Option{clientmodule.WithVersion(version.GetAppVersion())}
	if opts.instance != "" {
		moduleOpts = append(moduleOpts, clientmodule.WithIdentifier(opts.instance))
	}

	if opts.frequency > 0 {
		moduleOpts = append(moduleOpts, clientmodule.WithFrequency(opts.frequency))
	}

	conf, err := openConference(ctx, opts, log)
	if err != nil {
		sentry.ReportIssuef(sentry.IssueTypeError, log, "Failed to open conference: %v", err)

		return clientmodule.ExitSeriousError.ProcessExitCode()
	}

	defer func() {
		if err := conf.Close(); err != nil {
			log.Warnf("Failed to close conference: %v", err)
		}
	}()

	moduleOpts = append(moduleOpts, clientmodule.WithConference(conf))

	var statusOpts []statusserver.Option

	if opts.supercomponent != "" {
		client := dmcp.NewClient(dmcp.Options{BaseURL: opts.supercomponent, Instance: opts.instance})
		moduleOpts = append(moduleOpts, clientmodule.WithSupercomponent(client))
		statusOpts = append(statusOpts, statusserver.WithLatency(client.Latency))
	} else {
		moduleOpts = append(moduleOpts, clientmodule.WithConfiguration(keyvalue.NewFileProvider(opts.configPath)))
	}

	module, err := clientmodule.New(vehicle.ModuleName, vehicle.New(), moduleOpts...)
	if err != nil {
		sentry.ReportIssuef(sentry.IssueTypeError, log, "Failed to create module: %v", err)

		return clientmodule.ExitSeriousError.ProcessExitCode()
	}

	g, gctx := errgroup.WithContext(ctx)
	serverCtx, stopServer := context.WithCancel(gctx)

	if opts.statusAddr != "" {
		server := statusserver.New(opts.statusAddr, module, statusOpts...)
		g.Go(func() error { return server.Run(serverCtx) })
	}

	code := clientmodule.ExitOkay

	g.Go(func() error {
		defer stopServer()

		code = module.RunModule(gctx)

		return nil
	})

	if err := g.Wait(); err != nil {
		log.Errorf("Shutdown with error: %v", err)

		if code == clientmodule.ExitOkay {
			code = clientmodule.ExitSeriousError
		}
	}

	log.Infof("%s exited with %s", vehicle.ModuleName, code)

	return code.ProcessExitCode()
}

func openConference(ctx context.Context, opts options, log *zap.SugaredLogger) (conference.Conference, error) {
	if opts.mqttBroker == "" {
		log.Info("No MQTT broker set, using an in-process conference")

		return conference.NewHub().Join(fmt.Sprintf("%s-%d", vehicle.ModuleName, os.Getpid())), nil
	}

	return conference.NewMQTT(ctx, conference.MQTTOptions{
		Broker:   opts.mqttBroker,
		SenderID: opts.instance,
		Group:    opts.mqttGroup,
		OnConnectionLost: func(err error) {
			log.Warnf("Conference connection lost, reconnecting: %v", err)
		},
	})
}
