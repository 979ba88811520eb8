// Copyright 2026 LiveKit, Inc.
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
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/livekit/protocol/logger"
	"github.com/livekit/sensorcap/pkg/capture/synthetic"
	"github.com/livekit/sensorcap/pkg/catalog"
	"github.com/livekit/sensorcap/pkg/config"
	"github.com/livekit/sensorcap/pkg/errors"
	"github.com/livekit/sensorcap/pkg/server"
)

func main() {
	cmd := &cli.Command{
		Name:        "sensorcap",
		Usage:       "LiveKit Sensor Capture",
		Description: "streams sensor frames from a source group and records them to storage",
		Commands: []*cli.Command{
			{
				Name:        "sessions",
				Description: "prints recorded sessions from the catalog",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Value: 20,
					},
				},
				Action: listSessions,
			},
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "LiveKit Sensor Capture yaml config file",
				Sources: cli.EnvVars("SENSORCAP_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "config-body",
				Usage:   "LiveKit Sensor Capture yaml config body",
				Sources: cli.EnvVars("SENSORCAP_CONFIG_BODY"),
			},
		},
		Action: runService,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func getConfig(c *cli.Command) (*config.ServiceConfig, error) {
	configFile := c.String("config")
	configBody := c.String("config-body")
	if configBody == "" {
		if configFile == "" {
			return nil, errors.ErrNoConfig
		}
		content, err := os.ReadFile(configFile)
		if err != nil {
			return nil, err
		}
		configBody = string(content)
	}

	return config.NewServiceConfig(configBody)
}

func runService(_ context.Context, c *cli.Command) error {
	conf, err := getConfig(c)
	if err != nil {
		return err
	}

	syntheticConf := conf.Synthetic
	if syntheticConf == nil {
		syntheticConf = &config.SyntheticConfig{}
	}
	svc, err := server.NewServer(conf, synthetic.NewDevice(syntheticConf))
	if err != nil {
		return err
	}

	if conf.HealthPort != 0 {
		go func() {
			_ = http.ListenAndServe(fmt.Sprintf(":%d", conf.HealthPort), svc.Handler())
		}()
	}

	stopChan := make(chan os.Signal, 1)
	signal.Notify(stopChan, syscall.SIGTERM, syscall.SIGQUIT)

	killChan := make(chan os.Signal, 1)
	signal.Notify(killChan, syscall.SIGINT)

	go func() {
		select {
		case sig := <-stopChan:
			logger.Infow("exit requested, finishing recording then shutting down", "signal", sig)
			svc.Shutdown(true, false)
		case sig := <-killChan:
			logger.Infow("exit requested, stopping recording and shutting down", "signal", sig)
			svc.Shutdown(true, true)
		}
	}()

	return svc.Run()
}

func listSessions(ctx context.Context, c *cli.Command) error {
	conf, err := getConfig(c)
	if err != nil {
		return err
	}
	if conf.CatalogPath == "" {
		return errors.ErrInvalidInput("catalog_path")
	}

	db, err := catalog.Open(conf.CatalogPath)
	if err != nil {
		return err
	}
	defer db.Close()

	sessions, err := db.Sessions(ctx, int(c.Int("limit")))
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(sessions)
}
