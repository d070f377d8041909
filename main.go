//    Copyright 2017 Ewout Prangsma
//
//    Licensed under the Apache License, Version 2.0 (the "License");
//    you may not use this file except in compliance with the License.
//    You may obtain a copy of the License at
//
//        http://www.apache.org/licenses/LICENSE-2.0
//
//    Unless required by applicable law or agreed to in writing, software
//    distributed under the License is distributed on an "AS IS" BASIS,
//    WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//    See the License for the specific language governing permissions and
//    limitations under the License.

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	terminate "github.com/pulcy/go-terminate"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/duinoio/pcduino-io/pkg/board"
	"github.com/duinoio/pcduino-io/pkg/bridge"
	"github.com/duinoio/pcduino-io/pkg/environment"
	"github.com/duinoio/pcduino-io/pkg/logging"
	"github.com/duinoio/pcduino-io/pkg/mqtt"
	"github.com/duinoio/pcduino-io/pkg/server"
	"github.com/duinoio/pcduino-io/pkg/service"
)

const (
	projectName     = "pcDuino IO"
	defaultHTTPPort = 7129
	defaultSSHPort  = 7122
	bridgeTypeAuto  = "auto"
)

var (
	projectVersion = "dev"
	projectBuild   = "dev"
)

func main() {
	var levelFlag string
	var bridgeType string
	var samplingInterval time.Duration
	var boardConf board.Config
	var pcDuinoConf bridge.PcDuinoConfig
	var serverConf server.Config
	var mqttConf mqtt.Config

	pflag.StringVarP(&levelFlag, "level", "l", "info", "Set log level")
	pflag.StringVarP(&bridgeType, "bridge", "b", bridgeTypeAuto, "Type of bridge to use (auto|pcduino|virtual)")
	pflag.DurationVar(&samplingInterval, "sampling-interval", board.DefaultSamplingInterval, "Initial period of the read loop")
	pflag.IntVar(&boardConf.I2CBus, "i2c-bus", board.DefaultI2CBus, "Number of the I2C bus")
	pflag.StringVar(&pcDuinoConf.SysfsRoot, "sysfs-root", "", "Directory containing the pcDuino gpio & pwmtimer trees")
	pflag.StringVar(&pcDuinoConf.ProcRoot, "proc-root", "", "Directory containing the pcDuino adc files")
	pflag.IntVar(&pcDuinoConf.StatusLedPin, "status-led", -1, "GPIO number of the status led (-1 for none)")
	pflag.IntVar(&pcDuinoConf.I2CSclPin, "i2c-scl-pin", -1, "GPIO number of the I2C clock line used for lockup recovery (-1 to disable)")
	pflag.StringVar(&serverConf.Host, "host", "0.0.0.0", "Host address the servers will listen on")
	pflag.IntVar(&serverConf.HTTPPort, "http-port", defaultHTTPPort, "Port the HTTP server will listen on")
	pflag.IntVar(&serverConf.SSHPort, "ssh-port", defaultSSHPort, "Port the SSH server will listen on (0 to disable)")
	pflag.StringVar(&serverConf.SSHHostKeyPath, "ssh-host-key", "", "Path of the SSH host key")
	pflag.StringVar(&mqttConf.BrokerAddress, "mqtt-broker", "", "Address (host:port) of the MQTT broker, empty to disable")
	pflag.StringVar(&mqttConf.ClientID, "mqtt-client-id", "", "Client ID of the MQTT connection")
	pflag.StringVar(&mqttConf.TopicPrefix, "mqtt-prefix", mqtt.DefaultTopicPrefix, "Prefix of all MQTT topics")
	pflag.BoolVar(&mqttConf.ForwardLogs, "mqtt-logs", false, "Publish log lines to MQTT")
	pflag.Parse()

	// Prepare to shutdown in a controlled manor
	ctx, cancel := context.WithCancel(context.Background())
	mqttWriter := logging.NewMQTTWriter(ctx)
	consoleWriter := zerolog.ConsoleWriter{Out: os.Stderr}
	logger := zerolog.New(logging.NewMultiWriter(consoleWriter, mqttWriter)).With().Timestamp().Logger()
	if level, err := zerolog.ParseLevel(levelFlag); err != nil {
		Exitf("Invalid log level '%s': %v\n", levelFlag, err)
	} else {
		logger = logger.Level(level)
	}

	if bridgeType == bridgeTypeAuto {
		bridgeType = environment.AutoDetectBridgeType(logger)
	}
	br, err := bridge.New(logger, bridgeType, pcDuinoConf)
	if err != nil {
		Exitf("Failed to initialize %s bridge: %v\n", bridgeType, err)
	}

	boardConf.SamplingInterval = samplingInterval
	svc, err := service.NewService(service.Config{
		ProgramVersion: projectVersion,
		Board:          boardConf,
		Server:         serverConf,
		MQTT:           mqttConf,
	}, service.Dependencies{
		Logger:    logger,
		Bridge:    br,
		LogWriter: mqttWriter,
	})
	if err != nil {
		br.Close()
		Exitf("Failed to initialize Service: %v\n", err)
	}

	t := terminate.NewTerminator(func(template string, args ...interface{}) {
		logger.Info().Msgf(template, args...)
	}, cancel)
	go t.ListenSignals()

	fmt.Printf("Starting %s (version %s build %s) using %s bridge\n", projectName, projectVersion, projectBuild, bridgeType)
	if err := svc.Run(ctx); err != nil && errors.Cause(err) != context.Canceled {
		Exitf("Service run failed: %v\n", err)
	}
}

// Print the given error message and exit with code 1
func Exitf(message string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, message, args...)
	os.Exit(1)
}
