//    Copyright 2017-2022 Ewout Prangsma
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

package service

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/duinoio/pcduino-io/pkg/board"
	"github.com/duinoio/pcduino-io/pkg/bridge"
	"github.com/duinoio/pcduino-io/pkg/logging"
	"github.com/duinoio/pcduino-io/pkg/mqtt"
	"github.com/duinoio/pcduino-io/pkg/server"
	"github.com/duinoio/pcduino-io/pkg/ui"
)

const (
	eventLogSize = 256
	startupBlink = time.Millisecond * 250
)

type Service interface {
	// Run the board and its servers until the given context is cancelled.
	Run(ctx context.Context) error
	// Board returns the runtime of the board.
	Board() *board.Board
}

type Config struct {
	ProgramVersion string
	Board          board.Config
	Server         server.Config
	MQTT           mqtt.Config
}

type Dependencies struct {
	Logger zerolog.Logger
	Bridge bridge.API
	// LogWriter receives log lines forwarded to MQTT, can be nil.
	LogWriter logging.MQTTWriter
}

type service struct {
	Config
	Dependencies

	board     *board.Board
	events    *ui.EventLog
	indicator *bridge.ActivityIndicator
	server    *server.Server
	startedAt time.Time
}

// NewService creates a Service instance and returns it.
func NewService(conf Config, deps Dependencies) (Service, error) {
	deps.Logger = deps.Logger.With().Str("component", "service").Logger()
	if deps.Bridge == nil {
		return nil, errors.New("Bridge is required")
	}
	if conf.MQTT.IsEnabled() {
		if err := conf.MQTT.Validate(); err != nil {
			return nil, errors.Wrap(err, "Invalid MQTT config")
		}
	}
	s := &service{
		Config:       conf,
		Dependencies: deps,
		events:       ui.NewEventLog(eventLogSize),
		indicator:    bridge.NewActivityIndicator(deps.Bridge),
		startedAt:    time.Now(),
	}
	b, err := board.New(conf.Board, board.Dependencies{
		Log:      deps.Logger,
		Driver:   deps.Bridge.Driver(),
		OpenBus:  deps.Bridge.OpenI2CBus,
		OnActive: s.indicator.Notify,
	})
	if err != nil {
		return nil, errors.Wrap(err, "Failed to create board")
	}
	s.board = b
	s.server, err = server.New(conf.Server, deps.Logger, ui.New(b, s.events), b)
	if err != nil {
		b.Close()
		return nil, errors.Wrap(err, "Failed to create server")
	}
	return s, nil
}

// Board returns the runtime of the board.
func (s *service) Board() *board.Board {
	return s.board
}

// Run starts the board, followed by the activity indicator, the servers
// and the MQTT forwarder. All are stopped when the given context is
// canceled or one of them fails.
func (s *service) Run(ctx context.Context) error {
	log := s.Logger
	defer s.Bridge.Close()
	defer s.board.Close()

	s.Bridge.BlinkStatusLED(startupBlink)
	unobserve := s.board.Observe(s.events.Add)
	defer unobserve()

	if err := s.board.Start(); err != nil {
		return errors.Wrap(err, "Failed to start board")
	}
	startedAtGauge.Set(float64(s.startedAt.Unix()))
	log.Info().
		Str("version", s.ProgramVersion).
		Int("sampling-interval", s.board.SamplingInterval()).
		Msg("Service started")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.indicator.Run(ctx) })
	g.Go(func() error { return s.server.Run(ctx) })
	if s.MQTT.IsEnabled() {
		g.Go(func() error {
			return mqtt.Run(ctx, log, s.MQTT, s.board, s.LogWriter)
		})
	} else {
		log.Info().Msg("No MQTT broker configured")
	}
	err := g.Wait()
	if err != nil {
		runFailuresTotal.Inc()
		log.Error().Err(err).Msg("Service failed")
	}
	log.Info().Msg("Service stopped")
	return err
}
