// Copyright 2023 Ewout Prangsma
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
//
// Author Ewout Prangsma
//

package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"strconv"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"
	"github.com/charmbracelet/wish/activeterm"
	"github.com/charmbracelet/wish/bubbletea"
	"github.com/charmbracelet/wish/logging"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"go.uber.org/multierr"
)

const (
	shutdownTimeout = time.Second * 5
)

// Config for the HTTP & SSH server.
type Config struct {
	// Host interface to listen on
	Host string
	// Port to listen on for HTTP requests
	HTTPPort int
	// Port to listen on for SSH requests, 0 to disable
	SSHPort int
	// Path of the SSH host key, created when missing
	SSHHostKeyPath string
}

// Validate the config.
func (c Config) Validate() error {
	var err error
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		multierr.AppendInto(&err, fmt.Errorf("invalid http port %d", c.HTTPPort))
	}
	if c.SSHPort < 0 || c.SSHPort > 65535 {
		multierr.AppendInto(&err, fmt.Errorf("invalid ssh port %d", c.SSHPort))
	}
	return err
}

// Server runs the HTTP server for the service.
type Server struct {
	Config
	log   zerolog.Logger
	ui    UI
	board Board
}

type UI interface {
	// Handler creates the Bubble Tea model of an incoming ssh.Session.
	Handler(s ssh.Session) (tea.Model, []tea.ProgramOption)
}

// New configures a new Server.
func New(cfg Config, log zerolog.Logger, ui UI, b Board) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.SSHHostKeyPath == "" {
		cfg.SSHHostKeyPath = ".ssh/id_ed25519"
	}
	return &Server{
		Config: cfg,
		log:    log.With().Str("component", "server").Logger(),
		ui:     ui,
		board:  b,
	}, nil
}

// newRouter creates the HTTP routes.
func (s *Server) newRouter() *echo.Echo {
	httpRouter := echo.New()
	httpRouter.HideBanner = true
	httpRouter.HidePort = true
	httpRouter.HTTPErrorHandler = s.errorHandler
	httpRouter.GET("/health", echo.WrapHandler(http.HandlerFunc(healthHandler)))
	httpRouter.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	httpRouter.GET("/debug/pprof/*", echo.WrapHandler(http.HandlerFunc(pprof.Index)))
	s.registerAPI(httpRouter.Group("/api"))
	return httpRouter
}

// Run the server until the given context is canceled.
func (s *Server) Run(ctx context.Context) error {
	// Prepare HTTP listener
	log := s.log
	httpAddr := net.JoinHostPort(s.Host, strconv.Itoa(s.HTTPPort))
	httpLis, err := net.Listen("tcp", httpAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on address %s: %w", httpAddr, err)
	}

	// Prepare HTTP server
	httpSrv := http.Server{
		Handler: s.newRouter(),
	}

	// Prepare SSH server
	var sshServer *ssh.Server
	sshAddr := net.JoinHostPort(s.Host, strconv.Itoa(s.SSHPort))
	if s.SSHPort > 0 && s.ui != nil {
		sshServer, err = wish.NewServer(
			// The address the server will listen to.
			wish.WithAddress(sshAddr),

			// The SSH server need its own keys, this will create a keypair in the
			// given path if it doesn't exist yet.
			// By default, it will create an ED25519 key.
			wish.WithHostKeyPath(s.SSHHostKeyPath),

			// Middlewares do something on a ssh.Session, and then call the next
			// middleware in the stack.
			wish.WithMiddleware(
				bubbletea.Middleware(s.ui.Handler),
				// The last item in the chain is the first to be called.
				activeterm.Middleware(),
				logging.Middleware(),
			),
		)
		if err != nil {
			httpLis.Close()
			return fmt.Errorf("could not start SSH server: %w", err)
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	// Serve apis
	g.Go(func() error {
		log.Debug().Str("address", httpAddr).Msg("Serving HTTP")
		if err := httpSrv.Serve(httpLis); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("failed to serve HTTP server: %w", err)
		}
		log.Debug().Str("address", httpAddr).Msg("Done Serving HTTP")
		return nil
	})
	// Serve UI
	if sshServer != nil {
		g.Go(func() error {
			log.Debug().Str("address", sshAddr).Msg("Serving SSH")
			if err := sshServer.ListenAndServe(); err != nil && err != ssh.ErrServerClosed {
				return fmt.Errorf("failed to serve SSH server: %w", err)
			}
			log.Debug().Str("address", sshAddr).Msg("Done Serving SSH")
			return nil
		})
	}
	g.Go(func() error {
		// Wait until context closed
		<-ctx.Done()

		log.Info().Msg("Closing servers")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		httpSrv.Shutdown(shutdownCtx)
		if sshServer != nil {
			sshServer.Shutdown(shutdownCtx)
		}
		return nil
	})
	return g.Wait()
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintln(w, "OK")
}
