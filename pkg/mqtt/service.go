// Copyright 2024 Ewout Prangsma
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

package mqtt

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/duinoio/pcduino-io/pkg/logging"
	"github.com/duinoio/pcduino-io/pkg/util"
)

// Run connects to the broker and forwards board events until the
// given context is canceled. Lost connections are re-established.
// When logWriter is not nil and log forwarding is enabled, log lines
// are published to <prefix>/logs.
func Run(ctx context.Context, log zerolog.Logger, conf Config, b Board, logWriter logging.MQTTWriter) error {
	client, err := NewClient(log, conf)
	if err != nil {
		return err
	}
	fwd := NewForwarder(log, b, client)
	return util.UntilCanceled(ctx, log, "mqtt forwarder", func() error {
		if err := client.Connect(ctx); err != nil {
			return err
		}
		defer client.Close()

		if err := client.Subscribe(client.Topic(CommandTopic()), fwd.HandleCommand); err != nil {
			return err
		}
		if logWriter != nil && conf.ForwardLogs {
			logWriter.SetDestination(client.Topic("logs"), client)
			logWriter.Enable(true)
			defer logWriter.Enable(false)
		}

		runCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		done := make(chan error, 1)
		go func() { done <- fwd.Run(runCtx) }()
		select {
		case err := <-client.Lost():
			cancel()
			<-done
			return err
		case err := <-done:
			return err
		}
	})
}
