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

package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/ecc1/gpio"
	"github.com/pkg/errors"
)

const (
	// activityFlash is the time the status led is off to signal activity.
	activityFlash = 50 * time.Millisecond
)

type statusLed struct {
	sync.Mutex
	pin         gpio.OutputPin
	cancelBlink func()
}

// newStatusLed opens the status led on given GPIO pin.
// A negative pin yields a led without hardware.
func newStatusLed(pinNumber int) (*statusLed, error) {
	if pinNumber < 0 {
		return &statusLed{}, nil
	}
	activeLow := false
	pin, err := gpio.Output(pinNumber, activeLow, false)
	if err != nil {
		return nil, errors.Wrapf(err, "Output[statusLed %d] failed", pinNumber)
	}
	return &statusLed{pin: pin}, nil
}

func (l *statusLed) write(on bool) error {
	if l.pin == nil {
		return nil
	}
	return l.pin.Write(on)
}

// Turn led on/off, cancel blink
func (l *statusLed) Set(on bool) error {
	l.Mutex.Lock()
	defer l.Mutex.Unlock()

	if cancel := l.cancelBlink; cancel != nil {
		l.cancelBlink = nil
		cancel()
	}
	if err := l.write(on); err != nil {
		return errors.Wrap(err, "Write failed")
	}
	return nil
}

// Blink led on/off
func (l *statusLed) Blink(delay time.Duration) error {
	l.Mutex.Lock()
	defer l.Mutex.Unlock()

	if cancel := l.cancelBlink; cancel != nil {
		l.cancelBlink = nil
		cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	l.cancelBlink = cancel
	go func() {
		value := true
		for {
			l.Mutex.Lock()
			if ctx.Err() == nil {
				l.write(value)
				value = !value
			}
			l.Mutex.Unlock()
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

// ActivityIndicator flashes the status led of a bridge whenever the
// board changes hardware state.
type ActivityIndicator struct {
	bridge API
	notify chan struct{}
}

// NewActivityIndicator creates an indicator for the status led of given bridge.
func NewActivityIndicator(bridge API) *ActivityIndicator {
	return &ActivityIndicator{
		bridge: bridge,
		notify: make(chan struct{}, 1),
	}
}

// Notify signals activity. It never blocks.
func (a *ActivityIndicator) Notify() {
	select {
	case a.notify <- struct{}{}:
	default:
		// Flash already pending
	}
}

// Run the indicator until the given context is canceled.
// The led is on while idle and briefly off on activity.
func (a *ActivityIndicator) Run(ctx context.Context) error {
	a.bridge.SetStatusLED(true)
	defer a.bridge.SetStatusLED(false)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-a.notify:
			activityBlinksTotal.Inc()
			if err := a.bridge.SetStatusLED(false); err != nil {
				return errors.Wrap(err, "SetStatusLED failed")
			}
			select {
			case <-time.After(activityFlash):
			case <-ctx.Done():
				return nil
			}
			if err := a.bridge.SetStatusLED(true); err != nil {
				return errors.Wrap(err, "SetStatusLED failed")
			}
		}
	}
}
