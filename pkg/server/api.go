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
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/duinoio/pcduino-io/pkg/board"
)

const (
	// i2cReadTimeout is the time a read request waits for its reply.
	i2cReadTimeout = time.Second * 2
)

var (
	errI2CTimeout = errors.New("i2c read timeout")
)

// Board is the part of the board exposed through the API.
type Board interface {
	Name() string
	IsReady() bool
	AnalogPins() []int
	SamplingInterval() int
	SetSamplingInterval(ms int) int
	Pins() []board.PinState
	Pin(address string) (board.PinState, error)
	SetMode(address string, mode board.Mode) error
	DigitalWrite(address string, value int) error
	AnalogWrite(address string, value int) error
	I2CWrite(address uint8, data []byte) error
	I2CWriteReg(address, register, value uint8) error
	I2CReadOnce(address uint8, register int, length int, cb func(data []byte)) error
}

type boardInfo struct {
	Name             string `json:"name"`
	Ready            bool   `json:"ready"`
	SamplingInterval int    `json:"sampling_interval"`
	AnalogPins       []int  `json:"analog_pins"`
}

type modeRequest struct {
	Mode *board.Mode `json:"mode"`
}

type valueRequest struct {
	Value *int `json:"value"`
}

type samplingIntervalRequest struct {
	Ms *int `json:"ms"`
}

type samplingIntervalResponse struct {
	Ms int `json:"ms"`
}

type i2cWriteRequest struct {
	Bytes    []int `json:"bytes"`
	Register *int  `json:"register"`
	Value    *int  `json:"value"`
}

type i2cReadRequest struct {
	Register *int `json:"register"`
	Length   int  `json:"length"`
}

type i2cReadResponse struct {
	Address  uint8 `json:"address"`
	Register int   `json:"register"`
	Data     []int `json:"data"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) registerAPI(g *echo.Group) {
	g.GET("/board", s.getBoard)
	g.GET("/pins", s.getPins)
	g.GET("/pins/:pin", s.getPin)
	g.PUT("/pins/:pin/mode", s.putPinMode)
	g.PUT("/pins/:pin/digital", s.putPinDigital)
	g.PUT("/pins/:pin/analog", s.putPinAnalog)
	g.PUT("/sampling-interval", s.putSamplingInterval)
	g.POST("/i2c/:address/write", s.postI2CWrite)
	g.POST("/i2c/:address/read", s.postI2CRead)
}

func (s *Server) getBoard(c echo.Context) error {
	return c.JSON(http.StatusOK, boardInfo{
		Name:             s.board.Name(),
		Ready:            s.board.IsReady(),
		SamplingInterval: s.board.SamplingInterval(),
		AnalogPins:       s.board.AnalogPins(),
	})
}

func (s *Server) getPins(c echo.Context) error {
	return c.JSON(http.StatusOK, s.board.Pins())
}

func (s *Server) getPin(c echo.Context) error {
	p, err := s.board.Pin(c.Param("pin"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (s *Server) putPinMode(c echo.Context) error {
	var req modeRequest
	if err := c.Bind(&req); err != nil {
		return errors.Wrapf(board.ErrInvalidArgument, "invalid request: %v", err)
	}
	if req.Mode == nil {
		return errors.Wrap(board.ErrInvalidArgument, "mode is required")
	}
	if err := s.board.SetMode(c.Param("pin"), *req.Mode); err != nil {
		return err
	}
	return s.getPin(c)
}

func (s *Server) putPinDigital(c echo.Context) error {
	return s.writePin(c, s.board.DigitalWrite)
}

func (s *Server) putPinAnalog(c echo.Context) error {
	return s.writePin(c, s.board.AnalogWrite)
}

func (s *Server) writePin(c echo.Context, write func(string, int) error) error {
	var req valueRequest
	if err := c.Bind(&req); err != nil {
		return errors.Wrapf(board.ErrInvalidArgument, "invalid request: %v", err)
	}
	if req.Value == nil {
		return errors.Wrap(board.ErrInvalidArgument, "value is required")
	}
	if err := write(c.Param("pin"), *req.Value); err != nil {
		return err
	}
	return s.getPin(c)
}

func (s *Server) putSamplingInterval(c echo.Context) error {
	var req samplingIntervalRequest
	if err := c.Bind(&req); err != nil {
		return errors.Wrapf(board.ErrInvalidArgument, "invalid request: %v", err)
	}
	if req.Ms == nil {
		return errors.Wrap(board.ErrInvalidArgument, "ms is required")
	}
	applied := s.board.SetSamplingInterval(*req.Ms)
	return c.JSON(http.StatusOK, samplingIntervalResponse{Ms: applied})
}

func (s *Server) postI2CWrite(c echo.Context) error {
	address, err := parseI2CAddress(c.Param("address"))
	if err != nil {
		return err
	}
	var req i2cWriteRequest
	if err := c.Bind(&req); err != nil {
		return errors.Wrapf(board.ErrInvalidArgument, "invalid request: %v", err)
	}
	switch {
	case req.Register != nil && req.Value != nil:
		register, err := toByte("register", *req.Register)
		if err != nil {
			return err
		}
		value, err := toByte("value", *req.Value)
		if err != nil {
			return err
		}
		if err := s.board.I2CWriteReg(address, register, value); err != nil {
			return err
		}
	case req.Register == nil && req.Value == nil:
		data := make([]byte, len(req.Bytes))
		for i, v := range req.Bytes {
			if data[i], err = toByte("byte", v); err != nil {
				return err
			}
		}
		if err := s.board.I2CWrite(address, data); err != nil {
			return err
		}
	default:
		return errors.Wrap(board.ErrInvalidArgument, "register and value must be given together")
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) postI2CRead(c echo.Context) error {
	address, err := parseI2CAddress(c.Param("address"))
	if err != nil {
		return err
	}
	var req i2cReadRequest
	if err := c.Bind(&req); err != nil {
		return errors.Wrapf(board.ErrInvalidArgument, "invalid request: %v", err)
	}
	register := board.NoRegister
	if req.Register != nil {
		register = *req.Register
	}
	replies := make(chan []byte, 1)
	if err := s.board.I2CReadOnce(address, register, req.Length, func(data []byte) {
		replies <- data
	}); err != nil {
		return err
	}
	ctx := c.Request().Context()
	select {
	case data := <-replies:
		resp := i2cReadResponse{
			Address:  address,
			Register: register,
			Data:     make([]int, len(data)),
		}
		for i, v := range data {
			resp.Data[i] = int(v)
		}
		return c.JSON(http.StatusOK, resp)
	case <-time.After(i2cReadTimeout):
		return errors.Wrapf(errI2CTimeout, "no reply from 0x%02x", address)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// errorHandler converts board errors into HTTP status codes.
func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	status := http.StatusInternalServerError
	msg := err.Error()
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		status = he.Code
		msg = http.StatusText(he.Code)
		if m, ok := he.Message.(string); ok {
			msg = m
		}
	case board.IsInvalidPin(err), board.IsInvalidMode(err), board.IsInvalidArgument(err):
		status = http.StatusBadRequest
	case board.IsUnsupportedOperation(err):
		status = http.StatusNotImplemented
	case board.IsTransport(err):
		status = http.StatusBadGateway
	case board.IsBoardClosed(err):
		status = http.StatusServiceUnavailable
	case errors.Cause(err) == errI2CTimeout:
		status = http.StatusGatewayTimeout
	}
	if status >= http.StatusInternalServerError {
		s.log.Warn().Err(err).Str("path", c.Path()).Int("status", status).Msg("Request failed")
	}
	if c.Request().Method == http.MethodHead {
		c.NoContent(status)
		return
	}
	c.JSON(status, errorResponse{Error: msg})
}

func parseI2CAddress(s string) (uint8, error) {
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil || v > 0x7f {
		return 0, errors.Wrapf(board.ErrInvalidArgument, "invalid i2c address '%s'", s)
	}
	return uint8(v), nil
}

func toByte(name string, v int) (uint8, error) {
	if v < 0 || v > 0xff {
		return 0, errors.Wrapf(board.ErrInvalidArgument, "%s %d out of range [0, 255]", name, v)
	}
	return uint8(v), nil
}
