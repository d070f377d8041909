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
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/duinoio/pcduino-io/pkg/board"
	"github.com/duinoio/pcduino-io/pkg/bridge"
)

type testServer struct {
	router *echo.Echo
	board  *board.Board
	bridge bridge.VirtualBridge
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	vb := bridge.NewVirtualBridge(zerolog.Nop())
	b, err := board.New(board.Config{}, board.Dependencies{
		Log:     zerolog.Nop(),
		Driver:  vb.Driver(),
		OpenBus: vb.OpenI2CBus,
	})
	if err != nil {
		t.Fatalf("board.New failed: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	s, err := New(Config{HTTPPort: 8080}, zerolog.Nop(), nil, b)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return &testServer{
		router: s.newRouter(),
		board:  b,
		bridge: vb,
	}
}

func (ts *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func TestGetBoard(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/api/board", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var info boardInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if info.Name != "pcDuino3" || info.SamplingInterval != 1 || len(info.AnalogPins) != 6 {
		t.Errorf("Unexpected board info %+v", info)
	}
}

func TestGetPins(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/api/pins", "")
	var pins []board.PinState
	if err := json.Unmarshal(rec.Body.Bytes(), &pins); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if len(pins) != board.PinCount {
		t.Errorf("Expected %d pins, got %d", board.PinCount, len(pins))
	}
	rec = ts.do(t, http.MethodGet, "/api/pins/A0", "")
	var p board.PinState
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if p.Index != 14 || p.Mode != board.ModeAnalog {
		t.Errorf("Unexpected pin %+v", p)
	}
	if rec := ts.do(t, http.MethodGet, "/api/pins/A9", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rec.Code)
	}
}

func TestPutPin(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPut, "/api/pins/5/analog", `{"value":300}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if d := ts.bridge.VirtualDriver().Duty(5); d != 255 {
		t.Errorf("Expected duty 255, got %d", d)
	}
	rec = ts.do(t, http.MethodPut, "/api/pins/5/mode", `{"mode":"input"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var p board.PinState
	json.Unmarshal(rec.Body.Bytes(), &p)
	if p.Mode != board.ModeInput || p.IsPWM {
		t.Errorf("Unexpected pin %+v", p)
	}
	if rec := ts.do(t, http.MethodPut, "/api/pins/5/digital", `{"value":1}`); rec.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rec.Code)
	}
	if l := ts.bridge.VirtualDriver().Level(5); l != 1 {
		t.Errorf("Expected level 1, got %d", l)
	}
	if rec := ts.do(t, http.MethodPut, "/api/pins/5/mode", `{"mode":"servo"}`); rec.Code != http.StatusNotImplemented {
		t.Errorf("Expected 501, got %d", rec.Code)
	}
	if rec := ts.do(t, http.MethodPut, "/api/pins/5/mode", `{"mode":"bogus"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rec.Code)
	}
	if rec := ts.do(t, http.MethodPut, "/api/pins/5/digital", `{}`); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rec.Code)
	}
}

func TestPutSamplingInterval(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPut, "/api/sampling-interval", `{"ms":100000}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var resp samplingIntervalResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Ms != 65535 || ts.board.SamplingInterval() != 65535 {
		t.Errorf("Expected clamped interval, got %d", resp.Ms)
	}
}

func TestI2C(t *testing.T) {
	ts := newTestServer(t)
	dev := ts.bridge.AddDevice(0x20)
	rec := ts.do(t, http.MethodPost, "/api/i2c/0x20/write", `{"register":3,"value":171}`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d: %s", rec.Code, rec.Body.String())
	}
	if dev.Get(3) != 171 {
		t.Errorf("Expected register 3 to be 171, got %d", dev.Get(3))
	}
	if rec := ts.do(t, http.MethodPost, "/api/i2c/32/write", `{"bytes":[4,1,2]}`); rec.Code != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d", rec.Code)
	}
	rec = ts.do(t, http.MethodPost, "/api/i2c/0x20/read", `{"register":3,"length":3}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp i2cReadResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if len(resp.Data) != 3 || resp.Data[0] != 171 || resp.Data[1] != 1 || resp.Data[2] != 2 {
		t.Errorf("Unexpected data %v", resp.Data)
	}
	if rec := ts.do(t, http.MethodPost, "/api/i2c/0x20/write", `{"bytes":[256]}`); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rec.Code)
	}
	if rec := ts.do(t, http.MethodPost, "/api/i2c/0x80/write", `{"bytes":[1]}`); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rec.Code)
	}
	if rec := ts.do(t, http.MethodPost, "/api/i2c/0x21/read", `{"length":1}`); rec.Code != http.StatusGatewayTimeout {
		t.Errorf("Expected 504, got %d", rec.Code)
	}
}
