package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/nncert/nncert/api"
	"github.com/nncert/nncert/conformance"
	"github.com/nncert/nncert/corpus"
	"github.com/nncert/nncert/hal"
	"github.com/nncert/nncert/softdriver"
)

func newTestServer(t *testing.T) (*Server, http.Handler) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s := &Server{device: softdriver.New(), sessions: newSessions()}
	h, err := s.GenerateRoutes()
	if err != nil {
		t.Fatal(err)
	}
	return s, h
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var r *http.Request
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = httptest.NewRequest(method, path, bytes.NewReader(data))
	} else {
		r = httptest.NewRequest(method, path, nil)
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

// The bridge must be transparent: a suite run against a served driver
// behaves like a run against the driver in process.
func TestBridgeConformance(t *testing.T) {
	_, h := newTestServer(t)
	srv := httptest.NewServer(h)
	defer srv.Close()

	base, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatal(err)
	}

	device, err := api.NewClient(base, srv.Client()).Device(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if device.Name() != "soft" {
		t.Errorf("device name = %q, want %q", device.Name(), "soft")
	}

	m, err := corpus.Get("add_float32")
	if err != nil {
		t.Fatal(err)
	}

	outcome := conformance.Execute(context.Background(), device, m, conformance.KindGeneral)
	if outcome.Verdict != conformance.Passed {
		t.Fatalf("bridged general run: %s (%v)", outcome.Verdict, outcome.Err)
	}
	if len(outcome.Results) != 6 {
		t.Errorf("expected 6 scenario results, got %d", len(outcome.Results))
	}
}

func TestBridgeDynamicShape(t *testing.T) {
	_, h := newTestServer(t)
	srv := httptest.NewServer(h)
	defer srv.Close()

	base, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatal(err)
	}

	device, err := api.NewClient(base, srv.Client()).Device(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	m, err := corpus.Get("reshape_float32")
	if err != nil {
		t.Fatal(err)
	}

	outcome := conformance.Execute(context.Background(), device, m, conformance.KindDynamicShape)
	if outcome.Verdict != conformance.Passed {
		t.Fatalf("bridged dynamic shape run: %s (%v)", outcome.Verdict, outcome.Err)
	}
	if len(outcome.Results) != 12 {
		t.Errorf("expected 12 scenario results, got %d", len(outcome.Results))
	}
}

func TestPrepareRejection(t *testing.T) {
	_, h := newTestServer(t)

	m, err := corpus.Get("add_mismatched_activation")
	if err != nil {
		t.Fatal(err)
	}
	wire, err := conformance.LowerModel(m)
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		for _, pool := range wire.Pools {
			pool.Close()
		}
	}()

	w := doJSON(t, h, http.MethodPost, "/api/prepare", api.PrepareRequest{Model: api.NewModel(wire)})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d: %s", w.Code, w.Body.String())
	}

	var se api.StatusError
	if err := json.Unmarshal(w.Body.Bytes(), &se); err != nil {
		t.Fatal(err)
	}
	if se.DriverStatus != hal.StatusInvalidArgument {
		t.Errorf("driver_status = %s, want %s", se.DriverStatus, hal.StatusInvalidArgument)
	}
}

func TestUnknownSessions(t *testing.T) {
	_, h := newTestServer(t)

	for _, tt := range []struct {
		method string
		path   string
		body   any
	}{
		{http.MethodPost, "/api/models/nope/execute", api.ExecuteRequest{}},
		{http.MethodPost, "/api/models/nope/burst", nil},
		{http.MethodDelete, "/api/models/nope", nil},
		{http.MethodPost, "/api/burst/nope/execute", api.BurstExecuteRequest{}},
		{http.MethodDelete, "/api/burst/nope", nil},
	} {
		w := doJSON(t, h, tt.method, tt.path, tt.body)
		if w.Code != http.StatusNotFound {
			t.Errorf("%s %s: expected status 404, got %d", tt.method, tt.path, w.Code)
		}
	}
}

func TestBurstSlotProtocol(t *testing.T) {
	_, h := newTestServer(t)

	m, err := corpus.Get("add_float32")
	if err != nil {
		t.Fatal(err)
	}
	wire, err := conformance.LowerModel(m)
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		for _, pool := range wire.Pools {
			pool.Close()
		}
	}()

	w := doJSON(t, h, http.MethodPost, "/api/prepare", api.PrepareRequest{Model: api.NewModel(wire)})
	if w.Code != http.StatusOK {
		t.Fatalf("prepare: %d: %s", w.Code, w.Body.String())
	}
	var prep api.PrepareResponse
	if err := json.Unmarshal(w.Body.Bytes(), &prep); err != nil {
		t.Fatal(err)
	}

	w = doJSON(t, h, http.MethodPost, "/api/models/"+prep.ID+"/burst", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("open burst: %d: %s", w.Code, w.Body.String())
	}
	var burst api.BurstResponse
	if err := json.Unmarshal(w.Body.Bytes(), &burst); err != nil {
		t.Fatal(err)
	}

	req, err := conformance.BuildRequest(m)
	if err != nil {
		t.Fatal(err)
	}
	defer req.Close()

	// referencing an uncached slot without content breaks the
	// protocol
	breq := api.NewExecuteRequest(req, false)
	w = doJSON(t, h, http.MethodPost, "/api/burst/"+burst.ID+"/execute", api.BurstExecuteRequest{
		Inputs:  breq.Inputs,
		Outputs: breq.Outputs,
		Pools: []api.BurstPool{
			{Slot: 0, Size: uint32(len(breq.Pools[0]))},
			{Slot: 1, Size: uint32(len(breq.Pools[1]))},
		},
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("uncached slot without content: expected status 400, got %d: %s", w.Code, w.Body.String())
	}

	// first sight carries content
	w = doJSON(t, h, http.MethodPost, "/api/burst/"+burst.ID+"/execute", api.BurstExecuteRequest{
		Inputs:  breq.Inputs,
		Outputs: breq.Outputs,
		Pools: []api.BurstPool{
			{Slot: 0, Size: uint32(len(breq.Pools[0])), Data: breq.Pools[0]},
			{Slot: 1, Size: uint32(len(breq.Pools[1])), Data: breq.Pools[1]},
		},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("first execution: %d: %s", w.Code, w.Body.String())
	}
	var resp api.BurstExecuteResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != hal.BurstOK {
		t.Fatalf("first execution status = %v", resp.Status)
	}

	// cached slots ride without content
	w = doJSON(t, h, http.MethodPost, "/api/burst/"+burst.ID+"/execute", api.BurstExecuteRequest{
		Inputs:  breq.Inputs,
		Outputs: breq.Outputs,
		Pools: []api.BurstPool{
			{Slot: 0, Size: uint32(len(breq.Pools[0]))},
			{Slot: 1, Size: uint32(len(breq.Pools[1]))},
		},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("cached execution: %d: %s", w.Code, w.Body.String())
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != hal.BurstOK {
		t.Fatalf("cached execution status = %v", resp.Status)
	}

	w = doJSON(t, h, http.MethodDelete, "/api/burst/"+burst.ID, nil)
	if w.Code != http.StatusOK {
		t.Errorf("close burst: %d", w.Code)
	}
	w = doJSON(t, h, http.MethodDelete, "/api/models/"+prep.ID, nil)
	if w.Code != http.StatusOK {
		t.Errorf("close model: %d", w.Code)
	}
}

func TestVersionRoute(t *testing.T) {
	_, h := newTestServer(t)

	w := doJSON(t, h, http.MethodGet, "/api/version", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var resp api.VersionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Version == "" {
		t.Error("expected a version")
	}
}
