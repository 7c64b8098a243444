//go:build integration

package integration

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nncert/nncert/api"
	"github.com/nncert/nncert/conformance"
	"github.com/nncert/nncert/corpus"
	"github.com/nncert/nncert/hal"
	"github.com/nncert/nncert/server"
	"github.com/nncert/nncert/softdriver"
)

// startBridge serves the soft driver over a local conformance server
// and returns it as seen through the HTTP bridge.
func startBridge(t *testing.T) hal.Device {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go server.Serve(ln, softdriver.New())

	base := &url.URL{Scheme: "http", Host: ln.Addr().String()}
	client := api.NewClient(base, http.DefaultClient)

	var device *api.Device
	require.Eventually(t, func() bool {
		device, err = client.Device(context.Background())
		return err == nil
	}, 5*time.Second, 10*time.Millisecond, "server did not come up")

	return device
}

// TestSoftDriverConformance runs the full suite against the in-process
// reference driver.
func TestSoftDriverConformance(t *testing.T) {
	conformance.RunSuite(t, softdriver.New())
}

// TestBridgedConformance runs the full suite against the same driver
// reached over the HTTP bridge. The suite must not be able to tell the
// difference.
func TestBridgedConformance(t *testing.T) {
	conformance.RunSuite(t, startBridge(t))
}

func TestBridgedRepeatedRuns(t *testing.T) {
	device := startBridge(t)

	m, err := corpus.Get("add_float32")
	require.NoError(t, err)

	for i := range 5 {
		o := conformance.Execute(context.Background(), device, m, conformance.KindGeneral)
		require.Equalf(t, conformance.Passed, o.Verdict, "iteration %d: %v", i, o.Err)
	}
}
