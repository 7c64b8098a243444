// Package server exposes a driver over HTTP so the conformance suite
// can run against it from another process or machine. The routes
// mirror the driver surface: prepare a model, execute it over the
// blocking or burst path, tear it down. Clients reach it through
// [github.com/nncert/nncert/api].
package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/nncert/nncert/api"
	"github.com/nncert/nncert/envconfig"
	"github.com/nncert/nncert/hal"
	"github.com/nncert/nncert/logutil"
	"github.com/nncert/nncert/shm"
	"github.com/nncert/nncert/version"
)

var mode string = gin.DebugMode

func init() {
	switch mode {
	case gin.DebugMode:
	case gin.ReleaseMode:
	case gin.TestMode:
	default:
		mode = gin.DebugMode
	}

	gin.SetMode(mode)
}

// Server serves one driver to remote conformance clients.
type Server struct {
	addr     net.Addr
	device   hal.Device
	sessions *sessions
}

func isLocalIP(ip netip.Addr) bool {
	if interfaces, err := net.Interfaces(); err == nil {
		for _, iface := range interfaces {
			addrs, err := iface.Addrs()
			if err != nil {
				continue
			}

			for _, a := range addrs {
				if parsed, _, err := net.ParseCIDR(a.String()); err == nil {
					if parsed.String() == ip.String() {
						return true
					}
				}
			}
		}
	}

	return false
}

func allowedHost(host string) bool {
	host = strings.ToLower(host)

	if host == "" || host == "localhost" {
		return true
	}

	if hostname, err := os.Hostname(); err == nil && host == strings.ToLower(hostname) {
		return true
	}

	tlds := []string{
		"localhost",
		"local",
		"internal",
	}

	for _, tld := range tlds {
		if strings.HasSuffix(host, "."+tld) {
			return true
		}
	}

	return false
}

func allowedHostsMiddleware(addr net.Addr) gin.HandlerFunc {
	return func(c *gin.Context) {
		if addr == nil {
			c.Next()
			return
		}

		if addr, err := netip.ParseAddrPort(addr.String()); err == nil && !addr.Addr().IsLoopback() {
			c.Next()
			return
		}

		host, _, err := net.SplitHostPort(c.Request.Host)
		if err != nil {
			host = c.Request.Host
		}

		if addr, err := netip.ParseAddr(host); err == nil {
			if addr.IsLoopback() || addr.IsPrivate() || addr.IsUnspecified() || isLocalIP(addr) {
				c.Next()
				return
			}
		}

		if allowedHost(host) {
			if c.Request.Method == http.MethodOptions {
				c.AbortWithStatus(http.StatusNoContent)
				return
			}

			c.Next()
			return
		}

		c.AbortWithStatus(http.StatusForbidden)
	}
}

// GenerateRoutes builds the HTTP surface for the driver under test.
func (s *Server) GenerateRoutes() (http.Handler, error) {
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowWildcard = true
	corsConfig.AllowBrowserExtensions = true
	corsConfig.AllowHeaders = []string{
		"Authorization",
		"Content-Type",
		"User-Agent",
		"Accept",
		"X-Requested-With",
	}
	corsConfig.AllowOrigins = envconfig.Origins()

	r := gin.Default()
	r.HandleMethodNotAllowed = true
	r.Use(
		cors.New(corsConfig),
		allowedHostsMiddleware(s.addr),
	)

	// General
	r.HEAD("/", func(c *gin.Context) { c.String(http.StatusOK, "nncert is running") })
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, "nncert is running") })
	r.HEAD("/api/version", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"version": version.Version}) })
	r.GET("/api/version", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"version": version.Version}) })

	// Driver surface
	r.GET("/api/device", s.DeviceHandler)
	r.POST("/api/supported", s.SupportedHandler)
	r.POST("/api/prepare", s.PrepareHandler)
	r.POST("/api/models/:id/execute", s.ExecuteHandler)
	r.POST("/api/models/:id/burst", s.OpenBurstHandler)
	r.DELETE("/api/models/:id", s.CloseModelHandler)
	r.POST("/api/burst/:id/execute", s.BurstExecuteHandler)
	r.DELETE("/api/burst/:id", s.CloseBurstHandler)

	return r, nil
}

func (s *Server) DeviceHandler(c *gin.Context) {
	c.JSON(http.StatusOK, api.DeviceResponse{Name: s.device.Name(), Version: version.Version})
}

func (s *Server) SupportedHandler(c *gin.Context) {
	var req api.SupportedRequest
	if err := c.ShouldBindJSON(&req); errors.Is(err, io.EOF) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing request body"})
		return
	} else if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Model == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "model is required"})
		return
	}

	model, err := req.Model.HALModel()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer closePools(model.Pools)

	supported, err := s.device.SupportedOperations(model)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "driver_status": hal.StatusOf(err)})
		return
	}

	c.JSON(http.StatusOK, api.SupportedResponse{Supported: supported})
}

// PrepareHandler compiles a model on the driver. A driver rejection
// comes back as 400 with the driver's result code, so the client can
// hand the suite the same error an in process driver would return.
func (s *Server) PrepareHandler(c *gin.Context) {
	var req api.PrepareRequest
	if err := c.ShouldBindJSON(&req); errors.Is(err, io.EOF) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing request body"})
		return
	} else if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Model == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "model is required"})
		return
	}

	model, err := req.Model.HALModel()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	prepared, err := s.device.PrepareModel(c.Request.Context(), model)
	if err != nil {
		closePools(model.Pools)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "driver_status": hal.StatusOf(err)})
		return
	}

	id := s.sessions.addPrepared(&preparedSession{prepared: prepared, pools: model.Pools})
	c.JSON(http.StatusOK, api.PrepareResponse{ID: id})
}

// ExecuteHandler runs one blocking execution. Driver outcomes travel
// in the body with HTTP 200: a failed execution is a result, not a
// protocol error.
func (s *Server) ExecuteHandler(c *gin.Context) {
	session, ok := s.sessions.getPrepared(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("model %q not found", c.Param("id"))})
		return
	}

	var req api.ExecuteRequest
	if err := c.ShouldBindJSON(&req); errors.Is(err, io.EOF) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing request body"})
		return
	} else if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	halReq, err := req.HALRequest()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer halReq.Close()

	exec, err := session.prepared.ExecuteSync(c.Request.Context(), halReq, req.Measure)
	if err != nil {
		slog.Warn("execution", "model", c.Param("id"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, api.ExecuteResponse{
		Status:       exec.Status,
		OutputShapes: api.NewOutputShapes(exec.OutputShapes),
		Timing:       api.NewTiming(exec.Timing),
		Pools:        poolContents(halReq.Pools),
	})
}

func (s *Server) CloseModelHandler(c *gin.Context) {
	session, ok := s.sessions.removePrepared(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("model %q not found", c.Param("id"))})
		return
	}

	session.close()
	c.JSON(http.StatusOK, nil)
}

func (s *Server) OpenBurstHandler(c *gin.Context) {
	session, ok := s.sessions.getPrepared(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("model %q not found", c.Param("id"))})
		return
	}

	burst, err := session.prepared.OpenBurst(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	id := s.sessions.addBurst(newBurstSession(burst))
	c.JSON(http.StatusOK, api.BurstResponse{ID: id})
}

// BurstExecuteHandler runs one execution over a burst channel. Slot
// protocol violations are 400s; driver outcomes, including failed
// ones, ride HTTP 200.
func (s *Server) BurstExecuteHandler(c *gin.Context) {
	session, ok := s.sessions.getBurst(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("burst %q not found", c.Param("id"))})
		return
	}

	var req api.BurstExecuteRequest
	if err := c.ShouldBindJSON(&req); errors.Is(err, io.EOF) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing request body"})
		return
	} else if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := session.execute(c.Request.Context(), &req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) CloseBurstHandler(c *gin.Context) {
	session, ok := s.sessions.removeBurst(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("burst %q not found", c.Param("id"))})
		return
	}

	session.close()
	c.JSON(http.StatusOK, nil)
}

func closePools(pools []*shm.Memory) {
	for _, pool := range pools {
		pool.Close()
	}
}

// Serve starts the server on ln, serving device until interrupted.
func Serve(ln net.Listener, device hal.Device) error {
	slog.SetDefault(logutil.NewLogger(os.Stderr, envconfig.LogLevel()))
	slog.Info("server config", "env", envconfig.Values())

	s := &Server{addr: ln.Addr(), device: device, sessions: newSessions()}
	h, err := s.GenerateRoutes()
	if err != nil {
		return err
	}

	slog.Info(fmt.Sprintf("Listening on %s (version %s)", ln.Addr(), version.Version))
	srvr := &http.Server{
		Handler: h,
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signals
		srvr.Close()
		s.sessions.closeAll()
	}()

	if err := srvr.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
