// Package main is the entry point for the Movement DeFi aggregation and
// routing service: one HTTP surface over the snapshot pipeline, the protocol
// router and the zap optimizer.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/Satianurag/movement-defi-project-sub000/internal/aggregate"
	"github.com/Satianurag/movement-defi-project-sub000/internal/apy"
	"github.com/Satianurag/movement-defi-project-sub000/internal/circuitbreaker"
	"github.com/Satianurag/movement-defi-project-sub000/internal/config"
	"github.com/Satianurag/movement-defi-project-sub000/internal/export"
	"github.com/Satianurag/movement-defi-project-sub000/internal/fetch"
	"github.com/Satianurag/movement-defi-project-sub000/internal/model"
	"github.com/Satianurag/movement-defi-project-sub000/internal/otel"
	"github.com/Satianurag/movement-defi-project-sub000/internal/registry"
	"github.com/Satianurag/movement-defi-project-sub000/internal/router"
	"github.com/Satianurag/movement-defi-project-sub000/internal/security"
	"github.com/Satianurag/movement-defi-project-sub000/internal/zap"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// startTime records when the service was initialized for uptime reporting
var startTime = time.Now()

// directoryChain is the chain label used by the off-chain directory APIs
const directoryChain = "Move"

// ServerConfig holds the configuration for the HTTP server
type ServerConfig struct {
	// HTTP port to listen on
	Port string

	// Request timeout for snapshot assembly
	Timeout time.Duration

	// Whether to enable the circuit breaker over pool data
	EnableCircuitBreaker bool

	// Whether to enable Prometheus metrics
	EnableMetrics bool

	// Whether to sign snapshot responses
	EnableSigning bool
}

// Server wires the engine components behind the HTTP surface
type Server struct {
	config ServerConfig

	pipeline  *aggregate.Pipeline
	protoRtr  *router.Router
	chain     *fetch.FullnodeClient
	directory *fetch.DirectoryClient
	yields    *fetch.YieldsClient
	prices    *fetch.PriceClient
	breaker   *circuitbreaker.CircuitBreaker
	metrics   *serverMetrics
	exporter  *export.Exporter
	integrity *security.DataIntegrityService
	rateLimit *rate.Limiter

	server *http.Server

	mu           sync.RWMutex
	lastSnapshot *model.AggregatedSnapshot
}

// serverMetrics holds Prometheus metrics for the server
type serverMetrics struct {
	requestCounter  *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	branchFailures  *prometheus.CounterVec
	snapshotTVL     prometheus.Gauge
	circuitState    prometheus.Gauge
}

// registerMetrics sets up Prometheus metrics collection
func registerMetrics() *serverMetrics {
	m := &serverMetrics{
		requestCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "defi_requests_total",
				Help: "Total number of requests processed",
			},
			[]string{"endpoint", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "defi_request_duration_seconds",
				Help:    "Request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
		branchFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "defi_source_failures_total",
				Help: "Total number of degraded source fetches",
			},
			[]string{"source"},
		),
		snapshotTVL: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "defi_snapshot_total_tvl",
				Help: "Sum of protocol TVLs in the latest snapshot",
			},
		),
		circuitState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "defi_circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
			},
		),
	}

	prometheus.MustRegister(
		m.requestCounter,
		m.requestDuration,
		m.branchFailures,
		m.snapshotTVL,
		m.circuitState,
	)

	return m
}

// main is the entry point for the application
func main() {
	setupLogging()

	cfg := config.Load()
	shutdownTracer := otel.InitTracer(cfg)
	defer shutdownTracer()

	server := NewServer(cfg)
	server.Start()
}

// setupLogging configures the logging for the application
func setupLogging() {
	logFormat := strings.ToLower(os.Getenv("LOG_FORMAT"))
	logLevel := strings.ToLower(os.Getenv("LOG_LEVEL"))

	switch logFormat {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	switch logLevel {
	case "debug":
		logrus.SetLevel(logrus.DebugLevel)
	case "warn", "warning":
		logrus.SetLevel(logrus.WarnLevel)
	case "error":
		logrus.SetLevel(logrus.ErrorLevel)
	default:
		logrus.SetLevel(logrus.InfoLevel)
	}

	logrus.Info("Logging configured")
}

// NewServer assembles the engine components from configuration
func NewServer(cfg config.Config) *Server {
	serverCfg := ServerConfig{
		Port:                 cfg.Port,
		Timeout:              cfg.RequestTimeout,
		EnableCircuitBreaker: getEnvBool("ENABLE_CIRCUIT_BREAKER", true),
		EnableMetrics:        getEnvBool("ENABLE_METRICS", true),
		EnableSigning:        getEnvBool("ENABLE_SIGNING", false),
	}

	reg := registry.New()
	chain := fetch.NewFullnodeClient(cfg.FullnodeURL, reg)
	directory := fetch.NewDirectoryClient(cfg.LlamaURL, directoryChain)
	yields := fetch.NewYieldsClient(cfg.YieldsURL, directoryChain, cfg.PoolCacheTTL, nil)
	prices := fetch.NewPriceClient(cfg.PythURL)

	engine := apy.New().
		WithStrategyAge(cfg.StrategyAgeDays).
		WithClampMax(cfg.APYClampMax)

	pipeline := aggregate.New(reg, chain, directory, yields, prices, engine, cfg.RequestTimeout)
	protoRtr := router.New(reg, fetch.NewSignerClient(cfg.SignerURL))

	s := &Server{
		config:    serverCfg,
		pipeline:  pipeline,
		protoRtr:  protoRtr,
		chain:     chain,
		directory: directory,
		yields:    yields,
		prices:    prices,
	}

	if serverCfg.EnableCircuitBreaker {
		s.breaker = circuitbreaker.New(circuitbreaker.Thresholds{
			MaxAPY:       cfg.MaxPoolAPY,
			MaxTVLChange: cfg.MaxTVLChange,
			MinPools:     cfg.MinPoolCount,
		}).WithResetDelay(cfg.CircuitResetDelay).
			WithTripCallback(func(reason string) {
				logrus.Warnf("Pool data circuit tripped: %s", reason)
			})
	}

	if serverCfg.EnableMetrics {
		s.metrics = registerMetrics()
	}

	if serverCfg.EnableSigning {
		integrity, err := security.NewDataIntegrityService(getDurationOrDefault("SIGNATURE_VALIDITY", 24*time.Hour))
		if err != nil {
			logrus.Warnf("Failed to initialize data integrity service: %v", err)
		} else {
			s.integrity = integrity
		}
	}

	if cfg.WebhookURL != "" {
		s.exporter = export.New(export.Config{
			WebhookURL:     cfg.WebhookURL,
			WebhookAPIKey:  cfg.WebhookAPIKey,
			BatchSize:      getEnvInt("EXPORT_BATCH_SIZE", 20),
			ExportInterval: getDurationOrDefault("EXPORT_INTERVAL", time.Minute),
		})
	}

	rps := getEnvFloat("RATE_LIMIT_RPS", 10.0)
	burst := getEnvInt("RATE_LIMIT_BURST", 20)
	s.rateLimit = rate.NewLimiter(rate.Limit(rps), burst)

	logrus.WithFields(logrus.Fields{
		"port":            serverCfg.Port,
		"timeout":         serverCfg.Timeout,
		"circuit_breaker": serverCfg.EnableCircuitBreaker,
		"metrics":         serverCfg.EnableMetrics,
		"signing":         serverCfg.EnableSigning,
	}).Info("Server initialized")

	return s
}

// Start begins the HTTP server and sets up graceful shutdown
func (s *Server) Start() {
	mux := http.NewServeMux()

	mux.HandleFunc("/snapshot", s.handleSnapshot)
	mux.HandleFunc("/positions", s.handlePositions)
	mux.HandleFunc("/prices", s.handlePrices)
	mux.HandleFunc("/deposit", s.handleDeposit)
	mux.HandleFunc("/withdraw", s.handleWithdraw)
	mux.HandleFunc("/zap", s.handleZap)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/circuit", s.handleCircuitStatus)

	s.server = &http.Server{
		Addr:         ":" + s.config.Port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logrus.Infof("Server starting on port %s", s.config.Port)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("Error starting server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.exporter != nil {
		s.exporter.Close()
	}
	if err := s.server.Shutdown(ctx); err != nil {
		logrus.Fatalf("Server shutdown failed: %v", err)
	}

	logrus.Info("Server stopped")
}

// allow applies the rate limiter to one request
func (s *Server) allow(w http.ResponseWriter, endpoint string) bool {
	if s.rateLimit.Allow() {
		return true
	}
	s.errorResponse(w, endpoint, http.StatusTooManyRequests, "Rate limit exceeded")
	return false
}

// handleSnapshot serves the aggregated snapshot, optionally joined with a
// wallet's position.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if !s.allow(w, "snapshot") {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.config.Timeout*3)
	defer cancel()

	// Guard the pool listing quality before trusting a fresh snapshot.
	// An open circuit falls back to the last accepted snapshot.
	if s.config.EnableCircuitBreaker && s.breaker != nil {
		pools, err := s.yields.Pools(ctx, "")
		checkErr := err
		if checkErr == nil {
			checkErr = s.breaker.Check(pools)
		}
		if s.metrics != nil {
			s.metrics.circuitState.Set(float64(s.breaker.GetState()))
		}
		if checkErr != nil {
			logrus.Warnf("Pool data rejected: %v", checkErr)
			s.mu.RLock()
			last := s.lastSnapshot
			s.mu.RUnlock()
			if last != nil {
				logrus.Info("Serving last known good snapshot")
				s.writeSnapshot(w, "snapshot", last, start)
				return
			}
		}
	}

	snapshot, err := s.pipeline.GetSnapshot(ctx, r.URL.Query().Get("wallet"))
	if err != nil {
		s.errorResponse(w, "snapshot", http.StatusBadGateway, fmt.Sprintf("Snapshot failed: %v", err))
		return
	}

	s.mu.Lock()
	s.lastSnapshot = snapshot
	s.mu.Unlock()

	if s.metrics != nil {
		var totalTVL float64
		for _, p := range snapshot.Protocols {
			if p != nil {
				totalTVL += p.TVL
			} else {
				s.metrics.branchFailures.WithLabelValues("protocol_detail").Inc()
			}
		}
		s.metrics.snapshotTVL.Set(totalTVL)
	}

	if s.exporter != nil {
		s.exporter.Add(snapshot)
	}

	s.writeSnapshot(w, "snapshot", snapshot, start)
}

// writeSnapshot encodes a snapshot response, signing it when enabled
func (s *Server) writeSnapshot(w http.ResponseWriter, endpoint string, snapshot *model.AggregatedSnapshot, start time.Time) {
	var body interface{} = snapshot
	if s.integrity != nil {
		signed, err := s.integrity.Sign(snapshot)
		if err != nil {
			logrus.Warnf("Failed to sign snapshot: %v", err)
		} else {
			body = signed
		}
	}
	s.observe(endpoint, "success", start)
	writeJSON(w, http.StatusOK, body)
}

// handlePositions serves a wallet's classified balances with USD valuation
func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if !s.allow(w, "positions") {
		return
	}

	wallet := r.URL.Query().Get("wallet")
	if wallet == "" {
		s.errorResponse(w, "positions", http.StatusBadRequest, "wallet parameter required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.config.Timeout*3)
	defer cancel()

	snapshot, err := s.pipeline.GetSnapshot(ctx, wallet)
	if err != nil {
		s.errorResponse(w, "positions", http.StatusBadGateway, fmt.Sprintf("Position lookup failed: %v", err))
		return
	}
	if snapshot.Position == nil {
		s.errorResponse(w, "positions", http.StatusBadGateway, "Balance fetch failed for wallet")
		return
	}

	s.observe("positions", "success", start)
	writeJSON(w, http.StatusOK, snapshot.Position)
}

// handlePrices serves point-in-time quotes for the requested symbols
func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if !s.allow(w, "prices") {
		return
	}

	symbols := []string{"MOVE", "USDC", "USDT", "WETH"}
	if raw := r.URL.Query().Get("symbols"); raw != "" {
		symbols = strings.Split(strings.ToUpper(raw), ",")
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.config.Timeout)
	defer cancel()

	quotes := s.prices.GetPrices(ctx, symbols)
	s.observe("prices", "success", start)
	writeJSON(w, http.StatusOK, quotes)
}

// intentRequest is the body shape for deposit and withdraw commands
type intentRequest struct {
	Protocol string `json:"protocol"`
	Asset    string `json:"asset"`
	Amount   uint64 `json:"amount"`
	User     string `json:"user"`
}

// handleDeposit routes a deposit intent through the protocol router
func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	s.handleIntent(w, r, "deposit", s.protoRtr.Deposit)
}

// handleWithdraw routes a withdraw intent through the protocol router
func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	s.handleIntent(w, r, "withdraw", s.protoRtr.Withdraw)
}

// handleIntent decodes and dispatches one routed transaction command.
// Transaction failures surface loudly with their step identifier; nothing
// is retried at this layer.
func (s *Server) handleIntent(w http.ResponseWriter, r *http.Request, endpoint string, dispatch func(context.Context, string, string, uint64, string) (model.TxResult, error)) {
	start := time.Now()
	if r.Method != http.MethodPost {
		s.errorResponse(w, endpoint, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if !s.allow(w, endpoint) {
		return
	}

	var req intentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, endpoint, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.User == "" || req.Asset == "" || req.Amount == 0 {
		s.errorResponse(w, endpoint, http.StatusBadRequest, "user, asset and amount are required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.config.Timeout*2)
	defer cancel()

	result, err := dispatch(ctx, req.Protocol, req.Asset, req.Amount, req.User)
	if err != nil {
		var stepErr *router.StepError
		if errors.As(err, &stepErr) {
			s.errorResponse(w, endpoint, http.StatusBadGateway, stepErr.Error())
			return
		}
		// Resolution failures carry full protocol/asset context
		s.errorResponse(w, endpoint, http.StatusUnprocessableEntity, err.Error())
		return
	}

	s.observe(endpoint, "success", start)
	writeJSON(w, http.StatusOK, result)
}

// zapRequest is the body shape for the zap command
type zapRequest struct {
	TokenIn  string `json:"token_in"`
	TokenOut string `json:"token_out"`
	Amount   uint64 `json:"amount"`
	User     string `json:"user"`
}

// zapResponse reports the plan and execution outcome, including partial
// completion when the swap landed but add-liquidity failed
type zapResponse struct {
	Plan   *model.ZapPlan   `json:"plan"`
	Result *model.ZapResult `json:"result,omitempty"`
	Step   string           `json:"failed_step,omitempty"`
	Error  string           `json:"error,omitempty"`
}

// handleZap plans and executes the swap-then-add-liquidity sequence
func (s *Server) handleZap(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if r.Method != http.MethodPost {
		s.errorResponse(w, "zap", http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if !s.allow(w, "zap") {
		return
	}

	var req zapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, "zap", http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.User == "" || req.TokenIn == "" || req.TokenOut == "" || req.Amount == 0 {
		s.errorResponse(w, "zap", http.StatusBadRequest, "token_in, token_out, amount and user are required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.config.Timeout*3)
	defer cancel()

	reserveIn, _, err := s.chain.MeridianPoolReserves(ctx, req.TokenIn, req.TokenOut)
	if err != nil {
		s.errorResponse(w, "zap", http.StatusBadGateway, fmt.Sprintf("Reserve lookup failed: %v", err))
		return
	}

	plan, err := zap.PlanZap(req.TokenIn, req.TokenOut, new(big.Int).SetUint64(req.Amount), new(big.Int).SetUint64(reserveIn))
	if err != nil {
		s.errorResponse(w, "zap", http.StatusBadRequest, err.Error())
		return
	}

	result, err := zap.ExecuteZap(ctx, plan, s.protoRtr, req.User)
	if err != nil {
		response := zapResponse{Plan: plan, Result: result, Error: err.Error()}
		var stepErr *router.StepError
		if errors.As(err, &stepErr) {
			response.Step = string(stepErr.Step)
		}
		s.observe("zap", "error", start)
		writeJSON(w, http.StatusBadGateway, response)
		return
	}

	s.observe("zap", "success", start)
	writeJSON(w, http.StatusOK, zapResponse{Plan: plan, Result: result})
}

// handleHealth is a simple health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "OK",
		"version":   "1.0.0",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleStatus provides detailed service status information
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status":  "operational",
		"uptime":  time.Since(startTime).String(),
		"version": "1.0.0",
		"configuration": map[string]interface{}{
			"circuit_breaker": s.config.EnableCircuitBreaker,
			"metrics":         s.config.EnableMetrics,
			"signing":         s.config.EnableSigning,
		},
	}

	if s.breaker != nil {
		status["circuit_state"] = s.breaker.GetState()
	}
	if s.integrity != nil {
		status["public_key"] = s.integrity.GetPublicKey()
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.config.Timeout)
	defer cancel()
	if chainTVL, err := s.directory.GetChainTVL(ctx); err == nil {
		status["chain_tvl"] = chainTVL
	}

	writeJSON(w, http.StatusOK, status)
}

// handleMetrics exposes Prometheus metrics
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if !s.config.EnableMetrics {
		http.Error(w, "Metrics disabled", http.StatusServiceUnavailable)
		return
	}
	promhttp.Handler().ServeHTTP(w, r)
}

// handleCircuitStatus allows viewing and controlling the circuit breaker
func (s *Server) handleCircuitStatus(w http.ResponseWriter, r *http.Request) {
	if !s.config.EnableCircuitBreaker || s.breaker == nil {
		http.Error(w, "Circuit breaker not enabled", http.StatusServiceUnavailable)
		return
	}

	response := map[string]interface{}{
		"state": s.breaker.GetState(),
	}

	if r.Method == http.MethodPost && r.URL.Query().Get("action") == "reset" {
		s.breaker.Reset()
		response["message"] = "Circuit breaker reset"
		response["state"] = s.breaker.GetState()
	}

	if pools := s.breaker.LastGoodPools(); pools != nil {
		response["last_good_pool_count"] = len(pools)
	}

	writeJSON(w, http.StatusOK, response)
}

// observe records a request in the Prometheus metrics
func (s *Server) observe(endpoint, status string, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.requestCounter.WithLabelValues(endpoint, status).Inc()
	s.metrics.requestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}

// errorResponse returns a formatted error response
func (s *Server) errorResponse(w http.ResponseWriter, endpoint string, statusCode int, errorMsg string) {
	logrus.Warn(errorMsg)
	if s.metrics != nil {
		s.metrics.requestCounter.WithLabelValues(endpoint, "error").Inc()
	}
	writeJSON(w, statusCode, map[string]string{"error": errorMsg})
}

// writeJSON encodes a response body with the standard headers
func writeJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logrus.Warnf("Failed to encode response: %v", err)
	}
}
