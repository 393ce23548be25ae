package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/uhyunpark/cratex/pkg/basket"
	"github.com/uhyunpark/cratex/pkg/engine"
	"github.com/uhyunpark/cratex/pkg/metrics"
	"github.com/uhyunpark/cratex/pkg/storage"
	"github.com/uhyunpark/cratex/pkg/util"
)

const (
	maxBodyBytes         = 1 << 20
	defaultSubmitTimeout = 10 * time.Minute
)

// Executor runs basket buys and sells.
type Executor interface {
	Buy(ctx context.Context, req engine.BuyRequest) (*engine.Result, error)
	Sell(ctx context.Context, req engine.SellRequest) (*engine.Result, error)
}

// Config holds the server's collaborators. Tracker may be nil, in which
// case executions are not followed after submission.
type Config struct {
	Executor        Executor
	Tracker         *engine.Tracker
	Catalog         *basket.Catalog
	Store           storage.Store
	Wallet          engine.Wallet
	AccountID       string
	ChainID         *big.Int
	PaymentDecimals int32
	CORSOrigins     []string
	// SubmitTimeout bounds each buy or sell. Zero means defaultSubmitTimeout.
	SubmitTimeout   time.Duration
	Logger          *zap.SugaredLogger
}

// Server handles REST API and WebSocket connections
type Server struct {
	cfg    Config
	router *mux.Router
	hub    *Hub

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	tracking map[string]*engine.Handle
}

func NewServer(cfg Config) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:      cfg,
		router:   mux.NewRouter(),
		hub:      NewHub(),
		ctx:      ctx,
		cancel:   cancel,
		tracking: make(map[string]*engine.Handle),
	}
	s.hub.Logger = cfg.Logger
	go s.hub.Run(ctx)

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Crate endpoints
	api.HandleFunc("/crates", s.handleListCrates).Methods("GET")
	api.HandleFunc("/crates/{id}", s.handleGetCrate).Methods("GET")
	api.HandleFunc("/crates/{id}/buy", s.handleBuy).Methods("POST")
	api.HandleFunc("/crates/{id}/sell", s.handleSell).Methods("POST")

	// Execution history and order status
	api.HandleFunc("/executions/{id}", s.handleGetExecution).Methods("GET")
	api.HandleFunc("/wallets/{address}/executions", s.handleWalletExecutions).Methods("GET")
	api.HandleFunc("/orders/status", s.handleOrderStatus).Methods("GET")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.Handle("/metrics", metrics.Handler()).Methods("GET")
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the router wrapped in CORS.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

// Start serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log().Infow("api_listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.Close()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		s.Close()
		return err
	}
}

// Close stops the hub, every status tracker and any execution still in flight.
func (s *Server) Close() {
	s.cancel()
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, h := range s.tracking {
		h.Cancel()
		delete(s.tracking, id)
	}
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleListCrates(w http.ResponseWriter, r *http.Request) {
	crates := s.cfg.Catalog.List()
	response := make([]CrateInfo, len(crates))
	for i, c := range crates {
		response[i] = crateInfo(c, s.cfg.ChainID)
	}
	respondJSON(w, response)
}

func (s *Server) handleGetCrate(w http.ResponseWriter, r *http.Request) {
	crate, err := s.cfg.Catalog.Get(mux.Vars(r)["id"])
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, crateInfo(crate, s.cfg.ChainID))
}

func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	crate, err := s.cfg.Catalog.Get(mux.Vars(r)["id"])
	if err != nil {
		s.respondErr(w, err)
		return
	}

	var req BuyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	amount, err := engine.ParseUnits(req.Amount, s.cfg.PaymentDecimals)
	if err != nil {
		s.respondErr(w, err)
		return
	}

	ctx, cancel := s.executionContext(r)
	defer cancel()
	res, err := s.cfg.Executor.Buy(ctx, engine.BuyRequest{
		Wallet:       s.cfg.Wallet,
		AccountID:    s.cfg.AccountID,
		CrateID:      crate.ID,
		Constituents: crate.Constituents,
		TotalAmount:  amount,
	})
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondExecution(w, res)
}

func (s *Server) handleSell(w http.ResponseWriter, r *http.Request) {
	crate, err := s.cfg.Catalog.Get(mux.Vars(r)["id"])
	if err != nil {
		s.respondErr(w, err)
		return
	}

	var req SellRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Holdings) == 0 {
		respondError(w, http.StatusBadRequest, "invalid request body", "holdings must not be empty")
		return
	}

	holdings := make([]engine.Holding, 0, len(req.Holdings))
	seen := make(map[string]bool, len(req.Holdings))
	for _, h := range req.Holdings {
		if seen[h.StockID] {
			respondError(w, http.StatusBadRequest, "duplicate stock", fmt.Sprintf("%s is listed more than once", h.StockID))
			return
		}
		seen[h.StockID] = true
		c, ok := crate.Find(h.StockID)
		if !ok {
			respondError(w, http.StatusBadRequest, "unknown stock", fmt.Sprintf("%s is not part of crate %s", h.StockID, crate.ID))
			return
		}
		shares, err := decimal.NewFromString(h.Shares)
		if err != nil || !shares.IsPositive() {
			respondError(w, http.StatusBadRequest, "invalid shares", fmt.Sprintf("%s: %q", h.StockID, h.Shares))
			return
		}
		holdings = append(holdings, engine.Holding{Constituent: c, Shares: shares})
	}

	sellReq := engine.SellRequest{
		Wallet:    s.cfg.Wallet,
		AccountID: s.cfg.AccountID,
		CrateID:   crate.ID,
		Holdings:  holdings,
	}
	if req.Amount != "" {
		amount, err := engine.ParseUnits(req.Amount, s.cfg.PaymentDecimals)
		if err != nil {
			s.respondErr(w, err)
			return
		}
		sellReq.RedeemAmount = amount
	}

	ctx, cancel := s.executionContext(r)
	defer cancel()
	res, err := s.cfg.Executor.Sell(ctx, sellReq)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondExecution(w, res)
}

func (s *Server) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	rec, err := s.cfg.Store.LoadExecution(mux.Vars(r)["id"])
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, rec)
}

func (s *Server) handleWalletExecutions(w http.ResponseWriter, r *http.Request) {
	addressStr := mux.Vars(r)["address"]
	if !common.IsHexAddress(addressStr) {
		respondError(w, http.StatusBadRequest, "invalid address", "")
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid limit", v)
			return
		}
		limit = n
	}

	recs, err := s.cfg.Store.ListByWallet(common.HexToAddress(addressStr), limit)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	if recs == nil {
		recs = []*engine.Record{}
	}
	respondJSON(w, recs)
}

func (s *Server) handleOrderStatus(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Tracker == nil {
		respondError(w, http.StatusServiceUnavailable, "status tracking disabled", "")
		return
	}
	raw := r.URL.Query().Get("ids")
	var ids []*big.Int
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, ok := new(big.Int).SetString(part, 10)
		if !ok || id.Sign() < 0 {
			respondError(w, http.StatusBadRequest, "invalid order id", part)
			return
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		respondError(w, http.StatusBadRequest, "missing ids", "expected ids=1,2,3")
		return
	}
	respondJSON(w, s.cfg.Tracker.Status(r.Context(), ids))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Status streaming
// ==============================

// trackExecution follows the orders of res and broadcasts every snapshot
// on the execution's channel until they all reach a terminal state.
func (s *Server) trackExecution(res *engine.Result) {
	if s.cfg.Tracker == nil || len(res.Orders) == 0 {
		return
	}
	h := s.cfg.Tracker.Track(s.ctx, res.ID, res.OrderIDs())

	s.mu.Lock()
	s.tracking[res.ID] = h
	s.mu.Unlock()

	channel := executionChannel(res.ID)
	go func() {
		for snap := range h.Updates() {
			s.hub.BroadcastToChannel(channel, WSMessage{Type: "execution_status", Data: snap})
		}
		final, err := h.Wait(context.Background())
		if err != nil && !errors.Is(err, context.Canceled) {
			s.log().Warnw("execution_tracking_stopped", "execution", res.ID, "state", final.State, "err", err)
		}
		s.mu.Lock()
		delete(s.tracking, res.ID)
		s.mu.Unlock()
	}()
}

// ==============================
// Helper Functions
// ==============================

func (s *Server) respondExecution(w http.ResponseWriter, res *engine.Result) {
	s.trackExecution(res)
	respondJSON(w, ExecutionResponse{Execution: res, Channel: executionChannel(res.ID)})
}

// respondErr maps engine and storage errors to HTTP statuses.
func (s *Server) respondErr(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	resp := ErrorResponse{Error: "execution failed", Message: err.Error(), Kind: engine.ErrorKind(err)}

	var inconsistent *engine.InconsistentReceiptError
	switch {
	case errors.Is(err, basket.ErrCrateNotFound), errors.Is(err, storage.ErrNotFound):
		status, resp.Error, resp.Kind = http.StatusNotFound, "not found", ""
	case errors.Is(err, engine.ErrInvalidAllocation), errors.Is(err, engine.ErrPrecisionExceeded):
		status, resp.Error = http.StatusBadRequest, "invalid request"
	case errors.Is(err, engine.ErrQuoteUnavailable):
		status, resp.Error = http.StatusBadGateway, "fee quote unavailable"
	case errors.Is(err, engine.ErrSubmissionRejected):
		status, resp.Error = http.StatusForbidden, "submission rejected"
	case errors.Is(err, engine.ErrSubmissionReverted):
		status, resp.Error = http.StatusConflict, "submission reverted"
	case errors.Is(err, engine.ErrNetwork):
		status, resp.Error = http.StatusServiceUnavailable, "network error"
	case errors.As(err, &inconsistent):
		resp.Error, resp.Reconcile, resp.TxHash = "inconsistent receipt", true, inconsistent.TxHash.Hex()
	}

	if status >= 500 {
		s.log().Errorw("api_request_failed", "kind", resp.Kind, "err", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

// executionContext detaches from the client connection, since a dropped
// client must not abandon a batch that may already be on chain. It is still
// bounded by SubmitTimeout and ends when the server closes, so a receipt
// that never arrives releases the wallet's nonce locks.
func (s *Server) executionContext(r *http.Request) (context.Context, context.CancelFunc) {
	timeout := s.cfg.SubmitTimeout
	if timeout <= 0 {
		timeout = defaultSubmitTimeout
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), timeout)
	stop := context.AfterFunc(s.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func (s *Server) log() *zap.SugaredLogger { return util.OrNop(s.cfg.Logger) }

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return false
	}
	return true
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}
