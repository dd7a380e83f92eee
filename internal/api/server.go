package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"rewardLedger/internal/ledger"
	"rewardLedger/internal/metrics"
	"rewardLedger/internal/service"
)

// CallerHeader carries the address an action is performed as.
const CallerHeader = "X-Caller"

var errBadRequest = errors.New("bad request")

// Server exposes the ledger service over HTTP.
type Server struct {
	svc    *service.Service
	logger *zap.Logger
	router *chi.Mux
}

func NewServer(svc *service.Service, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{svc: svc, logger: logger, router: chi.NewRouter()}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/healthz", s.handleHealth)
	s.router.Handle("/metrics", metrics.Handler())

	s.router.Route("/v1", func(r chi.Router) {
		r.Get("/pool", s.handlePool)
		r.Get("/accounts/{address}", s.handleAccount)

		r.Post("/deposit", s.handleDeposit)
		r.Post("/withdraw", s.handleWithdraw)
		r.Post("/claim", s.handleClaim)
		r.Post("/exit", s.handleExit)

		r.Post("/admin/rate", s.handleSetRate)
		r.Post("/admin/fund", s.handleFund)
		r.Post("/admin/reconcile", s.handleReconcile)
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type amountRequest struct {
	Amount string `json:"amount"`
}

type rateRequest struct {
	Rate string `json:"rate"`
}

type reconcileRequest struct {
	Executed *bool `json:"executed"`
}

type poolResponse struct {
	Pool           string `json:"pool"`
	Owner          string `json:"owner"`
	TotalDeposited string `json:"total_deposited"`
	RewardRate     string `json:"reward_rate"`
	RewardPerUnit  string `json:"reward_per_unit"`
	LastUpdate     uint64 `json:"last_update"`
	Accounts       int    `json:"accounts"`
	Halted         string `json:"halted,omitempty"`
}

type accountResponse struct {
	Address           string `json:"address"`
	Principal         string `json:"principal"`
	Earned            string `json:"earned"`
	PendingRewards    string `json:"pending_rewards"`
	RewardPerUnitPaid string `json:"reward_per_unit_paid"`
}

type claimResponse struct {
	Paid string `json:"paid"`
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, map[string]string{"status": "ok"}, http.StatusOK)
}

func (s *Server) handlePool(w http.ResponseWriter, r *http.Request) {
	l := s.svc.Ledger()
	rpu, err := l.RewardPerUnit()
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	halted, _ := l.Halted()
	jsonResponse(w, poolResponse{
		Pool:           l.Pool().Hex(),
		Owner:          l.Owner().Hex(),
		TotalDeposited: l.TotalDeposits().Dec(),
		RewardRate:     l.RewardRate().Dec(),
		RewardPerUnit:  rpu.String(),
		LastUpdate:     l.LastUpdate(),
		Accounts:       l.AccountCount(),
		Halted:         halted,
	}, http.StatusOK)
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	addr, err := ledger.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		s.errorResponse(w, fmt.Errorf("%w: %w", errBadRequest, err))
		return
	}
	s.writeAccount(w, addr)
}

func (s *Server) writeAccount(w http.ResponseWriter, addr common.Address) {
	l := s.svc.Ledger()
	earned, err := l.Earned(addr)
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	acct, _ := l.Account(addr)
	jsonResponse(w, accountResponse{
		Address:           addr.Hex(),
		Principal:         acct.Principal.Dec(),
		Earned:            earned.Dec(),
		PendingRewards:    acct.PendingRewards.Dec(),
		RewardPerUnitPaid: acct.RewardPerUnitPaid.String(),
	}, http.StatusOK)
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	caller, amount, ok := s.callerAndAmount(w, r)
	if !ok {
		return
	}
	if err := s.svc.Deposit(r.Context(), caller, amount); err != nil {
		s.errorResponse(w, err)
		return
	}
	s.writeAccount(w, caller)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	caller, amount, ok := s.callerAndAmount(w, r)
	if !ok {
		return
	}
	if err := s.svc.Withdraw(r.Context(), caller, amount); err != nil {
		s.errorResponse(w, err)
		return
	}
	s.writeAccount(w, caller)
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	paid, err := s.svc.ClaimRewards(r.Context(), caller)
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	jsonResponse(w, claimResponse{Paid: paid.Dec()}, http.StatusOK)
}

func (s *Server) handleExit(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	if err := s.svc.Exit(r.Context(), caller); err != nil {
		s.errorResponse(w, err)
		return
	}
	s.writeAccount(w, caller)
}

func (s *Server) handleSetRate(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req rateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, fmt.Errorf("%w: decode body: %w", errBadRequest, err))
		return
	}
	rate, err := ledger.ParseAmount(req.Rate)
	if err != nil {
		s.errorResponse(w, fmt.Errorf("%w: %w", errBadRequest, err))
		return
	}
	if err := s.svc.SetRewardRate(r.Context(), caller, rate); err != nil {
		s.errorResponse(w, err)
		return
	}
	s.handlePool(w, r)
}

func (s *Server) handleFund(w http.ResponseWriter, r *http.Request) {
	caller, amount, ok := s.callerAndAmount(w, r)
	if !ok {
		return
	}
	if err := s.svc.FundRewards(r.Context(), caller, amount); err != nil {
		s.errorResponse(w, err)
		return
	}
	s.handlePool(w, r)
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req reconcileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, fmt.Errorf("%w: decode body: %w", errBadRequest, err))
		return
	}
	if req.Executed == nil {
		s.errorResponse(w, fmt.Errorf("%w: executed is required", errBadRequest))
		return
	}
	if err := s.svc.Reconcile(r.Context(), caller, *req.Executed); err != nil {
		s.errorResponse(w, err)
		return
	}
	s.handlePool(w, r)
}

func (s *Server) caller(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	caller, err := ledger.ParseAddress(r.Header.Get(CallerHeader))
	if err != nil {
		s.errorResponse(w, fmt.Errorf("%w: %s header: %w", errBadRequest, CallerHeader, err))
		return common.Address{}, false
	}
	return caller, true
}

func (s *Server) callerAndAmount(w http.ResponseWriter, r *http.Request) (common.Address, *uint256.Int, bool) {
	caller, ok := s.caller(w, r)
	if !ok {
		return common.Address{}, nil, false
	}
	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, fmt.Errorf("%w: decode body: %w", errBadRequest, err))
		return common.Address{}, nil, false
	}
	amount, err := ledger.ParseAmount(req.Amount)
	if err != nil {
		s.errorResponse(w, fmt.Errorf("%w: %w", errBadRequest, err))
		return common.Address{}, nil, false
	}
	return caller, amount, true
}

func (s *Server) errorResponse(w http.ResponseWriter, err error) {
	status := statusFor(err)
	kind := ledger.Kind(err)
	if errors.Is(err, errBadRequest) {
		kind = "bad_request"
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Int("status", status), zap.Error(err))
	}
	jsonResponse(w, errorBody{Error: err.Error(), Kind: kind}, status)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, ledger.ErrZeroAmount):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, ledger.ErrInsufficientBalance), errors.Is(err, ledger.ErrNothingToReconcile):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrHalted):
		return http.StatusServiceUnavailable
	case errors.Is(err, ledger.ErrTransferUnknown):
		return http.StatusGatewayTimeout
	case errors.Is(err, ledger.ErrOverflow):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ledger.ErrTransferFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func jsonResponse(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
