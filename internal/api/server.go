package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"govwatch/internal/contracts"
	"govwatch/internal/governance"
	"govwatch/internal/model"
	"govwatch/internal/storage"
)

// Governance is the derivation surface the API exposes.
type Governance interface {
	VotersFor(ctx context.Context, proposalID uint64) (model.ProposalVotes, error)
	QuorumRequired(ctx context.Context, proposalID uint64) (model.ProposalQuorumState, error)
	Stage(ctx context.Context, proposalID uint64) (governance.StageReport, error)
	ApproversFor(ctx context.Context, proposalID uint64) (model.ApprovalSet, error)
}

// QuorumResponse pairs the quorum requirement with the current tally.
type QuorumResponse struct {
	model.ProposalQuorumState
	Totals  model.VoteAmounts `json:"totals"`
	Passing bool              `json:"passing"`
}

// Server is the read-only HTTP query API.
type Server struct {
	gov      Governance
	store    storage.Store
	gatherer prometheus.Gatherer
	logger   *zap.Logger
	router   *mux.Router
}

// NewServer wires the routes. A nil gatherer disables /metrics.
func NewServer(gov Governance, store storage.Store, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{gov: gov, store: store, gatherer: gatherer, logger: logger}
	s.router = s.newRouter()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) newRouter() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/proposals/{id:[0-9]+}/votes", s.handleVotes).Methods(http.MethodGet)
	r.HandleFunc("/proposals/{id:[0-9]+}/quorum", s.handleQuorum).Methods(http.MethodGet)
	r.HandleFunc("/proposals/{id:[0-9]+}/stage", s.handleStage).Methods(http.MethodGet)
	r.HandleFunc("/proposals/{id:[0-9]+}/approvals", s.handleApprovals).Methods(http.MethodGet)
	r.HandleFunc("/watermarks/{chainId:[0-9]+}", s.handleWatermarks).Methods(http.MethodGet)
	r.HandleFunc("/watermarks/{chainId:[0-9]+}/{event}", s.handleWatermark).Methods(http.MethodGet)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	return r
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVotes(w http.ResponseWriter, r *http.Request) {
	id, ok := s.proposalID(w, r)
	if !ok {
		return
	}
	votes, err := s.gov.VotersFor(r.Context(), id)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, votes)
}

func (s *Server) handleQuorum(w http.ResponseWriter, r *http.Request) {
	id, ok := s.proposalID(w, r)
	if !ok {
		return
	}
	state, err := s.gov.QuorumRequired(r.Context(), id)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	votes, err := s.gov.VotersFor(r.Context(), id)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, QuorumResponse{
		ProposalQuorumState: state,
		Totals:              votes.Totals,
		Passing:             governance.IsPassingQuorum(votes.Totals, state.QuorumVotesRequired),
	})
}

func (s *Server) handleStage(w http.ResponseWriter, r *http.Request) {
	id, ok := s.proposalID(w, r)
	if !ok {
		return
	}
	report, err := s.gov.Stage(r.Context(), id)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleApprovals(w http.ResponseWriter, r *http.Request) {
	id, ok := s.proposalID(w, r)
	if !ok {
		return
	}
	set, err := s.gov.ApproversFor(r.Context(), id)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, set)
}

func (s *Server) handleWatermarks(w http.ResponseWriter, r *http.Request) {
	chainID, err := strconv.ParseUint(mux.Vars(r)["chainId"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid chain id")
		return
	}
	marks, err := s.store.Watermarks(r.Context(), chainID)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	out := make(map[string]uint64, len(marks))
	for key, block := range marks {
		out[key.EventName] = block
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleWatermark(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	chainID, err := strconv.ParseUint(vars["chainId"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid chain id")
		return
	}
	name, ok := contracts.ParseEventName(vars["event"])
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown event "+vars["event"])
		return
	}
	key := model.WatermarkKey{ChainID: chainID, EventName: string(name)}
	block, found, err := s.store.GetWatermark(r.Context(), key)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "no watermark for "+key.String())
		return
	}
	writeJSON(w, http.StatusOK, model.SyncWatermark{WatermarkKey: key, BlockNumber: block})
}

func (s *Server) proposalID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid proposal id")
		return 0, false
	}
	return id, true
}

func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, governance.ErrProposalNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, governance.ErrStageRegression):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}
