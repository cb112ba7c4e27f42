// Package api exposes the REST and WebSocket surface: signal reads,
// instrument CRUD and health.
package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"signal-enginev1/internal/engine"
	"signal-enginev1/internal/model"
)

// SignalEvaluator runs one on-demand evaluation.
type SignalEvaluator interface {
	Evaluate(ctx context.Context, inst model.Instrument) (*model.SignalResult, error)
}

// InstrumentStore is the persistence surface the handlers need.
type InstrumentStore interface {
	Create(ctx context.Context, inst model.Instrument) (model.Instrument, error)
	Update(ctx context.Context, inst model.Instrument) error
	Delete(ctx context.Context, id int64) error
	Get(ctx context.Context, id int64) (model.Instrument, error)
	GetByToken(ctx context.Context, token, exchange, interval string) (model.Instrument, error)
	List(ctx context.Context) ([]model.Instrument, error)
	Active(ctx context.Context) ([]model.Instrument, error)
}

// Server holds the handler dependencies.
type Server struct {
	engine SignalEvaluator
	store  InstrumentStore
	ws     http.HandlerFunc
	health http.Handler
	log    *slog.Logger
}

// NewServer wires the handlers. ws and health may be nil, which disables
// those routes.
func NewServer(eval SignalEvaluator, store InstrumentStore, ws http.HandlerFunc, health http.Handler, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{engine: eval, store: store, ws: ws, health: health, log: log}
}

// handleSignals evaluates every active instrument and returns one row per
// instrument. Per-instrument failures degrade to an error row instead of
// failing the whole listing.
func (s *Server) handleSignals(w http.ResponseWriter, r *http.Request) {
	instruments, err := s.store.Active(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "instrument lookup failed", "")
		return
	}

	resp := signalsResponse{Signals: make([]signalRow, 0, len(instruments))}
	for _, inst := range instruments {
		row := signalRow{Key: inst.Key(), Symbol: inst.TradingSymbol}
		res, err := s.engine.Evaluate(r.Context(), inst)
		if err != nil {
			row.Error = "no signal available"
			row.Kind = engine.ErrorKind(err)
		} else {
			row.Result = res
		}
		resp.Signals = append(resp.Signals, row)
	}
	resp.Count = len(resp.Signals)
	writeJSON(w, http.StatusOK, resp)
}

// handleSignalDebug evaluates a single instrument by symbol token and
// returns the full result, including the trailing candles and crossover
// timestamp. Pipeline rejections come back as a structured 200 so the
// dashboard can show why no signal exists; transport failures are a 502.
func (s *Server) handleSignalDebug(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	exchange := queryDefault(r, "exchange", "NSE")
	interval := queryDefault(r, "interval", "ONE_MINUTE")

	inst, err := s.store.GetByToken(r.Context(), token, exchange, interval)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "unknown instrument", "")
			return
		}
		writeError(w, http.StatusInternalServerError, "instrument lookup failed", "")
		return
	}

	res, err := s.engine.Evaluate(r.Context(), inst)
	if err != nil {
		kind := engine.ErrorKind(err)
		if kind == "fetch_failed" {
			writeError(w, http.StatusBadGateway, "candle fetch failed", kind)
			return
		}
		writeJSON(w, http.StatusOK, errorResponse{Error: err.Error(), Kind: kind})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleListInstruments(w http.ResponseWriter, r *http.Request) {
	instruments, err := s.store.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "instrument lookup failed", "")
		return
	}
	if instruments == nil {
		instruments = []model.Instrument{}
	}
	writeJSON(w, http.StatusOK, instruments)
}

func (s *Server) handleCreateInstrument(w http.ResponseWriter, r *http.Request) {
	var req instrumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", "")
		return
	}
	if req.SymbolToken == "" || req.TradingSymbol == "" {
		writeError(w, http.StatusBadRequest, "symbol_token and trading_symbol are required", "")
		return
	}

	created, err := s.store.Create(r.Context(), req.toModel())
	if err != nil {
		writeError(w, http.StatusConflict, "instrument already exists or store rejected it", "")
		return
	}
	s.log.Info("instrument created", slog.String("key", created.Key()), slog.Int64("id", created.ID))
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetInstrument(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	inst, err := s.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "unknown instrument", "")
			return
		}
		writeError(w, http.StatusInternalServerError, "instrument lookup failed", "")
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

func (s *Server) handleUpdateInstrument(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req instrumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", "")
		return
	}

	inst := req.toModel()
	inst.ID = id
	if err := s.store.Update(r.Context(), inst); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "unknown instrument", "")
			return
		}
		writeError(w, http.StatusInternalServerError, "instrument update failed", "")
		return
	}
	s.log.Info("instrument updated", slog.Int64("id", id))
	writeJSON(w, http.StatusOK, inst)
}

func (s *Server) handleDeleteInstrument(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.store.Delete(r.Context(), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "unknown instrument", "")
			return
		}
		writeError(w, http.StatusInternalServerError, "instrument delete failed", "")
		return
	}
	s.log.Info("instrument deleted", slog.Int64("id", id))
	w.WriteHeader(http.StatusNoContent)
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid instrument id", "")
		return 0, false
	}
	return id, true
}

func queryDefault(r *http.Request, key, def string) string {
	if v := r.URL.Query().Get(key); v != "" {
		return v
	}
	return def
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg, kind string) {
	writeJSON(w, code, errorResponse{Error: msg, Kind: kind})
}
