package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"signal-enginev1/internal/model"
	"signal-enginev1/internal/pipeline"
)

type stubEvaluator struct {
	res *model.SignalResult
	err error
}

func (s *stubEvaluator) Evaluate(_ context.Context, _ model.Instrument) (*model.SignalResult, error) {
	return s.res, s.err
}

type memStore struct {
	instruments map[int64]model.Instrument
	nextID      int64
}

func newMemStore(instruments ...model.Instrument) *memStore {
	s := &memStore{instruments: make(map[int64]model.Instrument), nextID: 1}
	for _, inst := range instruments {
		inst.ID = s.nextID
		s.instruments[s.nextID] = inst
		s.nextID++
	}
	return s
}

func (s *memStore) Create(_ context.Context, inst model.Instrument) (model.Instrument, error) {
	for _, existing := range s.instruments {
		if existing.SymbolToken == inst.SymbolToken && existing.Exchange == inst.Exchange &&
			existing.Interval == inst.Interval {
			return model.Instrument{}, errors.New("duplicate key")
		}
	}
	inst.ID = s.nextID
	s.instruments[s.nextID] = inst
	s.nextID++
	return inst, nil
}

func (s *memStore) Update(_ context.Context, inst model.Instrument) error {
	if _, ok := s.instruments[inst.ID]; !ok {
		return sql.ErrNoRows
	}
	s.instruments[inst.ID] = inst
	return nil
}

func (s *memStore) Delete(_ context.Context, id int64) error {
	if _, ok := s.instruments[id]; !ok {
		return sql.ErrNoRows
	}
	delete(s.instruments, id)
	return nil
}

func (s *memStore) Get(_ context.Context, id int64) (model.Instrument, error) {
	inst, ok := s.instruments[id]
	if !ok {
		return model.Instrument{}, sql.ErrNoRows
	}
	return inst, nil
}

func (s *memStore) GetByToken(_ context.Context, token, exchange, interval string) (model.Instrument, error) {
	for _, inst := range s.instruments {
		if inst.SymbolToken == token && inst.Exchange == exchange && inst.Interval == interval {
			return inst, nil
		}
	}
	return model.Instrument{}, sql.ErrNoRows
}

func (s *memStore) List(_ context.Context) ([]model.Instrument, error) {
	var out []model.Instrument
	for _, inst := range s.instruments {
		out = append(out, inst)
	}
	return out, nil
}

func (s *memStore) Active(_ context.Context) ([]model.Instrument, error) {
	var out []model.Instrument
	for _, inst := range s.instruments {
		if inst.Active {
			out = append(out, inst)
		}
	}
	return out, nil
}

func testInstrument() model.Instrument {
	return model.Instrument{
		SymbolToken:   "3045",
		TradingSymbol: "SBIN-EQ",
		Exchange:      "NSE",
		Interval:      "ONE_MINUTE",
		Active:        true,
	}
}

func testResult() *model.SignalResult {
	return &model.SignalResult{
		Signal:    model.ActionBuy,
		Timestamp: time.Date(2024, 1, 15, 9, 20, 0, 0, time.UTC),
		LastClose: 101.5,
	}
}

func doRequest(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)
	return rec
}

func TestHandleSignals(t *testing.T) {
	srv := NewServer(&stubEvaluator{res: testResult()}, newMemStore(testInstrument()), nil, nil, nil)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/signals", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rec.Code)
	}

	var resp signalsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Count != 1 || len(resp.Signals) != 1 {
		t.Fatalf("got %d rows, want 1", resp.Count)
	}
	row := resp.Signals[0]
	if row.Symbol != "SBIN-EQ" || row.Result == nil || row.Result.Signal != model.ActionBuy {
		t.Errorf("row: %+v", row)
	}
}

func TestHandleSignals_PerInstrumentFailureDegrades(t *testing.T) {
	srv := NewServer(&stubEvaluator{err: pipeline.ErrInsufficientData}, newMemStore(testInstrument()), nil, nil, nil)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/signals", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200 despite row error", rec.Code)
	}

	var resp signalsResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	row := resp.Signals[0]
	if row.Error != "no signal available" || row.Kind != "insufficient_data" {
		t.Errorf("row: %+v", row)
	}
	if row.Result != nil {
		t.Error("failed row must not carry a result")
	}
}

func TestHandleSignalDebug(t *testing.T) {
	srv := NewServer(&stubEvaluator{res: testResult()}, newMemStore(testInstrument()), nil, nil, nil)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/signal/3045", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rec.Code)
	}
	var res model.SignalResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if res.Signal != model.ActionBuy {
		t.Errorf("signal: got %s, want BUY", res.Signal)
	}
}

func TestHandleSignalDebug_UnknownToken(t *testing.T) {
	srv := NewServer(&stubEvaluator{res: testResult()}, newMemStore(), nil, nil, nil)
	rec := doRequest(t, srv, http.MethodGet, "/api/v1/signal/9999", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", rec.Code)
	}
}

func TestHandleSignalDebug_PipelineErrorIsStructured200(t *testing.T) {
	srv := NewServer(&stubEvaluator{err: pipeline.ErrEmptyInput}, newMemStore(testInstrument()), nil, nil, nil)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/signal/3045", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200 for a pipeline rejection", rec.Code)
	}
	var resp errorResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Kind != "empty_input" {
		t.Errorf("kind: got %q, want empty_input", resp.Kind)
	}
}

func TestHandleSignalDebug_FetchFailureIs502(t *testing.T) {
	srv := NewServer(&stubEvaluator{err: errors.New("dial tcp: timeout")}, newMemStore(testInstrument()), nil, nil, nil)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/signal/3045", nil)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status: got %d, want 502", rec.Code)
	}
	var resp errorResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Kind != "fetch_failed" {
		t.Errorf("kind: got %q, want fetch_failed", resp.Kind)
	}
}

func TestInstrumentCRUD(t *testing.T) {
	store := newMemStore()
	srv := NewServer(&stubEvaluator{res: testResult()}, store, nil, nil, nil)

	// Create
	rec := doRequest(t, srv, http.MethodPost, "/api/v1/instruments", instrumentRequest{
		SymbolToken:   "3045",
		TradingSymbol: "SBIN-EQ",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: got %d, want 201 (%s)", rec.Code, rec.Body)
	}
	var created model.Instrument
	json.Unmarshal(rec.Body.Bytes(), &created)
	if created.ID == 0 || created.Exchange != "NSE" || created.Interval != "ONE_MINUTE" || !created.Active {
		t.Errorf("created with defaults: %+v", created)
	}

	// Duplicate rejected
	rec = doRequest(t, srv, http.MethodPost, "/api/v1/instruments", instrumentRequest{
		SymbolToken:   "3045",
		TradingSymbol: "SBIN-EQ",
	})
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate create: got %d, want 409", rec.Code)
	}

	// Read back
	rec = doRequest(t, srv, http.MethodGet, "/api/v1/instruments/1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: got %d, want 200", rec.Code)
	}

	// Update
	inactive := false
	rec = doRequest(t, srv, http.MethodPut, "/api/v1/instruments/1", instrumentRequest{
		SymbolToken:   "3045",
		TradingSymbol: "SBIN-EQ",
		ShortSpan:     5,
		Active:        &inactive,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update: got %d, want 200 (%s)", rec.Code, rec.Body)
	}
	if got := store.instruments[1]; got.ShortSpan != 5 || got.Active {
		t.Errorf("update not applied: %+v", got)
	}

	// Delete
	rec = doRequest(t, srv, http.MethodDelete, "/api/v1/instruments/1", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: got %d, want 204", rec.Code)
	}
	rec = doRequest(t, srv, http.MethodGet, "/api/v1/instruments/1", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete: got %d, want 404", rec.Code)
	}
}

func TestInstrumentValidation(t *testing.T) {
	srv := NewServer(&stubEvaluator{}, newMemStore(), nil, nil, nil)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/instruments", instrumentRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing fields: got %d, want 400", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/instruments", bytes.NewBufferString("{broken"))
	w := httptest.NewRecorder()
	srv.Routes().ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("broken JSON: got %d, want 400", w.Code)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/instruments/abc", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("non-numeric id: got %d, want 400", rec.Code)
	}
}

func TestListInstruments_EmptyIsArray(t *testing.T) {
	srv := NewServer(&stubEvaluator{}, newMemStore(), nil, nil, nil)
	rec := doRequest(t, srv, http.MethodGet, "/api/v1/instruments", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	if body := rec.Body.String(); body != "[]\n" {
		t.Errorf("empty list body: got %q, want []", body)
	}
}
