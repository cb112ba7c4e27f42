package api

import "net/http"

// Routes builds the service mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/signals", s.handleSignals)
	mux.HandleFunc("GET /api/v1/signal/{token}", s.handleSignalDebug)

	mux.HandleFunc("GET /api/v1/instruments", s.handleListInstruments)
	mux.HandleFunc("POST /api/v1/instruments", s.handleCreateInstrument)
	mux.HandleFunc("GET /api/v1/instruments/{id}", s.handleGetInstrument)
	mux.HandleFunc("PUT /api/v1/instruments/{id}", s.handleUpdateInstrument)
	mux.HandleFunc("DELETE /api/v1/instruments/{id}", s.handleDeleteInstrument)

	if s.health != nil {
		mux.Handle("GET /api/v1/health", s.health)
	}
	if s.ws != nil {
		mux.HandleFunc("GET /ws", s.ws)
	}

	return mux
}
