package api

import "signal-enginev1/internal/model"

// signalRow is one entry in the GET /api/v1/signals listing. Either Result
// or Error is set, never both.
type signalRow struct {
	Key    string              `json:"key"`
	Symbol string              `json:"symbol"`
	Result *model.SignalResult `json:"result,omitempty"`
	Error  string              `json:"error,omitempty"`
	Kind   string              `json:"kind,omitempty"`
}

// signalsResponse is the GET /api/v1/signals payload.
type signalsResponse struct {
	Signals []signalRow `json:"signals"`
	Count   int         `json:"count"`
}

// errorResponse is the generic error payload. Kind carries the machine
// readable classification (empty_input, insufficient_data,
// malformed_candle, fetch_failed) where one applies.
type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// instrumentRequest is the POST/PUT body for instrument CRUD. Zero strategy
// fields fall back to service defaults at evaluation time.
type instrumentRequest struct {
	SymbolToken    string `json:"symbol_token"`
	TradingSymbol  string `json:"trading_symbol"`
	Exchange       string `json:"exchange"`
	Interval       string `json:"interval"`
	ShortSpan      int    `json:"short_span"`
	LongSpan       int    `json:"long_span"`
	CandleCount    int    `json:"candle_count"`
	TrailingWindow int    `json:"trailing_window"`
	Active         *bool  `json:"is_active"`
}

func (r *instrumentRequest) toModel() model.Instrument {
	inst := model.Instrument{
		SymbolToken:    r.SymbolToken,
		TradingSymbol:  r.TradingSymbol,
		Exchange:       r.Exchange,
		Interval:       r.Interval,
		ShortSpan:      r.ShortSpan,
		LongSpan:       r.LongSpan,
		CandleCount:    r.CandleCount,
		TrailingWindow: r.TrailingWindow,
		Active:         true,
	}
	if inst.Exchange == "" {
		inst.Exchange = "NSE"
	}
	if inst.Interval == "" {
		inst.Interval = "ONE_MINUTE"
	}
	if r.Active != nil {
		inst.Active = *r.Active
	}
	return inst
}
