package indengine

import "quantlab/internal/model"

// ComputeRequest asks for one indicator instance over a bar series. Bars
// are taken inline when present; otherwise they are loaded from the bar
// store by Symbol/TF and the optional [From, To] time range. A positive
// Resample aggregates the bars into that many seconds per bar first.
type ComputeRequest struct {
	Instance model.Instance `json:"instance"`
	Bars     []model.Bar    `json:"bars,omitempty"`
	Aux      *model.Aux     `json:"aux,omitempty"`

	Symbol string `json:"symbol,omitempty"`
	TF     int    `json:"tf,omitempty"`
	From   int64  `json:"from,omitempty"`
	To     int64  `json:"to,omitempty"`

	Resample int64 `json:"resample,omitempty"`
}

// ComputeResponse is one computed result. Result-level failures are carried
// in Result.Error.
type ComputeResponse struct {
	Result *model.Result `json:"result"`
	Cached bool          `json:"cached"`
}

// BatchRequest is the body of POST /v1/compute/batch.
type BatchRequest struct {
	Requests []ComputeRequest `json:"requests"`
}

// BatchResponse holds one response per request, in request order.
type BatchResponse struct {
	Results []ComputeResponse `json:"results"`
}

// WriteBarsRequest is the body of POST /v1/bars.
type WriteBarsRequest struct {
	Symbol string      `json:"symbol"`
	TF     int         `json:"tf"`
	Bars   []model.Bar `json:"bars"`
}

// wsMessage is the envelope for websocket traffic in both directions.
type wsMessage struct {
	Type  string `json:"type"`
	ReqID string `json:"req_id,omitempty"`
	Ping  int64  `json:"ping,omitempty"`

	// client → server
	Request  *ComputeRequest  `json:"request,omitempty"`
	Requests []ComputeRequest `json:"requests,omitempty"`

	// SUBSCRIBE filters; empty matches any
	Kind string `json:"kind,omitempty"`
	ID   string `json:"id,omitempty"`

	// server → client
	Result  *model.Result     `json:"result,omitempty"`
	Results []ComputeResponse `json:"results,omitempty"`
	Cached  bool              `json:"cached,omitempty"`
	Error   string            `json:"error,omitempty"`
}
