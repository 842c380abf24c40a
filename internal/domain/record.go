package domain

// SwapData holds the two legs inferred from balance deltas: at most one
// decrease (input) and one increase (output). Amounts are decimal-scaled
// display values; raw integer math happens inside the extractor.
type SwapData struct {
	TokenIn   string  `json:"tokenIn,omitempty"`
	TokenOut  string  `json:"tokenOut,omitempty"`
	AmountIn  float64 `json:"amountIn,omitempty"`
	AmountOut float64 `json:"amountOut,omitempty"`
}

// OutputRecord is the unit written to the sink: one per signature per venue
// per process lifetime. Append-only, never updated.
type OutputRecord struct {
	Venue        string      `json:"venue"`
	Signature    string      `json:"signature"`
	Slot         int64       `json:"slot"`
	Pool         *string     `json:"pool,omitempty"`
	Instruction  string      `json:"instruction,omitempty"`
	Swap         *SwapData   `json:"swap,omitempty"`
	DetectedAtMs int64       `json:"detectedAtMs"`
	BlockTimeMs  *int64      `json:"blockTimeMs,omitempty"`
	LatencyMs    *int64      `json:"latencyMs,omitempty"`
	ChainErr     interface{} `json:"chainErr,omitempty"`
	Error        string      `json:"error,omitempty"`
	Note         string      `json:"note,omitempty"`
}

// SetLatency computes detection latency when block time is known.
// Latency is clamped at zero: clock skew between the observer and the
// chain's block timestamps must never produce a negative value.
func (r *OutputRecord) SetLatency() {
	if r.BlockTimeMs == nil {
		return
	}
	latency := r.DetectedAtMs - *r.BlockTimeMs
	if latency < 0 {
		latency = 0
	}
	r.LatencyMs = &latency
}
