package domain

// RawNotification is one event observed on a venue's subscription stream.
// Produced by a subscription worker, consumed once by the coordinator.
type RawNotification struct {
	VenueID      string
	Signature    string   // unique transaction identifier
	Slot         int64    // slot the notification was observed at
	DetectedAtMs int64    // wall-clock capture time in milliseconds
	Logs         []string // inline log lines, may be empty
	Err          interface{} // chain-level failure reported with the notification
}

// ResolvedTransaction is the view of a fetched transaction that the pipeline
// needs. Built once from an RPC response, used to produce one OutputRecord,
// then discarded.
type ResolvedTransaction struct {
	Signature       string
	Slot            int64
	BlockTimeMs     *int64   // nil when the chain has not timestamped the block yet
	AccountsTouched []string // deduplicated, includes lookup-table addresses
	Logs            []string
	PreBalances     []TokenBalance
	PostBalances    []TokenBalance
	Err             interface{} // chain-level error from the transaction itself
}

// TokenBalance is a per-account token amount snapshot taken before or after
// a transaction.
type TokenBalance struct {
	AccountIndex int
	Mint         string
	Amount       string // raw undecimalized integer amount, as reported
	Decimals     int
}
