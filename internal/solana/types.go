package solana

// Transaction represents a resolved Solana transaction.
type Transaction struct {
	Slot      int64
	Signature string
	BlockTime int64 // Unix timestamp (seconds), 0 when not yet available
	Meta      *TransactionMeta
	Message   *TransactionMessage
}

// TransactionMeta contains transaction metadata.
type TransactionMeta struct {
	Err               interface{}
	LogMessages       []string
	PreTokenBalances  []TokenBalance
	PostTokenBalances []TokenBalance
	LoadedAddresses   *LoadedAddresses
}

// TransactionMessage contains parsed transaction message.
type TransactionMessage struct {
	AccountKeys []string
}

// LoadedAddresses holds accounts referenced through address lookup tables.
type LoadedAddresses struct {
	Writable []string
	Readonly []string
}

// TokenBalance is a pre/post token balance snapshot from transaction meta.
type TokenBalance struct {
	AccountIndex int
	Mint         string
	Amount       string // raw undecimalized amount
	Decimals     int
}

// AccountKeys returns all account addresses the transaction touched,
// including lookup-table addresses, deduplicated in encounter order.
func (t *Transaction) AccountKeys() []string {
	var all []string
	if t.Message != nil {
		all = append(all, t.Message.AccountKeys...)
	}
	if t.Meta != nil && t.Meta.LoadedAddresses != nil {
		all = append(all, t.Meta.LoadedAddresses.Writable...)
		all = append(all, t.Meta.LoadedAddresses.Readonly...)
	}
	seen := make(map[string]struct{}, len(all))
	keys := make([]string, 0, len(all))
	for _, k := range all {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	return keys
}
