package monitor

import (
	"math/big"

	"solana-pool-watch/internal/domain"
)

// ExtractSwap derives swap legs from pre/post token balance snapshots.
// Per account index, the signed change between matching entries (same
// account index, same mint) is computed on the raw integer amounts. The
// first strictly negative change becomes the input leg, the first strictly
// positive change the output leg, in encounter order of the post-balance
// list. This is a heuristic for simple two-leg swaps, not a multi-hop
// trade decomposition.
//
// Returns false when no leg can be inferred. Malformed entries are skipped
// rather than failing the record.
func ExtractSwap(pre, post []domain.TokenBalance) (*domain.SwapData, bool) {
	type balanceKey struct {
		account int
		mint    string
	}

	preByKey := make(map[balanceKey]domain.TokenBalance, len(pre))
	for _, b := range pre {
		key := balanceKey{b.AccountIndex, b.Mint}
		if _, dup := preByKey[key]; !dup {
			preByKey[key] = b
		}
	}

	var swap domain.SwapData
	var haveIn, haveOut bool

	for _, after := range post {
		before, ok := preByKey[balanceKey{after.AccountIndex, after.Mint}]
		if !ok {
			continue
		}

		preAmount, ok := parseRawAmount(before.Amount)
		if !ok {
			continue
		}
		postAmount, ok := parseRawAmount(after.Amount)
		if !ok {
			continue
		}

		delta := new(big.Int).Sub(postAmount, preAmount)
		switch delta.Sign() {
		case -1:
			if !haveIn {
				swap.TokenIn = after.Mint
				swap.AmountIn = scaleAmount(new(big.Int).Neg(delta), after.Decimals)
				haveIn = true
			}
		case 1:
			if !haveOut {
				swap.TokenOut = after.Mint
				swap.AmountOut = scaleAmount(delta, after.Decimals)
				haveOut = true
			}
		}

		if haveIn && haveOut {
			break
		}
	}

	if !haveIn && !haveOut {
		return nil, false
	}
	return &swap, true
}

// parseRawAmount parses a raw undecimalized token amount string.
func parseRawAmount(s string) (*big.Int, bool) {
	if s == "" {
		return nil, false
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok || n.Sign() < 0 {
		return nil, false
	}
	return n, true
}

// scaleAmount converts a raw integer amount to a display value using the
// token's declared decimal count. Scaling happens only here, at the output
// boundary; all comparisons upstream use integer arithmetic.
func scaleAmount(raw *big.Int, decimals int) float64 {
	if decimals < 0 {
		decimals = 0
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	value := new(big.Float).Quo(new(big.Float).SetInt(raw), new(big.Float).SetInt(scale))
	f, _ := value.Float64()
	return f
}
