package domain

import (
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// VenueConfig describes one monitored event source. Immutable after startup.
type VenueConfig struct {
	VenueID    string     // output tag, e.g. "raydium"
	Program    string     // program ID the subscription filter mentions
	Pools      []string   // pool addresses of interest; empty means match all
	Commitment Commitment // commitment level for subscribe and resolve
}

// Validate checks the venue configuration. Errors here are startup-fatal.
func (v VenueConfig) Validate() error {
	if v.VenueID == "" {
		return fmt.Errorf("venue: missing venue id")
	}
	if v.Program == "" {
		return fmt.Errorf("venue %s: missing program id", v.VenueID)
	}
	if _, err := decodeAddress(v.Program); err != nil {
		return fmt.Errorf("venue %s: invalid program id %q: %w", v.VenueID, v.Program, err)
	}
	if !v.Commitment.IsValid() {
		return fmt.Errorf("venue %s: invalid commitment %q", v.VenueID, v.Commitment)
	}
	for _, pool := range v.Pools {
		if _, err := decodeAddress(pool); err != nil {
			return fmt.Errorf("venue %s: invalid pool address %q: %w", v.VenueID, pool, err)
		}
	}
	return nil
}

// MatchPool returns the first configured pool that appears among the touched
// accounts, in configured order. The second return value reports whether the
// transaction passes the venue filter: an empty pool set matches everything
// (with no specific pool), a non-empty set requires at least one member.
// There is no fallback to a default pool: no match on a non-empty set means
// the transaction is not for this venue's pools.
func (v VenueConfig) MatchPool(accounts []string) (string, bool) {
	if len(v.Pools) == 0 {
		return "", true
	}
	touched := make(map[string]struct{}, len(accounts))
	for _, a := range accounts {
		touched[a] = struct{}{}
	}
	for _, pool := range v.Pools {
		if _, ok := touched[pool]; ok {
			return pool, true
		}
	}
	return "", false
}

// SuspiciousPools returns configured pool addresses that decode to a valid
// ed25519 curve point. Pool accounts are program-derived and sit off the
// curve, so an on-curve address is usually a wallet pasted by mistake.
// Callers log a warning; this is never fatal.
func (v VenueConfig) SuspiciousPools() []string {
	var out []string
	for _, pool := range v.Pools {
		raw, err := decodeAddress(pool)
		if err != nil {
			continue
		}
		if isOnCurve(raw) {
			out = append(out, pool)
		}
	}
	return out
}

// decodeAddress decodes a base58 address and checks it is 32 bytes.
func decodeAddress(addr string) ([]byte, error) {
	raw, err := base58.Decode(addr)
	if err != nil {
		return nil, fmt.Errorf("decode base58: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("expected 32 bytes, got %d", len(raw))
	}
	return raw, nil
}

func isOnCurve(point []byte) bool {
	if len(point) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}
