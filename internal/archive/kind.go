package archive

import (
	"errors"
	"fmt"
)

// Kind identifies the category of trade-record archive served by the CDN.
type Kind string

const (
	// KindTrades is the raw tick-by-tick trade archive.
	KindTrades Kind = "trades"
	// KindAggTrades is the aggregated trade archive. Candle derivation
	// consumes this kind.
	KindAggTrades Kind = "aggtrades"
	// KindSwapRate is the per-symbol funding rate archive.
	KindSwapRate Kind = "swaprate"
	// KindSwapRateAll is the funding rate archive covering every swap
	// instrument in one monthly file.
	KindSwapRateAll Kind = "swaprate-all"
	// KindKlines is the derived 1-minute candle artifact. It has no remote
	// address; it is computed from KindAggTrades.
	KindKlines Kind = "klines"
)

// AllSwapsSymbol is the pseudo-symbol used by the all-symbols funding kind.
const AllSwapsSymbol = "allswaps"

// ErrInvalidKind reports a data kind outside the supported enumeration.
var ErrInvalidKind = errors.New("invalid data kind")

// ParseKind validates a kind string from config or CLI input.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
	}
	return k, nil
}

// Valid reports whether the kind belongs to the supported enumeration.
func (k Kind) Valid() bool {
	switch k {
	case KindTrades, KindAggTrades, KindSwapRate, KindSwapRateAll, KindKlines:
		return true
	default:
		return false
	}
}

// Monthly reports whether the kind is partitioned by month instead of day.
func (k Kind) Monthly() bool {
	return k == KindSwapRateAll
}

// Remote reports whether the kind is fetched from the CDN. Derived kinds are
// produced locally.
func (k Kind) Remote() bool {
	return k != KindKlines
}

// Sorted reports whether converted rows must be ordered by timestamp.
func (k Kind) Sorted() bool {
	return k == KindTrades || k == KindAggTrades
}

func (k Kind) String() string {
	return string(k)
}
