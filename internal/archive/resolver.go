package archive

import (
	"fmt"
	"path/filepath"
	"time"
)

const cdnBase = "https://www.okx.com/cdn/okex/traderecords"

// Target holds everything a work unit needs to locate its data: the remote
// archive address, the temporary path the raw download lands on, and the
// final converted artifact path. Targets are recomputed on demand and never
// persisted.
type Target struct {
	URL          string
	RawPath      string
	ArtifactPath string
	Symbol       string
	Kind         Kind
	Date         time.Time
}

// Resolver maps (symbol, kind, date) tuples to remote addresses and local
// paths. Resolution is pure; the only failure mode is an unknown kind.
type Resolver struct {
	root       string
	assetClass string
}

// NewResolver creates a resolver rooted at dir for the given asset class.
// The asset class becomes the first path segment under the root so that
// spot, swap and future dumps never collide.
func NewResolver(dir, assetClass string) *Resolver {
	return &Resolver{root: dir, assetClass: assetClass}
}

// Resolve computes the target for one work unit. For monthly kinds the date
// is truncated to its month and the pseudo-symbol replaces the instrument id.
// Derived kinds resolve with an empty URL since nothing is fetched for them.
func (r *Resolver) Resolve(symbol string, kind Kind, date time.Time) (Target, error) {
	if !kind.Valid() {
		return Target{}, fmt.Errorf("%w: %q", ErrInvalidKind, string(kind))
	}

	date = date.UTC()

	var partition, stamp string
	if kind.Monthly() {
		symbol = AllSwapsSymbol
		partition = date.Format("2006-01")
		stamp = date.Format("2006-01")
	} else {
		partition = date.Format("2006-01-02")
		stamp = date.Format("2006-01-02")
	}

	name := fmt.Sprintf("%s-%s-%s", symbol, kind, stamp)
	dir := filepath.Join(r.root, r.assetClass, string(kind), partition)

	t := Target{
		RawPath:      filepath.Join(dir, name+".zip"),
		ArtifactPath: filepath.Join(dir, name+".parquet"),
		Symbol:       symbol,
		Kind:         kind,
		Date:         date,
	}

	if kind.Remote() {
		if kind.Monthly() {
			t.URL = fmt.Sprintf("%s/%s/monthly/%s/%s.zip", cdnBase, kind, date.Format("200601"), name)
		} else {
			t.URL = fmt.Sprintf("%s/%s/daily/%s/%s.zip", cdnBase, kind, date.Format("20060102"), name)
		}
	}

	return t, nil
}
