package domain

import (
	"sort"

	"github.com/shopspring/decimal"
)

// PutawayCandidates returns the bins a putaway may target: the item's
// preferred zone when it has bins there, otherwise every bin. Ordered by code.
func PutawayCandidates(item *Item, bins []*Location) ([]*Location, error) {
	var all, preferred []*Location
	for _, l := range bins {
		if !l.IsPickable() {
			continue
		}
		all = append(all, l)
		if item.PreferredZone != "" && l.Zone == item.PreferredZone {
			preferred = append(preferred, l)
		}
	}
	out := preferred
	if len(out) == 0 {
		out = all
	}
	if len(out) == 0 {
		return nil, ErrNoBinLocations
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

// FillRatio is the projected utilisation of loc after adding qty to current.
// Capacities below one are treated as one.
func FillRatio(loc *Location, current, qty decimal.Decimal) decimal.Decimal {
	capacity := decimal.NewFromInt(1)
	if loc.CapacityUnits != nil && loc.CapacityUnits.GreaterThan(capacity) {
		capacity = *loc.CapacityUnits
	}
	return current.Add(qty).Div(capacity)
}
