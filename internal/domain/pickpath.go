package domain

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultOrdersPerTote is the tote capacity used when none is configured
const DefaultOrdersPerTote = 4

// Distance weights between two parsed locations
const (
	zoneChangeCost = 10000
	aisleCost      = 100
	bayCost        = 10
	positionCost   = 1
)

var (
	zonePattern     = regexp.MustCompile(`(?i)\bZ(\d+)\b`)
	aislePattern    = regexp.MustCompile(`(?i)(?:\bA(?:ISLE)?[- ]?)(\d+)`)
	bayPattern      = regexp.MustCompile(`(?i)(?:\bB|\bBAY[- ]?)(\d+)`)
	levelPattern    = regexp.MustCompile(`(?i)(?:\bL|\bLVL[- ]?)(\d+)`)
	positionPattern = regexp.MustCompile(`(?i)(?:\bP|\bPOS[- ]?)(\d+)`)
	tokenSeparator  = regexp.MustCompile(`[-_ ]+`)
)

// LocationCoord is the coarse position of a location parsed from its code
type LocationCoord struct {
	Zone     string `bson:"zone" json:"zone"`
	Aisle    int    `bson:"aisle" json:"aisle"`
	Bay      int    `bson:"bay" json:"bay"`
	Level    int    `bson:"level" json:"level"`
	Position int    `bson:"position" json:"position"`
}

// ParseLocation derives coordinates from a location code such as
// Z1-A02-B03-L01-P05 or Z1-02-03-01-05. An explicit zone wins over the code.
// Dimensions that cannot be parsed are 0.
func ParseLocation(code, zone string) LocationCoord {
	c := LocationCoord{Zone: strings.TrimSpace(zone)}
	if c.Zone == "" {
		c.Zone = zoneFromCode(code)
	}

	c.Aisle = firstInt(aislePattern, code)
	c.Bay = firstInt(bayPattern, code)
	c.Level = firstInt(levelPattern, code)
	c.Position = firstInt(positionPattern, code)

	var nums []int
	for _, tok := range tokenSeparator.Split(code, -1) {
		if tok == "" || strings.Trim(tok, "0123456789") != "" {
			continue
		}
		if n, err := strconv.Atoi(tok); err == nil {
			nums = append(nums, n)
		}
	}
	n := len(nums)
	if n == 0 {
		return c
	}
	if c.Aisle == 0 {
		if n >= 4 {
			c.Aisle = nums[n-4]
		} else {
			c.Aisle = nums[0]
		}
	}
	if c.Bay == 0 && n >= 2 {
		if n >= 3 {
			c.Bay = nums[n-3]
		} else {
			c.Bay = nums[1]
		}
	}
	if c.Level == 0 && n >= 3 {
		c.Level = nums[n-2]
	}
	if c.Position == 0 && n >= 4 {
		c.Position = nums[n-1]
	}
	return c
}

func zoneFromCode(code string) string {
	if m := zonePattern.FindStringSubmatch(code); m != nil {
		n, _ := strconv.Atoi(m[1])
		return fmt.Sprintf("Z%d", n)
	}
	if tok := strings.TrimSpace(strings.SplitN(code, "-", 2)[0]); tok != "" {
		return tok
	}
	return "Z0"
}

func firstInt(re *regexp.Regexp, code string) int {
	m := re.FindStringSubmatch(code)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}

// Distance is the travel heuristic between two locations. A zone change
// outweighs any in-zone travel.
func Distance(a, b LocationCoord) int {
	d := 0
	if a.Zone != b.Zone {
		d += zoneChangeCost
	}
	return d + abs(a.Aisle-b.Aisle)*aisleCost + abs(a.Bay-b.Bay)*bayCost + abs(a.Position-b.Position)*positionCost
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func coordLess(a, b LocationCoord) bool {
	if a.Zone != b.Zone {
		return a.Zone < b.Zone
	}
	if a.Aisle != b.Aisle {
		return a.Aisle < b.Aisle
	}
	if a.Bay != b.Bay {
		return a.Bay < b.Bay
	}
	return a.Position < b.Position
}

// OrderStops sequences stops greedily: start at the smallest
// (zone, aisle, bay, position), then always visit the nearest remaining stop.
// Ties keep input order.
func OrderStops(stops []PickStop) []PickStop {
	if len(stops) == 0 {
		return stops
	}
	remaining := make([]PickStop, len(stops))
	copy(remaining, stops)
	sort.SliceStable(remaining, func(i, j int) bool { return coordLess(remaining[i].Coord, remaining[j].Coord) })

	ordered := make([]PickStop, 0, len(stops))
	ordered = append(ordered, remaining[0])
	remaining = remaining[1:]
	for len(remaining) > 0 {
		last := ordered[len(ordered)-1].Coord
		next := 0
		best := Distance(last, remaining[0].Coord)
		for i := 1; i < len(remaining); i++ {
			if d := Distance(last, remaining[i].Coord); d < best {
				next, best = i, d
			}
		}
		ordered = append(ordered, remaining[next])
		remaining = append(remaining[:next], remaining[next+1:]...)
	}
	return ordered
}

// ToteAssignment binds one order to the tote it is picked into
type ToteAssignment struct {
	OrderID string `bson:"orderId" json:"orderId"`
	Tote    string `bson:"tote" json:"tote"`
}

// AssignTotes spreads orders over totes TOTE-01, TOTE-02, ... in order,
// perTote orders to a tote.
func AssignTotes(orderIDs []string, perTote int) []ToteAssignment {
	if perTote <= 0 {
		perTote = DefaultOrdersPerTote
	}
	out := make([]ToteAssignment, 0, len(orderIDs))
	for i, id := range orderIDs {
		out = append(out, ToteAssignment{OrderID: id, Tote: fmt.Sprintf("TOTE-%02d", i/perTote+1)})
	}
	return out
}

// StopLine is one allocation picked at a stop
type StopLine struct {
	OrderID      string          `bson:"orderId" json:"orderId"`
	OrderLineID  string          `bson:"orderLineId" json:"orderLineId"`
	AllocationID string          `bson:"allocationId" json:"allocationId"`
	ItemID       string          `bson:"itemId" json:"itemId"`
	SKU          string          `bson:"sku" json:"sku"`
	Quantity     decimal.Decimal `bson:"quantity" json:"quantity"`
	Tote         string          `bson:"tote" json:"tote"`
}

// PickStop is one location visited by the cart
type PickStop struct {
	LocationID   string        `bson:"locationId" json:"locationId"`
	LocationCode string        `bson:"locationCode" json:"locationCode"`
	Coord        LocationCoord `bson:"coord" json:"coord"`
	Lines        []StopLine    `bson:"lines" json:"lines"`
}

// WavePlan is the consolidated pick route of a wave
type WavePlan struct {
	Cart  string           `bson:"cart" json:"cart"`
	Totes []ToteAssignment `bson:"totes" json:"totes"`
	Stops []PickStop       `bson:"stops" json:"stops"`
}

// ToteCodes lists the distinct totes on the cart in order
func (p WavePlan) ToteCodes() []string {
	seen := make(map[string]bool)
	var codes []string
	for _, t := range p.Totes {
		if !seen[t.Tote] {
			seen[t.Tote] = true
			codes = append(codes, t.Tote)
		}
	}
	return codes
}

// ToteFor returns the tote of an order
func (p WavePlan) ToteFor(orderID string) string {
	for _, t := range p.Totes {
		if t.OrderID == orderID {
			return t.Tote
		}
	}
	return ""
}

// PlanLine is an open allocation with the location and SKU needed to plan it
type PlanLine struct {
	Allocation *Allocation
	SKU        string
	Location   *Location
}

// CartCode names the cart of a wave
func CartCode(waveID string) string {
	if len(waveID) > 6 {
		waveID = waveID[:6]
	}
	return "CART-" + waveID
}

// BuildWavePlan groups allocations into one stop per location, assigns totes
// and orders the stops along the pick path.
func BuildWavePlan(waveID string, orderIDs []string, lines []PlanLine, perTote int) WavePlan {
	plan := WavePlan{Cart: CartCode(waveID), Totes: AssignTotes(orderIDs, perTote)}

	index := make(map[string]int)
	var stops []PickStop
	for _, pl := range lines {
		a := pl.Allocation
		i, ok := index[a.LocationID]
		if !ok {
			stop := PickStop{LocationID: a.LocationID}
			if pl.Location != nil {
				stop.LocationCode = pl.Location.Code
				stop.Coord = ParseLocation(pl.Location.Code, pl.Location.Zone)
			} else {
				stop.Coord = LocationCoord{Zone: "Z0"}
			}
			i = len(stops)
			index[a.LocationID] = i
			stops = append(stops, stop)
		}
		stops[i].Lines = append(stops[i].Lines, StopLine{
			OrderID:      a.OrderID,
			OrderLineID:  a.OrderLineID,
			AllocationID: a.ID,
			ItemID:       a.ItemID,
			SKU:          pl.SKU,
			Quantity:     a.Quantity,
			Tote:         plan.ToteFor(a.OrderID),
		})
	}

	for i := range stops {
		ls := stops[i].Lines
		sort.SliceStable(ls, func(x, y int) bool {
			if ls[x].Tote != ls[y].Tote {
				return ls[x].Tote < ls[y].Tote
			}
			if ls[x].SKU != ls[y].SKU {
				return ls[x].SKU < ls[y].SKU
			}
			return ls[x].OrderID < ls[y].OrderID
		})
	}
	plan.Stops = OrderStops(stops)
	return plan
}

// WavePickSteps expands a plan into guided steps: scan the cart, scan every
// tote, then per stop scan the location and per line scan the item, the tote
// and enter the picked quantity. Sequence numbers are strictly increasing.
func WavePickSteps(plan WavePlan) []TaskStep {
	steps := []TaskStep{NewStep(5, "Scan cart "+plan.Cart, ContainerExpectation{Code: plan.Cart})}

	seq := 10
	for _, tote := range plan.ToteCodes() {
		steps = append(steps, NewStep(seq, "Scan tote "+tote, ContainerExpectation{Code: tote}))
		seq += 5
	}
	if seq < 20 {
		seq = 20
	}

	for si, stop := range plan.Stops {
		steps = append(steps, NewStep(seq, "Go to "+stop.LocationCode, LocationExpectation{Code: stop.LocationCode}).WithRef(si, -1))
		seq += 10
		for li, line := range stop.Lines {
			limit := line.Quantity
			steps = append(steps,
				NewStep(seq, "Scan item "+line.SKU, ItemExpectation{SKU: line.SKU}).WithRef(si, li),
				NewStep(seq+10, "Put into "+line.Tote, ContainerExpectation{Code: line.Tote}).WithRef(si, li),
				NewStep(seq+20, fmt.Sprintf("Enter qty (max %s)", limit), QuantityExpectation{Max: &limit}).WithRef(si, li),
			)
			seq += 30
		}
	}
	return steps
}
