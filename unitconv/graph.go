// Package unitconv resolves conversion factors between measurement units by
// walking a graph of registered conversions and their implied inverses.
package unitconv

import (
	"sort"

	"github.com/mmdatafocus/pos_backend/apperr"
	"github.com/shopspring/decimal"
)

// inversePrecision is the number of significant digits kept when deriving 1/factor.
const inversePrecision int32 = 20

// QuantityPlaces is the precision of every normalised quantity.
const QuantityPlaces int32 = 4

// Edge means 1 From = Factor To.
type Edge struct {
	From   string          `json:"from"`
	To     string          `json:"to"`
	Factor decimal.Decimal `json:"factor"`
}

type neighbour struct {
	unit   string
	weight decimal.Decimal
}

type Graph struct {
	adj map[string][]neighbour
	// units in first-seen order, so iteration is deterministic
	units []string
}

// Build returns the conversion graph for edges. Each edge also adds its
// inverse. Zero factors are skipped. Neighbour order follows input order.
func Build(edges []Edge) *Graph {
	g := &Graph{adj: make(map[string][]neighbour)}
	for _, e := range edges {
		if e.Factor.IsZero() || e.From == "" || e.To == "" {
			continue
		}
		g.addUnit(e.From)
		g.addUnit(e.To)
		g.adj[e.From] = append(g.adj[e.From], neighbour{unit: e.To, weight: e.Factor})
		g.adj[e.To] = append(g.adj[e.To], neighbour{unit: e.From, weight: Inverse(e.Factor)})
	}
	return g
}

// Inverse returns 1/factor to inversePrecision significant digits, so large
// and tiny factors round-trip equally well.
func Inverse(factor decimal.Decimal) decimal.Decimal {
	// factor has len(coefficient)+exponent digits before the point
	places := inversePrecision + int32(len(factor.Coefficient().String())) + factor.Exponent()
	if places < 0 {
		places = 0
	}
	return decimal.NewFromInt(1).DivRound(factor, places)
}

func (g *Graph) addUnit(code string) {
	if _, ok := g.adj[code]; !ok {
		g.adj[code] = nil
		g.units = append(g.units, code)
	}
}

// HasUnit reports whether code appears in at least one conversion.
func (g *Graph) HasUnit(code string) bool {
	_, ok := g.adj[code]
	return ok
}

// ResolveFactor returns f such that 1 from = f to. The first path found by a
// breadth-first search wins.
func (g *Graph) ResolveFactor(from, to string) (decimal.Decimal, error) {
	if from == to {
		return decimal.NewFromInt(1), nil
	}
	if !g.HasUnit(from) {
		return decimal.Zero, &apperr.ConversionError{From: from, To: to, Unknown: from}
	}
	if !g.HasUnit(to) {
		return decimal.Zero, &apperr.ConversionError{From: from, To: to, Unknown: to}
	}

	type step struct {
		unit   string
		factor decimal.Decimal
	}
	visited := map[string]bool{from: true}
	queue := []step{{unit: from, factor: decimal.NewFromInt(1)}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, n := range g.adj[cur.unit] {
			if visited[n.unit] {
				continue
			}
			f := cur.factor.Mul(n.weight)
			if n.unit == to {
				return f, nil
			}
			visited[n.unit] = true
			queue = append(queue, step{unit: n.unit, factor: f})
		}
	}
	return decimal.Zero, &apperr.ConversionError{From: from, To: to}
}

// ConvertQuantity converts value from one unit to another, rounded to 4 places.
func (g *Graph) ConvertQuantity(value decimal.Decimal, from, to string) (decimal.Decimal, error) {
	factor, err := g.ResolveFactor(from, to)
	if err != nil {
		return decimal.Zero, err
	}
	return value.Mul(factor).Round(QuantityPlaces), nil
}

// Inconsistency is a unit pair reachable along two paths whose factors disagree.
type Inconsistency struct {
	From     string
	To       string
	Factor   decimal.Decimal
	Conflict decimal.Decimal
}

var relTolerance = decimal.New(1, -9)

// Validate walks every connected component from its first-registered unit
// and reports edges that contradict the factors implied by the spanning tree.
// An empty result means every pair has one consistent factor.
func (g *Graph) Validate() []Inconsistency {
	var out []Inconsistency
	seen := make(map[string]bool, len(g.units))
	for _, root := range g.units {
		if seen[root] {
			continue
		}
		// 1 root = factor[u] u
		factor := map[string]decimal.Decimal{root: decimal.NewFromInt(1)}
		seen[root] = true
		queue := []string{root}
		reported := map[[2]string]bool{}
		for len(queue) > 0 {
			u := queue[0]
			queue = queue[1:]
			for _, n := range g.adj[u] {
				implied := factor[u].Mul(n.weight)
				existing, ok := factor[n.unit]
				if !ok {
					factor[n.unit] = implied
					seen[n.unit] = true
					queue = append(queue, n.unit)
					continue
				}
				if withinTolerance(existing, implied) {
					continue
				}
				key := [2]string{root, n.unit}
				if reported[key] {
					continue
				}
				reported[key] = true
				out = append(out, Inconsistency{From: root, To: n.unit, Factor: existing, Conflict: implied})
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		return out[i].To < out[j].To
	})
	return out
}

func withinTolerance(a, b decimal.Decimal) bool {
	diff := a.Sub(b).Abs()
	scale := a.Abs()
	if b.Abs().GreaterThan(scale) {
		scale = b.Abs()
	}
	if scale.IsZero() {
		return diff.IsZero()
	}
	return diff.LessThanOrEqual(scale.Mul(relTolerance))
}
