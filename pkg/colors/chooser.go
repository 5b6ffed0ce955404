package colors

import (
	"math/rand/v2"
	"sort"
)

// White is assigned to units left uncolored by [Choose].
const White = "ffffff"

// DefaultPalette holds twelve well separated hues used when regions carry
// no color of their own.
var DefaultPalette = []string{
	"e6194b", "3cb44b", "ffe119", "4363d8", "f58231", "911eb4",
	"46f0f0", "f032e6", "bcf60c", "fabebe", "008080", "e6beff",
}

type chooserNode struct {
	id       string
	neigh    []*chooserNode
	taken    map[string]bool
	colored  int
	color    string
	assigned bool
}

func (n *chooserNode) urgency() float64 {
	return float64(n.colored) + float64(len(n.neigh)-n.colored)*1e-6
}

// Choose colors every unit of the adjacency map from palette so that no two
// neighbours share a color where the palette allows it. Units with the most
// colored neighbours are colored first; ties go to the lexically smaller
// ID. When rng is non-nil the palette is shuffled before each pick. Units
// for which every color is taken get [White].
func Choose(neighbours map[string][]string, palette []string, rng *rand.Rand) map[string]string {
	nodes := make(map[string]*chooserNode, len(neighbours))
	get := func(id string) *chooserNode {
		n, ok := nodes[id]
		if !ok {
			n = &chooserNode{id: id, taken: make(map[string]bool)}
			nodes[id] = n
		}
		return n
	}
	for id, ns := range neighbours {
		from := get(id)
		for _, to := range ns {
			if to != id {
				from.neigh = append(from.neigh, get(to))
			}
		}
	}

	pending := make([]*chooserNode, 0, len(nodes))
	for _, n := range nodes {
		pending = append(pending, n)
	}
	colors := append([]string(nil), palette...)
	for len(pending) > 0 {
		sort.Slice(pending, func(i, j int) bool {
			ui, uj := pending[i].urgency(), pending[j].urgency()
			if ui != uj {
				return ui < uj
			}
			return pending[i].id > pending[j].id
		})
		now := pending[len(pending)-1]
		pending = pending[:len(pending)-1]
		if rng != nil {
			rng.Shuffle(len(colors), func(i, j int) { colors[i], colors[j] = colors[j], colors[i] })
		}
		for _, c := range colors {
			if now.taken[c] {
				continue
			}
			now.color, now.assigned = c, true
			for _, nb := range now.neigh {
				nb.colored++
				nb.taken[c] = true
			}
			break
		}
	}

	out := make(map[string]string, len(nodes))
	for id, n := range nodes {
		if n.assigned {
			out[id] = n.color
		} else {
			out[id] = White
		}
	}
	return out
}
