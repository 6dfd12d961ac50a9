package loot

import (
	"errors"
	"math/rand/v2"
	"sort"

	"github.com/dukerupert/chorequest/internal/model"
)

var errEmptyPool = errors.New("chest has no items")

// Table is a cumulative-weight draw table over a chest's items.
type Table struct {
	items []model.ChestItem
	cum   []int
}

// NewTable weights each item by its rarity. Rarities missing from weights
// get defaultWeight.
func NewTable(items []model.ChestItem, weights map[string]int, defaultWeight int) (*Table, error) {
	if len(items) == 0 {
		return nil, errEmptyPool
	}
	t := &Table{items: items, cum: make([]int, len(items))}
	total := 0
	for i, it := range items {
		w, ok := weights[it.Rarity]
		if !ok {
			w = defaultWeight
		}
		total += w
		t.cum[i] = total
	}
	if total <= 0 {
		return nil, errEmptyPool
	}
	return t, nil
}

func (t *Table) Total() int {
	return t.cum[len(t.cum)-1]
}

// Pick returns the item whose cumulative range contains n, for n in
// [0, Total()).
func (t *Table) Pick(n int) model.ChestItem {
	i := sort.Search(len(t.cum), func(i int) bool { return t.cum[i] > n })
	return t.items[i]
}

func (t *Table) Draw(rng *rand.Rand) model.ChestItem {
	return t.Pick(rng.IntN(t.Total()))
}
