package decision

import (
	"strings"

	"TrainCtl/internal/domain/models"
)

// Built-in priority classes.
const (
	ClassExpress = "express"
	ClassNormal  = "normal"
	ClassFreight = "freight"
)

// PriorityTable ranks trains. A higher rank keeps its path; the lower rank yields.
type PriorityTable struct {
	Ranks   map[string]int    // class -> rank
	Trains  map[string]string // train ID -> class, overrides reported class
	Default string            // class for trains with none
}

// DefaultPriorityTable ranks express over normal over freight.
func DefaultPriorityTable() PriorityTable {
	return PriorityTable{
		Ranks:   map[string]int{ClassExpress: 3, ClassNormal: 2, ClassFreight: 1},
		Trains:  map[string]string{},
		Default: ClassNormal,
	}
}

// Class resolves the priority class of a train: configured override first,
// then the class the train reported, then the default.
func (p PriorityTable) Class(st models.TrainState) string {
	if c, ok := p.Trains[st.TrainID]; ok && c != "" {
		return strings.ToLower(c)
	}
	if c := strings.ToLower(strings.TrimSpace(st.Priority)); c != "" {
		if _, known := p.Ranks[c]; known {
			return c
		}
	}
	return strings.ToLower(p.Default)
}

// Rank returns the numeric rank of a train.
func (p PriorityTable) Rank(st models.TrainState) int {
	return p.Ranks[p.Class(st)]
}
