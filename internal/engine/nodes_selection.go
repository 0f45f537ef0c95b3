package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/roach88/lumen/internal/graph"
	"github.com/roach88/lumen/internal/signal"
)

func (r *run) runSelectionNode(ctx context.Context, node *graph.NodeInstance) error {
	switch node.TypeID {
	case "select":
		return r.runSelect(ctx, node)
	case "get_attribute":
		return r.runGetAttribute(node)
	case "random_select_mask":
		return r.runRandomSelectMask(node)
	}
	return nil
}

// runSelect resolves the node's chosen fixture heads against the venue.
// Ids name either a whole fixture (all heads) or one head ("fx:2").
func (r *run) runSelect(ctx context.Context, node *graph.NodeInstance) error {
	if r.eval.Resolver == nil {
		r.log.Warn("select node has no venue store; emitting empty selection", "node", node.ID)
		r.state.SetSelection(node.ID, "out", graph.Selection{})
		return nil
	}

	rawIDs := node.TextParam("selected_ids", "[]")
	var ids []string
	if err := json.Unmarshal([]byte(rawIDs), &ids); err != nil {
		return NewBadParamError(node.ID, node.TypeID, "selected_ids", err)
	}

	sel, err := r.eval.Resolver.ResolveIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("resolve selection: %w", err)
	}
	r.state.SetSelection(node.ID, "out", sel)
	return nil
}

// runGetAttribute projects a spatial attribute of each selected head
// into an (n, 1, 1) signal. Relative attributes normalize against the
// selection's own bounding box.
func (r *run) runGetAttribute(node *graph.NodeInstance) error {
	sel, ok := r.inputSelection(node.ID, "selection")
	if !ok {
		return nil
	}

	attr := node.TextParam("attribute", "index")
	n := len(sel.Items)
	if n == 0 {
		r.state.SetSignal(node.ID, "out", signal.Zero())
		return nil
	}

	minB := sel.Items[0].Pos
	maxB := sel.Items[0].Pos
	for _, item := range sel.Items {
		for axis := 0; axis < 3; axis++ {
			if item.Pos[axis] < minB[axis] {
				minB[axis] = item.Pos[axis]
			}
			if item.Pos[axis] > maxB[axis] {
				maxB[axis] = item.Pos[axis]
			}
		}
	}
	ranges := [3]float32{}
	for axis := 0; axis < 3; axis++ {
		ranges[axis] = maxB[axis] - minB[axis]
		if ranges[axis] < 0.001 {
			ranges[axis] = 0.001
		}
	}

	data := make([]float32, n)
	for i, item := range sel.Items {
		switch attr {
		case "index":
			data[i] = float32(i)
		case "normalized_index":
			if n > 1 {
				data[i] = float32(i) / float32(n-1)
			}
		case "pos_x":
			data[i] = item.Pos[0]
		case "pos_y":
			data[i] = item.Pos[1]
		case "pos_z":
			data[i] = item.Pos[2]
		case "rel_x":
			data[i] = (item.Pos[0] - minB[0]) / ranges[0]
		case "rel_y":
			data[i] = (item.Pos[1] - minB[1]) / ranges[1]
		case "rel_z":
			data[i] = (item.Pos[2] - minB[2]) / ranges[2]
		}
	}

	r.state.SetSignal(node.ID, "out", signal.MustNew(n, 1, 1, data))
	return nil
}

// runRandomSelectMask emits a 0/1 mask over the selection that picks
// `count` heads whenever the trigger signal changes value. Scoring is
// seeded from the node id, so a rerun reproduces the same picks.
func (r *run) runRandomSelectMask(node *graph.NodeInstance) error {
	sel, okSel := r.inputSelection(node.ID, "selection")
	trigger, okTrig := r.inputSignal(node.ID, "trigger")
	if !okSel || !okTrig {
		return nil
	}

	count := int(node.NumberParam("count", 1))
	if count < 0 {
		count = 0
	}
	avoidRepeat := node.NumberParam("avoid_repeat", 1) > 0.5

	n := len(sel.Items)
	tSteps := trigger.T
	if n == 0 || tSteps == 0 {
		return nil
	}

	seed := r.seedFor(node.ID)
	mask := make([]float32, n*tSteps)

	var prevSelected []int
	var prevTrig int64
	havePrev := false
	var counter uint64

	for t := 0; t < tSteps; t++ {
		// Trigger is a control signal; read row 0, channel 0.
		trigVal := trigger.Data[t*trigger.C]
		trigSeed := int64(trigVal * 1000)
		stepSeed := hashCombine(hashCombine(seed, uint64(trigSeed)), counter)

		trigChanged := !havePrev || prevTrig != trigSeed

		type score struct {
			idx  int
			rank uint64
		}
		scores := make([]score, n)
		for i := 0; i < n; i++ {
			scores[i] = score{idx: i, rank: hashCombine(stepSeed, uint64(i))}
		}
		sort.Slice(scores, func(a, b int) bool { return scores[a].rank < scores[b].rank })

		var selected []int
		switch {
		case !trigChanged && len(prevSelected) > 0:
			selected = prevSelected
		case avoidRepeat && trigChanged && len(prevSelected) > 0:
			was := make(map[int]bool, len(prevSelected))
			for _, idx := range prevSelected {
				was[idx] = true
			}
			available := make([]score, 0, n)
			for _, s := range scores {
				if !was[s.idx] {
					available = append(available, s)
				}
			}
			if len(available) < count {
				for _, s := range scores {
					if was[s.idx] {
						available = append(available, s)
					}
				}
			}
			for i := 0; i < count && i < len(available); i++ {
				selected = append(selected, available[i].idx)
			}
			prevSelected = selected
			prevTrig = trigSeed
			havePrev = true
			counter++
		default:
			for i := 0; i < count && i < len(scores); i++ {
				selected = append(selected, scores[i].idx)
			}
			prevSelected = selected
			prevTrig = trigSeed
			havePrev = true
			counter++
		}

		for _, idx := range selected {
			mask[idx*tSteps+t] = 1
		}
	}

	r.state.SetSignal(node.ID, "out", signal.MustNew(n, tSteps, 1, mask))
	return nil
}
