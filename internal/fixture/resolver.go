// Package fixture resolves selection requests against the patched venue:
// which fixtures exist, what heads they have in their active mode, and
// where those heads sit in global space.
package fixture

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/roach88/lumen/internal/graph"
	"github.com/roach88/lumen/internal/store"
)

// Resolver turns selection expressions into ordered primitive lists.
// Order is stable (fixture id, then head index) because downstream
// signals index into it.
type Resolver struct {
	Store *store.Store
}

// Resolve handles the three request forms:
//   - "all": every head of every patched fixture
//   - "tag:<name>": heads of fixtures carrying the tag
//   - anything else: treated as an id list already split by the caller
func (r *Resolver) Resolve(ctx context.Context, expression string) (graph.Selection, error) {
	switch {
	case expression == "all":
		return r.resolveWith(ctx, includeAll, "")
	case strings.HasPrefix(expression, "tag:"):
		return r.resolveWith(ctx, includeAll, strings.TrimPrefix(expression, "tag:"))
	default:
		return r.ResolveIDs(ctx, strings.Fields(expression))
	}
}

func includeAll(store.Fixture, string) bool { return true }

// ResolveIDs selects by explicit ids. An id of "fx-1" selects every head
// of that fixture; "fx-1:2" selects one head.
func (r *Resolver) ResolveIDs(ctx context.Context, ids []string) (graph.Selection, error) {
	idSet := make(map[string]bool, len(ids))
	for _, id := range ids {
		idSet[id] = true
	}
	return r.resolveWith(ctx, func(f store.Fixture, headID string) bool {
		return idSet[f.ID] || idSet[headID]
	}, "")
}

func (r *Resolver) resolveWith(ctx context.Context, include func(store.Fixture, string) bool, tag string) (graph.Selection, error) {
	fixtures, err := r.Store.AllFixtures(ctx)
	if err != nil {
		return graph.Selection{}, fmt.Errorf("resolve selection: %w", err)
	}

	var items []graph.SelectableItem
	for _, f := range fixtures {
		if tag != "" {
			tags, err := r.Store.FixtureTags(ctx, f.ID)
			if err != nil {
				return graph.Selection{}, fmt.Errorf("resolve selection: %w", err)
			}
			if !containsTag(tags, tag) {
				continue
			}
		}

		heads, err := r.Store.FixtureHeads(ctx, f.ID, f.ModeName)
		if err != nil {
			return graph.Selection{}, fmt.Errorf("resolve selection: %w", err)
		}
		if len(heads) == 0 {
			// fixtures without a stored layout get one head at the origin
			heads = []store.HeadOffset{{HeadIndex: 0}}
		}

		for _, h := range heads {
			headID := fmt.Sprintf("%s:%d", f.ID, h.HeadIndex)
			if !include(f, headID) {
				continue
			}
			items = append(items, graph.SelectableItem{
				ID:        headID,
				FixtureID: f.ID,
				HeadIndex: h.HeadIndex,
				Pos:       headPosition(f, h),
			})
		}
	}
	return graph.Selection{Items: items}, nil
}

func containsTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

// headPosition places a head in global space: the local offset (mm) is
// rotated by the fixture's Euler angles applied X, then Y, then Z, and
// added to the fixture position (m).
func headPosition(f store.Fixture, h store.HeadOffset) [3]float32 {
	lx := h.X / 1000
	ly := h.Y / 1000
	lz := h.Z / 1000

	// Rotate around X
	sinX, cosX := math.Sincos(f.RotX)
	ly, lz = ly*cosX-lz*sinX, ly*sinX+lz*cosX

	// Rotate around Y
	sinY, cosY := math.Sincos(f.RotY)
	lx, lz = lx*cosY+lz*sinY, -lx*sinY+lz*cosY

	// Rotate around Z
	sinZ, cosZ := math.Sincos(f.RotZ)
	lx, ly = lx*cosZ-ly*sinZ, lx*sinZ+ly*cosZ

	return [3]float32{
		float32(f.PosX + lx),
		float32(f.PosY + ly),
		float32(f.PosZ + lz),
	}
}
