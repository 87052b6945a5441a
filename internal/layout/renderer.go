package layout

import "context"

// Renderer is implemented by whatever owns a Blocks sequence and knows
// how to fetch one more tree's worth of blocks off either end. The tree
// renderer (tree_renderer.go) is the only implementation in this
// module, but keeping the scroll math generic over the interface keeps
// it free of any tree-specific concerns, exactly as in the reference
// implementation.
type Renderer interface {
	// Height is the frame height in lines.
	Height() int
	// Scrolloff is the configured top/bottom scroll margin.
	Scrolloff() int

	Blocks() *Blocks

	// ExpandTop/ExpandBottom ask the backing store for one more tree in
	// the given direction and splice its blocks in. They set
	// Blocks().End() accordingly when history is exhausted.
	ExpandTop(ctx context.Context) error
	ExpandBottom(ctx context.Context) error
}

// VisibleArea is the range of all lines visible given the renderer's
// height.
func VisibleArea(r Renderer) Range {
	return Range{Top: 0, Bottom: r.Height()}
}

// ScrollArea is VisibleArea reduced by the renderer's scrolloff at top
// and bottom.
func ScrollArea(r Renderer) Range {
	area := VisibleArea(r)
	scrolloff := r.Scrolloff()
	top := area.Top + scrolloff
	bottom := maxInt(top, area.Bottom-scrolloff)
	return Range{Top: top, Bottom: bottom}
}

// OverlapDelta returns the smallest shift that makes object intersect
// area. For a zero-height object (or area), touching the boundary
// counts as overlap; otherwise at least one interior line must be
// shared.
func OverlapDelta(area, object Range) int {
	if object.Height() == 0 || area.Height() == 0 {
		moveToTop := area.Top - object.Bottom
		moveToBottom := area.Bottom - object.Top
		return clamp(0, moveToTop, moveToBottom)
	}
	moveToTop := (area.Top + 1) - object.Bottom
	moveToBottom := (area.Bottom - 1) - object.Top
	return clamp(0, moveToTop, moveToBottom)
}

// Overlaps reports whether object already intersects area.
func Overlaps(area, object Range) bool {
	return OverlapDelta(area, object) == 0
}

// Overlap shifts object so it intersects area.
func Overlap(area, object Range) Range {
	return object.Shifted(OverlapDelta(area, object))
}

// FullOverlapDelta returns the smallest shift that makes object a
// subset of area, or if object is taller than area, that pins
// object.Top to area.Top.
func FullOverlapDelta(area, object Range) int {
	moveToTop := area.Top - object.Top
	moveToBottom := area.Bottom - object.Bottom
	return maxInt(minInt(0, moveToBottom), moveToTop)
}

func expandUpwardsUntil(ctx context.Context, r Renderer, top int) error {
	for {
		blocks := r.Blocks()
		if blocks.End().Top || blocks.Range().Top <= top {
			return nil
		}
		if err := r.ExpandTop(ctx); err != nil {
			return err
		}
	}
}

func expandDownwardsUntil(ctx context.Context, r Renderer, bottom int) error {
	for {
		blocks := r.Blocks()
		if blocks.End().Bottom || blocks.Range().Bottom >= bottom {
			return nil
		}
		if err := r.ExpandBottom(ctx); err != nil {
			return err
		}
	}
}

// ExpandToFillVisibleArea repeatedly expands top and bottom until the
// blocks cover the visible area or the store reports exhaustion.
func ExpandToFillVisibleArea(ctx context.Context, r Renderer) error {
	area := VisibleArea(r)
	if err := expandUpwardsUntil(ctx, r, area.Top); err != nil {
		return err
	}
	return expandDownwardsUntil(ctx, r, area.Bottom)
}

// ExpandToFillScreenAroundBlock expands blocks such that the screen
// stays full for any scroll offset at which id remains visible. id must
// already be present.
func ExpandToFillScreenAroundBlock(ctx context.Context, r Renderer, id BlockID) error {
	screen := VisibleArea(r)
	block, blk, ok := r.Blocks().FindBlock(id)
	if !ok {
		return nil
	}

	top := Overlap(blk.Focus(block), screen.WithBottom(block.Top)).Top
	bottom := Overlap(blk.Focus(block), screen.WithTop(block.Bottom)).Bottom

	if err := expandUpwardsUntil(ctx, r, top); err != nil {
		return err
	}
	return expandDownwardsUntil(ctx, r, bottom)
}

// ScrollToSetBlockTop shifts the whole sequence so the located block's
// top equals top. Returns false if the block is not present.
func ScrollToSetBlockTop(r Renderer, id BlockID, top int) bool {
	rng, _, ok := r.Blocks().FindBlock(id)
	if !ok {
		return false
	}
	r.Blocks().Shift(top - rng.Top)
	return true
}

// ScrollSoBlockIsCentered centers id's focus range within the visible
// area.
func ScrollSoBlockIsCentered(r Renderer, id BlockID) bool {
	rng, blk, ok := r.Blocks().FindBlock(id)
	if !ok {
		return false
	}
	area := VisibleArea(r)
	focus := blk.Focus(rng)
	top := (area.Top + area.Bottom - focus.Height()) / 2
	r.Blocks().Shift(top - focus.Top)
	return true
}

// ScrollBlocksFullyAboveScreen shifts the sequence entirely above the
// visible area (used when re-anchoring after the previous cursor
// disappeared and the new cursor sorts before it).
func ScrollBlocksFullyAboveScreen(r Renderer) {
	area := VisibleArea(r)
	delta := area.Top - r.Blocks().Range().Bottom
	r.Blocks().Shift(delta)
}

// ScrollBlocksFullyBelowScreen is the mirror image of
// ScrollBlocksFullyAboveScreen.
func ScrollBlocksFullyBelowScreen(r Renderer) {
	area := VisibleArea(r)
	delta := area.Bottom - r.Blocks().Range().Top
	r.Blocks().Shift(delta)
}

// ScrollSoBlockFocusOverlapsScrollArea applies OverlapDelta to id's
// focus range against the scroll area.
func ScrollSoBlockFocusOverlapsScrollArea(r Renderer, id BlockID) bool {
	rng, blk, ok := r.Blocks().FindBlock(id)
	if !ok {
		return false
	}
	delta := OverlapDelta(ScrollArea(r), blk.Focus(rng))
	r.Blocks().Shift(delta)
	return true
}

// ScrollSoBlockFocusFullyOverlapsScrollArea applies FullOverlapDelta to
// id's focus range against the scroll area.
func ScrollSoBlockFocusFullyOverlapsScrollArea(r Renderer, id BlockID) bool {
	rng, blk, ok := r.Blocks().FindBlock(id)
	if !ok {
		return false
	}
	delta := FullOverlapDelta(ScrollArea(r), blk.Focus(rng))
	r.Blocks().Shift(delta)
	return true
}

// ClampScrollBiasedDownwards keeps the blocks from scrolling past either
// edge of the content, biased to keep the bottom visible when the
// content is shorter than the screen.
func ClampScrollBiasedDownwards(r Renderer) {
	area := VisibleArea(r)
	blocks := r.Blocks().Range()

	moveToTop := area.Top - blocks.Top
	moveToBottom := area.Bottom - blocks.Bottom

	delta := maxInt(minInt(0, moveToTop), moveToBottom)
	r.Blocks().Shift(delta)
}

// FindCursorStartingAt returns id if its focus already overlaps the
// scroll area; otherwise it scans the blocks in the direction implied
// by OverlapDelta for the first selectable block that does.
func FindCursorStartingAt(r Renderer, id BlockID) (BlockID, bool) {
	area := ScrollArea(r)
	rng, blk, ok := r.Blocks().FindBlock(id)
	if !ok {
		return BlockID{}, false
	}
	delta := OverlapDelta(area, blk.Focus(rng))
	switch {
	case delta == 0:
		return id, true
	case delta > 0:
		// Must scroll down to reveal it: it's above the viewport, so
		// scan forward for the first selectable block in view.
		for _, e := range r.Blocks().Iter() {
			if e.Block.CanBeCursor && Overlaps(area, e.Block.Focus(e.Range)) {
				return e.Block.ID, true
			}
		}
	default:
		entries := r.Blocks().Iter()
		for i := len(entries) - 1; i >= 0; i-- {
			e := entries[i]
			if e.Block.CanBeCursor && Overlaps(area, e.Block.Focus(e.Range)) {
				return e.Block.ID, true
			}
		}
	}
	return BlockID{}, false
}
