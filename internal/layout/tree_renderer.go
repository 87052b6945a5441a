package layout

import (
	"context"

	"github.com/groverooms/grove/internal/cursor"
	"github.com/groverooms/grove/internal/euphid"
	"github.com/groverooms/grove/internal/tree"
	"github.com/groverooms/grove/internal/wire"
)

// Store is the subset of the persistent store a TreeRenderer needs,
// scoped to a single already-selected room and threaded with a
// context so expansion can be cancelled along with the surrounding
// frame render.
type Store interface {
	Tree(ctx context.Context, rootID euphid.ID) (*tree.Tree, error)
	Path(ctx context.Context, id euphid.ID) ([]euphid.ID, error)

	FirstRootID(ctx context.Context) (euphid.ID, bool, error)
	LastRootID(ctx context.Context) (euphid.ID, bool, error)
	PrevRootID(ctx context.Context, id euphid.ID) (euphid.ID, bool, error)
	NextRootID(ctx context.Context, id euphid.ID) (euphid.ID, bool, error)
}

// Measurer renders and measures the widgets a TreeRenderer places,
// given the frame width baked in at construction time. Implemented in
// internal/chatui over lipgloss; kept as an interface here so the
// scroll math stays free of any drawing concerns.
type Measurer interface {
	// MessageHeight returns the rendered line count of msg at the given
	// indent. foldedCount > 0 means the subtree is folded and a
	// "[N more]" annotation should be appended.
	MessageHeight(msg wire.Message, indent, foldedCount int, highlighted bool) int
	// PlaceholderHeight mirrors MessageHeight for a message referenced
	// but not present in the store.
	PlaceholderHeight(indent, foldedCount int, highlighted bool) int
	// EditorHeight returns the wrapped editor's line count and the line
	// (relative to the block's top) the text cursor currently sits on.
	EditorHeight(indent int) (height, cursorLine int)
	// PseudoHeight returns the rendered line count of the read-only
	// in-progress-edit preview.
	PseudoHeight(indent int) int
}

// Context bundles the per-frame parameters a TreeRenderer needs beyond
// the store and cursor: how tall the frame is and where the cursor sat
// last frame, so position can be preserved across frames per spec
// §4.H step 3.
type Context struct {
	Height int

	// Scrolloff is the configured top/bottom scroll margin (spec
	// §4.H); zero/negative falls back to defaultScrolloff.
	Scrolloff int

	Folded func(euphid.ID) bool

	LastCursor    cursor.Cursor
	LastCursorTop int
}

// defaultScrolloff is used when a caller leaves Context.Scrolloff unset
// (e.g. existing tests built before the knob existed).
const defaultScrolloff = 2

// TreeRenderer lays out one room's message trees into a Blocks
// sequence and implements Renderer so the generic scroll algorithms in
// renderer.go can operate on it.
type TreeRenderer struct {
	ctx      Context
	store    Store
	measurer Measurer
	cur      cursor.Cursor

	topRootID    euphid.ID
	hasTopRoot   bool
	bottomRootID euphid.ID
	hasBottomRoot bool

	blocks *Blocks
}

// NewTreeRenderer constructs a TreeRenderer. PrepareBlocksForDrawing
// must be called immediately afterwards before any other method.
func NewTreeRenderer(frameCtx Context, store Store, measurer Measurer, cur cursor.Cursor) *TreeRenderer {
	if frameCtx.Folded == nil {
		frameCtx.Folded = func(euphid.ID) bool { return false }
	}
	if frameCtx.Scrolloff <= 0 {
		frameCtx.Scrolloff = defaultScrolloff
	}
	return &TreeRenderer{
		ctx:      frameCtx,
		store:    store,
		measurer: measurer,
		cur:      cur,
		blocks:   NewBlocks(),
	}
}

func (r *TreeRenderer) Height() int     { return r.ctx.Height }
func (r *TreeRenderer) Scrolloff() int  { return r.ctx.Scrolloff }
func (r *TreeRenderer) Blocks() *Blocks { return r.blocks }

func zeroHeightBlockID(parent *euphid.ID) BlockID {
	if parent != nil {
		return AfterBlockID(*parent)
	}
	return BottomBlockID()
}

func cursorBlockID(c cursor.Cursor) BlockID {
	switch c.Kind {
	case cursor.Bottom:
		return BottomBlockID()
	case cursor.Msg:
		return MsgBlockID(c.ID)
	case cursor.Editor, cursor.Pseudo:
		if c.HasParent {
			return AfterBlockID(c.Parent)
		}
		return BottomBlockID()
	default:
		return BottomBlockID()
	}
}

func (r *TreeRenderer) editorBlock(indent int, parent *euphid.ID) Block {
	id := zeroHeightBlockID(parent)
	height, cursorLine := r.measurer.EditorHeight(indent)
	return NewEditorBlock(id, height, cursorLine)
}

func (r *TreeRenderer) pseudoBlock(indent int, parent *euphid.ID) Block {
	id := zeroHeightBlockID(parent)
	height := r.measurer.PseudoHeight(indent)
	return NewPseudoBlock(id, height)
}

func (r *TreeRenderer) zeroHeightBlock(parent *euphid.ID) Block {
	return NewSpacerBlock(zeroHeightBlockID(parent))
}

func (r *TreeRenderer) highlighted(id euphid.ID) bool {
	return r.cur.Kind == cursor.Msg && r.cur.ID == id
}

func (r *TreeRenderer) messageBlock(indent int, msg wire.Message, foldedCount int) Block {
	highlighted := r.highlighted(msg.ID)
	height := r.measurer.MessageHeight(msg, indent, foldedCount, highlighted)
	b := NewMessageBlock(msg.ID, height)
	b.Folded = foldedCount
	return b
}

func (r *TreeRenderer) placeholderBlock(indent int, id euphid.ID, foldedCount int) Block {
	highlighted := r.highlighted(id)
	height := r.measurer.PlaceholderHeight(indent, foldedCount, highlighted)
	b := NewPlaceholderBlock(id, height)
	b.Folded = foldedCount
	return b
}

func (r *TreeRenderer) layoutBottom() *Blocks {
	blocks := NewBlocks()
	switch {
	case r.cur.Kind == cursor.Editor && !r.cur.HasParent:
		blocks.PushBack(r.editorBlock(0, nil))
	case r.cur.Kind == cursor.Pseudo && !r.cur.HasParent:
		blocks.PushBack(r.pseudoBlock(0, nil))
	default:
		blocks.PushBack(r.zeroHeightBlock(nil))
	}
	return blocks
}

func (r *TreeRenderer) layoutSubtree(tr *tree.Tree, indent int, id euphid.ID, blocks *Blocks) {
	folded := r.ctx.Folded(id)
	foldedCount := 0
	if folded {
		if size := tr.SubtreeSize(id) - 1; size > 0 {
			foldedCount = size
		}
	}

	node, _ := tr.Node(id)
	var block Block
	if node != nil && !node.Placeholder {
		block = r.messageBlock(indent, node.Message, foldedCount)
	} else {
		block = r.placeholderBlock(indent, id, foldedCount)
	}
	blocks.PushBack(block)

	if !folded {
		for _, child := range tr.Children(id) {
			r.layoutSubtree(tr, indent+1, child, blocks)
		}
	}

	switch {
	case r.cur.Kind == cursor.Editor && r.cur.HasParent && r.cur.Parent == id:
		blocks.PushBack(r.editorBlock(indent+1, &id))
	case r.cur.Kind == cursor.Pseudo && r.cur.HasParent && r.cur.Parent == id:
		blocks.PushBack(r.pseudoBlock(indent+1, &id))
	default:
		blocks.PushBack(r.zeroHeightBlock(&id))
	}
}

func (r *TreeRenderer) layoutTree(tr *tree.Tree) *Blocks {
	blocks := NewBlocks()
	r.layoutSubtree(tr, 0, tr.Root(), blocks)
	return blocks
}

func (r *TreeRenderer) rootID(ctx context.Context, id BlockID) (euphid.ID, bool, error) {
	msgID, ok := id.MsgID()
	if !ok {
		return euphid.None, false, nil
	}
	path, err := r.store.Path(ctx, msgID)
	if err != nil {
		return euphid.None, false, err
	}
	if len(path) == 0 {
		return euphid.None, false, nil
	}
	return path[0], true, nil
}

// unfoldAncestors clears the fold set for every ancestor of id so the
// cursor block is guaranteed to appear in the layout.
func unfoldAncestors(tr *tree.Tree, id euphid.ID, unfold func(euphid.ID)) {
	for {
		parent, ok := tr.Parent(id)
		if !ok {
			return
		}
		unfold(parent)
		id = parent
	}
}

func (r *TreeRenderer) prepareInitialTree(ctx context.Context, cursorID BlockID, rootID euphid.ID, hasRoot bool, unfold func(euphid.ID)) error {
	r.topRootID, r.hasTopRoot = rootID, hasRoot
	r.bottomRootID, r.hasBottomRoot = rootID, hasRoot

	var blocks *Blocks
	if hasRoot {
		tr, err := r.store.Tree(ctx, rootID)
		if err != nil {
			return err
		}
		if msgID, ok := cursorID.MsgID(); ok && unfold != nil {
			unfoldAncestors(tr, msgID, unfold)
		}
		blocks = r.layoutTree(tr)
	} else {
		blocks = r.layoutBottom()
	}
	r.blocks.AppendBottom(blocks)
	return nil
}

func (r *TreeRenderer) makeCursorVisible() {
	cursorID := cursorBlockID(r.cur)
	if r.cur == r.ctx.LastCursor {
		ScrollSoBlockFocusOverlapsScrollArea(r, cursorID)
	} else {
		ScrollSoBlockFocusFullyOverlapsScrollArea(r, cursorID)
	}
}

// rootIsAbove reports whether a root id sorts strictly before b, with
// "no root" (the bottom-of-chat sentinel) counting as after every real
// root.
func rootIsAbove(a euphid.ID, hasA bool, b euphid.ID, hasB bool) bool {
	switch {
	case hasA && !hasB:
		return true
	case hasA && hasB:
		return a < b
	default:
		return false
	}
}

// ExpandTop and ExpandBottom satisfy Renderer, fetching one more tree
// in the requested direction from the store.
func (r *TreeRenderer) ExpandTop(ctx context.Context) error {
	var prevRootID euphid.ID
	var ok bool
	var err error
	if r.hasTopRoot {
		prevRootID, ok, err = r.store.PrevRootID(ctx, r.topRootID)
	} else {
		prevRootID, ok, err = r.store.LastRootID(ctx)
	}
	if err != nil {
		return err
	}
	if !ok {
		r.blocks.SetEndTop(true)
		return nil
	}
	tr, err := r.store.Tree(ctx, prevRootID)
	if err != nil {
		return err
	}
	r.blocks.AppendTop(r.layoutTree(tr))
	r.topRootID, r.hasTopRoot = prevRootID, true
	return nil
}

func (r *TreeRenderer) ExpandBottom(ctx context.Context) error {
	if !r.hasBottomRoot {
		r.blocks.SetEndBottom(true)
		return nil
	}
	nextRootID, ok, err := r.store.NextRootID(ctx, r.bottomRootID)
	if err != nil {
		return err
	}
	if ok {
		tr, err := r.store.Tree(ctx, nextRootID)
		if err != nil {
			return err
		}
		r.blocks.AppendBottom(r.layoutTree(tr))
		r.bottomRootID, r.hasBottomRoot = nextRootID, true
		return nil
	}
	r.blocks.AppendBottom(r.layoutBottom())
	r.blocks.SetEndBottom(true)
	r.hasBottomRoot = false
	return nil
}

// PrepareBlocksForDrawing runs the per-frame procedure of spec §4.H:
// lay out the cursor's tree, expand enough to fill the screen around
// it regardless of scroll offset, try to preserve the previous frame's
// scroll position, then apply the cursor-visibility and clamp rules.
// unfold is called once per ancestor of the cursor id that must be
// unfolded for the cursor block to appear.
func (r *TreeRenderer) PrepareBlocksForDrawing(ctx context.Context, unfold func(euphid.ID)) error {
	cursorID := cursorBlockID(r.cur)
	cursorRootID, hasCursorRoot, err := r.rootID(ctx, cursorID)
	if err != nil {
		return err
	}

	if err := r.prepareInitialTree(ctx, cursorID, cursorRootID, hasCursorRoot, unfold); err != nil {
		return err
	}
	if err := ExpandToFillScreenAroundBlock(ctx, r, cursorID); err != nil {
		return err
	}

	lastCursorID := cursorBlockID(r.ctx.LastCursor)
	if !ScrollToSetBlockTop(r, lastCursorID, r.ctx.LastCursorTop) {
		lastCursorRootID, hasLastCursorRoot, err := r.rootID(ctx, lastCursorID)
		if err != nil {
			return err
		}
		if rootIsAbove(lastCursorRootID, hasLastCursorRoot, cursorRootID, hasCursorRoot) {
			ScrollBlocksFullyBelowScreen(r)
		} else {
			ScrollBlocksFullyAboveScreen(r)
		}
	}

	r.makeCursorVisible()
	ClampScrollBiasedDownwards(r)
	return nil
}

// moveCursorSoItIsVisible re-anchors the logical cursor to whatever
// selectable block is nearest the scroll area after a manual scroll,
// mirroring the reference implementation's move_cursor_so_it_is_visible.
func (r *TreeRenderer) moveCursorSoItIsVisible() {
	cursorID := cursorBlockID(r.cur)
	if cursorID.Kind != BlockBottom && cursorID.Kind != BlockMsg {
		return
	}
	found, ok := FindCursorStartingAt(r, cursorID)
	if !ok {
		return
	}
	switch found.Kind {
	case BlockBottom:
		r.cur = cursor.NewBottom()
	case BlockMsg:
		r.cur = cursor.NewMsg(found.ID)
	}
}

// ScrollBy shifts the viewport by delta lines, expanding to keep the
// screen full and re-anchoring the cursor if it scrolled out of view.
func (r *TreeRenderer) ScrollBy(ctx context.Context, delta int) error {
	r.blocks.Shift(delta)
	if err := ExpandToFillVisibleArea(ctx, r); err != nil {
		return err
	}
	ClampScrollBiasedDownwards(r)

	r.moveCursorSoItIsVisible()

	r.makeCursorVisible()
	ClampScrollBiasedDownwards(r)
	return nil
}

// CenterCursor scrolls so the cursor block's focus range is centered in
// the visible area.
func (r *TreeRenderer) CenterCursor() {
	cursorID := cursorBlockID(r.cur)
	ScrollSoBlockIsCentered(r, cursorID)
	r.makeCursorVisible()
	ClampScrollBiasedDownwards(r)
}

// RenderInfo is what must be remembered from one frame to feed into the
// next frame's Context (LastCursor/LastCursorTop) and for computing
// newly-visible message ids to mark seen.
type RenderInfo struct {
	Cursor         cursor.Cursor
	CursorTop      int
	VisibleMsgIDs  []euphid.ID
}

// UpdateRenderInfo captures the state PrepareBlocksForDrawing needs on
// the next frame.
func (r *TreeRenderer) UpdateRenderInfo() RenderInfo {
	info := RenderInfo{Cursor: r.cur}

	cursorID := cursorBlockID(r.cur)
	if rng, _, ok := r.blocks.FindBlock(cursorID); ok {
		info.CursorTop = rng.Top
	}

	area := VisibleArea(r)
	for _, e := range r.blocks.Iter() {
		if !Overlaps(area, e.Range) {
			continue
		}
		if id, ok := e.Block.ID.MsgID(); ok && e.Block.ID.Kind == BlockMsg {
			info.VisibleMsgIDs = append(info.VisibleMsgIDs, id)
		}
	}
	return info
}

// VisibleBlocks returns every block whose focus range overlaps the
// visible area, for the final draw pass.
func (r *TreeRenderer) VisibleBlocks() []Entry {
	area := VisibleArea(r)
	var out []Entry
	for _, e := range r.blocks.Iter() {
		if Overlaps(area, e.Block.Focus(e.Range)) {
			out = append(out, e)
		}
	}
	return out
}
