package layout

import "github.com/groverooms/grove/internal/euphid"

// BlockKind tags which of the three anchor shapes a BlockID refers to.
type BlockKind int

const (
	// BlockBottom is the zero-height anchor at the end of the chat.
	BlockBottom BlockKind = iota
	// BlockMsg identifies a message's own rendered block.
	BlockMsg
	// BlockAfter is the zero-height anchor immediately following the
	// subtree of the given id.
	BlockAfter
)

// BlockID is the small union of block identities described in spec
// §4.G: Msg(id), After(id), or Bottom.
type BlockID struct {
	Kind BlockKind
	ID   euphid.ID
}

func MsgBlockID(id euphid.ID) BlockID   { return BlockID{Kind: BlockMsg, ID: id} }
func AfterBlockID(id euphid.ID) BlockID { return BlockID{Kind: BlockAfter, ID: id} }
func BottomBlockID() BlockID            { return BlockID{Kind: BlockBottom} }

// MsgID returns the message id a Msg or After block refers to.
func (b BlockID) MsgID() (euphid.ID, bool) {
	if b.Kind == BlockMsg || b.Kind == BlockAfter {
		return b.ID, true
	}
	return euphid.None, false
}

// Block is a positioned, pre-measured rectangular widget. Height and the
// focus sub-range are both set once, at construction time, by whichever
// code rendered the widget at the current frame width.
type Block struct {
	ID     BlockID
	Height int

	// FocusTop/FocusBottom are a line range relative to the block's own
	// top (0 == the block's first line), marking the sub-range that
	// counts as "the cursor" for visibility rules. Defaults to the
	// whole block.
	FocusTop    int
	FocusBottom int

	// CanBeCursor marks blocks FindCursorStartingAt may land on
	// (message blocks and the editor/pseudo block, not zero-height
	// spacers).
	CanBeCursor bool

	// Placeholder marks a block standing in for a message referenced by
	// id but not present in the store.
	Placeholder bool

	// Folded, when non-zero, is the number of descendants hidden behind
	// this block's "[N more]" annotation.
	Folded int
}

// NewSpacerBlock returns a zero-height anchor block (used for Bottom and
// un-targeted After anchors).
func NewSpacerBlock(id BlockID) Block {
	return Block{ID: id}
}

// NewMessageBlock returns a block of the given rendered height for a
// message, selectable as a cursor target.
func NewMessageBlock(id euphid.ID, height int) Block {
	return Block{ID: MsgBlockID(id), Height: height, FocusBottom: height, CanBeCursor: true}
}

// NewPlaceholderBlock returns a block standing in for a referenced but
// not-yet-downloaded message.
func NewPlaceholderBlock(id euphid.ID, height int) Block {
	return Block{ID: MsgBlockID(id), Height: height, FocusBottom: height, CanBeCursor: true, Placeholder: true}
}

// NewEditorBlock returns a block for the in-progress editor, with its
// focus pinned to the single line containing the text cursor.
func NewEditorBlock(at BlockID, height, cursorLine int) Block {
	return Block{ID: at, Height: height, FocusTop: cursorLine, FocusBottom: cursorLine + 1, CanBeCursor: true}
}

// NewPseudoBlock returns a read-only rendering of in-progress editor
// text, placed identically to where the editor block would be.
func NewPseudoBlock(at BlockID, height int) Block {
	return Block{ID: at, Height: height, FocusBottom: height, CanBeCursor: true}
}

// Focus returns the block's absolute focus range given where it has
// been placed.
func (b Block) Focus(placed Range) Range {
	return Range{Top: placed.Top + b.FocusTop, Bottom: placed.Top + b.FocusBottom}
}
