// Package cursor implements the local selection pointer within a room
// view and the pure movement/reply-targeting rules that operate on it.
// The tree-crossing logic is grounded in the original client's
// Cursor<Id> and is kept deliberately side-effect free: every move
// either returns a new Cursor or leaves it unchanged.
package cursor

import "github.com/groverooms/grove/internal/euphid"

// Kind tags which variant of Cursor is active.
type Kind int

const (
	// Bottom is the end-of-history cursor: no selection.
	Bottom Kind = iota
	// Msg selects an existing message by id.
	Msg
	// Editor is composing a reply or new thread.
	Editor
	// Pseudo is an optimistic placeholder shown while a send is in flight.
	Pseudo
)

// Cursor is the tagged union described in spec §3. Fields not relevant to
// the active Kind are zero.
type Cursor struct {
	Kind Kind

	// Valid when Kind == Msg.
	ID euphid.ID

	// Valid when Kind == Editor or Pseudo.
	ComingFrom    euphid.ID
	HasComingFrom bool
	Parent        euphid.ID
	HasParent     bool
}

// NewBottom returns the Bottom cursor.
func NewBottom() Cursor { return Cursor{Kind: Bottom} }

// NewMsg returns a cursor selecting an existing message.
func NewMsg(id euphid.ID) Cursor { return Cursor{Kind: Msg, ID: id} }

// NewEditor returns an editor cursor. parent == nil means a new thread.
func NewEditor(comingFrom *Cursor, parent *euphid.ID) Cursor {
	c := Cursor{Kind: Editor}
	if comingFrom != nil {
		c.HasComingFrom = true
		c.ComingFrom = comingFrom.ID
	}
	if parent != nil {
		c.HasParent = true
		c.Parent = *parent
	}
	return c
}

// NewPseudo returns a pseudo-message cursor with the same shape as Editor.
func NewPseudo(comingFrom *Cursor, parent *euphid.ID) Cursor {
	c := NewEditor(comingFrom, parent)
	c.Kind = Pseudo
	return c
}

// SendSuccessful promotes a Pseudo cursor to Msg(id) once the real
// message arrives via a send-reply. Any other kind is left unchanged.
func (c Cursor) SendSuccessful(id euphid.ID) Cursor {
	if c.Kind != Pseudo {
		return c
	}
	return NewMsg(id)
}

// Store is the subset of the persistent store's navigation queries the
// movement rules need. *tree.Tree satisfies the embedded Tree part;
// internal/room.CursorStore adapts *store.DB to the whole interface.
type Store interface {
	Tree

	FirstRootID() (euphid.ID, bool)
	LastRootID() (euphid.ID, bool)
	PrevRootID(id euphid.ID) (euphid.ID, bool)
	NextRootID(id euphid.ID) (euphid.ID, bool)

	OlderMsgID(id euphid.ID) (euphid.ID, bool)
	NewerMsgID(id euphid.ID) (euphid.ID, bool)
	OlderUnseenMsgID(id euphid.ID) (euphid.ID, bool)
	NewerUnseenMsgID(id euphid.ID) (euphid.ID, bool)

	// Path returns the ascending chain of ids from the containing root
	// down to id. Used for root/parent movement and for comparing two
	// cursors' tree position when re-anchoring a scroll (§4.H step 3).
	Path(id euphid.ID) []euphid.ID

	// RootOf returns the root id of the tree containing id.
	RootOf(id euphid.ID) (euphid.ID, bool)
}

// Tree is the subset of *tree.Tree the movement rules use, scoped to
// whichever single tree is currently materialised for drawing. Callers
// pass the tree containing the cursor's current id; Store methods that
// cross tree boundaries are responsible for re-fetching a different
// tree from the persistent store as needed.
type Tree interface {
	Contains(id euphid.ID) bool
	Parent(id euphid.ID) (euphid.ID, bool)
	PrevSibling(id euphid.ID) (euphid.ID, bool)
	NextSibling(id euphid.ID) (euphid.ID, bool)
	FirstChild(id euphid.ID) (euphid.ID, bool)
	LastChild(id euphid.ID) (euphid.ID, bool)
}

// Folded reports whether id's subtree is currently folded. Movement
// rules that walk into subtrees must respect folds.
type Folded func(id euphid.ID) bool

func noFolds(euphid.ID) bool { return false }

// MoveToTop moves to the very first root in the room.
func MoveToTop(s Store) Cursor {
	if id, ok := s.FirstRootID(); ok {
		return NewMsg(id)
	}
	return NewBottom()
}

// MoveToBottom moves to the Bottom cursor.
func MoveToBottom() Cursor { return NewBottom() }

// MoveToOlderMsg moves to the next-older message by id, regardless of
// tree structure. A cursor with no id (Bottom, or Editor/Pseudo with no
// coming-from) cannot move.
func MoveToOlderMsg(c Cursor, s Store) Cursor {
	id, ok := currentID(c)
	if !ok {
		return c
	}
	if older, ok := s.OlderMsgID(id); ok {
		return NewMsg(older)
	}
	return c
}

// MoveToNewerMsg moves to the next-newer message by id. If there is no
// newer message, a Msg cursor falls off the end to Bottom.
func MoveToNewerMsg(c Cursor, s Store) Cursor {
	id, ok := currentID(c)
	if !ok {
		return c
	}
	if newer, ok := s.NewerMsgID(id); ok {
		return NewMsg(newer)
	}
	if c.Kind == Msg {
		return NewBottom()
	}
	return c
}

// MoveToOlderUnseenMsg mirrors MoveToOlderMsg, restricted to unseen
// messages.
func MoveToOlderUnseenMsg(c Cursor, s Store) Cursor {
	id, ok := currentID(c)
	if !ok {
		return c
	}
	if older, ok := s.OlderUnseenMsgID(id); ok {
		return NewMsg(older)
	}
	return c
}

// MoveToNewerUnseenMsg mirrors MoveToNewerMsg, restricted to unseen
// messages.
func MoveToNewerUnseenMsg(c Cursor, s Store) Cursor {
	id, ok := currentID(c)
	if !ok {
		return c
	}
	if newer, ok := s.NewerUnseenMsgID(id); ok {
		return NewMsg(newer)
	}
	if c.Kind == Msg {
		return NewBottom()
	}
	return c
}

// MoveToParent jumps to the cursor's parent: for Editor/Pseudo, the
// parent field if set; for Msg, the tree parent of id.
func MoveToParent(c Cursor, s Store) Cursor {
	switch c.Kind {
	case Editor, Pseudo:
		if c.HasParent {
			return NewMsg(c.Parent)
		}
		return c
	case Msg:
		path := s.Path(c.ID)
		if len(path) >= 2 {
			return NewMsg(path[len(path)-2])
		}
		return c
	default:
		return c
	}
}

// MoveToRoot jumps to the root of the cursor's current tree.
func MoveToRoot(c Cursor, s Store) Cursor {
	var id euphid.ID
	switch c.Kind {
	case Msg:
		id = c.ID
	case Pseudo:
		if !c.HasParent {
			return c
		}
		id = c.Parent
	default:
		return c
	}
	path := s.Path(id)
	if len(path) == 0 {
		return c
	}
	return NewMsg(path[0])
}

// MoveToPrevSibling and MoveToNextSibling cross tree boundaries via the
// store's root navigation when id is itself a root with no sibling in
// its own tree.
func MoveToPrevSibling(c Cursor, s Store, tr Tree) Cursor {
	return moveSibling(c, s, tr, -1)
}

func MoveToNextSibling(c Cursor, s Store, tr Tree) Cursor {
	return moveSibling(c, s, tr, +1)
}

func moveSibling(c Cursor, s Store, tr Tree, dir int) Cursor {
	switch c.Kind {
	case Bottom:
		if dir < 0 {
			if id, ok := s.LastRootID(); ok {
				return NewMsg(id)
			}
		} else {
			if id, ok := s.FirstRootID(); ok {
				return NewMsg(id)
			}
		}
		return c
	case Pseudo:
		if c.HasParent {
			return c
		}
		if dir < 0 {
			if id, ok := s.LastRootID(); ok {
				return NewMsg(id)
			}
		} else {
			if id, ok := s.FirstRootID(); ok {
				return NewMsg(id)
			}
		}
		return c
	case Msg:
		if tr != nil && tr.Contains(c.ID) {
			var sib euphid.ID
			var ok bool
			if dir < 0 {
				sib, ok = tr.PrevSibling(c.ID)
			} else {
				sib, ok = tr.NextSibling(c.ID)
			}
			if ok {
				return NewMsg(sib)
			}
			if _, hasParent := tr.Parent(c.ID); !hasParent {
				// id is the root of its tree: cross into the
				// neighbouring tree via root navigation.
				if dir < 0 {
					if id, ok := s.PrevRootID(c.ID); ok {
						return NewMsg(id)
					}
				} else {
					if id, ok := s.NextRootID(c.ID); ok {
						return NewMsg(id)
					}
				}
			}
		}
		return c
	default:
		// Editor is never a sibling-move target: editing in place.
		return c
	}
}

// MoveUpInTree and MoveDownInTree implement the "visual previous/next
// line in pre-order, respecting folds" traversal used by the up/down
// arrow keys.
func MoveUpInTree(c Cursor, s Store, tr Tree, folded Folded) Cursor {
	if folded == nil {
		folded = noFolds
	}
	id, ok := currentID(c)
	if !ok || tr == nil || !tr.Contains(id) {
		return c
	}
	if above, ok := findAboveInTree(tr, id, folded); ok {
		return NewMsg(above)
	}
	return MoveToPrevSibling(c, s, tr)
}

func MoveDownInTree(c Cursor, s Store, tr Tree, folded Folded) Cursor {
	if folded == nil {
		folded = noFolds
	}
	id, ok := currentID(c)
	if !ok || tr == nil || !tr.Contains(id) {
		return c
	}
	if below, ok := findBelowInTree(tr, id, folded); ok {
		return NewMsg(below)
	}
	return MoveToNextSibling(c, s, tr)
}

// findAboveInTree returns the id immediately above id in pre-order:
// the prev sibling's deepest last-child (respecting folds), or if there
// is no prev sibling, the parent.
func findAboveInTree(tr Tree, id euphid.ID, folded Folded) (euphid.ID, bool) {
	if prev, ok := tr.PrevSibling(id); ok {
		return lastDescendant(tr, prev, folded), true
	}
	if parent, ok := tr.Parent(id); ok {
		return parent, true
	}
	return euphid.None, false
}

func lastDescendant(tr Tree, id euphid.ID, folded Folded) euphid.ID {
	for !folded(id) {
		child, ok := tr.LastChild(id)
		if !ok {
			break
		}
		id = child
	}
	return id
}

// findBelowInTree returns the id immediately below id in pre-order: the
// first child (unless folded), else the next sibling, else the next
// sibling of the nearest ancestor.
func findBelowInTree(tr Tree, id euphid.ID, folded Folded) (euphid.ID, bool) {
	if !folded(id) {
		if child, ok := tr.FirstChild(id); ok {
			return child, true
		}
	}
	cur := id
	for {
		if sib, ok := tr.NextSibling(cur); ok {
			return sib, true
		}
		parent, ok := tr.Parent(cur)
		if !ok {
			return euphid.None, false
		}
		cur = parent
	}
}

func currentID(c Cursor) (euphid.ID, bool) {
	switch c.Kind {
	case Msg:
		return c.ID, true
	case Editor, Pseudo:
		if c.HasComingFrom {
			return c.ComingFrom, true
		}
		return euphid.None, false
	default:
		return euphid.None, false
	}
}

// ParentForNormalReply computes the parent id for a "normal reply" to
// the message at id: id itself if it has a younger sibling or is a
// root, else id's parent. A nil return means "new thread at top level".
func ParentForNormalReply(id euphid.ID, tr Tree) *euphid.ID {
	if _, ok := tr.NextSibling(id); ok {
		return idPtr(id)
	}
	if parent, ok := tr.Parent(id); ok {
		return idPtr(parent)
	}
	return idPtr(id)
}

// ParentForAlternateReply is the logical opposite of
// ParentForNormalReply: id itself if it has no younger sibling or is a
// root, else id's parent.
func ParentForAlternateReply(id euphid.ID, tr Tree) *euphid.ID {
	if _, ok := tr.NextSibling(id); !ok {
		return idPtr(id)
	}
	if parent, ok := tr.Parent(id); ok {
		return idPtr(parent)
	}
	return idPtr(id)
}

func idPtr(id euphid.ID) *euphid.ID { return &id }
