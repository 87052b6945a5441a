// Package chatui is the bubbletea terminal front end: it wires the room
// supervisor to a real terminal, translating key presses into the
// movement/reply vocabulary of internal/cursor and drawing the block
// sequence internal/layout produces via lipgloss styles.
package chatui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/groverooms/grove/internal/cursor"
	"github.com/groverooms/grove/internal/euphid"
	"github.com/groverooms/grove/internal/layout"
	"github.com/groverooms/grove/internal/room"
	"github.com/groverooms/grove/internal/store"
)

// roomView holds the per-room UI state that must persist across frames:
// the cursor, the fold set, and the previous frame's (cursor,
// cursor-top) pair the scroll rules use to hold position steady.
type roomView struct {
	cursor   cursor.Cursor
	folded   map[euphid.ID]bool
	lastInfo layout.RenderInfo
	haveInfo bool
	visible  []euphid.ID
}

func newRoomView() *roomView {
	return &roomView{cursor: cursor.NewBottom(), folded: make(map[euphid.ID]bool)}
}

// Model is the bubbletea root model for grove.
type Model struct {
	sup *room.Supervisor
	db  *store.DB
	log *zap.Logger

	width, height int

	focused   store.RoomID
	views     map[store.RoomID]*roomView
	scrolloff int

	compose textinput.Model
	lastErr string
}

// New constructs the root Model. initial is the room shown on startup,
// if any room has been autojoined. scrolloff is the configured
// top/bottom scroll margin (config.UI.Scrolloff).
func New(sup *room.Supervisor, db *store.DB, log *zap.Logger, initial store.RoomID, scrolloff int) Model {
	if log == nil {
		log = zap.NewNop()
	}
	ti := textinput.New()
	ti.Placeholder = "Type a message…"
	ti.CharLimit = 4096

	return Model{
		sup:       sup,
		db:        db,
		log:       log,
		focused:   initial,
		views:     map[store.RoomID]*roomView{initial: newRoomView()},
		scrolloff: scrolloff,
		compose:   ti,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitForNotification(m.sup), tickRedraw())
}

type notificationMsg room.Notification
type redrawTickMsg time.Time

func waitForNotification(sup *room.Supervisor) tea.Cmd {
	return func() tea.Msg {
		n := <-sup.Notifications()
		return notificationMsg(n)
	}
}

func tickRedraw() tea.Cmd {
	return tea.Tick(time.Second/15, func(t time.Time) tea.Msg { return redrawTickMsg(t) })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.compose.Width = msg.Width - 4
		return m, nil

	case notificationMsg:
		return m, waitForNotification(m.sup)

	case redrawTickMsg:
		return m, tea.Batch(tickRedraw(), m.markVisibleSeenCmd())

	case sendErrMsg:
		m.lastErr = msg.err.Error()
		return m, nil

	case tea.KeyMsg:
		m.lastErr = ""
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) view() *roomView {
	v, ok := m.views[m.focused]
	if !ok {
		v = newRoomView()
		m.views[m.focused] = v
	}
	return v
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	v := m.view()

	if v.cursor.Kind == cursor.Editor {
		return m.handleEditorKey(msg, v)
	}

	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "tab":
		m.cycleFocus()
		return m, nil
	case "j", "down":
		m.moveCursor(v, func(c cursor.Cursor, cs cursor.Store, tr cursor.Tree, f cursor.Folded) cursor.Cursor {
			return cursor.MoveDownInTree(c, cs, tr, f)
		})
	case "k", "up":
		m.moveCursor(v, func(c cursor.Cursor, cs cursor.Store, tr cursor.Tree, f cursor.Folded) cursor.Cursor {
			return cursor.MoveUpInTree(c, cs, tr, f)
		})
	case "[":
		m.moveCursor(v, func(c cursor.Cursor, cs cursor.Store, tr cursor.Tree, f cursor.Folded) cursor.Cursor {
			return cursor.MoveToPrevSibling(c, cs, tr)
		})
	case "]":
		m.moveCursor(v, func(c cursor.Cursor, cs cursor.Store, tr cursor.Tree, f cursor.Folded) cursor.Cursor {
			return cursor.MoveToNextSibling(c, cs, tr)
		})
	case "h", "left":
		m.moveCursorStoreOnly(v, cursor.MoveToParent)
	case "g":
		m.moveCursorStoreOnly(v, func(c cursor.Cursor, s cursor.Store) cursor.Cursor { return cursor.MoveToTop(s) })
	case "G":
		v.cursor = cursor.MoveToBottom()
	case "z":
		m.toggleFold(v)
	case "O":
		return m, m.markOlderSeenCmd(v)
	case "r":
		m.startReply(v, cursor.ParentForNormalReply)
	case "R":
		m.startReply(v, cursor.ParentForAlternateReply)
	case "t":
		v.cursor = cursor.NewEditor(nil, nil)
		m.compose.Focus()
		return m, textinput.Blink
	}
	return m, nil
}

func (m Model) handleEditorKey(msg tea.KeyMsg, v *roomView) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		v.cursor = cursor.NewBottom()
		m.compose.SetValue("")
		m.compose.Blur()
		return m, nil
	case tea.KeyEnter:
		content := m.compose.Value()
		m.compose.SetValue("")
		m.compose.Blur()
		parent := v.cursor.Parent
		hasParent := v.cursor.HasParent
		v.cursor = cursor.NewBottom()
		return m, m.sendCmd(content, parent, hasParent)
	}
	var cmd tea.Cmd
	m.compose, cmd = m.compose.Update(msg)
	return m, cmd
}

func (m Model) sendCmd(content string, parent euphid.ID, hasParent bool) tea.Cmd {
	if strings.TrimSpace(content) == "" {
		return nil
	}
	focused := m.focused
	sup := m.sup
	return func() tea.Msg {
		r, ok := sup.Room(focused)
		if !ok {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		var p *euphid.ID
		if hasParent {
			p = &parent
		}
		if _, err := r.Send(ctx, p, content); err != nil {
			return sendErrMsg{err}
		}
		return nil
	}
}

type sendErrMsg struct{ err error }

// markVisibleSeenCmd marks whatever was visible as of the last render
// read, so marking lags the actual redraw by at most one tick.
func (m Model) markVisibleSeenCmd() tea.Cmd {
	v := m.view()
	if len(v.visible) == 0 {
		return nil
	}
	ids := append([]euphid.ID(nil), v.visible...)
	focused := m.focused
	sup := m.sup
	log := m.log
	return func() tea.Msg {
		r, ok := sup.Room(focused)
		if !ok {
			return nil
		}
		if err := r.MarkVisibleSeen(context.Background(), ids); err != nil {
			log.Warn("mark visible seen", zap.Error(err))
		}
		return nil
	}
}

func (m *Model) cycleFocus() {
	rooms := m.sup.Rooms()
	if len(rooms) == 0 {
		return
	}
	for i, r := range rooms {
		if r.ID == m.focused {
			next := rooms[(i+1)%len(rooms)]
			m.focused = next.ID
			return
		}
	}
	m.focused = rooms[0].ID
}

func (m Model) moveCursor(v *roomView, fn func(cursor.Cursor, cursor.Store, cursor.Tree, cursor.Folded) cursor.Cursor) {
	ctx := context.Background()
	cs := room.NewCursorStore(ctx, m.db, m.focused, m.log)
	var tr cursor.Tree
	if v.haveInfo {
		ls := room.NewLayoutStore(m.db, m.focused)
		if rootID, ok := cs.RootOf(v.cursor.ID); ok {
			if t, err := ls.Tree(ctx, rootID); err == nil {
				tr = t
			}
		}
	}
	folded := func(id euphid.ID) bool { return v.folded[id] }
	v.cursor = fn(v.cursor, cs, tr, folded)
}

func (m Model) moveCursorStoreOnly(v *roomView, fn func(cursor.Cursor, cursor.Store) cursor.Cursor) {
	cs := room.NewCursorStore(context.Background(), m.db, m.focused, m.log)
	v.cursor = fn(v.cursor, cs)
}

// markOlderSeenCmd marks everything at or before the cursor read, the
// explicit counterpart to the automatic per-frame visible-seen marking.
func (m Model) markOlderSeenCmd(v *roomView) tea.Cmd {
	if v.cursor.Kind != cursor.Msg {
		return nil
	}
	upTo := v.cursor.ID
	focused := m.focused
	sup := m.sup
	log := m.log
	return func() tea.Msg {
		r, ok := sup.Room(focused)
		if !ok {
			return nil
		}
		if err := r.MarkOlderSeen(context.Background(), upTo); err != nil {
			log.Warn("mark older seen", zap.Error(err))
		}
		return nil
	}
}

func (m Model) toggleFold(v *roomView) {
	if v.cursor.Kind != cursor.Msg {
		return
	}
	v.folded[v.cursor.ID] = !v.folded[v.cursor.ID]
}

func (m Model) startReply(v *roomView, parentFor func(euphid.ID, cursor.Tree) *euphid.ID) {
	if v.cursor.Kind != cursor.Msg {
		return
	}
	ctx := context.Background()
	cs := room.NewCursorStore(ctx, m.db, m.focused, m.log)
	rootID, ok := cs.RootOf(v.cursor.ID)
	if !ok {
		return
	}
	ls := room.NewLayoutStore(m.db, m.focused)
	tr, err := ls.Tree(ctx, rootID)
	if err != nil {
		m.log.Warn("chatui: load tree for reply target", zap.Error(err))
		return
	}
	parent := parentFor(v.cursor.ID, tr)
	from := v.cursor
	v.cursor = cursor.NewEditor(&from, parent)
	m.compose.Focus()
}

// sidebarWidth is the fixed column count of the room list.
const sidebarWidth = 22

func (m Model) View() string {
	if m.width == 0 {
		return "starting up…"
	}

	header := headerStyle.Width(m.width).Render(fmt.Sprintf("grove — %s/%s", m.focused.Domain, m.focused.Name))

	footerContent := m.compose.View()
	if m.lastErr != "" {
		footerContent = footerContent + "\n" + errorStyle.Render(m.lastErr)
	}
	footer := footerBorderStyle.Width(m.width - 2).Render(footerContent)

	bodyHeight := m.height - lipgloss.Height(header) - lipgloss.Height(footer)
	sidebar := m.renderSidebar(bodyHeight)
	body := m.renderRoom(bodyHeight, m.width-lipgloss.Width(sidebar))

	main := lipgloss.JoinHorizontal(lipgloss.Top, sidebar, body)
	return lipgloss.JoinVertical(lipgloss.Left, header, main, footer)
}

// renderSidebar lists every tracked room, importance-ordered (connected
// first, then unseen count descending, then name), styling each by
// connection state and whether it has unread messages.
func (m Model) renderSidebar(height int) string {
	if height < 1 {
		height = 1
	}
	rooms := m.sup.SortedRooms(context.Background(), room.SortImportance)

	lines := make([]string, 0, len(rooms))
	for _, r := range rooms {
		marker := "  "
		if r.ID == m.focused {
			marker = "> "
		}
		unseen, err := m.db.UnseenCount(context.Background(), r.ID)
		if err != nil {
			m.log.Warn("sidebar unseen count", zap.Error(err))
		}

		name := marker + r.ID.Name
		if unseen > 0 {
			name = fmt.Sprintf("%s (%d)", name, unseen)
		}

		style := roomDisconnectedStyle
		switch {
		case unseen > 0:
			style = roomUnseenStyle
		case r.State() == room.ConnectedJoined:
			style = roomConnectedStyle
		}
		lines = append(lines, style.Render(name))
	}

	return sideListStyle.Width(sidebarWidth).Height(height).Render(strings.Join(lines, "\n"))
}

func (m Model) renderRoom(height, width int) string {
	if height < 1 {
		height = 1
	}
	if width < 1 {
		width = 1
	}
	v := m.view()

	ls := room.NewLayoutStore(m.db, m.focused)
	measurer := newMeasurer(width)

	frameCtx := layout.Context{
		Height:    height,
		Scrolloff: m.scrolloff,
		Folded:    func(id euphid.ID) bool { return v.folded[id] },
	}
	if v.haveInfo {
		frameCtx.LastCursor = v.lastInfo.Cursor
		frameCtx.LastCursorTop = v.lastInfo.CursorTop
	} else {
		frameCtx.LastCursor = cursor.NewBottom()
	}

	tr := layout.NewTreeRenderer(frameCtx, ls, measurer, v.cursor)
	if err := tr.PrepareBlocksForDrawing(context.Background(), func(id euphid.ID) { v.folded[id] = false }); err != nil {
		return errorStyle.Render(fmt.Sprintf("layout error: %v", err))
	}

	info := tr.UpdateRenderInfo()
	v.lastInfo = info
	v.haveInfo = true
	v.visible = info.VisibleMsgIDs

	var lines []string
	for _, e := range tr.VisibleBlocks() {
		id, ok := e.Block.ID.MsgID()
		if !ok {
			continue
		}
		seen, ok := measurer.seen[id]
		if !ok {
			lines = append(lines, placeholderStyle.Render("[unavailable]"))
			continue
		}
		lines = append(lines, measurer.renderMessage(seen.msg, seen.indent, seen.foldedCount, m.isHighlighted(v, id)))
	}
	content := strings.Join(lines, "\n")
	return lipgloss.NewStyle().Width(width).Height(height).Render(content)
}

func (m Model) isHighlighted(v *roomView, id euphid.ID) bool {
	return v.cursor.Kind == cursor.Msg && v.cursor.ID == id
}
