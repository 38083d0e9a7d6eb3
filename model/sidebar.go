package model

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/miosa/chatai/style"
)

// SidebarChoice is emitted when the user opens a conversation. ID 0 means
// "+ New".
type SidebarChoice struct {
	ID int64
}

// SidebarModel lists the user's conversations. Row 0 is "+ New"; the rest
// are conversation ids in Gateway order.
type SidebarModel struct {
	ids     []int64
	active  int64
	cursor  int
	focused bool
	loading bool
	width   int
	height  int
	offset  int
}

// NewSidebar returns an empty sidebar.
func NewSidebar() SidebarModel {
	return SidebarModel{width: 24}
}

// SetItems replaces the listed ids and the highlighted active id.
func (m *SidebarModel) SetItems(ids []int64, active int64) {
	m.ids = ids
	m.active = active
	if m.cursor > len(ids) {
		m.cursor = len(ids)
	}
}

// SetLoading shows a loading hint while the list is empty.
func (m *SidebarModel) SetLoading(v bool) { m.loading = v }

// SetSize sets the column's width and height.
func (m *SidebarModel) SetSize(w, h int) {
	m.width = w
	m.height = h
}

// Width returns the rendered width including the border.
func (m SidebarModel) Width() int { return m.width }

// Focus moves the cursor onto the active conversation.
func (m *SidebarModel) Focus() {
	m.focused = true
	m.cursor = 0
	for i, id := range m.ids {
		if id == m.active {
			m.cursor = i + 1
		}
	}
	m.scroll()
}

// Blur drops focus.
func (m *SidebarModel) Blur() { m.focused = false }

// Focused reports whether the sidebar owns the keyboard.
func (m SidebarModel) Focused() bool { return m.focused }

// Update handles arrow navigation and Enter while focused.
func (m SidebarModel) Update(message tea.Msg) (SidebarModel, tea.Cmd) {
	keyMsg, ok := message.(tea.KeyMsg)
	if !ok || !m.focused {
		return m, nil
	}
	rows := len(m.ids) + 1
	switch keyMsg.String() {
	case "up", "k":
		m.cursor = (m.cursor + rows - 1) % rows
	case "down", "j":
		m.cursor = (m.cursor + 1) % rows
	case "home", "g":
		m.cursor = 0
	case "end", "G":
		m.cursor = rows - 1
	case "enter":
		var id int64
		if m.cursor > 0 {
			id = m.ids[m.cursor-1]
		}
		return m, func() tea.Msg { return SidebarChoice{ID: id} }
	}
	m.scroll()
	return m, nil
}

func (m *SidebarModel) visibleRows() int {
	// title + blank line above the list
	n := m.height - 2
	if n < 1 {
		n = 1
	}
	return n
}

func (m *SidebarModel) scroll() {
	page := m.visibleRows()
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+page {
		m.offset = m.cursor - page + 1
	}
}

// View renders the conversation column.
func (m SidebarModel) View() string {
	inner := m.width - 2
	if inner < 8 {
		inner = 8
	}
	var lines []string
	lines = append(lines, style.SidebarTitle.Render("Conversations"), "")

	rows := make([]string, 0, len(m.ids)+1)
	rows = append(rows, m.row(0, style.SidebarNewItem.Render("+ New")))
	for i, id := range m.ids {
		label := fmt.Sprintf("Conversation %d", id)
		st := style.SidebarItem
		if id == m.active {
			st = style.SidebarActive
			label = "● " + label
		} else {
			label = "  " + label
		}
		rows = append(rows, m.row(i+1, st.Render(truncate(label, inner-2))))
	}

	end := m.offset + m.visibleRows()
	if end > len(rows) {
		end = len(rows)
	}
	lines = append(lines, rows[m.offset:end]...)

	if len(m.ids) == 0 {
		hint := "No conversations yet."
		if m.loading {
			hint = "Loading..."
		}
		lines = append(lines, "", style.Faint.Render(hint))
	}

	box := style.SidebarBox.Width(inner)
	if m.height > 0 {
		box = box.Height(m.height)
	}
	return box.Render(strings.Join(lines, "\n"))
}

func (m SidebarModel) row(i int, label string) string {
	if m.focused && i == m.cursor {
		return style.SidebarCursor.Render("> ") + label
	}
	return "  " + label
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n == 1 {
		return "…"
	}
	return string(r[:n-1]) + "…"
}
