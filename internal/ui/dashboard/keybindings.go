package dashboard

import tea "github.com/charmbracelet/bubbletea"

// SortOrder defines how servers are ordered on the dashboard.
type SortOrder int

const (
	SortByDefault SortOrder = iota // online first, then definition order
	SortByName
	SortByCPU
	SortByMemory
	sortOrderCount
)

func (s SortOrder) String() string {
	switch s {
	case SortByName:
		return "name"
	case SortByCPU:
		return "CPU"
	case SortByMemory:
		return "memory"
	default:
		return "default"
	}
}

// Next cycles to the next sort order.
func (s SortOrder) Next() SortOrder {
	return (s + 1) % sortOrderCount
}

// ViewMode is the current screen.
type ViewMode int

const (
	ViewList ViewMode = iota
	ViewDetail
)

const (
	KeyQuit        = "q"
	KeyQuitAlt     = "ctrl+c"
	KeyRefresh     = "r"
	KeyCycleSort   = "s"
	KeySelectPrev  = "up"
	KeySelectPrevK = "k"
	KeySelectNext  = "down"
	KeySelectNextJ = "j"
	KeySelectFirst = "home"
	KeySelectLast  = "end"
	KeyExpand      = "enter"
	KeyCollapse    = "esc"
	KeyToggleHelp  = "?"
	KeyConnect     = "c"
	KeyPassword    = "p"
)

// HandleKeyMsg processes keyboard input outside the password prompt.
// It reports whether the key was handled.
func (m *Model) HandleKeyMsg(msg tea.KeyMsg) (bool, tea.Cmd) {
	key := msg.String()

	if key == KeyToggleHelp {
		m.showHelp = !m.showHelp
		return true, nil
	}
	if m.showHelp && key == KeyCollapse {
		m.showHelp = false
		return true, nil
	}
	if m.viewMode == ViewDetail && key == KeyCollapse {
		m.viewMode = ViewList
		return true, nil
	}

	switch key {
	case KeyQuit, KeyQuitAlt:
		m.quitting = true
		return true, tea.Quit

	case KeyRefresh:
		return true, m.refresh()

	case KeyCycleSort:
		m.sortOrder = m.sortOrder.Next()
		m.sortServers()
		return true, nil

	case KeySelectPrev, KeySelectPrevK:
		if m.selected > 0 {
			m.selected--
			m.syncDetail()
		}
		return true, nil

	case KeySelectNext, KeySelectNextJ:
		if m.selected < len(m.servers)-1 {
			m.selected++
			m.syncDetail()
		}
		return true, nil

	case KeySelectFirst:
		m.selected = 0
		m.syncDetail()
		return true, nil

	case KeySelectLast:
		if len(m.servers) > 0 {
			m.selected = len(m.servers) - 1
			m.syncDetail()
		}
		return true, nil

	case KeyExpand:
		if m.viewMode == ViewList && len(m.servers) > 0 {
			m.viewMode = ViewDetail
			m.syncDetail()
		}
		return true, nil

	case KeyCollapse:
		m.viewMode = ViewList
		return true, nil

	case KeyConnect:
		id := m.SelectedServer()
		if id == "" {
			return true, nil
		}
		return true, m.connect(id, "")

	case KeyPassword:
		id := m.SelectedServer()
		if id == "" {
			return true, nil
		}
		return true, m.openPrompt(id)
	}

	return false, nil
}

// helpBindings are listed in the help overlay.
var helpBindings = []struct{ Key, Desc string }{
	{"q / Ctrl+C", "Quit"},
	{"r", "Refresh now"},
	{"s", "Cycle sort order"},
	{"up / k", "Select previous server"},
	{"down / j", "Select next server"},
	{"Home / End", "First / last server"},
	{"Enter", "Show server details"},
	{"Esc", "Back / close"},
	{"c", "Connect (poll now)"},
	{"p", "Enter password and connect"},
	{"?", "Toggle this help"},
}
