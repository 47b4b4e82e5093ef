package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fleetmon/fleetmon/internal/errors"
	"github.com/fleetmon/fleetmon/internal/monitor"
)

type serverItem struct {
	view monitor.ServerView
}

func (i serverItem) Title() string {
	if i.view.Name != "" && i.view.Name != i.view.ID {
		return i.view.ID + " (" + i.view.Name + ")"
	}
	return i.view.ID
}

func (i serverItem) Description() string {
	parts := []string{i.view.Status.String()}
	if i.view.Local {
		parts = append(parts, "this machine")
	} else {
		parts = append(parts, fmt.Sprintf("%s@%s:%d", i.view.User, i.view.Host, i.view.Port))
	}
	if i.view.NeedsCredentials {
		parts = append(parts, "needs password")
	}
	return strings.Join(parts, " | ")
}

func (i serverItem) FilterValue() string {
	return i.view.ID + " " + i.view.Name + " " + i.view.Host
}

// ServerPickerModel is a Bubble Tea list for choosing one server.
type ServerPickerModel struct {
	list     list.Model
	selected *monitor.ServerView
	quitting bool
}

var pickerKeys = struct {
	Enter key.Binding
	Quit  key.Binding
}{
	Enter: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "select")),
	Quit:  key.NewBinding(key.WithKeys("q", "esc", "ctrl+c"), key.WithHelp("q/esc", "cancel")),
}

// NewServerPickerModel lists servers in the order given.
func NewServerPickerModel(servers []monitor.ServerView) ServerPickerModel {
	items := make([]list.Item, len(servers))
	for i, s := range servers {
		items[i] = serverItem{view: s}
	}

	delegate := list.NewDefaultDelegate()
	delegate.Styles.SelectedTitle = delegate.Styles.SelectedTitle.
		Foreground(ColorPrimary).
		BorderForeground(ColorNeonPink)
	delegate.Styles.SelectedDesc = delegate.Styles.SelectedDesc.Foreground(ColorMuted)

	l := list.New(items, delegate, 80, 15)
	l.Title = "Select a server"
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(true)
	l.Styles.Title = lipgloss.NewStyle().Foreground(ColorPrimary).Bold(true).Padding(0, 0, 1, 0)
	l.Styles.HelpStyle = lipgloss.NewStyle().Foreground(ColorMuted)

	return ServerPickerModel{list: l}
}

// Init implements tea.Model.
func (m ServerPickerModel) Init() tea.Cmd { return nil }

// Update implements tea.Model.
func (m ServerPickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		// Let the filter input keep q and esc while typing.
		if m.list.FilterState() == list.Filtering {
			break
		}
		switch {
		case key.Matches(msg, pickerKeys.Enter):
			if item, ok := m.list.SelectedItem().(serverItem); ok {
				v := item.view
				m.selected = &v
			}
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, pickerKeys.Quit):
			m.quitting = true
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.list.SetSize(msg.Width, msg.Height-2)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m ServerPickerModel) View() string {
	if m.quitting {
		return ""
	}
	return m.list.View()
}

// Selected returns the chosen server, or nil if the picker was cancelled.
func (m ServerPickerModel) Selected() *monitor.ServerView {
	return m.selected
}

// PickServer asks the user to choose a server. A single server is returned
// without prompting; nil means the user cancelled.
func PickServer(servers []monitor.ServerView, output io.Writer, input io.Reader) (*monitor.ServerView, error) {
	switch len(servers) {
	case 0:
		return nil, errors.New(errors.ErrConfig, "No servers to pick from",
			"Add servers to fleetmon.yaml or ~/.ssh/config")
	case 1:
		return &servers[0], nil
	}

	p := tea.NewProgram(NewServerPickerModel(servers), tea.WithOutput(output), tea.WithInput(input))
	final, err := p.Run()
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig, "Server picker failed",
			"Pass the server ID as an argument instead")
	}
	if m, ok := final.(ServerPickerModel); ok {
		return m.Selected(), nil
	}
	return nil, nil
}
