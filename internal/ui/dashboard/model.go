// Package dashboard is the terminal fleet view behind 'fleetmon watch': a
// Bubble Tea program that renders one card per server from a running
// fleetmon API and lets the user connect or supply passwords in place.
package dashboard

import (
	"context"
	"sort"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/fleetmon/fleetmon/internal/errors"
	"github.com/fleetmon/fleetmon/internal/monitor"
	"github.com/fleetmon/fleetmon/internal/monitor/metrics"
)

const (
	DefaultInterval   = 5 * time.Second
	DefaultHistoryLen = 60

	fetchTimeout    = 10 * time.Second
	connectTimeout  = 2 * time.Minute
	spinnerInterval = 150 * time.Millisecond
)

// Source is where the dashboard reads fleet state. *client.Client
// satisfies it.
type Source interface {
	Servers(ctx context.Context) ([]monitor.ServerView, error)
	History(ctx context.Context, id string, limit int) ([]*metrics.Snapshot, error)
	Connect(ctx context.Context, id, password string) (monitor.ServerView, error)
}

// Options configure a Model.
type Options struct {
	Interval   time.Duration
	HistoryLen int
	// Events, when set, applies status and snapshot events between refreshes.
	Events <-chan monitor.Event
	// Server is shown in the header.
	Server string
}

// Model is the Bubble Tea model for the dashboard.
type Model struct {
	source     Source
	events     <-chan monitor.Event
	serverAddr string
	interval   time.Duration
	historyLen int

	servers    []monitor.ServerView
	order      map[string]int
	history    map[string][]*metrics.Snapshot
	selected   int
	lastUpdate time.Time
	fetchErr   string
	notice     string
	fetching   bool
	connecting map[string]bool

	width     int
	height    int
	quitting  bool
	sortOrder SortOrder
	viewMode  ViewMode
	showHelp  bool

	prompt    textinput.Model
	prompting bool
	promptFor string

	spinnerFrame int

	detail        viewport.Model
	viewportReady bool

	now func() time.Time
}

type tickMsg time.Time

type spinnerTickMsg time.Time

// fleetMsg carries one full refresh.
type fleetMsg struct {
	servers []monitor.ServerView
	history map[string][]*metrics.Snapshot
	err     error
	at      time.Time
}

type connectMsg struct {
	id   string
	view monitor.ServerView
	err  error
}

type eventMsg monitor.Event

type streamClosedMsg struct{}

// NewModel creates a dashboard reading from source.
func NewModel(source Source, opts Options) Model {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.HistoryLen <= 0 {
		opts.HistoryLen = DefaultHistoryLen
	}

	input := textinput.New()
	input.EchoMode = textinput.EchoPassword
	input.EchoCharacter = '•'
	input.Placeholder = "password"
	input.CharLimit = 256

	return Model{
		source:     source,
		events:     opts.Events,
		serverAddr: opts.Server,
		interval:   opts.Interval,
		historyLen: opts.HistoryLen,
		order:      make(map[string]int),
		history:    make(map[string][]*metrics.Snapshot),
		connecting: make(map[string]bool),
		prompt:     input,
		fetching:   true,
		now:        time.Now,
	}
}

// Init starts the first fetch, the refresh timer and the event listener.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		fetchCmd(m.source, m.historyLen),
		m.tickCmd(),
		m.spinnerTickCmd(),
		waitEvent(m.events),
	)
}

// Update handles messages and updates the model state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.prompting {
			return m, m.handlePromptKey(msg)
		}
		if handled, cmd := m.HandleKeyMsg(msg); handled {
			return m, cmd
		}
		if m.viewMode == ViewDetail && m.viewportReady {
			var cmd tea.Cmd
			m.detail, cmd = m.detail.Update(msg)
			return m, cmd
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		const headerHeight, footerHeight = 3, 2
		vh := m.height - headerHeight - footerHeight
		if vh < 1 {
			vh = 1
		}
		if !m.viewportReady {
			m.detail = viewport.New(m.width, vh)
			m.detail.YPosition = headerHeight
			m.viewportReady = true
		} else {
			m.detail.Width = m.width
			m.detail.Height = vh
		}
		m.refreshDetail(false)

	case tickMsg:
		return m, tea.Batch(m.tickCmd(), m.refresh())

	case spinnerTickMsg:
		m.spinnerFrame = (m.spinnerFrame + 1) % 10000
		return m, m.spinnerTickCmd()

	case fleetMsg:
		m.fetching = false
		m.applyFleet(msg)

	case connectMsg:
		delete(m.connecting, msg.id)
		if msg.err != nil {
			m.notice = msg.id + ": " + errors.Summary(msg.err)
			return m, nil
		}
		m.applyView(msg.view)
		m.notice = msg.id + ": " + msg.view.Status.String()
		return m, m.refresh()

	case eventMsg:
		m.applyEvent(monitor.Event(msg))
		return m, waitEvent(m.events)

	case streamClosedMsg:
		m.events = nil
		m.notice = "live updates stopped; refreshing every " + m.interval.String()
	}

	return m, nil
}

// View renders the dashboard.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.showHelp {
		return m.renderHelpOverlay()
	}
	if m.viewMode == ViewDetail {
		return m.renderDetailView()
	}
	return m.renderDashboard()
}

func (m Model) tickCmd() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) spinnerTickCmd() tea.Cmd {
	return tea.Tick(spinnerInterval, func(t time.Time) tea.Msg { return spinnerTickMsg(t) })
}

// refresh starts a fetch unless one is already running.
func (m *Model) refresh() tea.Cmd {
	if m.fetching {
		return nil
	}
	m.fetching = true
	return fetchCmd(m.source, m.historyLen)
}

func fetchCmd(src Source, historyLen int) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()

		servers, err := src.Servers(ctx)
		if err != nil {
			return fleetMsg{err: err, at: time.Now()}
		}
		if servers == nil {
			servers = []monitor.ServerView{}
		}
		history := make(map[string][]*metrics.Snapshot, len(servers))
		for _, s := range servers {
			snaps, err := src.History(ctx, s.ID, historyLen)
			if err != nil {
				return fleetMsg{servers: servers, history: history, err: err, at: time.Now()}
			}
			history[s.ID] = snaps
		}
		return fleetMsg{servers: servers, history: history, at: time.Now()}
	}
}

func waitEvent(ch <-chan monitor.Event) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return streamClosedMsg{}
		}
		return eventMsg(ev)
	}
}

func (m *Model) connect(id, password string) tea.Cmd {
	if m.connecting[id] {
		return nil
	}
	m.connecting[id] = true
	m.notice = "connecting to " + id + "..."
	src := m.source
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()
		view, err := src.Connect(ctx, id, password)
		return connectMsg{id: id, view: view, err: err}
	}
}

func (m *Model) openPrompt(id string) tea.Cmd {
	m.prompting = true
	m.promptFor = id
	m.prompt.SetValue("")
	return m.prompt.Focus()
}

func (m *Model) closePrompt() {
	m.prompting = false
	m.promptFor = ""
	m.prompt.SetValue("")
	m.prompt.Blur()
}

func (m *Model) handlePromptKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "enter":
		id, password := m.promptFor, m.prompt.Value()
		m.closePrompt()
		if password == "" {
			return nil
		}
		return m.connect(id, password)
	case "esc":
		m.closePrompt()
		return nil
	case "ctrl+c":
		m.quitting = true
		return tea.Quit
	}
	var cmd tea.Cmd
	m.prompt, cmd = m.prompt.Update(msg)
	return cmd
}

func (m *Model) applyFleet(msg fleetMsg) {
	if msg.err != nil {
		m.fetchErr = errors.Summary(msg.err)
	} else {
		m.fetchErr = ""
	}
	if msg.servers == nil {
		return
	}

	for i, s := range msg.servers {
		m.order[s.ID] = i
	}
	m.servers = msg.servers
	for id, snaps := range msg.history {
		m.history[id] = snaps
	}
	m.lastUpdate = msg.at

	if m.selected >= len(m.servers) {
		m.selected = len(m.servers) - 1
	}
	if m.selected < 0 && len(m.servers) > 0 {
		m.selected = 0
	}
	m.sortServers()
	m.refreshDetail(false)
}

func (m *Model) applyView(v monitor.ServerView) {
	for i := range m.servers {
		if m.servers[i].ID == v.ID {
			m.servers[i] = v
			m.sortServers()
			m.refreshDetail(false)
			return
		}
	}
}

// applyEvent folds a live event into the current state so cards move
// between refreshes.
func (m *Model) applyEvent(ev monitor.Event) {
	switch ev.Type {
	case monitor.EventStatus:
		if ev.Status == nil {
			return
		}
		for i := range m.servers {
			if m.servers[i].ID == ev.ServerID {
				m.servers[i].Status = *ev.Status
				m.servers[i].RetryCount = ev.RetryCount
				break
			}
		}
		m.sortServers()

	case monitor.EventSnapshot:
		if ev.Snapshot == nil {
			return
		}
		snaps := append(m.history[ev.ServerID], ev.Snapshot)
		if len(snaps) > m.historyLen {
			snaps = snaps[len(snaps)-m.historyLen:]
		}
		m.history[ev.ServerID] = snaps
		m.lastUpdate = ev.Time
	}
	m.refreshDetail(false)
}

// refreshDetail re-renders the detail viewport when it is showing.
func (m *Model) refreshDetail(top bool) {
	if m.viewMode != ViewDetail || !m.viewportReady {
		return
	}
	m.detail.SetContent(m.renderDetailContent())
	if top {
		m.detail.GotoTop()
	}
}

func (m *Model) syncDetail() {
	m.refreshDetail(true)
}

// OnlineCount returns how many servers are online.
func (m Model) OnlineCount() int {
	n := 0
	for _, s := range m.servers {
		if s.Status.Kind == monitor.StatusOnline {
			n++
		}
	}
	return n
}

// AttentionCount returns how many servers need a password or a manual retry.
func (m Model) AttentionCount() int {
	n := 0
	for _, s := range m.servers {
		if s.NeedsCredentials || s.NeedsManualRetry {
			n++
		}
	}
	return n
}

// SelectedServer returns the selected server's ID, or "".
func (m Model) SelectedServer() string {
	if m.selected >= 0 && m.selected < len(m.servers) {
		return m.servers[m.selected].ID
	}
	return ""
}

func (m Model) selectedView() (monitor.ServerView, bool) {
	if m.selected >= 0 && m.selected < len(m.servers) {
		return m.servers[m.selected], true
	}
	return monitor.ServerView{}, false
}

// sortServers reorders servers, keeping the same server selected.
func (m *Model) sortServers() {
	if len(m.servers) == 0 {
		return
	}
	selectedID := m.SelectedServer()

	latestCPU := func(id string) (float64, bool) {
		if s := latest(m.history[id]); s != nil && s.CPU != nil {
			return s.CPU.UsagePercent, true
		}
		return 0, false
	}
	latestMem := func(id string) (float64, bool) {
		if s := latest(m.history[id]); s != nil && s.Memory != nil {
			return s.Memory.UsedPercent(), true
		}
		return 0, false
	}
	byMetric := func(get func(string) (float64, bool)) func(i, j int) bool {
		return func(i, j int) bool {
			a, j2 := m.servers[i].ID, m.servers[j].ID
			va, okA := get(a)
			vb, okB := get(j2)
			if okA != okB {
				return okA
			}
			if !okA || va == vb {
				return m.order[a] < m.order[j2]
			}
			return va > vb
		}
	}

	switch m.sortOrder {
	case SortByName:
		sort.SliceStable(m.servers, func(i, j int) bool { return m.servers[i].Name < m.servers[j].Name })
	case SortByCPU:
		sort.SliceStable(m.servers, byMetric(latestCPU))
	case SortByMemory:
		sort.SliceStable(m.servers, byMetric(latestMem))
	default:
		sort.SliceStable(m.servers, func(i, j int) bool {
			onI := m.servers[i].Status.Kind == monitor.StatusOnline
			onJ := m.servers[j].Status.Kind == monitor.StatusOnline
			if onI != onJ {
				return onI
			}
			return m.order[m.servers[i].ID] < m.order[m.servers[j].ID]
		})
	}

	for i, s := range m.servers {
		if s.ID == selectedID {
			m.selected = i
			break
		}
	}
}
