package dashboard

import (
	"context"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fleetmon/fleetmon/internal/errors"
	"github.com/fleetmon/fleetmon/internal/monitor"
	"github.com/fleetmon/fleetmon/internal/monitor/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu        sync.Mutex
	servers   []monitor.ServerView
	history   map[string][]*metrics.Snapshot
	err       error
	connected []string
	passwords []string
}

func (f *fakeSource) Servers(context.Context) ([]monitor.ServerView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]monitor.ServerView(nil), f.servers...), nil
}

func (f *fakeSource) History(_ context.Context, id string, limit int) ([]*metrics.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snaps := f.history[id]
	if len(snaps) > limit {
		snaps = snaps[len(snaps)-limit:]
	}
	return snaps, nil
}

func (f *fakeSource) Connect(_ context.Context, id, password string) (monitor.ServerView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = append(f.connected, id)
	f.passwords = append(f.passwords, password)
	for _, s := range f.servers {
		if s.ID == id {
			s.Status = monitor.Status{Kind: monitor.StatusOnline}
			return s, nil
		}
	}
	return monitor.ServerView{}, errors.Newf(errors.ErrNotFound, "Server '%s' not found", id)
}

func view(id, name string, kind monitor.StatusKind) monitor.ServerView {
	return monitor.ServerView{
		Server: monitor.Server{ID: id, Name: name, Host: id + ".lan", Port: 22, User: "ops", Interval: 30 * time.Second},
		Status: monitor.Status{Kind: kind},
	}
}

func snap(at time.Time, cpu, memUsed float64) *metrics.Snapshot {
	return &metrics.Snapshot{
		Timestamp: at,
		CPU:       &metrics.CPU{UsagePercent: cpu, Load1: 0.5, Cores: 4},
		Memory:    &metrics.Memory{Total: 1000, Used: uint64(memUsed * 10), Available: 1000 - uint64(memUsed*10)},
	}
}

func newFleet() *fakeSource {
	now := time.Now()
	return &fakeSource{
		servers: []monitor.ServerView{
			view("web", "web", monitor.StatusOffline),
			view("db", "db", monitor.StatusOnline),
			view("cache", "cache", monitor.StatusOnline),
		},
		history: map[string][]*metrics.Snapshot{
			"db":    {snap(now.Add(-time.Minute), 20, 40), snap(now, 30, 50)},
			"cache": {snap(now, 80, 90)},
		},
	}
}

// loaded runs the first fetch synchronously.
func loaded(t *testing.T, src Source) Model {
	t.Helper()
	m := NewModel(src, Options{})
	updated, _ := m.Update(fetchCmd(src, m.historyLen)())
	return updated.(Model)
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestNewModelDefaults(t *testing.T) {
	m := NewModel(&fakeSource{}, Options{})
	assert.Equal(t, DefaultInterval, m.interval)
	assert.Equal(t, DefaultHistoryLen, m.historyLen)
	assert.True(t, m.fetching)
	assert.NotNil(t, m.history)
	assert.NotNil(t, m.connecting)

	m = NewModel(&fakeSource{}, Options{Interval: time.Second, HistoryLen: 5})
	assert.Equal(t, time.Second, m.interval)
	assert.Equal(t, 5, m.historyLen)
}

func TestModelFetchSortsOnlineFirst(t *testing.T) {
	m := loaded(t, newFleet())

	require.Len(t, m.servers, 3)
	ids := []string{m.servers[0].ID, m.servers[1].ID, m.servers[2].ID}
	assert.Equal(t, []string{"db", "cache", "web"}, ids)
	assert.Equal(t, 2, m.OnlineCount())
	assert.False(t, m.fetching)
	assert.Len(t, m.history["db"], 2)
	assert.False(t, m.lastUpdate.IsZero())
}

func TestModelFetchError(t *testing.T) {
	src := &fakeSource{err: errors.New(errors.ErrTransient, "Can't reach fleetmon at http://x", "")}
	m := loaded(t, src)

	assert.Empty(t, m.servers)
	assert.Contains(t, m.fetchErr, "Can't reach fleetmon")
	assert.Contains(t, m.View(), "Can't reach fleetmon")
}

func TestModelSortOrders(t *testing.T) {
	tests := []struct {
		order SortOrder
		want  []string
	}{
		{SortByDefault, []string{"db", "cache", "web"}},
		{SortByName, []string{"cache", "db", "web"}},
		{SortByCPU, []string{"cache", "db", "web"}},
		{SortByMemory, []string{"cache", "db", "web"}},
	}
	for _, tt := range tests {
		t.Run(tt.order.String(), func(t *testing.T) {
			m := loaded(t, newFleet())
			m.sortOrder = tt.order
			m.sortServers()
			var got []string
			for _, s := range m.servers {
				got = append(got, s.ID)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSortKeepsSelection(t *testing.T) {
	m := loaded(t, newFleet())
	m.selected = 2
	require.Equal(t, "web", m.SelectedServer())

	updated, _ := m.Update(key("s"))
	m = updated.(Model)
	assert.Equal(t, SortByName, m.sortOrder)
	assert.Equal(t, "web", m.SelectedServer())
}

func TestSortOrderNextCycles(t *testing.T) {
	assert.Equal(t, SortByName, SortByDefault.Next())
	assert.Equal(t, SortByDefault, SortByMemory.Next())
}

func TestNavigationKeys(t *testing.T) {
	m := loaded(t, newFleet())

	steps := []struct {
		key  string
		want int
	}{
		{"down", 1},
		{"j", 2},
		{"j", 2},
		{"up", 1},
		{"k", 0},
		{"k", 0},
	}
	for _, s := range steps {
		updated, _ := m.Update(key(s.key))
		m = updated.(Model)
		assert.Equal(t, s.want, m.selected, "after %q", s.key)
	}
}

func TestDetailViewToggle(t *testing.T) {
	m := loaded(t, newFleet())
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	m = updated.(Model)

	updated, _ = m.Update(key("enter"))
	m = updated.(Model)
	assert.Equal(t, ViewDetail, m.viewMode)
	assert.Contains(t, m.View(), "Monitoring")
	assert.Contains(t, m.View(), "CPU")

	updated, _ = m.Update(key("esc"))
	m = updated.(Model)
	assert.Equal(t, ViewList, m.viewMode)
}

func TestHelpToggle(t *testing.T) {
	m := loaded(t, newFleet())
	updated, _ := m.Update(key("?"))
	m = updated.(Model)
	assert.True(t, m.showHelp)
	assert.Contains(t, m.View(), "Keyboard Shortcuts")

	updated, _ = m.Update(key("esc"))
	m = updated.(Model)
	assert.False(t, m.showHelp)
}

func TestQuit(t *testing.T) {
	m := loaded(t, newFleet())
	updated, cmd := m.Update(key("q"))
	m = updated.(Model)
	assert.True(t, m.quitting)
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.Empty(t, m.View())
}

func TestConnectKey(t *testing.T) {
	src := newFleet()
	m := loaded(t, src)
	m.selected = 2

	updated, cmd := m.Update(key("c"))
	m = updated.(Model)
	require.NotNil(t, cmd)
	assert.True(t, m.connecting["web"])

	// A second press while connecting does nothing.
	_, again := m.Update(key("c"))
	assert.Nil(t, again)

	updated, _ = m.Update(cmd())
	m = updated.(Model)
	assert.False(t, m.connecting["web"])
	assert.Equal(t, []string{"web"}, src.connected)
	assert.Equal(t, []string{""}, src.passwords)
	assert.Contains(t, m.notice, "web: online")
}

func TestConnectErrorShowsNotice(t *testing.T) {
	m := loaded(t, newFleet())
	updated, _ := m.Update(connectMsg{id: "gone", err: errors.Newf(errors.ErrNotFound, "Server '%s' not found", "gone")})
	m = updated.(Model)
	assert.Contains(t, m.notice, "Server 'gone' not found")
}

func TestPasswordPrompt(t *testing.T) {
	src := newFleet()
	m := loaded(t, src)
	m.selected = 0

	updated, _ := m.Update(key("p"))
	m = updated.(Model)
	require.True(t, m.prompting)
	assert.Equal(t, "db", m.promptFor)
	assert.Contains(t, m.View(), "Password for db")

	// Keys go to the prompt, not the key map.
	updated, _ = m.Update(key("q"))
	m = updated.(Model)
	assert.False(t, m.quitting)
	updated, _ = m.Update(key("w"))
	m = updated.(Model)
	assert.Equal(t, "qw", m.prompt.Value())
	assert.NotContains(t, m.View(), "qw")

	updated, cmd := m.Update(key("enter"))
	m = updated.(Model)
	assert.False(t, m.prompting)
	require.NotNil(t, cmd)
	cmd()
	assert.Equal(t, []string{"qw"}, src.passwords)
}

func TestPasswordPromptCancel(t *testing.T) {
	m := loaded(t, newFleet())
	updated, _ := m.Update(key("p"))
	m = updated.(Model)
	updated, _ = m.Update(key("x"))
	m = updated.(Model)

	updated, cmd := m.Update(key("esc"))
	m = updated.(Model)
	assert.False(t, m.prompting)
	assert.Nil(t, cmd)
	assert.Empty(t, m.prompt.Value())
}

func TestEventsUpdateState(t *testing.T) {
	ch := make(chan monitor.Event, 2)
	src := newFleet()
	m := NewModel(src, Options{Events: ch, HistoryLen: 2})
	updated, _ := m.Update(fetchCmd(src, m.historyLen)())
	m = updated.(Model)

	offline := monitor.Status{Kind: monitor.StatusOffline}
	updated, cmd := m.Update(eventMsg(monitor.Event{Type: monitor.EventStatus, ServerID: "db", Status: &offline, RetryCount: 3}))
	m = updated.(Model)
	require.NotNil(t, cmd)
	for _, s := range m.servers {
		if s.ID == "db" {
			assert.Equal(t, monitor.StatusOffline, s.Status.Kind)
			assert.Equal(t, 3, s.RetryCount)
		}
	}

	at := time.Now().Add(time.Minute)
	updated, _ = m.Update(eventMsg(monitor.Event{Type: monitor.EventSnapshot, ServerID: "db", Time: at, Snapshot: snap(at, 99, 10)}))
	m = updated.(Model)
	require.Len(t, m.history["db"], 2)
	assert.Equal(t, 99.0, latest(m.history["db"]).CPU.UsagePercent)

	close(ch)
	msg := waitEvent(ch)()
	updated, _ = m.Update(msg)
	m = updated.(Model)
	assert.Nil(t, m.events)
	assert.Contains(t, m.notice, "live updates stopped")
}

func TestRefreshSkipsWhileFetching(t *testing.T) {
	m := NewModel(newFleet(), Options{})
	assert.Nil(t, m.refresh())

	m.fetching = false
	assert.NotNil(t, m.refresh())
	assert.True(t, m.fetching)
}

func TestAttentionCount(t *testing.T) {
	src := newFleet()
	src.servers[0].NeedsCredentials = true
	src.servers[1].NeedsManualRetry = true
	m := loaded(t, src)
	assert.Equal(t, 2, m.AttentionCount())
	assert.Contains(t, m.View(), "2 need attention")
}
