package ui

import (
	"bytes"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fleetmon/fleetmon/internal/errors"
	"github.com/fleetmon/fleetmon/internal/monitor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pickerServers() []monitor.ServerView {
	return []monitor.ServerView{
		{Server: monitor.Server{ID: "web", Name: "Web", Host: "web.lan", Port: 22, User: "ops"}, Status: monitor.Status{Kind: monitor.StatusOnline}},
		{Server: monitor.Server{ID: "local", Name: "local", Local: true}, NeedsCredentials: true},
	}
}

func TestServerItem(t *testing.T) {
	items := pickerServers()
	web := serverItem{view: items[0]}
	assert.Equal(t, "web (Web)", web.Title())
	assert.Equal(t, "online | ops@web.lan:22", web.Description())
	assert.Contains(t, web.FilterValue(), "web.lan")

	local := serverItem{view: items[1]}
	assert.Equal(t, "local", local.Title())
	assert.Contains(t, local.Description(), "this machine")
	assert.Contains(t, local.Description(), "needs password")
}

func TestServerPickerSelect(t *testing.T) {
	m := NewServerPickerModel(pickerServers())
	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyDown})
	updated, cmd := updated.(ServerPickerModel).Update(tea.KeyMsg{Type: tea.KeyEnter})
	picker := updated.(ServerPickerModel)

	require.NotNil(t, picker.Selected())
	assert.Equal(t, "local", picker.Selected().ID)
	assert.Empty(t, picker.View())
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestServerPickerCancel(t *testing.T) {
	m := NewServerPickerModel(pickerServers())
	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	assert.Nil(t, updated.(ServerPickerModel).Selected())
}

func TestPickServerShortcuts(t *testing.T) {
	_, err := PickServer(nil, &bytes.Buffer{}, strings.NewReader(""))
	assert.True(t, errors.IsCode(err, errors.ErrConfig))

	one := pickerServers()[:1]
	got, err := PickServer(one, &bytes.Buffer{}, strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, "web", got.ID)
}
