package cli

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dealgrip/internal/config"
	"dealgrip/internal/coordinator"
	"dealgrip/internal/domain"
	"dealgrip/internal/eventbus"
	"dealgrip/internal/ui"
)

type recordingSender struct {
	mu   sync.Mutex
	msgs []tea.Msg
}

func (r *recordingSender) Send(msg tea.Msg) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func (r *recordingSender) messages() []tea.Msg {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]tea.Msg(nil), r.msgs...)
}

type fakeSource struct {
	mu sync.Mutex
	fn func(coordinator.Snapshot)
}

func (f *fakeSource) Subscribe(fn func(coordinator.Snapshot)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fn = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.fn = nil
	}
}

func (f *fakeSource) emit(s coordinator.Snapshot) {
	f.mu.Lock()
	fn := f.fn
	f.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

func TestApplyOverrides(t *testing.T) {
	v := viper.New()
	v.Set("api-url", "https://deals.example.com")
	v.Set("token", "secret")
	v.Set("debug", true)

	cfg := config.DefaultConfig()
	require.NoError(t, applyOverrides(cfg, v))
	assert.Equal(t, "https://deals.example.com", cfg.API.BaseURL)
	assert.Equal(t, "secret", cfg.API.Token)
	assert.Equal(t, "debug", cfg.LogLevel)

	v.Set("api-url", "not a url")
	assert.Error(t, applyOverrides(config.DefaultConfig(), v))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLevel("WARN"))
	assert.Equal(t, slog.LevelInfo, parseLevel("chatty"))
}

func TestForwardDeliversStateAndEvents(t *testing.T) {
	bus := eventbus.New()
	defer bus.Close()
	src := &fakeSource{}
	rec := &recordingSender{}

	stop := forward(src, bus, rec, slog.Default())
	defer stop()

	src.emit(coordinator.Snapshot{RawQuery: "pizza"})
	bus.Publish(eventbus.NotificationEvent{Level: domain.LevelInfo, Message: "hello"})
	// not forwarded
	bus.Publish(eventbus.SearchDispatchedEvent{Selector: domain.SearchSelector("pizza", nil)})

	require.Eventually(t, func() bool { return len(rec.messages()) == 2 }, time.Second, 5*time.Millisecond)

	var sawState, sawEvent bool
	for _, msg := range rec.messages() {
		switch m := msg.(type) {
		case ui.StateMsg:
			sawState = m.Snapshot.RawQuery == "pizza"
		case ui.EventMsg:
			sawEvent = m.Event == eventbus.NotificationEvent{Level: domain.LevelInfo, Message: "hello"}
		}
	}
	assert.True(t, sawState)
	assert.True(t, sawEvent)
}

func TestConfigInitWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cmd := NewRootCmd()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetArgs([]string{"config", "init", "--config", path, "--api-url", "https://deals.example.com"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), path)

	cfg, err := config.NewConfigServiceWithPath(path, nil).Load()
	require.NoError(t, err)
	assert.Equal(t, "https://deals.example.com", cfg.API.BaseURL)

	cmd = NewRootCmd()
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs([]string{"config", "init", "--config", path})
	assert.ErrorContains(t, cmd.Execute(), "already exists")

	_, err = os.Stat(path)
	assert.NoError(t, err)
}
