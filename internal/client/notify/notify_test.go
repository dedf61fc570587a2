package notify

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDisplay struct {
	err       error
	shown     []string
	available bool
	panics    bool
}

func (d *fakeDisplay) Available() bool { return d.available }

func (d *fakeDisplay) Show(title, body string) error {
	if d.panics {
		panic("display crashed")
	}
	d.shown = append(d.shown, title+"|"+body)
	return d.err
}

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestSink_Notify(t *testing.T) {
	tests := []struct {
		name      string
		display   *fakeDisplay
		wantShown []string
	}{
		{
			name:      "available",
			display:   &fakeDisplay{available: true},
			wantShown: []string{"Contact|New contact from Jane"},
		},
		{
			name:    "unavailable is not probed further",
			display: &fakeDisplay{available: false},
		},
		{
			name:      "show error swallowed",
			display:   &fakeDisplay{available: true, err: ErrNotificationUnavailable},
			wantShown: []string{"Contact|New contact from Jane"},
		},
		{
			name:    "panic swallowed",
			display: &fakeDisplay{available: true, panics: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := NewSink(tt.display, setupTestLogger())

			assert.NotPanics(t, func() { sink.Notify("contact", "New contact from Jane") })
			assert.Equal(t, tt.wantShown, tt.display.shown)
		})
	}
}

func TestSink_Notify_NilDisplay(t *testing.T) {
	sink := NewSink(nil, setupTestLogger())
	assert.NotPanics(t, func() { sink.Notify("", "hello") })
}

func TestWriterDisplay_Show(t *testing.T) {
	var buf bytes.Buffer
	d := NewWriterDisplay(&buf)
	d.now = func() time.Time { return time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC) }

	require.True(t, d.Available())
	require.NoError(t, d.Show("Contact", "New contact"))
	assert.Equal(t, "[09:30:00] Contact: New contact\n", buf.String())
}

func TestWriterDisplay_NilWriter(t *testing.T) {
	d := NewWriterDisplay(nil)

	assert.False(t, d.Available())
	assert.True(t, errors.Is(d.Show("a", "b"), ErrNotificationUnavailable))
}

func TestTerminalDisplay_NotATerminal(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "out.log"))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	d := NewTerminalDisplay(f)

	assert.False(t, d.Available())
	assert.ErrorIs(t, d.Show("Contact", "x"), ErrNotificationUnavailable)
}

func TestTitle(t *testing.T) {
	tests := []struct {
		kind string
		want string
	}{
		{kind: "", want: "Notification"},
		{kind: "contact", want: "Contact"},
		{kind: "Contact", want: "Contact"},
		{kind: "заявка", want: "Заявка"},
		{kind: "événement", want: "Événement"},
		{kind: "1st", want: "1st"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			got := title(tt.kind)
			assert.Equal(t, tt.want, got)
			assert.True(t, utf8.ValidString(got))
		})
	}
}
