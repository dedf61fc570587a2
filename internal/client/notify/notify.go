// Package notify показывает уведомления администратору.
// Доставка best-effort: недоступный дисплей и ошибки вывода не считаются ошибкой.
package notify

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"golang.org/x/term"
)

// ErrNotificationUnavailable механизм отображения недоступен
var ErrNotificationUnavailable = errors.New("notification display unavailable")

// Display возможность показать уведомление
type Display interface {
	// Available проверяет, можно ли сейчас показать уведомление
	Available() bool
	// Show показывает уведомление; может вернуть ErrNotificationUnavailable
	Show(title, body string) error
}

// Sink приемник уведомлений маршрутизатора. Без состояния, кроме дисплея.
type Sink struct {
	display Display
	logger  *slog.Logger
}

// NewSink создает приемник. display может быть nil - тогда уведомления только логируются.
func NewSink(display Display, logger *slog.Logger) *Sink {
	return &Sink{display: display, logger: logger}
}

// Notify показывает уведомление. Ошибки и паники дисплея проглатываются.
func (s *Sink) Notify(kind, summary string) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Warn("Notification display panicked", "panic", rec)
		}
	}()

	s.logger.Info("Notification", "kind", kind, "summary", summary)

	if s.display == nil || !s.display.Available() {
		s.logger.Debug("Notification display not available", "kind", kind)
		return
	}

	if err := s.display.Show(title(kind), summary); err != nil {
		s.logger.Debug("Failed to show notification", "kind", kind, "error", err)
	}
}

func title(kind string) string {
	if kind == "" {
		return "Notification"
	}
	r, size := utf8.DecodeRuneInString(kind)
	return string(unicode.ToUpper(r)) + kind[size:]
}

// WriterDisplay выводит уведомления строкой в io.Writer
type WriterDisplay struct {
	w   io.Writer
	now func() time.Time
	mu  sync.Mutex
}

// NewWriterDisplay создает дисплей поверх w
func NewWriterDisplay(w io.Writer) *WriterDisplay {
	return &WriterDisplay{w: w, now: time.Now}
}

func (d *WriterDisplay) Available() bool {
	return d.w != nil
}

func (d *WriterDisplay) Show(title, body string) error {
	if d.w == nil {
		return ErrNotificationUnavailable
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	_, err := fmt.Fprintf(d.w, "[%s] %s: %s\n", d.now().Format(time.TimeOnly), title, body)
	return err
}

// TerminalDisplay выводит уведомления в терминал; недоступен, если файл не TTY
// (вывод перенаправлен в файл или pipe).
type TerminalDisplay struct {
	writer *WriterDisplay
	file   *os.File
}

// NewTerminalDisplay создает дисплей для f (обычно os.Stderr)
func NewTerminalDisplay(f *os.File) *TerminalDisplay {
	return &TerminalDisplay{file: f, writer: NewWriterDisplay(f)}
}

func (d *TerminalDisplay) Available() bool {
	return d.file != nil && term.IsTerminal(int(d.file.Fd()))
}

func (d *TerminalDisplay) Show(title, body string) error {
	if !d.Available() {
		return ErrNotificationUnavailable
	}
	// bell + жирный заголовок
	return d.writer.Show("\a\033[1m"+title+"\033[0m", body)
}
