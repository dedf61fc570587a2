package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/iudanet/adminsync/internal/models"
	"github.com/iudanet/adminsync/pkg/api"
)

// Коды завершения
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // операция не выполнена (ошибка сервера, откат мутации)
	ExitCommandError = 2 // ошибка вызова: аргументы, отсутствие сессии
)

// ValidFormats допустимые форматы вывода
var ValidFormats = []string{"text", "json"}

// ExitError ошибка с кодом завершения
type ExitError struct {
	Err     error
	Message string
	Code    int
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func commandError(message string, err error) *ExitError {
	return &ExitError{Code: ExitCommandError, Message: message, Err: err}
}

// GetExitCode код завершения для ошибки; ExitFailure для обычных ошибок
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// writeJSON печатает v одним JSON документом
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeRecords печатает записи таблицей или JSON
func writeRecords(w io.Writer, format string, t models.EntityType, records []models.EntityRecord) error {
	if format == "json" {
		resp := api.ListResponse{Type: string(t), Records: make([]api.Record, 0, len(records))}
		for i := range records {
			resp.Records = append(resp.Records, records[i].ToWire())
		}
		return writeJSON(w, resp)
	}

	if len(records) == 0 {
		_, err := fmt.Fprintf(w, "No %s found.\n", t)
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tUPDATED\tATTRIBUTES")
	for i := range records {
		rec := &records[i]
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", rec.ID, rec.UpdatedAt.Format(time.RFC3339), formatAttributes(rec.Attributes))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n%d %s\n", len(records), t)
	return err
}

// writeRecord печатает одну запись
func writeRecord(w io.Writer, format string, rec *models.EntityRecord) error {
	if format == "json" {
		return writeJSON(w, rec.ToWire())
	}

	_, _ = fmt.Fprintf(w, "ID:         %s\n", rec.ID)
	_, _ = fmt.Fprintf(w, "Type:       %s\n", rec.Type)
	_, _ = fmt.Fprintf(w, "Created:    %s\n", rec.CreatedAt.Format(time.RFC3339))
	_, _ = fmt.Fprintf(w, "Updated:    %s\n", rec.UpdatedAt.Format(time.RFC3339))
	_, err := fmt.Fprintf(w, "Attributes: %s\n", formatAttributes(rec.Attributes))
	return err
}

// formatAttributes компактное представление key=value в порядке ключей
func formatAttributes(attrs map[string]any) string {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+formatValue(attrs[k]))
	}
	return strings.Join(parts, " ")
}

func formatValue(v any) string {
	switch val := v.(type) {
	case string:
		if strings.ContainsAny(val, " \t\"") {
			return fmt.Sprintf("%q", val)
		}
		return val
	case nil:
		return "null"
	case map[string]any, []any:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(data)
	default:
		return fmt.Sprint(val)
	}
}

// parseAssignments разбирает аргументы --set key=value.
// Значение, являющееся JSON (число, bool, null, объект, массив, строка в кавычках),
// декодируется; иначе берется как строка.
func parseAssignments(assignments []string) (map[string]any, error) {
	attrs := make(map[string]any, len(assignments))
	for _, a := range assignments {
		key, raw, ok := strings.Cut(a, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid assignment %q, expected key=value", a)
		}

		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			value = raw
		}
		attrs[key] = value
	}
	return attrs, nil
}

// mergeData добавляет атрибуты из JSON объекта --data; --set имеет приоритет
func mergeData(data string, attrs map[string]any) (map[string]any, error) {
	if data == "" {
		return attrs, nil
	}

	var base map[string]any
	if err := json.Unmarshal([]byte(data), &base); err != nil {
		return nil, fmt.Errorf("invalid --data, expected JSON object: %w", err)
	}
	if base == nil {
		base = make(map[string]any, len(attrs))
	}
	// null сохраняется: в update он удаляет ключ на сервере
	for k, v := range attrs {
		base[k] = v
	}
	return base, nil
}
