package validation

import (
	"fmt"
	"regexp"
)

const (
	// MaxEntityIDLen максимальная длина id записи
	MaxEntityIDLen = 128
)

// EntityIDPattern допустимый id записи: uuid, slug или числовой id внешней системы
var EntityIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]+$`)

// EntityTypePattern допустимое имя типа сущности: snake_case, начинается с буквы
var EntityTypePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,63}$`)

// ValidateEntityID проверяет id записи. Id попадает в путь REST запроса,
// поэтому пробелы и '/' запрещены.
func ValidateEntityID(id string) error {
	if id == "" {
		return fmt.Errorf("entity id cannot be empty")
	}

	if len(id) > MaxEntityIDLen {
		return fmt.Errorf("entity id must not exceed %d characters", MaxEntityIDLen)
	}

	if !EntityIDPattern.MatchString(id) {
		return fmt.Errorf("entity id can only contain letters, numbers, '.', '_', ':' and '-'")
	}

	return nil
}

// ValidateEntityType проверяет имя типа сущности
func ValidateEntityType(name string) error {
	if name == "" {
		return fmt.Errorf("entity type cannot be empty")
	}

	if !EntityTypePattern.MatchString(name) {
		return fmt.Errorf("entity type %q must be lowercase snake_case starting with a letter", name)
	}

	return nil
}
