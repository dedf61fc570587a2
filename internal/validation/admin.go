package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Учетные данные администраторов консоли.

var (
	ErrInvalidUsername = errors.New("invalid admin username")
	ErrWeakPassword    = errors.New("weak admin password")
)

const (
	MinUsernameLen = 3
	MaxUsernameLen = 32
	MinPasswordLen = 12
	// MaxPasswordLen ограничивает вход argon2 в байтах
	MaxPasswordLen = 128
)

// логин начинается с латинской буквы, дальше буквы, цифры и _ . -
var usernamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_.-]*$`)

// ValidateUsername проверяет логин администратора.
// Ошибки оборачивают ErrInvalidUsername.
func ValidateUsername(username string) error {
	switch n := len(username); {
	case n == 0:
		return fmt.Errorf("%w: empty", ErrInvalidUsername)
	case n < MinUsernameLen:
		return fmt.Errorf("%w: shorter than %d characters", ErrInvalidUsername, MinUsernameLen)
	case n > MaxUsernameLen:
		return fmt.Errorf("%w: longer than %d characters", ErrInvalidUsername, MaxUsernameLen)
	}

	if !usernamePattern.MatchString(username) {
		return fmt.Errorf("%w: must start with a latin letter and contain only letters, digits, '_', '.' or '-'", ErrInvalidUsername)
	}
	return nil
}

// ValidatePassword проверяет пароль без учета логина.
// Длина минимума считается в символах, максимума в байтах.
func ValidatePassword(password string) error {
	if strings.TrimSpace(password) == "" {
		return fmt.Errorf("%w: empty", ErrWeakPassword)
	}
	if utf8.RuneCountInString(password) < MinPasswordLen {
		return fmt.Errorf("%w: shorter than %d characters", ErrWeakPassword, MinPasswordLen)
	}
	if len(password) > MaxPasswordLen {
		return fmt.Errorf("%w: longer than %d bytes", ErrWeakPassword, MaxPasswordLen)
	}
	return nil
}

// ValidateCredentials проверяет пару логин/пароль при создании учетной записи.
func ValidateCredentials(username, password string) error {
	if err := ValidateUsername(username); err != nil {
		return err
	}
	if err := ValidatePassword(password); err != nil {
		return err
	}
	if strings.Contains(strings.ToLower(password), strings.ToLower(username)) {
		return fmt.Errorf("%w: contains the username", ErrWeakPassword)
	}
	return nil
}
