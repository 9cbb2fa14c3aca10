package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Константы валидации
const (
	MinUsernameLength    = 3
	MaxUsernameLength    = 30
	MinTaskTitleLength   = 1
	MaxTaskTitleLength   = 200
	MaxDescriptionLength = 5000
	MaxNotesLength       = 5000
	MaxProjectKeyLength  = 50
	MaxPartnerNameLength = 200
)

var projectKeyRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// ValidateLength проверяет длину строки.
func ValidateLength(fieldName, value string, min, max int) error {
	length := utf8.RuneCountInString(value)
	if min > 0 && length < min {
		return fmt.Errorf("%s должен быть не менее %d символов", fieldName, min)
	}
	if max > 0 && length > max {
		return fmt.Errorf("%s должен быть не более %d символов", fieldName, max)
	}
	return nil
}

// ValidateEmail проверяет формат email.
func ValidateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email обязателен")
	}

	email = strings.ToLower(strings.TrimSpace(email))

	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return fmt.Errorf("некорректный формат email")
	}

	localPart := parts[0]
	domainPart := parts[1]

	if len(localPart) == 0 || len(localPart) > 64 {
		return fmt.Errorf("локальная часть email должна быть от 1 до 64 символов")
	}

	localRegex := regexp.MustCompile(`^[a-z0-9._+-]+$`)
	if !localRegex.MatchString(localPart) {
		return fmt.Errorf("локальная часть email содержит недопустимые символы")
	}

	domainRegex := regexp.MustCompile(`^[a-z0-9.-]+\.[a-z]{2,}$`)
	if !domainRegex.MatchString(domainPart) {
		return fmt.Errorf("доменная часть email имеет некорректный формат")
	}

	return nil
}

// ValidateNonEmpty проверяет, что строка не пустая.
func ValidateNonEmpty(fieldName, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s не может быть пустым", fieldName)
	}
	return nil
}

// ValidateUsername проверяет имя пользователя.
func ValidateUsername(username string) error {
	if username == "" {
		return fmt.Errorf("имя пользователя обязательно")
	}

	username = strings.TrimSpace(username)

	if err := ValidateLength("имя пользователя", username, MinUsernameLength, MaxUsernameLength); err != nil {
		return err
	}

	usernameRegex := regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
	if !usernameRegex.MatchString(username) {
		return fmt.Errorf("имя пользователя может содержать только буквы, цифры и подчеркивание")
	}

	if unicode.IsDigit(rune(username[0])) {
		return fmt.Errorf("имя пользователя не может начинаться с цифры")
	}

	return nil
}

// ValidateProjectKey проверяет ключ проекта: строчные буквы, цифры,
// дефис и подчёркивание.
func ValidateProjectKey(key string) error {
	if key == "" {
		return fmt.Errorf("ключ проекта обязателен")
	}
	if err := ValidateLength("ключ проекта", key, 1, MaxProjectKeyLength); err != nil {
		return err
	}
	if !projectKeyRegex.MatchString(key) {
		return fmt.Errorf("ключ проекта может содержать только строчные буквы, цифры, дефис и подчёркивание")
	}
	return nil
}

// ValidateTaskTitle проверяет название задачи.
func ValidateTaskTitle(title string) error {
	if err := ValidateNonEmpty("название задачи", title); err != nil {
		return err
	}
	return ValidateLength("название задачи", strings.TrimSpace(title), MinTaskTitleLength, MaxTaskTitleLength)
}
