package validation

import (
	"fmt"
	"unicode"
	"unicode/utf8"
)

const maxPasswordLength = 128

// ValidatePassword проверяет пароль оператора панели.
// Требования: минимум 8 символов, заглавная и строчная буквы, цифра.
func ValidatePassword(password string) error {
	if utf8.RuneCountInString(password) < 8 {
		return fmt.Errorf("пароль должен быть не менее 8 символов")
	}
	if len(password) > maxPasswordLength {
		return fmt.Errorf("пароль слишком длинный")
	}

	var hasUpper, hasLower, hasNumber bool
	for _, char := range password {
		switch {
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsLower(char):
			hasLower = true
		case unicode.IsNumber(char):
			hasNumber = true
		}
	}

	if !hasUpper {
		return fmt.Errorf("пароль должен содержать хотя бы одну заглавную букву")
	}
	if !hasLower {
		return fmt.Errorf("пароль должен содержать хотя бы одну строчную букву")
	}
	if !hasNumber {
		return fmt.Errorf("пароль должен содержать хотя бы одну цифру")
	}

	return nil
}
