// Package validation содержит функции валидации входных данных.
package validation

import (
	"net/mail"
	"path"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxStatusLength ограничивает длину произвольного статуса заказа.
const MaxStatusLength = 32

// IsValidQuantity проверяет, что количество товара в заказе положительно.
func IsValidQuantity(quantity int) bool {
	return quantity >= 1
}

// NormalizeStatus обрезает пробелы и проверяет, что статус не пустой и не слишком длинный.
func NormalizeStatus(status string) (string, bool) {
	status = strings.TrimSpace(status)
	if status == "" || utf8.RuneCountInString(status) > MaxStatusLength {
		return "", false
	}
	return status, true
}

// IsValidEmail проверяет адрес электронной почты без отображаемого имени.
func IsValidEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return false
	}
	return addr.Address == email
}

// SafeFileName приводит имя загружаемого файла к виду, пригодному для ключа в хранилище.
func SafeFileName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" {
		return "file"
	}

	var b strings.Builder
	for _, r := range name {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '.', r == '-', r == '_':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune('-')
		}
	}

	if b.Len() == 0 {
		return "file"
	}
	return b.String()
}
