package validator

import (
	"errors"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var (
	// 入力が不正
	ErrInvalidInput = errors.New("invalid input")
	ErrInvalidEmail = errors.New("invalid email")
	ErrWeakPassword = errors.New("password must be at least 6 characters")
)

const MinPasswordLen = 6

var emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// 簡易メール形式をチェック
func IsEmailLike(s string) bool {
	return emailRe.MatchString(strings.TrimSpace(s))
}

// 小文字・前後空白なし
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// サインアップの入力を検証
func ValidateRegister(name, email, password string) error {
	if strings.TrimSpace(name) == "" || strings.TrimSpace(email) == "" || password == "" {
		return ErrInvalidInput
	}
	if !IsEmailLike(email) {
		return ErrInvalidEmail
	}
	if len(password) < MinPasswordLen {
		return ErrWeakPassword
	}
	return nil
}

// ログインの入力を検証
func ValidateLogin(email, password string) error {
	if strings.TrimSpace(email) == "" || password == "" {
		return ErrInvalidInput
	}
	if !IsEmailLike(email) {
		return ErrInvalidEmail
	}
	return nil
}

// "Camisetas Básicas" -> "camisetas-basicas"
func Slugify(s string) string {
	decomposed := norm.NFD.String(strings.ToLower(strings.TrimSpace(s)))
	var b strings.Builder
	dash := false
	for _, r := range decomposed {
		switch {
		case unicode.Is(unicode.Mn, r):
			//アクセント記号は落とす
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			dash = false
		default:
			if !dash && b.Len() > 0 {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
