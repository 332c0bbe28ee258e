package phone

import (
	"errors"
	"strings"
)

// ケニアの国番号
const CountryCode = "254"

var ErrInvalidPhone = errors.New("invalid phone number")

// 電話番号を254始まりの12桁に揃える。
// すでに254始まりならそのまま返す。
func Normalize(raw string) (string, error) {
	s := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(strings.TrimSpace(raw))
	s = strings.TrimPrefix(s, "+")

	if s == "" || !isDigits(s) {
		return "", ErrInvalidPhone
	}

	// 帯域（7xx/1xx以外の固定回線等）はここでは見ない。受け付けるかはゲートウェイが決める。
	switch {
	case len(s) == 12 && strings.HasPrefix(s, CountryCode):
		return s, nil
	case len(s) == 10 && s[0] == '0':
		return CountryCode + s[1:], nil
	case len(s) == 9 && (s[0] == '7' || s[0] == '1'):
		// 先頭0を落とした加入者番号
		return CountryCode + s, nil
	default:
		return "", ErrInvalidPhone
	}
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
