package mpesa

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
)

var ErrUnrecognizedMessage = errors.New("unrecognized mpesa confirmation message")

var (
	// QJK3ABCD12 Confirmed.
	codeRe   = regexp.MustCompile(`\b([A-Z0-9]{10})\b\s+[Cc]onfirmed`)
	amountRe = regexp.MustCompile(`(?i)ksh\s?([0-9][0-9,]*(?:\.[0-9]{1,2})?)`)
	phoneRe  = regexp.MustCompile(`\b(?:254|0)[71][0-9]{8}\b`)
)

// 顧客が貼り付けた確認SMSから取り出した値
type ConfirmationMessage struct {
	TransactionCode string
	Amount          int64
	PhoneNumber     string // 見つからなければ空
}

// 例: "QJK3ABCD12 Confirmed. Ksh1,500.00 sent to SMARTHUB 0712345678 on 5/12/24 at 3:45 PM."
func ParseConfirmationMessage(msg string) (ConfirmationMessage, error) {
	msg = strings.TrimSpace(msg)

	m := codeRe.FindStringSubmatch(msg)
	if m == nil || !hasLetterAndDigit(m[1]) {
		return ConfirmationMessage{}, ErrUnrecognizedMessage
	}
	out := ConfirmationMessage{TransactionCode: m[1]}

	a := amountRe.FindStringSubmatch(msg)
	if a == nil {
		return ConfirmationMessage{}, ErrUnrecognizedMessage
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(a[1], ",", ""), 64)
	if err != nil || f <= 0 {
		return ConfirmationMessage{}, ErrUnrecognizedMessage
	}
	out.Amount = int64(f + 0.5)

	if p := phoneRe.FindString(msg); p != "" {
		out.PhoneNumber = p
	}
	return out, nil
}

func hasLetterAndDigit(s string) bool {
	var letter, digit bool
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z':
			letter = true
		case r >= '0' && r <= '9':
			digit = true
		}
	}
	return letter && digit
}
