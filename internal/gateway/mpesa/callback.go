package mpesa

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

var ErrMalformedCallback = errors.New("malformed stk callback")

// STKコールバックの中身（メタデータは平坦化済み）
type Callback struct {
	MerchantRequestID string
	CheckoutRequestID string
	ResultCode        int
	ResultDesc        string

	// 成功時のみ入る
	Amount          int64
	ReceiptNumber   string
	TransactionDate *time.Time
	PhoneNumber     string
}

func (cb Callback) Success() bool {
	return cb.ResultCode == 0
}

// 重複判定のキー。レシート番号があればそれを使う。
func (cb Callback) DedupKey() string {
	if cb.ReceiptNumber != "" {
		return cb.ReceiptNumber
	}
	return fmt.Sprintf("checkout:%s:%d", cb.CheckoutRequestID, cb.ResultCode)
}

type callbackEnvelope struct {
	Body struct {
		StkCallback *struct {
			MerchantRequestID string          `json:"MerchantRequestID"`
			CheckoutRequestID string          `json:"CheckoutRequestID"`
			ResultCode        json.RawMessage `json:"ResultCode"`
			ResultDesc        string          `json:"ResultDesc"`
			CallbackMetadata  *struct {
				Item []callbackItem `json:"Item"`
			} `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

type callbackItem struct {
	Name  string          `json:"Name"`
	Value json.RawMessage `json:"Value"`
}

// Darajaのコールバック本文を読む
func ParseCallback(body []byte) (Callback, error) {
	var env callbackEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Callback{}, fmt.Errorf("%w: %v", ErrMalformedCallback, err)
	}
	stk := env.Body.StkCallback
	if stk == nil || strings.TrimSpace(stk.CheckoutRequestID) == "" {
		return Callback{}, fmt.Errorf("%w: missing CheckoutRequestID", ErrMalformedCallback)
	}

	code, err := strconv.Atoi(rawString(stk.ResultCode))
	if err != nil {
		return Callback{}, fmt.Errorf("%w: invalid ResultCode", ErrMalformedCallback)
	}

	cb := Callback{
		MerchantRequestID: stk.MerchantRequestID,
		CheckoutRequestID: stk.CheckoutRequestID,
		ResultCode:        code,
		ResultDesc:        stk.ResultDesc,
	}
	if stk.CallbackMetadata == nil {
		return cb, nil
	}

	for _, item := range stk.CallbackMetadata.Item {
		v := rawString(item.Value)
		if v == "" {
			continue
		}
		switch item.Name {
		case "Amount":
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				cb.Amount = int64(math.Round(f))
			}
		case "MpesaReceiptNumber":
			cb.ReceiptNumber = v
		case "TransactionDate":
			// 20191219102115
			if ts, err := time.ParseInLocation("20060102150405", v, eat); err == nil {
				cb.TransactionDate = &ts
			}
		case "PhoneNumber":
			cb.PhoneNumber = v
		}
	}
	return cb, nil
}

// 数値でも文字列でも文字列として取り出す
func rawString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return strings.TrimSpace(s)
	}
	return string(raw)
}
