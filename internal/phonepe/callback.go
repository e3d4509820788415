package phonepe

import (
	"encoding/base64"
	"errors"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrMalformedCallback is returned when a callback body cannot be decoded into a
// payment update.
var ErrMalformedCallback = errors.New("phonepe: malformed callback payload")

// CallbackPayload is the decoded content of a server-to-server callback.
type CallbackPayload struct {
	Success               bool   `json:"success"`
	Code                  string `json:"code,omitempty"`
	MerchantTransactionID string `json:"merchantTransactionId"`
	TransactionID         string `json:"transactionId,omitempty"`
	Amount                int64  `json:"amount"`
	State                 string `json:"state"`
	ResponseCode          string `json:"responseCode,omitempty"`
	Enveloped             bool   `json:"-"`
}

// DecodeCallback decodes a callback body. The gateway wraps the JSON document in
// {"response": "<base64>"}; bodies without that envelope are parsed directly.
// Fields are read from "data" when present, otherwise from the top level.
func DecodeCallback(body []byte) (*CallbackPayload, error) {
	if !gjson.ValidBytes(body) {
		return nil, ErrMalformedCallback
	}

	doc := gjson.ParseBytes(body)
	enveloped := false
	if inner, ok := unwrapEnvelope(doc); ok {
		doc = inner
		enveloped = true
	}
	if !doc.IsObject() {
		return nil, ErrMalformedCallback
	}

	fields := doc
	if data := doc.Get("data"); data.IsObject() {
		fields = data
	}

	payload := &CallbackPayload{
		Success:               doc.Get("success").Bool(),
		Code:                  doc.Get("code").String(),
		MerchantTransactionID: strings.TrimSpace(fields.Get("merchantTransactionId").String()),
		TransactionID:         fields.Get("transactionId").String(),
		Amount:                fields.Get("amount").Int(),
		State:                 fields.Get("state").String(),
		ResponseCode:          fields.Get("responseCode").String(),
		Enveloped:             enveloped,
	}
	if payload.MerchantTransactionID == "" {
		return nil, ErrMalformedCallback
	}
	return payload, nil
}

func unwrapEnvelope(doc gjson.Result) (gjson.Result, bool) {
	resp := doc.Get("response")
	if resp.Type != gjson.String {
		return gjson.Result{}, false
	}
	raw, err := base64.StdEncoding.DecodeString(resp.String())
	if err != nil || !gjson.ValidBytes(raw) {
		return gjson.Result{}, false
	}
	return gjson.ParseBytes(raw), true
}
