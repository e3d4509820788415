package phonepe

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/example/upilink/internal/checksum"
)

const (
	ProductionBaseURL = "https://api.phonepe.com/apis/hermes"
	SandboxBaseURL    = "https://api-preprod.phonepe.com/apis/pg-sandbox"

	PayEndpoint    = "/pg/v1/pay"
	StatusEndpoint = "/pg/v1/status"

	InstrumentUPICollect = "UPI_COLLECT"
	RedirectModeRedirect = "REDIRECT"

	DefaultTimeout = 15 * time.Second
)

// Config holds merchant credentials and endpoints.
type Config struct {
	MerchantID  string
	SaltKey     string
	SaltIndex   string
	BaseURL     string
	CallbackURL string
	RedirectURL string
	Timeout     time.Duration
}

// ErrMisconfigured is returned before any network call when credentials are absent.
var ErrMisconfigured = errors.New("phonepe: credentials not configured, set PHONEPE_MERCHANT_ID and PHONEPE_SALT_KEY")

// RejectedError reports an explicit refusal by the gateway.
type RejectedError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("phonepe: rejected (%s): %s", e.Code, e.Message)
}

// TransportError reports a failure to get a usable answer from the gateway:
// network errors, timeouts, 5xx responses, or bodies that do not decode.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("phonepe: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// PaymentRequest describes a collect request for one transaction.
type PaymentRequest struct {
	MerchantTransactionID string
	MerchantUserID        string
	AmountPaise           int64
	VPA                   string
}

type paymentInstrument struct {
	Type string `json:"type"`
	VPA  string `json:"vpa,omitempty"`
}

type payPayload struct {
	MerchantID            string            `json:"merchantId"`
	MerchantTransactionID string            `json:"merchantTransactionId"`
	MerchantUserID        string            `json:"merchantUserId"`
	Amount                int64             `json:"amount"`
	RedirectURL           string            `json:"redirectUrl"`
	RedirectMode          string            `json:"redirectMode"`
	CallbackURL           string            `json:"callbackUrl"`
	PaymentInstrument     paymentInstrument `json:"paymentInstrument"`
}

type payRequestBody struct {
	Request string `json:"request"`
}

// RedirectInfo points the payer at the next step of the flow.
type RedirectInfo struct {
	URL    string `json:"url"`
	Method string `json:"method,omitempty"`
}

// InstrumentResponse is returned by the pay API for the chosen instrument.
type InstrumentResponse struct {
	Type         string        `json:"type"`
	RedirectInfo *RedirectInfo `json:"redirectInfo,omitempty"`
	IntentInfo   *RedirectInfo `json:"intentInfo,omitempty"`
}

// PaymentData is the data block of a successful pay response.
type PaymentData struct {
	MerchantID            string              `json:"merchantId,omitempty"`
	MerchantTransactionID string              `json:"merchantTransactionId"`
	TransactionID         string              `json:"transactionId"`
	InstrumentResponse    *InstrumentResponse `json:"instrumentResponse,omitempty"`
}

// PaymentResponse is the pay API envelope.
type PaymentResponse struct {
	Success bool         `json:"success"`
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Data    *PaymentData `json:"data,omitempty"`
}

// StatusInstrument describes how the payer paid.
type StatusInstrument struct {
	Type             string `json:"type"`
	UPITransactionID string `json:"upiTransactionId,omitempty"`
}

// StatusData is the data block of a status response.
type StatusData struct {
	MerchantID            string            `json:"merchantId,omitempty"`
	MerchantTransactionID string            `json:"merchantTransactionId"`
	TransactionID         string            `json:"transactionId"`
	Amount                int64             `json:"amount"`
	State                 string            `json:"state"`
	ResponseCode          string            `json:"responseCode"`
	PaymentInstrument     *StatusInstrument `json:"paymentInstrument,omitempty"`
}

// StatusResponse is the status API envelope.
type StatusResponse struct {
	Success bool        `json:"success"`
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Data    *StatusData `json:"data,omitempty"`
}

// Client talks to the PhonePe PG API.
type Client struct {
	cfg    Config
	signer checksum.Signer
	http   *resty.Client
}

// NewClient builds a client; an empty BaseURL selects the sandbox.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = SandboxBaseURL
	}
	if cfg.SaltIndex == "" {
		cfg.SaltIndex = "1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Client{
		cfg:    cfg,
		signer: checksum.Signer{Secret: cfg.SaltKey, Index: cfg.SaltIndex},
		http:   httpClient,
	}
}

// Configured reports whether merchant credentials are present.
func (c *Client) Configured() bool {
	return c.cfg.MerchantID != "" && c.cfg.SaltKey != ""
}

// Signer exposes the salt key binding used for callback verification.
func (c *Client) Signer() checksum.Signer {
	return c.signer
}

// InitiatePayment submits a signed UPI collect request.
func (c *Client) InitiatePayment(ctx context.Context, req PaymentRequest) (*PaymentResponse, error) {
	if !c.Configured() {
		return nil, ErrMisconfigured
	}

	payload := payPayload{
		MerchantID:            c.cfg.MerchantID,
		MerchantTransactionID: req.MerchantTransactionID,
		MerchantUserID:        req.MerchantUserID,
		Amount:                req.AmountPaise,
		RedirectURL:           c.cfg.RedirectURL,
		RedirectMode:          RedirectModeRedirect,
		CallbackURL:           c.cfg.CallbackURL,
		PaymentInstrument: paymentInstrument{
			Type: InstrumentUPICollect,
			VPA:  req.VPA,
		},
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	encoded := base64.StdEncoding.EncodeToString(raw)

	var result PaymentResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("X-VERIFY", c.signer.Sign([]byte(encoded), PayEndpoint)).
		SetHeader("X-MERCHANT-ID", c.cfg.MerchantID).
		SetBody(payRequestBody{Request: encoded}).
		Post(PayEndpoint)
	if err != nil {
		log.Printf("[PhonePe] pay request for %s failed: %v", req.MerchantTransactionID, err)
		return nil, &TransportError{Op: "initiate payment", Err: err}
	}

	if err := decodeResponse(resp, "initiate payment", &result); err != nil {
		return nil, err
	}
	if !result.Success {
		return nil, &RejectedError{StatusCode: resp.StatusCode(), Code: result.Code, Message: result.Message}
	}
	return &result, nil
}

// CheckStatus fetches the gateway's view of a transaction. The checksum is computed
// over the endpoint path alone.
func (c *Client) CheckStatus(ctx context.Context, merchantTransactionID string) (*StatusResponse, error) {
	if !c.Configured() {
		return nil, ErrMisconfigured
	}

	endpoint := fmt.Sprintf("%s/%s/%s", StatusEndpoint, c.cfg.MerchantID, merchantTransactionID)

	var result StatusResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("X-VERIFY", c.signer.Sign(nil, endpoint)).
		SetHeader("X-MERCHANT-ID", c.cfg.MerchantID).
		Get(endpoint)
	if err != nil {
		log.Printf("[PhonePe] status request for %s failed: %v", merchantTransactionID, err)
		return nil, &TransportError{Op: "check status", Err: err}
	}

	if err := decodeResponse(resp, "check status", &result); err != nil {
		return nil, err
	}
	if !result.Success || result.Data == nil {
		return nil, &RejectedError{StatusCode: resp.StatusCode(), Code: result.Code, Message: result.Message}
	}
	return &result, nil
}

type errorEnvelope struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func decodeResponse(resp *resty.Response, op string, out any) error {
	status := resp.StatusCode()
	if status >= http.StatusInternalServerError {
		return &TransportError{Op: op, Err: fmt.Errorf("gateway returned status %d", status)}
	}

	body := resp.Body()
	if status >= http.StatusBadRequest {
		var env errorEnvelope
		_ = json.Unmarshal(body, &env)
		if env.Message == "" {
			env.Message = http.StatusText(status)
		}
		return &RejectedError{StatusCode: status, Code: env.Code, Message: env.Message}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
