package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/upilink/internal/checksum"
	"github.com/example/upilink/internal/models"
	"github.com/example/upilink/internal/phonepe"
	"github.com/example/upilink/internal/repository"
)

const testSalt = "test-salt-key"

var startTime = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

type fakeGateway struct {
	mu          sync.Mutex
	initiateErr error
	statusErr   error
	state       string
	requests    []phonepe.PaymentRequest
	statusCalls int
}

func (g *fakeGateway) InitiatePayment(_ context.Context, req phonepe.PaymentRequest) (*phonepe.PaymentResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if g.initiateErr != nil {
		return nil, g.initiateErr
	}
	return &phonepe.PaymentResponse{
		Success: true,
		Code:    "PAYMENT_INITIATED",
		Data: &phonepe.PaymentData{
			MerchantTransactionID: req.MerchantTransactionID,
			TransactionID:         "T" + req.MerchantTransactionID,
			InstrumentResponse: &phonepe.InstrumentResponse{
				Type:         phonepe.InstrumentUPICollect,
				RedirectInfo: &phonepe.RedirectInfo{URL: "https://pay.example/redirect"},
			},
		},
	}, nil
}

func (g *fakeGateway) CheckStatus(_ context.Context, id string) (*phonepe.StatusResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statusCalls++
	if g.statusErr != nil {
		return nil, g.statusErr
	}
	return &phonepe.StatusResponse{
		Success: true,
		Data:    &phonepe.StatusData{MerchantTransactionID: id, State: g.state},
	}, nil
}

func (g *fakeGateway) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.statusCalls
}

type recordingNotifier struct {
	mu    sync.Mutex
	seen  []Transition
	ready chan struct{}
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{ready: make(chan struct{}, 16)}
}

func (n *recordingNotifier) NotifyTransition(_ context.Context, t Transition) error {
	n.mu.Lock()
	n.seen = append(n.seen, t)
	n.mu.Unlock()
	n.ready <- struct{}{}
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.seen)
}

type harness struct {
	engine   *Engine
	repo     repository.Repository
	gateway  *fakeGateway
	clock    *clockwork.FakeClock
	notifier *recordingNotifier
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		repo:     repository.NewMemoryStore(),
		gateway:  &fakeGateway{state: phonepe.StatePending},
		clock:    clockwork.NewFakeClockAt(startTime),
		notifier: newRecordingNotifier(),
	}
	h.engine = NewEngine(h.repo, h.gateway, EngineOptions{
		Clock:    h.clock,
		Signer:   checksum.Signer{Secret: testSalt, Index: "1"},
		Notifier: h.notifier,
	})
	return h
}

func (h *harness) create(t *testing.T) *models.Transaction {
	t.Helper()
	txn, err := h.engine.CreateTransaction(context.Background(), CreateParams{
		PayeeAddress: "user@bank",
		Amount:       decimal.NewFromInt(100),
	})
	require.NoError(t, err)
	return txn
}

func (h *harness) submitted(t *testing.T) *models.Transaction {
	t.Helper()
	txn := h.create(t)
	res, err := h.engine.SubmitToGateway(context.Background(), txn)
	require.NoError(t, err)
	return res.Transaction
}

func signedCallback(t *testing.T, id, state string) ([]byte, string) {
	t.Helper()
	inner, err := json.Marshal(map[string]any{
		"success": state == phonepe.StateCompleted,
		"code":    "PAYMENT_" + state,
		"data": map[string]any{
			"merchantTransactionId": id,
			"transactionId":         "T" + id,
			"amount":                10000,
			"state":                 state,
			"responseCode":          "SUCCESS",
		},
	})
	require.NoError(t, err)
	body, err := json.Marshal(map[string]string{"response": base64.StdEncoding.EncodeToString(inner)})
	require.NoError(t, err)
	return body, checksum.Compute(body, "", testSalt, "1")
}

func waitForNotifications(t *testing.T, n *recordingNotifier, want int) {
	t.Helper()
	for i := 0; i < want; i++ {
		select {
		case <-n.ready:
		case <-time.After(2 * time.Second):
			t.Fatalf("expected %d notifications, got %d", want, n.count())
		}
	}
}

func TestCreateTransaction(t *testing.T) {
	h := newHarness(t)

	txn, err := h.engine.CreateTransaction(context.Background(), CreateParams{
		PayeeAddress: "  User@YBL ",
		Amount:       decimal.RequireFromString("250.50"),
		Description:  " coffee ",
	})
	require.NoError(t, err)

	assert.Equal(t, models.StatusInitiated, txn.Status)
	assert.Equal(t, "user@ybl", txn.PayeeAddress)
	assert.Equal(t, "coffee", txn.Description)
	assert.Equal(t, DefaultMerchantName, txn.MerchantName)
	assert.True(t, txn.CreatedAt.Equal(startTime))
	assert.True(t, txn.UpdatedAt.Equal(txn.CreatedAt))

	stored, err := h.repo.Get(context.Background(), txn.ID)
	require.NoError(t, err)
	assert.Equal(t, txn.ID, stored.ID)
}

func TestCreateTransactionDuplicateID(t *testing.T) {
	repo := repository.NewMemoryStore()
	engine := NewEngine(repo, &fakeGateway{}, EngineOptions{
		Clock: clockwork.NewFakeClockAt(startTime),
		NewID: func() string { return "TXNFIXED" },
	})
	params := CreateParams{PayeeAddress: "user@ybl", Amount: decimal.NewFromInt(1)}

	_, err := engine.CreateTransaction(context.Background(), params)
	require.NoError(t, err)
	_, err = engine.CreateTransaction(context.Background(), params)
	assert.ErrorIs(t, err, ErrDuplicateTransaction)
}

func TestSubmitToGatewaySendsPaise(t *testing.T) {
	h := newHarness(t)
	txn, err := h.engine.CreateTransaction(context.Background(), CreateParams{
		PayeeAddress: "user@ybl",
		Amount:       decimal.RequireFromString("12.34"),
	})
	require.NoError(t, err)

	res, err := h.engine.SubmitToGateway(context.Background(), txn)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, res.Transaction.Status)
	assert.Equal(t, "T"+txn.ID, res.Gateway.TransactionID)

	require.Len(t, h.gateway.requests, 1)
	req := h.gateway.requests[0]
	assert.Equal(t, int64(1234), req.AmountPaise)
	assert.Equal(t, "user@ybl", req.VPA)
	assert.Equal(t, txn.ID, req.MerchantTransactionID)
	assert.Regexp(t, `^USER_\d+$`, req.MerchantUserID)
}

func TestSubmitToGatewayFailureKinds(t *testing.T) {
	cases := []struct {
		name string
		err  error
		kind GatewayErrorKind
		code string
	}{
		{"misconfigured", phonepe.ErrMisconfigured, GatewayMisconfigured, ""},
		{"rejected", &phonepe.RejectedError{StatusCode: 400, Code: "BAD_REQUEST", Message: "invalid vpa"}, GatewayRejected, "BAD_REQUEST"},
		{"transport", &phonepe.TransportError{Op: "initiate payment", Err: context.DeadlineExceeded}, GatewayTransport, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			h.gateway.initiateErr = tc.err

			txn, res, err := h.engine.InitiatePayment(context.Background(), CreateParams{
				PayeeAddress: "user@ybl",
				Amount:       decimal.NewFromInt(100),
			})
			assert.Nil(t, res)

			var gerr *GatewayError
			require.ErrorAs(t, err, &gerr)
			assert.Equal(t, tc.kind, gerr.Kind)
			assert.Equal(t, tc.code, gerr.Code)
			assert.ErrorIs(t, err, tc.err)

			require.NotNil(t, txn)
			assert.Equal(t, models.StatusFailed, txn.Status)
		})
	}
}

func TestApplyWebhookRejectsBadSignature(t *testing.T) {
	h := newHarness(t)
	txn := h.submitted(t)
	body, sig := signedCallback(t, txn.ID, phonepe.StateCompleted)

	tampered := append([]byte{}, body...)
	tampered[len(tampered)-3] ^= 0x01

	for name, tc := range map[string]struct {
		body []byte
		sig  string
	}{
		"tampered body":   {tampered, sig},
		"no separator":    {body, "abc"},
		"wrong index":     {body, checksum.Compute(body, "", testSalt, "2")},
		"wrong salt":      {body, checksum.Compute(body, "", "other", "1")},
		"empty signature": {body, ""},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := h.engine.ApplyWebhook(context.Background(), tc.body, tc.sig)
			assert.ErrorIs(t, err, ErrInvalidSignature)
		})
	}

	got, err := h.repo.Get(context.Background(), txn.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)
}

func TestApplyWebhookUnconfiguredSignerFailsClosed(t *testing.T) {
	repo := repository.NewMemoryStore()
	engine := NewEngine(repo, &fakeGateway{}, EngineOptions{Clock: clockwork.NewFakeClockAt(startTime)})
	body, _ := signedCallback(t, "TXN1", phonepe.StateCompleted)

	_, err := engine.ApplyWebhook(context.Background(), body, checksum.Compute(body, "", "", ""))
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestApplyWebhookErrors(t *testing.T) {
	h := newHarness(t)

	malformed := []byte(`{"response":"not base64 json"}`)
	_, err := h.engine.ApplyWebhook(context.Background(), malformed, checksum.Compute(malformed, "", testSalt, "1"))
	assert.ErrorIs(t, err, ErrMalformedCallback)

	body, sig := signedCallback(t, "TXNUNKNOWN", phonepe.StateCompleted)
	_, err = h.engine.ApplyWebhook(context.Background(), body, sig)
	assert.ErrorIs(t, err, ErrTransactionNotFound)

	txn := h.create(t)
	body, sig = signedCallback(t, txn.ID, phonepe.StateCompleted)
	_, err = h.engine.ApplyWebhook(context.Background(), body, sig)
	assert.ErrorIs(t, err, ErrTransactionNotSubmitted)

	got, err := h.repo.Get(context.Background(), txn.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInitiated, got.Status)
}

func TestApplyWebhookAcceptsDirectBody(t *testing.T) {
	h := newHarness(t)
	txn := h.submitted(t)

	body := []byte(`{"merchantTransactionId":"` + txn.ID + `","state":"FAILED"}`)
	tr, err := h.engine.ApplyWebhook(context.Background(), body, checksum.Compute(body, "", testSalt, "1"))
	require.NoError(t, err)
	assert.True(t, tr.Applied)
	assert.Equal(t, models.StatusFailed, tr.Transaction.Status)
}

func TestTerminalStatusesAbsorb(t *testing.T) {
	for _, terminal := range []models.Status{models.StatusSuccess, models.StatusFailed, models.StatusExpired} {
		t.Run(string(terminal), func(t *testing.T) {
			h := newHarness(t)
			txn := h.submitted(t)
			h.clock.Advance(time.Second)
			settled, err := repository.UpdateStatus(context.Background(), h.repo, txn.ID, terminal, h.clock.Now())
			require.NoError(t, err)

			for _, state := range []string{phonepe.StateCompleted, phonepe.StateFailed, phonepe.StatePending, "SOMETHING_NEW"} {
				h.clock.Advance(time.Second)
				body, sig := signedCallback(t, txn.ID, state)
				tr, err := h.engine.ApplyWebhook(context.Background(), body, sig)
				require.NoError(t, err)
				assert.False(t, tr.Applied)

				h.gateway.state = state
				poll, err := h.engine.PollGatewayStatus(context.Background(), txn.ID)
				require.NoError(t, err)
				assert.Equal(t, SourceLocal, poll.Source)
			}

			got, err := h.repo.Get(context.Background(), txn.ID)
			require.NoError(t, err)
			assert.Equal(t, terminal, got.Status)
			assert.True(t, got.UpdatedAt.Equal(settled.UpdatedAt))
			assert.Zero(t, h.gateway.calls(), "terminal records never reach the gateway")
		})
	}
}

func TestGetTransactionLazyExpiry(t *testing.T) {
	h := newHarness(t)
	initiated := h.create(t)
	pending := h.submitted(t)

	h.clock.Advance(10 * time.Minute)
	for _, id := range []string{initiated.ID, pending.ID} {
		got, err := h.engine.GetTransaction(context.Background(), id)
		require.NoError(t, err)
		assert.NotEqual(t, models.StatusExpired, got.Status, "exactly ten minutes is not stale")
	}

	h.clock.Advance(time.Second)
	for _, id := range []string{initiated.ID, pending.ID} {
		got, err := h.engine.GetTransaction(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, models.StatusExpired, got.Status)
		assert.True(t, got.UpdatedAt.Equal(h.clock.Now()))
	}

	_, err := h.engine.GetTransaction(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrTransactionNotFound)
}

func TestPollGatewayStatus(t *testing.T) {
	h := newHarness(t)
	txn := h.submitted(t)

	res, err := h.engine.PollGatewayStatus(context.Background(), txn.ID)
	require.NoError(t, err)
	assert.Equal(t, SourceGateway, res.Source)
	assert.Equal(t, models.StatusPending, res.Transaction.Status)
	require.NotNil(t, res.Gateway)

	h.gateway.state = phonepe.StateCompleted
	res, err = h.engine.PollGatewayStatus(context.Background(), txn.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuccess, res.Transaction.Status)
	waitForNotifications(t, h.notifier, 1)

	_, err = h.engine.PollGatewayStatus(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrTransactionNotFound)
}

func TestPollGatewayFailureFallsBackToLocal(t *testing.T) {
	h := newHarness(t)
	txn := h.submitted(t)
	h.gateway.statusErr = &phonepe.TransportError{Op: "check status", Err: errors.New("connection refused")}

	res, err := h.engine.PollGatewayStatus(context.Background(), txn.ID)
	require.NoError(t, err)
	assert.Equal(t, SourceLocal, res.Source)
	assert.Equal(t, models.StatusPending, res.Transaction.Status)
	assert.NotEmpty(t, res.Warning)

	h.clock.Advance(11 * time.Minute)
	res, err = h.engine.PollGatewayStatus(context.Background(), txn.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusExpired, res.Transaction.Status)
}

func TestListTransactions(t *testing.T) {
	h := newHarness(t)
	h.create(t)
	h.clock.Advance(time.Second)
	other, err := h.engine.CreateTransaction(context.Background(), CreateParams{
		PayeeAddress: "shop@okicici",
		Amount:       decimal.NewFromInt(5),
	})
	require.NoError(t, err)

	all, err := h.engine.ListTransactions(context.Background(), repository.ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, other.ID, all[0].ID)

	byPayee, err := h.engine.ListTransactions(context.Background(), repository.ListFilter{PayeeAddress: " SHOP@okicici"})
	require.NoError(t, err)
	require.Len(t, byPayee, 1)
	assert.Equal(t, other.ID, byPayee[0].ID)
}

func TestScenarioCreateSubmitWebhookSuccess(t *testing.T) {
	h := newHarness(t)
	txn := h.create(t)
	assert.Equal(t, models.StatusInitiated, txn.Status)

	res, err := h.engine.SubmitToGateway(context.Background(), txn)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, res.Transaction.Status)

	h.clock.Advance(30 * time.Second)
	body, sig := signedCallback(t, txn.ID, phonepe.StateCompleted)
	tr, err := h.engine.ApplyWebhook(context.Background(), body, sig)
	require.NoError(t, err)
	assert.True(t, tr.Applied)
	assert.Equal(t, models.StatusPending, tr.From)
	assert.Equal(t, models.StatusSuccess, tr.Transaction.Status)

	waitForNotifications(t, h.notifier, 1)
	assert.Equal(t, TriggerWebhook, h.notifier.seen[0].Trigger)
}

func TestScenarioRejectedSubmissionThenPoll(t *testing.T) {
	h := newHarness(t)
	h.gateway.initiateErr = &phonepe.RejectedError{StatusCode: 400, Code: "INVALID_VPA", Message: "vpa not found"}

	txn, _, err := h.engine.InitiatePayment(context.Background(), CreateParams{
		PayeeAddress: "user@bank",
		Amount:       decimal.NewFromInt(100),
	})
	require.Error(t, err)
	assert.Equal(t, models.StatusFailed, txn.Status)

	h.clock.Advance(time.Minute)
	res, err := h.engine.PollGatewayStatus(context.Background(), txn.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, res.Transaction.Status)
	assert.True(t, res.Transaction.UpdatedAt.Equal(txn.UpdatedAt))
	assert.Zero(t, h.gateway.calls())
}

func TestScenarioSweepThenLateWebhook(t *testing.T) {
	h := newHarness(t)
	txn := h.submitted(t)

	h.clock.Advance(11 * time.Minute)
	ids, err := h.engine.ExpireStale(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{txn.ID}, ids)

	expired, err := h.repo.Get(context.Background(), txn.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusExpired, expired.Status)

	h.clock.Advance(time.Minute)
	body, sig := signedCallback(t, txn.ID, phonepe.StateCompleted)
	tr, err := h.engine.ApplyWebhook(context.Background(), body, sig)
	require.NoError(t, err)
	assert.False(t, tr.Applied)
	assert.Equal(t, models.StatusExpired, tr.Transaction.Status)
	assert.True(t, tr.Transaction.UpdatedAt.Equal(expired.UpdatedAt))
}

func TestScenarioDuplicateWebhook(t *testing.T) {
	h := newHarness(t)
	txn := h.submitted(t)
	body, sig := signedCallback(t, txn.ID, phonepe.StateCompleted)

	h.clock.Advance(time.Second)
	first, err := h.engine.ApplyWebhook(context.Background(), body, sig)
	require.NoError(t, err)
	assert.True(t, first.Applied)

	h.clock.Advance(time.Second)
	second, err := h.engine.ApplyWebhook(context.Background(), body, sig)
	require.NoError(t, err)
	assert.False(t, second.Applied)
	assert.True(t, second.Transaction.UpdatedAt.Equal(first.Transaction.UpdatedAt))

	waitForNotifications(t, h.notifier, 1)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, h.notifier.count())
}

func TestConcurrentWebhooksApplyOnce(t *testing.T) {
	h := newHarness(t)
	txn := h.submitted(t)
	body, sig := signedCallback(t, txn.ID, phonepe.StateCompleted)

	var wg sync.WaitGroup
	var mu sync.Mutex
	applied := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr, err := h.engine.ApplyWebhook(context.Background(), body, sig)
			if err != nil {
				t.Errorf("apply: %v", err)
				return
			}
			if tr.Applied {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, applied)
	waitForNotifications(t, h.notifier, 1)
}
