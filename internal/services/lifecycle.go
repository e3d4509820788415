package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"

	"github.com/example/upilink/internal/checksum"
	"github.com/example/upilink/internal/models"
	"github.com/example/upilink/internal/phonepe"
	"github.com/example/upilink/internal/repository"
	"github.com/example/upilink/internal/utils"
)

const (
	DefaultExpireAfter  = 10 * time.Minute
	DefaultMerchantName = "Demo Merchant Store"
)

// Gateway is the subset of the PhonePe client the engine needs.
type Gateway interface {
	InitiatePayment(ctx context.Context, req phonepe.PaymentRequest) (*phonepe.PaymentResponse, error)
	CheckStatus(ctx context.Context, merchantTransactionID string) (*phonepe.StatusResponse, error)
}

// Notifier is told about every accepted transition into success or failed.
type Notifier interface {
	NotifyTransition(ctx context.Context, t Transition) error
}

// EngineOptions configures an Engine. Zero values pick defaults.
type EngineOptions struct {
	Clock        clockwork.Clock
	Signer       checksum.Signer
	ExpireAfter  time.Duration
	MerchantName string
	Notifier     Notifier
	NewID        func() string
}

// Engine drives transactions through their lifecycle.
type Engine struct {
	repo         repository.Repository
	gateway      Gateway
	clock        clockwork.Clock
	signer       checksum.Signer
	expireAfter  time.Duration
	merchantName string
	notifier     Notifier
	newID        func() string
}

func NewEngine(repo repository.Repository, gateway Gateway, opts EngineOptions) *Engine {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.ExpireAfter <= 0 {
		opts.ExpireAfter = DefaultExpireAfter
	}
	if opts.MerchantName == "" {
		opts.MerchantName = DefaultMerchantName
	}
	if opts.NewID == nil {
		opts.NewID = utils.GenerateTransactionID
	}
	return &Engine{
		repo:         repo,
		gateway:      gateway,
		clock:        opts.Clock,
		signer:       opts.Signer,
		expireAfter:  opts.ExpireAfter,
		merchantName: opts.MerchantName,
		notifier:     opts.Notifier,
		newID:        opts.NewID,
	}
}

// ExpireAfter is the age at which open transactions are expired.
func (e *Engine) ExpireAfter() time.Duration {
	return e.expireAfter
}

func (e *Engine) now() time.Time {
	return e.clock.Now().UTC().Truncate(time.Microsecond)
}

// CreateParams carries already-validated creation input.
type CreateParams struct {
	PayeeAddress string
	Amount       decimal.Decimal
	Description  string
}

// CreateTransaction persists a new initiated transaction.
func (e *Engine) CreateTransaction(ctx context.Context, params CreateParams) (*models.Transaction, error) {
	now := e.now()
	txn := &models.Transaction{
		ID:           e.newID(),
		PayeeAddress: strings.ToLower(strings.TrimSpace(params.PayeeAddress)),
		Amount:       params.Amount.Round(2),
		Status:       models.StatusInitiated,
		Description:  strings.TrimSpace(params.Description),
		MerchantName: e.merchantName,
		Timestamps:   models.Timestamps{CreatedAt: now, UpdatedAt: now},
	}

	if err := e.repo.Create(ctx, txn); err != nil {
		if errors.Is(err, repository.ErrDuplicateID) {
			log.Printf("[Engine] transaction id collision on %s", txn.ID)
			return nil, fmt.Errorf("create transaction %s: %w", txn.ID, ErrDuplicateTransaction)
		}
		return nil, fmt.Errorf("create transaction: %w", err)
	}
	return txn, nil
}

// SubmitResult is returned when the gateway accepts a collect request.
type SubmitResult struct {
	Transaction *models.Transaction
	Gateway     *phonepe.PaymentData
}

// SubmitToGateway sends the collect request. Acceptance moves the transaction to
// pending; any failure moves it to failed and returns a *GatewayError.
func (e *Engine) SubmitToGateway(ctx context.Context, txn *models.Transaction) (*SubmitResult, error) {
	resp, err := e.gateway.InitiatePayment(ctx, phonepe.PaymentRequest{
		MerchantTransactionID: txn.ID,
		MerchantUserID:        fmt.Sprintf("USER_%d", e.clock.Now().UnixMilli()),
		AmountPaise:           txn.AmountPaise(),
		VPA:                   txn.PayeeAddress,
	})
	if err != nil {
		gerr := classifyGatewayError(err)
		log.Printf("[Engine] submission of %s failed: %v", txn.ID, gerr)
		if _, terr := e.transition(ctx, txn.ID, models.StatusFailed, TriggerSubmission); terr != nil {
			log.Printf("[Engine] could not mark %s failed: %v", txn.ID, terr)
		}
		return nil, gerr
	}

	t, err := e.transition(ctx, txn.ID, models.StatusPending, TriggerSubmission)
	if err != nil {
		return nil, err
	}
	return &SubmitResult{Transaction: t.Transaction, Gateway: resp.Data}, nil
}

// InitiatePayment creates a transaction and submits it. The transaction is
// returned alongside a submission error so the caller can report its id.
func (e *Engine) InitiatePayment(ctx context.Context, params CreateParams) (*models.Transaction, *SubmitResult, error) {
	txn, err := e.CreateTransaction(ctx, params)
	if err != nil {
		return nil, nil, err
	}
	res, err := e.SubmitToGateway(ctx, txn)
	if err != nil {
		if latest, gerr := e.repo.Get(ctx, txn.ID); gerr == nil {
			txn = latest
		}
		return txn, nil, err
	}
	return res.Transaction, res, nil
}

// ApplyWebhook authenticates and applies a gateway callback. Redelivery of a
// callback whose status is already recorded is accepted and changes nothing.
func (e *Engine) ApplyWebhook(ctx context.Context, raw []byte, signature string) (*Transition, error) {
	if !e.signer.Verify(raw, signature) {
		log.Printf("[Engine] rejected callback: invalid signature (%d bytes)", len(raw))
		return nil, ErrInvalidSignature
	}

	payload, err := phonepe.DecodeCallback(raw)
	if err != nil {
		log.Printf("[Engine] rejected callback: %v", err)
		return nil, err
	}

	to := phonepe.MapStatus(payload.State)
	id := payload.MerchantTransactionID

	current, err := e.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			log.Printf("[Engine] callback for unknown transaction %s", id)
			return nil, fmt.Errorf("callback for %s: %w", id, ErrTransactionNotFound)
		}
		return nil, err
	}
	if current.Status == models.StatusInitiated && to.IsTerminal() && to != models.StatusExpired {
		return nil, fmt.Errorf("callback for %s: %w", id, ErrTransactionNotSubmitted)
	}

	t, err := e.transition(ctx, id, to, TriggerWebhook)
	if err != nil {
		return nil, err
	}
	log.Printf("[Engine] callback %s state=%s code=%s gatewayTxn=%s: %s -> %s (applied=%t)",
		id, payload.State, payload.ResponseCode, payload.TransactionID, t.From, t.Transaction.Status, t.Applied)
	return t, nil
}

// PollResult is the outcome of a status poll.
type PollResult struct {
	Transaction *models.Transaction
	Gateway     *phonepe.StatusData
	Source      string
	Warning     string
}

const (
	SourceGateway = "gateway"
	SourceLocal   = "local"
)

// PollGatewayStatus refreshes an open transaction from the gateway. Gateway
// failures are not returned as errors: the local state is returned with a warning.
func (e *Engine) PollGatewayStatus(ctx context.Context, id string) (*PollResult, error) {
	txn, err := e.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if txn.Status.IsTerminal() {
		return &PollResult{Transaction: txn, Source: SourceLocal}, nil
	}

	resp, err := e.gateway.CheckStatus(ctx, id)
	if err == nil && (resp == nil || resp.Data == nil) {
		err = &phonepe.TransportError{Op: "check status", Err: errors.New("empty status response")}
	}
	if err != nil {
		gerr := classifyGatewayError(err)
		log.Printf("[Engine] status check for %s failed, using local state: %v", id, gerr)
		t, lerr := e.expireIfStale(ctx, id, TriggerPoll)
		if lerr != nil {
			return nil, lerr
		}
		return &PollResult{Transaction: t.Transaction, Source: SourceLocal, Warning: gerr.Message}, nil
	}

	to := phonepe.MapStatus(resp.Data.State)
	t, err := e.transition(ctx, id, to, TriggerPoll)
	if err != nil {
		return nil, err
	}
	return &PollResult{Transaction: t.Transaction, Gateway: resp.Data, Source: SourceGateway}, nil
}

// GetTransaction returns a transaction, expiring it first when it is stale.
func (e *Engine) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	txn, err := e.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !e.isStale(txn, e.now()) {
		return txn, nil
	}
	t, err := e.expireIfStale(ctx, id, TriggerExpiry)
	if err != nil {
		return nil, err
	}
	return t.Transaction, nil
}

// ListTransactions returns stored transactions without expiry checks.
func (e *Engine) ListTransactions(ctx context.Context, filter repository.ListFilter) ([]models.Transaction, error) {
	filter.PayeeAddress = strings.ToLower(strings.TrimSpace(filter.PayeeAddress))
	return e.repo.List(ctx, filter)
}

// ExpireStale expires every open transaction older than the expiry window.
func (e *Engine) ExpireStale(ctx context.Context) ([]string, error) {
	now := e.now()
	ids, err := e.repo.SweepExpired(ctx, now.Add(-e.expireAfter), now)
	if err != nil {
		return ids, fmt.Errorf("sweep expired: %w", err)
	}
	return ids, nil
}

func (e *Engine) isStale(txn *models.Transaction, now time.Time) bool {
	return txn.Status.IsOpen() && txn.Age(now) > e.expireAfter
}

func (e *Engine) expireIfStale(ctx context.Context, id string, trigger Trigger) (*Transition, error) {
	t := &Transition{To: models.StatusExpired, Trigger: trigger}
	txn, err := e.repo.Update(ctx, id, func(txn *models.Transaction) (bool, error) {
		t.From = txn.Status
		now := e.now()
		if !e.isStale(txn, now) {
			return false, nil
		}
		txn.Status = models.StatusExpired
		txn.Touch(now)
		t.Applied = true
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	t.Transaction = txn
	if t.Applied {
		log.Printf("[Engine] %s expired on %s", id, trigger)
	}
	return t, nil
}

// transition applies to when the lifecycle allows it and is a no-op otherwise.
func (e *Engine) transition(ctx context.Context, id string, to models.Status, trigger Trigger) (*Transition, error) {
	t := &Transition{To: to, Trigger: trigger}
	txn, err := e.repo.Update(ctx, id, func(txn *models.Transaction) (bool, error) {
		t.From = txn.Status
		if !CanTransition(txn.Status, to) {
			return false, nil
		}
		txn.Status = to
		txn.Touch(e.now())
		t.Applied = true
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	t.Transaction = txn
	if t.Applied {
		e.notify(*t)
	}
	return t, nil
}

func (e *Engine) notify(t Transition) {
	if e.notifier == nil || (t.To != models.StatusSuccess && t.To != models.StatusFailed) {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.notifier.NotifyTransition(ctx, t); err != nil {
			log.Printf("[Engine] notification for %s failed: %v", t.Transaction.ID, err)
		}
	}()
}
