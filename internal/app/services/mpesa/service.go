// Package mpesa implements mobile-money deposits via STK push. A push is
// recorded only after the gateway accepts it; a terminal status never
// reverts, and a completed push credits the wallet exactly once.
package mpesa

import (
	"context"
	"errors"
	"time"

	"github.com/tidwall/gjson"

	apperr "github.com/satsjar/satsjar/internal/errors"
	"github.com/satsjar/satsjar/internal/app/domain/mpesa"
	"github.com/satsjar/satsjar/internal/app/metrics"
	"github.com/satsjar/satsjar/internal/app/domain/savings"
	"github.com/satsjar/satsjar/internal/app/storage"
	"github.com/satsjar/satsjar/pkg/logger"
)

// MinDepositKES is the smallest deposit the gateway accepts.
const MinDepositKES = 10

// Crediter credits a wallet balance. Implemented by the wallet service.
type Crediter interface {
	Credit(ctx context.Context, accountID string, amountSats int64, description string) (savings.Transaction, error)
}

// Options tunes the service.
type Options struct {
	// SatsPerKES is the fiat conversion rate applied at initiation time.
	SatsPerKES int64
	// PendingTimeout fails pushes the payer never acted on.
	PendingTimeout time.Duration
}

// Service drives the STK push deposit flow.
type Service struct {
	store  storage.MpesaStore
	client Client
	wallet Crediter
	opts   Options
	log    *logger.Logger
}

// New creates an mpesa service.
func New(store storage.MpesaStore, client Client, wallet Crediter, opts Options, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("mpesa")
	}
	if opts.SatsPerKES <= 0 {
		opts.SatsPerKES = 35
	}
	if opts.PendingTimeout <= 0 {
		opts.PendingTimeout = 5 * time.Minute
	}
	return &Service{store: store, client: client, wallet: wallet, opts: opts, log: log}
}

// RequestDeposit sends an STK push to the payer. A rejected initiation
// persists nothing.
func (s *Service) RequestDeposit(ctx context.Context, accountID, phoneNumber string, amountKES int64) (mpesa.DepositRequest, error) {
	if phoneNumber == "" {
		return mpesa.DepositRequest{}, apperr.Validation("phone number required")
	}
	if amountKES < MinDepositKES {
		return mpesa.DepositRequest{}, apperr.Validation("minimum deposit is 10 KES")
	}

	checkoutID, err := s.client.InitiateSTKPush(ctx, phoneNumber, amountKES, accountID)
	if err != nil {
		s.log.WithError(err).WithField("account_id", accountID).Warn("stk push initiation failed")
		return mpesa.DepositRequest{}, apperr.Internal("payment initiation failed", err)
	}

	req, err := s.store.CreateDepositRequest(ctx, mpesa.DepositRequest{
		AccountID:         accountID,
		CheckoutRequestID: checkoutID,
		PhoneNumber:       phoneNumber,
		AmountKES:         amountKES,
		AmountSats:        amountKES * s.opts.SatsPerKES,
		Status:            mpesa.StatusPending,
	})
	if err != nil {
		return mpesa.DepositRequest{}, apperr.Internal("deposit persistence failed", err)
	}

	metrics.RecordDepositInitiated("mpesa")
	s.log.WithFields(map[string]interface{}{
		"account_id":          accountID,
		"checkout_request_id": checkoutID,
		"amount_kes":          amountKES,
	}).Info("stk push initiated")
	return req, nil
}

// CheckStatus refreshes a deposit's state from the gateway. Terminal
// requests are returned as stored without another gateway call.
func (s *Service) CheckStatus(ctx context.Context, accountID, depositID string) (mpesa.DepositRequest, error) {
	req, err := s.store.GetDepositRequest(ctx, depositID)
	if errors.Is(err, storage.ErrNotFound) {
		return mpesa.DepositRequest{}, apperr.NotFound("deposit request")
	}
	if err != nil {
		return mpesa.DepositRequest{}, apperr.Internal("deposit lookup failed", err)
	}
	if req.AccountID != accountID {
		return mpesa.DepositRequest{}, apperr.Forbidden("deposit does not belong to this account")
	}
	if req.Status.Terminal() {
		return req, nil
	}

	result, err := s.client.QueryStatus(ctx, req.CheckoutRequestID)
	if err != nil {
		// Expired pushes are failed locally even when the gateway is down.
		if s.expired(req) {
			return s.settle(ctx, req, false, "timed out waiting for payment")
		}
		return mpesa.DepositRequest{}, apperr.Internal("payment status check failed", err)
	}

	if result.Pending {
		if s.expired(req) {
			return s.settle(ctx, req, false, "timed out waiting for payment")
		}
		return req, nil
	}
	return s.settle(ctx, req, result.Success, result.Desc)
}

func (s *Service) expired(req mpesa.DepositRequest) bool {
	return time.Since(req.CreatedAt) > s.opts.PendingTimeout
}

// HandleCallback processes the gateway's asynchronous result webhook. The
// callback shape is Daraja's Body.stkCallback envelope. Unknown checkout
// ids are acknowledged and dropped.
func (s *Service) HandleCallback(ctx context.Context, payload []byte) error {
	callback := gjson.GetBytes(payload, "Body.stkCallback")
	if !callback.Exists() {
		return apperr.Validation("malformed callback payload")
	}

	checkoutID := callback.Get("CheckoutRequestID").String()
	resultCode := callback.Get("ResultCode").Int()
	resultDesc := callback.Get("ResultDesc").String()

	req, err := s.store.GetDepositRequestByCheckoutID(ctx, checkoutID)
	if errors.Is(err, storage.ErrNotFound) {
		s.log.WithField("checkout_request_id", checkoutID).Warn("callback for unknown checkout id")
		return nil
	}
	if err != nil {
		return apperr.Internal("deposit lookup failed", err)
	}

	_, err = s.settle(ctx, req, resultCode == 0, resultDesc)
	return err
}

// settle moves a pending request to its terminal status. Requests already
// terminal are returned unchanged, which makes callback delivery and status
// polling safe to race.
func (s *Service) settle(ctx context.Context, req mpesa.DepositRequest, success bool, desc string) (mpesa.DepositRequest, error) {
	if req.Status.Terminal() {
		return req, nil
	}

	if success {
		// The credit lands before the terminal status is persisted. A
		// failed credit leaves the request pending, so the next poll or
		// callback retries the whole settlement.
		if _, err := s.wallet.Credit(ctx, req.AccountID, req.AmountSats, "mpesa deposit"); err != nil {
			s.log.WithError(err).WithField("deposit_id", req.ID).Error("completed deposit credit failed")
			return mpesa.DepositRequest{}, apperr.Internal("deposit credit failed", err)
		}
		req.Status = mpesa.StatusCompleted
		req.CompletedAt = time.Now().UTC()
	} else {
		req.Status = mpesa.StatusFailed
	}
	req.ResultDesc = desc

	req, err := s.store.UpdateDepositRequest(ctx, req)
	if err != nil {
		return mpesa.DepositRequest{}, apperr.Internal("deposit update failed", err)
	}

	if req.Status == mpesa.StatusCompleted {
		metrics.RecordSatsCredited("mpesa", req.AmountSats)
	}
	metrics.RecordDepositSettled("mpesa", string(req.Status))

	s.log.WithFields(map[string]interface{}{
		"deposit_id": req.ID,
		"status":     string(req.Status),
	}).Info("deposit settled")
	return req, nil
}

// ListPending returns pushes still awaiting a result, for the reconciler.
func (s *Service) ListPending(ctx context.Context) ([]mpesa.DepositRequest, error) {
	return s.store.ListPendingDepositRequests(ctx)
}
