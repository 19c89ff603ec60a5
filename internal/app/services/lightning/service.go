// Package lightning issues and settles Lightning invoices through an
// external wallet backend.
package lightning

import (
	"context"
	"errors"
	"time"

	apperr "github.com/satsjar/satsjar/internal/errors"
	"github.com/satsjar/satsjar/internal/app/domain/lightning"
	"github.com/satsjar/satsjar/internal/app/metrics"
	"github.com/satsjar/satsjar/internal/app/domain/savings"
	"github.com/satsjar/satsjar/internal/app/storage"
	"github.com/satsjar/satsjar/pkg/logger"
)

// Crediter credits a wallet balance. Implemented by the wallet service.
type Crediter interface {
	Credit(ctx context.Context, accountID string, amountSats int64, description string) (savings.Transaction, error)
}

// Service issues invoices and settles them exactly once.
type Service struct {
	store  storage.InvoiceStore
	client Client
	wallet Crediter
	log    *logger.Logger
}

// New creates a lightning service.
func New(store storage.InvoiceStore, client Client, wallet Crediter, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("lightning")
	}
	return &Service{store: store, client: client, wallet: wallet, log: log}
}

// CreateInvoice issues a payment request for the account. No record is
// persisted when the backend rejects the request.
func (s *Service) CreateInvoice(ctx context.Context, accountID string, amountSats int64, memo string) (lightning.Invoice, error) {
	if amountSats <= 0 {
		return lightning.Invoice{}, apperr.Validation("amount must be positive")
	}

	created, err := s.client.CreateInvoice(ctx, amountSats, memo)
	if err != nil {
		return lightning.Invoice{}, apperr.Internal("invoice creation failed", err)
	}

	inv, err := s.store.CreateInvoice(ctx, lightning.Invoice{
		AccountID:      accountID,
		PaymentHash:    created.PaymentHash,
		PaymentRequest: created.PaymentRequest,
		AmountSats:     amountSats,
		Memo:           memo,
	})
	if err != nil {
		return lightning.Invoice{}, apperr.Internal("invoice persistence failed", err)
	}

	metrics.RecordDepositInitiated("lightning")
	s.log.WithFields(map[string]interface{}{
		"account_id":   accountID,
		"payment_hash": inv.PaymentHash,
	}).Info("invoice created")
	return inv, nil
}

// CheckInvoice refreshes an invoice's settlement state. A settling invoice
// credits the account exactly once; repeated checks after settlement are
// reads only.
func (s *Service) CheckInvoice(ctx context.Context, accountID, paymentHash string) (lightning.Invoice, error) {
	inv, err := s.store.GetInvoiceByHash(ctx, paymentHash)
	if errors.Is(err, storage.ErrNotFound) {
		return lightning.Invoice{}, apperr.NotFound("invoice")
	}
	if err != nil {
		return lightning.Invoice{}, apperr.Internal("invoice lookup failed", err)
	}
	if inv.AccountID != accountID {
		return lightning.Invoice{}, apperr.Forbidden("invoice does not belong to this account")
	}
	if inv.Paid {
		return inv, nil
	}

	paid, err := s.client.InvoicePaid(ctx, paymentHash)
	if err != nil {
		return lightning.Invoice{}, apperr.Internal("invoice status check failed", err)
	}
	if !paid {
		return inv, nil
	}

	// The credit lands before the paid flag is persisted. A failed credit
	// leaves the invoice unsettled, so a later check retries the credit.
	if _, err := s.wallet.Credit(ctx, inv.AccountID, inv.AmountSats, "lightning deposit"); err != nil {
		s.log.WithError(err).WithField("payment_hash", paymentHash).Error("settled invoice credit failed")
		return lightning.Invoice{}, apperr.Internal("invoice credit failed", err)
	}

	inv.Paid = true
	inv.SettledAt = time.Now().UTC()
	inv, err = s.store.UpdateInvoice(ctx, inv)
	if err != nil {
		return lightning.Invoice{}, apperr.Internal("invoice update failed", err)
	}

	metrics.RecordDepositSettled("lightning", "completed")
	metrics.RecordSatsCredited("lightning", inv.AmountSats)
	s.log.WithFields(map[string]interface{}{
		"account_id":   inv.AccountID,
		"payment_hash": inv.PaymentHash,
		"amount_sats":  inv.AmountSats,
	}).Info("invoice settled")
	return inv, nil
}
