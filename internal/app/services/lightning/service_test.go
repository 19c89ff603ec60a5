package lightning

import (
	"context"
	"testing"

	"github.com/satsjar/satsjar/internal/app/domain/savings"
	"github.com/satsjar/satsjar/internal/app/storage/memory"
)

type fakeClient struct {
	paid    bool
	creates int
	checks  int
	fail    bool
}

func (f *fakeClient) CreateInvoice(_ context.Context, amountSats int64, memo string) (CreatedInvoice, error) {
	f.creates++
	if f.fail {
		return CreatedInvoice{}, context.DeadlineExceeded
	}
	return CreatedInvoice{PaymentHash: "hash1", PaymentRequest: "lnbc1..."}, nil
}

func (f *fakeClient) InvoicePaid(context.Context, string) (bool, error) {
	f.checks++
	return f.paid, nil
}

type fakeWallet struct {
	credits int
	total   int64
	err     error
}

func (f *fakeWallet) Credit(_ context.Context, _ string, amountSats int64, _ string) (savings.Transaction, error) {
	if f.err != nil {
		return savings.Transaction{}, f.err
	}
	f.credits++
	f.total += amountSats
	return savings.Transaction{}, nil
}

func TestCreateInvoiceRejectsNonPositive(t *testing.T) {
	client := &fakeClient{}
	svc := New(memory.New(), client, &fakeWallet{}, nil)

	if _, err := svc.CreateInvoice(context.Background(), "a1", 0, ""); err == nil {
		t.Fatalf("zero amount must fail")
	}
	if client.creates != 0 {
		t.Fatalf("backend must not be called for invalid amounts")
	}
}

func TestCreateInvoiceFailureLeavesNoRecord(t *testing.T) {
	store := memory.New()
	svc := New(store, &fakeClient{fail: true}, &fakeWallet{}, nil)

	if _, err := svc.CreateInvoice(context.Background(), "a1", 100, ""); err == nil {
		t.Fatalf("backend failure must surface")
	}
	if _, err := store.GetInvoiceByHash(context.Background(), "hash1"); err == nil {
		t.Fatalf("no invoice must be persisted on failure")
	}
}

func TestSettlementCreditsExactlyOnce(t *testing.T) {
	store := memory.New()
	client := &fakeClient{}
	wallet := &fakeWallet{}
	svc := New(store, client, wallet, nil)
	ctx := context.Background()

	inv, err := svc.CreateInvoice(ctx, "a1", 500, "jar top-up")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// unpaid check leaves the invoice open
	got, err := svc.CheckInvoice(ctx, "a1", inv.PaymentHash)
	if err != nil || got.Paid {
		t.Fatalf("unpaid invoice reported paid: %+v %v", got, err)
	}

	client.paid = true
	got, err = svc.CheckInvoice(ctx, "a1", inv.PaymentHash)
	if err != nil || !got.Paid {
		t.Fatalf("paid invoice not settled: %+v %v", got, err)
	}
	if wallet.credits != 1 || wallet.total != 500 {
		t.Fatalf("expected single 500 sat credit, got %d credits / %d sats", wallet.credits, wallet.total)
	}

	// repeated checks are reads only
	checksBefore := client.checks
	if _, err := svc.CheckInvoice(ctx, "a1", inv.PaymentHash); err != nil {
		t.Fatalf("recheck: %v", err)
	}
	if wallet.credits != 1 {
		t.Fatalf("settled invoice credited twice")
	}
	if client.checks != checksBefore {
		t.Fatalf("settled invoice must not hit the backend again")
	}
}

func TestFailedCreditLeavesInvoiceUnsettled(t *testing.T) {
	store := memory.New()
	client := &fakeClient{paid: true}
	wallet := &fakeWallet{err: context.DeadlineExceeded}
	svc := New(store, client, wallet, nil)
	ctx := context.Background()

	inv, err := svc.CreateInvoice(ctx, "a1", 500, "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.CheckInvoice(ctx, "a1", inv.PaymentHash); err == nil {
		t.Fatalf("failed credit must surface")
	}
	stored, err := store.GetInvoiceByHash(ctx, inv.PaymentHash)
	if err != nil || stored.Paid {
		t.Fatalf("invoice with failed credit must stay unsettled: %+v %v", stored, err)
	}

	// the next check retries the credit and settles exactly once
	wallet.err = nil
	got, err := svc.CheckInvoice(ctx, "a1", inv.PaymentHash)
	if err != nil || !got.Paid {
		t.Fatalf("retried settlement must succeed: %+v %v", got, err)
	}
	if wallet.credits != 1 || wallet.total != 500 {
		t.Fatalf("expected single 500 sat credit, got %d/%d", wallet.credits, wallet.total)
	}
}

func TestCheckInvoiceOwnership(t *testing.T) {
	svc := New(memory.New(), &fakeClient{}, &fakeWallet{}, nil)
	ctx := context.Background()

	inv, err := svc.CreateInvoice(ctx, "a1", 100, "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.CheckInvoice(ctx, "a2", inv.PaymentHash); err == nil {
		t.Fatalf("foreign account must not read the invoice")
	}
}
