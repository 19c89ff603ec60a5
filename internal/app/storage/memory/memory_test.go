package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/satsjar/satsjar/internal/app/domain/account"
	"github.com/satsjar/satsjar/internal/app/domain/mpesa"
	"github.com/satsjar/satsjar/internal/app/domain/savings"
	"github.com/satsjar/satsjar/internal/app/storage"
)

func TestAccountLifecycle(t *testing.T) {
	store := New()
	ctx := context.Background()

	parent, err := store.CreateAccount(ctx, account.Account{Role: account.RoleParent, PhoneNumber: "254712345678"})
	if err != nil {
		t.Fatalf("create parent: %v", err)
	}
	if parent.ID == "" {
		t.Fatalf("expected generated id")
	}

	if _, err := store.CreateAccount(ctx, account.Account{Role: account.RoleParent, PhoneNumber: "254712345678"}); err == nil {
		t.Fatalf("duplicate phone must be rejected")
	}

	byPhone, err := store.GetAccountByPhone(ctx, "254712345678")
	if err != nil || byPhone.ID != parent.ID {
		t.Fatalf("lookup by phone: %v", err)
	}

	child, err := store.CreateAccount(ctx, account.Account{Role: account.RoleChild, ParentID: parent.ID, Name: "Alex"})
	if err != nil {
		t.Fatalf("create child: %v", err)
	}

	children, err := store.ListChildren(ctx, parent.ID)
	if err != nil {
		t.Fatalf("list children: %v", err)
	}
	if len(children) != 1 || children[0].ID != child.ID {
		t.Fatalf("unexpected children: %v", children)
	}

	if err := store.DeleteAccount(ctx, child.ID); err != nil {
		t.Fatalf("delete child: %v", err)
	}
	if _, err := store.GetAccount(ctx, child.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTransactionsNewestFirst(t *testing.T) {
	store := New()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := store.CreateTransaction(ctx, savings.Transaction{AccountID: "a1", Type: savings.TypeDeposit, Amount: int64(i + 1)}); err != nil {
			t.Fatalf("create tx: %v", err)
		}
	}

	txs, err := store.ListTransactions(ctx, "a1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(txs) != 3 {
		t.Fatalf("expected 3 transactions, got %d", len(txs))
	}
	for i := 1; i < len(txs); i++ {
		if txs[i].CreatedAt.After(txs[i-1].CreatedAt) {
			t.Fatalf("transactions not newest-first")
		}
	}
}

func TestPendingDepositLookup(t *testing.T) {
	store := New()
	ctx := context.Background()

	req, err := store.CreateDepositRequest(ctx, mpesa.DepositRequest{
		AccountID:         "a1",
		CheckoutRequestID: "ws_CO_1",
		Status:            mpesa.StatusPending,
	})
	if err != nil {
		t.Fatalf("create deposit request: %v", err)
	}

	byCheckout, err := store.GetDepositRequestByCheckoutID(ctx, "ws_CO_1")
	if err != nil || byCheckout.ID != req.ID {
		t.Fatalf("lookup by checkout id: %v", err)
	}

	pending, err := store.ListPendingDepositRequests(ctx)
	if err != nil || len(pending) != 1 {
		t.Fatalf("pending listing: %v %d", err, len(pending))
	}

	req.Status = mpesa.StatusFailed
	if _, err := store.UpdateDepositRequest(ctx, req); err != nil {
		t.Fatalf("update: %v", err)
	}
	pending, _ = store.ListPendingDepositRequests(ctx)
	if len(pending) != 0 {
		t.Fatalf("terminal requests must leave the pending set")
	}
}
