// Package memory provides a thread-safe in-memory implementation of the
// storage interfaces. It backs tests and development; deployments use the
// postgres store.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/satsjar/satsjar/internal/app/domain/account"
	"github.com/satsjar/satsjar/internal/app/domain/achievement"
	"github.com/satsjar/satsjar/internal/app/domain/allowance"
	"github.com/satsjar/satsjar/internal/app/domain/lightning"
	"github.com/satsjar/satsjar/internal/app/domain/mpesa"
	"github.com/satsjar/satsjar/internal/app/domain/notification"
	"github.com/satsjar/satsjar/internal/app/domain/savings"
	"github.com/satsjar/satsjar/internal/app/storage"
)

// Store keeps every record in maps guarded by one mutex.
type Store struct {
	mu            sync.RWMutex
	nextID        int64
	accounts      map[string]account.Account
	transactions  map[string]savings.Transaction
	goals         map[string]savings.Goal
	deposits      map[string]mpesa.DepositRequest
	invoices      map[string]lightning.Invoice
	achievements  map[string]achievement.Achievement
	notifications map[string]notification.Settings
	allowances    map[string]allowance.Allowance
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		nextID:        1,
		accounts:      make(map[string]account.Account),
		transactions:  make(map[string]savings.Transaction),
		goals:         make(map[string]savings.Goal),
		deposits:      make(map[string]mpesa.DepositRequest),
		invoices:      make(map[string]lightning.Invoice),
		achievements:  make(map[string]achievement.Achievement),
		notifications: make(map[string]notification.Settings),
		allowances:    make(map[string]allowance.Allowance),
	}
}

func (s *Store) nextIDLocked() string {
	id := s.nextID
	s.nextID++
	return fmt.Sprintf("%d", id)
}

// AccountStore implementation -------------------------------------------------

func (s *Store) CreateAccount(_ context.Context, acct account.Account) (account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if acct.ID == "" {
		acct.ID = s.nextIDLocked()
	} else if _, exists := s.accounts[acct.ID]; exists {
		return account.Account{}, fmt.Errorf("account %s already exists", acct.ID)
	}

	if acct.PhoneNumber != "" {
		for _, existing := range s.accounts {
			if existing.PhoneNumber == acct.PhoneNumber {
				return account.Account{}, fmt.Errorf("phone number %s already registered", acct.PhoneNumber)
			}
		}
	}

	now := time.Now().UTC()
	acct.CreatedAt = now
	acct.UpdatedAt = now

	s.accounts[acct.ID] = acct
	return acct, nil
}

func (s *Store) UpdateAccount(_ context.Context, acct account.Account) (account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.accounts[acct.ID]
	if !ok {
		return account.Account{}, storage.ErrNotFound
	}

	acct.CreatedAt = original.CreatedAt
	acct.UpdatedAt = time.Now().UTC()

	s.accounts[acct.ID] = acct
	return acct, nil
}

func (s *Store) GetAccount(_ context.Context, id string) (account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.accounts[id]
	if !ok {
		return account.Account{}, storage.ErrNotFound
	}
	return acct, nil
}

func (s *Store) GetAccountByPhone(_ context.Context, phone string) (account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, acct := range s.accounts {
		if acct.PhoneNumber != "" && acct.PhoneNumber == phone {
			return acct, nil
		}
	}
	return account.Account{}, storage.ErrNotFound
}

func (s *Store) ListChildren(_ context.Context, parentID string) ([]account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]account.Account, 0)
	for _, acct := range s.accounts {
		if acct.Role == account.RoleChild && acct.ParentID == parentID {
			result = append(result, acct)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (s *Store) DeleteAccount(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.accounts, id)
	return nil
}

// SavingsStore implementation -------------------------------------------------

func (s *Store) CreateTransaction(_ context.Context, tx savings.Transaction) (savings.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.ID == "" {
		tx.ID = s.nextIDLocked()
	}
	tx.CreatedAt = time.Now().UTC()

	s.transactions[tx.ID] = tx
	return tx, nil
}

func (s *Store) ListTransactions(_ context.Context, accountID string) ([]savings.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]savings.Transaction, 0)
	for _, tx := range s.transactions {
		if tx.AccountID == accountID {
			result = append(result, tx)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

// GoalStore implementation ----------------------------------------------------

func (s *Store) CreateGoal(_ context.Context, goal savings.Goal) (savings.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if goal.ID == "" {
		goal.ID = s.nextIDLocked()
	}
	now := time.Now().UTC()
	goal.CreatedAt = now
	goal.UpdatedAt = now

	s.goals[goal.ID] = goal
	return goal, nil
}

func (s *Store) UpdateGoal(_ context.Context, goal savings.Goal) (savings.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.goals[goal.ID]
	if !ok {
		return savings.Goal{}, storage.ErrNotFound
	}

	goal.CreatedAt = original.CreatedAt
	goal.UpdatedAt = time.Now().UTC()

	s.goals[goal.ID] = goal
	return goal, nil
}

func (s *Store) GetGoal(_ context.Context, id string) (savings.Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	goal, ok := s.goals[id]
	if !ok {
		return savings.Goal{}, storage.ErrNotFound
	}
	return goal, nil
}

func (s *Store) ListGoals(_ context.Context, accountID string) ([]savings.Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]savings.Goal, 0)
	for _, goal := range s.goals {
		if goal.AccountID == accountID {
			result = append(result, goal)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

// MpesaStore implementation ---------------------------------------------------

func (s *Store) CreateDepositRequest(_ context.Context, req mpesa.DepositRequest) (mpesa.DepositRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if req.ID == "" {
		req.ID = s.nextIDLocked()
	}
	now := time.Now().UTC()
	req.CreatedAt = now
	req.UpdatedAt = now

	s.deposits[req.ID] = req
	return req, nil
}

func (s *Store) UpdateDepositRequest(_ context.Context, req mpesa.DepositRequest) (mpesa.DepositRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.deposits[req.ID]
	if !ok {
		return mpesa.DepositRequest{}, storage.ErrNotFound
	}

	req.CreatedAt = original.CreatedAt
	req.UpdatedAt = time.Now().UTC()

	s.deposits[req.ID] = req
	return req, nil
}

func (s *Store) GetDepositRequest(_ context.Context, id string) (mpesa.DepositRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	req, ok := s.deposits[id]
	if !ok {
		return mpesa.DepositRequest{}, storage.ErrNotFound
	}
	return req, nil
}

func (s *Store) GetDepositRequestByCheckoutID(_ context.Context, checkoutRequestID string) (mpesa.DepositRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, req := range s.deposits {
		if req.CheckoutRequestID == checkoutRequestID {
			return req, nil
		}
	}
	return mpesa.DepositRequest{}, storage.ErrNotFound
}

func (s *Store) ListPendingDepositRequests(_ context.Context) ([]mpesa.DepositRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]mpesa.DepositRequest, 0)
	for _, req := range s.deposits {
		if req.Status == mpesa.StatusPending {
			result = append(result, req)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

// InvoiceStore implementation -------------------------------------------------

func (s *Store) CreateInvoice(_ context.Context, inv lightning.Invoice) (lightning.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if inv.ID == "" {
		inv.ID = s.nextIDLocked()
	}
	inv.CreatedAt = time.Now().UTC()

	s.invoices[inv.ID] = inv
	return inv, nil
}

func (s *Store) UpdateInvoice(_ context.Context, inv lightning.Invoice) (lightning.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.invoices[inv.ID]
	if !ok {
		return lightning.Invoice{}, storage.ErrNotFound
	}

	inv.CreatedAt = original.CreatedAt
	s.invoices[inv.ID] = inv
	return inv, nil
}

func (s *Store) GetInvoiceByHash(_ context.Context, paymentHash string) (lightning.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, inv := range s.invoices {
		if inv.PaymentHash == paymentHash {
			return inv, nil
		}
	}
	return lightning.Invoice{}, storage.ErrNotFound
}

// AchievementStore implementation ---------------------------------------------

func achievementKey(accountID, definitionID string) string {
	return accountID + "/" + definitionID
}

func (s *Store) CreateAchievement(_ context.Context, ach achievement.Achievement) (achievement.Achievement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := achievementKey(ach.AccountID, ach.ID)
	if _, exists := s.achievements[key]; exists {
		return achievement.Achievement{}, fmt.Errorf("achievement %s already exists for %s", ach.ID, ach.AccountID)
	}
	ach.UpdatedAt = time.Now().UTC()

	s.achievements[key] = ach
	return ach, nil
}

func (s *Store) UpdateAchievement(_ context.Context, ach achievement.Achievement) (achievement.Achievement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := achievementKey(ach.AccountID, ach.ID)
	if _, ok := s.achievements[key]; !ok {
		return achievement.Achievement{}, storage.ErrNotFound
	}
	ach.UpdatedAt = time.Now().UTC()

	s.achievements[key] = ach
	return ach, nil
}

func (s *Store) GetAchievement(_ context.Context, accountID, definitionID string) (achievement.Achievement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ach, ok := s.achievements[achievementKey(accountID, definitionID)]
	if !ok {
		return achievement.Achievement{}, storage.ErrNotFound
	}
	return ach, nil
}

func (s *Store) ListAchievements(_ context.Context, accountID string) ([]achievement.Achievement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]achievement.Achievement, 0)
	for key, ach := range s.achievements {
		if strings.HasPrefix(key, accountID+"/") {
			result = append(result, ach)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// NotificationStore implementation --------------------------------------------

func (s *Store) GetSettings(_ context.Context, accountID string) (notification.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	settings, ok := s.notifications[accountID]
	if !ok {
		return notification.Settings{}, storage.ErrNotFound
	}
	return settings, nil
}

func (s *Store) SaveSettings(_ context.Context, settings notification.Settings) (notification.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings.UpdatedAt = time.Now().UTC()
	s.notifications[settings.AccountID] = settings
	return settings, nil
}

// AllowanceStore implementation -----------------------------------------------

func (s *Store) CreateAllowance(_ context.Context, a allowance.Allowance) (allowance.Allowance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.ID == "" {
		a.ID = s.nextIDLocked()
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now

	s.allowances[a.ID] = a
	return a, nil
}

func (s *Store) UpdateAllowance(_ context.Context, a allowance.Allowance) (allowance.Allowance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.allowances[a.ID]
	if !ok {
		return allowance.Allowance{}, storage.ErrNotFound
	}

	a.CreatedAt = original.CreatedAt
	a.UpdatedAt = time.Now().UTC()

	s.allowances[a.ID] = a
	return a, nil
}

func (s *Store) GetAllowance(_ context.Context, id string) (allowance.Allowance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.allowances[id]
	if !ok {
		return allowance.Allowance{}, storage.ErrNotFound
	}
	return a, nil
}

func (s *Store) ListAllowances(_ context.Context, childID string) ([]allowance.Allowance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]allowance.Allowance, 0)
	for _, a := range s.allowances {
		if a.ChildID == childID {
			result = append(result, a)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (s *Store) ListEnabledAllowances(_ context.Context) ([]allowance.Allowance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]allowance.Allowance, 0)
	for _, a := range s.allowances {
		if a.Enabled {
			result = append(result, a)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}
