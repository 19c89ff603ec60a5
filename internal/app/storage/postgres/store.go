// Package postgres implements the storage interfaces on PostgreSQL via sqlx.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/satsjar/satsjar/internal/app/domain/account"
	"github.com/satsjar/satsjar/internal/app/domain/achievement"
	"github.com/satsjar/satsjar/internal/app/domain/allowance"
	"github.com/satsjar/satsjar/internal/app/domain/lightning"
	"github.com/satsjar/satsjar/internal/app/domain/mpesa"
	"github.com/satsjar/satsjar/internal/app/domain/notification"
	"github.com/satsjar/satsjar/internal/app/domain/savings"
	"github.com/satsjar/satsjar/internal/app/storage"
)

// Store implements every storage interface backed by PostgreSQL.
type Store struct {
	db *sqlx.DB
}

var _ storage.AccountStore = (*Store)(nil)
var _ storage.SavingsStore = (*Store)(nil)
var _ storage.GoalStore = (*Store)(nil)
var _ storage.MpesaStore = (*Store)(nil)
var _ storage.InvoiceStore = (*Store)(nil)
var _ storage.AchievementStore = (*Store)(nil)
var _ storage.NotificationStore = (*Store)(nil)
var _ storage.AllowanceStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func mapNoRows(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	return err
}

// --- AccountStore -----------------------------------------------------------

func (s *Store) CreateAccount(ctx context.Context, acct account.Account) (account.Account, error) {
	if acct.ID == "" {
		acct.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	acct.CreatedAt = now
	acct.UpdatedAt = now

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO accounts (id, role, parent_id, name, phone_number, age, jar_id, pin_hash, balance, created_at, updated_at)
		VALUES (:id, :role, :parent_id, :name, :phone_number, :age, :jar_id, :pin_hash, :balance, :created_at, :updated_at)
	`, acct)
	if err != nil {
		return account.Account{}, err
	}
	return acct, nil
}

func (s *Store) UpdateAccount(ctx context.Context, acct account.Account) (account.Account, error) {
	existing, err := s.GetAccount(ctx, acct.ID)
	if err != nil {
		return account.Account{}, err
	}

	acct.CreatedAt = existing.CreatedAt
	acct.UpdatedAt = time.Now().UTC()

	result, err := s.db.NamedExecContext(ctx, `
		UPDATE accounts
		SET name = :name, phone_number = :phone_number, age = :age, pin_hash = :pin_hash,
		    balance = :balance, updated_at = :updated_at
		WHERE id = :id
	`, acct)
	if err != nil {
		return account.Account{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return account.Account{}, storage.ErrNotFound
	}
	return acct, nil
}

func (s *Store) GetAccount(ctx context.Context, id string) (account.Account, error) {
	var acct account.Account
	err := s.db.GetContext(ctx, &acct, `
		SELECT id, role, parent_id, name, phone_number, age, jar_id, pin_hash, balance, created_at, updated_at
		FROM accounts
		WHERE id = $1
	`, id)
	if err != nil {
		return account.Account{}, mapNoRows(err)
	}
	return acct, nil
}

func (s *Store) GetAccountByPhone(ctx context.Context, phone string) (account.Account, error) {
	var acct account.Account
	err := s.db.GetContext(ctx, &acct, `
		SELECT id, role, parent_id, name, phone_number, age, jar_id, pin_hash, balance, created_at, updated_at
		FROM accounts
		WHERE phone_number = $1
	`, phone)
	if err != nil {
		return account.Account{}, mapNoRows(err)
	}
	return acct, nil
}

func (s *Store) ListChildren(ctx context.Context, parentID string) ([]account.Account, error) {
	result := make([]account.Account, 0)
	err := s.db.SelectContext(ctx, &result, `
		SELECT id, role, parent_id, name, phone_number, age, jar_id, pin_hash, balance, created_at, updated_at
		FROM accounts
		WHERE role = 'child' AND parent_id = $1
		ORDER BY created_at
	`, parentID)
	return result, err
}

func (s *Store) DeleteAccount(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// --- SavingsStore -----------------------------------------------------------

func (s *Store) CreateTransaction(ctx context.Context, tx savings.Transaction) (savings.Transaction, error) {
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	tx.CreatedAt = time.Now().UTC()

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO savings_transactions (id, account_id, type, amount, description, balance_after, created_at)
		VALUES (:id, :account_id, :type, :amount, :description, :balance_after, :created_at)
	`, tx)
	if err != nil {
		return savings.Transaction{}, err
	}
	return tx, nil
}

func (s *Store) ListTransactions(ctx context.Context, accountID string) ([]savings.Transaction, error) {
	result := make([]savings.Transaction, 0)
	err := s.db.SelectContext(ctx, &result, `
		SELECT id, account_id, type, amount, description, balance_after, created_at
		FROM savings_transactions
		WHERE account_id = $1
		ORDER BY created_at DESC
	`, accountID)
	return result, err
}

// --- GoalStore --------------------------------------------------------------

func (s *Store) CreateGoal(ctx context.Context, goal savings.Goal) (savings.Goal, error) {
	if goal.ID == "" {
		goal.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	goal.CreatedAt = now
	goal.UpdatedAt = now

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO savings_goals (id, account_id, name, target_sats, saved_sats, achieved, created_at, updated_at)
		VALUES (:id, :account_id, :name, :target_sats, :saved_sats, :achieved, :created_at, :updated_at)
	`, goal)
	if err != nil {
		return savings.Goal{}, err
	}
	return goal, nil
}

func (s *Store) UpdateGoal(ctx context.Context, goal savings.Goal) (savings.Goal, error) {
	existing, err := s.GetGoal(ctx, goal.ID)
	if err != nil {
		return savings.Goal{}, err
	}

	goal.AccountID = existing.AccountID
	goal.CreatedAt = existing.CreatedAt
	goal.UpdatedAt = time.Now().UTC()

	result, err := s.db.NamedExecContext(ctx, `
		UPDATE savings_goals
		SET name = :name, target_sats = :target_sats, saved_sats = :saved_sats,
		    achieved = :achieved, updated_at = :updated_at
		WHERE id = :id
	`, goal)
	if err != nil {
		return savings.Goal{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return savings.Goal{}, storage.ErrNotFound
	}
	return goal, nil
}

func (s *Store) GetGoal(ctx context.Context, id string) (savings.Goal, error) {
	var goal savings.Goal
	err := s.db.GetContext(ctx, &goal, `
		SELECT id, account_id, name, target_sats, saved_sats, achieved, created_at, updated_at
		FROM savings_goals
		WHERE id = $1
	`, id)
	if err != nil {
		return savings.Goal{}, mapNoRows(err)
	}
	return goal, nil
}

func (s *Store) ListGoals(ctx context.Context, accountID string) ([]savings.Goal, error) {
	result := make([]savings.Goal, 0)
	err := s.db.SelectContext(ctx, &result, `
		SELECT id, account_id, name, target_sats, saved_sats, achieved, created_at, updated_at
		FROM savings_goals
		WHERE account_id = $1
		ORDER BY created_at
	`, accountID)
	return result, err
}

// --- MpesaStore -------------------------------------------------------------

func (s *Store) CreateDepositRequest(ctx context.Context, req mpesa.DepositRequest) (mpesa.DepositRequest, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	req.CreatedAt = now
	req.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mpesa_deposit_requests
			(id, account_id, checkout_request_id, phone_number, amount_kes, amount_sats, status, result_desc, created_at, updated_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, req.ID, req.AccountID, req.CheckoutRequestID, req.PhoneNumber, req.AmountKES, req.AmountSats,
		req.Status, req.ResultDesc, req.CreatedAt, req.UpdatedAt, toNullTime(req.CompletedAt))
	if err != nil {
		return mpesa.DepositRequest{}, err
	}
	return req, nil
}

func (s *Store) UpdateDepositRequest(ctx context.Context, req mpesa.DepositRequest) (mpesa.DepositRequest, error) {
	existing, err := s.GetDepositRequest(ctx, req.ID)
	if err != nil {
		return mpesa.DepositRequest{}, err
	}

	req.AccountID = existing.AccountID
	req.CheckoutRequestID = existing.CheckoutRequestID
	req.CreatedAt = existing.CreatedAt
	req.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE mpesa_deposit_requests
		SET status = $2, result_desc = $3, amount_sats = $4, updated_at = $5, completed_at = $6
		WHERE id = $1
	`, req.ID, req.Status, req.ResultDesc, req.AmountSats, req.UpdatedAt, toNullTime(req.CompletedAt))
	if err != nil {
		return mpesa.DepositRequest{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return mpesa.DepositRequest{}, storage.ErrNotFound
	}
	return req, nil
}

func (s *Store) GetDepositRequest(ctx context.Context, id string) (mpesa.DepositRequest, error) {
	return s.getDepositRequest(ctx, `WHERE id = $1`, id)
}

func (s *Store) GetDepositRequestByCheckoutID(ctx context.Context, checkoutRequestID string) (mpesa.DepositRequest, error) {
	return s.getDepositRequest(ctx, `WHERE checkout_request_id = $1`, checkoutRequestID)
}

func (s *Store) getDepositRequest(ctx context.Context, where string, arg interface{}) (mpesa.DepositRequest, error) {
	row := s.db.QueryRowxContext(ctx, `
		SELECT id, account_id, checkout_request_id, phone_number, amount_kes, amount_sats, status, result_desc, created_at, updated_at, completed_at
		FROM mpesa_deposit_requests `+where, arg)

	req, err := scanDepositRequest(row)
	if err != nil {
		return mpesa.DepositRequest{}, mapNoRows(err)
	}
	return req, nil
}

func (s *Store) ListPendingDepositRequests(ctx context.Context) ([]mpesa.DepositRequest, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT id, account_id, checkout_request_id, phone_number, amount_kes, amount_sats, status, result_desc, created_at, updated_at, completed_at
		FROM mpesa_deposit_requests
		WHERE status = 'pending'
		ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]mpesa.DepositRequest, 0)
	for rows.Next() {
		req, err := scanDepositRequest(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, req)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDepositRequest(row rowScanner) (mpesa.DepositRequest, error) {
	var (
		req         mpesa.DepositRequest
		completedAt sql.NullTime
	)
	if err := row.Scan(&req.ID, &req.AccountID, &req.CheckoutRequestID, &req.PhoneNumber, &req.AmountKES,
		&req.AmountSats, &req.Status, &req.ResultDesc, &req.CreatedAt, &req.UpdatedAt, &completedAt); err != nil {
		return mpesa.DepositRequest{}, err
	}
	if completedAt.Valid {
		req.CompletedAt = completedAt.Time.UTC()
	}
	return req, nil
}

// --- InvoiceStore -----------------------------------------------------------

func (s *Store) CreateInvoice(ctx context.Context, inv lightning.Invoice) (lightning.Invoice, error) {
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	inv.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO lightning_invoices (id, account_id, payment_hash, payment_request, amount_sats, memo, paid, settled_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, inv.ID, inv.AccountID, inv.PaymentHash, inv.PaymentRequest, inv.AmountSats, inv.Memo, inv.Paid,
		toNullTime(inv.SettledAt), inv.CreatedAt)
	if err != nil {
		return lightning.Invoice{}, err
	}
	return inv, nil
}

func (s *Store) UpdateInvoice(ctx context.Context, inv lightning.Invoice) (lightning.Invoice, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE lightning_invoices
		SET paid = $2, settled_at = $3
		WHERE id = $1
	`, inv.ID, inv.Paid, toNullTime(inv.SettledAt))
	if err != nil {
		return lightning.Invoice{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return lightning.Invoice{}, storage.ErrNotFound
	}
	return inv, nil
}

func (s *Store) GetInvoiceByHash(ctx context.Context, paymentHash string) (lightning.Invoice, error) {
	row := s.db.QueryRowxContext(ctx, `
		SELECT id, account_id, payment_hash, payment_request, amount_sats, memo, paid, settled_at, created_at
		FROM lightning_invoices
		WHERE payment_hash = $1
	`, paymentHash)

	var (
		inv       lightning.Invoice
		settledAt sql.NullTime
	)
	if err := row.Scan(&inv.ID, &inv.AccountID, &inv.PaymentHash, &inv.PaymentRequest, &inv.AmountSats,
		&inv.Memo, &inv.Paid, &settledAt, &inv.CreatedAt); err != nil {
		return lightning.Invoice{}, mapNoRows(err)
	}
	if settledAt.Valid {
		inv.SettledAt = settledAt.Time.UTC()
	}
	return inv, nil
}

// --- AchievementStore -------------------------------------------------------

func (s *Store) CreateAchievement(ctx context.Context, ach achievement.Achievement) (achievement.Achievement, error) {
	ach.UpdatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO achievements (id, account_id, title, description, category, progress, max_progress, unlocked, reward_sats, unlocked_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, ach.ID, ach.AccountID, ach.Title, ach.Description, ach.Category, ach.Progress, ach.MaxProgress,
		ach.Unlocked, ach.RewardSats, toNullTime(ach.UnlockedAt), ach.UpdatedAt)
	if err != nil {
		return achievement.Achievement{}, err
	}
	return ach, nil
}

func (s *Store) UpdateAchievement(ctx context.Context, ach achievement.Achievement) (achievement.Achievement, error) {
	ach.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE achievements
		SET progress = $3, unlocked = $4, unlocked_at = $5, updated_at = $6
		WHERE account_id = $1 AND id = $2
	`, ach.AccountID, ach.ID, ach.Progress, ach.Unlocked, toNullTime(ach.UnlockedAt), ach.UpdatedAt)
	if err != nil {
		return achievement.Achievement{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return achievement.Achievement{}, storage.ErrNotFound
	}
	return ach, nil
}

func (s *Store) GetAchievement(ctx context.Context, accountID, definitionID string) (achievement.Achievement, error) {
	row := s.db.QueryRowxContext(ctx, `
		SELECT id, account_id, title, description, category, progress, max_progress, unlocked, reward_sats, unlocked_at, updated_at
		FROM achievements
		WHERE account_id = $1 AND id = $2
	`, accountID, definitionID)

	ach, err := scanAchievement(row)
	if err != nil {
		return achievement.Achievement{}, mapNoRows(err)
	}
	return ach, nil
}

func (s *Store) ListAchievements(ctx context.Context, accountID string) ([]achievement.Achievement, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT id, account_id, title, description, category, progress, max_progress, unlocked, reward_sats, unlocked_at, updated_at
		FROM achievements
		WHERE account_id = $1
		ORDER BY id
	`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]achievement.Achievement, 0)
	for rows.Next() {
		ach, err := scanAchievement(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, ach)
	}
	return result, rows.Err()
}

func scanAchievement(row rowScanner) (achievement.Achievement, error) {
	var (
		ach        achievement.Achievement
		unlockedAt sql.NullTime
	)
	if err := row.Scan(&ach.ID, &ach.AccountID, &ach.Title, &ach.Description, &ach.Category, &ach.Progress,
		&ach.MaxProgress, &ach.Unlocked, &ach.RewardSats, &unlockedAt, &ach.UpdatedAt); err != nil {
		return achievement.Achievement{}, err
	}
	if unlockedAt.Valid {
		ach.UnlockedAt = unlockedAt.Time.UTC()
	}
	return ach, nil
}

// --- NotificationStore ------------------------------------------------------

func (s *Store) GetSettings(ctx context.Context, accountID string) (notification.Settings, error) {
	var settings notification.Settings
	err := s.db.GetContext(ctx, &settings, `
		SELECT account_id, sms_enabled, goal_alerts, deposit_alerts, updated_at
		FROM notification_settings
		WHERE account_id = $1
	`, accountID)
	if err != nil {
		return notification.Settings{}, mapNoRows(err)
	}
	return settings, nil
}

func (s *Store) SaveSettings(ctx context.Context, settings notification.Settings) (notification.Settings, error) {
	settings.UpdatedAt = time.Now().UTC()

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO notification_settings (account_id, sms_enabled, goal_alerts, deposit_alerts, updated_at)
		VALUES (:account_id, :sms_enabled, :goal_alerts, :deposit_alerts, :updated_at)
		ON CONFLICT (account_id) DO UPDATE
		SET sms_enabled = EXCLUDED.sms_enabled, goal_alerts = EXCLUDED.goal_alerts,
		    deposit_alerts = EXCLUDED.deposit_alerts, updated_at = EXCLUDED.updated_at
	`, settings)
	if err != nil {
		return notification.Settings{}, err
	}
	return settings, nil
}

// --- AllowanceStore ---------------------------------------------------------

func (s *Store) CreateAllowance(ctx context.Context, a allowance.Allowance) (allowance.Allowance, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO allowances (id, parent_id, child_id, amount_sats, schedule, enabled, last_run, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, a.ID, a.ParentID, a.ChildID, a.AmountSats, a.Schedule, a.Enabled, toNullTime(a.LastRun), a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return allowance.Allowance{}, err
	}
	return a, nil
}

func (s *Store) UpdateAllowance(ctx context.Context, a allowance.Allowance) (allowance.Allowance, error) {
	existing, err := s.GetAllowance(ctx, a.ID)
	if err != nil {
		return allowance.Allowance{}, err
	}

	a.ParentID = existing.ParentID
	a.ChildID = existing.ChildID
	a.CreatedAt = existing.CreatedAt
	a.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE allowances
		SET amount_sats = $2, schedule = $3, enabled = $4, last_run = $5, updated_at = $6
		WHERE id = $1
	`, a.ID, a.AmountSats, a.Schedule, a.Enabled, toNullTime(a.LastRun), a.UpdatedAt)
	if err != nil {
		return allowance.Allowance{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return allowance.Allowance{}, storage.ErrNotFound
	}
	return a, nil
}

func (s *Store) GetAllowance(ctx context.Context, id string) (allowance.Allowance, error) {
	return s.getAllowance(ctx, `WHERE id = $1`, id)
}

func (s *Store) getAllowance(ctx context.Context, where string, arg interface{}) (allowance.Allowance, error) {
	row := s.db.QueryRowxContext(ctx, `
		SELECT id, parent_id, child_id, amount_sats, schedule, enabled, last_run, created_at, updated_at
		FROM allowances `+where, arg)

	a, err := scanAllowance(row)
	if err != nil {
		return allowance.Allowance{}, mapNoRows(err)
	}
	return a, nil
}

func (s *Store) ListAllowances(ctx context.Context, childID string) ([]allowance.Allowance, error) {
	return s.listAllowances(ctx, `WHERE child_id = $1 ORDER BY created_at`, childID)
}

func (s *Store) ListEnabledAllowances(ctx context.Context) ([]allowance.Allowance, error) {
	return s.listAllowances(ctx, `WHERE enabled ORDER BY created_at`)
}

func (s *Store) listAllowances(ctx context.Context, where string, args ...interface{}) ([]allowance.Allowance, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT id, parent_id, child_id, amount_sats, schedule, enabled, last_run, created_at, updated_at
		FROM allowances `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]allowance.Allowance, 0)
	for rows.Next() {
		a, err := scanAllowance(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func scanAllowance(row rowScanner) (allowance.Allowance, error) {
	var (
		a       allowance.Allowance
		lastRun sql.NullTime
	)
	if err := row.Scan(&a.ID, &a.ParentID, &a.ChildID, &a.AmountSats, &a.Schedule, &a.Enabled,
		&lastRun, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return allowance.Allowance{}, err
	}
	if lastRun.Valid {
		a.LastRun = lastRun.Time.UTC()
	}
	return a, nil
}

func toNullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
