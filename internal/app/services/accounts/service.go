// Package accounts implements parent registration, login, and child jar
// management.
package accounts

import (
	"context"
	"errors"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"

	apperr "github.com/satsjar/satsjar/internal/errors"
	"github.com/satsjar/satsjar/internal/app/domain/account"
	"github.com/satsjar/satsjar/internal/app/storage"
	"github.com/satsjar/satsjar/pkg/logger"
)

const (
	minChildAge = 1
	maxChildAge = 18
	pinLength   = 6
)

// Service manages accounts on top of an AccountStore.
type Service struct {
	store storage.AccountStore
	log   *logger.Logger
}

// New creates an accounts service.
func New(store storage.AccountStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("accounts")
	}
	return &Service{store: store, log: log}
}

// NormalizePhone canonicalizes a Kenyan phone number to 254XXXXXXXXX form.
// The function is idempotent: normalizing an already-normalized number is a
// no-op.
func NormalizePhone(phone string) string {
	p := strings.TrimSpace(phone)
	p = strings.TrimPrefix(p, "+")
	if strings.HasPrefix(p, "0") {
		return "254" + p[1:]
	}
	if !strings.HasPrefix(p, "254") {
		return "254" + p
	}
	return p
}

func validPIN(pin string) bool {
	if len(pin) != pinLength {
		return false
	}
	for _, r := range pin {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func hashPIN(pin string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func checkPIN(hash, pin string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pin)) == nil
}

// RegisterParams is the input to RegisterParent.
type RegisterParams struct {
	Name        string
	PhoneNumber string
	PIN         string
}

// RegisterParent creates a parent account with a hashed PIN.
func (s *Service) RegisterParent(ctx context.Context, params RegisterParams) (account.Account, error) {
	if params.Name == "" || params.PhoneNumber == "" || params.PIN == "" {
		return account.Account{}, apperr.Validation("fields required")
	}
	if !validPIN(params.PIN) {
		return account.Account{}, apperr.Validation("invalid pin")
	}

	phone := NormalizePhone(params.PhoneNumber)
	if _, err := s.store.GetAccountByPhone(ctx, phone); err == nil {
		return account.Account{}, apperr.Validation("phone number already registered")
	} else if !errors.Is(err, storage.ErrNotFound) {
		return account.Account{}, apperr.Internal("account lookup failed", err)
	}

	hash, err := hashPIN(params.PIN)
	if err != nil {
		return account.Account{}, apperr.Internal("pin hashing failed", err)
	}

	created, err := s.store.CreateAccount(ctx, account.Account{
		Role:        account.RoleParent,
		Name:        params.Name,
		PhoneNumber: phone,
		PINHash:     hash,
	})
	if err != nil {
		return account.Account{}, apperr.Internal("account creation failed", err)
	}

	s.log.WithField("account_id", created.ID).Info("parent registered")
	return created, nil
}

// Login authenticates a parent by phone number and PIN.
func (s *Service) Login(ctx context.Context, phoneNumber, pin string) (account.Account, error) {
	if phoneNumber == "" || pin == "" {
		return account.Account{}, apperr.Validation("fields required")
	}

	acct, err := s.store.GetAccountByPhone(ctx, NormalizePhone(phoneNumber))
	if errors.Is(err, storage.ErrNotFound) {
		return account.Account{}, apperr.Unauthorized("invalid phone number or pin")
	}
	if err != nil {
		return account.Account{}, apperr.Internal("account lookup failed", err)
	}
	if !checkPIN(acct.PINHash, pin) {
		s.log.WithField("account_id", acct.ID).Warn("failed login attempt")
		return account.Account{}, apperr.Unauthorized("invalid phone number or pin")
	}
	return acct, nil
}

// ChildLogin authenticates a child jar by its id and PIN.
func (s *Service) ChildLogin(ctx context.Context, childID, pin string) (account.Account, error) {
	if childID == "" || pin == "" {
		return account.Account{}, apperr.Validation("fields required")
	}

	acct, err := s.store.GetAccount(ctx, childID)
	if errors.Is(err, storage.ErrNotFound) {
		return account.Account{}, apperr.Unauthorized("invalid child id or pin")
	}
	if err != nil {
		return account.Account{}, apperr.Internal("account lookup failed", err)
	}
	if acct.Role != account.RoleChild || !checkPIN(acct.PINHash, pin) {
		return account.Account{}, apperr.Unauthorized("invalid child id or pin")
	}
	return acct, nil
}

// CreateChildParams is the input to CreateChild.
type CreateChildParams struct {
	Name string
	Age  int
	PIN  string
}

// CreateChild creates a child jar owned by the calling parent. Validation
// failures are rejected before any store access.
func (s *Service) CreateChild(ctx context.Context, parentID string, params CreateChildParams) (account.Account, error) {
	if params.Name == "" || params.Age == 0 || params.PIN == "" {
		return account.Account{}, apperr.Validation("fields required")
	}
	if params.Age < minChildAge || params.Age > maxChildAge {
		return account.Account{}, apperr.Validation("invalid age")
	}
	if !validPIN(params.PIN) {
		return account.Account{}, apperr.Validation("invalid pin")
	}

	parent, err := s.requireParent(ctx, parentID)
	if err != nil {
		return account.Account{}, err
	}

	hash, err := hashPIN(params.PIN)
	if err != nil {
		return account.Account{}, apperr.Internal("pin hashing failed", err)
	}

	created, err := s.store.CreateAccount(ctx, account.Account{
		Role:     account.RoleChild,
		ParentID: parent.ID,
		Name:     params.Name,
		Age:      params.Age,
		PINHash:  hash,
	})
	if err != nil {
		return account.Account{}, apperr.Internal("account creation failed", err)
	}

	// The jar id doubles as the child's login identifier.
	created.JarID = created.ID
	created, err = s.store.UpdateAccount(ctx, created)
	if err != nil {
		return account.Account{}, apperr.Internal("account update failed", err)
	}

	s.log.WithFields(map[string]interface{}{
		"parent_id": parent.ID,
		"child_id":  created.ID,
	}).Info("child jar created")
	return created, nil
}

// ListChildren returns the parent's child jars.
func (s *Service) ListChildren(ctx context.Context, parentID string) ([]account.Account, error) {
	if _, err := s.requireParent(ctx, parentID); err != nil {
		return nil, err
	}
	children, err := s.store.ListChildren(ctx, parentID)
	if err != nil {
		return nil, apperr.Internal("children listing failed", err)
	}
	return children, nil
}

// DeleteChild removes a child jar after verifying the caller owns it.
func (s *Service) DeleteChild(ctx context.Context, parentID, childID string) error {
	child, err := s.requireOwnedChild(ctx, parentID, childID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteAccount(ctx, child.ID); err != nil {
		return apperr.Internal("account deletion failed", err)
	}
	s.log.WithField("child_id", childID).Info("child jar deleted")
	return nil
}

// ResetChildPIN sets a new PIN on a child jar owned by the caller.
func (s *Service) ResetChildPIN(ctx context.Context, parentID, childID, newPIN string) error {
	if !validPIN(newPIN) {
		return apperr.Validation("invalid pin")
	}
	child, err := s.requireOwnedChild(ctx, parentID, childID)
	if err != nil {
		return err
	}

	hash, err := hashPIN(newPIN)
	if err != nil {
		return apperr.Internal("pin hashing failed", err)
	}
	child.PINHash = hash
	if _, err := s.store.UpdateAccount(ctx, child); err != nil {
		return apperr.Internal("account update failed", err)
	}
	s.log.WithField("child_id", childID).Info("child pin reset")
	return nil
}

// Get returns any account by id.
func (s *Service) Get(ctx context.Context, id string) (account.Account, error) {
	acct, err := s.store.GetAccount(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return account.Account{}, apperr.NotFound("account")
	}
	if err != nil {
		return account.Account{}, apperr.Internal("account lookup failed", err)
	}
	return acct, nil
}

func (s *Service) requireParent(ctx context.Context, parentID string) (account.Account, error) {
	parent, err := s.store.GetAccount(ctx, parentID)
	if errors.Is(err, storage.ErrNotFound) {
		return account.Account{}, apperr.NotFound("account")
	}
	if err != nil {
		return account.Account{}, apperr.Internal("account lookup failed", err)
	}
	if !parent.IsParent() {
		return account.Account{}, apperr.Forbidden("parent account required")
	}
	return parent, nil
}

func (s *Service) requireOwnedChild(ctx context.Context, parentID, childID string) (account.Account, error) {
	if _, err := s.requireParent(ctx, parentID); err != nil {
		return account.Account{}, err
	}
	child, err := s.store.GetAccount(ctx, childID)
	if errors.Is(err, storage.ErrNotFound) {
		return account.Account{}, apperr.NotFound("child")
	}
	if err != nil {
		return account.Account{}, apperr.Internal("account lookup failed", err)
	}
	if child.Role != account.RoleChild || child.ParentID != parentID {
		return account.Account{}, apperr.Forbidden("child does not belong to this account")
	}
	return child, nil
}
