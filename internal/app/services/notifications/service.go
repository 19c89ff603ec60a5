// Package notifications manages SMS notification settings and delivery.
package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	apperr "github.com/satsjar/satsjar/internal/errors"
	"github.com/satsjar/satsjar/internal/app/domain/notification"
	"github.com/satsjar/satsjar/internal/app/storage"
	"github.com/satsjar/satsjar/internal/httputil"
	"github.com/satsjar/satsjar/pkg/logger"
)

// Sender delivers an SMS to a phone number.
type Sender interface {
	SendSMS(ctx context.Context, phoneNumber, message string) error
}

// HTTPSender implements Sender against an SMS gateway's JSON API.
type HTTPSender struct {
	baseURL string
	apiKey  string
	from    string
	client  *http.Client
}

// NewHTTPSender creates an SMS gateway client.
func NewHTTPSender(baseURL, apiKey, from string) *HTTPSender {
	return &HTTPSender{
		baseURL: baseURL,
		apiKey:  apiKey,
		from:    from,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// SendSMS posts the message to the gateway.
func (s *HTTPSender) SendSMS(ctx context.Context, phoneNumber, message string) error {
	payload, err := json.Marshal(map[string]string{
		"from": s.from,
		"to":   phoneNumber,
		"text": message,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/messages", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("sms send: %w", err)
	}
	defer resp.Body.Close()
	return httputil.DecodeResponse(resp, nil)
}

// Service manages per-account notification settings.
type Service struct {
	store  storage.NotificationStore
	sender Sender
	log    *logger.Logger
}

// New creates a notifications service. sender may be nil when SMS delivery
// is not configured; sends then log and drop.
func New(store storage.NotificationStore, sender Sender, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("notifications")
	}
	return &Service{store: store, sender: sender, log: log}
}

// Settings returns the account's settings, falling back to the defaults for
// accounts that never saved any.
func (s *Service) Settings(ctx context.Context, accountID string) (notification.Settings, error) {
	settings, err := s.store.GetSettings(ctx, accountID)
	if errors.Is(err, storage.ErrNotFound) {
		return notification.DefaultSettings(accountID), nil
	}
	if err != nil {
		return notification.Settings{}, apperr.Internal("settings lookup failed", err)
	}
	return settings, nil
}

// UpdateSettings persists new settings for the account.
func (s *Service) UpdateSettings(ctx context.Context, settings notification.Settings) (notification.Settings, error) {
	if settings.AccountID == "" {
		return notification.Settings{}, apperr.Validation("account id required")
	}
	saved, err := s.store.SaveSettings(ctx, settings)
	if err != nil {
		return notification.Settings{}, apperr.Internal("settings save failed", err)
	}
	return saved, nil
}

// Notify sends an SMS if the account has SMS notifications enabled.
func (s *Service) Notify(ctx context.Context, accountID, phoneNumber, message string) {
	settings, err := s.Settings(ctx, accountID)
	if err != nil {
		s.log.WithError(err).Warn("settings lookup failed, dropping notification")
		return
	}
	if !settings.SMSEnabled || phoneNumber == "" {
		return
	}
	if s.sender == nil {
		s.log.WithField("account_id", accountID).Debug("no sms sender configured, dropping notification")
		return
	}
	if err := s.sender.SendSMS(ctx, phoneNumber, message); err != nil {
		s.log.WithError(err).WithField("account_id", accountID).Warn("sms delivery failed")
	}
}

// SendTest delivers a test message so users can verify their number.
func (s *Service) SendTest(ctx context.Context, accountID, phoneNumber string) error {
	if s.sender == nil {
		return apperr.Validation("sms delivery is not configured")
	}
	if phoneNumber == "" {
		return apperr.Validation("phone number required")
	}
	if err := s.sender.SendSMS(ctx, phoneNumber, "SatsJar test message: notifications are working."); err != nil {
		return apperr.Internal("sms delivery failed", err)
	}
	s.log.WithField("account_id", accountID).Info("test sms sent")
	return nil
}
