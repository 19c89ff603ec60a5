package notifications

import (
	"context"
	"testing"

	"github.com/satsjar/satsjar/internal/app/domain/notification"
	"github.com/satsjar/satsjar/internal/app/storage/memory"
)

type fakeSender struct {
	sent []string
}

func (f *fakeSender) SendSMS(_ context.Context, phoneNumber, message string) error {
	f.sent = append(f.sent, phoneNumber+": "+message)
	return nil
}

func TestSettingsDefaultWhenUnset(t *testing.T) {
	svc := New(memory.New(), nil, nil)

	settings, err := svc.Settings(context.Background(), "a1")
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	if !settings.SMSEnabled || !settings.GoalAlerts || !settings.DepositAlerts {
		t.Fatalf("defaults must be all-on: %+v", settings)
	}
}

func TestUpdateSettingsRoundTrip(t *testing.T) {
	svc := New(memory.New(), nil, nil)
	ctx := context.Background()

	saved, err := svc.UpdateSettings(ctx, notification.Settings{AccountID: "a1", SMSEnabled: false, GoalAlerts: true})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if saved.SMSEnabled {
		t.Fatalf("sms should be off")
	}

	got, err := svc.Settings(ctx, "a1")
	if err != nil || got.SMSEnabled {
		t.Fatalf("saved settings not returned: %+v %v", got, err)
	}
}

func TestNotifyHonoursSettings(t *testing.T) {
	store := memory.New()
	sender := &fakeSender{}
	svc := New(store, sender, nil)
	ctx := context.Background()

	svc.Notify(ctx, "a1", "254712345678", "deposit received")
	if len(sender.sent) != 1 {
		t.Fatalf("default settings must deliver, got %d", len(sender.sent))
	}

	if _, err := svc.UpdateSettings(ctx, notification.Settings{AccountID: "a1", SMSEnabled: false}); err != nil {
		t.Fatalf("update: %v", err)
	}
	svc.Notify(ctx, "a1", "254712345678", "deposit received")
	if len(sender.sent) != 1 {
		t.Fatalf("disabled sms must not deliver")
	}
}

func TestSendTestRequiresSender(t *testing.T) {
	svc := New(memory.New(), nil, nil)
	if err := svc.SendTest(context.Background(), "a1", "254712345678"); err == nil {
		t.Fatalf("unconfigured sender must fail")
	}

	sender := &fakeSender{}
	svc = New(memory.New(), sender, nil)
	if err := svc.SendTest(context.Background(), "a1", "254712345678"); err != nil {
		t.Fatalf("send test: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("test sms not delivered")
	}
}
