package httpapi

import (
	"github.com/go-playground/validator/v10"
)

// validate checks request payloads before they reach the services. Child
// creation is additionally validated in the accounts service so the rules
// hold for every caller.
var validate = validator.New()

type registerRequest struct {
	Name        string `json:"name" validate:"required"`
	PhoneNumber string `json:"phoneNumber" validate:"required"`
	PIN         string `json:"pin" validate:"required,len=6,numeric"`
}

type loginRequest struct {
	PhoneNumber string `json:"phoneNumber" validate:"required"`
	PIN         string `json:"pin" validate:"required"`
}

type childLoginRequest struct {
	ChildID string `json:"childId" validate:"required"`
	PIN     string `json:"pin" validate:"required"`
}

type createChildRequest struct {
	ChildName string `json:"childName"`
	ChildAge  int    `json:"childAge"`
	ChildPIN  string `json:"childPin"`
}

type resetPINRequest struct {
	PIN string `json:"pin" validate:"required,len=6,numeric"`
}

type invoiceRequest struct {
	Amount int64  `json:"amount" validate:"required,gt=0"`
	Memo   string `json:"memo" validate:"max=128"`
}

type stkPushRequest struct {
	PhoneNumber string `json:"phoneNumber" validate:"required"`
	Amount      int64  `json:"amount" validate:"required,gte=10"`
}

type goalRequest struct {
	Name       string `json:"name" validate:"required,max=64"`
	TargetSats int64  `json:"targetSats" validate:"required,gt=0"`
}

type goalUpdateRequest struct {
	Name       string `json:"name" validate:"omitempty,max=64"`
	TargetSats int64  `json:"targetSats" validate:"omitempty,gt=0"`
	Contribute int64  `json:"contribute" validate:"omitempty,gt=0"`
}

type allowanceRequest struct {
	AmountSats int64  `json:"amountSats" validate:"required,gt=0"`
	Schedule   string `json:"schedule" validate:"required"`
}

type allowanceUpdateRequest struct {
	Enabled bool `json:"enabled"`
}

type settingsRequest struct {
	SMSEnabled    bool `json:"smsEnabled"`
	GoalAlerts    bool `json:"goalAlerts"`
	DepositAlerts bool `json:"depositAlerts"`
}

type testSMSRequest struct {
	PhoneNumber string `json:"phoneNumber" validate:"required"`
}
