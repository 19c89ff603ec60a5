// Package httpapi exposes the SatsJar REST API.
package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	app "github.com/satsjar/satsjar/internal/app"
	"github.com/satsjar/satsjar/internal/app/domain/account"
	"github.com/satsjar/satsjar/internal/app/domain/notification"
	"github.com/satsjar/satsjar/internal/app/services/accounts"
	apperr "github.com/satsjar/satsjar/internal/errors"
	"github.com/satsjar/satsjar/internal/httputil"
	"github.com/satsjar/satsjar/internal/middleware"
)

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app       *app.Application
	jwtSecret []byte
	tokenTTL  time.Duration
}

// AuthSkipPaths are the routes served without a bearer token.
var AuthSkipPaths = []string{
	"/api/auth/register",
	"/api/auth/login",
	"/api/auth/child-login",
	"/api/payments/mpesa/callback",
	"/healthz",
	"/metrics",
}

// NewHandler returns a mux exposing the REST API.
func NewHandler(application *app.Application, jwtSecret []byte, tokenTTL time.Duration) http.Handler {
	h := &handler{app: application, jwtSecret: jwtSecret, tokenTTL: tokenTTL}
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.health)
	mux.HandleFunc("/api/auth/", h.auth)
	mux.HandleFunc("/api/wallet/", h.wallet)
	mux.HandleFunc("/api/payments/", h.payments)
	mux.HandleFunc("/api/achievements", h.achievements)
	mux.HandleFunc("/api/parent/", h.parent)
	mux.HandleFunc("/api/notifications/", h.notifications)
	return mux
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- auth -------------------------------------------------------------------

type authResponse struct {
	Token string          `json:"token"`
	User  account.Account `json:"user"`
}

func (h *handler) auth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	switch strings.TrimPrefix(r.URL.Path, "/api/auth/") {
	case "register":
		h.register(w, r)
	case "login":
		h.login(w, r)
	case "child-login":
		h.childLogin(w, r)
	case "create-child":
		h.createChild(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *handler) register(w http.ResponseWriter, r *http.Request) {
	var payload registerRequest
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeServiceError(w, apperr.Validation("invalid request body"))
		return
	}
	if err := validate.Struct(payload); err != nil {
		writeServiceError(w, apperr.Validation("fields required"))
		return
	}

	acct, err := h.app.Accounts.RegisterParent(r.Context(), accounts.RegisterParams{
		Name:        payload.Name,
		PhoneNumber: payload.PhoneNumber,
		PIN:         payload.PIN,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	h.writeAuth(w, http.StatusCreated, acct)
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	var payload loginRequest
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeServiceError(w, apperr.Validation("invalid request body"))
		return
	}
	if err := validate.Struct(payload); err != nil {
		writeServiceError(w, apperr.Validation("fields required"))
		return
	}

	acct, err := h.app.Accounts.Login(r.Context(), payload.PhoneNumber, payload.PIN)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	h.writeAuth(w, http.StatusOK, acct)
}

func (h *handler) childLogin(w http.ResponseWriter, r *http.Request) {
	var payload childLoginRequest
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeServiceError(w, apperr.Validation("invalid request body"))
		return
	}
	if err := validate.Struct(payload); err != nil {
		writeServiceError(w, apperr.Validation("fields required"))
		return
	}

	acct, err := h.app.Accounts.ChildLogin(r.Context(), payload.ChildID, payload.PIN)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	h.writeAuth(w, http.StatusOK, acct)
}

func (h *handler) createChild(w http.ResponseWriter, r *http.Request) {
	parentID := middleware.GetUserID(r.Context())
	if parentID == "" {
		httputil.Unauthorized(w, "")
		return
	}

	var payload createChildRequest
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeServiceError(w, apperr.Validation("invalid request body"))
		return
	}

	child, err := h.app.Accounts.CreateChild(r.Context(), parentID, accounts.CreateChildParams{
		Name: payload.ChildName,
		Age:  payload.ChildAge,
		PIN:  payload.ChildPIN,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"childId": child.ID})
}

func (h *handler) writeAuth(w http.ResponseWriter, status int, acct account.Account) {
	token, err := middleware.NewToken(h.jwtSecret, acct.ID, string(acct.Role), acct.PhoneNumber, h.tokenTTL)
	if err != nil {
		writeServiceError(w, apperr.Internal("token issuance failed", err))
		return
	}
	writeJSON(w, status, authResponse{Token: token, User: acct})
}

// --- wallet -----------------------------------------------------------------

func (h *handler) wallet(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetUserID(r.Context())
	if accountID == "" {
		httputil.Unauthorized(w, "")
		return
	}

	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/wallet"), "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) == 0 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	switch parts[0] {
	case "balance":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		balance, err := h.app.Wallet.Balance(r.Context(), accountID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int64{"balance": balance})

	case "invoice":
		h.walletInvoice(w, r, accountID, parts[1:])

	case "transactions":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		txs, err := h.app.Wallet.Transactions(r.Context(), accountID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, txs)

	case "goals":
		h.walletGoals(w, r, accountID, parts[1:])

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *handler) walletInvoice(w http.ResponseWriter, r *http.Request, accountID string, rest []string) {
	if len(rest) == 0 {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var payload invoiceRequest
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeServiceError(w, apperr.Validation("invalid request body"))
			return
		}
		if err := validate.Struct(payload); err != nil {
			writeServiceError(w, apperr.Validation("amount must be positive"))
			return
		}

		inv, err := h.app.Lightning.CreateInvoice(r.Context(), accountID, payload.Amount, payload.Memo)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, inv)
		return
	}

	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	inv, err := h.app.Lightning.CheckInvoice(r.Context(), accountID, rest[0])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (h *handler) walletGoals(w http.ResponseWriter, r *http.Request, accountID string, rest []string) {
	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			goals, err := h.app.Wallet.ListGoals(r.Context(), accountID)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, goals)
		case http.MethodPost:
			var payload goalRequest
			if err := decodeJSON(r.Body, &payload); err != nil {
				writeServiceError(w, apperr.Validation("invalid request body"))
				return
			}
			if err := validate.Struct(payload); err != nil {
				writeServiceError(w, apperr.Validation("goal name and positive target required"))
				return
			}
			goal, err := h.app.Wallet.CreateGoal(r.Context(), accountID, payload.Name, payload.TargetSats)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, goal)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	if r.Method != http.MethodPut {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload goalUpdateRequest
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeServiceError(w, apperr.Validation("invalid request body"))
		return
	}
	if err := validate.Struct(payload); err != nil {
		writeServiceError(w, apperr.Validation("invalid goal update"))
		return
	}

	goalID := rest[0]
	if payload.Contribute > 0 {
		goal, err := h.app.Wallet.ContributeToGoal(r.Context(), accountID, goalID, payload.Contribute)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, goal)
		return
	}

	goal, err := h.app.Wallet.UpdateGoal(r.Context(), accountID, goalID, payload.Name, payload.TargetSats)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, goal)
}

// --- payments ---------------------------------------------------------------

func (h *handler) payments(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/payments"), "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) == 0 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	switch parts[0] {
	case "mpesa":
		if len(parts) < 2 {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		switch parts[1] {
		case "stk-push":
			h.stkPush(w, r)
		case "callback":
			h.mpesaCallback(w, r)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	case "status":
		if len(parts) < 2 {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.paymentStatus(w, r, parts[1])
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *handler) stkPush(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetUserID(r.Context())
	if accountID == "" {
		httputil.Unauthorized(w, "")
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var payload stkPushRequest
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeServiceError(w, apperr.Validation("invalid request body"))
		return
	}
	if err := validate.Struct(payload); err != nil {
		writeServiceError(w, apperr.Validation("minimum deposit is 10 KES"))
		return
	}

	phone := accounts.NormalizePhone(payload.PhoneNumber)
	req, err := h.app.Mpesa.RequestDeposit(r.Context(), accountID, phone, payload.Amount)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

// mpesaCallback receives Daraja's asynchronous result. The gateway expects
// a 200 acknowledgement in every case it can retry.
func (h *handler) mpesaCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	payload, _, err := httputil.ReadAllWithLimit(r.Body, 1<<20)
	if err != nil {
		writeServiceError(w, apperr.Validation("unreadable callback payload"))
		return
	}
	defer r.Body.Close()

	if err := h.app.Mpesa.HandleCallback(r.Context(), payload); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"ResultDesc": "Accepted"})
}

func (h *handler) paymentStatus(w http.ResponseWriter, r *http.Request, depositID string) {
	accountID := middleware.GetUserID(r.Context())
	if accountID == "" {
		httputil.Unauthorized(w, "")
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	req, err := h.app.Mpesa.CheckStatus(r.Context(), accountID, depositID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// --- achievements -----------------------------------------------------------

func (h *handler) achievements(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetUserID(r.Context())
	if accountID == "" {
		httputil.Unauthorized(w, "")
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	list, err := h.app.Achievements.List(r.Context(), accountID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// --- parent -----------------------------------------------------------------

func (h *handler) parent(w http.ResponseWriter, r *http.Request) {
	parentID := middleware.GetUserID(r.Context())
	if parentID == "" {
		httputil.Unauthorized(w, "")
		return
	}

	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/parent"), "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) == 0 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	switch parts[0] {
	case "children":
		h.parentChildren(w, r, parentID, parts[1:])
	case "allowances":
		if len(parts) < 2 {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.parentAllowance(w, r, parentID, parts[1])
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *handler) parentChildren(w http.ResponseWriter, r *http.Request, parentID string, rest []string) {
	if len(rest) == 0 {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		children, err := h.app.Accounts.ListChildren(r.Context(), parentID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, children)
		return
	}

	childID := rest[0]
	if len(rest) == 1 {
		if r.Method != http.MethodDelete {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if err := h.app.Accounts.DeleteChild(r.Context(), parentID, childID); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	switch rest[1] {
	case "reset-pin":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var payload resetPINRequest
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeServiceError(w, apperr.Validation("invalid request body"))
			return
		}
		if err := validate.Struct(payload); err != nil {
			writeServiceError(w, apperr.Validation("invalid pin"))
			return
		}
		if err := h.app.Accounts.ResetChildPIN(r.Context(), parentID, childID, payload.PIN); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})

	case "allowances":
		switch r.Method {
		case http.MethodGet:
			list, err := h.app.Allowances.List(r.Context(), childID)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, list)
		case http.MethodPost:
			var payload allowanceRequest
			if err := decodeJSON(r.Body, &payload); err != nil {
				writeServiceError(w, apperr.Validation("invalid request body"))
				return
			}
			if err := validate.Struct(payload); err != nil {
				writeServiceError(w, apperr.Validation("amount and schedule required"))
				return
			}
			created, err := h.app.Allowances.Create(r.Context(), parentID, childID, payload.AmountSats, payload.Schedule)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, created)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *handler) parentAllowance(w http.ResponseWriter, r *http.Request, parentID, allowanceID string) {
	if r.Method != http.MethodPatch {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var payload allowanceUpdateRequest
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeServiceError(w, apperr.Validation("invalid request body"))
		return
	}
	updated, err := h.app.Allowances.SetEnabled(r.Context(), parentID, allowanceID, payload.Enabled)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// --- notifications ----------------------------------------------------------

func (h *handler) notifications(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetUserID(r.Context())
	if accountID == "" {
		httputil.Unauthorized(w, "")
		return
	}

	switch strings.TrimPrefix(r.URL.Path, "/api/notifications/") {
	case "settings":
		switch r.Method {
		case http.MethodGet:
			settings, err := h.app.Notifications.Settings(r.Context(), accountID)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, settings)
		case http.MethodPut:
			var payload settingsRequest
			if err := decodeJSON(r.Body, &payload); err != nil {
				writeServiceError(w, apperr.Validation("invalid request body"))
				return
			}
			saved, err := h.app.Notifications.UpdateSettings(r.Context(), notification.Settings{
				AccountID:     accountID,
				SMSEnabled:    payload.SMSEnabled,
				GoalAlerts:    payload.GoalAlerts,
				DepositAlerts: payload.DepositAlerts,
			})
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, saved)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}

	case "test-sms":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var payload testSMSRequest
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeServiceError(w, apperr.Validation("invalid request body"))
			return
		}
		if err := validate.Struct(payload); err != nil {
			writeServiceError(w, apperr.Validation("phone number required"))
			return
		}
		phone := accounts.NormalizePhone(payload.PhoneNumber)
		if err := h.app.Notifications.SendTest(r.Context(), accountID, phone); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// --- helpers ----------------------------------------------------------------

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	httputil.WriteJSON(w, status, data)
}

// writeServiceError maps a service error onto the uniform error body.
func writeServiceError(w http.ResponseWriter, err error) {
	serviceErr := apperr.GetServiceError(err)
	if serviceErr == nil {
		httputil.WriteError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	httputil.WriteErrorResponse(w, serviceErr.HTTPStatus, string(serviceErr.Code), serviceErr.Message, serviceErr.Details)
}
