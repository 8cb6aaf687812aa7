package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pquerna/otp/totp"
	"github.com/rafflehq/ticket-engine/internal/config"
	"github.com/rafflehq/ticket-engine/internal/db/dbtest"
	"github.com/rafflehq/ticket-engine/internal/entries"
	"github.com/rafflehq/ticket-engine/internal/models"
	"github.com/rafflehq/ticket-engine/internal/payments"
	"github.com/rafflehq/ticket-engine/internal/retry"
	"github.com/rafflehq/ticket-engine/internal/security"
	"github.com/rafflehq/ticket-engine/internal/sequencer"
	"github.com/rafflehq/ticket-engine/internal/settings"
	"github.com/rafflehq/ticket-engine/internal/wallet"
	"github.com/rafflehq/ticket-engine/internal/winning"
	"gorm.io/gorm"
)

type adminEnv struct {
	conn   *gorm.DB
	router *gin.Engine
	token  string
}

func newAdminEnv(t *testing.T) *adminEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conn := dbtest.Open(t)
	r := gin.New()
	RegisterAdminRoutes(r, Deps{
		DB:       conn,
		JWT:      config.JWTConfig{AdminSecret: "admin-secret", Expiry: time.Hour},
		Registry: winning.NewRegistry(conn),
		Entries:  entries.NewStore(conn),
		Wallet:   wallet.NewLedger(conn, retry.DefaultPolicy()),
		Payments: payments.NewTracker(conn, payments.DefaultSuccessCode),
	})
	env := &adminEnv{conn: conn, router: r}
	createAdmin(t, conn, "ops", "hunter22", "")
	env.token = env.login(t, "ops", "hunter22", "")
	return env
}

func createAdmin(t *testing.T, conn *gorm.DB, username, password, totpSecret string) models.Admin {
	t.Helper()
	hash, errHash := security.HashPassword(password)
	if errHash != nil {
		t.Fatalf("hash: %v", errHash)
	}
	admin := models.Admin{Username: username, Password: hash, Active: true, TOTPSecret: totpSecret}
	if errCreate := conn.Create(&admin).Error; errCreate != nil {
		t.Fatalf("create admin: %v", errCreate)
	}
	return admin
}

func (e *adminEnv) request(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var raw []byte
	if body != nil {
		var errMarshal error
		raw, errMarshal = json.Marshal(body)
		if errMarshal != nil {
			t.Fatalf("marshal: %v", errMarshal)
		}
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *adminEnv) login(t *testing.T, username, password, code string) string {
	t.Helper()
	w := e.request(t, http.MethodPost, "/v0/admin/login", "", map[string]string{
		"username": username, "password": password, "totp_code": code,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d body=%s", w.Code, w.Body.String())
	}
	var body struct {
		Token string `json:"token"`
	}
	if errDecode := json.Unmarshal(w.Body.Bytes(), &body); errDecode != nil || body.Token == "" {
		t.Fatalf("login body = %s", w.Body.String())
	}
	return body.Token
}

func decodeInto(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	if errDecode := json.Unmarshal(w.Body.Bytes(), out); errDecode != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), errDecode)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	env := newAdminEnv(t)

	w := env.request(t, http.MethodPost, "/v0/admin/login", "", map[string]string{"username": "ops", "password": "nope"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", w.Code)
	}
	w = env.request(t, http.MethodPost, "/v0/admin/login", "", map[string]string{"username": "", "password": ""})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	w = env.request(t, http.MethodGet, "/v0/admin/competitions/1/prizes", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d", w.Code)
	}
	w = env.request(t, http.MethodGet, "/v0/admin/competitions/1/prizes", "garbage", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("bad token status = %d", w.Code)
	}
}

func TestLoginRequiresTOTPWhenEnrolled(t *testing.T) {
	env := newAdminEnv(t)
	secret, _, errSecret := security.GenerateTOTPSecret("mfa-admin")
	if errSecret != nil {
		t.Fatalf("secret: %v", errSecret)
	}
	createAdmin(t, env.conn, "mfa-admin", "pass-word", secret)

	w := env.request(t, http.MethodPost, "/v0/admin/login", "", map[string]string{"username": "mfa-admin", "password": "pass-word"})
	if w.Code != http.StatusForbidden {
		t.Fatalf("missing code status = %d", w.Code)
	}
	w = env.request(t, http.MethodPost, "/v0/admin/login", "", map[string]string{"username": "mfa-admin", "password": "pass-word", "totp_code": "000000x"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("bad code status = %d", w.Code)
	}
	code, errCode := totp.GenerateCode(secret, time.Now())
	if errCode != nil {
		t.Fatalf("code: %v", errCode)
	}
	env.login(t, "mfa-admin", "pass-word", code)
}

func TestDisabledAdminIsRejected(t *testing.T) {
	env := newAdminEnv(t)
	if errUpdate := env.conn.Model(&models.Admin{}).Where("username = ?", "ops").Update("active", false).Error; errUpdate != nil {
		t.Fatalf("disable: %v", errUpdate)
	}
	w := env.request(t, http.MethodGet, "/v0/admin/competitions/1/prizes", env.token, nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestCompetitionAndPrizeLifecycle(t *testing.T) {
	env := newAdminEnv(t)
	now := time.Now().UTC()

	w := env.request(t, http.MethodPost, "/v0/admin/competitions", env.token, map[string]any{
		"title":         "Summer car",
		"ticket_price":  "1.00",
		"total_tickets": 30,
		"status":        "active",
		"start_at":      now.Add(-time.Hour),
		"end_at":        now.Add(time.Hour),
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create competition status = %d body=%s", w.Code, w.Body.String())
	}
	var competition models.Competition
	decodeInto(t, w, &competition)
	if competition.ID == 0 || competition.TicketPrice != 100 || competition.Currency != "GBP" {
		t.Fatalf("competition = %+v", competition)
	}

	w = env.request(t, http.MethodPost, "/v0/admin/competitions", env.token, map[string]any{
		"title": "Broken", "ticket_price": "0", "total_tickets": 10,
		"start_at": now, "end_at": now.Add(time.Hour),
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("zero price status = %d", w.Code)
	}

	prizesPath := fmt.Sprintf("/v0/admin/competitions/%d/prizes", competition.ID)
	w = env.request(t, http.MethodPost, prizesPath, env.token, map[string]any{
		"title": "Cash", "total_quantity": 2, "phase": 1, "is_instant_win": true,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create prize status = %d body=%s", w.Code, w.Body.String())
	}
	var prize models.Prize
	decodeInto(t, w, &prize)

	seedPath := fmt.Sprintf("/v0/admin/prizes/%d/winning-tickets", prize.ID)
	w = env.request(t, http.MethodPost, seedPath, env.token, map[string]any{"ticket_numbers": []int64{11}})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("out of phase seed status = %d body=%s", w.Code, w.Body.String())
	}
	w = env.request(t, http.MethodPost, seedPath, env.token, map[string]any{"ticket_numbers": []int64{3, 7}})
	if w.Code != http.StatusCreated {
		t.Fatalf("seed status = %d body=%s", w.Code, w.Body.String())
	}
	w = env.request(t, http.MethodGet, seedPath, env.token, nil)
	var seeded struct {
		WinningTickets []models.WinningTicket `json:"winning_tickets"`
	}
	decodeInto(t, w, &seeded)
	if len(seeded.WinningTickets) != 2 {
		t.Fatalf("winning tickets = %+v", seeded.WinningTickets)
	}

	w = env.request(t, http.MethodPut, fmt.Sprintf("/v0/admin/prizes/%d", prize.ID), env.token, map[string]any{
		"title": "More cash", "total_quantity": 2, "phase": 1, "is_instant_win": true,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("update prize status = %d body=%s", w.Code, w.Body.String())
	}
	w = env.request(t, http.MethodGet, prizesPath, env.token, nil)
	var listed struct {
		Prizes []models.Prize `json:"prizes"`
	}
	decodeInto(t, w, &listed)
	if len(listed.Prizes) != 1 || listed.Prizes[0].Title != "More cash" {
		t.Fatalf("prizes = %+v", listed.Prizes)
	}

	w = env.request(t, http.MethodPost, fmt.Sprintf("/v0/admin/competitions/%d/end", competition.ID), env.token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("end status = %d body=%s", w.Code, w.Body.String())
	}
	var ended models.Competition
	env.conn.Where("id = ?", competition.ID).Take(&ended)
	if ended.Status != models.CompetitionStatusEnded {
		t.Fatalf("status = %s", ended.Status)
	}
	w = env.request(t, http.MethodPost, "/v0/admin/competitions/9999/end", env.token, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("end missing status = %d", w.Code)
	}
	w = env.request(t, http.MethodGet, fmt.Sprintf("/v0/admin/competitions/%d/entries", competition.ID), env.token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("entries status = %d", w.Code)
	}
}

func TestPrizeLockTransitions(t *testing.T) {
	env := newAdminEnv(t)
	competition := dbtest.Competition(t, env.conn, 20, 100)
	lockPath := fmt.Sprintf("/v0/admin/competitions/%d/prize-lock", competition.ID)

	w := env.request(t, http.MethodGet, lockPath, env.token, nil)
	var state struct {
		State  string                  `json:"state"`
		Events []models.PrizeLockEvent `json:"events"`
	}
	decodeInto(t, w, &state)
	if state.State != models.PrizeLockLocked || len(state.Events) != 0 {
		t.Fatalf("initial lock = %+v", state)
	}

	w = env.request(t, http.MethodPost, lockPath+"/unlock", env.token, map[string]string{"reason": " "})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("unlock without reason status = %d", w.Code)
	}
	w = env.request(t, http.MethodPost, lockPath+"/unlock", env.token, map[string]string{"reason": "fix prize title"})
	if w.Code != http.StatusOK {
		t.Fatalf("unlock status = %d body=%s", w.Code, w.Body.String())
	}
	w = env.request(t, http.MethodPost, lockPath+"/lock", env.token, map[string]string{})
	if w.Code != http.StatusOK {
		t.Fatalf("lock status = %d body=%s", w.Code, w.Body.String())
	}

	w = env.request(t, http.MethodGet, lockPath, env.token, nil)
	decodeInto(t, w, &state)
	if state.State != models.PrizeLockLocked || len(state.Events) != 2 {
		t.Fatalf("lock after transitions = %+v", state)
	}
	if state.Events[0].ToState != models.PrizeLockUnlocked || state.Events[0].Reason != "fix prize title" {
		t.Fatalf("first event = %+v", state.Events[0])
	}
}

func TestWalletCreditAndView(t *testing.T) {
	env := newAdminEnv(t)
	user := dbtest.User(t, env.conn, "auth0|wallet")
	walletPath := fmt.Sprintf("/v0/admin/wallets/%d", user.ID)

	w := env.request(t, http.MethodPost, walletPath+"/credit", env.token, map[string]string{"amount": "abc"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad amount status = %d", w.Code)
	}
	w = env.request(t, http.MethodPost, walletPath+"/credit", env.token, map[string]string{"amount": "12.50", "reason": "goodwill"})
	if w.Code != http.StatusCreated {
		t.Fatalf("credit status = %d body=%s", w.Code, w.Body.String())
	}

	w = env.request(t, http.MethodGet, walletPath, env.token, nil)
	var body struct {
		Balance        int64                      `json:"balance"`
		BalanceDisplay string                     `json:"balance_display"`
		Transactions   []models.WalletTransaction `json:"transactions"`
	}
	decodeInto(t, w, &body)
	if body.Balance != 1250 || body.BalanceDisplay != "£12.50" || len(body.Transactions) != 1 {
		t.Fatalf("wallet = %+v", body)
	}
	if body.Transactions[0].Reason != "goodwill" {
		t.Fatalf("reason = %q", body.Transactions[0].Reason)
	}
}

func TestMarkEntryStatus(t *testing.T) {
	env := newAdminEnv(t)
	competition := dbtest.Competition(t, env.conn, 20, 100)
	user := dbtest.User(t, env.conn, "auth0|entrant")
	if _, errReserve := sequencer.New(env.conn).Reserve(context.Background(), competition.ID, 2); errReserve != nil {
		t.Fatalf("reserve: %v", errReserve)
	}
	store := entries.NewStore(env.conn)
	entry, errCreate := store.CreateEntry(context.Background(), competition.ID, user.ID, []int64{1, 2}, entries.FundingRefs{})
	if errCreate != nil {
		t.Fatalf("create entry: %v", errCreate)
	}

	w := env.request(t, http.MethodPost, "/v0/admin/entries/9999/status", env.token, map[string]string{"status": "used"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing entry status = %d", w.Code)
	}
	path := fmt.Sprintf("/v0/admin/entries/%d/status", entry.ID)
	w = env.request(t, http.MethodPost, path, env.token, map[string]string{"status": "active"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("invalid target status = %d", w.Code)
	}
	w = env.request(t, http.MethodPost, path, env.token, map[string]string{"status": "used"})
	if w.Code != http.StatusOK {
		t.Fatalf("mark status = %d body=%s", w.Code, w.Body.String())
	}
	got, errGet := store.Get(context.Background(), entry.ID)
	if errGet != nil || got.Status != models.EntryStatusUsed {
		t.Fatalf("entry = %+v err=%v", got, errGet)
	}
}

func TestHealthz(t *testing.T) {
	env := newAdminEnv(t)
	w := env.request(t, http.MethodGet, "/healthz", "", nil)
	var body struct {
		OK    bool   `json:"ok"`
		Redis string `json:"redis"`
	}
	decodeInto(t, w, &body)
	if w.Code != http.StatusOK || !body.OK || body.Redis != "disabled" {
		t.Fatalf("healthz status=%d body=%s", w.Code, w.Body.String())
	}
}

func TestAdminAccountsAndTOTPEnrollment(t *testing.T) {
	env := newAdminEnv(t)

	w := env.request(t, http.MethodPost, "/v0/admin/admins", env.token, map[string]string{"username": "second", "password": "short"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("short password status = %d", w.Code)
	}
	w = env.request(t, http.MethodPost, "/v0/admin/admins", env.token, map[string]string{"username": "second", "password": "long-enough"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d body=%s", w.Code, w.Body.String())
	}
	w = env.request(t, http.MethodPost, "/v0/admin/admins", env.token, map[string]string{"username": "second", "password": "long-enough"})
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate status = %d", w.Code)
	}
	w = env.request(t, http.MethodGet, "/v0/admin/admins?username=SEC", env.token, nil)
	var listed struct {
		Admins []struct {
			ID       uint64 `json:"id"`
			Username string `json:"username"`
		} `json:"admins"`
	}
	decodeInto(t, w, &listed)
	if len(listed.Admins) != 1 || listed.Admins[0].Username != "second" {
		t.Fatalf("admins = %+v", listed.Admins)
	}
	w = env.request(t, http.MethodPost, fmt.Sprintf("/v0/admin/admins/%d/disable", listed.Admins[0].ID), env.token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("disable status = %d", w.Code)
	}

	w = env.request(t, http.MethodPost, "/v0/admin/me/mfa/totp/prepare", env.token, nil)
	var prepared struct {
		Secret string `json:"secret"`
	}
	decodeInto(t, w, &prepared)
	if w.Code != http.StatusOK || prepared.Secret == "" {
		t.Fatalf("prepare status=%d body=%s", w.Code, w.Body.String())
	}
	code, errCode := totp.GenerateCode(prepared.Secret, time.Now())
	if errCode != nil {
		t.Fatalf("code: %v", errCode)
	}
	w = env.request(t, http.MethodPost, "/v0/admin/me/mfa/totp/confirm", env.token, map[string]string{"code": code})
	if w.Code != http.StatusOK {
		t.Fatalf("confirm status = %d body=%s", w.Code, w.Body.String())
	}

	competition := dbtest.Competition(t, env.conn, 20, 100)
	unlockPath := fmt.Sprintf("/v0/admin/competitions/%d/prize-lock/unlock", competition.ID)
	w = env.request(t, http.MethodPost, unlockPath, env.token, map[string]string{"reason": "fix"})
	if w.Code != http.StatusForbidden {
		t.Fatalf("unlock without code status = %d", w.Code)
	}
	w = env.request(t, http.MethodPost, unlockPath, env.token, map[string]string{"reason": "fix", "totp_code": code})
	if w.Code != http.StatusOK {
		t.Fatalf("unlock with code status = %d body=%s", w.Code, w.Body.String())
	}
}

func TestOrderAndPaymentLookup(t *testing.T) {
	env := newAdminEnv(t)
	user := dbtest.User(t, env.conn, "buyer")

	order := models.Order{CheckoutID: "chk-lookup", UserID: user.ID, Currency: "GBP", Status: models.OrderStatusCompleted, PaymentMethod: models.PaymentMethodCard, TotalAmount: 500, PaymentAmount: 500}
	if errCreate := env.conn.Create(&order).Error; errCreate != nil {
		t.Fatalf("create order: %v", errCreate)
	}
	tracker := payments.NewTracker(env.conn, payments.DefaultSuccessCode)
	if _, errRecord := tracker.Record(context.Background(), payments.RecordInput{
		CheckoutID: "chk-lookup",
		UserID:     user.ID,
		Amount:     500,
		Currency:   "GBP",
		OrderID:    &order.ID,
		Result:     &payments.AuthorizeResult{PaymentID: "pay-1", StatusCode: payments.DefaultSuccessCode},
	}); errRecord != nil {
		t.Fatalf("record: %v", errRecord)
	}

	w := env.request(t, http.MethodGet, fmt.Sprintf("/v0/admin/orders/%d", order.ID), env.token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("order status = %d body=%s", w.Code, w.Body.String())
	}
	var got struct {
		PaymentTransactions []models.PaymentTransaction `json:"payment_transactions"`
	}
	decodeInto(t, w, &got)
	if len(got.PaymentTransactions) != 1 || !got.PaymentTransactions[0].Succeeded {
		t.Fatalf("payment transactions = %+v", got.PaymentTransactions)
	}

	w = env.request(t, http.MethodGet, "/v0/admin/orders/999", env.token, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing order status = %d", w.Code)
	}

	w = env.request(t, http.MethodGet, "/v0/admin/payments/chk-lookup", env.token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("payment status = %d body=%s", w.Code, w.Body.String())
	}
	w = env.request(t, http.MethodGet, "/v0/admin/payments/unknown", env.token, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown payment status = %d", w.Code)
	}
}

func TestRuntimeSettings(t *testing.T) {
	env := newAdminEnv(t)

	w := env.request(t, http.MethodPut, "/v0/admin/settings/NOT_A_SETTING", env.token, map[string]any{"value": 5})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("unknown key status = %d", w.Code)
	}
	w = env.request(t, http.MethodPut, "/v0/admin/settings/CHECKOUT_MAX_QUANTITY_PER_LINE", env.token, map[string]any{"value": -1})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("negative value status = %d", w.Code)
	}
	w = env.request(t, http.MethodPut, "/v0/admin/settings/PAYMENT_PAYLOAD_RETENTION_DAYS", env.token, map[string]any{"value": "30"})
	if w.Code != http.StatusOK {
		t.Fatalf("put status = %d body=%s", w.Code, w.Body.String())
	}
	if got := settings.IntOr(settings.PaymentPayloadRetentionDaysKey, 0); got != 30 {
		t.Fatalf("snapshot value = %d, want 30", got)
	}

	w = env.request(t, http.MethodGet, "/v0/admin/settings", env.token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	var listed struct {
		Settings []struct {
			Key string `json:"key"`
		} `json:"settings"`
	}
	decodeInto(t, w, &listed)
	if len(listed.Settings) != 1 || listed.Settings[0].Key != settings.PaymentPayloadRetentionDaysKey {
		t.Fatalf("settings = %+v", listed.Settings)
	}
}
