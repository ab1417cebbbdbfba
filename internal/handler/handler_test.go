package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v76/webhook"

	"kisan-choice-api/internal/auth"
	"kisan-choice-api/internal/cache"
	"kisan-choice-api/internal/database"
	"kisan-choice-api/internal/features"
	"kisan-choice-api/internal/models"
	"kisan-choice-api/internal/payment"
	"kisan-choice-api/internal/service"
)

const webhookSecret = "whsec_handler_test"

type testEnv struct {
	router http.Handler
	db     *database.DB
	tokens *auth.Verifier
	flags  *features.Manager
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.NewSQLite(context.Background(), filepath.Join(t.TempDir(), "handler.db"))
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	flags := features.NewDefaultManager(nil)
	svc := service.NewServiceWithOptions(db, service.Options{Flags: flags, Logger: zerolog.Nop()})
	tokens := auth.NewVerifier("jwt-secret", "kisan-choice")

	h := NewHandler(svc, Options{
		Verifier: payment.NewVerifier(webhookSecret, 5*time.Minute),
		Dedupe:   cache.NewEventDeduper(cache.NewInMemoryCache(), time.Hour),
		Flags:    flags,
		Store:    db,
		Logger:   zerolog.Nop(),
	})
	router := NewRouter(h, RouterOptions{
		Logger:      zerolog.Nop(),
		Verifier:    tokens,
		MaxBodySize: 1 << 20,
	})
	return &testEnv{router: router, db: db, tokens: tokens, flags: flags}
}

func (e *testEnv) user(t *testing.T, role models.Role) (models.User, string) {
	t.Helper()
	id := uuid.NewString()
	u := models.User{ID: id, Name: "User " + id[:4], Email: id[:8] + "@example.com", Role: role, Active: true}
	if err := e.db.CreateUser(context.Background(), u, time.Now().UTC()); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	token, err := e.tokens.Sign(models.Principal{ID: id, Role: role}, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return u, token
}

func (e *testEnv) product(t *testing.T, sellerID string, stock int) models.Product {
	t.Helper()
	p := models.Product{
		ID:            uuid.NewString(),
		SellerID:      sellerID,
		Name:          "Basmati Rice",
		Price:         decimal.NewFromInt(80),
		StockQuantity: stock,
		MinQty:        1,
		MaxQty:        50,
		Negotiate:     true,
	}
	if err := e.db.CreateProduct(context.Background(), p, time.Now().UTC()); err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}
	return p
}

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Results *int            `json:"results"`
	Data    json.RawMessage `json:"data"`
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)

	var env envelope
	if rr.Body.Len() > 0 {
		if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
			t.Fatalf("%s %s: invalid JSON %q: %v", method, path, rr.Body.String(), err)
		}
	}
	return rr.Code, env
}

func (e *testEnv) webhook(t *testing.T, payload []byte, secret string) (int, webhookAck) {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook", bytes.NewReader(payload))
	req.Header.Set(payment.SignatureHeader, signed.Header)
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)

	var ack webhookAck
	_ = json.Unmarshal(rr.Body.Bytes(), &ack)
	return rr.Code, ack
}

func checkoutEvent(eventID, orderID string) []byte {
	return []byte(fmt.Sprintf(`{"id":%q,"object":"event","type":"checkout.session.completed",
		"data":{"object":{"id":"cs_%s","object":"checkout.session","client_reference_id":%q,"payment_intent":"pi_%s"}}}`,
		eventID, eventID, orderID, eventID))
}

func decodeData(t *testing.T, env envelope, dst interface{}) {
	t.Helper()
	if err := json.Unmarshal(env.Data, dst); err != nil {
		t.Fatalf("decode data %s: %v", env.Data, err)
	}
}

func TestHealthCheck(t *testing.T) {
	e := setupTestEnv(t)

	for _, path := range []string{"/health", "/api/v1/health"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rr := httptest.NewRecorder()
		e.router.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Errorf("GET %s = %d", path, rr.Code)
		}
	}
}

func TestRoleBoundary(t *testing.T) {
	e := setupTestEnv(t)
	farmer, farmerToken := e.user(t, models.RoleFarmer)
	_, consumerToken := e.user(t, models.RoleConsumer)
	p := e.product(t, farmer.ID, 100)
	offer := models.SubmitOfferRequest{ProductID: p.ID, OfferedPricePerUnit: decimal.NewFromInt(70), Quantity: 5}

	if code, _ := e.do(t, http.MethodPost, "/api/v1/offers", "", offer); code != http.StatusUnauthorized {
		t.Errorf("anonymous submit = %d, want 401", code)
	}
	if code, _ := e.do(t, http.MethodPost, "/api/v1/offers", farmerToken, offer); code != http.StatusForbidden {
		t.Errorf("farmer submit = %d, want 403", code)
	}
	if code, _ := e.do(t, http.MethodGet, "/api/v1/blocks", consumerToken, nil); code != http.StatusForbidden {
		t.Errorf("consumer block list = %d, want 403", code)
	}
	if code, _ := e.do(t, http.MethodGet, "/api/v1/admin/anomalies", farmerToken, nil); code != http.StatusForbidden {
		t.Errorf("farmer admin = %d, want 403", code)
	}
}

func TestNegotiatedPurchaseFlow(t *testing.T) {
	e := setupTestEnv(t)
	farmer, farmerToken := e.user(t, models.RoleFarmer)
	_, consumerToken := e.user(t, models.RoleConsumer)
	p := e.product(t, farmer.ID, 100)

	code, env := e.do(t, http.MethodPost, "/api/v1/offers", consumerToken, models.SubmitOfferRequest{
		ProductID: p.ID, OfferedPricePerUnit: decimal.NewFromInt(70), Quantity: 10,
	})
	if code != http.StatusCreated {
		t.Fatalf("submit = %d %+v", code, env)
	}
	var submitted models.SubmitOfferResponse
	decodeData(t, env, &submitted)

	code, env = e.do(t, http.MethodPatch, "/api/v1/offers/"+submitted.OfferID+"/accept", farmerToken, nil)
	if code != http.StatusOK {
		t.Fatalf("accept = %d %+v", code, env)
	}
	var accepted models.AcceptOfferResponse
	decodeData(t, env, &accepted)
	if accepted.CartItemID == "" || accepted.ExpiresOn.IsZero() {
		t.Errorf("accept response = %+v", accepted)
	}

	code, env = e.do(t, http.MethodPatch, "/api/v1/offers/"+submitted.OfferID+"/accept", farmerToken, nil)
	if code != http.StatusBadRequest || env.Status != "fail" {
		t.Errorf("second accept = %d %+v", code, env)
	}

	code, env = e.do(t, http.MethodGet, "/api/v1/cart", consumerToken, nil)
	if code != http.StatusOK {
		t.Fatalf("view cart = %d", code)
	}
	var cart models.CartView
	decodeData(t, env, &cart)
	if len(cart.Lines) != 1 || !cart.TotalPrice.Equal(decimal.NewFromInt(700)) {
		t.Fatalf("cart = %+v", cart)
	}

	code, env = e.do(t, http.MethodPut, "/api/v1/cart/"+accepted.CartItemID, consumerToken, models.UpdateCartItemRequest{Quantity: 3})
	if code != http.StatusBadRequest {
		t.Errorf("update fixed line = %d %+v", code, env)
	}

	code, env = e.do(t, http.MethodPost, "/api/v1/cart/checkout", consumerToken, models.CheckoutRequest{DeliveryAddress: "12 Mandi Road, Pune"})
	if code != http.StatusCreated {
		t.Fatalf("checkout = %d %+v", code, env)
	}
	var order models.Order
	decodeData(t, env, &order)
	if !order.TotalAmount.Equal(decimal.NewFromInt(700)) || order.PaymentStatus != models.PaymentPending {
		t.Fatalf("order = %+v", order)
	}

	status, ack := e.webhook(t, checkoutEvent("evt_flow", order.ID), webhookSecret)
	if status != http.StatusOK || !ack.Applied {
		t.Fatalf("webhook = %d %+v", status, ack)
	}
	status, ack = e.webhook(t, checkoutEvent("evt_flow", order.ID), webhookSecret)
	if status != http.StatusOK || !ack.Duplicate {
		t.Errorf("replayed webhook = %d %+v", status, ack)
	}
	status, ack = e.webhook(t, checkoutEvent("evt_other", order.ID), webhookSecret)
	if status != http.StatusOK || ack.Applied {
		t.Errorf("second event for paid order = %d %+v", status, ack)
	}

	stored, err := e.db.GetProduct(context.Background(), p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.StockQuantity != 90 {
		t.Errorf("stock = %d, want 90", stored.StockQuantity)
	}

	code, env = e.do(t, http.MethodGet, "/api/v1/orders/"+order.ID, consumerToken, nil)
	if code != http.StatusOK {
		t.Fatalf("get order = %d", code)
	}
	decodeData(t, env, &order)
	if order.OrderStatus != models.OrderProcessing || order.PaymentReference != "pi_evt_flow" {
		t.Errorf("paid order = %+v", order)
	}

	code, _ = e.do(t, http.MethodPatch, "/api/v1/orders/"+order.ID+"/status", farmerToken, models.OrderStatusRequest{Status: models.OrderShipped})
	if code != http.StatusOK {
		t.Errorf("ship = %d", code)
	}
}

func TestWebhookFailures(t *testing.T) {
	e := setupTestEnv(t)

	status, _ := e.webhook(t, checkoutEvent("evt_bad", uuid.NewString()), "whsec_wrong")
	if status != http.StatusBadRequest {
		t.Errorf("bad signature = %d, want 400", status)
	}

	status, _ = e.webhook(t, checkoutEvent("evt_missing", uuid.NewString()), webhookSecret)
	if status != http.StatusNotFound {
		t.Errorf("unknown order = %d, want 404", status)
	}

	noRef := []byte(`{"id":"evt_noref","object":"event","type":"checkout.session.completed","data":{"object":{"id":"cs_1","object":"checkout.session"}}}`)
	if status, _ = e.webhook(t, noRef, webhookSecret); status != http.StatusBadRequest {
		t.Errorf("missing reference = %d, want 400", status)
	}

	other := []byte(`{"id":"evt_x","object":"event","type":"payment_intent.created","data":{"object":{"id":"pi_1","object":"payment_intent"}}}`)
	status, ack := e.webhook(t, other, webhookSecret)
	if status != http.StatusOK || !ack.Received || ack.Applied {
		t.Errorf("ignored event = %d %+v", status, ack)
	}
}

func TestWebhookRejectionHidesVerifierDetail(t *testing.T) {
	e := setupTestEnv(t)

	cases := []struct {
		name    string
		payload []byte
		secret  string
		want    string
	}{
		{"wrong secret", checkoutEvent("evt_detail", uuid.NewString()), "whsec_wrong", "Webhook Error: signature verification failed."},
		{"missing reference", []byte(`{"id":"evt_m","object":"event","type":"checkout.session.completed","data":{"object":{"id":"cs_1","object":"checkout.session"}}}`), webhookSecret, "Webhook Error: malformed event payload."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
				Payload:   tc.payload,
				Secret:    tc.secret,
				Timestamp: time.Now(),
			})
			req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook", bytes.NewReader(tc.payload))
			req.Header.Set(payment.SignatureHeader, signed.Header)
			rr := httptest.NewRecorder()
			e.router.ServeHTTP(rr, req)

			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rr.Code)
			}
			var env envelope
			if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
				t.Fatal(err)
			}
			if env.Message != tc.want {
				t.Errorf("message = %q, want %q", env.Message, tc.want)
			}
			if strings.Contains(rr.Body.String(), "payment:") || strings.Contains(rr.Body.String(), "client_reference_id") {
				t.Errorf("body leaks verifier detail: %s", rr.Body.String())
			}
		})
	}
}

func TestOfferErrorsMapToStatus(t *testing.T) {
	e := setupTestEnv(t)
	farmer, farmerToken := e.user(t, models.RoleFarmer)
	consumer, consumerToken := e.user(t, models.RoleConsumer)
	p := e.product(t, farmer.ID, 100)

	code, env := e.do(t, http.MethodPost, "/api/v1/offers", consumerToken, models.SubmitOfferRequest{
		ProductID: p.ID, OfferedPricePerUnit: decimal.NewFromInt(-1), Quantity: 5,
	})
	if code != http.StatusBadRequest || env.Message != "Price and quantity must be positive values." {
		t.Errorf("invalid offer = %d %+v", code, env)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/offers", bytes.NewBufferString("{not json"))
	req.Header.Set("Authorization", "Bearer "+consumerToken)
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("malformed body = %d", rr.Code)
	}

	code, env = e.do(t, http.MethodPost, "/api/v1/blocks/"+consumer.ID, farmerToken, models.BlockRequest{Reason: "spam offers"})
	if code != http.StatusCreated {
		t.Fatalf("block = %d %+v", code, env)
	}
	code, _ = e.do(t, http.MethodPost, "/api/v1/offers", consumerToken, models.SubmitOfferRequest{
		ProductID: p.ID, OfferedPricePerUnit: decimal.NewFromInt(60), Quantity: 5,
	})
	if code != http.StatusForbidden {
		t.Errorf("blocked consumer submit = %d, want 403", code)
	}

	code, env = e.do(t, http.MethodGet, "/api/v1/blocks", farmerToken, nil)
	if code != http.StatusOK || env.Results == nil || *env.Results != 1 {
		t.Errorf("block list = %d %+v", code, env)
	}
	if code, _ = e.do(t, http.MethodDelete, "/api/v1/blocks/"+consumer.ID, farmerToken, nil); code != http.StatusOK {
		t.Errorf("unblock = %d", code)
	}
	if code, _ = e.do(t, http.MethodDelete, "/api/v1/blocks/"+consumer.ID, farmerToken, nil); code != http.StatusNotFound {
		t.Errorf("second unblock = %d, want 404", code)
	}
}

func TestAdminFeatureFlags(t *testing.T) {
	e := setupTestEnv(t)
	_, adminToken := e.user(t, models.RoleAdmin)

	code, env := e.do(t, http.MethodPatch, "/api/v1/admin/features/"+features.WebhookDedupe, adminToken, map[string]bool{"enabled": false})
	if code != http.StatusOK {
		t.Fatalf("set flag = %d %+v", code, env)
	}
	if e.flags.IsEnabled(features.WebhookDedupe) {
		t.Error("flag should be disabled")
	}

	if code, _ = e.do(t, http.MethodPatch, "/api/v1/admin/features/nope", adminToken, map[string]bool{"enabled": true}); code != http.StatusNotFound {
		t.Errorf("unknown flag = %d, want 404", code)
	}

	code, env = e.do(t, http.MethodGet, "/api/v1/admin/features", adminToken, nil)
	if code != http.StatusOK || env.Results == nil || *env.Results == 0 {
		t.Errorf("list flags = %d %+v", code, env)
	}
}
