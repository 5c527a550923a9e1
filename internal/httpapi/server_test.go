package httpapi_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/safar/renew-path-trade/internal/advisor"
	"github.com/safar/renew-path-trade/internal/apperr"
	"github.com/safar/renew-path-trade/internal/auth"
	"github.com/safar/renew-path-trade/internal/classify"
	"github.com/safar/renew-path-trade/internal/config"
	"github.com/safar/renew-path-trade/internal/httpapi"
	"github.com/safar/renew-path-trade/internal/market"
	"github.com/safar/renew-path-trade/internal/metrics"
	"github.com/safar/renew-path-trade/internal/payment"
	"github.com/safar/renew-path-trade/internal/payment/paymenttest"
	"github.com/safar/renew-path-trade/internal/realtime"
	"github.com/safar/renew-path-trade/internal/storetest"
)

type tokens map[string]auth.Identity

func (t tokens) Verify(_ context.Context, token string) (auth.Identity, error) {
	id, ok := t[token]
	if !ok {
		return auth.Identity{}, apperr.Auth("invalid token")
	}
	return id, nil
}

type fakeClassifier struct{}

func (fakeClassifier) Classify(_ context.Context, filename string, image io.Reader) ([]classify.Prediction, error) {
	data, _ := io.ReadAll(image)
	if len(data) == 0 {
		return nil, apperr.Validation("image is empty")
	}
	return []classify.Prediction{{Label: "plastic", Score: 0.9}, {Label: "metal", Score: 0.1}}, nil
}

type fakeAdvisor struct{}

func (fakeAdvisor) Reply(_ context.Context, messages []advisor.Message) (string, error) {
	return "You said: " + messages[len(messages)-1].Content, nil
}

type harness struct {
	t       *testing.T
	db      *sqlx.DB
	srv     *httptest.Server
	gateway *paymenttest.Gateway
	tokens  tokens
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWith(t, storetest.NewDB(t), nil)
}

func newHarnessWith(t *testing.T, db *sqlx.DB, local *auth.LocalProvider) *harness {
	t.Helper()

	hub := realtime.NewHub(1, nil, nil)
	gw := &paymenttest.Gateway{}
	m := metrics.New("test")
	adapter := payment.NewAdapter(db, gw, config.GatewayConfig{
		Currency: "INR", KeyID: "rzp_test", KeySecret: "secret", MerchantName: "EcoMarket", ThemeColor: "#059669",
	}, hub, nil, m)

	tk := tokens{}
	var verifier auth.Verifier = tk
	if local != nil {
		verifier = local
	}

	api := httpapi.New(httpapi.Deps{
		Market:     market.NewService(db, adapter, hub, nil, m),
		Payments:   adapter,
		Verifier:   verifier,
		Local:      local,
		Hub:        hub,
		Classifier: fakeClassifier{},
		Advisor:    fakeAdvisor{},
		Metrics:    m,
	})

	srv := httptest.NewServer(api.Routes())
	t.Cleanup(srv.Close)

	return &harness{t: t, db: db, srv: srv, gateway: gw, tokens: tk}
}

// user registers a bearer token for a fresh identity with the given role.
func (h *harness) user(role, name string) (token, id string) {
	id = uuid.NewString()
	token = "tok-" + id
	h.tokens[token] = auth.Identity{ID: id, Email: name + "@example.com", Metadata: auth.Metadata{Name: name, Role: role}}
	return token, id
}

func (h *harness) do(method, path, token string, body any) (int, []byte) {
	h.t.Helper()

	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(h.t, err)
		rdr = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, h.srv.URL+path, rdr)
	require.NoError(h.t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(h.t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(h.t, err)
	return resp.StatusCode, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v), string(data))
	return v
}

func TestAuthenticationRequired(t *testing.T) {
	h := newHarness(t)

	status, body := h.do(http.MethodGet, "/api/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Contains(t, string(body), "error")

	status, _ = h.do(http.MethodGet, "/api/me", "bogus", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = h.do(http.MethodPost, "/functions/v1/create-payment", "", map[string]any{"product_id": "x"})
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestMeResolvesProfile(t *testing.T) {
	h := newHarness(t)
	token, id := h.user("recycler", "rita")

	status, body := h.do(http.MethodGet, "/api/me", token, nil)
	require.Equal(t, http.StatusOK, status, string(body))

	me := decode[map[string]any](t, body)
	assert.Equal(t, id, me["id"])
	assert.Equal(t, "recycler", me["role"])
	assert.Equal(t, false, me["degraded"])

	status, body = h.do(http.MethodGet, "/api/recyclers", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]map[string]any](t, body), 1)
}

func TestMeDegradesWhenProfileStoreFails(t *testing.T) {
	db := storetest.NewDB(t)
	h := newHarnessWith(t, db, nil)
	token, _ := h.user("seller", "sam")
	require.NoError(t, db.Close())

	status, body := h.do(http.MethodGet, "/api/me", token, nil)
	require.Equal(t, http.StatusOK, status, string(body))

	me := decode[map[string]any](t, body)
	assert.Nil(t, me["role"])
	assert.Equal(t, true, me["degraded"])

	status, _ = h.do(http.MethodPost, "/api/products", token, market.ProductInput{Name: "x", Price: "1", Category: "paper"})
	assert.Equal(t, http.StatusForbidden, status)

	status, body = h.do(http.MethodPost, "/functions/v1/create-payment", token, map[string]any{"product_id": uuid.NewString(), "quantity": 1})
	assert.Equal(t, http.StatusServiceUnavailable, status, string(body))
	assert.Empty(t, h.gateway.Calls())
}

func TestProductCatalog(t *testing.T) {
	h := newHarness(t)
	seller, _ := h.user("seller", "sam")
	buyer, _ := h.user("buyer", "bea")

	status, body := h.do(http.MethodPost, "/api/products", seller, market.ProductInput{
		Name: "Plastic Bottles", Description: "clean PET", Price: "120", Category: "plastic",
	})
	require.Equal(t, http.StatusCreated, status, string(body))

	status, _ = h.do(http.MethodPost, "/api/products", buyer, market.ProductInput{Name: "x", Price: "1", Category: "paper"})
	assert.Equal(t, http.StatusForbidden, status)

	status, body = h.do(http.MethodPost, "/api/products", seller, market.ProductInput{Name: "x", Price: "-3", Category: "paper"})
	assert.Equal(t, http.StatusBadRequest, status, string(body))

	status, body = h.do(http.MethodGet, "/api/products", "", nil)
	require.Equal(t, http.StatusOK, status)
	products := decode[[]map[string]any](t, body)
	require.Len(t, products, 1)
	assert.Equal(t, "Plastic Bottles", products[0]["name"])
	assert.Equal(t, "available", products[0]["status"])

	status, body = h.do(http.MethodGet, "/api/seller/products", seller, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]map[string]any](t, body), 1)
}

func TestCreatePaymentRPC(t *testing.T) {
	h := newHarness(t)
	seller, _ := h.user("seller", "sam")
	buyer, _ := h.user("buyer", "bea")

	_, body := h.do(http.MethodPost, "/api/products", seller, market.ProductInput{Name: "Plastic Bottles", Price: "120", Category: "plastic"})
	productID := decode[map[string]any](t, body)["id"].(string)

	status, body := h.do(http.MethodPost, "/functions/v1/create-payment", buyer, map[string]any{"product_id": productID, "quantity": 2})
	require.Equal(t, http.StatusOK, status, string(body))

	session := decode[payment.Session](t, body)
	assert.Equal(t, "order_gw_1", session.OrderID)
	assert.Equal(t, int64(24000), session.Amount)
	assert.Equal(t, "INR", session.Currency)
	assert.Equal(t, "rzp_test", session.KeyID)
	assert.Equal(t, "EcoMarket", session.Name)
	assert.Equal(t, "Plastic Bottles", session.Description)
	assert.Equal(t, payment.Prefill{Email: "bea@example.com", Name: "bea"}, session.Prefill)
	assert.Equal(t, "#059669", session.Theme.Color)

	status, body = h.do(http.MethodGet, "/api/orders", buyer, nil)
	require.Equal(t, http.StatusOK, status)
	page := decode[struct {
		Items []map[string]any `json:"items"`
	}](t, body)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "placed", page.Items[0]["status"])
	assert.Equal(t, "240", page.Items[0]["total_amount"])

	status, _ = h.do(http.MethodPost, "/functions/v1/create-payment", buyer, map[string]any{"quantity": 1})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = h.do(http.MethodPost, "/functions/v1/create-payment", buyer, map[string]any{"product_id": uuid.NewString()})
	assert.Equal(t, http.StatusNotFound, status)

	h.gateway.Err = errors.New("gateway answered 500")
	status, body = h.do(http.MethodPost, "/functions/v1/create-payment", buyer, map[string]any{"product_id": productID})
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Contains(t, string(body), "error")
}

func TestOrderLifecycle(t *testing.T) {
	h := newHarness(t)
	seller, _ := h.user("seller", "sam")
	buyer, _ := h.user("buyer", "bea")

	_, body := h.do(http.MethodPost, "/api/products", seller, market.ProductInput{Name: "Aluminum Cans", Price: "150", Category: "metal"})
	productID := decode[map[string]any](t, body)["id"].(string)

	status, body := h.do(http.MethodPost, "/api/orders", buyer, map[string]any{"product_id": productID})
	require.Equal(t, http.StatusOK, status, string(body))
	session := decode[payment.Session](t, body)
	orderPath := "/api/orders/" + session.LocalOrderID

	status, _ = h.do(http.MethodPost, orderPath+"/payment", buyer, map[string]string{
		"razorpay_order_id":   session.OrderID,
		"razorpay_payment_id": "pay_1",
		"razorpay_signature":  payment.Sign("secret", session.OrderID, "pay_1"),
	})
	assert.Equal(t, http.StatusOK, status)

	status, _ = h.do(http.MethodPost, orderPath+"/deliver", buyer, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = h.do(http.MethodPost, orderPath+"/start", seller, nil)
	assert.Equal(t, http.StatusOK, status)
	status, _ = h.do(http.MethodPost, orderPath+"/start", seller, nil)
	assert.Equal(t, http.StatusConflict, status)
	status, _ = h.do(http.MethodPost, orderPath+"/deliver", seller, nil)
	assert.Equal(t, http.StatusOK, status)

	status, body = h.do(http.MethodGet, "/api/seller/orders", seller, nil)
	require.Equal(t, http.StatusOK, status)
	sales := decode[[]map[string]any](t, body)
	require.Len(t, sales, 1)
	assert.Equal(t, "delivered", sales[0]["status"])
}

func TestRecyclingRequestFlow(t *testing.T) {
	h := newHarness(t)
	requester, _ := h.user("seller", "sam")
	recyclerA, idA := h.user("recycler", "alice")
	recyclerB, _ := h.user("recycler", "bob")

	// profiles are created on first authenticated access
	h.do(http.MethodGet, "/api/me", recyclerA, nil)
	h.do(http.MethodGet, "/api/me", recyclerB, nil)

	status, body := h.do(http.MethodPost, "/api/requests", requester, market.RequestInput{RecyclerID: idA, WasteType: "plastic", Description: "10kg"})
	require.Equal(t, http.StatusCreated, status, string(body))
	reqID := decode[map[string]any](t, body)["id"].(string)

	status, _ = h.do(http.MethodPost, "/api/requests", recyclerA, market.RequestInput{RecyclerID: idA, WasteType: "plastic"})
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = h.do(http.MethodPost, "/api/recycler/requests/"+reqID+"/accept", recyclerB, nil)
	assert.Equal(t, http.StatusConflict, status)
	status, _ = h.do(http.MethodPost, "/api/recycler/requests/"+reqID+"/accept", recyclerA, nil)
	assert.Equal(t, http.StatusOK, status)
	status, _ = h.do(http.MethodPost, "/api/recycler/requests/"+reqID+"/reject", recyclerA, nil)
	assert.Equal(t, http.StatusConflict, status)

	status, body = h.do(http.MethodPost, "/api/requests/samples", requester, map[string]string{"recycler_id": idA})
	require.Equal(t, http.StatusCreated, status, string(body))
	assert.Len(t, decode[[]map[string]any](t, body), 3)

	status, _ = h.do(http.MethodPost, "/api/recycler/requests/"+reqID+"/complete", recyclerA, nil)
	assert.Equal(t, http.StatusOK, status)

	status, body = h.do(http.MethodGet, "/api/recycler/requests?scope=active", recyclerA, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]map[string]any](t, body), 3)

	status, body = h.do(http.MethodGet, "/api/recycler/requests?scope=services", recyclerA, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]map[string]any](t, body), 4)

	status, body = h.do(http.MethodGet, "/api/requests", requester, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]map[string]any](t, body), 4)
}

type sseEvent struct {
	name string
	data string
}

func readEvent(t *testing.T, r *bufio.Reader) sseEvent {
	t.Helper()

	var ev sseEvent
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			if ev.name != "" {
				return ev
			}
		case strings.HasPrefix(line, "event: "):
			ev.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			ev.data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func TestProductStreamRefreshesOnChange(t *testing.T) {
	h := newHarness(t)
	seller, _ := h.user("seller", "sam")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.srv.URL+"/api/products/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := bufio.NewReader(resp.Body)
	first := readEvent(t, events)
	assert.Equal(t, "products", first.name)
	assert.Equal(t, "[]", first.data)

	status, _ := h.do(http.MethodPost, "/api/products", seller, market.ProductInput{Name: "Office Paper", Price: "80", Category: "paper"})
	require.Equal(t, http.StatusCreated, status)

	second := readEvent(t, events)
	assert.Equal(t, "products", second.name)
	assert.Contains(t, second.data, "Office Paper")
}

func TestRecyclerStreamIsFiltered(t *testing.T) {
	h := newHarness(t)
	requester, _ := h.user("buyer", "bea")
	recycler, id := h.user("recycler", "alice")
	other, otherID := h.user("recycler", "bob")
	h.do(http.MethodGet, "/api/me", recycler, nil)
	h.do(http.MethodGet, "/api/me", other, nil)

	status, _ := h.do(http.MethodGet, "/api/recycler/requests/stream", requester, nil)
	assert.Equal(t, http.StatusForbidden, status)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.srv.URL+"/api/recycler/requests/stream", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+recycler)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	events := bufio.NewReader(resp.Body)
	assert.Equal(t, "[]", readEvent(t, events).data)

	status, _ = h.do(http.MethodPost, "/api/requests", requester, market.RequestInput{RecyclerID: otherID, WasteType: "metal"})
	require.Equal(t, http.StatusCreated, status)
	status, _ = h.do(http.MethodPost, "/api/requests", requester, market.RequestInput{RecyclerID: id, WasteType: "paper", Description: "for alice"})
	require.Equal(t, http.StatusCreated, status)

	ev := readEvent(t, events)
	assert.Contains(t, ev.data, "for alice")
	assert.Equal(t, 1, strings.Count(ev.data, `"id"`))
}

func TestClassifyAndChat(t *testing.T) {
	h := newHarness(t)
	token, _ := h.user("buyer", "bea")

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("file", "bottle.jpg")
	require.NoError(t, err)
	part.Write([]byte("jpegbytes"))
	require.NoError(t, form.Close())

	req, err := http.NewRequest(http.MethodPost, h.srv.URL+"/api/classify", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Predictions []classify.Prediction `json:"predictions"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out.Predictions, 2)
	assert.Equal(t, "plastic", out.Predictions[0].Label)

	status, body := h.do(http.MethodPost, "/api/chat", token, map[string]any{
		"messages": []advisor.Message{{Role: "user", Content: "old phone"}},
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "You said: old phone", decode[map[string]string](t, body)["reply"])

	status, _ = h.do(http.MethodPost, "/api/chat", token, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestLocalAuthFlow(t *testing.T) {
	db := storetest.NewDB(t)
	h := newHarnessWith(t, db, auth.NewLocalProvider(db, time.Hour, bcrypt.MinCost))

	status, body := h.do(http.MethodPost, "/auth/signup", "", map[string]string{
		"email": "sam@example.com", "password": "secret1", "name": "Sam", "role": "seller",
	})
	require.Equal(t, http.StatusCreated, status, string(body))

	status, _ = h.do(http.MethodPost, "/auth/signin", "", map[string]string{"email": "sam@example.com", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body = h.do(http.MethodPost, "/auth/signin", "", map[string]string{"email": "SAM@example.com", "password": "secret1"})
	require.Equal(t, http.StatusOK, status, string(body))
	token := decode[auth.Session](t, body).Token

	status, body = h.do(http.MethodGet, "/api/me", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "seller", decode[map[string]any](t, body)["role"])

	status, _ = h.do(http.MethodPost, "/auth/signout", token, nil)
	assert.Equal(t, http.StatusNoContent, status)

	status, _ = h.do(http.MethodGet, "/api/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t)

	status, _ := h.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, status)

	status, body := h.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `test_http_requests_total{code="200",method="GET",route="/healthz"}`)
}
