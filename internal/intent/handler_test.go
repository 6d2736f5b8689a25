package intent_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/akwaba/rentpay/internal"
	intentPkg "github.com/akwaba/rentpay/internal/intent"
)

type mockIntentService struct {
	createResp *intentPkg.CreateIntentResponse
	createErr  error
	view       *intentPkg.IntentView
	getErr     error
	views      []intentPkg.IntentView
	listErr    error

	lastCreateReq *intentPkg.CreateIntentRequest
	lastReference string
}

func (m *mockIntentService) CreateIntent(ctx context.Context, actor *internal.User, req *intentPkg.CreateIntentRequest) (*intentPkg.CreateIntentResponse, error) {
	m.lastCreateReq = req
	if m.createErr != nil {
		return nil, m.createErr
	}
	return m.createResp, nil
}

func (m *mockIntentService) GetIntent(ctx context.Context, actor *internal.User, reference string) (*intentPkg.IntentView, error) {
	m.lastReference = reference
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.view, nil
}

func (m *mockIntentService) ListIntents(ctx context.Context, actor *internal.User, limit, offset int) ([]intentPkg.IntentView, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.views, nil
}

var _ = Describe("Handler", func() {
	var (
		service *mockIntentService
		handler *intentPkg.Handler
		router  *chi.Mux
		user    *internal.User
	)

	withUser := func(req *http.Request) *http.Request {
		return req.WithContext(internal.ContextWithUser(req.Context(), user))
	}

	BeforeEach(func() {
		service = &mockIntentService{}
		handler = intentPkg.NewHandler(service, testLogger())
		user = &internal.User{ID: 11, Email: "aya.kouassi@mail.ci", Role: "tenant"}

		router = chi.NewRouter()
		router.Post("/payment-intents", handler.CreateIntent)
		router.Get("/payment-intents", handler.ListIntents)
		router.Get("/payment-intents/{reference}", handler.GetIntent)
	})

	Describe("CreateIntent", func() {
		It("returns 201 with the initiation payload", func() {
			service.createResp = &intentPkg.CreateIntentResponse{
				Reference:   "RP-202609-000001",
				Status:      "created",
				RedirectURL: "https://gateway.example/pay/RP-202609-000001",
			}

			body, _ := json.Marshal(map[string]interface{}{
				"purpose": "OTHER",
				"amount":  5000,
				"channel": "web",
			})
			req := withUser(httptest.NewRequest(http.MethodPost, "/payment-intents", bytes.NewReader(body)))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusCreated))

			var resp intentPkg.CreateIntentResponse
			Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.Reference).To(Equal("RP-202609-000001"))
			Expect(service.lastCreateReq.Amount).To(Equal(int64(5000)))
		})

		It("returns 400 on a malformed body", func() {
			req := withUser(httptest.NewRequest(http.MethodPost, "/payment-intents", bytes.NewReader([]byte("{not json"))))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})

		It("returns 401 without a principal in context", func() {
			req := httptest.NewRequest(http.MethodPost, "/payment-intents", bytes.NewReader([]byte("{}")))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
		})

		It("maps a gateway outage to 502", func() {
			service.createErr = internal.NewExternalError("payment gateway unavailable", internal.ErrCodeGatewayUnavailable, nil)

			body, _ := json.Marshal(map[string]interface{}{
				"purpose": "OTHER",
				"amount":  5000,
				"channel": "web",
			})
			req := withUser(httptest.NewRequest(http.MethodPost, "/payment-intents", bytes.NewReader(body)))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusBadGateway))
		})
	})

	Describe("GetIntent", func() {
		It("returns the view for a known reference", func() {
			service.view = &intentPkg.IntentView{Reference: "RP-202609-000001", Status: "paid"}

			req := withUser(httptest.NewRequest(http.MethodGet, "/payment-intents/RP-202609-000001", nil))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(service.lastReference).To(Equal("RP-202609-000001"))

			var view intentPkg.IntentView
			Expect(json.Unmarshal(rec.Body.Bytes(), &view)).To(Succeed())
			Expect(view.Status).To(Equal("paid"))
		})

		It("returns 404 for an unknown reference", func() {
			service.getErr = internal.ErrIntentNotFound

			req := withUser(httptest.NewRequest(http.MethodGet, "/payment-intents/RP-000000-000000", nil))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusNotFound))
		})
	})

	Describe("ListIntents", func() {
		It("wraps the views in a payment_intents envelope", func() {
			service.views = []intentPkg.IntentView{
				{Reference: "RP-202609-000001"},
				{Reference: "RP-202609-000002"},
			}

			req := withUser(httptest.NewRequest(http.MethodGet, "/payment-intents?limit=10", nil))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusOK))

			var envelope map[string][]intentPkg.IntentView
			Expect(json.Unmarshal(rec.Body.Bytes(), &envelope)).To(Succeed())
			Expect(envelope["payment_intents"]).To(HaveLen(2))
		})
	})
})
