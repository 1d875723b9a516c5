package settlement_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"time"

	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	apperrors "github.com/frahmantamala/momo-settlement/internal"
	"github.com/frahmantamala/momo-settlement/internal/core/datamodel/payment"
	"github.com/frahmantamala/momo-settlement/internal/settlement"
)

// Mock service for handler testing
type mockSettlementService struct {
	initiateResult *payment.Payment
	initiateErr    error
	view           *settlement.PaymentView
	viewErr        error
	summary        *settlement.SummaryView
	summaryErr     error
	callbackErr    error

	lastInitiate *settlement.InitiateRequest
	lastCallback *settlement.CallbackRequest
	summaryFrom  time.Time
	summaryTo    time.Time
}

func (m *mockSettlementService) Initiate(ctx context.Context, req *settlement.InitiateRequest) (*payment.Payment, error) {
	m.lastInitiate = req
	if m.initiateErr != nil {
		return nil, m.initiateErr
	}
	return m.initiateResult, nil
}

func (m *mockSettlementService) GetByTransactionID(ref string) (*settlement.PaymentView, error) {
	if m.viewErr != nil {
		return nil, m.viewErr
	}
	return m.view, nil
}

func (m *mockSettlementService) Summary(ctx context.Context, from, to time.Time) (*settlement.SummaryView, error) {
	m.summaryFrom = from
	m.summaryTo = to
	if m.summaryErr != nil {
		return nil, m.summaryErr
	}
	return m.summary, nil
}

func (m *mockSettlementService) HandleCallback(ctx context.Context, cb *settlement.CallbackRequest) error {
	m.lastCallback = cb
	return m.callbackErr
}

var _ = Describe("SettlementHandler", func() {
	var (
		svc    *mockSettlementService
		router *chi.Mux
	)

	BeforeEach(func() {
		svc = &mockSettlementService{}
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		router = chi.NewRouter()
		settlement.NewHandler(logger, svc).RegisterRoutes(router)
		settlement.NewWebhookHandler(logger, svc).RegisterRoutes(router)
	})

	Describe("POST /payments", func() {
		newBody := func() *bytes.Buffer {
			body, err := json.Marshal(map[string]interface{}{
				"intent":            "send_money",
				"amount":            "50.00",
				"sender_phone":      "233201234567",
				"receiver_phone":    "233209876543",
				"sender_provider":   "MTN",
				"receiver_provider": "VOD",
				"network":           "MOM",
			})
			Expect(err).ToNot(HaveOccurred())
			return bytes.NewBuffer(body)
		}

		Context("when the service accepts the payment", func() {
			It("should answer 201 with the pending record", func() {
				txid := "MSABC123"
				svc.initiateResult = &payment.Payment{
					ID:               7,
					TransactionID:    txid,
					CTMTransactionID: &txid,
					SenderPhone:      "233201234567",
					ReceiverPhone:    "233209876543",
					AmountPaid:       decimal.NewFromInt(50),
					Intent:           payment.IntentSendMoney,
					Status:           payment.StatusPending,
				}

				req := httptest.NewRequest(http.MethodPost, "/payments", newBody())
				rr := httptest.NewRecorder()
				router.ServeHTTP(rr, req)

				Expect(rr.Code).To(Equal(http.StatusCreated))

				var view settlement.PaymentView
				Expect(json.Unmarshal(rr.Body.Bytes(), &view)).To(Succeed())
				Expect(view.TransactionID).To(Equal(txid))
				Expect(view.Status).To(Equal("PENDING"))
				Expect(view.Amount).To(Equal("50.00"))

				Expect(svc.lastInitiate).ToNot(BeNil())
				Expect(svc.lastInitiate.Intent).To(Equal("send_money"))
			})
		})

		Context("when the body is not JSON", func() {
			It("should answer 400", func() {
				req := httptest.NewRequest(http.MethodPost, "/payments", bytes.NewBufferString("{nope"))
				rr := httptest.NewRecorder()
				router.ServeHTTP(rr, req)

				Expect(rr.Code).To(Equal(http.StatusBadRequest))
			})
		})

		Context("when the balance gate rejects the payment", func() {
			It("should answer 400 with the error code", func() {
				svc.initiateErr = apperrors.NewValidationError(
					"insufficient payout balance for this payment",
					apperrors.ErrCodeInsufficientBalance)

				req := httptest.NewRequest(http.MethodPost, "/payments", newBody())
				rr := httptest.NewRecorder()
				router.ServeHTTP(rr, req)

				Expect(rr.Code).To(Equal(http.StatusBadRequest))
				Expect(rr.Body.String()).To(ContainSubstring("INSUFFICIENT_BALANCE"))
			})
		})

		Context("when the gateway is unreachable", func() {
			It("should answer 502", func() {
				svc.initiateErr = apperrors.NewExternalError("collect leg initiation failed", nil)

				req := httptest.NewRequest(http.MethodPost, "/payments", newBody())
				rr := httptest.NewRecorder()
				router.ServeHTTP(rr, req)

				Expect(rr.Code).To(Equal(http.StatusBadGateway))
			})
		})
	})

	Describe("GET /payments/{transactionID}", func() {
		Context("when the record exists", func() {
			It("should answer 200 with the view", func() {
				svc.view = &settlement.PaymentView{
					TransactionID: "MSABC123",
					Status:        "SUCCESS",
					Amount:        "50.00",
				}

				req := httptest.NewRequest(http.MethodGet, "/payments/MSABC123", nil)
				rr := httptest.NewRecorder()
				router.ServeHTTP(rr, req)

				Expect(rr.Code).To(Equal(http.StatusOK))
				Expect(rr.Body.String()).To(ContainSubstring("MSABC123"))
			})
		})

		Context("when no record matches", func() {
			It("should answer 404", func() {
				svc.viewErr = apperrors.ErrPaymentNotFound

				req := httptest.NewRequest(http.MethodGet, "/payments/MSNOPE", nil)
				rr := httptest.NewRecorder()
				router.ServeHTTP(rr, req)

				Expect(rr.Code).To(Equal(http.StatusNotFound))
			})
		})
	})

	Describe("GET /payments/summary", func() {
		BeforeEach(func() {
			svc.summary = &settlement.SummaryView{
				SettledAmount:  "100.00",
				SettledCount:   2,
				ReversedAmount: "0.00",
			}
		})

		Context("with explicit dates", func() {
			It("should pass the range through with an inclusive end", func() {
				req := httptest.NewRequest(http.MethodGet, "/payments/summary?from=2026-08-01&to=2026-08-26", nil)
				rr := httptest.NewRecorder()
				router.ServeHTTP(rr, req)

				Expect(rr.Code).To(Equal(http.StatusOK))
				Expect(svc.summaryFrom).To(Equal(time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)))
				Expect(svc.summaryTo).To(Equal(time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC)))
				Expect(rr.Body.String()).To(ContainSubstring("100.00"))
			})
		})

		Context("with a malformed date", func() {
			It("should answer 400", func() {
				req := httptest.NewRequest(http.MethodGet, "/payments/summary?from=yesterday", nil)
				rr := httptest.NewRecorder()
				router.ServeHTTP(rr, req)

				Expect(rr.Code).To(Equal(http.StatusBadRequest))
			})
		})

		Context("with an inverted range", func() {
			It("should answer 400", func() {
				req := httptest.NewRequest(http.MethodGet, "/payments/summary?from=2026-08-26&to=2026-08-01", nil)
				rr := httptest.NewRecorder()
				router.ServeHTTP(rr, req)

				Expect(rr.Code).To(Equal(http.StatusBadRequest))
			})
		})
	})

	Describe("POST /payments/callback", func() {
		callbackBody := func() *bytes.Buffer {
			body, err := json.Marshal(map[string]string{
				"trans_ref":    "MSABC123",
				"trans_status": "000/01/01",
			})
			Expect(err).ToNot(HaveOccurred())
			return bytes.NewBuffer(body)
		}

		Context("when the callback applies cleanly", func() {
			It("should answer 200", func() {
				req := httptest.NewRequest(http.MethodPost, "/payments/callback", callbackBody())
				rr := httptest.NewRecorder()
				router.ServeHTTP(rr, req)

				Expect(rr.Code).To(Equal(http.StatusOK))
				Expect(rr.Body.String()).To(ContainSubstring("received"))
				Expect(svc.lastCallback).ToNot(BeNil())
				Expect(svc.lastCallback.TransRef).To(Equal("MSABC123"))
			})
		})

		Context("when the reference matches no record", func() {
			It("should answer 404", func() {
				svc.callbackErr = apperrors.ErrCallbackMismatch

				req := httptest.NewRequest(http.MethodPost, "/payments/callback", callbackBody())
				rr := httptest.NewRecorder()
				router.ServeHTTP(rr, req)

				Expect(rr.Code).To(Equal(http.StatusNotFound))
			})
		})

		Context("when the body is not JSON", func() {
			It("should answer 400", func() {
				req := httptest.NewRequest(http.MethodPost, "/payments/callback", bytes.NewBufferString("not-json"))
				rr := httptest.NewRecorder()
				router.ServeHTTP(rr, req)

				Expect(rr.Code).To(Equal(http.StatusBadRequest))
			})
		})
	})
})
