package settlement_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	apperrors "github.com/frahmantamala/momo-settlement/internal"
	"github.com/frahmantamala/momo-settlement/internal/core/datamodel/payment"
	"github.com/frahmantamala/momo-settlement/internal/gateway"
	"github.com/frahmantamala/momo-settlement/internal/settlement"
)

func TestSettlement(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Settlement Suite")
}

// Mock repository for testing
type mockPaymentRepository struct {
	records   map[int64]*payment.Payment
	nextID    int64
	createErr error
	updateErr error
}

func newMockPaymentRepository() *mockPaymentRepository {
	return &mockPaymentRepository{
		records: make(map[int64]*payment.Payment),
		nextID:  1,
	}
}

func (m *mockPaymentRepository) Create(p *payment.Payment) error {
	if m.createErr != nil {
		return m.createErr
	}
	p.ID = m.nextID
	m.nextID++
	p.DatePaid = time.Now()
	p.UpdatedOn = time.Now()
	m.records[p.ID] = p
	return nil
}

func (m *mockPaymentRepository) Update(p *payment.Payment) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	p.UpdatedOn = time.Now()
	m.records[p.ID] = p
	return nil
}

func (m *mockPaymentRepository) GetByID(id int64) (*payment.Payment, error) {
	p, ok := m.records[id]
	if !ok {
		return nil, apperrors.ErrPaymentNotFound
	}
	return p, nil
}

func (m *mockPaymentRepository) GetByAnyTransactionID(ref string) (*payment.Payment, error) {
	match := func(s *string) bool { return s != nil && *s == ref }
	for _, p := range m.records {
		if p.TransactionID == ref || match(p.CTMTransactionID) || match(p.MTCTransactionID) ||
			match(p.ATPTransactionID) || match(p.BLPTransactionID) {
			return p, nil
		}
	}
	return nil, apperrors.ErrPaymentNotFound
}

func (m *mockPaymentRepository) GetByOriginalPaymentID(originalID int64) (*payment.Payment, error) {
	for _, p := range m.records {
		if p.OriginalPaymentID != nil && *p.OriginalPaymentID == originalID {
			return p, nil
		}
	}
	return nil, nil
}

func (m *mockPaymentRepository) GetInFlight() ([]*payment.Payment, error) {
	var out []*payment.Payment
	for _, p := range m.records {
		if !p.IsTerminal() {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockPaymentRepository) SumAmountByStatus(status payment.Status, from, to time.Time) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, p := range m.records {
		if p.Status == status {
			total = total.Add(p.AmountPaid)
		}
	}
	return total, nil
}

func (m *mockPaymentRepository) CountByStatus(status payment.Status, from, to time.Time) (int64, error) {
	var count int64
	for _, p := range m.records {
		if p.Status == status {
			count++
		}
	}
	return count, nil
}

func (m *mockPaymentRepository) SumReversedAmount(from, to time.Time) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, p := range m.records {
		if p.OriginalPaymentID != nil && p.Status == payment.StatusSuccess {
			total = total.Add(p.AmountPaid)
		}
	}
	return total, nil
}

func (m *mockPaymentRepository) reversalsOf(originalID int64) []*payment.Payment {
	var out []*payment.Payment
	for _, p := range m.records {
		if p.OriginalPaymentID != nil && *p.OriginalPaymentID == originalID {
			out = append(out, p)
		}
	}
	return out
}

// Mock gateway for testing
type mockGateway struct {
	balances          gateway.Balances
	balanceErr        error
	initiateResponses map[gateway.TransType]*gateway.Response
	initiateErr       error
	initiated         []gateway.InitiateRequest
	statusResults     map[string]gateway.LegStatus
	statusErr         error
	accountName       string
}

func newMockGateway() *mockGateway {
	return &mockGateway{
		balances: gateway.Balances{
			Payout:         decimal.NewFromInt(1000),
			Airtime:        decimal.NewFromInt(1000),
			BillPayCollect: decimal.NewFromInt(1000),
		},
		initiateResponses: make(map[gateway.TransType]*gateway.Response),
		statusResults:     make(map[string]gateway.LegStatus),
		accountName:       "Kojo Mensah",
	}
}

func (m *mockGateway) Initiate(ctx context.Context, req gateway.InitiateRequest) (*gateway.Response, error) {
	m.initiated = append(m.initiated, req)
	if m.initiateErr != nil {
		return nil, m.initiateErr
	}
	if resp, ok := m.initiateResponses[req.TransType]; ok {
		return resp, nil
	}
	return &gateway.Response{HTTPStatus: 200, ResponseCode: gateway.CodeAccepted}, nil
}

func (m *mockGateway) CheckStatus(ctx context.Context, externalTransactionID string) (gateway.LegStatus, error) {
	if m.statusErr != nil {
		return gateway.LegStatusPending, m.statusErr
	}
	if status, ok := m.statusResults[externalTransactionID]; ok {
		return status, nil
	}
	return gateway.LegStatusPending, nil
}

func (m *mockGateway) CheckBalance(ctx context.Context) (*gateway.Balances, error) {
	if m.balanceErr != nil {
		return nil, m.balanceErr
	}
	b := m.balances
	return &b, nil
}

func (m *mockGateway) AccountInquiry(ctx context.Context, customerNumber, networkCode string) (string, error) {
	return m.accountName, nil
}

func (m *mockGateway) BillerInquiry(ctx context.Context, accountNumber, billerCode string) (string, error) {
	return "", nil
}

func (m *mockGateway) initiatedTypes() []gateway.TransType {
	var out []gateway.TransType
	for _, req := range m.initiated {
		out = append(out, req.TransType)
	}
	return out
}

// Mock monitor for testing
type mockMonitor struct {
	mu        sync.Mutex
	watched   []int64
	cancelled []int64
}

func (m *mockMonitor) Watch(recordID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watched = append(m.watched, recordID)
}

func (m *mockMonitor) Cancel(recordID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelled = append(m.cancelled, recordID)
}

// Mock notifier for testing
type notifiedFailure struct {
	record *payment.Payment
	reason string
}

type mockNotifier struct {
	settled []*payment.Payment
	failed  []notifiedFailure
}

func (m *mockNotifier) NotifySettled(ctx context.Context, record *payment.Payment) {
	m.settled = append(m.settled, record)
}

func (m *mockNotifier) NotifyFailed(ctx context.Context, record *payment.Payment, failureReason string) {
	m.failed = append(m.failed, notifiedFailure{record: record, reason: failureReason})
}

var _ = Describe("SettlementService", func() {
	var (
		service  *settlement.Service
		repo     *mockPaymentRepository
		gw       *mockGateway
		monitor  *mockMonitor
		notifier *mockNotifier
		ctx      context.Context
	)

	validRequest := func() *settlement.InitiateRequest {
		return &settlement.InitiateRequest{
			Intent:           "send_money",
			Amount:           decimal.NewFromInt(50),
			SenderPhone:      "233201234567",
			ReceiverPhone:    "233209876543",
			SenderName:       "Ama Serwaa",
			ReceiverName:     "Kojo Mensah",
			SenderProvider:   "MTN",
			ReceiverProvider: "VOD",
			Network:          "MOM",
		}
	}

	collectCallback := func(rec *payment.Payment, statusCode string) *settlement.CallbackRequest {
		return &settlement.CallbackRequest{
			TransRef:    *rec.CTMTransactionID,
			TransStatus: statusCode,
		}
	}

	disburseCallback := func(rec *payment.Payment, statusCode string) *settlement.CallbackRequest {
		return &settlement.CallbackRequest{
			TransRef:    *rec.DisburseTransactionID(),
			TransStatus: statusCode,
		}
	}

	BeforeEach(func() {
		repo = newMockPaymentRepository()
		gw = newMockGateway()
		monitor = &mockMonitor{}
		notifier = &mockNotifier{}
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		ctx = context.Background()

		service = settlement.NewService(repo, gw, notifier, nil, logger)
		service.SetMonitor(monitor)
	})

	Describe("Initiate", func() {
		Context("with a valid send_money request", func() {
			It("should start the collect leg and persist a pending record", func() {
				rec, err := service.Initiate(ctx, validRequest())

				Expect(err).ToNot(HaveOccurred())
				Expect(rec.Status).To(Equal(payment.StatusPending))
				Expect(rec.TransactionID).ToNot(BeEmpty())
				Expect(rec.CTMTransactionID).ToNot(BeNil())
				Expect(*rec.CTMTransactionID).To(Equal(rec.TransactionID))
				Expect(rec.MTCTransactionID).To(BeNil())

				Expect(gw.initiated).To(HaveLen(1))
				Expect(gw.initiated[0].TransType).To(Equal(gateway.TransTypeCollect))
				Expect(gw.initiated[0].CustomerNumber).To(Equal("233201234567"))
				Expect(gw.initiated[0].NetworkCode).To(Equal("MTN"))

				Expect(monitor.watched).To(ContainElement(rec.ID))
			})
		})

		Context("when the request is invalid", func() {
			It("should reject an unknown intent without touching the gateway", func() {
				req := validRequest()
				req.Intent = "wire_transfer"

				_, err := service.Initiate(ctx, req)

				Expect(err).To(HaveOccurred())
				Expect(gw.initiated).To(BeEmpty())
				Expect(repo.records).To(BeEmpty())
			})

			It("should reject an airtime amount below the minimum", func() {
				req := validRequest()
				req.Intent = "buy_airtime"
				req.Amount = decimal.NewFromFloat(0.50)

				_, err := service.Initiate(ctx, req)

				Expect(err).To(HaveOccurred())
				Expect(gw.initiated).To(BeEmpty())
			})

			It("should require a bank code for bank network payments", func() {
				req := validRequest()
				req.Network = "BNK"
				req.BankCode = ""

				_, err := service.Initiate(ctx, req)

				Expect(err).To(HaveOccurred())
				appErr, ok := apperrors.IsAppError(err)
				Expect(ok).To(BeTrue())
				Expect(appErr.Type).To(Equal(apperrors.ErrorTypeValidation))
			})
		})

		Context("with a get_loan intent", func() {
			It("should refuse the unsupported intent", func() {
				req := validRequest()
				req.Intent = "get_loan"

				_, err := service.Initiate(ctx, req)

				Expect(err).To(Equal(apperrors.ErrUnsupportedIntent))
				Expect(gw.initiated).To(BeEmpty())
			})
		})

		Context("when the wallet balance cannot cover the payment", func() {
			It("should fail before any money moves", func() {
				gw.balances.Payout = decimal.NewFromInt(10)

				_, err := service.Initiate(ctx, validRequest())

				Expect(err).To(HaveOccurred())
				appErr, ok := apperrors.IsAppError(err)
				Expect(ok).To(BeTrue())
				Expect(appErr.Code).To(Equal(apperrors.ErrCodeInsufficientBalance))
				Expect(gw.initiated).To(BeEmpty())
				Expect(repo.records).To(BeEmpty())
			})

			It("should gate buy_airtime on both airtime and payout balances", func() {
				gw.balances.Airtime = decimal.NewFromInt(10)
				req := validRequest()
				req.Intent = "buy_airtime"

				_, err := service.Initiate(ctx, req)

				Expect(err).To(HaveOccurred())
				Expect(repo.records).To(BeEmpty())
			})

			It("should gate pay_bill on both bill pay and payout balances", func() {
				gw.balances.BillPayCollect = decimal.NewFromInt(10)
				req := validRequest()
				req.Intent = "pay_bill"

				_, err := service.Initiate(ctx, req)

				Expect(err).To(HaveOccurred())
				Expect(repo.records).To(BeEmpty())
			})
		})

		Context("when the gateway rejects the collect leg", func() {
			It("should return an error and persist nothing", func() {
				gw.initiateResponses[gateway.TransTypeCollect] = &gateway.Response{
					HTTPStatus:          200,
					ResponseCode:        "100",
					ResponseDescription: "invalid subscriber",
				}

				_, err := service.Initiate(ctx, validRequest())

				Expect(err).To(HaveOccurred())
				appErr, ok := apperrors.IsAppError(err)
				Expect(ok).To(BeTrue())
				Expect(appErr.Code).To(Equal(apperrors.ErrCodeGatewayRejected))
				Expect(repo.records).To(BeEmpty())
				Expect(monitor.watched).To(BeEmpty())
			})
		})
	})

	Describe("HandleCallback", func() {
		var rec *payment.Payment

		BeforeEach(func() {
			var err error
			rec, err = service.Initiate(ctx, validRequest())
			Expect(err).ToNot(HaveOccurred())
		})

		Context("when the collect leg succeeds", func() {
			It("should chain straight into the disburse leg", func() {
				err := service.HandleCallback(ctx, collectCallback(rec, "000/01/01"))

				Expect(err).ToNot(HaveOccurred())
				Expect(rec.Status).To(Equal(payment.StatusMTCProcessing))
				Expect(rec.MTCTransactionID).ToNot(BeNil())
				Expect(*rec.MTCTransactionID).ToNot(Equal(rec.TransactionID))

				Expect(gw.initiatedTypes()).To(Equal([]gateway.TransType{
					gateway.TransTypeCollect,
					gateway.TransTypeTransfer,
				}))
				Expect(gw.initiated[1].CustomerNumber).To(Equal("233209876543"))
				Expect(gw.initiated[1].NetworkCode).To(Equal("VOD"))
			})

			It("should route an airtime intent to an ATP disbursement", func() {
				req := validRequest()
				req.Intent = "buy_airtime"
				airtimeRec, err := service.Initiate(ctx, req)
				Expect(err).ToNot(HaveOccurred())

				err = service.HandleCallback(ctx, collectCallback(airtimeRec, "000"))

				Expect(err).ToNot(HaveOccurred())
				Expect(airtimeRec.Status).To(Equal(payment.StatusATPProcessing))
				Expect(airtimeRec.ATPTransactionID).ToNot(BeNil())
				Expect(airtimeRec.MTCTransactionID).To(BeNil())
			})
		})

		Context("when the collect leg fails", func() {
			It("should finish as CTM_FAILED with no reversal", func() {
				cb := collectCallback(rec, "001/01/02")
				cb.Message = "insufficient subscriber funds"

				err := service.HandleCallback(ctx, cb)

				Expect(err).ToNot(HaveOccurred())
				Expect(rec.Status).To(Equal(payment.StatusCTMFailed))
				Expect(rec.FailureReason).ToNot(BeNil())
				Expect(*rec.FailureReason).To(Equal("insufficient subscriber funds"))

				Expect(repo.reversalsOf(rec.ID)).To(BeEmpty())
				Expect(notifier.failed).To(HaveLen(1))
				Expect(monitor.cancelled).To(ContainElement(rec.ID))
			})
		})

		Context("when the disburse leg succeeds", func() {
			It("should settle the payment", func() {
				Expect(service.HandleCallback(ctx, collectCallback(rec, "000"))).To(Succeed())

				err := service.HandleCallback(ctx, disburseCallback(rec, "000"))

				Expect(err).ToNot(HaveOccurred())
				Expect(rec.Status).To(Equal(payment.StatusSuccess))
				Expect(notifier.settled).To(HaveLen(1))
				Expect(monitor.cancelled).To(ContainElement(rec.ID))
			})
		})

		Context("when the disburse leg fails", func() {
			BeforeEach(func() {
				Expect(service.HandleCallback(ctx, collectCallback(rec, "000"))).To(Succeed())
				Expect(service.HandleCallback(ctx, disburseCallback(rec, "001"))).To(Succeed())
			})

			It("should fail the record and create a pending reversal", func() {
				Expect(rec.Status).To(Equal(payment.StatusMTCFailed))

				reversals := repo.reversalsOf(rec.ID)
				Expect(reversals).To(HaveLen(1))

				reversal := reversals[0]
				Expect(reversal.Status).To(Equal(payment.StatusPending))
				Expect(reversal.Intent).To(Equal(payment.IntentReversal))
				Expect(reversal.SenderPhone).To(Equal(rec.ReceiverPhone))
				Expect(reversal.ReceiverPhone).To(Equal(rec.SenderPhone))
				Expect(reversal.AmountPaid).To(Equal(rec.AmountPaid))
				Expect(reversal.MTCTransactionID).ToNot(BeNil())
				Expect(*reversal.MTCTransactionID).To(Equal(reversal.TransactionID))

				Expect(monitor.watched).To(ContainElement(reversal.ID))
				Expect(notifier.failed).To(HaveLen(1))
			})

			It("should never create a second reversal for a duplicate failure callback", func() {
				Expect(service.HandleCallback(ctx, disburseCallback(rec, "001"))).To(Succeed())

				Expect(repo.reversalsOf(rec.ID)).To(HaveLen(1))
				Expect(rec.Status).To(Equal(payment.StatusMTCFailed))
				Expect(notifier.failed).To(HaveLen(1))
			})

			It("should settle the reversal on its success callback", func() {
				reversal := repo.reversalsOf(rec.ID)[0]

				err := service.HandleCallback(ctx, &settlement.CallbackRequest{
					TransRef:    reversal.TransactionID,
					TransStatus: "000",
				})

				Expect(err).ToNot(HaveOccurred())
				Expect(reversal.Status).To(Equal(payment.StatusSuccess))
			})

			It("should fail a reversal terminally without reversing it again", func() {
				reversal := repo.reversalsOf(rec.ID)[0]

				err := service.HandleCallback(ctx, &settlement.CallbackRequest{
					TransRef:    reversal.TransactionID,
					TransStatus: "001",
				})

				Expect(err).ToNot(HaveOccurred())
				Expect(reversal.Status).To(Equal(payment.StatusFailed))
				Expect(repo.reversalsOf(reversal.ID)).To(BeEmpty())
			})
		})

		Context("when the callback matches no record", func() {
			It("should return the mismatch error", func() {
				err := service.HandleCallback(ctx, &settlement.CallbackRequest{
					TransRef:    "MSUNKNOWN0000000000",
					TransStatus: "000",
				})

				Expect(err).To(Equal(apperrors.ErrCallbackMismatch))
			})
		})

		Context("when the status code is unrecognized", func() {
			It("should leave the record untouched", func() {
				err := service.HandleCallback(ctx, collectCallback(rec, "042/01/77"))

				Expect(err).ToNot(HaveOccurred())
				Expect(rec.Status).To(Equal(payment.StatusPending))
			})
		})

		Context("when a duplicate callback arrives after settlement", func() {
			It("should be a no-op", func() {
				Expect(service.HandleCallback(ctx, collectCallback(rec, "000"))).To(Succeed())
				Expect(service.HandleCallback(ctx, disburseCallback(rec, "000"))).To(Succeed())

				err := service.HandleCallback(ctx, disburseCallback(rec, "000"))

				Expect(err).ToNot(HaveOccurred())
				Expect(rec.Status).To(Equal(payment.StatusSuccess))
				Expect(notifier.settled).To(HaveLen(1))
			})

			It("should ignore a stale collect callback once disbursing", func() {
				Expect(service.HandleCallback(ctx, collectCallback(rec, "000"))).To(Succeed())
				initiations := len(gw.initiated)

				err := service.HandleCallback(ctx, collectCallback(rec, "000"))

				Expect(err).ToNot(HaveOccurred())
				Expect(rec.Status).To(Equal(payment.StatusMTCProcessing))
				Expect(gw.initiated).To(HaveLen(initiations))
			})
		})

		Context("when the gateway rejects the disburse leg on initiation", func() {
			It("should fail the record and attempt a reversal", func() {
				gw.initiateResponses[gateway.TransTypeTransfer] = &gateway.Response{
					HTTPStatus:          200,
					ResponseCode:        "100",
					ResponseDescription: "receiver not registered",
				}

				err := service.HandleCallback(ctx, collectCallback(rec, "000"))

				Expect(err).ToNot(HaveOccurred())
				Expect(rec.Status).To(Equal(payment.StatusMTCFailed))

				// Reversal initiation was also rejected by the same stub, so the
				// attempt is recorded as FAILED for the audit trail.
				reversals := repo.reversalsOf(rec.ID)
				Expect(reversals).To(HaveLen(1))
				Expect(reversals[0].Status).To(Equal(payment.StatusFailed))
			})
		})
	})

	Describe("Reconcile", func() {
		var rec *payment.Payment

		BeforeEach(func() {
			var err error
			rec, err = service.Initiate(ctx, validRequest())
			Expect(err).ToNot(HaveOccurred())
		})

		Context("while the gateway still reports pending", func() {
			It("should keep the record in flight", func() {
				terminal, err := service.Reconcile(ctx, rec.ID)

				Expect(err).ToNot(HaveOccurred())
				Expect(terminal).To(BeFalse())
				Expect(rec.Status).To(Equal(payment.StatusPending))
			})
		})

		Context("when polling finds the collect leg succeeded", func() {
			It("should move on to the disburse leg and keep polling", func() {
				gw.statusResults[rec.TransactionID] = gateway.LegStatusSuccess

				terminal, err := service.Reconcile(ctx, rec.ID)

				Expect(err).ToNot(HaveOccurred())
				Expect(terminal).To(BeFalse())
				Expect(rec.Status).To(Equal(payment.StatusMTCProcessing))
			})
		})

		Context("when polling finds the disburse leg settled", func() {
			It("should report terminal", func() {
				Expect(service.HandleCallback(ctx, collectCallback(rec, "000"))).To(Succeed())
				gw.statusResults[*rec.MTCTransactionID] = gateway.LegStatusSuccess

				terminal, err := service.Reconcile(ctx, rec.ID)

				Expect(err).ToNot(HaveOccurred())
				Expect(terminal).To(BeTrue())
				Expect(rec.Status).To(Equal(payment.StatusSuccess))
			})
		})

		Context("when the record is already terminal", func() {
			It("should report terminal without polling", func() {
				Expect(service.HandleCallback(ctx, collectCallback(rec, "001"))).To(Succeed())

				terminal, err := service.Reconcile(ctx, rec.ID)

				Expect(err).ToNot(HaveOccurred())
				Expect(terminal).To(BeTrue())
			})
		})

		Context("when the status check errors", func() {
			It("should surface the error and stay in flight", func() {
				gw.statusErr = errors.New("gateway unreachable")

				terminal, err := service.Reconcile(ctx, rec.ID)

				Expect(err).To(HaveOccurred())
				Expect(terminal).To(BeFalse())
				Expect(rec.Status).To(Equal(payment.StatusPending))
			})
		})
	})

	Describe("ForceTimeout", func() {
		var rec *payment.Payment

		BeforeEach(func() {
			var err error
			rec, err = service.Initiate(ctx, validRequest())
			Expect(err).ToNot(HaveOccurred())
		})

		Context("on a record stuck in the collect leg", func() {
			It("should fail it with a timeout reason and no reversal", func() {
				err := service.ForceTimeout(ctx, rec.ID)

				Expect(err).ToNot(HaveOccurred())
				Expect(rec.Status).To(Equal(payment.StatusCTMFailed))
				Expect(rec.FailureReason).ToNot(BeNil())
				Expect(*rec.FailureReason).To(Equal("reconciliation timeout"))
				Expect(repo.reversalsOf(rec.ID)).To(BeEmpty())
			})
		})

		Context("on a record stuck in the disburse leg", func() {
			It("should fail the disbursement and initiate a reversal", func() {
				Expect(service.HandleCallback(ctx, collectCallback(rec, "000"))).To(Succeed())

				err := service.ForceTimeout(ctx, rec.ID)

				Expect(err).ToNot(HaveOccurred())
				Expect(rec.Status).To(Equal(payment.StatusMTCFailed))
				Expect(repo.reversalsOf(rec.ID)).To(HaveLen(1))
			})
		})

		Context("on a record that already settled", func() {
			It("should be a no-op", func() {
				Expect(service.HandleCallback(ctx, collectCallback(rec, "000"))).To(Succeed())
				Expect(service.HandleCallback(ctx, disburseCallback(rec, "000"))).To(Succeed())

				err := service.ForceTimeout(ctx, rec.ID)

				Expect(err).ToNot(HaveOccurred())
				Expect(rec.Status).To(Equal(payment.StatusSuccess))
			})
		})
	})

	Describe("GetByTransactionID", func() {
		It("should find a record by its disburse leg id", func() {
			rec, err := service.Initiate(ctx, validRequest())
			Expect(err).ToNot(HaveOccurred())
			Expect(service.HandleCallback(ctx, collectCallback(rec, "000"))).To(Succeed())

			view, err := service.GetByTransactionID(*rec.MTCTransactionID)

			Expect(err).ToNot(HaveOccurred())
			Expect(view.TransactionID).To(Equal(rec.TransactionID))
			Expect(view.Status).To(Equal(string(payment.StatusMTCProcessing)))
		})

		It("should return not found for an unknown reference", func() {
			_, err := service.GetByTransactionID("MSNOSUCHREF00000000")

			Expect(err).To(Equal(apperrors.ErrPaymentNotFound))
		})
	})

	Describe("Summary", func() {
		It("should aggregate settled, failed and reversed volume", func() {
			settled, err := service.Initiate(ctx, validRequest())
			Expect(err).ToNot(HaveOccurred())
			Expect(service.HandleCallback(ctx, collectCallback(settled, "000"))).To(Succeed())
			Expect(service.HandleCallback(ctx, disburseCallback(settled, "000"))).To(Succeed())

			failed, err := service.Initiate(ctx, validRequest())
			Expect(err).ToNot(HaveOccurred())
			Expect(service.HandleCallback(ctx, collectCallback(failed, "000"))).To(Succeed())
			Expect(service.HandleCallback(ctx, disburseCallback(failed, "001"))).To(Succeed())
			reversal := repo.reversalsOf(failed.ID)[0]
			Expect(service.HandleCallback(ctx, &settlement.CallbackRequest{
				TransRef:    reversal.TransactionID,
				TransStatus: "000",
			})).To(Succeed())

			pending, err := service.Initiate(ctx, validRequest())
			Expect(err).ToNot(HaveOccurred())

			from := time.Now().Add(-time.Hour)
			to := time.Now().Add(time.Hour)
			summary, err := service.Summary(ctx, from, to)

			Expect(err).ToNot(HaveOccurred())
			// The settled reversal counts into settled volume as well.
			Expect(summary.SettledAmount).To(Equal("100.00"))
			Expect(summary.SettledCount).To(Equal(int64(2)))
			Expect(summary.FailedCount).To(Equal(int64(1)))
			Expect(summary.PendingCount).To(Equal(int64(1)))
			Expect(summary.ReversedAmount).To(Equal("50.00"))
			Expect(pending.Status).To(Equal(payment.StatusPending))
		})
	})
})
