package settlement_test

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/momo-settlement/internal/core/datamodel/payment"
	"github.com/frahmantamala/momo-settlement/internal/settlement"
)

// Scripted applier: terminal after terminalAfter reconcile calls per record.
type scriptedApplier struct {
	mu            sync.Mutex
	terminalAfter map[int64]int
	reconciles    map[int64]int
	timeouts      map[int64]int
}

func newScriptedApplier() *scriptedApplier {
	return &scriptedApplier{
		terminalAfter: make(map[int64]int),
		reconciles:    make(map[int64]int),
		timeouts:      make(map[int64]int),
	}
}

func (a *scriptedApplier) Reconcile(ctx context.Context, recordID int64) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reconciles[recordID]++
	after, ok := a.terminalAfter[recordID]
	return ok && a.reconciles[recordID] >= after, nil
}

func (a *scriptedApplier) ForceTimeout(ctx context.Context, recordID int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.timeouts[recordID]++
	return nil
}

func (a *scriptedApplier) reconcileCount(recordID int64) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.reconciles[recordID]
}

func (a *scriptedApplier) timeoutCount(recordID int64) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.timeouts[recordID]
}

var _ = Describe("Reconciler", func() {
	var (
		reconciler *settlement.Reconciler
		applier    *scriptedApplier
		repo       *mockPaymentRepository
	)

	const (
		interval    = 10 * time.Millisecond
		maxAttempts = 3
	)

	BeforeEach(func() {
		repo = newMockPaymentRepository()
		applier = newScriptedApplier()
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		reconciler = settlement.NewReconciler(repo, interval, maxAttempts, logger)
		reconciler.Bind(applier)
	})

	AfterEach(func() {
		reconciler.Shutdown()
	})

	Describe("Watch", func() {
		Context("when the record turns terminal", func() {
			It("should stop polling", func() {
				applier.terminalAfter[1] = 2

				reconciler.Watch(1)

				Eventually(func() int {
					return applier.reconcileCount(1)
				}).Should(Equal(2))

				Consistently(func() int {
					return applier.reconcileCount(1)
				}, 5*interval).Should(Equal(2))
				Expect(applier.timeoutCount(1)).To(BeZero())
			})
		})

		Context("when the attempt budget runs out", func() {
			It("should force a timeout and stop", func() {
				reconciler.Watch(1)

				Eventually(func() int {
					return applier.timeoutCount(1)
				}).Should(Equal(1))

				Expect(applier.reconcileCount(1)).To(Equal(maxAttempts))

				Consistently(func() int {
					return applier.reconcileCount(1)
				}, 5*interval).Should(Equal(maxAttempts))
			})
		})

		Context("when a watched record is watched again", func() {
			It("should keep a single polling job", func() {
				applier.terminalAfter[1] = 2

				reconciler.Watch(1)
				reconciler.Watch(1)

				Eventually(func() int {
					return applier.reconcileCount(1)
				}).Should(Equal(2))

				Consistently(func() int {
					return applier.reconcileCount(1)
				}, 5*interval).Should(Equal(2))
			})
		})
	})

	Describe("Cancel", func() {
		It("should stop polling immediately", func() {
			reconciler.Watch(1)
			reconciler.Cancel(1)

			Consistently(func() int {
				return applier.reconcileCount(1)
			}, 3*interval).Should(BeZero())
		})

		It("should tolerate unknown records", func() {
			reconciler.Cancel(42)
		})
	})

	Describe("Resume", func() {
		It("should re-watch every in-flight record", func() {
			inflight := &payment.Payment{
				TransactionID: "MSRESUME00000000001",
				SenderPhone:   "233201234567",
				ReceiverPhone: "233209876543",
				Intent:        payment.IntentSendMoney,
				Status:        payment.StatusMTCProcessing,
			}
			Expect(repo.Create(inflight)).To(Succeed())

			settled := &payment.Payment{
				TransactionID: "MSRESUME00000000002",
				SenderPhone:   "233201234567",
				ReceiverPhone: "233209876543",
				Intent:        payment.IntentSendMoney,
				Status:        payment.StatusSuccess,
			}
			Expect(repo.Create(settled)).To(Succeed())

			applier.terminalAfter[inflight.ID] = 1

			Expect(reconciler.Resume(context.Background())).To(Succeed())

			Eventually(func() int {
				return applier.reconcileCount(inflight.ID)
			}).Should(Equal(1))
			Expect(applier.reconcileCount(settled.ID)).To(BeZero())
		})
	})

	Describe("Shutdown", func() {
		It("should stop all jobs and return", func() {
			reconciler.Watch(1)
			reconciler.Watch(2)

			reconciler.Shutdown()

			count1 := applier.reconcileCount(1)
			count2 := applier.reconcileCount(2)
			Consistently(func() []int {
				return []int{applier.reconcileCount(1), applier.reconcileCount(2)}
			}, 3*interval).Should(Equal([]int{count1, count2}))
		})
	})
})
