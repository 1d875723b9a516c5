package settlement

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	errors "github.com/frahmantamala/momo-settlement/internal"
	"github.com/frahmantamala/momo-settlement/internal/core/datamodel/payment"
	"github.com/frahmantamala/momo-settlement/internal/core/events"
	"github.com/frahmantamala/momo-settlement/internal/gateway"
	"github.com/frahmantamala/momo-settlement/internal/notification"
)

const defaultFailureReason = "gateway reported failure"

// Service drives a payment intent through the collect-then-disburse protocol.
// All status mutations, from the initiate path, the reconciliation poller and
// the webhook, go through applyLeg so the two async paths can race safely:
// whichever applies a transition first wins and the loser becomes a no-op.
type Service struct {
	repo     RepositoryAPI
	gateway  GatewayAPI
	monitor  Monitor
	notifier notification.Notifier
	eventBus *events.EventBus
	logger   *slog.Logger
}

func NewService(repo RepositoryAPI, gw GatewayAPI, notifier notification.Notifier, eventBus *events.EventBus, logger *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		gateway:  gw,
		notifier: notifier,
		eventBus: eventBus,
		logger:   logger,
	}
}

// SetMonitor wires the reconciliation scheduler in after construction; the
// scheduler needs the service and the service needs the scheduler.
func (s *Service) SetMonitor(m Monitor) {
	s.monitor = m
}

func newTransactionID() string {
	return "MS" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:18]
}

// Initiate validates the intent, gates on wallet balance for both legs, starts
// the collect leg and persists the record as PENDING once the gateway accepts.
// It returns immediately with the pending record; reconciliation and the
// callback resolve the rest.
//
// The balance gate and the collect initiation are not atomic: two concurrent
// initiations can both pass a balance that only covers one of them. The gateway
// is the authority on the actual debit; a shortfall surfaces as a leg failure.
func (s *Service) Initiate(ctx context.Context, req *InitiateRequest) (*payment.Payment, error) {
	if err := req.Validate(); err != nil {
		s.logger.Error("payment initiation validation failed", "error", err)
		return nil, err
	}

	intent := payment.Intent(req.Intent)
	if intent == payment.IntentGetLoan {
		return nil, errors.ErrUnsupportedIntent
	}

	amount := req.Amount.Round(2)

	if err := s.ensureBalance(ctx, intent, amount); err != nil {
		return nil, err
	}

	receiverName := req.ReceiverName
	if receiverName == "" {
		// Name resolution is advisory; the disburse leg validates the
		// receiver for real.
		switch intent {
		case payment.IntentSendMoney:
			name, err := s.gateway.AccountInquiry(ctx, req.ReceiverPhone, req.ReceiverProvider)
			if err != nil {
				s.logger.Warn("account inquiry failed, proceeding without receiver name",
					"receiver_phone", req.ReceiverPhone, "error", err)
			} else {
				receiverName = name
			}
		case payment.IntentPayBill:
			name, err := s.gateway.BillerInquiry(ctx, req.ReceiverPhone, req.ReceiverProvider)
			if err != nil {
				s.logger.Warn("biller inquiry failed, proceeding without account name",
					"account_number", req.ReceiverPhone, "error", err)
			} else {
				receiverName = name
			}
		}
	}

	transactionID := newTransactionID()

	record := &payment.Payment{
		TransactionID:    transactionID,
		CTMTransactionID: &transactionID,
		SenderPhone:      req.SenderPhone,
		ReceiverPhone:    req.ReceiverPhone,
		SenderName:       req.SenderName,
		ReceiverName:     receiverName,
		SenderProvider:   req.SenderProvider,
		ReceiverProvider: req.ReceiverProvider,
		BankCode:         req.BankCode,
		Network:          req.Network,
		AmountPaid:       amount,
		Intent:           intent,
		Status:           payment.StatusPending,
	}

	resp, err := s.gateway.Initiate(ctx, gateway.InitiateRequest{
		Amount:         amount,
		CustomerNumber: record.SenderPhone,
		TransactionID:  transactionID,
		NetworkCode:    record.SenderProvider,
		TransType:      gateway.TransTypeCollect,
	})
	if err != nil {
		s.logger.Error("collect leg initiation failed", "transaction_id", transactionID, "error", err)
		return nil, errors.NewExternalError("collect leg initiation failed", err)
	}
	if !resp.Accepted() {
		s.logger.Error("gateway rejected collect leg",
			"transaction_id", transactionID,
			"resp_code", resp.ResponseCode,
			"resp_desc", resp.ResponseDescription)
		appErr := errors.NewExternalError(
			fmt.Sprintf("gateway rejected collect leg: %s %s", resp.ResponseCode, resp.ResponseDescription), nil)
		appErr.Code = errors.ErrCodeGatewayRejected
		return nil, appErr
	}

	// Persist only after the gateway accepts: no balance-gate failure or hard
	// rejection ever leaves a stray record.
	if err := s.repo.Create(record); err != nil {
		s.logger.Error("failed to persist payment record", "transaction_id", transactionID, "error", err)
		return nil, errors.NewInternalError("failed to persist payment record", err)
	}

	s.logger.Info("payment initiated",
		"payment_id", record.ID,
		"transaction_id", transactionID,
		"intent", intent,
		"amount", amount.StringFixed(2))

	if s.monitor != nil {
		s.monitor.Watch(record.ID)
	}

	return record, nil
}

// ensureBalance verifies the merchant wallets can cover both legs of the intent
// before any money moves.
func (s *Service) ensureBalance(ctx context.Context, intent payment.Intent, amount decimal.Decimal) error {
	balances, err := s.gateway.CheckBalance(ctx)
	if err != nil {
		s.logger.Error("wallet balance check failed", "error", err)
		return errors.NewExternalError("wallet balance check failed", err)
	}

	insufficient := func(wallet string) error {
		s.logger.Warn("insufficient wallet balance",
			"wallet", wallet,
			"intent", intent,
			"amount", amount.StringFixed(2))
		return errors.NewValidationError(
			fmt.Sprintf("insufficient %s balance for this payment", wallet),
			errors.ErrCodeInsufficientBalance)
	}

	switch intent {
	case payment.IntentSendMoney:
		if balances.Payout.LessThan(amount) {
			return insufficient("payout")
		}
	case payment.IntentBuyAirtime:
		if balances.Airtime.LessThan(amount) {
			return insufficient("airtime")
		}
		// Payout must also cover a refund if the top-up leg fails.
		if balances.Payout.LessThan(amount) {
			return insufficient("payout")
		}
	case payment.IntentPayBill:
		if balances.BillPayCollect.LessThan(amount) {
			return insufficient("bill pay collection")
		}
		if balances.Payout.LessThan(amount) {
			return insufficient("payout")
		}
	default:
		return errors.ErrUnsupportedIntent
	}

	return nil
}

// ApplyLegStatus applies a reconciled leg outcome to a record using the shared
// transition rules. Safe to call twice with the same outcome.
func (s *Service) ApplyLegStatus(ctx context.Context, rec *payment.Payment, leg Leg, status gateway.LegStatus) error {
	return s.applyLeg(ctx, rec, leg, status, defaultFailureReason)
}

func (s *Service) applyLeg(ctx context.Context, rec *payment.Payment, leg Leg, status gateway.LegStatus, reason string) error {
	if status == gateway.LegStatusPending {
		return nil
	}
	if rec.IsTerminal() {
		s.logger.Debug("duplicate transition ignored, record already terminal",
			"payment_id", rec.ID, "status", rec.Status)
		return nil
	}

	// Reversal records settle on a single MTC leg: PENDING resolves straight to
	// SUCCESS or FAILED, and they never spawn a reversal of their own.
	if rec.IsReversal() {
		if rec.Status != payment.StatusPending {
			return nil
		}
		if status == gateway.LegStatusSuccess {
			return s.finish(ctx, rec, payment.StatusSuccess, "")
		}
		return s.finish(ctx, rec, payment.StatusFailed, reason)
	}

	switch leg {
	case LegCollect:
		if rec.Status != payment.StatusPending {
			s.logger.Debug("collect outcome ignored, record past collect leg",
				"payment_id", rec.ID, "status", rec.Status)
			return nil
		}
		if status == gateway.LegStatusSuccess {
			rec.Status = payment.StatusCTMSuccess
			if err := s.repo.Update(rec); err != nil {
				return errors.NewInternalError("failed to persist collect success", err)
			}
			s.logger.Info("collect leg confirmed", "payment_id", rec.ID, "transaction_id", rec.TransactionID)
			return s.startDisburse(ctx, rec)
		}
		// Collect failed or timed out: terminal, no reversal, no money moved.
		return s.finish(ctx, rec, payment.StatusCTMFailed, reason)

	case LegDisburse:
		switch rec.Status {
		case payment.StatusCTMSuccess, payment.StatusMTCProcessing, payment.StatusATPProcessing, payment.StatusBLPProcessing:
		default:
			s.logger.Debug("disburse outcome ignored for current status",
				"payment_id", rec.ID, "status", rec.Status)
			return nil
		}
		if status == gateway.LegStatusSuccess {
			return s.finish(ctx, rec, payment.StatusSuccess, "")
		}
		if err := s.finish(ctx, rec, rec.Intent.FailedStatus(), reason); err != nil {
			return err
		}
		s.initiateReversal(ctx, rec, reason)
		return nil
	}

	return nil
}

// finish moves a record into a terminal state, stops its reconciliation job and
// notifies.
func (s *Service) finish(ctx context.Context, rec *payment.Payment, terminal payment.Status, reason string) error {
	rec.Status = terminal
	if reason != "" {
		rec.FailureReason = &reason
	}
	if err := s.repo.Update(rec); err != nil {
		return errors.NewInternalError("failed to persist terminal status", err)
	}

	if s.monitor != nil {
		s.monitor.Cancel(rec.ID)
	}

	if terminal == payment.StatusSuccess {
		s.logger.Info("payment settled", "payment_id", rec.ID, "transaction_id", rec.TransactionID)
		s.notifier.NotifySettled(ctx, rec)
	} else {
		s.logger.Warn("payment failed",
			"payment_id", rec.ID,
			"transaction_id", rec.TransactionID,
			"status", terminal,
			"reason", reason)
		s.notifier.NotifyFailed(ctx, rec, reason)
	}

	return nil
}

// startDisburse chains the second leg after a confirmed collect. The freshly
// loaded disburse id is the guard against a scheduler/callback race both
// observing CTM_SUCCESS: if some path already assigned a leg-2 id, this is a
// no-op.
func (s *Service) startDisburse(ctx context.Context, rec *payment.Payment) error {
	if fresh, err := s.repo.GetByID(rec.ID); err == nil {
		if fresh.DisburseTransactionID() != nil {
			s.logger.Info("disburse leg already initiated, skipping",
				"payment_id", rec.ID, "status", fresh.Status)
			*rec = *fresh
			return nil
		}
	}

	transactionID := newTransactionID()

	var transType gateway.TransType
	switch rec.Intent {
	case payment.IntentBuyAirtime:
		transType = gateway.TransTypeAirtime
		rec.ATPTransactionID = &transactionID
	case payment.IntentPayBill:
		transType = gateway.TransTypeBillPay
		rec.BLPTransactionID = &transactionID
	default:
		transType = gateway.TransTypeTransfer
		rec.MTCTransactionID = &transactionID
	}

	networkCode := rec.ReceiverProvider
	if rec.Network == NetworkBank {
		networkCode = rec.BankCode
	}

	resp, err := s.gateway.Initiate(ctx, gateway.InitiateRequest{
		Amount:         rec.AmountPaid,
		CustomerNumber: rec.ReceiverPhone,
		TransactionID:  transactionID,
		NetworkCode:    networkCode,
		TransType:      transType,
	})
	if err != nil {
		reason := fmt.Sprintf("disburse leg initiation failed: %v", err)
		s.logger.Error("disburse leg initiation failed", "payment_id", rec.ID, "error", err)
		if ferr := s.finish(ctx, rec, rec.Intent.FailedStatus(), reason); ferr != nil {
			return ferr
		}
		s.initiateReversal(ctx, rec, reason)
		return nil
	}
	if !resp.Accepted() {
		reason := fmt.Sprintf("gateway rejected disburse leg: %s %s", resp.ResponseCode, resp.ResponseDescription)
		s.logger.Error("gateway rejected disburse leg",
			"payment_id", rec.ID,
			"resp_code", resp.ResponseCode,
			"resp_desc", resp.ResponseDescription)
		if ferr := s.finish(ctx, rec, rec.Intent.FailedStatus(), reason); ferr != nil {
			return ferr
		}
		s.initiateReversal(ctx, rec, reason)
		return nil
	}

	rec.Status = rec.Intent.ProcessingStatus()
	if err := s.repo.Update(rec); err != nil {
		return errors.NewInternalError("failed to persist disburse leg", err)
	}

	s.logger.Info("disburse leg initiated",
		"payment_id", rec.ID,
		"trans_type", transType,
		"disburse_transaction_id", transactionID)

	return nil
}

// initiateReversal refunds the original sender after a failed disbursement by
// creating a fresh payment record with the parties swapped and running its MTC
// leg through the normal pending/reconcile lifecycle. At most one reversal ever
// exists per record, and reversals never reverse.
func (s *Service) initiateReversal(ctx context.Context, rec *payment.Payment, reason string) {
	if rec.IsReversal() {
		return
	}

	if existing, err := s.repo.GetByOriginalPaymentID(rec.ID); err != nil {
		s.logger.Error("reversal lookup failed", "payment_id", rec.ID, "error", err)
		return
	} else if existing != nil {
		s.logger.Info("reversal already exists, skipping",
			"payment_id", rec.ID, "reversal_id", existing.ID)
		return
	}

	reversal := payment.NewReversal(rec)
	transactionID := newTransactionID()
	reversal.TransactionID = transactionID
	reversal.MTCTransactionID = &transactionID

	resp, err := s.gateway.Initiate(ctx, gateway.InitiateRequest{
		Amount:         reversal.AmountPaid,
		CustomerNumber: reversal.ReceiverPhone,
		TransactionID:  transactionID,
		NetworkCode:    reversal.ReceiverProvider,
		TransType:      gateway.TransTypeTransfer,
	})

	switch {
	case err != nil:
		// Persist the failed attempt anyway; the ledger must show the refund
		// was tried.
		failure := fmt.Sprintf("reversal initiation failed: %v", err)
		reversal.Status = payment.StatusFailed
		reversal.FailureReason = &failure
		s.logger.Error("reversal initiation failed", "original_payment_id", rec.ID, "error", err)
	case !resp.Accepted():
		failure := fmt.Sprintf("gateway rejected reversal: %s %s", resp.ResponseCode, resp.ResponseDescription)
		reversal.Status = payment.StatusFailed
		reversal.FailureReason = &failure
		s.logger.Error("gateway rejected reversal",
			"original_payment_id", rec.ID,
			"resp_code", resp.ResponseCode)
	}

	if err := s.repo.Create(reversal); err != nil {
		s.logger.Error("failed to persist reversal record", "original_payment_id", rec.ID, "error", err)
		return
	}

	s.logger.Info("reversal created",
		"reversal_id", reversal.ID,
		"original_payment_id", rec.ID,
		"transaction_id", transactionID,
		"status", reversal.Status,
		"trigger", reason)

	if s.eventBus != nil {
		s.eventBus.Publish(ctx, events.NewReversalInitiatedEvent(
			reversal.ID, rec.ID, transactionID, reversal.AmountPaid.StringFixed(2)))
	}

	if reversal.Status == payment.StatusPending && s.monitor != nil {
		s.monitor.Watch(reversal.ID)
	}
	if reversal.Status == payment.StatusFailed {
		s.notifier.NotifyFailed(ctx, reversal, *reversal.FailureReason)
	}
}

// HandleCallback applies an asynchronous gateway notification. The reference is
// matched against all four leg id columns; exactly one should match. Unknown
// references surface as a not-found error to the webhook caller.
func (s *Service) HandleCallback(ctx context.Context, cb *CallbackRequest) error {
	if err := cb.Validate(); err != nil {
		return err
	}

	rec, err := s.repo.GetByAnyTransactionID(cb.TransRef)
	if err != nil {
		s.logger.Error("callback reference matches no payment record",
			"trans_ref", cb.TransRef, "error", err)
		return errors.ErrCallbackMismatch
	}

	leg := s.determineLeg(rec, cb.TransRef)

	status, known := gateway.ParseTransStatus(cb.TransStatus)
	if !known {
		s.logger.Warn("callback carried unrecognized status code, ignoring",
			"trans_ref", cb.TransRef, "trans_status", cb.TransStatus)
		return nil
	}

	reason := cb.Message
	if reason == "" {
		reason = defaultFailureReason
	}

	s.logger.Info("processing gateway callback",
		"payment_id", rec.ID,
		"trans_ref", cb.TransRef,
		"leg", leg,
		"status", status)

	return s.applyLeg(ctx, rec, leg, status, reason)
}

// determineLeg disambiguates which leg a reference points at. Disburse ids are
// checked first; the record's primary handle doubles as the collect id.
func (s *Service) determineLeg(rec *payment.Payment, ref string) Leg {
	if id := rec.DisburseTransactionID(); id != nil && *id == ref {
		return LegDisburse
	}
	return LegCollect
}

// Reconcile is one scheduler tick for one record: re-fetch, pick the in-flight
// leg, poll the gateway and apply the shared transition rules. terminal=true
// tells the scheduler to stop (the callback may have finished the record in
// between ticks).
func (s *Service) Reconcile(ctx context.Context, recordID int64) (bool, error) {
	rec, err := s.repo.GetByID(recordID)
	if err != nil {
		return false, errors.NewInternalError("failed to load payment record", err)
	}
	if rec.IsTerminal() {
		return true, nil
	}

	// A record parked on CTM_SUCCESS means a previous disburse attempt never
	// got off the ground (crash between the two legs); resume it.
	if rec.Status == payment.StatusCTMSuccess {
		if err := s.startDisburse(ctx, rec); err != nil {
			return rec.IsTerminal(), err
		}
		return rec.IsTerminal(), nil
	}

	leg := LegCollect
	switch rec.Status {
	case payment.StatusMTCProcessing, payment.StatusATPProcessing, payment.StatusBLPProcessing:
		leg = LegDisburse
	}

	externalID := rec.InFlightTransactionID()
	if externalID == "" {
		// No usable leg id for this status is a wiring defect; let it count
		// against the attempt budget instead of polling forever.
		return false, errors.NewInternalError(
			fmt.Sprintf("no transaction id available for status %s", rec.Status), nil)
	}

	status, err := s.gateway.CheckStatus(ctx, externalID)
	if err != nil {
		s.logger.Warn("status check failed, will retry next tick",
			"payment_id", recordID, "exttrid", externalID, "error", err)
		return false, err
	}

	if err := s.ApplyLegStatus(ctx, rec, leg, status); err != nil {
		return rec.IsTerminal(), err
	}

	return rec.IsTerminal(), nil
}

// ForceTimeout fails whichever leg is still in flight once the attempt budget
// runs out, with the same consequences as an explicit FAILED poll: a pending
// collect dies quietly, an in-flight disbursement triggers a reversal.
func (s *Service) ForceTimeout(ctx context.Context, recordID int64) error {
	rec, err := s.repo.GetByID(recordID)
	if err != nil {
		return errors.NewInternalError("failed to load payment record", err)
	}
	if rec.IsTerminal() {
		return nil
	}

	leg := LegCollect
	switch rec.Status {
	case payment.StatusCTMSuccess, payment.StatusMTCProcessing, payment.StatusATPProcessing, payment.StatusBLPProcessing:
		leg = LegDisburse
	}

	s.logger.Warn("reconciliation attempts exhausted, forcing failure",
		"payment_id", recordID, "status", rec.Status, "leg", leg)

	return s.applyLeg(ctx, rec, leg, gateway.LegStatusFailed, "reconciliation timeout")
}

// GetByTransactionID serves the read API; ref may be any leg id.
func (s *Service) GetByTransactionID(ref string) (*PaymentView, error) {
	rec, err := s.repo.GetByAnyTransactionID(ref)
	if err != nil {
		return nil, errors.ErrPaymentNotFound
	}
	return ToView(rec), nil
}

// Summary aggregates settlement volume over a date range for reporting.
func (s *Service) Summary(ctx context.Context, from, to time.Time) (*SummaryView, error) {
	settledAmount, err := s.repo.SumAmountByStatus(payment.StatusSuccess, from, to)
	if err != nil {
		return nil, errors.NewInternalError("failed to aggregate settled amount", err)
	}

	settledCount, err := s.repo.CountByStatus(payment.StatusSuccess, from, to)
	if err != nil {
		return nil, errors.NewInternalError("failed to count settled payments", err)
	}

	var failedCount int64
	for _, st := range []payment.Status{
		payment.StatusCTMFailed,
		payment.StatusMTCFailed,
		payment.StatusATPFailed,
		payment.StatusBLPFailed,
		payment.StatusFailed,
	} {
		n, err := s.repo.CountByStatus(st, from, to)
		if err != nil {
			return nil, errors.NewInternalError("failed to count failed payments", err)
		}
		failedCount += n
	}

	var pendingCount int64
	for _, st := range []payment.Status{
		payment.StatusPending,
		payment.StatusCTMSuccess,
		payment.StatusMTCProcessing,
		payment.StatusATPProcessing,
		payment.StatusBLPProcessing,
	} {
		n, err := s.repo.CountByStatus(st, from, to)
		if err != nil {
			return nil, errors.NewInternalError("failed to count pending payments", err)
		}
		pendingCount += n
	}

	reversedAmount, err := s.repo.SumReversedAmount(from, to)
	if err != nil {
		return nil, errors.NewInternalError("failed to aggregate reversed amount", err)
	}

	return &SummaryView{
		From:           from,
		To:             to,
		SettledAmount:  settledAmount.StringFixed(2),
		SettledCount:   settledCount,
		FailedCount:    failedCount,
		PendingCount:   pendingCount,
		ReversedAmount: reversedAmount.StringFixed(2),
	}, nil
}
