package gateway

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// TransType tags every gateway request with the operation it performs.
type TransType string

const (
	TransTypeCollect        TransType = "CTM"
	TransTypeTransfer       TransType = "MTC"
	TransTypeAirtime        TransType = "ATP"
	TransTypeBillPay        TransType = "BLP"
	TransTypeAccountInquiry TransType = "AII"
	TransTypeBillerInquiry  TransType = "BLI"
	TransTypeStatusCheck    TransType = "TSC"
	TransTypeBalance        TransType = "BLC"
)

// Response codes returned on leg initiation. "015" and "027" both mean the request
// was accepted for processing and is not yet final; anything else is a hard
// rejection.
const (
	CodeAccepted          = "015"
	CodeAcceptedQueued    = "027"
	statusPrefixSucceeded = "000"
	statusPrefixFailed    = "001"
)

// LegStatus is the reconciled outcome of a single settlement leg.
type LegStatus string

const (
	LegStatusSuccess LegStatus = "SUCCESS"
	LegStatusFailed  LegStatus = "FAILED"
	LegStatusPending LegStatus = "PENDING"
)

// InitiateRequest describes one leg to be started at the gateway.
type InitiateRequest struct {
	Amount         decimal.Decimal
	CustomerNumber string
	TransactionID  string
	NetworkCode    string
	TransType      TransType
	Reference      string
}

// Response is the gateway's answer to a leg initiation. An accepted response is
// not success; it only means reconciliation should begin.
type Response struct {
	HTTPStatus          int
	ResponseCode        string
	ResponseDescription string
	TransID             string
}

// Accepted reports whether the gateway took the request for asynchronous
// processing.
func (r *Response) Accepted() bool {
	return r.ResponseCode == CodeAccepted || r.ResponseCode == CodeAcceptedQueued
}

// Balances holds the merchant wallet balances used by the pre-initiation funds
// gate.
type Balances struct {
	Payout         decimal.Decimal
	Airtime        decimal.Decimal
	BillPayCollect decimal.Decimal
}

// ParseTransStatus maps a raw gateway trans_status to a leg outcome using its
// first three characters. known is false for anything outside the documented
// "000"/"001" mapping (including an absent field); callers must treat unknown
// codes as still pending rather than guessing, and should log them.
func ParseTransStatus(raw string) (status LegStatus, known bool) {
	if len(raw) < 3 {
		return LegStatusPending, false
	}
	switch raw[:3] {
	case statusPrefixSucceeded:
		return LegStatusSuccess, true
	case statusPrefixFailed:
		return LegStatusFailed, true
	}
	return LegStatusPending, false
}

// Error wraps transport-level failures (network, timeout, undecodable body)
// talking to the gateway. HTTP-level rejections are not Errors; they come back in
// the Response so the caller decides the transition.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("gateway %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// wireResponse is the gateway's JSON body shape across all endpoints; unused
// fields are simply absent.
type wireResponse struct {
	RespCode              string `json:"resp_code"`
	RespDesc              string `json:"resp_desc"`
	TransStatus           string `json:"trans_status"`
	TransID               string `json:"trans_id"`
	AccountName           string `json:"account_name"`
	PayoutBalance         string `json:"payout_balance"`
	AirtimeBalance        string `json:"airtime_balance"`
	BillPayCollectBalance string `json:"bill_pay_collect_balance"`
}
