package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/frahmantamala/momo-settlement/internal"
)

const (
	pathSendRequest  = "/sendRequest"
	pathCheckTrans   = "/checkTransaction"
	pathCheckBalance = "/check_wallet_balance"

	timestampLayout = "2006-01-02 15:04:05"
)

// Client signs and sends requests to the external settlement gateway. It is
// stateless, holds no payment data and never retries; retry policy belongs to the
// caller.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	clientID    string
	apiSecret   string
	serviceID   string
	callbackURL string
	logger      *slog.Logger

	// now is swappable so tests can pin request timestamps.
	now func() time.Time
}

func NewClient(cfg internal.GatewayConfig, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = internal.DefaultGatewayTimeout
	}

	return &Client{
		httpClient:  &http.Client{Timeout: timeout},
		baseURL:     cfg.BaseURL,
		clientID:    cfg.ClientID,
		apiSecret:   cfg.APISecret,
		serviceID:   cfg.ServiceID,
		callbackURL: cfg.CallbackURL,
		logger:      logger,
		now:         time.Now,
	}
}

// Canonicalize marshals the payload into the deterministic sorted-key compact
// JSON the gateway recomputes the signature over. encoding/json emits map keys in
// sorted order with no extra whitespace, which is exactly that canonical form.
func Canonicalize(payload map[string]string) ([]byte, error) {
	return json.Marshal(payload)
}

// Sign computes the hex HMAC-SHA256 of the canonical body under the shared
// secret.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Initiate starts one settlement leg (or an inquiry) at the gateway. A nil error
// with a non-accepted Response is an HTTP-level rejection the caller must treat
// as a failed attempt; an *Error means the request never completed.
func (c *Client) Initiate(ctx context.Context, req InitiateRequest) (*Response, error) {
	payload := map[string]string{
		"amount":          req.Amount.StringFixed(2),
		"customer_number": req.CustomerNumber,
		"exttrid":         req.TransactionID,
		"nw":              req.NetworkCode,
		"service_id":      c.serviceID,
		"trans_type":      string(req.TransType),
		"callback_url":    c.callbackURL,
		"ts":              c.now().UTC().Format(timestampLayout),
	}
	if req.Reference != "" {
		payload["reference"] = req.Reference
	}

	wire, httpStatus, err := c.post(ctx, "initiate", pathSendRequest, payload)
	if err != nil {
		return nil, err
	}

	resp := &Response{
		HTTPStatus:          httpStatus,
		ResponseCode:        wire.RespCode,
		ResponseDescription: wire.RespDesc,
		TransID:             wire.TransID,
	}

	c.logger.Info("gateway leg initiation response",
		"trans_type", req.TransType,
		"exttrid", req.TransactionID,
		"http_status", httpStatus,
		"resp_code", wire.RespCode,
		"resp_desc", wire.RespDesc)

	return resp, nil
}

// CheckStatus asks the gateway for the current status of a leg by its external
// transaction id. Only the documented "000"/"001" prefixes map to terminal
// outcomes; any other code is logged and treated as still pending so the
// reconciliation loop keeps polling instead of guessing.
func (c *Client) CheckStatus(ctx context.Context, externalTransactionID string) (LegStatus, error) {
	payload := map[string]string{
		"exttrid":    externalTransactionID,
		"service_id": c.serviceID,
		"trans_type": string(TransTypeStatusCheck),
		"ts":         c.now().UTC().Format(timestampLayout),
	}

	wire, httpStatus, err := c.post(ctx, "check-status", pathCheckTrans, payload)
	if err != nil {
		return LegStatusPending, err
	}
	if httpStatus != http.StatusOK {
		return LegStatusPending, &Error{Op: "check-status", Err: fmt.Errorf("unexpected http status %d", httpStatus)}
	}

	status, known := ParseTransStatus(wire.TransStatus)
	if !known {
		c.logger.Warn("unrecognized gateway status code, treating as pending",
			"exttrid", externalTransactionID,
			"trans_status", wire.TransStatus)
	}
	return status, nil
}

// CheckBalance fetches the merchant wallet balances used by the funds gate.
func (c *Client) CheckBalance(ctx context.Context) (*Balances, error) {
	payload := map[string]string{
		"service_id": c.serviceID,
		"trans_type": string(TransTypeBalance),
		"ts":         c.now().UTC().Format(timestampLayout),
	}

	wire, httpStatus, err := c.post(ctx, "check-balance", pathCheckBalance, payload)
	if err != nil {
		return nil, err
	}
	if httpStatus != http.StatusOK {
		return nil, &Error{Op: "check-balance", Err: fmt.Errorf("unexpected http status %d", httpStatus)}
	}

	payout, err := decimal.NewFromString(wire.PayoutBalance)
	if err != nil {
		return nil, &Error{Op: "check-balance", Err: fmt.Errorf("bad payout_balance %q: %w", wire.PayoutBalance, err)}
	}
	airtime, err := decimal.NewFromString(wire.AirtimeBalance)
	if err != nil {
		return nil, &Error{Op: "check-balance", Err: fmt.Errorf("bad airtime_balance %q: %w", wire.AirtimeBalance, err)}
	}
	billPay, err := decimal.NewFromString(wire.BillPayCollectBalance)
	if err != nil {
		return nil, &Error{Op: "check-balance", Err: fmt.Errorf("bad bill_pay_collect_balance %q: %w", wire.BillPayCollectBalance, err)}
	}

	return &Balances{
		Payout:         payout,
		Airtime:        airtime,
		BillPayCollect: billPay,
	}, nil
}

// AccountInquiry resolves the registered name behind a customer number on a
// network. Used to verify receivers before disbursing.
func (c *Client) AccountInquiry(ctx context.Context, customerNumber, networkCode string) (string, error) {
	payload := map[string]string{
		"customer_number": customerNumber,
		"nw":              networkCode,
		"service_id":      c.serviceID,
		"trans_type":      string(TransTypeAccountInquiry),
		"ts":              c.now().UTC().Format(timestampLayout),
	}

	wire, httpStatus, err := c.post(ctx, "account-inquiry", pathSendRequest, payload)
	if err != nil {
		return "", err
	}
	if httpStatus != http.StatusOK {
		return "", &Error{Op: "account-inquiry", Err: fmt.Errorf("unexpected http status %d", httpStatus)}
	}

	return wire.AccountName, nil
}

// BillerInquiry validates a bill account with an external biller before a
// bill-pay disbursement.
func (c *Client) BillerInquiry(ctx context.Context, accountNumber, billerCode string) (string, error) {
	payload := map[string]string{
		"customer_number": accountNumber,
		"biller_code":     billerCode,
		"service_id":      c.serviceID,
		"trans_type":      string(TransTypeBillerInquiry),
		"ts":              c.now().UTC().Format(timestampLayout),
	}

	wire, httpStatus, err := c.post(ctx, "biller-inquiry", pathSendRequest, payload)
	if err != nil {
		return "", err
	}
	if httpStatus != http.StatusOK {
		return "", &Error{Op: "biller-inquiry", Err: fmt.Errorf("unexpected http status %d", httpStatus)}
	}

	return wire.AccountName, nil
}

// post signs the canonical payload and sends it. The canonical bytes are the
// request body verbatim so the server-side signature check recomputes over the
// same string.
func (c *Client) post(ctx context.Context, op, path string, payload map[string]string) (*wireResponse, int, error) {
	body, err := Canonicalize(payload)
	if err != nil {
		return nil, 0, &Error{Op: op, Err: fmt.Errorf("canonicalize payload: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, 0, &Error{Op: op, Err: fmt.Errorf("build request: %w", err)}
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", fmt.Sprintf("%s:%s", c.clientID, Sign(body, c.apiSecret)))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Error("gateway request failed", "op", op, "error", err)
		return nil, 0, &Error{Op: op, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, &Error{Op: op, Err: fmt.Errorf("read response: %w", err)}
	}

	var wire wireResponse
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, &wire); err != nil {
			return nil, resp.StatusCode, &Error{Op: op, Err: fmt.Errorf("decode response %q: %w", string(respBody), err)}
		}
	}

	return &wire, resp.StatusCode, nil
}
