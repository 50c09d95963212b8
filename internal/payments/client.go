package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Client talks JSON over HTTP to the payment gateway facade.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

var _ Gateway = (*Client)(nil)

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

type createTransactionReq struct {
	OrderID     string `json:"order_id"`
	GrossAmount int    `json:"gross_amount"`
	Name        string `json:"name"`
	Email       string `json:"email"`
}

type createTransactionResp struct {
	Token         string `json:"token"`
	CorrelationID string `json:"correlation_id"`
}

func (c *Client) CreateIntent(ctx context.Context, gatewayOrderID string, amountCents int, buyer BuyerInfo) (Intent, error) {
	body, err := json.Marshal(createTransactionReq{
		OrderID:     gatewayOrderID,
		GrossAmount: amountCents,
		Name:        buyer.Name,
		Email:       buyer.Email,
	})
	if err != nil {
		return Intent{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.BaseURL+"/api/create-transaction", bytes.NewReader(body))
	if err != nil {
		return Intent{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.HTTP.Do(req)
	if err != nil {
		return Intent{}, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK && res.StatusCode != http.StatusCreated {
		return Intent{}, fmt.Errorf("%w: create-transaction returned %d", ErrGatewayUnavailable, res.StatusCode)
	}

	var out createTransactionResp
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return Intent{}, fmt.Errorf("%w: decode response: %v", ErrGatewayUnavailable, err)
	}
	if out.Token == "" {
		return Intent{}, fmt.Errorf("%w: no token in response", ErrGatewayUnavailable)
	}
	if out.CorrelationID == "" {
		out.CorrelationID = gatewayOrderID
	}
	return Intent{Token: out.Token, CorrelationID: out.CorrelationID}, nil
}

type checkStatusResp struct {
	Status string `json:"status"`
}

func (c *Client) PollStatus(ctx context.Context, correlationID string) (Outcome, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.BaseURL+"/api/check-status/"+correlationID, nil)
	if err != nil {
		return OutcomeUnknown, "", err
	}

	res, err := c.HTTP.Do(req)
	if err != nil {
		return OutcomeUnknown, "", fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return OutcomeUnknown, "", fmt.Errorf("%w: check-status returned %d", ErrGatewayUnavailable, res.StatusCode)
	}

	var out checkStatusResp
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return OutcomeUnknown, "", fmt.Errorf("%w: decode response: %v", ErrGatewayUnavailable, err)
	}
	return MapStatus(out.Status), out.Status, nil
}
