package settlement

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// CoinUnits is how many smallest internal currency units make one network
// coin. The network denominates transfers in decimal coin amounts.
const CoinUnits = 1_000_000_000

// HTTPGateway talks JSON over HTTP to a settlement network node.
type HTTPGateway struct {
	BaseURL string
	Client  *http.Client
}

// Make sure we conform to the interface
var _ Gateway = (*HTTPGateway)(nil)

// NewHTTPGateway creates a gateway against the node at baseURL. The timeout
// bounds every call; an expired call surfaces as ErrNoResponse.
func NewHTTPGateway(baseURL string, timeout time.Duration) *HTTPGateway {
	return &HTTPGateway{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: timeout},
	}
}

// coins renders an internal unit amount as the network's decimal coin string.
func coins(units int64) string {
	return decimal.NewFromInt(units).Div(decimal.NewFromInt(CoinUnits)).String()
}

type signRequest struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount string `json:"amount"` // decimal coins
	Note   string `json:"note,omitempty"`
	Secret string `json:"secret"`
}

type signResponse struct {
	TxBlob []byte `json:"tx_blob"`
	Error  string `json:"error,omitempty"`
}

// Sign asks the node to build and sign a transfer.
func (g *HTTPGateway) Sign(ctx context.Context, payload TransferPayload, secret string) ([]byte, error) {
	req := signRequest{
		From:   payload.From,
		To:     payload.To,
		Amount: coins(payload.Amount),
		Note:   payload.Note,
		Secret: secret,
	}
	var resp signResponse
	if err := g.post(ctx, "/transfer/sign", req, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, &RejectedError{Outcome: resp.Error}
	}
	return resp.TxBlob, nil
}

type submitRequest struct {
	TxBlob   []byte `json:"tx_blob"`
	FailHard bool   `json:"fail_hard"`
}

type submitResponse struct {
	Ref   string `json:"ref"`
	Error string `json:"error,omitempty"`
}

// Submit broadcasts a signed transfer and returns its reference hash.
func (g *HTTPGateway) Submit(ctx context.Context, blob []byte) (string, error) {
	var resp submitResponse
	if err := g.post(ctx, "/transfer/submit", submitRequest{TxBlob: blob, FailHard: true}, &resp); err != nil {
		return "", err
	}
	if resp.Error != "" {
		return "", &RejectedError{Outcome: resp.Error}
	}
	return resp.Ref, nil
}

type queryRequest struct {
	Ref    string `json:"ref"`
	Binary bool   `json:"binary"`
}

type queryResponse struct {
	Found     *bool  `json:"found,omitempty"`
	Validated bool   `json:"validated"`
	Succeeded bool   `json:"succeeded"`
	Outcome   string `json:"outcome,omitempty"`
}

// Query reports the status of a transfer by its reference.
func (g *HTTPGateway) Query(ctx context.Context, ref string) (*QueryResult, error) {
	var resp queryResponse
	if err := g.post(ctx, "/transfer/query", queryRequest{Ref: ref}, &resp); err != nil {
		return nil, err
	}
	if resp.Found != nil && !*resp.Found {
		return nil, fmt.Errorf("ref %s: %w", ref, ErrRefNotFound)
	}
	return &QueryResult{
		Validated: resp.Validated,
		Succeeded: resp.Succeeded,
		Outcome:   resp.Outcome,
	}, nil
}

func (g *HTTPGateway) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.Client.Do(req)
	if err != nil {
		// Transport failures and timeouts are indistinguishable from the
		// network never having heard us.
		return fmt.Errorf("%s: %w", path, ErrNoResponse)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrRefNotFound
	case resp.StatusCode >= 500:
		return fmt.Errorf("%s returned %d: %w", path, resp.StatusCode, ErrNoResponse)
	case resp.StatusCode >= 400:
		return &RejectedError{Outcome: fmt.Sprintf("%s returned %d", path, resp.StatusCode)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}
