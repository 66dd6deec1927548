// Package client provides a Go client for the FundMe API.
//
// Amounts are exchanged as base-10 wei strings. Fund accepts anything the
// server's amount parser does, so "0.03eth" works as well as wei.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const ledgerPath = "/api/v1/ledger"

// Client is a FundMe API client
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.httpClient = c
	}
}

// New creates a new FundMe client. The API key is only needed for fund,
// withdraw and price answer updates.
func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Price is a price feed round.
type Price struct {
	RoundID   string `json:"roundId"`
	Answer    string `json:"answer"`
	Decimals  uint8  `json:"decimals"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

// Info summarizes the ledger.
type Info struct {
	Owner       string `json:"owner"`
	PriceFeed   string `json:"priceFeed"`
	Network     string `json:"network"`
	ChainID     int    `json:"chainId"`
	Development bool   `json:"development"`
	Balance     string `json:"balance"`
	BalanceEth  string `json:"balanceEth"`
	FunderCount int    `json:"funderCount"`
	MinimumUSD  string `json:"minimumUsd"`
	Price       *Price `json:"price,omitempty"`
}

// FundResult describes an accepted contribution.
type FundResult struct {
	Sender       string `json:"sender"`
	Amount       string `json:"amount"`
	USDValue     string `json:"usdValue"`
	Contribution string `json:"contribution"`
	FunderCount  int    `json:"funderCount"`
}

// WithdrawResult describes a completed withdrawal.
type WithdrawResult struct {
	Recipient      string `json:"recipient"`
	Amount         string `json:"amount"`
	FundersCleared int    `json:"fundersCleared"`
}

// Identity is the account an API key acts as.
type Identity struct {
	Account string `json:"account"`
	KeyName string `json:"keyName,omitempty"`
	IsOwner bool   `json:"isOwner"`
}

// Event is a journaled ledger operation.
type Event struct {
	Seq         int64  `json:"seq"`
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	Account     string `json:"account"`
	Amount      string `json:"amount"`
	USDValue    string `json:"usdValue,omitempty"`
	FunderCount int    `json:"funderCount"`
	CreatedAt   string `json:"createdAt"`
}

// EventsQuery filters and pages the event journal. Zero values are omitted.
type EventsQuery struct {
	Kind    string
	Account string
	Limit   int
	Cursor  string
}

// EventsResponse is a page of events.
type EventsResponse struct {
	Data       []Event    `json:"data"`
	Pagination Pagination `json:"pagination"`
}

// Pagination contains pagination info
type Pagination struct {
	Limit      int    `json:"limit"`
	HasMore    bool   `json:"hasMore"`
	NextCursor string `json:"nextCursor,omitempty"`
}

// Deployment records the parameters a ledger was created with.
type Deployment struct {
	ID                 string `json:"id"`
	Network            string `json:"network"`
	ChainID            int    `json:"chainId"`
	Owner              string `json:"owner"`
	PriceFeed          string `json:"priceFeed"`
	MockPriceFeed      bool   `json:"mockPriceFeed"`
	MinimumUSD         int64  `json:"minimumUsd"`
	BlockConfirmations int    `json:"blockConfirmations"`
	CreatedAt          string `json:"createdAt,omitempty"`
}

// APIError represents an API error response
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Info returns the ledger summary.
func (c *Client) Info(ctx context.Context) (*Info, error) {
	var info Info
	if err := c.get(ctx, ledgerPath+"/", &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Owner returns the owner address.
func (c *Client) Owner(ctx context.Context) (string, error) {
	var resp struct {
		Owner string `json:"owner"`
	}
	if err := c.get(ctx, ledgerPath+"/owner", &resp); err != nil {
		return "", err
	}
	return resp.Owner, nil
}

// PriceFeed returns the price feed address.
func (c *Client) PriceFeed(ctx context.Context) (string, error) {
	var resp struct {
		PriceFeed string `json:"priceFeed"`
	}
	if err := c.get(ctx, ledgerPath+"/price-feed", &resp); err != nil {
		return "", err
	}
	return resp.PriceFeed, nil
}

// Fund contributes amount as the API key's account.
func (c *Client) Fund(ctx context.Context, amount string) (*FundResult, error) {
	var result FundResult
	if err := c.send(ctx, http.MethodPost, ledgerPath+"/fund", map[string]string{"amount": amount}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Withdraw pays the balance out to the owner. The API key must belong to
// the owner.
func (c *Client) Withdraw(ctx context.Context) (*WithdrawResult, error) {
	var result WithdrawResult
	if err := c.send(ctx, http.MethodPost, ledgerPath+"/withdraw", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Funder returns the address at index in the funders log.
func (c *Client) Funder(ctx context.Context, index int) (string, error) {
	var resp struct {
		Address string `json:"address"`
	}
	if err := c.get(ctx, ledgerPath+"/funders/"+strconv.Itoa(index), &resp); err != nil {
		return "", err
	}
	return resp.Address, nil
}

// AmountFunded returns address's current contribution in wei.
func (c *Client) AmountFunded(ctx context.Context, address string) (string, error) {
	var resp struct {
		Amount string `json:"amount"`
	}
	if err := c.get(ctx, ledgerPath+"/contributions/"+url.PathEscape(address), &resp); err != nil {
		return "", err
	}
	return resp.Amount, nil
}

// AccountBalance returns what has been paid out to address, in wei.
func (c *Client) AccountBalance(ctx context.Context, address string) (string, error) {
	var resp struct {
		Balance string `json:"balance"`
	}
	if err := c.get(ctx, ledgerPath+"/accounts/"+url.PathEscape(address)+"/balance", &resp); err != nil {
		return "", err
	}
	return resp.Balance, nil
}

// Events lists journaled operations newest first.
func (c *Client) Events(ctx context.Context, q EventsQuery) (*EventsResponse, error) {
	params := url.Values{}
	if q.Kind != "" {
		params.Set("kind", q.Kind)
	}
	if q.Account != "" {
		params.Set("account", q.Account)
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Cursor != "" {
		params.Set("cursor", q.Cursor)
	}

	path := ledgerPath + "/events"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var resp EventsResponse
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SetPriceAnswer moves the development price feed to answer.
func (c *Client) SetPriceAnswer(ctx context.Context, answer string) (*Price, error) {
	var price Price
	if err := c.send(ctx, http.MethodPut, ledgerPath+"/price-feed/answer", map[string]string{"answer": answer}, &price); err != nil {
		return nil, err
	}
	return &price, nil
}

// WhoAmI returns the account bound to the client's API key.
func (c *Client) WhoAmI(ctx context.Context) (*Identity, error) {
	var id Identity
	if err := c.get(ctx, ledgerPath+"/whoami", &id); err != nil {
		return nil, err
	}
	return &id, nil
}

// Deployments lists ledger deployments newest first. An empty network lists
// every network; a zero limit uses the server default.
func (c *Client) Deployments(ctx context.Context, network string, limit int) ([]Deployment, error) {
	params := url.Values{}
	if network != "" {
		params.Set("network", network)
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/v1/deployments/"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var resp struct {
		Data []Deployment `json:"data"`
	}
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// LatestDeployment returns the most recent deployment on a network.
func (c *Client) LatestDeployment(ctx context.Context, network string) (*Deployment, error) {
	var d Deployment
	if err := c.get(ctx, "/api/v1/deployments/"+url.PathEscape(network)+"/latest", &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// Version returns the server version.
func (c *Client) Version(ctx context.Context) (string, error) {
	var resp struct {
		Version string `json:"version"`
	}
	if err := c.get(ctx, "/version", &resp); err != nil {
		return "", err
	}
	return resp.Version, nil
}

func (c *Client) get(ctx context.Context, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}

	return c.do(req, result)
}

func (c *Client) send(ctx context.Context, method, path string, body, result any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.do(req, result)
}

func (c *Client) do(req *http.Request, result any) error {
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.parseError(resp)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}

	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	req.Header.Set("Accept", "application/json")
}

func (c *Client) parseError(resp *http.Response) error {
	var errResp struct {
		Error APIError `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil || errResp.Error.Code == "" {
		return &APIError{StatusCode: resp.StatusCode, Code: "HTTP_ERROR", Message: resp.Status}
	}
	errResp.Error.StatusCode = resp.StatusCode
	return &errResp.Error
}
