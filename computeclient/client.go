package computeclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	sdkerrors "cosmossdk.io/errors"
	"inference-gateway/utils"

	"github.com/shopspring/decimal"
)

const (
	providersPath = "/v1/providers"
	modelsPath    = "/v1/models"
	dispatchPath  = "/v1/chat/completions"
	accountsPath  = "/v1/ledger/accounts"
	depositsPath  = "/v1/ledger/deposits"
	blocksPath    = "/v1/blocks"
)

var (
	ErrNoProvider   = sdkerrors.Register("computeclient", 2, "no provider for model")
	ErrUpstreamCall = sdkerrors.Register("computeclient", 3, "upstream call failed")
)

// Client talks to a chain node's REST surface.
type Client struct {
	baseUrl string
	client  *http.Client
}

func NewClient(baseUrl string, timeout time.Duration) *Client {
	return &Client{
		baseUrl: baseUrl,
		client:  utils.NewHttpClient(timeout),
	}
}

func (c *Client) ResolveProvider(ctx context.Context, model string) (*Provider, error) {
	requestUrl, err := url.JoinPath(c.baseUrl, providersPath, url.PathEscape(model))
	if err != nil {
		return nil, err
	}

	resp, err := utils.SendGetRequest(ctx, c.client, requestUrl)
	if err != nil {
		return nil, upstreamError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, sdkerrors.Wrap(ErrNoProvider, model)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}

	var provider Provider
	if err := json.NewDecoder(resp.Body).Decode(&provider); err != nil {
		return nil, err
	}
	return &provider, nil
}

func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	requestUrl, err := url.JoinPath(c.baseUrl, modelsPath)
	if err != nil {
		return nil, err
	}

	resp, err := utils.SendGetRequest(ctx, c.client, requestUrl)
	if err != nil {
		return nil, upstreamError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}

	var body struct {
		Models []string `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	return body.Models, nil
}

func (c *Client) Dispatch(ctx context.Context, provider *Provider, model, query string) (*DispatchResult, error) {
	requestUrl, err := url.JoinPath(provider.Url, dispatchPath)
	if err != nil {
		return nil, err
	}

	payload := struct {
		Model string `json:"model"`
		Query string `json:"query"`
	}{Model: model, Query: query}

	resp, err := utils.SendPostJsonRequest(ctx, c.client, requestUrl, payload)
	if err != nil {
		return nil, upstreamError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, statusError(resp)
	}

	var result DispatchResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) LedgerAccountExists(ctx context.Context, address string) (bool, error) {
	requestUrl, err := url.JoinPath(c.baseUrl, accountsPath, url.PathEscape(address))
	if err != nil {
		return false, err
	}

	resp, err := utils.SendGetRequest(ctx, c.client, requestUrl)
	if err != nil {
		return false, upstreamError(err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, statusError(resp)
	}
}

func (c *Client) CreateLedgerAccount(ctx context.Context, address string, amount decimal.Decimal) error {
	requestUrl, err := url.JoinPath(c.baseUrl, accountsPath)
	if err != nil {
		return err
	}

	payload := struct {
		Address string `json:"address"`
		Amount  string `json:"amount"`
	}{Address: address, Amount: amount.String()}

	resp, err := utils.SendPostJsonRequest(ctx, c.client, requestUrl, payload)
	if err != nil {
		return upstreamError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp)
	}
	return nil
}

func (c *Client) GetLedgerBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	requestUrl, err := url.JoinPath(c.baseUrl, accountsPath, url.PathEscape(address), "balance")
	if err != nil {
		return decimal.Zero, err
	}

	resp, err := utils.SendGetRequest(ctx, c.client, requestUrl)
	if err != nil {
		return decimal.Zero, upstreamError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, statusError(resp)
	}

	var body struct {
		Balance string `json:"balance"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(body.Balance)
}

func (c *Client) Deposit(ctx context.Context, address string, amount decimal.Decimal) (string, error) {
	requestUrl, err := url.JoinPath(c.baseUrl, depositsPath)
	if err != nil {
		return "", err
	}

	payload := struct {
		Address string `json:"address"`
		Amount  string `json:"amount"`
	}{Address: address, Amount: amount.String()}

	resp, err := utils.SendPostJsonRequest(ctx, c.client, requestUrl, payload)
	if err != nil {
		return "", upstreamError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", statusError(resp)
	}

	var body struct {
		Reference string `json:"reference"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	return body.Reference, nil
}

func (c *Client) BlockTransfers(ctx context.Context, height int64, toAddress string) ([]Transfer, error) {
	requestUrl, err := url.JoinPath(c.baseUrl, blocksPath, fmt.Sprintf("%d", height), "transfers")
	if err != nil {
		return nil, err
	}
	requestUrl += "?to=" + url.QueryEscape(toAddress)

	resp, err := utils.SendGetRequest(ctx, c.client, requestUrl)
	if err != nil {
		return nil, upstreamError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}

	var body struct {
		Transfers []Transfer `json:"transfers"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	return body.Transfers, nil
}

// upstreamError tags a transport failure while keeping the original error in
// the chain, so callers can still distinguish context timeouts from other
// upstream failures.
func upstreamError(err error) error {
	return fmt.Errorf("%w: %w", ErrUpstreamCall, err)
}

func statusError(resp *http.Response) error {
	msg := fmt.Sprintf("unexpected status %d", resp.StatusCode)
	bodyBytes, err := io.ReadAll(resp.Body)
	if err == nil && len(bodyBytes) > 0 {
		msg += ": " + string(bodyBytes)
	}
	return sdkerrors.Wrap(ErrUpstreamCall, msg)
}
