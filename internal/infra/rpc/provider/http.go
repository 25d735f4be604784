package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/vietddude/blockstream/internal/core/domain"
)

// HTTPClient implements Client for JSON-RPC over HTTP.
type HTTPClient struct {
	name       string
	endpoint   string
	httpClient *http.Client
}

// NewHTTPClient creates a new JSON-RPC client for the given endpoint.
func NewHTTPClient(name, endpoint string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		name:     name,
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Name returns the client's display name.
func (c *HTTPClient) Name() string {
	return c.name
}

// LatestBlockNumber calls eth_blockNumber.
func (c *HTTPClient) LatestBlockNumber(ctx context.Context) (uint64, error) {
	result, err := c.call(ctx, "eth_blockNumber", []any{})
	if err != nil {
		return 0, fmt.Errorf("eth_blockNumber failed: %w", err)
	}

	hex, ok := result.(string)
	if !ok {
		return 0, fmt.Errorf("invalid block number response")
	}
	return parseHexUint(hex)
}

// BlockByNumber calls eth_getBlockByNumber with the transaction hash
// list. A null result means the provider does not have the block and
// is reported as ErrBlockNotFound.
func (c *HTTPClient) BlockByNumber(ctx context.Context, number uint64) (*domain.Block, error) {
	numHex := fmt.Sprintf("0x%x", number)
	result, err := c.call(ctx, "eth_getBlockByNumber", []any{numHex, false})
	if err != nil {
		return nil, fmt.Errorf("eth_getBlockByNumber failed: %w", err)
	}
	if result == nil {
		return nil, fmt.Errorf("block %d: %w", number, ErrBlockNotFound)
	}

	raw, ok := result.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("invalid block format for %d", number)
	}
	return parseBlock(raw)
}

func parseBlock(raw map[string]any) (*domain.Block, error) {
	number, err := parseHexUint(getString(raw["number"]))
	if err != nil {
		return nil, fmt.Errorf("parse block number: %w", err)
	}
	timestamp, err := parseHexUint(getString(raw["timestamp"]))
	if err != nil {
		return nil, fmt.Errorf("parse block timestamp: %w", err)
	}

	var txs []string
	if rawTxs, ok := raw["transactions"].([]any); ok {
		txs = make([]string, 0, len(rawTxs))
		for _, t := range rawTxs {
			if hash, ok := t.(string); ok {
				txs = append(txs, hash)
			}
		}
	}

	return &domain.Block{
		Number:       number,
		Hash:         getString(raw["hash"]),
		ParentHash:   getString(raw["parentHash"]),
		Timestamp:    timestamp,
		Transactions: txs,
	}, nil
}

func (c *HTTPClient) call(ctx context.Context, method string, params []any) (any, error) {
	reqBody := map[string]any{
		"jsonrpc": "2.0",
		"method":  method,
		"params":  params,
		"id":      1,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rpc call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("rate limited (429), retry after: %s", resp.Header.Get("Retry-After"))
	}
	if resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("ip blocked (403)")
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
	}

	var rpcResp struct {
		Result any             `json:"result"`
		Error  *map[string]any `json:"error"`
	}
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	if rpcResp.Error != nil {
		errMsg := "unknown error"
		if msg, ok := (*rpcResp.Error)["message"].(string); ok {
			errMsg = msg
		}
		return nil, fmt.Errorf("rpc error: %s", errMsg)
	}

	return rpcResp.Result, nil
}

func parseHexUint(s string) (uint64, error) {
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return 0, fmt.Errorf("empty hex string")
	}
	return strconv.ParseUint(s, 16, 64)
}

func getString(v any) string {
	s, _ := v.(string)
	return s
}
