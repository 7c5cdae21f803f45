package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"postmint/core/types"
)

// Client issues nft_mint calls against the external token registry over
// JSON-RPC. The attached deposit and gas budget are fixed per call by
// protocol configuration.
type Client struct {
	baseURL         string
	contract        string
	attachedDeposit *big.Int
	gasBudget       uint64
	http            *http.Client
	nextID          atomic.Int64
}

// NewClient constructs a registry client for the supplied endpoint.
func NewClient(baseURL, contract string, attachedDeposit *big.Int, gasBudget uint64) (*Client, error) {
	trimmed := strings.TrimSpace(baseURL)
	if trimmed == "" {
		return nil, fmt.Errorf("registry: endpoint required")
	}
	deposit := big.NewInt(0)
	if attachedDeposit != nil {
		deposit = new(big.Int).Set(attachedDeposit)
	}
	return &Client{
		baseURL:         trimmed,
		contract:        strings.TrimSpace(contract),
		attachedDeposit: deposit,
		gasBudget:       gasBudget,
		http: &http.Client{
			Timeout: 15 * time.Second,
		},
	}, nil
}

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	ID      int64       `json:"id"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// NFTMint implements the pipeline Minter interface.
func (c *Client) NFTMint(ctx context.Context, tokenID, receiver string, metadata types.TokenMetadata) (*types.TokenDescriptor, error) {
	if c == nil {
		return nil, fmt.Errorf("registry: client not initialised")
	}
	params := map[string]interface{}{
		"contract":         c.contract,
		"token_id":         tokenID,
		"receiver_id":      receiver,
		"token_metadata":   metadata,
		"attached_deposit": c.attachedDeposit.String(),
		"gas":              c.gasBudget,
	}
	var descriptor types.TokenDescriptor
	if err := c.call(ctx, "nft_mint", []interface{}{params}, &descriptor); err != nil {
		return nil, err
	}
	if strings.TrimSpace(descriptor.TokenID) == "" {
		descriptor.TokenID = tokenID
	}
	if strings.TrimSpace(descriptor.OwnerID) == "" {
		descriptor.OwnerID = receiver
	}
	return &descriptor, nil
}

func (c *Client) call(ctx context.Context, method string, params interface{}, out interface{}) error {
	payload := rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      c.nextID.Add(1),
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("registry: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("registry: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("registry: %s: %w", method, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("registry: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("registry: %s: unexpected status %d", method, resp.StatusCode)
	}
	var decoded rpcResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return fmt.Errorf("registry: decode response: %w", err)
	}
	if decoded.Error != nil {
		return fmt.Errorf("registry: %s: %s (code %d)", method, decoded.Error.Message, decoded.Error.Code)
	}
	if out != nil && len(decoded.Result) > 0 {
		if err := json.Unmarshal(decoded.Result, out); err != nil {
			return fmt.Errorf("registry: decode result: %w", err)
		}
	}
	return nil
}
