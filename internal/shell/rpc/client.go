// Package rpc provides a JSON-RPC client for the network's contract service.
package rpc

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"
)

// PassphraseHeader carries the network passphrase on every request.
const PassphraseHeader = "X-Network-Passphrase"

// Signer is the source account of state-changing calls.
type Signer interface {
	Address() string
	Sign(payload []byte) string
}

// Client calls one network's RPC endpoint.
type Client struct {
	url        string
	passphrase string
	httpClient *http.Client
	logger     *slog.Logger
	nextID     atomic.Int64
}

// Config holds RPC client configuration.
type Config struct {
	URL        string // RPC endpoint, e.g., "http://localhost:8000/rpc"
	Passphrase string // Network passphrase
	Timeout    time.Duration
}

// NewClient creates a new RPC client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		url:        cfg.URL,
		passphrase: cfg.Passphrase,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger.With("component", "rpc"),
	}
}

// Passphrase returns the network passphrase the client is bound to.
func (c *Client) Passphrase() string {
	return c.passphrase
}

// URL returns the RPC endpoint.
func (c *Client) URL() string {
	return c.url
}

// =============================================================================
// Wire Types
// =============================================================================

type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *responseError  `json:"error"`
}

type responseError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// InstallParams are the parameters of installContract.
type InstallParams struct {
	Wasm      []byte `json:"wasm"`
	Source    string `json:"source"`
	Signature string `json:"signature,omitempty"`
}

// DeployParams are the parameters of deployContract.
type DeployParams struct {
	WasmHash  string `json:"wasmHash"`
	Source    string `json:"source"`
	Salt      string `json:"salt"`
	Signature string `json:"signature,omitempty"`
}

// InvokeParams are the parameters of invokeContract.
type InvokeParams struct {
	ContractID string   `json:"contractId"`
	Function   string   `json:"function"`
	Args       []string `json:"args"`
	Source     string   `json:"source"`
	Signature  string   `json:"signature,omitempty"`
}

// =============================================================================
// Contract Operations
// =============================================================================

// InstallContract uploads wasm code and returns its hash.
func (c *Client) InstallContract(ctx context.Context, wasm []byte, source Signer) (string, error) {
	params := InstallParams{Wasm: wasm, Source: source.Address()}
	sig, err := sign("installContract", params, source)
	if err != nil {
		return "", err
	}
	params.Signature = sig

	var result struct {
		Hash string `json:"hash"`
	}
	if err := c.call(ctx, "installContract", params, &result); err != nil {
		return "", err
	}
	if result.Hash == "" {
		return "", NewRPCError("installContract", 0, "no wasm hash returned", ErrEmptyResult)
	}
	return result.Hash, nil
}

// DeployContract instantiates installed code under a fresh contract id.
func (c *Client) DeployContract(ctx context.Context, wasmHash string, source Signer) (string, error) {
	salt := make([]byte, 32)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	params := DeployParams{WasmHash: wasmHash, Source: source.Address(), Salt: hex.EncodeToString(salt)}
	sig, err := sign("deployContract", params, source)
	if err != nil {
		return "", err
	}
	params.Signature = sig

	var result struct {
		ContractID string `json:"contractId"`
	}
	if err := c.call(ctx, "deployContract", params, &result); err != nil {
		return "", err
	}
	if result.ContractID == "" {
		return "", NewRPCError("deployContract", 0, "no contract id returned", ErrEmptyResult)
	}
	return result.ContractID, nil
}

// GetContractWasm fetches the code of a deployed contract. A missing contract
// yields an error matching ErrNotFound.
func (c *Client) GetContractWasm(ctx context.Context, contractID string) ([]byte, error) {
	params := map[string]string{"contractId": contractID}

	var result struct {
		Wasm []byte `json:"wasm"`
	}
	if err := c.call(ctx, "getContractWasm", params, &result); err != nil {
		return nil, err
	}
	return result.Wasm, nil
}

// InvokeContract calls a contract function and returns the raw result.
func (c *Client) InvokeContract(ctx context.Context, contractID, function string, args []string, source Signer) (json.RawMessage, error) {
	if args == nil {
		args = []string{}
	}
	params := InvokeParams{ContractID: contractID, Function: function, Args: args, Source: source.Address()}
	sig, err := sign("invokeContract", params, source)
	if err != nil {
		return nil, err
	}
	params.Signature = sig

	var result struct {
		Result json.RawMessage `json:"result"`
	}
	if err := c.call(ctx, "invokeContract", params, &result); err != nil {
		return nil, err
	}
	return result.Result, nil
}

// FundAccount asks the network to fund a new account.
func (c *Client) FundAccount(ctx context.Context, address string) error {
	return c.call(ctx, "fundAccount", map[string]string{"address": address}, nil)
}

// =============================================================================
// Transport
// =============================================================================

// sign signs the method name and the unsigned params.
func sign(method string, params any, source Signer) (string, error) {
	payload, err := SigningPayload(method, params)
	if err != nil {
		return "", NewRPCError(method, 0, "marshal params: "+err.Error(), ErrTransport)
	}
	return source.Sign(payload), nil
}

// SigningPayload returns the bytes a signature covers. Servers use it to
// verify the signature field.
func SigningPayload(method string, unsignedParams any) ([]byte, error) {
	body, err := json.Marshal(unsignedParams)
	if err != nil {
		return nil, err
	}
	return append([]byte(method+"\n"), body...), nil
}

func (c *Client) call(ctx context.Context, method string, params, out any) error {
	body, err := json.Marshal(request{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return NewRPCError(method, 0, "marshal request: "+err.Error(), ErrTransport)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return NewRPCError(method, 0, "create request: "+err.Error(), ErrTransport)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(PassphraseHeader, c.passphrase)

	c.logger.Debug("rpc call", "method", method, "url", c.url)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return NewRPCError(method, 0, err.Error(), ErrTransport)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return NewRPCError(method, 0, "read response: "+err.Error(), ErrTransport)
	}

	var rpcResp response
	if err := json.Unmarshal(data, &rpcResp); err != nil {
		return NewRPCError(method, 0, fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(data)), ErrTransport)
	}

	if rpcResp.Error != nil {
		sentinel := ErrRemote
		if rpcResp.Error.Code == CodeNotFound {
			sentinel = ErrNotFound
		}
		return NewRPCError(method, rpcResp.Error.Code, rpcResp.Error.Message, sentinel)
	}

	if resp.StatusCode != http.StatusOK {
		return NewRPCError(method, 0, fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(data)), ErrTransport)
	}

	if out != nil && len(rpcResp.Result) > 0 {
		if err := json.Unmarshal(rpcResp.Result, out); err != nil {
			return NewRPCError(method, 0, "decode result: "+err.Error(), ErrTransport)
		}
	}
	return nil
}
