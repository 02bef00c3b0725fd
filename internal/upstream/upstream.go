// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package upstream is a JSON-RPC client for the bitcoind block template,
// proposal and submission calls used by the pool.
package upstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/blinklabs-io/marlin/internal/template"
)

var (
	// ErrTransport is returned when the node cannot be reached or answers
	// with something other than a JSON-RPC response
	ErrTransport = errors.New("upstream transport error")
	// ErrRPC is returned when the node answers with a JSON-RPC error object
	ErrRPC = errors.New("upstream rpc error")
)

var segwitRules = []string{"segwit"}

type Config struct {
	Host     string
	Port     uint
	User     string
	Password string
	// Deadline for regular calls
	Timeout time.Duration
	// Deadline for a long poll, which the node holds open until the
	// template changes
	LongPollTimeout time.Duration
}

type Client struct {
	url             string
	user            string
	password        string
	timeout         time.Duration
	longPollTimeout time.Duration
	httpClient      *http.Client
}

type ClientOptionFunc func(*Client)

// WithHTTPClient specifies the HTTP client used for requests
func WithHTTPClient(httpClient *http.Client) ClientOptionFunc {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func New(cfg Config, opts ...ClientOptionFunc) *Client {
	c := &Client{
		url: fmt.Sprintf(
			"http://%s/",
			net.JoinHostPort(cfg.Host, strconv.FormatUint(uint64(cfg.Port), 10)),
		),
		user:            cfg.User,
		password:        cfg.Password,
		timeout:         cfg.Timeout,
		longPollTimeout: cfg.LongPollTimeout,
		httpClient:      http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// URL returns the node endpoint
func (c *Client) URL() string {
	return c.url
}

type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type response struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("%s (code %d)", e.Message, e.Code)
}

func newRequest(method string, params ...any) request {
	if params == nil {
		params = []any{}
	}
	return request{
		JSONRPC: "1.0",
		ID:      uuid.NewString(),
		Method:  method,
		Params:  params,
	}
}

type templateRequest struct {
	Rules      []string `json:"rules"`
	LongPollID string   `json:"longpollid,omitempty"`
	Mode       string   `json:"mode,omitempty"`
	Data       string   `json:"data,omitempty"`
}

// GetTemplate fetches a new block template
func (c *Client) GetTemplate(ctx context.Context) (*template.NodeTemplate, error) {
	var ret template.NodeTemplate
	req := newRequest("getblocktemplate", templateRequest{Rules: segwitRules})
	if err := c.call(ctx, c.timeout, req, &ret); err != nil {
		return nil, err
	}
	return &ret, nil
}

// LongPoll blocks until the node has a template newer than the one
// identified by longPollID, then returns it
func (c *Client) LongPoll(ctx context.Context, longPollID string) (*template.NodeTemplate, error) {
	var ret template.NodeTemplate
	req := newRequest(
		"getblocktemplate",
		templateRequest{
			Rules:      segwitRules,
			LongPollID: longPollID,
		},
	)
	if err := c.call(ctx, c.longPollTimeout, req, &ret); err != nil {
		return nil, err
	}
	return &ret, nil
}

// Propose asks the node to check a block without broadcasting it. An empty
// result means the block was accepted, anything else is the rejection reason.
func (c *Client) Propose(ctx context.Context, blockHex string) (string, error) {
	req := newRequest(
		"getblocktemplate",
		templateRequest{
			Mode:  "proposal",
			Rules: segwitRules,
			Data:  blockHex,
		},
	)
	return c.verdict(ctx, req)
}

// Submit hands a solved block to the node, with the same result convention
// as Propose
func (c *Client) Submit(ctx context.Context, blockHex string) (string, error) {
	return c.verdict(ctx, newRequest("submitblock", blockHex))
}

func (c *Client) verdict(ctx context.Context, req request) (string, error) {
	var ret *string
	if err := c.call(ctx, c.timeout, req, &ret); err != nil {
		return "", err
	}
	if ret == nil {
		return "", nil
	}
	return *ret, nil
}

// GetMemoryPool returns the raw hex of every transaction in the node's
// memory pool, keyed by txid
func (c *Client) GetMemoryPool(ctx context.Context) (template.Mempool, error) {
	var hashes []string
	if err := c.call(ctx, c.timeout, newRequest("getrawmempool"), &hashes); err != nil {
		return nil, err
	}
	ret := make(template.Mempool, len(hashes))
	if len(hashes) == 0 {
		return ret, nil
	}
	batch := make([]request, 0, len(hashes))
	for _, hash := range hashes {
		req := newRequest("getrawtransaction", hash)
		req.ID = hash
		batch = append(batch, req)
	}
	var resps []response
	if err := c.post(ctx, c.timeout, batch, &resps); err != nil {
		return nil, err
	}
	for _, resp := range resps {
		// Transactions can leave the memory pool between the two calls
		if resp.Error != nil {
			continue
		}
		var txHex string
		if err := json.Unmarshal(resp.Result, &txHex); err != nil {
			return nil, fmt.Errorf("%w: decode transaction %s: %s", ErrTransport, resp.ID, err)
		}
		ret[resp.ID] = txHex
	}
	return ret, nil
}

func (c *Client) call(ctx context.Context, timeout time.Duration, req request, result any) error {
	var resp response
	if err := c.post(ctx, timeout, req, &resp); err != nil {
		return err
	}
	if resp.Error != nil {
		return fmt.Errorf("%w: %s: %w", ErrRPC, req.Method, resp.Error)
	}
	if result == nil || len(resp.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Result, result); err != nil {
		return fmt.Errorf("%w: decode %s result: %s", ErrTransport, req.Method, err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, timeout time.Duration, payload any, dest any) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %s", ErrTransport, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.user != "" {
		httpReq.SetBasicAuth(c.user, c.password)
	}
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer httpResp.Body.Close()
	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %w", ErrTransport, err)
	}
	// bitcoind reports RPC errors with a non-200 status and a regular
	// JSON-RPC body, so try to decode before looking at the status
	if err := json.Unmarshal(data, dest); err != nil {
		if httpResp.StatusCode != http.StatusOK {
			return fmt.Errorf("%w: status %d: %s", ErrTransport, httpResp.StatusCode, string(data))
		}
		return fmt.Errorf("%w: decode response: %s", ErrTransport, err)
	}
	if httpResp.StatusCode != http.StatusOK {
		if resp, ok := dest.(*response); ok && resp.Error != nil {
			return nil
		}
		return fmt.Errorf("%w: status %d: %s", ErrTransport, httpResp.StatusCode, string(data))
	}
	return nil
}
