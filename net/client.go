package net

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff"

	"powledger/api"
	"powledger/core"
)

// StatusError is a non-2xx answer from a peer.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Code, e.Message)
}

// HTTPClient talks to other nodes' api. It implements core.Registrar and
// core.ChainPusher.
type HTTPClient struct {
	http *http.Client

	// Difficulty is advertised alongside pushed chains.
	Difficulty int
	// RegisterRetries bounds the extra attempts Register makes.
	RegisterRetries uint64
}

var (
	_ core.Registrar   = (*HTTPClient)(nil)
	_ core.ChainPusher = (*HTTPClient)(nil)
)

// NewHTTPClient creates a client. Deadlines come from the caller's context.
func NewHTTPClient(difficulty int) *HTTPClient {
	return &HTTPClient{
		http:            &http.Client{},
		Difficulty:      difficulty,
		RegisterRetries: 2,
	}
}

// Register announces self to target, retrying transient failures with
// exponential backoff until ctx expires.
func (c *HTTPClient) Register(ctx context.Context, target, self core.Peer) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = time.Second

	attempt := 0
	op := func() error {
		attempt++
		_, err := c.do(ctx, http.MethodPost, target, "/api/nodes/register", self, nil)
		if err == nil {
			return nil
		}
		if se, ok := err.(*StatusError); ok && se.Code < 500 {
			return backoff.Permanent(err)
		}
		log.Debugf("[NET] register with %s attempt %d failed: %v", target, attempt, err)
		return err
	}
	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, c.RegisterRetries), ctx))
	if pe, ok := err.(*backoff.PermanentError); ok {
		return pe.Err
	}
	return err
}

// Neighbors fetches target's peer directory.
func (c *HTTPClient) Neighbors(ctx context.Context, target core.Peer) ([]core.Peer, error) {
	var peers []core.Peer
	if _, err := c.do(ctx, http.MethodGet, target, "/api/nodes/neighbors", nil, &peers); err != nil {
		return nil, err
	}
	return peers, nil
}

// PushChain posts chain to target's resolver and returns the chain target
// holds afterwards.
func (c *HTTPClient) PushChain(ctx context.Context, target core.Peer, chain []*core.Block) ([]*core.Block, error) {
	req := api.ResolveRequest{Chain: api.NewChainContent(chain, c.Difficulty)}
	var content api.ChainContent
	msg, err := c.do(ctx, http.MethodPost, target, "/api/nodes/resolve", req, &content)
	if err != nil {
		return nil, err
	}
	log.Debugf("[NET] %s: %s", target, msg)
	return content.Chain, nil
}

// FetchChain reads target's chain.
func (c *HTTPClient) FetchChain(ctx context.Context, target core.Peer) (api.ChainContent, error) {
	var content api.ChainContent
	_, err := c.do(ctx, http.MethodGet, target, "/api/chain", nil, &content)
	return content, err
}

// Submit sends a transaction to target and returns its reply.
func (c *HTTPClient) Submit(ctx context.Context, target core.Peer, tx core.Transaction) (string, error) {
	return c.do(ctx, http.MethodPost, target, "/api/transactions/new", tx, nil)
}

// Mine asks target to mine a block and returns its new tail.
func (c *HTTPClient) Mine(ctx context.Context, target core.Peer) (*core.Block, string, error) {
	var block core.Block
	msg, err := c.do(ctx, http.MethodPost, target, "/api/mine", nil, &block)
	if err != nil {
		return nil, "", err
	}
	return &block, msg, nil
}

// Pool lists target's pending transactions.
func (c *HTTPClient) Pool(ctx context.Context, target core.Peer) ([]api.PendingTransaction, error) {
	var txs []api.PendingTransaction
	_, err := c.do(ctx, http.MethodGet, target, "/api/pool", nil, &txs)
	return txs, err
}

// do performs one request and decodes the envelope content into out when
// out is non-nil. It returns the envelope message.
func (c *HTTPClient) do(ctx context.Context, method string, target core.Peer, path string, in, out any) (string, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return "", fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	url := "http://" + target.Addr() + path
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return "", err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var env api.RawEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		if resp.StatusCode/100 != 2 {
			return "", &StatusError{Code: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		return "", fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	if resp.StatusCode/100 != 2 {
		return env.Message, &StatusError{Code: resp.StatusCode, Message: env.Message}
	}
	if out != nil && len(env.Content) > 0 {
		if err := json.Unmarshal(env.Content, out); err != nil {
			return env.Message, fmt.Errorf("decode %s %s content: %w", method, path, err)
		}
	}
	return env.Message, nil
}
