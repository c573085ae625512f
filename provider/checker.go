// Package provider checks that a content provider is reachable and serves a chain before a chat is deployed
// against it.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/meow-io/go-hush/config"
	"go.uber.org/zap"
)

var ErrUnavailable = errors.New("provider: unavailable")

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      string      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

type readParams struct {
	Chain    int    `json:"chainId"`
	Contract string `json:"contract"`
	File     string `json:"file"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// The root directory of a store.
const rootFile = "0x0000000000000000000000000000000000000000000000000000000000000000"

type Checker struct {
	client *http.Client
	log    *zap.SugaredLogger
}

func NewChecker(c *config.Config) *Checker {
	return &Checker{
		client: &http.Client{Timeout: time.Duration(c.ProviderTimeoutMs) * time.Millisecond},
		log:    c.Logger("provider"),
	}
}

// Check reads the root of publicBubble on chain from the provider at url.
func (c *Checker) Check(ctx context.Context, chain int, url, publicBubble string) error {
	id := uuid.New().String()
	body, err := json.Marshal(&rpcRequest{
		JSONRPC: "2.0",
		ID:      id,
		Method:  "read",
		Params:  &readParams{Chain: chain, Contract: publicBubble, File: rootFile},
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, url, err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.log.Debugf("checking provider %s for chain %d", url, chain)
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s returned status %d", ErrUnavailable, url, resp.StatusCode)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, url, err)
	}
	r := &rpcResponse{}
	if err := json.Unmarshal(b, r); err != nil {
		return fmt.Errorf("%w: %s sent a malformed response: %v", ErrUnavailable, url, err)
	}
	if r.ID != id {
		return fmt.Errorf("%w: %s answered request %q, expected %q", ErrUnavailable, url, r.ID, id)
	}
	if r.Error != nil {
		return fmt.Errorf("%w: %s does not serve chain %d: %s (%d)", ErrUnavailable, url, chain, r.Error.Message, r.Error.Code)
	}
	return nil
}
