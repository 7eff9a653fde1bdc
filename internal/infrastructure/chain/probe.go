package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chaostheory/staking-service/pkg/logger"
	"github.com/chaostheory/staking-service/pkg/metrics"
	"github.com/ethereum/go-ethereum/common/hexutil"
	resty "github.com/go-resty/resty/v2"
)

// Probe talks plain JSON-RPC to the node for liveness checks, outside the ethclient connection.
type Probe struct {
	url        string
	httpClient *resty.Client
	logger     *logger.Logger
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

func NewProbe(url string, timeout time.Duration, maxRetries int, retryDelay time.Duration, log *logger.Logger) *Probe {
	httpClient := resty.New().
		SetTimeout(timeout).
		SetRetryCount(maxRetries).
		SetRetryWaitTime(retryDelay).
		SetRetryMaxWaitTime(retryDelay * 3).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500 || r.StatusCode() == 429
		})

	return &Probe{
		url:        url,
		httpClient: httpClient,
		logger:     log,
	}
}

func (p *Probe) ChainID(ctx context.Context) (int64, error) {
	start := time.Now()
	resp, err := p.httpClient.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetBody(rpcRequest{JSONRPC: "2.0", ID: 1, Method: "eth_chainId", Params: []interface{}{}}).
		Post(p.url)

	success := err == nil && resp.StatusCode() == 200
	metrics.RecordChainRead("eth_chainId", time.Since(start).Seconds(), success)

	if err != nil {
		return 0, fmt.Errorf("failed to query chain id: %w", err)
	}

	if resp.StatusCode() != 200 {
		return 0, fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode(), string(resp.Body()))
	}

	var body rpcResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return 0, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if body.Error != nil {
		return 0, fmt.Errorf("rpc error %d: %s", body.Error.Code, body.Error.Message)
	}

	var hex string
	if err := json.Unmarshal(body.Result, &hex); err != nil {
		return 0, fmt.Errorf("unexpected chain id result %s: %w", string(body.Result), err)
	}

	id, err := hexutil.DecodeUint64(hex)
	if err != nil {
		return 0, fmt.Errorf("invalid chain id %q: %w", hex, err)
	}

	p.logger.Debugw("Probed chain id", "url", p.url, "chain_id", id)

	return int64(id), nil
}

// Check fails unless the node answers and reports the expected chain.
func (p *Probe) Check(ctx context.Context, expected int64) error {
	id, err := p.ChainID(ctx)
	if err != nil {
		return err
	}
	if id != expected {
		return fmt.Errorf("rpc endpoint is on chain %d, expected %d", id, expected)
	}
	return nil
}
