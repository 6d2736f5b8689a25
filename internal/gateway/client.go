package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/akwaba/rentpay/internal"
	gatewayDatamodel "github.com/akwaba/rentpay/internal/core/datamodel/gateway"
	intentDatamodel "github.com/akwaba/rentpay/internal/core/datamodel/intent"
)

// CallbackSigner produces the HMAC signature the callback ingress expects.
// In simulate mode the client signs its own callbacks with it.
type CallbackSigner interface {
	Sign(reference, status string, amount int64) string
}

// SettlementJob is a queued simulated settlement for one initiated intent.
type SettlementJob struct {
	Reference string
	Amount    int64
	Channel   string
}

type Worker struct {
	ID         int
	WorkerPool chan chan SettlementJob
	JobChannel chan SettlementJob
	Logger     *slog.Logger
}

func NewWorker(id int, workerPool chan chan SettlementJob, logger *slog.Logger) *Worker {
	return &Worker{
		ID:         id,
		WorkerPool: workerPool,
		JobChannel: make(chan SettlementJob),
		Logger:     logger,
	}
}

func (w *Worker) Start(ctx context.Context, wg *sync.WaitGroup, processFunc func(SettlementJob)) {
	wg.Add(1)
	go func() {
		defer wg.Done()

		for {
			w.WorkerPool <- w.JobChannel

			select {
			case job := <-w.JobChannel:
				w.Logger.Debug("worker processing settlement", "worker_id", w.ID, "reference", job.Reference)
				processFunc(job)
			case <-ctx.Done():
				w.Logger.Debug("worker shutting down", "worker_id", w.ID)
				return
			}
		}
	}()
}

// Client talks to the mobile-money gateway's collection API. With Simulate
// enabled it never leaves the process: initiation succeeds locally and a
// worker pool posts signed settlement callbacks back to our own ingress,
// which exercises the whole reconciliation path without a live gateway.
type Client struct {
	baseURL        string
	apiKey         string
	callbackURL    string
	returnURL      string
	requestTimeout time.Duration
	simulate       bool
	signer         CallbackSigner
	logger         *slog.Logger

	jobQueue   chan SettlementJob
	workerPool chan chan SettlementJob
	maxWorkers int
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	once       sync.Once
}

func NewClient(cfg internal.GatewayConfig, signer CallbackSigner, logger *slog.Logger) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	maxWorkers := cfg.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	jobQueueSize := cfg.JobQueueSize
	if jobQueueSize <= 0 {
		jobQueueSize = 100
	}

	workerPoolSize := cfg.WorkerPoolSize
	if workerPoolSize <= 0 {
		workerPoolSize = maxWorkers
	}

	requestTimeout := cfg.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = 15 * time.Second
	}

	client := &Client{
		baseURL:        cfg.BaseURL,
		apiKey:         cfg.APIKey,
		callbackURL:    cfg.CallbackURL,
		returnURL:      cfg.ReturnURL,
		requestTimeout: requestTimeout,
		simulate:       cfg.Simulate,
		signer:         signer,
		logger:         logger,

		maxWorkers: maxWorkers,
		jobQueue:   make(chan SettlementJob, jobQueueSize),
		workerPool: make(chan chan SettlementJob, workerPoolSize),
		ctx:        ctx,
		cancel:     cancel,
	}

	if client.simulate {
		client.startWorkerPool()
	}

	return client
}

func (c *Client) startWorkerPool() {
	c.once.Do(func() {
		for i := 0; i < c.maxWorkers; i++ {
			worker := NewWorker(i, c.workerPool, c.logger)
			worker.Start(c.ctx, &c.wg, c.processSettlementJob)
		}

		go c.dispatch()

		c.logger.Info("gateway simulation worker pool started",
			"max_workers", c.maxWorkers,
			"queue_size", cap(c.jobQueue))
	})
}

func (c *Client) dispatch() {
	c.wg.Add(1)
	defer c.wg.Done()

	for {
		select {
		case job := <-c.jobQueue:
			select {
			case jobChannel := <-c.workerPool:
				select {
				case jobChannel <- job:

				case <-c.ctx.Done():
					c.logger.Info("dispatcher shutting down")
					return
				}
			case <-c.ctx.Done():
				c.logger.Info("dispatcher shutting down")
				return
			}
		case <-c.ctx.Done():
			c.logger.Info("dispatcher shutting down")
			return
		}
	}
}

func (c *Client) Shutdown() {
	c.logger.Info("shutting down gateway client")
	c.cancel()
	c.wg.Wait()
	c.logger.Info("gateway client shutdown complete")
}

// Initiate hands an intent to the gateway for collection and returns the
// payer-facing instructions.
func (c *Client) Initiate(ctx context.Context, req *gatewayDatamodel.InitiationRequest) (*gatewayDatamodel.InitiationResponse, error) {
	if req.CallbackURL == "" {
		req.CallbackURL = c.callbackURL
	}
	if req.ReturnURL == "" {
		req.ReturnURL = c.returnURL
	}

	if c.simulate {
		return c.initiateSimulated(req)
	}

	return c.initiateRemote(ctx, req)
}

func (c *Client) initiateRemote(ctx context.Context, req *gatewayDatamodel.InitiationRequest) (*gatewayDatamodel.InitiationResponse, error) {
	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal initiation request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/collections", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create initiation request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	httpClient := &http.Client{Timeout: c.requestTimeout}
	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gateway initiation failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}

	var initiation gatewayDatamodel.InitiationResponse
	if err := json.NewDecoder(resp.Body).Decode(&initiation); err != nil {
		return nil, fmt.Errorf("failed to decode initiation response: %w", err)
	}

	c.logger.Info("collection initiated with gateway",
		"reference", initiation.Reference,
		"channel", req.Channel)

	return &initiation, nil
}

func (c *Client) initiateSimulated(req *gatewayDatamodel.InitiationRequest) (*gatewayDatamodel.InitiationResponse, error) {
	job := SettlementJob{
		Reference: req.Reference,
		Amount:    req.Amount,
		Channel:   req.Channel,
	}

	select {
	case c.jobQueue <- job:
		c.logger.Info("simulated settlement queued",
			"reference", req.Reference,
			"queue_length", len(c.jobQueue))
	default:
		c.logger.Warn("simulation queue full, rejecting initiation",
			"reference", req.Reference,
			"queue_capacity", cap(c.jobQueue))
		return nil, fmt.Errorf("gateway queue full, please try again later")
	}

	return &gatewayDatamodel.InitiationResponse{
		Reference:   req.Reference,
		RedirectURL: fmt.Sprintf("%s/pay/%s", c.baseURL, req.Reference),
	}, nil
}

func (c *Client) processSettlementJob(job SettlementJob) {
	delay := time.Duration(1+rand.Intn(4)) * time.Second

	select {
	case <-time.After(delay):

	case <-c.ctx.Done():
		c.logger.Info("settlement job cancelled", "reference", job.Reference)
		return
	}

	status := intentDatamodel.StatusPaid
	var failureReason string
	if rand.Float32() >= 0.9 {
		status = intentDatamodel.StatusFailed
		failureReason = "insufficient funds"
	}

	c.logger.Info("simulation: settlement decided",
		"reference", job.Reference,
		"status", status,
		"delay_seconds", delay.Seconds())

	c.sendSettlementCallback(job, status, failureReason)
}

func (c *Client) sendSettlementCallback(job SettlementJob, status, failureReason string) {
	payload := gatewayDatamodel.CallbackPayload{
		Reference: job.Reference,
		Status:    status,
		Amount:    job.Amount,
		Signature: c.signer.Sign(job.Reference, status, job.Amount),
	}
	if failureReason != "" {
		payload.Metadata = map[string]string{"failure_reason": failureReason}
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		c.logger.Error("simulation: failed to marshal callback", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(c.ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.callbackURL, bytes.NewBuffer(jsonData))
	if err != nil {
		c.logger.Error("simulation: failed to create callback request",
			"error", err,
			"reference", job.Reference)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	httpClient := &http.Client{}
	resp, err := httpClient.Do(req)
	if err != nil {
		c.logger.Error("simulation: settlement callback failed",
			"error", err,
			"reference", job.Reference)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		c.logger.Info("simulation: settlement callback delivered",
			"reference", job.Reference,
			"status_code", resp.StatusCode)
	} else {
		c.logger.Warn("simulation: settlement callback rejected",
			"reference", job.Reference,
			"status_code", resp.StatusCode)
	}
}
