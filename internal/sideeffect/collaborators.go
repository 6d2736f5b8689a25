package sideeffect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// DocumentGenerator renders the lease contract for a settled lease-fee
// payment. The collaborator is idempotent per contract: re-invoking with the
// same contract id must not create a duplicate document.
type DocumentGenerator interface {
	GenerateLeaseContract(ctx context.Context, contractID int64, reference string) error
}

// SignatureRequester opens an e-signature session for the payer once the
// lease contract exists.
type SignatureRequester interface {
	RequestSignature(ctx context.Context, contractID int64, userID int64) error
}

type CollaboratorConfig struct {
	BaseURL        string
	APIKey         string
	RequestTimeout time.Duration
}

// DocumentClient calls the external document-generation service.
type DocumentClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewDocumentClient(cfg CollaboratorConfig, logger *slog.Logger) *DocumentClient {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &DocumentClient{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (c *DocumentClient) GenerateLeaseContract(ctx context.Context, contractID int64, reference string) error {
	payload := map[string]interface{}{
		"contract_id": contractID,
		"reference":   reference,
		"type":        "lease_contract",
	}

	if err := c.post(ctx, "/documents/generate", payload); err != nil {
		return fmt.Errorf("document generation failed for contract %d: %w", contractID, err)
	}

	c.logger.Info("lease contract generation requested",
		"contract_id", contractID,
		"reference", reference)
	return nil
}

func (c *DocumentClient) post(ctx context.Context, path string, payload map[string]interface{}) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("collaborator returned status %d", resp.StatusCode)
	}
	return nil
}

// ESignClient calls the external e-signature service.
type ESignClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewESignClient(cfg CollaboratorConfig, logger *slog.Logger) *ESignClient {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &ESignClient{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (c *ESignClient) RequestSignature(ctx context.Context, contractID int64, userID int64) error {
	payload := map[string]interface{}{
		"contract_id": contractID,
		"signer_id":   userID,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/signatures/sessions", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("signature session request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("e-signature service returned status %d", resp.StatusCode)
	}

	c.logger.Info("signing session opened",
		"contract_id", contractID,
		"signer_id", userID)
	return nil
}
