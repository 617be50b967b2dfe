package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/Satianurag/movement-defi-project-sub000/internal/model"
	"github.com/sirupsen/logrus"
)

// SignerClient forwards built call descriptors to the transaction-signing
// collaborator and waits for the commit confirmation. This layer never
// retries submissions; retry policy, if any, belongs to the signer.
type SignerClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewSignerClient creates a client for the signing collaborator.
func NewSignerClient(baseURL string) *SignerClient {
	// Plain client on purpose: submissions are not idempotent
	return &SignerClient{
		baseURL:    baseURL,
		httpClient: &http.Client{},
	}
}

// Submit sends a payload for signing and submission, returning the
// transaction hash and commit status.
func (c *SignerClient) Submit(ctx context.Context, sender string, payload model.EntryFunctionPayload) (model.TxResult, error) {
	body, err := json.Marshal(map[string]interface{}{
		"sender":  sender,
		"payload": payload,
	})
	if err != nil {
		return model.TxResult{}, fmt.Errorf("error encoding submission: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/transactions", bytes.NewReader(body))
	if err != nil {
		return model.TxResult{}, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	logrus.Debugf("Submitting transaction %s for %s", payload.Function, sender)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return model.TxResult{}, fmt.Errorf("submission failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return model.TxResult{}, fmt.Errorf("signer error: status %d, body: %s", resp.StatusCode, string(raw))
	}

	var result model.TxResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return model.TxResult{}, fmt.Errorf("error decoding submission result: %w", err)
	}
	if !result.Success {
		return result, fmt.Errorf("transaction %s aborted: %s", result.Hash, result.VMStatus)
	}
	return result, nil
}
