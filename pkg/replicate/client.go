package replicate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aivisio/platform/pkg/common/logger"
)

// Client talks to the hosted inference provider. One instance is
// constructed at startup and injected into the services that need it.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewClient(baseURL, token string, httpClient *http.Client) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: httpClient,
	}
}

// CreateModelInput describes the destination model resource.
type CreateModelInput struct {
	Owner      string `json:"owner"`
	Name       string `json:"name"`
	Visibility string `json:"visibility"`
	Hardware   string `json:"hardware"`
}

// TrainingInput is the trainer-specific input payload.
type TrainingInput struct {
	Steps       int    `json:"steps"`
	Resolution  string `json:"resolution"`
	InputImages string `json:"input_images"`
	TriggerWord string `json:"trigger_word"`
}

// CreateTrainingInput requests a training run against a pinned trainer
// version, delivering terminal callbacks to Webhook.
type CreateTrainingInput struct {
	Destination         string        `json:"destination"`
	Input               TrainingInput `json:"input"`
	Webhook             string        `json:"webhook,omitempty"`
	WebhookEventsFilter []string      `json:"webhook_events_filter,omitempty"`
}

// Training is the provider's view of a training run.
type Training struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// PredictionInput requests a synchronous image generation.
type PredictionInput struct {
	Version string                 `json:"version,omitempty"`
	Input   map[string]interface{} `json:"input"`
}

type prediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  string          `json:"error"`
}

type webhookSecret struct {
	Key string `json:"key"`
}

// CreateModel creates the destination model resource for a training run.
func (c *Client) CreateModel(ctx context.Context, input CreateModelInput) error {
	return c.do(ctx, http.MethodPost, "/models", input, nil)
}

// CreateTraining starts a training run on the trainer identified by
// "owner/name:version".
func (c *Client) CreateTraining(ctx context.Context, trainer string, input CreateTrainingInput) (*Training, error) {
	owner, name, version, err := splitTrainerRef(trainer)
	if err != nil {
		return nil, err
	}

	var training Training
	path := fmt.Sprintf("/models/%s/%s/versions/%s/trainings", owner, name, version)
	if err := c.do(ctx, http.MethodPost, path, input, &training); err != nil {
		return nil, err
	}

	logger.Log.WithFields(map[string]interface{}{
		"training_id": training.ID,
		"status":      training.Status,
		"destination": input.Destination,
	}).Info("Training run created")
	return &training, nil
}

// Run executes a synchronous prediction and returns the output URLs.
func (c *Client) Run(ctx context.Context, model string, input map[string]interface{}) ([]string, error) {
	body := PredictionInput{Input: input}

	var path string
	if owner, name, version, err := splitTrainerRef(model); err == nil {
		// Fine-tuned models are addressed by pinned version.
		path = "/predictions"
		body.Version = version
		_ = owner
		_ = name
	} else {
		parts := strings.SplitN(model, "/", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid model reference %q", model)
		}
		path = fmt.Sprintf("/models/%s/%s/predictions", parts[0], parts[1])
	}

	var pred prediction
	if err := c.doWithHeaders(ctx, http.MethodPost, path, body, &pred, map[string]string{"Prefer": "wait"}); err != nil {
		return nil, err
	}
	if pred.Error != "" {
		return nil, fmt.Errorf("prediction failed: %s", pred.Error)
	}

	var urls []string
	if len(pred.Output) > 0 {
		if err := json.Unmarshal(pred.Output, &urls); err != nil {
			// Single-output models return a bare string.
			var single string
			if err := json.Unmarshal(pred.Output, &single); err != nil {
				return nil, fmt.Errorf("unexpected prediction output: %w", err)
			}
			urls = []string{single}
		}
	}
	return urls, nil
}

// GetWebhookSecret fetches the account's default webhook signing secret.
func (c *Client) GetWebhookSecret(ctx context.Context) (string, error) {
	var secret webhookSecret
	if err := c.do(ctx, http.MethodGet, "/webhooks/default/secret", nil, &secret); err != nil {
		return "", err
	}
	if secret.Key == "" {
		return "", fmt.Errorf("provider returned empty webhook secret")
	}
	return secret.Key, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	return c.doWithHeaders(ctx, method, path, body, out, nil)
}

func (c *Client) doWithHeaders(ctx context.Context, method, path string, body, out interface{}, headers map[string]string) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build provider request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("provider request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode provider response: %w", err)
		}
	}
	return nil
}

func splitTrainerRef(ref string) (owner, name, version string, err error) {
	slash := strings.Index(ref, "/")
	colon := strings.LastIndex(ref, ":")
	if slash <= 0 || colon <= slash+1 || colon == len(ref)-1 {
		return "", "", "", fmt.Errorf("invalid trainer reference %q", ref)
	}
	return ref[:slash], ref[slash+1 : colon], ref[colon+1:], nil
}
