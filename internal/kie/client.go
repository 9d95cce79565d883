package kie

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/digkill/imagestudio/internal/config"
)

// Provider is the provider name recorded on images generated through KIE.
const Provider = "kie"

type Model string

const (
	ModelFlux2         Model = "flux-2"
	ModelNanoBananaPro Model = "nano-banana-pro"
)

var ErrUnknownModel = errors.New("unknown model")

// Models lists the models this client can dispatch to.
func Models() []Model {
	return []Model{ModelFlux2, ModelNanoBananaPro}
}

func ParseModel(raw string) (Model, error) {
	for _, m := range Models() {
		if strings.EqualFold(raw, string(m)) {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownModel, raw)
}

type Client struct {
	apiKey       string
	baseURL      string
	httpClient   *http.Client
	log          *slog.Logger
	pollInterval time.Duration
	maxAttempts  int
}

type GenerateOptions struct {
	Prompt       string
	AspectRatio  string
	Resolution   string
	InputURLs    []string
	OutputFormat string
}

type Image struct {
	URL   string
	Bytes []byte
	Mime  string
}

func NewClient(cfg config.Config, log *slog.Logger) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	pollInterval := cfg.KIEPollInterval
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	maxAttempts := cfg.KIEMaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 60
	}

	return &Client{
		apiKey:  cfg.KIEAPIKey,
		baseURL: strings.TrimRight(cfg.KIEBaseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log:          log,
		pollInterval: pollInterval,
		maxAttempts:  maxAttempts,
	}
}

// Generate creates a KIE task for the model and waits for its result.
func (c *Client) Generate(ctx context.Context, model Model, opts GenerateOptions) (*Image, error) {
	var payload map[string]any
	switch model {
	case ModelFlux2:
		payload = flux2Payload(opts)
	case ModelNanoBananaPro:
		payload = nanoBananaPayload(opts)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownModel, model)
	}

	taskID, err := c.createTask(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	return c.pollTaskStatus(ctx, taskID)
}

func flux2Payload(opts GenerateOptions) map[string]any {
	name := "flux-2/pro-text-to-image"
	input := map[string]any{
		"prompt":       opts.Prompt,
		"aspect_ratio": opts.AspectRatio,
		"resolution":   opts.Resolution,
	}
	if len(opts.InputURLs) > 0 {
		name = "flux-2/pro-image-to-image"
		input["input_urls"] = opts.InputURLs
	}
	return map[string]any{
		"model": name,
		"input": input,
	}
}

func nanoBananaPayload(opts GenerateOptions) map[string]any {
	format := "png"
	if opts.OutputFormat != "" {
		format = strings.ToLower(opts.OutputFormat)
	}
	input := map[string]any{
		"prompt":        opts.Prompt,
		"aspect_ratio":  opts.AspectRatio,
		"resolution":    opts.Resolution,
		"output_format": format,
	}
	if len(opts.InputURLs) > 0 {
		input["image_input"] = opts.InputURLs
	}
	return map[string]any{
		"model": string(ModelNanoBananaPro),
		"input": input,
	}
}

func (c *Client) endpoint(path string, query url.Values) (string, error) {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base URL: %w", err)
	}
	ref := &url.URL{Path: path}
	if query != nil {
		ref.RawQuery = query.Encode()
	}
	return base.ResolveReference(ref).String(), nil
}

func (c *Client) createTask(ctx context.Context, payload map[string]any) (string, error) {
	fullURL, err := c.endpoint("/api/v1/jobs/createTask", nil)
	if err != nil {
		return "", err
	}
	c.log.Info("creating KIE task", "url", fullURL, "model", payload["model"])

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fullURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	rawBody, err := c.do(req)
	if err != nil {
		return "", err
	}

	var createResp struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
		Data struct {
			TaskID string `json:"taskId"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rawBody, &createResp); err != nil {
		return "", fmt.Errorf("decode create task response: %w (body=%s)", err, truncateBody(rawBody))
	}
	if createResp.Code != http.StatusOK {
		return "", fmt.Errorf("create task failed: code=%d msg=%s", createResp.Code, createResp.Msg)
	}
	if createResp.Data.TaskID == "" {
		return "", errors.New("empty taskId in response")
	}

	c.log.Info("KIE task created", "task_id", createResp.Data.TaskID)
	return createResp.Data.TaskID, nil
}

type taskStatus struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		TaskID     string `json:"taskId"`
		State      string `json:"state"`
		ResultJSON string `json:"resultJson"`
		FailCode   string `json:"failCode"`
		FailMsg    string `json:"failMsg"`
	} `json:"data"`
}

func (c *Client) pollTaskStatus(ctx context.Context, taskID string) (*Image, error) {
	fullURL, err := c.endpoint("/api/v1/jobs/recordInfo", url.Values{"taskId": {taskID}})
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return nil, fmt.Errorf("new request: %w", err)
		}
		rawBody, err := c.do(req)
		if err != nil {
			return nil, fmt.Errorf("get task status: %w", err)
		}

		var status taskStatus
		if err := json.Unmarshal(rawBody, &status); err != nil {
			return nil, fmt.Errorf("decode status response: %w (body=%s)", err, truncateBody(rawBody))
		}
		if status.Code != http.StatusOK {
			return nil, fmt.Errorf("get task status failed: code=%d msg=%s", status.Code, status.Msg)
		}

		switch status.Data.State {
		case "success":
			image, err := parseResult(status.Data.ResultJSON)
			if err != nil {
				return nil, err
			}
			c.log.Info("KIE task completed", "task_id", taskID, "attempt", attempt+1)
			return image, nil

		case "fail":
			failMsg := status.Data.FailMsg
			if failMsg == "" {
				failMsg = "unknown error"
			}
			c.log.Error("KIE task failed", "task_id", taskID, "fail_code", status.Data.FailCode, "fail_msg", failMsg)
			return nil, fmt.Errorf("task failed: %s (code: %s)", failMsg, status.Data.FailCode)

		case "waiting", "generating", "processing", "queued", "queueing":
			if attempt%10 == 0 {
				c.log.Info("KIE task waiting", "task_id", taskID, "attempt", attempt+1, "max_attempts", c.maxAttempts)
			}
			if attempt == c.maxAttempts-1 {
				break
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.pollInterval):
			}

		default:
			return nil, fmt.Errorf("unknown task state: %s", status.Data.State)
		}
	}

	return nil, fmt.Errorf("task timeout after %d attempts", c.maxAttempts)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request kie: %w", err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode >= 300 {
		c.log.Error("KIE request failed", "status", resp.StatusCode, "url", req.URL.String(), "body", truncateBody(rawBody))
		return nil, fmt.Errorf("kie error: status=%d body=%s", resp.StatusCode, truncateBody(rawBody))
	}
	return rawBody, nil
}

func parseResult(resultJSON string) (*Image, error) {
	if resultJSON == "" {
		return nil, errors.New("empty resultJson in success response")
	}
	var result struct {
		ResultURLs []string `json:"resultUrls"`
	}
	if err := json.Unmarshal([]byte(resultJSON), &result); err != nil {
		return nil, fmt.Errorf("parse resultJson: %w", err)
	}
	if len(result.ResultURLs) == 0 {
		return nil, errors.New("no resultUrls in result")
	}
	return &Image{URL: result.ResultURLs[0]}, nil
}

func truncateBody(body []byte) string {
	const limit = 512
	s := strings.TrimSpace(string(body))
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "…"
}
