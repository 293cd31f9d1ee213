package harness

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v2"

	"deploy-harness/internal/errors"
	"deploy-harness/internal/models"
)

const userAgent = "deploy-harness/1.0.0"

// Client starts Harness pipeline executions. It satisfies deploy.Deployer.
type Client struct {
	httpClient *http.Client
	config     models.HarnessConfig
	baseURL    *url.URL
	logger     *zap.SugaredLogger
	requestID  string
}

// RuntimeInput is the input set YAML sent along with an execution request.
type RuntimeInput struct {
	Pipeline RuntimePipeline `yaml:"pipeline"`
}

type RuntimePipeline struct {
	Identifier string            `yaml:"identifier"`
	Variables  []RuntimeVariable `yaml:"variables"`
}

type RuntimeVariable struct {
	Name  string `yaml:"name"`
	Type  string `yaml:"type"`
	Value string `yaml:"value"`
}

type ExecuteResponse struct {
	Status  string `json:"status"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Data    struct {
		PlanExecution struct {
			UUID   string `json:"uuid"`
			Status string `json:"status"`
		} `json:"planExecution"`
	} `json:"data"`
}

func NewClient(config models.HarnessConfig, logger *zap.SugaredLogger) (*Client, error) {
	if err := validateConfig(config); err != nil {
		return nil, err
	}

	baseURL, err := url.Parse(config.BaseURL)
	if err != nil {
		return nil, errors.NewInvalidSettingError("harness.base_url", err)
	}

	timeout := config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	httpClient := &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:    10,
			IdleConnTimeout: 30 * time.Second,
		},
	}

	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	return &Client{
		httpClient: httpClient,
		config:     config,
		baseURL:    baseURL,
		logger:     logger.With("deployer", models.DeployerHarness, "pipeline", config.PipelineID),
	}, nil
}

// WithRequestID sets the value sent as X-Request-ID on every call.
func (c *Client) WithRequestID(id string) *Client {
	c.requestID = id
	return c
}

// Deploy starts one execution of the configured pipeline. The arguments are
// passed as a JSON array in the configured pipeline variable.
func (c *Client) Deploy(ctx context.Context, args ...string) (interface{}, error) {
	inputYAML, err := c.runtimeInputYAML(args)
	if err != nil {
		return nil, fmt.Errorf("failed to build runtime input: %w", err)
	}

	query := url.Values{}
	query.Set("accountIdentifier", c.config.AccountID)
	query.Set("orgIdentifier", c.config.OrgID)
	query.Set("projectIdentifier", c.config.ProjectID)
	query.Set("moduleType", c.config.ModuleType)
	endpoint := fmt.Sprintf("/pipeline/api/pipeline/execute/%s?%s", url.PathEscape(c.config.PipelineID), query.Encode())

	c.logger.Debugw("Executing pipeline", "endpoint", endpoint, "args", len(args))

	req, err := c.newRequest(ctx, http.MethodPost, endpoint, bytes.NewBufferString(inputYAML))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/yaml")

	var resp ExecuteResponse
	if err := c.doRequest(req, &resp); err != nil {
		if httpErr, ok := err.(*HTTPError); ok {
			return nil, errors.CategorizeHTTP(httpErr.StatusCode, httpErr.Body, c.config.PipelineID, err)
		}
		return nil, errors.CategorizeError(fmt.Errorf("failed to execute pipeline: %w", err), c.config.PipelineID)
	}

	if !strings.EqualFold(resp.Status, "SUCCESS") {
		reason := resp.Message
		if reason == "" {
			reason = fmt.Sprintf("response status %q", resp.Status)
		}
		return nil, errors.NewExecutionRejectedError(c.config.PipelineID, reason)
	}

	result := models.ExecutionResult{
		Pipeline:    c.config.PipelineID,
		ExecutionID: resp.Data.PlanExecution.UUID,
		Status:      resp.Data.PlanExecution.Status,
		URL:         c.executionURL(resp.Data.PlanExecution.UUID),
	}

	c.logger.Infow("Pipeline execution started", "execution_id", result.ExecutionID, "status", result.Status)
	return result, nil
}

func (c *Client) runtimeInputYAML(args []string) (string, error) {
	if args == nil {
		args = []string{}
	}
	encodedArgs, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("failed to encode arguments: %w", err)
	}

	input := RuntimeInput{
		Pipeline: RuntimePipeline{
			Identifier: c.config.PipelineID,
			Variables: []RuntimeVariable{{
				Name:  c.config.ArgsVariable,
				Type:  "String",
				Value: string(encodedArgs),
			}},
		},
	}

	yamlBytes, err := yaml.Marshal(input)
	if err != nil {
		return "", fmt.Errorf("failed to marshal runtime input to YAML: %w", err)
	}
	return string(yamlBytes), nil
}

func (c *Client) executionURL(executionID string) string {
	if executionID == "" {
		return ""
	}
	u, err := c.baseURL.Parse(fmt.Sprintf("/ng/account/%s/%s/orgs/%s/projects/%s/pipelines/%s/executions/%s/pipeline",
		c.config.AccountID, c.config.ModuleType, c.config.OrgID, c.config.ProjectID, c.config.PipelineID, executionID))
	if err != nil {
		return ""
	}
	return u.String()
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	u, err := c.baseURL.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to parse endpoint: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "application/json")
	// PATs and SATs go in x-api-key, anything else is treated as a bearer token
	if strings.HasPrefix(c.config.APIKey, "pat.") || strings.HasPrefix(c.config.APIKey, "sat.") {
		req.Header.Set("x-api-key", c.config.APIKey)
	} else {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.config.APIKey))
	}
	req.Header.Set("Harness-Account", c.config.AccountID)
	req.Header.Set("User-Agent", userAgent)
	if c.requestID != "" {
		req.Header.Set("X-Request-ID", c.requestID)
	}

	return req, nil
}

func (c *Client) doRequest(req *http.Request, result interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &HTTPError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(body),
		}
	}

	if result != nil {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}

	return nil
}

func validateConfig(config models.HarnessConfig) error {
	required := []struct {
		name  string
		value string
	}{
		{"harness.api_key", config.APIKey},
		{"harness.account_id", config.AccountID},
		{"harness.org_id", config.OrgID},
		{"harness.project_id", config.ProjectID},
		{"harness.pipeline_id", config.PipelineID},
		{"harness.base_url", config.BaseURL},
		{"harness.module_type", config.ModuleType},
		{"harness.args_variable", config.ArgsVariable},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return errors.NewMissingSettingError(r.name)
		}
	}
	return nil
}

type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s - %s", e.StatusCode, e.Status, e.Body)
}
