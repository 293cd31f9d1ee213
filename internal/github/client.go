package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/google/go-github/v50/github"
	"go.uber.org/zap"

	"deploy-harness/internal/errors"
	"deploy-harness/internal/models"
)

// Client dispatches a GitHub Actions workflow as the deployment. It satisfies
// deploy.Deployer.
type Client struct {
	client    *github.Client
	config    models.GitHubConfig
	logger    *zap.SugaredLogger
	requestID string
}

func NewClient(config models.GitHubConfig, logger *zap.SugaredLogger) (*Client, error) {
	if err := validateConfig(config); err != nil {
		return nil, err
	}

	var transport *ghinstallation.Transport
	var err error

	if isKeyFile(config.PrivateKey) {
		transport, err = ghinstallation.NewKeyFromFile(
			http.DefaultTransport,
			config.AppID,
			config.InstallID,
			config.PrivateKey,
		)
	} else {
		privateKeyBytes, parseErr := parsePrivateKeyBytes(config.PrivateKey)
		if parseErr != nil {
			return nil, errors.NewInvalidSettingError("github.private_key", parseErr)
		}
		transport, err = ghinstallation.New(
			http.DefaultTransport,
			config.AppID,
			config.InstallID,
			privateKeyBytes,
		)
	}

	if err != nil {
		return nil, errors.NewInvalidSettingError("github.private_key", fmt.Errorf("failed to create GitHub App transport: %w", err))
	}

	return newClient(github.NewClient(&http.Client{Transport: transport}), config, logger), nil
}

func newClient(gh *github.Client, config models.GitHubConfig, logger *zap.SugaredLogger) *Client {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if config.ArgsInput == "" {
		config.ArgsInput = "args"
	}
	return &Client{
		client: gh,
		config: config,
		logger: logger.With("deployer", models.DeployerGitHub,
			"repository", fmt.Sprintf("%s/%s", config.Owner, config.Repository),
			"workflow", config.Workflow),
	}
}

// WithRequestID forwards id to the workflow in the configured run id input, if any.
func (c *Client) WithRequestID(id string) *Client {
	c.requestID = id
	return c
}

// Deploy triggers one workflow_dispatch event. The arguments are passed as a
// JSON array in the configured workflow input.
func (c *Client) Deploy(ctx context.Context, args ...string) (interface{}, error) {
	target := fmt.Sprintf("%s/%s", c.config.Owner, c.config.Repository)

	ref, err := c.resolveRef(ctx)
	if err != nil {
		return nil, c.categorize(err, target)
	}

	if args == nil {
		args = []string{}
	}
	encodedArgs, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("failed to encode arguments: %w", err)
	}

	inputs := map[string]interface{}{
		c.config.ArgsInput: string(encodedArgs),
	}
	if c.config.RunIDInput != "" && c.requestID != "" {
		inputs[c.config.RunIDInput] = c.requestID
	}

	c.logger.Debugw("Dispatching workflow", "ref", ref, "args", len(args))

	_, err = c.client.Actions.CreateWorkflowDispatchEventByFileName(ctx, c.config.Owner, c.config.Repository, c.config.Workflow,
		github.CreateWorkflowDispatchEventRequest{
			Ref:    ref,
			Inputs: inputs,
		})
	if err != nil {
		return nil, c.categorize(fmt.Errorf("failed to dispatch workflow %s: %w", c.config.Workflow, err), target)
	}

	c.logger.Infow("Workflow dispatched", "ref", ref)
	return models.DispatchResult{
		Repository: target,
		Workflow:   c.config.Workflow,
		Ref:        ref,
		Status:     "dispatched",
	}, nil
}

func (c *Client) resolveRef(ctx context.Context) (string, error) {
	if c.config.Ref != "" {
		return c.config.Ref, nil
	}

	repo, _, err := c.client.Repositories.Get(ctx, c.config.Owner, c.config.Repository)
	if err != nil {
		return "", fmt.Errorf("failed to look up default branch: %w", err)
	}
	if repo.GetDefaultBranch() == "" {
		return "", fmt.Errorf("repository %s/%s has no default branch", c.config.Owner, c.config.Repository)
	}
	return repo.GetDefaultBranch(), nil
}

func (c *Client) categorize(err error, target string) error {
	var rateErr *github.RateLimitError
	if stderrors.As(err, &rateErr) {
		return errors.NewRateLimitError(target, err)
	}
	var abuseErr *github.AbuseRateLimitError
	if stderrors.As(err, &abuseErr) {
		return errors.NewRateLimitError(target, err)
	}

	var respErr *github.ErrorResponse
	if stderrors.As(err, &respErr) && respErr.Response != nil {
		return errors.CategorizeHTTP(respErr.Response.StatusCode, respErr.Message, target, err)
	}

	return errors.CategorizeError(err, target)
}

func validateConfig(config models.GitHubConfig) error {
	if config.AppID == 0 {
		return errors.NewMissingSettingError("github.app_id")
	}
	if config.InstallID == 0 {
		return errors.NewMissingSettingError("github.install_id")
	}
	required := []struct {
		name  string
		value string
	}{
		{"github.private_key", config.PrivateKey},
		{"github.owner", config.Owner},
		{"github.repository", config.Repository},
		{"github.workflow", config.Workflow},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return errors.NewMissingSettingError(r.name)
		}
	}
	return nil
}

func isKeyFile(key string) bool {
	if strings.HasPrefix(key, "-----BEGIN") {
		return false
	}
	if strings.HasPrefix(key, "/") || strings.HasSuffix(key, ".pem") {
		return true
	}
	_, err := os.Stat(key)
	return err == nil
}

func parsePrivateKeyBytes(key string) ([]byte, error) {
	var keyBytes []byte
	var err error

	if strings.HasPrefix(key, "-----BEGIN") {
		keyBytes = []byte(key)
	} else {
		keyBytes, err = base64.StdEncoding.DecodeString(key)
		if err != nil {
			return nil, fmt.Errorf("failed to decode base64 private key: %w", err)
		}
	}

	return keyBytes, nil
}
