package cmd

import (
	"bytes"
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"deploy-harness/internal/deploy"
	"deploy-harness/internal/errors"
	"deploy-harness/internal/models"
)

// stubDeployer swaps the configured collaborator for d for the duration of the test.
func stubDeployer(t *testing.T, d deploy.Deployer) *models.Config {
	t.Helper()
	var seen models.Config
	original := newDeployer
	newDeployer = func(config models.Config, _ *zap.SugaredLogger, _ string) (deploy.Deployer, error) {
		seen = config
		return d, nil
	}
	t.Cleanup(func() { newDeployer = original })
	return &seen
}

func execute(t *testing.T, argv ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer

	rootCmd := newRootCmd()
	rootCmd.SetArgs(deploy.ForwardArgs(append([]string{"deploy"}, argv...)))
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	err := rootCmd.ExecuteContext(context.Background())

	return stdout.String(), stderr.String(), err
}

func TestExecuteSuccessWithoutArgs(t *testing.T) {
	var got []string
	calls := 0
	stubDeployer(t, deploy.DeployerFunc(func(_ context.Context, args ...string) (interface{}, error) {
		calls++
		got = args
		return map[string]string{"status": "ok"}, nil
	}))

	stdout, stderr, err := execute(t)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, got)
	assert.Equal(t, "[deploy] deployed: {\"status\":\"ok\"}\n", stdout)
	assert.Empty(t, stderr)
}

func TestExecuteFailure(t *testing.T) {
	var got []string
	stubDeployer(t, deploy.DeployerFunc(func(_ context.Context, args ...string) (interface{}, error) {
		got = args
		return nil, stderrors.New("timeout")
	}))

	stdout, stderr, err := execute(t, "--env", "prod")
	require.Error(t, err)
	assert.True(t, errors.IsReported(err))
	assert.Equal(t, []string{"--env", "prod"}, got)
	assert.Equal(t, "[deploy] ERROR: timeout\n", stderr)
	assert.Empty(t, stdout)
}

func TestExecuteSuccessWithoutValue(t *testing.T) {
	stubDeployer(t, deploy.DeployerFunc(func(context.Context, ...string) (interface{}, error) {
		return nil, nil
	}))

	stdout, stderr, err := execute(t, "--stage", "dev")
	require.NoError(t, err)
	assert.Equal(t, "[deploy] deployed: null\n", stdout)
	assert.Empty(t, stderr)
}

func TestExecuteForwardsHelpAndFlagsVerbatim(t *testing.T) {
	var got []string
	stubDeployer(t, deploy.DeployerFunc(func(_ context.Context, args ...string) (interface{}, error) {
		got = args
		return "ok", nil
	}))

	argv := []string{"-h", "--help", "help", "--config=x.yaml", "", "two words"}
	stdout, _, err := execute(t, argv...)
	require.NoError(t, err)
	assert.Equal(t, argv, got)
	assert.Equal(t, "[deploy] deployed: \"ok\"\n", stdout)
}

func TestExecuteReportsDeployerConstructionFailure(t *testing.T) {
	t.Setenv("DEPLOY_DEPLOYER", "carrier-pigeon")

	stdout, stderr, err := execute(t, "x")
	require.Error(t, err)
	assert.True(t, errors.IsReported(err))
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "[deploy] ERROR: ")
	assert.Contains(t, stderr, "unsupported deployer: carrier-pigeon")
}

func TestExecuteReportsMissingHarnessSettings(t *testing.T) {
	t.Setenv("DEPLOY_DEPLOYER", "harness")
	t.Setenv("DEPLOY_HARNESS_API_KEY", "")

	_, stderr, err := execute(t)
	require.Error(t, err)
	assert.Contains(t, stderr, "[deploy] ERROR: [CONFIGURATION:MISSING_SETTING] harness.api_key is required")
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("DEPLOY_DEPLOYER", "GitHub")
	t.Setenv("DEPLOY_GITHUB_APP_ID", "123")
	t.Setenv("DEPLOY_GITHUB_INSTALL_ID", "456")
	t.Setenv("DEPLOY_GITHUB_OWNER", "acme")
	t.Setenv("DEPLOY_GITHUB_REPOSITORY", "web")
	t.Setenv("DEPLOY_GITHUB_WORKFLOW", "deploy.yml")
	t.Setenv("DEPLOY_HARNESS_TIMEOUT", "45s")
	t.Setenv("DEPLOY_LOG_LEVEL", "debug")
	t.Setenv("DEPLOY_GITHUB_RUN_ID_INPUT", "deploy_run")

	config, err := loadConfig()
	require.NoError(t, err)

	assert.Equal(t, models.DeployerGitHub, config.Deployer)
	assert.Equal(t, int64(123), config.GitHub.AppID)
	assert.Equal(t, int64(456), config.GitHub.InstallID)
	assert.Equal(t, "acme", config.GitHub.Owner)
	assert.Equal(t, "web", config.GitHub.Repository)
	assert.Equal(t, "deploy.yml", config.GitHub.Workflow)
	assert.Equal(t, "args", config.GitHub.ArgsInput)
	assert.Equal(t, "deploy_run", config.GitHub.RunIDInput)
	assert.Equal(t, 45*time.Second, config.Harness.Timeout)
	assert.Equal(t, "debug", config.Runtime.LogLevel)
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "deploy.yaml")
	content := `deployer: harness
harness:
  api_key: pat.acct.token
  account_id: acct
  org_id: default
  project_id: shop
  pipeline_id: deploy_web
  args_variable: deploy_args
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	t.Setenv("DEPLOY_CONFIG", path)
	t.Setenv("DEPLOY_HARNESS_PROJECT_ID", "checkout")

	config, err := loadConfig()
	require.NoError(t, err)

	assert.Equal(t, models.DeployerHarness, config.Deployer)
	assert.Equal(t, "pat.acct.token", config.Harness.APIKey)
	assert.Equal(t, "acct", config.Harness.AccountID)
	assert.Equal(t, "checkout", config.Harness.ProjectID, "environment overrides the file")
	assert.Equal(t, "deploy_web", config.Harness.PipelineID)
	assert.Equal(t, "deploy_args", config.Harness.ArgsVariable)
	assert.Equal(t, "https://app.harness.io", config.Harness.BaseURL)
	assert.Equal(t, "cd", config.Harness.ModuleType)
	assert.Equal(t, 30*time.Second, config.Harness.Timeout)
	assert.Equal(t, "warn", config.Runtime.LogLevel)
	assert.Empty(t, config.GitHub.RunIDInput, "run id input is opt-in")
}

func TestLoadConfigMissingExplicitFile(t *testing.T) {
	t.Setenv("DEPLOY_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := loadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file")
}

func TestExecuteInvalidLogLevelIsReported(t *testing.T) {
	t.Setenv("DEPLOY_LOG_LEVEL", "chatty")
	called := false
	stubDeployer(t, deploy.DeployerFunc(func(context.Context, ...string) (interface{}, error) {
		called = true
		return nil, nil
	}))

	_, stderr, err := execute(t)
	require.Error(t, err)
	assert.False(t, called)
	assert.Contains(t, stderr, "runtime.log_level")
}

func TestExecutePassesConfigToDeployerFactory(t *testing.T) {
	t.Setenv("DEPLOY_DEPLOYER", "github")
	seen := stubDeployer(t, deploy.DeployerFunc(func(context.Context, ...string) (interface{}, error) {
		return nil, nil
	}))

	_, _, err := execute(t)
	require.NoError(t, err)
	assert.Equal(t, models.DeployerGitHub, seen.Deployer)
}

func TestExecuteLogsForwardedArgsAtInfo(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	original := newLogger
	newLogger = func(string) (*zap.SugaredLogger, error) {
		return zap.New(core).Sugar(), nil
	}
	t.Cleanup(func() { newLogger = original })

	stubDeployer(t, deploy.DeployerFunc(func(context.Context, ...string) (interface{}, error) {
		return nil, nil
	}))

	_, _, err := execute(t, "--env", "prod")
	require.NoError(t, err)

	entries := logs.FilterMessage("Forwarding arguments").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	fields := entries[0].ContextMap()
	assert.Equal(t, []interface{}{"--env", "prod"}, fields["args"])
	assert.NotEmpty(t, fields["request_id"])
}

func TestHelpTextNamesOutputStreams(t *testing.T) {
	long := newRootCmd().Long
	assert.Contains(t, long, "on stdout")
	assert.Contains(t, long, "not stderr")
}
