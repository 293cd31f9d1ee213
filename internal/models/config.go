package models

import "time"

// Supported collaborator kinds for Config.Deployer.
const (
	DeployerHarness = "harness"
	DeployerGitHub  = "github"
)

type Config struct {
	Deployer string        `mapstructure:"deployer" yaml:"deployer"`
	Harness  HarnessConfig `mapstructure:"harness" yaml:"harness"`
	GitHub   GitHubConfig  `mapstructure:"github" yaml:"github"`
	Runtime  RuntimeConfig `mapstructure:"runtime" yaml:"runtime"`
}

type HarnessConfig struct {
	APIKey       string        `mapstructure:"api_key" yaml:"api_key"`
	AccountID    string        `mapstructure:"account_id" yaml:"account_id"`
	OrgID        string        `mapstructure:"org_id" yaml:"org_id"`
	ProjectID    string        `mapstructure:"project_id" yaml:"project_id"`
	PipelineID   string        `mapstructure:"pipeline_id" yaml:"pipeline_id"`
	BaseURL      string        `mapstructure:"base_url" yaml:"base_url"`
	ModuleType   string        `mapstructure:"module_type" yaml:"module_type"`
	ArgsVariable string        `mapstructure:"args_variable" yaml:"args_variable"`
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type GitHubConfig struct {
	AppID      int64  `mapstructure:"app_id" yaml:"app_id"`
	InstallID  int64  `mapstructure:"install_id" yaml:"install_id"`
	PrivateKey string `mapstructure:"private_key" yaml:"private_key"`
	Owner      string `mapstructure:"owner" yaml:"owner"`
	Repository string `mapstructure:"repository" yaml:"repository"`
	Workflow   string `mapstructure:"workflow" yaml:"workflow"`
	Ref        string `mapstructure:"ref" yaml:"ref"`
	ArgsInput  string `mapstructure:"args_input" yaml:"args_input"`
	// RunIDInput names the workflow input that receives the run's request id.
	// Empty means no such input is sent.
	RunIDInput string `mapstructure:"run_id_input" yaml:"run_id_input"`
}

type RuntimeConfig struct {
	LogLevel string `mapstructure:"log_level" yaml:"log_level"`
}

// ExecutionResult is what the Harness collaborator resolves with.
type ExecutionResult struct {
	Pipeline    string `json:"pipeline"`
	ExecutionID string `json:"executionId"`
	Status      string `json:"status"`
	URL         string `json:"url,omitempty"`
}

// DispatchResult is what the GitHub collaborator resolves with.
type DispatchResult struct {
	Repository string `json:"repository"`
	Workflow   string `json:"workflow"`
	Ref        string `json:"ref"`
	Status     string `json:"status"`
}
