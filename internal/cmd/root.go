package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"deploy-harness/internal/deploy"
	"deploy-harness/internal/errors"
	"deploy-harness/internal/github"
	"deploy-harness/internal/harness"
	"deploy-harness/internal/logging"
	"deploy-harness/internal/models"
)

const envPrefix = "DEPLOY"

var newLogger = logging.New

// newDeployer builds the collaborator selected by configuration. Tests replace it.
var newDeployer = func(config models.Config, logger *zap.SugaredLogger, requestID string) (deploy.Deployer, error) {
	switch config.Deployer {
	case models.DeployerHarness:
		client, err := harness.NewClient(config.Harness, logger)
		if err != nil {
			return nil, err
		}
		return client.WithRequestID(requestID), nil
	case models.DeployerGitHub:
		client, err := github.NewClient(config.GitHub, logger)
		if err != nil {
			return nil, err
		}
		return client.WithRequestID(requestID), nil
	default:
		return nil, errors.NewInvalidSettingError("deployer",
			fmt.Errorf("unsupported deployer: %s (supported: %s, %s)", config.Deployer, models.DeployerHarness, models.DeployerGitHub))
	}
}

func newRootCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deploy [args...]",
		Short: "Run one deployment and report its outcome",
		Long: `Forwards every argument, unchanged and in order, to the configured
deployment backend, waits for it to finish and reports the result:
- success: "[deploy] deployed: <json>" on stdout, exit status 0
- failure: "[deploy] ERROR: <error>" on stderr, exit status 1

The success line is written to stdout, not stderr: scrape stdout for results
and stderr for errors and logs. A result that cannot be encoded as JSON is
reported as a failure.

Configuration comes from deploy.yaml and DEPLOY_* environment variables.
Set DEPLOY_LOG_LEVEL=info to log the forwarded arguments.`,
		Args:               cobra.ArbitraryArgs,
		DisableFlagParsing: true,
		SilenceUsage:       true,
		SilenceErrors:      true,
		RunE:               runDeploy,
	}
}

// Execute runs one deployment with the arguments in argv (argv[0] is the program).
func Execute(ctx context.Context, argv []string) error {
	rootCmd := newRootCmd()
	rootCmd.SetArgs(deploy.ForwardArgs(argv))
	return rootCmd.ExecuteContext(ctx)
}

func runDeploy(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	config, configErr := loadConfig()

	logger, err := newLogger(config.Runtime.LogLevel)
	if err != nil {
		if configErr == nil {
			configErr = errors.NewInvalidSettingError("runtime.log_level", err)
		}
		logger, _ = newLogger("warn")
	}
	defer func() { _ = logger.Sync() }()

	requestID := uuid.NewString()
	logger = logger.With("request_id", requestID)
	logger.Infow("Forwarding arguments", "args", args, "count", len(args))

	reporter := deploy.NewReporter(cmd.OutOrStdout(), cmd.ErrOrStderr(), logger)

	var deployer deploy.Deployer
	if configErr == nil {
		deployer, err = newDeployer(config, logger, requestID)
	} else {
		err = configErr
	}
	if err != nil {
		logger.Debugw("Deployer unavailable", "deployer", config.Deployer, "error", err)
		reporter.Report(deploy.Failure(err))
		return errors.ErrReported
	}

	start := time.Now()
	code := deploy.Run(ctx, deployer, args, reporter)
	logger.Debugw("Deployment finished", "deployer", config.Deployer, "exit_code", code, "duration", time.Since(start))

	if code != deploy.ExitSuccess {
		return errors.ErrReported
	}
	return nil
}

func loadConfig() (models.Config, error) {
	var config models.Config
	v := viper.New()

	if cfgFile := os.Getenv(envPrefix + "_CONFIG"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("deploy")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			setDefaults(&config)
			return config, errors.NewInvalidSettingError("config file", err)
		}
	}

	if err := v.Unmarshal(&config); err != nil {
		setDefaults(&config)
		return config, errors.NewInvalidSettingError("config", err)
	}

	setDefaults(&config)
	return config, nil
}

func bindEnvVariables(v *viper.Viper) {
	v.BindEnv("deployer", "DEPLOY_DEPLOYER")

	// Harness configuration
	v.BindEnv("harness.api_key", "DEPLOY_HARNESS_API_KEY")
	v.BindEnv("harness.account_id", "DEPLOY_HARNESS_ACCOUNT_ID")
	v.BindEnv("harness.org_id", "DEPLOY_HARNESS_ORG_ID")
	v.BindEnv("harness.project_id", "DEPLOY_HARNESS_PROJECT_ID")
	v.BindEnv("harness.pipeline_id", "DEPLOY_HARNESS_PIPELINE_ID")
	v.BindEnv("harness.base_url", "DEPLOY_HARNESS_BASE_URL")
	v.BindEnv("harness.module_type", "DEPLOY_HARNESS_MODULE_TYPE")
	v.BindEnv("harness.args_variable", "DEPLOY_HARNESS_ARGS_VARIABLE")
	v.BindEnv("harness.timeout", "DEPLOY_HARNESS_TIMEOUT")

	// GitHub configuration
	v.BindEnv("github.app_id", "DEPLOY_GITHUB_APP_ID")
	v.BindEnv("github.install_id", "DEPLOY_GITHUB_INSTALL_ID")
	v.BindEnv("github.private_key", "DEPLOY_GITHUB_PRIVATE_KEY")
	v.BindEnv("github.owner", "DEPLOY_GITHUB_OWNER")
	v.BindEnv("github.repository", "DEPLOY_GITHUB_REPOSITORY")
	v.BindEnv("github.workflow", "DEPLOY_GITHUB_WORKFLOW")
	v.BindEnv("github.ref", "DEPLOY_GITHUB_REF")
	v.BindEnv("github.args_input", "DEPLOY_GITHUB_ARGS_INPUT")
	v.BindEnv("github.run_id_input", "DEPLOY_GITHUB_RUN_ID_INPUT")

	// Runtime configuration
	v.BindEnv("runtime.log_level", "DEPLOY_LOG_LEVEL")
}

func setDefaults(config *models.Config) {
	if config.Deployer == "" {
		config.Deployer = models.DeployerHarness
	}
	config.Deployer = strings.ToLower(strings.TrimSpace(config.Deployer))

	if config.Harness.BaseURL == "" {
		config.Harness.BaseURL = "https://app.harness.io"
	}
	if config.Harness.ModuleType == "" {
		config.Harness.ModuleType = "cd"
	}
	if config.Harness.ArgsVariable == "" {
		config.Harness.ArgsVariable = "args"
	}
	if config.Harness.Timeout == 0 {
		config.Harness.Timeout = 30 * time.Second
	}
	if config.GitHub.ArgsInput == "" {
		config.GitHub.ArgsInput = "args"
	}
	if config.Runtime.LogLevel == "" {
		config.Runtime.LogLevel = "warn"
	}
}
