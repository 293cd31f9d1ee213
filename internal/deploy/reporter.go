package deploy

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"deploy-harness/internal/errors"
)

const DefaultTag = "deploy"

// Exit statuses the harness terminates with.
const (
	ExitSuccess = 0
	ExitFailure = 1
)

// Reporter turns an Outcome into one diagnostic line and an exit status.
// Success lines go to Warn, failure lines to Err.
type Reporter struct {
	Warn   io.Writer
	Err    io.Writer
	Tag    string
	Logger *zap.SugaredLogger
}

func NewReporter(warn, errOut io.Writer, logger *zap.SugaredLogger) *Reporter {
	return &Reporter{
		Warn:   warn,
		Err:    errOut,
		Tag:    DefaultTag,
		Logger: logger,
	}
}

// Report writes the line for o and returns the exit status for the process.
// A success value JSON cannot encode turns the run into a failure.
func (r *Reporter) Report(o Outcome) int {
	if o.Failed() {
		return r.fail(o.Err)
	}

	line, err := serialize(o.Value)
	if err != nil {
		return r.fail(fmt.Errorf("result is not JSON serializable: %w", err))
	}

	fmt.Fprintf(r.warnWriter(), "[%s] deployed: %s\n", r.tag(), line)
	return ExitSuccess
}

func (r *Reporter) fail(err error) int {
	if r.Logger != nil {
		fields := []interface{}{"error", err}
		var deployErr *errors.DeployError
		if stderrors.As(err, &deployErr) {
			fields = append(fields,
				"category", deployErr.Category,
				"type", deployErr.Type,
				"hint", deployErr.GetUserFriendlyMessage(),
				"recoverable", deployErr.IsRecoverable())
		}
		r.Logger.Infow("Deployment failed", fields...)
	}

	fmt.Fprintf(r.errWriter(), "[%s] ERROR: %s\n", r.tag(), err.Error())
	return ExitFailure
}

// serialize renders v as compact single-line JSON. A panicking MarshalJSON is
// returned as an error.
func serialize(v interface{}) (line string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("marshal panicked: %v", rec)
		}
	}()

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

func (r *Reporter) tag() string {
	if r.Tag == "" {
		return DefaultTag
	}
	return r.Tag
}

func (r *Reporter) warnWriter() io.Writer {
	if r.Warn == nil {
		return os.Stdout
	}
	return r.Warn
}

func (r *Reporter) errWriter() io.Writer {
	if r.Err == nil {
		return os.Stderr
	}
	return r.Err
}

// Run forwards args to d, waits for its single outcome and reports it.
// It returns the exit status.
func Run(ctx context.Context, d Deployer, args []string, r *Reporter) int {
	outcome := <-Invoke(ctx, d, args)
	return r.Report(outcome)
}
