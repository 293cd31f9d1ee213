package deploy

import (
	"context"
	"fmt"

	"deploy-harness/internal/errors"
)

// Deployer is the deployment operation the harness drives. Argument count and
// meaning belong to the implementation; the harness only forwards them.
type Deployer interface {
	Deploy(ctx context.Context, args ...string) (interface{}, error)
}

// DeployerFunc adapts an ordinary function to the Deployer interface.
type DeployerFunc func(ctx context.Context, args ...string) (interface{}, error)

func (f DeployerFunc) Deploy(ctx context.Context, args ...string) (interface{}, error) {
	return f(ctx, args...)
}

// Outcome is the single result of one deployment. A non-nil Err means failure,
// in which case Value is ignored.
type Outcome struct {
	Value interface{}
	Err   error
}

func Success(value interface{}) Outcome {
	return Outcome{Value: value}
}

func Failure(err error) Outcome {
	if err == nil {
		err = fmt.Errorf("deployment failed without an error value")
	}
	return Outcome{Err: err}
}

func (o Outcome) Failed() bool {
	return o.Err != nil
}

// ForwardArgs returns the process arguments without the program name, in order
// and unmodified. The result never aliases argv.
func ForwardArgs(argv []string) []string {
	if len(argv) <= 1 {
		return []string{}
	}
	args := make([]string, len(argv)-1)
	copy(args, argv[1:])
	return args
}

// Invoke calls d exactly once on its own goroutine with args spread positionally.
// The returned channel delivers exactly one Outcome and is then closed. A panic
// in d is delivered as a failure.
func Invoke(ctx context.Context, d Deployer, args []string) <-chan Outcome {
	result := make(chan Outcome, 1)

	go func() {
		defer close(result)
		result <- call(ctx, d, args)
	}()

	return result
}

func call(ctx context.Context, d Deployer, args []string) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = Failure(errors.NewPanicError(r))
		}
	}()

	if d == nil {
		return Failure(fmt.Errorf("no deployer configured"))
	}

	value, err := d.Deploy(ctx, args...)
	if err != nil {
		return Failure(err)
	}
	return Success(value)
}
