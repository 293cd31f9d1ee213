package main

import (
	"context"
	"fmt"
	"os"

	"deploy-harness/internal/cmd"
	"deploy-harness/internal/errors"
)

func main() {
	ctx := context.Background()

	if err := cmd.Execute(ctx, os.Args); err != nil {
		if !errors.IsReported(err) {
			fmt.Fprintf(os.Stderr, "[deploy] ERROR: %v\n", err)
		}
		os.Exit(1)
	}
}
