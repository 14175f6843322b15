// Command loadgen drives a learnmatch service with synthetic learners or
// writes them out as a seed file.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/okian/learnmatch/pkg/logger"
)

func main() {
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
