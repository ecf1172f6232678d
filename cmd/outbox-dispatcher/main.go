package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mmdatafocus/pos_backend/config"
	"github.com/mmdatafocus/pos_backend/workflow"
)

// outbox-dispatcher publishes committed domain events to Pub/Sub until
// interrupted. With -once it drains a single batch and exits.
func main() {
	once := flag.Bool("once", false, "Dispatch one batch and exit")
	batchSize := flag.Int("batch-size", 50, "Events claimed per poll")
	poll := flag.Duration("poll", 500*time.Millisecond, "Poll interval")
	requeueDead := flag.Bool("requeue-dead", false, "Move DEAD events back to PENDING before dispatching")
	flag.Parse()

	if !config.EventsEnabled() {
		fmt.Fprintln(os.Stderr, "PUBSUB_TOPIC_EVENTS or project id not set; nothing to publish to")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	logger := config.GetLogger()

	d := workflow.NewOutboxDispatcher(db, logger)
	d.BatchSize = *batchSize
	d.PollInterval = *poll

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *requeueDead {
		n, err := d.RequeueDead(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "requeue failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("requeued %d dead event(s)\n", n)
	}
	if *once {
		fmt.Printf("published %d event(s)\n", d.DispatchOnce(ctx))
		return
	}
	logger.WithField("dispatcher_id", d.DispatcherID).Info("outbox dispatcher started")
	d.Run(ctx)
	logger.WithField("dispatcher_id", d.DispatcherID).Info("outbox dispatcher stopped")
}
