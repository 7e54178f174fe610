package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/retailgrid/pos-sync/internal/aws"
	"github.com/retailgrid/pos-sync/internal/handlers"
	"github.com/retailgrid/pos-sync/internal/syncer"
)

func buildEngine(ctx context.Context) (*syncer.Engine, error) {
	clients, err := aws.NewAWSClients(ctx)
	if err != nil {
		return nil, err
	}

	app := handlers.NewApp(handlers.HandlerConfig{
		DynamoDBClient:   clients.DynamoDB,
		SQSClient:        clients.SQS,
		CloudWatchClient: clients.CloudWatch,
		ProductsTable:    os.Getenv("PRODUCTS_TABLE"),
		OrdersTable:      os.Getenv("ORDERS_TABLE"),
		SyncQueueTable:   os.Getenv("SYNC_QUEUE_TABLE"),
		DevicesTable:     os.Getenv("DEVICES_TABLE"),
		EventsQueueURL:   os.Getenv("ORDER_EVENTS_QUEUE_URL"),
		MetricsNamespace: os.Getenv("METRICS_NAMESPACE"),
		ReceiptSecret:    os.Getenv("RECEIPT_SECRET"),
	})
	return app.Engine, nil
}

func main() {
	engine, err := buildEngine(context.Background())
	if err != nil {
		log.Fatalf("failed to init drainer: %v", err)
	}

	// If RUN_LOCAL=true, run the periodic drainer in-process instead of waiting
	// for scheduled Lambda invocations.
	if os.Getenv("RUN_LOCAL") == "true" {
		drainer := syncer.NewDrainer(engine, syncer.DefaultInterval)
		drainer.Start()
		log.Printf("local drainer started, interval=%s", syncer.DefaultInterval)

		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		<-stop

		drainer.Stop()
		return
	}

	// scheduled (EventBridge) trigger: one drain pass per invocation
	lambda.Start(func(ctx context.Context, _ events.CloudWatchEvent) error {
		res, err := engine.Drain(ctx)
		if err != nil {
			return err
		}
		log.Printf("[drainer] processed=%d failed=%d purged=%d skipped=%v",
			res.Processed, res.Failed, res.Purged, res.Skipped)
		return nil
	})
}
