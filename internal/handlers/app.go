package handlers

import (
	"time"

	"github.com/retailgrid/pos-sync/internal/aws"
	"github.com/retailgrid/pos-sync/internal/catalog"
	"github.com/retailgrid/pos-sync/internal/devices"
	"github.com/retailgrid/pos-sync/internal/orders"
	"github.com/retailgrid/pos-sync/internal/receipts"
	"github.com/retailgrid/pos-sync/internal/syncer"
	"github.com/retailgrid/pos-sync/internal/syncqueue"
)

// HandlerConfig groups everything the serving layer needs.
type HandlerConfig struct {
	DynamoDBClient   aws.DynamoDBAPI
	SQSClient        aws.SQSAPI
	CloudWatchClient aws.CloudWatchAPI

	ProductsTable  string
	OrdersTable    string
	SyncQueueTable string
	DevicesTable   string

	EventsQueueURL   string // empty disables order-created notifications
	MetricsNamespace string // empty disables drain metrics
	ReceiptSecret    string
}

// App holds the wired components behind the HTTP surface. cmd binaries reuse
// the same wiring for the background drainer.
type App struct {
	Products *catalog.Store
	Orders   *orders.Store
	Queue    *syncqueue.Store
	Devices  *devices.Store
	Pipeline *orders.Pipeline
	Engine   *syncer.Engine
}

// NewApp wires stores, pipeline and engine from the config.
func NewApp(cfg HandlerConfig) *App {
	products := catalog.NewStore(cfg.DynamoDBClient, cfg.ProductsTable)
	orderStore := orders.NewStore(cfg.DynamoDBClient, cfg.OrdersTable)
	queue := syncqueue.NewStore(cfg.DynamoDBClient, cfg.SyncQueueTable)
	deviceStore := devices.NewStore(cfg.DynamoDBClient, cfg.DevicesTable)

	var publisher *aws.Publisher
	if cfg.SQSClient != nil && cfg.EventsQueueURL != "" {
		publisher = aws.NewPublisher(cfg.SQSClient, cfg.EventsQueueURL)
	}
	var metrics *aws.MetricsRecorder
	if cfg.CloudWatchClient != nil && cfg.MetricsNamespace != "" {
		metrics = aws.NewMetricsRecorder(cfg.CloudWatchClient, cfg.MetricsNamespace)
	}

	gen := receipts.NewGenerator(cfg.ReceiptSecret)

	return &App{
		Products: products,
		Orders:   orderStore,
		Queue:    queue,
		Devices:  deviceStore,
		Pipeline: orders.NewPipeline(orderStore, products, queue, gen, publisher),
		Engine:   syncer.NewEngine(queue, orderStore, products, metrics),
	}
}

// parseSince interprets a device's last-sync timestamp; a missing or bad value
// falls back to the trailing 24 hours.
func parseSince(raw string, now time.Time) time.Time {
	if raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			return t
		}
	}
	return now.Add(-24 * time.Hour)
}
