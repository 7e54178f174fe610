package main

import (
	"context"
	"log"
	"net/http"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"

	"github.com/retailgrid/pos-sync/internal/aws"
	"github.com/retailgrid/pos-sync/internal/handlers"
	"github.com/retailgrid/pos-sync/internal/syncer"
)

func setupRouter(app *handlers.App) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	// health
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	handlers.RegisterProductRoutes(r, app)
	handlers.RegisterOrderRoutes(r, app)
	handlers.RegisterSyncRoutes(r, app)
	handlers.RegisterDeviceRoutes(r, app)

	return r
}

func main() {
	clients, err := aws.NewAWSClients(context.Background())

	if err != nil {
		log.Fatalf("failed to init aws clients: %v", err)
	}

	cfg := handlers.HandlerConfig{
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
	}

	app := handlers.NewApp(cfg)
	r := setupRouter(app)

	// if environment variable RUN_LOCAL is set to "true", run local HTTP server for development.
	if os.Getenv("RUN_LOCAL") == "true" {
		// in local mode the API process also owns the periodic drain
		drainer := syncer.NewDrainer(app.Engine, syncer.DefaultInterval)
		drainer.Start()
		defer drainer.Stop()

		addr := ":8080"
		if port := os.Getenv("PORT"); port != "" {
			addr = ":" + port
		}
		log.Printf("running local server on %s", addr)
		if err := r.Run(addr); err != nil {
			log.Fatalf("failed to run local server: %v", err)
		}
		return
	}

	// lambda adapter
	adapter := ginadapter.New(r)

	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (interface{}, error) {
		// the adapter handles proxying; use adapter.ProxyWithContext for proper context propagation
		return adapter.ProxyWithContext(ctx, req)
	})
}
