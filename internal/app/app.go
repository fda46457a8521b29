package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/cloud-wave-best-zizon/order-events-service/internal/broker"
	"github.com/cloud-wave-best-zizon/order-events-service/internal/consumer"
	"github.com/cloud-wave-best-zizon/order-events-service/internal/domain"
	"github.com/cloud-wave-best-zizon/order-events-service/internal/events"
	"github.com/cloud-wave-best-zizon/order-events-service/internal/handler"
	"github.com/cloud-wave-best-zizon/order-events-service/internal/metrics"
	"github.com/cloud-wave-best-zizon/order-events-service/internal/notify"
	"github.com/cloud-wave-best-zizon/order-events-service/internal/repository"
	"github.com/cloud-wave-best-zizon/order-events-service/internal/repository/memory"
	"github.com/cloud-wave-best-zizon/order-events-service/internal/service"
	"github.com/cloud-wave-best-zizon/order-events-service/pkg/config"
	"github.com/cloud-wave-best-zizon/order-events-service/pkg/middleware"
	pkgtls "github.com/cloud-wave-best-zizon/order-events-service/pkg/tls"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	subscriptionAudit        = "order-audit"
	subscriptionProductAudit = "product-audit"
	subscriptionEmail        = "order-email"
)

// orderEntity also admits envelopes without an entity attribute, which
// decode as order events.
var orderEntity = []string{string(domain.EntityOrder), ""}

// auditFilter accepts every order lifecycle event.
func auditFilter() broker.Filter {
	return broker.Filter{
		events.AttributeEventType: {string(events.EventCreated), string(events.EventDeleted)},
		events.AttributeEntity:    orderEntity,
	}
}

func productAuditFilter() broker.Filter {
	return broker.Filter{
		events.AttributeEventType: {string(events.EventCreated), string(events.EventUpdated), string(events.EventDeleted)},
		events.AttributeEntity:    {string(domain.EntityProduct)},
	}
}

// emailFilter accepts order CREATED only.
func emailFilter() broker.Filter {
	return broker.Filter{
		events.AttributeEventType: {string(events.EventCreated)},
		events.AttributeEntity:    orderEntity,
	}
}

type stores struct {
	orders  service.OrderStore
	catalog service.ProductCatalog
	audit   handler.AuditQuerier
}

// App owns every component and its shutdown order.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	orderService *service.OrderService
	audit        handler.AuditQuerier
	poller       *consumer.BatchPoller
	// broker is only set in LOCAL_MODE
	broker       *broker.Broker

	starters []func()
	stoppers []func()
}

func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{cfg: cfg, logger: logger}

	var err error
	if cfg.LocalMode {
		err = a.wireLocal()
	} else {
		err = a.wireAWS(ctx)
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (a *App) deadLetterHook(queue string) func(broker.Delivery) {
	return func(d broker.Delivery) {
		metrics.MessagesDeadLettered.WithLabelValues(queue).Inc()
		a.logger.Error("Message moved to dead-letter queue",
			zap.String("queue", queue),
			zap.String("message_id", d.ID),
			zap.Int("receive_count", d.ReceiveCount))
	}
}

// wireLocal runs the whole pipeline in process: memory stores, the
// in-process broker and a memory queue with its own dead-letter queue.
func (a *App) wireLocal() error {
	cfg := a.cfg
	auditStore := memory.NewAuditStore()
	s := stores{
		orders:  memory.NewOrderStore(),
		catalog: memory.NewCatalog(demoProducts()...),
		audit:   auditStore,
	}

	b := broker.New(a.logger,
		broker.WithDirectRetries(cfg.DirectMaxRetries),
		broker.WithDeliveryTimeout(cfg.ConsumerTimeout),
	)

	dlq := broker.NewMemoryQueue(subscriptionEmail+"-dlq",
		broker.WithMaxReceive(0),
		broker.WithRetention(cfg.DeadLetterRetain),
		broker.WithQueueLogger(a.logger),
	)
	emailQueue := broker.NewMemoryQueue(subscriptionEmail,
		broker.WithMaxReceive(cfg.EmailMaxReceive),
		broker.WithVisibilityTimeout(cfg.QueueVisibility),
		broker.WithRetention(cfg.QueueRetention),
		broker.WithDeadLetterQueue(dlq),
		broker.WithDeadLetterHook(a.deadLetterHook(subscriptionEmail)),
		broker.WithQueueLogger(a.logger),
	)

	auditConsumer := consumer.NewAuditConsumer(auditStore, a.logger.Named("audit"))
	b.SubscribeDirect(subscriptionAudit, auditFilter(), auditConsumer.Handle)
	b.SubscribeDirect(subscriptionProductAudit, productAuditFilter(), auditConsumer.Handle)
	b.SubscribeQueue(subscriptionEmail, emailFilter(), emailQueue)

	publisher := events.NewEventPublisher(b, a.logger)
	a.wireCommon(s, publisher, emailQueue, notify.NewLogSender(a.logger.Named("notify")))
	a.broker = b

	a.stoppers = append(a.stoppers, func() {
		_ = b.Close()
		emailQueue.Close()
		dlq.Close()
	})
	return nil
}

func (a *App) wireAWS(ctx context.Context) error {
	cfg := a.cfg

	awsCfg, err := repository.LoadAWSConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to load AWS config: %w", err)
	}
	ddb := repository.NewDynamoDBClient(awsCfg)
	auditRepo := repository.NewAuditRepository(ddb, cfg.EventsTableName, cfg.EventsEmailIndex)
	s := stores{
		orders:  repository.NewOrderRepository(ddb, cfg.OrdersTableName),
		catalog: repository.NewCatalogRepository(ddb, cfg.ProductsTableName),
		audit:   auditRepo,
	}

	producer := events.NewKafkaProducer(events.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic), a.logger)
	publisher := events.NewEventPublisher(producer, a.logger)

	// redrive to the DLQ after EMAIL_MAX_RECEIVE is the SQS queue's policy
	emailQueue := broker.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.EmailQueueURL)

	auditConsumer := consumer.NewAuditConsumer(auditRepo, a.logger.Named("audit"))
	auditKC := events.NewKafkaConsumer(
		events.NewKafkaReader(cfg.KafkaBrokers, cfg.KafkaAuditGroup, cfg.KafkaTopic),
		events.ConsumerConfig{
			Name:       subscriptionAudit,
			Filter:     auditFilter(),
			Timeout:    cfg.ConsumerTimeout,
			MaxRetries: cfg.DirectMaxRetries,
			RetryDelay: 100 * time.Millisecond,
		},
		auditConsumer.Handle,
		a.logger,
	)

	// the product topic carries product envelopes only
	productAuditKC := events.NewKafkaConsumer(
		events.NewKafkaReader(cfg.KafkaBrokers, cfg.KafkaAuditGroup, cfg.KafkaProductTopic),
		events.ConsumerConfig{
			Name:              subscriptionProductAudit,
			Filter:            productAuditFilter(),
			Timeout:           cfg.ConsumerTimeout,
			MaxRetries:        cfg.DirectMaxRetries,
			RetryDelay:        100 * time.Millisecond,
			DefaultAttributes: map[string]string{events.AttributeEntity: string(domain.EntityProduct)},
		},
		auditConsumer.Handle,
		a.logger,
	)

	// the email group only forwards into SQS; batching happens on the queue side
	emailKC := events.NewKafkaConsumer(
		events.NewKafkaReader(cfg.KafkaBrokers, cfg.KafkaEmailGroup, cfg.KafkaTopic),
		events.ConsumerConfig{
			Name:       subscriptionEmail,
			Filter:     emailFilter(),
			Timeout:    cfg.ConsumerTimeout,
			MaxRetries: cfg.DirectMaxRetries,
			RetryDelay: 100 * time.Millisecond,
		},
		emailQueue.Send,
		a.logger,
	)

	sender := notify.NewSESSender(sesv2.NewFromConfig(awsCfg), cfg.EmailSource)
	a.wireCommon(s, publisher, emailQueue, sender)

	a.starters = append(a.starters, auditKC.Start, productAuditKC.Start, emailKC.Start)
	a.stoppers = append(a.stoppers, auditKC.Stop, productAuditKC.Stop, emailKC.Stop, func() {
		if err := producer.Close(); err != nil {
			a.logger.Error("Failed to close Kafka producer", zap.Error(err))
		}
	})
	return nil
}

func (a *App) wireCommon(s stores, publisher events.Publisher, emailQueue broker.Queue, sender notify.Sender) {
	a.orderService = service.NewOrderService(s.orders, s.catalog, publisher, a.logger)
	a.audit = s.audit

	notification := consumer.NewNotificationConsumer(sender, a.logger.Named("email"))
	a.poller = consumer.NewBatchPoller(emailQueue, notification.HandleBatch, consumer.PollerConfig{
		BatchSize: a.cfg.EmailBatchSize,
		Window:    a.cfg.EmailBatchWindow,
		Timeout:   a.cfg.ConsumerTimeout,
	}, a.logger.Named("email"))
}

// Router builds the HTTP surface.
func (a *App) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(a.logger))

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.Use(middleware.Timeout(a.cfg.APITimeout))
	{
		handler.NewOrderHandler(a.orderService, a.logger).Register(v1)
		handler.NewAuditHandler(a.audit, a.logger).Register(v1)
		v1.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "healthy"})
		})
	}
	return router
}

// Run serves until SIGINT/SIGTERM, then shuts everything down.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    ":" + a.cfg.Port,
		Handler: a.Router(),
	}

	tlsSource, err := pkgtls.NewSource(ctx, a.cfg.TLSEnabled, a.cfg.SpireSocketPath, a.logger)
	if err != nil {
		return err
	}
	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	if tlsSource != nil {
		defer tlsSource.Close()
		srv.TLSConfig = tlsSource.ServerConfig()
		go tlsSource.Watch(watchCtx, 30*time.Second)
	}

	for _, start := range a.starters {
		start()
	}
	a.poller.Start()

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("Starting server", zap.String("port", a.cfg.Port), zap.Bool("local_mode", a.cfg.LocalMode))
		var err error
		if srv.TLSConfig != nil {
			err = srv.ListenAndServeTLS("", "")
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serveErr:
		if err != nil {
			a.logger.Error("Server failed", zap.Error(err))
		}
	case <-ctx.Done():
	}

	a.logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("Server forced to shutdown", zap.Error(err))
	}

	a.poller.Stop()
	for _, stop := range a.stoppers {
		stop()
	}
	a.logger.Info("Server exited")
	return nil
}

func demoProducts() []domain.Product {
	return []domain.Product{
		{ID: "P1", ProductName: "Notebook", Code: "P1", Price: 10.00, Model: "NB-1"},
		{ID: "P2", ProductName: "Backpack", Code: "P2", Price: 25.50, Model: "BP-2"},
		{ID: "P3", ProductName: "Headset", Code: "P3", Price: 79.90, Model: "HS-3"},
	}
}
