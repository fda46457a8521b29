package config

import (
	"errors"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	AWSRegion   string `envconfig:"AWS_REGION" default:"ap-northeast-2"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LocalMode   bool   `envconfig:"LOCAL_MODE" default:"true"` // AWS 없이 로컬 실행 모드
	AWSEndpoint string `envconfig:"AWS_ENDPOINT"`              // localstack 등 로컬 에뮬레이터

	OrdersTableName   string `envconfig:"ORDERS_TABLE_NAME" default:"orders"`
	ProductsTableName string `envconfig:"PRODUCTS_TABLE_NAME" default:"products"`
	EventsTableName   string `envconfig:"EVENTS_TABLE_NAME" default:"events"`
	EventsEmailIndex  string `envconfig:"EVENTS_EMAIL_INDEX" default:"emailIndex"`

	KafkaBrokers      []string `envconfig:"KAFKA_BROKERS" default:"localhost:9092"`
	KafkaTopic        string   `envconfig:"KAFKA_TOPIC" default:"order-events"`
	KafkaProductTopic string   `envconfig:"KAFKA_PRODUCT_TOPIC" default:"product-events"`
	KafkaAuditGroup   string   `envconfig:"KAFKA_AUDIT_GROUP" default:"order-events-audit"`
	KafkaEmailGroup   string   `envconfig:"KAFKA_EMAIL_GROUP" default:"order-events-email"`

	EmailQueueURL    string        `envconfig:"SQS_EMAIL_QUEUE_URL"`
	EmailSource      string        `envconfig:"EMAIL_SOURCE" default:"orders@example.com"`
	EmailBatchSize   int           `envconfig:"EMAIL_BATCH_SIZE" default:"5"`
	EmailBatchWindow time.Duration `envconfig:"EMAIL_BATCH_WINDOW" default:"10s"`
	EmailMaxReceive  int           `envconfig:"EMAIL_MAX_RECEIVE" default:"3"`
	QueueVisibility  time.Duration `envconfig:"QUEUE_VISIBILITY" default:"30s"`
	QueueRetention   time.Duration `envconfig:"QUEUE_RETENTION" default:"96h"`
	DeadLetterRetain time.Duration `envconfig:"DLQ_RETENTION" default:"240h"`
	DirectMaxRetries int           `envconfig:"DIRECT_MAX_RETRIES" default:"2"`
	APITimeout       time.Duration `envconfig:"API_TIMEOUT" default:"2s"`
	ConsumerTimeout  time.Duration `envconfig:"CONSUMER_TIMEOUT" default:"5s"`
	ShutdownTimeout  time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"5s"`

	TLSEnabled      bool   `envconfig:"TLS_ENABLED" default:"false"`
	SpireSocketPath string `envconfig:"SPIRE_SOCKET_PATH" default:"unix:///run/spire/sockets/agent.sock"`
}

var ErrInvalidConfig = errors.New("invalid config")

// Load reads an optional .env file, then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.EmailBatchSize < 1 {
		return errors.Join(ErrInvalidConfig, errors.New("EMAIL_BATCH_SIZE must be positive"))
	}
	if c.EmailMaxReceive < 1 {
		return errors.Join(ErrInvalidConfig, errors.New("EMAIL_MAX_RECEIVE must be positive"))
	}
	if !c.LocalMode && c.EmailQueueURL == "" {
		return errors.Join(ErrInvalidConfig, errors.New("SQS_EMAIL_QUEUE_URL is required outside LOCAL_MODE"))
	}
	return nil
}
