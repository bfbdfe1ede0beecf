package main

import "time"

type Config struct {
	Host           string `env:"HOST,default=0.0.0.0"`
	Port           int    `env:"PORT,default=8080"`
	DebugPort      int    `env:"DEBUG_PORT"`
	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`
	LogLevel       string `env:"LOG_LEVEL,default=info"`

	RouterQueueSize   int           `env:"ROUTER_QUEUE_SIZE,default=1024"`
	EventQueueSize    int           `env:"EVENT_QUEUE_SIZE,default=1024"`
	SessionBufferSize int           `env:"SESSION_BUFFER_SIZE,default=256"`
	SinkTimeout       time.Duration `env:"SINK_TIMEOUT,default=3s"`
	RestartInterval   time.Duration `env:"RESTART_INTERVAL,default=200ms"`
	MetricInterval    time.Duration `env:"METRIC_INTERVAL,default=30s"`

	AuthSecret        string        `env:"AUTH_SECRET,required=true"`
	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,default=24h"`

	MaxContentLength int `env:"MAX_CONTENT_LENGTH,default=4000"`
	HistoryPageSize  int `env:"HISTORY_PAGE_SIZE,default=50"`
	TimelineDepth    int `env:"TIMELINE_DEPTH,default=100"`

	CensoredWordsPath string `env:"CENSORED_WORDS_PATH"`
	CensoredChar      string `env:"CENSORED_CHARACTER,default=*"`

	AmqpURL           string        `env:"AMQP_URL"`
	AmqpExchange      string        `env:"AMQP_EXCHANGE,default=chat.events"`
	AmqpRetryAttempts int           `env:"AMQP_RETRY_ATTEMPTS,default=5"`
	AmqpRetryDelay    time.Duration `env:"AMQP_RETRY_DELAY,default=1s"`
}
