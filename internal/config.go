package internal

import (
	"fmt"
	"time"
)

type Config struct {
	Host     string `env:"HOST,default=0.0.0.0"`
	Port     int    `env:"PORT,default=5000"`
	GrpcPort int    `env:"GRPC_PORT,default=5001"`
	LogLevel string `env:"LOG_LEVEL,default=INFO"`

	StorageRoot  string `env:"STORAGE_ROOT,default=./rooms"`
	CorsOrigin   string `env:"CORS_ORIGIN,default=*"`
	MaxUploadMB  int64  `env:"MAX_UPLOAD_MB,default=32"`
	HistoryLimit *int   `env:"HISTORY_LIMIT"`
	SearchLimit  int    `env:"SEARCH_LIMIT,default=20"`

	GraceWindow          time.Duration `env:"GRACE_WINDOW,default=2s"`
	SinkTimeout          time.Duration `env:"SINK_TIMEOUT,default=1s"`
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=256"`
	BufferSize           int           `env:"BUFFER_SIZE,default=1024"`
	MaxMessageBytes      int64         `env:"MAX_MESSAGE_BYTES,default=2097152"`
	MessagesPerSecond    float64       `env:"MESSAGES_PER_SECOND,default=100"`
	MessageBurst         int           `env:"MESSAGE_BURST,default=200"`
	CharReplacement      string        `env:"CHARACTER_REPLACEMENT,default=*"`
	MetricInterval       time.Duration `env:"METRIC_INTERVAL,default=5s"`

	ExecutionTimeout     time.Duration `env:"EXECUTION_TIMEOUT,default=10s"`
	MaxExecutionsPerRoom int           `env:"MAX_EXECUTIONS_PER_ROOM,default=2"`
	MaxOutputBytes       int           `env:"MAX_OUTPUT_BYTES,default=65536"`
	PythonBin            string        `env:"PYTHON_BIN,default=python3"`
	NodeBin              string        `env:"NODE_BIN,default=node"`
	GCCBin               string        `env:"GCC_BIN,default=gcc"`
	GXXBin               string        `env:"GXX_BIN,default=g++"`
	JavacBin             string        `env:"JAVAC_BIN,default=javac"`
	JavaBin              string        `env:"JAVA_BIN,default=java"`
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
