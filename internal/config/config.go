package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Server        ServerConfig        `envconfig:"SERVER"`
	Elasticsearch ElasticsearchConfig `envconfig:"ES"`
	Buffer        BufferConfig        `envconfig:"BUFFER"`
	Parser        ParserConfig        `envconfig:"PARSER"`
	Meter         MeterConfig         `envconfig:"METER"`
	Alarm         AlarmConfig         `envconfig:"ALARM"`
	Logging       LogConfig           `envconfig:"LOG"`
}

type ServerConfig struct {
	GrpcAddress  string `envconfig:"GRPC_ADDR" default:":4317"`
	AdminAddress string `envconfig:"ADMIN_ADDR" default:":8080"`
}

type ElasticsearchConfig struct {
	Addresses []string `envconfig:"ADDRESSES" default:"http://localhost:9200"`
	Username  string   `envconfig:"USERNAME"`
	Password  string   `envconfig:"PASSWORD"`
	// Registry picks the name registry: "elasticsearch" or "memory".
	Registry string `envconfig:"REGISTRY" default:"elasticsearch"`
	// Storage picks the metrics storage: "elasticsearch" or "memory".
	Storage      string        `envconfig:"STORAGE" default:"elasticsearch"`
	WriteFlush   time.Duration `envconfig:"WRITE_FLUSH_INTERVAL" default:"5s"`
	CacheEntries int64         `envconfig:"REGISTRY_CACHE_ENTRIES" default:"100000"`
}

type BufferConfig struct {
	Directory    string        `envconfig:"DIR" default:"./buffer"`
	QueueSize    int           `envconfig:"QUEUE_SIZE" default:"1024"`
	ReadInterval time.Duration `envconfig:"READ_INTERVAL" default:"10s"`
	ReadBatch    int           `envconfig:"READ_BATCH" default:"100"`
}

type ParserConfig struct {
	Workers   int `envconfig:"WORKERS" default:"4"`
	QueueSize int `envconfig:"QUEUE_SIZE" default:"1024"`
}

type MeterConfig struct {
	Shards        int           `envconfig:"SHARDS" default:"16"`
	FlushInterval time.Duration `envconfig:"FLUSH_INTERVAL" default:"10s"`
	Downsamplings []string      `envconfig:"DOWNSAMPLINGS" default:"minute,hour,day"`
}

type AlarmConfig struct {
	RulesPath string `envconfig:"RULES"`
}

type LogConfig struct {
	Development bool `envconfig:"DEV" default:"false"`
}

// Load reads the configuration from environment variables named TRACELANE_<GROUP>_<KEY>,
// e.g. TRACELANE_PARSER_WORKERS.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("tracelane", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			GrpcAddress:  ":4317",
			AdminAddress: ":8080",
		},
		Elasticsearch: ElasticsearchConfig{
			Addresses:    []string{"http://localhost:9200"},
			Registry:     "elasticsearch",
			Storage:      "elasticsearch",
			WriteFlush:   5 * time.Second,
			CacheEntries: 100000,
		},
		Buffer: BufferConfig{
			Directory:    "./buffer",
			QueueSize:    1024,
			ReadInterval: 10 * time.Second,
			ReadBatch:    100,
		},
		Parser: ParserConfig{
			Workers:   4,
			QueueSize: 1024,
		},
		Meter: MeterConfig{
			Shards:        16,
			FlushInterval: 10 * time.Second,
			Downsamplings: []string{"minute", "hour", "day"},
		},
	}
}
