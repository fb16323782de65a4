package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Name        string      `yaml:"name" json:"name" env:"APP_NAME" env-default:"zentask"` // used for OTEL as an application identifier
	Server      Server      `yaml:"server" json:"server"`                                  // configuration of the operator REST server
	Tracing     Tracing     `yaml:"tracing" json:"tracing"`
	Persistence Persistence `yaml:"persistence" json:"persistence"`
	Processor   Processor   `yaml:"processor" json:"processor"`
	Cache       Cache       `yaml:"cache" json:"cache"`
	Script      Script      `yaml:"script" json:"script"`
}

type Server struct {
	Addr           string   `yaml:"addr" json:"addr" env:"REST_API_ADDR" env-default:":8080"`
	AllowedOrigins []string `yaml:"allowedOrigins" json:"allowedOrigins" env:"REST_API_ALLOWED_ORIGINS" env-separator:"," env-default:"*"`
}

type Tracing struct {
	Enabled bool `yaml:"enabled" json:"enabled" env:"TRACING_ENABLED" env-default:"false"`
	// Endpoint of the OTLP HTTP collector, the exporter default is used when empty
	Endpoint string `yaml:"endpoint" json:"endpoint" env:"TRACING_ENDPOINT"`
	// TransferHeaders are copied from incoming requests to the request span and context
	TransferHeaders []string `yaml:"transferHeaders" json:"transferHeaders" env:"TRACING_TRANSFER_HEADERS" env-separator:","`
}

type Persistence struct {
	// Path of the embedded rqlite database file
	Path        string        `yaml:"path" json:"path" env:"PERSISTENCE_PATH" env-default:"zentask.db"`
	BusyTimeout time.Duration `yaml:"busyTimeout" json:"busyTimeout" env:"PERSISTENCE_BUSY_TIMEOUT" env-default:"5s"`
	// WalCheckpointSize is the WAL size in bytes after which a write truncates the WAL into the database file
	WalCheckpointSize int64 `yaml:"walCheckpointSize" json:"walCheckpointSize" env:"PERSISTENCE_WAL_CHECKPOINT_SIZE" env-default:"16777216"`
}

type Processor struct {
	// NodeId is used by the snowflake id generator and has to be unique among processors sharing the database
	NodeId            int64         `yaml:"nodeId" json:"nodeId" env:"PROCESSOR_NODE_ID" env-default:"1"`
	LockTimeout       time.Duration `yaml:"lockTimeout" json:"lockTimeout" env:"PROCESSOR_LOCK_TIMEOUT" env-default:"10s"`
	LockRetryInterval time.Duration `yaml:"lockRetryInterval" json:"lockRetryInterval" env:"PROCESSOR_LOCK_RETRY_INTERVAL" env-default:"100ms"`
	LockStaleAfter    time.Duration `yaml:"lockStaleAfter" json:"lockStaleAfter" env:"PROCESSOR_LOCK_STALE_AFTER" env-default:"5m"`
	// MaxTaskDataSize is the ceiling in bytes for the serialized data of all tasks of one reconciliation pass
	MaxTaskDataSize       int  `yaml:"maxTaskDataSize" json:"maxTaskDataSize" env:"PROCESSOR_MAX_TASK_DATA_SIZE" env-default:"1073741824"`
	PersistPredictedTasks bool `yaml:"persistPredictedTasks" json:"persistPredictedTasks" env:"PROCESSOR_PERSIST_PREDICTED_TASKS" env-default:"true"`
	AutoCreateLaneGroups  bool `yaml:"autoCreateLaneGroups" json:"autoCreateLaneGroups" env:"PROCESSOR_AUTO_CREATE_LANE_GROUPS" env-default:"true"`
}

type Cache struct {
	DefinitionCacheSize int           `yaml:"definitionCacheSize" json:"definitionCacheSize" env:"CACHE_DEFINITION_SIZE" env-default:"200"`
	DefinitionCacheTTL  time.Duration `yaml:"definitionCacheTTL" json:"definitionCacheTTL" env:"CACHE_DEFINITION_TTL" env-default:"24h"`
	JsonDataCacheSize   int           `yaml:"jsonDataCacheSize" json:"jsonDataCacheSize" env:"CACHE_JSON_DATA_SIZE" env-default:"1000"`
	JsonDataCacheTTL    time.Duration `yaml:"jsonDataCacheTTL" json:"jsonDataCacheTTL" env:"CACHE_JSON_DATA_TTL" env-default:"10m"`
}

type Script struct {
	MinVMs int `yaml:"minVMs" json:"minVMs" env:"SCRIPT_MIN_VMS" env-default:"1"`
	MaxVMs int `yaml:"maxVMs" json:"maxVMs" env:"SCRIPT_MAX_VMS" env-default:"8"`
}

func (c Config) validate() error {
	var err error
	if c.Processor.LockRetryInterval <= 0 {
		err = errors.Join(err, fmt.Errorf("processor.lockRetryInterval has to be positive"))
	}
	if c.Processor.LockTimeout < c.Processor.LockRetryInterval {
		err = errors.Join(err, fmt.Errorf("processor.lockTimeout has to be at least processor.lockRetryInterval"))
	}
	if c.Script.MinVMs > c.Script.MaxVMs {
		err = errors.Join(err, fmt.Errorf("script.minVMs %d is greater than script.maxVMs %d", c.Script.MinVMs, c.Script.MaxVMs))
	}
	return err
}

// Default returns the configuration made of env-default values only.
func Default() Config {
	c := Config{}
	if err := cleanenv.ReadEnv(&c); err != nil {
		panic(err)
	}
	return c
}

func InitConfig() Config {
	c := Config{}
	var fileName string
	confFile := os.Getenv("CONFIG_FILE")
	if confFile == "" {
		wd, err := os.Getwd()
		if err != nil {
			panic(err)
		}
		fileName = fmt.Sprintf("%s/conf.yaml", wd)
	} else {
		fileName = confFile
	}
	var err error
	if _, perr := os.Stat(fileName); errors.Is(perr, os.ErrNotExist) {
		err = cleanenv.ReadEnv(&c)
		fmt.Printf("Configuration file %s not found. Reading config from ENV.\n", fileName)
	} else {
		err = cleanenv.ReadConfig(fileName, &c)
	}
	if err != nil {
		fmt.Printf("Error occurred while reading the configuration: %s\n", err)
		panic(err)
	}
	if err := c.validate(); err != nil {
		fmt.Printf("Invalid configuration: %s\n", err)
		panic(err)
	}
	return c
}
