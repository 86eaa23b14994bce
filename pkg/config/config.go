// Package config loads the flat environment-variable configuration surface
// every worker-fabric process reads at startup into a validated Settings
// struct.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Settings is the fully-resolved configuration for one process, whether it
// is the supervisor or a spawned processing/source worker.
type Settings struct {
	WorkerName string `validate:"required"`

	NumProcessingWorkers int `validate:"gte=0"`
	NumSourceWorkers     int `validate:"gte=0"`

	StorageAccountWorkerQueueURL string
	StorageWorkerQueueName       string `validate:"required"`

	CosmosDBEndpoint string
	CosmosDBName     string `validate:"required"`

	CosmosContainerPipelines    string `validate:"required"`
	CosmosContainerVaults       string `validate:"required"`
	CosmosContainerExecutions   string `validate:"required"`
	CosmosContainerLocks        string `validate:"required"`
	CosmosContainerCheckpoints  string `validate:"required"`

	BlobStorageAccountName   string
	BlobStorageContainerName string

	QueuePollIntervalSeconds       int `validate:"gte=1"`
	QueueVisibilityTimeoutSeconds  int `validate:"gte=1"`
	QueueMaxMessages               int `validate:"gte=1"`

	MaxTaskRetries     int `validate:"gte=0"`
	TaskTimeoutSeconds int `validate:"gte=1"`

	DefaultPollingIntervalSeconds int `validate:"gte=1"`
	SchedulerSleepIntervalSeconds int `validate:"gte=1"`
	LockTTLSeconds                int `validate:"gte=1"`

	APIEnabled bool
	APIHost    string
	APIPort    int `validate:"gte=0,lte=65535"`

	LogLevel string `validate:"oneof=debug info warn error"`
	Debug    bool

	// [EXPANSION] ambient/domain-stack additions, see SPEC_FULL.md §6.
	AzureTenantID     string
	AzureClientID     string
	AzureClientSecret string

	// DataDir roots the local/dev capability bindings (BoltRegistry,
	// FileBlobStore) used when no Cosmos/Storage endpoint is configured.
	DataDir string

	StatusAddr string

	ExecutionLookupMaxAttempts  int `validate:"gte=1"`
	ExecutionLookupRetryDelayMS int `validate:"gte=0"`

	BatchSize                       int `validate:"gte=1"`
	TaskShutdownGraceSeconds         int `validate:"gte=0"`
	ReconcilerSweepIntervalSeconds   int `validate:"gte=1"`
	ReconcilerStaleRunningSeconds    int `validate:"gte=1"`
	MaxParallel                     int `validate:"gte=1"`
}

var validate = validator.New()

// Load reads the process configuration from the environment, applies
// defaults for any unset key, and validates the result.
func Load() (*Settings, error) {
	s := &Settings{
		WorkerName: envString("WORKER_NAME", "contentflow-worker"),

		NumProcessingWorkers: envInt("NUM_PROCESSING_WORKERS", 2),
		NumSourceWorkers:     envInt("NUM_SOURCE_WORKERS", 1),

		StorageAccountWorkerQueueURL: envString("STORAGE_ACCOUNT_WORKER_QUEUE_URL", ""),
		StorageWorkerQueueName:       envString("STORAGE_WORKER_QUEUE_NAME", "contentflow-tasks"),

		CosmosDBEndpoint: envString("COSMOS_DB_ENDPOINT", ""),
		CosmosDBName:     envString("COSMOS_DB_NAME", "contentflow"),

		CosmosContainerPipelines:   envString("COSMOS_DB_CONTAINER_PIPELINES", "pipelines"),
		CosmosContainerVaults:      envString("COSMOS_DB_CONTAINER_VAULTS", "vaults"),
		CosmosContainerExecutions:  envString("COSMOS_DB_CONTAINER_EXECUTIONS", "vault_executions"),
		CosmosContainerLocks:       envString("COSMOS_DB_CONTAINER_LOCKS", "vault_execution_locks"),
		CosmosContainerCheckpoints: envString("COSMOS_DB_CONTAINER_CHECKPOINTS", "vault_crawl_checkpoints"),

		BlobStorageAccountName:   envString("BLOB_STORAGE_ACCOUNT_NAME", ""),
		BlobStorageContainerName: envString("BLOB_STORAGE_CONTAINER_NAME", "contentflow"),

		QueuePollIntervalSeconds:      envInt("QUEUE_POLL_INTERVAL_SECONDS", 5),
		QueueVisibilityTimeoutSeconds: envInt("QUEUE_VISIBILITY_TIMEOUT_SECONDS", 60),
		QueueMaxMessages:              envInt("QUEUE_MAX_MESSAGES", 10),

		MaxTaskRetries:     envInt("MAX_TASK_RETRIES", 3),
		TaskTimeoutSeconds: envInt("TASK_TIMEOUT_SECONDS", 300),

		DefaultPollingIntervalSeconds: envInt("DEFAULT_POLLING_INTERVAL_SECONDS", 300),
		SchedulerSleepIntervalSeconds: envInt("SCHEDULER_SLEEP_INTERVAL_SECONDS", 10),
		LockTTLSeconds:                envInt("LOCK_TTL_SECONDS", 60),

		APIEnabled: envBool("API_ENABLED", true),
		APIHost:    envString("API_HOST", "0.0.0.0"),
		APIPort:    envInt("API_PORT", 8080),

		LogLevel: strings.ToLower(envString("LOG_LEVEL", "info")),
		Debug:    envBool("DEBUG", false),

		AzureTenantID:     envString("AZURE_TENANT_ID", ""),
		AzureClientID:     envString("AZURE_CLIENT_ID", ""),
		AzureClientSecret: envString("AZURE_CLIENT_SECRET", ""),

		DataDir:    envString("DATA_DIR", "./contentflow-data"),
		StatusAddr: envString("STATUS_ADDR", "127.0.0.1:9090"),

		ExecutionLookupMaxAttempts:  envInt("EXECUTION_LOOKUP_MAX_ATTEMPTS", 5),
		ExecutionLookupRetryDelayMS: envInt("EXECUTION_LOOKUP_RETRY_DELAY_MS", 200),

		BatchSize:                     envInt("BATCH_SIZE", 25),
		TaskShutdownGraceSeconds:       envInt("TASK_SHUTDOWN_GRACE_SECONDS", 20),
		ReconcilerSweepIntervalSeconds: envInt("RECONCILER_SWEEP_INTERVAL_SECONDS", 60),
		ReconcilerStaleRunningSeconds:  envInt("RECONCILER_STALE_RUNNING_SECONDS", 1800),
		MaxParallel:                   envInt("MAX_PARALLEL", 4),
	}

	if err := validate.Struct(s); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if s.NumProcessingWorkers == 0 && s.NumSourceWorkers == 0 {
		return nil, fmt.Errorf("config: at least one of NUM_PROCESSING_WORKERS or NUM_SOURCE_WORKERS must be > 0")
	}
	return s, nil
}

func envString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envBool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
