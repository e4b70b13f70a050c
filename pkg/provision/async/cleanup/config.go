package async_cleanup

import (
	"time"

	"github.com/cloudfusionadmin/filevaults/pkg/config"
	"github.com/cloudfusionadmin/filevaults/pkg/config/env"
	"github.com/cloudfusionadmin/filevaults/pkg/config/memory"
)

const (
	envConfigPrefix = "CLEANUP_SERVICE_"

	WorkerBatchSizeConfigEnvName = envConfigPrefix + "WORKER_BATCH_SIZE"
	defaultWorkerBatchSize       = 100

	// How long an in-flight attempt can sit untouched before the sweeper
	// considers it abandoned
	AttemptTTLConfigEnvName = envConfigPrefix + "ATTEMPT_TTL"
	defaultAttemptTTL       = 15 * time.Minute
)

type conf struct {
	workerBatchSize config.Uint64
	attemptTTL      config.Duration
}

// ConfigProvider defines how config values are pulled
type ConfigProvider func() *conf

// WithEnvConfigs returns configuration pulled from environment variables
func WithEnvConfigs() ConfigProvider {
	return func() *conf {
		return &conf{
			workerBatchSize: env.NewUint64Config(WorkerBatchSizeConfigEnvName, defaultWorkerBatchSize),
			attemptTTL:      env.NewDurationConfig(AttemptTTLConfigEnvName, defaultAttemptTTL),
		}
	}
}

type testOverrides struct {
	attemptTTL time.Duration
}

func withManualTestOverrides(overrides *testOverrides) ConfigProvider {
	return func() *conf {
		return &conf{
			workerBatchSize: memory.NewUint64Config(defaultWorkerBatchSize),
			attemptTTL:      memory.NewDurationConfig(overrides.attemptTTL),
		}
	}
}
