package provision

import (
	"time"

	"github.com/cloudfusionadmin/filevaults/pkg/config"
	"github.com/cloudfusionadmin/filevaults/pkg/config/env"
	"github.com/cloudfusionadmin/filevaults/pkg/config/memory"
)

const (
	envConfigPrefix = "PROVISION_SERVICE_"

	CurrencyConfigEnvName = envConfigPrefix + "CURRENCY"
	defaultCurrency       = "usd"

	BasicPlanAmountConfigEnvName = envConfigPrefix + "BASIC_PLAN_AMOUNT"
	defaultBasicPlanAmount       = 500

	StandardPlanAmountConfigEnvName = envConfigPrefix + "STANDARD_PLAN_AMOUNT"
	defaultStandardPlanAmount       = 1500

	PremiumPlanAmountConfigEnvName = envConfigPrefix + "PREMIUM_PLAN_AMOUNT"
	defaultPremiumPlanAmount       = 5000

	MaxGatewayAttemptsConfigEnvName = envConfigPrefix + "MAX_GATEWAY_ATTEMPTS"
	defaultMaxGatewayAttempts       = 3

	GatewayBackoffConfigEnvName = envConfigPrefix + "GATEWAY_BACKOFF"
	defaultGatewayBackoff       = 100 * time.Millisecond

	GatewayMaxBackoffConfigEnvName = envConfigPrefix + "GATEWAY_MAX_BACKOFF"
	defaultGatewayMaxBackoff       = 2 * time.Second

	IdempotencyRetentionConfigEnvName = envConfigPrefix + "IDEMPOTENCY_RETENTION"
	defaultIdempotencyRetention       = 24 * time.Hour
)

type conf struct {
	currency config.String

	basicPlanAmount    config.Uint64
	standardPlanAmount config.Uint64
	premiumPlanAmount  config.Uint64

	maxGatewayAttempts config.Uint64
	gatewayBackoff     config.Duration
	gatewayMaxBackoff  config.Duration

	idempotencyRetention config.Duration
}

// ConfigProvider defines how config values are pulled
type ConfigProvider func() *conf

// WithEnvConfigs returns configuration pulled from environment variables
func WithEnvConfigs() ConfigProvider {
	return func() *conf {
		return &conf{
			currency: env.NewStringConfig(CurrencyConfigEnvName, defaultCurrency),

			basicPlanAmount:    env.NewUint64Config(BasicPlanAmountConfigEnvName, defaultBasicPlanAmount),
			standardPlanAmount: env.NewUint64Config(StandardPlanAmountConfigEnvName, defaultStandardPlanAmount),
			premiumPlanAmount:  env.NewUint64Config(PremiumPlanAmountConfigEnvName, defaultPremiumPlanAmount),

			maxGatewayAttempts: env.NewUint64Config(MaxGatewayAttemptsConfigEnvName, defaultMaxGatewayAttempts),
			gatewayBackoff:     env.NewDurationConfig(GatewayBackoffConfigEnvName, defaultGatewayBackoff),
			gatewayMaxBackoff:  env.NewDurationConfig(GatewayMaxBackoffConfigEnvName, defaultGatewayMaxBackoff),

			idempotencyRetention: env.NewDurationConfig(IdempotencyRetentionConfigEnvName, defaultIdempotencyRetention),
		}
	}
}

type testOverrides struct {
	maxGatewayAttempts   uint64
	idempotencyRetention time.Duration
}

func withManualTestOverrides(overrides *testOverrides) ConfigProvider {
	if overrides.maxGatewayAttempts == 0 {
		overrides.maxGatewayAttempts = defaultMaxGatewayAttempts
	}
	if overrides.idempotencyRetention == 0 {
		overrides.idempotencyRetention = defaultIdempotencyRetention
	}

	return func() *conf {
		return &conf{
			currency: memory.NewStringConfig(defaultCurrency),

			basicPlanAmount:    memory.NewUint64Config(defaultBasicPlanAmount),
			standardPlanAmount: memory.NewUint64Config(defaultStandardPlanAmount),
			premiumPlanAmount:  memory.NewUint64Config(defaultPremiumPlanAmount),

			maxGatewayAttempts: memory.NewUint64Config(overrides.maxGatewayAttempts),
			gatewayBackoff:     memory.NewDurationConfig(time.Millisecond),
			gatewayMaxBackoff:  memory.NewDurationConfig(time.Millisecond),

			idempotencyRetention: memory.NewDurationConfig(overrides.idempotencyRetention),
		}
	}
}
