package lease

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerConfig_NormalizeDerivesInterval(t *testing.T) {
	cfg := ManagerConfig{DefaultLeaseDuration: 60 * time.Second}
	normalized := cfg.normalize()
	assert.Equal(t, 40*time.Second, normalized.AutoRenewInterval)
}

func TestManagerConfig_ValidateAcceptsDefaults(t *testing.T) {
	cfg := DefaultManagerConfig().normalize()
	require.NoError(t, cfg.validate())
}

func TestManagerConfig_ValidateRejectsIntervalNotLessThanDuration(t *testing.T) {
	cfg := ManagerConfig{
		DefaultLeaseDuration:    10 * time.Second,
		AutoRenewInterval:       10 * time.Second,
		AutoRenewRetryInterval:  5 * time.Second,
		AutoRenewMaxRetries:     3,
		AutoRenewSafetyFraction: 0.9,
	}
	err := cfg.validate()
	require.Error(t, err)
	assert.True(t, IsKind(err, KindConfiguration))
}

// A tight retry horizon is not a construction-time rejection: spec.md's own
// defaults (I=40s, R=5s, M=3, S=0.9, D=60s) have a horizon that reaches the
// safety window, so construction must still succeed. Whether retries
// actually overrun the window is a runtime property checked by the engine
// (renewWithRetries in engine.go; TestEngine_ExhaustsRetriesAndMarksLost
// covers the retry-exhaustion path to Lost).
func TestManagerConfig_ValidateAllowsTightRetryHorizon(t *testing.T) {
	cfg := ManagerConfig{
		DefaultLeaseDuration:    10 * time.Second,
		AutoRenewInterval:       8 * time.Second,
		AutoRenewRetryInterval:  5 * time.Second,
		AutoRenewMaxRetries:     3,
		AutoRenewSafetyFraction: 0.9,
	}
	require.NoError(t, cfg.validate())
}

func TestManagerConfig_ValidateRejectsOutOfRangeSafetyFraction(t *testing.T) {
	cfg := DefaultManagerConfig().normalize()
	cfg.AutoRenewSafetyFraction = 0.99
	require.Error(t, cfg.validate())

	cfg.AutoRenewSafetyFraction = 0.4
	require.Error(t, cfg.validate())
}

func TestRetryHorizon(t *testing.T) {
	// R=5s, M=3 -> 5 + 10 + 20 = 35s
	assert.Equal(t, 35*time.Second, retryHorizon(5*time.Second, 3))
	assert.Equal(t, time.Duration(0), retryHorizon(5*time.Second, 0))
}

func TestClampNativeLeaseDuration(t *testing.T) {
	assert.Equal(t, nativeLeaseMinDuration, clampNativeLeaseDuration(1*time.Second))
	assert.Equal(t, nativeLeaseMaxDuration, clampNativeLeaseDuration(5*time.Minute))
	assert.Equal(t, 30*time.Second, clampNativeLeaseDuration(30*time.Second))
}
