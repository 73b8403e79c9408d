package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestExecutorConfigRetryDelay(t *testing.T) {
	for scenario, fn := range map[string]func(t *testing.T){
		"defaults back off": func(t *testing.T) {
			conf := ExecutorConfig{}.WithDefaults()
			require.Equal(t, 3, conf.MaxAttempts)
			require.Equal(t, time.Minute, conf.JobTimeout)
			require.Equal(t, time.Second, conf.RetryDelay(1))
			require.Equal(t, 3*time.Second, conf.RetryDelay(3))
		},
		"fixed": func(t *testing.T) {
			conf := ExecutorConfig{RetryPolicy: RETRY_POLICY_FIXED, RetryAfter: 5 * time.Second}.WithDefaults()
			require.Equal(t, 5*time.Second, conf.RetryDelay(1))
			require.Equal(t, 5*time.Second, conf.RetryDelay(4))
		},
	} {
		t.Run(scenario, fn)
	}
}
