package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDispatchCache(t *testing.T) {
	for scenario, fn := range map[string]func(t *testing.T){
		"mark and check": func(t *testing.T) {
			ch := NewDispatchCache(time.Minute)
			now := time.Now()
			require.False(t, ch.RecentlyDispatched("a"))

			ch.MarkDispatched("a", now)
			require.True(t, ch.RecentlyDispatched("a"))
			require.False(t, ch.RecentlyDispatched("b"))
		},
		"entries expire": func(t *testing.T) {
			ch := NewDispatchCache(20 * time.Millisecond)
			ch.MarkDispatched("a", time.Now())
			require.Eventually(t, func() bool {
				return !ch.RecentlyDispatched("a")
			}, time.Second, 10*time.Millisecond)
		},
	} {
		t.Run(scenario, fn)
	}
}
