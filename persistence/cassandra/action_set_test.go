package cassandra

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/ticket721/actionset/model"
)

func TestSearchStatement(t *testing.T) {
	before := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	for scenario, fn := range map[string]func(t *testing.T){
		"type and dispatch time": func(t *testing.T) {
			stmt, values := searchStatement(model.ActionSetFilter{StatusPrefix: "event:", DispatchedBefore: &before, Limit: 10})
			require.Equal(t, "SELECT "+actionSetColumns+" FROM action_set WHERE current_type=? AND dispatched_at<? ALLOW FILTERING", stmt)
			require.Equal(t, []interface{}{"event", before}, values)
		},
		"no filter": func(t *testing.T) {
			stmt, values := searchStatement(model.ActionSetFilter{})
			require.Equal(t, "SELECT "+actionSetColumns+" FROM action_set", stmt)
			require.Empty(t, values)
		},
		"complete has no type": func(t *testing.T) {
			stmt, values := searchStatement(model.ActionSetFilter{StatusPrefix: model.ACTION_SET_STATUS_COMPLETE})
			require.NotContains(t, stmt, "current_type")
			require.Empty(t, values)
		},
	} {
		t.Run(scenario, fn)
	}
}

func TestCurrentType(t *testing.T) {
	require.Equal(t, "event", currentType("event:in progress"))
	require.Equal(t, "input", currentType("input:waiting"))
	require.Equal(t, "", currentType(model.ACTION_SET_STATUS_COMPLETE))
}
