package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/ticket721/actionset/model"
	"gopkg.in/yaml.v3"
)

func testActionSet() *model.ActionSet {
	return model.NewActionSet().
		SetId("as-1").
		SetName("@test/flow").
		SetStatus("input:in progress").
		SetActions([]*model.Action{
			model.NewAction().SetType(model.ACTION_TYPE_INPUT).SetName("first").SetData(map[string]any{"name": "hello"}).SetStatus(model.ACTION_STATUS_IN_PROGRESS),
		})
}

func TestRender(t *testing.T) {
	for scenario, fn := range map[string]func(t *testing.T){
		"json": func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, render(&buf, testActionSet(), OUTPUT_JSON))
			var raw model.RawActionSet
			require.NoError(t, json.Unmarshal(buf.Bytes(), &raw))
			require.Equal(t, "as-1", raw.Id)
			require.Equal(t, `{"name":"hello"}`, raw.Actions[0].Data)
		},
		"yaml keeps stored field names": func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, render(&buf, testActionSet(), OUTPUT_YAML))
			var doc map[string]any
			require.NoError(t, yaml.Unmarshal(buf.Bytes(), &doc))
			require.Equal(t, "input:in progress", doc["current_status"])
			require.Equal(t, 0, doc["current_action"])
			actions := doc["actions"].([]any)
			require.Equal(t, `{"name":"hello"}`, actions[0].(map[string]any)["data"])
		},
		"unknown format": func(t *testing.T) {
			var buf bytes.Buffer
			require.Error(t, render(&buf, testActionSet(), "xml"))
		},
	} {
		t.Run(scenario, fn)
	}
}

func TestParseArgs(t *testing.T) {
	idx, err := parseIndex("2")
	require.NoError(t, err)
	require.Equal(t, 2, idx)
	_, err = parseIndex("second")
	require.Error(t, err)

	v, err := parseJSON("--data", `{"status":"paid"}`)
	require.NoError(t, err)
	require.Equal(t, map[string]any{"status": "paid"}, v)
	_, err = parseJSON("--data", `{status}`)
	require.ErrorContains(t, err, "--data")
}

func TestBuildCommand(t *testing.T) {
	var buf bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{
		"build", "@events/creation",
		"--caller", "organizer-1",
		"--args", `{"name":"Summer fest"}`,
		"--storage-impl", "memory",
		"--queue-impl", "memory",
	})
	require.NoError(t, cmd.Execute())

	var raw model.RawActionSet
	require.NoError(t, json.Unmarshal(buf.Bytes(), &raw))
	require.NotEmpty(t, raw.Id)
	require.Equal(t, "@events/creation", raw.Name)
	require.Equal(t, "input:in progress", raw.CurrentStatus)
	require.Equal(t, `{"name":"Summer fest"}`, raw.Actions[0].Data)
}

func TestUnknownRetryPolicy(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{
		"get", "as-1",
		"--storage-impl", "memory",
		"--queue-impl", "memory",
		"--retry-policy", "exponential",
	})
	require.ErrorContains(t, cmd.Execute(), "unknown retry policy")
}
