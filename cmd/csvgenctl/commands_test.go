package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"csv-generator/search/estest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, srv *estest.Server, args ...string) (string, error) {
	t.Helper()
	root := t.TempDir()
	t.Setenv("CSV_GENERATOR_ROOT", root)
	t.Setenv("USER", "operator")
	cfg := fmt.Sprintf("server:\n  log_dir: %q\nelasticsearch:\n  addresses: [%q]\n", filepath.Join(root, "logs"), srv.URL)
	require.NoError(t, os.WriteFile(filepath.Join(root, "config.yaml"), []byte(cfg), 0644))

	var out bytes.Buffer
	a := &app{out: &out}
	cmd := newRootCmd(a)
	cmd.SetArgs(append([]string{"-o", "json"}, args...))
	err := cmd.Execute()
	if a.logger != nil {
		a.logger.Close()
	}
	return out.String(), err
}

func TestCLI_SetupGenerateHistory(t *testing.T) {
	srv := estest.NewServer(t)
	srv.PutSavedSearch("s1", "Error logs", []string{"message"},
		`{"indexRefName":"`+estest.IndexRefName+`","query":{"query":""},"filter":[]}`, "p1")
	srv.PutIndexPattern("p1", "logs", "@timestamp")
	srv.AddHits("logs", map[string]any{"@timestamp": "t1", "message": "m1"})

	out, err := runCLI(t, srv, "setup")
	require.NoError(t, err)
	assert.JSONEq(t, `{"index":"csvgenerator","created":true}`, out)

	out, err = runCLI(t, srv, "generate", "s1", "1", "2")
	require.NoError(t, err)
	var job map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &job))
	assert.Equal(t, "success", job["status"])
	assert.Equal(t, "Error_logs_1_2.csv", job["filename"])

	id := job["id"].(string)
	out, err = runCLI(t, srv, "download", id)
	require.NoError(t, err)
	assert.Equal(t, "@timestamp,message\nt1,m1\n", out)

	out, err = runCLI(t, srv, "history")
	require.NoError(t, err)
	var list []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "operator", list[0]["username"])
}

func TestCLI_GenerateFailureReturnsError(t *testing.T) {
	srv := estest.NewServer(t)
	srv.PutSavedSearch("s1", "Empty", []string{"_source"},
		`{"indexRefName":"`+estest.IndexRefName+`","query":{"query":""},"filter":[]}`, "p1")
	srv.PutIndexPattern("p1", "logs", "")

	_, err := runCLI(t, srv, "generate", "s1", "1", "2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "No Content.")
}

func TestCLI_BadOutputFormat(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd(&app{out: &out})
	cmd.SetArgs([]string{"-o", "yaml", "history"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported output format")
}
