package cli

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const productsJSON = `[
	{"title": "Red Running Shoe", "description": "lightweight trainer", "merchant": "Acme"},
	{"title": "Blue Hiking Boot", "description": "waterproof leather boot", "merchant": "TrailCo"},
	"not a product"
]`

func writeProducts(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "products.json")
	require.NoError(t, os.WriteFile(path, []byte(productsJSON), 0o644))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--progress=false", "--log-level=error"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestIndexAndInspect(t *testing.T) {
	src := writeProducts(t)
	dir := t.TempDir()

	out, err := run(t, "index", src, "--snapshot-dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Indexed file "+src)
	assert.Contains(t, out, "2 indexed, 1 skipped")
	assert.Contains(t, out, "snapshot:   "+filepath.Join(dir, "gen_00000001.spdx"))

	out, err = run(t, "inspect", dir, "--top", "50")
	require.NoError(t, err)
	assert.Contains(t, out, "generation: 1")
	assert.Contains(t, out, "documents:  2")
	assert.Contains(t, out, "catch_all (")
	assert.Contains(t, out, "boot")
}

func TestQuery(t *testing.T) {
	src := writeProducts(t)

	out, err := run(t, "query", src, "-q", "running", "-q", "runing")
	require.NoError(t, err)
	assert.Contains(t, out, `"running": 1 hits`)
	assert.Contains(t, out, "Red Running Shoe")
	assert.Contains(t, out, `"runing": 0 hits`)
	assert.Contains(t, out, "Did you mean: running")

	out, err = run(t, "query", src, "-q", "merchant:trailco", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"title": "Blue Hiking Boot"`)
}

func TestQueryErrors(t *testing.T) {
	src := writeProducts(t)

	_, err := run(t, "query", src)
	assert.ErrorContains(t, err, "at least one -q query")

	_, err = run(t, "query", src, "-q", "(shoe")
	assert.Error(t, err)

	_, err = run(t, "index", filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestInspectEmptyDir(t *testing.T) {
	_, err := run(t, "inspect", t.TempDir())
	assert.ErrorContains(t, err, "no snapshots")
}

func TestBench(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("queryString") == "runing" {
			w.Header().Set("X-Did-You-Mean", "running")
		}
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	out, err := run(t, "bench", "--url", srv.URL, "-c", "2", "-d", "200ms", "-q", "shoe", "-q", "runing")
	require.NoError(t, err)
	assert.Contains(t, out, "=== Latency ===")
	assert.Contains(t, out, "  200: ")
	assert.NotContains(t, out, "empty results: 0\n")
}

func TestPercentile(t *testing.T) {
	lat := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	assert.Equal(t, time.Duration(5), percentile(lat, 50))
	assert.Equal(t, time.Duration(10), percentile(lat, 99))
	assert.Equal(t, time.Duration(0), percentile(nil, 50))
	assert.True(t, strings.HasPrefix(truncate("abcdef", 4), "abc"))
}
