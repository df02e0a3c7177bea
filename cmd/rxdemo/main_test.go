package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGoldie(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestCounter_Golden(t *testing.T) {
	var out bytes.Buffer
	err := newApp(&out).Run(context.Background(), []string{"rxdemo", "counter", "--increments", "3", "--fail-every", "2"})
	require.NoError(t, err)

	newGoldie(t).Assert(t, "counter", out.Bytes())
}

func TestCounter_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rxdemo.toml")
	require.NoError(t, os.WriteFile(path, []byte("[counter]\nincrements = 3\nfail_every = 2\n\n[effect]\npolicy = \"concat\"\n"), 0o600))

	var out bytes.Buffer
	err := newApp(&out).Run(context.Background(), []string{"rxdemo", "--config", path, "counter"})
	require.NoError(t, err)

	newGoldie(t).Assert(t, "counter", out.Bytes())
}

func TestCounter_RejectsUnknownPolicy(t *testing.T) {
	var out bytes.Buffer
	err := newApp(&out).Run(context.Background(), []string{"rxdemo", "counter", "--policy", "race"})
	assert.Error(t, err)
}

func TestBench_RendersEveryShape(t *testing.T) {
	var out bytes.Buffer
	err := newApp(&out).Run(context.Background(), []string{"rxdemo", "bench", "--width", "10", "--height", "2", "--iterations", "20"})
	require.NoError(t, err)

	for _, row := range []string{"propagate: 1 * 1", "propagate: 1 * 2", "propagate: 10 * 1", "propagate: 10 * 2"} {
		assert.Contains(t, out.String(), row)
	}
	assert.Contains(t, out.String(), "Query propagation")
}
