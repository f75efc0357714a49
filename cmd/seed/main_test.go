package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmapos/backend/internal/fixture"
)

func TestParseFlagsDefaults(t *testing.T) {
	opts := parseFlags(nil)
	def := fixture.DefaultOptions()

	assert.Equal(t, def.Days, opts.days)
	assert.Equal(t, def.Seed, opts.seed)
	assert.Equal(t, "2024-01-01", opts.start)
	assert.Equal(t, "json", opts.format)
	assert.False(t, opts.importDB)
}

func TestRunWritesReproducibleJSON(t *testing.T) {
	logger, _ := test.NewNullLogger()
	dir := t.TempDir()

	generate := func(name string) []byte {
		opts := parseFlags([]string{"-days", "2", "-seed", "42", "-out", filepath.Join(dir, name)})
		require.NoError(t, run(context.Background(), opts, logger))
		data, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err)
		return data
	}

	first := generate("a.json")
	second := generate("b.json")
	assert.Equal(t, first, second)

	var corpus fixture.Corpus
	require.NoError(t, json.Unmarshal(first, &corpus))
	assert.NotEmpty(t, corpus.Sales)
	assert.Len(t, corpus.Catalog, len(fixture.DefaultCatalog()))
}

func TestWriteAnalyticsCSV(t *testing.T) {
	opts := fixture.DefaultOptions()
	opts.Days = 1
	corpus, err := fixture.New(opts).Generate()
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, write(&buf, "csv", corpus, opts.Location))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("section,key,value\n")))

	assert.Error(t, write(&buf, "yaml", corpus, opts.Location))
}

func TestRunRejectsBadInput(t *testing.T) {
	logger, _ := test.NewNullLogger()

	opts := parseFlags([]string{"-tz", "Mars/Olympus"})
	assert.Error(t, run(context.Background(), opts, logger))

	opts = parseFlags([]string{"-start", "01/02/2024"})
	assert.Error(t, run(context.Background(), opts, logger))

	opts = parseFlags([]string{"-days", "-1", "-out", filepath.Join(t.TempDir(), "x.json")})
	assert.ErrorIs(t, run(context.Background(), opts, logger), fixture.ErrInvalidOptions)
}
