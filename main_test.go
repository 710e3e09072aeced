package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phasewatch/config"
	"phasewatch/models"
	"phasewatch/store"
)

func TestRunBatch_WritesScoresBack(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "batch.db")

	t0 := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	table := models.ReadingTable{}
	for i := 0; i < 34; i++ {
		angle := 10.0 + float64(i%3-1)
		if i == 32 {
			angle = 100
		}
		table.Rows = append(table.Rows, models.Row{
			Timestamp: t0.Add(time.Duration(i) * time.Minute),
			Angles:    map[string]*float64{"CAM1": models.Float(angle), "CAM2": models.Float(359)},
		})
	}

	db, err := store.Open(store.Config{Path: dbPath})
	require.NoError(t, err)
	_, err = db.InsertReadings(ctx, table)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	cfg := &config.Config{
		WindowSize:  30,
		Channels:    []string{"CAM1", "CAM2"},
		Threshold:   3,
		ErrorPolicy: "fail",
		Store:       config.StoreConfig{Path: dbPath, ChunkSize: 3, Limit: 5000},
	}
	require.NoError(t, runBatch(ctx, cfg))

	db, err = store.Open(store.Config{Path: dbPath})
	require.NoError(t, err)
	defer db.Close()

	v, ok, err := db.ScoreAt(ctx, t0.Add(32*time.Minute), "CAM1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Greater(t, v, 3.0)

	_, ok, err = db.ScoreAt(ctx, t0.Add(29*time.Minute), "CAM1")
	require.NoError(t, err)
	assert.False(t, ok)

	v, ok, err = db.ScoreAt(ctx, t0.Add(33*time.Minute), "CAM2")
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 0, v, 1e-6)
}

func TestEncryptCommand(t *testing.T) {
	key, err := config.GenerateKey()
	require.NoError(t, err)
	t.Setenv(config.KeyEnv, key)

	src := filepath.Join(t.TempDir(), "phasewatch.yaml")
	require.NoError(t, os.WriteFile(src, []byte("window_size: 5\n"), 0o600))

	cmd := newEncryptCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{src})
	require.NoError(t, cmd.Execute())

	dst := strings.TrimSuffix(src, ".yaml") + ".enc"
	assert.FileExists(t, dst)
	assert.Contains(t, out.String(), dst)

	cfg, err := config.LoadConfig(dst)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.WindowSize)
}
