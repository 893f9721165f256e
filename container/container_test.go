package container

import (
	"path/filepath"
	"testing"

	"github.com/funnelkit/journey/analytics"
	"github.com/funnelkit/journey/config"
	"github.com/stretchr/testify/require"
)

func TestInitCollector(t *testing.T) {
	d := NewDiContainer()
	require.NoError(t, d.Init(config.Config{StorageType: config.STORAGE_TYPE_INMEM}))
	_, ok := d.GetCollector().(analytics.NoopCollector)
	require.True(t, ok, "step outcomes are discarded unless a log file is configured")

	d = NewDiContainer()
	require.NoError(t, d.Init(config.Config{
		StorageType:      config.STORAGE_TYPE_INMEM,
		AnalyticsLogFile: filepath.Join(t.TempDir(), "steps.log"),
	}))
	_, ok = d.GetCollector().(*analytics.LogFileCollector)
	require.True(t, ok)
}
