package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	cfgpkg "github.com/MoloMalteser/EilikCFW/internal/config"
)

// TestInitLogger_FileAndAppField 落盘日志带 app 字段
func TestInitLogger_FileAndAppField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "emu.log")
	logger, err := InitLogger("eilik-cfw-emulator", cfgpkg.LoggingConfig{
		Level:  "debug",
		Format: "json",
		File:   cfgpkg.LumberjackConfig{Filename: path, MaxSizeMB: 1},
	})
	require.NoError(t, err)

	logger.Info("boot check")
	_ = logger.Sync()

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"app":"eilik-cfw-emulator"`)
	assert.Contains(t, string(raw), "boot check")
}

// TestInitLogger_ConsoleOnly Filename 为空时不创建滚动文件，仅控制台输出
func TestInitLogger_ConsoleOnly(t *testing.T) {
	logger, err := InitLogger("", cfgpkg.LoggingConfig{Level: "warn", Format: "console"})
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))
}
