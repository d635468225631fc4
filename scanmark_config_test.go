// Copyright 2026 肖其顿 (XIAO QI DUN)
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package scanmark

import (
	"bytes"
	"image/color"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	style, err := cfg.ToolStyle()
	require.NoError(t, err)
	assert.Equal(t, color.NRGBA{A: 0xFF}, style.Color)
	assert.Nil(t, style.Fill)
	opts, err := cfg.EditorOptions()
	require.NoError(t, err)
	assert.Len(t, opts, 4)
}

func TestDecodeConfigOverrides(t *testing.T) {
	cfg := DefaultConfig()
	err := DecodeConfig(strings.NewReader(`
[tool]
color = "#1e40af"
fill = "#ffee0080"
text_size = 24

[render]
export_dpi = 150
font_dirs = ["/usr/share/fonts"]

[log]
level = "debug"
format = "json"
`), &cfg)
	require.NoError(t, err)
	assert.Equal(t, 150.0, cfg.Render.ExportDPI)
	assert.Equal(t, float64(DefaultPreviewDPI), cfg.Render.PreviewDPI)
	assert.Equal(t, 2.0, cfg.Tool.StrokeWidth)
	assert.Equal(t, []string{"/usr/share/fonts"}, cfg.Render.FontDirs)
	assert.Len(t, cfg.RasterOptions(), 2)

	style, err := cfg.ToolStyle()
	require.NoError(t, err)
	assert.Equal(t, color.NRGBA{R: 0x1e, G: 0x40, B: 0xaf, A: 0xFF}, style.Color)
	require.NotNil(t, style.Fill)
	assert.Equal(t, color.NRGBA{R: 0xff, G: 0xee, A: 0x80}, *style.Fill)
	assert.Equal(t, 24.0, style.TextSize)
}

func TestDecodeConfigUnknownField(t *testing.T) {
	cfg := DefaultConfig()
	err := DecodeConfig(strings.NewReader("[tool]\nshade = 3\n"), &cfg)
	assert.Error(t, err)
}

func TestConfigValidateReportsAll(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Tool.Color = "navy"
	cfg.Tool.StrokeWidth = 0
	cfg.Tool.TextSize = 500
	cfg.Render.ScanDPI = -1
	cfg.Log.Level = "loud"
	cfg.Log.Format = "xml"
	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"tool.color", "tool.stroke_width", "tool.text_size", "render.scan_dpi", "log.level", "log.format"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestConfigValidateStableOrder(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Render.PreviewDPI = 0
	cfg.Render.ExportDPI = -5
	cfg.Render.ScanDPI = 0
	want := "render.preview_dpi must be positive\nrender.export_dpi must be positive\nrender.scan_dpi must be positive"
	for range 20 {
		err := cfg.Validate()
		require.Error(t, err)
		assert.Equal(t, want, err.Error())
	}
}

func TestConfigLogger(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Log = LogConfig{Level: "warn", Format: "json"}
	var buf bytes.Buffer
	logger := cfg.Logger(&buf)
	logger.Info("hidden")
	logger.Warn("shown", slog.Int("page", 2))
	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"page":2`)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scanmark.toml")
	require.NoError(t, os.WriteFile(path, []byte("[signatures]\ndir = \"/tmp/sigs\"\n"), 0o644))
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/sigs", cfg.Signatures.Dir)
	assert.Equal(t, "info", cfg.Log.Level)

	require.NoError(t, os.WriteFile(path, []byte("[tool]\nstroke_width = -2\n"), 0o644))
	_, err = LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), path)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
