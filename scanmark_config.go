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
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/pelletier/go-toml/v2"
)

// Config 编辑器配置, 对应 TOML 文件
type Config struct {
	Tool       ToolConfig      `toml:"tool"`
	Render     RenderConfig    `toml:"render"`
	Signatures SignatureConfig `toml:"signatures"`
	Log        LogConfig       `toml:"log"`
}

// ToolConfig 新建注释的默认样式
type ToolConfig struct {
	Color       string  `toml:"color"`
	Fill        string  `toml:"fill"`
	StrokeWidth float64 `toml:"stroke_width"`
	TextSize    float64 `toml:"text_size"`
}

// RenderConfig 渲染分辨率与字体
type RenderConfig struct {
	PreviewDPI float64  `toml:"preview_dpi"`
	ExportDPI  float64  `toml:"export_dpi"`
	ScanDPI    float64  `toml:"scan_dpi"`
	FontDirs   []string `toml:"font_dirs"`
}

// SignatureConfig 签名库
type SignatureConfig struct {
	Dir string `toml:"dir"`
}

// LogConfig 日志
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		Tool:       ToolConfig{Color: "#000000", StrokeWidth: 2, TextSize: 16},
		Render:     RenderConfig{PreviewDPI: DefaultPreviewDPI, ExportDPI: DefaultExportDPI, ScanDPI: DefaultScanDPI},
		Signatures: SignatureConfig{Dir: "~/.scanmark/signatures"},
		Log:        LogConfig{Level: "info", Format: "text"},
	}
}

// LoadConfig 读取配置文件, 未设置的项保留默认值
// 入参: path 文件路径
// 返回: Config 配置, error 错误信息
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	p, err := homedir.Expand(path)
	if err != nil {
		return cfg, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return cfg, err
	}
	if err := DecodeConfig(bytes.NewReader(data), &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", p, err)
	}
	return cfg, nil
}

// DecodeConfig 解析 TOML 到 cfg, 拒绝未知字段
// 入参: r 输入流, cfg 目标配置
// 返回: error 错误信息
func DecodeConfig(r io.Reader, cfg *Config) error {
	dec := toml.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return err
	}
	return cfg.Validate()
}

// Validate 校验配置
func (c Config) Validate() error {
	var errs []error
	if _, err := ParseColor(c.Tool.Color); err != nil {
		errs = append(errs, fmt.Errorf("tool.color: %w", err))
	}
	if c.Tool.Fill != "" {
		if _, err := ParseColor(c.Tool.Fill); err != nil {
			errs = append(errs, fmt.Errorf("tool.fill: %w", err))
		}
	}
	if c.Tool.StrokeWidth <= 0 {
		errs = append(errs, fmt.Errorf("tool.stroke_width must be positive"))
	}
	if c.Tool.TextSize < MinTextSize || c.Tool.TextSize > MaxTextSize {
		errs = append(errs, fmt.Errorf("tool.text_size must be within [%g, %g]", MinTextSize, MaxTextSize))
	}
	for _, dpi := range []struct {
		name string
		v    float64
	}{
		{"render.preview_dpi", c.Render.PreviewDPI},
		{"render.export_dpi", c.Render.ExportDPI},
		{"render.scan_dpi", c.Render.ScanDPI},
	} {
		if dpi.v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", dpi.name))
		}
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json"))
	}
	return errors.Join(errs...)
}

// ToolStyle 转换为工具样式
func (c Config) ToolStyle() (ToolStyle, error) {
	col, err := ParseColor(c.Tool.Color)
	if err != nil {
		return ToolStyle{}, err
	}
	s := ToolStyle{Color: col, StrokeWidth: c.Tool.StrokeWidth, TextSize: c.Tool.TextSize}
	if c.Tool.Fill != "" {
		fill, err := ParseColor(c.Tool.Fill)
		if err != nil {
			return ToolStyle{}, err
		}
		s.Fill = &fill
	}
	return s, nil
}

// RasterOptions 打开源文档的选项
func (c Config) RasterOptions() []RasterOption {
	opts := []RasterOption{WithScanDPI(c.Render.ScanDPI)}
	var dirs []string
	for _, d := range c.Render.FontDirs {
		if p, err := homedir.Expand(d); err == nil {
			dirs = append(dirs, p)
		}
	}
	if len(dirs) > 0 {
		opts = append(opts, WithFontDirs(dirs...))
	}
	return opts
}

// EditorOptions 编辑器选项, 签名库由调用方另行创建
func (c Config) EditorOptions() ([]EditorOption, error) {
	style, err := c.ToolStyle()
	if err != nil {
		return nil, err
	}
	return []EditorOption{
		WithToolStyle(style),
		WithPreviewDPI(c.Render.PreviewDPI),
		WithEditorExportDPI(c.Render.ExportDPI),
		WithRasterOptions(c.RasterOptions()...),
	}, nil
}

// Logger 按配置创建日志
// 入参: w 输出流
// 返回: *slog.Logger 日志
func (c Config) Logger(w io.Writer) *slog.Logger {
	level, _ := parseLevel(c.Log.Level)
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Log.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}
