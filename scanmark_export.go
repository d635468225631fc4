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
	"context"
	"errors"
	"image"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/pdf"
)

// DefaultExportDPI 导出默认分辨率
const DefaultExportDPI = 300.0

// ExportOption 导出配置选项
type ExportOption func(*exportOptions)

type exportOptions struct {
	dpi    float64
	raster []RasterOption
	logger *slog.Logger
}

func newExportOptions(opts []ExportOption) exportOptions {
	o := exportOptions{dpi: DefaultExportDPI, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithExportDPI 设置导出分辨率
// 入参: dpi DPI值
// 返回: ExportOption 配置选项
func WithExportDPI(dpi float64) ExportOption {
	return func(o *exportOptions) {
		if dpi > 0 {
			o.dpi = dpi
		}
	}
}

// WithExportRasterOptions 设置导出时打开源文档的选项
func WithExportRasterOptions(opts ...RasterOption) ExportOption {
	return func(o *exportOptions) {
		o.raster = append(o.raster, opts...)
	}
}

// WithExportLogger 设置导出日志
func WithExportLogger(l *slog.Logger) ExportOption {
	return func(o *exportOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// ExportResult 导出结果
type ExportResult struct {
	Pages       int
	Annotations int
}

// PageSink 按页序接收合成后的页面
type PageSink func(index int, size Size, img *image.RGBA) error

// RenderAnnotatedPage 渲染单页并烘焙注释
// 入参: ctx 上下文, r 光栅器, set 注释集, i 页码, dpi 分辨率
// 返回: *image.RGBA 合成位图, error 错误信息
func RenderAnnotatedPage(ctx context.Context, r *Rasterizer, set *PageSet, i int, dpi float64) (*image.RGBA, error) {
	page, err := r.RenderDPI(ctx, i, dpi)
	if err != nil {
		return nil, err
	}
	return compose(page, set.Items(i), nil)
}

// FlattenPages 逐页渲染并烘焙注释, 每页开始前检查取消
// 入参: ctx 上下文, r 光栅器, set 注释集, sink 页面接收者, opts 配置选项
// 返回: ExportResult 导出结果, error 错误信息
func FlattenPages(ctx context.Context, r *Rasterizer, set *PageSet, sink PageSink, opts ...ExportOption) (ExportResult, error) {
	o := newExportOptions(opts)
	var res ExportResult
	n := r.PageCount()
	if n == 0 {
		return res, &ExportError{Page: -1, Err: ErrClosed}
	}
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return res, &ExportError{Page: i, Err: err}
		}
		size, err := r.PageSize(i)
		if err != nil {
			return res, &ExportError{Page: i, Err: err}
		}
		img, err := RenderAnnotatedPage(ctx, r, set, i, o.dpi)
		if err != nil {
			return res, &ExportError{Page: i, Err: err}
		}
		if err := sink(i, size, img); err != nil {
			return res, &ExportError{Page: i, Err: err}
		}
		res.Pages++
		res.Annotations += set.Len(i)
	}
	return res, nil
}

// Flatten 导出为多页PDF, 每页为一张位图
// 全部页面成功后才写入 w, 失败时不产生任何输出
// 入参: ctx 上下文, src 源文档, set 注释集, w 输出流, opts 配置选项
// 返回: ExportResult 导出结果, error 错误信息
func Flatten(ctx context.Context, src Source, set *PageSet, w io.Writer, opts ...ExportOption) (ExportResult, error) {
	o := newExportOptions(opts)
	var res ExportResult
	var buf bytes.Buffer
	err := WithRasterizer(ctx, src, func(r *Rasterizer) error {
		var doc *pdf.PDF
		var err error
		res, err = FlattenPages(ctx, r, set, func(_ int, size Size, img *image.RGBA) error {
			if doc == nil {
				doc = pdf.New(&buf, size.W, size.H, nil)
			} else {
				doc.NewPage(size.W, size.H)
			}
			c := canvas.New(size.W, size.H)
			cctx := canvas.NewContext(c)
			cctx.DrawImage(0, 0, img, canvas.DPMM(float64(img.Bounds().Dx())/size.W))
			c.RenderTo(doc)
			return nil
		}, opts...)
		if err != nil {
			return err
		}
		if err := doc.Close(); err != nil {
			return &ExportError{Page: -1, Err: err}
		}
		return nil
	}, o.raster...)
	if err == nil {
		_, err = w.Write(buf.Bytes())
	}
	if err != nil {
		var ee *ExportError
		if !errors.As(err, &ee) {
			err = &ExportError{Page: -1, Err: err}
		}
		o.logger.Error("export failed", "source", src.String(), "err", err)
		return ExportResult{}, err
	}
	o.logger.Info("export finished", "source", src.String(), "pages", res.Pages, "annotations", res.Annotations)
	return res, nil
}

// FlattenFile 导出到文件, 先写临时文件再改名
// 入参: ctx 上下文, src 源文档, set 注释集, path 输出路径, opts 配置选项
// 返回: ExportResult 导出结果, error 错误信息
func FlattenFile(ctx context.Context, src Source, set *PageSet, path string, opts ...ExportOption) (res ExportResult, err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".scanmark-*.pdf")
	if err != nil {
		return res, &ExportError{Page: -1, Err: err}
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()
	if res, err = Flatten(ctx, src, set, tmp, opts...); err != nil {
		return ExportResult{}, err
	}
	if err = tmp.Close(); err != nil {
		return ExportResult{}, &ExportError{Page: -1, Err: err}
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return ExportResult{}, &ExportError{Page: -1, Err: err}
	}
	return res, nil
}
