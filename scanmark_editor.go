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
	"context"
	"image"
	"image/color"
	"log/slog"
	"strings"
)

// DefaultPreviewDPI 交互预览默认分辨率
const DefaultPreviewDPI = 96.0

// EditorEvents 编辑器对外通知
type EditorEvents struct {
	SelectionChanged   func(it *Item)
	AnnotationsChanged func(page int)
	PageCountKnown     func(n int)
	PageChanged        func(page int)
	Request            func(r Request)
	PageRenderFailed   func(page int, err error)
}

// EditorOption 编辑器配置选项
type EditorOption func(*editorOptions)

type editorOptions struct {
	loop       *Loop
	logger     *slog.Logger
	events     EditorEvents
	previewDPI float64
	exportDPI  float64
	raster     []RasterOption
	library    *SignatureLibrary
	style      *ToolStyle
}

// WithLoop 指定事件循环, 未指定时后台任务同步执行
func WithLoop(l *Loop) EditorOption {
	return func(o *editorOptions) { o.loop = l }
}

// WithLogger 设置日志
func WithLogger(l *slog.Logger) EditorOption {
	return func(o *editorOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithEvents 设置事件回调
func WithEvents(ev EditorEvents) EditorOption {
	return func(o *editorOptions) { o.events = ev }
}

// WithPreviewDPI 设置预览分辨率
func WithPreviewDPI(dpi float64) EditorOption {
	return func(o *editorOptions) {
		if dpi > 0 {
			o.previewDPI = dpi
		}
	}
}

// WithEditorExportDPI 设置保存时的导出分辨率
func WithEditorExportDPI(dpi float64) EditorOption {
	return func(o *editorOptions) {
		if dpi > 0 {
			o.exportDPI = dpi
		}
	}
}

// WithRasterOptions 设置打开源文档的选项, 预览与导出共用
func WithRasterOptions(opts ...RasterOption) EditorOption {
	return func(o *editorOptions) { o.raster = append(o.raster, opts...) }
}

// WithSignatureLibrary 设置签名库
func WithSignatureLibrary(l *SignatureLibrary) EditorOption {
	return func(o *editorOptions) { o.library = l }
}

// WithToolStyle 设置初始工具样式
func WithToolStyle(s ToolStyle) EditorOption {
	return func(o *editorOptions) { o.style = &s }
}

// Editor 编辑器状态
// 除 SaveAsync 的后台部分外, 全部方法须在事件循环上调用
type Editor struct {
	opts   editorOptions
	src    Source
	raster *Rasterizer
	set    *PageSet
	canvas *Canvas

	ctx    context.Context
	cancel context.CancelFunc

	page      int
	pageCount int
	unsaved   bool
	revision  uint64
	gen       uint64
	closed    bool
}

// OpenEditor 打开源文档并显示第一页
// 入参: ctx 上下文, src 源文档, opts 配置选项
// 返回: *Editor 编辑器, error 源文档错误
func OpenEditor(ctx context.Context, src Source, opts ...EditorOption) (*Editor, error) {
	o := editorOptions{
		logger:     slog.Default(),
		previewDPI: DefaultPreviewDPI,
		exportDPI:  DefaultExportDPI,
	}
	for _, opt := range opts {
		opt(&o)
	}
	r, err := Open(src, o.raster...)
	if err != nil {
		o.logger.Error("open source", "source", src.String(), "err", err)
		return nil, err
	}
	e := &Editor{opts: o, src: src, raster: r, set: NewPageSet(), pageCount: r.PageCount()}
	e.ctx, e.cancel = context.WithCancel(ctx)
	e.canvas = NewCanvas(o.logger, CanvasEvents{
		SelectionChanged:   o.events.SelectionChanged,
		AnnotationsChanged: e.onAnnotationsChanged,
		Request:            o.events.Request,
	})
	if o.style != nil {
		e.canvas.SetStyle(*o.style)
	}
	if o.library != nil {
		if err := o.library.Load(); err != nil {
			o.logger.Warn("load signature library", "root", o.library.Root(), "err", err)
		}
	}
	if fn := o.events.PageCountKnown; fn != nil {
		fn(e.pageCount)
	}
	e.show(0)
	return e, nil
}

// onAnnotationsChanged 画布每次提交后写回注释集
func (e *Editor) onAnnotationsChanged(page int, items []*Item) {
	e.set.Set(page, items)
	e.touch(page)
}

func (e *Editor) touch(page int) {
	e.unsaved = true
	e.revision++
	if fn := e.opts.events.AnnotationsChanged; fn != nil {
		fn(page)
	}
}

// show 载入页面注释并在后台渲染背景
func (e *Editor) show(i int) {
	e.page = i
	size, err := e.raster.PageSize(i)
	if err != nil {
		size = Size{W: 210, H: 297}
	}
	w, h := size.Pixels(e.opts.previewDPI)
	e.canvas.SetViewSize(float64(w), float64(h))
	e.canvas.SetPage(i, e.set.Items(i), nil, nil)
	e.gen++
	gen := e.gen
	raster := e.raster
	Async(e.opts.loop, e.ctx, func(ctx context.Context) (*image.RGBA, error) {
		return raster.Render(ctx, i, image.Pt(w, h))
	}, func(img *image.RGBA, err error) {
		if e.closed || gen != e.gen {
			return
		}
		if err != nil {
			e.opts.logger.Warn("render page", "page", i, "err", err)
			if fn := e.opts.events.PageRenderFailed; fn != nil {
				fn(i, err)
			}
			e.canvas.SetBackground(nil, err)
			return
		}
		e.canvas.SetBackground(img, nil)
	})
}

// GoToPage 跳转页面, 先保存离开页的注释
// 入参: i 页码
// 返回: error 页码越界或编辑器已关闭
func (e *Editor) GoToPage(i int) error {
	if e.closed {
		return ErrClosed
	}
	if i < 0 || i >= e.pageCount {
		return ErrPageRange
	}
	if i == e.page {
		return nil
	}
	e.set.Set(e.page, e.canvas.Items())
	e.show(i)
	if fn := e.opts.events.PageChanged; fn != nil {
		fn(i)
	}
	return nil
}

// NextPage 下一页
func (e *Editor) NextPage() error { return e.GoToPage(e.page + 1) }

// PrevPage 上一页
func (e *Editor) PrevPage() error { return e.GoToPage(e.page - 1) }

// Page 当前页码
func (e *Editor) Page() int { return e.page }

// PageCount 总页数
func (e *Editor) PageCount() int { return e.pageCount }

// PageSize 页面物理尺寸
func (e *Editor) PageSize(i int) (Size, error) { return e.raster.PageSize(i) }

// Canvas 交互画布, 宿主把指针事件转发给它
func (e *Editor) Canvas() *Canvas { return e.canvas }

// Library 签名库, 未配置时为 nil
func (e *Editor) Library() *SignatureLibrary { return e.opts.library }

// Unsaved 是否有未导出的修改
func (e *Editor) Unsaved() bool { return e.unsaved }

// Tool 当前工具
func (e *Editor) Tool() Tool { return e.canvas.Tool() }

// SetTool 切换工具
func (e *Editor) SetTool(t Tool) { e.canvas.SetTool(t) }

// Color 当前颜色
func (e *Editor) Color() color.NRGBA { return e.canvas.Style().Color }

// SetColor 设置颜色
func (e *Editor) SetColor(c color.NRGBA) {
	s := e.canvas.Style()
	s.Color = c
	e.canvas.SetStyle(s)
}

// StrokeWidth 当前线宽
func (e *Editor) StrokeWidth() float64 { return e.canvas.Style().StrokeWidth }

// SetStrokeWidth 设置线宽, 非正值忽略
func (e *Editor) SetStrokeWidth(w float64) {
	if w <= 0 {
		return
	}
	s := e.canvas.Style()
	s.StrokeWidth = w
	e.canvas.SetStyle(s)
}

// TextSize 当前字号
func (e *Editor) TextSize() float64 { return e.canvas.Style().TextSize }

// SetTextSize 设置字号, 限制在允许范围
func (e *Editor) SetTextSize(size float64) {
	s := e.canvas.Style()
	s.TextSize = clampRange(size, MinTextSize, MaxTextSize)
	e.canvas.SetStyle(s)
}

// SetFill 设置形状填充色, nil 表示不填充
func (e *Editor) SetFill(c *color.NRGBA) {
	s := e.canvas.Style()
	s.Fill = c
	e.canvas.SetStyle(s)
}

// Annotations 某页注释副本
func (e *Editor) Annotations(page int) []*Item {
	if page == e.page {
		return e.canvas.Items()
	}
	return e.set.Items(page)
}

// SetAnnotations 替换某页注释
// 入参: page 页码, items 注释列表
func (e *Editor) SetAnnotations(page int, items []*Item) {
	if page < 0 || page >= e.pageCount {
		return
	}
	e.set.Set(page, items)
	if page == e.page {
		e.canvas.SetPage(page, e.set.Items(page), e.canvas.background, e.canvas.bgErr)
	}
	e.touch(page)
}

// HasAnnotations 是否存在任意注释, 决定能否导出
func (e *Editor) HasAnnotations() bool { return e.set.Any() }

// Selected 当前选中注释
func (e *Editor) Selected() *Item { return e.canvas.Selected() }

// ResizeSelected 缩放选中注释
func (e *Editor) ResizeSelected(factor float64) float64 { return e.canvas.ResizeSelected(factor) }

// DeleteSelected 删除选中注释
func (e *Editor) DeleteSelected() bool { return e.canvas.DeleteSelected() }

// aspect 页面高宽比
func (e *Editor) aspect(page int) float64 {
	s, err := e.raster.PageSize(page)
	if err != nil {
		return 297.0 / 210.0
	}
	return s.Aspect()
}

// place 提交注释, 非当前页的请求直接写入注释集
func (e *Editor) place(it *Item) *Item {
	if it.Page() == e.page {
		e.canvas.Add(it)
	} else {
		e.set.Append(it)
		e.touch(it.Page())
	}
	return it.Clone()
}

func (e *Editor) validRequest(req Request) bool {
	return !e.closed && req.Page >= 0 && req.Page < e.pageCount
}

// ApplyText 文本输入结果, 左上角对齐点击位置
// 入参: req 请求, content 文本, col 颜色, size 字号, style 样式
// 返回: *Item 新注释, 文本为空时为 nil
func (e *Editor) ApplyText(req Request, content string, col color.NRGBA, size float64, style TextStyle) *Item {
	if !e.validRequest(req) || strings.TrimSpace(content) == "" {
		return nil
	}
	t := &Text{Content: content, Size: clampRange(size, MinTextSize, MaxTextSize), Color: col, Style: style}
	w, h := TextExtent(t, e.aspect(req.Page))
	return e.place(NewItem(req.Page, Rect{X: req.At.X, Y: req.At.Y, W: w, H: h}, t))
}

// ApplySignature 签名位图结果, 居中于点击位置并保持宽高比
// 入参: req 请求, img 签名位图
// 返回: *Item 新注释, error 位图为空时返回 ErrEmptySignature
func (e *Editor) ApplySignature(req Request, img image.Image) (*Item, error) {
	iw, ih := signatureImage(img)
	if iw == 0 || ih == 0 {
		return nil, ErrEmptySignature
	}
	if !e.validRequest(req) {
		return nil, ErrPageRange
	}
	w := SignatureWidth
	h := w * float64(ih) / float64(iw) / e.aspect(req.Page)
	if h > 1 {
		w, h = w/h, 1
	}
	r := Rect{X: req.At.X - w/2, Y: req.At.Y - h/2, W: w, H: h}
	return e.place(NewItem(req.Page, r, &Signature{Image: img})), nil
}

// ApplySavedSignature 使用签名库中的签名
func (e *Editor) ApplySavedSignature(req Request, id string) (*Item, error) {
	if e.opts.library == nil {
		return nil, ErrUnknownSignature
	}
	img, err := e.opts.library.Image(id)
	if err != nil {
		return nil, err
	}
	return e.ApplySignature(req, img)
}

// ApplySignatureStrokes 以矢量笔画放置签名
// 入参: req 请求, strokes 签名板比例坐标, padAspect 签名板高宽比
// 返回: *Item 新注释, error 笔画为空时返回 ErrEmptySignature
func (e *Editor) ApplySignatureStrokes(req Request, strokes [][]Point, padAspect float64) (*Item, error) {
	b := strokeBounds(strokes)
	if len(strokes) == 0 || (b.W == 0 && b.H == 0) {
		return nil, ErrEmptySignature
	}
	if !e.validRequest(req) {
		return nil, ErrPageRange
	}
	if padAspect <= 0 {
		padAspect = 1
	}
	w := SignatureWidth
	h := w * (b.H * padAspect) / max(b.W, 1e-6) / e.aspect(req.Page)
	if b.W == 0 {
		h, w = SignatureWidth/e.aspect(req.Page), 1e-3
	}
	to := clampRect(Rect{X: req.At.X - w/2, Y: req.At.Y - h/2, W: w, H: h})
	mapped := make([][]Point, len(strokes))
	for i, s := range strokes {
		mapped[i] = make([]Point, len(s))
		for j, p := range s {
			var fx, fy float64
			if b.W > 0 {
				fx = (p.X - b.X) / b.W
			}
			if b.H > 0 {
				fy = (p.Y - b.Y) / b.H
			}
			mapped[i][j] = clampPoint(Point{X: to.X + fx*to.W, Y: to.Y + fy*to.H})
		}
	}
	st := e.canvas.Style()
	d := &Drawing{Strokes: mapped, Color: st.Color, StrokeWidth: st.StrokeWidth}
	return e.place(NewItem(req.Page, strokeBounds(mapped), d)), nil
}

// ApplyStamp 印章选择结果, 居中于点击位置
// 入参: req 请求, kind 印章种类
// 返回: *Item 新注释, 未知印章为 nil
func (e *Editor) ApplyStamp(req Request, kind StampKind) *Item {
	if !e.validRequest(req) || !kind.Valid() {
		return nil
	}
	w, h := StampExtent(kind, 1, e.aspect(req.Page))
	r := Rect{X: req.At.X - w/2, Y: req.At.Y - h/2, W: w, H: h}
	return e.place(NewItem(req.Page, r, &Stamp{Kind: kind, Color: kind.DefaultColor(), Scale: 1}))
}

// snapshot 导出用的注释快照
func (e *Editor) snapshot() (*PageSet, uint64) {
	e.set.Set(e.page, e.canvas.Items())
	return e.set.Clone(), e.revision
}

func (e *Editor) exportOptions() []ExportOption {
	return []ExportOption{
		WithExportDPI(e.opts.exportDPI),
		WithExportRasterOptions(e.opts.raster...),
		WithExportLogger(e.opts.logger),
	}
}

// markSaved 导出成功后, 期间没有新修改才清除未保存标记
func (e *Editor) markSaved(revision uint64) {
	if e.revision == revision {
		e.unsaved = false
	}
}

// Save 同步导出, 使用独立的光栅器实例
// 入参: ctx 上下文, path 输出路径
// 返回: ExportResult 导出结果, error 导出错误
func (e *Editor) Save(ctx context.Context, path string) (ExportResult, error) {
	if e.closed {
		return ExportResult{}, &ExportError{Page: -1, Err: ErrClosed}
	}
	if !e.set.Any() && len(e.canvas.items) == 0 {
		return ExportResult{}, &ExportError{Page: -1, Err: ErrNothingToExport}
	}
	set, rev := e.snapshot()
	res, err := FlattenFile(ctx, e.src, set, path, e.exportOptions()...)
	if err != nil {
		return res, err
	}
	e.markSaved(rev)
	return res, nil
}

// SaveAsync 后台导出, done 在事件循环上调用
// 编辑器关闭会在下一页开始前取消导出
// 入参: path 输出路径, done 完成回调
func (e *Editor) SaveAsync(path string, done func(ExportResult, error)) {
	if e.closed {
		done(ExportResult{}, &ExportError{Page: -1, Err: ErrClosed})
		return
	}
	if !e.set.Any() && len(e.canvas.items) == 0 {
		done(ExportResult{}, &ExportError{Page: -1, Err: ErrNothingToExport})
		return
	}
	set, rev := e.snapshot()
	src, opts := e.src, e.exportOptions()
	Async(e.opts.loop, e.ctx, func(ctx context.Context) (ExportResult, error) {
		return FlattenFile(ctx, src, set, path, opts...)
	}, func(res ExportResult, err error) {
		if err == nil && !e.closed {
			e.markSaved(rev)
		}
		done(res, err)
	})
}

// Close 关闭编辑器, 取消后台任务并释放光栅器, 可重复调用
// 返回: error 错误信息
func (e *Editor) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	e.cancel()
	e.canvas.Cancel()
	return e.raster.Close()
}
