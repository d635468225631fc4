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
	"fmt"
	"image"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/h2non/filetype"
)

// DefaultScanDPI 扫描图片默认分辨率, 用于推算物理尺寸
const DefaultScanDPI = 200.0

// Source 源文档定位符, 由宿主解析为本地文件或字节流
type Source struct {
	Path string
	Name string
	Data []byte
}

// FileSource 本地文件或图片目录
func FileSource(path string) Source {
	return Source{Path: path, Name: filepath.Base(path)}
}

// BytesSource 内存中的文档
func BytesSource(name string, data []byte) Source {
	return Source{Name: name, Data: data}
}

func (s Source) String() string {
	if s.Path != "" {
		return s.Path
	}
	return s.Name
}

// document 已打开的源文档
type document interface {
	pageCount() int
	pageSize(i int) (Size, error)
	openPage(i int) (page, error)
	close() error
}

// page 单个已打开页面, 同一时刻只保留一个
type page interface {
	size() Size
	renderInto(dst *image.RGBA) error
	close()
}

// RasterOption 光栅器配置选项
type RasterOption func(*rasterOptions)

type rasterOptions struct {
	scanDPI  float64
	fontDirs []string
	fontFS   []fs.FS
}

// WithScanDPI 设置扫描图片的分辨率
// 入参: dpi DPI值
// 返回: RasterOption 配置选项
func WithScanDPI(dpi float64) RasterOption {
	return func(o *rasterOptions) {
		if dpi > 0 {
			o.scanDPI = dpi
		}
	}
}

// WithFontDirs 设置OFD外部字体查找目录
// 入参: dirs 字体目录列表
// 返回: RasterOption 配置选项
func WithFontDirs(dirs ...string) RasterOption {
	return func(o *rasterOptions) {
		o.fontDirs = append(o.fontDirs, dirs...)
	}
}

// WithFontFS 设置OFD外部字体文件系统
// 入参: fsys 字体文件系统
// 返回: RasterOption 配置选项
func WithFontFS(fsys ...fs.FS) RasterOption {
	return func(o *rasterOptions) {
		o.fontFS = append(o.fontFS, fsys...)
	}
}

// Rasterizer 页面光栅器
// 同一实例的调用互斥执行, 需要并行渲染时各自打开实例
type Rasterizer struct {
	mu      sync.Mutex
	src     Source
	doc     document
	cur     page
	curPage int
	closed  bool
}

// Open 打开源文档
// 入参: src 源文档, opts 配置选项
// 返回: *Rasterizer 光栅器, error 错误信息
func Open(src Source, opts ...RasterOption) (*Rasterizer, error) {
	o := rasterOptions{scanDPI: DefaultScanDPI}
	for _, opt := range opts {
		opt(&o)
	}
	doc, err := openDocument(src, o)
	if err != nil {
		return nil, &SourceError{Source: src.String(), Err: err}
	}
	if doc.pageCount() == 0 {
		_ = doc.close()
		return nil, &SourceError{Source: src.String(), Err: fmt.Errorf("%w: no pages", ErrCorrupt)}
	}
	return &Rasterizer{src: src, doc: doc, curPage: -1}, nil
}

// WithRasterizer 打开光栅器并在 fn 返回后关闭
// 任何退出路径 (错误/取消/panic) 都会释放文件句柄
// 入参: ctx 上下文, src 源文档, fn 回调, opts 配置选项
// 返回: error 错误信息
func WithRasterizer(ctx context.Context, src Source, fn func(*Rasterizer) error, opts ...RasterOption) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	r, err := Open(src, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := r.Close(); err == nil {
			err = cerr
		}
	}()
	return fn(r)
}

// openDocument 根据内容嗅探选择解析器
func openDocument(src Source, o rasterOptions) (document, error) {
	if src.Data != nil {
		return sniffDocument(bytes.NewReader(src.Data), int64(len(src.Data)), nil, src.Name, o)
	}
	info, err := os.Stat(src.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if info.IsDir() {
		return openImageDir(src.Path, o)
	}
	f, err := os.Open(src.Path)
	if err != nil {
		return nil, err
	}
	doc, err := sniffDocument(f, info.Size(), f, src.Path, o)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return doc, nil
}

// sniffDocument 读取文件头判断类型
func sniffDocument(ra io.ReaderAt, size int64, closer io.Closer, name string, o rasterOptions) (document, error) {
	head := make([]byte, 262)
	n, err := ra.ReadAt(head, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	head = head[:n]
	if n == 0 {
		return nil, fmt.Errorf("%w: empty file", ErrCorrupt)
	}
	kind, _ := filetype.Match(head)
	switch {
	case kind.Extension == "zip" || strings.EqualFold(filepath.Ext(name), ".ofd"):
		return openOFD(ra, size, closer, o)
	case filetype.IsImage(head):
		return openImageFile(ra, size, closer, o)
	}
	return nil, fmt.Errorf("%w: unsupported format %q", ErrCorrupt, kind.MIME.Value)
}

func (r *Rasterizer) check(i int) error {
	if r.closed {
		return ErrClosed
	}
	if i < 0 || i >= r.doc.pageCount() {
		return &PageError{Page: i, Err: ErrPageRange}
	}
	return nil
}

// Source 源文档定位符
func (r *Rasterizer) Source() Source { return r.src }

// PageCount 页数
func (r *Rasterizer) PageCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0
	}
	return r.doc.pageCount()
}

// PageSize 页面物理尺寸
// 入参: i 页码
// 返回: Size 尺寸(毫米), error 错误信息
func (r *Rasterizer) PageSize(i int) (Size, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.check(i); err != nil {
		return Size{}, err
	}
	if r.cur != nil && r.curPage == i {
		return r.cur.size(), nil
	}
	s, err := r.doc.pageSize(i)
	if err != nil {
		return Size{}, &PageError{Page: i, Err: err}
	}
	return s, nil
}

// Render 渲染页面到指定像素尺寸
// target 任一维度为0时按页面宽高比推算
// 入参: ctx 上下文, i 页码, target 目标尺寸
// 返回: *image.RGBA 位图, error 错误信息
func (r *Rasterizer) Render(ctx context.Context, i int, target image.Point) (*image.RGBA, error) {
	if target.X <= 0 && target.Y <= 0 {
		return nil, &PageError{Page: i, Err: fmt.Errorf("invalid target size %v", target)}
	}
	if target.X <= 0 || target.Y <= 0 {
		s, err := r.PageSize(i)
		if err != nil {
			return nil, err
		}
		if target.X <= 0 {
			target.X = max(int(float64(target.Y)/s.Aspect()+0.5), 1)
		} else {
			target.Y = max(int(float64(target.X)*s.Aspect()+0.5), 1)
		}
	}
	dst := image.NewRGBA(image.Rect(0, 0, target.X, target.Y))
	if err := r.RenderInto(ctx, dst, i); err != nil {
		return nil, err
	}
	return dst, nil
}

// RenderDPI 按分辨率渲染页面
// 入参: ctx 上下文, i 页码, dpi 分辨率
// 返回: *image.RGBA 位图, error 错误信息
func (r *Rasterizer) RenderDPI(ctx context.Context, i int, dpi float64) (*image.RGBA, error) {
	s, err := r.PageSize(i)
	if err != nil {
		return nil, err
	}
	w, h := s.Pixels(dpi)
	return r.Render(ctx, i, image.Pt(w, h))
}

// RenderInto 渲染到调用方提供的位图, 位图尺寸即目标尺寸
// 入参: ctx 上下文, dst 目标位图, i 页码
// 返回: error 错误信息
func (r *Rasterizer) RenderInto(ctx context.Context, dst *image.RGBA, i int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.check(i); err != nil {
		return err
	}
	if dst.Bounds().Empty() {
		return &PageError{Page: i, Err: errors.New("empty target bitmap")}
	}
	p, err := r.acquire(i)
	if err != nil {
		return &PageError{Page: i, Err: err}
	}
	if err := p.renderInto(dst); err != nil {
		return &PageError{Page: i, Err: err}
	}
	return nil
}

// acquire 打开指定页, 先释放当前已打开的其他页
func (r *Rasterizer) acquire(i int) (page, error) {
	if r.cur != nil && r.curPage == i {
		return r.cur, nil
	}
	r.release()
	p, err := r.doc.openPage(i)
	if err != nil {
		return nil, err
	}
	r.cur, r.curPage = p, i
	return p, nil
}

func (r *Rasterizer) release() {
	if r.cur != nil {
		r.cur.close()
		r.cur, r.curPage = nil, -1
	}
}

// Close 释放页面与文件句柄, 可重复调用
// 返回: error 错误信息
func (r *Rasterizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	r.release()
	return r.doc.close()
}
