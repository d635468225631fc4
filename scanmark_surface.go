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
	"image"
	"image/color"
	"image/draw"
	"sync"

	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gobolditalic"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/goregular"
)

// ptPerUnit 画布单位 (像素) 对应的字号磅值
const ptPerUnit = 2.83465

var (
	fontOnce   sync.Once
	fontFamily *canvas.FontFamily
)

// annotationFonts 注释文字使用的字体族, 首次使用时加载
func annotationFonts() *canvas.FontFamily {
	fontOnce.Do(func() {
		fontFamily = canvas.NewFontFamily("go")
		faces := []struct {
			data  []byte
			style canvas.FontStyle
		}{
			{goregular.TTF, canvas.FontRegular},
			{gobold.TTF, canvas.FontBold},
			{goitalic.TTF, canvas.FontItalic},
			{gobolditalic.TTF, canvas.FontBold | canvas.FontItalic},
		}
		for _, f := range faces {
			if err := fontFamily.LoadFont(f.data, 0, f.style); err != nil {
				panic(err)
			}
		}
	})
	return fontFamily
}

// canvasStyle 文本样式转换为字体样式, 下划线单独绘制
func canvasStyle(style TextStyle) canvas.FontStyle {
	s := canvas.FontRegular
	if style&TextBold != 0 {
		s |= canvas.FontBold
	}
	if style&TextItalic != 0 {
		s |= canvas.FontItalic
	}
	return s
}

func fontFace(sizePx float64, col color.Color, style TextStyle) *canvas.FontFace {
	return annotationFonts().Face(sizePx*ptPerUnit, col, canvasStyle(style), canvas.FontNormal)
}

// measureText 文本像素宽度
func measureText(s string, sizePx float64, style TextStyle) float64 {
	if s == "" || sizePx <= 0 {
		return 0
	}
	return fontFace(sizePx, canvas.Black, style).TextWidth(s)
}

// fontMetrics 字体度量
// 入参: sizePx 像素字号, style 样式
// 返回: float64 上升, float64 下降, float64 行高
func fontMetrics(sizePx float64, style TextStyle) (float64, float64, float64) {
	if sizePx <= 0 {
		return 0, 0, 0
	}
	m := fontFace(sizePx, canvas.Black, style).Metrics()
	return m.Ascent, m.Descent, m.LineHeight
}

// canvasSurface 基于 tdewolff/canvas 的绘制面
// 画布单位即像素, Y轴在写入时翻转
type canvasSurface struct {
	c    *canvas.Canvas
	ctx  *canvas.Context
	w, h float64
}

// newCanvasSurface 创建指定像素尺寸的绘制面
func newCanvasSurface(w, h float64) *canvasSurface {
	c := canvas.New(w, h)
	return &canvasSurface{c: c, ctx: canvas.NewContext(c), w: w, h: h}
}

func (s *canvasSurface) Size() (float64, float64) { return s.w, s.h }

// toCanvas 像素路径转换为画布路径
func (s *canvasSurface) toCanvas(p *Path) *canvas.Path {
	cp := &canvas.Path{}
	for _, seg := range p.Segments {
		a, b, c := seg.Pts[0], seg.Pts[1], seg.Pts[2]
		switch seg.Op {
		case OpMove:
			cp.MoveTo(a.X, s.h-a.Y)
		case OpLine:
			cp.LineTo(a.X, s.h-a.Y)
		case OpQuad:
			cp.QuadTo(a.X, s.h-a.Y, b.X, s.h-b.Y)
		case OpCube:
			cp.CubeTo(a.X, s.h-a.Y, b.X, s.h-b.Y, c.X, s.h-c.Y)
		case OpClose:
			cp.Close()
		}
	}
	return cp
}

func (s *canvasSurface) FillPath(p *Path, c color.Color) {
	if p.Empty() {
		return
	}
	s.ctx.SetFillColor(c)
	s.ctx.SetStrokeColor(canvas.Transparent)
	s.ctx.DrawPath(0, 0, s.toCanvas(p))
}

func (s *canvasSurface) StrokePath(p *Path, c color.Color, width float64) {
	if p.Empty() || width <= 0 {
		return
	}
	s.ctx.SetFillColor(canvas.Transparent)
	s.ctx.SetStrokeColor(c)
	s.ctx.SetStrokeWidth(width)
	s.ctx.SetStrokeCapper(canvas.RoundCap)
	s.ctx.SetStrokeJoiner(canvas.RoundJoin)
	s.ctx.DrawPath(0, 0, s.toCanvas(p))
}

func (s *canvasSurface) DrawText(x, baseline float64, run TextRun) {
	if run.Text == "" || run.Size <= 0 {
		return
	}
	face := fontFace(run.Size, run.Color, run.Style)
	s.ctx.DrawText(x, s.h-baseline, canvas.NewTextLine(face, run.Text, canvas.Left))
}

func (s *canvasSurface) DrawImage(img image.Image, r PixelRect) {
	b := img.Bounds()
	if b.Empty() || r.W <= 0 || r.H <= 0 {
		return
	}
	s.ctx.Push()
	s.ctx.Translate(r.X, s.h-(r.Y+r.H))
	s.ctx.Scale(r.W/float64(b.Dx()), r.H/float64(b.Dy()))
	s.ctx.DrawImage(0, 0, img, canvas.DPMM(1.0))
	s.ctx.Pop()
}

func (s *canvasSurface) Push() { s.ctx.Push() }
func (s *canvasSurface) Pop()  { s.ctx.Pop() }

// Rotate 绕像素点顺时针旋转
func (s *canvasSurface) Rotate(deg, cx, cy float64) {
	s.ctx.RotateAbout(-deg, cx, s.h-cy)
}

// rasterize 光栅化为RGBA位图
func (s *canvasSurface) rasterize() *image.RGBA {
	var img image.Image = rasterizer.Draw(s.c, canvas.DPMM(1.0), canvas.DefaultColorSpace)
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	rgba := image.NewRGBA(img.Bounds())
	draw.Draw(rgba, rgba.Bounds(), img, img.Bounds().Min, draw.Src)
	return rgba
}

// compose 在页面位图上绘制注释并光栅化
// 入参: page 页面位图, items 注释列表, extra 附加绘制
// 返回: *image.RGBA 合成结果, error 错误信息
func compose(page image.Image, items []*Item, extra func(Surface)) (*image.RGBA, error) {
	b := page.Bounds()
	s := newCanvasSurface(float64(b.Dx()), float64(b.Dy()))
	s.FillPath(RectPath(PixelRect{W: s.w, H: s.h}), canvas.White)
	s.DrawImage(page, PixelRect{W: s.w, H: s.h})
	if err := PaintItems(s, items); err != nil {
		return nil, err
	}
	if extra != nil {
		extra(s)
	}
	return s.rasterize(), nil
}
