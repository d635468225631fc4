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
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"
)

// Surface 像素空间绘制面, 原点在左上角, Y轴向下
// 交互画布与导出渲染共用同一套绘制例程
type Surface interface {
	Size() (w, h float64)
	FillPath(p *Path, c color.Color)
	StrokePath(p *Path, c color.Color, width float64)
	DrawText(x, baseline float64, run TextRun)
	DrawImage(img image.Image, r PixelRect)
	Push()
	Pop()
	Rotate(deg, cx, cy float64)
}

// TextRun 单行文本
type TextRun struct {
	Text  string
	Size  float64 // 像素
	Color color.Color
	Style TextStyle
}

// PathOp 路径指令
type PathOp uint8

const (
	OpMove PathOp = iota
	OpLine
	OpQuad
	OpCube
	OpClose
)

// Segment 路径片段, 未使用的坐标为零
type Segment struct {
	Op  PathOp
	Pts [3]PixelPoint
}

// PixelPoint 像素坐标点
type PixelPoint struct {
	X, Y float64
}

// Path 像素空间路径
type Path struct {
	Segments []Segment
}

func (p *Path) MoveTo(x, y float64) *Path {
	p.Segments = append(p.Segments, Segment{Op: OpMove, Pts: [3]PixelPoint{{x, y}}})
	return p
}

func (p *Path) LineTo(x, y float64) *Path {
	p.Segments = append(p.Segments, Segment{Op: OpLine, Pts: [3]PixelPoint{{x, y}}})
	return p
}

func (p *Path) QuadTo(cx, cy, x, y float64) *Path {
	p.Segments = append(p.Segments, Segment{Op: OpQuad, Pts: [3]PixelPoint{{cx, cy}, {x, y}}})
	return p
}

func (p *Path) CubeTo(c1x, c1y, c2x, c2y, x, y float64) *Path {
	p.Segments = append(p.Segments, Segment{Op: OpCube, Pts: [3]PixelPoint{{c1x, c1y}, {c2x, c2y}, {x, y}}})
	return p
}

func (p *Path) Close() *Path {
	p.Segments = append(p.Segments, Segment{Op: OpClose})
	return p
}

// Empty 路径是否为空
func (p *Path) Empty() bool { return p == nil || len(p.Segments) == 0 }

// Scaled 返回按比例缩放后的副本
// 入参: sx X缩放, sy Y缩放
// 返回: *Path 新路径
func (p *Path) Scaled(sx, sy float64) *Path {
	out := &Path{Segments: make([]Segment, len(p.Segments))}
	for i, s := range p.Segments {
		for j := range s.Pts {
			s.Pts[j].X *= sx
			s.Pts[j].Y *= sy
		}
		out.Segments[i] = s
	}
	return out
}

// RectPath 矩形路径
func RectPath(r PixelRect) *Path {
	p := &Path{}
	return p.MoveTo(r.X, r.Y).LineTo(r.X+r.W, r.Y).LineTo(r.X+r.W, r.Y+r.H).LineTo(r.X, r.Y+r.H).Close()
}

// ovalKappa 四段三次贝塞尔近似椭圆的控制点系数
const ovalKappa = 0.5522847498

// OvalPath 内切于矩形的椭圆
func OvalPath(r PixelRect) *Path {
	cx, cy := r.X+r.W/2, r.Y+r.H/2
	rx, ry := r.W/2, r.H/2
	kx, ky := rx*ovalKappa, ry*ovalKappa
	p := &Path{}
	p.MoveTo(cx+rx, cy)
	p.CubeTo(cx+rx, cy+ky, cx+kx, cy+ry, cx, cy+ry)
	p.CubeTo(cx-kx, cy+ry, cx-rx, cy+ky, cx-rx, cy)
	p.CubeTo(cx-rx, cy-ky, cx-kx, cy-ry, cx, cy-ry)
	p.CubeTo(cx+kx, cy-ry, cx+rx, cy-ky, cx+rx, cy)
	return p.Close()
}

// RoundRectPath 圆角矩形
func RoundRectPath(r PixelRect, radius float64) *Path {
	radius = math.Min(radius, math.Min(r.W, r.H)/2)
	x0, y0, x1, y1 := r.X, r.Y, r.X+r.W, r.Y+r.H
	p := &Path{}
	p.MoveTo(x0+radius, y0)
	p.LineTo(x1-radius, y0)
	p.QuadTo(x1, y0, x1, y0+radius)
	p.LineTo(x1, y1-radius)
	p.QuadTo(x1, y1, x1-radius, y1)
	p.LineTo(x0+radius, y1)
	p.QuadTo(x0, y1, x0, y1-radius)
	p.LineTo(x0, y0+radius)
	p.QuadTo(x0, y0, x0+radius, y0)
	return p.Close()
}

// LineEnds 直线/箭头的起止点, 由翻转标志决定对角方向
// 入参: r 像素矩形, s 形状
// 返回: PixelPoint 起点, PixelPoint 终点
func LineEnds(r PixelRect, s *Shape) (PixelPoint, PixelPoint) {
	start := PixelPoint{X: r.X, Y: r.Y}
	end := PixelPoint{X: r.X + r.W, Y: r.Y + r.H}
	if s.FlipX {
		start.X, end.X = end.X, start.X
	}
	if s.FlipY {
		start.Y, end.Y = end.Y, start.Y
	}
	return start, end
}

// arrowWing 箭头两翼与箭杆的夹角
const arrowWing = math.Pi / 6

// ArrowHeadLength 箭头长度, 取线宽的四倍与箭杆长度 40% 中的较小者
func ArrowHeadLength(strokePx, length float64) float64 {
	return math.Min(strokePx*4+length*0.08, length*0.4)
}

// ArrowHead 计算箭头两翼端点
// 入参: from 箭尾, to 箭尖, headLen 箭头长度
// 返回: PixelPoint 左翼, PixelPoint 右翼
func ArrowHead(from, to PixelPoint, headLen float64) (PixelPoint, PixelPoint) {
	angle := math.Atan2(to.Y-from.Y, to.X-from.X)
	left := PixelPoint{
		X: to.X - headLen*math.Cos(angle-arrowWing),
		Y: to.Y - headLen*math.Sin(angle-arrowWing),
	}
	right := PixelPoint{
		X: to.X - headLen*math.Cos(angle+arrowWing),
		Y: to.Y - headLen*math.Sin(angle+arrowWing),
	}
	return left, right
}

// CheckmarkPath 勾号折线, 按矩形比例布点
func CheckmarkPath(r PixelRect) *Path {
	p := &Path{}
	p.MoveTo(r.X+r.W*0.1, r.Y+r.H*0.55)
	p.LineTo(r.X+r.W*0.4, r.Y+r.H*0.85)
	p.LineTo(r.X+r.W*0.9, r.Y+r.H*0.15)
	return p
}

// CrossPath 叉号, 两条内缩 15% 的对角线
func CrossPath(r PixelRect) *Path {
	p := &Path{}
	p.MoveTo(r.X+r.W*0.15, r.Y+r.H*0.15)
	p.LineTo(r.X+r.W*0.85, r.Y+r.H*0.85)
	p.MoveTo(r.X+r.W*0.85, r.Y+r.H*0.15)
	p.LineTo(r.X+r.W*0.15, r.Y+r.H*0.85)
	return p
}

// SmoothPath 以二次曲线连接相邻点的中点, 平滑手绘笔画
// 只影响绘制, 模型中仍保存原始点
func SmoothPath(pts []PixelPoint) *Path {
	p := &Path{}
	switch len(pts) {
	case 0:
		return p
	case 1:
		return p.MoveTo(pts[0].X, pts[0].Y).LineTo(pts[0].X, pts[0].Y)
	}
	p.MoveTo(pts[0].X, pts[0].Y)
	for i := 1; i < len(pts); i++ {
		prev, cur := pts[i-1], pts[i]
		p.QuadTo(prev.X, prev.Y, (prev.X+cur.X)/2, (prev.Y+cur.Y)/2)
	}
	last := pts[len(pts)-1]
	return p.LineTo(last.X, last.Y)
}

// StampGeometry 印章布局结果
type StampGeometry struct {
	Border      PixelRect
	Radius      float64
	BorderWidth float64
	FontSize    float64
	TextX       float64
	Baseline    float64
}

// StampLayout 计算印章边框与居中文字
// 字号取框高的一半, 过宽时收缩到框宽的 86%
// 入参: r 像素矩形, label 印章文字
// 返回: StampGeometry 布局
func StampLayout(r PixelRect, label string) StampGeometry {
	g := StampGeometry{BorderWidth: r.H * 0.06, Radius: r.H * 0.12}
	g.Border = PixelRect{
		X: r.X + g.BorderWidth/2, Y: r.Y + g.BorderWidth/2,
		W: r.W - g.BorderWidth, H: r.H - g.BorderWidth,
	}
	g.FontSize = r.H * 0.5
	if tw := measureText(label, g.FontSize, TextBold); tw > 0 && tw > r.W*0.86 {
		g.FontSize *= r.W * 0.86 / tw
	}
	tw := measureText(label, g.FontSize, TextBold)
	ascent, descent, _ := fontMetrics(g.FontSize, TextBold)
	g.TextX = r.X + (r.W-tw)/2
	g.Baseline = r.Y + r.H/2 + (ascent-descent)/2
	return g
}

// TextLine 已排版的一行文本
type TextLine struct {
	Text      string
	X         float64
	Baseline  float64
	Width     float64
	Underline *Path
}

// TextLayout 文本逐行排版
// 入参: r 像素矩形, t 文本, unit 参考单位对应像素
// 返回: []TextLine 行列表, float64 像素字号
func TextLayout(r PixelRect, t *Text, unit float64) ([]TextLine, float64) {
	size := t.Size * unit
	ascent, _, lineHeight := fontMetrics(size, t.Style)
	var lines []TextLine
	for i, s := range strings.Split(t.Content, "\n") {
		l := TextLine{
			Text:     s,
			X:        r.X,
			Baseline: r.Y + ascent + float64(i)*lineHeight,
			Width:    measureText(s, size, t.Style),
		}
		if t.Style&TextUnderline != 0 && l.Width > 0 {
			y := l.Baseline + size*0.1
			l.Underline = (&Path{}).MoveTo(l.X, y).LineTo(l.X+l.Width, y)
		}
		lines = append(lines, l)
	}
	return lines, size
}

// TextExtent 文本内容的归一化尺寸
// 入参: t 文本, aspect 页面高宽比
// 返回: float64 宽 (页宽比例), float64 高 (页高比例)
func TextExtent(t *Text, aspect float64) (float64, float64) {
	_, _, lineHeight := fontMetrics(t.Size, t.Style)
	w := 0.0
	lines := strings.Split(t.Content, "\n")
	for _, s := range lines {
		w = math.Max(w, measureText(s, t.Size, t.Style))
	}
	h := lineHeight * float64(len(lines))
	if aspect <= 0 {
		aspect = 1
	}
	return w / RefWidth, h / (RefWidth * aspect)
}

// StampExtent 印章的归一化尺寸
func StampExtent(kind StampKind, scale, aspect float64) (float64, float64) {
	if scale <= 0 {
		scale = 1
	}
	size := StampFontSize * scale
	w := measureText(kind.Label(), size, TextBold)/0.86 + size
	h := size * 2
	if aspect <= 0 {
		aspect = 1
	}
	return w / RefWidth, h / (RefWidth * aspect)
}

// PaintItem 按类型绘制单个注释
// 入参: s 绘制面, it 注释
// 返回: error 错误信息
func PaintItem(s Surface, it *Item) error {
	w, h := s.Size()
	if w <= 0 || h <= 0 {
		return nil
	}
	r := it.Bounds().ToPixels(w, h)
	unit := w / RefWidth
	switch p := it.Payload.(type) {
	case *Signature:
		paintSignature(s, r, p)
	case *Text:
		paintText(s, r, p, unit)
	case *Shape:
		paintShape(s, r, p, unit)
	case *Stamp:
		paintStamp(s, r, p)
	case *Drawing:
		paintDrawing(s, p, w, h, unit)
	case *Highlight:
		paintHighlight(s, r, p)
	default:
		return fmt.Errorf("unsupported annotation payload %T", it.Payload)
	}
	return nil
}

// PaintItems 依序绘制注释列表
func PaintItems(s Surface, items []*Item) error {
	for _, it := range items {
		if err := PaintItem(s, it); err != nil {
			return err
		}
	}
	return nil
}

func paintSignature(s Surface, r PixelRect, p *Signature) {
	if p.Image == nil || p.Image.Bounds().Empty() {
		return
	}
	s.DrawImage(p.Image, r)
}

func paintText(s Surface, r PixelRect, p *Text, unit float64) {
	lines, size := TextLayout(r, p, unit)
	for _, l := range lines {
		s.DrawText(l.X, l.Baseline, TextRun{Text: l.Text, Size: size, Color: p.Color, Style: p.Style})
		if l.Underline != nil {
			s.StrokePath(l.Underline, p.Color, size*0.05)
		}
	}
}

func paintShape(s Surface, r PixelRect, p *Shape, unit float64) {
	stroke := p.StrokeWidth * unit
	switch p.Kind {
	case ShapeRectangle:
		path := RectPath(r)
		if p.Fill != nil {
			s.FillPath(path, *p.Fill)
		}
		s.StrokePath(path, p.Color, stroke)
	case ShapeOval:
		path := OvalPath(r)
		if p.Fill != nil {
			s.FillPath(path, *p.Fill)
		}
		s.StrokePath(path, p.Color, stroke)
	case ShapeLine:
		a, b := LineEnds(r, p)
		s.StrokePath((&Path{}).MoveTo(a.X, a.Y).LineTo(b.X, b.Y), p.Color, stroke)
	case ShapeArrow:
		a, b := LineEnds(r, p)
		head := ArrowHeadLength(stroke, math.Hypot(b.X-a.X, b.Y-a.Y))
		left, right := ArrowHead(a, b, head)
		path := (&Path{}).MoveTo(a.X, a.Y).LineTo(b.X, b.Y)
		path.MoveTo(left.X, left.Y).LineTo(b.X, b.Y).LineTo(right.X, right.Y)
		s.StrokePath(path, p.Color, stroke)
	case ShapeCheckmark:
		s.StrokePath(CheckmarkPath(r), p.Color, stroke)
	case ShapeCross:
		s.StrokePath(CrossPath(r), p.Color, stroke)
	}
}

func paintStamp(s Surface, r PixelRect, p *Stamp) {
	g := StampLayout(r, p.Kind.Label())
	c := r.Center()
	s.Push()
	if p.Rotation != 0 {
		s.Rotate(p.Rotation, c.X, c.Y)
	}
	s.StrokePath(RoundRectPath(g.Border, g.Radius), p.Color, g.BorderWidth)
	s.DrawText(g.TextX, g.Baseline, TextRun{Text: p.Kind.Label(), Size: g.FontSize, Color: p.Color, Style: TextBold})
	s.Pop()
}

func paintDrawing(s Surface, p *Drawing, w, h, unit float64) {
	for _, stroke := range p.Strokes {
		pts := make([]PixelPoint, len(stroke))
		for i, pt := range stroke {
			pts[i] = PixelPoint{X: pt.X * w, Y: pt.Y * h}
		}
		s.StrokePath(SmoothPath(pts), p.Color, p.StrokeWidth*unit)
	}
}

func paintHighlight(s Surface, r PixelRect, p *Highlight) {
	c := p.Color
	c.A = HighlightAlpha
	s.FillPath(RectPath(r), c)
}

// paintSelection 选中框与四角手柄, 仅用于交互画布
func paintSelection(s Surface, r PixelRect, c color.Color) {
	s.StrokePath(RectPath(r), c, 1.5)
	const handle = 8.0
	for _, pt := range []PixelPoint{{r.X, r.Y}, {r.X + r.W, r.Y}, {r.X, r.Y + r.H}, {r.X + r.W, r.Y + r.H}} {
		s.FillPath(RectPath(PixelRect{X: pt.X - handle/2, Y: pt.Y - handle/2, W: handle, H: handle}), c)
	}
}

// paintPlaceholder 页面渲染失败时的占位图
func paintPlaceholder(s Surface) {
	w, h := s.Size()
	r := PixelRect{W: w, H: h}
	s.FillPath(RectPath(r), color.NRGBA{0xEE, 0xEE, 0xEE, 0xFF})
	grey := color.NRGBA{0xBD, 0xBD, 0xBD, 0xFF}
	s.StrokePath(CrossPath(r), grey, math.Max(w/RefWidth, 1))
}

func (r PixelRect) Center() PixelPoint {
	return PixelPoint{X: r.X + r.W/2, Y: r.Y + r.H/2}
}
