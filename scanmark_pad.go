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

	"github.com/anthonynsimon/bild/transform"
)

// SignaturePadding 裁剪签名时在内容外保留的像素
const SignaturePadding = 8

// Pad 签名板, 使用自身的像素坐标
type Pad struct {
	w, h        int
	Color       color.NRGBA
	StrokeWidth float64 // 像素

	strokes [][]PixelPoint
	redo    [][]PixelPoint
	current []PixelPoint
	last    PixelPoint
}

// NewPad 创建签名板
// 入参: w 宽度, h 高度
// 返回: *Pad 签名板
func NewPad(w, h int) *Pad {
	return &Pad{w: max(w, 1), h: max(h, 1), Color: color.NRGBA{A: 0xFF}, StrokeWidth: 3}
}

// Size 签名板像素尺寸
func (p *Pad) Size() (int, int) { return p.w, p.h }

func (p *Pad) clamp(x, y float64) PixelPoint {
	return PixelPoint{X: clampRange(x, 0, float64(p.w)), Y: clampRange(y, 0, float64(p.h))}
}

// Press 开始新笔画
func (p *Pad) Press(x, y float64) {
	p.last = p.clamp(x, y)
	p.current = []PixelPoint{p.last}
}

// Move 记录超过抖动阈值的点
func (p *Pad) Move(x, y float64) {
	if p.current == nil {
		return
	}
	pt := p.clamp(x, y)
	dx, dy := pt.X-p.last.X, pt.Y-p.last.Y
	if dx*dx+dy*dy > JitterThreshold*JitterThreshold {
		p.current = append(p.current, pt)
		p.last = pt
	}
}

// Release 结束笔画, 新笔画会清空重做栈
func (p *Pad) Release(x, y float64) {
	if p.current == nil {
		return
	}
	p.Move(x, y)
	p.strokes = append(p.strokes, p.current)
	p.current = nil
	p.redo = nil
}

// Undo 撤销最近一笔
// 返回: bool 是否有可撤销的笔画
func (p *Pad) Undo() bool {
	n := len(p.strokes)
	if n == 0 {
		return false
	}
	p.redo = append(p.redo, p.strokes[n-1])
	p.strokes = p.strokes[:n-1]
	return true
}

// Redo 恢复最近撤销的一笔
// 返回: bool 是否有可重做的笔画
func (p *Pad) Redo() bool {
	n := len(p.redo)
	if n == 0 {
		return false
	}
	p.strokes = append(p.strokes, p.redo[n-1])
	p.redo = p.redo[:n-1]
	return true
}

// CanUndo 是否可撤销
func (p *Pad) CanUndo() bool { return len(p.strokes) > 0 }

// CanRedo 是否可重做
func (p *Pad) CanRedo() bool { return len(p.redo) > 0 }

// Clear 清空全部笔画与重做栈
func (p *Pad) Clear() {
	p.strokes, p.redo, p.current = nil, nil, nil
}

// Empty 是否没有任何已提交笔画
func (p *Pad) Empty() bool { return len(p.strokes) == 0 }

// Strokes 已提交笔画的副本
func (p *Pad) Strokes() [][]PixelPoint {
	out := make([][]PixelPoint, len(p.strokes))
	for i, s := range p.strokes {
		out[i] = append([]PixelPoint(nil), s...)
	}
	return out
}

// NormalizedStrokes 笔画换算为签名板比例坐标
func (p *Pad) NormalizedStrokes() [][]Point {
	out := make([][]Point, len(p.strokes))
	for i, s := range p.strokes {
		out[i] = make([]Point, len(s))
		for j, pt := range s {
			out[i][j] = Point{X: pt.X / float64(p.w), Y: pt.Y / float64(p.h)}
		}
	}
	return out
}

// Paint 绘制笔画, 包括进行中的一笔
func (p *Pad) Paint(s Surface) {
	for _, st := range p.strokes {
		s.StrokePath(SmoothPath(st), p.Color, p.StrokeWidth)
	}
	if len(p.current) > 0 {
		s.StrokePath(SmoothPath(p.current), p.Color, p.StrokeWidth)
	}
}

// Image 整个签名板的透明背景位图
// 返回: *image.RGBA 位图
func (p *Pad) Image() *image.RGBA {
	s := newCanvasSurface(float64(p.w), float64(p.h))
	for _, st := range p.strokes {
		s.StrokePath(SmoothPath(st), p.Color, p.StrokeWidth)
	}
	return s.rasterize()
}

// Cropped 裁剪到非透明内容并保留固定边距
// 返回: *image.RGBA 位图, error 签名板为空时返回 ErrEmptySignature
func (p *Pad) Cropped() (*image.RGBA, error) {
	if p.Empty() {
		return nil, ErrEmptySignature
	}
	img := p.Image()
	r, ok := opaqueBounds(img)
	if !ok {
		return nil, ErrEmptySignature
	}
	r = image.Rect(r.Min.X-SignaturePadding, r.Min.Y-SignaturePadding, r.Max.X+SignaturePadding, r.Max.Y+SignaturePadding)
	return transform.Crop(img, r.Intersect(img.Bounds())), nil
}

// opaqueBounds 扫描最小的非透明矩形
func opaqueBounds(img *image.RGBA) (image.Rectangle, bool) {
	b := img.Bounds()
	minX, minY, maxX, maxY := b.Max.X, b.Max.Y, b.Min.X-1, b.Min.Y-1
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[(y-b.Min.Y)*img.Stride:]
		for x := b.Min.X; x < b.Max.X; x++ {
			if row[(x-b.Min.X)*4+3] == 0 {
				continue
			}
			minX, maxX = min(minX, x), max(maxX, x)
			minY, maxY = min(minY, y), max(maxY, y)
		}
	}
	if maxX < minX {
		return image.Rectangle{}, false
	}
	return image.Rect(minX, minY, maxX+1, maxY+1), true
}
