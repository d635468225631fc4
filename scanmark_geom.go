// Copyright 2025-2026 肖其顿 (XIAO QI DUN)
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

import "math"

// RefWidth 参考页宽, 字号与线宽均以页宽的 1/RefWidth 为单位
const RefWidth = 595.0

// Point 页面归一化坐标点 (页宽/页高的比例)
type Point struct {
	X, Y float64
}

// Rect 归一化矩形, X/Y 为左上角
type Rect struct {
	X, Y, W, H float64
}

// Contains 判断点是否落在矩形内 (含边界)
func (r Rect) Contains(p Point) bool {
	return p.X >= r.X && p.X <= r.X+r.W && p.Y >= r.Y && p.Y <= r.Y+r.H
}

// Center 矩形中心
func (r Rect) Center() Point {
	return Point{X: r.X + r.W/2, Y: r.Y + r.H/2}
}

// ToPixels 把归一化矩形换算为像素矩形
// 入参: w 页面像素宽, h 页面像素高
// 返回: PixelRect 像素矩形
func (r Rect) ToPixels(w, h float64) PixelRect {
	return PixelRect{X: r.X * w, Y: r.Y * h, W: r.W * w, H: r.H * h}
}

// PixelRect 像素空间矩形, 原点在左上角
type PixelRect struct {
	X, Y, W, H float64
}

// rectFromCorners 由两个对角点构造矩形
func rectFromCorners(a, b Point) Rect {
	return Rect{
		X: math.Min(a.X, b.X),
		Y: math.Min(a.Y, b.Y),
		W: math.Abs(b.X - a.X),
		H: math.Abs(b.Y - a.Y),
	}
}

// clampRange 将值限制在 [lo, hi]
func clampRange(v, lo, hi float64) float64 {
	if hi < lo {
		hi = lo
	}
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// clampRect 把矩形限制在页面 [0,1] 范围内
// 先裁剪尺寸, 再平移位置, 保证 x+w<=1 且 y+h<=1
func clampRect(r Rect) Rect {
	r.W = clampRange(r.W, 0, 1)
	r.H = clampRange(r.H, 0, 1)
	r.X = clampRange(r.X, 0, 1-r.W)
	r.Y = clampRange(r.Y, 0, 1-r.H)
	return r
}

// clampPoint 把点限制在页面范围内
func clampPoint(p Point) Point {
	return Point{X: clampRange(p.X, 0, 1), Y: clampRange(p.Y, 0, 1)}
}

// Size 页面物理尺寸, 单位毫米
type Size struct {
	W, H float64
}

// Aspect 高宽比
func (s Size) Aspect() float64 {
	if s.W <= 0 {
		return 1
	}
	return s.H / s.W
}

// Pixels 按DPI换算像素尺寸
// 入参: dpi 分辨率
// 返回: int 宽, int 高
func (s Size) Pixels(dpi float64) (int, int) {
	dpmm := dpi / 25.4
	w := int(math.Round(s.W * dpmm))
	h := int(math.Round(s.H * dpmm))
	return max(w, 1), max(h, 1)
}
