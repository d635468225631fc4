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
	"crypto/rand"
	"encoding/hex"
	"image"
	"image/color"
	"math"

	"golang.org/x/text/unicode/norm"
)

const (
	// MinTextSize 文本最小字号 (参考单位)
	MinTextSize = 6.0
	// MaxTextSize 文本最大字号 (参考单位)
	MaxTextSize = 120.0
	// HighlightAlpha 高亮固定透明度
	HighlightAlpha = 0x55
	// MarkSize 勾/叉标记的固定宽度 (页宽比例)
	MarkSize = 0.05
	// SignatureWidth 新签名的默认宽度 (页宽比例)
	SignatureWidth = 0.3
	// StampFontSize 印章基础字号 (参考单位)
	StampFontSize = 18.0
)

// Kind 注释类型
type Kind int

const (
	KindSignature Kind = iota // 签名
	KindText                  // 文本
	KindShape                 // 形状
	KindStamp                 // 印章
	KindDrawing               // 手绘
	KindHighlight             // 高亮
)

var kindNames = [...]string{"signature", "text", "shape", "stamp", "drawing", "highlight"}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// Payload 注释内容, 封闭的变体集合
// 仅本包内的六种类型实现该接口
type Payload interface {
	payloadKind() Kind
	clone() Payload
}

// Signature 签名, 持有裁剪后的位图
type Signature struct {
	Image image.Image
}

// TextStyle 文本样式位
type TextStyle uint8

const (
	TextBold TextStyle = 1 << iota
	TextItalic
	TextUnderline
)

// Text 文本注释
type Text struct {
	Content string
	Size    float64 // 参考单位
	Color   color.NRGBA
	Style   TextStyle
}

// ShapeKind 形状种类
type ShapeKind int

const (
	ShapeRectangle ShapeKind = iota
	ShapeOval
	ShapeLine
	ShapeArrow
	ShapeCheckmark
	ShapeCross
)

var shapeNames = [...]string{"rectangle", "oval", "line", "arrow", "checkmark", "cross"}

func (k ShapeKind) String() string {
	if k < 0 || int(k) >= len(shapeNames) {
		return "unknown"
	}
	return shapeNames[k]
}

// Shape 形状注释
// 直线与箭头从 (FlipX ? 右 : 左, FlipY ? 下 : 上) 角画到对角
type Shape struct {
	Kind        ShapeKind
	Color       color.NRGBA
	StrokeWidth float64 // 参考单位
	Fill        *color.NRGBA
	FlipX       bool
	FlipY       bool
}

// StampKind 印章种类
type StampKind int

const (
	StampApproved StampKind = iota
	StampRejected
	StampDraft
	StampConfidential
	StampPaid
	StampReceived
	StampUrgent
	StampVoid
	StampReviewed
	StampFinal
)

type stampInfo struct {
	label string
	color color.NRGBA
}

var stampTable = [...]stampInfo{
	StampApproved:     {"APPROVED", color.NRGBA{0x2E, 0x7D, 0x32, 0xFF}},
	StampRejected:     {"REJECTED", color.NRGBA{0xC6, 0x28, 0x28, 0xFF}},
	StampDraft:        {"DRAFT", color.NRGBA{0x61, 0x61, 0x61, 0xFF}},
	StampConfidential: {"CONFIDENTIAL", color.NRGBA{0xB7, 0x1C, 0x1C, 0xFF}},
	StampPaid:         {"PAID", color.NRGBA{0x1B, 0x5E, 0x20, 0xFF}},
	StampReceived:     {"RECEIVED", color.NRGBA{0x15, 0x65, 0xC0, 0xFF}},
	StampUrgent:       {"URGENT", color.NRGBA{0xE6, 0x51, 0x00, 0xFF}},
	StampVoid:         {"VOID", color.NRGBA{0x42, 0x42, 0x42, 0xFF}},
	StampReviewed:     {"REVIEWED", color.NRGBA{0x6A, 0x1B, 0x9A, 0xFF}},
	StampFinal:        {"FINAL", color.NRGBA{0x0D, 0x47, 0xA1, 0xFF}},
}

// StampKinds 返回全部印章种类
func StampKinds() []StampKind {
	kinds := make([]StampKind, len(stampTable))
	for i := range stampTable {
		kinds[i] = StampKind(i)
	}
	return kinds
}

// Valid 是否为已知印章
func (k StampKind) Valid() bool {
	return k >= 0 && int(k) < len(stampTable)
}

// Label 印章文字
func (k StampKind) Label() string {
	if !k.Valid() {
		return ""
	}
	return stampTable[k].label
}

// DefaultColor 印章默认颜色
func (k StampKind) DefaultColor() color.NRGBA {
	if !k.Valid() {
		return color.NRGBA{A: 0xFF}
	}
	return stampTable[k].color
}

func (k StampKind) String() string { return k.Label() }

// Stamp 印章注释
type Stamp struct {
	Kind     StampKind
	Color    color.NRGBA
	Scale    float64
	Rotation float64 // 角度, 顺时针
}

// Drawing 多笔画手绘, 点为页面归一化坐标
type Drawing struct {
	Strokes     [][]Point
	Color       color.NRGBA
	StrokeWidth float64 // 参考单位
}

// Highlight 半透明高亮矩形
type Highlight struct {
	Color color.NRGBA
}

func (*Signature) payloadKind() Kind { return KindSignature }
func (*Text) payloadKind() Kind      { return KindText }
func (*Shape) payloadKind() Kind     { return KindShape }
func (*Stamp) payloadKind() Kind     { return KindStamp }
func (*Drawing) payloadKind() Kind   { return KindDrawing }
func (*Highlight) payloadKind() Kind { return KindHighlight }

// 签名位图视为不可变, 副本共享同一位图
func (p *Signature) clone() Payload { c := *p; return &c }
func (p *Text) clone() Payload      { c := *p; return &c }
func (p *Stamp) clone() Payload     { c := *p; return &c }
func (p *Highlight) clone() Payload { c := *p; return &c }

func (p *Shape) clone() Payload {
	c := *p
	if p.Fill != nil {
		fill := *p.Fill
		c.Fill = &fill
	}
	return &c
}

func (p *Drawing) clone() Payload {
	c := *p
	c.Strokes = make([][]Point, len(p.Strokes))
	for i, s := range p.Strokes {
		c.Strokes[i] = append([]Point(nil), s...)
	}
	return &c
}

// Item 页面上的一个注释
// 坐标为页面比例, 任何变更后都满足 0<=x, 0<=y, x+w<=1, y+h<=1
type Item struct {
	ID      string
	page    int
	rect    Rect
	placed  bool
	Payload Payload
}

// NewItem 创建注释并立即执行边界约束
// 入参: page 页码, r 归一化矩形, p 注释内容
// 返回: *Item 注释
func NewItem(page int, r Rect, p Payload) *Item {
	it := &Item{ID: newID(), page: page, Payload: p}
	if t, ok := p.(*Text); ok {
		t.Content = norm.NFC.String(t.Content)
		t.Size = clampRange(t.Size, MinTextSize, MaxTextSize)
	}
	it.setRect(r)
	return it
}

// Page 所属页码, 创建后不再变化
func (it *Item) Page() int { return it.page }

// Bounds 归一化外接矩形
func (it *Item) Bounds() Rect { return it.rect }

// Kind 注释类型
func (it *Item) Kind() Kind { return it.Payload.payloadKind() }

// Clone 深拷贝
func (it *Item) Clone() *Item {
	c := *it
	c.Payload = it.Payload.clone()
	return &c
}

// MoveTo 移动左上角到指定位置, 越界时贴边
// 入参: x 目标X, y 目标Y
func (it *Item) MoveTo(x, y float64) {
	r := it.rect
	r.X, r.Y = x, y
	it.setRect(r)
}

// Translate 平移
func (it *Item) Translate(dx, dy float64) {
	it.MoveTo(it.rect.X+dx, it.rect.Y+dy)
}

// Scale 以中心为基准缩放宽高
// 缩放后超出页面时按比例缩小系数 (保持宽高比), 再平移回页面内
// 文本字号按实际系数同步缩放并限制在 [MinTextSize, MaxTextSize]
// 入参: factor 缩放系数
// 返回: float64 实际生效的系数
func (it *Item) Scale(factor float64) float64 {
	if factor <= 0 || math.IsNaN(factor) || math.IsInf(factor, 0) {
		return 1
	}
	r := it.rect
	f := factor
	if r.W > 0 && r.W*f > 1 {
		f = 1 / r.W
	}
	if r.H > 0 && r.H*f > 1 {
		f = 1 / r.H
	}
	if t, ok := it.Payload.(*Text); ok && t.Size > 0 {
		size := clampRange(t.Size*f, MinTextSize, MaxTextSize)
		f = size / t.Size
		t.Size = size
	}
	c := r.Center()
	nr := Rect{W: r.W * f, H: r.H * f}
	nr.X = c.X - nr.W/2
	nr.Y = c.Y - nr.H/2
	if s, ok := it.Payload.(*Stamp); ok {
		s.Scale *= f
	}
	it.setRect(nr)
	return f
}

// setRect 写入矩形并约束, 手绘点从旧矩形映射到新矩形
func (it *Item) setRect(r Rect) {
	from := it.rect
	if !it.placed {
		from = r
	}
	to := clampRect(r)
	if d, ok := it.Payload.(*Drawing); ok {
		d.remap(from, to)
	}
	it.rect = to
	it.placed = true
}

// remap 把笔画点从 from 矩形仿射映射到 to 矩形
func (d *Drawing) remap(from, to Rect) {
	if from == to {
		return
	}
	sx, sy := 1.0, 1.0
	if from.W > 0 {
		sx = to.W / from.W
	}
	if from.H > 0 {
		sy = to.H / from.H
	}
	for _, s := range d.Strokes {
		for i, p := range s {
			s[i] = clampPoint(Point{
				X: to.X + (p.X-from.X)*sx,
				Y: to.Y + (p.Y-from.Y)*sy,
			})
		}
	}
}

// newID 生成不透明唯一标识
func newID() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// strokeBounds 计算笔画点集的外接矩形
func strokeBounds(strokes [][]Point) Rect {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, s := range strokes {
		for _, p := range s {
			minX, minY = math.Min(minX, p.X), math.Min(minY, p.Y)
			maxX, maxY = math.Max(maxX, p.X), math.Max(maxY, p.Y)
		}
	}
	if math.IsInf(minX, 1) {
		return Rect{}
	}
	return Rect{X: minX, Y: minY, W: maxX - minX, H: maxY - minY}
}
