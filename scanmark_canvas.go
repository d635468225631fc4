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
	"errors"
	"image"
	"image/color"
	"log/slog"
	"slices"
)

// Tool 当前工具
type Tool int

const (
	ToolSelect Tool = iota
	ToolDraw
	ToolText
	ToolSignature
	ToolStamp
	ToolRectangle
	ToolOval
	ToolLine
	ToolArrow
	ToolHighlight
	ToolCheckmark
	ToolCross
	ToolEraser
)

var toolNames = [...]string{
	"select", "draw", "text", "signature", "stamp", "rectangle", "oval",
	"line", "arrow", "highlight", "checkmark", "cross", "eraser",
}

func (t Tool) String() string {
	if t < 0 || int(t) >= len(toolNames) {
		return "unknown"
	}
	return toolNames[t]
}

// ParseTool 按名称解析工具
func ParseTool(name string) (Tool, bool) {
	i := slices.Index(toolNames[:], name)
	return Tool(i), i >= 0
}

const (
	// JitterThreshold 手绘记录新点所需的最小位移 (像素)
	JitterThreshold = 3.0
	// MinShapeSize 形状宽高都小于该值时视为误触 (页面比例)
	MinShapeSize = 0.01
)

// gesture 单次指针手势的状态
type gesture int

const (
	gestureIdle gesture = iota
	gestureDragging
	gestureDrawing
	gesturePreview
	gestureTap
)

// RequestKind 需要外部提供内容的请求类型
type RequestKind int

const (
	RequestText RequestKind = iota
	RequestSignature
	RequestStamp
)

func (k RequestKind) String() string {
	switch k {
	case RequestText:
		return "text"
	case RequestSignature:
		return "signature"
	case RequestStamp:
		return "stamp"
	}
	return "unknown"
}

// Request 点击位置的内容请求
type Request struct {
	Kind RequestKind
	Page int
	At   Point
}

// ToolStyle 新建注释使用的样式
type ToolStyle struct {
	Color       color.NRGBA
	StrokeWidth float64 // 参考单位
	TextSize    float64 // 参考单位
	Fill        *color.NRGBA
}

// CanvasEvents 画布对外通知, 均在事件循环上同步调用
type CanvasEvents struct {
	SelectionChanged   func(it *Item)
	AnnotationsChanged func(page int, items []*Item)
	Request            func(r Request)
}

// selectionColor 选中框颜色
var selectionColor = color.NRGBA{0x19, 0x76, 0xD2, 0xFF}

// Canvas 交互式注释画布
// 持有当前页注释的临时副本, 每次提交后通过 AnnotationsChanged 写回
type Canvas struct {
	logger *slog.Logger
	events CanvasEvents

	page         int
	items        []*Item
	background   image.Image
	bgErr        error
	viewW, viewH float64

	tool     Tool
	style    ToolStyle
	selected string

	state   gesture
	anchor  Point
	lastPx  PixelPoint
	working *Item
	stroke  []Point
}

// NewCanvas 创建画布
// 入参: logger 日志, events 事件回调
// 返回: *Canvas 画布
func NewCanvas(logger *slog.Logger, events CanvasEvents) *Canvas {
	if logger == nil {
		logger = slog.Default()
	}
	return &Canvas{
		logger: logger,
		events: events,
		style:  ToolStyle{Color: color.NRGBA{A: 0xFF}, StrokeWidth: 2, TextSize: 16},
	}
}

// SetPage 载入页面, 清空手势与选中
// 入参: page 页码, items 注释列表, bg 页面位图, bgErr 渲染错误
func (c *Canvas) SetPage(page int, items []*Item, bg image.Image, bgErr error) {
	c.cancelGesture()
	c.page = page
	c.items = cloneItems(items)
	c.background, c.bgErr = bg, bgErr
	c.setSelected("")
}

// SetBackground 更新页面位图
func (c *Canvas) SetBackground(bg image.Image, err error) {
	c.background, c.bgErr = bg, err
}

// Page 当前页码
func (c *Canvas) Page() int { return c.page }

// SetViewSize 设置视图像素尺寸
func (c *Canvas) SetViewSize(w, h float64) {
	c.viewW, c.viewH = w, h
}

// ViewSize 视图像素尺寸
func (c *Canvas) ViewSize() (float64, float64) { return c.viewW, c.viewH }

// Tool 当前工具
func (c *Canvas) Tool() Tool { return c.tool }

// SetTool 切换工具, 进行中的手势被放弃
func (c *Canvas) SetTool(t Tool) {
	if t == c.tool {
		return
	}
	c.cancelGesture()
	c.tool = t
	if t != ToolSelect {
		c.setSelected("")
	}
}

// Style 当前样式
func (c *Canvas) Style() ToolStyle { return c.style }

// SetStyle 设置样式
func (c *Canvas) SetStyle(s ToolStyle) { c.style = s }

// Items 当前页注释副本
func (c *Canvas) Items() []*Item { return cloneItems(c.items) }

// Selected 当前选中注释副本, 无选中时为 nil
func (c *Canvas) Selected() *Item {
	if i := c.indexOf(c.selected); i >= 0 {
		return c.items[i].Clone()
	}
	return nil
}

// Select 按ID选中注释, 空ID清除选中
// 入参: id 注释ID
// 返回: bool 是否存在
func (c *Canvas) Select(id string) bool {
	if id != "" && c.indexOf(id) < 0 {
		return false
	}
	c.setSelected(id)
	return true
}

// Add 追加注释并提交, 页码不符时丢弃
// 入参: it 注释
// 返回: bool 是否已添加
func (c *Canvas) Add(it *Item) bool {
	if it == nil || it.Page() != c.page {
		return false
	}
	c.items = append(c.items, it.Clone())
	c.commit()
	return true
}

// HitTest 逆序查找包含该点的注释, 后添加者优先
// 入参: p 归一化坐标
// 返回: *Item 注释, 未命中为 nil
func (c *Canvas) HitTest(p Point) *Item {
	if i := c.hit(p); i >= 0 {
		return c.items[i].Clone()
	}
	return nil
}

func (c *Canvas) hit(p Point) int {
	for i := len(c.items) - 1; i >= 0; i-- {
		if c.items[i].Bounds().Contains(p) {
			return i
		}
	}
	return -1
}

func (c *Canvas) indexOf(id string) int {
	if id == "" {
		return -1
	}
	return slices.IndexFunc(c.items, func(it *Item) bool { return it.ID == id })
}

// toNorm 视图像素转归一化坐标, 零尺寸视图返回 false
func (c *Canvas) toNorm(x, y float64) (Point, bool) {
	if c.viewW <= 0 || c.viewH <= 0 {
		return Point{}, false
	}
	return clampPoint(Point{X: x / c.viewW, Y: y / c.viewH}), true
}

// Press 指针按下
// 入参: x 视图X, y 视图Y
func (c *Canvas) Press(x, y float64) {
	p, ok := c.toNorm(x, y)
	if !ok {
		return
	}
	c.cancelGesture()
	c.anchor, c.lastPx = p, PixelPoint{X: x, Y: y}
	switch c.tool {
	case ToolSelect:
		i := c.hit(p)
		if i < 0 {
			c.setSelected("")
			return
		}
		c.setSelected(c.items[i].ID)
		c.working = c.items[i].Clone()
		c.state = gestureDragging
	case ToolDraw:
		c.stroke = []Point{p}
		c.state = gestureDrawing
	case ToolRectangle, ToolOval, ToolLine, ToolArrow, ToolHighlight:
		c.state = gesturePreview
	case ToolText, ToolSignature, ToolStamp, ToolCheckmark, ToolCross, ToolEraser:
		c.state = gestureTap
	}
}

// Move 指针移动
// 入参: x 视图X, y 视图Y
func (c *Canvas) Move(x, y float64) {
	p, ok := c.toNorm(x, y)
	if !ok {
		return
	}
	switch c.state {
	case gestureDragging:
		i := c.indexOf(c.working.ID)
		if i < 0 {
			c.cancelGesture()
			return
		}
		orig := c.items[i].Bounds()
		c.working.MoveTo(orig.X+p.X-c.anchor.X, orig.Y+p.Y-c.anchor.Y)
	case gestureDrawing:
		dx, dy := x-c.lastPx.X, y-c.lastPx.Y
		if dx*dx+dy*dy > JitterThreshold*JitterThreshold {
			c.stroke = append(c.stroke, p)
			c.lastPx = PixelPoint{X: x, Y: y}
		}
	case gesturePreview:
		c.working = c.shapeItem(c.anchor, p)
	}
}

// Release 指针抬起, 提交手势结果
// 入参: x 视图X, y 视图Y
func (c *Canvas) Release(x, y float64) {
	if _, ok := c.toNorm(x, y); !ok {
		c.cancelGesture()
		return
	}
	c.Move(x, y)
	state, working, stroke := c.state, c.working, c.stroke
	c.cancelGesture()
	switch state {
	case gestureDragging:
		i := c.indexOf(working.ID)
		if i >= 0 && c.items[i].Bounds() != working.Bounds() {
			c.items[i] = working
			c.commit()
		}
	case gestureDrawing:
		c.commitStroke(stroke)
	case gesturePreview:
		if working == nil {
			return
		}
		if r := working.Bounds(); r.W < MinShapeSize && r.H < MinShapeSize {
			return
		}
		c.items = append(c.items, working)
		c.commit()
	case gestureTap:
		c.tap(c.anchor)
	}
}

// Cancel 放弃进行中的手势
func (c *Canvas) Cancel() { c.cancelGesture() }

func (c *Canvas) cancelGesture() {
	c.state = gestureIdle
	c.working = nil
	c.stroke = nil
}

// commitStroke 一次手绘提交为一个 Drawing, 少于两点视为误触
func (c *Canvas) commitStroke(pts []Point) {
	if len(pts) < 2 {
		return
	}
	c.items = append(c.items, c.drawingItem(pts))
	c.commit()
}

func (c *Canvas) drawingItem(pts []Point) *Item {
	strokes := [][]Point{append([]Point(nil), pts...)}
	d := &Drawing{Strokes: strokes, Color: c.style.Color, StrokeWidth: c.style.StrokeWidth}
	return NewItem(c.page, strokeBounds(strokes), d)
}

// shapeItem 由拖拽对角点生成形状或高亮
func (c *Canvas) shapeItem(a, b Point) *Item {
	r := rectFromCorners(a, b)
	if c.tool == ToolHighlight {
		return NewItem(c.page, r, &Highlight{Color: c.style.Color})
	}
	s := &Shape{
		Color:       c.style.Color,
		StrokeWidth: c.style.StrokeWidth,
		FlipX:       b.X < a.X,
		FlipY:       b.Y < a.Y,
	}
	switch c.tool {
	case ToolOval:
		s.Kind = ShapeOval
	case ToolLine:
		s.Kind = ShapeLine
	case ToolArrow:
		s.Kind = ShapeArrow
	default:
		s.Kind = ShapeRectangle
	}
	if c.style.Fill != nil && (s.Kind == ShapeRectangle || s.Kind == ShapeOval) {
		fill := *c.style.Fill
		s.Fill = &fill
	}
	return NewItem(c.page, r, s)
}

func (c *Canvas) tap(p Point) {
	switch c.tool {
	case ToolText:
		c.request(RequestText, p)
	case ToolSignature:
		c.request(RequestSignature, p)
	case ToolStamp:
		c.request(RequestStamp, p)
	case ToolCheckmark, ToolCross:
		kind := ShapeCheckmark
		if c.tool == ToolCross {
			kind = ShapeCross
		}
		w := MarkSize
		h := MarkSize * c.viewW / c.viewH
		r := Rect{X: p.X - w/2, Y: p.Y - h/2, W: w, H: h}
		c.items = append(c.items, NewItem(c.page, r, &Shape{
			Kind: kind, Color: c.style.Color, StrokeWidth: c.style.StrokeWidth,
		}))
		c.commit()
	case ToolEraser:
		i := c.hit(p)
		if i < 0 {
			return
		}
		if c.items[i].ID == c.selected {
			c.setSelected("")
		}
		c.items = slices.Delete(c.items, i, i+1)
		c.commit()
	}
}

func (c *Canvas) request(kind RequestKind, p Point) {
	if c.events.Request != nil {
		c.events.Request(Request{Kind: kind, Page: c.page, At: p})
	}
}

// ResizeSelected 按系数缩放选中注释
// 入参: factor 缩放系数
// 返回: float64 实际系数, 无选中时为 0
func (c *Canvas) ResizeSelected(factor float64) float64 {
	i := c.indexOf(c.selected)
	if i < 0 || factor <= 0 {
		return 0
	}
	before := c.items[i].Bounds()
	f := c.items[i].Scale(factor)
	if c.items[i].Bounds() != before || f != 1 {
		c.commit()
	}
	return f
}

// DeleteSelected 删除选中注释
// 返回: bool 是否删除
func (c *Canvas) DeleteSelected() bool {
	i := c.indexOf(c.selected)
	if i < 0 {
		return false
	}
	c.items = slices.Delete(c.items, i, i+1)
	c.setSelected("")
	c.commit()
	return true
}

func (c *Canvas) setSelected(id string) {
	if id == c.selected {
		return
	}
	c.selected = id
	if c.events.SelectionChanged != nil {
		c.events.SelectionChanged(c.Selected())
	}
}

// commit 写回当前页列表
func (c *Canvas) commit() {
	if c.events.AnnotationsChanged != nil {
		c.events.AnnotationsChanged(c.page, cloneItems(c.items))
	}
}

// Paint 绘制背景, 注释, 进行中的注释与选中框
// 入参: s 绘制面
func (c *Canvas) Paint(s Surface) {
	w, h := s.Size()
	if w <= 0 || h <= 0 {
		return
	}
	switch {
	case c.background != nil:
		s.DrawImage(c.background, PixelRect{W: w, H: h})
	case c.bgErr != nil:
		paintPlaceholder(s)
	default:
		s.FillPath(RectPath(PixelRect{W: w, H: h}), color.White)
	}
	for _, it := range c.items {
		if c.state == gestureDragging && it.ID == c.working.ID {
			it = c.working
		}
		if err := PaintItem(s, it); err != nil {
			c.logger.Warn("paint annotation", "id", it.ID, "err", err)
		}
	}
	if inProgress := c.inProgress(); inProgress != nil {
		_ = PaintItem(s, inProgress)
	}
	if i := c.indexOf(c.selected); i >= 0 {
		it := c.items[i]
		if c.state == gestureDragging {
			it = c.working
		}
		paintSelection(s, it.Bounds().ToPixels(w, h), selectionColor)
	}
}

// inProgress 手绘轨迹或形状预览
func (c *Canvas) inProgress() *Item {
	switch c.state {
	case gestureDrawing:
		if len(c.stroke) > 1 {
			return c.drawingItem(c.stroke)
		}
	case gesturePreview:
		return c.working
	}
	return nil
}

// Render 按视图尺寸输出当前帧
// 返回: *image.RGBA 帧, error 错误信息
func (c *Canvas) Render() (*image.RGBA, error) {
	if c.viewW <= 0 || c.viewH <= 0 {
		return nil, errors.New("canvas view has zero size")
	}
	s := newCanvasSurface(c.viewW, c.viewH)
	c.Paint(s)
	return s.rasterize(), nil
}
