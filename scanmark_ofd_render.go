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

import (
	"bytes"
	"cmp"
	"image"
	"image/color"
	"io/fs"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	_ "github.com/xiaoqidun/jbig2"
	"golang.org/x/image/draw"
)

// renderInto 矢量绘制页面后按目标宽度光栅化
// 入参: dst 目标位图
// 返回: error 错误信息
func (p *ofdPage) renderInto(dst *image.RGBA) error {
	if p.content == nil {
		return ErrClosed
	}
	c := canvas.New(p.box.W, p.box.H)
	ctx := canvas.NewContext(c)
	p.draw(ctx)
	db := dst.Bounds()
	dpmm := float64(db.Dx()) / p.box.W
	var img image.Image = rasterizer.Draw(c, canvas.DPMM(dpmm), canvas.DefaultColorSpace)
	draw.Draw(dst, db, image.NewUniform(color.White), image.Point{}, draw.Src)
	if img.Bounds().Size() == db.Size() {
		draw.Draw(dst, db, img, img.Bounds().Min, draw.Over)
		return nil
	}
	draw.BiLinear.Scale(dst, db, img, img.Bounds(), draw.Over, nil)
	return nil
}

// draw 白底上绘制页面内容, 最后叠加签章外观
func (p *ofdPage) draw(ctx *canvas.Context) {
	ctx.SetFillColor(canvas.White)
	ctx.DrawPath(0, 0, canvas.Rectangle(p.box.W, p.box.H))
	p.drawContent(ctx)
	for _, s := range p.seals {
		p.drawSeal(ctx, s, p.box.H)
	}
}

// drawContent 按背景模板, 图层, 前景模板的顺序绘制
func (p *ofdPage) drawContent(ctx *canvas.Context) {
	pageH := p.box.H
	for _, tpl := range p.content.Template {
		if tpl.ZOrder != "Foreground" {
			p.drawTemplate(ctx, tpl.TemplateID, pageH)
		}
	}
	for _, layer := range p.content.Content.Layer {
		p.drawLayer(ctx, layer, pageH)
	}
	for _, tpl := range p.content.Template {
		if tpl.ZOrder == "Foreground" {
			p.drawTemplate(ctx, tpl.TemplateID, pageH)
		}
	}
}

// drawTemplate 绘制模板页, 模板缺失时跳过
func (p *ofdPage) drawTemplate(ctx *canvas.Context, id string, pageH float64) {
	for _, tp := range p.doc.doc.CommonData.TemplatePage {
		if tp.ID != id {
			continue
		}
		content, err := p.doc.pageContent(tp.BaseLoc)
		if err != nil {
			return
		}
		for _, layer := range content.Content.Layer {
			p.drawLayer(ctx, layer, pageH)
		}
		return
	}
}

// drawStyle 图层继承给图元的绘制参数
type drawStyle struct {
	fill      color.Color
	stroke    color.Color
	lineWidth float64
}

// with 用非零的线宽与颜色覆盖当前样式
func (s drawStyle) with(lineWidth float64, fill, stroke *ofdColor) drawStyle {
	if lineWidth > 0 {
		s.lineWidth = lineWidth
	}
	if c, ok := fill.nrgba(); ok {
		s.fill = c
	}
	if c, ok := stroke.nrgba(); ok {
		s.stroke = c
	}
	return s
}

func (s drawStyle) apply(dp *ofdDrawParam) drawStyle {
	if dp == nil {
		return s
	}
	return s.with(dp.LineWidth, dp.FillColor, dp.StrokeColor)
}

func (p *ofdPage) drawLayer(ctx *canvas.Context, layer ofdLayer, pageH float64) {
	style := drawStyle{}.apply(p.doc.drawParam(layer.DrawParam, nil))
	for _, obj := range layer.ImageObject {
		p.drawImage(ctx, obj, pageH)
	}
	for _, obj := range layer.PathObject {
		p.drawPath(ctx, obj, pageH, style)
	}
	for _, obj := range layer.TextObject {
		p.drawText(ctx, obj, pageH, style)
	}
}

// drawParam 解析绘制参数, 子参数的非零字段覆盖 Relative 父参数
// 入参: id 参数ID, visited 已访问ID, 防止循环引用
// 返回: *ofdDrawParam 合并后的绘制参数
func (r *ofdDocumentReader) drawParam(id string, visited map[string]bool) *ofdDrawParam {
	dp, ok := r.drawParams[id]
	if id == "" || !ok || visited[id] {
		return nil
	}
	if dp.Relative == "" {
		return dp
	}
	if visited == nil {
		visited = map[string]bool{}
	}
	visited[id] = true
	parent := r.drawParam(dp.Relative, visited)
	if parent == nil {
		return dp
	}
	out := *parent
	out.ID, out.Relative = dp.ID, dp.Relative
	out.LineWidth = cmp.Or(dp.LineWidth, parent.LineWidth)
	out.FillColor = cmp.Or(dp.FillColor, parent.FillColor)
	out.StrokeColor = cmp.Or(dp.StrokeColor, parent.StrokeColor)
	return &out
}

func (p *ofdPage) drawImage(ctx *canvas.Context, obj ofdImageObject, pageH float64) {
	loc, ok := p.doc.media[obj.ResourceID]
	if !ok {
		return
	}
	data, err := p.doc.resData(loc)
	if err != nil {
		return
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return
	}
	imgW, imgH := float64(img.Bounds().Dx()), float64(img.Bounds().Dy())
	if imgW <= 0 || imgH <= 0 {
		return
	}
	space := newObjectSpace(obj.Boundary, obj.CTM, pageH)
	if obj.CTM == "" {
		box, _ := ofdBox(obj.Boundary)
		space.ctm = canvas.Identity.Scale(box.W, box.H)
	}
	ctx.Push()
	ctx.Translate(space.point(0, 1))
	ctx.Scale(space.ctm[0][0]/imgW, space.ctm[1][1]/imgH)
	ctx.DrawImage(0, 0, img, canvas.DPMM(1.0))
	ctx.Pop()
}

// drawPath 绘制路径对象, 未指定描边颜色时用黑色
func (p *ofdPage) drawPath(ctx *canvas.Context, obj ofdPathObject, pageH float64, style drawStyle) {
	space := newObjectSpace(obj.Boundary, obj.CTM, pageH)
	style = style.apply(p.doc.drawParam(obj.DrawParam, nil)).with(obj.LineWidth, obj.FillColor, obj.StrokeColor)
	path := abbreviatedPath(obj.AbbreviatedData, space.point)
	if path.Empty() {
		return
	}
	ctx.Push()
	defer ctx.Pop()
	if (obj.Fill == nil || *obj.Fill) && style.fill != nil {
		ctx.SetFillColor(style.fill)
		ctx.SetStrokeColor(canvas.Transparent)
		ctx.DrawPath(0, 0, path)
	}
	if obj.Stroke != nil && !*obj.Stroke {
		return
	}
	ctx.SetFillColor(canvas.Transparent)
	ctx.SetStrokeColor(cmp.Or(style.stroke, color.Color(canvas.Black)))
	ctx.SetStrokeWidth(cmp.Or(style.lineWidth, 0.353))
	ctx.DrawPath(0, 0, path)
}

// abbreviatedPath 解析路径简写, 支持 M S L Q B C 指令, 参数不足的指令被忽略
// 入参: data 简写数据, pt 把对象坐标换算为画布坐标
// 返回: *canvas.Path 路径
func abbreviatedPath(data string, pt func(x, y float64) (float64, float64)) *canvas.Path {
	path := &canvas.Path{}
	tokens := strings.Fields(data)
	args := func(i, n int) ([]float64, bool) {
		if i+2*n > len(tokens) {
			return nil, false
		}
		out := make([]float64, 0, 2*n)
		for k := 0; k < n; k++ {
			x, errX := strconv.ParseFloat(tokens[i+2*k], 64)
			y, errY := strconv.ParseFloat(tokens[i+2*k+1], 64)
			if errX != nil || errY != nil {
				return nil, false
			}
			x, y = pt(x, y)
			out = append(out, x, y)
		}
		return out, true
	}
	arity := map[string]int{"M": 1, "S": 1, "L": 1, "Q": 2, "B": 3, "C": 0}
	for i := 0; i < len(tokens); {
		op := tokens[i]
		n, known := arity[op]
		i++
		if !known {
			continue
		}
		a, ok := args(i, n)
		if !ok {
			break
		}
		i += 2 * n
		switch op {
		case "M", "S":
			path.MoveTo(a[0], a[1])
		case "L":
			path.LineTo(a[0], a[1])
		case "Q":
			path.QuadTo(a[0], a[1], a[2], a[3])
		case "B":
			path.CubeTo(a[0], a[1], a[2], a[3], a[4], a[5])
		case "C":
			path.Close()
		}
	}
	return path
}

// drawText 逐字绘制文本, 缺少 DeltaX 时按字宽推进
func (p *ofdPage) drawText(ctx *canvas.Context, obj ofdTextObject, pageH float64, style drawStyle) {
	space := newObjectSpace(obj.Boundary, obj.CTM, pageH)
	sizeMM := obj.Size
	if sizeMM == 0 {
		sizeMM = 3.5
	}
	if scale := space.yScale(); scale > 0 {
		sizeMM *= scale
	}
	style = style.apply(p.doc.drawParam(obj.DrawParam, nil)).with(0, obj.FillColor, nil)
	textColor := cmp.Or(style.fill, color.Color(canvas.Black))
	fontStyle := canvas.FontRegular
	of := p.doc.fonts[obj.Font]
	if obj.Weight >= 700 || (of != nil && of.Bold) {
		fontStyle |= canvas.FontBold
	}
	if obj.Italic || (of != nil && of.Italic) {
		fontStyle |= canvas.FontItalic
	}
	face := p.doc.fontFamily(obj.Font, fontStyle).Face(sizeMM*ptPerUnit, textColor, fontStyle, canvas.FontNormal)
	underline := strings.Contains(obj.Decoration, "Underline")
	ctx.Push()
	for _, tc := range obj.TextCode {
		dxs, dys := ofdNumbers(tc.DeltaX), ofdNumbers(tc.DeltaY)
		cx, cy := tc.X, tc.Y
		for i, ch := range []rune(tc.Value) {
			str := string(ch)
			if i > 0 {
				if i-1 < len(dxs) {
					cx += dxs[i-1]
				} else {
					cx += face.TextWidth(str)
				}
				if i-1 < len(dys) {
					cy += dys[i-1]
				}
			}
			x, y := space.point(cx, cy)
			ctx.DrawText(x, y, canvas.NewTextLine(face, str, canvas.Left))
			if underline {
				off := sizeMM * 0.1
				ctx.SetStrokeWidth(max(sizeMM*0.05, 0.05))
				ctx.SetStrokeColor(textColor)
				ctx.MoveTo(x, y-off)
				ctx.LineTo(x+face.TextWidth(str), y-off)
				ctx.Stroke()
			}
		}
	}
	ctx.Pop()
}

// fontFamily 加载字体, 依次尝试内嵌字体, 外部目录, 系统字体, 最后回退到 Go 字体
// 入参: id 字体ID, style 字体样式
// 返回: *canvas.FontFamily 字体族
func (r *ofdDocumentReader) fontFamily(id string, style canvas.FontStyle) *canvas.FontFamily {
	if ff, ok := r.families[id]; ok {
		return ff
	}
	of, ok := r.fonts[id]
	if !ok {
		return annotationFonts()
	}
	ff := canvas.NewFontFamily(of.FontName)
	loaded := false
	if of.FontFile != "" {
		if data, err := r.resData(of.FontFile); err == nil {
			loaded = ff.LoadFont(data, 0, style) == nil
		}
	}
	for _, dir := range r.fontDirs {
		if loaded {
			break
		}
		matches, _ := filepath.Glob(filepath.Join(dir, of.FontName+"*"))
		for _, m := range matches {
			if isFontFile(m) && ff.LoadFontFile(m, style) == nil {
				loaded = true
				break
			}
		}
	}
	for _, fsys := range r.fontFS {
		if loaded {
			break
		}
		matches, _ := fs.Glob(fsys, of.FontName+"*")
		for _, m := range matches {
			if data, err := fs.ReadFile(fsys, m); err == nil && isFontFile(m) && ff.LoadFont(data, 0, style) == nil {
				loaded = true
				break
			}
		}
	}
	for _, name := range []string{of.FamilyName, of.FontName} {
		if loaded || name == "" {
			continue
		}
		loaded = ff.LoadSystemFont(name, style) == nil
	}
	if !loaded {
		ff = annotationFonts()
	}
	r.families[id] = ff
	return ff
}

func isFontFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".ttf", ".otf", ".ttc":
		return true
	}
	return false
}

// nrgba 解析 OFD 颜色, 分量为十进制或 # 开头的十六进制, Alpha 缺省为 255
// 返回: color.NRGBA 颜色, bool 是否为可用颜色
func (c *ofdColor) nrgba() (color.NRGBA, bool) {
	if c == nil {
		return color.NRGBA{}, false
	}
	parts := strings.Fields(c.Value)
	if len(parts) < 3 {
		return color.NRGBA{}, false
	}
	var rgb [3]uint8
	for i, part := range parts[:3] {
		base := 10
		if strings.HasPrefix(part, "#") {
			part, base = part[1:], 16
		}
		v, err := strconv.ParseUint(part, base, 8)
		if err != nil {
			return color.NRGBA{}, false
		}
		rgb[i] = uint8(v)
	}
	alpha := uint64(0xFF)
	if c.Alpha != "" {
		if a, err := strconv.ParseUint(strings.TrimSpace(c.Alpha), 10, 8); err == nil {
			alpha = a
		}
	}
	return color.NRGBA{R: rgb[0], G: rgb[1], B: rgb[2], A: uint8(alpha)}, true
}
