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
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"strconv"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

// annotationsVersion 注释文件格式版本
const annotationsVersion = 1

type annotationsFile struct {
	Version int        `json:"version"`
	Items   []itemJSON `json:"items"`
}

type itemJSON struct {
	ID          string         `json:"id"`
	Page        int            `json:"page"`
	Rect        [4]float64     `json:"rect"`
	Type        string         `json:"type"`
	Color       string         `json:"color,omitempty"`
	Fill        string         `json:"fill,omitempty"`
	StrokeWidth float64        `json:"strokeWidth,omitempty"`
	Text        string         `json:"text,omitempty"`
	Size        float64        `json:"size,omitempty"`
	Style       TextStyle      `json:"style,omitempty"`
	Shape       string         `json:"shape,omitempty"`
	FlipX       bool           `json:"flipX,omitempty"`
	FlipY       bool           `json:"flipY,omitempty"`
	Stamp       string         `json:"stamp,omitempty"`
	Scale       float64        `json:"scale,omitempty"`
	Rotation    float64        `json:"rotation,omitempty"`
	Strokes     [][][2]float64 `json:"strokes,omitempty"`
	Image       string         `json:"image,omitempty"`
}

// FormatColor 颜色格式化为 #rrggbb, 非不透明时追加两位透明度
// 入参: c 颜色
// 返回: string 十六进制字符串
func FormatColor(c color.NRGBA) string {
	hex := colorful.Color{R: float64(c.R) / 255, G: float64(c.G) / 255, B: float64(c.B) / 255}.Hex()
	if c.A != 0xFF {
		hex += fmt.Sprintf("%02x", c.A)
	}
	return hex
}

// ParseColor 解析 #rrggbb 或 #rrggbbaa
// 入参: s 十六进制字符串
// 返回: color.NRGBA 颜色, error 错误信息
func ParseColor(s string) (color.NRGBA, error) {
	s = strings.TrimSpace(s)
	alpha := uint8(0xFF)
	if len(s) == 9 {
		a, err := strconv.ParseUint(s[7:], 16, 8)
		if err != nil {
			return color.NRGBA{}, fmt.Errorf("invalid color %q: %w", s, err)
		}
		alpha, s = uint8(a), s[:7]
	}
	c, err := colorful.Hex(s)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid color %q: %w", s, err)
	}
	r, g, b := c.RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: alpha}, nil
}

// EncodeAnnotations 把全部注释写为 JSON
// 入参: w 输出流, set 注释集
// 返回: error 错误信息
func EncodeAnnotations(w io.Writer, set *PageSet) error {
	f := annotationsFile{Version: annotationsVersion, Items: []itemJSON{}}
	for _, page := range set.Pages() {
		for _, it := range set.Items(page) {
			j, err := encodeItem(it)
			if err != nil {
				return err
			}
			f.Items = append(f.Items, j)
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(f)
}

func encodeItem(it *Item) (itemJSON, error) {
	r := it.Bounds()
	j := itemJSON{ID: it.ID, Page: it.Page(), Rect: [4]float64{r.X, r.Y, r.W, r.H}, Type: it.Kind().String()}
	switch p := it.Payload.(type) {
	case *Signature:
		var buf bytes.Buffer
		if p.Image != nil {
			if err := png.Encode(&buf, p.Image); err != nil {
				return j, fmt.Errorf("encode signature %s: %w", it.ID, err)
			}
		}
		j.Image = base64.StdEncoding.EncodeToString(buf.Bytes())
	case *Text:
		j.Text, j.Size, j.Style, j.Color = p.Content, p.Size, p.Style, FormatColor(p.Color)
	case *Shape:
		j.Shape, j.Color, j.StrokeWidth = p.Kind.String(), FormatColor(p.Color), p.StrokeWidth
		j.FlipX, j.FlipY = p.FlipX, p.FlipY
		if p.Fill != nil {
			j.Fill = FormatColor(*p.Fill)
		}
	case *Stamp:
		j.Stamp, j.Color, j.Scale, j.Rotation = p.Kind.Label(), FormatColor(p.Color), p.Scale, p.Rotation
	case *Drawing:
		j.Color, j.StrokeWidth = FormatColor(p.Color), p.StrokeWidth
		for _, s := range p.Strokes {
			pts := make([][2]float64, len(s))
			for i, pt := range s {
				pts[i] = [2]float64{pt.X, pt.Y}
			}
			j.Strokes = append(j.Strokes, pts)
		}
	case *Highlight:
		j.Color = FormatColor(p.Color)
	default:
		return j, fmt.Errorf("unsupported annotation payload %T", it.Payload)
	}
	return j, nil
}

// DecodeAnnotations 读取 JSON 注释
// 入参: r 输入流
// 返回: *PageSet 注释集, error 错误信息
func DecodeAnnotations(r io.Reader) (*PageSet, error) {
	var f annotationsFile
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("decode annotations: %w", err)
	}
	if f.Version != annotationsVersion {
		return nil, fmt.Errorf("unsupported annotations version %d", f.Version)
	}
	set := NewPageSet()
	for i, j := range f.Items {
		it, err := decodeItem(j)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		set.Append(it)
	}
	return set, nil
}

func decodeItem(j itemJSON) (*Item, error) {
	if j.Page < 0 {
		return nil, fmt.Errorf("invalid page %d", j.Page)
	}
	var col color.NRGBA
	if j.Color != "" {
		c, err := ParseColor(j.Color)
		if err != nil {
			return nil, err
		}
		col = c
	}
	var p Payload
	switch j.Type {
	case "signature":
		data, err := base64.StdEncoding.DecodeString(j.Image)
		if err != nil {
			return nil, fmt.Errorf("signature image: %w", err)
		}
		img, err := png.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("signature image: %w", err)
		}
		p = &Signature{Image: img}
	case "text":
		p = &Text{Content: j.Text, Size: j.Size, Color: col, Style: j.Style}
	case "shape":
		kind, ok := parseShapeKind(j.Shape)
		if !ok {
			return nil, fmt.Errorf("unknown shape %q", j.Shape)
		}
		s := &Shape{Kind: kind, Color: col, StrokeWidth: j.StrokeWidth, FlipX: j.FlipX, FlipY: j.FlipY}
		if j.Fill != "" {
			fill, err := ParseColor(j.Fill)
			if err != nil {
				return nil, err
			}
			s.Fill = &fill
		}
		p = s
	case "stamp":
		kind, ok := ParseStampKind(j.Stamp)
		if !ok {
			return nil, fmt.Errorf("unknown stamp %q", j.Stamp)
		}
		p = &Stamp{Kind: kind, Color: col, Scale: j.Scale, Rotation: j.Rotation}
	case "drawing":
		d := &Drawing{Color: col, StrokeWidth: j.StrokeWidth}
		for _, s := range j.Strokes {
			pts := make([]Point, len(s))
			for i, pt := range s {
				pts[i] = clampPoint(Point{X: pt[0], Y: pt[1]})
			}
			d.Strokes = append(d.Strokes, pts)
		}
		p = d
	case "highlight":
		p = &Highlight{Color: col}
	default:
		return nil, fmt.Errorf("unknown annotation type %q", j.Type)
	}
	it := NewItem(j.Page, Rect{X: j.Rect[0], Y: j.Rect[1], W: j.Rect[2], H: j.Rect[3]}, p)
	if j.ID != "" {
		it.ID = j.ID
	}
	return it, nil
}

func parseShapeKind(name string) (ShapeKind, bool) {
	for i, n := range shapeNames {
		if n == name {
			return ShapeKind(i), true
		}
	}
	return 0, false
}

// ParseStampKind 按印章文字解析种类, 不区分大小写
func ParseStampKind(label string) (StampKind, bool) {
	for _, k := range StampKinds() {
		if strings.EqualFold(k.Label(), label) {
			return k, true
		}
	}
	return 0, false
}

// signatureImage 签名位图的像素尺寸
func signatureImage(img image.Image) (int, int) {
	if img == nil {
		return 0, 0
	}
	b := img.Bounds()
	return b.Dx(), b.Dy()
}
