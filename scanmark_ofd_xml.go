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
	"encoding/xml"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/tdewolff/canvas"
)

// ofdRoot OFD.xml 入口
type ofdRoot struct {
	XMLName xml.Name     `xml:"OFD"`
	Version string       `xml:"Version,attr"`
	DocBody []ofdDocBody `xml:"DocBody"`
}

type ofdDocBody struct {
	DocInfo struct {
		Title  string `xml:"Title"`
		Author string `xml:"Author"`
	} `xml:"DocInfo"`
	DocRoot string `xml:"DocRoot"`
}

// ofdDocument Document.xml, 仅保留渲染所需部分
type ofdDocument struct {
	XMLName    xml.Name `xml:"Document"`
	CommonData struct {
		PageArea     ofdPageArea       `xml:"PageArea"`
		PublicRes    []string          `xml:"PublicRes"`
		DocumentRes  []string          `xml:"DocumentRes"`
		TemplatePage []ofdTemplatePage `xml:"TemplatePage"`
	} `xml:"CommonData"`
	Pages struct {
		Page []ofdPageRef `xml:"Page"`
	} `xml:"Pages"`
	Signatures string `xml:"Signatures"`
}

// ofdSignatureList Signatures.xml, 列出各签名文件
type ofdSignatureList struct {
	XMLName   xml.Name `xml:"Signatures"`
	Signature []struct {
		ID      string `xml:"ID,attr"`
		BaseLoc string `xml:"BaseLoc,attr"`
	} `xml:"Signature"`
}

// ofdSignatureFile 单个签名文件, 只关心外观位置与签名值
type ofdSignatureFile struct {
	XMLName    xml.Name `xml:"Signature"`
	SignedInfo struct {
		StampAnnot []struct {
			ID       string `xml:"ID,attr"`
			PageRef  string `xml:"PageRef,attr"`
			Boundary string `xml:"Boundary,attr"`
		} `xml:"StampAnnot"`
	} `xml:"SignedInfo"`
	SignedValue string `xml:"SignedValue"`
}

type ofdPageArea struct {
	PhysicalBox    string `xml:"PhysicalBox"`
	ApplicationBox string `xml:"ApplicationBox"`
	ContentBox     string `xml:"ContentBox"`
}

type ofdPageRef struct {
	ID      string `xml:"ID,attr"`
	BaseLoc string `xml:"BaseLoc,attr"`
}

type ofdTemplatePage struct {
	ID      string `xml:"ID,attr"`
	BaseLoc string `xml:"BaseLoc,attr"`
}

// ofdPageContent 页面或模板页内容
type ofdPageContent struct {
	XMLName  xml.Name    `xml:"Page"`
	Area     ofdPageArea `xml:"Area"`
	Template []struct {
		TemplateID string `xml:"TemplateID,attr"`
		ZOrder     string `xml:"ZOrder,attr"`
	} `xml:"Template"`
	Content struct {
		Layer []ofdLayer `xml:"Layer"`
	} `xml:"Content"`
}

type ofdLayer struct {
	DrawParam   string           `xml:"DrawParam,attr"`
	TextObject  []ofdTextObject  `xml:"TextObject"`
	PathObject  []ofdPathObject  `xml:"PathObject"`
	ImageObject []ofdImageObject `xml:"ImageObject"`
}

type ofdColor struct {
	Value string `xml:"Value,attr"`
	Alpha string `xml:"Alpha,attr"`
}

type ofdTextObject struct {
	Boundary   string    `xml:"Boundary,attr"`
	DrawParam  string    `xml:"DrawParam,attr"`
	Font       string    `xml:"Font,attr"`
	Size       float64   `xml:"Size,attr"`
	Weight     int       `xml:"Weight,attr"`
	Italic     bool      `xml:"Italic,attr"`
	Decoration string    `xml:"Decoration,attr"`
	CTM        string    `xml:"CTM,attr"`
	FillColor  *ofdColor `xml:"FillColor"`
	TextCode   []struct {
		X      float64 `xml:"X,attr"`
		Y      float64 `xml:"Y,attr"`
		DeltaX string  `xml:"DeltaX,attr"`
		DeltaY string  `xml:"DeltaY,attr"`
		Value  string  `xml:",chardata"`
	} `xml:"TextCode"`
}

type ofdPathObject struct {
	Boundary        string    `xml:"Boundary,attr"`
	DrawParam       string    `xml:"DrawParam,attr"`
	LineWidth       float64   `xml:"LineWidth,attr"`
	CTM             string    `xml:"CTM,attr"`
	Stroke          *bool     `xml:"Stroke,attr"`
	Fill            *bool     `xml:"Fill,attr"`
	StrokeColor     *ofdColor `xml:"StrokeColor"`
	FillColor       *ofdColor `xml:"FillColor"`
	AbbreviatedData string    `xml:"AbbreviatedData"`
}

type ofdImageObject struct {
	Boundary   string `xml:"Boundary,attr"`
	ResourceID string `xml:"ResourceID,attr"`
	CTM        string `xml:"CTM,attr"`
}

// ofdRes 资源文件
type ofdRes struct {
	XMLName xml.Name `xml:"Res"`
	BaseLoc string   `xml:"BaseLoc,attr"`
	Fonts   struct {
		Font []ofdFont `xml:"Font"`
	} `xml:"Fonts"`
	MultiMedias struct {
		MultiMedia []struct {
			ID        string `xml:"ID,attr"`
			MediaFile string `xml:"MediaFile"`
		} `xml:"MultiMedia"`
	} `xml:"MultiMedias"`
	DrawParams struct {
		DrawParam []ofdDrawParam `xml:"DrawParam"`
	} `xml:"DrawParams"`
}

type ofdFont struct {
	ID         string `xml:"ID,attr"`
	FontName   string `xml:"FontName,attr"`
	FamilyName string `xml:"FamilyName,attr"`
	Bold       bool   `xml:"Bold,attr"`
	Italic     bool   `xml:"Italic,attr"`
	FontFile   string `xml:"FontFile"`
}

type ofdDrawParam struct {
	ID          string    `xml:"ID,attr"`
	Relative    string    `xml:"Relative,attr"`
	LineWidth   float64   `xml:"LineWidth,attr"`
	FillColor   *ofdColor `xml:"FillColor"`
	StrokeColor *ofdColor `xml:"StrokeColor"`
}

// ofdNumbers 解析空白或逗号分隔的数字, "g n v" 表示 n 个 v
func ofdNumbers(s string) []float64 {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || unicode.IsSpace(r) })
	out := make([]float64, 0, len(fields))
	for len(fields) > 0 {
		f := fields[0]
		fields = fields[1:]
		if f == "g" && len(fields) >= 2 {
			n, errN := strconv.Atoi(fields[0])
			v, errV := strconv.ParseFloat(fields[1], 64)
			fields = fields[2:]
			if errN == nil && errV == nil {
				for range n {
					out = append(out, v)
				}
			}
			continue
		}
		if v, err := strconv.ParseFloat(f, 64); err == nil {
			out = append(out, v)
		}
	}
	return out
}

// ofdBox 解析 "x y w h" 区域, 单位毫米
func ofdBox(s string) (Rect, bool) {
	v := ofdNumbers(s)
	if len(v) < 4 {
		return Rect{}, false
	}
	return Rect{X: v[0], Y: v[1], W: v[2], H: v[3]}, true
}

// ofdCTM 解析 "a b c d e f" 变换矩阵, 格式不符时为单位矩阵
func ofdCTM(s string) canvas.Matrix {
	v := ofdNumbers(s)
	if len(v) != 6 {
		return canvas.Identity
	}
	return canvas.Matrix{{v[0], v[2], v[4]}, {v[1], v[3], v[5]}}
}

// objectSpace 图元坐标到画布坐标, 画布原点在左下
type objectSpace struct {
	origin canvas.Point
	ctm    canvas.Matrix
	pageH  float64
}

func newObjectSpace(boundary, ctm string, pageH float64) objectSpace {
	box, _ := ofdBox(boundary)
	return objectSpace{origin: canvas.Point{X: box.X, Y: box.Y}, ctm: ofdCTM(ctm), pageH: pageH}
}

func (o objectSpace) point(x, y float64) (float64, float64) {
	p := o.ctm.Dot(canvas.Point{X: x, Y: y})
	return p.X + o.origin.X, o.pageH - (p.Y + o.origin.Y)
}

// yScale 变换在 y 方向的缩放, 用于字号
func (o objectSpace) yScale() float64 {
	return math.Hypot(o.ctm[0][1], o.ctm[1][1])
}
