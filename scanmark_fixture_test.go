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
	"archive/zip"
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"
)

// writePages 在目录下生成 n 张纯色 PNG 页面
func writePages(t *testing.T, n, w, h int) string {
	t.Helper()
	dir := t.TempDir()
	for i := 0; i < n; i++ {
		img := image.NewRGBA(image.Rect(0, 0, w, h))
		shade := pageShade(i)
		for p := 0; p < len(img.Pix); p += 4 {
			img.Pix[p], img.Pix[p+1], img.Pix[p+2], img.Pix[p+3] = shade, shade, shade, 0xFF
		}
		f, err := os.Create(filepath.Join(dir, fmt.Sprintf("page%d.png", i+1)))
		require.NoError(t, err)
		require.NoError(t, png.Encode(f, img))
		require.NoError(t, f.Close())
	}
	return dir
}

// pageShade 第 i 页的灰度值
func pageShade(i int) uint8 { return uint8(250 - i*20) }

// mmSource 1 像素对应 1 毫米的扫描源选项
var mmSource = WithScanDPI(25.4)

const ofdNS = `xmlns:ofd="http://www.ofdspec.org/2016"`

// ofdFixture 单页 100x50mm 的 OFD, 中间是一个红色矩形
func ofdFixture(t *testing.T) []byte {
	t.Helper()
	return zipFiles(t, ofdFiles(""))
}

// ofdFiles 组成 ofdFixture 的包内文件, signatures 非空时写入 Document.xml
func ofdFiles(signatures string) map[string][]byte {
	var sigs string
	if signatures != "" {
		sigs = `<ofd:Signatures>` + signatures + `</ofd:Signatures>`
	}
	return map[string][]byte{
		"OFD.xml": []byte(`<?xml version="1.0" encoding="UTF-8"?>
<ofd:OFD ` + ofdNS + ` Version="1.0"><ofd:DocBody><ofd:DocInfo><ofd:Title>fixture</ofd:Title></ofd:DocInfo><ofd:DocRoot>Doc_0/Document.xml</ofd:DocRoot></ofd:DocBody></ofd:OFD>`),
		"Doc_0/Document.xml": []byte(`<?xml version="1.0" encoding="UTF-8"?>
<ofd:Document ` + ofdNS + `><ofd:CommonData><ofd:PageArea><ofd:PhysicalBox>0 0 100 50</ofd:PhysicalBox></ofd:PageArea></ofd:CommonData><ofd:Pages><ofd:Page ID="1" BaseLoc="Pages/Page_0/Content.xml"/></ofd:Pages>` + sigs + `</ofd:Document>`),
		"Doc_0/Pages/Page_0/Content.xml": []byte(`<?xml version="1.0" encoding="UTF-8"?>
<ofd:Page ` + ofdNS + `><ofd:Content><ofd:Layer ID="2"><ofd:PathObject ID="3" Boundary="0 0 100 50" Fill="true"><ofd:FillColor Value="255 0 0"/><ofd:AbbreviatedData>M 10 10 L 90 10 L 90 40 L 10 40 C</ofd:AbbreviatedData></ofd:PathObject></ofd:Layer></ofd:Content></ofd:Page>`),
	}
}

// sealedOFDFixture 在 ofdFixture 左上角 (2,2) 处加一个 6x6mm 签章, signedValue 为 nil 时不写签名值文件
func sealedOFDFixture(t *testing.T, signedValue []byte) []byte {
	t.Helper()
	files := ofdFiles("Signs/Signatures.xml")
	files["Doc_0/Signs/Signatures.xml"] = []byte(`<?xml version="1.0" encoding="UTF-8"?>
<ofd:Signatures ` + ofdNS + `><ofd:Signature ID="1" BaseLoc="Sign_0/Signature.xml"/></ofd:Signatures>`)
	files["Doc_0/Signs/Sign_0/Signature.xml"] = []byte(`<?xml version="1.0" encoding="UTF-8"?>
<ofd:Signature ` + ofdNS + `><ofd:SignedInfo><ofd:StampAnnot ID="1" PageRef="1" Boundary="2 2 6 6"/></ofd:SignedInfo><ofd:SignedValue>SignedValue.dat</ofd:SignedValue></ofd:Signature>`)
	if signedValue != nil {
		files["Doc_0/Signs/Sign_0/SignedValue.dat"] = signedValue
	}
	return zipFiles(t, files)
}

// zipFiles 按文件名顺序打包
func zipFiles(t *testing.T, files map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range slices.Sorted(maps.Keys(files)) {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(files[name])
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// op 一次绘制调用
type op struct {
	Name  string
	Pts   []float64
	Width float64
	Size  float64
	Deg   float64
	Text  string
	Color color.NRGBA
}

// recordingSurface 记录绘制调用的绘制面
type recordingSurface struct {
	w, h float64
	ops  []op
}

func newRecorder(w, h float64) *recordingSurface { return &recordingSurface{w: w, h: h} }

func (s *recordingSurface) Size() (float64, float64) { return s.w, s.h }

func pathPts(p *Path) []float64 {
	var pts []float64
	for _, seg := range p.Segments {
		n := map[PathOp]int{OpMove: 1, OpLine: 1, OpQuad: 2, OpCube: 3}[seg.Op]
		for i := 0; i < n; i++ {
			pts = append(pts, seg.Pts[i].X, seg.Pts[i].Y)
		}
	}
	return pts
}

func nrgba(c color.Color) color.NRGBA {
	return color.NRGBAModel.Convert(c).(color.NRGBA)
}

func (s *recordingSurface) FillPath(p *Path, c color.Color) {
	s.ops = append(s.ops, op{Name: "fill", Pts: pathPts(p), Color: nrgba(c)})
}

func (s *recordingSurface) StrokePath(p *Path, c color.Color, width float64) {
	s.ops = append(s.ops, op{Name: "stroke", Pts: pathPts(p), Width: width, Color: nrgba(c)})
}

func (s *recordingSurface) DrawText(x, baseline float64, run TextRun) {
	s.ops = append(s.ops, op{Name: "text", Pts: []float64{x, baseline}, Size: run.Size, Text: run.Text, Color: nrgba(run.Color)})
}

func (s *recordingSurface) DrawImage(img image.Image, r PixelRect) {
	s.ops = append(s.ops, op{Name: "image", Pts: []float64{r.X, r.Y, r.W, r.H}})
}

func (s *recordingSurface) Push() { s.ops = append(s.ops, op{Name: "push"}) }
func (s *recordingSurface) Pop()  { s.ops = append(s.ops, op{Name: "pop"}) }

func (s *recordingSurface) Rotate(deg, cx, cy float64) {
	s.ops = append(s.ops, op{Name: "rotate", Pts: []float64{cx, cy}, Deg: deg})
}

// scaled 把像素量按比例放大, 角度与颜色不变
func scaled(ops []op, k float64) []op {
	out := make([]op, len(ops))
	for i, o := range ops {
		o.Pts = append([]float64(nil), o.Pts...)
		for j := range o.Pts {
			o.Pts[j] *= k
		}
		o.Width *= k
		o.Size *= k
		out[i] = o
	}
	return out
}

// opaqueImage 指定尺寸的不透明位图
func opaqueImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for p := 0; p < len(img.Pix); p += 4 {
		img.Pix[p+3] = 0xFF
	}
	return img
}
