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
	"encoding/asn1"
	"image"
	"path"
	"strings"

	"github.com/h2non/filetype"
	"github.com/tdewolff/canvas"
)

// ofdSeal 页面上的签章外观
// data 为印章图片或内嵌的 OFD 包, 为空时绘制占位框
type ofdSeal struct {
	box  Rect
	data []byte
}

// loadSeals 读取签名列表, 按页面ID登记签章外观
// 签名文件损坏时跳过该签名, 不影响页面内容
func (r *ofdDocumentReader) loadSeals() {
	if strings.TrimSpace(r.doc.Signatures) == "" {
		return
	}
	listPath := r.resolve(r.doc.Signatures)
	var list ofdSignatureList
	if err := r.readXML(listPath, &list); err != nil {
		return
	}
	for _, ref := range list.Signature {
		sigPath := joinLoc(path.Dir(listPath), ref.BaseLoc)
		var sig ofdSignatureFile
		if err := r.readXML(sigPath, &sig); err != nil {
			continue
		}
		var data []byte
		if sig.SignedValue != "" {
			if raw, err := r.readFile(joinLoc(path.Dir(sigPath), sig.SignedValue)); err == nil {
				data = sealPicture(raw)
			}
		}
		for _, annot := range sig.SignedInfo.StampAnnot {
			box, ok := ofdBox(annot.Boundary)
			if !ok || box.W <= 0 || box.H <= 0 {
				continue
			}
			r.seals[annot.PageRef] = append(r.seals[annot.PageRef], ofdSeal{box: box, data: data})
		}
	}
}

// joinLoc 相对 dir 解析包内路径, 以 / 开头时从包根开始
func joinLoc(dir, loc string) string {
	if strings.HasPrefix(strings.TrimSpace(loc), "/") {
		return cleanZipPath(loc)
	}
	return path.Join(dir, cleanZipPath(loc))
}

// sealPicture 从签名值中取出印章图片
// 签名值为 DER 编码, 印章图片是 (类型, OCTET STRING, INTEGER, INTEGER) 四元组
// 签名值本身就是图片或 OFD 包时直接使用
// 入参: signed 签名值
// 返回: []byte 印章数据, 找不到时为 nil
func sealPicture(signed []byte) []byte {
	var root asn1.RawValue
	if _, err := asn1.Unmarshal(signed, &root); err == nil {
		if data, ok := findSealPicture(root, 0); ok {
			return data
		}
	}
	if filetype.IsImage(signed) || filetype.Is(signed, "zip") {
		return signed
	}
	return nil
}

func findSealPicture(node asn1.RawValue, depth int) ([]byte, bool) {
	if !node.IsCompound || depth > 32 {
		return nil, false
	}
	children, ok := asn1Children(node.Bytes)
	if !ok {
		return nil, false
	}
	if len(children) == 4 && isSealPicture(children) {
		return children[1].Bytes, true
	}
	for _, c := range children {
		if data, ok := findSealPicture(c, depth+1); ok {
			return data, true
		}
	}
	return nil, false
}

func isSealPicture(e []asn1.RawValue) bool {
	for _, v := range e {
		if v.Class != asn1.ClassUniversal {
			return false
		}
	}
	switch e[0].Tag {
	case asn1.TagIA5String, asn1.TagPrintableString, asn1.TagUTF8String:
	default:
		return false
	}
	return e[1].Tag == asn1.TagOctetString && len(e[1].Bytes) > 0 &&
		e[2].Tag == asn1.TagInteger && e[3].Tag == asn1.TagInteger
}

// asn1Children 拆分构造类型内容中的各个元素
func asn1Children(b []byte) ([]asn1.RawValue, bool) {
	var out []asn1.RawValue
	for len(b) > 0 {
		var v asn1.RawValue
		rest, err := asn1.Unmarshal(b, &v)
		if err != nil {
			return nil, false
		}
		out = append(out, v)
		b = rest
	}
	return out, true
}

// drawSeal 绘制签章外观: 内嵌 OFD 按首页缩放到签章区域, 图片拉伸填满, 否则画红色占位框
func (p *ofdPage) drawSeal(ctx *canvas.Context, s ofdSeal, pageH float64) {
	x, y := s.box.X, pageH-(s.box.Y+s.box.H)
	if filetype.Is(s.data, "zip") && p.drawSealPackage(ctx, s, x, y) {
		return
	}
	if len(s.data) > 0 {
		if img, _, err := image.Decode(bytes.NewReader(s.data)); err == nil && !img.Bounds().Empty() {
			ctx.Push()
			ctx.Translate(x, y)
			ctx.Scale(s.box.W/float64(img.Bounds().Dx()), s.box.H/float64(img.Bounds().Dy()))
			ctx.DrawImage(0, 0, img, canvas.DPMM(1.0))
			ctx.Pop()
			return
		}
	}
	ctx.Push()
	defer ctx.Pop()
	ctx.SetFillColor(canvas.Transparent)
	ctx.SetStrokeColor(canvas.Red)
	ctx.SetStrokeWidth(0.5)
	ctx.DrawPath(x, y, canvas.Rectangle(s.box.W, s.box.H))
	size := min(3.0, s.box.H/3)
	face := annotationFonts().Face(size*ptPerUnit, canvas.Red, canvas.FontRegular, canvas.FontNormal)
	label := "SEAL"
	ctx.DrawText(x+(s.box.W-face.TextWidth(label))/2, y+(s.box.H-size)/2, canvas.NewTextLine(face, label, canvas.Left))
}

// drawSealPackage 把内嵌 OFD 的首页绘制到签章区域
// 返回: bool 是否成功解析
func (p *ofdPage) drawSealPackage(ctx *canvas.Context, s ofdSeal, x, y float64) bool {
	nested, err := newOFDReader(bytes.NewReader(s.data), int64(len(s.data)), nil,
		rasterOptions{fontDirs: p.doc.fontDirs, fontFS: p.doc.fontFS})
	if err != nil || nested.pageCount() == 0 {
		return false
	}
	defer nested.close()
	pg, err := nested.openPage(0)
	if err != nil {
		return false
	}
	seal := pg.(*ofdPage)
	ctx.Push()
	ctx.Translate(x, y)
	ctx.Scale(s.box.W/seal.box.W, s.box.H/seal.box.H)
	seal.drawContent(ctx)
	ctx.Pop()
	return true
}
