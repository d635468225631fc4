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
	"context"
	"encoding/asn1"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sealPictureValue struct {
	Type   string `asn1:"ia5"`
	Data   []byte
	Width  int
	Height int
}

type sealEnvelope struct {
	Version int
	Picture sealPictureValue
}

func bluePNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.NRGBA{B: 0xFF, A: 0xFF}), image.Point{}, draw.Src)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func signedSeal(t *testing.T, picture []byte) []byte {
	t.Helper()
	der, err := asn1.Marshal(sealEnvelope{
		Version: 4,
		Picture: sealPictureValue{Type: "png", Data: picture, Width: 40, Height: 40},
	})
	require.NoError(t, err)
	return der
}

func renderOFD(t *testing.T, data []byte, width int) *image.RGBA {
	t.Helper()
	r, err := Open(BytesSource("sealed.ofd", data))
	require.NoError(t, err)
	defer r.Close()
	img, err := r.Render(context.Background(), 0, image.Pt(width, 0))
	require.NoError(t, err)
	return img
}

func TestSealPicture(t *testing.T) {
	pic := bluePNG(t)
	assert.Equal(t, pic, sealPicture(signedSeal(t, pic)))
	assert.Equal(t, pic, sealPicture(pic))
	assert.Nil(t, sealPicture([]byte("not a signature")))

	// 四元组第二项不是 OCTET STRING 时不算印章
	der, err := asn1.Marshal(struct {
		Type    string `asn1:"ia5"`
		A, B, C int
	}{Type: "png", A: 1, B: 2, C: 3})
	require.NoError(t, err)
	assert.Nil(t, sealPicture(der))
}

func TestJoinLoc(t *testing.T) {
	assert.Equal(t, "Doc_0/Signs/Sign_0/Signature.xml", joinLoc("Doc_0/Signs", "Sign_0/Signature.xml"))
	assert.Equal(t, "Doc_0/Signs/Sign_0/Signature.xml", joinLoc("Doc_0/Other", "/Doc_0/Signs/Sign_0/Signature.xml"))
}

func TestOFDSealImage(t *testing.T) {
	img := renderOFD(t, sealedOFDFixture(t, signedSeal(t, bluePNG(t))), 100)
	seal := img.RGBAAt(5, 5)
	assert.Greater(t, seal.B, uint8(200))
	assert.Less(t, seal.R, uint8(60))
	center := img.RGBAAt(50, 25)
	assert.Greater(t, center.R, uint8(200))
	assert.Less(t, center.B, uint8(60))
	outside := img.RGBAAt(12, 5)
	assert.Equal(t, uint8(0xFF), outside.G)
	assert.Equal(t, uint8(0xFF), outside.B)
}

func TestOFDSealPackage(t *testing.T) {
	img := renderOFD(t, sealedOFDFixture(t, ofdFixture(t)), 100)
	// 内嵌 OFD 首页的红色矩形缩放到签章区域中部
	seal := img.RGBAAt(5, 5)
	assert.Greater(t, seal.R, uint8(200))
	assert.Less(t, seal.G, uint8(60))
}

func TestOFDSealPlaceholder(t *testing.T) {
	img := renderOFD(t, sealedOFDFixture(t, nil), 400)
	edge := img.RGBAAt(20, 8)
	assert.Greater(t, edge.R, uint8(200))
	assert.Less(t, edge.G, uint8(100))
	assert.Equal(t, uint8(0xFF), img.RGBAAt(200, 8).G)
}

func TestOFDSealOtherPage(t *testing.T) {
	files := ofdFiles("Signs/Signatures.xml")
	files["Doc_0/Signs/Signatures.xml"] = []byte(`<ofd:Signatures ` + ofdNS + `><ofd:Signature ID="1" BaseLoc="Sign_0/Signature.xml"/></ofd:Signatures>`)
	files["Doc_0/Signs/Sign_0/Signature.xml"] = []byte(`<ofd:Signature ` + ofdNS + `><ofd:SignedInfo><ofd:StampAnnot ID="1" PageRef="9" Boundary="2 2 6 6"/></ofd:SignedInfo></ofd:Signature>`)
	img := renderOFD(t, zipFiles(t, files), 400)
	assert.Equal(t, uint8(0xFF), img.RGBAAt(20, 8).G)
}
