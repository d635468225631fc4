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
	"image"
	"image/color"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnnotationsRoundTrip(t *testing.T) {
	blue := color.NRGBA{B: 0xFF, A: 0x80}
	set := NewPageSet()
	set.Append(NewItem(0, Rect{X: 0.125, Y: 0.25, W: 0.5, H: 0.25}, &Shape{
		Kind: ShapeArrow, Color: red, StrokeWidth: 2.5, FlipX: true,
	}))
	set.Append(NewItem(0, Rect{X: 0.5, Y: 0.5, W: 0.25, H: 0.125}, &Shape{
		Kind: ShapeOval, Color: red, StrokeWidth: 1, Fill: &blue,
	}))
	set.Append(NewItem(1, Rect{X: 0.1, Y: 0.1, W: 0.3, H: 0.05}, &Text{
		Content: "Paid in full", Size: 18, Color: red, Style: TextBold | TextUnderline,
	}))
	set.Append(NewItem(1, Rect{X: 0.6, Y: 0.7, W: 0.3, H: 0.1}, &Stamp{
		Kind: StampConfidential, Color: StampConfidential.DefaultColor(), Scale: 1.5, Rotation: -12,
	}))
	set.Append(NewItem(3, Rect{X: 0.2, Y: 0.2, W: 0.4, H: 0.4}, &Drawing{
		Strokes:     [][]Point{{{X: 0.2, Y: 0.2}, {X: 0.6, Y: 0.6}}, {{X: 0.3, Y: 0.5}}},
		Color:       red,
		StrokeWidth: 3,
	}))
	set.Append(NewItem(3, Rect{X: 0, Y: 0.9, W: 1, H: 0.05}, &Highlight{Color: blue}))

	var buf bytes.Buffer
	require.NoError(t, EncodeAnnotations(&buf, set))
	assert.Contains(t, buf.String(), `"version": 1`)

	got, err := DecodeAnnotations(&buf)
	require.NoError(t, err)
	assert.Equal(t, set.Pages(), got.Pages())
	for _, page := range set.Pages() {
		if diff := cmp.Diff(set.Items(page), got.Items(page), cmp.AllowUnexported(Item{})); diff != "" {
			t.Errorf("page %d mismatch (-want +got):\n%s", page, diff)
		}
	}
}

func TestAnnotationsSignatureImage(t *testing.T) {
	sig := image.NewNRGBA(image.Rect(0, 0, 30, 12))
	sig.SetNRGBA(4, 5, color.NRGBA{R: 0x10, G: 0x20, B: 0x30, A: 0xFF})
	set := NewPageSet()
	want := NewItem(2, Rect{X: 0.4, Y: 0.4, W: 0.3, H: 0.12}, &Signature{Image: sig})
	set.Append(want)

	var buf bytes.Buffer
	require.NoError(t, EncodeAnnotations(&buf, set))
	got, err := DecodeAnnotations(&buf)
	require.NoError(t, err)
	items := got.Items(2)
	require.Len(t, items, 1)
	assert.Equal(t, want.ID, items[0].ID)
	assert.Equal(t, want.Bounds(), items[0].Bounds())

	img := items[0].Payload.(*Signature).Image
	assert.Equal(t, sig.Bounds(), img.Bounds())
	assert.Equal(t, color.NRGBA{R: 0x10, G: 0x20, B: 0x30, A: 0xFF}, nrgba(img.At(4, 5)))
	assert.Equal(t, uint8(0), nrgba(img.At(0, 0)).A)
}

func TestDecodeAnnotationsErrors(t *testing.T) {
	for name, doc := range map[string]string{
		"syntax":    `{"version": 1, "items": [`,
		"version":   `{"version": 7, "items": []}`,
		"type":      `{"version": 1, "items": [{"page": 0, "rect": [0,0,1,1], "type": "sticker"}]}`,
		"shape":     `{"version": 1, "items": [{"page": 0, "rect": [0,0,1,1], "type": "shape", "shape": "star"}]}`,
		"stamp":     `{"version": 1, "items": [{"page": 0, "rect": [0,0,1,1], "type": "stamp", "stamp": "LATE"}]}`,
		"page":      `{"version": 1, "items": [{"page": -1, "rect": [0,0,1,1], "type": "highlight"}]}`,
		"color":     `{"version": 1, "items": [{"page": 0, "rect": [0,0,1,1], "type": "highlight", "color": "red"}]}`,
		"signature": `{"version": 1, "items": [{"page": 0, "rect": [0,0,1,1], "type": "signature", "image": "!!"}]}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeAnnotations(strings.NewReader(doc))
			assert.Error(t, err)
		})
	}
}

func TestDecodeAnnotationsClampsRect(t *testing.T) {
	set, err := DecodeAnnotations(strings.NewReader(
		`{"version": 1, "items": [{"page": 0, "rect": [0.9, -0.5, 0.5, 0.25], "type": "highlight", "color": "#ffff00"}]}`))
	require.NoError(t, err)
	items := set.Items(0)
	require.Len(t, items, 1)
	assert.Equal(t, Rect{X: 0.5, Y: 0, W: 0.5, H: 0.25}, items[0].Bounds())
	assert.NotEmpty(t, items[0].ID)
}

func TestFormatParseColor(t *testing.T) {
	assert.Equal(t, "#c62828", FormatColor(color.NRGBA{R: 0xC6, G: 0x28, B: 0x28, A: 0xFF}))
	assert.Equal(t, "#ffff0066", FormatColor(color.NRGBA{R: 0xFF, G: 0xFF, A: 0x66}))

	c, err := ParseColor(" #ffff0066 ")
	require.NoError(t, err)
	assert.Equal(t, color.NRGBA{R: 0xFF, G: 0xFF, A: 0x66}, c)
	for _, bad := range []string{"", "ffff00", "#ffff00zz", "#12"} {
		_, err := ParseColor(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseStampKind(t *testing.T) {
	k, ok := ParseStampKind("approved")
	assert.True(t, ok)
	assert.Equal(t, StampApproved, k)
	k, ok = ParseStampKind("Final")
	assert.True(t, ok)
	assert.Equal(t, StampFinal, k)
	_, ok = ParseStampKind("late")
	assert.False(t, ok)
}
