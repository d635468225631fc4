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
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOFDColor(t *testing.T) {
	cases := []struct {
		in   *ofdColor
		want color.NRGBA
		ok   bool
	}{
		{nil, color.NRGBA{}, false},
		{&ofdColor{Value: "255 0 0"}, color.NRGBA{R: 0xFF, A: 0xFF}, true},
		{&ofdColor{Value: "#1E #40 #AF", Alpha: "128"}, color.NRGBA{R: 0x1E, G: 0x40, B: 0xAF, A: 0x80}, true},
		{&ofdColor{Value: "12 34"}, color.NRGBA{}, false},
		{&ofdColor{Value: "300 0 0"}, color.NRGBA{}, false},
	}
	for _, c := range cases {
		got, ok := c.in.nrgba()
		assert.Equal(t, c.ok, ok, "%+v", c.in)
		assert.Equal(t, c.want, got, "%+v", c.in)
	}
}

func TestAbbreviatedPath(t *testing.T) {
	shift := func(x, y float64) (float64, float64) { return x + 1, y + 2 }
	assert.False(t, abbreviatedPath("M 0 0 L 10 0 Q 10 5 5 5 B 0 5 0 2 0 0 C", shift).Empty())
	end := abbreviatedPath("M 0 0 L 10 0 X 3 L 10 4 Z", shift).Pos()
	assert.InDelta(t, 11, end.X, eps)
	assert.InDelta(t, 6, end.Y, eps)

	assert.True(t, abbreviatedPath("", shift).Empty())
	assert.True(t, abbreviatedPath("M 1", shift).Empty())
}

func TestDrawParamInheritance(t *testing.T) {
	r := &ofdDocumentReader{drawParams: map[string]*ofdDrawParam{
		"1": {ID: "1", LineWidth: 0.5, StrokeColor: &ofdColor{Value: "0 0 255"}},
		"2": {ID: "2", Relative: "1", FillColor: &ofdColor{Value: "255 0 0"}},
		"3": {ID: "3", Relative: "4"},
		"4": {ID: "4", Relative: "3", LineWidth: 2},
	}}
	dp := r.drawParam("2", nil)
	if assert.NotNil(t, dp) {
		assert.Equal(t, 0.5, dp.LineWidth)
		assert.Equal(t, "0 0 255", dp.StrokeColor.Value)
		assert.Equal(t, "255 0 0", dp.FillColor.Value)
		assert.Equal(t, "2", dp.ID)
	}
	cyc := r.drawParam("3", nil)
	if assert.NotNil(t, cyc) {
		assert.Equal(t, 2.0, cyc.LineWidth)
	}
	assert.Nil(t, r.drawParam("", nil))
	assert.Nil(t, r.drawParam("9", nil))
}

func TestOFDNumbers(t *testing.T) {
	assert.Equal(t, []float64{1, 2.5, 3}, ofdNumbers("1, 2.5\t3"))
	assert.Equal(t, []float64{0, 4, 4, 4, 1}, ofdNumbers("0 g 3 4 1"))
	assert.Empty(t, ofdNumbers(""))

	box, ok := ofdBox("0 0 210 297")
	assert.True(t, ok)
	assert.Equal(t, Rect{W: 210, H: 297}, box)
	_, ok = ofdBox("0 0 210")
	assert.False(t, ok)
}

func TestObjectSpace(t *testing.T) {
	s := newObjectSpace("10 20 50 50", "2 0 0 3 1 1", 100)
	x, y := s.point(1, 1)
	assert.InDelta(t, 13, x, eps)
	assert.InDelta(t, 100-24, y, eps)
	assert.InDelta(t, 3, s.yScale(), eps)

	id := newObjectSpace("", "", 50)
	x, y = id.point(5, 5)
	assert.InDelta(t, 5, x, eps)
	assert.InDelta(t, 45, y, eps)
}
