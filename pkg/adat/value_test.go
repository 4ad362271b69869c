package adat

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatPyFloat(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{1, "1.0"},
		{-2.5, "-2.5"},
		{1.23456789, "1.23456789"},
		{0.0001, "0.0001"},
		{0.00001, "1e-05"},
		{1.5e-5, "1.5e-05"},
		{123456789012345, "123456789012345.0"},
		{1e15, "1000000000000000.0"},
		{1e16, "1e+16"},
		{1.2345e20, "1.2345e+20"},
		{0.1 + 0.2, "0.30000000000000004"},
		{math.Inf(1), "inf"},
		{math.Inf(-1), "-inf"},
		{math.NaN(), "nan"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatPyFloat(tt.in))
	}
}

func TestValueCanonical(t *testing.T) {
	tests := []struct {
		name string
		v    Value
		want string
	}{
		{"true", Bool(true), "True"},
		{"false", Bool(false), "False"},
		{"null", Null(), ""},
		{"int", Int(-42), "-42"},
		{"float", Float(2), "2.0"},
		{"string", String("EDTA Plasma"), "EDTA Plasma"},
		{"empty list", List(), "[]"},
		{"list of strings", List(String("a"), String("b")), "['a', 'b']"},
		{"mixed list", List(Int(1), Null(), Bool(false), Float(0.5)), "[1, None, False, 0.5]"},
		{"single tuple", Tuple(String("x")), "('x',)"},
		{"empty tuple", Tuple(), "()"},
		{"nested", Map(Entry(String("k"), List(Tuple(Int(1), Int(2))))), "{'k': [(1, 2)]}"},
		{"empty map", Map(), "{}"},
		{"document", Document(`{"a": 1}`, map[string]interface{}{"a": 1}), `{"a": 1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.v.Canonical())
			assert.Equal(t, tt.want, tt.v.String())
		})
	}
}

func TestValueRepr(t *testing.T) {
	assert.Equal(t, "'plain'", String("plain").Repr())
	assert.Equal(t, `"it's"`, String("it's").Repr())
	assert.Equal(t, `'say "hi"'`, String(`say "hi"`).Repr())
	assert.Equal(t, `'both \' and "'`, String(`both ' and "`).Repr())
	assert.Equal(t, `'a\\b\tc\n'`, String("a\\b\tc\n").Repr())
	assert.Equal(t, "None", Null().Repr())
	assert.Equal(t, "True", Bool(true).Repr())
}

func TestValueAccessors(t *testing.T) {
	s, ok := String("x").Str()
	assert.True(t, ok)
	assert.Equal(t, "x", s)

	_, ok = Int(1).Str()
	assert.False(t, ok)

	i, ok := Int(7).IntValue()
	assert.True(t, ok)
	assert.Equal(t, int64(7), i)

	f, ok := Float(0.5).FloatValue()
	assert.True(t, ok)
	assert.Equal(t, 0.5, f)

	b, ok := Bool(true).BoolValue()
	assert.True(t, ok)
	assert.True(t, b)

	assert.Len(t, List(Int(1), Int(2)).Items(), 2)
	assert.Nil(t, String("x").Items())
	assert.Len(t, Map(Entry(String("a"), Int(1))).Entries(), 1)
	assert.True(t, Null().IsNull())
	assert.Equal(t, "tuple", KindTuple.String())
}

func TestValueEqual(t *testing.T) {
	assert.True(t, List(Int(1), String("a")).Equal(List(Int(1), String("a"))))
	assert.False(t, List(Int(1)).Equal(Tuple(Int(1))))
	assert.False(t, Int(1).Equal(Float(1)))
	assert.True(t, Float(math.NaN()).Equal(Float(math.NaN())))
	assert.False(t, Bool(true).Equal(Bool(false)))
	assert.True(t, Map(Entry(String("k"), Null())).Equal(Map(Entry(String("k"), Null()))))
}
