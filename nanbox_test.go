package ilo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNanValNumberRoundTrip(t *testing.T) {
	for _, f := range []float64{0, 1, -1, 3.14159, 1e300, -1e-300} {
		v := BoxNumber(f)
		assert.Equal(t, NanNumber, v.Kind())
		assert.Equal(t, f, v.Number())
	}
}

func TestNanValCanonicalizesNaN(t *testing.T) {
	v := BoxNumber(math.NaN())
	assert.Equal(t, NanNumber, v.Kind())
	assert.True(t, math.IsNaN(v.Number()))
}

func TestNanValNilAndBool(t *testing.T) {
	assert.Equal(t, NanNil, BoxNil().Kind())
	assert.Equal(t, NanTrue, BoxBool(true).Kind())
	assert.Equal(t, NanFalse, BoxBool(false).Kind())
	assert.False(t, BoxNil().IsHeap())
}

func TestHeapStringRefcounting(t *testing.T) {
	h := NewHeap()
	s := h.NewString("hello")
	assert.Equal(t, NanString, s.Kind())
	assert.True(t, s.IsHeap())
	assert.Equal(t, "hello", h.Text(s))

	h.CloneRC(s)
	assert.Equal(t, 2, h.obj(s).refs)
	h.DropRC(s)
	assert.Equal(t, 1, h.obj(s).refs)
	h.DropRC(s)
	assert.Equal(t, heapObj{}, *h.obj(s))
}

func TestHeapListDropRecursesIntoItems(t *testing.T) {
	h := NewHeap()
	inner := h.NewString("x")
	list := h.NewList([]NanVal{inner, BoxNumber(1)})

	h.DropRC(list)
	// The list's own slot and its string child are both freed; a second
	// heap value allocated afterward should reuse one of those slots
	// rather than growing the object table.
	before := len(h.objs)
	h.NewString("y")
	assert.LessOrEqual(t, len(h.objs), before)
}

func TestHeapOkWrapsAndClonesInner(t *testing.T) {
	h := NewHeap()
	inner := h.NewString("payload")
	ok := h.NewOk(inner)

	// NewOk clones the inner value's refcount internally rather than
	// stealing the caller's reference, so both still need dropping.
	assert.Equal(t, 2, h.obj(inner).refs)
	assert.Equal(t, NanOk, ok.Kind())
	assert.Equal(t, inner, h.Inner(ok))

	h.DropRC(inner)
	assert.Equal(t, 1, h.obj(inner).refs)
	h.DropRC(ok)
	assert.Equal(t, heapObj{}, *h.obj(inner))
}

func TestHeapRecordFieldsAndFreeListReuse(t *testing.T) {
	h := NewHeap()
	rec := h.NewRecord("Point", map[string]NanVal{"x": BoxNumber(1), "y": BoxNumber(2)})
	assert.Equal(t, "Point", h.TypeName(rec))
	assert.Equal(t, BoxNumber(1), h.Fields(rec)["x"])

	h.DropRC(rec)
	idx := rec.payload()
	reused := h.NewString("reused")
	assert.Equal(t, idx, reused.payload(), "the freed record slot should be reused rather than growing the table")
}
