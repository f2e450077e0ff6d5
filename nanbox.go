package ilo

import "math"

// NanVal is the VM's 64-bit tagged cell: bits 63..48 are the tag, bits
// 47..0 are the payload. A finite
// double's own bit pattern IS its NanVal — only the narrow band of
// quiet-NaN encodings this scheme reserves (0x7FFC/0x7FFD/0x7FFE/0x7FFF
// and 0xFFFC/0xFFFD in the top 16 bits) is stolen for non-number tags, so
// no real double's bits ever collide with a tag.
//
// The payload for a heap tag is not a raw pointer (embedding a Go pointer
// in an integer would hide it from the garbage collector and corrupt it
// on the next GC cycle) — it is an index into the owning Heap's object
// table instead, which is the idiomatic-Go substitute for the pointer
// payload the reference design assumes.
type NanVal uint64

const (
	tagNilBits   uint64 = 0x7FFC000000000000
	tagTrueBits  uint64 = 0x7FFC000000000001
	tagFalseBits uint64 = 0x7FFC000000000002

	tag16String uint64 = 0x7FFD
	tag16List   uint64 = 0x7FFE
	tag16Record uint64 = 0x7FFF
	tag16Ok     uint64 = 0xFFFC
	tag16Err    uint64 = 0xFFFD

	payloadMask uint64 = 0x0000FFFFFFFFFFFF

	// canonicalNaN is the sentinel every "real" NaN (0/0, and friends) is
	// remapped to on the way into a NanVal, so a language NaN never lands
	// on one of the reserved tag prefixes above by coincidence.
	canonicalNaN uint64 = 0x7FF8000000000000
)

// NanKind classifies a NanVal's tag.
type NanKind int

const (
	NanNumber NanKind = iota
	NanNil
	NanTrue
	NanFalse
	NanString
	NanList
	NanRecord
	NanOk
	NanErr
)

func tag16(v NanVal) uint64 { return uint64(v) >> 48 }

// Kind reports which tagged case v falls into.
func (v NanVal) Kind() NanKind {
	switch uint64(v) {
	case tagNilBits:
		return NanNil
	case tagTrueBits:
		return NanTrue
	case tagFalseBits:
		return NanFalse
	}
	switch tag16(v) {
	case tag16String:
		return NanString
	case tag16List:
		return NanList
	case tag16Record:
		return NanRecord
	case tag16Ok:
		return NanOk
	case tag16Err:
		return NanErr
	}
	return NanNumber
}

func (v NanVal) IsHeap() bool {
	switch v.Kind() {
	case NanString, NanList, NanRecord, NanOk, NanErr:
		return true
	default:
		return false
	}
}

func (v NanVal) payload() uint32 { return uint32(uint64(v) & payloadMask) }

func boxHeap(tag uint64, idx uint32) NanVal {
	return NanVal(tag<<48 | uint64(idx))
}

// BoxNumber reinterprets f's own bits as a NanVal, remapping any NaN
// payload to the canonical sentinel first.
func BoxNumber(f float64) NanVal {
	bits := math.Float64bits(f)
	if math.IsNaN(f) {
		bits = canonicalNaN
	}
	return NanVal(bits)
}

func (v NanVal) Number() float64 { return math.Float64frombits(uint64(v)) }

func BoxNil() NanVal { return NanVal(tagNilBits) }

func BoxBool(b bool) NanVal {
	if b {
		return NanVal(tagTrueBits)
	}
	return NanVal(tagFalseBits)
}

// heapObj is one entry in a Heap's object table. Its kind-specific field
// is populated according to Kind; the others stay zero.
type heapObj struct {
	kind     NanKind
	refs     int
	text     string
	items    []NanVal
	typeName string
	fields   map[string]NanVal
	inner    NanVal
}

// Heap owns every NanString/NanList/NanRecord/NanOk/NanErr cell a VM
// allocates, reference-counted: refcounts exclusively govern heap
// lifetime, and there are no cycles by construction. A free list
// reclaims slots left behind by dropped objects so a
// long-running VmState doesn't grow its object table unboundedly.
type Heap struct {
	objs []heapObj
	free []uint32
}

func NewHeap() *Heap {
	return &Heap{}
}

func (h *Heap) alloc(obj heapObj) uint32 {
	obj.refs = 1
	if n := len(h.free); n > 0 {
		idx := h.free[n-1]
		h.free = h.free[:n-1]
		h.objs[idx] = obj
		return idx
	}
	h.objs = append(h.objs, obj)
	return uint32(len(h.objs) - 1)
}

func (h *Heap) obj(v NanVal) *heapObj { return &h.objs[v.payload()] }

func (h *Heap) NewString(s string) NanVal {
	return boxHeap(tag16String, h.alloc(heapObj{kind: NanString, text: s}))
}

func (h *Heap) NewList(items []NanVal) NanVal {
	return boxHeap(tag16List, h.alloc(heapObj{kind: NanList, items: items}))
}

func (h *Heap) NewRecord(typeName string, fields map[string]NanVal) NanVal {
	return boxHeap(tag16Record, h.alloc(heapObj{kind: NanRecord, typeName: typeName, fields: fields}))
}

func (h *Heap) NewOk(inner NanVal) NanVal {
	h.CloneRC(inner)
	return boxHeap(tag16Ok, h.alloc(heapObj{kind: NanOk, inner: inner}))
}

func (h *Heap) NewErr(inner NanVal) NanVal {
	h.CloneRC(inner)
	return boxHeap(tag16Err, h.alloc(heapObj{kind: NanErr, inner: inner}))
}

func (h *Heap) Text(v NanVal) string             { return h.obj(v).text }
func (h *Heap) Items(v NanVal) []NanVal          { return h.obj(v).items }
func (h *Heap) TypeName(v NanVal) string         { return h.obj(v).typeName }
func (h *Heap) Fields(v NanVal) map[string]NanVal { return h.obj(v).fields }
func (h *Heap) Inner(v NanVal) NanVal            { return h.obj(v).inner }

// CloneRC increments v's refcount on push/dup/load, per the VM's
// ownership model. A no-op for non-heap values.
func (h *Heap) CloneRC(v NanVal) {
	if !v.IsHeap() {
		return
	}
	h.obj(v).refs++
}

// DropRC decrements v's refcount on pop/overwrite/scope-exit, freeing (and
// recursively dropping owned children) once it reaches zero. A no-op for
// non-heap values.
func (h *Heap) DropRC(v NanVal) {
	if !v.IsHeap() {
		return
	}
	o := h.obj(v)
	o.refs--
	if o.refs > 0 {
		return
	}
	switch o.kind {
	case NanList:
		for _, item := range o.items {
			h.DropRC(item)
		}
	case NanRecord:
		for _, item := range o.fields {
			h.DropRC(item)
		}
	case NanOk, NanErr:
		h.DropRC(o.inner)
	}
	*o = heapObj{}
	h.free = append(h.free, v.payload())
}
