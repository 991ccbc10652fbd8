package summary

import "fmt"

// Cropping limits.
const (
	// MaxCropDepth bounds recursion; deeper subtrees are returned as is.
	MaxCropDepth = 2

	// MaxObjectKeys is the key budget for a trimmed top-level object.
	MaxObjectKeys = 10

	// ObjectMarkerKey holds the omitted-key count in a trimmed object.
	ObjectMarkerKey = "..."

	shapeSampleCap     = 32
	rowLikePercent     = 80
	outerMinCropLength = 5
	innerMinCropLength = 30
)

// PriorityKeys are placed first, in this order, when a top-level object is
// trimmed.
var PriorityKeys = []string{
	"id", "symbol", "ticker", "type", "status", "desc", "timeframe", "title",
}

// Shape classifies an array by what its elements look like.
type Shape uint8

const (
	ScalarLike Shape = iota
	RowLike
)

func (s Shape) String() string {
	if s == RowLike {
		return "row-like"
	}
	return "scalar-like"
}

// CropPolicy decides when and how an array is windowed.
type CropPolicy struct {
	MinLen int
	Head   int
	Tail   int
}

// policyTable is indexed by [depth > 0][shape].
var policyTable = [2][2]CropPolicy{
	{
		ScalarLike: {MinLen: outerMinCropLength, Head: 1, Tail: 1},
		RowLike:    {MinLen: outerMinCropLength, Head: 1, Tail: 1},
	},
	{
		ScalarLike: {MinLen: innerMinCropLength, Head: 3, Tail: 1},
		RowLike:    {MinLen: innerMinCropLength, Head: 1, Tail: 1},
	},
}

// PolicyFor returns the array policy for the given depth and shape.
func PolicyFor(depth int, shape Shape) CropPolicy {
	inner := 0
	if depth > 0 {
		inner = 1
	}
	return policyTable[inner][shape]
}

// Classify samples up to 32 evenly spaced elements and reports RowLike when
// at least 80% of the sample are arrays.
func Classify(elems []Value) Shape {
	n := len(elems)
	if n == 0 {
		return ScalarLike
	}
	sampleN := min(n, shapeSampleCap)
	step := (n + sampleN - 1) / sampleN

	arrays, taken := 0, 0
	for i := 0; i < n && taken < sampleN; i += step {
		if elems[i].IsArray() {
			arrays++
		}
		taken++
	}
	if arrays*100 >= taken*rowLikePercent {
		return RowLike
	}
	return ScalarLike
}

// ArrayMarker is the placeholder element standing in for omitted items.
func ArrayMarker(omitted int) string {
	return fmt.Sprintf("... (%d more) ...", omitted)
}

// ObjectMarker is the value stored under ObjectMarkerKey.
func ObjectMarker(omitted int) string {
	return fmt.Sprintf("%d more keys", omitted)
}

// Crop returns a presentational copy of v with large arrays windowed and a
// wide top-level object trimmed. v is never modified.
func Crop(v Value) Value {
	return crop(v, 0)
}

func crop(v Value, depth int) Value {
	if depth > MaxCropDepth {
		return v
	}
	switch v.kind {
	case KindArray:
		return cropArray(v.arr, depth)
	case KindObject:
		return cropObject(v.obj, depth)
	}
	return v
}

func cropArray(elems []Value, depth int) Value {
	p := PolicyFor(depth, Classify(elems))
	n := len(elems)

	if n < p.MinLen || n <= p.Head+p.Tail {
		out := make([]Value, n)
		for i, e := range elems {
			out[i] = crop(e, depth+1)
		}
		return Array(out...)
	}

	out := make([]Value, 0, p.Head+1+p.Tail)
	for _, e := range elems[:p.Head] {
		out = append(out, crop(e, depth+1))
	}
	out = append(out, String(ArrayMarker(n-p.Head-p.Tail)))
	for _, e := range elems[n-p.Tail:] {
		out = append(out, crop(e, depth+1))
	}
	return Array(out...)
}

func cropObject(obj *Object, depth int) Value {
	if depth > 0 || obj.Len() <= MaxObjectKeys {
		out := NewObject(obj.Len())
		for pair := obj.Oldest(); pair != nil; pair = pair.Next() {
			out.Set(pair.Key, crop(pair.Value, depth+1))
		}
		return ObjectOf(out)
	}

	out := NewObject(MaxObjectKeys + 1)
	for _, k := range PriorityKeys {
		if out.Len() >= MaxObjectKeys {
			break
		}
		if v, ok := obj.Get(k); ok {
			out.Set(k, crop(v, depth+1))
		}
	}
	for pair := obj.Oldest(); pair != nil && out.Len() < MaxObjectKeys; pair = pair.Next() {
		if _, placed := out.Get(pair.Key); placed {
			continue
		}
		out.Set(pair.Key, crop(pair.Value, depth+1))
	}
	if omitted := obj.Len() - out.Len(); omitted > 0 {
		out.Set(ObjectMarkerKey, String(ObjectMarker(omitted)))
	}
	return ObjectOf(out)
}
