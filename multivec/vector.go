package multivec

import "math"

const (
	// maxExp bounds the pre-activation values fed to the logistic function.
	maxExp = 6.0
	// expTableSize is the resolution of the cached logistic table.
	expTableSize = 1000
)

var sigmoidTable = buildSigmoidTable()

func buildSigmoidTable() []float32 {
	table := make([]float32, expTableSize)
	for i := range table {
		x := math.Exp((float64(i)/expTableSize*2 - 1) * maxExp)
		table[i] = float32(x / (x + 1))
	}
	return table
}

// sigmoid returns the cached logistic value for x. Callers handle values
// outside (-maxExp, maxExp) before the lookup.
func sigmoid(x float32) float32 {
	i := int((x + maxExp) * (expTableSize / maxExp / 2))
	if i < 0 {
		i = 0
	} else if i >= expTableSize {
		i = expTableSize - 1
	}
	return sigmoidTable[i]
}

func dot(a, b []float32) float32 {
	var s float32
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

// addTo adds src to dst element-wise.
func addTo(dst, src []float32) {
	for i := range dst {
		dst[i] += src[i]
	}
}

// addScaled adds s*src to dst element-wise.
func addScaled(dst []float32, s float32, src []float32) {
	for i := range dst {
		dst[i] += s * src[i]
	}
}

func scaleVector(v []float32, s float32) {
	for i := range v {
		v[i] *= s
	}
}

func vectorNorm(v []float32) float32 {
	return float32(math.Sqrt(float64(dot(v, v))))
}

// normalized returns a unit-length copy of v. A zero vector is returned
// unchanged.
func normalized(v []float32) []float32 {
	out := append([]float32(nil), v...)
	n := vectorNorm(out)
	if n > 0 {
		scaleVector(out, 1/n)
	}
	return out
}

// cosineSimilarity returns the cosine of the angle between a and b, or zero
// when either vector has zero norm or the lengths differ.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	l := vectorNorm(a) * vectorNorm(b)
	if l == 0 {
		return 0
	}
	return dot(a, b) / l
}
