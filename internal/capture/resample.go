package capture

import "math"

// half-width of the interpolation kernel, in output-rate zero crossings
const resampleHalfTaps = 16

// Resample converts mono audio from one sample rate to another with a Hann-windowed
// sinc kernel. The output holds ceil(len(in)*to/from) samples. When downsampling the
// kernel is widened so it also acts as the anti-aliasing low-pass.
func Resample(in []float32, from, to int) []float32 {
	if from == to || from <= 0 || to <= 0 || len(in) == 0 {
		return append([]float32(nil), in...)
	}

	g := gcd(from, to)
	up, down := to/g, from/g
	out := make([]float32, (len(in)*up+down-1)/down)

	cutoff := math.Min(1, float64(to)/float64(from))
	half := float64(resampleHalfTaps) / cutoff
	last := len(in) - 1

	for n := range out {
		t := float64(n) * float64(down) / float64(up)
		lo := int(math.Ceil(t - half))
		hi := int(math.Floor(t + half))
		if lo < 0 {
			lo = 0
		}
		if hi > last {
			hi = last
		}

		var acc float64
		for k := lo; k <= hi; k++ {
			d := t - float64(k)
			acc += float64(in[k]) * cutoff * sinc(cutoff*d) * hann(d/half)
		}
		out[n] = float32(acc)
	}
	return out
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	return math.Sin(math.Pi*x) / (math.Pi * x)
}

func hann(r float64) float64 {
	if r < -1 || r > 1 {
		return 0
	}
	return 0.5 * (1 + math.Cos(math.Pi*r))
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
