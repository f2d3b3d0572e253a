package dsp

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"
)

var ErrInvalidBand = errors.New("invalid filter band")

// Biquad is one second-order section with normalized denominator (a0 = 1).
type Biquad struct {
	B0, B1, B2 float64
	A1, A2     float64
}

// SOS is a cascade of second-order sections.
type SOS []Biquad

// ButterBandpass designs a 2nd-order Butterworth bandpass filter as two
// cascaded second-order sections. The design follows the classic analog
// prototype -> lowpass-to-bandpass transform -> bilinear transform route,
// with band edges prewarped against the sampling rate.
func ButterBandpass(lowHz, highHz, sampleRate float64) (SOS, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: sample rate %g", ErrInvalidBand, sampleRate)
	}
	nyquist := sampleRate / 2
	if lowHz <= 0 || highHz >= nyquist || lowHz >= highHz {
		return nil, fmt.Errorf("%w: [%g, %g] Hz at fs=%g", ErrInvalidBand, lowHz, highHz, sampleRate)
	}

	// Normalize to Nyquist and prewarp with the design rate fixed at 2,
	// so the bilinear step below uses fs2 = 4.
	const fs2 = 4.0
	w1 := fs2 * math.Tan(math.Pi*(lowHz/nyquist)/2)
	w2 := fs2 * math.Tan(math.Pi*(highHz/nyquist)/2)
	bw := w2 - w1
	w0 := math.Sqrt(w1 * w2)

	// Order-2 Butterworth lowpass prototype: one conjugate pole pair on the
	// unit circle at 135 degrees. Only the upper-half-plane pole is tracked;
	// conjugates are restored when the sections are assembled.
	proto := complex(-math.Sqrt2/2, math.Sqrt2/2)

	// Lowpass-to-bandpass: each prototype pole splits into two.
	scaled := proto * complex(bw/2, 0)
	shift := cmplx.Sqrt(scaled*scaled - complex(w0*w0, 0))
	pa := scaled + shift
	pb := scaled - shift
	gain := bw * bw

	// Bilinear transform z = (fs2 + s) / (fs2 - s). The two analog zeros at
	// the origin map to z = +1; the two excess poles contribute zeros at
	// z = -1. Each digital section therefore carries numerator z^2 - 1.
	za := (complex(fs2, 0) + pa) / (complex(fs2, 0) - pa)
	zb := (complex(fs2, 0) + pb) / (complex(fs2, 0) - pb)

	// Gain correction: k * prod(fs2 - zeros) / prod(fs2 - poles), with the
	// conjugate poles included.
	num := complex(fs2*fs2, 0)
	den := (complex(fs2, 0) - pa) * (complex(fs2, 0) - cmplx.Conj(pa)) *
		(complex(fs2, 0) - pb) * (complex(fs2, 0) - cmplx.Conj(pb))
	k := gain * real(num/den)

	sos := SOS{
		{B0: k, B1: 0, B2: -k, A1: -2 * real(za), A2: real(za)*real(za) + imag(za)*imag(za)},
		{B0: 1, B1: 0, B2: -1, A1: -2 * real(zb), A2: real(zb)*real(zb) + imag(zb)*imag(zb)},
	}
	return sos, nil
}

// Filter applies the cascade to x in the forward direction with zero initial
// state, using the transposed direct form II per section.
func (s SOS) Filter(x []float64) []float64 {
	y := make([]float64, len(x))
	copy(y, x)
	for _, sec := range s {
		var z1, z2 float64
		for i, v := range y {
			out := sec.B0*v + z1
			z1 = sec.B1*v - sec.A1*out + z2
			z2 = sec.B2*v - sec.A2*out
			y[i] = out
		}
	}
	return y
}

// Response evaluates the cascade's complex frequency response at freqHz.
func (s SOS) Response(freqHz, sampleRate float64) complex128 {
	w := 2 * math.Pi * freqHz / sampleRate
	z := cmplx.Exp(complex(0, -w))
	h := complex(1, 0)
	for _, sec := range s {
		num := complex(sec.B0, 0) + complex(sec.B1, 0)*z + complex(sec.B2, 0)*z*z
		den := complex(1, 0) + complex(sec.A1, 0)*z + complex(sec.A2, 0)*z*z
		h *= num / den
	}
	return h
}
