package analysis

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
	"gonum.org/v1/gonum/stat"
)

const (
	// WindowSize is the analysis frame length in samples.
	WindowSize = 1024
	// HopSize is the distance between frame starts in samples.
	HopSize = 512

	thresholdRadius = 16
	peakRadius      = 3
	thresholdScale  = 0.5
	beatTolerance   = 0.2
)

// Detection is the output of one detector run.
type Detection struct {
	// Onsets are the picked spectral-flux peaks, in seconds.
	Onsets []float64
	// Beats are tracked beat times, in seconds.
	Beats []float64
	// Tempo is the detector's own estimate in BPM, or 0.
	Tempo float64
	// Confidence is the normalized autocorrelation at the chosen period.
	Confidence float64
}

// OnsetDetector finds onsets and beats in mono PCM.
type OnsetDetector struct {
	fft    *fourier.FFT
	window []float64
}

// NewOnsetDetector builds a detector with the fixed frame geometry.
func NewOnsetDetector() *OnsetDetector {
	ones := make([]float64, WindowSize)
	for i := range ones {
		ones[i] = 1
	}
	return &OnsetDetector{
		fft:    fourier.NewFFT(WindowSize),
		window: window.Hann(ones),
	}
}

// Detect runs the detector over samples recorded at sampleRate.
func (d *OnsetDetector) Detect(samples []float64, sampleRate int) Detection {
	if sampleRate <= 0 || len(samples) < WindowSize {
		return Detection{}
	}
	flux := d.newFlux()
	flux.write(samples)
	return detectEnvelope(flux.envelope, sampleRate)
}

// detectEnvelope picks onsets and estimates tempo from a spectral-flux
// envelope with one value per hop.
func detectEnvelope(envelope []float64, sampleRate int) Detection {
	if sampleRate <= 0 || len(envelope) == 0 {
		return Detection{}
	}
	fps := float64(sampleRate) / HopSize
	frameTime := func(i int) float64 { return float64(i) / fps }

	peaks := pickPeaks(envelope)
	onsets := make([]float64, len(peaks))
	for i, p := range peaks {
		onsets[i] = frameTime(p)
	}

	tempo, confidence := estimateTempo(envelope, fps)
	det := Detection{Onsets: onsets, Tempo: tempo, Confidence: confidence}
	if tempo > 0 {
		det.Beats = trackBeats(onsets, 60/tempo)
	}
	return det
}

// fluxAccumulator computes the half-wave rectified spectral flux of a sample
// stream. Only the samples of the frame in progress are retained, so memory is
// bounded by the envelope rather than the track length.
type fluxAccumulator struct {
	d        *OnsetDetector
	pending  []float64
	frame    []float64
	coeffs   []complex128
	prev     []float64
	mag      []float64
	envelope []float64
}

func (d *OnsetDetector) newFlux() *fluxAccumulator {
	return &fluxAccumulator{
		d:       d,
		pending: make([]float64, 0, 2*WindowSize),
		frame:   make([]float64, WindowSize),
		prev:    make([]float64, WindowSize/2+1),
		mag:     make([]float64, WindowSize/2+1),
	}
}

// write consumes block. block may be reused by the caller afterwards.
func (f *fluxAccumulator) write(block []float64) {
	for len(block) > 0 {
		take := min(len(block), cap(f.pending)-len(f.pending))
		f.pending = append(f.pending, block[:take]...)
		block = block[take:]

		off := 0
		for len(f.pending)-off >= WindowSize {
			f.step(f.pending[off : off+WindowSize])
			off += HopSize
		}
		n := copy(f.pending, f.pending[off:])
		f.pending = f.pending[:n]
	}
}

func (f *fluxAccumulator) step(samples []float64) {
	for i := range f.frame {
		f.frame[i] = samples[i] * f.d.window[i]
	}
	f.coeffs = f.d.fft.Coefficients(f.coeffs, f.frame)
	var sum float64
	for k, c := range f.coeffs {
		f.mag[k] = cmplx.Abs(c)
		if diff := f.mag[k] - f.prev[k]; diff > 0 {
			sum += diff
		}
	}
	f.envelope = append(f.envelope, sum)
	f.prev, f.mag = f.mag, f.prev
}

// pickPeaks keeps frames that are local maxima and exceed the local mean by a
// multiple of the local standard deviation.
func pickPeaks(envelope []float64) []int {
	var peaks []int
	for i, v := range envelope {
		if v <= 0 {
			continue
		}
		lo, hi := max(0, i-thresholdRadius), min(len(envelope), i+thresholdRadius+1)
		local := envelope[lo:hi]
		mean, std := stat.MeanStdDev(local, nil)
		if v <= mean+thresholdScale*std {
			continue
		}
		isMax := true
		for j := max(0, i-peakRadius); j < min(len(envelope), i+peakRadius+1); j++ {
			if envelope[j] > v || (envelope[j] == v && j < i) {
				isMax = false
				break
			}
		}
		if isMax {
			peaks = append(peaks, i)
		}
	}
	return peaks
}

// estimateTempo autocorrelates the mean-removed envelope over the lags that
// correspond to 40..250 BPM. Each lag is scored with its two neighbours so a
// period falling between frames is not split; the winning lag is refined by
// the autocorrelation-weighted mean of that neighbourhood.
func estimateTempo(envelope []float64, fps float64) (tempo, confidence float64) {
	minLag := int(math.Floor(60 * fps / maxPlausibleBPM))
	maxLag := int(math.Ceil(60 * fps / minPlausibleBPM))
	if minLag < 1 {
		minLag = 1
	}
	if len(envelope) < 2*maxLag+2 {
		return 0, 0
	}

	mean := stat.Mean(envelope, nil)
	centered := make([]float64, len(envelope))
	for i, v := range envelope {
		centered[i] = v - mean
	}
	ac := make([]float64, maxLag+2)
	for lag := range ac {
		var sum float64
		for i := 0; i+lag < len(centered); i++ {
			sum += centered[i] * centered[i+lag]
		}
		ac[lag] = sum
	}
	if ac[0] <= 0 {
		return 0, 0
	}

	bestLag, bestScore := 0, math.Inf(-1)
	for lag := max(minLag, 1); lag <= maxLag; lag++ {
		score := ac[lag-1] + ac[lag] + ac[lag+1]
		if score > bestScore {
			bestLag, bestScore = lag, score
		}
	}
	if bestLag == 0 || bestScore <= 0 {
		return 0, 0
	}

	var weight, weighted float64
	for lag := bestLag - 1; lag <= bestLag+1; lag++ {
		if w := ac[lag]; w > 0 {
			weight += w
			weighted += w * float64(lag)
		}
	}
	period := float64(bestLag)
	if weight > 0 {
		period = weighted / weight
	}
	return 60 * fps / period, ac[bestLag] / ac[0]
}

// trackBeats walks forward from the first onset one period at a time, taking
// the nearest onset within tolerance of each expected beat and the expected
// time itself when none is found.
func trackBeats(onsets []float64, period float64) []float64 {
	if len(onsets) == 0 || period <= 0 {
		return nil
	}
	last := onsets[len(onsets)-1]
	beats := []float64{onsets[0]}
	next := 1
	for expected := onsets[0] + period; expected <= last+period*beatTolerance; {
		best, bestDist := -1.0, period*beatTolerance
		for next < len(onsets) && onsets[next] < expected-period*beatTolerance {
			next++
		}
		for j := next; j < len(onsets) && onsets[j] <= expected+period*beatTolerance; j++ {
			if dist := math.Abs(onsets[j] - expected); dist <= bestDist {
				best, bestDist = onsets[j], dist
			}
		}
		beat := expected
		if best >= 0 {
			beat = best
		}
		beats = append(beats, beat)
		expected = beat + period
	}
	return beats
}
