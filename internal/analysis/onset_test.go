package analysis

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"testing"
)

const (
	clickRate    = 25600
	clickSeconds = 20
)

// clickTrack returns clickSeconds of silence with a decaying 2 kHz click every
// half second starting at 0.5s, i.e. 120 BPM.
func clickTrack() []float64 {
	samples := make([]float64, clickRate*clickSeconds)
	interval := clickRate / 2
	for start := interval; start < len(samples); start += interval {
		for i := 0; i < 256 && start+i < len(samples); i++ {
			decay := math.Exp(-float64(i) / 64)
			samples[start+i] = 0.9 * decay * math.Sin(2*math.Pi*2000*float64(i)/clickRate)
		}
	}
	return samples
}

func writeClickTrack(w io.Writer) {
	buf := make([]byte, 2)
	for _, s := range clickTrack() {
		binary.LittleEndian.PutUint16(buf, uint16(int16(s*32767)))
		_, _ = w.Write(buf)
	}
}

func TestOnsetDetectorFindsTempoOfClickTrack(t *testing.T) {
	det := NewOnsetDetector().Detect(clickTrack(), clickRate)
	if math.Abs(det.Tempo-120) > 1 {
		t.Fatalf("detector tempo = %v, want ~120", det.Tempo)
	}
	if len(det.Onsets) < 30 {
		t.Fatalf("expected an onset per click, got %d", len(det.Onsets))
	}
	if len(det.Beats) < 2 {
		t.Fatalf("expected tracked beats, got %d", len(det.Beats))
	}
	bpm, ok := EstimateBPM(det.Beats, det.Tempo)
	if !ok || RoundBPM(bpm) != 120 {
		t.Fatalf("EstimateBPM = %v, %v; want 120", bpm, ok)
	}
	if det.Confidence <= 0 || det.Confidence > 1 {
		t.Fatalf("confidence out of range: %v", det.Confidence)
	}
}

func TestOnsetDetectorSilenceAndShortInput(t *testing.T) {
	if det := NewOnsetDetector().Detect(make([]float64, clickRate*5), clickRate); det.Tempo != 0 || len(det.Beats) != 0 {
		t.Fatalf("silence produced tempo %v with %d beats", det.Tempo, len(det.Beats))
	}
	if det := NewOnsetDetector().Detect(make([]float64, 100), clickRate); det.Tempo != 0 || det.Onsets != nil {
		t.Fatalf("short input produced %+v", det)
	}
}

func TestTrackBeatsFillsGaps(t *testing.T) {
	beats := trackBeats([]float64{0, 0.5, 1.5, 2.0}, 0.5)
	want := []float64{0, 0.5, 1.0, 1.5, 2.0}
	if len(beats) != len(want) {
		t.Fatalf("trackBeats = %v, want %v", beats, want)
	}
	for i := range want {
		if math.Abs(beats[i]-want[i]) > 1e-9 {
			t.Fatalf("trackBeats = %v, want %v", beats, want)
		}
	}
}

func TestReadPCM(t *testing.T) {
	data := []byte{0x00, 0x40, 0x00, 0xC0, 0x01}
	samples, err := readPCM(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("readPCM failed: %v", err)
	}
	if len(samples) != 2 || samples[0] != 0.5 || samples[1] != -0.5 {
		t.Fatalf("unexpected samples %v", samples)
	}
}

func TestFluxAccumulatorMatchesAcrossBlockSizes(t *testing.T) {
	d := NewOnsetDetector()
	samples := clickTrack()

	whole := d.newFlux()
	whole.write(samples)
	if want := 1 + (len(samples)-WindowSize)/HopSize; len(whole.envelope) != want {
		t.Fatalf("envelope has %d frames, want %d", len(whole.envelope), want)
	}

	for _, size := range []int{1, 511, 777, WindowSize, 3 * WindowSize} {
		chunked := d.newFlux()
		block := make([]float64, size)
		for off := 0; off < len(samples); off += size {
			n := copy(block, samples[off:])
			chunked.write(block[:n])
		}
		if len(chunked.envelope) != len(whole.envelope) {
			t.Fatalf("block %d: %d frames, want %d", size, len(chunked.envelope), len(whole.envelope))
		}
		for i := range whole.envelope {
			if chunked.envelope[i] != whole.envelope[i] {
				t.Fatalf("block %d: frame %d = %v, want %v", size, i, chunked.envelope[i], whole.envelope[i])
			}
		}
	}

	short := d.newFlux()
	short.write(samples[:WindowSize-1])
	if len(short.envelope) != 0 {
		t.Fatalf("expected no frames for a short input, got %d", len(short.envelope))
	}
}
