package analysis

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"

	"tagflow/internal/media/ffprobe"
	"tagflow/internal/services"
)

// Decoder turns an audio file into mono samples in [-1,1) at its native rate.
type Decoder interface {
	Decode(ctx context.Context, path string) (samples []float64, sampleRate int, err error)
}

// StreamDecoder is a Decoder that can hand samples over block by block
// instead of returning the whole track.
type StreamDecoder interface {
	Decoder
	Stream(ctx context.Context, path string, fn func(block []float64)) (sampleRate int, err error)
}

// pcmBlockBytes is the read size for ffmpeg output, an even number of bytes
// so blocks never split a sample.
const pcmBlockBytes = 64 * 1024

// FFmpegDecoder probes the native sample rate with ffprobe and streams
// signed 16-bit mono PCM from ffmpeg without resampling.
type FFmpegDecoder struct {
	FFmpeg  string
	FFprobe string
}

// Decode implements Decoder by collecting every streamed block.
func (d FFmpegDecoder) Decode(ctx context.Context, path string) ([]float64, int, error) {
	var samples []float64
	rate, err := d.Stream(ctx, path, func(block []float64) { samples = append(samples, block...) })
	if err != nil {
		return nil, 0, err
	}
	return samples, rate, nil
}

// Stream implements StreamDecoder. The block passed to fn is reused between
// calls.
func (d FFmpegDecoder) Stream(ctx context.Context, path string, fn func(block []float64)) (int, error) {
	probe, err := ffprobe.Inspect(ctx, d.FFprobe, path)
	if err != nil {
		return 0, services.Wrap(services.ErrExternalTool, "analysis", "probe", path, err)
	}
	rate := probe.SampleRate()
	if rate <= 0 {
		return 0, services.Wrap(services.ErrExternalTool, "analysis", "probe", "no audio stream in "+path, nil)
	}

	binaryName := strings.TrimSpace(d.FFmpeg)
	if binaryName == "" {
		binaryName = "ffmpeg"
	}
	cmd := commandContext(ctx, binaryName, //nolint:gosec
		"-v", "error", "-nostdin", "-i", path,
		"-f", "s16le", "-acodec", "pcm_s16le", "-ac", "1", "-")
	var stderr strings.Builder
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return 0, fmt.Errorf("ffmpeg stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return 0, services.Wrap(services.ErrExternalTool, "analysis", "decode", "start ffmpeg", err)
	}
	readErr := streamPCM(stdout, fn)
	if readErr != nil {
		// Unblock ffmpeg before waiting on it.
		_, _ = io.Copy(io.Discard, stdout)
	}
	if waitErr := cmd.Wait(); waitErr != nil {
		return 0, services.Wrap(services.ErrExternalTool, "analysis", "decode",
			strings.TrimSpace(stderr.String()), waitErr)
	}
	if readErr != nil {
		return 0, fmt.Errorf("read pcm: %w", readErr)
	}
	return rate, nil
}

// streamPCM decodes little-endian int16 samples until EOF and passes them to
// fn one block at a time. A trailing odd byte is dropped.
func streamPCM(r io.Reader, fn func(block []float64)) error {
	raw := make([]byte, pcmBlockBytes)
	block := make([]float64, pcmBlockBytes/2)
	for {
		n, err := io.ReadFull(r, raw)
		if count := n / 2; count > 0 {
			for i := 0; i < count; i++ {
				block[i] = float64(int16(binary.LittleEndian.Uint16(raw[2*i:]))) / 32768
			}
			fn(block[:count])
		}
		switch {
		case err == nil:
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			return nil
		default:
			return err
		}
	}
}

// readPCM collects every sample streamPCM produces.
func readPCM(r io.Reader) ([]float64, error) {
	var samples []float64
	err := streamPCM(r, func(block []float64) { samples = append(samples, block...) })
	return samples, err
}
