package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"os/exec"
	"testing"

	"github.com/waveprint/waveprint/pkg/models"
)

// wavBytes builds a 16-bit PCM WAV file in memory.
func wavBytes(t *testing.T, samples []int16, channels, sampleRate int) []byte {
	t.Helper()

	var buf bytes.Buffer
	dataLen := len(samples) * 2
	blockAlign := channels * 2

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+dataLen))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*blockAlign))
	binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(dataLen))
	binary.Write(&buf, binary.LittleEndian, samples)

	return buf.Bytes()
}

func toneInt16(freq float64, seconds float64, sampleRate int, amp float64) []int16 {
	n := int(seconds * float64(sampleRate))
	out := make([]int16, n)
	for i := range out {
		v := amp * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
		out[i] = int16(v * 32767)
	}
	return out
}

func drain(t *testing.T, s *Stream) []float64 {
	t.Helper()
	var all []float64
	for {
		block, err := s.Next()
		if err == io.EOF {
			return all
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		all = append(all, block...)
	}
}

func TestDecodeWAVMono(t *testing.T) {
	samples := toneInt16(440, 1.0, DefaultSampleRate, 0.5)
	raw := wavBytes(t, samples, 1, DefaultSampleRate)

	stream, err := Decode(context.Background(), raw, Config{})
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if stream.SampleRate() != DefaultSampleRate {
		t.Errorf("sample rate = %d, want %d", stream.SampleRate(), DefaultSampleRate)
	}

	out := drain(t, stream)
	if len(out) != len(samples) {
		t.Errorf("got %d samples, want %d", len(out), len(samples))
	}
	if stream.Samples() != int64(len(samples)) {
		t.Errorf("Samples() = %d, want %d", stream.Samples(), len(samples))
	}
	for i, v := range out {
		if v < -1.0 || v > 1.0 {
			t.Fatalf("sample %d out of range: %f", i, v)
		}
	}
}

func TestDecodeWAVStereoDownmix(t *testing.T) {
	// Opposite-phase channels cancel to silence when averaged.
	n := DefaultSampleRate / 2
	interleaved := make([]int16, 2*n)
	for i := 0; i < n; i++ {
		interleaved[2*i] = 1000
		interleaved[2*i+1] = -1000
	}
	raw := wavBytes(t, interleaved, 2, DefaultSampleRate)

	stream, err := Decode(context.Background(), raw, Config{})
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	out := drain(t, stream)
	if len(out) != n {
		t.Fatalf("got %d frames, want %d", len(out), n)
	}
	for i, v := range out {
		if math.Abs(v) > 1e-4 {
			t.Fatalf("frame %d not cancelled: %f", i, v)
		}
	}
}

func TestDecodeWAVResamples(t *testing.T) {
	samples := toneInt16(440, 1.0, 44100, 0.5)
	raw := wavBytes(t, samples, 1, 44100)

	stream, err := Decode(context.Background(), raw, Config{})
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	out := drain(t, stream)

	want := len(samples) / 2
	if diff := len(out) - want; diff < -2 || diff > 2 {
		t.Errorf("resampled length = %d, want about %d", len(out), want)
	}
}

func TestDecodeCustomRate(t *testing.T) {
	samples := toneInt16(440, 1.0, 22050, 0.5)
	raw := wavBytes(t, samples, 1, 22050)

	stream, err := Decode(context.Background(), raw, Config{TargetSampleRate: 11025})
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if stream.SampleRate() != 11025 {
		t.Errorf("sample rate = %d, want 11025", stream.SampleRate())
	}
	out := drain(t, stream)
	if diff := len(out) - 11025; diff < -2 || diff > 2 {
		t.Errorf("resampled length = %d, want about 11025", len(out))
	}
}

func TestDecodeTinyInput(t *testing.T) {
	var decodeErr *models.DecodeError
	_, err := Decode(context.Background(), []byte("xx"), Config{})
	if !errors.As(err, &decodeErr) {
		t.Fatalf("want DecodeError, got %v", err)
	}
}

func TestDecodeInvalidWAV(t *testing.T) {
	raw := append([]byte("RIFF\x10\x00\x00\x00WAVE"), bytes.Repeat([]byte{0xde}, 64)...)

	var decodeErr *models.DecodeError
	_, err := Decode(context.Background(), raw, Config{})
	if !errors.As(err, &decodeErr) {
		t.Fatalf("want DecodeError, got %v", err)
	}
}

func TestDecodeGarbageViaFFmpeg(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not installed")
	}

	raw := bytes.Repeat([]byte("definitely not audio "), 64)
	var decodeErr *models.DecodeError
	_, err := Decode(context.Background(), raw, Config{})
	if !errors.As(err, &decodeErr) {
		t.Fatalf("want DecodeError, got %v", err)
	}
}

func TestResampleLinearIdentity(t *testing.T) {
	in := []float64{0, 0.5, 1, 0.5, 0}
	out := resampleLinear(in, 22050, 22050)
	if len(out) != len(in) {
		t.Fatalf("identity resample changed length: %d", len(out))
	}
}

func TestDownmix(t *testing.T) {
	mono := downmix([]float64{1, 0, 0.5, 0.5}, 2)
	if len(mono) != 2 {
		t.Fatalf("got %d frames, want 2", len(mono))
	}
	if mono[0] != 0.5 || mono[1] != 0.5 {
		t.Errorf("downmix = %v, want [0.5 0.5]", mono)
	}
}
