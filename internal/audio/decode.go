package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os/exec"
	"strconv"

	"github.com/go-audio/wav"
	"github.com/mewkiz/flac"

	"github.com/waveprint/waveprint/pkg/models"
)

// Config carries the decode parameters. It is an explicit value passed per
// call so tests can run varied configurations in isolation; there is no
// process-wide transcoder state.
type Config struct {
	// TargetSampleRate is the canonical rate. Zero means DefaultSampleRate.
	TargetSampleRate int
	// FFmpegPath overrides the transcoder binary used for compressed
	// formats. Zero value means "ffmpeg" from PATH.
	FFmpegPath string
}

func (c Config) sampleRate() int {
	if c.TargetSampleRate > 0 {
		return c.TargetSampleRate
	}
	return DefaultSampleRate
}

func (c Config) ffmpeg() string {
	if c.FFmpegPath != "" {
		return c.FFmpegPath
	}
	return "ffmpeg"
}

// Decode turns raw audio bytes of any supported container (WAV and FLAC
// natively, everything else through ffmpeg) into a canonical Stream.
// Malformed or unsupported input yields a *models.DecodeError.
func Decode(ctx context.Context, raw []byte, cfg Config) (*Stream, error) {
	if len(raw) < 12 {
		return nil, &models.DecodeError{Reason: "input too small to be audio"}
	}

	switch {
	case bytes.HasPrefix(raw, []byte("RIFF")) && bytes.Equal(raw[8:12], []byte("WAVE")):
		return decodeWAV(raw, cfg)
	case bytes.HasPrefix(raw, []byte("fLaC")):
		return decodeFLAC(raw, cfg)
	default:
		return decodeFFmpeg(ctx, raw, cfg)
	}
}

func decodeWAV(raw []byte, cfg Config) (*Stream, error) {
	dec := wav.NewDecoder(bytes.NewReader(raw))
	if !dec.IsValidFile() {
		return nil, &models.DecodeError{Reason: "invalid WAV file"}
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, &models.DecodeError{Reason: "reading WAV PCM data", Err: err}
	}
	if buf == nil || buf.Format == nil || len(buf.Data) == 0 {
		return nil, &models.DecodeError{Reason: "WAV file holds no samples"}
	}

	bitDepth := int(buf.SourceBitDepth)
	if bitDepth == 0 {
		bitDepth = 16
	}
	scale := 1.0 / float64(int64(1)<<(bitDepth-1))

	samples := make([]float64, len(buf.Data))
	for i, s := range buf.Data {
		samples[i] = float64(s) * scale
	}

	mono := downmix(samples, buf.Format.NumChannels)
	mono = resampleLinear(mono, buf.Format.SampleRate, cfg.sampleRate())
	return newBufferStream(mono, cfg.sampleRate()), nil
}

func decodeFLAC(raw []byte, cfg Config) (*Stream, error) {
	stream, err := flac.New(bytes.NewReader(raw))
	if err != nil {
		return nil, &models.DecodeError{Reason: "invalid FLAC file", Err: err}
	}

	channels := int(stream.Info.NChannels)
	if channels == 0 {
		return nil, &models.DecodeError{Reason: "FLAC file reports zero channels"}
	}

	var mono []float64
	for {
		frame, err := stream.ParseNext()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &models.DecodeError{Reason: "reading FLAC frame", Err: err}
		}

		scale := 1.0 / float64(int64(1)<<(frame.BitsPerSample-1))
		n := frame.Subframes[0].NSamples
		for i := 0; i < n; i++ {
			var sum float64
			for c := 0; c < channels; c++ {
				sum += float64(frame.Subframes[c].Samples[i]) * scale
			}
			mono = append(mono, sum/float64(channels))
		}
	}
	if len(mono) == 0 {
		return nil, &models.DecodeError{Reason: "FLAC file holds no samples"}
	}

	mono = resampleLinear(mono, int(stream.Info.SampleRate), cfg.sampleRate())
	return newBufferStream(mono, cfg.sampleRate()), nil
}

// decodeFFmpeg shells out to ffmpeg exactly the way the upload path always
// has: s16le, one channel, canonical rate, piped through stdin/stdout so
// the output is consumable incrementally with backpressure.
func decodeFFmpeg(ctx context.Context, raw []byte, cfg Config) (*Stream, error) {
	cmd := exec.CommandContext(
		ctx,
		cfg.ffmpeg(),
		"-v", "error",
		"-i", "pipe:0",
		"-f", "s16le",
		"-ac", "1",
		"-ar", strconv.Itoa(cfg.sampleRate()),
		"pipe:1",
	)
	cmd.Stdin = bytes.NewReader(raw)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &models.DecodeError{Reason: "creating ffmpeg pipe", Err: err}
	}
	if err := cmd.Start(); err != nil {
		return nil, &models.DecodeError{Reason: "starting ffmpeg", Err: err}
	}

	reader := pcmReader{r: stdout, cmd: cmd, stderr: &stderr, ctx: ctx}

	// Prefetch one block so unreadable input fails the decode call itself
	// instead of the first extraction read.
	first, err := reader.nextBlock()
	if err != nil && err != io.EOF {
		return nil, err
	}
	if len(first) == 0 {
		cause := firstLine(stderr.Bytes())
		if cause == "" {
			cause = "ffmpeg produced no output"
		}
		return nil, &models.DecodeError{Reason: fmt.Sprintf("unsupported or corrupt audio: %s", cause)}
	}

	delivered := false
	return &Stream{
		sampleRate: cfg.sampleRate(),
		next: func() ([]float64, error) {
			if !delivered {
				delivered = true
				return first, nil
			}
			return reader.nextBlock()
		},
	}, nil
}

// pcmReader reads s16le PCM off the ffmpeg pipe one block at a time.
type pcmReader struct {
	r      io.Reader
	cmd    *exec.Cmd
	stderr *bytes.Buffer
	ctx    context.Context
	done   bool
}

func (b *pcmReader) nextBlock() ([]float64, error) {
	if b.done {
		return nil, io.EOF
	}
	if err := b.ctx.Err(); err != nil {
		b.finish()
		return nil, err
	}

	buf := make([]byte, blockSize*2)
	n, err := io.ReadFull(b.r, buf)
	if n == 0 {
		b.done = true
		if werr := b.finish(); werr != nil {
			return nil, &models.DecodeError{Reason: firstLine(b.stderr.Bytes()), Err: werr}
		}
		return nil, io.EOF
	}
	if err == io.ErrUnexpectedEOF || err == io.EOF {
		// The Wait error is dropped here: ffmpeg dying partway through a
		// damaged file still leaves the samples it managed to emit, and
		// those are kept as a truncated stream rather than failing the
		// whole decode.
		b.done = true
		b.finish()
	} else if err != nil {
		b.done = true
		b.finish()
		return nil, &models.DecodeError{Reason: "reading ffmpeg output", Err: err}
	}

	n -= n % 2
	block := make([]float64, n/2)
	const scale = 1.0 / 32768.0
	for i := range block {
		block[i] = float64(int16(binary.LittleEndian.Uint16(buf[2*i:]))) * scale
	}
	return block, nil
}

func (b *pcmReader) finish() error {
	return b.cmd.Wait()
}

func firstLine(out []byte) string {
	if i := bytes.IndexByte(out, '\n'); i >= 0 {
		out = out[:i]
	}
	return string(bytes.TrimSpace(out))
}
