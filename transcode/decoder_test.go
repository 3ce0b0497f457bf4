package transcode

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/RyanBlaney/sonido-grader/logging"
)

// writeWAV encodes 16-bit PCM frames to a temporary file and returns its path
func writeWAV(t *testing.T, sampleRate, channels int, data []int) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "take.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, 16, channels, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close encoder: %v", err)
	}
	return path
}

// writeFloatWAV stores samples as 32-bit IEEE float; the encoder writes the
// int32 it is given verbatim, so the data carries the float bit patterns
func writeFloatWAV(t *testing.T, sampleRate int, samples []float32) []byte {
	t.Helper()

	data := make([]int, len(samples))
	for i, v := range samples {
		data[i] = int(int32(math.Float32bits(v)))
	}

	path := filepath.Join(t.TempDir(), "take_f32.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	enc := wav.NewEncoder(f, sampleRate, 32, 1, wavFormatFloat)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 32,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close encoder: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close file: %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	return b
}

func testDecoder(cfg *DecoderConfig) *Decoder {
	d := NewDecoder(cfg)
	d.SetLogger(&logging.NoOpLogger{})
	return d
}

func TestDecodeMonoWAV(t *testing.T) {
	data := make([]int, 8000)
	for i := range data {
		data[i] = int(16000 * math.Sin(2*math.Pi*440*float64(i)/8000))
	}
	path := writeWAV(t, 8000, 1, data)

	got, err := testDecoder(nil).DecodeFile(context.Background(), path)
	if err != nil {
		t.Fatalf("DecodeFile: %v", err)
	}
	if got.SampleRate != 8000 {
		t.Errorf("sample rate = %d, want 8000", got.SampleRate)
	}
	if len(got.PCM) != len(data) {
		t.Fatalf("samples = %d, want %d", len(got.PCM), len(data))
	}
	if got.Duration != time.Second {
		t.Errorf("duration = %v, want 1s", got.Duration)
	}
	for i, s := range got.PCM {
		want := float64(data[i]) / 32768
		if math.Abs(s-want) > 1e-12 {
			t.Fatalf("sample %d = %v, want %v", i, s, want)
		}
		if s < -1 || s > 1 {
			t.Fatalf("sample %d out of range: %v", i, s)
		}
	}
	if got.Metadata == nil || got.Metadata.Channels != 1 || got.Metadata.Format != "wav" {
		t.Errorf("metadata = %+v", got.Metadata)
	}
}

func TestDecodeStereoWAVDownmixes(t *testing.T) {
	// left at half scale, right silent
	data := make([]int, 2*100)
	for i := 0; i < len(data); i += 2 {
		data[i] = 16384
	}
	path := writeWAV(t, 16000, 2, data)

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	got, err := testDecoder(nil).Decode(context.Background(), raw, "WAV")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(got.PCM) != 100 {
		t.Fatalf("mono samples = %d, want 100", len(got.PCM))
	}
	for i, s := range got.PCM {
		if s != 0.25 {
			t.Fatalf("sample %d = %v, want 0.25", i, s)
		}
	}
	if got.Metadata.Channels != 2 {
		t.Errorf("source channels = %d, want 2", got.Metadata.Channels)
	}
}

func TestDecodeTruncatesToMaxDuration(t *testing.T) {
	path := writeWAV(t, 8000, 1, make([]int, 16000))

	cfg := DefaultDecoderConfig()
	cfg.MaxDuration = 500 * time.Millisecond
	got, err := testDecoder(cfg).DecodeFile(context.Background(), path)
	if err != nil {
		t.Fatalf("DecodeFile: %v", err)
	}
	if len(got.PCM) != 4000 {
		t.Errorf("samples = %d, want 4000", len(got.PCM))
	}
}

func TestDecodeRejectsInput(t *testing.T) {
	d := testDecoder(nil)

	if _, err := d.Decode(context.Background(), []byte("abc"), ".ogg"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("ogg: error = %v, want ErrUnsupportedFormat", err)
	}
	if _, err := d.Decode(context.Background(), nil, ".mp3"); !errors.Is(err, ErrEmptyAudio) {
		t.Errorf("empty: error = %v, want ErrEmptyAudio", err)
	}
}

func TestDecodeFailsWithoutFFmpeg(t *testing.T) {
	cfg := DefaultDecoderConfig()
	cfg.FFmpegPath = filepath.Join(t.TempDir(), "no-ffmpeg")
	cfg.FFprobePath = filepath.Join(t.TempDir(), "no-ffprobe")
	d := testDecoder(cfg)

	// garbage WAV falls back to ffmpeg, which is missing
	for _, ext := range []string{".wav", ".mp3"} {
		if _, err := d.Decode(context.Background(), []byte("not audio at all"), ext); err == nil {
			t.Errorf("%s: expected an error", ext)
		}
	}
}

func TestIsSupported(t *testing.T) {
	tests := map[string]bool{
		".wav": true, "mp3": true, ".M4A": true, "webm": true,
		".ogg": false, "": false, ".flac": false,
	}
	for ext, want := range tests {
		if got := IsSupported(ext); got != want {
			t.Errorf("IsSupported(%q) = %v, want %v", ext, got, want)
		}
	}
}

func TestParseFFprobeOutput(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    *AudioMetadata
		wantErr bool
	}{
		{
			name: "mp3 stream",
			in:   `{"streams":[{"codec_type":"audio","codec_name":"mp3","sample_rate":"44100","channels":2,"duration":"3.5","bit_rate":"128000","codec_long_name":"MP3"}]}`,
			want: &AudioMetadata{SampleRate: 44100, Channels: 2, Codec: "mp3", Duration: 3.5, Bitrate: 128000, Format: "MP3"},
		},
		{
			name: "missing optional fields",
			in:   `{"streams":[{"codec_type":"audio","codec_name":"opus","sample_rate":"48000","channels":1}]}`,
			want: &AudioMetadata{SampleRate: 48000, Channels: 1, Codec: "opus"},
		},
		{name: "no streams", in: `{"streams":[]}`, wantErr: true},
		{name: "video stream", in: `{"streams":[{"codec_type":"video","sample_rate":"0","channels":0}]}`, wantErr: true},
		{name: "bad sample rate", in: `{"streams":[{"codec_type":"audio","sample_rate":"n/a","channels":1}]}`, wantErr: true},
		{name: "bad channels", in: `{"streams":[{"codec_type":"audio","sample_rate":"8000","channels":0}]}`, wantErr: true},
		{name: "not json", in: `nope`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseFFprobeOutput([]byte(tt.in))
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestBytesToFloat64(t *testing.T) {
	raw := make([]byte, 0, 20)
	for _, v := range []float64{0.5, -0.25} {
		bits := math.Float64bits(v)
		for i := 0; i < 8; i++ {
			raw = append(raw, byte(bits>>(8*i)))
		}
	}
	raw = append(raw, 1, 2, 3) // partial trailing sample

	got := bytesToFloat64(raw)
	if !reflect.DeepEqual(got, []float64{0.5, -0.25}) {
		t.Errorf("bytesToFloat64 = %v", got)
	}
	if bytesToFloat64([]byte{1, 2}) != nil {
		t.Error("short input should decode to nil")
	}
}

func TestBuildFFmpegArgs(t *testing.T) {
	args := buildFFmpegArgs(&AudioMetadata{SampleRate: 48000}, 0)
	want := []string{"-v", "error", "-i", "pipe:0", "-map", "0:a:0", "-vn", "-f", "f64le", "-ac", "1", "-ar", "48000", "pipe:1"}
	if !reflect.DeepEqual(args, want) {
		t.Errorf("args = %v", args)
	}

	limited := buildFFmpegArgs(&AudioMetadata{SampleRate: 8000}, 30)
	if limited[4] != "-t" || limited[5] != "30.000" {
		t.Errorf("duration limit not applied: %v", limited)
	}
}

func TestScaleSample(t *testing.T) {
	tests := []struct {
		s, depth int
		want     float64
	}{
		{32767, 16, 32767.0 / 32768},
		{-32768, 16, -1},
		{128, 8, 0},
		{255, 8, 127.0 / 128},
		{1 << 22, 24, 0.5},
	}
	for _, tt := range tests {
		if got := scaleSample(tt.s, tt.depth); got != tt.want {
			t.Errorf("scaleSample(%d, %d) = %v, want %v", tt.s, tt.depth, got, tt.want)
		}
	}
}

func TestValidateConfig(t *testing.T) {
	if err := NewDecoder(nil).ValidateConfig(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
	cfg := DefaultDecoderConfig()
	cfg.Timeout = 0
	if err := NewDecoder(cfg).ValidateConfig(); err == nil {
		t.Error("zero timeout should be rejected")
	}
}

func TestDecodeFloatWAV(t *testing.T) {
	const rate = 16000
	samples := make([]float32, rate/2)
	for i := range samples {
		samples[i] = float32(0.5 * math.Sin(2*math.Pi*440*float64(i)/rate))
	}

	got, err := testDecoder(nil).Decode(context.Background(), writeFloatWAV(t, rate, samples), ".wav")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.SampleRate != rate {
		t.Errorf("sample rate = %d, want %d", got.SampleRate, rate)
	}
	if len(got.PCM) != len(samples) {
		t.Fatalf("samples = %d, want %d", len(got.PCM), len(samples))
	}

	peak := 0.0
	for i, s := range got.PCM {
		if math.Abs(s-float64(samples[i])) > 1e-7 {
			t.Fatalf("sample %d = %v, want %v", i, s, samples[i])
		}
		peak = max(peak, math.Abs(s))
	}
	if math.Abs(peak-0.5) > 1e-3 {
		t.Errorf("peak = %v, want ~0.5", peak)
	}
	if got.Metadata.Codec != "pcm_f32le" || got.Metadata.BitDepth != 32 {
		t.Errorf("metadata = %+v, want 32-bit pcm_f32le", got.Metadata)
	}
}

func TestFloatSample(t *testing.T) {
	bits := func(v float32) int { return int(int32(math.Float32bits(v))) }

	tests := []struct {
		name string
		in   int
		want float64
	}{
		{"zero", bits(0), 0},
		{"positive", bits(0.25), 0.25},
		{"negative", bits(-0.75), -0.75},
		{"clipped high", bits(1.5), 1},
		{"clipped low", bits(-2), -1},
		{"nan", bits(float32(math.NaN())), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := floatSample(tt.in); got != tt.want {
				t.Errorf("floatSample = %v, want %v", got, tt.want)
			}
		})
	}
}
