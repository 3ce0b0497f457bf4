package transcode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/RyanBlaney/sonido-grader/logging"
)

var (
	// ErrUnsupportedFormat is returned for file extensions the decoder does not accept
	ErrUnsupportedFormat = errors.New("unsupported audio format")

	// ErrEmptyAudio is returned when the input or the decoded stream has no samples
	ErrEmptyAudio = errors.New("empty audio data")
)

// SupportedExtensions lists the upload formats accepted by the decoder
var SupportedExtensions = []string{".wav", ".mp3", ".m4a", ".webm"}

// AudioData is decoded mono PCM in [-1, 1]
type AudioData struct {
	PCM        []float64      `json:"-"`
	SampleRate int            `json:"sample_rate"`
	Duration   time.Duration  `json:"duration"`
	Metadata   *AudioMetadata `json:"metadata,omitempty"`
}

// AudioMetadata describes the source stream before downmixing
type AudioMetadata struct {
	SampleRate int     `json:"sample_rate"`
	Channels   int     `json:"channels"`
	BitDepth   int     `json:"bit_depth,omitempty"`
	Codec      string  `json:"codec"`
	Duration   float64 `json:"duration"`
	Bitrate    int     `json:"bitrate,omitempty"`
	Format     string  `json:"format"`
}

// DecoderConfig holds decoder configuration
type DecoderConfig struct {
	FFmpegPath  string        `json:"ffmpeg_path" yaml:"ffmpeg_path"`
	FFprobePath string        `json:"ffprobe_path" yaml:"ffprobe_path"`
	Timeout     time.Duration `json:"timeout" yaml:"timeout"`           // per ffmpeg/ffprobe invocation
	MaxDuration time.Duration `json:"max_duration" yaml:"max_duration"` // 0 = no limit
}

// DefaultDecoderConfig returns default decoder configuration
func DefaultDecoderConfig() *DecoderConfig {
	return &DecoderConfig{
		FFmpegPath:  "ffmpeg",
		FFprobePath: "ffprobe",
		Timeout:     30 * time.Second,
		MaxDuration: 0,
	}
}

// Decoder turns uploaded recordings into mono PCM. WAV is decoded in-process,
// everything else goes through ffmpeg.
type Decoder struct {
	config *DecoderConfig
	logger logging.Logger
}

// NewDecoder creates a new audio decoder
func NewDecoder(config *DecoderConfig) *Decoder {
	if config == nil {
		config = DefaultDecoderConfig()
	}
	return &Decoder{
		config: config,
		logger: logging.WithFields(logging.Fields{
			"component": "audio_decoder",
		}),
	}
}

// SetLogger replaces the decoder's logger
func (d *Decoder) SetLogger(logger logging.Logger) {
	if logger == nil {
		logger = &logging.NoOpLogger{}
	}
	d.logger = logger
}

// IsSupported reports whether ext (with or without the leading dot) is accepted
func IsSupported(ext string) bool {
	ext = normalizeExt(ext)
	return slices.Contains(SupportedExtensions, ext)
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// Decode decodes data whose container is identified by ext (".wav", ".mp3", ...)
func (d *Decoder) Decode(ctx context.Context, data []byte, ext string) (*AudioData, error) {
	ext = normalizeExt(ext)
	logger := d.logger.WithContext(ctx).WithFields(logging.Fields{
		"function":  "Decode",
		"format":    ext,
		"data_size": len(data),
	})

	if !IsSupported(ext) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if len(data) == 0 {
		return nil, ErrEmptyAudio
	}

	start := time.Now()

	var (
		audio *AudioData
		err   error
	)
	if ext == ".wav" {
		audio, err = decodeWAV(data)
		if err != nil {
			// some recorders emit WAV variants go-audio rejects; ffmpeg may still read them
			logger.Debug("Native WAV decode failed, falling back to ffmpeg", logging.Fields{
				"error": err.Error(),
			})
			audio, err = d.decodeWithFFmpeg(ctx, data)
		}
	} else {
		audio, err = d.decodeWithFFmpeg(ctx, data)
	}
	if err != nil {
		logger.Error(err, "Audio decode failed")
		return nil, err
	}

	audio = d.truncate(audio)

	logger.Debug("Audio decoded", logging.Fields{
		"sample_rate": audio.SampleRate,
		"samples":     len(audio.PCM),
		"duration":    audio.Duration.Seconds(),
		"decode_time": time.Since(start).Seconds(),
	})

	return audio, nil
}

// DecodeReader reads r fully and decodes it
func (d *Decoder) DecodeReader(ctx context.Context, r io.Reader, ext string) (*AudioData, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio: %w", err)
	}
	return d.Decode(ctx, data, ext)
}

// DecodeFile decodes the file at path, using its extension to pick the decoder
func (d *Decoder) DecodeFile(ctx context.Context, path string) (*AudioData, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return d.Decode(ctx, data, filepath.Ext(path))
}

func (d *Decoder) truncate(audio *AudioData) *AudioData {
	if d.config.MaxDuration <= 0 || audio.SampleRate <= 0 {
		return audio
	}
	limit := int(d.config.MaxDuration.Seconds() * float64(audio.SampleRate))
	if limit > 0 && len(audio.PCM) > limit {
		audio.PCM = audio.PCM[:limit]
		audio.Duration = samplesDuration(limit, audio.SampleRate)
	}
	return audio
}

// ValidateConfig validates the decoder configuration
func (d *Decoder) ValidateConfig() error {
	if d.config.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive: %v", d.config.Timeout)
	}
	if d.config.MaxDuration < 0 {
		return fmt.Errorf("max duration must not be negative: %v", d.config.MaxDuration)
	}
	if d.config.FFmpegPath == "" || d.config.FFprobePath == "" {
		return fmt.Errorf("ffmpeg and ffprobe paths must be set")
	}
	return nil
}

func samplesDuration(samples, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}

// downmix averages interleaved channels into one
func downmix(interleaved []float64, channels int) []float64 {
	if channels <= 1 {
		return interleaved
	}
	frames := len(interleaved) / channels
	mono := make([]float64, frames)
	for i := range frames {
		sum := 0.0
		for c := range channels {
			sum += interleaved[i*channels+c]
		}
		mono[i] = sum / float64(channels)
	}
	return mono
}
