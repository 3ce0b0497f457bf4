package transcode

import (
	"bytes"
	"errors"
	"fmt"
	"math"

	"github.com/go-audio/wav"
)

// wavFormatFloat is the fmt chunk tag for IEEE float samples
const wavFormatFloat = 3

// decodeWAV decodes PCM WAV data, downmixing to mono and scaling integer
// samples by the source bit depth
func decodeWAV(data []byte) (*AudioData, error) {
	decoder := wav.NewDecoder(bytes.NewReader(data))
	if !decoder.IsValidFile() {
		if err := decoder.Err(); err != nil {
			return nil, fmt.Errorf("invalid WAV file: %w", err)
		}
		return nil, errors.New("invalid WAV file")
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("could not read PCM buffer: %w", err)
	}
	if buf == nil || buf.Format == nil || len(buf.Data) == 0 {
		return nil, ErrEmptyAudio
	}

	channels := buf.Format.NumChannels
	if channels <= 0 {
		channels = int(decoder.NumChans)
	}
	sampleRate := buf.Format.SampleRate
	if sampleRate <= 0 {
		sampleRate = int(decoder.SampleRate)
	}
	bitDepth := int(buf.SourceBitDepth)
	if bitDepth <= 0 {
		bitDepth = int(decoder.BitDepth)
	}
	if sampleRate <= 0 || channels <= 0 {
		return nil, fmt.Errorf("invalid WAV header: %d Hz, %d channels", sampleRate, channels)
	}

	isFloat := decoder.WavAudioFormat == wavFormatFloat
	if isFloat && bitDepth != 32 {
		return nil, fmt.Errorf("unsupported %d-bit float WAV", bitDepth)
	}

	interleaved := make([]float64, len(buf.Data))
	for i, s := range buf.Data {
		if isFloat {
			interleaved[i] = floatSample(s)
		} else {
			interleaved[i] = scaleSample(s, bitDepth)
		}
	}

	pcm := downmix(interleaved, channels)
	if len(pcm) == 0 {
		return nil, ErrEmptyAudio
	}

	return &AudioData{
		PCM:        pcm,
		SampleRate: sampleRate,
		Duration:   samplesDuration(len(pcm), sampleRate),
		Metadata: &AudioMetadata{
			SampleRate: sampleRate,
			Channels:   channels,
			BitDepth:   bitDepth,
			Codec:      codecName(isFloat),
			Duration:   samplesDuration(len(pcm), sampleRate).Seconds(),
			Format:     "wav",
		},
	}, nil
}

// scaleSample maps an integer PCM sample into [-1, 1]. 8-bit WAV is unsigned.
func scaleSample(s, bitDepth int) float64 {
	switch {
	case bitDepth == 8:
		return float64(s-128) / 128.0
	case bitDepth > 0 && bitDepth <= 32:
		return float64(s) / float64(int64(1)<<(bitDepth-1))
	default:
		return float64(s) / 32768.0
	}
}

// floatSample reinterprets the raw bits go-audio hands back for a 32-bit
// float sample, clamped into [-1, 1]
func floatSample(s int) float64 {
	v := float64(math.Float32frombits(uint32(int32(s))))
	if math.IsNaN(v) {
		return 0
	}
	return max(-1, min(1, v))
}

func codecName(isFloat bool) string {
	if isFloat {
		return "pcm_f32le"
	}
	return "pcm"
}
