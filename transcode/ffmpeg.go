package transcode

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"

	"github.com/RyanBlaney/sonido-grader/logging"
)

// decodeWithFFmpeg probes data for its native sample rate and decodes it to
// mono float64 PCM at that rate
func (d *Decoder) decodeWithFFmpeg(ctx context.Context, data []byte) (*AudioData, error) {
	logger := d.logger.WithContext(ctx).WithFields(logging.Fields{
		"function": "decodeWithFFmpeg",
	})

	metadata, err := d.probe(ctx, data)
	if err != nil {
		return nil, err
	}

	logger.Debug("Audio metadata detected", logging.Fields{
		"input_sample_rate": metadata.SampleRate,
		"input_channels":    metadata.Channels,
		"input_codec":       metadata.Codec,
		"input_duration":    metadata.Duration,
	})

	output, err := d.run(ctx, d.config.FFmpegPath, data, buildFFmpegArgs(metadata, d.config.MaxDuration.Seconds()))
	if err != nil {
		return nil, fmt.Errorf("ffmpeg decode failed: %w", err)
	}

	pcm := bytesToFloat64(output)
	if len(pcm) == 0 {
		return nil, ErrEmptyAudio
	}

	return &AudioData{
		PCM:        pcm,
		SampleRate: metadata.SampleRate,
		Duration:   samplesDuration(len(pcm), metadata.SampleRate),
		Metadata:   metadata,
	}, nil
}

// probe runs ffprobe over data and returns the first audio stream's properties
func (d *Decoder) probe(ctx context.Context, data []byte) (*AudioMetadata, error) {
	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_streams",
		"-select_streams", "a:0",
		"pipe:0",
	}

	output, err := d.run(ctx, d.config.FFprobePath, data, args)
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}
	return parseFFprobeOutput(output)
}

// run executes a tool with data on stdin under the configured timeout
func (d *Decoder) run(ctx context.Context, tool string, data []byte, args []string) ([]byte, error) {
	if d.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.config.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, tool, args...)
	cmd.Stdin = bytes.NewReader(data)

	d.logger.Debug("Running command", logging.Fields{
		"command": tool + " " + strings.Join(args, " "),
	})

	output, err := cmd.Output()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%s: %w", tool, ctxErr)
		}
		var exitError *exec.ExitError
		if errors.As(err, &exitError) {
			return nil, fmt.Errorf("%w, stderr: %s", err, strings.TrimSpace(string(exitError.Stderr)))
		}
		return nil, err
	}
	return output, nil
}

// buildFFmpegArgs decodes stdin to raw mono f64le at the source sample rate
func buildFFmpegArgs(metadata *AudioMetadata, maxSeconds float64) []string {
	args := []string{
		"-v", "error",
		"-i", "pipe:0",
	}
	if maxSeconds > 0 {
		args = append(args, "-t", fmt.Sprintf("%.3f", maxSeconds))
	}
	args = append(args,
		"-map", "0:a:0",
		"-vn",
		"-f", "f64le",
		"-ac", "1",
		"-ar", strconv.Itoa(metadata.SampleRate),
		"pipe:1",
	)
	return args
}

func parseFFprobeOutput(jsonData []byte) (*AudioMetadata, error) {
	var probe struct {
		Streams []struct {
			CodecType     string `json:"codec_type"`
			CodecName     string `json:"codec_name"`
			SampleRate    string `json:"sample_rate"`
			Channels      int    `json:"channels"`
			Duration      string `json:"duration"`
			BitRate       string `json:"bit_rate"`
			CodecLongName string `json:"codec_long_name"`
		} `json:"streams"`
	}

	if err := json.Unmarshal(jsonData, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}
	if len(probe.Streams) == 0 {
		return nil, fmt.Errorf("no audio streams found")
	}

	stream := probe.Streams[0]
	if stream.CodecType != "audio" {
		return nil, fmt.Errorf("stream is not audio type: %s", stream.CodecType)
	}

	sampleRate, err := strconv.Atoi(stream.SampleRate)
	if err != nil || sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %q", stream.SampleRate)
	}

	if stream.Channels <= 0 || stream.Channels > 8 {
		return nil, fmt.Errorf("invalid channel count: %d", stream.Channels)
	}

	duration, err := strconv.ParseFloat(stream.Duration, 64)
	if err != nil {
		duration = 0
	}
	bitrate, err := strconv.Atoi(stream.BitRate)
	if err != nil {
		bitrate = 0
	}

	return &AudioMetadata{
		SampleRate: sampleRate,
		Channels:   stream.Channels,
		Codec:      stream.CodecName,
		Duration:   duration,
		Bitrate:    bitrate,
		Format:     stream.CodecLongName,
	}, nil
}

// bytesToFloat64 converts raw little-endian float64 bytes, dropping a partial trailing sample
func bytesToFloat64(data []byte) []float64 {
	data = data[:len(data)-len(data)%8]
	if len(data) == 0 {
		return nil
	}

	samples := make([]float64, len(data)/8)
	for i := range samples {
		samples[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[i*8:]))
	}
	return samples
}
