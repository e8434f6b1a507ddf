// Package codec converts between the opus frames spoken on the wire and
// the 16-bit PCM that detection, transcription and synthesis work with.
package codec

import (
	"encoding/binary"
	"fmt"

	"gopkg.in/hraban/opus.v2"
)

// Defaults for device voice audio: 16kHz mono with 60ms frames.
const (
	DefaultSampleRate = 16000
	DefaultChannels   = 1
	DefaultFrameMs    = 60

	// voiceBitrate targets intelligible speech at low bandwidth.
	voiceBitrate = 24000

	// maxFrameSamples covers the largest opus frame (60ms) at 48kHz.
	maxFrameSamples = 2880

	bytesPerSample = 2
)

// OpusDecoder decodes opus frames to little-endian PCM bytes.
// Not safe for concurrent use; each session owns its own decoder.
type OpusDecoder struct {
	decoder    *opus.Decoder
	sampleRate int
	channels   int
}

// NewOpusDecoder creates a decoder for the given sample rate and channel count.
func NewOpusDecoder(sampleRate, channels int) (*OpusDecoder, error) {
	dec, err := opus.NewDecoder(sampleRate, channels)
	if err != nil {
		return nil, fmt.Errorf("creating opus decoder: %w", err)
	}
	return &OpusDecoder{
		decoder:    dec,
		sampleRate: sampleRate,
		channels:   channels,
	}, nil
}

// DecodeToBytes decodes one opus frame to PCM bytes.
func (d *OpusDecoder) DecodeToBytes(frame []byte) ([]byte, error) {
	pcm := make([]int16, maxFrameSamples*d.channels)
	n, err := d.decoder.Decode(frame, pcm)
	if err != nil {
		return nil, fmt.Errorf("decoding opus frame: %w", err)
	}
	pcm = pcm[:n*d.channels]

	out := make([]byte, len(pcm)*bytesPerSample)
	for i, sample := range pcm {
		binary.LittleEndian.PutUint16(out[i*bytesPerSample:], uint16(sample))
	}
	return out, nil
}

// SampleRate returns the decoder's sample rate.
func (d *OpusDecoder) SampleRate() int { return d.sampleRate }

// OpusEncoder encodes fixed-size PCM chunks to opus frames. Incoming PCM
// of arbitrary length is buffered and emitted as complete frames; call
// Flush at end of stream to pad and drain the remainder.
// Not safe for concurrent use.
type OpusEncoder struct {
	encoder      *opus.Encoder
	sampleRate   int
	channels     int
	frameSamples int
	buffer       []byte
}

// NewOpusEncoder creates a voice-tuned encoder emitting frames of frameMs
// milliseconds.
func NewOpusEncoder(sampleRate, channels, frameMs int) (*OpusEncoder, error) {
	enc, err := opus.NewEncoder(sampleRate, channels, opus.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("creating opus encoder: %w", err)
	}
	if err := enc.SetBitrate(voiceBitrate); err != nil {
		return nil, fmt.Errorf("setting opus bitrate: %w", err)
	}

	return &OpusEncoder{
		encoder:      enc,
		sampleRate:   sampleRate,
		channels:     channels,
		frameSamples: sampleRate * frameMs / 1000,
	}, nil
}

// Encode buffers pcm and returns all complete opus frames it yields.
func (e *OpusEncoder) Encode(pcm []byte) ([][]byte, error) {
	e.buffer = append(e.buffer, pcm...)
	return e.drain()
}

// Flush zero-pads any buffered remainder to a frame boundary and returns
// the final frames.
func (e *OpusEncoder) Flush() ([][]byte, error) {
	frameBytes := e.frameBytes()
	if rem := len(e.buffer) % frameBytes; rem != 0 {
		e.buffer = append(e.buffer, make([]byte, frameBytes-rem)...)
	}
	return e.drain()
}

// Reset discards buffered PCM.
func (e *OpusEncoder) Reset() {
	e.buffer = e.buffer[:0]
}

// FrameDuration returns the duration of one encoded frame in milliseconds.
func (e *OpusEncoder) FrameDuration() int {
	return e.frameSamples * 1000 / e.sampleRate
}

func (e *OpusEncoder) frameBytes() int {
	return e.frameSamples * e.channels * bytesPerSample
}

func (e *OpusEncoder) drain() ([][]byte, error) {
	frameBytes := e.frameBytes()
	var frames [][]byte

	for len(e.buffer) >= frameBytes {
		chunk := e.buffer[:frameBytes]
		e.buffer = e.buffer[frameBytes:]

		pcm := make([]int16, frameBytes/bytesPerSample)
		for i := range pcm {
			pcm[i] = int16(binary.LittleEndian.Uint16(chunk[i*bytesPerSample:]))
		}

		data := make([]byte, 1275) // max opus packet for one frame
		n, err := e.encoder.Encode(pcm, data)
		if err != nil {
			return frames, fmt.Errorf("encoding opus frame: %w", err)
		}
		frames = append(frames, data[:n])
	}
	return frames, nil
}
