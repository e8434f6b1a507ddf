package audio

import (
	"encoding/binary"
	"fmt"
)

// ResamplePCM16 converts 16-bit little-endian mono PCM from one sample
// rate to another using linear interpolation. Returns the input unchanged
// when the rates match.
func ResamplePCM16(pcm []byte, fromRate, toRate int) ([]byte, error) {
	if fromRate <= 0 || toRate <= 0 {
		return nil, fmt.Errorf("invalid sample rates: from=%d to=%d", fromRate, toRate)
	}
	if len(pcm)%pcmBytesPerSample != 0 {
		return nil, fmt.Errorf("pcm length %d is not sample aligned", len(pcm))
	}
	if fromRate == toRate {
		return pcm, nil
	}

	inSamples := len(pcm) / pcmBytesPerSample
	if inSamples == 0 {
		return nil, nil
	}

	outSamples := inSamples * toRate / fromRate
	if outSamples == 0 {
		return nil, nil
	}

	out := make([]byte, outSamples*pcmBytesPerSample)
	ratio := float64(inSamples-1) / float64(outSamples)

	for i := 0; i < outSamples; i++ {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)

		s0 := int16(binary.LittleEndian.Uint16(pcm[idx*pcmBytesPerSample:]))
		s1 := s0
		if idx+1 < inSamples {
			s1 = int16(binary.LittleEndian.Uint16(pcm[(idx+1)*pcmBytesPerSample:]))
		}

		sample := float64(s0) + (float64(s1)-float64(s0))*frac
		binary.LittleEndian.PutUint16(out[i*pcmBytesPerSample:], uint16(int16(sample)))
	}

	return out, nil
}
