// Package audio provides mulaw/PCM conversion helpers used by ingress
// adapters to normalize inbound frames before they reach the pipeline.
// The gateway's pipeline itself is encoding-agnostic; these helpers are a
// supporting library, not a mandatory pipeline stage.
package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Encoding mirrors the AudioFrame.encoding enum from the session package
// (pcm_s16le, mulaw) without importing it, to keep this package dependency-free.
type Encoding string

const (
	EncodingPCM16 Encoding = "pcm_s16le"
	EncodingMulaw Encoding = "mulaw"
)

const (
	MulawSampleRateHz = 8000
	PCMSampleRateHz   = 16000
)

// Converter converts between mulaw 8kHz (the telephony wire format) and
// PCM16 16kHz (the pipeline's canonical frame format).
type Converter struct{}

func NewConverter() *Converter {
	return &Converter{}
}

// MulawToPCM16 decodes mulaw 8kHz mono to PCM16 16kHz mono.
func (c *Converter) MulawToPCM16(mulawData []byte) ([]byte, error) {
	pcm8kHz := decodeMulaw(mulawData)
	return resamplePCM16(pcm8kHz, MulawSampleRateHz, PCMSampleRateHz)
}

// PCM16ToMulaw resamples PCM16 16kHz mono down to 8kHz and encodes to mulaw.
func (c *Converter) PCM16ToMulaw(pcmData []byte) ([]byte, error) {
	pcm8kHz, err := resamplePCM16(pcmData, PCMSampleRateHz, MulawSampleRateHz)
	if err != nil {
		return nil, err
	}
	return encodeMulaw(pcm8kHz)
}

// Convert dispatches on encoding; returns data unchanged if src == dst.
func (c *Converter) Convert(data []byte, src, dst Encoding) ([]byte, error) {
	if src == dst {
		return data, nil
	}
	switch {
	case src == EncodingMulaw && dst == EncodingPCM16:
		return c.MulawToPCM16(data)
	case src == EncodingPCM16 && dst == EncodingMulaw:
		return c.PCM16ToMulaw(data)
	default:
		return nil, fmt.Errorf("audio: unsupported conversion %s -> %s", src, dst)
	}
}

// decodeMulaw decodes G.711 mulaw to little-endian 16-bit PCM.
func decodeMulaw(mulawData []byte) []byte {
	pcmData := make([]byte, len(mulawData)*2)
	for i, mulawByte := range mulawData {
		mulawByte ^= 0xFF

		sign := int16(1)
		if (mulawByte & 0x80) != 0 {
			sign = -1
		}
		exponent := (mulawByte >> 4) & 0x07
		mantissa := mulawByte & 0x0F
		sample := int16(sign * ((((int16(mantissa) << 3) + 0x84) << exponent) - 0x84))

		binary.LittleEndian.PutUint16(pcmData[i*2:i*2+2], uint16(sample))
	}
	return pcmData
}

// encodeMulaw encodes little-endian 16-bit PCM to G.711 mulaw.
func encodeMulaw(pcmData []byte) ([]byte, error) {
	if len(pcmData)%2 != 0 {
		return nil, fmt.Errorf("audio: PCM data length must be even (16-bit samples)")
	}
	numSamples := len(pcmData) / 2
	mulawData := make([]byte, numSamples)
	for i := 0; i < numSamples; i++ {
		sample := int16(binary.LittleEndian.Uint16(pcmData[i*2 : i*2+2]))
		mulawData[i] = linearToMulaw(sample)
	}
	return mulawData, nil
}

func linearToMulaw(sample int16) byte {
	s := int32(sample)
	sign := byte(0)
	if s < 0 {
		sign = 0x80
		s = -s
	}
	if s > 32635 {
		s = 32635
	}
	s += 0x84

	exponent := byte(7)
	for mask := int32(0x4000); exponent > 0 && s&mask == 0; mask >>= 1 {
		exponent--
	}
	mantissa := byte((s >> (exponent + 3)) & 0x0F)

	return ^(sign | exponent<<4 | mantissa)
}

// resamplePCM16 resamples 16-bit PCM via linear interpolation. Good enough
// for telephony-grade audio; not intended for high-fidelity resampling.
func resamplePCM16(pcmData []byte, fromRate, toRate int) ([]byte, error) {
	if len(pcmData)%2 != 0 {
		return nil, fmt.Errorf("audio: PCM data length must be even (16-bit samples)")
	}
	if fromRate == toRate {
		out := make([]byte, len(pcmData))
		copy(out, pcmData)
		return out, nil
	}

	numInputSamples := len(pcmData) / 2
	if numInputSamples < 2 {
		return []byte{}, nil
	}
	numOutputSamples := (numInputSamples * toRate) / fromRate
	outputData := make([]byte, numOutputSamples*2)
	ratio := float64(fromRate) / float64(toRate)

	for i := 0; i < numOutputSamples; i++ {
		srcPos := float64(i) * ratio
		srcIndex := int(srcPos)
		if srcIndex >= numInputSamples-1 {
			srcIndex = numInputSamples - 2
		}
		fraction := srcPos - float64(srcIndex)

		sample1 := int16(binary.LittleEndian.Uint16(pcmData[srcIndex*2 : (srcIndex+1)*2]))
		sample2 := int16(binary.LittleEndian.Uint16(pcmData[(srcIndex+1)*2 : (srcIndex+2)*2]))
		interpolated := float64(sample1)*(1-fraction) + float64(sample2)*fraction

		if interpolated > math.MaxInt16 {
			interpolated = math.MaxInt16
		} else if interpolated < math.MinInt16 {
			interpolated = math.MinInt16
		}
		binary.LittleEndian.PutUint16(outputData[i*2:(i+1)*2], uint16(int16(interpolated)))
	}
	return outputData, nil
}

// ApplyGain scales PCM16 samples by gain, clamping to the 16-bit range.
func ApplyGain(pcmData []byte, gain float64) ([]byte, error) {
	if len(pcmData)%2 != 0 {
		return nil, fmt.Errorf("audio: PCM data length must be even (16-bit samples)")
	}
	result := make([]byte, len(pcmData))
	numSamples := len(pcmData) / 2
	for i := 0; i < numSamples; i++ {
		sample := int16(binary.LittleEndian.Uint16(pcmData[i*2 : (i+1)*2]))
		amplified := float64(sample) * gain
		if amplified > math.MaxInt16 {
			amplified = math.MaxInt16
		} else if amplified < math.MinInt16 {
			amplified = math.MinInt16
		}
		binary.LittleEndian.PutUint16(result[i*2:(i+1)*2], uint16(int16(amplified)))
	}
	return result, nil
}

// SplitBuffer splits data into chunkSize-byte pieces, last one possibly shorter.
func SplitBuffer(data []byte, chunkSize int) [][]byte {
	if chunkSize <= 0 {
		chunkSize = 320 // 20ms of PCM16 at 8kHz
	}
	var chunks [][]byte
	for i := 0; i < len(data); i += chunkSize {
		end := i + chunkSize
		if end > len(data) {
			end = len(data)
		}
		chunks = append(chunks, data[i:end])
	}
	return chunks
}
