package capture

import (
	"bytes"
	"encoding/binary"
	"math"
	"unicode"

	"github.com/hqmon/argusd/internal/acd"
	"github.com/hqmon/argusd/internal/model"
)

// spectrumHeaderLen is the fixed portion of a frequency-domain frame:
// u32 packet type, u32 declared length, f64 start, f64 step, u32 count.
const spectrumHeaderLen = 28

// Classify stamps the payload type and decoded fields onto rec. Order of
// attempts: XML response, spectrum frame, I/Q samples. Nothing here fails;
// a payload matching no layout stays unparsed with type unknown.
func Classify(codec *acd.Codec, data []byte, rec *model.CaptureRecord) {
	if looksLikeXML(data) {
		res, err := codec.DecodeResponse(data)
		if err == nil {
			rec.Type = model.CaptureXML
			rec.OrderID = res.OrderID
			rec.Parsed = true
			return
		}
		rec.Type = model.CaptureUnknown
		return
	}

	if frame, ok := decodeSpectrum(data); ok {
		rec.Type = model.CaptureSpectrum
		rec.Spectrum = frame
		rec.Parsed = true
		return
	}
	if frame, ok := decodeIQ(data); ok {
		rec.Type = model.CaptureIQ
		rec.IQ = frame
		rec.Parsed = true
		return
	}
	rec.Type = model.CaptureUnknown
}

func looksLikeXML(data []byte) bool {
	trimmed := bytes.TrimLeftFunc(data, unicode.IsSpace)
	return len(trimmed) > 0 && trimmed[0] == '<'
}

// decodeSpectrum reads the big-endian frequency-domain layout. The declared
// point count must fit inside the payload.
func decodeSpectrum(data []byte) (*model.SpectrumFrame, bool) {
	if len(data) < spectrumHeaderLen {
		return nil, false
	}
	count := int(binary.BigEndian.Uint32(data[24:28]))
	if count < 1 || spectrumHeaderLen+count*4 > len(data) {
		return nil, false
	}

	frame := &model.SpectrumFrame{
		PacketType: binary.BigEndian.Uint32(data[0:4]),
		FreqStart:  math.Float64frombits(binary.BigEndian.Uint64(data[8:16])),
		FreqStep:   math.Float64frombits(binary.BigEndian.Uint64(data[16:24])),
		Levels:     make([]float32, count),
	}
	for i := range frame.Levels {
		off := spectrumHeaderLen + i*4
		frame.Levels[i] = math.Float32frombits(binary.BigEndian.Uint32(data[off : off+4]))
	}
	return frame, true
}

// decodeIQ reads paired big-endian int16 samples. Payloads shorter than the
// spectrum header minimum are never treated as I/Q data; a datagram that
// small is noise, not a sample burst.
func decodeIQ(data []byte) (*model.IQFrame, bool) {
	if len(data) < spectrumHeaderLen || len(data)%4 != 0 {
		return nil, false
	}
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.BigEndian.Uint16(data[i*2 : i*2+2]))
	}
	return &model.IQFrame{Samples: samples}, true
}
