package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/spf13/afero"

	"github.com/dgnsrekt/xtts-go/tts"
)

// WAV format tags.
const (
	formatPCM  = 1
	formatALaw = 6
)

const inMemoryName = "synthesis.wav"

// EncodeWAV serializes buf as a mono 16-bit PCM WAV file.
func EncodeWAV(buf tts.AudioBuffer) ([]byte, error) {
	if len(buf.Samples) == 0 {
		return nil, tts.ErrEmptyOutput
	}
	if buf.SampleRate <= 0 {
		return nil, fmt.Errorf("%w: %d", tts.ErrInvalidSampleRate, buf.SampleRate)
	}

	ib := &goaudio.IntBuffer{
		Data: FloatToPCM16(buf.Samples),
		Format: &goaudio.Format{
			SampleRate:  buf.SampleRate,
			NumChannels: Channels,
		},
		SourceBitDepth: BitDepth,
	}
	return encodeIntBuffer(ib, BitDepth, formatPCM)
}

// encodeIntBuffer writes ib through a wav.Encoder. The encoder patches the
// header sizes on Close, so it needs a seekable target; an afero memory file
// provides one without touching disk.
func encodeIntBuffer(ib *goaudio.IntBuffer, bitDepth, audioFormat int) ([]byte, error) {
	fs := afero.NewMemMapFs()
	f, err := fs.Create(inMemoryName)
	if err != nil {
		return nil, fmt.Errorf("error creating in-memory wav file: %w", err)
	}

	enc := wav.NewEncoder(f, ib.Format.SampleRate, bitDepth, ib.Format.NumChannels, audioFormat)
	if err := enc.Write(ib); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("cannot encode samples as wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("cannot finish wav encoding: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("error closing in-memory wav file: %w", err)
	}

	data, err := afero.ReadFile(fs, inMemoryName)
	if err != nil {
		return nil, fmt.Errorf("error reading in-memory wav file: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("wav output is empty when input was not")
	}
	return data, nil
}

// DecodeWAV parses a PCM WAV file into a mono float buffer. Multi-channel
// input is down-mixed by averaging.
func DecodeWAV(data []byte) (tts.AudioBuffer, error) {
	d := wav.NewDecoder(bytes.NewReader(data))
	if !d.IsValidFile() {
		return tts.AudioBuffer{}, errors.New("invalid wav data")
	}
	if d.WavAudioFormat != formatPCM {
		return tts.AudioBuffer{}, fmt.Errorf("unsupported wav format tag %d", d.WavAudioFormat)
	}

	ib, err := d.FullPCMBuffer()
	if err != nil {
		return tts.AudioBuffer{}, fmt.Errorf("error decoding wav: %w", err)
	}

	samples := PCMToFloat(ib.Data, int(d.BitDepth))
	if ch := int(d.NumChans); ch > 1 {
		samples = downmix(samples, ch)
	}
	return tts.AudioBuffer{Samples: samples, SampleRate: int(d.SampleRate)}, nil
}

// readDataChunk returns the raw payload of the data chunk along with the
// decoder that parsed the header.
func readDataChunk(data []byte) (*wav.Decoder, []byte, error) {
	d := wav.NewDecoder(bytes.NewReader(data))
	if err := d.FwdToPCM(); err != nil {
		return nil, nil, fmt.Errorf("error locating wav data chunk: %w", err)
	}
	payload, err := io.ReadAll(io.LimitReader(d.PCMChunk.R, int64(d.PCMSize)))
	if err != nil {
		return nil, nil, fmt.Errorf("error reading wav data chunk: %w", err)
	}
	return d, payload, nil
}

func downmix(interleaved []float32, channels int) []float32 {
	out := make([]float32, len(interleaved)/channels)
	for i := range out {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += interleaved[i*channels+c]
		}
		out[i] = sum / float32(channels)
	}
	return out
}
