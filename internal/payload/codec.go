// Package payload converts a finalized capture buffer to and from the
// opaque bytes kept in the record store.
//
// The encoding is CBOR wrapped in a private tag. Floats are written at full
// width with no NaN or infinity rewriting, so decoded samples are
// bit-identical to the ones captured.
package payload

import (
	"fmt"
	"math"

	"github.com/fxamacker/cbor/v2"

	"github.com/jwulff/sensorlog/internal/apperr"
	"github.com/jwulff/sensorlog/internal/capture"
	"github.com/jwulff/sensorlog/internal/sensor"
)

// Tag marks a sensorlog payload ("SLOG").
const Tag uint64 = 0x534c4f47

// Version is the current payload layout.
const Version = 1

// MaxSamples is the longest series the decoder accepts.
const MaxSamples = math.MaxInt32

type wirePayload struct {
	Version uint         `cbor:"1,keyasint"`
	Series  []wireSeries `cbor:"2,keyasint"`
}

type wireSeries struct {
	Kind       uint8       `cbor:"1,keyasint"`
	Components uint8       `cbor:"2,keyasint"`
	Time       []float64   `cbor:"3,keyasint"`
	Values     [][]float64 `cbor:"4,keyasint"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		ShortestFloat: cbor.ShortestFloatNone,
		NaNConvert:    cbor.NaNConvertNone,
		InfConvert:    cbor.InfConvertNone,
		NilContainers: cbor.NilContainerAsEmpty,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("payload: cbor enc mode: %v", err))
	}
	decMode, err = cbor.DecOptions{
		MaxArrayElements:  MaxSamples,
		DupMapKey:         cbor.DupMapKeyEnforcedAPF,
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("payload: cbor dec mode: %v", err))
	}
}

// Encode serializes buf. The buffer must be finalized.
func Encode(buf *capture.Buffer) ([]byte, error) {
	if buf == nil {
		return nil, apperr.New(apperr.CodeSerialization, "encode payload: nil buffer")
	}
	if !buf.Finalized() {
		return nil, apperr.New(apperr.CodeSerialization, "encode payload: buffer still recording")
	}

	p := wirePayload{Version: Version}
	for _, k := range buf.Kinds() {
		s, _ := buf.Series(k)
		if s.Len() > MaxSamples {
			return nil, apperr.New(apperr.CodeSerialization,
				fmt.Sprintf("encode payload: %s has %d samples, limit is %d", k, s.Len(), MaxSamples))
		}
		ws := wireSeries{
			Kind:       uint8(k),
			Components: uint8(s.Selection),
			Time:       s.Time,
		}
		for _, c := range s.Selection.Components() {
			ws.Values = append(ws.Values, s.Values[c])
		}
		p.Series = append(p.Series, ws)
	}

	data, err := encMode.Marshal(cbor.Tag{Number: Tag, Content: p})
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeSerialization, "encode payload", err)
	}
	return data, nil
}

// Decode parses data into a finalized buffer. Any malformed input fails
// with a corrupt-data error.
func Decode(data []byte) (*capture.Buffer, error) {
	var raw cbor.RawTag
	if err := decMode.Unmarshal(data, &raw); err != nil {
		return nil, apperr.Wrap(apperr.CodeCorruptData, "decode payload", err)
	}
	if raw.Number != Tag {
		return nil, apperr.New(apperr.CodeCorruptData, fmt.Sprintf("decode payload: unexpected tag %d", raw.Number))
	}

	var p wirePayload
	if err := decMode.Unmarshal(raw.Content, &p); err != nil {
		return nil, apperr.Wrap(apperr.CodeCorruptData, "decode payload", err)
	}
	if p.Version != Version {
		return nil, apperr.New(apperr.CodeCorruptData, fmt.Sprintf("decode payload: unsupported version %d", p.Version))
	}

	series := make(map[sensor.Kind]capture.Series, len(p.Series))
	for _, ws := range p.Series {
		k := sensor.Kind(ws.Kind)
		if _, dup := series[k]; dup {
			return nil, apperr.New(apperr.CodeCorruptData, fmt.Sprintf("decode payload: duplicate series for %s", k))
		}
		sel := sensor.Selection(ws.Components)
		comps := sel.Components()
		if len(ws.Values) != len(comps) {
			return nil, apperr.New(apperr.CodeCorruptData,
				fmt.Sprintf("decode payload: %s has %d value series for %d components", k, len(ws.Values), len(comps)))
		}
		s := capture.Series{Selection: sel, Time: ws.Time}
		for i, c := range comps {
			s.Values[c] = ws.Values[i]
		}
		series[k] = s
	}

	buf, err := capture.Restore(series)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeCorruptData, "decode payload", err)
	}
	return buf, nil
}
