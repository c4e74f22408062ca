package core

import (
	"github.com/vmihailenco/msgpack/v5"

	"github.com/signalsfoundry/aerostab/model"
)

// channelTable and surfaceTable are single rows of the packed SurrogateSet.
type channelTable struct {
	Channel     model.Channel     `msgpack:"ch"`
	Coefficient model.Coefficient `msgpack:"c"`
	Surrogate   *RegimeSurrogate  `msgpack:"t"`
}

type surfaceTable struct {
	Kind        model.ControlSurfaceKind `msgpack:"k"`
	Coefficient model.Coefficient        `msgpack:"c"`
	Surrogate   *RegimeSurrogate         `msgpack:"t"`
}

type packedSurrogateSet struct {
	Reference model.Reference `msgpack:"reference"`
	Channels  []channelTable  `msgpack:"channels"`
	Surfaces  []surfaceTable  `msgpack:"surfaces,omitempty"`
}

// EncodeMsgpack writes the tables as rows in channel, family and coefficient
// order, so equal sets encode to equal bytes.
func (s *SurrogateSet) EncodeMsgpack(enc *msgpack.Encoder) error {
	p := packedSurrogateSet{Reference: s.Reference}
	for _, ch := range model.Channels {
		row := s.Channels[ch]
		for _, c := range model.Coefficients {
			if rs, ok := row[c]; ok {
				p.Channels = append(p.Channels, channelTable{ch, c, rs})
			}
		}
	}
	for _, kind := range model.ControlSurfaceKinds {
		row := s.Surfaces[kind]
		for _, c := range model.Coefficients {
			if rs, ok := row[c]; ok {
				p.Surfaces = append(p.Surfaces, surfaceTable{kind, c, rs})
			}
		}
	}
	return enc.Encode(&p)
}

// DecodeMsgpack reads the row form written by EncodeMsgpack.
func (s *SurrogateSet) DecodeMsgpack(dec *msgpack.Decoder) error {
	var p packedSurrogateSet
	if err := dec.Decode(&p); err != nil {
		return err
	}
	*s = SurrogateSet{Reference: p.Reference}
	if len(p.Channels) > 0 {
		s.Channels = make(map[model.Channel]map[model.Coefficient]*RegimeSurrogate)
	}
	for _, t := range p.Channels {
		if s.Channels[t.Channel] == nil {
			s.Channels[t.Channel] = make(map[model.Coefficient]*RegimeSurrogate)
		}
		s.Channels[t.Channel][t.Coefficient] = t.Surrogate
	}
	if len(p.Surfaces) > 0 {
		s.Surfaces = make(map[model.ControlSurfaceKind]map[model.Coefficient]*RegimeSurrogate)
	}
	for _, t := range p.Surfaces {
		if s.Surfaces[t.Kind] == nil {
			s.Surfaces[t.Kind] = make(map[model.Coefficient]*RegimeSurrogate)
		}
		s.Surfaces[t.Kind][t.Coefficient] = t.Surrogate
	}
	return nil
}
