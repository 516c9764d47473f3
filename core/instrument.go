package core

import "strings"

// InstrumentModel describes the nominal precision of a total station.
// Columbus observation files carry these as a priori standard deviations.
type InstrumentModel struct {
	Name string `yaml:"name"`

	// HorizontalSD and ZenithSD are angular standard deviations in
	// arcseconds.
	HorizontalSD float64 `yaml:"horizontal_sd"`
	ZenithSD     float64 `yaml:"zenith_sd"`

	// ChordSD is the slope distance standard deviation in metres and
	// ChordPPM its distance-proportional part.
	ChordSD  float64 `yaml:"chord_sd"`
	ChordPPM float64 `yaml:"chord_ppm"`
}

// DefaultInstrument is used when the field book names no known model.
var DefaultInstrument = InstrumentModel{
	HorizontalSD: 5,
	ZenithSD:     5,
	ChordSD:      0.003,
	ChordPPM:     2,
}

var knownInstruments = map[string]InstrumentModel{
	"SET530R V33-17": {Name: "SET530R V33-17", HorizontalSD: 5, ZenithSD: 5, ChordSD: 0.002, ChordPPM: 2},
	"SET5F":          {Name: "SET5F", HorizontalSD: 5, ZenithSD: 5, ChordSD: 0.003, ChordPPM: 2},
}

// LookupInstrument returns the specification of a known model, or the
// defaults tagged with name when the model is unknown.
func LookupInstrument(name string) (InstrumentModel, bool) {
	name = strings.TrimSpace(name)
	if m, ok := knownInstruments[name]; ok {
		return m, true
	}
	m := DefaultInstrument
	m.Name = name
	return m, false
}

// Merge fills zero fields of m from fallback.
func (m InstrumentModel) Merge(fallback InstrumentModel) InstrumentModel {
	if m.Name == "" {
		m.Name = fallback.Name
	}
	if m.HorizontalSD == 0 {
		m.HorizontalSD = fallback.HorizontalSD
	}
	if m.ZenithSD == 0 {
		m.ZenithSD = fallback.ZenithSD
	}
	if m.ChordSD == 0 {
		m.ChordSD = fallback.ChordSD
	}
	if m.ChordPPM == 0 {
		m.ChordPPM = fallback.ChordPPM
	}
	return m
}
