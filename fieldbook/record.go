package fieldbook

import "github.com/surveytools/cogo/model"

// Kind tags the variant held by a Record.
type Kind int

const (
	KindJob Kind = iota
	KindInstrument
	KindSettings
	KindStation
	KindTarget
	KindObservation
)

func (k Kind) String() string {
	switch k {
	case KindJob:
		return "JOB"
	case KindInstrument:
		return "INSTR"
	case KindSettings:
		return "Fbk Settings"
	case KindStation:
		return "STN"
	case KindTarget:
		return "TARGET"
	case KindObservation:
		return "OBS"
	default:
		return "unknown"
	}
}

// Record is one field-book record. The concrete types below are the only
// implementations; switch on Kind or on the type.
type Record interface {
	Kind() Kind
}

// JobRecord names the job and the raw SDR file it came from.
type JobRecord struct {
	JobID      string
	SourceFile string
}

// InstrumentRecord names the total station model.
type InstrumentRecord struct {
	Model string
}

// SettingsRecord holds the "Fbk Settings" key/value pairs verbatim.
type SettingsRecord struct {
	Values map[string]string
}

// StationRecord occupies a base station.
type StationRecord struct {
	PointID          int
	Code             string
	North            float64
	East             float64
	Elevation        float64
	TheodoliteHeight float64
}

// TargetRecord sets the target height for subsequent observations.
type TargetRecord struct {
	Code         string
	TargetHeight float64
}

// ObservationRecord is one pointing. Angles stay as field-book text
// ("D-M-S") until reduction.
type ObservationRecord struct {
	PointID       int
	Code          string
	Face          string // F1, F2 or another designator
	Horizontal    string
	Zenith        string
	SlopeDistance float64
}

func (JobRecord) Kind() Kind         { return KindJob }
func (InstrumentRecord) Kind() Kind  { return KindInstrument }
func (SettingsRecord) Kind() Kind    { return KindSettings }
func (StationRecord) Kind() Kind     { return KindStation }
func (TargetRecord) Kind() Kind      { return KindTarget }
func (ObservationRecord) Kind() Kind { return KindObservation }

// BaseStation converts the record into a setup, X east and Y north.
func (s StationRecord) BaseStation(orientation model.Angle) model.BaseStation {
	return model.BaseStation{
		Code:              s.Code,
		Position:          model.Position{X: s.East, Y: s.North, Z: s.Elevation},
		ZOffset:           s.TheodoliteHeight,
		OrientationOffset: orientation,
	}
}
