package preview

import (
	"encoding/json"
	"math"
	"time"

	"github.com/arthurfeeney/Marley-Accel/internal/accel"
)

// Message types sent over the preview websocket.
const (
	TypeCurveInit    = "curve_init"
	TypeCurveUpdated = "curve_updated"
)

// Envelope is the wire format for websocket messages: {type, ts, data}.
type Envelope struct {
	Type string          `json:"type"`
	Ts   *time.Time      `json:"ts,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// CurvePoint is one curve sample on the wire. Sensitivity is null when the
// evaluator produced a non-finite value (game_sens of zero).
type CurvePoint struct {
	Velocity    float64  `json:"velocity"`
	Sensitivity *float64 `json:"sensitivity"`
}

// CurveData is the payload of curve_init and curve_updated, and the body of
// GET /api/curve.
type CurveData struct {
	Profile   map[string]string `json:"profile"`
	Points    []CurvePoint      `json:"points"`
	Fallbacks []string          `json:"fallbacks,omitempty"`
}

// NewCurveData evaluates p over velocities and packages it for the wire.
func NewCurveData(p accel.Profile, velocities []float64, fallbacks []accel.FieldFallback) CurveData {
	sens := accel.EvaluateRange(velocities, p)
	points := make([]CurvePoint, len(velocities))
	for i, v := range velocities {
		points[i] = CurvePoint{Velocity: v}
		if s := sens[i]; !math.IsNaN(s) && !math.IsInf(s, 0) {
			points[i].Sensitivity = &s
		}
	}

	data := CurveData{
		Profile: accel.ProfileToMapping(p),
		Points:  points,
	}
	for _, fb := range fallbacks {
		data.Fallbacks = append(data.Fallbacks, fb.String())
	}
	return data
}

// encodeMessage marshals data inside an envelope stamped with at.
func encodeMessage(typ string, data any, at time.Time) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	ts := at.UTC()
	return json.Marshal(Envelope{
		Type: typ,
		Ts:   &ts,
		Data: raw,
	})
}
