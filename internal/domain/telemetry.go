package domain

import (
	"math"
	"time"
)

// Reading is one timestamped telemetry snapshot from a vehicle. Immutable
// once persisted; the fusion engine and broadcast hub only ever reference it.
type Reading struct {
	ID         int64
	VehicleID  int64
	Timestamp  time.Time
	ReceivedAt time.Time

	GPSLat *float64
	GPSLon *float64

	Speed     float64
	Battery   float64
	AccX      float64
	AccY      float64
	AccZ      float64
	TempMotor float64

	RawPayload []byte
}

// Features is the fixed-order feature vector consumed by the prediction
// models: {speed, battery, acc_x, acc_y, acc_z, temp_motor}.
type Features struct {
	Speed     float64
	Battery   float64
	AccX      float64
	AccY      float64
	AccZ      float64
	TempMotor float64
}

// Features extracts the model feature vector from a reading.
func (r *Reading) Features() Features {
	return Features{
		Speed:     r.Speed,
		Battery:   r.Battery,
		AccX:      r.AccX,
		AccY:      r.AccY,
		AccZ:      r.AccZ,
		TempMotor: r.TempMotor,
	}
}

// Vector returns the features as a flat float32 slice in training order,
// ready to feed a [1,6] input tensor.
func (f Features) Vector() []float32 {
	return []float32{
		float32(f.Speed),
		float32(f.Battery),
		float32(f.AccX),
		float32(f.AccY),
		float32(f.AccZ),
		float32(f.TempMotor),
	}
}

// Finite reports whether every numeric field of the reading is a finite
// number. GPS coordinates are optional but must be finite when present.
func (r *Reading) Finite() bool {
	vals := []float64{r.Speed, r.Battery, r.AccX, r.AccY, r.AccZ, r.TempMotor}
	if r.GPSLat != nil {
		vals = append(vals, *r.GPSLat)
	}
	if r.GPSLon != nil {
		vals = append(vals, *r.GPSLon)
	}
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
