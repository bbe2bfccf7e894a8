package dsp

// VolumeControl applies a smoothed linear gain. The target can change
// at any time (a config update or a live control), but the applied
// gain slews toward it at smoothingFactor per chunk to avoid zipper
// noise on step changes.
type VolumeControl struct {
	target    float64
	current   float64
	smoothing float64
}

// NewVolumeControl creates a volume stage at unity gain.
func NewVolumeControl(smoothingFactor float64) *VolumeControl {
	return &VolumeControl{target: 1.0, current: 1.0, smoothing: smoothingFactor}
}

// SetTarget updates the volume this stage slews toward. Values are not
// clamped here; gain above unity is allowed (conventionally ≤ 4).
func (v *VolumeControl) SetTarget(gain float64) {
	v.target = gain
}

// Process applies the current (slewed) gain to every channel in place,
// advancing one smoothing step per call.
func (v *VolumeControl) Process(channels [][]int32) error {
	v.current += (v.target - v.current) * v.smoothing
	for _, samples := range channels {
		for i, s := range samples {
			samples[i] = clampInt32(float64(s) * v.current)
		}
	}
	return nil
}

// CurrentGain returns the gain actually applied on the last Process
// call, for diagnostics.
func (v *VolumeControl) CurrentGain() float64 {
	return v.current
}
