// Package rig describes the fixed camera rig the multi-view model renders.
//
// The model always returns the same six views; these poses are recorded for
// reference and cannot be requested.
package rig

// Pose is one camera placement around the subject, in degrees.
type Pose struct {
	Azimuth   float64 `json:"azimuth_deg"`
	Elevation float64 `json:"elevation_deg"`
	FOV       float64 `json:"fov_deg"`
}

// FOV is the field of view shared by every pose.
const FOV = 30

var fixed = [6]Pose{
	{Azimuth: 30, Elevation: 20, FOV: FOV},
	{Azimuth: 90, Elevation: -10, FOV: FOV},
	{Azimuth: 150, Elevation: 20, FOV: FOV},
	{Azimuth: 210, Elevation: -10, FOV: FOV},
	{Azimuth: 270, Elevation: 20, FOV: FOV},
	{Azimuth: 330, Elevation: -10, FOV: FOV},
}

// Poses returns the six rig poses in tile order.
func Poses() []Pose {
	out := make([]Pose, len(fixed))
	copy(out, fixed[:])
	return out
}

// Notice is shown to users after a run.
const Notice = "views follow the model's fixed camera rig (azimuth 30..330 step 60, elevation +20/-10); poses cannot be requested"
