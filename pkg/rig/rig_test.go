package rig

import "testing"

func TestPoses(t *testing.T) {
	poses := Poses()
	if len(poses) != 6 {
		t.Fatalf("len(Poses()) = %d, want 6", len(poses))
	}
	for i, p := range poses {
		wantAz := float64(30 + 60*i)
		if p.Azimuth != wantAz {
			t.Errorf("pose %d azimuth = %v, want %v", i, p.Azimuth, wantAz)
		}
		wantEl := 20.0
		if i%2 == 1 {
			wantEl = -10
		}
		if p.Elevation != wantEl {
			t.Errorf("pose %d elevation = %v, want %v", i, p.Elevation, wantEl)
		}
		if p.FOV != FOV {
			t.Errorf("pose %d fov = %v, want %v", i, p.FOV, FOV)
		}
	}
}

func TestPosesReturnsCopy(t *testing.T) {
	a := Poses()
	a[0].Azimuth = 999
	if b := Poses(); b[0].Azimuth != 30 {
		t.Errorf("Poses()[0].Azimuth = %v after caller edit, want 30", b[0].Azimuth)
	}
}
