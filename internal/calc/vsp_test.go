package calc

import "testing"

func TestVSPUnknownVehicleType(t *testing.T) {
	if _, ok := VSP(10, 0, 0, 999); ok {
		t.Fatalf("expected VSP() to report unknown vehicle type")
	}
}

func TestVSPZeroMotion(t *testing.T) {
	v, ok := VSP(0, 0, 0, 21)
	if !ok {
		t.Fatalf("expected Passenger Car (21) to be a known type")
	}
	if v != 0 {
		t.Fatalf("VSP at zero speed/accel/grade = %v, want 0", v)
	}
}

func TestVSPIncreasesWithSpeed(t *testing.T) {
	low, _ := VSP(5, 0, 0, 21)
	high, _ := VSP(20, 0, 0, 21)
	if high <= low {
		t.Fatalf("expected VSP to increase with speed: low=%v high=%v", low, high)
	}
}

func TestVSPBinBoundaries(t *testing.T) {
	cases := []struct {
		vsp  float64
		want int
	}{
		{-100, 1},
		{-2, 1},
		{-1, 2},
		{0, 2},
		{0.5, 3},
		{50, 14},
	}
	for _, tc := range cases {
		if got := VSPBin(tc.vsp); got != tc.want {
			t.Errorf("VSPBin(%v) = %d, want %d", tc.vsp, got, tc.want)
		}
	}
}

func TestOpModeIdle(t *testing.T) {
	if got := OpMode(0.5, 5); got != 0 {
		t.Fatalf("OpMode(idle) = %d, want 0", got)
	}
}

func TestOpModeLowSpeedRange(t *testing.T) {
	if got := OpMode(10, -1); got != 11 {
		t.Fatalf("OpMode(low speed, negative vsp) = %d, want 11", got)
	}
	if got := OpMode(10, 20); got != 16 {
		t.Fatalf("OpMode(low speed, high vsp) = %d, want 16", got)
	}
}

func TestOpModeHighSpeedRange(t *testing.T) {
	if got := OpMode(60, 1); got != 33 {
		t.Fatalf("OpMode(high speed, low vsp) = %d, want 33", got)
	}
	if got := OpMode(60, 50); got != 40 {
		t.Fatalf("OpMode(high speed, high vsp) = %d, want 40", got)
	}
}
