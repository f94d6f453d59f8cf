// Package calc implements the emission physics the tools wrap: Vehicle
// Specific Power (VSP) for microscopic per-second emission computation,
// a per-speed emission-factor curve, and macroscopic per-link rollups.
package calc

import "math"

const gravity = 9.81 // m/s^2

// vspParams is one vehicle class's VSP coefficients (MOVES Atlanta 2014+).
type vspParams struct {
	A, B, C, M, m float64
}

// VSPParameters maps a vehicle-type ID (the spec's vsp_class_id) to its
// VSP coefficients.
var VSPParameters = map[int]vspParams{
	11: {A: 0.0251, B: 0.0, C: 0.000315, M: 0.285, m: 0.285},      // Motorcycle
	21: {A: 0.156461, B: 0.002001, C: 0.000492, M: 1.4788, m: 1.4788}, // Passenger Car
	31: {A: 0.22112, B: 0.002837, C: 0.000698, M: 1.86686, m: 1.8668}, // Passenger Truck
	32: {A: 0.235008, B: 0.003038, C: 0.000747, M: 2.05979, m: 2.0597}, // Light Commercial Truck
	41: {A: 1.23039, B: 0.0, C: 0.003714, M: 17.1, m: 19.593},      // Intercity Bus
	42: {A: 1.03968, B: 0.0, C: 0.003587, M: 17.1, m: 16.556},      // Transit Bus
	43: {A: 0.709382, B: 0.0, C: 0.002175, M: 17.1, m: 9.0698},     // School Bus
	51: {A: 1.50429, B: 0.0, C: 0.003572, M: 17.1, m: 23.113},      // Refuse Truck
	52: {A: 0.596526, B: 0.0, C: 0.001603, M: 17.1, m: 8.5389},     // Single Unit Short-haul Truck
	53: {A: 0.529399, B: 0.0, C: 0.001473, M: 17.1, m: 6.9844},     // Single Unit Long-haul Truck
	54: {A: 0.655376, B: 0.0, C: 0.002105, M: 17.1, m: 7.5257},     // Motor Home
	61: {A: 1.43052, B: 0.0, C: 0.003792, M: 17.1, m: 22.828},      // Combination Short-haul Truck
	62: {A: 1.47389, B: 0.0, C: 0.003681, M: 17.1, m: 24.419},      // Combination Long-haul Truck
}

// vspBin is one (lower, upper] VSP range mapped to a bin ID.
type vspBin struct {
	id          int
	lower, upper float64
}

var vspBins = []vspBin{
	{1, math.Inf(-1), -2},
	{2, -2, 0},
	{3, 0, 1},
	{4, 1, 4},
	{5, 4, 7},
	{6, 7, 10},
	{7, 10, 13},
	{8, 13, 16},
	{9, 16, 19},
	{10, 19, 23},
	{11, 23, 28},
	{12, 28, 33},
	{13, 33, 39},
	{14, 39, math.Inf(1)},
}

// VSP computes Vehicle Specific Power in kW/ton.
//
// VSP = (A*v + B*v^2 + C*v^3 + M*v*a + M*v*g*grade/100) / m
func VSP(speedMps, accel, gradePct float64, vehicleTypeID int) (float64, bool) {
	p, ok := VSPParameters[vehicleTypeID]
	if !ok {
		return 0, false
	}
	v := speedMps
	vsp := (p.A*v + p.B*v*v + p.C*v*v*v + p.M*v*accel + p.M*v*gravity*(gradePct/100.0)) / p.m
	return round3(vsp), true
}

// VSPBin maps a VSP value to its bin ID (1-14).
func VSPBin(vsp float64) int {
	for _, b := range vspBins {
		if vsp > b.lower && vsp <= b.upper {
			return b.id
		}
	}
	return 14
}

// OpMode maps speed (mph) and VSP to a MOVES operating-mode ID.
//
//	0: idle, 11-16: low speed (<25 mph), 21-30: mid speed (<50 mph),
//	33-40: high speed (>=50 mph).
func OpMode(speedMph, vsp float64) int {
	switch {
	case speedMph < 1:
		return 0
	case speedMph < 25:
		switch {
		case vsp < 0:
			return 11
		case vsp < 3:
			return 12
		case vsp < 6:
			return 13
		case vsp < 9:
			return 14
		case vsp < 12:
			return 15
		default:
			return 16
		}
	case speedMph < 50:
		switch {
		case vsp < 0:
			return 21
		case vsp < 3:
			return 22
		case vsp < 6:
			return 23
		case vsp < 9:
			return 24
		case vsp < 12:
			return 25
		case vsp < 15:
			return 26
		case vsp < 18:
			return 27
		case vsp < 21:
			return 28
		case vsp < 24:
			return 29
		default:
			return 30
		}
	default:
		switch {
		case vsp < 3:
			return 33
		case vsp < 9:
			return 35
		case vsp < 15:
			return 37
		case vsp < 24:
			return 38
		case vsp < 30:
			return 39
		default:
			return 40
		}
	}
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
