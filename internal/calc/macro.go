package calc

import (
	"fmt"
	"math"
	"sort"
)

// DefaultFleetMix is the fallback vehicle-composition percentage used when
// a link doesn't specify its own, dominated by private passenger traffic.
var DefaultFleetMix = map[string]float64{
	"Passenger Car":               70.0,
	"Passenger Truck":             20.0,
	"Light Commercial Truck":      5.0,
	"Transit Bus":                 3.0,
	"Combination Long-haul Truck": 2.0,
}

// Link is one road segment's traffic and geometry input to the macro
// calculator.
type Link struct {
	LinkID         string
	LengthKm       float64
	TrafficFlowVph float64
	AvgSpeedKph    float64
	FleetMix       map[string]float64 // vehicle type -> percentage, need not be normalized
}

// VehicleEmissions is one vehicle class's contribution on a link.
type VehicleEmissions struct {
	VehicleType      string             `json:"vehicle_type"`
	Percentage       float64            `json:"percentage"`
	VehiclesPerHour  float64            `json:"vehicles_per_hour"`
	EmissionsKgPerHr map[string]float64 `json:"emissions_kg_per_hr"`
}

// LinkResult is one link's full emission breakdown.
type LinkResult struct {
	LinkID                 string             `json:"link_id"`
	LengthKm               float64            `json:"length_km"`
	TrafficFlowVph         float64            `json:"traffic_flow_vph"`
	AvgSpeedKph            float64            `json:"avg_speed_kph"`
	FleetComposition       []VehicleEmissions `json:"fleet_composition"`
	TotalEmissionsKgPerHr  map[string]float64 `json:"total_emissions_kg_per_hr"`
	EmissionRatesGPerVehKm map[string]float64 `json:"emission_rates_g_per_veh_km"`
}

// MacroSummary aggregates emissions across every link in the request.
type MacroSummary struct {
	TotalLinks            int                `json:"total_links"`
	TotalEmissionsKgPerHr map[string]float64 `json:"total_emissions_kg_per_hr"`
}

// CalculateLinks computes per-link and aggregate macroscopic emissions.
// Unrecognized vehicle types inside a fleet mix are skipped rather than
// failing the whole link, mirroring the tolerant original implementation.
func CalculateLinks(links []Link, pollutants []string, modelYear int, season string, defaultFleetMix map[string]float64) ([]LinkResult, *MacroSummary, error) {
	if len(links) == 0 {
		return nil, nil, fmt.Errorf("links data must not be empty")
	}
	if defaultFleetMix == nil {
		defaultFleetMix = DefaultFleetMix
	}

	results := make([]LinkResult, 0, len(links))
	for _, link := range links {
		result, err := calculateLink(link, pollutants, modelYear, season, defaultFleetMix)
		if err != nil {
			return nil, nil, err
		}
		results = append(results, result)
	}

	summary := &MacroSummary{
		TotalLinks:            len(results),
		TotalEmissionsKgPerHr: map[string]float64{},
	}
	for _, p := range pollutants {
		summary.TotalEmissionsKgPerHr[p] = 0
	}
	for _, r := range results {
		for p, v := range r.TotalEmissionsKgPerHr {
			summary.TotalEmissionsKgPerHr[p] += v
		}
	}
	for p, v := range summary.TotalEmissionsKgPerHr {
		summary.TotalEmissionsKgPerHr[p] = round4(v)
	}

	return results, summary, nil
}

func calculateLink(link Link, pollutants []string, modelYear int, season string, defaultFleetMix map[string]float64) (LinkResult, error) {
	if link.LengthKm <= 0 {
		return LinkResult{}, fmt.Errorf("link %s: length_km must be positive", link.LinkID)
	}
	if link.AvgSpeedKph <= 0 {
		return LinkResult{}, fmt.Errorf("link %s: avg_speed_kph must be positive", link.LinkID)
	}

	fleetMix := link.FleetMix
	if len(fleetMix) == 0 {
		fleetMix = defaultFleetMix
	}
	fleetMix = normalizeFleetMix(fleetMix)

	lengthMi := link.LengthKm * 0.621371
	speedMph := link.AvgSpeedKph * 0.621371

	result := LinkResult{
		LinkID:                 link.LinkID,
		LengthKm:               link.LengthKm,
		TrafficFlowVph:         link.TrafficFlowVph,
		AvgSpeedKph:            link.AvgSpeedKph,
		TotalEmissionsKgPerHr:  map[string]float64{},
		EmissionRatesGPerVehKm: map[string]float64{},
	}
	for _, p := range pollutants {
		result.TotalEmissionsKgPerHr[p] = 0
	}

	vehicleNames := make([]string, 0, len(fleetMix))
	for name := range fleetMix {
		vehicleNames = append(vehicleNames, name)
	}
	sort.Strings(vehicleNames)

	for _, vehicleType := range vehicleNames {
		percentage := fleetMix[vehicleType]
		if _, known := sourceTypeID[vehicleType]; !known {
			continue
		}
		vehiclesPerHour := link.TrafficFlowVph * percentage / 100

		emissions := map[string]float64{}
		for _, pollutant := range pollutants {
			rateGPerMile, err := EmissionRateAtSpeed(vehicleType, pollutant, modelYear, season, speedMph)
			if err != nil {
				continue
			}
			emissionGPerVeh := rateGPerMile * lengthMi
			emissionKgPerHr := emissionGPerVeh * vehiclesPerHour / 1000
			result.TotalEmissionsKgPerHr[pollutant] += emissionKgPerHr
			emissions[pollutant] = round4(emissionKgPerHr)
		}

		result.FleetComposition = append(result.FleetComposition, VehicleEmissions{
			VehicleType:      vehicleType,
			Percentage:       round1(percentage),
			VehiclesPerHour:  round1(vehiclesPerHour),
			EmissionsKgPerHr: emissions,
		})
	}

	for p, total := range result.TotalEmissionsKgPerHr {
		if link.TrafficFlowVph > 0 {
			result.EmissionRatesGPerVehKm[p] = round4(total * 1000 / link.LengthKm / link.TrafficFlowVph)
		}
		result.TotalEmissionsKgPerHr[p] = round4(total)
	}

	return result, nil
}

// EmissionRateAtSpeed linearly interpolates QueryEmissionFactors' speed
// curve to the link's actual speed, rather than snapping to the nearest
// sampled point.
func EmissionRateAtSpeed(vehicleType, pollutant string, modelYear int, season string, speedMph float64) (float64, error) {
	factors, err := QueryEmissionFactors(vehicleType, pollutant, modelYear, season, "快速路")
	if err != nil {
		return 0, err
	}
	curve := factors.SpeedCurve
	if speedMph <= curve[0].SpeedMph {
		return curve[0].EmissionRateGPerMile, nil
	}
	if speedMph >= curve[len(curve)-1].SpeedMph {
		return curve[len(curve)-1].EmissionRateGPerMile, nil
	}
	for i := 1; i < len(curve); i++ {
		if speedMph <= curve[i].SpeedMph {
			lo, hi := curve[i-1], curve[i]
			frac := (speedMph - lo.SpeedMph) / (hi.SpeedMph - lo.SpeedMph)
			return lo.EmissionRateGPerMile + frac*(hi.EmissionRateGPerMile-lo.EmissionRateGPerMile), nil
		}
	}
	return curve[len(curve)-1].EmissionRateGPerMile, nil
}

// normalizeFleetMix rescales a fleet mix to sum to 100%, tolerating minor
// floating-point drift in the input without needing an exact 100.0 sum.
func normalizeFleetMix(mix map[string]float64) map[string]float64 {
	var total float64
	for _, pct := range mix {
		total += pct
	}
	if total <= 0 || math.Abs(total-100.0) < 0.01 {
		return mix
	}
	normalized := make(map[string]float64, len(mix))
	for name, pct := range mix {
		normalized[name] = pct / total * 100.0
	}
	return normalized
}
