package monitor

// Stats summarizes the readings of a monitor. BestAQI and WorstAQI are zero
// until the first valid reading.
type Stats struct {
	Measurements int
	Valid        int
	Errors       int
	BestAQI      uint8
	WorstAQI     uint8
	totalTVOC    uint64
	totalECO2    uint64
}

func (s *Stats) record(r Reading) {
	if !r.Valid {
		return
	}
	aqi := r.Measurement.AQI
	if s.Valid == 0 || aqi < s.BestAQI {
		s.BestAQI = aqi
	}
	if s.Valid == 0 || aqi > s.WorstAQI {
		s.WorstAQI = aqi
	}
	s.Valid++
	s.totalTVOC += uint64(r.Measurement.TVOC)
	s.totalECO2 += uint64(r.Measurement.ECO2)
}

// AverageTVOC returns the mean TVOC of valid readings in ppb, rounded down.
func (s Stats) AverageTVOC() uint64 {
	if s.Valid == 0 {
		return 0
	}
	return s.totalTVOC / uint64(s.Valid)
}

// AverageECO2 returns the mean eCO2 of valid readings in ppm, rounded down.
func (s Stats) AverageECO2() uint64 {
	if s.Valid == 0 {
		return 0
	}
	return s.totalECO2 / uint64(s.Valid)
}

// ErrorRate returns failed cycles as a percentage of all cycles.
func (s Stats) ErrorRate() float64 {
	if s.Measurements == 0 {
		return 0
	}
	return float64(s.Errors) / float64(s.Measurements) * 100
}
