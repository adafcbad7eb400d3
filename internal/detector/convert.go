package detector

// DoseRate converts a CPM reading to µSv/h using the tube calibration
// factor. The factor is validated at configuration load; it is trusted to
// be positive here.
func DoseRate(cpm int, factor float64) float64 {
	return float64(cpm) / factor
}
