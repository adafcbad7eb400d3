package models

// CPMAggregate is the payload published on the CPM topic: the latest
// accepted reading plus min/avg/max over the rolling window.
type CPMAggregate struct {
	Value int     `json:"value"`
	Min   int     `json:"min"`
	Avg   float64 `json:"avg"`
	Max   int     `json:"max"`
}

// DoseAggregate is the payload published on the dose-rate topic, in µSv/h.
type DoseAggregate struct {
	Value float64 `json:"value"`
	Min   float64 `json:"min"`
	Avg   float64 `json:"avg"`
	Max   float64 `json:"max"`
}

// DeviceInfo identifies the detector to the home-automation platform.
type DeviceInfo struct {
	ID           string
	Name         string
	Manufacturer string
	Model        string
}
