package state

import "time"

// State is a telemetry snapshot of the installation. Nil fields were not measured.
type State struct {
	Time time.Time `json:"time"`

	BatterySOC *float64 `json:"batterySoc,omitempty"`
	BatteryKW  *float64 `json:"batteryKw,omitempty"`
	GridKW     *float64 `json:"gridKw,omitempty"`

	Restriction  string `json:"restriction,omitempty"`
	HeatpumpMode string `json:"heatpumpMode,omitempty"`

	Indoor             *float64 `json:"indoor,omitempty"`
	Outdoor            *float64 `json:"outdoor,omitempty"`
	HeatCarrierForward *float64 `json:"heatCarrierForward,omitempty"`
	HeatCarrierReturn  *float64 `json:"heatCarrierReturn,omitempty"`
	BrineIn            *float64 `json:"brineIn,omitempty"`
	BrineOut           *float64 `json:"brineOut,omitempty"`
	WarmWater          *float64 `json:"warmWater,omitempty"`
	Compressor         *float64 `json:"compressor,omitempty"`
	COP                *float64 `json:"cop,omitempty"`

	HeatingAllowed  *bool `json:"heatingAllowed,omitempty"`
	HotwaterAllowed *bool `json:"hotwaterAllowed,omitempty"`
	HotwaterBoost   *bool `json:"hotwaterBoost,omitempty"`

	Alarms []string `json:"alarms,omitempty"`
}

// Merge copies the heat pump readings of hp into s.
func (s *State) Merge(hp *State) {
	if hp == nil {
		return
	}
	s.Indoor = hp.Indoor
	s.Outdoor = hp.Outdoor
	s.HeatCarrierForward = hp.HeatCarrierForward
	s.HeatCarrierReturn = hp.HeatCarrierReturn
	s.BrineIn = hp.BrineIn
	s.BrineOut = hp.BrineOut
	s.WarmWater = hp.WarmWater
	s.Compressor = hp.Compressor
	s.COP = hp.COP
	s.HeatingAllowed = hp.HeatingAllowed
	s.HotwaterAllowed = hp.HotwaterAllowed
	s.HotwaterBoost = hp.HotwaterBoost
}

// Map returns the measured values. Booleans are encoded as 0 and 1.
func (s State) Map() map[string]interface{} {
	m := make(map[string]interface{})
	floats := map[string]*float64{
		"batterySoc":         s.BatterySOC,
		"batteryKw":          s.BatteryKW,
		"gridKw":             s.GridKW,
		"indoor":             s.Indoor,
		"outdoor":            s.Outdoor,
		"heatCarrierForward": s.HeatCarrierForward,
		"heatCarrierReturn":  s.HeatCarrierReturn,
		"brineIn":            s.BrineIn,
		"brineOut":           s.BrineOut,
		"warmWater":          s.WarmWater,
		"compressor":         s.Compressor,
		"cop":                s.COP,
	}
	for k, v := range floats {
		if v != nil {
			m[k] = *v
		}
	}
	bools := map[string]*bool{
		"heatingAllowed":  s.HeatingAllowed,
		"hotwaterAllowed": s.HotwaterAllowed,
		"hotwaterBoost":   s.HotwaterBoost,
	}
	for k, v := range bools {
		if v != nil {
			m[k] = boolToInt(*v)
		}
	}
	if s.Restriction != "" {
		m["restriction"] = s.Restriction
	}
	if s.HeatpumpMode != "" {
		m["heatpumpMode"] = s.HeatpumpMode
	}
	if len(s.Alarms) > 0 {
		m["alarms"] = s.Alarms
	}
	return m
}

func Pointer[K any](val K) *K {
	return &val
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
