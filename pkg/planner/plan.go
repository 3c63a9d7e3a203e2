package planner

import (
	"math"
	"time"

	"github.com/nergy-se/energymanager/pkg/device"
	"github.com/nergy-se/energymanager/pkg/hourseries"
)

// Plan is the dispatch plan for the hours [Start, End). Flows and grid values are kWh per
// hour with battery charging and grid export positive.
type Plan struct {
	Start int64
	End   int64

	Time     time.Time
	Status   Status
	SOC      float64 // measured when the plan was made
	Capacity float64

	PV          hourseries.Series
	House       hourseries.Series
	BEV         hourseries.Series
	Heatpump    hourseries.Series
	Consumption hourseries.Series
	Price       hourseries.Series
	Temp        hourseries.Series

	HeatpumpModes map[int64]device.HeatpumpMode

	BatteryFlow hourseries.Series
	Grid        hourseries.Series
	BatterySOC  hourseries.Series
	ActiveFlow  hourseries.Series
	Restriction map[int64]device.Restriction
}

func newPlan(now time.Time, start, end int64) *Plan {
	return &Plan{
		Start:         start,
		End:           end,
		Time:          now,
		PV:            hourseries.New(),
		House:         hourseries.New(),
		BEV:           hourseries.New(),
		Heatpump:      hourseries.New(),
		Consumption:   hourseries.New(),
		Price:         hourseries.New(),
		Temp:          hourseries.New(),
		HeatpumpModes: make(map[int64]device.HeatpumpMode),
		BatteryFlow:   hourseries.New(),
		Grid:          hourseries.New(),
		BatterySOC:    hourseries.New(),
		ActiveFlow:    hourseries.New(),
		Restriction:   make(map[int64]device.Restriction),
	}
}

// Hours returns the planned hours in chronological order.
func (p *Plan) Hours() []int64 {
	if p == nil {
		return nil
	}
	hours := make([]int64, 0, (p.End-p.Start)/hourseries.Seconds)
	for h := p.Start; h < p.End; h += hourseries.Seconds {
		hours = append(hours, h)
	}
	return hours
}

func (p *Plan) Contains(h int64) bool {
	return p != nil && h >= p.Start && h < p.End
}

// Mode returns the battery command planned for the hour containing t.
func (p *Plan) Mode(t time.Time) device.Mode {
	h := hourseries.HourOf(t)
	if !p.Contains(h) {
		return device.HandsOff
	}
	r := p.Restriction[h]
	if r.Active() {
		return device.Mode{Restriction: r, TargetKW: math.Abs(p.ActiveFlow[h])}
	}
	return device.Hold(r)
}

// HeatpumpMode returns the planned heat pump mode for the hour containing t.
func (p *Plan) HeatpumpMode(t time.Time) device.HeatpumpMode {
	if p == nil {
		return device.HeatpumpNormal
	}
	return p.HeatpumpModes[hourseries.HourOf(t)]
}

// Info is the planning information of one hour. Missing values are NaN, use Map to encode it.
type Info struct {
	Hour        int64
	PV          float64
	BatterySOC  float64
	BatteryFlow float64
	Price       float64
	Grid        float64
	Temp        float64
	BEV         float64
	Heatpump    float64
	House       float64
	Restriction device.Restriction
}

// Info returns the planning information for the hour containing t. It is safe to call on a
// nil plan.
func (p *Plan) Info(t time.Time) Info {
	h := hourseries.HourOf(t)
	info := Info{
		Hour:        h,
		PV:          math.NaN(),
		BatterySOC:  math.NaN(),
		BatteryFlow: math.NaN(),
		Price:       math.NaN(),
		Grid:        math.NaN(),
		Temp:        math.NaN(),
		Heatpump:    math.NaN(),
		House:       math.NaN(),
	}
	if p == nil {
		return info
	}
	get := func(s hourseries.Series, def float64) float64 {
		if v, ok := s[h]; ok {
			return v
		}
		return def
	}
	info.PV = get(p.PV, math.NaN())
	info.BatterySOC = get(p.BatterySOC, math.NaN())
	info.BatteryFlow = get(p.BatteryFlow, math.NaN())
	info.Price = get(p.Price, math.NaN())
	info.Grid = get(p.Grid, math.NaN())
	info.Temp = get(p.Temp, math.NaN())
	info.BEV = get(p.BEV, 0)
	info.Heatpump = get(p.Heatpump, math.NaN())
	info.House = get(p.House, math.NaN())
	info.Restriction = p.Restriction[h]
	return info
}

// Map returns the known values keyed by their json name.
func (i Info) Map() map[string]interface{} {
	m := map[string]interface{}{
		"hour": i.Hour,
	}
	for k, v := range map[string]float64{
		"pv":           i.PV,
		"battery_soc":  i.BatterySOC,
		"battery_flow": i.BatteryFlow,
		"price":        i.Price,
		"grid":         i.Grid,
		"temp":         i.Temp,
		"bev":          i.BEV,
		"heatpump":     i.Heatpump,
		"house":        i.House,
	} {
		if !math.IsNaN(v) {
			m[k] = v
		}
	}
	if i.Restriction != device.RestrictionNone {
		m["restriction"] = i.Restriction.String()
	}
	return m
}
