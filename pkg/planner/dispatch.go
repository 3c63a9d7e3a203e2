package planner

import (
	"math"
	"time"

	"github.com/nergy-se/energymanager/pkg/clock"
	"github.com/nergy-se/energymanager/pkg/device"
	"github.com/nergy-se/energymanager/pkg/hourseries"
	"github.com/sirupsen/logrus"
)

const (
	// MinSOC is the lowest SOC the plan lets the battery reach.
	MinSOC = 5.0
	// NoDischargeSOC is the SOC kept while discharge is held back.
	NoDischargeSOC = 10.0

	// flows below this are treated as idle
	minFlow = 0.02
	epsilon = 1e-9
	// adjustment rounds per hour when a flow overflows or underflows the battery
	maxAdjust = 4
)

type dischargeMode struct {
	name     string
	minSOC   float64
	minPrice float64
	rate     float64
}

// run holds one dispatch computation over a plan.
type run struct {
	plan     *Plan
	settings device.BatterySettings
	now      time.Time
	hours    []int64
	left     map[int64]float64
	seed     hourseries.Series
	visit    func(pass string, hours []int64)
}

func newRun(plan *Plan, settings device.BatterySettings, now time.Time, visit func(string, []int64)) *run {
	r := &run{
		plan:     plan,
		settings: settings,
		now:      now,
		hours:    plan.Hours(),
		left:     make(map[int64]float64),
		seed:     hourseries.New(),
		visit:    visit,
	}
	for _, h := range r.hours {
		r.left[h] = clock.HourLeft(now, h)
		r.seed[h] = plan.PV[h] - plan.Consumption[h]
	}
	return r
}

func (r *run) soc2kwh(soc float64) float64 {
	return soc / 100 * r.plan.Capacity
}

func (r *run) kwh2soc(kwh float64) float64 {
	return kwh / r.plan.Capacity * 100
}

func (r *run) record(pass string, hours []int64) {
	if r.visit != nil {
		r.visit(pass, hours)
	}
}

// surplus reports whether the hour has more production than consumption.
func (r *run) surplus(h int64) bool {
	return r.seed[h] > 0
}

type simulation struct {
	min       float64
	overflow  float64 // kWh that did not fit into the battery
	underflow float64 // kWh the battery could not deliver
}

// simulate integrates the battery flow from the measured SOC over [Start, to). A floor of
// -Inf disables the lower limit. Hours on hold use at least NoDischargeSOC as floor.
func (r *run) simulate(to int64, floor float64) simulation {
	soc := r.plan.SOC
	sim := simulation{min: soc}
	for _, h := range r.hours {
		if h >= to {
			break
		}
		next, over, under := r.step(h, soc, floor)
		sim.overflow += over
		sim.underflow += under
		soc = next
		if soc < sim.min {
			sim.min = soc
		}
	}
	return sim
}

// step moves soc through hour h with the battery clamped to [floor, 100]. It returns the new
// SOC and the kWh that did not fit into or could not be delivered by the battery.
func (r *run) step(h int64, soc, floor float64) (next, overflow, underflow float64) {
	delta := r.kwh2soc(r.plan.BatteryFlow[h]) * r.left[h]
	next = soc + delta
	lo := floor
	if r.plan.Restriction[h] == device.RestrictionNoDischarge && !math.IsInf(floor, -1) {
		lo = math.Max(floor, NoDischargeSOC)
	}
	if delta > 0 && next > 100+epsilon {
		top := math.Max(100, soc)
		overflow = r.soc2kwh(next - top)
		next = top
	}
	if delta < 0 && next < lo-epsilon {
		bottom := math.Min(lo, soc)
		underflow = r.soc2kwh(bottom - next)
		next = bottom
	}
	return next, overflow, underflow
}

// dischargeAbove reports whether every active discharge hour starts and ends at or above
// floor on the simulated SOC trajectory.
func (r *run) dischargeAbove(floor float64) bool {
	soc := r.plan.SOC
	for _, h := range r.hours {
		next, _, _ := r.step(h, soc, MinSOC)
		if r.plan.Restriction[h] == device.RestrictionActiveDischarge && math.Min(soc, next) < floor-epsilon {
			return false
		}
		soc = next
	}
	return true
}

// nextDaylight returns the first hour with PV production after the next night, or End.
func (r *run) nextDaylight(from int64) int64 {
	h := from
	for h < r.plan.End && r.plan.PV[h] > 0 {
		h += hourseries.Seconds
	}
	for h < r.plan.End && r.plan.PV[h] == 0 {
		h += hourseries.Seconds
	}
	return h
}

func (r *run) dispatch() {
	p := r.plan
	s := r.settings
	for _, h := range r.hours {
		p.BatteryFlow[h] = r.seed[h]
	}
	if len(r.hours) == 0 {
		return
	}

	nightEnd := r.nextDaylight(p.Start)
	sim := r.simulate(p.End, MinSOC)
	logger := logrus.WithFields(logrus.Fields{
		"feed_in": sim.overflow,
		"imports": sim.underflow,
		"min_soc": r.simulate(nightEnd, math.Inf(-1)).min,
	})

	mode := r.dischargeMode()
	switch {
	case sim.overflow > s.MinGrid:
		exported := r.findNoCharge()
		logger = logger.WithField("exported", exported)
		if exported > s.MinGrid && p.SOC > mode.minSOC {
			r.findActiveDischarge(mode, exported)
			r.findNoCharge()
		}
	case sim.underflow > s.MinGrid:
		r.findActiveDischarge(mode, math.NaN())
	}

	if imports := r.simulate(p.End, MinSOC).underflow; imports > s.MinGrid {
		if minSOC := r.simulate(nightEnd, math.Inf(-1)).min; minSOC <= NoDischargeSOC {
			r.findActiveCharge(nightEnd, r.soc2kwh(NoDischargeSOC-minSOC))
		}
		r.findNoDischarge()
	}

	r.finalize()
	logger.WithField("mode", mode.name).Debug("dispatch done")
}

// dischargeMode selects the morning discharge in the configured morning hours and the
// evening discharge otherwise.
func (r *run) dischargeMode() dischargeMode {
	s := r.settings
	if h := r.now.Hour(); h >= s.MorningStart && h < s.MorningEnd {
		return dischargeMode{name: "md", minSOC: s.MDMinSOC, minPrice: s.MDMinPrice, rate: s.MDSOCRate}
	}
	return dischargeMode{name: "ed", minSOC: s.EDMinSOC, minPrice: s.EDMinPrice, rate: s.EDSOCRate}
}

func (r *run) windowEnd(mode dischargeMode) int64 {
	if mode.name == "md" {
		y, m, d := r.now.Date()
		end := time.Date(y, m, d, r.settings.MorningEnd, 0, 0, 0, r.now.Location()).Unix()
		if end > r.plan.End {
			return r.plan.End
		}
		return end
	}
	return r.nextDaylight(r.plan.Start)
}

// findNoCharge lets the cheapest surplus hours charge the battery. Surplus hours that would
// only overflow it are tagged NoCharge so the energy is exported when it pays the most.
// It returns the exported kWh.
func (r *run) findNoCharge() float64 {
	p := r.plan
	var visited []int64
	defer func() { r.record("no_charge", visited) }()
	for _, h := range r.hours {
		if !r.surplus(h) || p.Restriction[h].Active() {
			continue
		}
		p.BatteryFlow[h] = 0
		if p.Restriction[h] == device.RestrictionNoCharge {
			delete(p.Restriction, h)
		}
	}

	for _, e := range p.Price.Ordered(p.Start, p.End, false) {
		h := e.Hour
		if !r.surplus(h) || p.Restriction[h].Active() {
			continue
		}
		visited = append(visited, h)
		before := r.simulate(p.End, MinSOC).overflow
		p.BatteryFlow[h] = r.seed[h]
		for i := 0; i < maxAdjust; i++ {
			d := r.simulate(p.End, MinSOC).overflow - before
			if d <= epsilon || r.left[h] <= 0 {
				break
			}
			p.BatteryFlow[h] = math.Max(0, p.BatteryFlow[h]-d/r.left[h])
		}
		if p.BatteryFlow[h] < minFlow {
			p.BatteryFlow[h] = 0
			p.Restriction[h] = device.RestrictionNoCharge
		}
	}

	exported := 0.0
	for _, h := range r.hours {
		if r.surplus(h) && !p.Restriction[h].Active() {
			exported += (r.seed[h] - p.BatteryFlow[h]) * r.left[h]
		}
	}
	return exported
}

// findNoDischarge holds back discharge in cheap hours when the battery would otherwise run
// empty before a more expensive hour.
func (r *run) findNoDischarge() {
	p := r.plan
	var visited []int64
	defer func() { r.record("no_discharge", visited) }()
	orig := make(map[int64]float64)
	for _, h := range r.hours {
		if p.BatteryFlow[h] < 0 && p.Restriction[h] == device.RestrictionNone {
			orig[h] = p.BatteryFlow[h]
			p.BatteryFlow[h] = 0
		}
	}

	var served []int64
	for _, e := range p.Price.Ordered(p.Start, p.End, true) {
		h := e.Hour
		o, ok := orig[h]
		if !ok {
			continue
		}
		visited = append(visited, h)
		before := r.simulate(p.End, NoDischargeSOC).underflow
		p.BatteryFlow[h] = o
		for i := 0; i < maxAdjust; i++ {
			d := r.simulate(p.End, NoDischargeSOC).underflow - before
			if d <= epsilon || r.left[h] <= 0 {
				break
			}
			p.BatteryFlow[h] = math.Min(0, p.BatteryFlow[h]+d/r.left[h])
		}

		if p.BatteryFlow[h]-o > minFlow && r.pays(h, served) {
			if p.BatteryFlow[h] > -minFlow {
				p.BatteryFlow[h] = 0
			}
			p.Restriction[h] = device.RestrictionNoDischarge
		} else {
			p.BatteryFlow[h] = o
		}
		if p.BatteryFlow[h] < -minFlow {
			served = append(served, h)
		}
	}
}

// pays reports whether energy kept in hour h is worth more in a later served hour.
func (r *run) pays(h int64, served []int64) bool {
	for _, k := range served {
		if k > h && r.plan.Price[k]-r.plan.Price[h] >= r.settings.NoDischargeMinPriceDiff {
			return true
		}
	}
	return false
}

// findActiveCharge charges from the grid in the cheapest hours of [Start, to) until need kWh
// are covered.
func (r *run) findActiveCharge(to int64, need float64) {
	p := r.plan
	var visited []int64
	defer func() { r.record("active_charge", visited) }()
	s := r.settings
	peak := p.Price.Max(p.Start, len(r.hours))
	for _, e := range p.Price.Ordered(p.Start, to, false) {
		h := e.Hour
		if e.Value > s.ChargeMaxPrice || peak-e.Value < s.ChargeMinPriceDiff {
			break
		}
		if p.Restriction[h] != device.RestrictionNone || r.surplus(h) {
			continue
		}
		visited = append(visited, h)
		o := p.BatteryFlow[h]
		before := r.simulate(p.End, MinSOC).overflow
		p.BatteryFlow[h] = s.ChargePower
		for i := 0; i < maxAdjust; i++ {
			d := r.simulate(p.End, MinSOC).overflow - before
			if d <= epsilon || r.left[h] <= 0 {
				break
			}
			p.BatteryFlow[h] = math.Max(0, p.BatteryFlow[h]-d/r.left[h])
		}
		if p.BatteryFlow[h] < minFlow {
			p.BatteryFlow[h] = o
			break
		}
		p.Restriction[h] = device.RestrictionActiveCharge
		p.ActiveFlow[h] = p.BatteryFlow[h]
		need -= (p.BatteryFlow[h] - o) * r.left[h]
		if need <= 0 {
			break
		}
	}
}

// findActiveDischarge discharges at the mode's rate in the most expensive hours of its
// window. A margin that is not NaN is the exported surplus available to refill the battery.
func (r *run) findActiveDischarge(mode dischargeMode, margin float64) {
	p := r.plan
	var visited []int64
	defer func() { r.record("active_discharge", visited) }()
	s := r.settings
	low := p.Price.Min(p.Start, len(r.hours))
	kwh := r.soc2kwh(mode.rate)
	for _, e := range p.Price.Ordered(p.Start, r.windowEnd(mode), true) {
		h := e.Hour
		if e.Value-low < mode.minPrice {
			break
		}
		if p.Restriction[h] != device.RestrictionNone || r.surplus(h) {
			continue
		}
		if mode.name == "ed" && p.PV[h] > s.EDMaxPV {
			continue
		}
		visited = append(visited, h)
		o := p.BatteryFlow[h]
		flow := math.Min(o, -kwh)
		extra := (o - flow) * r.left[h]
		if !math.IsNaN(margin) && margin-extra < s.MinGrid {
			break
		}
		p.BatteryFlow[h] = flow
		p.Restriction[h] = device.RestrictionActiveDischarge
		if !r.dischargeAbove(mode.minSOC) {
			p.BatteryFlow[h] = o
			delete(p.Restriction, h)
			break
		}
		if !math.IsNaN(margin) {
			margin -= extra
		}
		p.ActiveFlow[h] = flow
	}
}

// finalize integrates the SOC over the plan, clamps it to the battery limits and derives
// the grid flow. Active hours keep their tag only while the clamped flow still runs in the
// commanded direction. Running it twice gives the same plan.
func (r *run) finalize() {
	p := r.plan
	floor := r.dischargeMode().minSOC
	soc := p.SOC
	for _, h := range r.hours {
		left := r.left[h]
		if p.Restriction[h] == device.RestrictionActiveDischarge {
			if soc < floor-epsilon {
				r.release(h)
				p.BatteryFlow[h] = math.Max(p.BatteryFlow[h], r.seed[h])
			} else if left > 0 {
				// discharge ends at the pass floor
				p.BatteryFlow[h] = math.Max(p.BatteryFlow[h], -r.soc2kwh(soc-floor)/left)
			}
		}
		delta := r.kwh2soc(p.BatteryFlow[h]) * left
		next := soc + delta
		lo := MinSOC
		if p.Restriction[h] == device.RestrictionNoDischarge {
			lo = NoDischargeSOC
		}
		if left > 0 {
			if delta > 0 && next > 100+epsilon {
				top := math.Max(100, soc)
				p.BatteryFlow[h] -= r.soc2kwh(next-top) / left
				next = top
			}
			if delta < 0 && next < lo-epsilon {
				bottom := math.Min(lo, soc)
				p.BatteryFlow[h] += r.soc2kwh(bottom-next) / left
				next = bottom
			}
		}
		switch p.Restriction[h] {
		case device.RestrictionActiveDischarge:
			if p.BatteryFlow[h] > -minFlow {
				r.release(h)
			} else {
				p.ActiveFlow[h] = p.BatteryFlow[h]
			}
		case device.RestrictionActiveCharge:
			if p.BatteryFlow[h] < minFlow {
				r.release(h)
			} else {
				p.ActiveFlow[h] = p.BatteryFlow[h]
			}
		}
		soc = next
		p.Grid[h] = p.PV[h] - p.Consumption[h] - p.BatteryFlow[h]
		p.BatterySOC[h] = soc
		if soc >= 99 && p.Restriction[h] == device.RestrictionNoCharge {
			delete(p.Restriction, h)
		}
	}
	for h, restriction := range p.Restriction {
		if restriction == device.RestrictionNone {
			delete(p.Restriction, h)
		}
	}
}

// release drops the active tag of hour h.
func (r *run) release(h int64) {
	delete(r.plan.Restriction, h)
	delete(r.plan.ActiveFlow, h)
}
