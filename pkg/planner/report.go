package planner

import (
	"fmt"
	"math"
	"strings"
	"time"
)

const reportDate = "2006-01-02 15"

// Report renders the plan as a fixed width table with one row per hour.
func (p *Plan) Report() string {
	if p == nil {
		return "no plan\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Time: %s\n", p.Time.Format(time.DateTime))
	b.WriteString("   Date       Price PV    BEV   House HP    Bat   Grid  Bat   Temp  Restr.\n")
	b.WriteString("  Y-m-d H     €/MWh kWh   kWh   kWh   kWh   kWh   kWh   %     °C\n")
	for _, h := range p.Hours() {
		restriction := "-"
		if r := p.Restriction[h]; r.String() != "" {
			restriction = r.String()
		}
		temp, ok := p.Temp[h]
		if !ok {
			temp = math.NaN()
		}
		fmt.Fprintf(&b, "%s %5.0f %5.1f %5.1f %5.1f %5.1f %5.1f %5.1f %5.0f %5.1f %s\n",
			time.Unix(h, 0).In(p.Time.Location()).Format(reportDate),
			p.Price[h],
			p.PV[h],
			p.BEV[h],
			p.House[h],
			p.Heatpump[h],
			p.BatteryFlow[h],
			p.Grid[h],
			p.BatterySOC[h],
			temp,
			restriction,
		)
	}
	fmt.Fprintf(&b, "SOC: %.0f %% of %.1f kWh, status: %s\n", p.SOC, p.Capacity, p.Status)
	return b.String()
}
