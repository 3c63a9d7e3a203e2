package device

import "fmt"

type Restriction int

const (
	RestrictionNone Restriction = iota
	RestrictionNoCharge
	RestrictionNoDischarge
	RestrictionActiveCharge
	RestrictionActiveDischarge
)

func (r Restriction) String() string {
	switch r {
	case RestrictionNone:
		return ""
	case RestrictionNoCharge:
		return "no charge"
	case RestrictionNoDischarge:
		return "no discharge"
	case RestrictionActiveCharge:
		return "active charge"
	case RestrictionActiveDischarge:
		return "active discharge"
	}
	return fmt.Sprintf("restriction(%d)", int(r))
}

func (r Restriction) Active() bool {
	return r == RestrictionActiveCharge || r == RestrictionActiveDischarge
}

// Mode is the command sent to a battery. TargetKW is a magnitude and only used by the
// active restrictions.
type Mode struct {
	Restriction Restriction
	TargetKW    float64
}

func (m Mode) String() string {
	if m.Restriction.Active() {
		return fmt.Sprintf("%s %.2f kW", m.Restriction, m.TargetKW)
	}
	if m.Restriction == RestrictionNone {
		return "none"
	}
	return m.Restriction.String()
}

// HandsOff releases external control of the battery.
var HandsOff = Mode{Restriction: RestrictionNone}

func Hold(r Restriction) Mode {
	return Mode{Restriction: r}
}

func ActiveCharge(kw float64) Mode {
	return Mode{Restriction: RestrictionActiveCharge, TargetKW: kw}
}

func ActiveDischarge(kw float64) Mode {
	return Mode{Restriction: RestrictionActiveDischarge, TargetKW: kw}
}

// Setpoint returns the battery power setpoint in kW with charging positive, and false
// when the battery should be left alone.
func (m Mode) Setpoint() (float64, bool) {
	switch m.Restriction {
	case RestrictionNoCharge, RestrictionNoDischarge:
		return 0, true
	case RestrictionActiveCharge:
		return m.TargetKW, true
	case RestrictionActiveDischarge:
		return -m.TargetKW, true
	case RestrictionNone:
	}
	return 0, false
}

type HeatpumpMode int

const (
	HeatpumpNormal HeatpumpMode = iota
	HeatpumpDisabled
	HeatpumpEnhanced
)

func (m HeatpumpMode) String() string {
	switch m {
	case HeatpumpNormal:
		return "normal"
	case HeatpumpDisabled:
		return "disabled"
	case HeatpumpEnhanced:
		return "enhanced"
	}
	return fmt.Sprintf("heatpumpmode(%d)", int(m))
}

// ParseRestriction is the inverse of Restriction.String.
func ParseRestriction(s string) (Restriction, error) {
	for r := RestrictionNone; r <= RestrictionActiveDischarge; r++ {
		if r.String() == s {
			return r, nil
		}
	}
	return RestrictionNone, fmt.Errorf("unknown restriction %q", s)
}
