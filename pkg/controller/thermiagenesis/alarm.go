package thermiagenesis

import "sort"

const alarmInputs = 203

var alarmsMap = map[int]string{
	0:   "Alarm active, Class: A",
	1:   "Alarm active, Class: B",
	2:   "Alarm active, Class: C",
	9:   "High pressure switch alarm",
	10:  "Low pressure level alarm",
	11:  "High discharge pipe temperature alarm",
	16:  "Flow/pressure switch alarm",
	22:  "Power input phase detection alarm",
	23:  "Inverter unit alarm",
	24:  "System supply low temperature alarm",
	29:  "Brine temperature out of range alarm",
	30:  "Brine in sensor alarm",
	31:  "Brine out sensor alarm",
	34:  "Outdoor sensor alarm",
	49:  "Brine delta out of range alarm",
	56:  "Brine in low temperature alarm",
	57:  "Brine out low temperature alarm",
	66:  "Sum alarm",
	74:  "Temperature room sensor alarm",
	75:  "Inverter unit communication alarm",
	87:  "Tap water top sensor alarm.",
	202: "External alarm input",
}

// Alarms returns the active alarms ordered by input number.
func (ts *Thermiagenesis) Alarms() ([]string, error) {
	inputs, err := ts.client.ReadDiscreteInputs(0, alarmInputs)
	if err != nil {
		return nil, err
	}

	ids := make([]int, 0, len(alarmsMap))
	for i := range alarmsMap {
		if i < len(inputs) && inputs[i] {
			ids = append(ids, i)
		}
	}
	sort.Ints(ids)

	errs := make([]string, 0, len(ids))
	for _, i := range ids {
		errs = append(errs, alarmsMap[i])
	}
	return errs, nil
}
