package meter

import "time"

// Data is a reading of the grid meter. Power is positive when importing.
type Data struct {
	Id          string    `json:"id"`
	Model       string    `json:"model"`
	Time        time.Time `json:"time"`
	Current_W   float64   `json:"w"`
	Current_VLL float64   `json:"vll,omitempty"`
	Current_VLN float64   `json:"vln,omitempty"`
	Total_WH    float64   `json:"wh,omitempty"`
	L1_A        float64   `json:"l1_a,omitempty"`
	L2_A        float64   `json:"l2_a,omitempty"`
	L3_A        float64   `json:"l3_a,omitempty"`
}

// GridKW returns the net grid power with export positive.
func (d Data) GridKW() float64 {
	return -d.Current_W / 1000
}
