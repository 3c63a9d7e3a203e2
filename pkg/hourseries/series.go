package hourseries

import (
	"math"
	"sort"
	"time"
)

const Seconds = 3600

// Series maps hour aligned unix timestamps to a value. A missing key means no data for that hour.
type Series map[int64]float64

type Entry struct {
	Hour  int64
	Value float64
}

func (e Entry) Time() time.Time {
	return time.Unix(e.Hour, 0)
}

// Hour truncates a unix timestamp to the start of its hour.
func Hour(unix int64) int64 {
	return int64(math.Floor(float64(unix)/Seconds)) * Seconds
}

func HourOf(t time.Time) int64 {
	return Hour(t.Unix())
}

func New() Series {
	return make(Series)
}

// Set stores v at the hour containing unix.
func (s Series) Set(unix int64, v float64) {
	s[Hour(unix)] = v
}

func (s Series) Get(h int64) (float64, bool) {
	v, ok := s[h]
	return v, ok
}

// Value returns 0 for missing hours.
func (s Series) Value(h int64) float64 {
	return s[h]
}

func (s Series) Has(h int64) bool {
	_, ok := s[h]
	return ok
}

// Keys returns all hours in chronological order.
func (s Series) Keys() []int64 {
	keys := make([]int64, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func (s Series) Clone() Series {
	c := make(Series, len(s))
	for k, v := range s {
		c[k] = v
	}
	return c
}

// Fill sets v on every missing hour in [from, to).
func (s Series) Fill(from, to int64, v float64) {
	for h := Hour(from); h < to; h += Seconds {
		if _, ok := s[h]; !ok {
			s[h] = v
		}
	}
}

// Sum adds up the values in [from, to). Missing hours count as 0.
func (s Series) Sum(from, to int64) float64 {
	sum := 0.0
	for h := Hour(from); h < to; h += Seconds {
		sum += s[h]
	}
	return sum
}

// Ordered returns the entries with hours in [Hour(start), Hour(end)) sorted by value.
// Entries with equal values keep their chronological order. The result is empty when
// Hour(start) is not a key.
func (s Series) Ordered(start, end int64, desc bool) []Entry {
	return s.ordered(Hour(start), Hour(end), desc)
}

// OrderedFrom is Ordered up to the end of the series.
func (s Series) OrderedFrom(start int64, desc bool) []Entry {
	return s.ordered(Hour(start), math.MaxInt64, desc)
}

func (s Series) ordered(start, end int64, desc bool) []Entry {
	if _, ok := s[start]; !ok {
		return nil
	}
	entries := make([]Entry, 0, len(s))
	for _, h := range s.Keys() {
		if h < start || h >= end {
			continue
		}
		entries = append(entries, Entry{Hour: h, Value: s[h]})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if desc {
			return entries[i].Value > entries[j].Value
		}
		return entries[i].Value < entries[j].Value
	})
	return entries
}

// Window returns the values of consecutive hours starting at Hour(from). It stops at
// the first missing hour.
func (s Series) Window(from int64, hours int) []float64 {
	values := make([]float64, 0, hours)
	h := Hour(from)
	for i := 0; i < hours; i++ {
		v, ok := s[h]
		if !ok {
			break
		}
		values = append(values, v)
		h += Seconds
	}
	return values
}

func (s Series) Mean(from int64, hours int) float64 {
	values := s.Window(from, hours)
	if len(values) == 0 {
		return math.NaN()
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func (s Series) Min(from int64, hours int) float64 {
	values := s.Window(from, hours)
	if len(values) == 0 {
		return math.NaN()
	}
	lo := values[0]
	for _, v := range values[1:] {
		if v < lo {
			lo = v
		}
	}
	return lo
}

func (s Series) Max(from int64, hours int) float64 {
	values := s.Window(from, hours)
	if len(values) == 0 {
		return math.NaN()
	}
	hi := values[0]
	for _, v := range values[1:] {
		if v > hi {
			hi = v
		}
	}
	return hi
}

// Last returns the last hour of the run of consecutive keys starting at Hour(from), or -1.
func (s Series) Last(from int64) int64 {
	h := Hour(from)
	if _, ok := s[h]; !ok {
		return -1
	}
	for {
		if _, ok := s[h+Seconds]; !ok {
			return h
		}
		h += Seconds
	}
}
