// Package projection turns sparse year-indexed climate samples into values
// for arbitrary years, and resolves scenario identifiers across the legacy
// and target naming taxonomies.
package projection

import "sort"

// Series is a sparse mapping from sample year to a scalar metric value.
// Sample years are distinct; no monotonicity of values is assumed.
type Series map[int]float64

// Record holds several named numeric metrics sampled in the same year.
type Record map[string]float64

// RecordSeries is a sparse mapping from sample year to a multi-metric record.
type RecordSeries map[int]Record

// Interpolate returns the value of s at the given year. Exact sample years
// are returned unchanged. Years outside the sampled range clamp to the
// nearest endpoint; years between samples are linearly interpolated.
// ok is false only when s has no samples.
func Interpolate(s Series, year int) (v float64, ok bool) {
	if len(s) == 0 {
		return 0, false
	}
	if v, hit := s[year]; hit {
		return v, true
	}

	years := sortedYears(s)
	if year < years[0] {
		return s[years[0]], true
	}
	if year > years[len(years)-1] {
		return s[years[len(years)-1]], true
	}

	// years is sorted and year is strictly inside the range, so a bounding
	// pair always exists.
	hi := sort.SearchInts(years, year)
	lo := hi - 1
	return lerp(years[lo], s[years[lo]], years[hi], s[years[hi]], year), true
}

// InterpolateRecord applies scalar interpolation independently to every
// metric present in either bounding sample. A metric absent from one
// endpoint contributes 0 for that endpoint rather than being an error.
// ok is false only when rs has no samples.
func InterpolateRecord(rs RecordSeries, year int) (Record, bool) {
	if len(rs) == 0 {
		return nil, false
	}
	if rec, hit := rs[year]; hit {
		return cloneRecord(rec), true
	}

	years := make([]int, 0, len(rs))
	for y := range rs {
		years = append(years, y)
	}
	sort.Ints(years)

	if year < years[0] {
		return cloneRecord(rs[years[0]]), true
	}
	if year > years[len(years)-1] {
		return cloneRecord(rs[years[len(years)-1]]), true
	}

	hi := sort.SearchInts(years, year)
	lo := hi - 1
	loRec, hiRec := rs[years[lo]], rs[years[hi]]

	out := make(Record, len(loRec))
	for name := range loRec {
		out[name] = lerp(years[lo], loRec[name], years[hi], hiRec[name], year)
	}
	for name := range hiRec {
		if _, seen := out[name]; !seen {
			out[name] = lerp(years[lo], 0, years[hi], hiRec[name], year)
		}
	}
	return out, true
}

// SampleYears returns the sorted sample years of s.
func SampleYears(s Series) []int {
	return sortedYears(s)
}

func sortedYears(s Series) []int {
	years := make([]int, 0, len(s))
	for y := range s {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}

func lerp(loYear int, loVal float64, hiYear int, hiVal float64, year int) float64 {
	return loVal + (hiVal-loVal)*float64(year-loYear)/float64(hiYear-loYear)
}

func cloneRecord(rec Record) Record {
	out := make(Record, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out
}
