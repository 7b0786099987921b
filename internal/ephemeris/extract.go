// Package ephemeris extracts physical data and state vectors from the
// plain-text reports served by the JPL Horizons API.
//
// Extraction is a fixed table of rules. Each rule scans the whole report for
// its first match and fills one field of the Record; a rule that finds
// nothing leaves its field absent without affecting the others.
package ephemeris

import (
	"regexp"
	"strconv"
	"strings"
)

// number matches a signed decimal with optional exponent, e.g. -1.234E+08.
// Trailing uncertainties such as "+-0.02" are not consumed.
const number = `([-+]?(?:\d+\.?\d*|\.\d+)(?:[eE][-+]?\d+)?)`

type rule struct {
	label    string
	pattern  *regexp.Regexp
	fallback *regexp.Regexp // tried only when pattern does not match
	apply    func(rec *Record, m []string)
}

func (r rule) find(report string) []string {
	if m := r.pattern.FindStringSubmatch(report); m != nil {
		return m
	}
	if r.fallback != nil {
		return r.fallback.FindStringSubmatch(report)
	}
	return nil
}

func pattern(expr string) *regexp.Regexp {
	return regexp.MustCompile(strings.ReplaceAll(expr, "{num}", number))
}

var rules = []rule{
	{
		// " Revised: April 12, 2021             Earth                           399"
		// The fallback accepts single-spaced headers after a "Mon DD, YYYY" date.
		label:    "name",
		pattern:  pattern(`(?m)Revised:[ \t]*\S.*?[ \t]{2,}(\S.*?)[ \t]+-?\d+[ \t]*\r?$`),
		fallback: pattern(`(?m)Revised:[ \t]*[A-Za-z]+\.?[ \t]+\d{1,2},[ \t]*\d{4}[ \t]+(\S.*?)[ \t]+-?\d+[ \t]*\r?$`),
		apply: func(rec *Record, m []string) {
			rec.Name = m[1]
		},
	},
	{
		label:   "radius_km",
		pattern: pattern(`(?i)Vol\.\s*Mean\s+Radius\s*,?\s*\(?km\)?\s*=\s*{num}`),
		apply: func(rec *Record, m []string) {
			rec.RadiusKm = parseFloat(m[1])
		},
	},
	{
		label:   "mass_10^24_kg",
		pattern: pattern(`(?i)Mass\s*,?\s*x\s*10\^24\s*\(?kg\)?\s*=\s*{num}`),
		apply: func(rec *Record, m []string) {
			rec.Mass1e24Kg = parseFloat(m[1])
		},
	},
	{
		// \b keeps "VX =" from matching as "X =".
		label:   "position_km",
		pattern: pattern(`\bX\s*=\s*{num}\s*Y\s*=\s*{num}\s*Z\s*=\s*{num}`),
		apply: func(rec *Record, m []string) {
			rec.PositionKm = Position{X: parseFloat(m[1]), Y: parseFloat(m[2]), Z: parseFloat(m[3])}
		},
	},
	{
		label:   "velocity_km_s",
		pattern: pattern(`\bVX\s*=\s*{num}\s*VY\s*=\s*{num}\s*VZ\s*=\s*{num}`),
		apply: func(rec *Record, m []string) {
			rec.VelocityKmS = Velocity{VX: parseFloat(m[1]), VY: parseFloat(m[2]), VZ: parseFloat(m[3])}
		},
	},
	{
		label:   "albedo",
		pattern: pattern(`(?i)Geometric\s+albedo\s*=\s*{num}`),
		apply: func(rec *Record, m []string) {
			rec.Albedo = parseFloat(m[1])
		},
	},
	{
		label:   "temperature_K",
		pattern: pattern(`(?i)Mean\s+surface\s+temp\s*\(?Ts\)?\s*,\s*K\s*=\s*{num}`),
		apply: func(rec *Record, m []string) {
			rec.TemperatureK = parseFloat(m[1])
		},
	},
}

// Extract pulls every known field out of report. It never fails: fields
// whose pattern does not match are left absent.
func Extract(report string) Record {
	rec := Record{Name: UnknownName}
	for _, r := range rules {
		if m := r.find(report); m != nil {
			r.apply(&rec, m)
		}
	}
	return rec
}

// Matched returns the labels of the rules that matched report, in rule order.
func Matched(report string) []string {
	var labels []string
	for _, r := range rules {
		if r.find(report) != nil {
			labels = append(labels, r.label)
		}
	}
	return labels
}

func parseFloat(s string) *float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}
