package domain

import (
	"strconv"
	"strings"
)

// SourceFeature is a mapped occurrence geometry with the attributes of its EO.
type SourceFeature struct {
	SFID      string
	EOID      string
	ELCode    string
	Track     string
	EstRA     string
	IndepSF   string
	USESA     string
	LastObs   string
	LastObsYr *int64
	EORank    string
}

// SourceFeatureFromRecord reads a source feature row.
func SourceFeatureFromRecord(r Record) SourceFeature {
	return SourceFeature{
		SFID:      r.Text(FieldSFID),
		EOID:      r.Text(FieldEOID),
		ELCode:    r.Text(FieldELCode),
		Track:     r.Text(FieldEOTrack),
		EstRA:     r.Text(FieldEstRA),
		IndepSF:   r.Text(FieldIndepSF),
		USESA:     r.Text(FieldUSESA),
		LastObs:   r.Text(FieldLastObs),
		LastObsYr: r.Int(FieldLastObsYr),
		EORank:    r.Text(FieldEORank),
	}
}

// WithEO copies the observation date and rank of the feature's EO onto it.
func (f SourceFeature) WithEO(eo EORecord) SourceFeature {
	f.LastObs = eo.LastObs
	f.LastObsYr = eo.LastObsYr
	f.EORank = eo.EORank
	return f
}

// RecencyRule admits features whose element code matches and whose last
// observation is recent enough.
type RecencyRule struct {
	Name string
	// Prefixes and Codes select element codes. A rule with neither matches
	// every code.
	Prefixes []string
	Codes    []string
	// ExcludePrefixes and ExcludeCodes remove codes the selection would match.
	ExcludePrefixes []string
	ExcludeCodes    []string
	// Statuses, when set, require a federal listing status.
	Statuses []string
	// MinYear is the earliest qualifying LASTOBS year. YearsBack, when set,
	// replaces it with the current year minus YearsBack. Zero for both
	// accepts any date.
	MinYear   int
	YearsBack int
}

// RecencyRules is the inclusion policy for occurrences counted toward a site.
var RecencyRules = []RecencyRule{
	{Name: "birds", Prefixes: []string{"AB"}, MinYear: 1990},
	{Name: "bird exception", Codes: []string{"ABNKC12060"}, MinYear: 1980},
	{Name: "plants and communities", Prefixes: []string{"P", "N", "C", "H", "G"}, YearsBack: 50},
	{Name: "listed plants", Prefixes: []string{"P", "N"}, Statuses: []string{"LE", "LT"}, MinYear: 1950},
	{Name: "fish amphibians reptiles", Prefixes: []string{"AF", "AA", "AR"}, MinYear: 1950},
	{Name: "reptile exception", Codes: []string{"ARADE03011"}},
	{Name: "mammals", Prefixes: []string{"AM", "OBAT"}, ExcludeCodes: []string{"AMACC01150"}, MinYear: 1970},
	{Name: "mammal exception", Codes: []string{"AMACC01100"}, MinYear: 1950},
	{Name: "mammal late exception", Codes: []string{"AMACC01150"}, MinYear: 1985},
	{
		Name:     "aquatic invertebrates",
		Prefixes: []string{"IC", "IIEPH", "IITRI", "IMBIV", "IMGAS", "IP", "IZ"},
		MinYear:  1950,
	},
	{
		Name:            "other invertebrates",
		Prefixes:        []string{"I"},
		ExcludePrefixes: []string{"IC", "IIEPH", "IITRI", "IMBIV", "IMGAS", "IP", "IZ"},
		MinYear:         1980,
	},
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func containsString(values []string, s string) bool {
	for _, v := range values {
		if v == s {
			return true
		}
	}
	return false
}

// Matches reports whether the rule admits the feature in currentYear.
func (r RecencyRule) Matches(f SourceFeature, currentYear int) bool {
	if len(r.Prefixes) > 0 || len(r.Codes) > 0 {
		if !hasAnyPrefix(f.ELCode, r.Prefixes) && !containsString(r.Codes, f.ELCode) {
			return false
		}
	}
	if hasAnyPrefix(f.ELCode, r.ExcludePrefixes) || containsString(r.ExcludeCodes, f.ELCode) {
		return false
	}
	if len(r.Statuses) > 0 && !containsString(r.Statuses, f.USESA) {
		return false
	}
	minYear := r.MinYear
	if r.YearsBack > 0 {
		minYear = currentYear - r.YearsBack
	}
	if minYear == 0 {
		return true
	}
	// LASTOBS is a date string that starts with the year.
	return f.LastObs >= strconv.Itoa(minYear)
}

// Qualifies reports whether a feature counts toward site scoring.
func Qualifies(f SourceFeature, currentYear int) bool {
	if f.Track != "Y" {
		return false
	}
	if f.LastObs == "NO DATE" || f.EORank == "X" || f.EORank == "X?" {
		return false
	}
	if f.EstRA == "Very Low" || f.EstRA == "Low" || f.IndepSF == "Y" {
		return false
	}
	if strings.TrimSpace(f.LastObs) == "" {
		return true
	}
	for _, rule := range RecencyRules {
		if rule.Matches(f, currentYear) {
			return true
		}
	}
	return false
}
