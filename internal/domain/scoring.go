package domain

import (
	"slices"
	"strings"
	"time"
)

// Tier is the botany priority bucket of a site.
type Tier string

const (
	Tier1   Tier = "Tier 1"
	Tier2   Tier = "Tier 2"
	Tier2_5 Tier = "Tier 2.5"
	Tier3   Tier = "Tier 3"
)

// tier1ScoreThreshold is the plant score above which a site is Tier 1
// regardless of how many imperiled species it holds.
const tier1ScoreThreshold = 350

// highGRankExclusions are not counted toward the high global rank statistic.
var highGRankExclusions = map[string]bool{
	"Panax quinquefolius":     true,
	"Hydrastis canadensis":    true,
	"Crataegus pennsylvanica": true,
}

var (
	imperiledSRanks = map[string]bool{"S1": true, "S2": true, "S3": true}
	highGRanks      = map[string]bool{"G1": true, "G2": true, "G3": true}
)

// EORecord is the representative record of an element occurrence.
type EORecord struct {
	EOID      string
	ELCode    string
	LastObs   string
	LastObsYr *int64
	EORank    string
	SurveyYr  *int64
}

// EORecordFromRecord reads an EO representation row.
func EORecordFromRecord(r Record) EORecord {
	return EORecord{
		EOID:      r.Text(FieldEOID),
		ELCode:    r.Text(FieldELCode),
		LastObs:   r.Text(FieldLastObs),
		LastObsYr: r.Int(FieldLastObsYr),
		EORank:    r.Text(FieldEORank),
		SurveyYr:  r.Int(FieldSurveyYr),
	}
}

// SpeciesEntry is one occurrence on a site's species list.
type SpeciesEntry struct {
	JoinID   string
	EOID     string
	SName    string
	SComName string
	ELSubID  string
	GRank    string
	SRank    string
	EORank   string
	Exclude  string
}

// SpeciesEntryFromRecord reads a species list row.
func SpeciesEntryFromRecord(r Record) SpeciesEntry {
	return SpeciesEntry{
		JoinID:   r.Text(FieldJoinID),
		EOID:     r.Text(FieldEOID),
		SName:    r.Text(FieldSName),
		SComName: r.Text(FieldSComName),
		ELSubID:  r.Text(FieldELSubID),
		GRank:    r.Text(FieldGRank),
		SRank:    r.Text(FieldSRank),
		EORank:   r.Text(FieldEORank),
		Exclude:  r.Text(FieldExclude),
	}
}

// Visit is a field survey of a source feature.
type Visit struct {
	SFID    string
	VisitYr *int64
}

// VisitFromRecord reads a visit row.
func VisitFromRecord(r Record) Visit {
	return Visit{SFID: r.Text(FieldSFID), VisitYr: r.Int(FieldVisitYr)}
}

// SiteOccurrence pairs a site with a qualifying source feature inside it.
type SiteOccurrence struct {
	JoinID string
	SFID   string
}

// RankTables are the lookups that turn rank codes into scores.
type RankTables struct {
	GRank     map[string]string
	SRank     map[string]string
	Matrix    map[string]float64
	EOWeights map[string]float64
}

// RankTablesFromRecords builds the lookups from their reference tables.
func RankTablesFromRecords(grank, srank, matrix, weights []Record) RankTables {
	t := RankTables{
		GRank:     make(map[string]string, len(grank)),
		SRank:     make(map[string]string, len(srank)),
		Matrix:    make(map[string]float64, len(matrix)),
		EOWeights: make(map[string]float64, len(weights)),
	}
	for _, r := range grank {
		if rounded := r.String(FieldGRankRounded); rounded != nil {
			t.GRank[r.Text(FieldGRankCode)] = *rounded
		}
	}
	for _, r := range srank {
		if rounded := r.String(FieldSRankRounded); rounded != nil {
			t.SRank[r.Text(FieldSRankCode)] = *rounded
		}
	}
	for _, r := range matrix {
		if score := r.Float(FieldScore); score != nil {
			t.Matrix[r.Text(FieldCombinedRank)] = *score
		}
	}
	for _, r := range weights {
		if w := r.Float(FieldWeight); w != nil {
			t.EOWeights[r.Text(FieldEORankCode)] = *w
		}
	}
	return t
}

// WeightedScore returns the matrix score of the combined rounded ranks times
// the EO rank weight. Any missing lookup contributes zero.
func (t RankTables) WeightedScore(grank, srank, eorank string) float64 {
	g, gok := t.GRank[grank]
	s, sok := t.SRank[srank]
	if !gok || !sok {
		return 0
	}
	return t.Matrix[g+s] * t.EOWeights[eorank]
}

// ScoringInput is everything the scoring engine reads.
type ScoringInput struct {
	Species []SpeciesEntry
	EOs     map[string]EORecord
	Ranks   RankTables
	// Features are the qualifying source features by SF_ID.
	Features      map[string]SourceFeature
	Intersections []SiteOccurrence
	Visits        []Visit
	DrawnDates    map[string]time.Time
	Protected     map[string]float64
}

// PriorityScore is the per-site output of the scoring engine.
type PriorityScore struct {
	JoinID           string   `json:"nha_join_id"`
	SiteScore        float64  `json:"nha_site_score"`
	ScorePercentile  float64  `json:"nha_score_percentile"`
	CountSpecies     int      `json:"count_species"`
	CountEOs         int      `json:"count_EOs"`
	VisitsBefore     int      `json:"visits_before"`
	VisitsAfter      int      `json:"visits_after"`
	MinVisitYr       *float64 `json:"min_visit_yr"`
	MeanVisitYr      *float64 `json:"mean_visit_yr"`
	MedVisitYr       *float64 `json:"med_visit_yr"`
	MaxVisitYr       *float64 `json:"max_visit_yr"`
	PercentProtected float64  `json:"percent_protected"`

	BotanyScore         float64  `json:"BOTANY_weighted_score"`
	BotanyPercentile    *float64 `json:"BOTANY_score_percentile"`
	BotanyCountSpecies  int      `json:"BOTANY_count_species"`
	BotanyCountEOs      int      `json:"BOTANY_count_EOs"`
	BotanyS123Species   int      `json:"BOTANY_count_S1S2S3_species"`
	BotanyS123EOs       int      `json:"BOTANY_count_S1S2S3_EOs"`
	BotanyMinLastObsYr  *float64 `json:"BOTANY_min_lastobs_yr"`
	BotanyMeanLastObsYr *float64 `json:"BOTANY_mean_lastobs_yr"`
	BotanyMedLastObsYr  *float64 `json:"BOTANY_med_lastobs_yr"`
	BotanyMaxLastObsYr  *float64 `json:"BOTANY_max_lastobs_yr"`
	BotanyHighGRank     int      `json:"BOTANY_high_grank"`
	BotanyTier          *Tier    `json:"BOTANY_tier"`

	// Left empty for manual triage.
	UpdatePriority *string `json:"update_priority"`
	UpdateType     *string `json:"update_type"`
	TaxaTarget     *string `json:"taxa_target"`
}

// ScoreColumns is the export column order.
var ScoreColumns = []string{
	"nha_join_id", "nha_site_score", "nha_score_percentile", "count_species", "count_EOs",
	"visits_before", "visits_after", "min_visit_yr", "mean_visit_yr", "med_visit_yr", "max_visit_yr",
	"percent_protected",
	"BOTANY_weighted_score", "BOTANY_score_percentile", "BOTANY_count_species", "BOTANY_count_EOs",
	"BOTANY_count_S1S2S3_species", "BOTANY_count_S1S2S3_EOs",
	"BOTANY_min_lastobs_yr", "BOTANY_mean_lastobs_yr", "BOTANY_med_lastobs_yr", "BOTANY_max_lastobs_yr",
	"BOTANY_high_grank", "BOTANY_tier",
	"update_priority", "update_type", "taxa_target",
}

// Values returns the row in ScoreColumns order. Missing values are nil.
func (p PriorityScore) Values() []any {
	var tier any
	if p.BotanyTier != nil {
		tier = string(*p.BotanyTier)
	}
	return []any{
		p.JoinID, p.SiteScore, p.ScorePercentile, p.CountSpecies, p.CountEOs,
		p.VisitsBefore, p.VisitsAfter, Normalize(p.MinVisitYr), Normalize(p.MeanVisitYr),
		Normalize(p.MedVisitYr), Normalize(p.MaxVisitYr),
		p.PercentProtected,
		p.BotanyScore, Normalize(p.BotanyPercentile), p.BotanyCountSpecies, p.BotanyCountEOs,
		p.BotanyS123Species, p.BotanyS123EOs,
		Normalize(p.BotanyMinLastObsYr), Normalize(p.BotanyMeanLastObsYr),
		Normalize(p.BotanyMedLastObsYr), Normalize(p.BotanyMaxLastObsYr),
		p.BotanyHighGRank, tier,
		Normalize(p.UpdatePriority), Normalize(p.UpdateType), Normalize(p.TaxaTarget),
	}
}

// AssignTier buckets a site by its count of S1-S3 plant species and its plant
// score. Sites without plant occurrences get no tier.
func AssignTier(imperiledSpecies int, plantScore *float64) *Tier {
	var t Tier
	switch {
	case imperiledSpecies > 6 || (plantScore != nil && *plantScore > tier1ScoreThreshold):
		t = Tier1
	case imperiledSpecies > 2 && imperiledSpecies <= 6:
		t = Tier2
	case imperiledSpecies == 1:
		t = Tier2_5
	case plantScore == nil:
		return nil
	default:
		t = Tier3
	}
	return &t
}

// PercentileRanks returns, for each value, its minimum rank among all values
// divided by the number of values. Tied values share the lowest rank.
func PercentileRanks(values []float64) []float64 {
	n := float64(len(values))
	out := make([]float64, len(values))
	for i, v := range values {
		below := 0
		for _, w := range values {
			if w < v {
				below++
			}
		}
		out[i] = float64(below+1) / n
	}
	return out
}

type yearStats struct {
	min, mean, median, max *float64
}

func summarize(years []float64) yearStats {
	if len(years) == 0 {
		return yearStats{}
	}
	sorted := slices.Clone(years)
	slices.Sort(sorted)
	var sum float64
	for _, y := range sorted {
		sum += y
	}
	n := len(sorted)
	lo, hi := sorted[0], sorted[n-1]
	mean := sum / float64(n)
	median := sorted[n/2]
	if n%2 == 0 {
		median = (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return yearStats{min: &lo, mean: &mean, median: &median, max: &hi}
}

type stringSet map[string]struct{}

func (s stringSet) add(v string) {
	if v != "" {
		s[v] = struct{}{}
	}
}

type siteTally struct {
	score        float64
	species      stringSet
	eos          stringSet
	hasPlants    bool
	plantScore   float64
	plantSpecies stringSet
	plantEOs     stringSet
	s123Species  stringSet
	s123EOs      stringSet
	highGRank    stringSet
	lastObsYears []float64
}

func newSiteTally() *siteTally {
	return &siteTally{
		species:      stringSet{},
		eos:          stringSet{},
		plantSpecies: stringSet{},
		plantEOs:     stringSet{},
		s123Species:  stringSet{},
		s123EOs:      stringSet{},
		highGRank:    stringSet{},
	}
}

type visitTally struct {
	before, after int
	years         []float64
}

// Score computes the priority record of every site on the species list,
// ordered by join key.
func Score(in ScoringInput) []PriorityScore {
	sites := map[string]*siteTally{}
	seen := map[[2]string]bool{}
	for _, sp := range in.Species {
		if sp.Exclude != "N" || sp.JoinID == "" {
			continue
		}
		key := [2]string{sp.JoinID, sp.EOID}
		if seen[key] {
			continue
		}
		seen[key] = true

		site, ok := sites[sp.JoinID]
		if !ok {
			site = newSiteTally()
			sites[sp.JoinID] = site
		}
		weighted := in.Ranks.WeightedScore(sp.GRank, sp.SRank, sp.EORank)
		site.score += weighted
		site.species.add(sp.ELSubID)
		site.eos.add(sp.EOID)

		eo, ok := in.EOs[sp.EOID]
		if !ok || !strings.HasPrefix(eo.ELCode, "P") {
			continue
		}
		site.hasPlants = true
		site.plantScore += weighted
		site.plantSpecies.add(sp.ELSubID)
		site.plantEOs.add(sp.EOID)
		if imperiledSRanks[in.Ranks.SRank[sp.SRank]] {
			site.s123Species.add(sp.ELSubID)
			site.s123EOs.add(sp.EOID)
		}
		if highGRanks[in.Ranks.GRank[sp.GRank]] && !highGRankExclusions[sp.SName] {
			site.highGRank.add(sp.ELSubID)
		}
		if eo.LastObsYr != nil {
			site.lastObsYears = append(site.lastObsYears, float64(*eo.LastObsYr))
		}
	}

	visits := tallyVisits(in)

	keys := make([]string, 0, len(sites))
	for k := range sites {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	out := make([]PriorityScore, 0, len(keys))
	siteScores := make([]float64, 0, len(keys))
	var plantScores []float64
	var plantIdx []int
	for i, k := range keys {
		site := sites[k]
		p := PriorityScore{
			JoinID:             k,
			SiteScore:          site.score,
			CountSpecies:       len(site.species),
			CountEOs:           len(site.eos),
			PercentProtected:   in.Protected[k],
			BotanyScore:        site.plantScore,
			BotanyCountSpecies: len(site.plantSpecies),
			BotanyCountEOs:     len(site.plantEOs),
			BotanyS123Species:  len(site.s123Species),
			BotanyS123EOs:      len(site.s123EOs),
			BotanyHighGRank:    len(site.highGRank),
		}
		if v, ok := visits[k]; ok {
			p.VisitsBefore = v.before
			p.VisitsAfter = v.after
			stats := summarize(v.years)
			p.MinVisitYr, p.MeanVisitYr, p.MedVisitYr, p.MaxVisitYr = stats.min, stats.mean, stats.median, stats.max
		}
		var plantScore *float64
		if site.hasPlants {
			ps := site.plantScore
			plantScore = &ps
			plantScores = append(plantScores, ps)
			plantIdx = append(plantIdx, i)
			stats := summarize(site.lastObsYears)
			p.BotanyMinLastObsYr, p.BotanyMeanLastObsYr = stats.min, stats.mean
			p.BotanyMedLastObsYr, p.BotanyMaxLastObsYr = stats.median, stats.max
		}
		p.BotanyTier = AssignTier(p.BotanyS123Species, plantScore)
		out = append(out, p)
		siteScores = append(siteScores, site.score)
	}

	for i, pct := range PercentileRanks(siteScores) {
		out[i].ScorePercentile = pct
	}
	for j, pct := range PercentileRanks(plantScores) {
		v := pct
		out[plantIdx[j]].BotanyPercentile = &v
	}
	return out
}

// tallyVisits counts survey visits per site. A qualifying feature with no
// recorded visit counts its EO survey year instead; years of zero are dropped.
// A visit is after the site was drawn when January 1 of its year falls
// strictly after the drawn date. Visits of unknown year count as before and
// are left out of the year statistics.
func tallyVisits(in ScoringInput) map[string]*visitTally {
	bySF := map[string][]*int64{}
	for _, v := range in.Visits {
		bySF[v.SFID] = append(bySF[v.SFID], v.VisitYr)
	}
	out := map[string]*visitTally{}
	for _, occ := range in.Intersections {
		years, ok := bySF[occ.SFID]
		if !ok {
			years = []*int64{nil}
		}
		for _, y := range years {
			if y == nil {
				y = surveyYear(in, occ.SFID)
			}
			if y != nil && *y == 0 {
				continue
			}
			t, ok := out[occ.JoinID]
			if !ok {
				t = &visitTally{}
				out[occ.JoinID] = t
			}
			if y == nil {
				t.before++
				continue
			}
			visited := time.Date(int(*y), time.January, 1, 0, 0, 0, 0, time.UTC)
			if drawn, ok := in.DrawnDates[occ.JoinID]; ok && visited.After(drawn) {
				t.after++
			} else {
				t.before++
			}
			t.years = append(t.years, float64(*y))
		}
	}
	return out
}

func surveyYear(in ScoringInput, sfID string) *int64 {
	f, ok := in.Features[sfID]
	if !ok {
		return nil
	}
	eo, ok := in.EOs[f.EOID]
	if !ok {
		return nil
	}
	return eo.SurveyYr
}
