package domain

import (
	"strings"
	"time"
)

// Objective is what the submitter set out to do.
type Objective string

const (
	ObjectiveNew    Objective = "new"
	ObjectiveUpdate Objective = "update"
)

// ContentApproval is the reviewer's decision on a narrative section.
type ContentApproval string

const (
	ContentApprove ContentApproval = "approve"
	ContentUpdate  ContentApproval = "update"
)

// UpdateFlag records whether mapping or the species list needs changes.
type UpdateFlag string

const (
	FlagYes UpdateFlag = "yes"
	FlagNo  UpdateFlag = "no"
)

// PhotoState tracks whether a submitted photo still has to be migrated.
type PhotoState string

const (
	PhotoNew      PhotoState = "new"
	PhotoExisting PhotoState = "existing"
)

// SiteStatus is the review status of a site or site account.
type SiteStatus string

const (
	StatusReview   SiteStatus = "rev"
	StatusApproved SiteStatus = "app"
)

// parseEnum returns the matching value for a case-insensitive string, or ""
// when the field is missing or holds anything else.
func parseEnum[T ~string](s *string, values ...T) T {
	if s == nil {
		return ""
	}
	v := strings.ToLower(strings.TrimSpace(*s))
	for _, want := range values {
		if v == string(want) {
			return want
		}
	}
	return ""
}

// Submission is one survey form response.
type Submission struct {
	ObjectID    int64
	UniqueRowID *string
	JoinID      *string
	RelGUID     *string

	Objective        Objective
	UpdateNHA        bool
	SiteName         *string
	ProposedName     *string
	SiteDesc         *string
	TRSummary        *string
	SiteDescApproval ContentApproval
	ThreatApproval   ContentApproval
	MappingUpdate    UpdateFlag
	SpeciesUpdate    UpdateFlag
	MappingNotes     *string
	SpeciesNotes     *string

	WrittenUser  *string
	WrittenDate  *time.Time
	WrittenNotes *string
	ReviewUser   *string
	ReviewNotes  *string
	CreatedUser  *string

	LoadStatus       *string
	SiteReviewStatus *string
	MapReviewStatus  *string

	PhotoApproval PhotoState
	PhotoCredit   *string
	PhotoAffil    *string
	PhotoCaption  *string
}

// SubmissionFromRecord reads a form layer row.
func SubmissionFromRecord(r Record) Submission {
	updateNHA := r.String(FieldUpdateNHA)
	return Submission{
		ObjectID:    r.ObjectID,
		UniqueRowID: r.String(FieldUniqueRowID),
		JoinID:      r.String(FieldJoinID),
		RelGUID:     r.String(FieldFormRelGUID),

		Objective:        parseEnum(r.String(FieldObjective), ObjectiveNew, ObjectiveUpdate),
		UpdateNHA:        updateNHA != nil && strings.EqualFold(strings.TrimSpace(*updateNHA), "y"),
		SiteName:         r.String(FieldSiteName),
		ProposedName:     r.String(FieldProposedName),
		SiteDesc:         r.String(FieldSiteDesc),
		TRSummary:        r.String(FieldTRSummary),
		SiteDescApproval: parseEnum(r.String(FieldSiteDescApprove), ContentApprove, ContentUpdate),
		ThreatApproval:   parseEnum(r.String(FieldThreatApprove), ContentApprove, ContentUpdate),
		MappingUpdate:    parseEnum(r.String(FieldMappingUpdate), FlagYes, FlagNo),
		SpeciesUpdate:    parseEnum(r.String(FieldSpeciesUpdate), FlagYes, FlagNo),
		MappingNotes:     r.String(FieldMappingNotes),
		SpeciesNotes:     r.String(FieldSpeciesNotes),

		WrittenUser:  r.String(FieldWrittenUser),
		WrittenDate:  r.Time(FieldWrittenDate),
		WrittenNotes: r.String(FieldWrittenNotes),
		ReviewUser:   r.String(FieldReviewUser),
		ReviewNotes:  r.String(FieldReviewNotes),
		CreatedUser:  r.String(FieldCreatedUser),

		LoadStatus:       r.String(FieldLoadStatus),
		SiteReviewStatus: r.String(FieldSiteReviewStatus),
		MapReviewStatus:  r.String(FieldMapReviewStatus),

		PhotoApproval: parseEnum(r.String(FieldPhotoApprove), PhotoNew, PhotoExisting),
		PhotoCredit:   r.String(FieldPhotoCredit),
		PhotoAffil:    r.String(FieldPhotoAffil),
		PhotoCaption:  r.String(FieldPhotoCaption),
	}
}

// IndexByRowID maps each submission's unique row id to the submission. Child
// tables of the form reference their parent through this id.
func IndexByRowID(subs []Submission) map[string]Submission {
	out := make(map[string]Submission, len(subs))
	for _, s := range subs {
		if s.UniqueRowID == nil {
			continue
		}
		if _, ok := out[*s.UniqueRowID]; !ok {
			out[*s.UniqueRowID] = s
		}
	}
	return out
}

func blank(s *string) bool {
	return s == nil || strings.TrimSpace(*s) == ""
}

func orEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
