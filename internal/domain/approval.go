package domain

// NarrativeIntent is what a submission asks for the site account narrative.
type NarrativeIntent int

const (
	NarrativeNone NarrativeIntent = iota
	// NarrativeRevise inserts a new site account revision awaiting review.
	NarrativeRevise
	// NarrativeApprove approves the current site account revision.
	NarrativeApprove
	// NarrativeIncomplete is an update whose approval answers are not
	// actionable yet. It is left unmarked so a completed form is picked up.
	NarrativeIncomplete
)

func (n NarrativeIntent) String() string {
	switch n {
	case NarrativeRevise:
		return "revise"
	case NarrativeApprove:
		return "approve"
	case NarrativeIncomplete:
		return "incomplete"
	default:
		return "none"
	}
}

// MappingIntent is what a submission asks for the site mapping.
type MappingIntent int

const (
	MappingNone MappingIntent = iota
	MappingApprove
	MappingFlagForReview
)

func (m MappingIntent) String() string {
	switch m {
	case MappingApprove:
		return "approve"
	case MappingFlagForReview:
		return "flag_for_review"
	default:
		return "none"
	}
}

// ClassifyNarrative derives the narrative intent from the form answers alone.
func ClassifyNarrative(s Submission) NarrativeIntent {
	switch s.Objective {
	case ObjectiveNew:
		if s.UpdateNHA {
			return NarrativeRevise
		}
		return NarrativeNone
	case ObjectiveUpdate:
		if s.SiteDescApproval == ContentUpdate || s.ThreatApproval == ContentUpdate {
			return NarrativeRevise
		}
		if s.SiteDescApproval == ContentApprove && s.ThreatApproval == ContentApprove {
			return NarrativeApprove
		}
		return NarrativeIncomplete
	default:
		return NarrativeNone
	}
}

// ClassifyMapping derives the mapping intent from the form answers alone.
func ClassifyMapping(s Submission) MappingIntent {
	if s.MappingUpdate == FlagYes || s.SpeciesUpdate == FlagYes {
		return MappingFlagForReview
	}
	if s.MappingUpdate == FlagNo && s.SpeciesUpdate == FlagNo {
		return MappingApprove
	}
	return MappingNone
}

// PendingNarrative returns the narrative intent still to be applied, or
// NarrativeNone when the submission's marker for that intent is already set.
func PendingNarrative(s Submission) NarrativeIntent {
	intent := ClassifyNarrative(s)
	switch intent {
	case NarrativeRevise:
		if s.LoadStatus != nil {
			return NarrativeNone
		}
	case NarrativeApprove:
		if s.SiteReviewStatus != nil {
			return NarrativeNone
		}
	}
	return intent
}

// PendingMapping returns the mapping intent still to be applied.
func PendingMapping(s Submission) MappingIntent {
	if s.MapReviewStatus != nil {
		return MappingNone
	}
	return ClassifyMapping(s)
}

// NarrativeApprovalPatch is applied to the current site account when its
// narrative is approved.
func NarrativeApprovalPatch(s Submission) Patch {
	return Patch{
		FieldReviewUser:  Normalize(s.ReviewUser),
		FieldReviewDate:  Normalize(s.WrittenDate),
		FieldReviewNotes: Normalize(s.ReviewNotes),
		FieldStatus:      string(StatusApproved),
	}
}

// MappingPatch is applied to the site record for a mapping intent.
func MappingPatch(s Submission, intent MappingIntent) Patch {
	switch intent {
	case MappingApprove:
		return Patch{
			FieldStatus:             string(StatusApproved),
			FieldStatusChangeDate:   Normalize(s.WrittenDate),
			FieldStatusChangeReason: ReasonMappingApproved,
			FieldReviewUser:         Normalize(s.CreatedUser),
			FieldReviewDate:         Normalize(s.WrittenDate),
		}
	case MappingFlagForReview:
		return Patch{
			FieldStatus:             string(StatusReview),
			FieldStatusChangeDate:   Normalize(s.WrittenDate),
			FieldStatusChangeReason: ReasonNeedsReview,
			FieldReviewUser:         Normalize(s.CreatedUser),
			FieldReviewDate:         Normalize(s.WrittenDate),
			FieldReviewNotes:        orEmpty(s.MappingNotes) + " " + orEmpty(s.SpeciesNotes),
		}
	default:
		return nil
	}
}
