package domain

import "time"

// SiteAccount is one narrative revision of a site.
type SiteAccount struct {
	ObjectID     int64
	GlobalID     *string
	SiteName     *string
	SiteDesc     *string
	TRSummary    *string
	WrittenUser  *string
	WrittenDate  *time.Time
	WrittenNotes *string
	ReviewUser   *string
	ReviewDate   *time.Time
	ReviewNotes  *string
	JoinID       *string
	RelGUID      *string
	Status       SiteStatus
	CreatedDate  *time.Time
}

// SiteAccountFromRecord reads a site account row.
func SiteAccountFromRecord(r Record) SiteAccount {
	return SiteAccount{
		ObjectID:     r.ObjectID,
		GlobalID:     r.String(FieldGlobalID),
		SiteName:     r.String(FieldSiteName),
		SiteDesc:     r.String(FieldSiteDesc),
		TRSummary:    r.String(FieldTRSummary),
		WrittenUser:  r.String(FieldWrittenUser),
		WrittenDate:  r.Time(FieldWrittenDate),
		WrittenNotes: r.String(FieldWrittenNotes),
		ReviewUser:   r.String(FieldReviewUser),
		ReviewDate:   r.Time(FieldReviewDate),
		ReviewNotes:  r.String(FieldReviewNotes),
		JoinID:       r.String(FieldJoinID),
		RelGUID:      r.String(FieldRelGUID),
		Status:       parseEnum(r.String(FieldStatus), StatusReview, StatusApproved),
		CreatedDate:  r.Time(FieldCreatedDate),
	}
}

// Tuple returns the attributes compared when detecting an already loaded revision.
func (a SiteAccount) Tuple() Tuple {
	return NewTuple(
		a.SiteName,
		a.SiteDesc,
		a.TRSummary,
		a.WrittenUser,
		a.WrittenDate,
		a.WrittenNotes,
		a.ReviewUser,
		a.ReviewDate,
		a.ReviewNotes,
		a.JoinID,
		a.RelGUID,
	)
}

// Fields returns the attributes written when the revision is inserted.
func (a SiteAccount) Fields() map[string]any {
	return map[string]any{
		FieldSiteName:     Normalize(a.SiteName),
		FieldSiteDesc:     Normalize(a.SiteDesc),
		FieldTRSummary:    Normalize(a.TRSummary),
		FieldWrittenUser:  Normalize(a.WrittenUser),
		FieldWrittenDate:  Normalize(a.WrittenDate),
		FieldWrittenNotes: Normalize(a.WrittenNotes),
		FieldReviewUser:   Normalize(a.ReviewUser),
		FieldReviewDate:   Normalize(a.ReviewDate),
		FieldReviewNotes:  Normalize(a.ReviewNotes),
		FieldJoinID:       Normalize(a.JoinID),
		FieldRelGUID:      Normalize(a.RelGUID),
		FieldStatus:       string(a.Status),
	}
}

// CurrentAccounts returns the most recently created revision per join key.
func CurrentAccounts(rows []Record) map[string]SiteAccount {
	latest := LatestRecords(rows, FieldJoinID, FieldCreatedDate)
	out := make(map[string]SiteAccount, len(latest))
	for _, r := range latest {
		a := SiteAccountFromRecord(r)
		out[*a.JoinID] = a
	}
	return out
}

// BuildRevision builds the site account revision a submission proposes.
// New sites fall back to the proposed name; blank narrative sections carry
// the current revision's text forward.
func BuildRevision(s Submission, current map[string]SiteAccount) SiteAccount {
	rev := SiteAccount{
		SiteName:     s.SiteName,
		SiteDesc:     s.SiteDesc,
		TRSummary:    s.TRSummary,
		WrittenUser:  s.WrittenUser,
		WrittenDate:  s.WrittenDate,
		WrittenNotes: s.WrittenNotes,
		ReviewUser:   s.ReviewUser,
		ReviewDate:   s.WrittenDate,
		ReviewNotes:  s.ReviewNotes,
		JoinID:       s.JoinID,
		RelGUID:      s.RelGUID,
		Status:       StatusReview,
	}
	if blank(rev.SiteName) && s.Objective == ObjectiveNew {
		rev.SiteName = s.ProposedName
	}
	if s.JoinID != nil {
		if cur, ok := current[*s.JoinID]; ok {
			if blank(rev.SiteDesc) {
				rev.SiteDesc = cur.SiteDesc
			}
			if blank(rev.TRSummary) {
				rev.TRSummary = cur.TRSummary
			}
		}
	}
	return rev
}
