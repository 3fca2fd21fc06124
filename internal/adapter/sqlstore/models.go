package sqlstore

import "time"

// Table names.
const (
	TableSites         = "nha_core"
	TableSiteAccounts  = "site_account"
	TableBullets       = "tr_bullets"
	TableReferences    = "nha_references"
	TableMirror        = "zotero_mirror"
	TableSpecies       = "nha_species"
	TableEOs           = "eo_ptreps"
	TableSourcePoints  = "eo_sourcept"
	TableSourceLines   = "eo_sourceln"
	TableSourcePolys   = "eo_sourcepy"
	TableVisits        = "visits"
	TableGRank         = "grank_lookup"
	TableSRank         = "srank_lookup"
	TableRankMatrix    = "rank_matrix"
	TableEOWeights     = "eorank_weights"
	TableIntersections = "site_intersections"
	TableProtected     = "protected_share"
	TableSurveys       = "form_survey"
	TableSiteRefs      = "form_site_refs"
	TableThreatRefs    = "form_threat_refs"
	TableFormBullets   = "form_bullets"

	tableAttachments = "attachments"
)

// Site is a Natural Heritage Area core record.
type Site struct {
	ObjectID           int64      `gorm:"column:objectid;primaryKey;autoIncrement"`
	GlobalID           string     `gorm:"column:globalid;size:38;uniqueIndex"`
	JoinID             *string    `gorm:"column:nha_join_id;index"`
	SiteName           *string    `gorm:"column:site_name"`
	Status             *string    `gorm:"column:status;size:8"`
	StatusChangeDate   *time.Time `gorm:"column:status_change_date"`
	StatusChangeReason *string    `gorm:"column:status_change_reason"`
	ReviewUser         *string    `gorm:"column:review_user"`
	ReviewDate         *time.Time `gorm:"column:review_date"`
	ReviewNotes        *string    `gorm:"column:review_notes"`
	PhotoCredit        *string    `gorm:"column:photo_credit"`
	PhotoAffil         *string    `gorm:"column:photo_affil"`
	PhotoCaption       *string    `gorm:"column:photo_caption"`
	DrawnDate          *time.Time `gorm:"column:drawn_date"`
	County             *string    `gorm:"column:county_nam;index"`
	MapID              *int64     `gorm:"column:map_id"`
}

func (Site) TableName() string { return TableSites }

// SiteAccount is a narrative revision of a site.
type SiteAccount struct {
	ObjectID     int64      `gorm:"column:objectid;primaryKey;autoIncrement"`
	GlobalID     string     `gorm:"column:globalid;size:38;uniqueIndex"`
	SiteName     *string    `gorm:"column:site_name"`
	SiteDesc     *string    `gorm:"column:site_desc"`
	TRSummary    *string    `gorm:"column:tr_summary"`
	WrittenUser  *string    `gorm:"column:written_user"`
	WrittenDate  *time.Time `gorm:"column:written_date"`
	WrittenNotes *string    `gorm:"column:written_notes"`
	ReviewUser   *string    `gorm:"column:review_user"`
	ReviewDate   *time.Time `gorm:"column:review_date"`
	ReviewNotes  *string    `gorm:"column:review_notes"`
	JoinID       *string    `gorm:"column:nha_join_id;index"`
	RelGUID      *string    `gorm:"column:nha_rel_guid"`
	Status       *string    `gorm:"column:status;size:8"`
	CreatedDate  *time.Time `gorm:"column:created_date"`
}

func (SiteAccount) TableName() string { return TableSiteAccounts }

// Bullet is a threat or recommendation bullet of a site.
type Bullet struct {
	ObjectID       int64      `gorm:"column:objectid;primaryKey;autoIncrement"`
	GlobalID       string     `gorm:"column:globalid;size:38;uniqueIndex"`
	SiteName       *string    `gorm:"column:site_name"`
	TargetCategory *string    `gorm:"column:target_category"`
	ThreatDesc     *string    `gorm:"column:threat_desc"`
	ThreatText     *string    `gorm:"column:threat_text"`
	AddedUser      *string    `gorm:"column:added_user"`
	AddedDate      *time.Time `gorm:"column:added_date"`
	JoinID         *string    `gorm:"column:nha_join_id;index"`
	RelGUID        *string    `gorm:"column:nha_rel_guid"`
	AddedNotes     *string    `gorm:"column:added_notes"`
}

func (Bullet) TableName() string { return TableBullets }

// Reference is a citation attached to a site's narrative.
type Reference struct {
	ObjectID        int64   `gorm:"column:objectid;primaryKey;autoIncrement"`
	GlobalID        string  `gorm:"column:globalid;size:38;uniqueIndex"`
	ZoteroKey       *string `gorm:"column:zotero_key;index"`
	SourceID        *string `gorm:"column:source_id;index"`
	Title           *string `gorm:"column:title"`
	Authors         *string `gorm:"column:authors"`
	PublicationYr   *string `gorm:"column:publication_yr"`
	SourceField     *string `gorm:"column:source_field"`
	SourceTable     *string `gorm:"column:source_table"`
	SiteAccountGUID *string `gorm:"column:site_account_guid"`
	FullCite        *string `gorm:"column:full_cite"`
}

func (Reference) TableName() string { return TableReferences }

// MirrorItem is one normalized item of the bibliographic library.
type MirrorItem struct {
	ObjectID         int64   `gorm:"column:objectid;primaryKey;autoIncrement"`
	Key              *string `gorm:"column:key;index"`
	ItemType         *string `gorm:"column:item_type"`
	Title            *string `gorm:"column:title"`
	CreatorSummary   *string `gorm:"column:creator_summary"`
	Authors          *string `gorm:"column:authors"`
	PublicationYear  *string `gorm:"column:publication_year"`
	PublicationTitle *string `gorm:"column:publication_title"`
	Volume           *string `gorm:"column:volume"`
	Issue            *string `gorm:"column:issue"`
	Pages            *string `gorm:"column:pages"`
	DataURL          *string `gorm:"column:data_url"`
	AbstractNote     *string `gorm:"column:abstract_note"`
	FullCitation     *string `gorm:"column:full_citation"`
}

func (MirrorItem) TableName() string { return TableMirror }

// SpeciesEntry is one occurrence on a site's species list.
type SpeciesEntry struct {
	ObjectID int64   `gorm:"column:objectid;primaryKey;autoIncrement"`
	JoinID   *string `gorm:"column:nha_join_id;index"`
	EOID     *string `gorm:"column:eo_id"`
	SName    *string `gorm:"column:sname"`
	SComName *string `gorm:"column:scomname"`
	ELSubID  *string `gorm:"column:elsubid"`
	GRank    *string `gorm:"column:grank"`
	SRank    *string `gorm:"column:srank"`
	EORank   *string `gorm:"column:eorank"`
	Exclude  *string `gorm:"column:exclude;size:1"`
}

func (SpeciesEntry) TableName() string { return TableSpecies }

// ElementOccurrence is the representation row of an EO.
type ElementOccurrence struct {
	ObjectID  int64   `gorm:"column:objectid;primaryKey;autoIncrement"`
	EOID      *string `gorm:"column:eo_id;index"`
	ELCode    *string `gorm:"column:elcode"`
	LastObs   *string `gorm:"column:lastobs"`
	LastObsYr *int64  `gorm:"column:lastobs_yr"`
	EORank    *string `gorm:"column:eorank"`
	SurveyYr  *int64  `gorm:"column:survey_yr"`
}

func (ElementOccurrence) TableName() string { return TableEOs }

// SourceFeature holds the attributes shared by the point, line and polygon
// source feature tables.
type SourceFeature struct {
	ObjectID  int64   `gorm:"column:objectid;primaryKey;autoIncrement"`
	SFID      *string `gorm:"column:sf_id;index"`
	EOID      *string `gorm:"column:eo_id"`
	ELCode    *string `gorm:"column:elcode"`
	Track     *string `gorm:"column:eo_track;size:1"`
	EstRA     *string `gorm:"column:est_ra"`
	IndepSF   *string `gorm:"column:indep_sf"`
	USESA     *string `gorm:"column:usesa"`
	LastObs   *string `gorm:"column:lastobs"`
	LastObsYr *int64  `gorm:"column:lastobs_yr"`
	EORank    *string `gorm:"column:eorank"`
}

// SourcePoint is a point source feature.
type SourcePoint struct{ SourceFeature }

func (SourcePoint) TableName() string { return TableSourcePoints }

// SourceLine is a line source feature.
type SourceLine struct{ SourceFeature }

func (SourceLine) TableName() string { return TableSourceLines }

// SourcePoly is a polygon source feature.
type SourcePoly struct{ SourceFeature }

func (SourcePoly) TableName() string { return TableSourcePolys }

// Visit is a field survey of a source feature.
type Visit struct {
	ObjectID int64   `gorm:"column:objectid;primaryKey;autoIncrement"`
	SFID     *string `gorm:"column:sf_id;index"`
	VisitYr  *int64  `gorm:"column:visit_yr"`
}

func (Visit) TableName() string { return TableVisits }

// GRankLookup rounds a global rank code.
type GRankLookup struct {
	ObjectID int64   `gorm:"column:objectid;primaryKey;autoIncrement"`
	GRank    *string `gorm:"column:grank"`
	Rounded  *string `gorm:"column:grank_rounded"`
}

func (GRankLookup) TableName() string { return TableGRank }

// SRankLookup rounds a state rank code.
type SRankLookup struct {
	ObjectID int64   `gorm:"column:objectid;primaryKey;autoIncrement"`
	SRank    *string `gorm:"column:srank"`
	Rounded  *string `gorm:"column:srank_rounded"`
}

func (SRankLookup) TableName() string { return TableSRank }

// RankScore scores a combined rounded rank.
type RankScore struct {
	ObjectID     int64    `gorm:"column:objectid;primaryKey;autoIncrement"`
	CombinedRank *string  `gorm:"column:combinedrank"`
	Score        *float64 `gorm:"column:score"`
}

func (RankScore) TableName() string { return TableRankMatrix }

// EORankWeight weights an EO rank.
type EORankWeight struct {
	ObjectID int64    `gorm:"column:objectid;primaryKey;autoIncrement"`
	EORank   *string  `gorm:"column:eorank"`
	Weight   *float64 `gorm:"column:weight"`
}

func (EORankWeight) TableName() string { return TableEOWeights }

// SiteIntersection records a source feature centroid falling within a site.
type SiteIntersection struct {
	ObjectID int64   `gorm:"column:objectid;primaryKey;autoIncrement"`
	JoinID   *string `gorm:"column:nha_join_id;index"`
	SFID     *string `gorm:"column:sf_id"`
}

func (SiteIntersection) TableName() string { return TableIntersections }

// ProtectedShare records the percent of a site on protected land.
type ProtectedShare struct {
	ObjectID         int64    `gorm:"column:objectid;primaryKey;autoIncrement"`
	JoinID           *string  `gorm:"column:nha_join_id;index"`
	PercentProtected *float64 `gorm:"column:percent_protected"`
}

func (ProtectedShare) TableName() string { return TableProtected }

// Survey is a survey form submission.
type Survey struct {
	ObjectID         int64      `gorm:"column:objectid;primaryKey;autoIncrement"`
	GlobalID         string     `gorm:"column:globalid;size:38;uniqueIndex"`
	UniqueRowID      *string    `gorm:"column:uniquerowid;index"`
	JoinID           *string    `gorm:"column:nha_join_id;index"`
	RelGUID          *string    `gorm:"column:nha_rel_guid"`
	Objective        *string    `gorm:"column:objective"`
	UpdateNHA        *string    `gorm:"column:update_nha"`
	SiteName         *string    `gorm:"column:site_name"`
	ProposedName     *string    `gorm:"column:proposed_name"`
	SiteDesc         *string    `gorm:"column:site_desc"`
	TRSummary        *string    `gorm:"column:tr_summary"`
	SiteDescApprove  *string    `gorm:"column:site_desc_approve"`
	ThreatApprove    *string    `gorm:"column:threat_approve"`
	MappingUpdate    *string    `gorm:"column:mapping_update"`
	SpeciesUpdate    *string    `gorm:"column:species_update"`
	MappingNotes     *string    `gorm:"column:mapping_update_notes"`
	SpeciesNotes     *string    `gorm:"column:species_update_notes"`
	WrittenUser      *string    `gorm:"column:written_user"`
	WrittenDate      *time.Time `gorm:"column:written_date"`
	WrittenNotes     *string    `gorm:"column:written_notes"`
	ReviewUser       *string    `gorm:"column:review_user"`
	ReviewNotes      *string    `gorm:"column:review_notes"`
	CreatedUser      *string    `gorm:"column:created_user"`
	CreatedDate      *time.Time `gorm:"column:created_date"`
	LoadStatus       *string    `gorm:"column:load_status"`
	SiteReviewStatus *string    `gorm:"column:site_review_status"`
	MapReviewStatus  *string    `gorm:"column:map_review_status"`
	PhotoApprove     *string    `gorm:"column:photo_approve"`
	PhotoCredit      *string    `gorm:"column:photo_credit"`
	PhotoAffil       *string    `gorm:"column:photo_affil"`
	PhotoCaption     *string    `gorm:"column:photo_caption"`
}

func (Survey) TableName() string { return TableSurveys }

// SiteRef is a citation key entered for a site description.
type SiteRef struct {
	ObjectID    int64   `gorm:"column:objectid;primaryKey;autoIncrement"`
	ParentRowID *string `gorm:"column:parentrowid;index"`
	Key         *string `gorm:"column:key_1"`
}

func (SiteRef) TableName() string { return TableSiteRefs }

// ThreatRef is a citation key entered for a threat summary.
type ThreatRef struct {
	ObjectID    int64   `gorm:"column:objectid;primaryKey;autoIncrement"`
	ParentRowID *string `gorm:"column:parentrowid;index"`
	Key         *string `gorm:"column:key_2"`
}

func (ThreatRef) TableName() string { return TableThreatRefs }

// FormBullet is a bullet entered on the survey form.
type FormBullet struct {
	ObjectID       int64   `gorm:"column:objectid;primaryKey;autoIncrement"`
	GlobalID       string  `gorm:"column:globalid;size:38;uniqueIndex"`
	ParentRowID    *string `gorm:"column:parentrowid;index"`
	ThreatCategory *string `gorm:"column:threat_category"`
	Threat         *string `gorm:"column:threat"`
	ThreatText     *string `gorm:"column:threat_text"`
	CreatedUser    *string `gorm:"column:created_user"`
	LoadStatus     *string `gorm:"column:load_status"`
}

func (FormBullet) TableName() string { return TableFormBullets }

// attachment is a file attached to a row of any table.
type attachment struct {
	ID          int64  `gorm:"column:attachmentid;primaryKey;autoIncrement"`
	Layer       string `gorm:"column:layer;index:idx_attachments_parent"`
	ParentOID   int64  `gorm:"column:rel_objectid;index:idx_attachments_parent"`
	Name        string `gorm:"column:att_name"`
	ContentType string `gorm:"column:content_type"`
	Size        int64  `gorm:"column:data_size"`
	Data        []byte `gorm:"column:data"`
}

func (attachment) TableName() string { return tableAttachments }

func models() []any {
	return []any{
		&Site{}, &SiteAccount{}, &Bullet{}, &Reference{}, &MirrorItem{},
		&SpeciesEntry{}, &ElementOccurrence{}, &SourcePoint{}, &SourceLine{}, &SourcePoly{},
		&Visit{}, &GRankLookup{}, &SRankLookup{}, &RankScore{}, &EORankWeight{},
		&SiteIntersection{}, &ProtectedShare{},
		&Survey{}, &SiteRef{}, &ThreatRef{}, &FormBullet{},
	}
}
