package domain

// Field names shared by the form and the authoritative layers.
const (
	FieldObjectID = "objectid"
	FieldGlobalID = "globalid"
	FieldJoinID   = "nha_join_id"
	FieldRelGUID  = "nha_rel_GUID"
	FieldSiteName = "site_name"
	FieldStatus   = "status"
)

// Survey form layer fields.
const (
	FieldUniqueRowID      = "uniquerowid"
	FieldParentRowID      = "parentrowid"
	FieldFormRelGUID      = "nha_rel_guid"
	FieldObjective        = "objective"
	FieldUpdateNHA        = "update_nha"
	FieldProposedName     = "proposed_name"
	FieldSiteDescApprove  = "site_desc_approve"
	FieldThreatApprove    = "threat_approve"
	FieldMappingUpdate    = "mapping_update"
	FieldSpeciesUpdate    = "species_update"
	FieldMappingNotes     = "mapping_update_notes"
	FieldSpeciesNotes     = "species_update_notes"
	FieldCreatedUser      = "created_user"
	FieldLoadStatus       = "load_status"
	FieldSiteReviewStatus = "site_review_status"
	FieldMapReviewStatus  = "map_review_status"
	FieldPhotoApprove     = "photo_approve"
	FieldPhotoCredit      = "photo_credit"
	FieldPhotoAffil       = "photo_affil"
	FieldPhotoCaption     = "photo_caption"
	FieldThreatCategory   = "threat_category"
	FieldThreat           = "threat"
	FieldRefKey1          = "key_1"
	FieldRefKey2          = "key_2"
)

// Site account fields.
const (
	FieldSiteDesc     = "site_desc"
	FieldTRSummary    = "tr_summary"
	FieldWrittenUser  = "written_user"
	FieldWrittenDate  = "written_date"
	FieldWrittenNotes = "written_notes"
	FieldReviewUser   = "review_user"
	FieldReviewDate   = "review_date"
	FieldReviewNotes  = "review_notes"
	FieldCreatedDate  = "created_date"
)

// Threat and recommendation bullet fields.
const (
	FieldTargetCategory = "target_category"
	FieldThreatDesc     = "threat_desc"
	FieldThreatText     = "threat_text"
	FieldAddedUser      = "added_user"
	FieldAddedDate      = "added_date"
	FieldAddedNotes     = "added_notes"
)

// Reference and mirror fields.
const (
	FieldZoteroKey        = "zotero_key"
	FieldSourceID         = "source_id"
	FieldTitle            = "title"
	FieldAuthors          = "authors"
	FieldPublicationYr    = "publication_yr"
	FieldSourceField      = "source_field"
	FieldSourceTable      = "source_table"
	FieldSiteAccountGUID  = "site_account_GUID"
	FieldFullCite         = "full_cite"
	FieldKey              = "key"
	FieldItemType         = "item_type"
	FieldCreatorSummary   = "creator_summary"
	FieldPublicationYear  = "publication_year"
	FieldPublicationTitle = "publication_title"
	FieldVolume           = "volume"
	FieldIssue            = "issue"
	FieldPages            = "pages"
	FieldDataURL          = "data_url"
	FieldAbstractNote     = "abstract_note"
	FieldFullCitation     = "full_citation"
)

// Site fields.
const (
	FieldStatusChangeDate   = "status_change_date"
	FieldStatusChangeReason = "status_change_reason"
	FieldDrawnDate          = "drawn_date"
	FieldCounty             = "COUNTY_NAM"
	FieldMapID              = "MAP_ID"
)

// Occurrence, rank and visit fields.
const (
	FieldSFID       = "SF_ID"
	FieldEOID       = "EO_ID"
	FieldELCode     = "ELCODE"
	FieldELSubID    = "ELSUBID"
	FieldSName      = "SNAME"
	FieldSComName   = "SCOMNAME"
	FieldGRank      = "GRANK"
	FieldSRank      = "SRANK"
	FieldEORank     = "EORANK"
	FieldEOTrack    = "EO_TRACK"
	FieldEstRA      = "EST_RA"
	FieldIndepSF    = "INDEP_SF"
	FieldUSESA      = "USESA"
	FieldLastObs    = "LASTOBS"
	FieldLastObsYr  = "LASTOBS_YR"
	FieldSurveyYr   = "SURVEY_YR"
	FieldVisitYr    = "VISIT_YR"
	FieldExclude    = "exclude"
	FieldPctProtect = "percent_protected"
)

// Rank lookup table fields.
const (
	FieldGRankCode    = "grank"
	FieldGRankRounded = "grank_rounded"
	FieldSRankCode    = "srank"
	FieldSRankRounded = "srank_rounded"
	FieldCombinedRank = "combinedrank"
	FieldScore        = "score"
	FieldEORankCode   = "eorank"
	FieldWeight       = "weight"
)

// Values written to the form and the authoritative layers.
const (
	MarkerLoaded       = "loaded"
	SourceTableAccount = "site_account"
	BulletAddedNote    = "Added with the NHA Update Form."

	ReasonMappingApproved = "Mapping and species list approval were submitted in NHA update form."
	ReasonNeedsReview     = "NHA needs to be reviewed. Mapping and/or species list need to be updated per the NHA update form."
)
