package domain

// FormReference is a citation row from one of the form's reference tables.
type FormReference struct {
	Key         *string
	ParentRowID *string
	SourceField string
}

// FormReferencesFromRecords reads a form reference table. keyField differs
// per table; sourceField names the narrative section the table cites for.
func FormReferencesFromRecords(rows []Record, keyField, sourceField string) []FormReference {
	out := make([]FormReference, 0, len(rows))
	for _, r := range rows {
		out = append(out, FormReference{
			Key:         r.String(keyField),
			ParentRowID: r.String(FieldParentRowID),
			SourceField: sourceField,
		})
	}
	return out
}

// MirrorEntry is one normalized bibliographic record.
type MirrorEntry struct {
	Key              *string
	ItemType         *string
	Title            *string
	CreatorSummary   *string
	Authors          *string
	PublicationYear  *string
	PublicationTitle *string
	Volume           *string
	Issue            *string
	Pages            *string
	DataURL          *string
	AbstractNote     *string
}

// MirrorEntryFromRecord reads a mirror table row.
func MirrorEntryFromRecord(r Record) MirrorEntry {
	return MirrorEntry{
		Key:              r.String(FieldKey),
		ItemType:         r.String(FieldItemType),
		Title:            r.String(FieldTitle),
		CreatorSummary:   r.String(FieldCreatorSummary),
		Authors:          r.String(FieldAuthors),
		PublicationYear:  r.String(FieldPublicationYear),
		PublicationTitle: r.String(FieldPublicationTitle),
		Volume:           r.String(FieldVolume),
		Issue:            r.String(FieldIssue),
		Pages:            r.String(FieldPages),
		DataURL:          r.String(FieldDataURL),
		AbstractNote:     r.String(FieldAbstractNote),
	}
}

// Fields returns the attributes written to the mirror table.
func (m MirrorEntry) Fields() map[string]any {
	return map[string]any{
		FieldKey:              Normalize(m.Key),
		FieldItemType:         Normalize(m.ItemType),
		FieldTitle:            Normalize(m.Title),
		FieldCreatorSummary:   Normalize(m.CreatorSummary),
		FieldAuthors:          Normalize(m.Authors),
		FieldPublicationYear:  Normalize(m.PublicationYear),
		FieldPublicationTitle: Normalize(m.PublicationTitle),
		FieldVolume:           Normalize(m.Volume),
		FieldIssue:            Normalize(m.Issue),
		FieldPages:            Normalize(m.Pages),
		FieldDataURL:          Normalize(m.DataURL),
		FieldAbstractNote:     Normalize(m.AbstractNote),
		FieldFullCitation:     nil,
	}
}

// IndexMirror maps mirror entries by key.
func IndexMirror(entries []MirrorEntry) map[string]MirrorEntry {
	out := make(map[string]MirrorEntry, len(entries))
	for _, e := range entries {
		if e.Key != nil {
			out[*e.Key] = e
		}
	}
	return out
}

// Reference links a bibliographic item to the narrative section citing it.
type Reference struct {
	ObjectID        int64
	ZoteroKey       *string
	SourceID        *string
	Title           *string
	Authors         *string
	PublicationYr   *string
	SourceField     *string
	SourceTable     *string
	SiteAccountGUID *string
	FullCite        *string
}

// ReferenceFromRecord reads a reference table row.
func ReferenceFromRecord(r Record) Reference {
	return Reference{
		ObjectID:        r.ObjectID,
		ZoteroKey:       r.String(FieldZoteroKey),
		SourceID:        r.String(FieldSourceID),
		Title:           r.String(FieldTitle),
		Authors:         r.String(FieldAuthors),
		PublicationYr:   r.String(FieldPublicationYr),
		SourceField:     r.String(FieldSourceField),
		SourceTable:     r.String(FieldSourceTable),
		SiteAccountGUID: r.String(FieldSiteAccountGUID),
		FullCite:        r.String(FieldFullCite),
	}
}

// Tuple returns the attributes compared when detecting an already loaded reference.
func (r Reference) Tuple() Tuple {
	return NewTuple(r.ZoteroKey, r.SourceID, r.Title, r.Authors, r.PublicationYr, r.SourceField)
}

// Fields returns the attributes written when the reference is inserted.
func (r Reference) Fields() map[string]any {
	return map[string]any{
		FieldZoteroKey:     Normalize(r.ZoteroKey),
		FieldSourceID:      Normalize(r.SourceID),
		FieldTitle:         Normalize(r.Title),
		FieldAuthors:       Normalize(r.Authors),
		FieldPublicationYr: Normalize(r.PublicationYr),
		FieldSourceField:   Normalize(r.SourceField),
		FieldSourceTable:   Normalize(r.SourceTable),
	}
}

// CollectReferences resolves form citations to their site and enriches them
// with mirror metadata. Citations whose parent or mirror entry is missing keep
// empty values for what could not be resolved.
func CollectReferences(formRefs []FormReference, parents map[string]Submission, mirror map[string]MirrorEntry) []Reference {
	out := make([]Reference, 0, len(formRefs))
	for _, fr := range formRefs {
		sourceField := fr.SourceField
		table := SourceTableAccount
		ref := Reference{
			ZoteroKey:   fr.Key,
			SourceField: &sourceField,
			SourceTable: &table,
		}
		if fr.ParentRowID != nil {
			if parent, ok := parents[*fr.ParentRowID]; ok {
				ref.SourceID = parent.JoinID
			}
		}
		if fr.Key != nil {
			if m, ok := mirror[*fr.Key]; ok {
				ref.Title = m.Title
				ref.Authors = m.Authors
				ref.PublicationYr = m.PublicationYear
			}
		}
		out = append(out, ref)
	}
	return out
}

// PlanReferenceBackfill links site account references that have no account
// yet to the current account of their site. References without a site, or
// whose site has no account, are skipped.
func PlanReferenceBackfill(refs []Reference, current map[string]SiteAccount) []RowUpdate {
	var updates []RowUpdate
	for _, ref := range refs {
		if ref.SourceTable == nil || *ref.SourceTable != SourceTableAccount || ref.SiteAccountGUID != nil {
			continue
		}
		if ref.SourceID == nil {
			continue
		}
		acct, ok := current[*ref.SourceID]
		if !ok || acct.GlobalID == nil {
			continue
		}
		updates = append(updates, RowUpdate{
			ObjectID: ref.ObjectID,
			Fields:   Patch{FieldSiteAccountGUID: *acct.GlobalID},
		})
	}
	return updates
}
