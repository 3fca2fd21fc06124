package domain

import "time"

// FormBullet is a threat or recommendation row from the form's repeat table.
type FormBullet struct {
	ObjectID       int64
	GlobalID       *string
	ParentRowID    *string
	ThreatCategory *string
	Threat         *string
	ThreatText     *string
	CreatedUser    *string
	LoadStatus     *string
}

// FormBulletFromRecord reads a repeat table row.
func FormBulletFromRecord(r Record) FormBullet {
	return FormBullet{
		ObjectID:       r.ObjectID,
		GlobalID:       r.String(FieldGlobalID),
		ParentRowID:    r.String(FieldParentRowID),
		ThreatCategory: r.String(FieldThreatCategory),
		Threat:         r.String(FieldThreat),
		ThreatText:     r.String(FieldThreatText),
		CreatedUser:    r.String(FieldCreatedUser),
		LoadStatus:     r.String(FieldLoadStatus),
	}
}

// Bullet is a threat or recommendation attached to a site.
type Bullet struct {
	SiteName       *string
	TargetCategory *string
	ThreatDesc     *string
	ThreatText     *string
	AddedUser      *string
	AddedDate      *time.Time
	JoinID         *string
	RelGUID        *string
}

// BulletFromRecord reads an authoritative bullet row.
func BulletFromRecord(r Record) Bullet {
	return Bullet{
		SiteName:       r.String(FieldSiteName),
		TargetCategory: r.String(FieldTargetCategory),
		ThreatDesc:     r.String(FieldThreatDesc),
		ThreatText:     r.String(FieldThreatText),
		AddedUser:      r.String(FieldAddedUser),
		AddedDate:      r.Time(FieldAddedDate),
		JoinID:         r.String(FieldJoinID),
		RelGUID:        r.String(FieldRelGUID),
	}
}

// BuildBullet combines a form bullet with its parent submission. The parent
// is the zero Submission when the bullet is orphaned.
func BuildBullet(fb FormBullet, parent Submission) Bullet {
	return Bullet{
		SiteName:       parent.SiteName,
		TargetCategory: fb.ThreatCategory,
		ThreatDesc:     fb.Threat,
		ThreatText:     fb.ThreatText,
		AddedUser:      fb.CreatedUser,
		AddedDate:      parent.WrittenDate,
		JoinID:         parent.JoinID,
		RelGUID:        parent.RelGUID,
	}
}

// Tuple returns the attributes compared when detecting an already loaded bullet.
func (b Bullet) Tuple() Tuple {
	return NewTuple(
		b.SiteName,
		b.TargetCategory,
		b.ThreatDesc,
		b.ThreatText,
		b.AddedUser,
		b.AddedDate,
		b.JoinID,
		b.RelGUID,
	)
}

// Fields returns the attributes written when the bullet is inserted.
func (b Bullet) Fields() map[string]any {
	return map[string]any{
		FieldSiteName:       Normalize(b.SiteName),
		FieldTargetCategory: Normalize(b.TargetCategory),
		FieldThreatDesc:     Normalize(b.ThreatDesc),
		FieldThreatText:     Normalize(b.ThreatText),
		FieldAddedUser:      Normalize(b.AddedUser),
		FieldAddedDate:      Normalize(b.AddedDate),
		FieldJoinID:         Normalize(b.JoinID),
		FieldRelGUID:        Normalize(b.RelGUID),
		FieldAddedNotes:     BulletAddedNote,
	}
}
