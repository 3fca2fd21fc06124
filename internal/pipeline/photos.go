package pipeline

import (
	"context"
	"fmt"
	"os"

	"github.com/pnhp/nha-sync/internal/domain"
)

// migratePhotos moves each new form photo onto its site, replacing whatever
// the site had attached. Submissions whose site cannot be resolved or whose
// photo is missing are left flagged as new for the next run.
func (r *Reconciler) migratePhotos(ctx context.Context) error {
	rows, err := r.form.Surveys.Query(ctx, domain.And(
		domain.Eq(domain.FieldPhotoApprove, string(domain.PhotoNew)),
		domain.NotNull(domain.FieldJoinID),
	))
	if err != nil {
		return fmt.Errorf("query new photos: %w", err)
	}

	subs := make([]domain.Submission, 0, len(rows))
	keys := map[string]bool{}
	for _, row := range rows {
		s := domain.SubmissionFromRecord(row)
		if s.JoinID == nil {
			continue
		}
		subs = append(subs, s)
		keys[*s.JoinID] = true
	}
	filter, ok := domain.KeyFilter(domain.FieldJoinID, sortedKeys(keys))
	if !ok {
		r.logger.Debug("no new photos to migrate")
		return nil
	}

	sites, err := r.store.Sites.Query(ctx, filter)
	if err != nil {
		return fmt.Errorf("query sites: %w", err)
	}
	siteOIDs := make(map[string]int64, len(sites))
	for _, site := range sites {
		key := site.String(domain.FieldJoinID)
		if key == nil {
			continue
		}
		if _, seen := siteOIDs[*key]; !seen {
			siteOIDs[*key] = site.ObjectID
		}
	}

	if err := os.MkdirAll(r.stagingDir, 0o750); err != nil {
		return fmt.Errorf("create photo staging dir: %w", err)
	}

	for _, s := range subs {
		siteOID, ok := siteOIDs[*s.JoinID]
		if !ok {
			r.logger.Info("no site for photo, retrying next run", "nha_join_id", *s.JoinID, "objectid", s.ObjectID)
			r.metrics.PhotosSkipped.WithLabelValues("no_site").Inc()
			continue
		}
		if err := r.migratePhoto(ctx, s, siteOID); err != nil {
			return fmt.Errorf("photo for %s: %w", *s.JoinID, err)
		}
	}
	return nil
}

func (r *Reconciler) migratePhoto(ctx context.Context, s domain.Submission, siteOID int64) error {
	atts, err := r.form.Surveys.ListAttachments(ctx, s.ObjectID)
	if err != nil {
		return fmt.Errorf("list form attachments: %w", err)
	}
	if len(atts) == 0 {
		r.logger.Info("photo flagged new but not attached", "nha_join_id", deref(s.JoinID), "objectid", s.ObjectID)
		r.metrics.PhotosSkipped.WithLabelValues("no_attachment").Inc()
		return nil
	}

	path, err := r.form.Surveys.DownloadAttachment(ctx, s.ObjectID, atts[0], r.stagingDir)
	if err != nil {
		return fmt.Errorf("download photo: %w", err)
	}
	r.logger.Debug("photo downloaded", "path", path)

	existing, err := r.store.Sites.ListAttachments(ctx, siteOID)
	if err != nil {
		return fmt.Errorf("list site attachments: %w", err)
	}
	if len(existing) > 0 {
		r.logger.Info("replacing site attachments", "site_objectid", siteOID, "count", len(existing))
	}
	for _, att := range existing {
		if err := r.store.Sites.DeleteAttachment(ctx, siteOID, att.ID); err != nil {
			return fmt.Errorf("delete site attachment %d: %w", att.ID, err)
		}
	}
	if err := r.store.Sites.AddAttachment(ctx, siteOID, path); err != nil {
		return fmt.Errorf("add site attachment: %w", err)
	}

	err = r.store.Sites.Update(ctx, []domain.RowUpdate{{
		ObjectID: siteOID,
		Fields: domain.Patch{
			domain.FieldPhotoCredit:  domain.Normalize(s.PhotoCredit),
			domain.FieldPhotoAffil:   domain.Normalize(s.PhotoAffil),
			domain.FieldPhotoCaption: domain.Normalize(s.PhotoCaption),
		},
	}})
	if err != nil {
		return fmt.Errorf("update photo fields: %w", err)
	}

	if err := r.form.Surveys.Calculate(ctx, domain.Eq(domain.FieldObjectID, s.ObjectID), domain.FieldPhotoApprove, string(domain.PhotoExisting)); err != nil {
		return fmt.Errorf("mark photo: %w", err)
	}
	r.metrics.PhotosMigrated.Inc()
	r.logger.Info("photo migrated", "nha_join_id", deref(s.JoinID), "site_objectid", siteOID)
	return nil
}
