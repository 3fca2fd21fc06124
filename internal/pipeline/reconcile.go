package pipeline

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/pnhp/nha-sync/internal/domain"
	"github.com/pnhp/nha-sync/internal/observability"
)

// Metric labels for the tables reconciliation writes.
const (
	tableAccounts   = "site_account"
	tableBullets    = "tr_bullets"
	tableReferences = "references"
	tableForm       = "survey_form"
	tableFormBullet = "survey_form_bullets"
)

// FormTables are the survey form layer and its related tables.
type FormTables struct {
	Surveys    domain.Layer
	SiteRefs   domain.Table
	ThreatRefs domain.Table
	Bullets    domain.Table
}

// StoreTables are the authoritative tables reconciliation reads and writes.
type StoreTables struct {
	Sites      domain.Layer
	Accounts   domain.Table
	Bullets    domain.Table
	References domain.Table
	Mirror     domain.Table
}

// Reconciler moves survey form submissions into the authoritative tables.
// Every step re-reads its inputs, so a run converges after a partial failure.
type Reconciler struct {
	form       FormTables
	store      StoreTables
	stagingDir string
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewReconciler creates a Reconciler. Photos are downloaded into stagingDir.
func NewReconciler(form FormTables, store StoreTables, stagingDir string, logger *slog.Logger, metrics *observability.Metrics) *Reconciler {
	return &Reconciler{
		form:       form,
		store:      store,
		stagingDir: stagingDir,
		logger:     logger.With("component", "reconcile"),
		metrics:    metrics,
	}
}

func (r *Reconciler) Name() string { return "reconcile" }

// Run applies every reconciliation step in order and stops at the first error.
func (r *Reconciler) Run(ctx context.Context) error {
	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"load site accounts", r.loadSiteAccounts},
		{"approve site accounts", r.approveSiteAccounts},
		{"review mapping", r.reviewMapping},
		{"load bullets", r.loadBullets},
		{"load references", r.loadReferences},
		{"backfill references", r.backfillReferences},
		{"migrate photos", r.migratePhotos},
	}
	for _, step := range steps {
		if err := step.fn(ctx); err != nil {
			return fmt.Errorf("%s: %w", step.name, err)
		}
	}
	return nil
}

func (r *Reconciler) submissions(ctx context.Context) ([]domain.Submission, error) {
	rows, err := r.form.Surveys.Query(ctx, domain.All())
	if err != nil {
		return nil, fmt.Errorf("query submissions: %w", err)
	}
	subs := make([]domain.Submission, 0, len(rows))
	for _, row := range rows {
		subs = append(subs, domain.SubmissionFromRecord(row))
	}
	return subs, nil
}

// loadSiteAccounts inserts a site account revision for every submission that
// revises the narrative. Duplicates are not inserted but still marked.
func (r *Reconciler) loadSiteAccounts(ctx context.Context) error {
	subs, err := r.submissions(ctx)
	if err != nil {
		return err
	}
	rows, err := r.store.Accounts.Query(ctx, domain.All())
	if err != nil {
		return fmt.Errorf("query site accounts: %w", err)
	}

	current := domain.CurrentAccounts(rows)
	existing := domain.NewTupleSet()
	for _, row := range rows {
		existing.Add(domain.SiteAccountFromRecord(row).Tuple())
	}

	var inserts []map[string]any
	var handled []domain.Submission
	for _, s := range subs {
		if domain.PendingNarrative(s) != domain.NarrativeRevise {
			continue
		}
		rev := domain.BuildRevision(s, current)
		tuple := rev.Tuple()
		if domain.Route(tuple, existing) == domain.Skip {
			r.logger.Info("site account already loaded", "nha_join_id", deref(s.JoinID), "objectid", s.ObjectID)
			r.metrics.DuplicatesSkipped.WithLabelValues(tableAccounts).Inc()
		} else {
			inserts = append(inserts, rev.Fields())
			existing.Add(tuple)
		}
		handled = append(handled, s)
	}

	if len(inserts) > 0 {
		if err := r.store.Accounts.Insert(ctx, inserts); err != nil {
			return fmt.Errorf("insert site accounts: %w", err)
		}
		r.metrics.RecordsInserted.WithLabelValues(tableAccounts).Add(float64(len(inserts)))
		r.logger.Info("site accounts inserted", "count", len(inserts))
	}
	return r.markSubmissions(ctx, handled, domain.FieldLoadStatus)
}

// approveSiteAccounts applies review fields to the current account of every
// site whose narrative was approved.
func (r *Reconciler) approveSiteAccounts(ctx context.Context) error {
	subs, err := r.submissions(ctx)
	if err != nil {
		return err
	}

	patches := map[string]domain.Patch{}
	for _, s := range subs {
		switch domain.PendingNarrative(s) {
		case domain.NarrativeIncomplete:
			r.logger.Warn("submission approval answers incomplete, leaving unprocessed",
				"objectid", s.ObjectID,
				"nha_join_id", deref(s.JoinID),
				"site_desc_approve", string(s.SiteDescApproval),
				"threat_approve", string(s.ThreatApproval),
			)
			r.metrics.IncompleteSubmissions.Inc()
		case domain.NarrativeApprove:
			if s.JoinID == nil {
				r.logger.Warn("approved submission has no join id", "objectid", s.ObjectID)
				continue
			}
			patches[*s.JoinID] = domain.NarrativeApprovalPatch(s)
		}
	}

	filter, ok := domain.KeyFilter(domain.FieldJoinID, sortedKeys(patches))
	if !ok {
		return nil
	}
	rows, err := r.store.Accounts.Query(ctx, filter)
	if err != nil {
		return fmt.Errorf("query site accounts: %w", err)
	}
	latest := domain.LatestRecords(rows, domain.FieldJoinID, domain.FieldCreatedDate)
	updates := domain.PlanUpdates(latest, domain.FieldJoinID, patches)
	if len(updates) > 0 {
		if err := r.store.Accounts.Update(ctx, updates); err != nil {
			return fmt.Errorf("update site accounts: %w", err)
		}
		r.metrics.ReviewUpdates.WithLabelValues("narrative_approve").Add(float64(len(updates)))
	}

	found := resolvedKeys(latest)
	for key := range patches {
		if !found[key] {
			r.logger.Info("no site account for approved submission, retrying next run", "nha_join_id", key)
		}
	}
	return r.markKeys(ctx, found, domain.FieldSiteReviewStatus)
}

// reviewMapping patches the site record for every mapping decision. When a
// site has several pending decisions the latest submission wins.
func (r *Reconciler) reviewMapping(ctx context.Context) error {
	subs, err := r.submissions(ctx)
	if err != nil {
		return err
	}

	slices.SortStableFunc(subs, byWrittenDate)

	byIntent := map[domain.MappingIntent]map[string]domain.Patch{
		domain.MappingApprove:       {},
		domain.MappingFlagForReview: {},
	}
	for _, s := range subs {
		intent := domain.PendingMapping(s)
		if intent == domain.MappingNone {
			continue
		}
		if s.JoinID == nil {
			r.logger.Warn("mapping review has no join id", "objectid", s.ObjectID)
			continue
		}
		for _, patches := range byIntent {
			delete(patches, *s.JoinID)
		}
		byIntent[intent][*s.JoinID] = domain.MappingPatch(s, intent)
	}

	for _, intent := range []domain.MappingIntent{domain.MappingApprove, domain.MappingFlagForReview} {
		if err := r.applySiteReview(ctx, intent, byIntent[intent]); err != nil {
			return fmt.Errorf("%s: %w", intent, err)
		}
	}
	return nil
}

// byWrittenDate orders submissions by written date, undated first, then by
// object id.
func byWrittenDate(a, b domain.Submission) int {
	switch {
	case a.WrittenDate == nil && b.WrittenDate != nil:
		return -1
	case a.WrittenDate != nil && b.WrittenDate == nil:
		return 1
	case a.WrittenDate != nil:
		if c := a.WrittenDate.Compare(*b.WrittenDate); c != 0 {
			return c
		}
	}
	return cmp.Compare(a.ObjectID, b.ObjectID)
}

func (r *Reconciler) applySiteReview(ctx context.Context, intent domain.MappingIntent, patches map[string]domain.Patch) error {
	filter, ok := domain.KeyFilter(domain.FieldJoinID, sortedKeys(patches))
	if !ok {
		return nil
	}
	rows, err := r.store.Sites.Query(ctx, filter)
	if err != nil {
		return fmt.Errorf("query sites: %w", err)
	}
	updates := domain.PlanUpdates(rows, domain.FieldJoinID, patches)
	if len(updates) > 0 {
		if err := r.store.Sites.Update(ctx, updates); err != nil {
			return fmt.Errorf("update sites: %w", err)
		}
		r.metrics.ReviewUpdates.WithLabelValues("mapping_" + intent.String()).Add(float64(len(updates)))
		r.logger.Info("site status updated", "intent", intent.String(), "count", len(updates))
	}

	found := resolvedKeys(rows)
	for key := range patches {
		if !found[key] {
			r.logger.Info("no site for mapping review, retrying next run", "nha_join_id", key)
		}
	}
	return r.markKeys(ctx, found, domain.FieldMapReviewStatus)
}

// loadBullets inserts the unloaded threat and recommendation bullets and
// marks each by its global id.
func (r *Reconciler) loadBullets(ctx context.Context) error {
	subs, err := r.submissions(ctx)
	if err != nil {
		return err
	}
	parents := domain.IndexByRowID(subs)

	formRows, err := r.form.Bullets.Query(ctx, domain.IsNull(domain.FieldLoadStatus))
	if err != nil {
		return fmt.Errorf("query form bullets: %w", err)
	}
	if len(formRows) == 0 {
		return nil
	}
	storeRows, err := r.store.Bullets.Query(ctx, domain.All())
	if err != nil {
		return fmt.Errorf("query bullets: %w", err)
	}
	existing := domain.NewTupleSet()
	for _, row := range storeRows {
		existing.Add(domain.BulletFromRecord(row).Tuple())
	}

	var inserts []map[string]any
	var globalIDs []string
	var objectIDs []int64
	for _, row := range formRows {
		fb := domain.FormBulletFromRecord(row)
		var parent domain.Submission
		if fb.ParentRowID != nil {
			parent = parents[*fb.ParentRowID]
		}
		b := domain.BuildBullet(fb, parent)
		tuple := b.Tuple()
		if domain.Route(tuple, existing) == domain.Skip {
			r.logger.Info("bullet already loaded", "site_name", deref(b.SiteName), "globalid", deref(fb.GlobalID))
			r.metrics.DuplicatesSkipped.WithLabelValues(tableBullets).Inc()
		} else {
			inserts = append(inserts, b.Fields())
			existing.Add(tuple)
		}
		if fb.GlobalID != nil {
			globalIDs = append(globalIDs, *fb.GlobalID)
		} else {
			objectIDs = append(objectIDs, fb.ObjectID)
		}
	}

	if len(inserts) > 0 {
		if err := r.store.Bullets.Insert(ctx, inserts); err != nil {
			return fmt.Errorf("insert bullets: %w", err)
		}
		r.metrics.RecordsInserted.WithLabelValues(tableBullets).Add(float64(len(inserts)))
		r.logger.Info("bullets inserted", "count", len(inserts))
	}

	if filter, ok := domain.KeyFilter(domain.FieldGlobalID, globalIDs); ok {
		if err := r.form.Bullets.Calculate(ctx, filter, domain.FieldLoadStatus, domain.MarkerLoaded); err != nil {
			return fmt.Errorf("mark form bullets: %w", err)
		}
	}
	if err := calculateByObjectID(ctx, r.form.Bullets, objectIDs, domain.FieldLoadStatus, domain.MarkerLoaded); err != nil {
		return fmt.Errorf("mark form bullets: %w", err)
	}
	r.metrics.MarkersSet.WithLabelValues(tableFormBullet).Add(float64(len(globalIDs) + len(objectIDs)))
	return nil
}

// loadReferences inserts the citations of both narrative sections,
// enriched from the reference mirror.
func (r *Reconciler) loadReferences(ctx context.Context) error {
	subs, err := r.submissions(ctx)
	if err != nil {
		return err
	}
	siteRows, err := r.form.SiteRefs.Query(ctx, domain.All())
	if err != nil {
		return fmt.Errorf("query site description references: %w", err)
	}
	threatRows, err := r.form.ThreatRefs.Query(ctx, domain.All())
	if err != nil {
		return fmt.Errorf("query threat references: %w", err)
	}
	formRefs := domain.FormReferencesFromRecords(siteRows, domain.FieldRefKey1, domain.FieldSiteDesc)
	formRefs = append(formRefs, domain.FormReferencesFromRecords(threatRows, domain.FieldRefKey2, domain.FieldTRSummary)...)
	if len(formRefs) == 0 {
		return nil
	}

	mirrorRows, err := r.store.Mirror.Query(ctx, domain.All())
	if err != nil {
		return fmt.Errorf("query reference mirror: %w", err)
	}
	entries := make([]domain.MirrorEntry, 0, len(mirrorRows))
	for _, row := range mirrorRows {
		entries = append(entries, domain.MirrorEntryFromRecord(row))
	}

	refRows, err := r.store.References.Query(ctx, domain.All())
	if err != nil {
		return fmt.Errorf("query references: %w", err)
	}
	existing := domain.NewTupleSet()
	for _, row := range refRows {
		existing.Add(domain.ReferenceFromRecord(row).Tuple())
	}

	var inserts []map[string]any
	skipped := 0
	for _, ref := range domain.CollectReferences(formRefs, domain.IndexByRowID(subs), domain.IndexMirror(entries)) {
		tuple := ref.Tuple()
		if domain.Route(tuple, existing) == domain.Skip {
			skipped++
			continue
		}
		inserts = append(inserts, ref.Fields())
		existing.Add(tuple)
	}
	r.metrics.DuplicatesSkipped.WithLabelValues(tableReferences).Add(float64(skipped))

	if len(inserts) == 0 {
		return nil
	}
	if err := r.store.References.Insert(ctx, inserts); err != nil {
		return fmt.Errorf("insert references: %w", err)
	}
	r.metrics.RecordsInserted.WithLabelValues(tableReferences).Add(float64(len(inserts)))
	r.logger.Info("references inserted", "count", len(inserts), "duplicates", skipped)
	return nil
}

// backfillReferences links site account references to the current account
// of their site. The current accounts are read after this run's inserts.
func (r *Reconciler) backfillReferences(ctx context.Context) error {
	accountRows, err := r.store.Accounts.Query(ctx, domain.All())
	if err != nil {
		return fmt.Errorf("query site accounts: %w", err)
	}
	refRows, err := r.store.References.Query(ctx, domain.And(
		domain.Eq(domain.FieldSourceTable, domain.SourceTableAccount),
		domain.IsNull(domain.FieldSiteAccountGUID),
	))
	if err != nil {
		return fmt.Errorf("query unlinked references: %w", err)
	}

	refs := make([]domain.Reference, 0, len(refRows))
	for _, row := range refRows {
		refs = append(refs, domain.ReferenceFromRecord(row))
	}
	updates := domain.PlanReferenceBackfill(refs, domain.CurrentAccounts(accountRows))
	if len(updates) == 0 {
		return nil
	}
	if err := r.store.References.Update(ctx, updates); err != nil {
		return fmt.Errorf("update references: %w", err)
	}
	r.metrics.ReviewUpdates.WithLabelValues("reference_backfill").Add(float64(len(updates)))
	r.logger.Info("references linked to site accounts", "count", len(updates), "unlinked", len(refs)-len(updates))
	return nil
}

// markSubmissions sets field to loaded on the form rows sharing the
// submissions' join keys. Submissions without a join key are marked by
// object id.
func (r *Reconciler) markSubmissions(ctx context.Context, subs []domain.Submission, field string) error {
	keys := map[string]bool{}
	var objectIDs []int64
	for _, s := range subs {
		if s.JoinID != nil {
			keys[*s.JoinID] = true
		} else {
			objectIDs = append(objectIDs, s.ObjectID)
		}
	}
	if err := r.markKeys(ctx, keys, field); err != nil {
		return err
	}
	if err := calculateByObjectID(ctx, r.form.Surveys, objectIDs, field, domain.MarkerLoaded); err != nil {
		return fmt.Errorf("mark submissions: %w", err)
	}
	r.metrics.MarkersSet.WithLabelValues(tableForm).Add(float64(len(objectIDs)))
	return nil
}

func (r *Reconciler) markKeys(ctx context.Context, keys map[string]bool, field string) error {
	filter, ok := domain.KeyFilter(domain.FieldJoinID, sortedKeys(keys))
	if !ok {
		return nil
	}
	if err := r.form.Surveys.Calculate(ctx, filter, field, domain.MarkerLoaded); err != nil {
		return fmt.Errorf("mark submissions: %w", err)
	}
	r.metrics.MarkersSet.WithLabelValues(tableForm).Add(float64(len(keys)))
	return nil
}

func calculateByObjectID(ctx context.Context, t domain.Table, objectIDs []int64, field string, value any) error {
	if len(objectIDs) == 0 {
		return nil
	}
	values := make([]any, len(objectIDs))
	for i, oid := range objectIDs {
		values[i] = oid
	}
	return t.Calculate(ctx, domain.In(domain.FieldObjectID, values...), field, value)
}

// resolvedKeys returns the join keys present in rows.
func resolvedKeys(rows []domain.Record) map[string]bool {
	out := make(map[string]bool, len(rows))
	for _, row := range rows {
		if key := row.String(domain.FieldJoinID); key != nil {
			out[*key] = true
		}
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
