// Package domain models Natural Heritage Area (NHA) site records, the survey
// form submissions that revise them, and the occurrence data used to rank them.
//
// # Data Sources
//
// Field staff submit an NHA update survey. Each response is one row in the
// form layer, with two citation tables and a threat/recommendation repeat
// table linked to it through parentrowid = uniquerowid. The authoritative
// store holds the NHA core layer (one polygon per site), the site account
// table (narrative revisions), the threat/recommendation bullet table, the
// reference table, and a mirror of the reference library.
//
// # Join Keys
//
//	nha_join_id   stable site identifier shared by the form, site accounts,
//	              bullets, references (as source_id) and the core layer.
//	nha_rel_GUID  relationship id written alongside the join key.
//	GlobalID      site account identity; references point at the current
//	              account through site_account_GUID.
//
// # Status and Marker Conventions
//
//	status        "rev" (awaiting review) or "app" (approved) on sites and
//	              site accounts.
//	load_status, site_review_status, map_review_status
//	              form markers set to "loaded" once an intent was applied.
//	              A marker is never cleared by this module.
//	photo_approve "new" until the photo was moved to the site, then "existing".
//
// Missing values arrive in several shapes (nil, typed nil pointers, NaN,
// epoch-millisecond dates, zero times). [Normalize] maps them to one canonical
// form so that duplicate detection compares like with like. See [Tuple].
//
// # Rank Codes
//
// Scoring combines a rounded global rank (G1..G5) and a rounded state rank
// (S1..S5) into a combined code such as "G3S1", looks up its matrix score and
// multiplies it by the weight of the occurrence's EORANK (A, B, C, ...).
// Missing lookups contribute zero.
//
// Element codes (ELCODE) carry the taxonomic group in their prefix: "P" plants,
// "AB" birds, "AM" mammals, "I" invertebrates, and so on. [RecencyRules]
// lists how recent the last observation must be for each group.
//
// # Tiers
//
// Sites with plant occurrences are bucketed from their count of S1-S3 plant
// species and their plant score:
//
//	Tier 1    more than 6 species, or a plant score over 350
//	Tier 2    3 to 6 species
//	Tier 2.5  exactly 1 species
//	Tier 3    any other site with plants
//
// Sites without plant occurrences get no tier. See [AssignTier].
package domain
