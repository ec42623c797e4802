package surgery

import "slices"

// checklistCatalog is the fixed item list per checklist kind. Sign-in and
// time-out together form the ten pre-incision WHO items.
var checklistCatalog = map[ChecklistKind][]string{
	ChecklistPreOp: {
		"Patient identity confirmed with two identifiers",
		"Informed consent signed and on file",
		"Surgical site marked",
		"Fasting status confirmed",
		"Allergies reviewed",
		"Pre-operative labs and imaging reviewed",
		"Anaesthesia assessment completed",
		"Blood products cross-matched if required",
	},
	ChecklistSignIn: {
		"Patient confirmed identity, site, procedure and consent",
		"Site marked or not applicable",
		"Anaesthesia machine and medication check complete",
		"Pulse oximeter on patient and functioning",
		"Allergy, airway and blood-loss risks assessed",
	},
	ChecklistTimeOut: {
		"All team members introduced by name and role",
		"Patient name, procedure and incision site confirmed",
		"Antibiotic prophylaxis given within the last 60 minutes",
		"Anticipated critical events reviewed",
		"Essential imaging displayed",
	},
	ChecklistSignOut: {
		"Name of the procedure recorded",
		"Instrument, sponge and needle counts complete",
		"Specimen labelled including patient name",
		"Equipment problems addressed",
		"Key concerns for recovery and management reviewed",
	},
}

func (k ChecklistKind) Valid() bool {
	_, ok := checklistCatalog[k]
	return ok
}

// Catalog returns a copy of the item labels for kind, or nil if unknown.
func Catalog(kind ChecklistKind) []string {
	return slices.Clone(checklistCatalog[kind])
}

func newItems(kind ChecklistKind) []ChecklistItem {
	labels := checklistCatalog[kind]
	items := make([]ChecklistItem, len(labels))
	for i, l := range labels {
		items[i] = ChecklistItem{Label: l}
	}
	return items
}
