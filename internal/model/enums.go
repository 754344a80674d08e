package model

// Role of a user within a tenant.
type Role string

const (
	RoleAdmin          Role = "admin"
	RoleOmbudsperson   Role = "ombudsperson"
	RoleFallbearbeiter Role = "fallbearbeiter"
	RoleMelder         Role = "melder"
	RoleAuditor        Role = "auditor"
)

// ValidRole reports whether r is one of the known roles.
func ValidRole(r Role) bool {
	switch r {
	case RoleAdmin, RoleOmbudsperson, RoleFallbearbeiter, RoleMelder, RoleAuditor:
		return true
	}
	return false
}

// Category enumerates the HinSchG §2 subject-matter scope.
type Category string

const (
	CategoryKorruption             Category = "korruption"
	CategoryBetrug                 Category = "betrug"
	CategoryGeldwaesche            Category = "geldwaesche"
	CategorySteuerhinterziehung    Category = "steuerhinterziehung"
	CategoryUmweltverstoss         Category = "umweltverstoss"
	CategoryVerbraucherschutz      Category = "verbraucherschutz"
	CategoryDatenschutz            Category = "datenschutz"
	CategoryDiskriminierung        Category = "diskriminierung"
	CategoryArbeitssicherheit      Category = "arbeitssicherheit"
	CategoryProduktsicherheit      Category = "produktsicherheit"
	CategoryLebensmittelsicherheit Category = "lebensmittelsicherheit"
	CategoryVergaberecht           Category = "vergaberecht"
	CategoryWettbewerbsrecht       Category = "wettbewerbsrecht"
	CategoryFinanzdienstleistungen Category = "finanzdienstleistungen"
	CategoryKernsicherheit         Category = "kernsicherheit"
	CategoryTiergesundheit         Category = "tiergesundheit"
	CategorySonstiges              Category = "sonstiges"
)

// AllCategories lists every HinSchG §2 category in declaration order.
var AllCategories = []Category{
	CategoryKorruption,
	CategoryBetrug,
	CategoryGeldwaesche,
	CategorySteuerhinterziehung,
	CategoryUmweltverstoss,
	CategoryVerbraucherschutz,
	CategoryDatenschutz,
	CategoryDiskriminierung,
	CategoryArbeitssicherheit,
	CategoryProduktsicherheit,
	CategoryLebensmittelsicherheit,
	CategoryVergaberecht,
	CategoryWettbewerbsrecht,
	CategoryFinanzdienstleistungen,
	CategoryKernsicherheit,
	CategoryTiergesundheit,
	CategorySonstiges,
}

// ValidCategory reports whether c is one of the HinSchG §2 categories.
func ValidCategory(c Category) bool {
	for _, known := range AllCategories {
		if known == c {
			return true
		}
	}
	return false
}

// Priority of a report.
type Priority string

const (
	PriorityNiedrig  Priority = "niedrig"
	PriorityMittel   Priority = "mittel"
	PriorityHoch     Priority = "hoch"
	PriorityKritisch Priority = "kritisch"
)

// ReportStatus tracks a Hinweis through its statutory lifecycle.
type ReportStatus string

const (
	ReportEingegangen          ReportStatus = "eingegangen"
	ReportEingangsbestaetigung ReportStatus = "eingangsbestaetigung"
	ReportInPruefung           ReportStatus = "in_pruefung"
	ReportInBearbeitung        ReportStatus = "in_bearbeitung"
	ReportRueckmeldung         ReportStatus = "rueckmeldung"
	ReportAbgeschlossen        ReportStatus = "abgeschlossen"
	ReportAbgelehnt            ReportStatus = "abgelehnt"
	ReportWeitergeleitet       ReportStatus = "weitergeleitet"
)

// CaseStatus is the 9-state case lifecycle.
type CaseStatus string

const (
	CaseOffen         CaseStatus = "offen"
	CaseZugewiesen    CaseStatus = "zugewiesen"
	CaseInErmittlung  CaseStatus = "in_ermittlung"
	CaseStellungnahme CaseStatus = "stellungnahme"
	CaseMassnahmen    CaseStatus = "massnahmen"
	CaseUmsetzung     CaseStatus = "umsetzung"
	CaseAbgeschlossen CaseStatus = "abgeschlossen"
	CaseEingestellt   CaseStatus = "eingestellt"
	CaseEskaliert     CaseStatus = "eskaliert"
)

// IsTerminal returns true if the status has no outgoing transitions.
func (s CaseStatus) IsTerminal() bool {
	return s == CaseAbgeschlossen
}

// ValidCaseStatus reports whether s is one of the nine lifecycle states.
func ValidCaseStatus(s CaseStatus) bool {
	switch s {
	case CaseOffen, CaseZugewiesen, CaseInErmittlung, CaseStellungnahme,
		CaseMassnahmen, CaseUmsetzung, CaseAbgeschlossen, CaseEingestellt, CaseEskaliert:
		return true
	}
	return false
}

// DeadlineType identifies a statutory timer.
type DeadlineType string

const (
	DeadlineAck7d      DeadlineType = "ack_7d"
	DeadlineFeedback3m DeadlineType = "feedback_3m"
	DeadlineArchival3y DeadlineType = "archival_3y"
	DeadlineDeletion   DeadlineType = "deletion_30d"
)

// TrafficLight classifies a deadline against now.
type TrafficLight string

const (
	LightGreen  TrafficLight = "green"
	LightYellow TrafficLight = "yellow"
	LightRed    TrafficLight = "red"
	LightDone   TrafficLight = "done"
)

// Channel is the submission channel of a report.
type Channel string

const (
	ChannelWeb         Channel = "web"
	ChannelTelefon     Channel = "telefon"
	ChannelPersoenlich Channel = "persoenlich"
	ChannelBrief       Channel = "brief"
	ChannelAnonym      Channel = "anonym"
)

// Recommendation is an ombudsperson's verdict on a forwarded case.
type Recommendation string

const (
	RecommendPursue   Recommendation = "pursue"
	RecommendClose    Recommendation = "close"
	RecommendEscalate Recommendation = "escalate"
)

// ValidRecommendation reports whether r is a known recommendation value.
func ValidRecommendation(r Recommendation) bool {
	return r == RecommendPursue || r == RecommendClose || r == RecommendEscalate
}

// OrgSize classifies a tenant organization per HinSchG obligations.
type OrgSize string

const (
	OrgSmall  OrgSize = "small"
	OrgMedium OrgSize = "medium"
	OrgLarge  OrgSize = "large"
)

// EventType classifies a case history entry.
type EventType string

const (
	EventCreated      EventType = "created"
	EventStatusChange EventType = "status_change"
	EventAssigned     EventType = "assigned"
	EventAcknowledged EventType = "acknowledged"
	EventResolved     EventType = "resolved"
	EventForwarded    EventType = "forwarded_to_ombudsperson"
	EventRecommended  EventType = "ombudsperson_recommendation"
	EventNoteAdded    EventType = "note_added"
	EventEscalated    EventType = "escalated"
)

// MessageDirection flags who wrote an anonymous-channel message.
type MessageDirection string

const (
	DirectionReporter MessageDirection = "reporter"
	DirectionHandler  MessageDirection = "handler"
)
