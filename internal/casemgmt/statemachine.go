// Package casemgmt drives cases through the HinSchG lifecycle: the
// authoritative transition table, its derived effects on deadlines,
// history and archival, and the statutory at-most-once operations.
package casemgmt

import (
	"fmt"

	"github.com/aitema/hinweis-backend/internal/errs"
	"github.com/aitema/hinweis-backend/internal/model"
)

// validTransitions is the authoritative table. Transitions not listed are
// rejected. abgeschlossen is terminal; eingestellt may be re-opened.
var validTransitions = map[model.CaseStatus][]model.CaseStatus{
	model.CaseOffen:         {model.CaseZugewiesen, model.CaseEingestellt},
	model.CaseZugewiesen:    {model.CaseInErmittlung, model.CaseEingestellt, model.CaseOffen},
	model.CaseInErmittlung:  {model.CaseStellungnahme, model.CaseMassnahmen, model.CaseAbgeschlossen, model.CaseEingestellt, model.CaseEskaliert},
	model.CaseStellungnahme: {model.CaseInErmittlung, model.CaseMassnahmen, model.CaseAbgeschlossen, model.CaseEskaliert},
	model.CaseMassnahmen:    {model.CaseUmsetzung, model.CaseAbgeschlossen, model.CaseEskaliert},
	model.CaseUmsetzung:     {model.CaseAbgeschlossen, model.CaseMassnahmen},
	model.CaseEingestellt:   {model.CaseOffen},
	model.CaseEskaliert:     {model.CaseInErmittlung, model.CaseAbgeschlossen},
	model.CaseAbgeschlossen: {},
}

// CanTransition reports whether from → to is in the table.
func CanTransition(from, to model.CaseStatus) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// AllowedNext returns the permitted target states for a status.
func AllowedNext(from model.CaseStatus) []model.CaseStatus {
	next := validTransitions[from]
	out := make([]model.CaseStatus, len(next))
	copy(out, next)
	return out
}

// checkTransition validates a requested transition including the
// zugewiesen precondition. assignee is the assignee the case would have
// after the transition.
func checkTransition(from, to model.CaseStatus, assignee string) error {
	if !model.ValidCaseStatus(to) {
		return errs.Validation(fmt.Sprintf("Unbekannter Status: %s", to))
	}
	if from == to {
		return errs.BadTransition("Der Fall befindet sich bereits in diesem Status.", string(from))
	}
	if !CanTransition(from, to) {
		return errs.BadTransition(
			fmt.Sprintf("Statuswechsel von %s nach %s ist nicht zulässig.", from, to),
			string(from))
	}
	if to == model.CaseZugewiesen && assignee == "" {
		return errs.Validation("Zuweisung erfordert einen Fallbearbeiter.").
			WithField("assignee_id", "erforderlich")
	}
	return nil
}
