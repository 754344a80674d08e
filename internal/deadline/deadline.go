// Package deadline computes the HinSchG statutory deadlines and their
// traffic-light classification. All functions are pure; persistence and
// sweeping live elsewhere.
package deadline

import (
	"sort"
	"time"

	"github.com/aitema/hinweis-backend/internal/model"
)

const day = 24 * time.Hour

// yellowWindow is how close to a due date a deadline turns yellow.
const yellowWindow = 14 * day

// Ack returns the acknowledgement deadline (§8 HinSchG, default 7 days).
func Ack(eingegangenAm time.Time, s model.TenantSettings) time.Time {
	return eingegangenAm.Add(time.Duration(s.EingangsbestaetigungTage) * day)
}

// Feedback returns the feedback deadline (3 months, default 90 days).
func Feedback(eingegangenAm time.Time, s model.TenantSettings) time.Time {
	return eingegangenAm.Add(time.Duration(s.RueckmeldungTage) * day)
}

// Archival returns the archival target after closure (§11, default 3 years).
func Archival(closedAt time.Time, s model.TenantSettings) time.Time {
	return closedAt.Add(time.Duration(s.AufbewahrungJahre) * 365 * day)
}

// Deletion returns the hard-deletion target. Identical to the archival
// horizon: once retention elapses, the sweep removes the case.
func Deletion(closedAt time.Time, s model.TenantSettings) time.Time {
	return Archival(closedAt, s)
}

// Classify evaluates one deadline against now.
// Red requires strictly now > due; at now == due the deadline is still
// yellow.
func Classify(due time.Time, doneAt *time.Time, now time.Time) model.TrafficLight {
	if doneAt != nil {
		return model.LightDone
	}
	if now.After(due) {
		return model.LightRed
	}
	if due.Sub(now) <= yellowWindow {
		return model.LightYellow
	}
	return model.LightGreen
}

// Status is the deadline view of a single case.
type Status struct {
	Type          model.DeadlineType `json:"type"`
	DueAt         time.Time          `json:"due_at"`
	Light         model.TrafficLight `json:"ampel"`
	DaysRemaining int                `json:"days_remaining"`
}

// NextActive reports the next statutory deadline of a case: the
// acknowledgement while unacknowledged, then the feedback while
// unresolved, then done.
func NextActive(c *model.Case, r *model.Report, now time.Time) Status {
	switch {
	case c.AcknowledgedAt == nil:
		return statusFor(model.DeadlineAck7d, r.EingangsbestaetigungFrist, nil, now)
	case c.ResolvedAt == nil:
		return statusFor(model.DeadlineFeedback3m, r.RueckmeldungFrist, nil, now)
	default:
		s := statusFor(model.DeadlineFeedback3m, r.RueckmeldungFrist, c.ResolvedAt, now)
		return s
	}
}

func statusFor(typ model.DeadlineType, due time.Time, doneAt *time.Time, now time.Time) Status {
	return Status{
		Type:          typ,
		DueAt:         due,
		Light:         Classify(due, doneAt, now),
		DaysRemaining: int(due.Sub(now) / day),
	}
}

// Summary aggregates traffic lights across cases.
type Summary struct {
	Green  int `json:"green"`
	Yellow int `json:"yellow"`
	Red    int `json:"red"`
	Done   int `json:"done"`
	Total  int `json:"total"`
}

// Summarize counts lights into a summary.
func Summarize(lights []model.TrafficLight) Summary {
	var s Summary
	for _, l := range lights {
		switch l {
		case model.LightGreen:
			s.Green++
		case model.LightYellow:
			s.Yellow++
		case model.LightRed:
			s.Red++
		case model.LightDone:
			s.Done++
		}
		s.Total++
	}
	return s
}

// Urgent is one case in the urgency ranking used by the daily digest.
type Urgent struct {
	CaseID        string             `json:"case_id"`
	CaseNumber    string             `json:"case_number"`
	Light         model.TrafficLight `json:"ampel"`
	DueAt         time.Time          `json:"due_at"`
	DaysRemaining int                `json:"days_remaining"`
}

// SortUrgent orders red before yellow before green, then by days
// remaining ascending.
func SortUrgent(items []Urgent) {
	rank := map[model.TrafficLight]int{
		model.LightRed:    0,
		model.LightYellow: 1,
		model.LightGreen:  2,
		model.LightDone:   3,
	}
	sort.SliceStable(items, func(i, j int) bool {
		if rank[items[i].Light] != rank[items[j].Light] {
			return rank[items[i].Light] < rank[items[j].Light]
		}
		return items[i].DaysRemaining < items[j].DaysRemaining
	})
}
