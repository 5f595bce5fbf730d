// Package participants joins the two feeds into participant records and
// derives the values written to the remote applications.
package participants

import (
	"github.com/agentstation/enrollsync/pkg/constants"
	"github.com/agentstation/enrollsync/pkg/errors"
	"github.com/agentstation/enrollsync/pkg/feeds"
	"github.com/agentstation/enrollsync/pkg/fieldmap"
	"github.com/agentstation/enrollsync/pkg/kana"
)

// Record is one benefits row joined with its identity row.
type Record struct {
	Benefits feeds.BenefitsRow
	Identity feeds.IdentityRow

	// MembershipActive is true iff the loss date is exactly the sentinel.
	MembershipActive bool
}

// Code returns the participant code shared by both rows.
func (r Record) Code() string {
	return r.Benefits.ParticipantCode
}

// PensionNumber returns the identity pension number as the feed carries it.
func (r Record) PensionNumber() string {
	return r.Identity.PensionNumber
}

// IsActive derives membership from a loss date. The sentinel is compared as
// a string and never interpreted as a date.
func IsActive(lossDate string) bool {
	return lossDate == constants.ActiveSentinel
}

// Join pairs every benefits row with the first identity row that has the same
// participant code. Output follows benefits order. A single miss fails the
// whole batch with a *errors.JoinError.
func Join(benefits []feeds.BenefitsRow, identity []feeds.IdentityRow) ([]Record, error) {
	index := make(map[string]int, len(identity))
	for i, row := range identity {
		if _, seen := index[row.ParticipantCode]; !seen {
			index[row.ParticipantCode] = i
		}
	}

	records := make([]Record, 0, len(benefits))
	for i, b := range benefits {
		j, ok := index[b.ParticipantCode]
		if !ok {
			return nil, errors.NewJoinError(b.ParticipantCode, i+1)
		}
		records = append(records, Record{
			Benefits:         b,
			Identity:         identity[j],
			MembershipActive: IsActive(b.LossDate),
		})
	}
	return records, nil
}

// Attribute returns the participant value a payload mapping names.
func (r Record) Attribute(source string, values fieldmap.Values) (string, error) {
	b, id := r.Benefits, r.Identity
	switch source {
	case fieldmap.SourceMembership:
		return values.Membership(r.MembershipActive), nil
	case fieldmap.SourceParticipantCode:
		return b.ParticipantCode, nil
	case fieldmap.SourceEmployerCode:
		return b.EmployerCode, nil
	case fieldmap.SourceEmployerName:
		return b.EmployerName, nil
	case fieldmap.SourceEmployeeCode:
		return b.EmployeeCode, nil
	case fieldmap.SourceLossDueDate:
		return b.LossDueDate, nil
	case fieldmap.SourceStartDate:
		return b.StartDate, nil
	case fieldmap.SourceLossDate:
		return b.LossDate, nil
	case fieldmap.SourceLimitCategory:
		return b.LimitCategory, nil
	case fieldmap.SourceScheduledAmount:
		return b.ScheduledAmount, nil
	case fieldmap.SourceSuspended:
		return b.Suspended, nil
	case fieldmap.SourceEmployerAmount:
		return b.EmployerAmount, nil
	case fieldmap.SourceName:
		return id.Name, nil
	case fieldmap.SourceKanaName:
		return id.KanaName, nil
	case fieldmap.SourceBirthDate:
		return id.BirthDate, nil
	case fieldmap.SourceSex:
		return id.Sex, nil
	case fieldmap.SourcePostalCode:
		return id.PostalCode, nil
	case fieldmap.SourceAddress1:
		return id.Address1, nil
	case fieldmap.SourceAddress2:
		return id.Address2, nil
	case fieldmap.SourceAddress3:
		return id.Address3, nil
	case fieldmap.SourcePensionNumber:
		return id.PensionNumber, nil
	case fieldmap.SourceHireDate:
		return id.HireDate, nil
	case fieldmap.SourceAcquisitionDate:
		return id.AcquisitionDate, nil
	case fieldmap.SourceContributionStart:
		return id.ContributionStart, nil
	default:
		return "", errors.NewValidationError("source", source, "unknown participant attribute")
	}
}

// Values renders the declared payload mappings for this participant as
// field code to value. Date mappings are formatted when the feed value is an
// 8-digit date and passed through unchanged otherwise.
func (r Record) Values(mappings []fieldmap.Mapping, values fieldmap.Values) (map[string]string, error) {
	out := make(map[string]string, len(mappings))
	for _, m := range mappings {
		v, err := r.Attribute(m.Source, values)
		if err != nil {
			return nil, err
		}
		if m.Format == fieldmap.FormatDate {
			if formatted, ok := FormatDate(v); ok {
				v = formatted
			}
		}
		out[m.Field] = v
	}
	return out, nil
}

// FuzzyKey is the registry match key for this participant.
func (r Record) FuzzyKey() string {
	return FuzzyKey(r.Identity.PensionNumber, r.Identity.KanaName, r.Identity.BirthDate)
}

// FuzzyKey combines a pension number, a phonetic name and a birth date into
// a key that ignores hyphens, kana width and date separators.
func FuzzyKey(pension, kanaName, birthDate string) string {
	return StripHyphens(pension) + "\x00" + kana.ToHalfWidth(kanaName) + "\x00" + NormalizeDate(birthDate)
}
