package feeds

import (
	"github.com/agentstation/enrollsync/pkg/errors"
	"github.com/agentstation/enrollsync/pkg/fieldmap"
)

// BenefitsRow is one line of the benefits feed. LossDate holds the sentinel
// "99999999" while the participant is still enrolled.
type BenefitsRow struct {
	ParticipantCode string
	EmployerCode    string
	EmployerName    string
	EmployeeCode    string
	LossDueDate     string
	StartDate       string
	LossDate        string
	LimitCategory   string
	ScheduledAmount string
	Suspended       string
	EmployerAmount  string
}

// IdentityRow is one line of the identity feed.
type IdentityRow struct {
	ParticipantCode   string
	Name              string
	KanaName          string
	BirthDate         string
	Sex               string
	PostalCode        string
	Address1          string
	Address2          string
	Address3          string
	PensionNumber     string
	HireDate          string
	AcquisitionDate   string
	ContributionStart string
}

// BenefitsRows converts a parsed benefits feed using the declared columns.
func BenefitsRows(t *Table, cols fieldmap.BenefitsColumns) ([]BenefitsRow, error) {
	if err := requireColumns(t, cols.ParticipantCode, cols.LossDate); err != nil {
		return nil, err
	}

	rows := make([]BenefitsRow, 0, len(t.Rows))
	for _, r := range t.Rows {
		rows = append(rows, BenefitsRow{
			ParticipantCode: r[cols.ParticipantCode],
			EmployerCode:    r[cols.EmployerCode],
			EmployerName:    r[cols.EmployerName],
			EmployeeCode:    r[cols.EmployeeCode],
			LossDueDate:     r[cols.LossDueDate],
			StartDate:       r[cols.StartDate],
			LossDate:        r[cols.LossDate],
			LimitCategory:   r[cols.LimitCategory],
			ScheduledAmount: r[cols.ScheduledAmount],
			Suspended:       r[cols.Suspended],
			EmployerAmount:  r[cols.EmployerAmount],
		})
	}
	return rows, nil
}

// IdentityRows converts a parsed identity feed using the declared columns.
func IdentityRows(t *Table, cols fieldmap.IdentityColumns) ([]IdentityRow, error) {
	if err := requireColumns(t, cols.ParticipantCode, cols.PensionNumber); err != nil {
		return nil, err
	}

	rows := make([]IdentityRow, 0, len(t.Rows))
	for _, r := range t.Rows {
		rows = append(rows, IdentityRow{
			ParticipantCode:   r[cols.ParticipantCode],
			Name:              r[cols.Name],
			KanaName:          r[cols.KanaName],
			BirthDate:         r[cols.BirthDate],
			Sex:               r[cols.Sex],
			PostalCode:        r[cols.PostalCode],
			Address1:          r[cols.Address1],
			Address2:          r[cols.Address2],
			Address3:          r[cols.Address3],
			PensionNumber:     r[cols.PensionNumber],
			HireDate:          r[cols.HireDate],
			AcquisitionDate:   r[cols.AcquisitionDate],
			ContributionStart: r[cols.ContributionStart],
		})
	}
	return rows, nil
}

// requireColumns rejects a feed whose header lacks a key column. Other
// columns may be absent and read as empty strings.
func requireColumns(t *Table, cols ...string) error {
	for _, col := range cols {
		if !t.HasColumn(col) {
			return errors.NewParseError("csv", t.Name, "missing column "+col, nil)
		}
	}
	return nil
}
