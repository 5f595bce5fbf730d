// Package fieldmap holds the declared mapping between feed columns, remote
// application field codes and the vocabulary values written to them.
package fieldmap

import (
	_ "embed"
	"fmt"
	"os"
	"slices"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-yaml"

	"github.com/agentstation/enrollsync/pkg/errors"
)

//go:embed default.yaml
var defaultYAML []byte

// FormatDate marks a mapping whose value is an 8-digit feed date that must be
// rendered as YYYY-MM-DD.
const FormatDate = "date"

// Table is the complete field-mapping declaration for one integration.
type Table struct {
	Benefits BenefitsColumns `yaml:"benefits" validate:"required"`
	Identity IdentityColumns `yaml:"identity" validate:"required"`
	Ledger   LedgerFields    `yaml:"ledger" validate:"required"`
	Registry RegistryFields  `yaml:"registry" validate:"required"`
	Events   EventFields     `yaml:"events" validate:"required"`
	Values   Values          `yaml:"values" validate:"required"`
}

// BenefitsColumns are the header names of the benefits feed.
type BenefitsColumns struct {
	ParticipantCode string `yaml:"participant_code" validate:"required"`
	EmployerCode    string `yaml:"employer_code" validate:"required"`
	EmployerName    string `yaml:"employer_name" validate:"required"`
	EmployeeCode    string `yaml:"employee_code" validate:"required"`
	LossDueDate     string `yaml:"loss_due_date" validate:"required"`
	StartDate       string `yaml:"start_date" validate:"required"`
	LossDate        string `yaml:"loss_date" validate:"required"`
	LimitCategory   string `yaml:"limit_category" validate:"required"`
	ScheduledAmount string `yaml:"scheduled_amount" validate:"required"`
	Suspended       string `yaml:"suspended" validate:"required"`
	EmployerAmount  string `yaml:"employer_amount" validate:"required"`
}

// IdentityColumns are the header names of the identity feed.
type IdentityColumns struct {
	ParticipantCode   string `yaml:"participant_code" validate:"required"`
	Name              string `yaml:"name" validate:"required"`
	KanaName          string `yaml:"kana_name" validate:"required"`
	BirthDate         string `yaml:"birth_date" validate:"required"`
	Sex               string `yaml:"sex" validate:"required"`
	PostalCode        string `yaml:"postal_code" validate:"required"`
	Address1          string `yaml:"address1" validate:"required"`
	Address2          string `yaml:"address2" validate:"required"`
	Address3          string `yaml:"address3" validate:"required"`
	PensionNumber     string `yaml:"pension_number" validate:"required"`
	HireDate          string `yaml:"hire_date" validate:"required"`
	AcquisitionDate   string `yaml:"acquisition_date" validate:"required"`
	ContributionStart string `yaml:"contribution_start" validate:"required"`
}

// Participant attributes a payload mapping may read.
const (
	SourceMembership        = "membership"
	SourceParticipantCode   = "participant_code"
	SourceEmployerCode      = "employer_code"
	SourceEmployerName      = "employer_name"
	SourceEmployeeCode      = "employee_code"
	SourceLossDueDate       = "loss_due_date"
	SourceStartDate         = "start_date"
	SourceLossDate          = "loss_date"
	SourceLimitCategory     = "limit_category"
	SourceScheduledAmount   = "scheduled_amount"
	SourceSuspended         = "suspended"
	SourceEmployerAmount    = "employer_amount"
	SourceName              = "name"
	SourceKanaName          = "kana_name"
	SourceBirthDate         = "birth_date"
	SourceSex               = "sex"
	SourcePostalCode        = "postal_code"
	SourceAddress1          = "address1"
	SourceAddress2          = "address2"
	SourceAddress3          = "address3"
	SourcePensionNumber     = "pension_number"
	SourceHireDate          = "hire_date"
	SourceAcquisitionDate   = "acquisition_date"
	SourceContributionStart = "contribution_start"
)

// Mapping copies one participant attribute into one remote field.
type Mapping struct {
	Field  string `yaml:"field" validate:"required"`
	Source string `yaml:"source" validate:"required,oneof=membership participant_code employer_code employer_name employee_code loss_due_date start_date loss_date limit_category scheduled_amount suspended employer_amount name kana_name birth_date sex postal_code address1 address2 address3 pension_number hire_date acquisition_date contribution_start"`
	Format string `yaml:"format,omitempty" validate:"omitempty,oneof=date"`
}

// LedgerFields are the field codes of the primary participant application.
type LedgerFields struct {
	ID              string    `yaml:"id" validate:"required"`
	ParticipantCode string    `yaml:"participant_code" validate:"required"`
	PensionNumber   string    `yaml:"pension_number" validate:"required"`
	Payload         []Mapping `yaml:"payload" validate:"required,min=1,dive"`

	History               string `yaml:"history" validate:"required"`
	HistoryTimestamp      string `yaml:"history_timestamp" validate:"required"`
	HistoryType           string `yaml:"history_type" validate:"required"`
	CompanyRecordNo       string `yaml:"company_record_no" validate:"required"`
	CurrentContribution   string `yaml:"current_contribution" validate:"required"`
	DiffFlag              string `yaml:"diff_flag" validate:"required"`
	PlanType              string `yaml:"plan_type" validate:"required"`
	PersonalAmount        string `yaml:"personal_amount" validate:"required"`
	CorporateAmount       string `yaml:"corporate_amount" validate:"required"`
	TotalAmount           string `yaml:"total_amount" validate:"required"`
	PersonalDisplay       string `yaml:"personal_display" validate:"required"`
	CorporateDisplay      string `yaml:"corporate_display" validate:"required"`
	TotalDisplay          string `yaml:"total_display" validate:"required"`
	ContributionContactAt string `yaml:"contribution_contact_at" validate:"required"`
}

// RegistryFields are the field codes of an employee registry application.
type RegistryFields struct {
	ID            string `yaml:"id" validate:"required"`
	PensionNumber string `yaml:"pension_number" validate:"required"`
	FamilyKana    string `yaml:"family_kana" validate:"required"`
	GivenKana     string `yaml:"given_kana" validate:"required"`
	BirthDate     string `yaml:"birth_date" validate:"required"`
	Membership    string `yaml:"membership" validate:"required"`
}

// EventFields are the field codes of the procedure event queue.
type EventFields struct {
	ID              string `yaml:"id" validate:"required"`
	PensionNumber   string `yaml:"pension_number" validate:"required"`
	Type            string `yaml:"type" validate:"required"`
	CreatedAt       string `yaml:"created_at" validate:"required"`
	CompanyRecordNo string `yaml:"company_record_no" validate:"required"`
	PersonalAmount  string `yaml:"personal_amount" validate:"required"`
	CorporateAmount string `yaml:"corporate_amount" validate:"required"`
	TotalAmount     string `yaml:"total_amount" validate:"required"`
	PlanType        string `yaml:"plan_type" validate:"required"`
	LossDueDate     string `yaml:"loss_due_date" validate:"required"`
	Status          string `yaml:"status" validate:"required"`
	Status2         string `yaml:"status2" validate:"required"`
}

// Values is the vocabulary written into flag and status fields.
type Values struct {
	MembershipActive   string   `yaml:"membership_active" validate:"required"`
	MembershipInactive string   `yaml:"membership_inactive" validate:"required"`
	DiffPresent        string   `yaml:"diff_present" validate:"required"`
	DiffAbsent         string   `yaml:"diff_absent" validate:"required"`
	Untranscribed      string   `yaml:"untranscribed" validate:"required"`
	Transcribed        string   `yaml:"transcribed" validate:"required"`
	Complete           string   `yaml:"complete" validate:"required"`
	RegistrationError  string   `yaml:"registration_error" validate:"required"`
	NameSeparator      string   `yaml:"name_separator" validate:"required"`
	ContributionEvents []string `yaml:"contribution_events" validate:"required,min=1"`
}

// Membership returns the flag value for an enrolled or withdrawn participant.
func (v Values) Membership(active bool) string {
	if active {
		return v.MembershipActive
	}
	return v.MembershipInactive
}

// IsContributionEvent reports whether an event type carries contribution amounts.
func (v Values) IsContributionEvent(eventType string) bool {
	return slices.Contains(v.ContributionEvents, eventType)
}

// IndexFields lists the ledger field codes the exact index scan needs.
func (l LedgerFields) IndexFields() []string {
	return []string{l.ID, l.ParticipantCode}
}

// TranscriptionFields lists the ledger field codes read while transcribing events.
func (l LedgerFields) TranscriptionFields() []string {
	return []string{
		l.ID, l.PensionNumber, l.History, l.DiffFlag, l.CurrentContribution,
		l.PlanType, l.PersonalDisplay, l.CorporateDisplay, l.TotalDisplay,
		l.ContributionContactAt,
	}
}

// IndexFields lists the registry field codes the fuzzy index scan needs.
func (r RegistryFields) IndexFields() []string {
	return []string{r.ID, r.PensionNumber, r.FamilyKana, r.GivenKana, r.BirthDate}
}

// QueueFields lists the event field codes read from the queue.
func (e EventFields) QueueFields() []string {
	return []string{
		e.ID, e.PensionNumber, e.Type, e.CreatedAt, e.CompanyRecordNo,
		e.PersonalAmount, e.CorporateAmount, e.TotalAmount, e.PlanType,
		e.LossDueDate,
	}
}

// StatusFields lists the event field codes read when settling statuses.
func (e EventFields) StatusFields() []string {
	return []string{e.ID, e.Status, e.Status2}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Default returns the built-in mapping table.
func Default() (*Table, error) {
	t := &Table{}
	if err := yaml.Unmarshal(defaultYAML, t); err != nil {
		return nil, errors.WrapParse("yaml", "default.yaml", err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// MustDefault is like Default but panics on error.
func MustDefault() *Table {
	t, err := Default()
	if err != nil {
		panic(fmt.Sprintf("embedded field map: %v", err))
	}
	return t
}

// Load reads a mapping file and overlays it on the built-in table. An empty
// path returns the built-in table unchanged.
func Load(path string) (*Table, error) {
	t, err := Default()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return t, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapIO("read", path, err)
	}
	if err := yaml.Unmarshal(data, t); err != nil {
		return nil, errors.WrapParse("yaml", path, err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Validate checks that every field code and value is declared.
func (t *Table) Validate() error {
	if err := validate.Struct(t); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			first := verrs[0]
			return &errors.ValidationError{
				Field:   first.Namespace(),
				Value:   first.Value(),
				Message: fmt.Sprintf("failed %q check", first.Tag()),
			}
		}
		return errors.WrapValidation("fieldmap", err)
	}
	return nil
}
