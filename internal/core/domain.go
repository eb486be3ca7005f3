package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Credit Kind = "credit"
	Debit  Kind = "debit"
)

type (
	// Kind is a transfer flow direction. Credit adds to a person's
	// earmarked balance on a sub-project, debit withdraws from it.
	Kind string

	Person struct {
		ID   int64
		Name string
	}

	Project struct {
		ID   int64
		Name string
		Rank int64
	}

	SubProject struct {
		ID        int64
		Name      string
		ProjectID int64
		Rank      int64
	}

	// Transfer is a single ledger row. Amount is the unsigned
	// magnitude; the sign comes from Kind.
	Transfer struct {
		ID           int64
		Time         time.Time
		PersonID     int64
		SubProjectID int64
		Kind         Kind
		Amount       decimal.Decimal
		Memo         string
	}

	// TransferView is a transfer joined with its display names, as
	// returned by list queries.
	TransferView struct {
		ID           int64
		Time         time.Time
		PersonID     int64
		SubProjectID int64
		Person       string
		Project      string
		SubProject   string
		Kind         Kind
		Amount       decimal.Decimal
		Memo         string
	}

	// TransferFilter restricts a transfer listing. Empty fields match
	// everything; non-empty fields are exact matches bound as SQL
	// parameters.
	TransferFilter struct {
		Person  string
		Project string
		Kind    Kind
	}
)

var (
	ErrNotFound          = errors.New("not found")
	ErrDuplicateName     = errors.New("duplicate name")
	ErrReferenced        = errors.New("still referenced")
	ErrUnknownPerson     = errors.New("unknown person")
	ErrUnknownProject    = errors.New("unknown project")
	ErrUnknownSubProject = errors.New("unknown sub-project")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInvalidKind       = errors.New("invalid kind")
	ErrEmptyName         = errors.New("empty name")
	ErrInvalidName       = errors.New("invalid name")
)

// BalanceError reports a mutation that would leave a (person,
// sub-project) balance negative. The mutation has been rolled back.
type BalanceError struct {
	Person     string
	Project    string
	SubProject string
	Balance    decimal.Decimal
}

func (e *BalanceError) Error() string {
	return fmt.Sprintf("balance for %s on %s/%s would become %s",
		e.Person, e.Project, e.SubProject, e.Balance.String())
}

// ParseKind validates a flow direction string.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case Credit, Debit:
		return Kind(s), nil
	default:
		return "", ErrInvalidKind
	}
}

// Signed applies the kind's sign to an unsigned amount.
func (k Kind) Signed(amount decimal.Decimal) decimal.Decimal {
	if k == Debit {
		return amount.Neg()
	}
	return amount
}

func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrEmptyName
	}
	if len(name) > 200 {
		return fmt.Errorf("name too long (max 200 characters): %w", ErrInvalidName)
	}
	return nil
}

func (t Transfer) Validate() error {
	if t.Time.IsZero() {
		return errors.New("time cannot be zero")
	}
	if t.PersonID == 0 {
		return ErrUnknownPerson
	}
	if t.SubProjectID == 0 {
		return ErrUnknownSubProject
	}
	if _, err := ParseKind(string(t.Kind)); err != nil {
		return err
	}
	if t.Amount.IsNegative() {
		return ErrInvalidAmount
	}
	return nil
}
