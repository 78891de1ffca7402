package model

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// BillingScenario is a pricing and revenue-share rule for one practitioner
// performing one service item. Negative ids are client placeholders for
// scenarios that have not been created yet.
type BillingScenario struct {
	ID           int64  `json:"id"`
	Name         string `json:"name" validate:"required,max=100"`
	Amount       int64  `json:"amount" validate:"gte=0,gtefield=RevenueShare"`
	RevenueShare int64  `json:"revenue_share" validate:"gte=0"`
	IsDefault    bool   `json:"is_default"`
}

func (s BillingScenario) IsTemporary() bool {
	return s.ID < 0
}

// Label names the scenario in error reports.
func (s BillingScenario) Label() string {
	if s.Name != "" {
		return s.Name
	}
	return "scenario " + strconv.FormatInt(s.ID, 10)
}

// CompareBillingScenarios orders scenarios by id, then by content.
func CompareBillingScenarios(a, b BillingScenario) int {
	return cmp.Or(
		cmp.Compare(a.ID, b.ID),
		strings.Compare(a.Name, b.Name),
		cmp.Compare(a.Amount, b.Amount),
		cmp.Compare(a.RevenueShare, b.RevenueShare),
		compareBool(a.IsDefault, b.IsDefault),
	)
}

func compareBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	default:
		return 1
	}
}

// ScenarioKey scopes billing scenarios to a (service item, practitioner) pair.
// The service item is the appointment type.
type ScenarioKey struct {
	ServiceItemID  int64 `json:"service_item_id"`
	PractitionerID int64 `json:"practitioner_id"`
}

func (k ScenarioKey) String() string {
	return fmt.Sprintf("%d:%d", k.ServiceItemID, k.PractitionerID)
}

func (k ScenarioKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *ScenarioKey) UnmarshalText(text []byte) error {
	item, practitioner, ok := strings.Cut(string(text), ":")
	if !ok {
		return fmt.Errorf("invalid scenario key %q", text)
	}
	sid, err := strconv.ParseInt(item, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid service item id in scenario key %q: %w", text, err)
	}
	pid, err := strconv.ParseInt(practitioner, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid practitioner id in scenario key %q: %w", text, err)
	}
	k.ServiceItemID, k.PractitionerID = sid, pid
	return nil
}

func CompareScenarioKeys(a, b ScenarioKey) int {
	return cmp.Or(
		cmp.Compare(a.ServiceItemID, b.ServiceItemID),
		cmp.Compare(a.PractitionerID, b.PractitionerID),
	)
}

// BillingScenarios holds scenario lists per (service item, practitioner).
type BillingScenarios map[ScenarioKey][]BillingScenario

func (b BillingScenarios) Clone() BillingScenarios {
	if b == nil {
		return nil
	}
	out := make(BillingScenarios, len(b))
	for k, v := range b {
		out[k] = slices.Clone(v)
	}
	return out
}

// Keys returns the keys in a stable order.
func (b BillingScenarios) Keys() []ScenarioKey {
	keys := make([]ScenarioKey, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, CompareScenarioKeys)
	return keys
}

// BillingScenarioRef is what the clinic API returns after a create.
type BillingScenarioRef struct {
	ID                            int64 `json:"id"`
	PractitionerAppointmentTypeID int64 `json:"practitioner_appointment_type_id"`
}
