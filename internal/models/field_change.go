package models

// FieldChange is one field-level entry in a conflict payload. BaseValue is
// the value at the caller's base version, IncomingValue the competing
// change's value, MineValue the caller's pending value (nil when the caller
// did not touch the field), and DisplayValue a human-readable rendering of
// the incoming value.
type FieldChange struct {
	Field         string      `json:"field"`
	BaseValue     interface{} `json:"base_value"`
	IncomingValue interface{} `json:"incoming_value"`
	MineValue     interface{} `json:"mine_value,omitempty"`
	DisplayValue  string      `json:"display_value"`
}
