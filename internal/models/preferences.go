package models

// PreferenceType is the control a preference is rendered with.
type PreferenceType string

const (
	PreferenceSelect      PreferenceType = "select"
	PreferenceMultiSelect PreferenceType = "multiselect"
	PreferenceStepper     PreferenceType = "stepper"
	PreferenceToggle      PreferenceType = "toggle"
	PreferenceTextField   PreferenceType = "textfield"
	PreferenceButton      PreferenceType = "button"
	PreferenceLink        PreferenceType = "link"
)

// Preference is a single declarative setting. The host renders it and
// reports changes back through updateSourcePreferences.
type Preference struct {
	ID            string         `json:"id"`
	Title         string         `json:"title"`
	Type          PreferenceType `json:"type"`
	Options       []Option       `json:"options,omitempty"`
	Value         any            `json:"value,omitempty"`
	MinValue      *float64       `json:"minValue,omitempty"`
	MaxValue      *float64       `json:"maxValue,omitempty"`
	IsDestructive bool           `json:"isDestructive,omitempty"`
}

// PreferenceGroup is a titled block of preferences.
type PreferenceGroup struct {
	ID       string       `json:"id"`
	Header   string       `json:"header,omitempty"`
	Footer   string       `json:"footer,omitempty"`
	Children []Preference `json:"children"`
}
