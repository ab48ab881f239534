package models

import "strings"

// LeadRef addresses a lead by mobile number or email address. Mobile takes
// precedence when both are set.
type LeadRef struct {
	Mobile string `json:"mobile,omitempty" yaml:"mobile,omitempty"`
	Email  string `json:"email,omitempty" yaml:"email,omitempty"`
}

// Contact returns the identifier used to look the lead up in providers.
func (r LeadRef) Contact() string {
	if m := strings.TrimSpace(r.Mobile); m != "" {
		return m
	}
	return strings.TrimSpace(r.Email)
}

// Key returns the storage key for the lead. Email addresses have '@' and '.'
// replaced with '_' so the key is usable as a directory name.
func (r LeadRef) Key() string {
	if m := strings.TrimSpace(r.Mobile); m != "" {
		return m
	}
	e := strings.TrimSpace(r.Email)
	e = strings.ReplaceAll(e, "@", "_")
	return strings.ReplaceAll(e, ".", "_")
}

// IsZero reports whether neither identifier is set.
func (r LeadRef) IsZero() bool {
	return r.Contact() == ""
}
