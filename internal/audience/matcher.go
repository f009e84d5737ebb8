package audience

import "time"

// Audience is the targeting predicate attached to an experiment. Every
// present field must pass; absent fields are skipped. An empty Audience
// matches everyone.
type Audience struct {
	Roles            []string   `json:"roles,omitempty"`
	EmailDomains     []string   `json:"email_domains,omitempty"`
	RegisteredAfter  *time.Time `json:"registered_after,omitempty"`
	RegisteredBefore *time.Time `json:"registered_before,omitempty"`
	Regions          []string   `json:"regions,omitempty"`
	Tags             []string   `json:"tags,omitempty"`
}

// Empty reports whether the audience places no restriction at all.
func (a *Audience) Empty() bool {
	if a == nil {
		return true
	}
	return len(a.Roles) == 0 &&
		len(a.EmailDomains) == 0 &&
		a.RegisteredAfter == nil &&
		a.RegisteredBefore == nil &&
		len(a.Regions) == 0 &&
		len(a.Tags) == 0
}

// Matches evaluates the subject against the audience. All present
// predicates must pass.
func Matches(s *Subject, a *Audience) bool {
	if a.Empty() {
		return true
	}
	if s == nil {
		return false
	}
	if len(a.Roles) > 0 && !contains(a.Roles, s.Role) {
		return false
	}
	if len(a.EmailDomains) > 0 && !contains(a.EmailDomains, s.EmailDomain) {
		return false
	}
	if a.RegisteredAfter != nil && s.RegisteredAt.Before(*a.RegisteredAfter) {
		return false
	}
	if a.RegisteredBefore != nil && s.RegisteredAt.After(*a.RegisteredBefore) {
		return false
	}
	if len(a.Regions) > 0 && !contains(a.Regions, s.Region) {
		return false
	}
	if len(a.Tags) > 0 && !overlaps(s.Tags, a.Tags) {
		return false
	}
	return true
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func overlaps(have, want []string) bool {
	for _, w := range want {
		if contains(have, w) {
			return true
		}
	}
	return false
}
