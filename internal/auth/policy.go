package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

// Wildcard grants a role access to every operation.
const Wildcard = "*"

// Policy maps roles to the set of operations they may invoke. The zero
// value denies everything, so a missing or empty policy fails closed.
type Policy struct {
	roles map[string]map[string]struct{}
}

type policyFile struct {
	Policies []struct {
		Role      string   `json:"role"`
		Resources []string `json:"resources"`
	} `json:"policies"`
}

// LoadPolicyFile reads a JSON policy table:
//
//	{"policies": [
//	  {"role": "admin", "resources": ["*"]},
//	  {"role": "reader", "resources": ["search_entities", "get_status"]}
//	]}
func LoadPolicyFile(path string) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read policy: %w", err)
	}
	return ParsePolicy(data)
}

// ParsePolicy decodes a policy document. Duplicate roles merge their
// resource sets.
func ParsePolicy(data []byte) (Policy, error) {
	var file policyFile
	if err := json.Unmarshal(data, &file); err != nil {
		return Policy{}, fmt.Errorf("parse policy: %w", err)
	}
	p := Policy{roles: make(map[string]map[string]struct{}, len(file.Policies))}
	for i, entry := range file.Policies {
		role := strings.TrimSpace(entry.Role)
		if role == "" {
			return Policy{}, fmt.Errorf("policy entry %d: role required", i)
		}
		set := p.roles[role]
		if set == nil {
			set = make(map[string]struct{}, len(entry.Resources))
			p.roles[role] = set
		}
		for _, res := range entry.Resources {
			res = strings.TrimSpace(res)
			if res == "" {
				return Policy{}, fmt.Errorf("policy entry %d (role %s): empty resource", i, role)
			}
			set[res] = struct{}{}
		}
	}
	return p, nil
}

// Allowed reports whether role may invoke op. Unknown roles and empty
// roles deny.
func (p Policy) Allowed(role, op string) bool {
	set, ok := p.roles[role]
	if !ok {
		return false
	}
	if _, all := set[Wildcard]; all {
		return true
	}
	_, allowed := set[op]
	return allowed
}

// KnownRole reports whether role appears in the table at all.
func (p Policy) KnownRole(role string) bool {
	_, ok := p.roles[role]
	return ok
}

// Roles lists the configured roles in sorted order.
func (p Policy) Roles() []string {
	out := make([]string, 0, len(p.roles))
	for role := range p.roles {
		out = append(out, role)
	}
	sort.Strings(out)
	return out
}

// Resources lists the operations granted to role in sorted order.
func (p Policy) Resources(role string) []string {
	set, ok := p.roles[role]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(set))
	for res := range set {
		out = append(out, res)
	}
	sort.Strings(out)
	return out
}
