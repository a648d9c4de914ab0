package board

import "os"

// ResolveUser determines the effective username gating ACL checks:
// CDBA_USER, then USER, then "nobody" (spec.md §6).
func ResolveUser() string {
	if u := os.Getenv("CDBA_USER"); u != "" {
		return u
	}
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "nobody"
}
