// Package ownership turns a caller identity into the store.Filter that gates
// every read and write issued on that caller's behalf.
package ownership

import (
	apperrors "finserv-applications/internal/common/errors"
	"finserv-applications/internal/models"
	"finserv-applications/internal/store"
	"finserv-applications/pkg/registry"
)

// Scope returns the predicate for caller on entry:
//   - admins see everything,
//   - regular callers see records they own,
//   - anonymous categories are admin-only for reads.
//
// A caller without an id matches nothing.
func Scope(caller models.Caller, entry registry.Entry) store.Filter {
	if caller.IsAdmin {
		return store.Filter{AllOwners: true}
	}
	if entry.Anonymous || caller.Anonymous() {
		return store.Filter{Deny: true}
	}
	return store.Filter{OwnerID: caller.ID}
}

// RequireList rejects listing requests that could only ever return nothing
// because of permissions, so callers can tell "no access" from "no data".
func RequireList(caller models.Caller, entry registry.Entry) (store.Filter, error) {
	filter := Scope(caller, entry)
	if filter.Deny {
		return filter, apperrors.NewForbiddenError("caller may not list " + string(entry.Category))
	}
	return filter, nil
}

// RequireAdmin guards admin-only operations.
func RequireAdmin(caller models.Caller, action string) error {
	if !caller.IsAdmin {
		return apperrors.NewForbiddenError("only administrators may " + action)
	}
	return nil
}
