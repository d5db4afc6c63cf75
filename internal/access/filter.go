// Package access builds the ports.Filter an authenticated request is
// allowed to search under (workflow §4.4). It is the one place in the
// engine that talks to the AccessControlPort for visibility (as opposed to
// cache write-gating, which internal/cache owns separately).
package access

import (
	"context"
	"fmt"

	"github.com/corvidai/retrieval-core/internal/ports"
	"github.com/corvidai/retrieval-core/internal/workflow"
)

// Builder constructs a ports.Filter for a user.
type Builder struct {
	acl ports.AccessControlPort
}

// New creates a Builder.
func New(acl ports.AccessControlPort) *Builder {
	return &Builder{acl: acl}
}

// Build returns the filter for user. SUPER_ADMIN always gets AllowAll.
// Every other role gets the ACL port's visible-document set, which may be
// empty — callers must treat an empty, non-AllowAll filter as a
// zero-result short-circuit, never as AllowAll.
//
// A failure of the ACL port fails closed: Build returns
// workflow.KindAccessDenied rather than silently producing AllowAll.
func (b *Builder) Build(ctx context.Context, user workflow.UserContext) (ports.Filter, error) {
	if user.Role == workflow.RoleSuperAdmin {
		return ports.Filter{AllowAll: true}, nil
	}

	ids, err := b.acl.VisibleDocumentIds(ctx, user.UserID, user.Role.String())
	if err != nil {
		return ports.Filter{}, workflow.NewError(workflow.KindAccessDenied, fmt.Errorf("resolving visible documents: %w", err))
	}
	return ports.Filter{DocumentIDs: ids}, nil
}
