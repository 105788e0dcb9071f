// Package authz carries the caller identity resolved by the upstream auth
// layer and answers role questions about it.
package authz

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/codr1/courtbook/internal/models"
)

const (
	ActorIDHeader   = "X-Actor-ID"
	ActorRoleHeader = "X-Actor-Role"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
)

type actorContextKey struct{}

func ContextWithActor(ctx context.Context, actor models.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext retrieves the actor stored in ctx. ok is false if ctx is
// nil or carries no actor.
func ActorFromContext(ctx context.Context) (models.Actor, bool) {
	if ctx == nil {
		return models.Actor{}, false
	}
	actor, ok := ctx.Value(actorContextKey{}).(models.Actor)
	return actor, ok
}

// ActorFromHeaders parses the identity headers. ok is false when neither
// header is present; a partial or malformed pair is an error.
func ActorFromHeaders(h http.Header) (models.Actor, bool, error) {
	rawID := strings.TrimSpace(h.Get(ActorIDHeader))
	rawRole := strings.TrimSpace(h.Get(ActorRoleHeader))
	if rawID == "" && rawRole == "" {
		return models.Actor{}, false, nil
	}

	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id <= 0 {
		return models.Actor{}, false, fmt.Errorf("%s must be a positive integer", ActorIDHeader)
	}
	role, ok := models.ParseRole(rawRole)
	if !ok {
		return models.Actor{}, false, fmt.Errorf("%s must be one of player, staff, admin, owner", ActorRoleHeader)
	}
	return models.Actor{ID: id, Role: role}, true, nil
}

// RequireActor returns the authenticated actor or ErrUnauthenticated.
func RequireActor(ctx context.Context) (models.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return models.Actor{}, ErrUnauthenticated
	}
	return actor, nil
}

// RequireStaff returns the actor when it holds a staff, admin or owner role.
func RequireStaff(ctx context.Context) (models.Actor, error) {
	actor, err := RequireActor(ctx)
	if err != nil {
		return models.Actor{}, err
	}
	if !actor.IsStaff() {
		return models.Actor{}, ErrForbidden
	}
	return actor, nil
}

// CanViewBooking reports whether actor may read booking.
func CanViewBooking(actor models.Actor, booking models.Booking) bool {
	return actor.IsStaff() || booking.BelongsTo(actor.ID)
}
