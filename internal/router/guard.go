package router

import (
	"context"

	appLog "bandcal/internal/log"
	"bandcal/internal/model"
)

// Decision is the guard's verdict on a navigation.
type Decision struct {
	Allow    bool
	Redirect string
}

func allow() Decision               { return Decision{Allow: true} }
func redirect(path string) Decision { return Decision{Redirect: path} }

// SessionSource re-derives the caller's identity for each check.
type SessionSource interface {
	FetchSession(ctx context.Context) (*model.Session, error)
	FetchProfile(ctx context.Context, id string) (*model.Profile, error)
}

// SignOuter forces a full sign-out.
type SignOuter interface {
	SignOut(ctx context.Context) bool
}

// Guard enforces each route's RequiresAuth / RequiresAdmin flags against a
// freshly fetched session and profile.
type Guard struct {
	src     SessionSource
	signOut SignOuter
}

func NewGuard(src SessionSource, signOut SignOuter) *Guard {
	return &Guard{src: src, signOut: signOut}
}

func (g *Guard) Check(ctx context.Context, to Route) Decision {
	session, err := g.src.FetchSession(ctx)
	if err != nil {
		appLog.Warn("guard: session lookup failed", "route", to.Name, "err", err)
		session = nil
	}
	signedIn := session != nil && session.Identity != nil

	if !to.RequiresAuth {
		if signedIn && (to.Name == "login" || to.Name == "signup") {
			return redirect(HomePath)
		}
		return allow()
	}

	if !signedIn {
		return redirect("/login")
	}

	if to.RequiresAdmin {
		profile, err := g.src.FetchProfile(ctx, session.Identity.ID)
		if err != nil {
			appLog.Error("guard: profile lookup failed, signing out", err, "route", to.Name, "user_id", session.Identity.ID)
			if g.signOut != nil {
				g.signOut.SignOut(ctx)
			}
			return redirect("/login")
		}
		if profile == nil || profile.Role != model.RoleAdmin {
			return redirect(HomePath)
		}
	}

	return allow()
}
