package rbac

import (
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/recargaplus/storefront/internal/shared"
)

// Outcome is the result of a route guard evaluation.
type Outcome int

const (
	// Allow lets the request through to page code.
	Allow Outcome = iota
	// Block redirects the request to Decision.Location.
	Block
)

func (o Outcome) String() string {
	if o == Allow {
		return "allow"
	}
	return "block"
}

// Reasons attached to guard decisions.
const (
	ReasonNone            = "none"
	ReasonUnprotected     = "unprotected"
	ReasonUnauthenticated = "unauthenticated"
	ReasonRoleNotAllowed  = "role_not_allowed"
	ReasonRouteRestricted = "route_restricted"
)

// Query parameters carried by guard redirects.
const (
	ParamCallback = "callbackUrl"
	ParamMessage  = "message"
	ParamError    = "error"

	MessageUnauthorized = "unauthorized"
)

// LoginPath is where unauthenticated requests are sent.
const LoginPath = "/login"

// Decision is the outcome of one guard evaluation.
type Decision struct {
	Outcome  Outcome
	Reason   string
	Location string
}

// DecisionRecorder observes guard decisions, e.g. for metrics.
type DecisionRecorder interface {
	RecordGuardDecision(outcome, reason string)
}

// Guard is the request-level checkpoint for the dashboard. It runs before
// any page handler and is the enforcement point that must always be
// mounted; page guards only repeat a subset of its checks.
type Guard struct {
	table    *RouteTable
	logger   *slog.Logger
	recorder DecisionRecorder
	now      func() time.Time
}

// NewGuard builds a Guard over table. logger and recorder may be nil.
func NewGuard(table *RouteTable, logger *slog.Logger, recorder DecisionRecorder) *Guard {
	return &Guard{table: table, logger: logger, recorder: recorder, now: time.Now}
}

// Evaluate decides whether a request for u made by p may proceed.
func (g *Guard) Evaluate(u *url.URL, p shared.Principal) Decision {
	requested := u.Path
	if !hasPathPrefix(requested, g.table.Root()) {
		return Decision{Outcome: Allow, Reason: ReasonUnprotected}
	}
	target := cleanPath(requested)
	if !g.table.Protects(target) {
		// Dot segments escaped the root; judge it as the root itself.
		target = g.table.Root()
	}

	auth, ok := p.(shared.Authenticated)
	if !ok || auth.Token == "" {
		return Decision{
			Outcome:  Block,
			Reason:   ReasonUnauthenticated,
			Location: LoginPath + "?" + url.Values{ParamCallback: {u.RequestURI()}}.Encode(),
		}
	}
	if !g.table.RootAllows(auth.Role) {
		return Decision{
			Outcome:  Block,
			Reason:   ReasonRoleNotAllowed,
			Location: LoginPath + "?" + url.Values{ParamError: {MessageUnauthorized}}.Encode(),
		}
	}
	if !g.table.PathAllows(target, auth.Role) {
		return Decision{
			Outcome:  Block,
			Reason:   ReasonRouteRestricted,
			Location: g.table.Root() + "?" + url.Values{ParamMessage: {MessageUnauthorized}}.Encode(),
		}
	}
	return Decision{Outcome: Allow, Reason: ReasonNone}
}

// Middleware enforces Evaluate on every request.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := shared.PrincipalFromSession(shared.SessionFromContext(r.Context()), g.now())
		decision := g.Evaluate(r.URL, p)
		if g.recorder != nil {
			g.recorder.RecordGuardDecision(decision.Outcome.String(), decision.Reason)
		}
		if decision.Outcome == Allow {
			next.ServeHTTP(w, r)
			return
		}
		if g.logger != nil {
			g.logger.Info("route guard blocked request",
				slog.String("path", r.URL.Path),
				slog.String("reason", decision.Reason),
			)
		}
		http.Redirect(w, r, decision.Location, http.StatusSeeOther)
	})
}
