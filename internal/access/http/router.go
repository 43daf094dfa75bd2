package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/ledgerdrop/internal/access/service"
	"github.com/aussiebroadwan/ledgerdrop/internal/access/store"
	"github.com/aussiebroadwan/ledgerdrop/pkg/httpx"
	"github.com/aussiebroadwan/ledgerdrop/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	buildVersion string
	startTime    time.Time
	logger       *slog.Logger
	store        store.Store

	TokenService     *service.TokenService
	SessionService   *service.SessionService
	BootstrapService *service.BootstrapService

	// MetricsHandler is mounted at /metrics when set.
	MetricsHandler http.Handler
}

func NewRouter(buildVersion string, st store.Store, logger *slog.Logger) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		buildVersion: buildVersion,
		startTime:    time.Now(),
		logger:       logger,
		store:        st,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
		httpx.Recover(),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerPasswordReset()
	r.registerInvites()
	r.registerSessions()
	r.registerBootstrap()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title						ledgerdrop Access API
//	@version					0.1.0
//	@description				Invites, password resets and sessions for ledgerdrop firms, accountants and clients.
//	@BasePath					/
//	@schemes					http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Session token. Format: "Bearer {token}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) authenticate(ctx context.Context, bearer string) (string, string, error) {
	p, err := r.SessionService.Authenticate(ctx, bearer)
	return p.UserID, p.SessionID, err
}

func (r *Router) registerPasswordReset() {
	// Both endpoints are public and guess-able, so strict per-IP limits apply.
	r.Mux.Handle("POST /v1/password-reset",
		httpx.Chain(&PasswordResetHandler{TokenService: r.TokenService},
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
	r.Mux.Handle("POST /v1/password-reset/redeem",
		httpx.Chain(&PasswordResetRedeemHandler{TokenService: r.TokenService},
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
}

func (r *Router) registerInvites() {
	r.Mux.Handle("POST /v1/invites",
		httpx.Chain(&InviteHandler{TokenService: r.TokenService},
			httpx.AuthnMiddleware(r.authenticate),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		),
	)
	r.Mux.Handle("POST /v1/invites/redeem",
		httpx.Chain(&InviteRedeemHandler{TokenService: r.TokenService},
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
}

func (r *Router) registerSessions() {
	// Login is limited by IP and by IP + email so one address cannot be
	// sprayed from many connections sharing an IP.
	r.Mux.Handle("POST /v1/sessions",
		httpx.Chain(&LoginHandler{SessionService: r.SessionService},
			httpx.RateLimitByIP(httpx.ModerateLimit),
			httpx.RateLimitByIPAndJSONField(httpx.StrictLimit, "email"),
		),
	)
	r.Mux.Handle("DELETE /v1/sessions/current",
		httpx.Chain(&LogoutHandler{SessionService: r.SessionService},
			httpx.AuthnMiddleware(r.authenticate),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		),
	)
	r.Mux.Handle("GET /v1/me",
		httpx.Chain(&MeHandler{SessionService: r.SessionService},
			httpx.AuthnMiddleware(r.authenticate),
			httpx.RateLimitByUser(httpx.LenientLimit),
		),
	)
}

func (r *Router) registerBootstrap() {
	r.Mux.Handle("POST /v1/bootstrap",
		httpx.Chain(&BootstrapHandler{BootstrapService: r.BootstrapService},
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	if r.MetricsHandler != nil {
		r.Mux.Handle("GET /metrics", r.MetricsHandler)
	}
}
