package users

import (
	"context"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/goliatone/go-users/middleware/jwtware"
)

// RouteAuthenticator wires the Authenticator into HTTP middleware. It owns
// the error handlers used when a request carries a bad or missing token.
type RouteAuthenticator struct {
	auth         Authenticator
	cfg          Config
	Logger       Logger
	ErrorHandler func(c router.Context, err error) error
}

func NewHTTPAuthenticator(auther Authenticator, cfg Config) (*RouteAuthenticator, error) {
	a := &RouteAuthenticator{
		cfg:    cfg,
		auth:   auther,
		Logger: defLogger{},
	}

	a.ErrorHandler = a.defaultErrHandler

	return a, nil
}

// tokenValidatorBridge adapts TokenService to the middleware's validator
// interface without creating an import cycle.
type tokenValidatorBridge struct {
	service TokenService
}

func (b tokenValidatorBridge) Validate(tokenString string) (jwtware.AuthClaims, error) {
	claims, err := b.service.Validate(tokenString)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// TokenValidatorBridge exposes the bridge for custom middleware setups.
func TokenValidatorBridge(service TokenService) jwtware.TokenValidator {
	return tokenValidatorBridge{service: service}
}

// ProtectedRoute requires a valid bearer token. Claims end up in request
// locals under the configured context key.
func (a *RouteAuthenticator) ProtectedRoute(cfg Config, errorHandler func(router.Context, error) error) router.MiddlewareFunc {
	return a.protected(cfg, "", errorHandler)
}

// ProtectedRouteMinRole requires a valid bearer token whose role claim sits
// at or above minRole in the hierarchy.
func (a *RouteAuthenticator) ProtectedRouteMinRole(cfg Config, minRole UserRole, errorHandler func(router.Context, error) error) router.MiddlewareFunc {
	return a.protected(cfg, minRole, errorHandler)
}

func (a *RouteAuthenticator) protected(cfg Config, minRole UserRole, errorHandler func(router.Context, error) error) router.MiddlewareFunc {
	return func(hf router.HandlerFunc) router.HandlerFunc {
		return jwtware.New(jwtware.Config{
			ErrorHandler: errorHandler,
			SigningKey: jwtware.SigningKey{
				Key:    []byte(cfg.GetSigningKey()),
				JWTAlg: cfg.GetSigningMethod(),
			},
			AuthScheme:     cfg.GetAuthScheme(),
			ContextKey:     cfg.GetContextKey(),
			TokenLookup:    cfg.GetTokenLookup(),
			MinimumRole:    string(minRole),
			TokenValidator: TokenValidatorBridge(a.auth.TokenService()),
			ContextEnricher: func(c context.Context, claims jwtware.AuthClaims) context.Context {
				if authClaims, ok := claims.(AuthClaims); ok {
					return WithClaimsContext(c, authClaims)
				}
				return c
			},
		})(hf)
	}
}

func (a *RouteAuthenticator) MakeClientRouteAuthErrorHandler(optional bool) func(router.Context, error) error {
	return func(ctx router.Context, err error) error {
		var richErr *errors.Error

		if IsTokenExpiredError(err) {
			richErr = ErrTokenExpired
		} else if IsMalformedError(err) {
			richErr = ErrTokenMalformed
		} else if errors.Is(err, jwtware.ErrAccessDenied) {
			richErr = ErrInsufficientRole
		} else {
			richErr = errors.Wrap(err, errors.CategoryAuth, "Invalid authentication token").
				WithCode(errors.CodeUnauthorized)
		}

		if optional {
			a.Logger.Info("Optional auth failed, proceeding: %s", richErr.Message)
			return ctx.Next()
		}

		return a.ErrorHandler(ctx, richErr)
	}
}

func (a *RouteAuthenticator) defaultErrHandler(c router.Context, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryInternal, "An unexpected server error occurred").
			WithCode(errors.CodeInternal)
	}

	a.Logger.Info(
		"Middleware error handler %s (%s): %s",
		richErr.Message,
		richErr.Category,
		print.MaybePrettyJSON(richErr.Metadata),
	)

	status := richErr.Code
	if status == 0 {
		status = router.StatusInternalServerError
	}

	return c.JSON(status, router.ViewContext{
		"detail": richErr.Message,
	})
}
