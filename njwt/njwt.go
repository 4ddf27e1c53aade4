/*
Package njwt provides bearer token authentication as an endpoint
parameter.

	auth := njwt.New([]byte(secret))
	npoint.RegisterEndpoint("/me", func(claims *njwt.Claims) string {
		return claims.Subject
	}, nsig.Arg("claims", auth))

The parameter may be a *njwt.Claims, a jwt.MapClaims, a *jwt.Token,
or a pointer to any struct that implements jwt.Claims.  Requests
without a valid token fail with a 401 InvalidAuthError before the
handler is called.
*/
package njwt

import (
	"context"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/muir/nhttp/nsig"
	"github.com/muir/nhttp/nvelope"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// Claims is the default claim set
type Claims struct {
	jwt.RegisteredClaims
	Email string   `json:"email,omitempty"`
	Roles []string `json:"roles,omitempty"`
}

// HasRole reports whether the claims grant role
func (c *Claims) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Auth signs and verifies HMAC tokens.  It is a nsig.PluginMarker.
type Auth struct {
	key      []byte
	method   *jwt.SigningMethodHMAC
	ttl      time.Duration
	issuer   string
	leeway   time.Duration
	cookie   string
	realm    string
	optional bool
	now      func() time.Time
}

var _ nsig.PluginMarker = &Auth{}

// Option configures an Auth
type Option func(*Auth)

// WithTTL sets how long tokens from Sign are valid.  The default is
// one hour.
func WithTTL(d time.Duration) Option { return func(a *Auth) { a.ttl = d } }

// WithIssuer sets the issuer of signed tokens and requires it of
// verified ones
func WithIssuer(iss string) Option { return func(a *Auth) { a.issuer = iss } }

// WithLeeway allows for clock skew
func WithLeeway(d time.Duration) Option { return func(a *Auth) { a.leeway = d } }

// WithCookie also looks for the token in a cookie when there is no
// Authorization header
func WithCookie(name string) Option { return func(a *Auth) { a.cookie = name } }

// WithRealm sets the realm reported in WWW-Authenticate
func WithRealm(realm string) Option { return func(a *Auth) { a.realm = realm } }

// WithSigningMethod picks HS256, HS384, or HS512.  HS256 is the
// default.
func WithSigningMethod(m *jwt.SigningMethodHMAC) Option { return func(a *Auth) { a.method = m } }

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option { return func(a *Auth) { a.now = now } }

// New creates an Auth with an HMAC key
func New(key []byte, opts ...Option) *Auth {
	a := &Auth{
		key:    key,
		method: jwt.SigningMethodHS256,
		ttl:    time.Hour,
		realm:  "api",
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Optional returns a copy of a that passes a nil value, instead of
// failing, when the request has no token.  Invalid tokens still fail.
func (a *Auth) Optional() *Auth {
	c := *a
	c.optional = true
	return &c
}

// Sign fills in the standard claims that are unset and returns a
// signed token
func (a *Auth) Sign(claims *Claims) (string, error) {
	now := a.now()
	c := *claims
	if c.IssuedAt == nil {
		c.IssuedAt = jwt.NewNumericDate(now)
	}
	if c.ExpiresAt == nil && a.ttl > 0 {
		c.ExpiresAt = jwt.NewNumericDate(now.Add(a.ttl))
	}
	if c.Issuer == "" {
		c.Issuer = a.issuer
	}
	return a.SignClaims(&c)
}

// SignClaims signs any claims as they are
func (a *Auth) SignClaims(claims jwt.Claims) (string, error) {
	s, err := jwt.NewWithClaims(a.method, claims).SignedString(a.key)
	return s, errors.Wrap(err, "sign token")
}

var (
	claimsType    = reflect.TypeOf((*Claims)(nil))
	mapClaimsType = reflect.TypeOf(jwt.MapClaims{})
	tokenType     = reflect.TypeOf((*jwt.Token)(nil))
	jwtClaimsType = reflect.TypeOf((*jwt.Claims)(nil)).Elem()
)

// Plugin implements nsig.PluginMarker
func (a *Auth) Plugin(name string, t reflect.Type) (nsig.PluginFunc, error) {
	var newClaims func() jwt.Claims
	var result func(*jwt.Token) interface{}
	switch {
	case t == tokenType:
		newClaims = func() jwt.Claims { return &Claims{} }
		result = func(tok *jwt.Token) interface{} { return tok }
	case t == mapClaimsType:
		newClaims = func() jwt.Claims { return jwt.MapClaims{} }
		result = func(tok *jwt.Token) interface{} { return tok.Claims }
	case t.Kind() == reflect.Ptr && t.Elem().Kind() == reflect.Struct && t.Implements(jwtClaimsType):
		newClaims = func() jwt.Claims { return reflect.New(t.Elem()).Interface().(jwt.Claims) }
		result = func(tok *jwt.Token) interface{} { return tok.Claims }
	default:
		return nil, errors.Errorf("%s is %s; want %s, %s, %s, or a pointer to jwt.Claims", name, t, claimsType, mapClaimsType, tokenType)
	}
	parser := a.parser()
	return func(_ context.Context, conn nsig.Connection, _ nsig.Resolver) (interface{}, error) {
		raw, err := a.token(conn.Request())
		if err != nil {
			return nil, err
		}
		if raw == "" {
			if a.optional {
				return reflect.Zero(t).Interface(), nil
			}
			return nil, a.invalid("missing bearer token", "")
		}
		tok, err := parser.ParseWithClaims(raw, newClaims(), func(*jwt.Token) (interface{}, error) {
			return a.key, nil
		})
		if err != nil {
			return nil, a.invalid("invalid token", err.Error())
		}
		return result(tok), nil
	}, nil
}

func (a *Auth) parser() *jwt.Parser {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{a.method.Alg()}),
		jwt.WithLeeway(a.leeway),
		jwt.WithTimeFunc(a.now),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	return jwt.NewParser(opts...)
}

func (a *Auth) token(r *http.Request) (string, error) {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, tok, ok := strings.Cut(h, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return "", a.invalid("authorization is not a bearer token", "")
		}
		return strings.TrimSpace(tok), nil
	}
	if a.cookie != "" {
		if c, err := r.Cookie(a.cookie); err == nil {
			return c.Value, nil
		}
	}
	return "", nil
}

func (a *Auth) invalid(reason, detail string) *InvalidAuthError {
	return &InvalidAuthError{Reason: reason, Detail: detail, Realm: a.realm}
}

// InvalidAuthError is a 401 response with a WWW-Authenticate header
type InvalidAuthError struct {
	Reason string
	Detail string
	Realm  string
}

var _ nvelope.HeaderProblem = &InvalidAuthError{}

func (e *InvalidAuthError) Error() string {
	if e.Detail == "" {
		return e.Reason
	}
	return e.Reason + ": " + e.Detail
}

// ProblemDetail implements nvelope.Problem.  The parse failure is
// not disclosed.
func (e *InvalidAuthError) ProblemDetail() nvelope.ProblemDetail {
	return nvelope.ProblemDetail{
		Type:   "invalid-auth",
		Title:  "Unauthorized",
		Status: http.StatusUnauthorized,
		Detail: e.Reason,
	}
}

// ProblemHeaders implements nvelope.HeaderProblem
func (e *InvalidAuthError) ProblemHeaders() http.Header {
	v := `Bearer realm="` + e.Realm + `"`
	if e.Detail != "" {
		v += `, error="invalid_token"`
	}
	return http.Header{"Www-Authenticate": []string{v}}
}
