// Package authjwt implements spec.md §6's JWT/tenant surface: HS256
// token issuance and validation, tenant-header extraction, and an
// anonymous fallback for unauthenticated requests. Grounded on
// _examples/2lar-b2/backend/pkg/auth/jwt.go's JWTService (trimmed to
// the HS256-only path; that file's RS256 branch has no corresponding
// requirement in spec.md §6) and on
// original_source/auth/jwt.py's get_current_user/get_tenant_id
// semantics (anonymous fallback, X-Tenant-ID header, default tenant).
package authjwt

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tanakaryotadayo-wq/autoforge-api/internal/apperrors"
)

// AdminUser is the fixed admin username spec.md §6 requires.
const AdminUser = "admin"

const (
	// AnonymousUser is returned by CurrentUser when no bearer token is
	// present, per original_source/auth/jwt.py's get_current_user.
	AnonymousUser = "anonymous"
	// DefaultTenant is returned by TenantID when X-Tenant-ID is absent.
	DefaultTenant = "default"

	defaultTTL = 60 * time.Minute
)

// Claims is the JWT payload. sub carries the user id, matching
// original_source/auth/jwt.py's payload.get("sub").
type Claims struct {
	jwt.RegisteredClaims
}

// Service issues and validates HS256 JWTs.
type Service struct {
	secretKey []byte
	ttl       time.Duration
}

// New constructs a Service. ttl defaults to 60 minutes if non-positive.
func New(secret string, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Service{secretKey: []byte(secret), ttl: ttl}
}

// IssueToken creates a signed access token for userID.
func (s *Service) IssueToken(userID string) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secretKey)
}

// ValidateToken parses and verifies a token, returning its subject
// (user id).
func (s *Service) ValidateToken(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secretKey, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperrors.ErrAuth, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return "", fmt.Errorf("%w: invalid claims", apperrors.ErrAuth)
	}
	return claims.Subject, nil
}

// CurrentUser extracts the bearer token's subject from r, falling back
// to AnonymousUser when no Authorization header is present. An invalid
// (present but unparsable/expired) token is an error, matching
// get_current_user's HTTP 401 branch.
func (s *Service) CurrentUser(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return AnonymousUser, nil
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer"))
	token = strings.TrimSpace(token)
	if token == "" {
		return AnonymousUser, nil
	}
	return s.ValidateToken(token)
}

// TenantID extracts the tenant from the X-Tenant-ID header, defaulting
// to DefaultTenant.
func TenantID(r *http.Request) string {
	if v := r.Header.Get("X-Tenant-ID"); v != "" {
		return v
	}
	return DefaultTenant
}

// VerifyAdminCredentials checks username/password against the fixed
// admin account. The admin password lives in plain config rather than a
// hashed user table (original_source/config.py has no user store), so
// the comparison is constant-time rather than bcrypt — spec.md §6.
func VerifyAdminCredentials(username, password, configuredPassword string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(AdminUser)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(configuredPassword)) == 1
	return userOK && passOK
}
