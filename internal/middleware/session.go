package middleware // reusable HTTP middleware for the auth surface

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/meridianpress/editorial-backend/internal/model"
	"github.com/meridianpress/editorial-backend/internal/utils"
)

// Context keys populated by SessionAuth for downstream handlers.
const (
	CtxUserID    = "user_id"    // uint64
	CtxRole      = "role"       // string
	CtxSessionID = "session_id" // string, the refreshTokenId claim
	CtxTokenExp  = "token_exp"  // time.Time, expiry of the presented access token
)

// SessionLookup resolves an access token's refreshTokenId claim to a
// stored session row.
type SessionLookup interface {
	Find(ctx context.Context, userID uint64, id string) (model.SessionToken, error)
}

// SessionAuthOptions selects between the two trust boundaries of the
// system. Protected routes enforce expiry; the renewal endpoint accepts an
// expired access token but additionally demands the paired refresh secret
// in the request body. One parameterized routine covers both so the
// policies cannot drift apart.
type SessionAuthOptions struct {
	EnforceExpiry           bool
	RequireRefreshBodyMatch bool
}

type refreshBody struct {
	RefreshToken string `json:"refreshToken"`
}

// SessionAuth validates the Bearer access token and correlates it with the
// session row it was minted for. On success the user id, role, session id
// and the token's own expiry are stored in the request context. Every
// failure mode answers 401 so a caller cannot probe which check failed.
func SessionAuth(secret string, sessions SessionLookup, opts SessionAuthOptions) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			raw := strings.TrimPrefix(auth, "Bearer ")

			// Signature is always verified; claim validation (and with it
			// the exp check) is skipped for the renewal variant.
			parseOpts := []jwt.ParserOption{}
			if !opts.EnforceExpiry {
				parseOpts = append(parseOpts, jwt.WithoutClaimsValidation())
			}
			tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, echo.ErrUnauthorized
				}
				return []byte(secret), nil
			}, parseOpts...)
			if err != nil || !tok.Valid {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Invalid token"})
			}

			claims, ok := tok.Claims.(jwt.MapClaims)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Invalid token"})
			}
			uid, ok := subjectID(claims)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Invalid token"})
			}
			role, _ := claims["role"].(string)
			sessionID, _ := claims["refreshTokenId"].(string)
			if sessionID == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Invalid token"})
			}

			ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
			defer cancel()

			sess, err := sessions.Find(ctx, uid, sessionID)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Invalid token"})
			}

			if opts.RequireRefreshBodyMatch {
				// Proof of possession: the body must carry the raw refresh
				// secret paired with this session, not just the (possibly
				// expired) access token. The body is restored afterwards so
				// the handler can still bind it.
				bodyBytes, err := io.ReadAll(c.Request().Body)
				if err != nil {
					return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Invalid token"})
				}
				c.Request().Body = io.NopCloser(bytes.NewReader(bodyBytes))

				var body refreshBody
				if err := json.Unmarshal(bodyBytes, &body); err != nil || body.RefreshToken == "" {
					return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Invalid token"})
				}
				if utils.HashRefreshRaw(body.RefreshToken) != sess.RefreshTokenHash {
					return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Invalid token"})
				}
			}

			c.Set(CtxUserID, uid)
			c.Set(CtxRole, role)
			c.Set(CtxSessionID, sessionID)
			if expVal, ok := claims["exp"].(float64); ok {
				c.Set(CtxTokenExp, time.Unix(int64(expVal), 0).UTC())
			}
			return next(c)
		}
	}
}

// subjectID pulls the numeric user id out of the sub claim. JSON numbers
// decode as float64; some encoders emit strings.
func subjectID(claims jwt.MapClaims) (uint64, bool) {
	switch v := claims["sub"].(type) {
	case float64:
		return uint64(v), true
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return uint64(n), true
		}
	case string:
		var n uint64
		for _, ch := range v {
			if ch < '0' || ch > '9' {
				return 0, false
			}
			n = n*10 + uint64(ch-'0')
		}
		return n, v != ""
	}
	return 0, false
}
