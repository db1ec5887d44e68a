package token

import (
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// CheckCookie validates the access token cookie, falling back to the refresh
// cookie when the access token has expired. It returns the (possibly rotated)
// token pair and the verified role claim.
func (t *TokenService) CheckCookie(c echo.Context) (string, string, jwt.MapClaims, error) {
	asCookie, err := c.Cookie("accessToken")
	if err == nil && asCookie.Value != "" {
		tok, err := jwt.Parse(asCookie.Value, func(j *jwt.Token) (interface{}, error) {
			if _, ok := j.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("unexpected signing method")
			}
			return t.JWTSecret, nil
		})
		if err == nil && tok.Valid {
			claims, ok := tok.Claims.(jwt.MapClaims)
			if !ok {
				return "", "", nil, echo.NewHTTPError(http.StatusUnauthorized, "invalid token claims")
			}
			return asCookie.Value, "", claims, nil
		}
		if !errors.Is(err, jwt.ErrTokenExpired) {
			return "", "", nil, echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
		}
	}

	rfCookie, err := c.Cookie("refreshToken")
	if err != nil {
		return "", "", nil, echo.NewHTTPError(http.StatusUnauthorized, "missing auth cookie")
	}
	newAccess, newRefresh, claims, err := t.RotateToken(rfCookie.Value)
	if err != nil {
		return "", "", nil, echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	}
	return newAccess, newRefresh, claims, nil
}

// setUserContext carries the verified identity and role claims into the echo
// context, so handlers never have to re-fetch the user row for a role check.
func setUserContext(c echo.Context, claims jwt.MapClaims) error {
	sub, ok := claims["sub"].(float64)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid subject claim")
	}
	role, ok := claims["role"].(string)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid role claim")
	}
	c.Set("userID", uint(sub))
	c.Set("role", role)
	return nil
}

func (t *TokenService) authenticate(c echo.Context) (jwt.MapClaims, error) {
	newAccess, newRefresh, claims, err := t.CheckCookie(c)
	if err != nil {
		return nil, err
	}
	if newRefresh != "" {
		c.SetCookie(CreateCookie("accessToken", newAccess, "/", time.Now().Add(AccessTTL)))
		c.SetCookie(CreateCookie("refreshToken", newRefresh, "/", time.Now().Add(RefreshTTL)))
	}
	if err := setUserContext(c, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

func (t *TokenService) AutoRefreshMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := t.authenticate(c); err != nil {
			return err
		}
		return next(c)
	}
}

func (t *TokenService) AutoRefreshMiddlewareAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		claims, err := t.authenticate(c)
		if err != nil {
			return err
		}
		if role, _ := claims["role"].(string); role != "admin" {
			return echo.NewHTTPError(http.StatusForbidden, "access denied")
		}
		return next(c)
	}
}

// UserID reads the identity placed into the context by the middleware.
func UserID(c echo.Context) (uint, error) {
	id, ok := c.Get("userID").(uint)
	if !ok || id == 0 {
		return 0, echo.NewHTTPError(http.StatusUnauthorized, "invalid or missing user")
	}
	return id, nil
}

// Role reads the verified role claim placed into the context by the middleware.
func Role(c echo.Context) string {
	role, _ := c.Get("role").(string)
	return role
}
