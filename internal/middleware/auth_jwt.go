package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
)

const (
	CtxUserIDKey       = "user_id"       // int64
	CtxUserRoleKey     = "user_role"     // string
	CtxTokenVersionKey = "token_version" // int
)

// EventSourceはヘッダを付けられないのでクエリでも受ける
const accessTokenQueryParam = "access_token"

var errBadClaims = errors.New("bad claims")

// アクセストークンから取り出す値
type accessClaims struct {
	UserID       int64
	Role         string
	TokenVersion int
}

func AuthJWT(jwtSecret string) echo.MiddlewareFunc {
	secret := []byte(jwtSecret)
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	keyFunc := func(*jwt.Token) (interface{}, error) { return secret, nil }

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := bearerToken(c)
			if !ok {
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized"))
			}

			mc := jwt.MapClaims{}
			token, err := parser.ParseWithClaims(raw, mc, keyFunc)
			if err != nil || !token.Valid {
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized"))
			}

			ac, err := readClaims(mc)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized"))
			}

			c.Set(CtxUserIDKey, ac.UserID)
			c.Set(CtxUserRoleKey, ac.Role)
			c.Set(CtxTokenVersionKey, ac.TokenVersion)
			return next(c)
		}
	}
}

// sub(>0) / role / tv(>=0) がそろっていること
func readClaims(mc jwt.MapClaims) (accessClaims, error) {
	sub, err := toInt64(mc["sub"])
	if err != nil || sub <= 0 {
		return accessClaims{}, errBadClaims
	}
	role, _ := mc["role"].(string)
	if role == "" {
		return accessClaims{}, errBadClaims
	}
	tv, err := toInt64(mc["tv"])
	if err != nil || tv < 0 {
		return accessClaims{}, errBadClaims
	}
	return accessClaims{UserID: sub, Role: role, TokenVersion: int(tv)}, nil
}

// Authorization: Bearer xxx か ?access_token=xxx
func bearerToken(c echo.Context) (string, bool) {
	authz := c.Request().Header.Get(echo.HeaderAuthorization)
	if authz == "" {
		t := strings.TrimSpace(c.QueryParam(accessTokenQueryParam))
		return t, t != ""
	}

	scheme, t, found := strings.Cut(authz, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	t = strings.TrimSpace(t)
	return t, t != ""
}

type errorResponse struct {
	Error string `json:"error"`
}

func errorJSON(msg string) errorResponse {
	return errorResponse{Error: msg}
}

// JSONの数値はfloat64で来る
func toInt64(v interface{}) (int64, error) {
	switch t := v.(type) {
	case float64:
		return int64(t), nil
	case string:
		return strconv.ParseInt(t, 10, 64)
	default:
		return 0, errBadClaims
	}
}
