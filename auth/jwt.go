package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"csv-generator/jobs"

	"github.com/golang-jwt/jwt/v5"
)

// RemoteUserHeader is honoured when no bearer token identifies the requester.
const RemoteUserHeader = "X-Remote-User"

func GenerateJWT(secret, userID, username string, expirationMinutes int) (string, error) {
	claims := jwt.MapClaims{
		"sub":  userID,
		"name": username,
		"exp":  time.Now().Add(time.Duration(expirationMinutes) * time.Minute).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func ExtractRequesterFromJWT(r *http.Request, secret string) (jobs.Requester, error) {
	auth := r.Header.Get("Authorization")
	if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
		return jobs.Requester{}, errors.New("no bearer token")
	}
	tokenString := strings.TrimPrefix(auth, "Bearer ")
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return jobs.Requester{}, errors.New("invalid or expired JWT")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return jobs.Requester{}, errors.New("invalid JWT claims")
	}
	var req jobs.Requester
	req.UserID, _ = claims["sub"].(string)
	for _, k := range []string{"name", "preferred_username"} {
		if v, _ := claims[k].(string); v != "" {
			req.Username = v
			break
		}
	}
	if req.Username == "" {
		req.Username = req.UserID
	}
	return req, nil
}

// RequesterFromRequest identifies the caller on a best-effort basis: a valid
// bearer JWT, then the remote user header, else anonymous. It never fails.
func RequesterFromRequest(r *http.Request, secret string) jobs.Requester {
	if secret != "" {
		if req, err := ExtractRequesterFromJWT(r, secret); err == nil {
			return req
		}
	}
	if u := strings.TrimSpace(r.Header.Get(RemoteUserHeader)); u != "" {
		return jobs.Requester{UserID: u, Username: u}
	}
	return jobs.Requester{}
}
