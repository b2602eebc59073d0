package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Session is the identity carried by the signed cookie. It holds everything
// the view engine needs to scope reports, so no backend round trip happens
// per request.
type Session struct {
	UserID     string      `json:"userId"`
	Username   string      `json:"username"`
	Role       UserRole    `json:"role"`
	Subrole    CorpSubrole `json:"subrole,omitempty"`
	Department Department  `json:"department,omitempty"`
}

func (s Session) user() User {
	return User{
		ID:         s.UserID,
		Username:   s.Username,
		Role:       s.Role,
		Subrole:    s.Subrole,
		Department: s.Department,
	}
}

func sessionDurationFor(role UserRole) time.Duration {
	if role == RoleCitizen {
		return citizenSessionDuration
	}
	return officialSessionDuration
}

func (a *App) createSessionToken(session Session) (string, error) {
	claims := jwt.MapClaims{
		"user_id":  session.UserID,
		"username": session.Username,
		"role":     string(session.Role),
		"iat":      time.Now().Unix(),
		"exp":      time.Now().Add(sessionDurationFor(session.Role)).Unix(),
	}
	if session.Subrole != "" {
		claims["subrole"] = string(session.Subrole)
	}
	if session.Department != "" {
		claims["department"] = string(session.Department)
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(a.cfg.AppSigningSecret))
}

func (a *App) verifySessionToken(tokenString string) (*Session, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return []byte(a.cfg.AppSigningSecret), nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("invalid session token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}
	userID, _ := claims["user_id"].(string)
	username, _ := claims["username"].(string)
	role, _ := claims["role"].(string)
	if userID == "" || username == "" || !validUserRole(UserRole(role)) {
		return nil, fmt.Errorf("invalid session payload")
	}

	session := &Session{UserID: userID, Username: username, Role: UserRole(role)}
	if subrole, ok := claims["subrole"].(string); ok && subrole != "" {
		session.Subrole = CorpSubrole(subrole)
	}
	if department, ok := claims["department"].(string); ok && department != "" {
		session.Department = Department(department)
	}
	return session, nil
}

func validUserRole(role UserRole) bool {
	for _, known := range userRoles {
		if known == role {
			return true
		}
	}
	return false
}

func (a *App) requireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(sessionCookieName)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "Session required"})
			c.Abort()
			return
		}
		session, err := a.verifySessionToken(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "Session required"})
			c.Abort()
			return
		}
		c.Set("session", *session)
		c.Next()
	}
}

func (a *App) requireRole(roles ...UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, err := getSession(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "Session required"})
			c.Abort()
			return
		}
		for _, role := range roles {
			if session.Role == role {
				c.Next()
				return
			}
		}
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden", "message": "Insufficient role"})
		c.Abort()
	}
}

func getSession(c *gin.Context) (Session, error) {
	value, ok := c.Get("session")
	if !ok {
		return Session{}, fmt.Errorf("missing session")
	}
	session, ok := value.(Session)
	if !ok {
		return Session{}, fmt.Errorf("invalid session")
	}
	return session, nil
}
