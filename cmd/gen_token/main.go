package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func main() {
	secret := flag.String("secret", "test-signing-secret", "session signing secret")
	userID := flag.String("user-id", "ops-admin", "user id claim")
	username := flag.String("username", "Ops Admin", "username claim")
	role := flag.String("role", "ADMIN", "role claim")
	subrole := flag.String("subrole", "", "corporation subrole claim (DEPARTMENT or WARD)")
	department := flag.String("department", "", "department claim")
	ttl := flag.Duration("ttl", 8*time.Hour, "token lifetime")
	flag.Parse()

	claims := jwt.MapClaims{
		"user_id":  *userID,
		"username": *username,
		"role":     *role,
		"iat":      time.Now().Unix(),
		"exp":      time.Now().Add(*ttl).Unix(),
	}
	if *subrole != "" {
		claims["subrole"] = *subrole
	}
	if *department != "" {
		claims["department"] = *department
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString([]byte(*secret))
	if err != nil {
		panic(err)
	}
	fmt.Println(signedToken)
}
