package service

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	accessTokenLength   = 48
	accessTokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// generateAccessToken returns an unguessable alphanumeric bearer token.
func generateAccessToken() (string, error) {
	alphabetSize := big.NewInt(int64(len(accessTokenAlphabet)))
	token := make([]byte, accessTokenLength)
	for i := range token {
		index, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			return "", fmt.Errorf("generate access token: %w", err)
		}
		token[i] = accessTokenAlphabet[index.Int64()]
	}
	return string(token), nil
}
