package jwttoken

import (
	"chronicle/internal/platform/middleware"
)

// ValidatorAdapter bridges JWTService to the middleware's TokenValidator
// interface.
type ValidatorAdapter struct {
	service *JWTService
}

func NewValidatorAdapter(service *JWTService) *ValidatorAdapter {
	return &ValidatorAdapter{service: service}
}

func (a *ValidatorAdapter) ValidateToken(tokenString string) (*middleware.TokenClaims, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	return &middleware.TokenClaims{
		Subject:  claims.Subject,
		UserName: claims.Name,
	}, nil
}
