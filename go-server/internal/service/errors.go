package service

import "errors"

var (
	ErrInvalidURL         = errors.New("invalid URL")
	ErrInvalidSlug        = errors.New("invalid slug")
	ErrSlugTaken          = errors.New("slug already in use")
	ErrSlugExhausted      = errors.New("failed to generate a unique slug after max attempts")
	ErrURLNotFound        = errors.New("URL not found")
	ErrInvalidPassword    = errors.New("password must be between 8 and 72 bytes")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
)
