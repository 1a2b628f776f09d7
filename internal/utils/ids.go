package utils

import (
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// GenerateLowerAlphanumericId returns a short random identifier safe for use
// inside DNS labels.
func GenerateLowerAlphanumericId(length int) string {
	alphabet := "abcdefghijklmnopqrstuvwxyz0123456789"
	id, err := gonanoid.Generate(alphabet, length)
	if err != nil {
		panic(err)
	}
	return id
}
