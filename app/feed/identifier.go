package feed

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

var ErrValidation = errors.New("validation failed")

type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return e.Field + " must be non-empty"
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// DeriveItemID returns the lower-case hex SHA-256 of a canonical URL.
func DeriveItemID(canonicalURL string) string {
	hash := sha256.Sum256([]byte(canonicalURL))
	return hex.EncodeToString(hash[:])
}

// MakeContentID joins a source id and an item id into "<source>:<item>".
func MakeContentID(sourceID, itemID string) (string, error) {
	sourceID = strings.ToLower(strings.TrimSpace(sourceID))
	itemID = strings.TrimSpace(itemID)

	if sourceID == "" {
		return "", &ValidationError{Field: "source id"}
	}
	if itemID == "" {
		return "", &ValidationError{Field: "item id"}
	}

	return sourceID + ":" + itemID, nil
}
