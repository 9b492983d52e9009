package middleware

import (
	"meshgate/internal/utils"

	"github.com/rs/zerolog"
)

// ApikeyChecker authenticates api keys
type ApikeyChecker interface {
	CheckApikey(apikey, userAgent string, internal bool) error
}

type MiddlewareManager struct {
	auth ApikeyChecker
	log  *zerolog.Logger
}

func NewMiddlewareManager(auth ApikeyChecker) *MiddlewareManager {
	return &MiddlewareManager{
		auth: auth,
		log:  utils.Logger("web"),
	}
}
