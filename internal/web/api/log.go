package api

import (
	"meshgate/internal/utils"

	"github.com/rs/zerolog"
)

func apiLogger() *zerolog.Logger { return utils.Logger("web") }
