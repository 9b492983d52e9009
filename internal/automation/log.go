package automation

import (
	"meshgate/internal/utils"

	"github.com/rs/zerolog"
)

func logger() *zerolog.Logger { return utils.Logger("automation") }
