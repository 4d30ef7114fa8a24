package committer

import (
	"github.com/pointdag/pointdagd/infrastructure/logger"
)

var log = logger.RegisterSubSystem("CMTR")
