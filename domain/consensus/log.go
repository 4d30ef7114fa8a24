package consensus

import (
	"github.com/pointdag/pointdagd/infrastructure/logger"
)

var log = logger.RegisterSubSystem("CNSS")
