package dagstore

import (
	"github.com/pointdag/pointdagd/infrastructure/logger"
)

var log = logger.RegisterSubSystem("DAGS")
