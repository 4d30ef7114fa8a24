package broadcaster

import (
	"github.com/pointdag/pointdagd/infrastructure/logger"
	"github.com/pointdag/pointdagd/util/panics"
)

var log = logger.RegisterSubSystem("BRDC")
var spawn = panics.GoroutineWrapperFunc(log)
