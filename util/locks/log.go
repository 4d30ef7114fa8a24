package locks

import (
	"github.com/pointdag/pointdagd/infrastructure/logger"
	"github.com/pointdag/pointdagd/util/panics"
)

var log = logger.RegisterSubSystem("UTIL")
var spawn = panics.GoroutineWrapperFunc(log)
