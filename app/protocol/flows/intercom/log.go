package intercom

import (
	"github.com/pointdag/pointdagd/infrastructure/logger"
	"github.com/pointdag/pointdagd/util/panics"
)

var log = logger.RegisterSubSystem("INTC")
var spawn = panics.GoroutineWrapperFunc(log)
