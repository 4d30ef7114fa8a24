package metrics

import (
	"github.com/pointdag/pointdagd/infrastructure/logger"
	"github.com/pointdag/pointdagd/util/panics"
)

var log = logger.RegisterSubSystem("MTRC")
var spawn = panics.GoroutineWrapperFunc(log)
