package rounddriver

import (
	"github.com/pointdag/pointdagd/infrastructure/logger"
	"github.com/pointdag/pointdagd/util/panics"
)

var log = logger.RegisterSubSystem("RNDD")
var spawn = panics.GoroutineWrapperFunc(log)
