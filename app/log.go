package app

import (
	"github.com/pointdag/pointdagd/infrastructure/logger"
	"github.com/pointdag/pointdagd/util/panics"
)

var log = logger.RegisterSubSystem("PDGD")
var spawn = panics.GoroutineWrapperFunc(log)
