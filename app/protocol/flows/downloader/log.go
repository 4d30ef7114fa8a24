package downloader

import (
	"github.com/pointdag/pointdagd/infrastructure/logger"
	"github.com/pointdag/pointdagd/util/panics"
)

var log = logger.RegisterSubSystem("DWNL")
var spawn = panics.GoroutineWrapperFunc(log)
