package grpcserver

import (
	"github.com/pointdag/pointdagd/infrastructure/logger"
	"github.com/pointdag/pointdagd/util/panics"
)

var log = logger.RegisterSubSystem("GRPC")
var spawn = panics.GoroutineWrapperFunc(log)
