// pkg/logger/logger.go
package logger

import (
	"go.uber.org/zap"
)

type Sugared = *zap.SugaredLogger

// New returns a JSON logger in prod and a console logger otherwise, tagged with service.
func New(env, service string) Sugared {
	var z *zap.Logger
	if env == "prod" || env == "production" {
		z, _ = zap.NewProduction()
	} else {
		z, _ = zap.NewDevelopment()
	}
	return z.Sugar().With("service", service)
}

// Named returns a child logger for one component, e.g. "registry" or "provider".
func Named(log Sugared, component string) Sugared {
	return log.Named(component)
}
