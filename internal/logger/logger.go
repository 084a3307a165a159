package logger

import (
	"go.uber.org/zap"
)

// New builds the process logger: JSON production output in production,
// human-readable development output everywhere else.
func New(environment string) *zap.Logger {
	var (
		l   *zap.Logger
		err error
	)
	if environment == "production" {
		l, err = zap.NewProduction()
	} else {
		l, err = zap.NewDevelopment()
	}
	if err != nil {
		panic(err)
	}
	return l
}
