package runctx

import (
	"context"

	"github.com/greg-randall/memento-mori/common/config"
	"github.com/sirupsen/logrus"
)

// RunContext travels through every pipeline stage, carrying the logger and
// the effective configuration for this run. There is no global config
// singleton: tasks only see the snapshot they were started with.
type RunContext struct {
	context.Context

	Log    *logrus.Entry
	Config *config.ArchiveConfig
}

func Initial(cfg *config.ArchiveConfig) RunContext {
	return RunContext{
		Context: context.Background(),
		Log:     logrus.WithFields(logrus.Fields{"nocontext": true}),
		Config:  cfg,
	}
}

func (c RunContext) ReplaceLogger(log *logrus.Entry) RunContext {
	return RunContext{
		Context: c.Context,
		Log:     log,
		Config:  c.Config,
	}
}

func (c RunContext) LogWithFields(fields logrus.Fields) RunContext {
	return c.ReplaceLogger(c.Log.WithFields(fields))
}
