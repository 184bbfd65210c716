package config

import (
	"go.uber.org/zap"
)

func NewLogger(r *Replay) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(r.Global.Logger.Level)
	if err != nil {
		return nil, err
	}

	cfg := zap.NewDevelopmentConfig()
	cfg.Level = level
	return cfg.Build()
}
