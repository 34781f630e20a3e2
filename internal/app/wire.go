//go:build wireinject
// +build wireinject

package app

import (
	"context"

	"github.com/dushixiang/beacon/internal/config"
	"github.com/google/wire"
	"go.uber.org/zap"
)

func InitializeApp(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (*App, func(), error) {
	wire.Build(providerSet)
	return nil, nil, nil
}
