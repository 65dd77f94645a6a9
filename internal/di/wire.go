//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"github.com/labrental/instrument-marketplace-api/internal/app"
)

func InitializeApp() (*app.App, error) {
	panic(wire.Build(
		ConfigSet,
		ObservabilitySet,
		RuntimeInfraSet,
		RepositorySet,
		SecuritySet,
		ServiceSet,
		HTTPSet,
		AppSet,
	))
}

func InitializeMigrationRunner() (*MigrationRunner, error) {
	panic(wire.Build(
		ConfigSet,
		provideOpenDB,
		NewMigrationRunner,
	))
}

func InitializeAccountAdmin() (*AccountAdmin, error) {
	panic(wire.Build(
		ConfigSet,
		AdminSet,
		NewAccountAdmin,
	))
}
