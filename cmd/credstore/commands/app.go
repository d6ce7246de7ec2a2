// Package commands implements the credstore CLI subcommands.
package commands

import (
	"github.com/systmms/credstore/internal/config"
	"github.com/systmms/credstore/internal/logging"
	"github.com/systmms/credstore/pkg/credstore"
)

// App carries the state shared by every subcommand, filled in by the root
// command's PersistentPreRun.
type App struct {
	ConfigPath string
	Logger     *logging.Logger
}

// service loads the configuration and builds the wired service. Callers own
// Close.
func (a *App) service() (*credstore.Service, *config.Definition, error) {
	def, err := config.Load(a.ConfigPath)
	if err != nil {
		return nil, nil, err
	}
	svc, err := credstore.New(def, credstore.Options{Logger: a.Logger})
	if err != nil {
		return nil, nil, err
	}
	return svc, def, nil
}
