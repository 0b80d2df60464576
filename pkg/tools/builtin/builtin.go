// Package builtin provides the tools agents can be configured with by name.
package builtin

import (
	"time"

	"polehammer/pkg/config"
	"polehammer/pkg/tools"
)

// Catalog builds a registry holding every built-in tool, configured from cfg.
func Catalog(cfg config.ToolsConfig) (*tools.Registry, error) {
	weapons := NewWeaponsClient(cfg.WeaponsURL, time.Duration(cfg.HTTPTimeoutMs)*time.Millisecond)

	decls := append(Arithmetic(), weapons.Declaration())

	var opts []tools.Option
	if cfg.ValidateArgs {
		opts = append(opts, tools.WithSchemaValidation())
	}
	return tools.NewRegistry(decls, opts...)
}
