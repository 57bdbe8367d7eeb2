// Command steadyleadflow はSteadyLeadFlow CRMのAPIサーバー・ワーカー・マイグレーションを起動する。
package main

import (
	"errors"
	"log/slog"
	"os"

	"github.com/hitoshi/steadyleadflow/internal/app"
	"github.com/hitoshi/steadyleadflow/internal/config"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		var missing *config.MissingEnvError
		if errors.As(err, &missing) {
			for _, name := range missing.Names {
				slog.Error("required environment variable is not set", slog.String("name", name))
			}
		}
		slog.Error("application exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
