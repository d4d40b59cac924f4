/*
Package log provides structured logging for warden using zerolog.

A single package-level Logger is configured once with Init and shared by every
component. Components derive child loggers that stamp a field on every line:

	WithComponent("scheduler")   component=scheduler
	WithChannel("shroud")        channel=shroud
	WithSurfaceID("tab-42")      surface_id=tab-42
	WithCycleID(l, id)           cycle_id=<uuid>

# Usage

	log.Init(log.Config{
		Level:      log.ParseLevel(cfg.Log.Level),
		JSONOutput: cfg.Log.JSON,
	})

	logger := log.WithComponent("engine")
	logger.Info().Int("channels", 12).Msg("Poll cycle complete")

Console output is used unless JSONOutput is set; the daemon enables JSON when
it runs under a supervisor that collects logs.
*/
package log
