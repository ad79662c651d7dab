// Package handlers contains reusable pieces of the HTTP adapter: the
// composite health checker and request middleware.
//
// # Health Checks
//
// Checks run in parallel, each under its own timeout. Critical checks gate
// readiness; soft checks only mark the service degraded:
//
//	checker := handlers.NewCompositeHealthChecker(version)
//	checker.AddCheck("postgres", handlers.NewPingCheck(conn))
//	checker.AddCheck("redis", handlers.NewPingCheck(redisClient))
//	checker.AddSoftCheck("queue_cleanup", handlers.NewServiceCheck(cleanupSvc))
//
// Reports are soft checks that also return counters, shown under "details"
// in the /health response:
//
//	checker.AddReport("scheduler", func(ctx context.Context) (map[string]interface{}, error) {
//	    return map[string]interface{}{"runs": runs}, nil
//	})
//
// # Middleware
//
// Every middleware has the func(http.Handler) http.Handler shape, so it plugs
// into mux.Router.Use or wraps a handler directly.
package handlers
