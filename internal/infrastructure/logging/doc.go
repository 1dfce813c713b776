// Package logging provides structured logging using uber/zap.
//
// Two modes:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Output defaults to stderr. Components take a *zap.Logger named after
// themselves:
//
//	logger := logging.NewDefault()
//	resolver, err := cors.NewResolver(cors.Options{
//		PageOrigin: origin,
//		Logger:     logger.Logger,
//	})
//	logger.Component("http").Info("client ready", zap.String("proxy", proxy))
package logging
