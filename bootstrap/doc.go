// Package bootstrap wires configuration, logging, storage and the rule database into
// an App that the CLI commands share.
//
// Usage:
//
//	app, err := bootstrap.NewApp(ctx, bootstrap.Options{ConfigFile: "config.yaml"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer app.Shutdown()
//
//	// long-running mode
//	ctx, stop := bootstrap.SignalContext(context.Background())
//	defer stop()
//	err = app.Serve(ctx, bootstrap.ServeOptions{WatchDir: "rules/"})
package bootstrap
