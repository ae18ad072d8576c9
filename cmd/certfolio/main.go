// Command certfolio runs the certificate-portfolio API server and its
// administrative helpers.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/certfolio/certfolio/internal/app"
	"github.com/certfolio/certfolio/internal/config"
	"github.com/certfolio/certfolio/internal/logging"
	log "github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to config file")
	username := flag.String("username", "admin", "admin username (create-admin)")
	password := flag.String("password", "", "admin password (create-admin; or CERTFOLIO_ADMIN_PASSWORD)")
	flag.Parse()

	command := flag.Arg(0)
	if command == "" {
		command = "serve"
	}

	cfg, errLoad := config.Load(*configPath)
	if errLoad != nil {
		fmt.Fprintln(os.Stderr, errLoad)
		os.Exit(1)
	}
	logging.Setup(cfg.LogLevel, cfg.LogFile)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var errRun error
	switch command {
	case "serve":
		errRun = app.RunServer(ctx, cfg)
	case "migrate":
		errRun = app.Migrate(ctx, cfg)
	case "create-admin":
		pass := *password
		if pass == "" {
			pass = os.Getenv("CERTFOLIO_ADMIN_PASSWORD")
		}
		errRun = app.CreateAdmin(ctx, cfg, *username, pass)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q (want serve, migrate, or create-admin)\n", command)
		os.Exit(2)
	}
	if errRun != nil {
		log.Fatal(errRun)
	}
}
