package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/efreitasn/marketsim/internal/config"
	"github.com/efreitasn/marketsim/internal/handler"
	"github.com/efreitasn/marketsim/internal/logger"
	"github.com/efreitasn/marketsim/internal/scenario"
	"github.com/efreitasn/marketsim/internal/service"
)

const usage = `usage: marketsim [-healthcheck] <command> [flags]

commands:
  serve              run the HTTP host
  replay -f FILE     run a scenario and print its output as NDJSON
  verify -f FILE     run a scenario twice and compare the output streams
`

func main() {
	// A missing .env file is not an error.
	_ = godotenv.Load()

	healthcheck := flag.Bool("healthcheck", false, "Run health check against running server")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	// Handle -healthcheck flag: HTTP GET to localhost:PORT/healthz, exit 0/1.
	if *healthcheck {
		port := os.Getenv("PORT")
		if port == "" {
			port = "8080"
		}
		resp, err := http.Get(fmt.Sprintf("http://localhost:%s/healthz", port))
		if err != nil || resp.StatusCode != http.StatusOK {
			os.Exit(1)
		}
		os.Exit(0)
	}

	cmd, args := "serve", []string(nil)
	if flag.NArg() > 0 {
		cmd, args = flag.Arg(0), flag.Args()[1:]
	}

	var err error
	switch cmd {
	case "serve":
		err = serve()
	case "replay", "verify":
		err = script(cmd, args, os.Stdout)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		logrus.WithError(err).Error(cmd + " failed")
		os.Exit(1)
	}
}

// script runs the replay and verify commands. Logs go to stderr so the
// output stream stays clean.
func script(cmd string, args []string, out io.Writer) error {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	file := fs.String("f", "", "scenario file")
	level := fs.String("log-level", "warn", "log level")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return errors.New("-f is required")
	}

	log, closer, err := logger.New(logger.Config{Level: *level}, os.Stderr)
	if err != nil {
		return err
	}
	defer closer.Close()

	s, err := scenario.Load(*file)
	if err != nil {
		return err
	}
	if cmd == "verify" {
		return verify(s, out, log)
	}
	return replay(s, out, log)
}

// replay prints the scenario's output and fails on the first unmet
// expectation.
func replay(s *scenario.Script, out io.Writer, log logrus.FieldLogger) error {
	res, err := scenario.Run(s, log)
	if err != nil {
		return err
	}
	data, err := res.Encode()
	if err != nil {
		return err
	}
	if _, err := out.Write(data); err != nil {
		return errors.Wrap(err, "write output")
	}
	return s.Check(res)
}

func verify(s *scenario.Script, out io.Writer, log logrus.FieldLogger) error {
	rep, err := scenario.Verify(s, log)
	if err != nil {
		return err
	}
	if !rep.OK() {
		return errors.Errorf("scenario %q is not deterministic: %s", s.Name, rep.Divergence)
	}
	fmt.Fprintf(out, "%s: %d messages, deterministic\n", s.Name, rep.Outputs)
	return nil
}

func serve() error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "load config")
	}

	log, closer, err := logger.New(logger.Config{Level: cfg.LogLevel, OutputFile: cfg.LogFile}, os.Stdout)
	if err != nil {
		return errors.Wrap(err, "init logger")
	}
	defer closer.Close()

	sessions := service.NewSessionService(cfg.Engine, cfg.FlushInterval, log)
	router := handler.NewRouter(sessions, log)

	// Configure HTTP server.
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for SIGINT/SIGTERM.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.WithField("signal", sig.String()).Info("shutdown signal received")
	case err := <-errCh:
		return errors.Wrap(err, "server error")
	}

	// Graceful shutdown: stop HTTP server, then flush every session.
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("server shutdown error")
	}
	sessions.CloseAll(true)

	log.Info("server stopped")
	return nil
}
