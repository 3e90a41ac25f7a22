package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/cnocal/cnocal/pkg/calib"
	"github.com/cnocal/cnocal/pkg/config"
	"github.com/cnocal/cnocal/pkg/events"
)

var (
	conf      config.Config
	sseHub    *events.Hub
	scheduler *Scheduler
)

func setupRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(logrus.StandardLogger()))
	router.GET("/config", getConfig)
	router.PUT("/tolerance", setTolerance)
	router.PUT("/loss-max", setLossMax)
	router.PUT("/no-db", setNoDb)
	router.PUT("/build-dir", setBuildDir)
	router.PUT("/fading-dir", setFadingDir)
	router.PUT("/run-timeout", setRunTimeout)
	router.PUT("/keep-artifacts", setKeepArtifacts)
	router.POST("/runs", postRun)
	router.POST("/runs/cancel", postCancelRun)
	router.GET("/status", getStatus)
	router.GET("/last-result", getLastResult)
	router.PUT("/schedule", setSchedule)
	router.POST("/schedule/postpone", postPostponeSchedule)
	router.POST("/schedule/skip", postSkipSchedule)
	router.GET("/events", getEvents)
	router.GET("/version", getVersion)

	return router
}

func runInFlight() bool {
	runMu.Lock()
	defer runMu.Unlock()
	return runState.Phase != calib.PhaseIdle && runState.Phase != calib.PhaseError
}

func newScheduler() *Scheduler {
	return NewScheduler(
		func() error {
			_, err := startRun(nil)
			return err
		},
		func() error {
			if runInFlight() {
				return ErrRunInProgress
			}
			return nil
		},
		func(data any) {
			runAt, _ := data.(time.Time)
			sseHub.Publish(events.RunAction, events.RunActionEvent{
				Action:  string(calib.ActionUpcoming),
				Message: fmt.Sprintf("Scheduled calibration run at %s", runAt.Format(time.DateTime)),
				Ts:      time.Now().Unix(),
			})
		},
		func(data any) {
			err, _ := data.(error)
			logrus.WithError(err).Error("scheduled calibration failed")
		},
	)
}

func Run(configPath string, unixSocketPath string, allowNonRoot bool) error {
	router := setupRoutes()

	var err error
	conf, err = config.NewFile(configPath)
	if err != nil {
		logrus.Fatalf("failed to parse config during startup: %v", err)
	}
	logrus.WithFields(conf.LogrusFields()).Infof("config loaded")

	// Receive SIGHUP to reload config
	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGHUP)
		for range sigc {
			err := conf.Load()
			if err != nil {
				logrus.Errorf("failed to reload config: %v", err)
				continue
			}
			logrus.Infof("config reloaded")
		}
	}()

	sseHub = events.NewHub()
	initRunState(filepath.Join(filepath.Dir(configPath), "cnocal-state.json"))

	scheduler = newScheduler()
	if cronExpr := conf.Cron(); cronExpr != "" {
		if err := scheduler.Schedule(cronExpr); err != nil {
			logrus.WithError(err).Errorf("invalid cron expression in config: %q", cronExpr)
		} else {
			scheduler.Start()
			next, _ := scheduler.Status()
			logrus.Infof("calibration scheduled, next run at %s", next.Format(time.DateTime))
		}
	}

	srv := &http.Server{
		Handler: router,
	}

	// Create the socket to listen on:
	l, err := net.Listen("unix", unixSocketPath)
	if err != nil {
		logrus.Fatal(err)
	}

	if conf.AllowNonRootAccess() || allowNonRoot {
		logrus.Infof("non-root access is allowed, changing permissions of %s to 0777", unixSocketPath)
		err = os.Chmod(unixSocketPath, 0777)
		if err != nil {
			logrus.Fatal(err)
		}
	}

	// Serve HTTP on unix socket
	go func() {
		logrus.Infof("http server listening on %s", l.Addr().String())
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatal(err)
		}
	}()

	// Handle common process-killing signals, so we can gracefully shut down:
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	// Wait for a SIGINT or SIGTERM:
	sig := <-sigc
	logrus.Infof("caught signal \"%s\": shutting down.", sig)

	logrus.Info("shutting down http server")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = srv.Shutdown(ctx)
	if err != nil {
		logrus.Errorf("failed to shutdown http server: %v", err)
	}
	cancel()

	logrus.Info("stopping scheduler")
	scheduler.Stop()

	if err := cancelRun(); err != nil && !errors.Is(err, ErrRunNotActive) {
		logrus.Errorf("failed to cancel active run before exiting: %v", err)
	}

	logrus.Info("exiting")
	return nil
}
