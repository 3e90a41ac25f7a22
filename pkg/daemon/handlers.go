package daemon

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/cnocal/cnocal/pkg/config"
	"github.com/cnocal/cnocal/pkg/version"
)

func getConfig(c *gin.Context) {
	fc, err := config.NewRawFileConfigFromConfig(conf)
	if err != nil {
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	c.IndentedJSON(http.StatusOK, fc)
}

func saveConfig(c *gin.Context) bool {
	if err := conf.Save(); err != nil {
		logrus.Errorf("saveConfig failed: %v", err)
		c.IndentedJSON(http.StatusInternalServerError, err.Error())
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return false
	}
	return true
}

func setTolerance(c *gin.Context) {
	var t float64
	if err := c.BindJSON(&t); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	if t <= 0 {
		err := fmt.Errorf("tolerance must be positive, got %f", t)
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	conf.SetToleranceDb(t)
	if !saveConfig(c) {
		return
	}

	logrus.Infof("set C/No tolerance to %.2f dB", t)

	c.IndentedJSON(http.StatusCreated, fmt.Sprintf("C/No tolerance set to %.2f dB", t))
}

func setLossMax(c *gin.Context) {
	var l float64
	if err := c.BindJSON(&l); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	if l <= 0 {
		err := fmt.Errorf("loss maximum must be positive, got %f", l)
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	conf.SetLossMax(l)
	if !saveConfig(c) {
		return
	}

	logrus.Infof("set loss maximum to %.3f", l)

	c.IndentedJSON(http.StatusCreated, fmt.Sprintf("loss maximum set to %.3f", l))
}

func setNoDb(c *gin.Context) {
	var n float64
	if err := c.BindJSON(&n); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	conf.SetNoDb(n)
	if !saveConfig(c) {
		return
	}

	logrus.Infof("set noise set point to %.1f dB", n)

	c.IndentedJSON(http.StatusCreated, fmt.Sprintf("noise set point set to %.1f dB", n))
}

func setBuildDir(c *gin.Context) {
	var d string
	if err := c.BindJSON(&d); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	conf.SetBuildDir(d)
	if !saveConfig(c) {
		return
	}

	logrus.Infof("set build dir to %s", d)

	c.IndentedJSON(http.StatusCreated, "ok")
}

func setFadingDir(c *gin.Context) {
	var d string
	if err := c.BindJSON(&d); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	conf.SetFadingDir(d)
	if !saveConfig(c) {
		return
	}

	logrus.Infof("set fading dir to %s", d)

	c.IndentedJSON(http.StatusCreated, "ok")
}

func setRunTimeout(c *gin.Context) {
	var secs int
	if err := c.BindJSON(&secs); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	if secs <= 0 {
		err := fmt.Errorf("run timeout must be positive, got %d", secs)
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	conf.SetRunTimeout(time.Duration(secs) * time.Second)
	if !saveConfig(c) {
		return
	}

	logrus.Infof("set run timeout to %ds", secs)

	c.IndentedJSON(http.StatusCreated, fmt.Sprintf("run timeout set to %ds", secs))
}

func setKeepArtifacts(c *gin.Context) {
	var k bool
	if err := c.BindJSON(&k); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	conf.SetKeepArtifacts(k)
	if !saveConfig(c) {
		return
	}

	logrus.Infof("set keep artifacts to %t", k)

	c.IndentedJSON(http.StatusCreated, "ok")
}

// RunRequest optionally overrides the configured noise set point for a single
// run.
type RunRequest struct {
	NoDb *float64 `json:"NodB,omitempty"`
}

func postRun(c *gin.Context) {
	var req RunRequest
	if c.Request.ContentLength > 0 {
		if err := c.BindJSON(&req); err != nil {
			c.IndentedJSON(http.StatusBadRequest, err.Error())
			_ = c.AbortWithError(http.StatusBadRequest, err)
			return
		}
	}

	runID, err := startRun(req.NoDb)
	if err != nil {
		if errors.Is(err, ErrRunInProgress) {
			c.IndentedJSON(http.StatusConflict, err.Error())
			_ = c.AbortWithError(http.StatusConflict, err)
			return
		}
		logrus.Errorf("startRun failed: %v", err)
		c.IndentedJSON(http.StatusInternalServerError, err.Error())
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	c.IndentedJSON(http.StatusAccepted, runID)
}

func postCancelRun(c *gin.Context) {
	if err := cancelRun(); err != nil {
		if errors.Is(err, ErrRunNotActive) {
			c.IndentedJSON(http.StatusConflict, err.Error())
			_ = c.AbortWithError(http.StatusConflict, err)
			return
		}
		logrus.Errorf("cancelRun failed: %v", err)
		c.IndentedJSON(http.StatusInternalServerError, err.Error())
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	c.IndentedJSON(http.StatusOK, "ok")
}

func getStatus(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, getRunStatus())
}

func getLastResult(c *gin.Context) {
	runMu.Lock()
	result := runState.LastResult
	runMu.Unlock()

	if result == nil {
		c.IndentedJSON(http.StatusNotFound, "no finished calibration run")
		return
	}
	c.IndentedJSON(http.StatusOK, result)
}

func setSchedule(c *gin.Context) {
	var cronExpr string
	if err := c.BindJSON(&cronExpr); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	nextRuns, err := schedule(cronExpr)
	if err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	c.IndentedJSON(http.StatusCreated, nextRuns)
}

func postPostponeSchedule(c *gin.Context) {
	var d string
	if err := c.BindJSON(&d); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	duration, err := time.ParseDuration(d)
	if err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	if err := postpone(duration); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	c.IndentedJSON(http.StatusOK, "ok")
}

func postSkipSchedule(c *gin.Context) {
	if err := skipNextSchedule(); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	c.IndentedJSON(http.StatusOK, "ok")
}

// getEvents streams daemon events to the client over SSE until it disconnects.
func getEvents(c *gin.Context) {
	ch := sseHub.Subscribe()
	defer sseHub.Unsubscribe(ch)

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(ev.Name, string(ev.Data))
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

func getVersion(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, version.Version)
}
