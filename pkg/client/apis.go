package client

import (
	"encoding/json"
	"strconv"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/cnocal/cnocal/pkg/calib"
	"github.com/cnocal/cnocal/pkg/config"
)

func (c *Client) SetTolerance(db float64) (string, error) {
	return c.Put("/tolerance", strconv.FormatFloat(db, 'f', -1, 64))
}

func (c *Client) SetLossMax(max float64) (string, error) {
	return c.Put("/loss-max", strconv.FormatFloat(max, 'f', -1, 64))
}

func (c *Client) SetNoDb(noDb float64) (string, error) {
	return c.Put("/no-db", strconv.FormatFloat(noDb, 'f', -1, 64))
}

func (c *Client) SetBuildDir(dir string) (string, error) {
	payload, err := json.Marshal(dir)
	if err != nil {
		return "", err
	}
	return c.Put("/build-dir", string(payload))
}

func (c *Client) SetFadingDir(dir string) (string, error) {
	payload, err := json.Marshal(dir)
	if err != nil {
		return "", err
	}
	return c.Put("/fading-dir", string(payload))
}

func (c *Client) SetRunTimeout(seconds int) (string, error) {
	return c.Put("/run-timeout", strconv.Itoa(seconds))
}

func (c *Client) SetKeepArtifacts(keep bool) (string, error) {
	return c.Put("/keep-artifacts", strconv.FormatBool(keep))
}

// StartRun starts a calibration run and returns its run ID. A nil noDb runs
// at the configured noise set point.
func (c *Client) StartRun(noDb *float64) (string, error) {
	data := ""
	if noDb != nil {
		b, err := json.Marshal(map[string]float64{"NodB": *noDb})
		if err != nil {
			return "", err
		}
		data = string(b)
	}

	ret, err := c.Send("POST", "/runs", data)
	if err != nil {
		return "", pkgerrors.Wrapf(err, "failed to start calibration run")
	}

	var runID string
	if err := json.Unmarshal([]byte(ret), &runID); err != nil {
		return "", pkgerrors.Wrapf(err, "failed to unmarshal run ID")
	}
	return runID, nil
}

func (c *Client) CancelRun() (string, error) {
	return c.Send("POST", "/runs/cancel", "")
}

func (c *Client) GetStatus() (*calib.Status, error) {
	ret, err := c.Get("/status")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get status")
	}

	var st calib.Status
	if err := json.Unmarshal([]byte(ret), &st); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal status")
	}
	return &st, nil
}

func (c *Client) GetLastResult() (*calib.RunResult, error) {
	ret, err := c.Get("/last-result")
	if err != nil {
		return nil, err
	}

	var result calib.RunResult
	if err := json.Unmarshal([]byte(ret), &result); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal last result")
	}
	return &result, nil
}

// Schedule sets the calibration cron schedule and returns the next few run
// times. An empty expression disables the schedule.
func (c *Client) Schedule(cronExpr string) ([]time.Time, error) {
	payload, err := json.Marshal(cronExpr)
	if err != nil {
		return nil, err
	}

	ret, err := c.Put("/schedule", string(payload))
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to set schedule")
	}

	var nextRuns []time.Time
	if err := json.Unmarshal([]byte(ret), &nextRuns); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal next run times")
	}
	return nextRuns, nil
}

func (c *Client) PostponeSchedule(d time.Duration) (string, error) {
	payload, err := json.Marshal(d.String())
	if err != nil {
		return "", err
	}
	return c.Send("POST", "/schedule/postpone", string(payload))
}

func (c *Client) SkipSchedule() (string, error) {
	return c.Send("POST", "/schedule/skip", "")
}

func (c *Client) GetConfig() (*config.RawFileConfig, error) {
	ret, err := c.Get("/config")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get config")
	}

	var conf config.RawFileConfig
	if err := json.Unmarshal([]byte(ret), &conf); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal config")
	}

	return &conf, nil
}

func (c *Client) GetVersion() (string, error) {
	ret, err := c.Get("/version")
	if err != nil {
		return "", pkgerrors.Wrapf(err, "failed to get version")
	}

	var version string
	if err := json.Unmarshal([]byte(ret), &version); err != nil {
		return "", pkgerrors.Wrapf(err, "failed to unmarshal version")
	}
	return version, nil
}
