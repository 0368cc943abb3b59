// Package regress provides growth.Regressor implementations: an external
// asymptotic regression tool and an in-process weighted least squares fit.
package regress

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/okian/rnaught/internal/adapters/files"
	"github.com/okian/rnaught/internal/domain/growth"
	"github.com/okian/rnaught/internal/domain/model"
	"github.com/okian/rnaught/pkg/logger"
)

const (
	maxStderr = 512

	// waitDelay bounds how long Run waits for output pipes after the tool
	// is killed.
	waitDelay = time.Second
)

// Exec runs an external regression tool once per country. The tool is invoked
// as "<command> -in CODE.dat -out CODE.out -include left" and its report is
// parsed with growth.ParseReport.
type Exec struct {
	command []string
	dir     string
	timeout time.Duration
	log     logger.Logger
}

// NewExec creates an Exec. command is split on whitespace; dir receives the
// .dat and .out files.
func NewExec(command, dir string, timeout time.Duration) (*Exec, error) {
	argv := strings.Fields(command)
	if len(argv) == 0 {
		return nil, ErrEmptyCommand
	}
	return &Exec{command: argv, dir: dir, timeout: timeout, log: logger.Named("regress")}, nil
}

// Paths returns the input and report paths used for code.
func (e *Exec) Paths(code string) (in, out string) {
	base := filepath.Join(e.dir, code)
	return base + ".dat", base + ".out"
}

// Regress implements growth.Regressor.
func (e *Exec) Regress(ctx context.Context, code string, points []model.RegressionPoint) (growth.Fit, error) {
	in, out := e.Paths(code)
	if err := files.WritePoints(in, points); err != nil {
		return growth.Fit{}, err
	}
	// A stale report from an earlier run must not be mistaken for this one.
	if err := os.Remove(out); err != nil && !errors.Is(err, os.ErrNotExist) {
		return growth.Fit{}, fmt.Errorf("remove stale report: %w", err)
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	args := append(append([]string(nil), e.command[1:]...), "-in", in, "-out", out, "-include", "left")
	cmd := exec.CommandContext(ctx, e.command[0], args...)
	setProcessGroup(cmd)
	cmd.WaitDelay = waitDelay
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	e.log.Debug(ctx, "regression command finished",
		logger.String("code", code),
		logger.Int("points", len(points)),
		logger.Duration("elapsed", time.Since(start)))
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return growth.Fit{}, fmt.Errorf("%w: %s after %s", ErrTimeout, code, e.timeout)
		}
		return growth.Fit{}, fmt.Errorf("%w: %s: %w: %s", ErrCommandFailed, code, err, tail(stderr.String()))
	}

	f, err := os.Open(out)
	if err != nil {
		return growth.Fit{}, fmt.Errorf("%w: %s: open report: %w", ErrCommandFailed, code, err)
	}
	defer f.Close()
	fit, err := growth.ParseReport(f)
	if err != nil {
		return growth.Fit{}, fmt.Errorf("parse report for %s: %w", code, err)
	}
	return fit, nil
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxStderr {
		return s[len(s)-maxStderr:]
	}
	return s
}
