// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package platesolve

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ManuGH/astrogate/internal/log"
	"github.com/ManuGH/astrogate/internal/procgroup"
	"github.com/rs/zerolog"
	"gopkg.in/ini.v1"
)

// solverGrace is how long a cancelled solver group gets after SIGTERM.
const solverGrace = 2 * time.Second

// CommandSolver runs an ASTAP-compatible command line solver. The solver
// writes "<image>.ini" next to the image with PLTSOLVD, CRVAL1/2 and
// CDELT/CROTA keys, which is read back here.
type CommandSolver struct {
	Binary          string
	SearchRadiusDeg float64
	Downsample      int
	Timeout         time.Duration

	logger zerolog.Logger
}

func NewCommandSolver(binary string, searchRadiusDeg float64, timeout time.Duration) *CommandSolver {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &CommandSolver{
		Binary:          binary,
		SearchRadiusDeg: searchRadiusDeg,
		Timeout:         timeout,
		logger:          log.WithComponent("platesolve"),
	}
}

func (s *CommandSolver) args(req Request) []string {
	args := []string{"-f", req.Path}
	if s.SearchRadiusDeg > 0 {
		args = append(args, "-r", strconv.FormatFloat(s.SearchRadiusDeg, 'f', -1, 64))
	}
	if scale := req.PixelScale(); scale > 0 {
		args = append(args, "-scale", strconv.FormatFloat(scale, 'f', 3, 64))
	}
	if s.Downsample > 0 {
		args = append(args, "-z", strconv.Itoa(s.Downsample))
	}
	if req.Hint != nil {
		// ASTAP takes RA in hours and declination as south pole distance.
		args = append(args,
			"-ra", strconv.FormatFloat(req.Hint.RA/15, 'f', 6, 64),
			"-spd", strconv.FormatFloat(req.Hint.Dec+90, 'f', 6, 64),
		)
	}
	return args
}

func resultPath(imagePath string) string {
	return strings.TrimSuffix(imagePath, filepath.Ext(imagePath)) + ".ini"
}

func (s *CommandSolver) Solve(ctx context.Context, req Request) (*Result, error) {
	if s.Binary == "" {
		return nil, ErrUnavailable
	}
	if _, err := os.Stat(req.Path); err != nil {
		return nil, fmt.Errorf("solve input: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	out := resultPath(req.Path)
	_ = os.Remove(out)
	defer func() { _ = os.Remove(out) }()

	start := time.Now()
	cmd := exec.CommandContext(ctx, s.Binary, s.args(req)...)
	procgroup.Bind(cmd, solverGrace)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	runErr := cmd.Run()
	elapsed := time.Since(start)

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("solver interrupted: %w", ctxErr)
	}

	res, err := readResult(out)
	if err != nil {
		if runErr != nil {
			return nil, fmt.Errorf("solver failed: %w: %s", runErr, strings.TrimSpace(stderr.String()))
		}
		return nil, err
	}
	res.Duration = elapsed
	if res.PixelScale == 0 {
		res.PixelScale = req.PixelScale()
	}

	s.logger.Info().
		Str(log.FieldPath, req.Path).
		Bool("success", res.Success).
		Float64("ra", res.Coordinates.RA).
		Float64("dec", res.Coordinates.Dec).
		Dur("duration", elapsed).
		Msg("plate solve finished")
	return res, nil
}

func readResult(path string) (*Result, error) {
	f, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("read solver result: %w", err)
	}
	sec := f.Section("")
	if !sec.HasKey("PLTSOLVD") {
		return nil, errors.New("solver result missing PLTSOLVD")
	}

	res := &Result{SolvedAt: time.Now().UTC()}
	res.Success = strings.EqualFold(strings.TrimSpace(sec.Key("PLTSOLVD").String()), "T")
	if msg := sec.Key("ERROR").String(); msg != "" {
		res.Message = msg
	} else if msg := sec.Key("WARNING").String(); msg != "" {
		res.Message = msg
	}
	if !res.Success {
		return res, nil
	}

	res.Coordinates.RA = sec.Key("CRVAL1").MustFloat64(0)
	res.Coordinates.Dec = sec.Key("CRVAL2").MustFloat64(0)
	res.Rotation = sec.Key("CROTA2").MustFloat64(0)
	if d := sec.Key("CDELT2").MustFloat64(0); d != 0 {
		res.PixelScale = math.Abs(d) * 3600
	}
	return res, nil
}
