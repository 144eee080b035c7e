// Package solver invokes the glpsol MILP solver against a generated
// .model/.data pair and parses its .sol output, either on the local host
// or on a remote device reached over SSH.
package solver

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

// NotFoundCost is the sentinel path cost recorded when glpsol finds no
// feasible solution, or when the .sol file never materializes.
const NotFoundCost = 1e308

// Default per-call timeouts (spec §4.6; mirrors GLPK_constant.MAX_SEC_*).
const (
	MaxSecPathFind = 120 * time.Second
	MaxSecSolvec   = 120 * time.Second
)

// Solver runs glpsol against a model/data pair, writing its solution to
// solFile, and returns the combined stdout+stderr for route parsing.
type Solver interface {
	Solve(ctx context.Context, modelFile, dataFile, solFile string, timeout time.Duration) (stdout string, err error)
}

// DisplayRunner runs glpsol in "display" mode: no --output/--tmlim, just a
// model+data pair whose `display ...;` statements land on stdout. The AC
// builder uses this to capture each device model's legal-connection tuples
// (spec §4.3), keeping stdout and stderr separate since only stdout is
// persisted as the .conn.txt file.
type DisplayRunner interface {
	RunDisplay(ctx context.Context, modelFile, dataFile string) (stdout, stderr string, err error)
}

// Local runs glpsol as a child process on the same host as the NRM
// server (spec §9's default deployment).
type Local struct {
	// BinPath is the glpsol executable; defaults to "glpsol" on PATH.
	BinPath string
	Log     *logrus.Entry
}

// NewLocal returns a Local solver invoking "glpsol" from PATH.
func NewLocal(log *logrus.Entry) *Local {
	return &Local{BinPath: "glpsol", Log: log}
}

// Solve runs `glpsol --model <modelFile> --data <dataFile> --output <solFile>
// --tmlim <seconds>`, matching reserve.py's _GLPK_work cmd_args exactly.
// A non-zero exit or a timeout is not itself an error: glpsol signals "no
// feasible solution" by simply not writing PATH_COST into solFile, so the
// caller inspects solFile (via ParseCost) rather than the returned error.
func (s *Local) Solve(ctx context.Context, modelFile, dataFile, solFile string, timeout time.Duration) (string, error) {
	absModel, err := absPath(modelFile)
	if err != nil {
		return "", err
	}
	absData, err := absPath(dataFile)
	if err != nil {
		return "", err
	}
	absSol, err := absPath(solFile)
	if err != nil {
		return "", err
	}

	cctx, cancel := context.WithTimeout(ctx, timeout+5*time.Second)
	defer cancel()

	tmlim := strconv.Itoa(int(timeout.Seconds()))
	cmd := exec.CommandContext(cctx, s.BinPath,
		"--model", absModel,
		"--data", absData,
		"--output", absSol,
		"--tmlim", tmlim,
	)
	out, err := cmd.CombinedOutput()
	if s.Log != nil {
		s.Log.WithFields(logrus.Fields{
			"model": absModel,
			"data":  absData,
		}).Debug("glpsol exec")
	}
	// exec.ExitError just means glpsol exited non-zero (e.g. infeasible
	// problem); ParseCost on solFile is the authoritative answer.
	if _, isExit := err.(*exec.ExitError); isExit {
		err = nil
	}
	return string(out), err
}

// RunDisplay runs `glpsol --model <modelFile> --data <dataFile>` with no
// --output/--tmlim, matching make_ac.py's _output_GLPK invocation exactly.
// A non-zero exit is returned to the caller as an error (AcBuildError
// territory) rather than swallowed, since here (unlike path-solving) a
// failing glpsol run means the device model itself is malformed.
func (s *Local) RunDisplay(ctx context.Context, modelFile, dataFile string) (string, string, error) {
	absModel, err := absPath(modelFile)
	if err != nil {
		return "", "", err
	}
	absData, err := absPath(dataFile)
	if err != nil {
		return "", "", err
	}

	cmd := exec.CommandContext(ctx, s.BinPath, "--model", absModel, "--data", absData)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err = cmd.Run()
	if s.Log != nil {
		s.Log.WithFields(logrus.Fields{"model": absModel, "data": absData}).Debug("glpsol display exec")
	}
	if _, isExit := err.(*exec.ExitError); isExit {
		return stdout.String(), stderr.String(), fmt.Errorf("solver: glpsol exited non-zero for %s: %w", modelFile, err)
	}
	return stdout.String(), stderr.String(), err
}

var pathCostRegexp = regexp.MustCompile(`PATH_COST = ([0-9.]+)`)

// ParseCost reads the first 10 lines of a .sol file looking for
// "PATH_COST = XXX"; returns NotFoundCost if the file is absent, the
// pattern never appears, or the parsed value is not positive (reserve.py
// _parse_cost).
func ParseCost(solFile string) (float64, error) {
	f, err := os.Open(solFile)
	if err != nil {
		if os.IsNotExist(err) {
			return NotFoundCost, nil
		}
		return NotFoundCost, fmt.Errorf("solver: opening %s: %w", solFile, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for n := 0; n < 10 && scanner.Scan(); n++ {
		m := pathCostRegexp.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		c, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return NotFoundCost, fmt.Errorf("solver: parsing PATH_COST in %s: %w", solFile, err)
		}
		if c > 0 {
			return c, nil
		}
		break
	}
	return NotFoundCost, nil
}

func absPath(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("solver: resolving path %s: %w", p, err)
	}
	return abs, nil
}
