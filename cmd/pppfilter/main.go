// pppfilter drives the estimation core (pppcore/core) against a stream of
// pre-processed epoch records read as JSON lines from a file or stdin.
// Reading RINEX/broadcast ephemeris and computing prefit residuals is
// upstream pre-processing work this program does not do; the epoch record
// JSON layout is the epochJSON type below, and the config file keys are the
// yaml tags of core.Config.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"pppcore/core"
)

var progname = "pppfilter"

var help = []string{
	"",
	" usage: pppfilter [option]... [epochs.jsonl]",
	"",
	" Read pre-processed GNSS epoch records (one JSON object per line; see",
	" epochJSON below) and run them through the PPP estimation core, printing",
	" one solution line per accepted epoch. Reads stdin if no file is given.",
	"",
	" -?          print help",
	" -config f   YAML estimator configuration file [defaults]",
	" -v          verbose (debug-level) logging [off]",
	"",
}

func printHelp() {
	for _, l := range help {
		fmt.Fprintln(os.Stderr, l)
	}
}

// epochJSON mirrors core.EpochRecord's fields for line-delimited JSON
// input, using plain float seconds for time to avoid pulling a timestamp
// format decision into this demo driver.
type epochJSON struct {
	UnixTime    float64        `json:"unixTime"`
	NominalPos  [3]float64     `json:"nominalPos"`
	ReceiverTag string         `json:"receiverTag"`
	Satellites  []satelliteRow `json:"satellites"`
}

type satelliteRow struct {
	Sys       int                `json:"sys"`
	PRN       int                `json:"prn"`
	Elevation float64            `json:"elevation"`
	Azimuth   float64            `json:"azimuth"`
	Prefit    map[string]float64 `json:"prefit"`
	Slip      bool               `json:"slip"`
}

var measurementNames = map[string]core.MeasurementType{
	"CodeSF": core.CodeSF, "CodeIF": core.CodeIF, "CodeL1": core.CodeL1, "CodeL2": core.CodeL2,
	"PhaseSF": core.PhaseSF, "PhaseIF": core.PhaseIF, "PhaseL1": core.PhaseL1, "PhaseL2": core.PhaseL2,
}

func toEpoch(e epochJSON) core.EpochRecord {
	rec := core.EpochRecord{
		Time:        time.Unix(0, int64(e.UnixTime*1e9)).UTC(),
		NominalPos:  e.NominalPos,
		ReceiverTag: e.ReceiverTag,
	}
	for _, s := range e.Satellites {
		sat := core.SatObservation{
			SV:        core.SatID{Sys: s.Sys, PRN: s.PRN},
			Elevation: s.Elevation,
			Azimuth:   s.Azimuth,
			Slip:      s.Slip,
			Prefit:    map[core.MeasurementType]float64{},
		}
		for k, v := range s.Prefit {
			if mt, ok := measurementNames[k]; ok {
				sat.Prefit[mt] = v
			}
		}
		rec.Satellites = append(rec.Satellites, sat)
	}
	return rec
}

func main() {
	os.Exit(run())
}

func run() int {
	flag.Usage = printHelp
	configPath := flag.String("config", "", "YAML estimator configuration file")
	verbose := flag.Bool("v", false, "verbose logging")
	showHelp := flag.Bool("?", false, "print help")
	flag.Parse()

	if *showHelp {
		printHelp()
		return 0
	}

	cfg := core.DefaultConfig()
	if *configPath != "" {
		data, err := os.ReadFile(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: read config: %v\n", progname, err)
			return 2
		}
		cfg, err = core.LoadConfig(data)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", progname, err)
			return 2
		}
	}

	if *verbose {
		logger := logrus.New()
		logger.SetLevel(logrus.DebugLevel)
		core.SetLogger(logger)
	}

	var in io.Reader = os.Stdin
	if flag.NArg() > 0 {
		f, err := os.Open(flag.Arg(0))
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", progname, err)
			return 2
		}
		defer f.Close()
		in = f
	}

	est, err := core.NewEstimator(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", progname, err)
		return 2
	}

	return processStream(est, in, os.Stdout)
}

func processStream(est *core.Estimator, in io.Reader, out io.Writer) int {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	status := 0
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ej epochJSON
		if err := json.Unmarshal(line, &ej); err != nil {
			fmt.Fprintf(os.Stderr, "%s: decode epoch: %v\n", progname, err)
			status = 1
			continue
		}
		epoch := toEpoch(ej)
		if err := est.Process(&epoch); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %s: %v\n", progname, epoch.Time.Format(time.RFC3339), err)
			status = 1
			continue
		}
		printSolution(out, &epoch, est.Driver)
	}
	if est.Smoother != nil {
		if _, err := est.Reprocess(); err != nil {
			fmt.Fprintf(os.Stderr, "%s: reprocess: %v\n", progname, err)
			return 1
		}
	}
	return status
}

func printSolution(out io.Writer, epoch *core.EpochRecord, d *core.KalmanDriver) {
	dx, _ := d.Solution(core.ParamID{Kind: core.ParamPosDX})
	dy, _ := d.Solution(core.ParamID{Kind: core.ParamPosDY})
	dz, _ := d.Solution(core.ParamID{Kind: core.ParamPosDZ})
	fmt.Fprintf(out, "%s %.4f %.4f %.4f sigma=%.4f nsat=%d\n",
		epoch.Time.Format(time.RFC3339), dx, dy, dz, d.Sigma(), len(epoch.Satellites))
}
