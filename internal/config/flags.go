package config

import (
	"flag"
	"fmt"
	"io"
)

// Flags holds the parsed command-line overrides from spec §6. CLI values
// take precedence over the config file; zero values mean "not set".
type Flags struct {
	Verbosity        int
	LogToFile        bool
	WaitJobsTime     int64 // seconds
	CheckJobsInterval int64 // ms
	KeepOutput       bool
	BasePath         string
	AllowInhomogeneous bool
	Simulate         bool
}

// ParseFlags parses args (normally os.Args[1:]) using the stdlib flag
// package, which natively supports the single-dash long names this
// worker's fixed flag contract requires. usage is written to w when
// --help is given, and ok is false after help or a parse error (the
// caller should exit 0 on help, 1 otherwise).
func ParseFlags(args []string, w io.Writer) (Flags, bool) {
	fs := flag.NewFlagSet("edacc-worker", flag.ContinueOnError)
	fs.SetOutput(w)

	var f Flags
	fs.IntVar(&f.Verbosity, "v", 0, "log verbosity 0..4")
	fs.BoolVar(&f.LogToFile, "l", false, "log to file instead of stdout")
	fs.Int64Var(&f.WaitJobsTime, "w", 10, "idle-exit window in seconds")
	fs.Int64Var(&f.CheckJobsInterval, "i", 100, "initial check_jobs_interval in ms")
	fs.BoolVar(&f.KeepOutput, "k", false, "retain solver/watcher output files")
	fs.StringVar(&f.BasePath, "b", ".", "base path for instances/solvers/results")
	fs.BoolVar(&f.AllowInhomogeneous, "h", false, "allow running on hosts whose CPU differs from the grid queue")
	fs.BoolVar(&f.Simulate, "s", false, "simulation mode: no DB writes, enumerate jobs, summarize statuses")
	help := fs.Bool("help", false, "print usage and exit 0")

	if err := fs.Parse(args); err != nil {
		return Flags{}, false
	}
	if *help {
		fs.SetOutput(w)
		fs.Usage()
		fmt.Fprintln(w, "--help: print this message and exit 0")
		return f, false
	}
	return f, true
}
