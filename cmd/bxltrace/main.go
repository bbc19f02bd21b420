//
// Copyright 2019-2020 Nestybox, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

package main

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	systemd "github.com/coreos/go-systemd/v22/daemon"
	"github.com/pkg/profile"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/buildxl-oss/linux-sandbox-observer/canon"
	"github.com/buildxl-oss/linux-sandbox-observer/dedup"
	"github.com/buildxl-oss/linux-sandbox-observer/domain"
	"github.com/buildxl-oss/linux-sandbox-observer/fdcache"
	"github.com/buildxl-oss/linux-sandbox-observer/policy"
	"github.com/buildxl-oss/linux-sandbox-observer/report"
	"github.com/buildxl-oss/linux-sandbox-observer/router"
	"github.com/buildxl-oss/linux-sandbox-observer/sysio"
)

const usage string = `bxltrace

bxltrace replays a scripted sequence of syscall-shaped filesystem
accesses against the observer's policy engine, dedup cache and path
canonicalizer, and prints the decision made for each one. It exists to
exercise the observer end to end without a live interposed process.
`

var version string // set at build time

func exitHandler(signalChan chan os.Signal, prof interface{ Stop() }) {
	s := <-signalChan
	logrus.Warnf("bxltrace caught signal: %s", s)
	systemd.SdNotify(false, systemd.SdNotifyStopping)

	if prof != nil {
		prof.Stop()
	}

	time.Sleep(100 * time.Millisecond)
	os.Exit(0)
}

func runProfiler(ctx *cli.Context) (interface{ Stop() }, error) {
	var prof interface{ Stop() }

	cpuProfOn := ctx.Bool("cpu-profiling")
	memProfOn := ctx.Bool("memory-profiling")

	if cpuProfOn && memProfOn {
		return nil, fmt.Errorf("unsupported parameter combination: cpu and memory profiling")
	}
	if !(cpuProfOn || memProfOn) {
		return nil, nil
	}

	if cpuProfOn {
		prof = profile.Start(profile.CPUProfile, profile.ProfilePath("."), profile.NoShutdownHook)
	}
	if memProfOn {
		prof = profile.Start(profile.MemProfile, profile.ProfilePath("."), profile.NoShutdownHook)
	}

	return prof, nil
}

func main() {
	app := cli.NewApp()
	app.Name = "bxltrace"
	app.Usage = usage
	app.Version = version

	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "script",
			Usage: "path to a scripted-event file to replay",
		},
		cli.StringFlag{
			Name:  "fam",
			Usage: "path to a rule file (\"allow|deny|block <path-prefix>\" per line); empty means allow-all",
		},
		cli.StringFlag{
			Name:  "reports",
			Usage: "path to the reports pipe/file reported accesses are written to",
		},
		cli.BoolFlag{
			Name:  "report-allowed",
			Usage: "also report accesses the policy engine allows, not just denials; applies only to the allow-all engine used when --fam is empty",
		},
		cli.StringFlag{
			Name:  "log-level",
			Value: "info",
			Usage: "log categories to include (debug, info, warning, error, fatal)",
		},
		cli.StringFlag{
			Name:  "log-format",
			Value: "text",
			Usage: "log format; must be json or text",
		},
		cli.BoolFlag{
			Name:   "cpu-profiling",
			Usage:  "enable cpu-profiling data collection",
			Hidden: true,
		},
		cli.BoolFlag{
			Name:   "memory-profiling",
			Usage:  "enable memory-profiling data collection",
			Hidden: true,
		},
	}

	app.Before = func(ctx *cli.Context) error {
		logrus.SetOutput(os.Stderr)
		log.SetOutput(os.Stderr)

		if ctx.GlobalString("log-format") == "json" {
			logrus.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02 15:04:05"})
		} else {
			logrus.SetFormatter(&logrus.TextFormatter{TimestampFormat: "2006-01-02 15:04:05", FullTimestamp: true})
		}

		switch ctx.GlobalString("log-level") {
		case "debug":
			logrus.SetLevel(logrus.DebugLevel)
		case "info":
			logrus.SetLevel(logrus.InfoLevel)
		case "warning":
			logrus.SetLevel(logrus.WarnLevel)
		case "error":
			logrus.SetLevel(logrus.ErrorLevel)
		case "fatal":
			logrus.SetLevel(logrus.FatalLevel)
		default:
			logrus.Fatalf("log-level option %q not recognized. Exiting ...", ctx.GlobalString("log-level"))
		}

		return nil
	}

	app.Action = func(ctx *cli.Context) error {
		scriptPath := ctx.String("script")
		if scriptPath == "" {
			return fmt.Errorf("--script is required")
		}

		events, links, err := loadScript(scriptPath)
		if err != nil {
			return fmt.Errorf("failed to load script %q: %w", scriptPath, err)
		}

		var eng domain.PolicyEngineIface
		if famPath := ctx.String("fam"); famPath != "" {
			contents, err := sysio.NewIOService(domain.IOOsFileService).NewIOnode("fam", famPath, 0).ReadFile()
			if err != nil {
				return fmt.Errorf("failed to read FAM file %q: %w", famPath, err)
			}
			eng, err = policy.NewFromFam(0, contents)
			if err != nil {
				return fmt.Errorf("failed to parse FAM file %q: %w", famPath, err)
			}
		} else {
			eng = policy.New(nil, ctx.Bool("report-allowed"))
		}

		reportsPath := ctx.String("reports")
		var sender *report.Sender
		if reportsPath != "" {
			sender = report.NewSender(reportsPath, app.Name)
			eng.SetAccessReportCallback(func(rep domain.AccessReport) {
				if err := sender.SendReport(rep.Pid, rep); err != nil {
					logrus.Errorf("failed to send access report: %v", err)
				}
			})
		}

		r := &router.Router{
			Policy:  eng,
			Dedup:   dedup.New(dedup.DefaultCapacityPerKind, dedup.DefaultLockTimeout),
			FdCache: fdcache.New(func(fd int) (string, error) { return "", fmt.Errorf("fd resolution unsupported in replay") }),
			Resolver: canon.New(func(path string) (string, error) {
				target, ok := links[path]
				if !ok {
					return "", fmt.Errorf("not a symlink")
				}
				return target, nil
			}),
			Sender:   sender,
			Enabled:  func() bool { return true },
			Disposed: func() bool { return false },
			Pid:      func() uint32 { return uint32(os.Getpid()) },
			Ppid:     func() uint32 { return uint32(os.Getppid()) },
			MonitorChildren: func() bool {
				return sender != nil
			},
		}

		prof, err := runProfiler(ctx)
		if err != nil {
			logrus.Fatal(err)
		}

		exitChan := make(chan os.Signal, 1)
		signal.Notify(exitChan, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
		go exitHandler(exitChan, prof)

		systemd.SdNotify(false, systemd.SdNotifyReady)

		replay(r, events)

		if prof != nil {
			prof.Stop()
		}

		return nil
	}

	if err := app.Run(os.Args); err != nil {
		logrus.Fatal(err)
	}
}

// scriptedEvent is one line of a replay script:
//
//	<syscall> <kind> <path> [secondPath]
//
// A line of the form "symlink <path> <target>" declares a symlink
// instead of an event: it populates the replay resolver's link table so
// canonicalization (dot/dot-dot collapsing and symlink following) has
// something real to walk through.
type scriptedEvent struct {
	syscallName string
	kind        domain.EventKind
	path        string
	secondPath  string
}

func loadScript(path string) ([]scriptedEvent, map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	var events []scriptedEvent
	links := make(map[string]string)
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if len(line) == 0 || line[0] == '#' {
			continue
		}

		var fields [4]string
		n := splitFields(line, fields[:])
		if n < 3 {
			return nil, nil, fmt.Errorf("line %d: expected at least 3 fields, got %d", lineNo, n)
		}

		if fields[0] == "symlink" {
			links[fields[1]] = fields[2]
			continue
		}

		kind, ok := parseEventKind(fields[1])
		if !ok {
			return nil, nil, fmt.Errorf("line %d: unrecognized event kind %q", lineNo, fields[1])
		}

		events = append(events, scriptedEvent{
			syscallName: fields[0],
			kind:        kind,
			path:        fields[2],
			secondPath:  fields[3],
		})
	}

	return events, links, scanner.Err()
}

func splitFields(line string, out []string) int {
	n := 0
	start := -1
	for i := 0; i <= len(line) && n < len(out); i++ {
		atSpace := i == len(line) || line[i] == ' '
		if !atSpace && start < 0 {
			start = i
		} else if atSpace && start >= 0 {
			out[n] = line[start:i]
			n++
			start = -1
		}
	}
	return n
}

func parseEventKind(s string) (domain.EventKind, bool) {
	kinds := []domain.EventKind{
		domain.EventOpenRead, domain.EventOpenWrite, domain.EventProbe,
		domain.EventReadlink, domain.EventWrite, domain.EventCreate,
		domain.EventUnlink, domain.EventRename, domain.EventLink,
		domain.EventExec, domain.EventFork, domain.EventExit, domain.EventOther,
	}
	for _, k := range kinds {
		if strings.EqualFold(k.String(), s) {
			return k, true
		}
	}
	return domain.EventUnknown, false
}

func replay(r *router.Router, events []scriptedEvent) {
	for _, e := range events {
		if e.kind == domain.EventExec {
			if err := r.ReportExec(e.syscallName, e.path, e.path); err != nil {
				logrus.Errorf("exec report failed: %v", err)
			}
			continue
		}

		// Route through ReportAccessAt (cwd-relative, AT_FDCWD) rather
		// than the already-canonical ReportAccess, so the replay harness
		// actually exercises dot/dot-dot collapsing and symlink
		// following instead of bypassing the resolver entirely.
		result := r.ReportAccessAt(e.syscallName, e.kind, router.AtFdcwd, e.path, true, "/")
		fmt.Printf("%s %s %s: checked=%t report=%t deny=%t\n",
			e.syscallName, e.kind, e.path, result.Checked, result.ShouldReport, result.ShouldDenyAccess)
	}
}
