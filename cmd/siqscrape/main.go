/*
siqscrape is a command line scraper for the SleepIQ sleep dashboard.

Have a look at the README.md for more information.
*/
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/alecthomas/kong"
	"github.com/jroca/siqscrape/internal/config"
	"github.com/jroca/siqscrape/internal/log"
	"github.com/jroca/siqscrape/internal/output"
	"github.com/jroca/siqscrape/internal/scrape"
	"github.com/jroca/siqscrape/internal/session"
	"github.com/jroca/siqscrape/internal/types"
	"github.com/jroca/siqscrape/internal/view"
	"github.com/miekg/king"
	"github.com/olekukonko/tablewriter"
)

var version = "dev"

const name = "siqscrape"

type VersionFlag string

func (v VersionFlag) Decode(_ *kong.DecodeContext) error { return nil }
func (v VersionFlag) IsBool() bool                       { return true }
func (v VersionFlag) BeforeApply(app *kong.Kong, vars kong.Vars) error {
	fmt.Println(vars["version"])
	app.Exit(0)
	return nil
}

type cli struct {
	Version VersionFlag `short:"v" long:"version" help:"Print the version and exit."`
	Debug   bool        `short:"d" long:"debug" help:"Set log level to 'debug' and store additional helpful debugging data."`

	Completion CompletionCommand `cmd:"" help:"Generate autocompletion file."`

	Run     RunCmd     `cmd:"" help:"Scrape the dashboard once and write the snapshot."`
	Serve   ServeCmd   `cmd:"" help:"Start an http endpoint that triggers a scrape per request."`
	Session SessionCmd `cmd:"" help:"Manage the cached login session."`
	View    ViewCmd    `cmd:"" help:"Display a saved snapshot as a table."`
}

type ShellType string

const (
	BASH ShellType = "bash"
	ZSH  ShellType = "zsh"
	FISH ShellType = "fish"
)

var shellTypes = []string{string(BASH), string(ZSH), string(FISH)}

type CompletionCommand struct {
	Shell ShellType `short:"s" help:"The shell that you want to create the autocompletion file for." required:"" enum:"bash,zsh,fish"`
}

func (acc *CompletionCommand) Run() error {
	cli := &cli{}
	parser := kong.Must(cli)

	switch acc.Shell {
	case BASH:
		b := &king.Bash{}
		b.Completion(parser.Model.Node, name)
		return b.Write()
	case ZSH:
		z := &king.Zsh{}
		z.Completion(parser.Model.Node, name)
		return z.Write()
	case FISH:
		f := &king.Fish{}
		f.Completion(parser.Model.Node, name)
		return f.Write()
	default:
		// should not happen due to enum constraint
		return fmt.Errorf("shell type not supported: %s. Must be one of [%s].", acc.Shell, strings.Join(shellTypes, ", "))
	}
}

type RunCmd struct {
	Config  string `short:"c" help:"The location of the configuration file. If not set, the configuration is read from environment variables." completion:"<file>"`
	Stdout  bool   `short:"o" help:"If set to true the snapshot will be written to stdout despite any other existing writer configuration."`
	DryRun  bool   `short:"D" help:"If set to true the snapshot will not be persisted (currently only has an effect on the APIWriter)."`
	Summary bool   `short:"s" help:"Print a summary table of the run at the end."`
}

func (rc *RunCmd) Run() error {
	cfg, err := loadConfig(rc.Config)
	if err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return err
	}

	if rc.Stdout {
		cfg.Writer.Type = output.STDOUT_WRITER_TYPE
	}

	if rc.DryRun {
		cfg.Writer.DryRun = true
	}

	writer, err := output.NewWriter(&cfg.Writer)
	if err != nil {
		slog.Error(err.Error())
		return err
	}

	runner, err := scrape.NewRunner(cfg)
	if err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.OverallTimeoutMs)*time.Millisecond)
	defer cancel()

	snapshot, err := runner.Run(ctx)
	if err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return err
	}

	if err := writer.Write(snapshot); err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return err
	}

	if rc.Summary {
		printSummary(runner.Stats())
	}
	return nil
}

func printSummary(stats types.RunStats) {
	slog.Info("printing run summary")
	nrFields := len(types.FieldNames())

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Sleeper", "Fields", "Duration"})

	totalFields := 0
	var totalDuration int64
	for _, s := range stats.Sleepers {
		row := []string{s.Sleeper, fmt.Sprintf("%d/%d", s.NrFieldsFilled, nrFields), fmt.Sprintf("%dms", s.DurationMS)}
		if s.NrFieldsFilled == 0 {
			table.Rich(row, []tablewriter.Colors{{tablewriter.Normal, tablewriter.FgRedColor}, {tablewriter.Normal, tablewriter.FgRedColor}, {tablewriter.Normal, tablewriter.FgRedColor}})
		} else if s.NrFieldsFilled < nrFields {
			table.Rich(row, []tablewriter.Colors{{tablewriter.Normal, tablewriter.FgYellowColor}, {tablewriter.Normal, tablewriter.FgYellowColor}, {tablewriter.Normal, tablewriter.FgYellowColor}})
		} else {
			table.Append(row)
		}
		totalFields += s.NrFieldsFilled
		totalDuration += s.DurationMS
	}
	table.SetFooter([]string{"total", fmt.Sprintf("%d/%d", totalFields, len(stats.Sleepers)*nrFields), fmt.Sprintf("%dms", totalDuration)})
	table.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT})
	table.SetBorder(false)
	table.Render()
}

type ServeCmd struct {
	Config string `short:"c" help:"The location of the configuration file. If not set, the configuration is read from environment variables." completion:"<file>"`
	Addr   string `short:"a" help:"The address to listen on. Overrides the configured one."`
}

func (sc *ServeCmd) Run() error {
	cfg, err := loadConfig(sc.Config)
	if err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return err
	}

	runner, err := scrape.NewRunner(cfg)
	if err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return err
	}

	addr := cfg.Serve.Addr
	if sc.Addr != "" {
		addr = sc.Addr
	}

	slog.Info(fmt.Sprintf("listening on %s", addr))
	return http.ListenAndServe(addr, newServeMux(cfg, runner))
}

func newServeMux(cfg *config.Config, runner *scrape.Runner) *http.ServeMux {
	// one browser, one page: requests must not scrape concurrently
	var mu sync.Mutex

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "ok")
	})
	mux.HandleFunc("/scrape", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if cfg.Serve.User != "" {
			user, pass, ok := r.BasicAuth()
			if !ok || user != cfg.Serve.User || pass != cfg.Serve.Password {
				w.Header().Set("WWW-Authenticate", `Basic realm="siqscrape"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}

		mu.Lock()
		defer mu.Unlock()
		ctx, cancel := context.WithTimeout(r.Context(), time.Duration(cfg.OverallTimeoutMs)*time.Millisecond)
		defer cancel()

		snapshot, err := runner.Run(ctx)
		if err != nil {
			slog.Error(fmt.Sprintf("run failed: %v", err))
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		encoder := json.NewEncoder(w)
		encoder.SetEscapeHTML(false)
		if err := encoder.Encode(snapshot); err != nil {
			slog.Error(fmt.Sprintf("could not write response: %v", err))
		}
	})
	return mux
}

type SessionCmd struct {
	Clear SessionClearCmd `cmd:"" help:"Delete the cached login session."`
}

type SessionClearCmd struct {
	Config string `short:"c" help:"The location of the configuration file. If not set, the configuration is read from environment variables." completion:"<file>"`
}

func (scc *SessionClearCmd) Run() error {
	cfg, err := config.NewConfig(scc.Config)
	if err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return err
	}
	if cfg.Credentials.Username == "" {
		err := fmt.Errorf("a username is required to locate the session record")
		slog.Error(err.Error())
		return err
	}

	store, err := session.NewStore(&cfg.Session)
	if err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return err
	}
	manager := session.NewManager(store, &cfg.Session, cfg.Credentials.Username, cfg.Site.BaseURL)
	manager.Clear(context.Background())
	return nil
}

type ViewCmd struct {
	File string `short:"f" default:"./snapshot.json" help:"The snapshot file to display." completion:"<file>"`
}

func (vc *ViewCmd) Run() error {
	snapshot, err := view.Load(vc.File)
	if err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return err
	}
	view.Show(snapshot)
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.NewConfig(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func getVersion() string {
	buildInfo, ok := debug.ReadBuildInfo()
	if ok {
		if buildInfo.Main.Version != "" && buildInfo.Main.Version != "(devel)" {
			return buildInfo.Main.Version
		}
	}
	return version
}

func main() {
	cli := cli{
		Version: VersionFlag(getVersion()),
	}

	ctx := kong.Parse(&cli,
		kong.Vars{
			"version": string(cli.Version),
		})

	log.Debug = cli.Debug
	// not very nice that the log package contains global state,
	// and that the following function relies on the log.Debug variable being set
	log.InitializeDefaultLogger()

	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}
