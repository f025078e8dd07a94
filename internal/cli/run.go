package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/auxin/internal/backendproc"
	"github.com/calvinalkan/auxin/internal/config"
	"github.com/calvinalkan/auxin/internal/fsx"
	"github.com/calvinalkan/auxin/internal/ioutil"
	"github.com/calvinalkan/auxin/internal/lockmgr"
	"github.com/calvinalkan/auxin/internal/queue"
	"github.com/calvinalkan/auxin/internal/repo"
	"github.com/calvinalkan/auxin/internal/upload"
	"github.com/calvinalkan/auxin/internal/wal"
)

// Run is the main entry point. Returns exit code.
// sigCh can be nil if signal handling is not needed (e.g., in tests).
func Run(_ io.Reader, out io.Writer, errOut io.Writer, args []string, env map[string]string, sigCh <-chan os.Signal) int {
	globalFlags := flag.NewFlagSet("auxin", flag.ContinueOnError)
	globalFlags.SetInterspersed(false)
	globalFlags.Usage = func() {}
	globalFlags.SetOutput(&strings.Builder{})
	flagHelp := globalFlags.BoolP("help", "h", false, "Show help")
	flagCwd := globalFlags.StringP("cwd", "C", "", "Run as if started in `dir`")
	flagConfig := globalFlags.StringP("config", "c", "", "Use specified config `file`")
	flagRepoDir := globalFlags.String("repo-dir", "", "Override repo `directory`")

	if err := globalFlags.Parse(args[1:]); err != nil {
		fprintln(errOut, "error:", err)
		printGlobalOptions(errOut)

		return 1
	}

	workDir := *flagCwd
	if workDir == "" {
		workDir, _ = os.Getwd()
	}

	envSlice := make([]string, 0, len(env))
	for k, v := range env {
		envSlice = append(envSlice, k+"="+v)
	}

	cfg, sources, err := config.Load(workDir, *flagConfig, config.Config{RepoDir: *flagRepoDir}, globalFlags.Changed("repo-dir"), envSlice)
	if err != nil {
		fprintln(errOut, "error:", err)
		printGlobalOptions(errOut)

		return 1
	}

	app := buildApp(cfg, sources, env["HOME"])
	commands := allCommands(app)

	commandMap := make(map[string]Runnable, len(commands))
	for _, cmd := range commands {
		commandMap[cmd.Name()] = cmd
	}

	commandAndArgs := globalFlags.Args()

	if *flagHelp || (len(commandAndArgs) == 0 && globalFlags.NFlag() == 0) {
		printUsage(out, commands)
		return 0
	}

	if len(commandAndArgs) == 0 {
		fprintln(errOut, "error: no command provided")
		printUsage(errOut, commands)

		return 1
	}

	cmdName := commandAndArgs[0]

	cmd, ok := commandMap[cmdName]
	if !ok {
		fprintln(errOut, "error: unknown command:", cmdName)
		printUsage(errOut, commands)

		return 1
	}

	cmdIO := ioutil.NewIO(out, errOut)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan int, 1)

	go func() {
		done <- cmd.Run(ctx, cmdIO, commandAndArgs[1:])
	}()

	select {
	case exitCode := <-done:
		if exitCode != 0 {
			return exitCode
		}

		return cmdIO.Finish()
	case <-sigCh:
		fprintln(errOut, "shutting down with 5s timeout...")
		cancel()
	}

	select {
	case <-done:
		fprintln(errOut, "graceful shutdown ok (130)")
		return 130
	case <-time.After(5 * time.Second):
		fprintln(errOut, "graceful shutdown timed out, forced exit (130)")
		return 130
	case <-sigCh:
		fprintln(errOut, "graceful shutdown interrupted, forced exit (130)")
		return 130
	}
}

// buildApp wires the full dependency graph (C1-C8 plus ambient packages)
// for one CLI invocation.
func buildApp(cfg config.Config, sources config.Sources, home string) *App {
	real := fsx.NewReal()
	backend := backendproc.New(cfg.BackendPath, real)

	walLog := wal.New(real, wal.DefaultPath(home))
	q := queue.New(real, queue.DefaultPath(home))
	locks := lockmgr.New(backend, real)
	uploads := upload.New(backend, real, home+"/.auxin/uploads")

	facade := repo.New(backend, real, walLog, q, locks, uploads, repo.Config{DefaultRemote: cfg.DefaultRemote})

	return &App{
		Facade:  facade,
		Locks:   locks,
		WAL:     walLog,
		Queue:   q,
		Config:  cfg,
		Sources: sources,
	}
}

// allCommands returns all commands in display order.
func allCommands(app *App) []Runnable {
	return []Runnable{
		InitCmd(app),
		AddCmd(app),
		CommitCmd(app),
		PushCmd(app),
		StatusCmd(app),
		LogCmd(app),
		RestoreCmd(app),
		DiffCmd(app),
		LockGroup(app),
		QueueGroup(app),
		WALGroup(app),
		ConfigGroup(app),
	}
}

func fprintln(w io.Writer, a ...any) {
	_, _ = fmt.Fprintln(w, a...)
}

const globalOptionsHelp = `  -h, --help             Show help
  -C, --cwd <dir>        Run as if started in <dir>
  -c, --config <file>    Use specified config file
  --repo-dir <dir>       Override repo directory`

func printGlobalOptions(w io.Writer) {
	fprintln(w, "Usage: auxin [flags] <command> [args]")
	fprintln(w)
	fprintln(w, "Global flags:")
	fprintln(w, globalOptionsHelp)
	fprintln(w)
	fprintln(w, "Run 'auxin --help' for a list of commands.")
}

func printUsage(w io.Writer, commands []Runnable) {
	fprintln(w, "auxin - version-control coordination for large binary creative projects")
	fprintln(w)
	fprintln(w, "Usage: auxin [flags] <command> [args]")
	fprintln(w)
	fprintln(w, "Flags:")
	fprintln(w, globalOptionsHelp)
	fprintln(w)
	fprintln(w, "Commands:")

	for _, cmd := range commands {
		fprintln(w, cmd.HelpLine())
	}
}
