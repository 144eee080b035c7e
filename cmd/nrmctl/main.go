// nrmctl is the command-line front end for a running nrmserver: each
// subcommand sends one line-oriented command over the TCP protocol (spec
// §6) and prints the reply. With no subcommand it drops into an
// interactive shell that does the same, one line at a time, until Ctrl+C
// or EOF.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aist-nrm/nrm/pkg/cli"
	"github.com/aist-nrm/nrm/pkg/config"
	"github.com/aist-nrm/nrm/pkg/protocol"
	"github.com/aist-nrm/nrm/pkg/util"
	"github.com/aist-nrm/nrm/pkg/version"
)

var (
	configPath string
	addrFlag   string
	verbose    bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:               "nrmctl",
	Short:             "Command-line client for the NRM request server",
	SilenceUsage:      true,
	SilenceErrors:     true,
	CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			return util.SetLogLevel("debug")
		}
		return nil
	},
	// With no subcommand, behave like the original interactive client.
	RunE: func(cmd *cobra.Command, args []string) error {
		return runShell()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path (overrides default)")
	rootCmd.PersistentFlags().StringVarP(&addrFlag, "addr", "a", "", "server address host:port (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(
		newRawCmd(),
		newShellCmd(),
		newOpsCmd(),
		newVersionCmd(),
	)
}

// opsTable is spec §6's operation table, reproduced here so `nrmctl ops`
// can list it without importing pkg/nrmops (the server-side dispatcher).
var opsTable = [][3]string{
	{"pathfind", "-s SRC -d DST [-bi] [-ero P...] [-ch C...] [-wdmsa] [-p N] [-model K] [-data K]", "compute a route, do not reserve"},
	{"reserve", "(same as pathfind)", "compute + reserve in memory"},
	{"query", "[-g ID|GLOBAL] [-q] [-db]", "dump reservation(s)"},
	{"terminate", "-g ID|GLOBAL [-db]", "delete one reservation"},
	{"TERMINATEALL", "[-db]", "delete all reservations"},
	{"writeDB", "", "flush in-memory reservations to store"},
	{"deltmp", "true|false", "toggle temp-dir deletion"},
	{"dumpglpsol", "true|false", "toggle full solver-stdout capture"},
}

// newOpsCmd lists every server operation's argument shape, independent of
// any running server (unlike the other subcommands, which dial one).
func newOpsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ops",
		Short: "List the server's supported operations",
		RunE: func(cmd *cobra.Command, args []string) error {
			t := cli.NewTable("OP", "ARGS", "EFFECT")
			for _, row := range opsTable {
				t.Row(row[0], row[1], row[2])
			}
			t.Flush()
			return nil
		},
	}
}

// serverAddr resolves -addr, then the config file's nrm_host/nrm_port,
// then config.Default{NrmHost,NrmPort}.
func serverAddr() string {
	if addrFlag != "" {
		return addrFlag
	}
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFrom(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil || cfg == nil {
		return fmt.Sprintf("%s:%d", config.DefaultNrmHost, config.DefaultNrmPort)
	}
	return fmt.Sprintf("%s:%d", cfg.GetNrmHost(), cfg.GetNrmPort())
}

// newRawCmd passes every argument after "--" (or after the subcommand
// name) straight through as one command line, for ops not worth a
// dedicated flag set (pathfind, reserve, query, terminate, TERMINATEALL,
// writeDB, deltmp, dumpglpsol — spec §6's full operation table).
func newRawCmd() *cobra.Command {
	return &cobra.Command{
		Use:                "send -- <op> [args...]",
		Short:              "Send one raw command line to the server and print its reply",
		Args:               cobra.MinimumNArgs(1),
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			// With flag parsing disabled, cobra leaves a leading "--" in args.
			if args[0] == "--" {
				args = args[1:]
			}
			if len(args) == 0 {
				return fmt.Errorf("send: missing <op>")
			}
			return sendOne(strings.Join(args, " "))
		},
	}
}

func sendOne(line string) error {
	client, err := protocol.Dial(serverAddr())
	if err != nil {
		return err
	}
	defer client.Close()

	reply, ok, err := client.Send(line)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("server appears to be down (no reply)")
	}
	fmt.Println(reply)
	return nil
}

// newShellCmd is the explicit spelling of the default no-subcommand
// behavior, for scripts that prefer an explicit verb.
func newShellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Start an interactive command shell against the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShell()
		},
	}
}

// runShell dials once and sends every subsequent line the user types
// until EOF or Ctrl+C, matching spec §5's "the client closes on Ctrl+C or
// EOF."
func runShell() error {
	addr := serverAddr()
	client, err := protocol.Dial(addr)
	if err != nil {
		return err
	}
	defer client.Close()

	fmt.Printf("connected to %s\n", addr)
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("nrm> ")
		if !scanner.Scan() {
			fmt.Println("close")
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			fmt.Println("close")
			return nil
		}

		reply, ok, err := client.Send(line)
		if err != nil {
			fmt.Fprintln(os.Stderr, cli.Red(err.Error()))
			continue
		}
		if !ok {
			fmt.Println(cli.Red("server is down"))
			return nil
		}
		fmt.Println(reply)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version.Info())
		},
	}
}
