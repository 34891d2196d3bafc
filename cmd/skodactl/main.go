package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/shlex"

	"github.com/skodaconnect/skodaconnect-sub000/internal/log"
	"github.com/skodaconnect/skodaconnect-sub000/pkg/cli"
	"github.com/skodaconnect/skodaconnect-sub000/pkg/connection"
	"github.com/skodaconnect/skodaconnect-sub000/pkg/vehicle"
)

func writeErr(format string, a ...interface{}) {
	fmt.Fprintf(os.Stderr, format, a...)
	fmt.Fprintf(os.Stderr, "\n")
}

const usage = `
 * All commands sign in with the account email and password ($SKODA_USERNAME,
   $SKODA_PASSWORD, or interactive prompt).
 * Privileged commands (lock, unlock, heating) additionally require the S-PIN.
 * When the garage holds more than one vehicle, select one with -vin.`

func Usage() {
	fmt.Printf("Usage: %s [OPTION...] COMMAND [ARG...]\n", os.Args[0])
	fmt.Printf("\nRun %s help COMMAND for more information. Valid COMMANDs are listed below.", os.Args[0])
	fmt.Println("")
	fmt.Println(usage)
	fmt.Println("")

	fmt.Printf("Available OPTIONs:\n")
	flag.PrintDefaults()
	fmt.Println("")
	fmt.Printf("Available COMMANDs:\n")
	maxLength := 0
	var labels []string
	for command := range commands {
		labels = append(labels, command)
		if len(command) > maxLength {
			maxLength = len(command)
		}
	}
	sort.Strings(labels)
	for _, command := range labels {
		info := commands[command]
		fmt.Printf("  %s%s %s\n", command, strings.Repeat(" ", maxLength-len(command)), info.help)
	}
}

func runCommand(conn *connection.Connection, car *vehicle.Vehicle, spin string, args []string, timeout time.Duration) int {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := execute(ctx, conn, car, spin, args); err != nil {
		if errors.Is(err, ErrRequiresSPIN) {
			writeErr("You must provide an S-PIN with $%s or a .env file to execute this command", cli.EnvSkodaSPIN)
		} else if errors.Is(err, ErrRequiresVIN) {
			writeErr("You must select a vehicle with -vin or $%s to execute this command", cli.EnvSkodaVIN)
		} else {
			writeErr("Failed to execute command: %s", err)
		}
		return 1
	}
	return 0
}

func runInteractiveShell(conn *connection.Connection, car *vehicle.Vehicle, spin string, timeout time.Duration) int {
	scanner := bufio.NewScanner(os.Stdin)
	for fmt.Printf("> "); scanner.Scan(); fmt.Printf("> ") {
		args, err := shlex.Split(scanner.Text())
		if len(args) == 0 {
			continue
		}
		if args[0] == "exit" {
			return 0
		}
		if err != nil {
			writeErr("Invalid command: %s", err)
			continue
		}
		runCommand(conn, car, spin, args, timeout)
	}
	if err := scanner.Err(); err != nil {
		writeErr("Error reading command: %s", err)
		return 1
	}
	return 0
}

func main() {
	status := 1
	defer func() {
		os.Exit(status)
	}()

	var (
		debug          bool
		envFile        string
		commandTimeout time.Duration
		loginTimeout   time.Duration
	)
	config := cli.NewConfig(cli.FlagAll)
	flag.Usage = Usage
	flag.BoolVar(&debug, "debug", false, "Enable verbose debugging messages")
	flag.StringVar(&envFile, "env-file", "", "Load environment variables from this dotenv file. Defaults to ./.env when present.")
	flag.DurationVar(&commandTimeout, "command-timeout", 5*time.Minute, "Set timeout for commands, including status polling.")
	flag.DurationVar(&loginTimeout, "login-timeout", 90*time.Second, "Set timeout for signing in.")

	config.RegisterCommandLineFlags()
	flag.Parse()
	if !debug {
		if debugEnv, ok := os.LookupEnv("SKODA_VERBOSE"); ok {
			debug = debugEnv != "false" && debugEnv != "0"
		}
	}
	if debug {
		log.SetLevel(log.LevelDebug)
	}
	if err := config.LoadEnvFile(envFile); err != nil {
		writeErr("Error loading %s: %s", envFile, err)
		return
	}
	config.ReadFromEnvironment()

	args := flag.Args()
	needVehicle := true
	if len(args) > 0 {
		if args[0] == "help" {
			if len(args) == 1 {
				Usage()
				return
			}
			info, ok := commands[args[1]]
			if !ok {
				writeErr("Unrecognized command: %s", args[1])
				return
			}
			info.Usage(args[1])
			status = 0
			return
		}
		info, ok := commands[args[0]]
		if !ok {
			writeErr("Unrecognized command: %s", args[0])
			return
		}
		needVehicle = info.requiresVehicle
		if info.requiresSPIN {
			// Prompt before the login timeout starts ticking.
			if err := config.RequireSPIN(); err != nil {
				writeErr("Missing required S-PIN: %s", err)
				return
			}
		}
	}

	if err := config.PromptMissingCredentials(); err != nil {
		writeErr("Error loading credentials: %s", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), loginTimeout)
	defer cancel()

	conn, err := config.Connect(ctx)
	if err != nil {
		writeErr("Error signing in: %s", err)
		return
	}

	var car *vehicle.Vehicle
	if needVehicle {
		car, err = config.Vehicle(ctx)
		if err != nil {
			if flag.NArg() > 0 {
				writeErr("Error selecting vehicle: %s", err)
				return
			}
			// The shell still allows account-level commands.
			writeErr("Proceeding without a vehicle: %s", err)
		}
	}

	if flag.NArg() > 0 {
		status = runCommand(conn, car, config.SPIN, flag.Args(), commandTimeout)
	} else {
		status = runInteractiveShell(conn, car, config.SPIN, commandTimeout)
	}
}
