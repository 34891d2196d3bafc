/*
Package cli facilitates building command-line applications on top of the library. It defines a
[Config] type that registers common command-line flags (using the Go flag package), fills missing
fields from environment variables or a .env file, and prompts for whatever credentials are still
absent before the first network call.

# Examples

	config := cli.NewConfig(cli.FlagAll)
	config.RegisterCommandLineFlags() // Adds flags for the account email, S-PIN, and VIN.
	flag.Parse()
	config.LoadEnvFile("")            // Loads a .env file when one is present.
	config.ReadFromEnvironment()      // Fills in missing fields from environment variables.
	if err := config.PromptMissingCredentials(); err != nil {
		panic(err)
	}

	conn, err := config.Connect(ctx)  // Signs the account in and loads the garage.
	if err != nil {
		panic(err)
	}
	car, err := config.Vehicle(ctx)   // Picks the configured vehicle out of the garage.

Passwords and the S-PIN are deliberately not command-line flags; they come from the environment,
a .env file, or an interactive prompt.

Alternatively, a [Flag] mask controls which fields are populated:

	config = cli.NewConfig(cli.FlagCredentials)              // Account-only tools.
	config = cli.NewConfig(cli.FlagCredentials | cli.FlagVIN) // Vehicle data, no privileged commands.
*/
package cli

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/term"

	"github.com/skodaconnect/skodaconnect-sub000/internal/log"
	"github.com/skodaconnect/skodaconnect-sub000/pkg/connection"
	"github.com/skodaconnect/skodaconnect-sub000/pkg/vehicle"
)

// Environment variable names used by [Config.ReadFromEnvironment] to set common parameters.
const (
	EnvSkodaUsername = "SKODA_USERNAME"
	EnvSkodaPassword = "SKODA_PASSWORD"
	EnvSkodaSPIN     = "SKODA_SPIN"
	EnvSkodaVIN      = "SKODA_VIN"
	EnvSkodaTimeout  = "SKODA_TIMEOUT"
)

// Flag controls what options should be scanned from the command line and/or environment variables.
type Flag int

func (f Flag) isSet(other Flag) bool {
	return (f & other) == other
}

const (
	FlagCredentials Flag = 1 // Enable account email/password options.
	FlagVIN         Flag = 2 // Enable VIN option.
	FlagSPIN        Flag = 4 // Enable S-PIN options. Required for privileged vehicle commands.
	FlagAll         Flag = FlagCredentials | FlagVIN | FlagSPIN
)

var (
	ErrNoCredentials   = errors.New("account email and password not provided")
	ErrNoSPIN          = errors.New("S-PIN not provided")
	ErrNoVehicles      = errors.New("account garage is empty")
	ErrVehicleNotFound = errors.New("no vehicle in the garage matches the VIN")
)

// Config fields determine how a client authenticates to the backend and which vehicle it talks to.
type Config struct {
	Flags    Flag // Controls which set of environment variables/CLI flags to use.
	Username string
	Password string
	SPIN     string
	VIN      string
	// Timeout bounds each HTTP exchange, not whole commands. Zero keeps the
	// library default.
	Timeout time.Duration

	conn *connection.Connection
}

func NewConfig(flags Flag) *Config {
	return &Config{Flags: flags}
}

func (c *Config) RegisterCommandLineFlags() {
	if c.Flags.isSet(FlagCredentials) {
		flag.StringVar(&c.Username, "username", "", "Account email address. Defaults to $SKODA_USERNAME.")
	}
	if c.Flags.isSet(FlagVIN) {
		flag.StringVar(&c.VIN, "vin", "", "Vehicle Identification Number. Defaults to $SKODA_VIN.")
	}
	if c.Flags.isSet(FlagCredentials) || c.Flags.isSet(FlagVIN) {
		flag.DurationVar(&c.Timeout, "request-timeout", 0, "Timeout for each HTTP request. Defaults to $SKODA_TIMEOUT.")
	}
}

// LoadEnvFile loads variables from a dotenv file into the process environment
// so [Config.ReadFromEnvironment] picks them up. An empty filename means
// "./.env", and a missing default file is not an error.
func (c *Config) LoadEnvFile(filename string) error {
	if filename != "" {
		return godotenv.Load(filename)
	}
	err := godotenv.Load()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// ReadFromEnvironment populates c using environment variables. Values that are already populated
// are not overwritten.
//
// Calling ReadFromEnvironment after flag.Parse() will prevent the environment from overriding
// explicit command-line parameters.
func (c *Config) ReadFromEnvironment() {
	if c.Flags.isSet(FlagCredentials) {
		if c.Username == "" {
			c.Username = os.Getenv(EnvSkodaUsername)
			log.Debug("set username to '%s'", c.Username)
		}
		if c.Password == "" {
			c.Password = os.Getenv(EnvSkodaPassword)
			if c.Password != "" {
				log.Debug("set password from the environment")
			}
		}
	}
	if c.Flags.isSet(FlagSPIN) {
		if c.SPIN == "" {
			c.SPIN = os.Getenv(EnvSkodaSPIN)
			if c.SPIN != "" {
				log.Debug("set S-PIN from the environment")
			}
		}
	}
	if c.Flags.isSet(FlagVIN) {
		if c.VIN == "" {
			c.VIN = os.Getenv(EnvSkodaVIN)
			log.Debug("set VIN to '%s'", c.VIN)
		}
	}
	if c.Timeout == 0 {
		if raw := os.Getenv(EnvSkodaTimeout); raw != "" {
			if d, err := time.ParseDuration(raw); err == nil {
				c.Timeout = d
				log.Debug("set request timeout to %s", d)
			} else {
				log.Warning("ignoring unparseable $%s: %s", EnvSkodaTimeout, err)
			}
		}
	}
}

// PromptMissingCredentials asks for the account email and password on the
// terminal. Call it before [Config.Connect] so interactive prompts do not
// count against command timeouts. Without a terminal, missing credentials are
// an error.
func (c *Config) PromptMissingCredentials() error {
	if !c.Flags.isSet(FlagCredentials) {
		return nil
	}
	if c.Username != "" && c.Password != "" {
		return nil
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return ErrNoCredentials
	}
	if c.Username == "" {
		fmt.Print("Email: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			return err
		}
		c.Username = strings.TrimSpace(line)
	}
	if c.Password == "" {
		fmt.Printf("Password for %s: ", c.Username)
		secret, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return err
		}
		c.Password = string(secret)
	}
	if c.Username == "" || c.Password == "" {
		return ErrNoCredentials
	}
	return nil
}

// RequireSPIN makes sure the S-PIN is populated, prompting on the terminal as
// a last resort.
func (c *Config) RequireSPIN() error {
	if c.SPIN != "" {
		return nil
	}
	if !c.Flags.isSet(FlagSPIN) || !term.IsTerminal(int(os.Stdin.Fd())) {
		return ErrNoSPIN
	}
	fmt.Print("S-PIN: ")
	secret, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return err
	}
	c.SPIN = string(secret)
	if c.SPIN == "" {
		return ErrNoSPIN
	}
	return nil
}

// Connect signs the configured account in and returns the session. The
// session is cached; later calls return the same one.
func (c *Config) Connect(ctx context.Context) (*connection.Connection, error) {
	if c.conn != nil {
		return c.conn, nil
	}
	if c.Username == "" || c.Password == "" {
		return nil, ErrNoCredentials
	}
	var opts []connection.Option
	if c.Timeout > 0 {
		opts = append(opts, connection.WithTimeout(c.Timeout))
	}
	conn, err := connection.New(c.Username, c.Password, opts...)
	if err != nil {
		return nil, err
	}
	if err := conn.Login(ctx); err != nil {
		return nil, err
	}
	c.conn = conn
	return conn, nil
}

// Vehicle picks the configured vehicle out of the garage. Without a VIN it
// returns the garage's only vehicle, and fails when the account has several.
func (c *Config) Vehicle(ctx context.Context) (*vehicle.Vehicle, error) {
	conn, err := c.Connect(ctx)
	if err != nil {
		return nil, err
	}
	vehicles, err := conn.Vehicles(ctx)
	if err != nil {
		return nil, err
	}
	if len(vehicles) == 0 {
		return nil, ErrNoVehicles
	}
	if c.VIN == "" {
		if len(vehicles) > 1 {
			return nil, fmt.Errorf("the garage holds %d vehicles, pick one with -vin or $%s", len(vehicles), EnvSkodaVIN)
		}
		return vehicles[0], nil
	}
	for _, v := range vehicles {
		if v.VIN() == c.VIN {
			return v, nil
		}
	}
	return nil, fmt.Errorf("%w %s", ErrVehicleNotFound, c.VIN)
}
