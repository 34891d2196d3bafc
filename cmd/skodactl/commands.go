package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/skodaconnect/skodaconnect-sub000/pkg/action"
	"github.com/skodaconnect/skodaconnect-sub000/pkg/connect"
	"github.com/skodaconnect/skodaconnect-sub000/pkg/connection"
	"github.com/skodaconnect/skodaconnect-sub000/pkg/vehicle"
)

var (
	ErrCommandLineArgs = errors.New("invalid command line arguments")
	ErrUnknownCommand  = errors.New("unrecognized command")
	ErrRequiresVIN     = errors.New("command requires a vehicle")
	ErrRequiresSPIN    = errors.New("command requires the S-PIN")
)

type Argument struct {
	name string
	help string
}

type Handler func(ctx context.Context, conn *connection.Connection, car *vehicle.Vehicle, spin string, args map[string]string) error

type Command struct {
	help            string
	requiresVehicle bool // True if the command targets a vehicle rather than the account
	requiresSPIN    bool // True if the backend demands a security-PIN challenge
	args            []Argument
	optional        []Argument
	handler         Handler
}

// ParseTemperature reads a climatisation target such as "21.5", "22C", or
// "72F" and returns degrees Celsius. The backend accepts 16 through 30.
func ParseTemperature(raw string) (float64, error) {
	var degrees float64
	var unit string
	if _, err := fmt.Sscanf(raw, "%f%s", &degrees, &unit); err != nil {
		if _, err := fmt.Sscanf(raw, "%f", &degrees); err != nil {
			return 0, fmt.Errorf("failed to parse temperature: format as 21.5, 22C, or 72F")
		}
		unit = "C"
	}
	switch unit {
	case "C", "c":
	case "F", "f":
		degrees = (degrees - 32.0) * 5.0 / 9.0
	default:
		return 0, fmt.Errorf("temperature units must be C or F")
	}
	if degrees < 16 || degrees > 30 {
		return 0, fmt.Errorf("temperature target must be between 16C and 30C")
	}
	return degrees, nil
}

// ParseHeaterMinutes reads a parking-heater runtime. The heater accepts 10
// through 60 minutes.
func ParseHeaterMinutes(raw string) (int, error) {
	minutes, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("failed to parse MINUTES: %s", err)
	}
	if minutes < 10 || minutes > 60 {
		return 0, fmt.Errorf("parking heater runtime must be between 10 and 60 minutes")
	}
	return minutes, nil
}

func checkReadiness(commandName string, haveVehicle, haveSPIN bool) (*Command, error) {
	info, ok := commands[commandName]
	if !ok {
		return nil, ErrUnknownCommand
	}
	if info.requiresVehicle && !haveVehicle {
		return nil, ErrRequiresVIN
	}
	if info.requiresSPIN && !haveSPIN {
		return nil, ErrRequiresSPIN
	}
	return info, nil
}

func execute(ctx context.Context, conn *connection.Connection, car *vehicle.Vehicle, spin string, args []string) error {
	if len(args) == 0 {
		return errors.New("missing COMMAND")
	}

	info, err := checkReadiness(args[0], car != nil, spin != "")
	if err != nil {
		return err
	}

	if len(args)-1 < len(info.args) || len(args)-1 > len(info.args)+len(info.optional) {
		writeErr("Invalid number of command line arguments: %d (%d required, %d optional).", len(args), len(info.args), len(info.optional))
		err = ErrCommandLineArgs
	} else {
		keywords := make(map[string]string)
		for i, argInfo := range info.args {
			keywords[argInfo.name] = args[i+1]
		}
		index := len(info.args) + 1
		for _, argInfo := range info.optional {
			if index >= len(args) {
				break
			}
			keywords[argInfo.name] = args[index]
			index++
		}
		err = info.handler(ctx, conn, car, spin, keywords)
	}

	// Print command-specific help
	if errors.Is(err, ErrCommandLineArgs) {
		info.Usage(args[0])
	}
	return err
}

func (c *Command) Usage(name string) {
	fmt.Printf("Usage: %s", name)
	maxLength := 0
	for _, arg := range c.args {
		fmt.Printf(" %s", arg.name)
		if len(arg.name) > maxLength {
			maxLength = len(arg.name)
		}
	}
	if len(c.optional) > 0 {
		fmt.Printf(" [")
	}
	for _, arg := range c.optional {
		fmt.Printf(" %s", arg.name)
		if len(arg.name) > maxLength {
			maxLength = len(arg.name)
		}
	}
	if len(c.optional) > 0 {
		fmt.Printf(" ]")
	}
	fmt.Printf("\n%s\n", c.help)
	maxLength++
	for _, arg := range c.args {
		fmt.Printf("    %s:%s%s\n", arg.name, strings.Repeat(" ", maxLength-len(arg.name)), arg.help)
	}
	for _, arg := range c.optional {
		fmt.Printf("    %s:%s%s\n", arg.name, strings.Repeat(" ", maxLength-len(arg.name)), arg.help)
	}
}

// reportOutcome prints how an asynchronous request ended and converts
// non-success outcomes into errors so the process exits non-zero.
func reportOutcome(outcome connect.Outcome, err error) error {
	if err != nil {
		return err
	}
	fmt.Printf("Result: %s\n", outcome)
	switch outcome {
	case connect.OutcomeSuccess:
		return nil
	case connect.OutcomeTimeout:
		return errors.New("the backend did not report a terminal state in time")
	default:
		return fmt.Errorf("request finished as %s", outcome)
	}
}

func printJSON(raw json.RawMessage) error {
	if len(raw) == 0 {
		fmt.Println("{}")
		return nil
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return err
	}
	fmt.Println(buf.String())
	return nil
}

var commands = map[string]*Command{
	"vehicles": &Command{
		help:            "List the vehicles in the account garage",
		requiresVehicle: false,
		handler: func(ctx context.Context, conn *connection.Connection, car *vehicle.Vehicle, spin string, args map[string]string) error {
			vehicles, err := conn.Vehicles(ctx)
			if err != nil {
				return err
			}
			for _, v := range vehicles {
				if v.Name() != "" {
					fmt.Printf("%s %s\n", v.VIN(), v.Name())
				} else {
					fmt.Println(v.VIN())
				}
			}
			return nil
		},
	},
	"logout": &Command{
		help:            "Revoke the session's tokens",
		requiresVehicle: false,
		handler: func(ctx context.Context, conn *connection.Connection, car *vehicle.Vehicle, spin string, args map[string]string) error {
			return conn.Logout(ctx)
		},
	},
	"info": &Command{
		help:            "Show the garage's description of the vehicle",
		requiresVehicle: true,
		handler: func(ctx context.Context, conn *connection.Connection, car *vehicle.Vehicle, spin string, args map[string]string) error {
			info := car.Info()
			fmt.Printf("VIN:  %s\n", info.VIN)
			if info.Name != "" {
				fmt.Printf("Name: %s\n", info.Name)
			}
			for _, c := range info.Connectivities {
				fmt.Printf("Connectivity: %s\n", c.Type)
			}
			for _, c := range info.Capabilities {
				fmt.Printf("Capability:   %s\n", c.ID)
			}
			return nil
		},
	},
	"home-region": &Command{
		help:            "Show the API base URL serving the vehicle",
		requiresVehicle: true,
		handler: func(ctx context.Context, conn *connection.Connection, car *vehicle.Vehicle, spin string, args map[string]string) error {
			region, err := car.HomeRegion(ctx)
			if err != nil {
				return err
			}
			fmt.Println(region)
			return nil
		},
	},
	"lock": &Command{
		help:            "Lock the vehicle",
		requiresVehicle: true,
		requiresSPIN:    true,
		handler: func(ctx context.Context, conn *connection.Connection, car *vehicle.Vehicle, spin string, args map[string]string) error {
			return reportOutcome(car.Lock(ctx, spin))
		},
	},
	"unlock": &Command{
		help:            "Unlock the vehicle",
		requiresVehicle: true,
		requiresSPIN:    true,
		handler: func(ctx context.Context, conn *connection.Connection, car *vehicle.Vehicle, spin string, args map[string]string) error {
			return reportOutcome(car.Unlock(ctx, spin))
		},
	},
	"charge-start": &Command{
		help:            "Start charging",
		requiresVehicle: true,
		handler: func(ctx context.Context, conn *connection.Connection, car *vehicle.Vehicle, spin string, args map[string]string) error {
			return reportOutcome(car.StartCharging(ctx))
		},
	},
	"charge-stop": &Command{
		help:            "Stop charging",
		requiresVehicle: true,
		handler: func(ctx context.Context, conn *connection.Connection, car *vehicle.Vehicle, spin string, args map[string]string) error {
			return reportOutcome(car.StopCharging(ctx))
		},
	},
	"charge-current": &Command{
		help:            "Limit the charge current",
		requiresVehicle: true,
		args: []Argument{
			Argument{name: "AMPS", help: "Maximum charge current, 1 through 254. 252 means reduced, 254 means maximum."},
		},
		handler: func(ctx context.Context, conn *connection.Connection, car *vehicle.Vehicle, spin string, args map[string]string) error {
			amps, err := strconv.Atoi(args["AMPS"])
			if err != nil {
				return fmt.Errorf("%w: AMPS must be a number", ErrCommandLineArgs)
			}
			return reportOutcome(car.SetChargeCurrent(ctx, amps))
		},
	},
	"climate-on": &Command{
		help:            "Start climatisation",
		requiresVehicle: true,
		optional: []Argument{
			Argument{name: "TEMP", help: "Target temperature (e.g., 21.5, 22C, or 72F). Defaults to 22C."},
			Argument{name: "SOURCE", help: "Heater source, electric or auxiliary. The auxiliary heater requires the S-PIN."},
		},
		handler: func(ctx context.Context, conn *connection.Connection, car *vehicle.Vehicle, spin string, args map[string]string) error {
			settings := action.ClimaterSettings{TargetTemperature: 22}
			if raw, ok := args["TEMP"]; ok {
				degrees, err := ParseTemperature(raw)
				if err != nil {
					return fmt.Errorf("%w: %s", ErrCommandLineArgs, err)
				}
				settings.TargetTemperature = degrees
			}
			if source, ok := args["SOURCE"]; ok {
				if source != "electric" && source != "auxiliary" {
					return fmt.Errorf("%w: SOURCE must be electric or auxiliary", ErrCommandLineArgs)
				}
				settings.HeaterSource = source
				if source == "auxiliary" && spin == "" {
					return ErrRequiresSPIN
				}
			}
			return reportOutcome(car.StartClimatisation(ctx, settings, spin))
		},
	},
	"climate-off": &Command{
		help:            "Stop climatisation",
		requiresVehicle: true,
		handler: func(ctx context.Context, conn *connection.Connection, car *vehicle.Vehicle, spin string, args map[string]string) error {
			return reportOutcome(car.StopClimatisation(ctx))
		},
	},
	"window-heat-on": &Command{
		help:            "Start window heating",
		requiresVehicle: true,
		handler: func(ctx context.Context, conn *connection.Connection, car *vehicle.Vehicle, spin string, args map[string]string) error {
			return reportOutcome(car.StartWindowHeating(ctx))
		},
	},
	"window-heat-off": &Command{
		help:            "Stop window heating",
		requiresVehicle: true,
		handler: func(ctx context.Context, conn *connection.Connection, car *vehicle.Vehicle, spin string, args map[string]string) error {
			return reportOutcome(car.StopWindowHeating(ctx))
		},
	},
	"preheater-on": &Command{
		help:            "Start the parking heater",
		requiresVehicle: true,
		requiresSPIN:    true,
		optional: []Argument{
			Argument{name: "MINUTES", help: "Heater runtime, 10 through 60 minutes. Defaults to 30."},
		},
		handler: func(ctx context.Context, conn *connection.Connection, car *vehicle.Vehicle, spin string, args map[string]string) error {
			minutes := 30
			if raw, ok := args["MINUTES"]; ok {
				var err error
				if minutes, err = ParseHeaterMinutes(raw); err != nil {
					return fmt.Errorf("%w: %s", ErrCommandLineArgs, err)
				}
			}
			return reportOutcome(car.StartPreheater(ctx, minutes, spin))
		},
	},
	"preheater-off": &Command{
		help:            "Stop the parking heater",
		requiresVehicle: true,
		handler: func(ctx context.Context, conn *connection.Connection, car *vehicle.Vehicle, spin string, args map[string]string) error {
			return reportOutcome(car.StopPreheater(ctx))
		},
	},
	"refresh": &Command{
		help:            "Ask the vehicle to report fresh data",
		requiresVehicle: true,
		handler: func(ctx context.Context, conn *connection.Connection, car *vehicle.Vehicle, spin string, args map[string]string) error {
			return reportOutcome(car.RefreshData(ctx))
		},
	},
	"status": &Command{
		help:            "Print the stored vehicle data report",
		requiresVehicle: true,
		handler: func(ctx context.Context, conn *connection.Connection, car *vehicle.Vehicle, spin string, args map[string]string) error {
			raw, err := car.Status(ctx)
			if err != nil {
				return err
			}
			return printJSON(raw)
		},
	},
	"position": &Command{
		help:            "Print the vehicle's parking position",
		requiresVehicle: true,
		handler: func(ctx context.Context, conn *connection.Connection, car *vehicle.Vehicle, spin string, args map[string]string) error {
			position, err := car.Position(ctx)
			if err != nil {
				return err
			}
			if position.Moving {
				fmt.Println("Vehicle is in motion.")
				return nil
			}
			return printJSON(position.Response)
		},
	},
	"climater": &Command{
		help:            "Print the climatisation state report",
		requiresVehicle: true,
		handler: func(ctx context.Context, conn *connection.Connection, car *vehicle.Vehicle, spin string, args map[string]string) error {
			raw, err := car.Climater(ctx)
			if err != nil {
				return err
			}
			return printJSON(raw)
		},
	},
	"charger": &Command{
		help:            "Print the charger state report",
		requiresVehicle: true,
		handler: func(ctx context.Context, conn *connection.Connection, car *vehicle.Vehicle, spin string, args map[string]string) error {
			raw, err := car.Charger(ctx)
			if err != nil {
				return err
			}
			return printJSON(raw)
		},
	},
	"charging": &Command{
		help:            "Print the charging status from the native API",
		requiresVehicle: true,
		handler: func(ctx context.Context, conn *connection.Connection, car *vehicle.Vehicle, spin string, args map[string]string) error {
			raw, err := car.Charging(ctx)
			if err != nil {
				return err
			}
			return printJSON(raw)
		},
	},
	"timers": &Command{
		help:            "Print the departure timer schedule",
		requiresVehicle: true,
		handler: func(ctx context.Context, conn *connection.Connection, car *vehicle.Vehicle, spin string, args map[string]string) error {
			raw, err := car.Timers(ctx)
			if err != nil {
				return err
			}
			return printJSON(raw)
		},
	},
	"preheater": &Command{
		help:            "Print the parking heater state report",
		requiresVehicle: true,
		handler: func(ctx context.Context, conn *connection.Connection, car *vehicle.Vehicle, spin string, args map[string]string) error {
			raw, err := car.Preheater(ctx)
			if err != nil {
				return err
			}
			return printJSON(raw)
		},
	},
	"trips": &Command{
		help:            "Print short-term trip statistics",
		requiresVehicle: true,
		handler: func(ctx context.Context, conn *connection.Connection, car *vehicle.Vehicle, spin string, args map[string]string) error {
			raw, err := car.TripStatistics(ctx)
			if err != nil {
				return err
			}
			return printJSON(raw)
		},
	},
	"operations": &Command{
		help:            "Print the operations the backend allows for the vehicle",
		requiresVehicle: true,
		handler: func(ctx context.Context, conn *connection.Connection, car *vehicle.Vehicle, spin string, args map[string]string) error {
			raw, err := car.OperationList(ctx)
			if err != nil {
				return err
			}
			return printJSON(raw)
		},
	},
}
