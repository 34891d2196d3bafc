// Utility for fetching OAuth tokens

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/skodaconnect/skodaconnect-sub000/pkg/cli"
	"github.com/skodaconnect/skodaconnect-sub000/pkg/connect"
)

type tokenExport struct {
	IDToken         string    `json:"id_token,omitempty"`
	AccessToken     string    `json:"access_token"`
	RefreshToken    string    `json:"refresh_token"`
	AccessExpiresAt time.Time `json:"access_expires_at"`
}

func usage() {
	w := flag.CommandLine.Output()
	fmt.Fprintf(w, "usage: %s [-timeout duration] [file]\n", filepath.Base(os.Args[0]))
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "Signs in with $%s/$%s (prompting for whatever is\n", cli.EnvSkodaUsername, cli.EnvSkodaPassword)
	fmt.Fprintln(w, "missing) and writes the per-client token sets as JSON to file or stdout.")
}

func main() {
	returnCode := 1
	defer func() {
		os.Exit(returnCode)
	}()

	config := cli.NewConfig(cli.FlagCredentials)

	var timeout time.Duration
	flag.DurationVar(&timeout, "timeout", 90*time.Second, "Timeout for signing in.")
	flag.Usage = usage
	config.RegisterCommandLineFlags()
	flag.Parse()
	if flag.NArg() > 1 {
		fmt.Fprintln(os.Stderr, "Too many command-line arguments")
		return
	}
	if err := config.LoadEnvFile(""); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading .env: %s\n", err)
		return
	}
	config.ReadFromEnvironment()
	if err := config.PromptMissingCredentials(); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading credentials: %s\n", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	conn, err := config.Connect(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error signing in: %s\n", err)
		return
	}

	export := make(map[string]tokenExport)
	for _, client := range []connect.Client{
		connect.ClientConnect, connect.ClientSkoda, connect.ClientSmartLink, connect.ClientVWG,
	} {
		set, ok := conn.TokenSet(client.Name)
		if !ok {
			continue
		}
		export[client.Name] = tokenExport{
			IDToken:         set.ID.Value,
			AccessToken:     set.Access.Value,
			RefreshToken:    set.Refresh.Value,
			AccessExpiresAt: set.Access.ExpiresAt,
		}
	}

	encoded, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding tokens: %s\n", err)
		return
	}
	encoded = append(encoded, '\n')

	switch flag.NArg() {
	case 0:
		if _, err := os.Stdout.Write(encoded); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing tokens: %s\n", err)
			return
		}
	case 1:
		// Tokens are credentials, keep the file private.
		if err := os.WriteFile(flag.Arg(0), encoded, 0600); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing tokens to file: %s\n", err)
			return
		}
	}

	returnCode = 0
}
