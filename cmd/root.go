/*
Package cmd implements the a2a-sdk command-line interface.  It bundles a
demo agent server, an agent catalog, a client for talking to remote
agents, and tooling for fetching, signing, and verifying agent cards.
*/
package cmd

import (
	"bytes"
	"embed"
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

/*
Embed a mini filesystem into the binary to hold the default config file.
It is written to the home directory of the user running the binary, which
allows a developer to easily override the defaults.
*/
//go:embed cfg/*
var embedded embed.FS

var (
	projectName = "a2a-sdk"
	cfgFile     string
	verboseFlag bool

	rootCmd = &cobra.Command{
		Use:   "a2a-sdk",
		Short: "A Go SDK and toolkit for the Agent-to-Agent (A2A) protocol",
		Long:  longRoot,
	}
)

/*
Execute is the main entry point for the a2a-sdk CLI.
*/
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(
		&cfgFile,
		"config",
		"config.yml",
		"config file (default is $HOME/."+projectName+"/config.yml)",
	)

	rootCmd.PersistentFlags().BoolVarP(
		&verboseFlag, "verbose", "v", false, "enable debug logging",
	)
}

/*
initConfig writes the default config file to the user's home directory if
it does not exist yet, then points viper at it.
*/
func initConfig() {
	if err := writeConfig(); err != nil {
		log.Fatal("failed to write default config", "error", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yml")

	home, _ := os.UserHomeDir()
	viper.AddConfigPath(home + "/." + projectName)

	if err := viper.ReadInConfig(); err != nil {
		log.Fatal("failed to read config", "error", err)
	}

	if verboseFlag {
		log.SetLevel(log.DebugLevel)
	}
}

func writeConfig() (err error) {
	var (
		home, _ = os.UserHomeDir()
		fh      fs.File
		buf     bytes.Buffer
	)

	configDir := home + "/." + projectName

	if !fileExists(configDir) {
		if err = os.MkdirAll(configDir, os.ModePerm); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	fullPath := configDir + "/" + cfgFile

	if fileExists(fullPath) {
		return nil
	}

	if fh, err = embedded.Open("cfg/" + cfgFile); err != nil {
		return fmt.Errorf("failed to open embedded config file: %w", err)
	}

	defer fh.Close()

	if _, err = io.Copy(&buf, fh); err != nil {
		return fmt.Errorf("failed to read embedded config file: %w", err)
	}

	if err = os.WriteFile(fullPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	log.Info("wrote config file", "path", fullPath)

	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return !stderrors.Is(err, os.ErrNotExist)
}

/*
longRoot contains the detailed help text for the root command.
*/
var longRoot = `
a2a-sdk is a Go implementation of the Agent-to-Agent (A2A) protocol.
It ships a client, a server harness, and agent card tooling so agents
built with it can discover each other and exchange tasks over JSON-RPC,
REST, gRPC, or stdio.
`
