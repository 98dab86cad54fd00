////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                            //
////////////////////////////////////////////////////////////////////////////////

// Package cmd initializes the node's CLI, config parsing, and logging,
// generalizing the teacher's cmd/root.go: a cobra root command that loads
// a viper config file and hands it to StartServer, rather than cMix's
// round-buffer/permissioning/profile flag set.
package cmd

import (
	"os"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/spf13/viper"
)

var (
	cfgFile    string
	verbose    bool
	showVer    bool
	validConfig bool
)

var rootCmd = &cobra.Command{
	Use:   "node",
	Short: "Runs a nilvm compute node",
	Long: `node runs one participant of a nilvm cluster: it holds a share of
every secret value submitted to the cluster, runs MPC protocols and
preprocessing generation with its peers, and serves the gRPC surface
clients and peers use to submit and retrieve computations.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if showVer {
			printVersion()
			return
		}
		if !validConfig {
			jww.FATAL.Panic("cmd: invalid config file")
		}
		StartServer(viper.GetViper())

		// StartServer blocks in grpcServer.Serve; this is only reached
		// if Serve returns without an error, which shouldn't happen
		// outside of a graceful shutdown.
	},
}

// Execute adds every child command to rootCmd and runs it. Called once by main.main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		jww.ERROR.Printf("cmd: exiting with error: %+v", err)
		os.Exit(1)
	}
	jww.INFO.Printf("cmd: exiting without error")
}

func init() {
	cobra.OnInitialize(initConfig, initLog)

	rootCmd.Flags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default is $HOME/.nilvm/node.yaml)")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false,
		"verbose mode for debugging")
	rootCmd.Flags().BoolVarP(&showVer, "version", "V", false,
		"show the node binary's version")

	handleBindingError(viper.BindPFlag("verbose", rootCmd.Flags().Lookup("verbose")), "verbose")
}

func handleBindingError(err error, flag string) {
	if err != nil {
		jww.FATAL.Panicf("cmd: binding flag %q: %+v", flag, err)
	}
}

// initConfig reads the config file and environment variables into viper.
func initConfig() {
	if cfgFile == "" {
		home, err := homedir.Dir()
		if err != nil {
			jww.ERROR.Println(err)
			os.Exit(1)
		}
		cfgFile = home + "/.nilvm/node.yaml"
	}

	validConfig = true
	if _, err := os.Stat(cfgFile); err != nil {
		jww.ERROR.Printf("cmd: invalid config file (%s): %+v", cfgFile, err)
		validConfig = false
		return
	}

	viper.SetConfigFile(cfgFile)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "__"))
	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err != nil {
		jww.ERROR.Printf("cmd: unable to read config file (%s): %+v", cfgFile, err)
		validConfig = false
	}
}

// initLog sets the jww log thresholds and, if configured, a log file output.
func initLog() {
	threshold := jww.LevelInfo
	if viper.GetBool("verbose") {
		threshold = jww.LevelDebug
	}
	jww.SetLogThreshold(threshold)
	jww.SetStdoutThreshold(threshold)

	logPath := viper.GetString("node.paths.log")
	if logPath == "" {
		return
	}
	logFile, err := os.Create(logPath)
	if err != nil {
		jww.ERROR.Printf("cmd: invalid or missing log path %s, using stdout only", logPath)
		return
	}
	jww.SetLogOutput(logFile)
}
