/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tomoncle/grantor"
	"github.com/tomoncle/grantor/config"
	"github.com/tomoncle/grantor/database"
	"github.com/tomoncle/grantor/utils"
)

const (
	flagConfig    = "config"
	flagLogLevel  = "log-level"
	flagLogFormat = "log-format"
)

var Version = "dev"

// serviceFactory builds the grantor service for a loaded configuration.
type serviceFactory func(cfg *config.Config) grantor.Service

func newRootCmd() *cobra.Command {
	return newRootCmdWith(func(cfg *config.Config) grantor.Service { return grantor.NewService(cfg) })
}

func newRootCmdWith(newService serviceFactory) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("GRANTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:     "grantor",
		Short:   "Create an application database user with a role grant",
		Version: Version,
		Long: `grantor authenticates against a MongoDB, PostgreSQL or MySQL server with an
administrative credential, switches to the application database and creates
the application user with its role grants (readWrite by default).

Settings come from a YAML file (--config, default configs/grantor.yaml),
then GRANTOR_* environment variables. Passwords may be literals or env:NAME,
file:/path and keyring:service/user references.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.String(flagConfig, config.DefaultPath, "path to the YAML configuration file")
	flags.String(flagLogLevel, "", "log level: debug, info, warn, error")
	flags.String(flagLogFormat, "", "log format: text or json")
	_ = v.BindPFlag(flagConfig, flags.Lookup(flagConfig))
	_ = v.BindPFlag(flagLogLevel, flags.Lookup(flagLogLevel))
	_ = v.BindPFlag(flagLogFormat, flags.Lookup(flagLogFormat))

	load := func(cmd *cobra.Command) (*config.Config, error) {
		cfg, err := config.Load(v.GetString(flagConfig))
		if err != nil {
			return nil, err
		}
		if lvl := v.GetString(flagLogLevel); lvl != "" {
			cfg.Log.Level = lvl
		}
		if format := v.GetString(flagLogFormat); format != "" {
			cfg.Log.Format = format
		}
		configureLogging(cmd, cfg.Log)
		return cfg, nil
	}

	root.AddCommand(
		newProvisionCmd(load, newService),
		newVerifyCmd(load, newService),
		newPingCmd(load, newService),
		newHistoryCmd(load, newService),
		newSecretCmd(),
	)
	return root
}

type configLoader func(cmd *cobra.Command) (*config.Config, error)

func configureLogging(cmd *cobra.Command, log config.LogConfig) {
	utils.ConfigureOutput(cmd.ErrOrStderr())
	utils.ConfigureLogLevel(log.Level)
	utils.ConfigureLogFormat(log.Format)
	utils.ConfigureFileLog(log.FileDir, log.FileEnabled)
	database.InitLogger(database.NewLogger("GRANTOR"))
}
