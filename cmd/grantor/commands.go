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
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/tomoncle/grantor"
	"github.com/tomoncle/grantor/config"
	"github.com/tomoncle/grantor/journal"
	"github.com/tomoncle/grantor/provision"
	"github.com/tomoncle/grantor/types"
)

func newProvisionCmd(load configLoader, newService serviceFactory) *cobra.Command {
	var (
		ifExists string
		verify   bool
	)
	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Create the application user",
		Long: `Authenticate as the administrator, switch to the application database and
create the application user with its role grants. An existing user fails the
run unless --if-exists skip is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("if-exists") {
				cfg.User.IfExists = ifExists
			}
			if cmd.Flags().Changed("verify") {
				cfg.Verify = verify
			}

			svc := newService(cfg)
			defer func() { _ = svc.Close() }()

			res, err := svc.Provision(cmd.Context())
			if res != nil {
				printOutcome(cmd.OutOrStdout(), cfg, res)
			}
			return err
		},
	}
	cmd.Flags().StringVar(&ifExists, "if-exists", config.IfExistsFail, "what to do when the user exists: fail or skip")
	cmd.Flags().BoolVar(&verify, "verify", false, "log in as the new user and check its privileges")
	return cmd
}

func newVerifyCmd(load configLoader, newService serviceFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check that the application user can read and write but not administer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}
			svc := newService(cfg)
			defer func() { _ = svc.Close() }()

			report, err := svc.Verify(cmd.Context())
			if report != nil {
				printReport(cmd.OutOrStdout(), report)
			}
			return err
		},
	}
}

func newPingCmd(load configLoader, newService serviceFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Authenticate as the administrator and report server health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}
			svc := newService(cfg)
			defer func() { _ = svc.Close() }()

			status, err := svc.Ping(cmd.Context())
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s in %s\n",
				color.GreenString("ok"), cfg.Server.NormalizedType(), cfg.Server.Target(),
				status.ResponseTime.Round(time.Millisecond))
			return nil
		},
	}
}

func newHistoryCmd(load configLoader, newService serviceFactory) *cobra.Command {
	var (
		page, size int
		user       string
		asJSON     bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded provisioning attempts, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}
			svc := newService(cfg)
			defer func() { _ = svc.Close() }()

			var opts []types.PageOption
			if user != "" {
				opts = append(opts, types.WithFilter(types.NewQueryFilter("username = ?", user)))
			}
			result, err := svc.History(cmd.Context(), types.NewPageRequest(page, size, opts...))
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}
			printHistory(cmd.OutOrStdout(), result)
			return nil
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "page number, starting at 1")
	cmd.Flags().IntVar(&size, "size", types.DefaultPageSize, "records per page")
	cmd.Flags().StringVar(&user, "user", "", "only show attempts for this username")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the page as JSON")
	return cmd
}

func printOutcome(w io.Writer, cfg *config.Config, res *grantor.Result) {
	app := cfg.User.AppCredential
	switch {
	case res.Created:
		_, _ = fmt.Fprintf(w, "%s user %s\n", color.GreenString("created"), app)
	case res.Skipped:
		_, _ = fmt.Fprintf(w, "%s user %s@%s already exists\n", color.YellowString("skipped"), app.Username, app.Database)
	}
	if res.Report != nil {
		printReport(w, res.Report)
	}
}

func printReport(w io.Writer, r *provision.VerifyReport) {
	mark := func(ok bool) string {
		if ok {
			return color.GreenString("yes")
		}
		return color.RedString("no")
	}
	_, _ = fmt.Fprintf(w, "database %s: authenticate=%s read=%s write=%s admin-denied=%s\n",
		r.Database, mark(r.CanAuthenticate), mark(r.CanRead), mark(r.CanWrite), mark(r.AdminDenied))
}

func printHistory(w io.Writer, p *types.Pagination[journal.Record]) {
	if p.Total == 0 {
		_, _ = fmt.Fprintln(w, "no records")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tSTARTED\tOPERATION\tBACKEND\tUSER\tDATABASE\tROLES\tOUTCOME\tERROR")
	for _, r := range p.Items {
		roles := make([]string, len(r.Roles))
		for i, g := range r.Roles {
			roles[i] = g.String()
		}
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.StartedAt.Local().Format(time.DateTime), r.Operation, r.Backend,
			r.Username, r.Database, strings.Join(roles, ","), r.Outcome, r.ErrorKind)
	}
	_ = tw.Flush()
	_, _ = fmt.Fprintf(w, "page %d/%d, %d records\n", p.Page, p.Pages(), p.Total)
}
