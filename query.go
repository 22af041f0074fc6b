package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/salesforce-mcp-go/internal/salesforce"
)

func newQueryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query <soql>",
		Short: "Run a SOQL query and print the records",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runQuery,
	}

	cmd.Flags().Bool("include-deleted", false, "include deleted and archived records")

	return cmd
}

func newDescribeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "describe <object>",
		Short: "List the fields of an SObject",
		Args:  cobra.ExactArgs(1),
		RunE:  runDescribe,
	}
}

// connectCLI connects a client for a one-shot CLI command, preferring the
// saved session like serve does.
func connectCLI(cmd *cobra.Command) (*CLIContext, *salesforce.Client, error) {
	cc := mustCLIContext(cmd.Context())
	svc := cc.Cfg.ServiceConfig()
	path := cc.Cfg.Session.SessionPath()

	saved := loadSavedSession(cc, path)
	if saved != nil && svc.AccessToken == "" {
		svc.AccessToken = saved.AccessToken
		svc.InstanceURL = saved.InstanceURL
	}

	client := newSalesforceClient(cc, svc)
	if saved != nil {
		client.RestoreSession(saved)
	}

	if err := client.Connect(cmd.Context()); err != nil {
		return nil, nil, fmt.Errorf("connecting to salesforce: %w", err)
	}

	return cc, client, nil
}

func runQuery(cmd *cobra.Command, args []string) error {
	cc, client, err := connectCLI(cmd)
	if err != nil {
		return err
	}

	includeDeleted, _ := cmd.Flags().GetBool("include-deleted")

	result, err := client.QueryAll(cmd.Context(), strings.Join(args, " "),
		salesforce.QueryOptions{IncludeDeleted: includeDeleted})
	if err != nil {
		return err
	}

	if cc.Flags.JSON {
		return printJSON(cc.Stdout, result)
	}

	cols := recordColumns(result.Records)
	rows := make([][]string, 0, len(result.Records))

	for _, rec := range result.Records {
		row := make([]string, len(cols))
		for i, c := range cols {
			row[i] = formatCell(rec[c])
		}

		rows = append(rows, row)
	}

	if len(cols) > 0 {
		printTable(cc.Stdout, cols, rows)
	}

	cc.Statusf("%d of %d records\n", len(result.Records), result.TotalSize)

	return nil
}

func runDescribe(cmd *cobra.Command, args []string) error {
	cc, client, err := connectCLI(cmd)
	if err != nil {
		return err
	}

	fields, err := client.GetObjectFields(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if cc.Flags.JSON {
		return printJSON(cc.Stdout, fields)
	}

	rows := make([][]string, 0, len(fields))

	for _, f := range fields {
		rows = append(rows, []string{
			f.Name, f.Label, f.Type, strconv.Itoa(f.Length), yesNo(f.Updateable), picklistSummary(f.PicklistValues),
		})
	}

	printTable(cc.Stdout, []string{"NAME", "LABEL", "TYPE", "LENGTH", "UPDATEABLE", "PICKLIST"}, rows)

	return nil
}

// picklistSummary lists active picklist values.
func picklistSummary(values []salesforce.PicklistValue) string {
	active := make([]string, 0, len(values))

	for _, v := range values {
		if v.Active {
			active = append(active, v.Value)
		}
	}

	return strings.Join(active, ", ")
}
