package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// NewCampaignCmd создаёт группу команд для управления кампаниями.
func NewCampaignCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "campaign",
		Aliases: []string{"campaigns", "c"},
		Short:   "Manage calling campaigns",
	}

	cmd.AddCommand(
		newCampaignListCmd(clientFn, outputFn),
		newCampaignCreateCmd(clientFn, outputFn),
		newCampaignShowCmd(clientFn, outputFn),
		newCampaignStatsCmd(clientFn, outputFn),
		newCampaignActionCmd("start", "Start dialing a campaign", (*Client).StartCampaign, clientFn, outputFn),
		newCampaignActionCmd("pause", "Pause a running campaign", (*Client).PauseCampaign, clientFn, outputFn),
		newCampaignActionCmd("delete", "Delete a campaign with its calls", (*Client).DeleteCampaign, clientFn, outputFn),
		newCampaignActionCmd("analyze", "Start transcript analysis", (*Client).TriggerAnalysis, clientFn, outputFn),
		newCampaignAnalysisCmd(clientFn, outputFn),
	)

	return cmd
}

func newCampaignListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List campaigns",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			campaigns, err := clientFn().ListCampaigns()
			if err != nil {
				return err
			}

			headers := []string{"ID", "NAME", "STATUS", "RUNNING", "CALLS", "COMPLETED", "FAILED", "ANALYSIS", "CREATED"}
			rows := make([][]string, len(campaigns))
			for i, c := range campaigns {
				rows[i] = []string{
					c.ID,
					c.Name,
					c.Status,
					strconv.FormatBool(c.IsRunning),
					strconv.Itoa(c.TotalCalls),
					strconv.Itoa(c.CompletedCalls),
					strconv.Itoa(c.FailedCalls),
					c.AnalysisStatus,
					c.CreatedAt,
				}
			}

			outputFn().Print(headers, rows, campaigns)
			return nil
		},
	}
}

func newCampaignCreateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var name string
	var file string

	cmd := &cobra.Command{
		Use:   "create --file contacts.csv [--name NAME]",
		Short: "Upload a campaign from a CSV contact list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("open contacts: %w", err)
			}
			defer f.Close()

			contacts, err := ReadContacts(f)
			if err != nil {
				return fmt.Errorf("%s: %w", file, err)
			}

			if name == "" {
				name = strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
			}

			created, err := clientFn().CreateCampaign(CreateCampaignRequest{Name: name, Calls: contacts})
			if err != nil {
				return err
			}

			out := outputFn()
			out.KeyValue([][2]string{
				{"Campaign", created.CampaignID},
				{"Status", created.Status},
				{"Calls", strconv.Itoa(created.TotalCalls)},
			}, created)
			out.Success(fmt.Sprintf("Campaign %q uploaded", name))
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "CSV file with name,phone columns (required)")
	cmd.Flags().StringVar(&name, "name", "", "Campaign name (default: file name)")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func newCampaignShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show CAMPAIGN_ID",
		Short: "Show a campaign with its calls",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			detail, err := clientFn().GetCampaign(args[0])
			if err != nil {
				return err
			}

			out := outputFn()
			if out.jsonMode {
				out.JSON(detail)
				return nil
			}

			c := detail.Campaign
			pairs := [][2]string{
				{"ID", c.ID},
				{"Name", c.Name},
				{"Status", c.Status},
				{"Calls", fmt.Sprintf("%d (completed %d, failed %d)", c.TotalCalls, c.CompletedCalls, c.FailedCalls)},
				{"Created", c.CreatedAt},
			}
			if detail.State != nil {
				pairs = append(pairs,
					[2]string{"Running", strconv.FormatBool(detail.State.IsRunning)},
					[2]string{"Analysis", detail.State.AnalysisStatus},
				)
			}
			out.KeyValue(pairs, nil)
			fmt.Fprintln(out.w)

			headers := []string{"ID", "NAME", "PHONE", "STATUS", "CALL_SID", "DURATION", "ERROR"}
			rows := make([][]string, len(detail.Calls))
			for i, call := range detail.Calls {
				rows[i] = []string{
					strconv.FormatInt(call.ID, 10),
					call.Name,
					call.Phone,
					call.Status,
					call.ProviderCallID,
					strconv.Itoa(call.Duration),
					call.ErrorMessage,
				}
			}
			out.Table(headers, rows)
			return nil
		},
	}
}

func newCampaignStatsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "stats CAMPAIGN_ID",
		Short: "Show call statistics of a campaign",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := clientFn().CampaignStats(args[0])
			if err != nil {
				return err
			}

			outputFn().KeyValue([][2]string{
				{"Total", strconv.Itoa(stats.Total)},
				{"Completed", strconv.Itoa(stats.Completed)},
				{"Failed", strconv.Itoa(stats.Failed)},
				{"Pending", strconv.Itoa(stats.Pending)},
				{"Done", strconv.Itoa(stats.Done)},
				{"Running", strconv.FormatBool(stats.IsRunning)},
				{"Analysis", stats.AnalysisStatus},
			}, stats)
			return nil
		},
	}
}

// newCampaignActionCmd создаёт команду, которая выполняет действие и печатает его статус.
func newCampaignActionCmd(
	use, short string,
	action func(*Client, string) (string, error),
	clientFn func() *Client,
	outputFn func() *Output,
) *cobra.Command {
	return &cobra.Command{
		Use:   use + " CAMPAIGN_ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := action(clientFn(), args[0])
			if err != nil {
				return err
			}

			out := outputFn()
			if out.jsonMode {
				out.JSON(statusResponse{Status: status})
				return nil
			}
			out.Success(fmt.Sprintf("Campaign %s: %s", args[0], status))
			return nil
		},
	}
}

func newCampaignAnalysisCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "analysis CAMPAIGN_ID",
		Short: "Show transcript analysis results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := clientFn().GetAnalysis(args[0])
			if err != nil {
				return err
			}

			out := outputFn()
			if out.jsonMode {
				out.JSON(resp)
				return nil
			}

			out.Success("Analysis: " + resp.AnalysisStatus)
			headers := []string{"ID", "NAME", "PHONE", "CITY", "INTERESTED", "OUTCOME"}
			rows := make([][]string, len(resp.Calls))
			for i, c := range resp.Calls {
				rows[i] = []string{strconv.FormatInt(c.ID, 10), c.Name, c.Phone, c.PreferredCity, c.Interested, c.Outcome}
			}
			out.Table(headers, rows)
			return nil
		},
	}
}

// NewConfigCmd создаёт команду просмотра конфигурации сервера.
func NewConfigCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show server configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := clientFn().GetConfig()
			if err != nil {
				return err
			}
			outputFn().JSON(cfg)
			return nil
		},
	}
}
