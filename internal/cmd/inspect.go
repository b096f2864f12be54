package cmd

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	apperrors "github.com/robert1948/localstorm-sub000/internal/errors"
	"github.com/robert1948/localstorm-sub000/internal/output"
	"github.com/robert1948/localstorm-sub000/internal/server/handlers"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Inspect a running stormguard instance",
	Long: `Query the admin API of a running stormguard server.

The admin endpoints are only registered when server.admin_token is set;
the same token authenticates these commands. Server address and token
default to the loaded configuration, so on the gateway host
"stormguard inspect stats" works without flags.`,
}

var inspectClientsCmd = &cobra.Command{
	Use:   "clients",
	Short: "List tracked clients, worst reputation first",
	RunE:  runInspectClients,
}

var inspectBlocksCmd = &cobra.Command{
	Use:   "blocks",
	Short: "List active blocks",
	RunE:  runInspectBlocks,
}

var inspectStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show engine and decision counters",
	RunE:  runInspectStats,
}

var inspectEventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show recent audit events (requires the audit store)",
	RunE:  runInspectEvents,
}

var unblockCmd = &cobra.Command{
	Use:   "unblock <client>",
	Short: "Lift an active block ahead of its expiry",
	Args:  cobra.ExactArgs(1),
	RunE:  runUnblock,
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(unblockCmd)

	inspectCmd.PersistentFlags().String("server", "", "Base URL of the running server (default from config)")
	inspectCmd.PersistentFlags().String("token", "", "Admin bearer token (default server.admin_token from config)")
	inspectCmd.PersistentFlags().StringP("output", "o", "table", "Output format: table, json")

	inspectCmd.AddCommand(inspectClientsCmd)
	inspectCmd.AddCommand(inspectBlocksCmd)
	inspectCmd.AddCommand(inspectStatsCmd)
	inspectCmd.AddCommand(inspectEventsCmd)

	inspectClientsCmd.Flags().Int("limit", 0, "Maximum clients to return (0 = server default)")
	inspectEventsCmd.Flags().Int("limit", 0, "Maximum events to return (0 = server default)")
	inspectEventsCmd.Flags().String("client", "", "Only events for this client key")

	unblockCmd.Flags().String("server", "", "Base URL of the running server (default from config)")
	unblockCmd.Flags().String("token", "", "Admin bearer token (default server.admin_token from config)")
}

func runInspectClients(cmd *cobra.Command, args []string) error {
	format, err := inspectFormat(cmd)
	if err != nil {
		return err
	}
	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}

	path := "/guard/clients"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var resp handlers.ClientsResponse
	if err := adminRequest(cmd, http.MethodGet, path, &resp); err != nil {
		return err
	}

	rendered, err := output.NewFormatter(format).FormatClients(resp.Clients)
	if err != nil {
		return err
	}
	fmt.Println(rendered)
	return nil
}

func runInspectBlocks(cmd *cobra.Command, args []string) error {
	format, err := inspectFormat(cmd)
	if err != nil {
		return err
	}

	var resp handlers.BlocksResponse
	if err := adminRequest(cmd, http.MethodGet, "/guard/blocks", &resp); err != nil {
		return err
	}

	rendered, err := output.NewFormatter(format).FormatBlocks(resp.Blocks)
	if err != nil {
		return err
	}
	fmt.Println(rendered)
	return nil
}

func runInspectStats(cmd *cobra.Command, args []string) error {
	format, err := inspectFormat(cmd)
	if err != nil {
		return err
	}

	var view output.StatsView
	if err := adminRequest(cmd, http.MethodGet, "/guard/stats", &view); err != nil {
		return err
	}

	rendered, err := output.NewFormatter(format).FormatStats(view)
	if err != nil {
		return err
	}
	fmt.Println(rendered)
	return nil
}

func runInspectEvents(cmd *cobra.Command, args []string) error {
	format, err := inspectFormat(cmd)
	if err != nil {
		return err
	}
	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}
	client, err := cmd.Flags().GetString("client")
	if err != nil {
		return err
	}

	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if client != "" {
		q.Set("client", client)
	}
	path := "/guard/events"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp handlers.EventsResponse
	if err := adminRequest(cmd, http.MethodGet, path, &resp); err != nil {
		return err
	}

	if format == output.FormatJSON {
		data, err := json.MarshalIndent(resp.Events, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}
	if len(resp.Events) == 0 {
		fmt.Println("(no audit events)")
		return nil
	}
	for _, ev := range resp.Events {
		line := fmt.Sprintf("%s  %-12s %s", ev.OccurredAt.Format(time.RFC3339), ev.Kind, ev.ClientKey)
		if ev.Violation != "" {
			line += "  " + ev.Violation
		}
		if ev.Block > 0 {
			line += "  blocked " + ev.Block.Round(time.Second).String()
		}
		fmt.Println(line)
	}
	return nil
}

func runUnblock(cmd *cobra.Command, args []string) error {
	client := strings.TrimSpace(args[0])
	if client == "" {
		return apperrors.NewInvalidInputError("client key must not be empty")
	}

	var resp handlers.UnblockResponse
	err := adminRequest(cmd, http.MethodDelete, "/guard/blocks/"+url.PathEscape(client), &resp)
	if err != nil {
		return err
	}
	fmt.Printf("unblocked %s\n", resp.Client)
	return nil
}

// inspectFormat parses the shared --output flag.
func inspectFormat(cmd *cobra.Command) (output.Format, error) {
	raw, err := cmd.Flags().GetString("output")
	if err != nil {
		return "", err
	}
	return output.ParseFormat(raw)
}

// adminTarget resolves the admin API base URL and bearer token from flags,
// falling back to the loaded configuration. A bind-all host is rewritten to
// loopback so the defaults work on the gateway host itself.
func adminTarget(cmd *cobra.Command) (string, string, error) {
	server, err := cmd.Flags().GetString("server")
	if err != nil {
		return "", "", err
	}
	token, err := cmd.Flags().GetString("token")
	if err != nil {
		return "", "", err
	}

	if server == "" || token == "" {
		cfg, err := loadConfig()
		if err != nil {
			return "", "", err
		}
		if server == "" {
			host := cfg.Server.Host
			if host == "" || host == "0.0.0.0" || host == "::" {
				host = "127.0.0.1"
			}
			server = "http://" + net.JoinHostPort(host, strconv.Itoa(cfg.Server.Port))
		}
		if token == "" {
			token = cfg.Server.AdminToken
		}
	}
	if token == "" {
		return "", "", apperrors.NewConfigInvalidError("no admin token: pass --token or set server.admin_token")
	}
	return strings.TrimSuffix(server, "/"), token, nil
}

// adminRequest performs one admin API call and decodes the JSON response
// into out. Error responses are surfaced with the server's code and message.
func adminRequest(cmd *cobra.Command, method, path string, out any) error {
	base, token, err := adminTarget(cmd)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(cmd.Context(), method, base+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeServiceUnavailable, err,
			fmt.Sprintf("server unreachable at %s", base))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		var envelope apperrors.HTTPErrorResponse
		if decodeErr := json.NewDecoder(resp.Body).Decode(&envelope); decodeErr == nil && envelope.Error.Code != "" {
			return fmt.Errorf("server returned %s: %s", envelope.Error.Code, envelope.Error.Message)
		}
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
