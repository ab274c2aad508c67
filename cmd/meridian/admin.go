package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/oriys/meridian/internal/admin"
	"github.com/spf13/cobra"
)

// postAdminMessage encodes a message and hands it to a node's relay
// ingress. The receiving broker stamps its own identity as the source
// and fans the message out to its cluster.
func postAdminMessage(baseURL, token string, msg admin.Message) error {
	msg.Routing().BroadcastIncludeLocalNode = true
	data, err := admin.NewCodec().Encode(msg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/admin/messages", bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("node returned status %d", resp.StatusCode)
	}
	return nil
}

func applyCmd() *cobra.Command {
	var (
		nodeURL string
		token   string
		global  bool
	)

	cmd := &cobra.Command{
		Use:   "apply <spec-file-or-dir>",
		Short: "Push connector definitions to a running cluster",
		Long:  "Announce connector definitions to every node of the cluster a node belongs to. The change applies to the running pools only; persist definitions through the node's connector store or spec files.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			connectors, err := loadConnectorSpecs(args[0])
			if err != nil {
				return err
			}
			for _, c := range connectors {
				msg := &admin.ConnectorUpdatedMessage{Connector: c}
				msg.GlobalRelay = global
				if err := postAdminMessage(nodeURL, token, msg); err != nil {
					return fmt.Errorf("apply connector %q: %w", c.ID, err)
				}
				fmt.Printf("applied %s\n", c.ID)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&nodeURL, "url", "http://localhost:8080", "Base URL of a cluster node")
	cmd.Flags().StringVar(&token, "token", "", "Admin bearer token")
	cmd.Flags().BoolVar(&global, "global", false, "Relay to remote clusters as well")

	return cmd
}

func removeCmd() *cobra.Command {
	var (
		nodeURL string
		token   string
		global  bool
	)

	cmd := &cobra.Command{
		Use:   "remove <connector-id>",
		Short: "Remove a connector from the running pools of a cluster",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			msg := &admin.ConnectorUpdatedMessage{ConnectorID: args[0], Removed: true}
			msg.GlobalRelay = global
			if err := postAdminMessage(nodeURL, token, msg); err != nil {
				return err
			}
			fmt.Printf("removed %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&nodeURL, "url", "http://localhost:8080", "Base URL of a cluster node")
	cmd.Flags().StringVar(&token, "token", "", "Admin bearer token")
	cmd.Flags().BoolVar(&global, "global", false, "Relay to remote clusters as well")

	return cmd
}

func logLevelCmd() *cobra.Command {
	var (
		nodeURL string
		token   string
	)

	cmd := &cobra.Command{
		Use:   "loglevel <level>",
		Short: "Change the log level of every node in a cluster",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch args[0] {
			case "debug", "info", "warn", "error":
			default:
				return fmt.Errorf("unknown log level %q (valid: debug, info, warn, error)", args[0])
			}
			if err := postAdminMessage(nodeURL, token, &admin.LogLevelMessage{Level: args[0]}); err != nil {
				return err
			}
			fmt.Printf("log level set to %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&nodeURL, "url", "http://localhost:8080", "Base URL of a cluster node")
	cmd.Flags().StringVar(&token, "token", "", "Admin bearer token")

	return cmd
}

func invalidateCmd() *cobra.Command {
	var (
		nodeURL string
		token   string
		all     bool
		global  bool
	)

	cmd := &cobra.Command{
		Use:   "invalidate [keys...]",
		Short: "Evict entries from the caches of every node in a cluster",
		RunE: func(cmd *cobra.Command, args []string) error {
			if all && len(args) > 0 {
				return fmt.Errorf("--all cannot be combined with keys")
			}
			if !all && len(args) == 0 {
				return fmt.Errorf("no keys given; use --all to purge every entry")
			}
			msg := &admin.CacheInvalidationMessage{Keys: args}
			msg.GlobalRelay = global
			if err := postAdminMessage(nodeURL, token, msg); err != nil {
				return err
			}
			if all {
				fmt.Println("purged all cache entries")
			} else {
				fmt.Printf("invalidated %d keys\n", len(args))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&nodeURL, "url", "http://localhost:8080", "Base URL of a cluster node")
	cmd.Flags().StringVar(&token, "token", "", "Admin bearer token")
	cmd.Flags().BoolVar(&all, "all", false, "Purge every entry instead of named keys")
	cmd.Flags().BoolVar(&global, "global", false, "Relay to remote clusters as well")

	return cmd
}
