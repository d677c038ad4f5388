package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/kalambet/gettor/internal/model"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check a running gettor server",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return showStatus(cmd.Context(), client)
	},
}

type statusLocale struct {
	Code     string `json:"code"`
	HasLinks bool   `json:"has_links"`
}

func showStatus(ctx context.Context, client *apiClient) error {
	resp, err := client.get(ctx, "/health")
	if err != nil {
		printError("%v", err)
		return err
	}
	var health map[string]string
	if err := decodeJSON(resp, &health); err != nil {
		printError("server unhealthy: %v", err)
		return err
	}
	printSuccess("gettor is running at %s", client.baseURL)

	resp, err = client.get(ctx, "/v1/stats")
	if err != nil {
		return err
	}
	var stats struct {
		Stats []model.StatsRecord `json:"stats"`
		Total int64               `json:"total"`
	}
	if err := decodeJSON(resp, &stats); err != nil {
		printWarning("could not read stats: %v", err)
		return nil
	}
	printStatus("Fulfilled requests (all time)", "%d", stats.Total)

	resp, err = client.get(ctx, "/v1/locales")
	if err != nil {
		return err
	}
	var locales struct {
		Locales []statusLocale `json:"locales"`
	}
	if err := decodeJSON(resp, &locales); err != nil {
		printWarning("could not read locales: %v", err)
		return nil
	}
	var missing []string
	for _, l := range locales.Locales {
		if !l.HasLinks {
			missing = append(missing, l.Code)
		}
	}
	printStatus("Locales", "%d recognized", len(locales.Locales))
	if len(missing) > 0 {
		printWarning("no links for locales: %v", missing)
	}
	return nil
}
