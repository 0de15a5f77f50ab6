package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/viviendahub/go-viviendahub/internal/notifications"
	"github.com/viviendahub/go-viviendahub/internal/notifications/channels"
)

var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Offers notification channel utilities",
	Long:  `Offers notification channel utilities`,
	Args:  cobra.ExactArgs(1),
}

var notifyWebhookCmd = &cobra.Command{
	Use:   "webhook",
	Short: "Sends a probe notification to a webhook endpoint",
	Long:  `Sends a probe notification to a webhook endpoint to verify connectivity and auth`,
	Args:  cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		url, _ := cmd.Flags().GetString("url")
		bearerToken, _ := cmd.Flags().GetString("bearer-token")

		webhook, err := channels.NewWebhook(channels.WebhookConfig{
			URL:         url,
			BearerToken: bearerToken,
		})
		if err != nil {
			return fmt.Errorf("creating webhook adapter: %s", err)
		}

		result, err := webhook.Send(cmd.Context(), channels.View{
			NotificationID: uuid.New(),
			RecipientID:    uuid.New(),
			Title:          "Probe notification",
			Message:        "This is a probe notification sent by the toolkit CLI",
			Priority:       notifications.PriorityNormal,
			Category:       notifications.CategorySystem,
			CreatedAt:      time.Now().UTC(),
		})
		if err != nil {
			return fmt.Errorf("sending probe: %s", err)
		}

		fmt.Printf("Probe delivered to %s (external id %s)\n", result.SentTo, result.ExternalID)
		return nil
	},
}
