package main

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/amartel/anota/internal/action"
	"github.com/amartel/anota/internal/pipeline"
)

const defaultUser = "local"

var interpretCmd = &cobra.Command{
	Use:   "interpret [text]",
	Short: "Interpret a message against a running anota server",
	Long: `Interpret a free-form Portuguese message.

Examples:
  anota interpret "comprar pão amanhã"
  anota interpret --user alice "lembrar de pagar internet dia 10"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		user, _ := cmd.Flags().GetString("user")
		text := strings.Join(args, " ")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/v1/interpret", map[string]string{
			"user_id": user,
			"text":    text,
		})
		if err != nil {
			return err
		}

		var result pipeline.Result
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printInterpretation(result.Interpretation)
		switch {
		case result.Executed:
			printSuccess("Created %s %s", result.Entity.Type, result.Entity.ID)
		case result.Interpretation.NeedsConfirmation && result.Interpretation.Type != action.TypeUnknown:
			printStep("Pending confirmation: anota confirm %s", result.InteractionID)
		}
		return nil
	},
}

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List interpretations awaiting confirmation",
	RunE: func(cmd *cobra.Command, args []string) error {
		user, _ := cmd.Flags().GetString("user")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/v1/interactions/pending?user_id="+url.QueryEscape(user))
		if err != nil {
			return err
		}

		var result struct {
			Pending []struct {
				ID             string                `json:"id"`
				UserInput      string                `json:"user_input"`
				Interpretation action.Interpretation `json:"interpretation"`
			} `json:"pending"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if len(result.Pending) == 0 {
			fmt.Println("nothing pending")
			return nil
		}
		for _, p := range result.Pending {
			printStatus(p.ID, "%s (%s)", p.UserInput, p.Interpretation.Type)
		}
		return nil
	},
}

var confirmCmd = &cobra.Command{
	Use:   "confirm [interaction-id]",
	Short: "Confirm a pending interpretation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		user, _ := cmd.Flags().GetString("user")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/v1/interactions/"+url.PathEscape(args[0])+"/confirm",
			map[string]string{"user_id": user})
		if err != nil {
			return err
		}

		var result struct {
			CreatedEntity action.Entity `json:"created_entity"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Created %s %s", result.CreatedEntity.Type, result.CreatedEntity.ID)
		return nil
	},
}

var rejectCmd = &cobra.Command{
	Use:   "reject [interaction-id]",
	Short: "Reject a pending interpretation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		user, _ := cmd.Flags().GetString("user")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/v1/interactions/"+url.PathEscape(args[0])+"/reject",
			map[string]string{"user_id": user})
		if err != nil {
			return err
		}

		var result map[string]any
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Rejected")
		return nil
	},
}

func printInterpretation(interp action.Interpretation) {
	switch interp.Type {
	case action.TypeTask:
		printStatus("Task", "%s", interp.Task.Title)
		if interp.Task.DueDate != nil {
			printStatus("Due", "%s", interp.Task.DueDate.Format("2006-01-02 15:04"))
		}
		printStatus("Priority", "%s", interp.Task.Priority)
	case action.TypeNote:
		printStatus("Note", "%s", interp.Note.Title)
	case action.TypeReminder:
		printStatus("Reminder", "%s", interp.Reminder.Title)
		printStatus("When", "%s", interp.Reminder.ReminderDate.Format("2006-01-02 15:04"))
		if interp.Reminder.IsRecurring {
			printStatus("Repeats", "%s", interp.Reminder.RecurrenceRule)
		}
	default:
		printWarning("%s", interp.ConfirmationMessage)
	}
}

func init() {
	for _, cmd := range []*cobra.Command{interpretCmd, pendingCmd, confirmCmd, rejectCmd} {
		cmd.Flags().String("user", defaultUser, "user the request acts on behalf of")
	}
}
