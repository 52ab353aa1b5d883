package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewTriggerCmd создаёт команду ручного запуска хука.
func NewTriggerCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var payload, payloadFile string

	cmd := &cobra.Command{
		Use:   "trigger NAME",
		Short: "Trigger a webhook by name",
		Long: `Trigger запускает workflow по имени хука и печатает ответ.

Payload передаётся флагом --payload (inline JSON) или --payload-file.
Тело ответа печатается как есть: его формирует webhookResponse-узел
workflow либо общий конверт результата.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			var body json.RawMessage
			switch {
			case payload != "":
				body = json.RawMessage(payload)
			case payloadFile != "":
				data, err := os.ReadFile(payloadFile)
				if err != nil {
					return fmt.Errorf("read payload file: %w", err)
				}
				body = data
			}
			if len(body) > 0 && !json.Valid(body) {
				return fmt.Errorf("payload is not valid JSON")
			}

			status, response, err := client.TriggerHook(args[0], body)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("HTTP %d", status))

			var pretty any
			if err := json.Unmarshal(response, &pretty); err == nil {
				out.JSON(pretty)
			} else {
				fmt.Fprintln(os.Stdout, string(response))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&payload, "payload", "", "Inline JSON payload")
	cmd.Flags().StringVar(&payloadFile, "payload-file", "", "Path to a JSON payload file")
	cmd.MarkFlagsMutuallyExclusive("payload", "payload-file")

	return cmd
}
