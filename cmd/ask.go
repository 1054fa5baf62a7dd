package cmd

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var askThreadID string

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a single question",
	Long: `Ask one question and print the answer. Without --thread a new
conversation thread is created; pass --thread to continue an existing one.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askThreadID, "thread", "", "thread ID to continue")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	threadID := uuid.Nil
	if askThreadID != "" {
		id, err := uuid.Parse(askThreadID)
		if err != nil {
			return fmt.Errorf("invalid thread ID %q: %w", askThreadID, err)
		}
		threadID = id
	}

	a, _, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	question := strings.Join(args, " ")
	reply, err := a.Orchestrator.Chat(ctx, threadID, question)
	if err != nil {
		return err
	}

	fmt.Println(reply.Message.Content)
	fmt.Printf("\n[thread %s, answered by %s]\n", reply.ThreadID, reply.Message.AgentName)
	return nil
}
