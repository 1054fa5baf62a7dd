package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive chat",
	Long: `Start an interactive conversation. Each session runs in one thread, so
follow-up questions keep their context.

Commands inside the chat:
  /new            start a new thread
  /thread         show the current thread ID
  /exit, /quit    leave the chat`,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, _, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Println("austat: ask about Australian economic statistics. /exit to leave.")

	threadID := uuid.Nil
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch line {
		case "/exit", "/quit":
			return nil
		case "/new":
			threadID = uuid.Nil
			fmt.Println("started a new thread")
			continue
		case "/thread":
			if threadID == uuid.Nil {
				fmt.Println("no thread yet; ask something first")
			} else {
				fmt.Println(threadID)
			}
			continue
		}

		reply, err := a.Orchestrator.Chat(ctx, threadID, line)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		threadID = reply.ThreadID

		fmt.Println()
		fmt.Println(reply.Message.Content)
		fmt.Printf("\n[%s]\n\n", reply.Message.AgentName)
	}
}
