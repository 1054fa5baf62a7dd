package cmd

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var threadsCmd = &cobra.Command{
	Use:   "threads",
	Short: "Manage conversation threads",
}

var threadsListLimit int

var threadsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent threads",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStores(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		threads, err := s.Threads.ListThreads(cmd.Context(), threadsListLimit)
		if err != nil {
			return err
		}
		if len(threads) == 0 {
			fmt.Println("no threads yet")
			return nil
		}
		for _, t := range threads {
			topic := t.Topic
			if topic == "" {
				topic = "(untitled)"
			}
			marker := " "
			if t.Archived() {
				marker = "a"
			}
			fmt.Printf("%s %s  %s  %s\n",
				marker, t.ID, t.LastActiveAt.Format("2006-01-02 15:04"), topic)
		}
		return nil
	},
}

var threadsShowCmd = &cobra.Command{
	Use:   "show <thread-id>",
	Short: "Show a thread's messages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid thread ID %q: %w", args[0], err)
		}

		s, err := openStores(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		thread, err := s.Threads.GetThread(cmd.Context(), id)
		if err != nil {
			return err
		}
		msgs, err := s.Threads.Messages(cmd.Context(), id)
		if err != nil {
			return err
		}

		topic := thread.Topic
		if topic == "" {
			topic = "(untitled)"
		}
		fmt.Printf("%s  %s\n\n", thread.ID, topic)
		for _, m := range msgs {
			who := m.Role
			if m.AgentName != "" {
				who = fmt.Sprintf("%s/%s", m.Role, m.AgentName)
			}
			fmt.Printf("[%d] %s:\n%s\n", m.SequenceNum, who, m.Content)
			if len(m.SourcesUsed) > 0 {
				fmt.Printf("    sources: %s\n", strings.Join(m.SourcesUsed, ", "))
			}
			fmt.Println()
		}
		return nil
	},
}

var threadsArchiveCmd = &cobra.Command{
	Use:   "archive <thread-id>",
	Short: "Archive a thread",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid thread ID %q: %w", args[0], err)
		}
		s, err := openStores(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.Threads.ArchiveThread(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Printf("archived %s\n", id)
		return nil
	},
}

var threadsDeleteCmd = &cobra.Command{
	Use:   "delete <thread-id>",
	Short: "Delete a thread and its messages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid thread ID %q: %w", args[0], err)
		}
		s, err := openStores(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.Threads.DeleteThread(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Printf("deleted %s\n", id)
		return nil
	},
}

func init() {
	threadsListCmd.Flags().IntVar(&threadsListLimit, "limit", 20, "maximum threads to list")
	threadsCmd.AddCommand(threadsListCmd, threadsShowCmd, threadsArchiveCmd, threadsDeleteCmd)
	rootCmd.AddCommand(threadsCmd)
}
