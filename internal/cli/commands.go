package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chroniclekeeper/chronicle/memory"
	"github.com/chroniclekeeper/chronicle/provider"
)

func newStatsCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show memory store sizes",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.build(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			s := a.manager.Stats()
			fmt.Fprintf(cmd.OutOrStdout(), "Short-term messages: %d\n", s.ShortTermMessages)
			fmt.Fprintf(cmd.OutOrStdout(), "Long-term entries:   %d\n", s.LongTermEntries)
			fmt.Fprintf(cmd.OutOrStdout(), "Entities:            %d\n", s.Entities)
			fmt.Fprintf(cmd.OutOrStdout(), "Vector entries:      %d (%d embedded)\n", s.VectorEntries, s.EmbeddedEntries)
			fmt.Fprintf(cmd.OutOrStdout(), "Session summaries:   %d\n", s.SessionSummaries)
			return nil
		},
	}
}

func newSearchCommand(opts *options) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search all memory stores",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.build(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			results, err := a.manager.Search(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			if len(results) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No results.")
				return nil
			}
			if limit > 0 && len(results) > limit {
				results = results[:limit]
			}
			for _, r := range results {
				fmt.Fprintf(cmd.OutOrStdout(), "[%-10s %.2f] %s\n", r.Source, r.Score, r.Content)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "maximum results to show")
	return cmd
}

func newRememberCommand(opts *options) *cobra.Command {
	var entryType string
	var importance string
	cmd := &cobra.Command{
		Use:   "remember <text>",
		Short: "Record a story event in long-term memory",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !memory.ValidEntryType(memory.EntryType(entryType)) {
				return fmt.Errorf("unknown entry type %q", entryType)
			}
			if !memory.ValidImportance(memory.Importance(importance)) {
				return fmt.Errorf("unknown importance %q", importance)
			}
			a, err := opts.build(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			entry, err := a.manager.AddStoryBeat(cmd.Context(), strings.Join(args, " "),
				memory.EntryType(entryType), memory.Importance(importance), nil)
			if err != nil {
				return err
			}
			if err := a.manager.SaveAll(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Remembered %s (%s, %s importance)\n", entry.ID, entry.Type, entry.Importance)
			return nil
		},
	}
	cmd.Flags().StringVar(&entryType, "type", "story_beat", "entry type (conversation, story_beat, quest_progress, relationship, world_fact)")
	cmd.Flags().StringVar(&importance, "importance", "medium", "importance (low, medium, high)")
	return cmd
}

func newContextCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "context <message>",
		Short: "Show the assembled prompt context for a message",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.build(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			c, err := a.manager.GetContext(cmd.Context(), strings.Join(args, " "), memory.DefaultContextOptions)
			if err != nil {
				return err
			}
			prompt := memory.FormatContextForPrompt(c)
			if prompt == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "No relevant context.")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), prompt)
			return nil
		},
	}
}

const askSystemPrompt = `You are a knowledgeable game master's assistant for a tabletop RPG campaign. Answer in character as the campaign chronicler, drawing only on the campaign memory provided. If the memory does not cover the question, say so.`

func newAskCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask the assistant, with campaign memory as context",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.build(cmd)
			if err != nil {
				return err
			}
			defer a.close()
			ctx := cmd.Context()
			question := strings.Join(args, " ")

			c, err := a.manager.GetContext(ctx, question, memory.DefaultContextOptions)
			if err != nil {
				return err
			}

			system := askSystemPrompt
			if memoryBlock := memory.FormatContextForPrompt(c); memoryBlock != "" {
				system += "\n\n# Campaign Memory\n\n" + memoryBlock
			}

			messages := []provider.Message{provider.SystemMessage(system)}
			messages = append(messages, a.manager.ConversationHistory()...)
			messages = append(messages, provider.UserMessage(question))

			if _, err := a.manager.AddMessage(ctx, memory.RoleUser, question); err != nil {
				return err
			}

			answer, err := a.cache.Chat(ctx, provider.ChatRequest{
				Model:       opts.modelOrDefault(),
				Messages:    messages,
				Temperature: 0.7,
				MaxTokens:   1024,
			})
			if err != nil {
				if provider.Recoverable(err) {
					return fmt.Errorf("the language model is unreachable; memory was still recorded: %w", err)
				}
				return err
			}

			if _, err := a.manager.AddMessage(ctx, memory.RoleAssistant, answer); err != nil {
				return err
			}
			a.manager.ProcessRecentConversation(ctx)
			if err := a.manager.SaveAll(ctx); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), answer)
			return nil
		},
	}
}

func (o *options) modelOrDefault() string {
	if o.model != "" {
		return o.model
	}
	return memory.DefaultConfig.Model
}

func newExportCommand(opts *options) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export all campaign memory as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.build(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			snapshot, err := a.manager.ExportAll()
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(snapshot, "", "  ")
			if err != nil {
				return err
			}
			if out == "" {
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return fmt.Errorf("write export: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported to %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "write to file instead of stdout")
	return cmd
}

func newImportCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import campaign memory from a JSON export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read import: %w", err)
			}
			var snapshot memory.Export
			if err := json.Unmarshal(data, &snapshot); err != nil {
				return fmt.Errorf("parse import: %w", err)
			}

			a, err := opts.build(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.manager.ImportAll(cmd.Context(), snapshot); err != nil {
				return err
			}
			s := a.manager.Stats()
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d messages, %d entries, %d entities\n",
				s.ShortTermMessages, s.LongTermEntries, s.Entities)
			return nil
		},
	}
}

func newClearCommand(opts *options) *cobra.Command {
	var all bool
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear short-term memory (or everything with --all)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if all && !yes {
				fmt.Fprint(cmd.OutOrStdout(), "This deletes ALL campaign memory. Type 'yes' to continue: ")
				reader := bufio.NewReader(cmd.InOrStdin())
				line, _ := reader.ReadString('\n')
				if strings.TrimSpace(line) != "yes" {
					fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
					return nil
				}
			}

			a, err := opts.build(cmd)
			if err != nil {
				return err
			}
			defer a.close()
			ctx := cmd.Context()

			if err := a.manager.ClearShortTerm(ctx); err != nil {
				return err
			}
			if all {
				if err := a.manager.LongTerm.Clear(ctx); err != nil {
					return err
				}
				if err := a.manager.Entities.Clear(ctx); err != nil {
					return err
				}
				if err := a.manager.Vector.Clear(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "All campaign memory cleared.")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Short-term memory cleared.")
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "clear every store, not just short-term")
	cmd.Flags().BoolVar(&yes, "yes", false, "skip the confirmation prompt")
	return cmd
}
