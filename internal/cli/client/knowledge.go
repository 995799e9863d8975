package client

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

// SourcePayload is one source in a create or add request.
type SourcePayload struct {
	Filename string `json:"filename"`
	Type     string `json:"type"`
	Content  string `json:"content"`
}

// KnowledgeItem represents a knowledge base in API responses.
type KnowledgeItem struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	EmbeddingModel string `json:"embedding_model"`
	Status         string `json:"status"`
	Processing     bool   `json:"processing"`
	Sources        []struct {
		ID       string `json:"id"`
		Filename string `json:"filename"`
		Type     string `json:"type"`
	} `json:"sources"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// AddCmd creates the add command.
func AddCmd() *cobra.Command {
	var (
		model   string
		sources []string
	)

	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Create a knowledge base",
		Long:  "Creates a knowledge base from the given source files. Sources are indexed on the next 'process' run.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdd(args[0], model, sources)
		},
	}

	cmd.Flags().StringVarP(&model, "model", "m", "", "Embedding model identifier (provider:model); server default when empty")
	cmd.Flags().StringArrayVarP(&sources, "source", "s", nil, "Source file path (repeatable)")

	return cmd
}

func runAdd(title, model string, sourcePaths []string) error {
	api, err := NewAPIClient()
	if err != nil {
		return err
	}

	payload := map[string]any{
		"title":           title,
		"embedding_model": model,
	}

	var sources []SourcePayload
	for _, path := range sourcePaths {
		sources = append(sources, SourcePayload{
			Filename: filepath.Base(path),
			Type:     sourceTypeFromPath(path),
			Content:  path,
		})
	}
	payload["sources"] = sources

	resp, err := api.Post("/knowledge", payload)
	if err != nil {
		return fmt.Errorf("create failed: %w", err)
	}

	var item KnowledgeItem
	if err := json.Unmarshal(resp.Data, &item); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	fmt.Printf("Created knowledge base %s (%s, %d sources)\n", item.ID, item.Status, len(item.Sources))
	fmt.Printf("Run 'corpus process %s' to index it.\n", item.ID)
	return nil
}

// ListCmd creates the list command.
func ListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List knowledge bases",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList()
		},
	}
}

func runList() error {
	api, err := NewAPIClient()
	if err != nil {
		return err
	}

	resp, err := api.Get("/knowledge")
	if err != nil {
		return fmt.Errorf("list failed: %w", err)
	}

	var listResp struct {
		Items []KnowledgeItem `json:"items"`
	}
	if err := json.Unmarshal(resp.Data, &listResp); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if len(listResp.Items) == 0 {
		fmt.Println("No knowledge bases.")
		return nil
	}

	for _, item := range listResp.Items {
		fmt.Printf("%s  %-10s  %-32s  %d sources\n", item.ID, item.Status, item.Title, len(item.Sources))
	}
	return nil
}

// GetCmd creates the get command.
func GetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show a knowledge base",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(args[0])
		},
	}
}

func runGet(id string) error {
	api, err := NewAPIClient()
	if err != nil {
		return err
	}

	resp, err := api.Get("/knowledge/" + id)
	if err != nil {
		return fmt.Errorf("get failed: %w", err)
	}

	var item KnowledgeItem
	if err := json.Unmarshal(resp.Data, &item); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	fmt.Printf("ID:      %s\n", item.ID)
	fmt.Printf("Title:   %s\n", item.Title)
	fmt.Printf("Model:   %s\n", item.EmbeddingModel)
	fmt.Printf("Status:  %s\n", item.Status)
	fmt.Printf("Created: %s\n", item.CreatedAt)
	fmt.Printf("Updated: %s\n", item.UpdatedAt)
	if len(item.Sources) > 0 {
		fmt.Println("Sources:")
		for _, s := range item.Sources {
			fmt.Printf("  %s  %-6s  %s\n", s.ID, s.Type, s.Filename)
		}
	}
	return nil
}

// DeleteCmd creates the delete command.
func DeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a knowledge base and its vectors",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClient()
			if err != nil {
				return err
			}
			if _, err := api.Delete("/knowledge/" + args[0]); err != nil {
				return fmt.Errorf("delete failed: %w", err)
			}
			fmt.Printf("Deleted %s\n", args[0])
			return nil
		},
	}
}

// ProcessCmd creates the process command.
func ProcessCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "process <id>",
		Short: "Trigger indexing of a knowledge base",
		Long:  "Schedules a background indexing run. Check 'get' for the resulting status.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClient()
			if err != nil {
				return err
			}
			if _, err := api.Post("/knowledge/"+args[0]+"/process", nil); err != nil {
				return fmt.Errorf("process failed: %w", err)
			}
			fmt.Printf("Processing scheduled for %s\n", args[0])
			return nil
		},
	}
}

// SourceCmd creates the source command group.
func SourceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "source",
		Short: "Manage sources of a knowledge base",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add <knowledge-id> <path>",
		Short: "Attach a source file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClient()
			if err != nil {
				return err
			}
			path := args[1]
			resp, err := api.Post("/knowledge/"+args[0]+"/sources", SourcePayload{
				Filename: filepath.Base(path),
				Type:     sourceTypeFromPath(path),
				Content:  path,
			})
			if err != nil {
				return fmt.Errorf("add source failed: %w", err)
			}

			var src struct {
				ID string `json:"id"`
			}
			if err := json.Unmarshal(resp.Data, &src); err != nil {
				return fmt.Errorf("failed to parse response: %w", err)
			}
			fmt.Printf("Added source %s. Re-run 'process' to index it.\n", src.ID)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "rm <knowledge-id> <source-id>",
		Short: "Detach a source and drop its vectors",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClient()
			if err != nil {
				return err
			}
			if _, err := api.Delete("/knowledge/" + args[0] + "/sources/" + args[1]); err != nil {
				return fmt.Errorf("remove source failed: %w", err)
			}
			fmt.Printf("Removed source %s\n", args[1])
			return nil
		},
	})

	return cmd
}

func sourceTypeFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return "pdf"
	case ".csv":
		return "csv"
	case ".docx":
		return "docx"
	case ".txt", ".md":
		return "txt"
	default:
		return "file"
	}
}
