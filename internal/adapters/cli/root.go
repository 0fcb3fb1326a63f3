// Package cli exposes the ingestion pipeline as the "ingest" command.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kirillkom/knowledge-ingest/internal/core/domain"
	"github.com/kirillkom/knowledge-ingest/internal/core/ports"
)

type commonFlags struct {
	collection      string
	duplicatePolicy string
	aiMetadata      bool
	chunking        string
	mode            string
	jsonOutput      bool
}

func (f commonFlags) options() (domain.ProcessingOptions, error) {
	opts := domain.ProcessingOptions{
		ProcessingMode:   f.mode,
		ChunkingStrategy: f.chunking,
		UseAIMetadata:    f.aiMetadata,
		CollectionID:     f.collection,
		DuplicatePolicy:  domain.DuplicatePolicy(f.duplicatePolicy),
	}
	if err := opts.Validate(); err != nil {
		return domain.ProcessingOptions{}, fmt.Errorf("--duplicate-policy: %w", err)
	}
	return opts, nil
}

// NewRootCommand builds the command tree around an ingestor.
func NewRootCommand(ingestor ports.Ingestor) *cobra.Command {
	flags := &commonFlags{}

	root := &cobra.Command{
		Use:           "ingest",
		Short:         "Convert files, web pages and text into chunked knowledge-base documents",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flags.collection, "collection", "c", "", "target collection; enables persistence and duplicate detection")
	root.PersistentFlags().StringVar(&flags.duplicatePolicy, "duplicate-policy", "skip", "skip or overwrite")
	root.PersistentFlags().BoolVar(&flags.aiMetadata, "ai", false, "generate titles and descriptions with the AI provider")
	root.PersistentFlags().StringVar(&flags.chunking, "chunking", "", "chunking strategy: recursive, markdown, fixed or none")
	root.PersistentFlags().StringVar(&flags.mode, "mode", "", "processing mode hint passed to metadata generation")
	root.PersistentFlags().BoolVar(&flags.jsonOutput, "json", false, "print the full result as JSON")

	root.AddCommand(
		newFilesCommand(ingestor, flags),
		newURLCommand(ingestor, flags),
		newTextCommand(ingestor, flags),
	)
	return root
}

func newFilesCommand(ingestor ports.Ingestor, flags *commonFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "files PATH...",
		Short: "Ingest local files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := flags.options()
			if err != nil {
				return err
			}
			files := make([]domain.FileDescriptor, 0, len(args))
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("read %s: %w", path, err)
				}
				files = append(files, domain.FileDescriptor{
					Filename: filepath.Base(path),
					Size:     int64(len(data)),
					Content:  data,
				})
			}
			progress := func(completed, total int, percent float64) {
				fmt.Fprintf(cmd.ErrOrStderr(), "processed %d/%d (%.0f%%)\n", completed, total, percent)
			}
			result := ingestor.ProcessInput(cmd.Context(), domain.IngestRequest{Files: files, Options: opts}, progress)
			return printResult(cmd.OutOrStdout(), result, flags.jsonOutput)
		},
	}
}

func newURLCommand(ingestor ports.Ingestor, flags *commonFlags) *cobra.Command {
	var youtube bool
	cmd := &cobra.Command{
		Use:   "url URL...",
		Short: "Ingest web pages, downloads or YouTube videos",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := flags.options()
			if err != nil {
				return err
			}
			req := domain.IngestRequest{Options: opts}
			switch {
			case youtube:
				for _, u := range args {
					req.BatchItems = append(req.BatchItems, domain.BatchItem{Type: domain.BatchItemYouTube, URL: u})
				}
			case len(args) == 1:
				req.URL = args[0]
			default:
				req.URLs = args
			}
			result := ingestor.ProcessInput(cmd.Context(), req, nil)
			return printResult(cmd.OutOrStdout(), result, flags.jsonOutput)
		},
	}
	cmd.Flags().BoolVar(&youtube, "youtube", false, "treat every URL as a YouTube video")
	return cmd
}

func newTextCommand(ingestor ports.Ingestor, flags *commonFlags) *cobra.Command {
	var title string
	cmd := &cobra.Command{
		Use:   "text [TEXT]",
		Short: "Ingest raw text; reads stdin when TEXT is omitted or -",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := flags.options()
			if err != nil {
				return err
			}
			var text string
			if len(args) == 1 && args[0] != "-" {
				text = args[0]
			} else {
				raw, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				text = string(raw)
			}
			result := ingestor.ProcessInput(cmd.Context(), domain.IngestRequest{TextContent: text, Title: title, Options: opts}, nil)
			return printResult(cmd.OutOrStdout(), result, flags.jsonOutput)
		},
	}
	cmd.Flags().StringVarP(&title, "title", "t", "", "document title")
	return cmd
}

func printResult(w io.Writer, result *domain.ProcessingResult, asJSON bool) error {
	if asJSON {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
		fmt.Fprintln(w, string(data))
	} else {
		printSummary(w, result)
	}
	if !result.Success {
		return fmt.Errorf("ingestion failed: %s", result.ErrorMessage)
	}
	return nil
}

func printSummary(w io.Writer, result *domain.ProcessingResult) {
	if len(result.Documents) == 0 && len(result.FilesSkipped) == 0 {
		fmt.Fprintln(w, "No documents produced.")
	}
	for i, doc := range result.Documents {
		id := doc.ID
		if id == "" {
			id = "not persisted"
		}
		fmt.Fprintf(w, "  [%d] %s (%s) %d chars, %d chunks, %s\n", i+1, doc.Title, doc.SourceType, doc.ContentLength, doc.ChunkCount, id)
	}
	for _, skipped := range result.FilesSkipped {
		fmt.Fprintf(w, "  skipped %s: %s (existing %s)\n", skipped.Filename, skipped.Reason, skipped.ExistingDocumentID)
	}
	for _, failed := range result.Errors {
		fmt.Fprintf(w, "  error #%d %s: %s\n", failed.Index, failed.Filename, failed.Error)
	}
	for _, failed := range result.FailedItems {
		fmt.Fprintf(w, "  failed item #%d %s %s: %s\n", failed.Index, failed.Type, failed.Name, failed.Error)
	}
	if strategy, ok := result.Metadata["strategy"].(string); ok {
		fmt.Fprintf(w, "Strategy: %s\n", strings.TrimSpace(strategy))
	}
	fmt.Fprintf(w, "Chunks: %d\n", len(result.Chunks))
}
