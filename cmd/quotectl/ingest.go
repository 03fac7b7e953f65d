package main

import (
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"quotelens/internal/app"
	"quotelens/internal/model"
)

var ingestConversationID string

var ingestCmd = &cobra.Command{
	Use:   "ingest [files...]",
	Short: "Extract, segment and store quotes from local files",
	Long: `Runs the ingestion pipeline synchronously for the given files and
prints the conversation the quotes were attached to. The originals are
copied to the upload directory first and left untouched.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVarP(&ingestConversationID, "conversation", "c", "", "attach quotes to this conversation id")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if limit := a.Config.Ingest.MaxFiles; len(args) > limit {
		return fmt.Errorf("%w: got %d, limit %d", app.ErrTooManyFiles, len(args), limit)
	}

	conversationID := ingestConversationID
	if conversationID == "" {
		conversation, err := a.Services.Conversations.Create(ctx, "")
		if err != nil {
			return fmt.Errorf("create conversation failed: %w", err)
		}
		conversationID = conversation.ID
	}

	files := make([]model.UploadedFile, 0, len(args))
	for _, path := range args {
		staged, err := stageCopy(a.Config.Ingest.UploadDir, path)
		if err != nil {
			return err
		}
		files = append(files, staged)
	}

	outcomes := a.Services.Ingest.Process(ctx, model.IngestJob{ConversationID: conversationID, Files: files})

	if outputJSON {
		type row struct {
			File         string `json:"file"`
			DocumentID   string `json:"document_id,omitempty"`
			Quotes       int    `json:"quotes"`
			FailedQuotes int    `json:"failed_quotes"`
			Error        string `json:"error,omitempty"`
		}
		rows := make([]row, 0, len(outcomes))
		for _, out := range outcomes {
			r := row{File: out.File.OriginalName, DocumentID: out.DocumentID, Quotes: out.Quotes, FailedQuotes: out.FailedQuotes}
			if out.Err != nil {
				r.Error = out.Err.Error()
			}
			rows = append(rows, r)
		}
		return printJSON(cmd, map[string]any{"conversation_id": conversationID, "files": rows})
	}

	cmd.Printf("conversation: %s\n", conversationID)
	for _, out := range outcomes {
		if out.Err != nil {
			cmd.Printf("  %s: failed: %v\n", out.File.OriginalName, out.Err)
			continue
		}
		cmd.Printf("  %s: %d quotes (%d failed) document=%s\n", out.File.OriginalName, out.Quotes, out.FailedQuotes, out.DocumentID)
	}
	return nil
}

func stageCopy(uploadDir, path string) (model.UploadedFile, error) {
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		return model.UploadedFile{}, err
	}
	src, err := os.Open(path)
	if err != nil {
		return model.UploadedFile{}, fmt.Errorf("open %s failed: %w", path, err)
	}
	defer src.Close()

	name := filepath.Base(path)
	dstPath := filepath.Join(uploadDir, app.SafeFileName(name, time.Now()))
	dst, err := os.Create(dstPath)
	if err != nil {
		return model.UploadedFile{}, err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		_ = os.Remove(dstPath)
		return model.UploadedFile{}, fmt.Errorf("copy %s failed: %w", path, err)
	}
	if err := dst.Close(); err != nil {
		return model.UploadedFile{}, err
	}
	return model.UploadedFile{
		OriginalName: name,
		Path:         dstPath,
		MediaType:    mime.TypeByExtension(filepath.Ext(name)),
	}, nil
}
