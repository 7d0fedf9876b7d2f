package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/quizforge/quizforge/internal/config"
	"github.com/quizforge/quizforge/internal/engine"
	"github.com/quizforge/quizforge/internal/generator"
	"github.com/quizforge/quizforge/internal/index"
	"github.com/quizforge/quizforge/internal/pdfproc"
	"github.com/quizforge/quizforge/internal/quiz"
	"github.com/quizforge/quizforge/internal/storage"
)

// --- index ---

var indexCmd = &cobra.Command{
	Use:   "index <file.pdf>",
	Short: "Extract, chunk, and index a PDF document",
	Long: `Extract text from a PDF, split it into chunks, and build a searchable
index. The index is persisted under the data directory so later generate
calls can reference the document by ID.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		setupLogging(cfg)

		store, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		defer store.Close()

		doc, _, err := indexDocument(cfg, store, args[0])
		if err != nil {
			return err
		}

		printSuccess("Indexed %s (%d chunks)", doc.Filename, doc.ChunkCount)
		printStatus("Document ID", "%s", doc.ID)
		return nil
	},
}

func indexDocument(cfg config.Config, store *storage.Store, path string) (storage.Document, *index.Index, error) {
	printStep("Extracting text from %s...", path)
	proc := pdfproc.New(cfg.Chunking.Size, cfg.Chunking.Overlap)
	chunks, err := proc.Process(path)
	if err != nil {
		return storage.Document{}, nil, fmt.Errorf("processing pdf: %w", err)
	}

	printStep("Indexing %d chunks...", len(chunks))
	ix := index.New(cfg.Index.MaxFeatures)
	if err := ix.FitParallel(chunks, runtime.NumCPU()); err != nil {
		return storage.Document{}, nil, fmt.Errorf("building index: %w", err)
	}

	id := uuid.NewString()
	doc := storage.Document{
		ID:         id,
		Filename:   filepath.Base(path),
		ChunkCount: len(chunks),
		IndexDir:   filepath.Join(cfg.Storage.DataDir, "indexes", id),
		CreatedAt:  time.Now().UTC(),
	}
	if err := ix.Save(doc.IndexDir); err != nil {
		return storage.Document{}, nil, fmt.Errorf("persisting index: %w", err)
	}
	if err := store.SaveDocument(doc); err != nil {
		return storage.Document{}, nil, fmt.Errorf("saving document: %w", err)
	}
	return doc, ix, nil
}

// --- generate ---

var generateCmd = &cobra.Command{
	Use:   "generate <file.pdf | document-id>",
	Short: "Generate quiz questions from a PDF or an indexed document",
	Long: `Generate quiz questions from a document. The argument is either a path
to a PDF file (indexed on the fly) or the ID of a previously indexed document.

Examples:
  quizforge generate ./lecture.pdf --count 10
  quizforge generate ./lecture.pdf --type true_false --topic "photosynthesis"
  quizforge generate 2f9c... --count 5 --difficulty high --output questions.json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		count, _ := cmd.Flags().GetInt("count")
		qType, _ := cmd.Flags().GetString("type")
		topic, _ := cmd.Flags().GetString("topic")
		difficulty, _ := cmd.Flags().GetString("difficulty")
		language, _ := cmd.Flags().GetString("language")
		model, _ := cmd.Flags().GetString("model")
		output, _ := cmd.Flags().GetString("output")

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		setupLogging(cfg)
		if model == "" {
			model = cfg.Ollama.Model
		}

		ctx := cmd.Context()
		eng := engine.New(cfg.Ollama.BaseURL, cfg.Ollama.Timeout())
		if !eng.IsRunning(ctx) {
			return fmt.Errorf("ollama is not reachable at %s", cfg.Ollama.BaseURL)
		}
		if !eng.HasModel(ctx, model) {
			printWarning("model %q is not pulled; run: ollama pull %s", model, model)
		}

		store, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		defer store.Close()

		doc, ix, err := resolveDocument(cfg, store, args[0])
		if err != nil {
			return err
		}

		gen := generator.New(eng, ix, slog.Default())
		gen.Source = doc.Filename
		gen.MaxRetries = cfg.Generation.MaxRetries

		qcfg := quiz.Config{
			QuestionType: quiz.QuestionType(qType),
			Count:        count,
			Topic:        topic,
			Difficulty:   quiz.Difficulty(difficulty),
			Language:     language,
			Model:        model,
		}

		printStep("Generating %d %s questions with %s...", count, qType, model)
		run, err := gen.Generate(ctx, qcfg)
		if err != nil {
			return err
		}

		rec, err := storage.NewRunRecord(doc.ID, run)
		if err == nil {
			if err := store.SaveRun(rec); err != nil {
				printWarning("run not recorded: %v", err)
			}
		}

		if run.Metadata.FilteredCount < count {
			printWarning("delivered %d of %d requested questions", run.Metadata.FilteredCount, count)
		} else {
			printSuccess("Generated %d questions in %s", run.Metadata.FilteredCount, run.Duration.Round(time.Millisecond))
		}

		if output != "" {
			data, err := json.MarshalIndent(run.Export(), "", "  ")
			if err != nil {
				return err
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return fmt.Errorf("writing output: %w", err)
			}
			printSuccess("Saved to %s", output)
			return nil
		}

		printQuestions(run.Questions)
		return nil
	},
}

func init() {
	generateCmd.Flags().Int("count", 10, "number of questions to generate")
	generateCmd.Flags().String("type", "multiple_choice", "question type (multiple_choice, multiple_selection, true_false, short_answer)")
	generateCmd.Flags().String("topic", "", "focus questions on this topic")
	generateCmd.Flags().String("difficulty", "", "difficulty level (low, medium, high)")
	generateCmd.Flags().String("language", "", "question language")
	generateCmd.Flags().String("model", "", "model name (default from config)")
	generateCmd.Flags().String("output", "", "write questions as JSON to this file")
}

// resolveDocument maps the CLI argument to an indexed document: a path to an
// existing file is indexed on the fly, anything else is looked up as an ID.
func resolveDocument(cfg config.Config, store *storage.Store, arg string) (storage.Document, *index.Index, error) {
	if _, err := os.Stat(arg); err == nil {
		return indexDocument(cfg, store, arg)
	}

	doc, err := store.GetDocument(arg)
	if err != nil {
		return storage.Document{}, nil, fmt.Errorf("document %q: %w", arg, err)
	}
	ix, err := index.Load(doc.IndexDir)
	if err != nil {
		return storage.Document{}, nil, fmt.Errorf("loading index for %s: %w", doc.ID, err)
	}
	return doc, ix, nil
}

func printQuestions(questions []quiz.Question) {
	for i, q := range questions {
		fmt.Printf("\n%s %s\n", colorize(colorBold, fmt.Sprintf("Q%d.", i+1)), q.Text)
		for _, opt := range q.Options {
			fmt.Printf("  %s. %s\n", opt.Letter, opt.Text)
		}
		switch {
		case len(q.CorrectAnswers) > 0:
			fmt.Printf("  %s %s\n", colorize(colorGreen, "Answer:"), strings.Join(q.CorrectAnswers, ", "))
		case q.CorrectAnswer != "":
			fmt.Printf("  %s %s\n", colorize(colorGreen, "Answer:"), q.CorrectAnswer)
		case q.ModelAnswer != "":
			fmt.Printf("  %s %s\n", colorize(colorGreen, "Model answer:"), q.ModelAnswer)
		}
	}
}

// --- runs ---

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect generation run history",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent generation runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		store, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		defer store.Close()

		runs, err := store.ListRuns(limit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No runs found.")
			return nil
		}

		for _, r := range runs {
			fmt.Printf("%s  %s  %s  %d/%d questions\n",
				colorize(colorCyan, r.ID[:8]),
				r.CreatedAt.Format(time.RFC3339),
				r.QuestionType,
				r.FilteredCount,
				r.RequestedCount,
			)
		}
		return nil
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a single run with its questions as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		store, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		defer store.Close()

		rec, err := store.GetRun(args[0])
		if err != nil {
			return fmt.Errorf("run %q: %w", args[0], err)
		}
		questions, err := rec.Questions()
		if err != nil {
			return err
		}

		out := map[string]any{
			"id":              rec.ID,
			"document_id":     rec.DocumentID,
			"question_type":   rec.QuestionType,
			"topic":           rec.Topic,
			"difficulty":      rec.Difficulty,
			"language":        rec.Language,
			"model":           rec.Model,
			"requested_count": rec.RequestedCount,
			"filtered_count":  rec.FilteredCount,
			"duration_ms":     rec.DurationMS,
			"created_at":      rec.CreatedAt,
			"questions":       questions,
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	runsListCmd.Flags().Int("limit", 20, "maximum number of runs to list")
	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
}

// --- documents ---

// Document commands go through the HTTP API rather than storage directly so
// the server's cached index handles stay consistent with the database.
var documentsCmd = &cobra.Command{
	Use:   "documents",
	Short: "Manage indexed documents on the running server",
}

var documentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List indexed documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get("/documents")
		if err != nil {
			return err
		}

		var docs []struct {
			ID         string `json:"id"`
			Filename   string `json:"filename"`
			ChunkCount int    `json:"chunk_count"`
			CreatedAt  string `json:"created_at"`
		}
		if err := decodeJSON(resp, &docs); err != nil {
			return err
		}
		if len(docs) == 0 {
			fmt.Println("No documents found.")
			return nil
		}

		for _, d := range docs {
			fmt.Printf("%s  %s  %d chunks  %s\n",
				colorize(colorCyan, d.ID[:8]),
				d.CreatedAt,
				d.ChunkCount,
				d.Filename,
			)
		}
		return nil
	},
}

var documentsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a document, its index, and its runs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete("/documents/" + args[0])
		if err != nil {
			return err
		}
		resp.Body.Close()
		if resp.StatusCode >= 400 {
			return fmt.Errorf("server returned %d", resp.StatusCode)
		}

		printSuccess("Deleted document %s", args[0])
		return nil
	},
}

func init() {
	documentsCmd.AddCommand(documentsListCmd)
	documentsCmd.AddCommand(documentsDeleteCmd)
}

// --- metrics ---

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Show aggregate metrics from the running server",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get("/metrics")
		if err != nil {
			return err
		}

		var metrics any
		if err := decodeJSON(resp, &metrics); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(metrics)
	},
}

// --- models ---

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List models available in the local Ollama instance",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		eng := engine.New(cfg.Ollama.BaseURL, cfg.Ollama.Timeout())
		models, err := eng.ListModels(cmd.Context())
		if err != nil {
			return err
		}
		if len(models) == 0 {
			fmt.Println("No models found.")
			return nil
		}

		for _, m := range models {
			marker := "  "
			if m == cfg.Ollama.Model || strings.HasPrefix(m, cfg.Ollama.Model+":") {
				marker = colorize(colorGreen, "* ")
			}
			fmt.Printf("%s%s\n", marker, m)
		}
		return nil
	},
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
