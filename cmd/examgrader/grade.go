package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/pavelanni/examgrader/internal/capture"
	"github.com/pavelanni/examgrader/internal/grading"
	appI18n "github.com/pavelanni/examgrader/internal/i18n"
	"github.com/pavelanni/examgrader/internal/model"
	"github.com/pavelanni/examgrader/internal/sheet"
)

func keyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key <session-id> <image>",
		Short: "Read a master key image and attach it to a session",
		Args:  cobra.ExactArgs(2),
		RunE:  runKey,
	}
	addStoreFlags(cmd.Flags())
	addRecognizerFlags(cmd.Flags())
	addLogFlags(cmd.Flags())
	return cmd
}

func gradeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "grade <session-id> <dir | image...>",
		Short: "Grade a batch of answer sheet images",
		Args:  cobra.MinimumNArgs(2),
		RunE:  runGrade,
	}
	addStoreFlags(cmd.Flags())
	addRecognizerFlags(cmd.Flags())
	addLogFlags(cmd.Flags())
	return cmd
}

func scanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan <session-id>",
		Short: "Capture and grade one sheet from a scanner drop file",
		Args:  cobra.ExactArgs(1),
		RunE:  runScan,
	}
	cmd.Flags().String("device", "", "Image file the scanner writes each page to")
	_ = cmd.MarkFlagRequired("device")
	addStoreFlags(cmd.Flags())
	addRecognizerFlags(cmd.Flags())
	addLogFlags(cmd.Flags())
	return cmd
}

func runKey(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmd.Context()

	db, err := openStore(ctx, v)
	if err != nil {
		return err
	}
	defer db.Close()
	if _, err := db.Get(ctx, args[0]); err != nil {
		return err
	}

	img, err := sheet.Load(args[1])
	if err != nil {
		return err
	}
	rec, err := newRecognizer(ctx, v, false)
	if err != nil {
		return err
	}
	defer rec.Close()

	cfg, err := grading.NewIngestor(rec, nil).Ingest(ctx, img)
	if err != nil {
		return err
	}
	if err := db.AttachMasterConfig(ctx, args[0], cfg); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "master key attached: %d questions\n", len(cfg.CorrectAnswers))
	return nil
}

func runGrade(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmd.Context()

	db, err := openStore(ctx, v)
	if err != nil {
		return err
	}
	defer db.Close()
	sess, err := db.Get(ctx, args[0])
	if err != nil {
		return err
	}
	if sess.MasterConfig == nil {
		return fmt.Errorf("session %s: %w", sess.ID, model.ErrNoMasterKey)
	}

	images, err := loadInputs(args[1:])
	if err != nil {
		return err
	}
	rec, err := newRecognizer(ctx, v, false)
	if err != nil {
		return err
	}
	defer rec.Close()
	grader, err := newGrader(rec, gradeConfig(v))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	batch, err := grader.Process(ctx, images, sess.MasterConfig, func(p model.Progress) {
		fmt.Fprintf(out, "[%d/%d] %s\n", p.Current, p.Total, images[p.Current-1].Name)
	})
	if err != nil {
		return err
	}
	if err := db.AppendRecords(ctx, sess.ID, batch.Records); err != nil {
		grader.DiscardPreviews(batch.Records)
		return err
	}

	lctx := appI18n.WithLocalizer(ctx, appI18n.NewLocalizer(v.GetString("lang")))
	fmt.Fprintln(out, appI18n.Td(lctx, "BatchSummary", map[string]any{
		"Succeeded": batch.Succeeded(),
		"Attempted": batch.Attempted,
	}))
	return nil
}

func runScan(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmd.Context()

	db, err := openStore(ctx, v)
	if err != nil {
		return err
	}
	defer db.Close()
	sess, err := db.Get(ctx, args[0])
	if err != nil {
		return err
	}
	if sess.MasterConfig == nil {
		return fmt.Errorf("session %s: %w", sess.ID, model.ErrNoMasterKey)
	}

	cam := capture.NewManager()
	if err := cam.Start(capture.FileDevice{Path: v.GetString("device")}); err != nil {
		return err
	}
	defer cam.Stop()
	if name, ok := cam.Active(); ok {
		slog.Info("capturing sheet", "device", name)
	}

	img, err := cam.Capture(ctx)
	if err != nil {
		return err
	}
	rec, err := newRecognizer(ctx, v, false)
	if err != nil {
		return err
	}
	defer rec.Close()
	grader, err := newGrader(rec, gradeConfig(v))
	if err != nil {
		return err
	}

	record, err := grader.GradeOne(ctx, img, sess.MasterConfig)
	if err != nil {
		return err
	}
	if err := db.AppendRecords(ctx, sess.ID, []model.StudentRecord{record}); err != nil {
		grader.DiscardPreviews([]model.StudentRecord{record})
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%d/%d\n", record.StudentID, record.StudentName, record.Score, record.TotalQuestions)
	return nil
}

// loadInputs expands a single directory argument into its images, or loads each file.
func loadInputs(paths []string) ([]sheet.Image, error) {
	if len(paths) == 1 {
		if fi, err := os.Stat(paths[0]); err == nil && fi.IsDir() {
			return sheet.LoadDir(paths[0])
		}
	}
	images := make([]sheet.Image, 0, len(paths))
	for _, p := range paths {
		img, err := sheet.Load(p)
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, nil
}
