package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pavelanni/examgrader/internal/model"
	"github.com/pavelanni/examgrader/internal/results"
)

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <session-id>",
		Short: "Export a session's results as CSV or XLSX",
		Args:  cobra.ExactArgs(1),
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	f.String("format", "", "Output format (csv, xlsx); defaults to the output file extension, else csv")
	f.String("sort", "student_id", "Sort key (student_id, student_name, score, newest)")
	f.String("dir", "asc", "Sort direction (asc, desc)")
	f.Bool("review-only", false, "Only export sheets that need review")
	addStoreFlags(f)
	addLogFlags(f)
	return cmd
}

func runExport(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmd.Context()

	key, err := results.ParseSortKey(v.GetString("sort"))
	if err != nil {
		return err
	}
	dir, err := results.ParseDirection(v.GetString("dir"))
	if err != nil {
		return err
	}
	outPath := v.GetString("output")
	format, err := exportFormat(v.GetString("format"), outPath)
	if err != nil {
		return err
	}

	db, err := openStore(ctx, v)
	if err != nil {
		return err
	}
	defer db.Close()
	sess, err := db.Get(ctx, args[0])
	if err != nil {
		return err
	}

	records := sess.StudentRecords
	if v.GetBool("review-only") {
		records = results.NeedsReview(records)
	}
	rows := results.ToExportRows(results.SortBy(records, key, dir))

	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = cmd.OutOrStdout()
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if format == "xlsx" {
		return results.WriteXLSX(w, rows)
	}
	return results.WriteCSV(w, rows)
}

func exportFormat(format, outPath string) (string, error) {
	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(outPath)), ".")
		if format != "xlsx" {
			format = "csv"
		}
	}
	switch format = strings.ToLower(format); format {
	case "csv", "xlsx":
		return format, nil
	}
	return "", &model.ValidationError{Field: "format", Reason: fmt.Sprintf("unknown export format %q", format)}
}
